package repository

import (
	"context"
	"time"

	"flexsearch-service/internal/domain/entity"
)

// JobStore persists job records for a bounded time.
// Patch and Get return entity.ErrJobNotFound for absent or expired records.
type JobStore interface {
	Create(ctx context.Context, record entity.JobRecord) error
	Patch(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.JobRecord, error)
	Get(ctx context.Context, jobID string) (*entity.JobRecord, error)
}

// JobArchiveRepository keeps finished jobs after they leave the JobStore
type JobArchiveRepository interface {
	Save(ctx context.Context, record entity.JobRecord) error
	ListRecent(ctx context.Context, status entity.JobStatus, limit int) ([]entity.JobRecord, error)
	Trim(ctx context.Context, status entity.JobStatus, keep int) (int64, error)
}

// FareCache is an advisory cache of successful lookups. Get returns nil on a miss.
type FareCache interface {
	Get(ctx context.Context, key string) (*entity.FareQuote, error)
	Put(ctx context.Context, key string, quote entity.FareQuote, ttl time.Duration) error
}
