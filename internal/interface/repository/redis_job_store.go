package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

const (
	jobKeyPrefix    = "flexible-search:"
	maxPatchRetries = 5
)

// RedisJobStore keeps job records as JSON strings that expire after ttl
type RedisJobStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewRedisJobStore creates a new Redis-backed job store
func NewRedisJobStore(rdb *redis.Client, ttl time.Duration) repository.JobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &RedisJobStore{rdb: rdb, ttl: ttl, now: time.Now}
}

// JobKey is the Redis key holding a job record
func JobKey(jobID string) string {
	return jobKeyPrefix + jobID
}

// Create stores record with a fresh TTL
func (s *RedisJobStore) Create(ctx context.Context, record entity.JobRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", record.JobID, err)
	}
	if err := s.rdb.Set(ctx, JobKey(record.JobID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("store job %s: %w", record.JobID, err)
	}
	return nil
}

// Patch applies patch under WATCH so concurrent writers never lose updates
func (s *RedisJobStore) Patch(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.JobRecord, error) {
	key := JobKey(jobID)
	var updated entity.JobRecord

	txf := func(tx *redis.Tx) error {
		record, err := s.read(ctx, tx, jobID)
		if err != nil {
			return err
		}
		if err := patch.Apply(record, s.now()); err != nil {
			return err
		}
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("encode job %s: %w", jobID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		if err == nil {
			updated = *record
		}
		return err
	}

	for i := 0; i < maxPatchRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return &updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("patch job %s: too much contention", jobID)
}

// Get loads a record
func (s *RedisJobStore) Get(ctx context.Context, jobID string) (*entity.JobRecord, error) {
	return s.read(ctx, s.rdb, jobID)
}

type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisJobStore) read(ctx context.Context, c stringGetter, jobID string) (*entity.JobRecord, error) {
	raw, err := c.Get(ctx, JobKey(jobID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("job %s: %w", jobID, entity.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	var record entity.JobRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &record, nil
}
