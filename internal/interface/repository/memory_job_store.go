package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
)

// DefaultJobTTL bounds how long a job record is kept after its last write
const DefaultJobTTL = time.Hour

type storedJob struct {
	record    entity.JobRecord
	expiresAt time.Time
}

// MemoryJobStore is an in-process JobStore with lazy expiry
type MemoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]storedJob
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryJobStore creates a new in-memory job store
func NewMemoryJobStore(ttl time.Duration) *MemoryJobStore {
	if ttl <= 0 {
		ttl = DefaultJobTTL
	}
	return &MemoryJobStore{
		jobs: make(map[string]storedJob),
		ttl:  ttl,
		now:  time.Now,
	}
}

var _ repository.JobStore = (*MemoryJobStore)(nil)

// SetClock replaces the time source used for expiry
func (s *MemoryJobStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Create stores a new record, replacing any record with the same id
func (s *MemoryJobStore) Create(ctx context.Context, record entity.JobRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[record.JobID] = storedJob{record: cloneRecord(record), expiresAt: s.now().Add(s.ttl)}
	return nil
}

// Patch applies patch and refreshes the record's TTL
func (s *MemoryJobStore) Patch(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	record := cloneRecord(stored.record)
	if err := patch.Apply(&record, now); err != nil {
		return nil, err
	}
	s.jobs[jobID] = storedJob{record: record, expiresAt: now.Add(s.ttl)}

	out := cloneRecord(record)
	return &out, nil
}

// Get returns a copy of the record
func (s *MemoryJobStore) Get(ctx context.Context, jobID string) (*entity.JobRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.lookup(jobID)
	if err != nil {
		return nil, err
	}
	out := cloneRecord(stored.record)
	return &out, nil
}

// lookup must be called with s.mu held
func (s *MemoryJobStore) lookup(jobID string) (storedJob, error) {
	stored, ok := s.jobs[jobID]
	if !ok {
		return storedJob{}, fmt.Errorf("job %s: %w", jobID, entity.ErrJobNotFound)
	}
	if !s.now().Before(stored.expiresAt) {
		delete(s.jobs, jobID)
		return storedJob{}, fmt.Errorf("job %s expired: %w", jobID, entity.ErrJobNotFound)
	}
	return stored, nil
}

// cloneRecord copies the slices and maps so callers never share state with the store
func cloneRecord(r entity.JobRecord) entity.JobRecord {
	r.Results = cloneResults(r.Results)
	return r
}

func cloneResults(res entity.Results) entity.Results {
	out := entity.Results{}
	if res.TopResults != nil {
		out.TopResults = append([]entity.FareQuote{}, res.TopResults...)
	}
	if res.PriceCalendar != nil {
		out.PriceCalendar = make(map[string]float64, len(res.PriceCalendar))
		for k, v := range res.PriceCalendar {
			out.PriceCalendar[k] = v
		}
	}
	if res.Statistics != nil {
		stats := *res.Statistics
		out.Statistics = &stats
	}
	return out
}
