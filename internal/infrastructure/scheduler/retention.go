// Package scheduler runs the periodic retention sweep over archived searches.
package scheduler

import (
	"context"
	"fmt"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"

	"github.com/robfig/cron/v3"
)

// RetentionScheduler wraps robfig/cron and trims the job archive to the
// configured number of completed and failed searches
type RetentionScheduler struct {
	cron          *cron.Cron
	archive       repository.JobArchiveRepository
	keepCompleted int
	keepFailed    int
	spec          string
	logger        logger.Logger
}

// NewRetentionScheduler creates a scheduler firing on spec, e.g. "@every 10m"
func NewRetentionScheduler(
	archive repository.JobArchiveRepository,
	spec string,
	keepCompleted, keepFailed int,
	logger logger.Logger,
) *RetentionScheduler {
	return &RetentionScheduler{
		cron:          cron.New(cron.WithLogger(cron.DefaultLogger)),
		archive:       archive,
		keepCompleted: keepCompleted,
		keepFailed:    keepFailed,
		spec:          spec,
		logger:        logger,
	}
}

// Start registers the sweep and starts the scheduler
func (s *RetentionScheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Sweep(ctx)
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Retention scheduler started", "spec", s.spec)
	return nil
}

// Stop shuts the scheduler down and waits for a running sweep
func (s *RetentionScheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("Retention scheduler stopped")
}

// Sweep trims each status bucket once
func (s *RetentionScheduler) Sweep(ctx context.Context) {
	buckets := []struct {
		status entity.JobStatus
		keep   int
	}{
		{entity.StatusCompleted, s.keepCompleted},
		{entity.StatusFailed, s.keepFailed},
	}

	for _, b := range buckets {
		removed, err := s.archive.Trim(ctx, b.status, b.keep)
		if err != nil {
			s.logger.Error("Retention sweep failed", "status", b.status, "error", err)
			continue
		}
		if removed > 0 {
			s.logger.Info("Trimmed archived searches", "status", b.status, "removed", removed, "kept", b.keep)
		}
	}
}
