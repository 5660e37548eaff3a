package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/pkg/metrics"
	"flexsearch-service/pkg/utils"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
)

// ErrRunnerClosed is returned by Submit after Shutdown has begun
var ErrRunnerClosed = errors.New("job runner is shutting down")

// SearchEngine is the part of FlexibleSearchEngine the runner drives
type SearchEngine interface {
	Run(ctx context.Context, jobID string, req entity.SearchRequest) (*entity.Results, error)
	MarkFailed(ctx context.Context, jobID, cause string) error
	Settle(ctx context.Context, req entity.SearchRequest, record *entity.JobRecord)
}

// RunnerConfig bounds concurrency, retries and retention
type RunnerConfig struct {
	Concurrency   int
	MaxAttempts   int
	BaseBackoff   time.Duration
	KeepCompleted int
	KeepFailed    int
}

// DefaultRunnerConfig returns the production defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Concurrency:   5,
		MaxAttempts:   3,
		BaseBackoff:   5 * time.Second,
		KeepCompleted: 100,
		KeepFailed:    200,
	}
}

// SubmitResult is returned to the caller as soon as a search is accepted
type SubmitResult struct {
	JobID         string `json:"jobId"`
	TotalDates    int    `json:"totalDates"`
	EstimatedTime int    `json:"estimatedTime"`
}

// JobRunner accepts flexible searches and executes them in the background
type JobRunner struct {
	engine     SearchEngine
	jobs       repository.JobStore
	subscriber repository.ProgressSubscriber
	archive    repository.JobArchiveRepository
	airports   repository.AirportRepository
	cfg        RunnerConfig
	logger     logger.Logger
	metrics    *metrics.Metrics

	slots     *semaphore.Weighted
	completed *recentJobs
	failed    *recentJobs

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu      sync.Mutex
	closed  bool
	running map[string]context.CancelFunc

	now   func() time.Time
	newID func() string
}

// NewJobRunner creates a new runner. archive and airports may be nil.
func NewJobRunner(
	engine SearchEngine,
	jobs repository.JobStore,
	subscriber repository.ProgressSubscriber,
	archive repository.JobArchiveRepository,
	airports repository.AirportRepository,
	cfg RunnerConfig,
	logger logger.Logger,
	m *metrics.Metrics,
) *JobRunner {
	def := DefaultRunnerConfig()
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.KeepCompleted <= 0 {
		cfg.KeepCompleted = def.KeepCompleted
	}
	if cfg.KeepFailed <= 0 {
		cfg.KeepFailed = def.KeepFailed
	}

	baseCtx, baseCancel := context.WithCancel(context.Background())
	return &JobRunner{
		engine:     engine,
		jobs:       jobs,
		subscriber: subscriber,
		archive:    archive,
		airports:   airports,
		cfg:        cfg,
		logger:     logger,
		metrics:    m,
		slots:      semaphore.NewWeighted(int64(cfg.Concurrency)),
		completed:  newRecentJobs(cfg.KeepCompleted),
		failed:     newRecentJobs(cfg.KeepFailed),
		baseCtx:    baseCtx,
		baseCancel: baseCancel,
		running:    make(map[string]context.CancelFunc),
		now:        time.Now,
		newID:      uuid.NewString,
	}
}

// Submit validates req, stores the pending record and schedules the run.
// Invalid requests are rejected with entity.ErrInvalidRequest and get no job.
func (r *JobRunner) Submit(ctx context.Context, req entity.SearchRequest) (*SubmitResult, error) {
	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := r.checkAirports(ctx, req); err != nil {
		return nil, err
	}

	// held across create and dispatch so Shutdown never strands a pending record
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRunnerClosed
	}

	jobID := r.newID()
	record := entity.NewJobRecord(jobID, req, r.now())
	if err := r.jobs.Create(ctx, record); err != nil {
		r.metrics.ErrorsCount.WithLabelValues("create_job").Inc()
		return nil, fmt.Errorf("create job record: %w", err)
	}

	r.dispatchLocked(jobID, req)

	r.metrics.SearchesSubmitted.Inc()
	r.logger.Info("Flexible search submitted",
		"jobID", jobID,
		"userID", req.UserID,
		"origin", req.Origin,
		"destination", req.Destination,
		"range", req.Range)

	return &SubmitResult{
		JobID:         jobID,
		TotalDates:    record.Progress.Total,
		EstimatedTime: record.Progress.EstimatedTimeRemaining,
	}, nil
}

// GetJobStatus returns the current job record
func (r *JobRunner) GetJobStatus(ctx context.Context, jobID string) (*entity.JobRecord, error) {
	return r.jobs.Get(ctx, jobID)
}

// Subscribe streams progress events for jobID until the terminal event.
// A job that already finished yields its terminal event only.
func (r *JobRunner) Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error) {
	subCtx, cancel := context.WithCancel(ctx)
	events, err := r.subscriber.Subscribe(subCtx, jobID)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe to job %s: %w", jobID, err)
	}

	// subscribe first so a job finishing in between is not missed
	record, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}

	out := make(chan entity.ProgressEvent, 1)
	if record.Status.IsTerminal() {
		cancel()
		out <- terminalEvent(record)
		close(out)
		return out, nil
	}

	go func() {
		defer cancel()
		defer close(out)
		for ev := range events {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if ev.IsTerminal() {
				return
			}
		}
	}()
	return out, nil
}

// Cancel stops a pending or running job. It reports whether the job was found.
func (r *JobRunner) Cancel(jobID string) bool {
	r.mu.Lock()
	cancel, ok := r.running[jobID]
	r.mu.Unlock()

	if ok {
		r.logger.Info("Cancelling flexible search", "jobID", jobID)
		cancel()
	}
	return ok
}

// Recent lists recently finished jobs with status, newest first
func (r *JobRunner) Recent(ctx context.Context, status entity.JobStatus, limit int) ([]entity.JobRecord, error) {
	var window *recentJobs
	switch status {
	case entity.StatusCompleted:
		window = r.completed
	case entity.StatusFailed:
		window = r.failed
	default:
		return nil, fmt.Errorf("%w: recent jobs are kept for completed or failed only", entity.ErrInvalidRequest)
	}

	if r.archive != nil {
		records, err := r.archive.ListRecent(ctx, status, limit)
		if err == nil {
			return records, nil
		}
		r.logger.Warn("Archive unavailable, serving in-memory window", "error", err)
	}
	return window.list(limit), nil
}

// Running is the number of jobs accepted and not yet finished
func (r *JobRunner) Running() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.running)
}

// Shutdown stops accepting jobs and waits for running ones. When ctx expires
// first, remaining jobs are cancelled and marked failed.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.baseCancel()
		return nil
	case <-ctx.Done():
		r.logger.Warn("Shutdown deadline reached, cancelling running searches", "running", r.Running())
		r.baseCancel()
		<-done
		return ctx.Err()
	}
}

// dispatchLocked starts the job goroutine; r.mu must be held
func (r *JobRunner) dispatchLocked(jobID string, req entity.SearchRequest) {
	jobCtx, cancel := context.WithCancel(r.baseCtx)
	r.running[jobID] = cancel
	r.wg.Add(1)

	go r.execute(jobCtx, cancel, jobID, req)
}

func (r *JobRunner) execute(ctx context.Context, cancel context.CancelFunc, jobID string, req entity.SearchRequest) {
	defer r.wg.Done()
	defer func() {
		r.mu.Lock()
		delete(r.running, jobID)
		r.mu.Unlock()
		cancel()
	}()

	log := r.logger.With("jobID", jobID)

	if err := r.slots.Acquire(ctx, 1); err != nil {
		r.finishFailed(ctx, log, jobID, req, entity.ErrCancelled.Error())
		return
	}
	defer r.slots.Release(1)

	// cancellation and an already finished record both end the job as is
	retryable := func(err error) bool {
		return !IsCancellation(err) && !errors.Is(err, entity.ErrJobTerminal)
	}
	retry := &utils.RetryConfig{
		MaxAttempts: r.cfg.MaxAttempts,
		BaseDelay:   r.cfg.BaseBackoff,
		Logger:      log,
		Retryable:   retryable,
		OnRetry:     func(int, error) { r.metrics.JobRetries.Inc() },
	}

	err := retry.Do(ctx, "flexible search", func(ctx context.Context, attempt int) error {
		if _, err := r.jobs.Patch(ctx, jobID, entity.JobPatch{Attempts: entity.IntPtr(attempt)}); err != nil {
			return fmt.Errorf("record attempt: %w", err)
		}
		_, err := r.engine.Run(ctx, jobID, req)
		return err
	})

	if errors.Is(err, entity.ErrJobTerminal) && r.finishSettled(ctx, log, jobID, req) {
		return
	}
	if err != nil {
		cause := err.Error()
		if IsCancellation(err) {
			cause = entity.ErrCancelled.Error()
		}
		r.finishFailed(ctx, log, jobID, req, cause)
		return
	}

	r.finishCompleted(ctx, log, jobID)
}

func (r *JobRunner) finishCompleted(ctx context.Context, log logger.Logger, jobID string) {
	ctx = context.WithoutCancel(ctx)
	record, err := r.jobs.Get(ctx, jobID)
	if err != nil {
		log.Warn("Completed job record unavailable for retention", "error", err)
		return
	}
	r.completed.add(*record)
	r.archiveRecord(ctx, log, *record)
}

// finishSettled handles a run that found its record already terminal, as when
// the final write was applied but its reply was lost. It reports false when the
// stored record is not terminal after all.
func (r *JobRunner) finishSettled(ctx context.Context, log logger.Logger, jobID string, req entity.SearchRequest) bool {
	ctx = context.WithoutCancel(ctx)
	record, err := r.jobs.Get(ctx, jobID)
	if err != nil || !record.Status.IsTerminal() {
		return false
	}

	log.Warn("Job already finished in the store, keeping its state", "status", record.Status)
	r.engine.Settle(ctx, req, record)
	if record.Status == entity.StatusCompleted {
		r.completed.add(*record)
	} else {
		r.failed.add(*record)
	}
	r.archiveRecord(ctx, log, *record)
	return true
}

func (r *JobRunner) finishFailed(ctx context.Context, log logger.Logger, jobID string, req entity.SearchRequest, cause string) {
	ctx = context.WithoutCancel(ctx)
	_ = r.engine.MarkFailed(ctx, jobID, cause)

	record, err := r.jobs.Get(ctx, jobID)
	if err != nil || record.Status != entity.StatusFailed {
		rec := entity.NewJobRecord(jobID, req, r.now())
		rec.Status = entity.StatusFailed
		rec.Error = cause
		record = &rec
	}
	r.failed.add(*record)
	r.archiveRecord(ctx, log, *record)
}

func (r *JobRunner) archiveRecord(ctx context.Context, log logger.Logger, record entity.JobRecord) {
	if r.archive == nil {
		return
	}
	if err := r.archive.Save(ctx, record); err != nil {
		log.Warn("Failed to archive finished job", "error", err)
		r.metrics.ErrorsCount.WithLabelValues("archive").Inc()
	}
}

func (r *JobRunner) checkAirports(ctx context.Context, req entity.SearchRequest) error {
	if r.airports == nil {
		return nil
	}
	for _, code := range []string{req.Origin, req.Destination} {
		if _, err := r.airports.GetByCode(ctx, code); err != nil {
			if errors.Is(err, entity.ErrInvalidRequest) {
				return err
			}
			r.logger.Warn("Airport lookup unavailable, skipping check", "code", code, "error", err)
		}
	}
	return nil
}

func terminalEvent(record *entity.JobRecord) entity.ProgressEvent {
	ev := entity.ProgressEvent{
		JobID:     record.JobID,
		Progress:  record.Progress,
		Timestamp: record.UpdatedAt,
	}
	if record.Status == entity.StatusFailed {
		ev.Type = entity.EventFailed
		ev.Error = record.Error
		return ev
	}
	results := record.Results
	ev.Type = entity.EventCompleted
	ev.TopResults = results.TopResults
	ev.Results = &results
	return ev
}

// recentJobs is a bounded, newest-last window of finished jobs
type recentJobs struct {
	mu      sync.Mutex
	limit   int
	records []entity.JobRecord
}

func newRecentJobs(limit int) *recentJobs {
	return &recentJobs{limit: limit}
}

func (w *recentJobs) add(record entity.JobRecord) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.records = append(w.records, record)
	if over := len(w.records) - w.limit; over > 0 {
		w.records = append([]entity.JobRecord(nil), w.records[over:]...)
	}
}

func (w *recentJobs) list(limit int) []entity.JobRecord {
	w.mu.Lock()
	defer w.mu.Unlock()

	if limit <= 0 || limit > len(w.records) {
		limit = len(w.records)
	}
	out := make([]entity.JobRecord, 0, limit)
	for i := len(w.records) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, w.records[i])
	}
	return out
}
