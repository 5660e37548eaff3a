package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	memrepo "flexsearch-service/internal/interface/repository"
	"flexsearch-service/internal/usecase"
	"flexsearch-service/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunnerConfig(attempts int) usecase.RunnerConfig {
	return usecase.RunnerConfig{
		Concurrency:   2,
		MaxAttempts:   attempts,
		BaseBackoff:   time.Millisecond,
		KeepCompleted: 10,
		KeepFailed:    10,
	}
}

type runnerFixture struct {
	runner *usecase.JobRunner
	store  repository.JobStore
	hub    *memrepo.ProgressHub
}

func newRunnerFixture(t *testing.T, client repository.FareLookupClient, store repository.JobStore, attempts int) *runnerFixture {
	t.Helper()
	hub := memrepo.NewProgressHub()
	m := newMetrics()
	engine := usecase.NewFlexibleSearchEngine(client, store, hub, nil, testEngineConfig(), logger.NewNopLogger(), m)
	runner := usecase.NewJobRunner(engine, store, hub, nil, nil, testRunnerConfig(attempts), logger.NewNopLogger(), m)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = runner.Shutdown(ctx)
	})
	return &runnerFixture{runner: runner, store: store, hub: hub}
}

func (f *runnerFixture) waitForStatus(t *testing.T, jobID string, status entity.JobStatus) *entity.JobRecord {
	t.Helper()
	var rec *entity.JobRecord
	require.Eventually(t, func() bool {
		got, err := f.runner.GetJobStatus(context.Background(), jobID)
		if err != nil {
			return false
		}
		rec = got
		return got.Status == status
	}, 3*time.Second, 5*time.Millisecond)
	return rec
}

// gatedClient blocks every lookup until release is closed
func gatedClient(release <-chan struct{}) *stubClient {
	prices := linearPrices()
	return &stubClient{fn: func(ctx context.Context, q entity.FareQuery) (*entity.FareQuote, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return prices.fn(ctx, q)
	}}
}

func TestJobRunner_SubmitRejectsInvalidRequest(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	client := linearPrices()
	f := newRunnerFixture(t, client, store, 1)

	req := weekRequest()
	req.Destination = "otp"

	_, err := f.runner.Submit(context.Background(), req)
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
	assert.Zero(t, f.runner.Running())
	assert.Zero(t, client.calls.Load())
}

func TestJobRunner_SubmitRunsToCompletion(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	f := newRunnerFixture(t, linearPrices(), store, 3)

	req := weekRequest()
	req.Origin = "otp"
	res, err := f.runner.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, res.JobID)
	assert.Equal(t, 7, res.TotalDates)
	assert.Equal(t, 14, res.EstimatedTime)

	rec := f.waitForStatus(t, res.JobID, entity.StatusCompleted)
	assert.Equal(t, "OTP", rec.Request.Origin)
	assert.Equal(t, 1, rec.Attempts)
	assert.Equal(t, 100, rec.Progress.Percentage)
	assert.Equal(t, "2024-03-12", rec.Results.Statistics.CheapestDate)

	require.Eventually(t, func() bool { return f.runner.Running() == 0 }, time.Second, 5*time.Millisecond)
	recent, err := f.runner.Recent(context.Background(), entity.StatusCompleted, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, res.JobID, recent[0].JobID)
}

func TestJobRunner_RetriesAfterStoreFailure(t *testing.T) {
	// patch 1 records the attempt, 2 marks processing, 3 saves the first batch
	store := newFlakyStore(3)
	client := linearPrices()
	f := newRunnerFixture(t, client, store, 2)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)

	rec := f.waitForStatus(t, res.JobID, entity.StatusCompleted)
	assert.Equal(t, 2, rec.Attempts)
	assert.Empty(t, rec.Error)
	assert.Equal(t, int64(3+7), client.calls.Load(), "the retry starts again from the first batch")
}

func TestJobRunner_FailsAfterLastAttempt(t *testing.T) {
	store := newFlakyStore(3)
	f := newRunnerFixture(t, linearPrices(), store, 1)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)

	events, err := f.runner.Subscribe(context.Background(), res.JobID)
	require.NoError(t, err)

	rec := f.waitForStatus(t, res.JobID, entity.StatusFailed)
	assert.Contains(t, rec.Error, errStoreDown.Error())
	assert.Equal(t, 1, rec.Attempts)

	var last entity.ProgressEvent
	for ev := range events {
		last = ev
	}
	assert.Equal(t, entity.EventFailed, last.Type)
	assert.Contains(t, last.Error, errStoreDown.Error())

	require.Eventually(t, func() bool { return f.runner.Running() == 0 }, time.Second, 5*time.Millisecond)
	failed, err := f.runner.Recent(context.Background(), entity.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, entity.StatusFailed, failed[0].Status)
}

func TestJobRunner_CancelMarksJobFailed(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	release := make(chan struct{})
	defer close(release)
	client := gatedClient(release)
	f := newRunnerFixture(t, client, store, 3)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return client.calls.Load() > 0 }, time.Second, 5*time.Millisecond)

	assert.True(t, f.runner.Cancel(res.JobID))

	rec := f.waitForStatus(t, res.JobID, entity.StatusFailed)
	assert.Equal(t, "cancelled", rec.Error)
	assert.Equal(t, 1, rec.Attempts, "cancellation is never retried")

	require.Eventually(t, func() bool { return f.runner.Running() == 0 }, time.Second, 5*time.Millisecond)
	assert.False(t, f.runner.Cancel(res.JobID))
}

func TestJobRunner_SubscribeStreamsUntilTerminal(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	release := make(chan struct{})
	f := newRunnerFixture(t, gatedClient(release), store, 1)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)

	events, err := f.runner.Subscribe(context.Background(), res.JobID)
	require.NoError(t, err)
	close(release)

	var got []entity.ProgressEvent
	for ev := range events {
		got = append(got, ev)
	}

	require.Len(t, got, 4)
	assert.Equal(t, []int{3, 6, 7}, []int{got[0].Progress.Checked, got[1].Progress.Checked, got[2].Progress.Checked})
	assert.Equal(t, entity.EventCompleted, got[3].Type)
	require.NotNil(t, got[3].Results)
	assert.Equal(t, 7, got[3].Results.Statistics.TotalOptionsFound)
}

func TestJobRunner_SubscribeToFinishedJob(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	f := newRunnerFixture(t, linearPrices(), store, 1)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)
	f.waitForStatus(t, res.JobID, entity.StatusCompleted)

	events, err := f.runner.Subscribe(context.Background(), res.JobID)
	require.NoError(t, err)

	ev, ok := <-events
	require.True(t, ok)
	assert.Equal(t, entity.EventCompleted, ev.Type)
	assert.Equal(t, 100, ev.Progress.Percentage)
	require.NotNil(t, ev.Results)
	assert.Len(t, ev.Results.PriceCalendar, 7)

	_, ok = <-events
	assert.False(t, ok)
}

func TestJobRunner_SubscribeUnknownJob(t *testing.T) {
	f := newRunnerFixture(t, linearPrices(), memrepo.NewMemoryJobStore(time.Hour), 1)

	_, err := f.runner.Subscribe(context.Background(), "missing")
	assert.ErrorIs(t, err, entity.ErrJobNotFound)
	assert.Eventually(t, func() bool { return f.hub.Subscribers("missing") == 0 }, time.Second, time.Millisecond)
}

func TestJobRunner_RecentRejectsNonTerminalStatus(t *testing.T) {
	f := newRunnerFixture(t, linearPrices(), memrepo.NewMemoryJobStore(time.Hour), 1)

	_, err := f.runner.Recent(context.Background(), entity.StatusProcessing, 10)
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
}

// countingEngine records how many runs overlap
type countingEngine struct {
	active  atomic.Int32
	peak    atomic.Int32
	hold    time.Duration
	mu      sync.Mutex
	failed  []string
	blockOn <-chan struct{}
}

func (e *countingEngine) Run(ctx context.Context, jobID string, req entity.SearchRequest) (*entity.Results, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		peak := e.peak.Load()
		if n <= peak || e.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	select {
	case <-time.After(e.hold):
	case <-e.blockOn:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	results := entity.EmptyResults()
	return &results, nil
}

func (e *countingEngine) MarkFailed(ctx context.Context, jobID, cause string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failed = append(e.failed, cause)
	return nil
}

func (e *countingEngine) Settle(ctx context.Context, req entity.SearchRequest, record *entity.JobRecord) {}

func TestJobRunner_BoundsConcurrency(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	engine := &countingEngine{hold: 20 * time.Millisecond}
	runner := usecase.NewJobRunner(engine, store, memrepo.NewProgressHub(), nil, nil, testRunnerConfig(1), logger.NewNopLogger(), newMetrics())

	for range 6 {
		_, err := runner.Submit(context.Background(), weekRequest())
		require.NoError(t, err)
	}

	require.NoError(t, runner.Shutdown(context.Background()))
	assert.LessOrEqual(t, engine.peak.Load(), int32(2))
	assert.Positive(t, engine.peak.Load())
	assert.Zero(t, runner.Running())

	recent, err := runner.Recent(context.Background(), entity.StatusCompleted, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 6)
}

func TestJobRunner_ShutdownCancelsAfterDeadline(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	block := make(chan struct{})
	defer close(block)
	engine := &countingEngine{hold: time.Hour, blockOn: block}
	runner := usecase.NewJobRunner(engine, store, memrepo.NewProgressHub(), nil, nil, testRunnerConfig(3), logger.NewNopLogger(), newMetrics())

	res, err := runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)
	require.Eventually(t, func() bool { return engine.active.Load() == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, runner.Shutdown(ctx), context.DeadlineExceeded)

	engine.mu.Lock()
	assert.Equal(t, []string{"cancelled"}, engine.failed)
	engine.mu.Unlock()

	_, err = runner.Submit(context.Background(), weekRequest())
	assert.ErrorIs(t, err, usecase.ErrRunnerClosed)

	failed, err := runner.Recent(context.Background(), entity.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, res.JobID, failed[0].JobID)
	assert.Equal(t, "cancelled", failed[0].Error)
}

type staticAirports map[string]bool

func (a staticAirports) GetByCode(ctx context.Context, code string) (*entity.Airport, error) {
	if !a[code] {
		return nil, entity.ErrInvalidRequest
	}
	return &entity.Airport{Code: code}, nil
}

func TestJobRunner_SubmitChecksAirports(t *testing.T) {
	store := memrepo.NewMemoryJobStore(time.Hour)
	engine := &countingEngine{}
	runner := usecase.NewJobRunner(engine, store, memrepo.NewProgressHub(), nil, staticAirports{"OTP": true}, testRunnerConfig(1), logger.NewNopLogger(), newMetrics())
	defer func() { _ = runner.Shutdown(context.Background()) }()

	_, err := runner.Submit(context.Background(), weekRequest())
	assert.ErrorIs(t, err, entity.ErrInvalidRequest)
}

// lostReplyStore applies the completed patch and then reports a failure, as a
// store does when the write lands but the reply never arrives
type lostReplyStore struct {
	*memrepo.MemoryJobStore
	lost atomic.Int32
}

func (s *lostReplyStore) Patch(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.JobRecord, error) {
	rec, err := s.MemoryJobStore.Patch(ctx, jobID, patch)
	if err == nil && patch.Status != nil && *patch.Status == entity.StatusCompleted && s.lost.Add(1) == 1 {
		return nil, errStoreDown
	}
	return rec, err
}

func TestJobRunner_KeepsCompletedStateAfterLostReply(t *testing.T) {
	store := &lostReplyStore{MemoryJobStore: memrepo.NewMemoryJobStore(time.Hour)}
	release := make(chan struct{})
	client := gatedClient(release)
	f := newRunnerFixture(t, client, store, 3)

	res, err := f.runner.Submit(context.Background(), weekRequest())
	require.NoError(t, err)

	events, err := f.runner.Subscribe(context.Background(), res.JobID)
	require.NoError(t, err)
	close(release)

	var types []entity.EventType
	var last entity.ProgressEvent
	for ev := range events {
		types = append(types, ev.Type)
		last = ev
	}
	assert.Equal(t, []entity.EventType{entity.EventProgress, entity.EventProgress, entity.EventProgress, entity.EventCompleted}, types)
	require.NotNil(t, last.Results)
	assert.Equal(t, "2024-03-12", last.Results.Statistics.CheapestDate)

	require.Eventually(t, func() bool { return f.runner.Running() == 0 }, time.Second, 5*time.Millisecond)

	rec, err := f.runner.GetJobStatus(context.Background(), res.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, rec.Status)
	assert.Equal(t, 1, rec.Attempts)
	assert.Empty(t, rec.Error)
	assert.Equal(t, int64(7), client.calls.Load(), "the finished search is not run again")

	completed, err := f.runner.Recent(context.Background(), entity.StatusCompleted, 0)
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, res.JobID, completed[0].JobID)

	failed, err := f.runner.Recent(context.Background(), entity.StatusFailed, 0)
	require.NoError(t, err)
	assert.Empty(t, failed)
}

// slowCreateStore holds Create until release is closed
type slowCreateStore struct {
	*memrepo.MemoryJobStore
	entered chan struct{}
	release chan struct{}
}

func (s *slowCreateStore) Create(ctx context.Context, record entity.JobRecord) error {
	close(s.entered)
	<-s.release
	return s.MemoryJobStore.Create(ctx, record)
}

func TestJobRunner_ShutdownDuringSubmitLeavesNoPendingRecord(t *testing.T) {
	store := &slowCreateStore{
		MemoryJobStore: memrepo.NewMemoryJobStore(time.Hour),
		entered:        make(chan struct{}),
		release:        make(chan struct{}),
	}
	f := newRunnerFixture(t, linearPrices(), store, 1)

	type submitted struct {
		res *usecase.SubmitResult
		err error
	}
	submitDone := make(chan submitted, 1)
	go func() {
		res, err := f.runner.Submit(context.Background(), weekRequest())
		submitDone <- submitted{res, err}
	}()
	<-store.entered

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- f.runner.Shutdown(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	close(store.release)

	got := <-submitDone
	require.NoError(t, got.err)
	require.NoError(t, <-shutdownDone)

	rec, err := f.runner.GetJobStatus(context.Background(), got.res.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusCompleted, rec.Status)

	_, err = f.runner.Submit(context.Background(), weekRequest())
	assert.ErrorIs(t, err, usecase.ErrRunnerClosed)
}
