package usecase_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"flexsearch-service/internal/domain/entity"
	memrepo "flexsearch-service/internal/interface/repository"
	"flexsearch-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

var centerDate = time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)

func newMetrics() *metrics.Metrics {
	return metrics.NewMetrics("test", prometheus.NewRegistry())
}

func weekRequest() entity.SearchRequest {
	return entity.SearchRequest{
		UserID:       "user-1",
		Origin:       "OTP",
		Destination:  "BCN",
		CenterDate:   centerDate,
		Nights:       5,
		Passengers:   entity.Passengers{Adults: 2},
		Range:        entity.RangeWeek,
		ContactEmail: "traveller@example.com",
	}
}

// dayOffset is the number of days between d and the center date
func dayOffset(d time.Time) int {
	return int(d.Sub(centerDate).Hours() / 24)
}

// stubClient answers lookups with fn and counts calls
type stubClient struct {
	calls atomic.Int64
	fn    func(ctx context.Context, q entity.FareQuery) (*entity.FareQuote, error)
}

func (s *stubClient) LookupFare(ctx context.Context, q entity.FareQuery) (*entity.FareQuote, error) {
	s.calls.Add(1)
	return s.fn(ctx, q)
}

// linearPrices prices the i-th date of the range at 200 + 10×i, i in -3..+3
func linearPrices() *stubClient {
	return &stubClient{fn: func(ctx context.Context, q entity.FareQuery) (*entity.FareQuote, error) {
		return &entity.FareQuote{
			DepartureDate: q.DepartureDate,
			ReturnDate:    q.ReturnDate(),
			Price:         float64(200 + 10*dayOffset(q.DepartureDate)),
			Currency:      "EUR",
			Airline:       "Wizz Air",
		}, nil
	}}
}

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.ProgressEvent
}

func (p *recordingPublisher) Publish(ctx context.Context, jobID string, ev entity.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Events() []entity.ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]entity.ProgressEvent(nil), p.events...)
}

// recordingNotifier forwards notifications to a channel
type recordingNotifier struct {
	sent chan entity.Notification
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{sent: make(chan entity.Notification, 8)}
}

func (n *recordingNotifier) Notify(ctx context.Context, note entity.Notification) error {
	n.sent <- note
	return nil
}

var errStoreDown = errors.New("redis: connection refused")

// flakyStore wraps a memory store and fails chosen Patch calls
type flakyStore struct {
	*memrepo.MemoryJobStore
	mu      sync.Mutex
	patches int
	failOn  map[int]bool
	down    bool
}

func newFlakyStore(failOn ...int) *flakyStore {
	s := &flakyStore{MemoryJobStore: memrepo.NewMemoryJobStore(time.Hour), failOn: map[int]bool{}}
	for _, n := range failOn {
		s.failOn[n] = true
	}
	return s
}

func (s *flakyStore) Patch(ctx context.Context, jobID string, patch entity.JobPatch) (*entity.JobRecord, error) {
	s.mu.Lock()
	s.patches++
	fail := s.down || s.failOn[s.patches]
	s.mu.Unlock()

	if fail {
		return nil, errStoreDown
	}
	return s.MemoryJobStore.Patch(ctx, jobID, patch)
}

func (s *flakyStore) SetDown(down bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.down = down
}

func createJob(t *testing.T, store interface {
	Create(context.Context, entity.JobRecord) error
}, jobID string, req entity.SearchRequest) {
	t.Helper()
	if err := store.Create(context.Background(), entity.NewJobRecord(jobID, req, time.Now())); err != nil {
		t.Fatalf("create job: %v", err)
	}
}
