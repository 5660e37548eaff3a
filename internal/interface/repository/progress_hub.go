package repository

import (
	"context"
	"sync"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
)

const subscriberBuffer = 16

// ProgressHub is an in-process progress feed. Events for jobs without
// subscribers are dropped, and so are events for subscribers that fall behind.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan entity.ProgressEvent]struct{}
}

// NewProgressHub creates an empty hub
func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan entity.ProgressEvent]struct{})}
}

var (
	_ repository.ProgressPublisher  = (*ProgressHub)(nil)
	_ repository.ProgressSubscriber = (*ProgressHub)(nil)
)

// Publish delivers event to every current subscriber of jobID without blocking
func (h *ProgressHub) Publish(ctx context.Context, jobID string, event entity.ProgressEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs[jobID] {
		select {
		case ch <- event:
		default:
		}
		if event.IsTerminal() {
			h.removeLocked(jobID, ch)
		}
	}
	return nil
}

// Subscribe registers a new listener. The channel closes after a terminal
// event or when ctx is done.
func (h *ProgressHub) Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error) {
	ch := make(chan entity.ProgressEvent, subscriberBuffer)

	h.mu.Lock()
	if h.subs[jobID] == nil {
		h.subs[jobID] = make(map[chan entity.ProgressEvent]struct{})
	}
	h.subs[jobID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		h.removeLocked(jobID, ch)
		h.mu.Unlock()
	}()

	return ch, nil
}

// Subscribers is the number of listeners for jobID
func (h *ProgressHub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

func (h *ProgressHub) removeLocked(jobID string, ch chan entity.ProgressEvent) {
	set, ok := h.subs[jobID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, jobID)
	}
}
