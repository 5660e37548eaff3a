package repository

import (
	"context"

	"flexsearch-service/internal/domain/entity"
)

// ProgressPublisher fans progress events out to whoever is listening.
// Delivery is at-most-once; events without subscribers are dropped.
type ProgressPublisher interface {
	Publish(ctx context.Context, jobID string, event entity.ProgressEvent) error
}

// ProgressSubscriber opens a stream of events for one job. The channel is
// closed after a terminal event or when ctx is done.
type ProgressSubscriber interface {
	Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error)
}

// Notifier delivers the "search finished" message to a user
type Notifier interface {
	Notify(ctx context.Context, n entity.Notification) error
}
