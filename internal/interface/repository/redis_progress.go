package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"

	"github.com/redis/go-redis/v9"
)

const progressChannelPrefix = "ws:flexible-search:"

// RedisProgressFeed publishes progress events on a per-job Pub/Sub channel so
// any replica can stream them
type RedisProgressFeed struct {
	rdb    *redis.Client
	logger logger.Logger
}

// NewRedisProgressFeed creates a new Redis Pub/Sub progress feed
func NewRedisProgressFeed(rdb *redis.Client, logger logger.Logger) *RedisProgressFeed {
	return &RedisProgressFeed{rdb: rdb, logger: logger}
}

var (
	_ repository.ProgressPublisher  = (*RedisProgressFeed)(nil)
	_ repository.ProgressSubscriber = (*RedisProgressFeed)(nil)
)

// ProgressChannel is the Pub/Sub channel of a job
func ProgressChannel(jobID string) string {
	return progressChannelPrefix + jobID
}

// Publish sends event to the job channel
func (f *RedisProgressFeed) Publish(ctx context.Context, jobID string, event entity.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := f.rdb.Publish(ctx, ProgressChannel(jobID), data).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", ProgressChannel(jobID), err)
	}
	return nil
}

// Subscribe listens on the job channel until a terminal event or ctx is done
func (f *RedisProgressFeed) Subscribe(ctx context.Context, jobID string) (<-chan entity.ProgressEvent, error) {
	pubsub := f.rdb.Subscribe(ctx, ProgressChannel(jobID))
	// wait for the subscription to be active before returning
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", ProgressChannel(jobID), err)
	}

	out := make(chan entity.ProgressEvent, subscriberBuffer)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-messages:
				if !ok {
					return
				}
				var event entity.ProgressEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					f.logger.Warn("Dropping undecodable progress event", "jobID", jobID, "error", err)
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
				if event.IsTerminal() {
					return
				}
			}
		}
	}()
	return out, nil
}
