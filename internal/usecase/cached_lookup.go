package usecase

import (
	"context"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/pkg/metrics"
)

// DefaultCacheTTL is how long a successful lookup is reused
const DefaultCacheTTL = 10 * time.Minute

// CachedFareLookup consults the fare cache before the upstream client and
// stores every quote the client finds. Cache errors count as misses.
type CachedFareLookup struct {
	client  repository.FareLookupClient
	cache   repository.FareCache
	ttl     time.Duration
	logger  logger.Logger
	metrics *metrics.Metrics
}

// NewCachedFareLookup wraps client with cache
func NewCachedFareLookup(
	client repository.FareLookupClient,
	cache repository.FareCache,
	ttl time.Duration,
	logger logger.Logger,
	m *metrics.Metrics,
) repository.FareLookupClient {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedFareLookup{
		client:  client,
		cache:   cache,
		ttl:     ttl,
		logger:  logger,
		metrics: m,
	}
}

// LookupFare implements repository.FareLookupClient
func (c *CachedFareLookup) LookupFare(ctx context.Context, query entity.FareQuery) (*entity.FareQuote, error) {
	key := query.CacheKey()

	cached, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Fare cache read failed, treating as miss", "key", key, "error", err)
		c.metrics.ErrorsCount.WithLabelValues("cache_get").Inc()
	}
	if err == nil && cached != nil {
		c.metrics.CacheHits.Inc()
		return cached, nil
	}
	c.metrics.CacheMisses.Inc()

	quote, err := c.client.LookupFare(ctx, query)
	if err != nil || quote == nil {
		return nil, err
	}

	if err := c.cache.Put(ctx, key, *quote, c.ttl); err != nil {
		c.logger.Warn("Fare cache write failed", "key", key, "error", err)
		c.metrics.ErrorsCount.WithLabelValues("cache_put").Inc()
	}
	return quote, nil
}
