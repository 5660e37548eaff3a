// Package container assembles the search engine, job runner and their backing
// stores from configuration. Optional backends are used when configured; the
// in-process stores cover everything else.
package container

import (
	"context"
	"fmt"
	"time"

	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/internal/infrastructure/config"
	"flexsearch-service/internal/infrastructure/grpchealth"
	"flexsearch-service/internal/infrastructure/oauth"
	"flexsearch-service/internal/infrastructure/persistence"
	"flexsearch-service/internal/infrastructure/scheduler"
	"flexsearch-service/internal/interface/amadeus"
	"flexsearch-service/internal/interface/gmail"
	repo "flexsearch-service/internal/interface/repository"
	"flexsearch-service/internal/usecase"
	"flexsearch-service/pkg/logger"
	"flexsearch-service/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

const healthInterval = 15 * time.Second

// Container holds the wired application
type Container struct {
	Config    *config.Config
	Logger    logger.Logger
	Metrics   *metrics.Metrics
	Engine    *usecase.FlexibleSearchEngine
	Runner    *usecase.JobRunner
	Health    *grpchealth.Server
	Retention *scheduler.RetentionScheduler // nil without MongoDB

	closers []func(context.Context) error
}

// New connects every configured backend and builds the runner on top of them.
// On error, anything already opened is closed again.
func New(ctx context.Context, cfg *config.Config, log logger.Logger, reg prometheus.Registerer) (*Container, error) {
	c := &Container{
		Config:  cfg,
		Logger:  log,
		Metrics: metrics.NewMetrics("flexsearch", reg),
		Health:  grpchealth.NewServer(healthInterval, log),
	}
	if err := c.build(ctx); err != nil {
		_ = c.Close(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) build(ctx context.Context) error {
	cfg, log := c.Config, c.Logger

	var (
		jobs       repository.JobStore
		cache      repository.FareCache
		publisher  repository.ProgressPublisher
		subscriber repository.ProgressSubscriber
		archive    repository.JobArchiveRepository
		airlines   repository.AirlineRepository
		airports   repository.AirportRepository
	)

	if cfg.RedisURL != "" {
		log.Info("Connecting to Redis")
		rdb, err := persistence.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return rdb.Close() })
		c.Health.Register("redis", func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

		feed := repo.NewRedisProgressFeed(rdb, log)
		jobs = repo.NewRedisJobStore(rdb, cfg.JobTTL)
		cache = repo.NewRedisFareCache(rdb)
		publisher, subscriber = feed, feed
	} else {
		log.Warn("REDIS_URL not set, keeping jobs and fares in memory")
		hub := repo.NewProgressHub()
		jobs = repo.NewMemoryJobStore(cfg.JobTTL)
		cache = repo.NewMemoryFareCache()
		publisher, subscriber = hub, hub
	}

	if cfg.MongoURI != "" {
		log.Info("Connecting to MongoDB")
		client, db, err := persistence.NewMongoClient(ctx, cfg.MongoURI, cfg.MongoDB, cfg.MongoUser, cfg.MongoPassword)
		if err != nil {
			return fmt.Errorf("connect mongodb: %w", err)
		}
		c.closers = append(c.closers, client.Disconnect)
		c.Health.Register("mongodb", func(ctx context.Context) error { return client.Ping(ctx, nil) })

		archive = repo.NewMongoJobArchiveRepository(db, repo.DefaultArchiveTTL, log)
		c.Retention = scheduler.NewRetentionScheduler(archive, cfg.RetentionSpec, cfg.KeepCompleted, cfg.KeepFailed, log)
	}

	if cfg.PostgresURI != "" {
		log.Info("Connecting to PostgreSQL")
		gormDB, err := persistence.NewPostgresDB(ctx, cfg.PostgresURI)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		sqlDB, err := gormDB.DB()
		if err != nil {
			return fmt.Errorf("postgres handle: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return sqlDB.Close() })
		c.Health.Register("postgres", sqlDB.PingContext)

		airlines = repo.NewGormAirlineRepository(gormDB)
		airports = repo.NewGormAirportRepository(gormDB)
	}

	var client repository.FareLookupClient
	if cfg.UseAmadeus() {
		httpClient := oauth.NewAmadeusHTTPClient(context.Background(), cfg.AmadeusBaseURL, cfg.AmadeusAPIKey, cfg.AmadeusAPISecret, cfg.LookupTimeout)
		client = amadeus.NewClient(httpClient, cfg.AmadeusBaseURL, cfg.SkyscannerAffiliateID, airlines, log)
	} else {
		log.Warn("Amadeus credentials not set, using the mock fare client")
		client = amadeus.NewMockClient(cfg.SkyscannerAffiliateID, cfg.MockLatency)
	}
	lookup := usecase.NewCachedFareLookup(client, cache, cfg.CacheTTL, log, c.Metrics)

	c.Engine = usecase.NewFlexibleSearchEngine(lookup, jobs, publisher, c.notifier(ctx), usecase.EngineConfig{
		BatchSize:     cfg.BatchSize,
		BatchDelay:    cfg.BatchDelay,
		TopN:          usecase.DefaultTopN,
		NotifyTimeout: cfg.NotifyTimeout,
	}, log, c.Metrics)

	c.Runner = usecase.NewJobRunner(c.Engine, jobs, subscriber, archive, airports, usecase.RunnerConfig{
		Concurrency:   cfg.RunnerConcurrency,
		MaxAttempts:   cfg.RunnerMaxAttempts,
		BaseBackoff:   cfg.RunnerBackoff,
		KeepCompleted: cfg.KeepCompleted,
		KeepFailed:    cfg.KeepFailed,
	}, log, c.Metrics)

	return nil
}

// notifier falls back to logging when Gmail is not configured or cannot start
func (c *Container) notifier(ctx context.Context) repository.Notifier {
	cfg := c.Config
	if !cfg.UseGmail() {
		return gmail.NewLogNotifier(c.Logger)
	}

	gmailOAuth := oauth.NewGmailOAuth(cfg.GmailClientID, cfg.GmailClientSecret, cfg.GmailRefreshToken, "", c.Logger)
	n, err := gmail.NewGmailNotifier(ctx, gmailOAuth.GetTokenSource(context.Background()), cfg.GmailSender, c.Logger)
	if err != nil {
		c.Logger.Error("Failed to create Gmail notifier, logging notifications instead", "error", err)
		return gmail.NewLogNotifier(c.Logger)
	}
	return n
}

// Close releases backend connections in reverse order of opening
func (c *Container) Close(ctx context.Context) error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.closers = nil
	return firstErr
}
