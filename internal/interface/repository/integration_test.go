package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/infrastructure/persistence"
	"flexsearch-service/pkg/logger"

	"github.com/ory/dockertest/v3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/gorm"
)

// dockerPool skips the calling test when -short is set or Docker is unreachable
func dockerPool(t *testing.T) *dockertest.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := pool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	pool.MaxWait = time.Minute
	return pool
}

func startRedis(t *testing.T) *redis.Client {
	pool := dockerPool(t)
	resource, err := pool.Run("redis", "7-alpine", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var rdb *redis.Client
	err = pool.Retry(func() error {
		rdb = redis.NewClient(&redis.Options{Addr: resource.GetHostPort("6379/tcp")})
		return rdb.Ping(context.Background()).Err()
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func startMongo(t *testing.T) *mongo.Database {
	pool := dockerPool(t)
	resource, err := pool.Run("mongo", "7", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	var client *mongo.Client
	err = pool.Retry(func() error {
		uri := fmt.Sprintf("mongodb://%s", resource.GetHostPort("27017/tcp"))
		c, err := mongo.Connect(context.Background(), options.Client().ApplyURI(uri))
		if err != nil {
			return err
		}
		if err := c.Ping(context.Background(), nil); err != nil {
			_ = c.Disconnect(context.Background())
			return err
		}
		client = c
		return nil
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })
	return client.Database("flexsearch_test")
}

func startPostgres(t *testing.T) *gorm.DB {
	pool := dockerPool(t)
	resource, err := pool.Run("postgres", "16-alpine", []string{
		"POSTGRES_PASSWORD=secret",
		"POSTGRES_DB=flexsearch",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("postgres://postgres:secret@%s/flexsearch?sslmode=disable", resource.GetHostPort("5432/tcp"))
	var db *gorm.DB
	err = pool.Retry(func() error {
		var err error
		db, err = persistence.NewPostgresDB(context.Background(), dsn)
		return err
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func TestRedisAdapters(t *testing.T) {
	rdb := startRedis(t)
	ctx := context.Background()

	t.Run("job store", func(t *testing.T) {
		store := NewRedisJobStore(rdb, time.Hour)
		require.NoError(t, store.Create(ctx, entity.NewJobRecord("job-1", testRequest(), time.Now())))

		ttl, err := rdb.TTL(ctx, JobKey("job-1")).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 59*time.Minute)

		rec, err := store.Patch(ctx, "job-1", entity.JobPatch{
			Status:   entity.StatusPtr(entity.StatusProcessing),
			Attempts: entity.IntPtr(1),
		})
		require.NoError(t, err)
		assert.Equal(t, entity.StatusProcessing, rec.Status)

		got, err := store.Get(ctx, "job-1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.Attempts)
		assert.Equal(t, 7, got.Progress.Total)

		_, err = store.Get(ctx, "missing")
		assert.ErrorIs(t, err, entity.ErrJobNotFound)
	})

	t.Run("job store concurrent patches", func(t *testing.T) {
		store := NewRedisJobStore(rdb, time.Hour)
		require.NoError(t, store.Create(ctx, entity.NewJobRecord("job-2", testRequest(), time.Now())))

		errs := make(chan error, 2)
		go func() {
			_, err := store.Patch(ctx, "job-2", entity.JobPatch{Attempts: entity.IntPtr(2)})
			errs <- err
		}()
		go func() {
			_, err := store.Patch(ctx, "job-2", entity.JobPatch{Error: entity.StringPtr("note")})
			errs <- err
		}()
		require.NoError(t, <-errs)
		require.NoError(t, <-errs)

		got, err := store.Get(ctx, "job-2")
		require.NoError(t, err)
		assert.Equal(t, 2, got.Attempts)
		assert.Equal(t, "note", got.Error)
	})

	t.Run("fare cache", func(t *testing.T) {
		cache := NewRedisFareCache(rdb)
		key := "OTP:BCN:2024-03-15:5:2:0"

		miss, err := cache.Get(ctx, key)
		require.NoError(t, err)
		assert.Nil(t, miss)

		require.NoError(t, cache.Put(ctx, key, entity.FareQuote{Price: 149, Currency: "EUR", Airline: "Wizz Air"}, time.Minute))
		hit, err := cache.Get(ctx, key)
		require.NoError(t, err)
		require.NotNil(t, hit)
		assert.Equal(t, 149.0, hit.Price)

		ttl, err := rdb.TTL(ctx, "flight:"+key).Result()
		require.NoError(t, err)
		assert.Greater(t, ttl, 50*time.Second)
	})

	t.Run("progress feed", func(t *testing.T) {
		feed := NewRedisProgressFeed(rdb, logger.NewNopLogger())
		subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		events, err := feed.Subscribe(subCtx, "job-3")
		require.NoError(t, err)

		require.NoError(t, feed.Publish(ctx, "job-3", entity.ProgressEvent{Type: entity.EventProgress, JobID: "job-3", Progress: entity.Progress{Total: 7, Checked: 3}}))
		require.NoError(t, feed.Publish(ctx, "job-3", entity.ProgressEvent{Type: entity.EventFailed, JobID: "job-3", Error: "cancelled"}))

		var got []entity.ProgressEvent
		for ev := range events {
			got = append(got, ev)
		}
		require.Len(t, got, 2)
		assert.Equal(t, 3, got[0].Progress.Checked)
		assert.Equal(t, "cancelled", got[1].Error)
	})
}

func TestMongoJobArchive(t *testing.T) {
	db := startMongo(t)
	ctx := context.Background()
	archive := NewMongoJobArchiveRepository(db, time.Hour, logger.NewNopLogger())

	base := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		rec := entity.NewJobRecord(fmt.Sprintf("done-%d", i), testRequest(), base)
		rec.Status = entity.StatusCompleted
		rec.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, archive.Save(ctx, rec))
	}
	failed := entity.NewJobRecord("failed-0", testRequest(), base)
	failed.Status = entity.StatusFailed
	failed.Error = "cancelled"
	require.NoError(t, archive.Save(ctx, failed))

	// saving twice replaces the document
	again := entity.NewJobRecord("done-3", testRequest(), base)
	again.Status = entity.StatusCompleted
	again.Attempts = 2
	again.UpdatedAt = base.Add(3 * time.Minute)
	require.NoError(t, archive.Save(ctx, again))

	recent, err := archive.ListRecent(ctx, entity.StatusCompleted, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "done-3", recent[0].JobID)
	assert.Equal(t, 2, recent[0].Attempts)
	assert.Equal(t, "done-2", recent[1].JobID)

	removed, err := archive.Trim(ctx, entity.StatusCompleted, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), removed)

	remaining, err := archive.ListRecent(ctx, entity.StatusCompleted, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "done-3", remaining[0].JobID)

	failedList, err := archive.ListRecent(ctx, entity.StatusFailed, 0)
	require.NoError(t, err)
	require.Len(t, failedList, 1)
	assert.Equal(t, "cancelled", failedList[0].Error)
}

func TestGormReferenceRepositories(t *testing.T) {
	db := startPostgres(t)
	ctx := context.Background()
	require.NoError(t, db.AutoMigrate(&Airlines{}, &Timezonelist{}))

	t.Run("airlines are memoized", func(t *testing.T) {
		require.NoError(t, db.Create(&Airlines{Code: "W6", Name: "Wizz Air"}).Error)
		repo := NewGormAirlineRepository(db)

		airline, err := repo.GetByCode(ctx, "w6")
		require.NoError(t, err)
		assert.Equal(t, entity.Airline{Code: "W6", Name: "Wizz Air"}, *airline)

		// served from memory once the row is gone
		require.NoError(t, db.Unscoped().Where("code = ?", "W6").Delete(&Airlines{}).Error)
		airline, err = repo.GetByCode(ctx, "W6")
		require.NoError(t, err)
		assert.Equal(t, "Wizz Air", airline.Name)

		_, err = NewGormAirlineRepository(db).GetByCode(ctx, "W6")
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})

	t.Run("airports", func(t *testing.T) {
		require.NoError(t, db.Create(&Timezonelist{
			AirportCode: "OTP",
			AirportName: "Henri Coanda",
			CityCode:    "BUH",
			CityName:    "Bucharest",
			TzName:      "Europe/Bucharest",
		}).Error)
		repo := NewGormAirportRepository(db)

		airport, err := repo.GetByCode(ctx, "otp")
		require.NoError(t, err)
		assert.Equal(t, "OTP", airport.Code)
		assert.Equal(t, "Bucharest", airport.CityName)
		assert.Equal(t, "Europe/Bucharest", airport.TzName)

		_, err = repo.GetByCode(ctx, "XXX")
		assert.ErrorIs(t, err, entity.ErrInvalidRequest)
	})
}
