package repository

import (
	"context"
	"fmt"
	"time"

	"flexsearch-service/internal/domain/entity"
	"flexsearch-service/internal/domain/repository"
	"flexsearch-service/pkg/logger"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultArchiveTTL is how long MongoDB keeps archived jobs before its TTL monitor drops them
const DefaultArchiveTTL = 30 * 24 * time.Hour

// archivedJob is the stored shape of a finished job
type archivedJob struct {
	ID         string           `bson:"_id"`
	Record     entity.JobRecord `bson:",inline"`
	FinishedAt time.Time        `bson:"finishedAt"`
}

// MongoJobArchiveRepository implements the JobArchiveRepository interface
type MongoJobArchiveRepository struct {
	collection *mongo.Collection
}

// NewMongoJobArchiveRepository creates a new MongoDB job archive
func NewMongoJobArchiveRepository(db *mongo.Database, ttl time.Duration, logger logger.Logger) repository.JobArchiveRepository {
	if ttl <= 0 {
		ttl = DefaultArchiveTTL
	}
	collection := db.Collection("flexible_search_jobs")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// expire archived jobs on their own
	ttlIndex := mongo.IndexModel{
		Keys:    bson.M{"finishedAt": 1},
		Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
	}

	// recent jobs by status, newest first
	statusIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "status", Value: 1},
			{Key: "finishedAt", Value: -1},
		},
	}

	userIndex := mongo.IndexModel{
		Keys: bson.M{"userId": 1},
	}

	if _, err := collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		ttlIndex,
		statusIndex,
		userIndex,
	}); err != nil {
		// without the TTL index archived jobs are only removed by the retention sweep
		logger.Error("Failed to create archive indexes", "collection", collection.Name(), "error", err)
	}

	return &MongoJobArchiveRepository{
		collection: collection,
	}
}

// Save upserts a finished job
func (r *MongoJobArchiveRepository) Save(ctx context.Context, record entity.JobRecord) error {
	doc := archivedJob{
		ID:         record.JobID,
		Record:     record,
		FinishedAt: record.UpdatedAt,
	}
	if doc.FinishedAt.IsZero() {
		doc.FinishedAt = time.Now()
	}

	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": record.JobID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("archive job %s: %w", record.JobID, err)
	}
	return nil
}

// ListRecent finds the newest finished jobs with status
func (r *MongoJobArchiveRepository) ListRecent(ctx context.Context, status entity.JobStatus, limit int) ([]entity.JobRecord, error) {
	opts := options.Find().SetSort(bson.D{{Key: "finishedAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []archivedJob
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	records := make([]entity.JobRecord, 0, len(docs))
	for _, d := range docs {
		records = append(records, d.Record)
	}
	return records, nil
}

// Trim deletes all but the keep newest jobs with status and returns how many were removed
func (r *MongoJobArchiveRepository) Trim(ctx context.Context, status entity.JobStatus, keep int) (int64, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "finishedAt", Value: -1}}).
		SetSkip(int64(keep)).
		SetProjection(bson.M{"_id": 1})

	cursor, err := r.collection.Find(ctx, bson.M{"status": status}, opts)
	if err != nil {
		return 0, err
	}
	defer cursor.Close(ctx)

	var stale []struct {
		ID string `bson:"_id"`
	}
	if err := cursor.All(ctx, &stale); err != nil {
		return 0, err
	}
	if len(stale) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(stale))
	for _, s := range stale {
		ids = append(ids, s.ID)
	}

	res, err := r.collection.DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, fmt.Errorf("trim %s jobs: %w", status, err)
	}
	return res.DeletedCount, nil
}
