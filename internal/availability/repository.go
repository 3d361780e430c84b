package availability

import (
	"context"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, window models.AvailabilityWindow) error
	GetByID(ctx context.Context, id string) (models.AvailabilityWindow, error)
	ListByDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.AvailabilityWindow, error)
	ListForDate(ctx context.Context, doctorID string, dayOfWeek int, date string) ([]models.AvailabilityWindow, error)
	ListRecurring(ctx context.Context, doctorID string, dayOfWeek int) ([]models.AvailabilityWindow, error)
	Delete(ctx context.Context, id string) error
	HasOpenWindows(ctx context.Context, doctorID string) (bool, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Create(ctx context.Context, window models.AvailabilityWindow) error {
	_, err := r.col.InsertOne(ctx, window)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (models.AvailabilityWindow, error) {
	var window models.AvailabilityWindow
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&window); err != nil {
		return models.AvailabilityWindow{}, err
	}
	return window, nil
}

func (r *MongoRepository) ListByDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.AvailabilityWindow, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "specificDate", Value: 1},
		{Key: "dayOfWeek", Value: 1},
		{Key: "startTime", Value: 1},
	})
	if limit > 0 {
		opts.SetLimit(limit)
	}
	if offset > 0 {
		opts.SetSkip(offset)
	}
	return r.list(ctx, bson.M{"doctorId": doctorID}, opts)
}

// ListForDate returns the windows applying to one calendar date: recurring
// entries on its weekday plus entries pinned to the exact date. Blocked
// entries are excluded here, matching the read path of slot generation.
func (r *MongoRepository) ListForDate(ctx context.Context, doctorID string, dayOfWeek int, date string) ([]models.AvailabilityWindow, error) {
	query := bson.M{
		"doctorId":  doctorID,
		"isBlocked": false,
		"$or": bson.A{
			bson.M{"dayOfWeek": dayOfWeek, "specificDate": bson.M{"$in": bson.A{nil, ""}}},
			bson.M{"specificDate": date},
		},
	}
	return r.list(ctx, query, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
}

func (r *MongoRepository) ListRecurring(ctx context.Context, doctorID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	query := bson.M{
		"doctorId":     doctorID,
		"dayOfWeek":    dayOfWeek,
		"specificDate": bson.M{"$in": bson.A{nil, ""}},
	}
	return r.list(ctx, query, options.Find().SetSort(bson.D{{Key: "startTime", Value: 1}}))
}

func (r *MongoRepository) Delete(ctx context.Context, id string) error {
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return mongo.ErrNoDocuments
	}
	return nil
}

func (r *MongoRepository) HasOpenWindows(ctx context.Context, doctorID string) (bool, error) {
	count, err := r.col.CountDocuments(ctx, bson.M{
		"doctorId":     doctorID,
		"isBlocked":    false,
		"specificDate": bson.M{"$in": bson.A{nil, ""}},
	}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *MongoRepository) list(ctx context.Context, query bson.M, opts *options.FindOptions) ([]models.AvailabilityWindow, error) {
	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.AvailabilityWindow, 0)
	for cursor.Next(ctx) {
		var window models.AvailabilityWindow
		if err := cursor.Decode(&window); err != nil {
			return nil, err
		}
		items = append(items, window)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return items, nil
}
