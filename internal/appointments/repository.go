package appointments

import (
	"context"
	"time"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, appointment models.Appointment, payment models.Payment) error
	GetByID(ctx context.Context, id string) (models.Appointment, error)
	List(ctx context.Context, filter ListFilter, now time.Time) ([]models.Appointment, error)
	BlockingForRange(ctx context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error)
	UpdateStatus(ctx context.Context, id, status string, now time.Time) (models.Appointment, error)
	Cancel(ctx context.Context, id, reason string, now time.Time) (models.Appointment, error)
	SetRoom(ctx context.Context, id, roomName, roomURL string, now time.Time) (models.Appointment, error)
}

type MongoRepository struct {
	appointments *mongo.Collection
	payments     *mongo.Collection
}

func NewRepository(appointments, payments *mongo.Collection) *MongoRepository {
	return &MongoRepository{appointments: appointments, payments: payments}
}

// Create inserts the appointment and its payment placeholder. The
// appointment goes first so the unique (doctorId, scheduledAt) index can
// reject a concurrent duplicate before any payment record exists.
func (r *MongoRepository) Create(ctx context.Context, appointment models.Appointment, payment models.Payment) error {
	if _, err := r.appointments.InsertOne(ctx, appointment); err != nil {
		return err
	}
	if _, err := r.payments.InsertOne(ctx, payment); err != nil {
		return err
	}
	return nil
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (models.Appointment, error) {
	var appointment models.Appointment
	if err := r.appointments.FindOne(ctx, bson.M{"_id": id}).Decode(&appointment); err != nil {
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (r *MongoRepository) List(ctx context.Context, filter ListFilter, now time.Time) ([]models.Appointment, error) {
	query := bson.M{}
	if filter.PatientID != "" {
		query["patientId"] = filter.PatientID
	}
	if filter.DoctorID != "" {
		query["doctorId"] = filter.DoctorID
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if filter.Upcoming {
		query["scheduledAt"] = bson.M{"$gte": now}
	}

	opts := options.Find().SetSort(bson.D{{Key: "scheduledAt", Value: 1}})
	if filter.Limit > 0 {
		opts.SetLimit(filter.Limit)
	}
	if filter.Offset > 0 {
		opts.SetSkip(filter.Offset)
	}
	cursor, err := r.appointments.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Appointment, 0)
	for cursor.Next(ctx) {
		var appointment models.Appointment
		if err := cursor.Decode(&appointment); err != nil {
			return nil, err
		}
		items = append(items, appointment)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

// BlockingForRange returns the appointments occupying the doctor's
// calendar within [from, to), restricted to blocking statuses.
func (r *MongoRepository) BlockingForRange(ctx context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	blocking := bson.A{}
	for _, s := range models.BlockingStatuses {
		blocking = append(blocking, s)
	}

	query := bson.M{
		"doctorId":    doctorID,
		"scheduledAt": bson.M{"$gte": from, "$lt": to},
		"status":      bson.M{"$in": blocking},
	}

	cursor, err := r.appointments.Find(ctx, query)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	items := make([]models.Appointment, 0)
	for cursor.Next(ctx) {
		var appointment models.Appointment
		if err := cursor.Decode(&appointment); err != nil {
			return nil, err
		}
		items = append(items, appointment)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return items, nil
}

func (r *MongoRepository) UpdateStatus(ctx context.Context, id, status string, now time.Time) (models.Appointment, error) {
	update := bson.M{
		"$set": bson.M{
			"status":    status,
			"updatedAt": now,
		},
	}
	return r.findOneAndUpdate(ctx, id, update)
}

func (r *MongoRepository) Cancel(ctx context.Context, id, reason string, now time.Time) (models.Appointment, error) {
	set := bson.M{
		"status":      models.AppointmentStatusCancelled,
		"cancelledAt": now,
		"updatedAt":   now,
	}
	if reason != "" {
		set["cancellationReason"] = reason
	}
	return r.findOneAndUpdate(ctx, id, bson.M{"$set": set})
}

func (r *MongoRepository) SetRoom(ctx context.Context, id, roomName, roomURL string, now time.Time) (models.Appointment, error) {
	update := bson.M{
		"$set": bson.M{
			"roomName":  roomName,
			"roomUrl":   roomURL,
			"updatedAt": now,
		},
	}
	return r.findOneAndUpdate(ctx, id, update)
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, id string, update bson.M) (models.Appointment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Appointment
	if err := r.appointments.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&updated); err != nil {
		return models.Appointment{}, err
	}
	return updated, nil
}
