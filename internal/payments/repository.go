package payments

import (
	"context"
	"time"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	GetByAppointmentID(ctx context.Context, appointmentID string) (models.Payment, error)
	SetSession(ctx context.Context, id, sessionID string, now time.Time) (models.Payment, error)
	MarkCompleted(ctx context.Context, sessionID, paymentID string, now time.Time) (models.Payment, error)
	MarkFailed(ctx context.Context, sessionID string, now time.Time) (models.Payment, error)
	MarkRefunded(ctx context.Context, paymentID string, now time.Time) (models.Payment, error)
}

type MongoRepository struct {
	payments *mongo.Collection
}

func NewRepository(payments *mongo.Collection) *MongoRepository {
	return &MongoRepository{payments: payments}
}

func (r *MongoRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (models.Payment, error) {
	var payment models.Payment
	if err := r.payments.FindOne(ctx, bson.M{"appointmentId": appointmentID}).Decode(&payment); err != nil {
		return models.Payment{}, err
	}
	return payment, nil
}

func (r *MongoRepository) SetSession(ctx context.Context, id, sessionID string, now time.Time) (models.Payment, error) {
	update := bson.M{
		"$set": bson.M{
			"stripeSessionId": sessionID,
			"updatedAt":       now,
		},
	}
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, update)
}

// MarkCompleted records a successful checkout by session id. Keyed on the
// session so webhook retries stay idempotent.
func (r *MongoRepository) MarkCompleted(ctx context.Context, sessionID, paymentID string, now time.Time) (models.Payment, error) {
	update := bson.M{
		"$set": bson.M{
			"status":          models.PaymentStatusCompleted,
			"stripePaymentId": paymentID,
			"paidAt":          now,
			"updatedAt":       now,
		},
	}
	return r.findOneAndUpdate(ctx, bson.M{"stripeSessionId": sessionID}, update)
}

func (r *MongoRepository) MarkFailed(ctx context.Context, sessionID string, now time.Time) (models.Payment, error) {
	update := bson.M{
		"$set": bson.M{
			"status":    models.PaymentStatusFailed,
			"updatedAt": now,
		},
	}
	return r.findOneAndUpdate(ctx, bson.M{"stripeSessionId": sessionID}, update)
}

func (r *MongoRepository) MarkRefunded(ctx context.Context, paymentID string, now time.Time) (models.Payment, error) {
	update := bson.M{
		"$set": bson.M{
			"status":    models.PaymentStatusRefunded,
			"updatedAt": now,
		},
	}
	return r.findOneAndUpdate(ctx, bson.M{"stripePaymentId": paymentID}, update)
}

func (r *MongoRepository) findOneAndUpdate(ctx context.Context, filter, update bson.M) (models.Payment, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var updated models.Payment
	if err := r.payments.FindOneAndUpdate(ctx, filter, update, opts).Decode(&updated); err != nil {
		return models.Payment{}, err
	}
	return updated, nil
}
