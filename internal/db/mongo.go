package db

import (
	"context"
	"time"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Collections struct {
	Users          *mongo.Collection
	Availability   *mongo.Collection
	Appointments   *mongo.Collection
	Payments       *mongo.Collection
	ClinicSettings *mongo.Collection
}

func Connect(ctx context.Context, uri, dbName string) (*mongo.Client, *Collections, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, nil, err
	}

	db := client.Database(dbName)

	cols := &Collections{
		Users:          db.Collection("users"),
		Availability:   db.Collection("availability"),
		Appointments:   db.Collection("appointments"),
		Payments:       db.Collection("payments"),
		ClinicSettings: db.Collection("clinic_settings"),
	}

	return client, cols, nil
}

func EnsureIndexes(ctx context.Context, cols *Collections) error {
	indexTimeout, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := cols.Users.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "role", Value: 1}, {Key: "isActive", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	blocking := bson.A{}
	for _, s := range models.BlockingStatuses {
		blocking = append(blocking, s)
	}

	// The partial unique index makes the double-booking invariant hold for
	// identical start times even under concurrent inserts; cancelled and
	// completed appointments fall outside the filter and free the slot.
	_, err = cols.Appointments.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "scheduledAt", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.D{{Key: "status", Value: bson.D{{Key: "$in", Value: blocking}}}}),
		},
		{
			Keys: bson.D{{Key: "patientId", Value: 1}, {Key: "scheduledAt", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "status", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Availability.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "dayOfWeek", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "doctorId", Value: 1}, {Key: "specificDate", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	_, err = cols.Payments.Indexes().CreateMany(indexTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "appointmentId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "stripePaymentId", Value: 1}},
		},
	})
	if err != nil {
		return err
	}

	return nil
}
