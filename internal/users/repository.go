package users

import (
	"context"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Repository interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	ListDoctors(ctx context.Context) ([]models.User, error)
}

type MongoRepository struct {
	users *mongo.Collection
}

func NewRepository(users *mongo.Collection) *MongoRepository {
	return &MongoRepository{users: users}
}

func (r *MongoRepository) Create(ctx context.Context, user models.User) error {
	_, err := r.users.InsertOne(ctx, user)
	return err
}

func (r *MongoRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	var user models.User
	if err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) GetByEmail(ctx context.Context, email string) (models.User, error) {
	var user models.User
	if err := r.users.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (r *MongoRepository) ListDoctors(ctx context.Context) ([]models.User, error) {
	query := bson.M{
		"role":     models.RoleDoctor,
		"isActive": true,
	}
	opts := options.Find().SetSort(bson.D{{Key: "lastName", Value: 1}, {Key: "firstName", Value: 1}})

	cursor, err := r.users.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	doctors := make([]models.User, 0)
	for cursor.Next(ctx) {
		var user models.User
		if err := cursor.Decode(&user); err != nil {
			return nil, err
		}
		doctors = append(doctors, user)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return doctors, nil
}
