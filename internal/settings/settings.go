package settings

import (
	"context"
	"errors"

	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Fallback prices, in minor currency units, used when no clinic settings
// record exists.
const (
	DefaultInitialConsultPrice  = 50000
	DefaultFollowUpConsultPrice = 30000
	DefaultCurrency             = "aud"
)

var ErrNotFound = errors.New("clinic settings not found")

type Repository interface {
	Get(ctx context.Context) (models.ClinicSettings, error)
}

type MongoRepository struct {
	col *mongo.Collection
}

func NewRepository(col *mongo.Collection) *MongoRepository {
	return &MongoRepository{col: col}
}

func (r *MongoRepository) Get(ctx context.Context) (models.ClinicSettings, error) {
	var settings models.ClinicSettings
	if err := r.col.FindOne(ctx, bson.M{}).Decode(&settings); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.ClinicSettings{}, ErrNotFound
		}
		return models.ClinicSettings{}, err
	}
	return settings, nil
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// PriceFor returns the consultation price in minor units, falling back to
// the documented defaults when the settings record is absent or empty.
func (s *Service) PriceFor(ctx context.Context, consultationType string) (int, error) {
	fallback := DefaultInitialConsultPrice
	if consultationType == models.ConsultationFollowUp {
		fallback = DefaultFollowUpConsultPrice
	}

	stored, err := s.repo.Get(ctx)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fallback, nil
		}
		return 0, err
	}

	price := stored.InitialConsultPrice
	if consultationType == models.ConsultationFollowUp {
		price = stored.FollowUpConsultPrice
	}
	if price <= 0 {
		return fallback, nil
	}
	return price, nil
}

func (s *Service) Currency(ctx context.Context) string {
	stored, err := s.repo.Get(ctx)
	if err != nil || stored.Currency == "" {
		return DefaultCurrency
	}
	return stored.Currency
}
