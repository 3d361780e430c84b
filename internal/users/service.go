package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("user not found")
)

// AvailabilityChecker reports whether a doctor has any open recurring
// windows, used to hide doctors who cannot be booked.
type AvailabilityChecker interface {
	HasOpenWindows(ctx context.Context, doctorID string) (bool, error)
}

// DoctorSummary is the public listing shape; it carries whether the
// doctor currently accepts bookings.
type DoctorSummary struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Specialty string `json:"specialty,omitempty"`
	Bookable  bool   `json:"bookable"`
}

type Service struct {
	repo         Repository
	availability AvailabilityChecker
	now          func() time.Time
}

func NewService(repo Repository, availability AvailabilityChecker) *Service {
	return &Service{
		repo:         repo,
		availability: availability,
		now:          time.Now,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
	Phone     string
}

// Register creates a patient account. Emails are stored lowercased; the
// unique index turns a concurrent duplicate into ErrEmailTaken.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return models.User{}, err
	}

	now := s.now()
	user := models.User{
		ID:           primitive.NewObjectID().Hex(),
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		Phone:        strings.TrimSpace(in.Phone),
		Role:         models.RolePatient,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.repo.Create(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, ErrEmailTaken
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}
	if !user.IsActive {
		return models.User{}, ErrInvalidCredentials
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return models.User{}, ErrInvalidCredentials
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (models.User, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// DoctorByID resolves a doctor for booking validation. Callers check
// role and active state themselves.
func (s *Service) DoctorByID(ctx context.Context, id string) (models.User, error) {
	return s.repo.GetByID(ctx, id)
}

// ListDoctors returns all active doctors annotated with whether they
// have any open roster to book against.
func (s *Service) ListDoctors(ctx context.Context) ([]DoctorSummary, error) {
	doctors, err := s.repo.ListDoctors(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]DoctorSummary, 0, len(doctors))
	for _, doctor := range doctors {
		bookable := false
		if s.availability != nil {
			open, err := s.availability.HasOpenWindows(ctx, doctor.ID)
			if err != nil {
				return nil, err
			}
			bookable = open
		}
		summaries = append(summaries, DoctorSummary{
			ID:        doctor.ID,
			FirstName: doctor.FirstName,
			LastName:  doctor.LastName,
			Specialty: doctor.Specialty,
			Bookable:  bookable,
		})
	}
	return summaries, nil
}
