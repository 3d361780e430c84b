package availability

import (
	"context"
	"errors"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"
	"clinic-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrInvalidRange = errors.New("end time must be after start time")
	ErrOverlap      = errors.New("window overlaps existing availability")
	ErrNotFound     = errors.New("availability window not found")
	ErrNotOwner     = errors.New("window belongs to another doctor")
)

type Service struct {
	repo     Repository
	location *time.Location
}

func NewService(repo Repository, location *time.Location) *Service {
	return &Service{repo: repo, location: location}
}

// CreateWindow adds a recurring weekly window for the calling doctor. A
// new recurring window may not overlap an existing recurring window on
// the same weekday.
func (s *Service) CreateWindow(ctx context.Context, identity auth.Identity, req CreateWindowRequest) (models.AvailabilityWindow, error) {
	start, end, err := parseRange(req.StartTime, req.EndTime)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}

	existing, err := s.repo.ListRecurring(ctx, identity.UserID, req.DayOfWeek)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}
	for _, other := range existing {
		otherStart, err := schedule.ParseClockToMinutes(other.StartTime)
		if err != nil {
			continue
		}
		otherEnd, err := schedule.ParseClockToMinutes(other.EndTime)
		if err != nil {
			continue
		}
		if schedule.Overlaps(schedule.Interval{Start: start, End: end}, schedule.Interval{Start: otherStart, End: otherEnd}) {
			return models.AvailabilityWindow{}, ErrOverlap
		}
	}

	window := models.AvailabilityWindow{
		ID:        primitive.NewObjectID().Hex(),
		DoctorID:  identity.UserID,
		DayOfWeek: req.DayOfWeek,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CreatedAt: time.Now().In(s.location),
	}
	if err := s.repo.Create(ctx, window); err != nil {
		return models.AvailabilityWindow{}, err
	}
	return window, nil
}

// CreateBlock records a blocked entry pinned to one calendar date.
func (s *Service) CreateBlock(ctx context.Context, identity auth.Identity, req CreateBlockRequest) (models.AvailabilityWindow, error) {
	if _, _, err := parseRange(req.StartTime, req.EndTime); err != nil {
		return models.AvailabilityWindow{}, err
	}

	date, err := schedule.ParseDate(req.Date, s.location)
	if err != nil {
		return models.AvailabilityWindow{}, err
	}

	window := models.AvailabilityWindow{
		ID:           primitive.NewObjectID().Hex(),
		DoctorID:     identity.UserID,
		DayOfWeek:    int(date.Weekday()),
		SpecificDate: req.Date,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		IsBlocked:    true,
		CreatedAt:    time.Now().In(s.location),
	}
	if err := s.repo.Create(ctx, window); err != nil {
		return models.AvailabilityWindow{}, err
	}
	return window, nil
}

func (s *Service) ListOwn(ctx context.Context, identity auth.Identity, limit, offset int64) ([]models.AvailabilityWindow, error) {
	return s.repo.ListByDoctor(ctx, identity.UserID, limit, offset)
}

// Delete removes a window; only the owning doctor may delete it.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, id string) error {
	window, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	if window.DoctorID != identity.UserID {
		return ErrNotOwner
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// WindowsForDate resolves the schedule windows applying to one date for
// the slot generator.
func (s *Service) WindowsForDate(ctx context.Context, doctorID, date string) ([]schedule.Window, error) {
	parsed, err := schedule.ParseDate(date, s.location)
	if err != nil {
		return nil, err
	}

	rows, err := s.repo.ListForDate(ctx, doctorID, int(parsed.Weekday()), date)
	if err != nil {
		return nil, err
	}

	sources := make([]schedule.WindowSource, 0, len(rows))
	for _, row := range rows {
		sources = append(sources, schedule.WindowSource{
			DayOfWeek:    row.DayOfWeek,
			SpecificDate: row.SpecificDate,
			StartTime:    row.StartTime,
			EndTime:      row.EndTime,
			IsBlocked:    row.IsBlocked,
		})
	}
	return schedule.WindowsForDate(sources, date, s.location)
}

func (s *Service) HasOpenWindows(ctx context.Context, doctorID string) (bool, error) {
	return s.repo.HasOpenWindows(ctx, doctorID)
}

func parseRange(startTime, endTime string) (int, int, error) {
	start, err := schedule.ParseClockToMinutes(startTime)
	if err != nil {
		return 0, 0, err
	}
	end, err := schedule.ParseClockToMinutes(endTime)
	if err != nil {
		return 0, 0, err
	}
	if start >= end {
		return 0, 0, ErrInvalidRange
	}
	return start, end, nil
}
