package availability

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

type fakeRepo struct {
	windows map[string]models.AvailabilityWindow
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{windows: make(map[string]models.AvailabilityWindow)}
}

func (f *fakeRepo) Create(ctx context.Context, window models.AvailabilityWindow) error {
	f.windows[window.ID] = window
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (models.AvailabilityWindow, error) {
	window, ok := f.windows[id]
	if !ok {
		return models.AvailabilityWindow{}, mongo.ErrNoDocuments
	}
	return window, nil
}

func (f *fakeRepo) ListByDoctor(ctx context.Context, doctorID string, limit, offset int64) ([]models.AvailabilityWindow, error) {
	items := make([]models.AvailabilityWindow, 0)
	for _, w := range f.windows {
		if w.DoctorID == doctorID {
			items = append(items, w)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].SpecificDate != items[j].SpecificDate {
			return items[i].SpecificDate < items[j].SpecificDate
		}
		if items[i].DayOfWeek != items[j].DayOfWeek {
			return items[i].DayOfWeek < items[j].DayOfWeek
		}
		return items[i].StartTime < items[j].StartTime
	})
	if offset > 0 {
		if offset >= int64(len(items)) {
			return []models.AvailabilityWindow{}, nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < int64(len(items)) {
		items = items[:limit]
	}
	return items, nil
}

func (f *fakeRepo) ListForDate(ctx context.Context, doctorID string, dayOfWeek int, date string) ([]models.AvailabilityWindow, error) {
	items := make([]models.AvailabilityWindow, 0)
	for _, w := range f.windows {
		if w.DoctorID != doctorID || w.IsBlocked {
			continue
		}
		if (w.SpecificDate == "" && w.DayOfWeek == dayOfWeek) || w.SpecificDate == date {
			items = append(items, w)
		}
	}
	return items, nil
}

func (f *fakeRepo) ListRecurring(ctx context.Context, doctorID string, dayOfWeek int) ([]models.AvailabilityWindow, error) {
	items := make([]models.AvailabilityWindow, 0)
	for _, w := range f.windows {
		if w.DoctorID == doctorID && w.SpecificDate == "" && w.DayOfWeek == dayOfWeek {
			items = append(items, w)
		}
	}
	return items, nil
}

func (f *fakeRepo) Delete(ctx context.Context, id string) error {
	if _, ok := f.windows[id]; !ok {
		return mongo.ErrNoDocuments
	}
	delete(f.windows, id)
	return nil
}

func (f *fakeRepo) HasOpenWindows(ctx context.Context, doctorID string) (bool, error) {
	for _, w := range f.windows {
		if w.DoctorID == doctorID && !w.IsBlocked && w.SpecificDate == "" {
			return true, nil
		}
	}
	return false, nil
}

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	repo := newFakeRepo()
	return NewService(repo, loc), repo
}

var doctor = auth.Identity{UserID: "doc-1", Role: models.RoleDoctor}

func TestCreateWindow(t *testing.T) {
	svc, repo := newTestService(t)

	window, err := svc.CreateWindow(context.Background(), doctor, CreateWindowRequest{
		DayOfWeek: 1,
		StartTime: "09:00",
		EndTime:   "17:00",
	})
	if err != nil {
		t.Fatalf("CreateWindow error: %v", err)
	}
	if window.DoctorID != "doc-1" || window.SpecificDate != "" {
		t.Fatalf("unexpected window: %+v", window)
	}
	if len(repo.windows) != 1 {
		t.Fatalf("expected 1 stored window, got %d", len(repo.windows))
	}
}

func TestCreateWindowRejectsInvertedRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.CreateWindow(context.Background(), doctor, CreateWindowRequest{
		DayOfWeek: 1,
		StartTime: "17:00",
		EndTime:   "09:00",
	})
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}

func TestCreateWindowRejectsOverlap(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateWindow(ctx, doctor, CreateWindowRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "12:00"}); err != nil {
		t.Fatalf("CreateWindow error: %v", err)
	}

	_, err := svc.CreateWindow(ctx, doctor, CreateWindowRequest{DayOfWeek: 1, StartTime: "11:00", EndTime: "14:00"})
	if !errors.Is(err, ErrOverlap) {
		t.Fatalf("expected ErrOverlap, got %v", err)
	}

	// Same times on another weekday are fine.
	if _, err := svc.CreateWindow(ctx, doctor, CreateWindowRequest{DayOfWeek: 2, StartTime: "11:00", EndTime: "14:00"}); err != nil {
		t.Fatalf("CreateWindow error: %v", err)
	}
}

func TestDeleteOwnerOnly(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	window, err := svc.CreateWindow(ctx, doctor, CreateWindowRequest{DayOfWeek: 3, StartTime: "09:00", EndTime: "12:00"})
	if err != nil {
		t.Fatalf("CreateWindow error: %v", err)
	}

	other := auth.Identity{UserID: "doc-2", Role: models.RoleDoctor}
	if err := svc.Delete(ctx, other, window.ID); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}

	if err := svc.Delete(ctx, doctor, window.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}

	if err := svc.Delete(ctx, doctor, window.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestWindowsForDateAppliesBlocksAndPins(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.CreateWindow(ctx, doctor, CreateWindowRequest{DayOfWeek: 1, StartTime: "09:00", EndTime: "10:00"}); err != nil {
		t.Fatalf("CreateWindow error: %v", err)
	}
	if _, err := svc.CreateBlock(ctx, doctor, CreateBlockRequest{Date: "2026-09-07", StartTime: "09:00", EndTime: "10:00"}); err != nil {
		t.Fatalf("CreateBlock error: %v", err)
	}

	// 2026-09-07 is a Monday; the blocked entry does not emit a window,
	// the recurring one does.
	windows, err := svc.WindowsForDate(ctx, "doc-1", "2026-09-07")
	if err != nil {
		t.Fatalf("WindowsForDate error: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %v", windows)
	}
	if windows[0].Start != 540 || windows[0].End != 600 {
		t.Fatalf("unexpected window: %+v", windows[0])
	}
}
