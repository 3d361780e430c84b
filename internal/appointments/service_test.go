package appointments

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"
	"clinic-backend/internal/schedule"

	"go.mongodb.org/mongo-driver/mongo"
)

type fakeRepo struct {
	appointments map[string]models.Appointment
	payments     map[string]models.Payment
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		appointments: make(map[string]models.Appointment),
		payments:     make(map[string]models.Payment),
	}
}

// duplicateKeyErr mimics the server rejecting an insert on the partial
// unique (doctorId, scheduledAt) index.
var duplicateKeyErr = mongo.WriteException{
	WriteErrors: []mongo.WriteError{{Code: 11000}},
}

func (f *fakeRepo) Create(ctx context.Context, appointment models.Appointment, payment models.Payment) error {
	for _, existing := range f.appointments {
		if existing.DoctorID == appointment.DoctorID &&
			existing.ScheduledAt.Equal(appointment.ScheduledAt) &&
			models.IsBlockingStatus(existing.Status) {
			return duplicateKeyErr
		}
	}
	f.appointments[appointment.ID] = appointment
	f.payments[payment.ID] = payment
	return nil
}

func (f *fakeRepo) GetByID(ctx context.Context, id string) (models.Appointment, error) {
	appointment, ok := f.appointments[id]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	return appointment, nil
}

func (f *fakeRepo) List(ctx context.Context, filter ListFilter, now time.Time) ([]models.Appointment, error) {
	items := make([]models.Appointment, 0)
	for _, a := range f.appointments {
		if filter.PatientID != "" && a.PatientID != filter.PatientID {
			continue
		}
		if filter.DoctorID != "" && a.DoctorID != filter.DoctorID {
			continue
		}
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Upcoming && a.ScheduledAt.Before(now) {
			continue
		}
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].ScheduledAt.Before(items[j].ScheduledAt)
	})
	if filter.Offset > 0 {
		if filter.Offset >= int64(len(items)) {
			return []models.Appointment{}, nil
		}
		items = items[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < int64(len(items)) {
		items = items[:filter.Limit]
	}
	return items, nil
}

func (f *fakeRepo) BlockingForRange(ctx context.Context, doctorID string, from, to time.Time) ([]models.Appointment, error) {
	items := make([]models.Appointment, 0)
	for _, a := range f.appointments {
		if a.DoctorID != doctorID || !models.IsBlockingStatus(a.Status) {
			continue
		}
		if a.ScheduledAt.Before(from) || !a.ScheduledAt.Before(to) {
			continue
		}
		items = append(items, a)
	}
	return items, nil
}

func (f *fakeRepo) UpdateStatus(ctx context.Context, id, status string, now time.Time) (models.Appointment, error) {
	appointment, ok := f.appointments[id]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	appointment.Status = status
	appointment.UpdatedAt = now
	f.appointments[id] = appointment
	return appointment, nil
}

func (f *fakeRepo) Cancel(ctx context.Context, id, reason string, now time.Time) (models.Appointment, error) {
	appointment, ok := f.appointments[id]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	appointment.Status = models.AppointmentStatusCancelled
	appointment.CancellationReason = reason
	appointment.CancelledAt = &now
	appointment.UpdatedAt = now
	f.appointments[id] = appointment
	return appointment, nil
}

func (f *fakeRepo) SetRoom(ctx context.Context, id, roomName, roomURL string, now time.Time) (models.Appointment, error) {
	appointment, ok := f.appointments[id]
	if !ok {
		return models.Appointment{}, mongo.ErrNoDocuments
	}
	appointment.RoomName = roomName
	appointment.RoomURL = roomURL
	appointment.UpdatedAt = now
	f.appointments[id] = appointment
	return appointment, nil
}

type fakeWindows struct {
	windows map[string][]schedule.Window
}

func (f *fakeWindows) WindowsForDate(ctx context.Context, doctorID, date string) ([]schedule.Window, error) {
	return f.windows[doctorID+":"+date], nil
}

type fakeDirectory struct {
	doctors map[string]models.User
}

func (f *fakeDirectory) DoctorByID(ctx context.Context, id string) (models.User, error) {
	doctor, ok := f.doctors[id]
	if !ok {
		return models.User{}, mongo.ErrNoDocuments
	}
	return doctor, nil
}

type fakePricer struct{}

func (fakePricer) PriceFor(ctx context.Context, consultationType string) (int, error) {
	if consultationType == models.ConsultationFollowUp {
		return 30000, nil
	}
	return 50000, nil
}

func (fakePricer) Currency(ctx context.Context) string { return "aud" }

// 2026-09-07 is a Monday; the clock is pinned to 08:00 that morning.
const testDate = "2026-09-07"

func newTestService(t *testing.T) (*Service, *fakeRepo) {
	t.Helper()
	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}

	repo := newFakeRepo()
	windows := &fakeWindows{windows: map[string][]schedule.Window{
		"doc-1:" + testDate: {{Start: 540, End: 1020}},
	}}
	directory := &fakeDirectory{doctors: map[string]models.User{
		"doc-1": {ID: "doc-1", Role: models.RoleDoctor, IsActive: true},
		"doc-2": {ID: "doc-2", Role: models.RoleDoctor, IsActive: false},
	}}

	svc := NewService(repo, windows, directory, fakePricer{}, loc)
	svc.now = func() time.Time {
		return time.Date(2026, 9, 7, 8, 0, 0, 0, loc)
	}
	return svc, repo
}

var (
	patient = auth.Identity{UserID: "pat-1", Role: models.RolePatient}
	doctor  = auth.Identity{UserID: "doc-1", Role: models.RoleDoctor}
	manager = auth.Identity{UserID: "mgr-1", Role: models.RoleClinicManager}
)

func book(t *testing.T, svc *Service, timeStr string) models.Appointment {
	t.Helper()
	appointment, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             timeStr,
	})
	if err != nil {
		t.Fatalf("Book error: %v", err)
	}
	return appointment
}

func TestBookCreatesPendingAppointmentWithPayment(t *testing.T) {
	svc, repo := newTestService(t)

	appointment := book(t, svc, "10:00")

	if appointment.Status != models.AppointmentStatusPendingPayment {
		t.Fatalf("expected PENDING_PAYMENT, got %s", appointment.Status)
	}
	if appointment.Duration != 30 {
		t.Fatalf("expected 30 minute duration, got %d", appointment.Duration)
	}
	if len(repo.payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(repo.payments))
	}
	for _, payment := range repo.payments {
		if payment.AppointmentID != appointment.ID {
			t.Fatalf("payment not linked to appointment")
		}
		if payment.Amount != 50000 || payment.Currency != "aud" {
			t.Fatalf("unexpected payment: %+v", payment)
		}
		if payment.Status != models.PaymentStatusPending {
			t.Fatalf("expected PENDING payment, got %s", payment.Status)
		}
	}
}

func TestBookRejectsNonPatient(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Book(context.Background(), doctor, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "10:00",
	})
	if !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestBookRejectsPastSlot(t *testing.T) {
	svc, _ := newTestService(t)

	// 07:30 is before the pinned 08:00 clock.
	_, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "07:30",
	})
	if !errors.Is(err, ErrPastSlot) {
		t.Fatalf("expected ErrPastSlot, got %v", err)
	}
}

func TestBookRejectsInactiveDoctor(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:         "doc-2",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "10:00",
	})
	if !errors.Is(err, ErrDoctorNotFound) {
		t.Fatalf("expected ErrDoctorNotFound, got %v", err)
	}
}

func TestBookRejectsOffGridTime(t *testing.T) {
	svc, _ := newTestService(t)

	// 10:10 is not a multiple of the 30 minute grid starting 09:00.
	_, err := svc.Book(context.Background(), patient, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "10:10",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookRejectsReservedSlot(t *testing.T) {
	svc, _ := newTestService(t)

	book(t, svc, "10:00")

	_, err := svc.Book(context.Background(), auth.Identity{UserID: "pat-2", Role: models.RolePatient}, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "10:00",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookRejectsOverlappingFollowUp(t *testing.T) {
	svc, repo := newTestService(t)

	appointment := book(t, svc, "10:00")
	if _, err := repo.UpdateStatus(context.Background(), appointment.ID, models.AppointmentStatusConfirmed, time.Now()); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	// A 15 minute follow-up at 10:15 sits inside the confirmed 10:00-10:30
	// initial consult.
	_, err := svc.Book(context.Background(), auth.Identity{UserID: "pat-2", Role: models.RolePatient}, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationFollowUp,
		Date:             testDate,
		Time:             "10:15",
	})
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookAllowsSlotFreedByCancellation(t *testing.T) {
	svc, repo := newTestService(t)

	appointment := book(t, svc, "11:00")
	if _, err := repo.Cancel(context.Background(), appointment.ID, "", time.Now()); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	rebooked, err := svc.Book(context.Background(), auth.Identity{UserID: "pat-2", Role: models.RolePatient}, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "11:00",
	})
	if err != nil {
		t.Fatalf("Book after cancellation error: %v", err)
	}
	if rebooked.PatientID != "pat-2" {
		t.Fatalf("unexpected patient: %s", rebooked.PatientID)
	}
}

func TestSlotsAnnotatesReservedAndKeepsGrid(t *testing.T) {
	svc, _ := newTestService(t)

	book(t, svc, "10:00")

	result, err := svc.Slots(context.Background(), "doc-1", testDate, models.ConsultationInitial)
	if err != nil {
		t.Fatalf("Slots error: %v", err)
	}
	// 09:00 through 16:30 in 30 minute steps.
	if len(result.Slots) != 16 {
		t.Fatalf("expected 16 slots, got %d", len(result.Slots))
	}

	byTime := make(map[string]bool, len(result.Slots))
	for _, slot := range result.Slots {
		byTime[slot.Time] = slot.Available
	}
	if byTime["10:00"] {
		t.Fatalf("10:00 should be reserved")
	}
	if !byTime["09:30"] || !byTime["10:30"] {
		t.Fatalf("adjacent slots should stay available: %+v", result.Slots)
	}
}

func TestSlotsEmptyWithoutWindows(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Slots(context.Background(), "doc-1", "2026-09-08", models.ConsultationInitial)
	if err != nil {
		t.Fatalf("Slots error: %v", err)
	}
	if len(result.Slots) != 0 {
		t.Fatalf("expected no slots, got %d", len(result.Slots))
	}
	if result.Slots == nil {
		t.Fatalf("slots should be an empty list, not nil")
	}
}

func TestSlotsRejectsPastDate(t *testing.T) {
	svc, _ := newTestService(t)

	if _, err := svc.Slots(context.Background(), "doc-1", "2026-09-06", models.ConsultationInitial); !errors.Is(err, ErrPastDate) {
		t.Fatalf("expected ErrPastDate, got %v", err)
	}
}

func TestCancelPermissions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	stranger := auth.Identity{UserID: "pat-9", Role: models.RolePatient}

	cases := []struct {
		name     string
		identity auth.Identity
		wantErr  error
	}{
		{"owning patient", patient, nil},
		{"assigned doctor", doctor, nil},
		{"clinic manager", manager, nil},
		{"reception", auth.Identity{UserID: "rec-1", Role: models.RoleReception}, nil},
		{"other patient", stranger, ErrNotAllowed},
	}

	times := []string{"09:00", "09:30", "10:00", "10:30", "11:00"}
	for i, tc := range cases {
		appointment := book(t, svc, times[i])
		_, err := svc.Cancel(ctx, tc.identity, appointment.ID, "conflict")
		if tc.wantErr == nil && err != nil {
			t.Fatalf("%s: Cancel error: %v", tc.name, err)
		}
		if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.wantErr, err)
		}
	}
}

func TestCancelTwiceFails(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	appointment := book(t, svc, "14:00")
	if _, err := svc.Cancel(ctx, patient, appointment.ID, ""); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if _, err := svc.Cancel(ctx, patient, appointment.ID, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusFollowsStateMachine(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	appointment := book(t, svc, "15:00")

	// PENDING_PAYMENT cannot jump straight to IN_PROGRESS.
	if _, err := svc.UpdateStatus(ctx, doctor, appointment.ID, models.AppointmentStatusInProgress); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if _, err := repo.UpdateStatus(ctx, appointment.ID, models.AppointmentStatusConfirmed, time.Now()); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, doctor, appointment.ID, models.AppointmentStatusInProgress)
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if updated.Status != models.AppointmentStatusInProgress {
		t.Fatalf("expected IN_PROGRESS, got %s", updated.Status)
	}

	if _, err := svc.UpdateStatus(ctx, doctor, appointment.ID, models.AppointmentStatusCompleted); err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}

	// COMPLETED is terminal.
	if _, err := svc.UpdateStatus(ctx, manager, appointment.ID, models.AppointmentStatusConfirmed); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestUpdateStatusRejectsPatient(t *testing.T) {
	svc, _ := newTestService(t)

	appointment := book(t, svc, "16:00")
	if _, err := svc.UpdateStatus(context.Background(), patient, appointment.ID, models.AppointmentStatusConfirmed); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
}

func TestListScopedByRole(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	book(t, svc, "09:00")

	other := auth.Identity{UserID: "pat-2", Role: models.RolePatient}
	if _, err := svc.Book(ctx, other, BookRequest{
		DoctorID:         "doc-1",
		ConsultationType: models.ConsultationInitial,
		Date:             testDate,
		Time:             "09:30",
	}); err != nil {
		t.Fatalf("Book error: %v", err)
	}

	mine, err := svc.List(ctx, patient, ListFilter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("patient should see 1 appointment, got %d", len(mine))
	}

	all, err := svc.List(ctx, manager, ListFilter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("manager should see 2 appointments, got %d", len(all))
	}

	doctors, err := svc.List(ctx, doctor, ListFilter{})
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(doctors) != 2 {
		t.Fatalf("doctor should see 2 appointments, got %d", len(doctors))
	}
}

func TestGetByIDRestrictedToParticipants(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	appointment := book(t, svc, "12:00")

	if _, err := svc.GetByID(ctx, patient, appointment.ID); err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	stranger := auth.Identity{UserID: "pat-9", Role: models.RolePatient}
	if _, err := svc.GetByID(ctx, stranger, appointment.ID); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if _, err := svc.GetByID(ctx, manager, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
