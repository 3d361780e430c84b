package appointments

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
	ErrInvalidConsultationType = errors.New("invalid consultation type")
	ErrPastDate                = errors.New("date in the past")
	ErrPastSlot                = errors.New("cannot book in the past")
	ErrDoctorNotFound          = errors.New("doctor not found")
	ErrSlotUnavailable         = errors.New("slot no longer available")
	ErrNotFound                = errors.New("appointment not found")
	ErrNotAllowed              = errors.New("not allowed for this appointment")
	ErrInvalidTransition       = errors.New("invalid status transition")
)

// WindowSource resolves the availability windows applying to one date.
type WindowSource interface {
	WindowsForDate(ctx context.Context, doctorID, date string) ([]schedule.Window, error)
}

// DoctorDirectory looks up bookable doctors.
type DoctorDirectory interface {
	DoctorByID(ctx context.Context, id string) (models.User, error)
}

// Pricer supplies consultation prices from clinic configuration.
type Pricer interface {
	PriceFor(ctx context.Context, consultationType string) (int, error)
	Currency(ctx context.Context) string
}

type Service struct {
	repo     Repository
	windows  WindowSource
	doctors  DoctorDirectory
	pricing  Pricer
	location *time.Location
	now      func() time.Time
}

func NewService(repo Repository, windows WindowSource, doctors DoctorDirectory, pricing Pricer, location *time.Location) *Service {
	return &Service{
		repo:     repo,
		windows:  windows,
		doctors:  doctors,
		pricing:  pricing,
		location: location,
		now:      time.Now,
	}
}

// Slots computes the annotated slot grid for one doctor, date and
// consultation type. Unavailable slots are kept in the output so the
// caller always sees the complete grid.
func (s *Service) Slots(ctx context.Context, doctorID, date, consultationType string) (SlotsResult, error) {
	duration := models.ConsultationDuration(consultationType)
	if duration == 0 {
		return SlotsResult{}, ErrInvalidConsultationType
	}

	now := s.now()
	past, err := schedule.IsDatePast(date, s.location, now)
	if err != nil {
		return SlotsResult{}, err
	}
	if past {
		return SlotsResult{}, ErrPastDate
	}

	if _, err := s.lookupDoctor(ctx, doctorID); err != nil {
		return SlotsResult{}, err
	}

	windows, err := s.windows.WindowsForDate(ctx, doctorID, date)
	if err != nil {
		return SlotsResult{}, err
	}

	result := SlotsResult{
		DoctorID: doctorID,
		Date:     date,
		Duration: duration,
		Timezone: s.location.String(),
		Slots:    []schedule.Slot{},
	}
	if len(windows) == 0 {
		return result, nil
	}

	starts, err := schedule.GenerateSlots(windows, duration)
	if err != nil {
		return SlotsResult{}, err
	}

	reserved, err := s.reservedIntervals(ctx, doctorID, date)
	if err != nil {
		return SlotsResult{}, err
	}

	slots, err := schedule.AnnotateSlots(date, starts, duration, reserved, s.location, now)
	if err != nil {
		return SlotsResult{}, err
	}

	result.Slots = slots
	return result, nil
}

// Book is the write-path validator: it re-runs the same past and overlap
// checks the slot grid uses against current storage, then creates the
// appointment in PENDING_PAYMENT together with its payment placeholder.
// The unique index on (doctorId, scheduledAt) backstops concurrent
// submissions for the identical slot.
func (s *Service) Book(ctx context.Context, identity auth.Identity, req BookRequest) (models.Appointment, error) {
	if identity.Role != models.RolePatient {
		return models.Appointment{}, ErrNotAllowed
	}

	duration := models.ConsultationDuration(req.ConsultationType)
	if duration == 0 {
		return models.Appointment{}, ErrInvalidConsultationType
	}

	scheduledAt, err := schedule.ParseDateTime(req.Date, req.Time, s.location)
	if err != nil {
		return models.Appointment{}, err
	}

	now := s.now()
	if !scheduledAt.After(now) {
		return models.Appointment{}, ErrPastSlot
	}

	if _, err := s.lookupDoctor(ctx, req.DoctorID); err != nil {
		return models.Appointment{}, err
	}

	windows, err := s.windows.WindowsForDate(ctx, req.DoctorID, req.Date)
	if err != nil {
		return models.Appointment{}, err
	}
	starts, err := schedule.GenerateSlots(windows, duration)
	if err != nil {
		return models.Appointment{}, err
	}
	startMin, err := schedule.ParseClockToMinutes(req.Time)
	if err != nil {
		return models.Appointment{}, err
	}
	if !schedule.ContainsStart(starts, startMin) {
		return models.Appointment{}, ErrSlotUnavailable
	}

	reserved, err := s.reservedIntervals(ctx, req.DoctorID, req.Date)
	if err != nil {
		return models.Appointment{}, err
	}
	if schedule.OverlapsAny(schedule.Interval{Start: startMin, End: startMin + duration}, reserved) {
		return models.Appointment{}, ErrSlotUnavailable
	}

	price, err := s.pricing.PriceFor(ctx, req.ConsultationType)
	if err != nil {
		return models.Appointment{}, err
	}

	appointment := models.Appointment{
		ID:               primitive.NewObjectID().Hex(),
		PatientID:        identity.UserID,
		DoctorID:         req.DoctorID,
		ScheduledAt:      scheduledAt,
		Duration:         duration,
		ConsultationType: req.ConsultationType,
		ChiefComplaint:   req.ChiefComplaint,
		Status:           models.AppointmentStatusPendingPayment,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	payment := models.Payment{
		ID:            primitive.NewObjectID().Hex(),
		AppointmentID: appointment.ID,
		Amount:        price,
		DepositAmount: price,
		Currency:      s.pricing.Currency(ctx),
		Status:        models.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, appointment, payment); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Appointment{}, ErrSlotUnavailable
		}
		return models.Appointment{}, err
	}

	return appointment, nil
}

// Cancel is permitted to the patient, the assigned doctor, and staff.
// It is a terminal transition.
func (s *Service) Cancel(ctx context.Context, identity auth.Identity, id, reason string) (models.Appointment, error) {
	appointment, err := s.get(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}

	if !canManage(identity, appointment) {
		return models.Appointment{}, ErrNotAllowed
	}
	if !CanTransition(appointment.Status, models.AppointmentStatusCancelled) {
		return models.Appointment{}, ErrInvalidTransition
	}

	updated, err := s.repo.Cancel(ctx, id, reason, s.now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}
	return updated, nil
}

// UpdateStatus drives the non-cancellation transitions (check-in,
// completion, no-show). Staff and the assigned doctor may call it.
func (s *Service) UpdateStatus(ctx context.Context, identity auth.Identity, id, status string) (models.Appointment, error) {
	appointment, err := s.get(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}

	if !isStaff(identity) && identity.UserID != appointment.DoctorID {
		return models.Appointment{}, ErrNotAllowed
	}
	if !CanTransition(appointment.Status, status) {
		return models.Appointment{}, ErrInvalidTransition
	}

	updated, err := s.repo.UpdateStatus(ctx, id, status, s.now())
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}
	return updated, nil
}

// List scopes results to the caller: patients and doctors see their own
// appointments, staff see everything.
func (s *Service) List(ctx context.Context, identity auth.Identity, filter ListFilter) ([]models.Appointment, error) {
	switch identity.Role {
	case models.RolePatient:
		filter.PatientID = identity.UserID
		filter.DoctorID = ""
	case models.RoleDoctor:
		filter.DoctorID = identity.UserID
		filter.PatientID = ""
	case models.RoleReception, models.RoleClinicManager:
		// unrestricted
	default:
		return nil, ErrNotAllowed
	}
	return s.repo.List(ctx, filter, s.now())
}

// GetByID returns the appointment to a participant or staff member.
func (s *Service) GetByID(ctx context.Context, identity auth.Identity, id string) (models.Appointment, error) {
	appointment, err := s.get(ctx, id)
	if err != nil {
		return models.Appointment{}, err
	}
	if !canManage(identity, appointment) {
		return models.Appointment{}, ErrNotAllowed
	}
	return appointment, nil
}

func (s *Service) get(ctx context.Context, id string) (models.Appointment, error) {
	appointment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}
	return appointment, nil
}

func (s *Service) lookupDoctor(ctx context.Context, doctorID string) (models.User, error) {
	doctor, err := s.doctors.DoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, ErrDoctorNotFound
		}
		return models.User{}, err
	}
	if doctor.Role != models.RoleDoctor || !doctor.IsActive {
		return models.User{}, ErrDoctorNotFound
	}
	return doctor, nil
}

// reservedIntervals projects the doctor's blocking appointments on one
// date onto minute-of-day intervals.
func (s *Service) reservedIntervals(ctx context.Context, doctorID, date string) ([]schedule.Interval, error) {
	day, err := schedule.ParseDate(date, s.location)
	if err != nil {
		return nil, err
	}
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, s.location)
	dayEnd := dayStart.AddDate(0, 0, 1)

	blocking, err := s.repo.BlockingForRange(ctx, doctorID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}

	intervals := make([]schedule.Interval, 0, len(blocking))
	for _, appointment := range blocking {
		local := appointment.ScheduledAt.In(s.location)
		start := local.Hour()*60 + local.Minute()
		duration := appointment.Duration
		if duration <= 0 {
			duration = models.ConsultationDuration(appointment.ConsultationType)
		}
		intervals = append(intervals, schedule.Interval{Start: start, End: start + duration})
	}
	return intervals, nil
}

func canManage(identity auth.Identity, appointment models.Appointment) bool {
	return identity.UserID == appointment.PatientID ||
		identity.UserID == appointment.DoctorID ||
		isStaff(identity)
}

func isStaff(identity auth.Identity) bool {
	return identity.Role == models.RoleReception || identity.Role == models.RoleClinicManager
}
