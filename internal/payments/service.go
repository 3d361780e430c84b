package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"clinic-backend/internal/appointments"
	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound    = errors.New("payment not found")
	ErrNotAllowed  = errors.New("not allowed for this payment")
	ErrAlreadyPaid = errors.New("appointment already paid")
	ErrNotPayable  = errors.New("appointment is not awaiting payment")
	ErrDisabled    = errors.New("payment provider not configured")
)

// AppointmentStore is the slice of the appointment repository the payment
// flow needs.
type AppointmentStore interface {
	GetByID(ctx context.Context, id string) (models.Appointment, error)
	UpdateStatus(ctx context.Context, id, status string, now time.Time) (models.Appointment, error)
	Cancel(ctx context.Context, id, reason string, now time.Time) (models.Appointment, error)
}

// UserLookup resolves the paying patient and the doctor named on the
// checkout page.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type Service struct {
	repo         Repository
	appointments AppointmentStore
	users        UserLookup
	checkout     CheckoutCreator
	baseURL      string
	now          func() time.Time
}

func NewService(repo Repository, store AppointmentStore, users UserLookup, checkout CheckoutCreator, baseURL string) *Service {
	return &Service{
		repo:         repo,
		appointments: store,
		users:        users,
		checkout:     checkout,
		baseURL:      baseURL,
		now:          time.Now,
	}
}

// Checkout creates a hosted checkout session for the appointment's
// deposit. Only the booking patient may pay.
func (s *Service) Checkout(ctx context.Context, identity auth.Identity, appointmentID string) (CheckoutSession, error) {
	if s.checkout == nil {
		return CheckoutSession{}, ErrDisabled
	}

	appointment, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return CheckoutSession{}, ErrNotFound
		}
		return CheckoutSession{}, err
	}
	if identity.UserID != appointment.PatientID {
		return CheckoutSession{}, ErrNotAllowed
	}
	if appointment.Status != models.AppointmentStatusPendingPayment {
		return CheckoutSession{}, ErrNotPayable
	}

	payment, err := s.repo.GetByAppointmentID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return CheckoutSession{}, ErrNotFound
		}
		return CheckoutSession{}, err
	}
	if payment.Status == models.PaymentStatusCompleted {
		return CheckoutSession{}, ErrAlreadyPaid
	}

	patient, err := s.users.GetByID(ctx, appointment.PatientID)
	if err != nil {
		return CheckoutSession{}, err
	}
	doctor, err := s.users.GetByID(ctx, appointment.DoctorID)
	if err != nil {
		return CheckoutSession{}, err
	}

	created, err := s.checkout.CreateSession(ctx, CheckoutParams{
		AppointmentID: appointment.ID,
		Description:   checkoutDescription(appointment, doctor),
		Amount:        payment.DepositAmount,
		Currency:      payment.Currency,
		CustomerEmail: patient.Email,
		SuccessURL:    s.baseURL + "/appointments/" + appointment.ID + "?payment=success",
		CancelURL:     s.baseURL + "/appointments/" + appointment.ID + "?payment=cancelled",
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	if _, err := s.repo.SetSession(ctx, payment.ID, created.ID, s.now()); err != nil {
		return CheckoutSession{}, err
	}
	return created, nil
}

// CompleteCheckout marks the payment paid and confirms the appointment.
// The returned appointment is CONFIRMED; retried webhook deliveries are
// absorbed by the idempotent update.
func (s *Service) CompleteCheckout(ctx context.Context, sessionID, paymentID string) (models.Appointment, error) {
	now := s.now()
	payment, err := s.repo.MarkCompleted(ctx, sessionID, paymentID, now)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	appointment, err := s.appointments.GetByID(ctx, payment.AppointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if appointment.Status == models.AppointmentStatusConfirmed {
		return appointment, nil
	}
	if !appointments.CanTransition(appointment.Status, models.AppointmentStatusConfirmed) {
		return appointment, nil
	}
	return s.appointments.UpdateStatus(ctx, appointment.ID, models.AppointmentStatusConfirmed, now)
}

// ExpireCheckout records the abandoned session. The appointment stays in
// PENDING_PAYMENT so the patient can start a fresh checkout.
func (s *Service) ExpireCheckout(ctx context.Context, sessionID string) error {
	if _, err := s.repo.MarkFailed(ctx, sessionID, s.now()); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// RefundCharge marks the payment refunded and cancels the appointment,
// freeing the slot.
func (s *Service) RefundCharge(ctx context.Context, paymentID string) (models.Appointment, error) {
	now := s.now()
	payment, err := s.repo.MarkRefunded(ctx, paymentID, now)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	appointment, err := s.appointments.GetByID(ctx, payment.AppointmentID)
	if err != nil {
		return models.Appointment{}, err
	}
	if appointment.Status == models.AppointmentStatusCancelled {
		return appointment, nil
	}
	return s.appointments.Cancel(ctx, appointment.ID, "payment refunded", now)
}

func checkoutDescription(appointment models.Appointment, doctor models.User) string {
	kind := "Initial consultation"
	if appointment.ConsultationType == models.ConsultationFollowUp {
		kind = "Follow-up consultation"
	}
	return fmt.Sprintf("%s with Dr %s %s on %s",
		kind,
		doctor.FirstName,
		doctor.LastName,
		appointment.ScheduledAt.Format("Mon 2 Jan 2006 15:04"),
	)
}
