package models

import "time"

const (
	RolePatient       = "PATIENT"
	RoleDoctor        = "DOCTOR"
	RoleReception     = "RECEPTION"
	RoleClinicManager = "CLINIC_MANAGER"

	ConsultationInitial  = "INITIAL"
	ConsultationFollowUp = "FOLLOW_UP"

	AppointmentStatusPendingPayment = "PENDING_PAYMENT"
	AppointmentStatusConfirmed      = "CONFIRMED"
	AppointmentStatusInProgress     = "IN_PROGRESS"
	AppointmentStatusCompleted      = "COMPLETED"
	AppointmentStatusCancelled      = "CANCELLED"
	AppointmentStatusNoShow         = "NO_SHOW"

	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusFailed    = "FAILED"
	PaymentStatusRefunded  = "REFUNDED"
)

// BlockingStatuses are the appointment statuses that occupy a doctor's
// calendar for conflict purposes.
var BlockingStatuses = []string{
	AppointmentStatusPendingPayment,
	AppointmentStatusConfirmed,
	AppointmentStatusInProgress,
}

func IsBlockingStatus(status string) bool {
	for _, s := range BlockingStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// ConsultationDuration returns the slot duration in minutes for a
// consultation type, or 0 for an unknown type.
func ConsultationDuration(consultationType string) int {
	switch consultationType {
	case ConsultationInitial:
		return 30
	case ConsultationFollowUp:
		return 15
	default:
		return 0
	}
}

type User struct {
	ID             string    `bson:"_id,omitempty" json:"id"`
	Email          string    `bson:"email" json:"email"`
	PasswordHash   string    `bson:"passwordHash" json:"-"`
	FirstName      string    `bson:"firstName" json:"firstName"`
	LastName       string    `bson:"lastName" json:"lastName"`
	Phone          string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Role           string    `bson:"role" json:"role"`
	IsActive       bool      `bson:"isActive" json:"isActive"`
	Specialty      string    `bson:"specialty,omitempty" json:"specialty,omitempty"`
	ProviderNumber string    `bson:"providerNumber,omitempty" json:"-"`
	CreatedAt      time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time `bson:"updatedAt" json:"updatedAt"`
}

// AvailabilityWindow is a doctor-declared open interval, either recurring
// on a weekday (SpecificDate empty) or tied to one calendar date.
type AvailabilityWindow struct {
	ID           string    `bson:"_id,omitempty" json:"id"`
	DoctorID     string    `bson:"doctorId" json:"doctorId"`
	DayOfWeek    int       `bson:"dayOfWeek" json:"dayOfWeek"`
	SpecificDate string    `bson:"specificDate,omitempty" json:"specificDate,omitempty"`
	StartTime    string    `bson:"startTime" json:"startTime"`
	EndTime      string    `bson:"endTime" json:"endTime"`
	IsBlocked    bool      `bson:"isBlocked" json:"isBlocked"`
	CreatedAt    time.Time `bson:"createdAt" json:"createdAt"`
}

type Appointment struct {
	ID                 string     `bson:"_id,omitempty" json:"id"`
	PatientID          string     `bson:"patientId" json:"patientId"`
	DoctorID           string     `bson:"doctorId" json:"doctorId"`
	ScheduledAt        time.Time  `bson:"scheduledAt" json:"scheduledAt"`
	Duration           int        `bson:"duration" json:"duration"`
	ConsultationType   string     `bson:"consultationType" json:"consultationType"`
	ChiefComplaint     string     `bson:"chiefComplaint,omitempty" json:"chiefComplaint,omitempty"`
	Status             string     `bson:"status" json:"status"`
	CancelledAt        *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`
	CancellationReason string     `bson:"cancellationReason,omitempty" json:"cancellationReason,omitempty"`
	RoomName           string     `bson:"roomName,omitempty" json:"roomName,omitempty"`
	RoomURL            string     `bson:"roomUrl,omitempty" json:"roomUrl,omitempty"`
	CreatedAt          time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt          time.Time  `bson:"updatedAt" json:"updatedAt"`
}

type Payment struct {
	ID              string     `bson:"_id,omitempty" json:"id"`
	AppointmentID   string     `bson:"appointmentId" json:"appointmentId"`
	Amount          int        `bson:"amount" json:"amount"`
	DepositAmount   int        `bson:"depositAmount" json:"depositAmount"`
	Currency        string     `bson:"currency" json:"currency"`
	Status          string     `bson:"status" json:"status"`
	StripeSessionID string     `bson:"stripeSessionId,omitempty" json:"-"`
	StripePaymentID string     `bson:"stripePaymentId,omitempty" json:"-"`
	PaidAt          *time.Time `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	CreatedAt       time.Time  `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time  `bson:"updatedAt" json:"updatedAt"`
}

type ClinicSettings struct {
	ID                   string `bson:"_id,omitempty" json:"id"`
	Name                 string `bson:"name" json:"name"`
	Email                string `bson:"email" json:"email"`
	Phone                string `bson:"phone" json:"phone"`
	InitialConsultPrice  int    `bson:"initialConsultPrice" json:"initialConsultPrice"`
	FollowUpConsultPrice int    `bson:"followUpConsultPrice" json:"followUpConsultPrice"`
	Currency             string `bson:"currency" json:"currency"`
}
