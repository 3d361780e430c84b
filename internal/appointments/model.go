package appointments

import (
	"clinic-backend/internal/models"
	"clinic-backend/internal/schedule"
)

type BookRequest struct {
	DoctorID         string `json:"doctorId" validate:"required"`
	ConsultationType string `json:"consultationType" validate:"required,oneof=INITIAL FOLLOW_UP"`
	Date             string `json:"date" validate:"required,date"`
	Time             string `json:"time" validate:"required,clock"`
	ChiefComplaint   string `json:"chiefComplaint" validate:"omitempty,max=1000"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=CONFIRMED IN_PROGRESS COMPLETED NO_SHOW"`
}

type ListFilter struct {
	PatientID string
	DoctorID  string
	Status    string
	Upcoming  bool
	Limit     int64
	Offset    int64
}

// SlotsResult is the annotated grid for one doctor and date.
type SlotsResult struct {
	DoctorID string          `json:"doctorId"`
	Date     string          `json:"date"`
	Duration int             `json:"duration"`
	Timezone string          `json:"timezone"`
	Slots    []schedule.Slot `json:"slots"`
}

// statusTransitions is the appointment state machine. CANCELLED and
// COMPLETED are terminal; NO_SHOW has no outgoing edges either.
var statusTransitions = map[string][]string{
	models.AppointmentStatusPendingPayment: {
		models.AppointmentStatusConfirmed,
		models.AppointmentStatusCancelled,
	},
	models.AppointmentStatusConfirmed: {
		models.AppointmentStatusInProgress,
		models.AppointmentStatusCancelled,
		models.AppointmentStatusNoShow,
	},
	models.AppointmentStatusInProgress: {
		models.AppointmentStatusCompleted,
	},
}

func CanTransition(from, to string) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
