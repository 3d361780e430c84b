package video

import (
	"context"
	"errors"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/models"

	"go.mongodb.org/mongo-driver/mongo"
)

var (
	ErrNotFound   = errors.New("appointment not found")
	ErrNotAllowed = errors.New("not a participant of this appointment")
	ErrNotReady   = errors.New("appointment is not ready for video")
	ErrDisabled   = errors.New("video provider not configured")
)

// roomLifetime keeps the room open past the scheduled slot for
// consultations that run long.
const roomLifetime = 3 * time.Hour

// RoomProvider abstracts the video backend for tests.
type RoomProvider interface {
	CreateRoom(ctx context.Context, name string, expiresAt time.Time) (Room, error)
	GetRoom(ctx context.Context, name string) (Room, error)
	CreateMeetingToken(ctx context.Context, roomName, userName string, isOwner bool, expiresAt time.Time) (string, error)
}

// AppointmentStore is the slice of the appointment repository the video
// flow needs.
type AppointmentStore interface {
	GetByID(ctx context.Context, id string) (models.Appointment, error)
	SetRoom(ctx context.Context, id, roomName, roomURL string, now time.Time) (models.Appointment, error)
}

// UserLookup resolves the display name embedded in meeting tokens.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

type Service struct {
	appointments AppointmentStore
	users        UserLookup
	rooms        RoomProvider
	now          func() time.Time
}

func NewService(store AppointmentStore, users UserLookup, rooms RoomProvider) *Service {
	return &Service{
		appointments: store,
		users:        users,
		rooms:        rooms,
		now:          time.Now,
	}
}

// EnsureRoom returns the appointment's video room, creating and
// persisting it on first use. Only participants of a CONFIRMED or
// IN_PROGRESS appointment may call it.
func (s *Service) EnsureRoom(ctx context.Context, identity auth.Identity, appointmentID string) (Room, error) {
	if s.rooms == nil {
		return Room{}, ErrDisabled
	}

	appointment, err := s.loadParticipant(ctx, identity, appointmentID)
	if err != nil {
		return Room{}, err
	}

	if appointment.RoomName != "" && appointment.RoomURL != "" {
		return Room{Name: appointment.RoomName, URL: appointment.RoomURL}, nil
	}

	name := "appt-" + appointment.ID
	expiresAt := appointment.ScheduledAt.Add(roomLifetime)

	room, err := s.rooms.CreateRoom(ctx, name, expiresAt)
	if errors.Is(err, ErrRoomExists) {
		room, err = s.rooms.GetRoom(ctx, name)
	}
	if err != nil {
		return Room{}, err
	}

	if _, err := s.appointments.SetRoom(ctx, appointment.ID, room.Name, room.URL, s.now()); err != nil {
		return Room{}, err
	}
	return room, nil
}

// MeetingToken mints a join token for the caller. The assigned doctor
// gets owner privileges; the room is created first when missing.
func (s *Service) MeetingToken(ctx context.Context, identity auth.Identity, appointmentID string) (string, Room, error) {
	if s.rooms == nil {
		return "", Room{}, ErrDisabled
	}

	room, err := s.EnsureRoom(ctx, identity, appointmentID)
	if err != nil {
		return "", Room{}, err
	}

	appointment, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		return "", Room{}, err
	}

	user, err := s.users.GetByID(ctx, identity.UserID)
	if err != nil {
		return "", Room{}, err
	}

	isOwner := identity.UserID == appointment.DoctorID
	expiresAt := appointment.ScheduledAt.Add(roomLifetime)

	token, err := s.rooms.CreateMeetingToken(ctx, room.Name, user.FirstName+" "+user.LastName, isOwner, expiresAt)
	if err != nil {
		return "", Room{}, err
	}
	return token, room, nil
}

func (s *Service) loadParticipant(ctx context.Context, identity auth.Identity, appointmentID string) (models.Appointment, error) {
	appointment, err := s.appointments.GetByID(ctx, appointmentID)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.Appointment{}, ErrNotFound
		}
		return models.Appointment{}, err
	}

	if identity.UserID != appointment.PatientID && identity.UserID != appointment.DoctorID {
		return models.Appointment{}, ErrNotAllowed
	}

	switch appointment.Status {
	case models.AppointmentStatusConfirmed, models.AppointmentStatusInProgress:
	default:
		return models.Appointment{}, ErrNotReady
	}

	return appointment, nil
}
