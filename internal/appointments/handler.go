package appointments

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"clinic-backend/internal/cache"
	"clinic-backend/internal/httpx"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/models"
	"clinic-backend/internal/schedule"
	"clinic-backend/internal/transport"
	"clinic-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize int64 = 50
	maxPageSize     int64 = 200
)

// UserLookup resolves appointment participants for notifications.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (models.User, error)
}

// Mailer sends booking notifications; nil disables them.
type Mailer interface {
	SendBookingReceived(ctx context.Context, appointment models.Appointment, patient, doctor models.User) (string, error)
}

type Handler struct {
	service  *Service
	val      *validation.Validator
	log      *slog.Logger
	cache    cache.Cache
	cacheTTL time.Duration
	location *time.Location
	users    UserLookup
	mailer   Mailer
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger, store cache.Cache, cacheTTL time.Duration, location *time.Location, users UserLookup, mailer Mailer) *Handler {
	return &Handler{
		service:  service,
		val:      val,
		log:      log,
		cache:    store,
		cacheTTL: cacheTTL,
		location: location,
		users:    users,
		mailer:   mailer,
	}
}

type slotsQuery struct {
	Date string `validate:"required,date"`
	Type string `validate:"required,oneof=INITIAL FOLLOW_UP"`
}

func (h *Handler) Slots(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	doctorID := chi.URLParam(r, "id")
	if doctorID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing doctor id", nil)
		return
	}

	q := slotsQuery{
		Date: r.URL.Query().Get("date"),
		Type: strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("type"))),
	}
	if q.Type == "" {
		q.Type = models.ConsultationInitial
	}
	if err := h.val.Struct(q); err != nil {
		log.Warn("slots: invalid query")
		transport.WriteError(w, http.StatusBadRequest, "invalid query", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	cacheKey := "slots:" + doctorID + ":" + q.Date + ":" + q.Type
	if h.cache != nil {
		if cached, ok, err := h.cache.Get(r.Context(), cacheKey); err == nil && ok {
			log.Info("slots: cache hit", slog.String("doctor_id", doctorID), slog.String("date", q.Date))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(cached)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	result, err := h.service.Slots(ctx, doctorID, q.Date, q.Type)
	if err != nil {
		switch {
		case errors.Is(err, ErrPastDate):
			transport.WriteError(w, http.StatusBadRequest, "date in the past", nil)
		case errors.Is(err, schedule.ErrInvalidDate):
			transport.WriteError(w, http.StatusBadRequest, "invalid date", nil)
		case errors.Is(err, ErrDoctorNotFound):
			transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
		default:
			log.Error("slots: compute error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "availability error", nil)
		}
		return
	}

	if h.cache != nil {
		if payload, err := json.Marshal(result); err == nil {
			_ = h.cache.Set(r.Context(), cacheKey, payload, h.cacheTTL)
		}
	}

	log.Info("slots: ok",
		slog.String("doctor_id", doctorID),
		slog.String("date", q.Date),
		slog.Int("slots", len(result.Slots)),
	)
	transport.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) Book(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req BookRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("book: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("book: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	appointment, err := h.service.Book(ctx, identity, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotAllowed):
			transport.WriteError(w, http.StatusForbidden, "only patients can book appointments", nil)
		case errors.Is(err, ErrPastSlot):
			transport.WriteError(w, http.StatusBadRequest, "cannot book in the past", nil)
		case errors.Is(err, schedule.ErrInvalidDate), errors.Is(err, schedule.ErrInvalidTime), errors.Is(err, ErrInvalidConsultationType):
			transport.WriteError(w, http.StatusBadRequest, "invalid booking request", nil)
		case errors.Is(err, ErrDoctorNotFound):
			transport.WriteError(w, http.StatusNotFound, "doctor not found", nil)
		case errors.Is(err, ErrSlotUnavailable):
			log.Warn("book: slot conflict",
				slog.String("doctor_id", req.DoctorID),
				slog.String("date", req.Date),
				slog.String("time", req.Time),
			)
			transport.WriteError(w, http.StatusConflict, "slot no longer available", nil)
		default:
			log.Error("book: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	if h.cache != nil {
		_ = h.cache.DeletePrefix(r.Context(), "slots:"+req.DoctorID+":"+req.Date+":")
	}

	if h.mailer != nil {
		go h.sendBookingEmail(appointment)
	}

	log.Info("book: created",
		slog.String("appointment_id", appointment.ID),
		slog.String("doctor_id", appointment.DoctorID),
		slog.String("date", req.Date),
		slog.String("time", req.Time),
	)
	transport.WriteJSON(w, http.StatusCreated, appointment)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	limit, offset, err := httpx.ParseLimitOffset(r.URL.Query(), defaultPageSize, maxPageSize)
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	filter := ListFilter{
		Status:   strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("status"))),
		Upcoming: r.URL.Query().Get("upcoming") == "true",
		Limit:    limit,
		Offset:   offset,
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	items, err := h.service.List(ctx, identity, filter)
	if err != nil {
		if errors.Is(err, ErrNotAllowed) {
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
			return
		}
		log.Error("appointments list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"appointments": items})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.GetByID(ctx, identity, id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
		case errors.Is(err, ErrNotAllowed):
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
		default:
			log.Error("appointments get: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req CancelRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r.Body, &req); err != nil {
			transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
			return
		}
		if err := h.val.Struct(req); err != nil {
			transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.Cancel(ctx, identity, id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
		case errors.Is(err, ErrNotAllowed):
			transport.WriteError(w, http.StatusForbidden, "not authorized to cancel this appointment", nil)
		case errors.Is(err, ErrInvalidTransition):
			transport.WriteError(w, http.StatusConflict, "appointment cannot be cancelled", nil)
		default:
			log.Error("appointments cancel: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	if h.cache != nil {
		date := appointment.ScheduledAt.In(h.location).Format("2006-01-02")
		_ = h.cache.DeletePrefix(r.Context(), "slots:"+appointment.DoctorID+":"+date+":")
	}

	log.Info("appointments cancel: ok", slog.String("appointment_id", appointment.ID))
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing id", nil)
		return
	}

	var req UpdateStatusRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	appointment, err := h.service.UpdateStatus(ctx, identity, id, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
		case errors.Is(err, ErrNotAllowed):
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
		case errors.Is(err, ErrInvalidTransition):
			transport.WriteError(w, http.StatusConflict, "invalid status transition", nil)
		default:
			log.Error("appointments status: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	log.Info("appointments status: ok",
		slog.String("appointment_id", appointment.ID),
		slog.String("status", appointment.Status),
	)
	transport.WriteJSON(w, http.StatusOK, appointment)
}

func (h *Handler) sendBookingEmail(appointment models.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	patient, err := h.users.GetByID(ctx, appointment.PatientID)
	if err != nil {
		h.log.Warn("booking email: patient lookup failed", slog.String("appointment_id", appointment.ID))
		return
	}
	doctor, err := h.users.GetByID(ctx, appointment.DoctorID)
	if err != nil {
		h.log.Warn("booking email: doctor lookup failed", slog.String("appointment_id", appointment.ID))
		return
	}

	messageID, err := h.mailer.SendBookingReceived(ctx, appointment, patient, doctor)
	if err != nil {
		h.log.Warn("booking email: send failed",
			slog.String("appointment_id", appointment.ID),
			slog.String("email", patient.Email),
			slog.String("error", err.Error()),
		)
		return
	}

	h.log.Info("booking email: sent",
		slog.String("appointment_id", appointment.ID),
		slog.String("message_id", messageID),
	)
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
