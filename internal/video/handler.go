package video

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clinic-backend/internal/httpx"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/transport"
	"clinic-backend/internal/validation"
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger) *Handler {
	return &Handler{service: service, val: val, log: log}
}

type roomRequest struct {
	AppointmentID string `json:"appointmentId" validate:"required"`
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req roomRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	room, err := h.service.EnsureRoom(ctx, identity, req.AppointmentID)
	if err != nil {
		h.writeServiceError(w, log, "video room", err)
		return
	}

	log.Info("video room: ready",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("room", room.Name),
	)
	transport.WriteJSON(w, http.StatusOK, map[string]string{
		"roomName": room.Name,
		"roomUrl":  room.URL,
	})
}

func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req roomRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	token, room, err := h.service.MeetingToken(ctx, identity, req.AppointmentID)
	if err != nil {
		h.writeServiceError(w, log, "video token", err)
		return
	}

	log.Info("video token: issued",
		slog.String("appointment_id", req.AppointmentID),
		slog.String("room", room.Name),
	)
	transport.WriteJSON(w, http.StatusOK, map[string]string{
		"token":    token,
		"roomName": room.Name,
		"roomUrl":  room.URL,
	})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, log *slog.Logger, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
	case errors.Is(err, ErrNotAllowed):
		transport.WriteError(w, http.StatusForbidden, "not a participant of this appointment", nil)
	case errors.Is(err, ErrNotReady):
		transport.WriteError(w, http.StatusConflict, "appointment is not confirmed", nil)
	case errors.Is(err, ErrDisabled):
		transport.WriteError(w, http.StatusServiceUnavailable, "video is not configured", nil)
	default:
		log.Error(op+": provider error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusBadGateway, "video provider error", nil)
	}
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
