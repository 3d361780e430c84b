package availability

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clinic-backend/internal/cache"
	"clinic-backend/internal/httpx"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/schedule"
	"clinic-backend/internal/transport"
	"clinic-backend/internal/validation"

	"github.com/go-chi/chi/v5"
)

const (
	defaultPageSize int64 = 50
	maxPageSize     int64 = 200
)

type Handler struct {
	service *Service
	val     *validation.Validator
	log     *slog.Logger
	cache   cache.Cache
}

func NewHandler(service *Service, val *validation.Validator, log *slog.Logger, store cache.Cache) *Handler {
	return &Handler{
		service: service,
		val:     val,
		log:     log,
		cache:   store,
	}
}

// invalidateSlots drops every cached slot grid for the doctor; roster
// edits can change any date.
func (h *Handler) invalidateSlots(ctx context.Context, doctorID string) {
	if h.cache != nil {
		_ = h.cache.DeletePrefix(ctx, "slots:"+doctorID+":")
	}
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

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	windows, err := h.service.ListOwn(ctx, identity, limit, offset)
	if err != nil {
		log.Error("availability list: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"windows": windows})
}

func (h *Handler) CreateWindow(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req CreateWindowRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("availability create: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("availability create: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	window, err := h.service.CreateWindow(ctx, identity, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRange), errors.Is(err, schedule.ErrInvalidTime):
			transport.WriteError(w, http.StatusBadRequest, "end time must be after start time", nil)
		case errors.Is(err, ErrOverlap):
			transport.WriteError(w, http.StatusConflict, "window overlaps existing availability", nil)
		default:
			log.Error("availability create: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	h.invalidateSlots(r.Context(), identity.UserID)
	log.Info("availability create: ok",
		slog.String("window_id", window.ID),
		slog.Int("day_of_week", window.DayOfWeek),
	)
	transport.WriteJSON(w, http.StatusCreated, window)
}

func (h *Handler) CreateBlock(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req CreateBlockRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("availability block: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("availability block: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	window, err := h.service.CreateBlock(ctx, identity, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRange), errors.Is(err, schedule.ErrInvalidTime), errors.Is(err, schedule.ErrInvalidDate):
			transport.WriteError(w, http.StatusBadRequest, "invalid block range", nil)
		default:
			log.Error("availability block: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	h.invalidateSlots(r.Context(), identity.UserID)
	log.Info("availability block: ok",
		slog.String("window_id", window.ID),
		slog.String("date", window.SpecificDate),
	)
	transport.WriteJSON(w, http.StatusCreated, window)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
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

	if err := h.service.Delete(ctx, identity, id); err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "window not found", nil)
		case errors.Is(err, ErrNotOwner):
			transport.WriteError(w, http.StatusForbidden, "forbidden", nil)
		default:
			log.Error("availability delete: database error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		}
		return
	}

	h.invalidateSlots(r.Context(), identity.UserID)
	log.Info("availability delete: ok", slog.String("window_id", id))
	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"deleted": true})
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
