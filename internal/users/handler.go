package users

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"clinic-backend/internal/auth"
	"clinic-backend/internal/httpx"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/transport"
	"clinic-backend/internal/validation"
)

type Handler struct {
	service      *Service
	manager      *auth.Manager
	val          *validation.Validator
	log          *slog.Logger
	cookieSecure bool
}

func NewHandler(service *Service, manager *auth.Manager, val *validation.Validator, log *slog.Logger, cookieSecure bool) *Handler {
	return &Handler{
		service:      service,
		manager:      manager,
		val:          val,
		log:          log,
		cookieSecure: cookieSecure,
	}
}

type RegisterRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=128"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Phone     string `json:"phone" validate:"omitempty,phone"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	var req RegisterRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("register: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("register: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	user, err := h.service.Register(ctx, RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	})
	if err != nil {
		if errors.Is(err, ErrEmailTaken) {
			transport.WriteError(w, http.StatusConflict, "email already registered", nil)
			return
		}
		log.Error("register: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	if err := h.issueCookies(w, user.ID, user.Role); err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}

	log.Info("register: ok", slog.String("user_id", user.ID))
	transport.WriteJSON(w, http.StatusCreated, user)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	var req LoginRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("login: invalid json")
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		log.Warn("login: validation error")
		transport.WriteError(w, http.StatusBadRequest, "validation error", httpx.ValidationDetails(h.val.ValidationErrors(err)))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.Login(ctx, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			log.Warn("login: invalid credentials", slog.String("email", req.Email))
			transport.WriteError(w, http.StatusUnauthorized, "invalid credentials", nil)
			return
		}
		log.Error("login: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	if err := h.issueCookies(w, user.ID, user.Role); err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}

	log.Info("login: ok", slog.String("user_id", user.ID), slog.String("role", user.Role))
	transport.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || cookie.Value == "" {
		log.Warn("refresh: missing refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "missing refresh token", nil)
		return
	}

	claims, err := h.manager.Parse(cookie.Value)
	if err != nil || claims.Subject == "" {
		log.Warn("refresh: invalid refresh token")
		transport.WriteError(w, http.StatusUnauthorized, "invalid refresh token", nil)
		return
	}

	if err := h.issueCookies(w, claims.Subject, claims.Role); err != nil {
		transport.WriteError(w, http.StatusInternalServerError, "token error", nil)
		return
	}

	log.Info("refresh: ok", slog.String("user_id", claims.Subject))
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	auth.ClearAuthCookies(w, h.cookieSecure)
	log.Info("logout: ok")
	transport.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me returns the authenticated caller's profile.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	user, err := h.service.GetByID(ctx, identity.UserID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			transport.WriteError(w, http.StatusUnauthorized, "unknown user", nil)
			return
		}
		log.Error("me: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, user)
}

// Doctors is the public directory of bookable doctors.
func (h *Handler) Doctors(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	doctors, err := h.service.ListDoctors(ctx)
	if err != nil {
		log.Error("doctors: database error", slog.String("error", err.Error()))
		transport.WriteError(w, http.StatusInternalServerError, "database error", nil)
		return
	}

	transport.WriteJSON(w, http.StatusOK, map[string]interface{}{"doctors": doctors})
}

func (h *Handler) issueCookies(w http.ResponseWriter, userID, role string) error {
	access, err := h.manager.NewAccessToken(userID, role)
	if err != nil {
		return err
	}
	refresh, err := h.manager.NewRefreshToken(userID, role)
	if err != nil {
		return err
	}
	auth.SetAuthCookies(w, access, refresh, h.manager.AccessTTL, h.manager.RefreshTTL, h.cookieSecure)
	return nil
}

func (h *Handler) logWithRequest(r *http.Request) *slog.Logger {
	if id := middleware.RequestIDFromContext(r.Context()); id != "" {
		return h.log.With(slog.String("request_id", id))
	}
	return h.log
}
