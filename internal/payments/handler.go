package payments

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"clinic-backend/internal/cache"
	"clinic-backend/internal/httpx"
	"clinic-backend/internal/middleware"
	"clinic-backend/internal/models"
	"clinic-backend/internal/transport"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

const webhookBodyLimit = 64 * 1024

// Mailer sends the confirmation once payment lands; nil disables it.
type Mailer interface {
	SendAppointmentConfirmed(ctx context.Context, appointment models.Appointment, patient, doctor models.User) (string, error)
}

type Handler struct {
	service       *Service
	log           *slog.Logger
	webhookSecret string
	location      *time.Location
	cache         cache.Cache
	users         UserLookup
	mailer        Mailer
}

func NewHandler(service *Service, log *slog.Logger, webhookSecret string, location *time.Location, store cache.Cache, users UserLookup, mailer Mailer) *Handler {
	return &Handler{
		service:       service,
		log:           log,
		webhookSecret: webhookSecret,
		location:      location,
		cache:         store,
		users:         users,
		mailer:        mailer,
	}
}

type checkoutRequest struct {
	AppointmentID string `json:"appointmentId"`
}

// Checkout creates the hosted payment page for one appointment and
// returns its URL for the client to redirect to.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)
	identity, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		transport.WriteError(w, http.StatusUnauthorized, "unauthorized", nil)
		return
	}

	var req checkoutRequest
	if err := httpx.DecodeJSON(r.Body, &req); err != nil {
		transport.WriteError(w, http.StatusBadRequest, "invalid json", nil)
		return
	}
	appointmentID := req.AppointmentID
	if appointmentID == "" {
		transport.WriteError(w, http.StatusBadRequest, "missing appointment id", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	created, err := h.service.Checkout(ctx, identity, appointmentID)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			transport.WriteError(w, http.StatusNotFound, "appointment not found", nil)
		case errors.Is(err, ErrNotAllowed):
			transport.WriteError(w, http.StatusForbidden, "only the booking patient can pay", nil)
		case errors.Is(err, ErrAlreadyPaid), errors.Is(err, ErrNotPayable):
			transport.WriteError(w, http.StatusConflict, "appointment is not awaiting payment", nil)
		case errors.Is(err, ErrDisabled):
			transport.WriteError(w, http.StatusServiceUnavailable, "payments are not configured", nil)
		default:
			log.Error("checkout: session error", slog.String("error", err.Error()))
			transport.WriteError(w, http.StatusBadGateway, "payment provider error", nil)
		}
		return
	}

	log.Info("checkout: session created",
		slog.String("appointment_id", appointmentID),
		slog.String("session_id", created.ID),
	)
	transport.WriteJSON(w, http.StatusCreated, map[string]string{
		"sessionId":   created.ID,
		"checkoutUrl": created.URL,
	})
}

// Webhook receives provider events. Unhandled event types are
// acknowledged so the provider stops retrying them.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	log := h.logWithRequest(r)

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, webhookBodyLimit))
	if err != nil {
		transport.WriteError(w, http.StatusBadRequest, "unreadable payload", nil)
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), h.webhookSecret)
	if err != nil {
		log.Warn("webhook: signature verification failed")
		transport.WriteError(w, http.StatusBadRequest, "invalid signature", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 8*time.Second)
	defer cancel()

	switch string(event.Type) {
	case "checkout.session.completed":
		h.handleCompleted(ctx, log, event)
	case "checkout.session.expired":
		h.handleExpired(ctx, log, event)
	case "charge.refunded":
		h.handleRefunded(ctx, log, event)
	default:
		log.Info("webhook: ignoring event", slog.String("type", string(event.Type)))
	}

	transport.WriteJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handler) handleCompleted(ctx context.Context, log *slog.Logger, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Warn("webhook: bad session payload")
		return
	}

	paymentID := ""
	if session.PaymentIntent != nil {
		paymentID = session.PaymentIntent.ID
	}

	appointment, err := h.service.CompleteCheckout(ctx, session.ID, paymentID)
	if err != nil {
		log.Error("webhook: complete checkout failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if h.mailer != nil {
		go h.sendConfirmationEmail(appointment)
	}

	log.Info("webhook: appointment confirmed",
		slog.String("appointment_id", appointment.ID),
		slog.String("session_id", session.ID),
	)
}

func (h *Handler) handleExpired(ctx context.Context, log *slog.Logger, event stripe.Event) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Warn("webhook: bad session payload")
		return
	}

	if err := h.service.ExpireCheckout(ctx, session.ID); err != nil {
		log.Error("webhook: expire checkout failed",
			slog.String("session_id", session.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	log.Info("webhook: checkout expired", slog.String("session_id", session.ID))
}

func (h *Handler) handleRefunded(ctx context.Context, log *slog.Logger, event stripe.Event) {
	var charge stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
		log.Warn("webhook: bad charge payload")
		return
	}

	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
		// Refunds of charges created outside a checkout session carry no
		// payment intent; nothing here to match them against.
		log.Warn("webhook: refunded charge has no payment intent", slog.String("charge_id", charge.ID))
		return
	}
	paymentID := charge.PaymentIntent.ID

	appointment, err := h.service.RefundCharge(ctx, paymentID)
	if err != nil {
		log.Error("webhook: refund handling failed",
			slog.String("payment_id", paymentID),
			slog.String("error", err.Error()),
		)
		return
	}

	// The cancellation frees the slot.
	if h.cache != nil {
		date := appointment.ScheduledAt.In(h.location).Format("2006-01-02")
		_ = h.cache.DeletePrefix(ctx, "slots:"+appointment.DoctorID+":"+date+":")
	}

	log.Info("webhook: appointment cancelled after refund",
		slog.String("appointment_id", appointment.ID),
	)
}

func (h *Handler) sendConfirmationEmail(appointment models.Appointment) {
	ctx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()

	patient, err := h.users.GetByID(ctx, appointment.PatientID)
	if err != nil {
		h.log.Warn("confirmation email: patient lookup failed", slog.String("appointment_id", appointment.ID))
		return
	}
	doctor, err := h.users.GetByID(ctx, appointment.DoctorID)
	if err != nil {
		h.log.Warn("confirmation email: doctor lookup failed", slog.String("appointment_id", appointment.ID))
		return
	}

	messageID, err := h.mailer.SendAppointmentConfirmed(ctx, appointment, patient, doctor)
	if err != nil {
		h.log.Warn("confirmation email: send failed",
			slog.String("appointment_id", appointment.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	h.log.Info("confirmation email: sent",
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
