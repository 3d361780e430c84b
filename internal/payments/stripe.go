package payments

import (
	"context"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
)

// CheckoutParams describes one hosted checkout page for a consultation
// deposit. Amounts are in the currency's minor unit.
type CheckoutParams struct {
	AppointmentID string
	Description   string
	Amount        int
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

type CheckoutSession struct {
	ID  string
	URL string
}

// CheckoutCreator abstracts the payment provider for tests.
type CheckoutCreator interface {
	CreateSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error)
}

// StripeCheckout creates hosted checkout sessions. The package-level
// stripe.Key must be set before use.
type StripeCheckout struct{}

func NewStripeCheckout(secretKey string) *StripeCheckout {
	stripe.Key = secretKey
	return &StripeCheckout{}
}

func (s *StripeCheckout) CreateSession(ctx context.Context, p CheckoutParams) (CheckoutSession, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:    stripe.String(p.SuccessURL),
		CancelURL:     stripe.String(p.CancelURL),
		CustomerEmail: stripe.String(p.CustomerEmail),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.Currency),
					UnitAmount: stripe.Int64(int64(p.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(p.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("appointmentId", p.AppointmentID)
	params.SetIdempotencyKey(uuid.NewString())

	created, err := session.New(params)
	if err != nil {
		return CheckoutSession{}, err
	}
	return CheckoutSession{ID: created.ID, URL: created.URL}, nil
}
