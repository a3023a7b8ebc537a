package services

import (
	"errors"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"
)

var ErrCheckoutNotConfigured = errors.New("checkout is not configured")

// StripeService opens checkout sessions for the premium subscription. The plan flip happens
// out of band once payment succeeds.
type StripeService struct {
	premiumPriceID string
	successURL     string
	cancelURL      string
	newSession     func(*stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

func NewStripeService(secretKey, premiumPriceID, successURL, cancelURL string) *StripeService {
	stripe.Key = secretKey
	return &StripeService{
		premiumPriceID: premiumPriceID,
		successURL:     successURL,
		cancelURL:      cancelURL,
		newSession:     session.New,
	}
}

func (s *StripeService) CreateCheckoutSession(userID uuid.UUID, email string) (*stripe.CheckoutSession, error) {
	if s.premiumPriceID == "" {
		return nil, ErrCheckoutNotConfigured
	}
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(s.premiumPriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(s.successURL + "?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(s.cancelURL),
		ClientReferenceID: stripe.String(userID.String()),
		Metadata: map[string]string{
			"user_id": userID.String(),
			"plan":    "premium",
		},
	}
	if email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	return s.newSession(params)
}
