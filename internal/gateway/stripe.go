package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
	"github.com/stripe/stripe-go/v82/refund"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway implements Gateway on top of Stripe PaymentIntents.
type StripeGateway struct {
	webhookSecret string
}

// NewStripeGateway configures the global Stripe client with the secret
// key and returns a gateway.  The webhook secret authenticates incoming
// event deliveries.
func NewStripeGateway(secretKey, webhookSecret string) (*StripeGateway, error) {
	if secretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = secretKey
	return &StripeGateway{webhookSecret: webhookSecret}, nil
}

// CreateSession opens a PaymentIntent for the requested amount.  The
// internal payment and booking ids travel in the intent metadata for
// reconciliation.
func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.AmountCents),
		Currency: stripe.String(req.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Metadata: map[string]string{
			"payment_id": strconv.FormatUint(req.PaymentID, 10),
			"booking_id": strconv.FormatUint(req.BookingID, 10),
		},
	}
	params.Context = ctx
	pi, err := paymentintent.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create intent: %w", err)
	}
	return &Session{Reference: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

// VerifyPayload checks that the confirmation payload names the stored
// PaymentIntent.  Clients send back {"payment_intent_id": "..."} after
// completing the charge on their side.
func (g *StripeGateway) VerifyPayload(reference string, payload map[string]any) error {
	got, _ := payload["payment_intent_id"].(string)
	if got == "" || got != reference {
		return ErrPayloadMismatch
	}
	return nil
}

// ParseWebhookEvent verifies the Stripe signature header and maps the
// event onto the neutral event type.  Event types the engine does not
// care about come back as EventIgnored.
func (g *StripeGateway) ParseWebhookEvent(body []byte, signature string) (*WebhookEvent, error) {
	ev, err := webhook.ConstructEvent(body, signature, g.webhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	var pi struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("stripe event payload: %w", err)
	}
	out := &WebhookEvent{ID: ev.ID, Reference: pi.ID}
	switch ev.Type {
	case "payment_intent.succeeded":
		out.Type = EventPaymentSucceeded
	case "payment_intent.payment_failed":
		out.Type = EventPaymentFailed
	default:
		out.Type = EventIgnored
	}
	return out, nil
}

// Refund returns amountCents to the customer for the given intent.
func (g *StripeGateway) Refund(ctx context.Context, reference string, amountCents int64) error {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(reference),
		Amount:        stripe.Int64(amountCents),
	}
	params.Context = ctx
	if _, err := refund.New(params); err != nil {
		return fmt.Errorf("stripe refund: %w", err)
	}
	return nil
}
