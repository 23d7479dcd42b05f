// Package gateway defines the narrow boundary between the settlement
// engine and a concrete payment provider.  The engine only ever needs
// four operations: open a provider-side session for an intent, verify a
// confirmation payload against the stored session reference, parse an
// incoming webhook into a neutral event, and request a refund.  Any
// provider that implements these plugs in without touching the state
// machine.
package gateway

import (
	"context"
	"errors"
)

// ErrPayloadMismatch is returned by VerifyPayload when the confirmation
// payload does not reference the stored gateway session.  This is a
// client error; the settlement engine must not mutate state on it.
var ErrPayloadMismatch = errors.New("gateway payload mismatch")

// ErrBadSignature is returned by ParseWebhookEvent when the delivery
// cannot be authenticated as coming from the provider.
var ErrBadSignature = errors.New("webhook signature invalid")

// SessionRequest asks the provider to open a charge session.
type SessionRequest struct {
	PaymentID   uint64
	BookingID   uint64
	AmountCents int64
	Currency    string
}

// Session is the provider-side handle for an in-progress charge.  The
// Reference is persisted on the payment row; the ClientSecret is passed
// through to the client so it can complete the charge with the provider
// directly.
type Session struct {
	Reference    string
	ClientSecret string
}

// EventType classifies a webhook delivery.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	// EventIgnored marks deliveries the engine does not act on; the
	// webhook endpoint still acknowledges them.
	EventIgnored EventType = "ignored"
)

// WebhookEvent is a provider-neutral webhook delivery.  Reference is the
// session reference the event concerns, matching Session.Reference.
type WebhookEvent struct {
	ID        string
	Type      EventType
	Reference string
}

// Gateway abstracts a payment provider.  Implementations must be safe
// for concurrent use.  Outbound calls are bounded by the caller's
// context; on timeout the engine leaves the payment PENDING so a retry
// can safely re-enter the idempotent intent branch.
type Gateway interface {
	// CreateSession opens a provider-side session for the payment.
	CreateSession(ctx context.Context, req SessionRequest) (*Session, error)
	// VerifyPayload checks a confirmation payload against the stored
	// session reference and returns ErrPayloadMismatch when it does not
	// match.
	VerifyPayload(reference string, payload map[string]any) error
	// ParseWebhookEvent authenticates and decodes a raw webhook body.
	ParseWebhookEvent(body []byte, signature string) (*WebhookEvent, error)
	// Refund asks the provider to return amountCents for the session.
	Refund(ctx context.Context, reference string, amountCents int64) error
}
