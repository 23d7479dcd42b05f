package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// MockGateway is a deterministic in-process provider used in development
// and tests.  Session references are derived from the payment id so
// retries observe stable values; webhook bodies are plain JSON and the
// signature is not checked.
type MockGateway struct {
	// FailSessions makes CreateSession return an error, simulating an
	// unreachable provider.
	FailSessions bool

	sessions atomic.Int64
}

// NewMockGateway returns a mock provider.
func NewMockGateway() *MockGateway { return &MockGateway{} }

// CreateSession issues a synthetic session reference.
func (g *MockGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	if g.FailSessions {
		return nil, fmt.Errorf("mock gateway unavailable")
	}
	g.sessions.Add(1)
	ref := fmt.Sprintf("mock_pi_%d", req.PaymentID)
	return &Session{Reference: ref, ClientSecret: ref + "_secret"}, nil
}

// Sessions reports how many sessions were opened, for assertions on the
// idempotent intent path.
func (g *MockGateway) Sessions() int64 { return g.sessions.Load() }

// VerifyPayload mirrors the Stripe implementation's contract.
func (g *MockGateway) VerifyPayload(reference string, payload map[string]any) error {
	got, _ := payload["payment_intent_id"].(string)
	if got == "" || got != reference {
		return ErrPayloadMismatch
	}
	return nil
}

// ParseWebhookEvent decodes {"id": ..., "type": ..., "reference": ...}.
func (g *MockGateway) ParseWebhookEvent(body []byte, signature string) (*WebhookEvent, error) {
	var raw struct {
		ID        string `json:"id"`
		Type      string `json:"type"`
		Reference string `json:"reference"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	out := &WebhookEvent{ID: raw.ID, Reference: raw.Reference}
	switch raw.Type {
	case "payment.succeeded":
		out.Type = EventPaymentSucceeded
	case "payment.failed":
		out.Type = EventPaymentFailed
	default:
		out.Type = EventIgnored
	}
	return out, nil
}

// Refund always succeeds.
func (g *MockGateway) Refund(ctx context.Context, reference string, amountCents int64) error {
	return nil
}
