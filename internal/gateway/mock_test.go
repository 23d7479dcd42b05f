package gateway

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockSessionsAreStableAcrossRetries(t *testing.T) {
	g := NewMockGateway()
	first, err := g.CreateSession(context.Background(), SessionRequest{PaymentID: 3})
	require.NoError(t, err)
	second, err := g.CreateSession(context.Background(), SessionRequest{PaymentID: 3})
	require.NoError(t, err)
	assert.Equal(t, first.Reference, second.Reference)
	assert.Equal(t, int64(2), g.Sessions())
}

func TestMockVerifyPayload(t *testing.T) {
	g := NewMockGateway()
	assert.NoError(t, g.VerifyPayload("pi_1", map[string]any{"payment_intent_id": "pi_1"}))
	assert.ErrorIs(t, g.VerifyPayload("pi_1", map[string]any{"payment_intent_id": "pi_2"}), ErrPayloadMismatch)
	assert.ErrorIs(t, g.VerifyPayload("pi_1", map[string]any{}), ErrPayloadMismatch)
}

func TestMockParseWebhookEvent(t *testing.T) {
	g := NewMockGateway()

	ev, err := g.ParseWebhookEvent([]byte(`{"id":"e1","type":"payment.succeeded","reference":"pi_1"}`), "")
	require.NoError(t, err)
	assert.Equal(t, EventPaymentSucceeded, ev.Type)
	assert.Equal(t, "pi_1", ev.Reference)

	ev, err = g.ParseWebhookEvent([]byte(`{"id":"e2","type":"charge.updated","reference":"pi_1"}`), "")
	require.NoError(t, err)
	assert.Equal(t, EventIgnored, ev.Type)

	_, err = g.ParseWebhookEvent([]byte(`not json`), "")
	assert.ErrorIs(t, err, ErrBadSignature)
}
