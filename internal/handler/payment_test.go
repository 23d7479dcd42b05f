package handler

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zezo2030/hall-reservation/internal/gateway"
)

func newPaymentHandler(d testDeps) (*PaymentHandler, *gateway.MockGateway) {
	gw := gateway.NewMockGateway()
	h := NewPaymentHandler(d.payments, d.bookings, d.tickets, gw, d.store, d.log, "usd", 2*time.Second)
	return h, gw
}

// A retry of the intent call while a live intent exists must return that
// intent and must not open a second provider session.
func TestIntentIdempotentOnRetry(t *testing.T) {
	d := newDeps(t)
	h, gw := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "PENDING", futureStart(), 3, 87500))
	d.mock.ExpectQuery(regexp.QuoteMeta("status IN ('PENDING','PROCESSING')")).
		WillReturnRows(paymentRow(3, 42, "PROCESSING", "mock_pi_3", 87500, 0))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/intent", map[string]any{
		"booking_id": 42, "method": "CARD",
	})
	require.NoError(t, h.CreateIntent(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["payment_id"])
	assert.Equal(t, "mock_pi_3", body["gateway_ref"])
	assert.Equal(t, int64(0), gw.Sessions(), "no new provider session on retry")
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestIntentOpensSessionOnFirstCall(t *testing.T) {
	d := newDeps(t)
	h, gw := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "PENDING", futureStart(), 3, 87500))
	d.mock.ExpectQuery(regexp.QuoteMeta("status IN ('PENDING','PROCESSING')")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	d.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO payments")).
		WillReturnResult(sqlmock.NewResult(3, 1))
	d.mock.ExpectCommit()
	// The session reference lands outside the transaction: the PENDING
	// row must survive a provider timeout.
	d.mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET gateway_ref = ?, status = 'PROCESSING'")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/intent", map[string]any{
		"booking_id": 42, "method": "CARD",
	})
	require.NoError(t, h.CreateIntent(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "mock_pi_3_secret", body["client_secret"])
	assert.Equal(t, "PROCESSING", body["status"])
	assert.Equal(t, int64(1), gw.Sessions())
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestConfirmRejectsMismatchedPayload(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = ? FOR UPDATE")).
		WillReturnRows(paymentRow(3, 42, "PROCESSING", "mock_pi_3", 87500, 0))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "PENDING", futureStart(), 3, 87500))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/confirm", map[string]any{
		"payment_id": 3,
		"payload":    map[string]any{"payment_intent_id": "someone_elses_intent"},
	})
	require.NoError(t, h.Confirm(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

// Payment completion and booking confirmation commit atomically.
func TestConfirmCompletesPaymentAndBooking(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = ? FOR UPDATE")).
		WillReturnRows(paymentRow(3, 42, "PROCESSING", "mock_pi_3", 87500, 0))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "PENDING", futureStart(), 3, 87500))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'COMPLETED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'CONFIRMED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/confirm", map[string]any{
		"payment_id": 3,
		"payload":    map[string]any{"payment_intent_id": "mock_pi_3"},
	})
	require.NoError(t, h.Confirm(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "COMPLETED", body["status"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

// A replayed confirm on an already completed payment acknowledges
// without touching the database again.
func TestConfirmReplayIsAcknowledged(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = ? FOR UPDATE")).
		WillReturnRows(paymentRow(3, 42, "COMPLETED", "mock_pi_3", 87500, 0))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "CONFIRMED", futureStart(), 3, 87500))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/confirm", map[string]any{
		"payment_id": 3,
		"payload":    map[string]any{"payment_intent_id": "mock_pi_3"},
	})
	require.NoError(t, h.Confirm(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestWebhookSuccessConfirmsBooking(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("WHERE gateway_ref = ? FOR UPDATE")).
		WillReturnRows(paymentRow(3, 42, "PROCESSING", "mock_pi_3", 87500, 0))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'COMPLETED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "PENDING", futureStart(), 3, 87500))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'CONFIRMED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/webhook", map[string]any{
		"id": "evt_1", "type": "payment.succeeded", "reference": "mock_pi_3",
	})
	require.NoError(t, h.Webhook(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["received"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

// Provider redeliveries of an applied event must not re-apply effects.
func TestWebhookRedeliveryShortCircuits(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("WHERE gateway_ref = ? FOR UPDATE")).
		WillReturnRows(paymentRow(3, 42, "COMPLETED", "mock_pi_3", 87500, 0))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/webhook", map[string]any{
		"id": "evt_1", "type": "payment.succeeded", "reference": "mock_pi_3",
	})
	require.NoError(t, h.Webhook(c))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["received"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestRefundExceedingBalanceRefused(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = ?")).
		WillReturnRows(paymentRow(3, 42, "COMPLETED", "mock_pi_3", 50000, 40000))

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/refund", map[string]any{
		"payment_id": 3, "amount_cents": 20000,
	})
	c.Set("role", "ADMIN")
	require.NoError(t, h.Refund(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

// A refund that empties the payment cancels the booking and all of its
// still-valid tickets in the same transaction.
func TestFullRefundCancelsBookingAndTickets(t *testing.T) {
	d := newDeps(t)
	h, _ := newPaymentHandler(d)

	d.mock.ExpectQuery(regexp.QuoteMeta("FROM payments WHERE id = ?")).
		WillReturnRows(paymentRow(3, 42, "COMPLETED", "mock_pi_3", 50000, 0))
	d.mock.ExpectBegin()
	d.mock.ExpectExec(regexp.QuoteMeta("SET refunded_cents = refunded_cents + ?")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "CONFIRMED", futureStart(), 3, 50000))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'CANCELLED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET status = 'CANCELLED'")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/payments/refund", map[string]any{
		"payment_id": 3,
	})
	c.Set("role", "ADMIN")
	require.NoError(t, h.Refund(c))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "REFUNDED", body["status"])
	assert.Equal(t, float64(50000), body["refunded_cents"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}
