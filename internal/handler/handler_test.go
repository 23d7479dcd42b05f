package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/zezo2030/hall-reservation/internal/cache"
	"github.com/zezo2030/hall-reservation/internal/repository"
)

// testDeps bundles the sqlmock-backed repositories every handler test
// starts from.  Redis is absent, so the cache layer runs disabled.
type testDeps struct {
	mock     sqlmock.Sqlmock
	halls    *repository.HallRepo
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
	payments *repository.PaymentRepo
	coupons  *repository.CouponRepo
	store    *cache.Store
	log      *logrus.Logger
}

func newDeps(t *testing.T) testDeps {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logrus.New()
	log.SetOutput(io.Discard)

	return testDeps{
		mock:     mock,
		halls:    repository.NewHallRepo(db),
		bookings: repository.NewBookingRepo(db),
		tickets:  repository.NewTicketRepo(db),
		payments: repository.NewPaymentRepo(db),
		coupons:  repository.NewCouponRepo(db),
		store:    cache.New(nil, log),
		log:      log,
	}
}

// newCtx builds an echo context carrying an authenticated customer.
func newCtx(t *testing.T, method, target string, body any) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", uint64(1))
	c.Set("role", "CUSTOMER")
	return c, rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

// Row builders matching the repository column lists.  Multipliers of 1
// and a full-day schedule keep computed totals independent of the test
// machine's clock and weekday.

func hallRow(hallID, branchID uint64, capacity uint32) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "branch_id", "name", "capacity", "base_price_cents", "hourly_price_cents",
		"per_person_cents", "person_threshold", "weekday_multiplier", "weekend_multiplier",
		"holiday_multiplier", "open_hour", "close_hour", "is_active", "created_at", "updated_at",
	}).AddRow(hallID, branchID, "Grand Hall", capacity, 50000, 10000,
		500, 10, "1", "1", "1", 0, 0, true, now, now)
}

func bookingRow(id, userID uint64, status string, startsAt time.Time, durationHours uint32, totalCents int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "user_id", "hall_id", "branch_id", "starts_at", "duration_hours", "persons",
		"total_cents", "discount_cents", "coupon_code", "status", "cancel_reason", "cancelled_at",
		"contact_name", "contact_phone", "created_at", "updated_at",
	}).AddRow(id, userID, 7, 2, startsAt, durationHours, 3,
		totalCents, 0, nil, status, nil, nil, "Dana", "+100200300", now, now)
}

func ticketRow(id, bookingID uint64, status string, validFrom, validUntil time.Time) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "booking_id", "token_hash", "status", "valid_from", "valid_until",
		"scanned_at", "scanned_by", "holder_name", "holder_phone", "created_at", "updated_at",
	}).AddRow(id, bookingID, "cafe0123", status, validFrom, validUntil,
		nil, nil, nil, nil, now, now)
}

func paymentRow(id, bookingID uint64, status string, gatewayRef any, amountCents, refundedCents int64) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows([]string{
		"id", "booking_id", "amount_cents", "currency", "method", "status", "gateway_ref",
		"transaction_id", "paid_at", "refunded_cents", "refunded_at", "created_at", "updated_at",
	}).AddRow(id, bookingID, amountCents, "usd", "CARD", status, gatewayRef,
		nil, nil, refundedCents, nil, now, now)
}
