package handler

import (
	"net/http"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBookingHandler(d testDeps) *BookingHandler {
	return NewBookingHandler(d.halls, d.bookings, d.coupons, d.tickets, d.store, d.log, "test-secret")
}

func TestCreateBookingIssuesTickets(t *testing.T) {
	d := newDeps(t)
	h := newBookingHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM halls WHERE id = ? AND is_active = 1 FOR UPDATE")).
		WillReturnRows(hallRow(7, 2, 50))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM holidays")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	d.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO bookings")).
		WillReturnResult(sqlmock.NewResult(99, 1))
	d.mock.ExpectExec(regexp.QuoteMeta("INSERT INTO tickets")).
		WillReturnResult(sqlmock.NewResult(1, 3))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/bookings", map[string]any{
		"hall_id":        7,
		"starts_at":      futureStart().Format(time.RFC3339),
		"duration_hours": 3,
		"persons":        3,
		"contact_name":   "Dana",
		"contact_phone":  "+100200300",
	})
	require.NoError(t, h.Create(c))
	require.Equal(t, http.StatusCreated, rec.Code)

	body := decodeBody(t, rec)
	booking := body["booking"].(map[string]any)
	assert.Equal(t, float64(99), booking["id"])
	assert.Equal(t, "PENDING", booking["status"])

	tickets := body["tickets"].([]any)
	require.Len(t, tickets, 3)
	seen := map[string]bool{}
	for _, raw := range tickets {
		tok := raw.(map[string]any)["token"].(string)
		assert.Len(t, tok, 64)
		assert.False(t, seen[tok], "tokens must be unique")
		seen[tok] = true
	}
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestCreateBookingConflictRollsBack(t *testing.T) {
	d := newDeps(t)
	h := newBookingHandler(d)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WillReturnRows(hallRow(7, 2, 50))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM holidays")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/bookings", map[string]any{
		"hall_id":        7,
		"starts_at":      futureStart().Format(time.RFC3339),
		"duration_hours": 3,
		"persons":        3,
		"contact_name":   "Dana",
		"contact_phone":  "+100200300",
	})
	require.NoError(t, h.Create(c))
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestCancelRefusedInsideCutoff(t *testing.T) {
	d := newDeps(t)
	h := newBookingHandler(d)
	soon := time.Now().UTC().Add(2 * time.Hour)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "CONFIRMED", soon, 3, 87500))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/bookings/42/cancel", map[string]any{})
	c.SetParamNames("id")
	c.SetParamValues("42")
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody(t, rec)
	assert.Contains(t, body["error"], "24 hours")
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestCancelFlipsBookingAndTickets(t *testing.T) {
	d := newDeps(t)
	h := newBookingHandler(d)
	later := time.Now().UTC().Add(72 * time.Hour)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 1, "CONFIRMED", later, 3, 87500))
	d.mock.ExpectExec(regexp.QuoteMeta("SET status = 'CANCELLED'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	d.mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET status = 'CANCELLED'")).
		WillReturnResult(sqlmock.NewResult(0, 3))
	d.mock.ExpectCommit()

	c, rec := newCtx(t, http.MethodPost, "/v1/bookings/42/cancel", map[string]any{
		"reason": "change of plans",
	})
	c.SetParamNames("id")
	c.SetParamValues("42")
	require.NoError(t, h.Cancel(c))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "CANCELLED", body["status"])
	assert.NoError(t, d.mock.ExpectationsWereMet())
}

func TestCancelOtherUsersBookingReadsAsMissing(t *testing.T) {
	d := newDeps(t)
	h := newBookingHandler(d)
	later := time.Now().UTC().Add(72 * time.Hour)

	d.mock.ExpectBegin()
	d.mock.ExpectQuery(regexp.QuoteMeta("FROM bookings WHERE id = ? FOR UPDATE")).
		WillReturnRows(bookingRow(42, 999, "CONFIRMED", later, 3, 87500))
	d.mock.ExpectRollback()

	c, rec := newCtx(t, http.MethodPost, "/v1/bookings/42/cancel", nil)
	c.SetParamNames("id")
	c.SetParamValues("42")
	require.NoError(t, h.Cancel(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NoError(t, d.mock.ExpectationsWereMet())
}
