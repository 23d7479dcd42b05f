package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// BookingRepo provides CRUD operations for bookings and their add-on
// lines.  All timestamps are stored in UTC.  Status flips are conditional
// updates so a transaction racing a concurrent confirm or cancel observes
// zero affected rows instead of overwriting the winner's result.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

// DB exposes the underlying handle so handlers can begin transactions.
func (r *BookingRepo) DB() *sql.DB { return r.db }

const bookingColumns = `id, user_id, hall_id, branch_id, starts_at, duration_hours, persons,
       total_cents, discount_cents, coupon_code, status, cancel_reason, cancelled_at,
       contact_name, contact_phone, created_at, updated_at`

func scanBooking(row interface{ Scan(dest ...any) error }) (*model.Booking, error) {
	var b model.Booking
	var coupon, reason sql.NullString
	var cancelled sql.NullTime
	err := row.Scan(
		&b.ID, &b.UserID, &b.HallID, &b.BranchID, &b.StartsAt, &b.DurationHours, &b.Persons,
		&b.TotalCents, &b.DiscountCents, &coupon, &b.Status, &reason, &cancelled,
		&b.ContactName, &b.ContactPhone, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if coupon.Valid {
		v := coupon.String
		b.CouponCode = &v
	}
	if reason.Valid {
		v := reason.String
		b.CancelReason = &v
	}
	if cancelled.Valid {
		v := cancelled.Time
		b.CancelledAt = &v
	}
	return &b, nil
}

// CountOverlapping counts bookings on a hall whose window overlaps the
// half-open interval [start, end) and whose status still claims the hall
// (PENDING or CONFIRMED).  Overlap predicate: existing.start < req.end
// AND req.start < existing.end.  The quote endpoint runs it directly on
// the pool for an advisory answer; the booking path runs it on its
// transaction while holding the hall row lock, which is what makes the
// answer binding there.
func (r *BookingRepo) CountOverlapping(ctx context.Context, q Querier, hallID uint64, start, end time.Time) (int, error) {
	const query = `SELECT COUNT(*)
                   FROM bookings
                   WHERE hall_id = ?
                     AND status IN ('PENDING','CONFIRMED')
                     AND starts_at < ?
                     AND ? < DATE_ADD(starts_at, INTERVAL duration_hours HOUR)`
	var n int
	err := q.QueryRowContext(ctx, query, hallID,
		end.UTC().Format("2006-01-02 15:04:05"),
		start.UTC().Format("2006-01-02 15:04:05"),
	).Scan(&n)
	return n, err
}

// CreateTx inserts a new booking in status PENDING within the provided
// transaction and populates the generated ID on the record.
func (r *BookingRepo) CreateTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const query = `INSERT INTO bookings
        (user_id, hall_id, branch_id, starts_at, duration_hours, persons, total_cents,
         discount_cents, coupon_code, status, contact_name, contact_phone)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query,
		b.UserID, b.HallID, b.BranchID, b.StartsAt.UTC().Format("2006-01-02 15:04:05"),
		b.DurationHours, b.Persons, b.TotalCents, b.DiscountCents, b.CouponCode,
		string(model.BookingPending), b.ContactName, b.ContactPhone,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	b.Status = model.BookingPending
	return nil
}

// CreateAddOnsBulkTx inserts the booking's add-on lines in a single
// statement.  Passing an empty slice has no effect and returns nil.
func (r *BookingRepo) CreateAddOnsBulkTx(ctx context.Context, tx *sql.Tx, lines []model.BookingAddOn) error {
	if len(lines) == 0 {
		return nil
	}
	query := `INSERT INTO booking_add_ons (booking_id, add_on_id, quantity, unit_price_cents) VALUES `
	args := make([]any, 0, len(lines)*4)
	for i, l := range lines {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, l.BookingID, l.AddOnID, l.Quantity, l.UnitPriceCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByID returns a booking by id.
func (r *BookingRepo) GetByID(ctx context.Context, q Querier, bookingID uint64) (*model.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// GetByIDForUser returns a booking by id, enforcing ownership.  A booking
// owned by another user surfaces as ErrBookingNotFound rather than
// ErrForbidden so the endpoint does not leak which ids exist.
func (r *BookingRepo) GetByIDForUser(ctx context.Context, q Querier, bookingID, userID uint64) (*model.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? AND user_id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, bookingID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// LockByIDTx loads a booking and takes a row lock on it.  Settlement and
// cancellation both lock the booking first, so a confirm racing a cancel
// serializes here and the loser sees the winner's committed status.
func (r *BookingRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (*model.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ? FOR UPDATE`
	b, err := scanBooking(tx.QueryRowContext(ctx, query, bookingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBookingNotFound
	}
	return b, err
}

// ListByUser returns all bookings for a user, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, q Querier, userID uint64) ([]model.Booking, error) {
	const query = `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY created_at DESC`
	rows, err := q.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Booking, 0)
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// ConfirmTx flips a booking PENDING→CONFIRMED.  The WHERE clause guards
// the transition: if a concurrent cancellation already committed, zero
// rows match and ErrInvalidState is returned so the confirm cannot
// resurrect the booking.
func (r *BookingRepo) ConfirmTx(ctx context.Context, tx *sql.Tx, bookingID uint64) error {
	const query = `UPDATE bookings SET status = 'CONFIRMED' WHERE id = ? AND status = 'PENDING'`
	res, err := tx.ExecContext(ctx, query, bookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}

// CancelTx flips a booking to CANCELLED with a reason and timestamp.  The
// transition is legal from PENDING and CONFIRMED only; zero affected rows
// means the booking was already terminal and ErrInvalidState is returned.
func (r *BookingRepo) CancelTx(ctx context.Context, tx *sql.Tx, bookingID uint64, reason string, at time.Time) error {
	const query = `UPDATE bookings
                   SET status = 'CANCELLED', cancel_reason = ?, cancelled_at = ?
                   WHERE id = ? AND status IN ('PENDING','CONFIRMED')`
	res, err := tx.ExecContext(ctx, query, reason, at.UTC().Format("2006-01-02 15:04:05"), bookingID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrInvalidState
	}
	return nil
}
