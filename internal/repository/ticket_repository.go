package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// TicketRepo provides data access to tickets.  The consuming transition
// (VALID→USED) is a single conditional UPDATE so that two gate devices
// racing on the same physical ticket cannot both succeed.
type TicketRepo struct {
	db *sql.DB
}

// NewTicketRepo returns a new TicketRepo bound to the given database.
func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{db: db} }

// DB exposes the underlying handle so handlers can begin transactions.
func (r *TicketRepo) DB() *sql.DB { return r.db }

const ticketColumns = `id, booking_id, token_hash, status, valid_from, valid_until,
       scanned_at, scanned_by, holder_name, holder_phone, created_at, updated_at`

func scanTicket(row interface{ Scan(dest ...any) error }) (*model.Ticket, error) {
	var t model.Ticket
	var scannedAt sql.NullTime
	var scannedBy sql.NullInt64
	var holderName, holderPhone sql.NullString
	err := row.Scan(
		&t.ID, &t.BookingID, &t.TokenHash, &t.Status, &t.ValidFrom, &t.ValidUntil,
		&scannedAt, &scannedBy, &holderName, &holderPhone, &t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if scannedAt.Valid {
		v := scannedAt.Time
		t.ScannedAt = &v
	}
	if scannedBy.Valid {
		v := uint64(scannedBy.Int64)
		t.ScannedBy = &v
	}
	if holderName.Valid {
		v := holderName.String
		t.HolderName = &v
	}
	if holderPhone.Valid {
		v := holderPhone.String
		t.HolderPhone = &v
	}
	return &t, nil
}

// CreateBulkTx inserts one row per ticket in a single statement within
// the provided transaction and is called from the booking creation path
// so tickets commit or roll back together with their booking.
func (r *TicketRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, tickets []model.Ticket) error {
	if len(tickets) == 0 {
		return nil
	}
	query := `INSERT INTO tickets (booking_id, token_hash, status, valid_from, valid_until) VALUES `
	args := make([]any, 0, len(tickets)*5)
	for i, t := range tickets {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?)"
		args = append(args, t.BookingID, t.TokenHash, string(model.TicketValid),
			t.ValidFrom.UTC().Format("2006-01-02 15:04:05"),
			t.ValidUntil.UTC().Format("2006-01-02 15:04:05"))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// GetByHash looks a ticket up by its token digest.
func (r *TicketRepo) GetByHash(ctx context.Context, q Querier, tokenHash string) (*model.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE token_hash = ?`
	t, err := scanTicket(q.QueryRowContext(ctx, query, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

// GetByID returns a ticket by id.
func (r *TicketRepo) GetByID(ctx context.Context, q Querier, ticketID uint64) (*model.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE id = ?`
	t, err := scanTicket(q.QueryRowContext(ctx, query, ticketID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

// GetByIDForUser returns a ticket by id when the owning booking belongs
// to the given user; other users' tickets surface as ErrTicketNotFound.
func (r *TicketRepo) GetByIDForUser(ctx context.Context, q Querier, ticketID, userID uint64) (*model.Ticket, error) {
	const query = `SELECT t.id, t.booking_id, t.token_hash, t.status, t.valid_from, t.valid_until,
                          t.scanned_at, t.scanned_by, t.holder_name, t.holder_phone, t.created_at, t.updated_at
                   FROM tickets t
                   JOIN bookings b ON b.id = t.booking_id
                   WHERE t.id = ? AND b.user_id = ?`
	t, err := scanTicket(q.QueryRowContext(ctx, query, ticketID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	return t, err
}

// MarkUsed consumes a ticket.  The compare-and-swap WHERE clause is the
// whole point: "set USED where still VALID".  Zero affected rows means a
// concurrent scan won and the ticket is already consumed; ErrConflict is
// returned so the caller can report "Already used".
func (r *TicketRepo) MarkUsed(ctx context.Context, q Querier, ticketID, staffID uint64, at time.Time) error {
	const query = `UPDATE tickets
                   SET status = 'USED', scanned_at = ?, scanned_by = ?
                   WHERE id = ? AND status = 'VALID'`
	res, err := q.ExecContext(ctx, query, at.UTC().Format("2006-01-02 15:04:05"), staffID, ticketID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// CancelByBookingTx cancels every still-valid ticket of a booking.  Runs
// inside the booking cancellation transaction so booking and tickets flip
// atomically.
func (r *TicketRepo) CancelByBookingTx(ctx context.Context, tx *sql.Tx, bookingID uint64) error {
	const query = `UPDATE tickets SET status = 'CANCELLED' WHERE booking_id = ? AND status = 'VALID'`
	_, err := tx.ExecContext(ctx, query, bookingID)
	return err
}

// SetHolder overrides the holder contact on a still-valid ticket, used
// when a ticket is gifted to someone outside the booking contact.
func (r *TicketRepo) SetHolder(ctx context.Context, q Querier, ticketID uint64, name, phone string) error {
	const query = `UPDATE tickets SET holder_name = ?, holder_phone = ? WHERE id = ? AND status = 'VALID'`
	res, err := q.ExecContext(ctx, query, name, phone, ticketID)
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

// ListByBooking returns all tickets of a booking ordered by id.
func (r *TicketRepo) ListByBooking(ctx context.Context, q Querier, bookingID uint64) ([]model.Ticket, error) {
	const query = `SELECT ` + ticketColumns + ` FROM tickets WHERE booking_id = ? ORDER BY id ASC`
	rows, err := q.QueryContext(ctx, query, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]model.Ticket, 0)
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
