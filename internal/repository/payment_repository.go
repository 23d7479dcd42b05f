package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// PaymentRepo provides data access to payments.  All state flips are
// conditional updates guarded by the expected current status, so a retry
// or a racing webhook collapses onto one effective transition instead of
// double-applying effects.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

// DB exposes the underlying handle so handlers can begin transactions.
func (r *PaymentRepo) DB() *sql.DB { return r.db }

const paymentColumns = `id, booking_id, amount_cents, currency, method, status, gateway_ref,
       transaction_id, paid_at, refunded_cents, refunded_at, created_at, updated_at`

func scanPayment(row interface{ Scan(dest ...any) error }) (*model.Payment, error) {
	var p model.Payment
	var ref, txn sql.NullString
	var paidAt, refundedAt sql.NullTime
	err := row.Scan(
		&p.ID, &p.BookingID, &p.AmountCents, &p.Currency, &p.Method, &p.Status, &ref,
		&txn, &paidAt, &p.RefundedCents, &refundedAt, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ref.Valid {
		v := ref.String
		p.GatewayRef = &v
	}
	if txn.Valid {
		v := txn.String
		p.TransactionID = &v
	}
	if paidAt.Valid {
		v := paidAt.Time
		p.PaidAt = &v
	}
	if refundedAt.Valid {
		v := refundedAt.Time
		p.RefundedAt = &v
	}
	return &p, nil
}

// CreateTx inserts a new payment in status PENDING and populates the
// generated ID on the record.
func (r *PaymentRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Payment) error {
	const query = `INSERT INTO payments (booking_id, amount_cents, currency, method, status)
                   VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, query, p.BookingID, p.AmountCents, p.Currency, p.Method,
		string(model.PaymentPending))
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	p.Status = model.PaymentPending
	return nil
}

// GetActiveByBookingMethodTx returns the live intent for (booking,
// method), taking a row lock on it.  This pair is the idempotency key for
// intent creation: when a row exists in PENDING or PROCESSING the caller
// must return it instead of creating a duplicate.  (nil, nil) means no
// active intent exists.
func (r *PaymentRepo) GetActiveByBookingMethodTx(ctx context.Context, tx *sql.Tx, bookingID uint64, method model.PaymentMethod) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + `
                   FROM payments
                   WHERE booking_id = ? AND method = ? AND status IN ('PENDING','PROCESSING')
                   ORDER BY id ASC LIMIT 1 FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, query, bookingID, method))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// GetByID returns a payment by id.
func (r *PaymentRepo) GetByID(ctx context.Context, q Querier, paymentID uint64) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ?`
	p, err := scanPayment(q.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// LockByIDTx loads a payment and takes a row lock on it for state flips.
func (r *PaymentRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, paymentID uint64) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE id = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, query, paymentID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// LockByGatewayRefTx resolves a payment from its provider reference, used
// by the webhook path.  ErrPaymentNotFound when no payment carries the
// reference.
func (r *PaymentRepo) LockByGatewayRefTx(ctx context.Context, tx *sql.Tx, gatewayRef string) (*model.Payment, error) {
	const query = `SELECT ` + paymentColumns + ` FROM payments WHERE gateway_ref = ? FOR UPDATE`
	p, err := scanPayment(tx.QueryRowContext(ctx, query, gatewayRef))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPaymentNotFound
	}
	return p, err
}

// AttachGatewayRef stores the provider session reference and moves the
// payment PENDING→PROCESSING.  Guarded on PENDING: a timed-out gateway
// call leaves the row PENDING, and only the attempt that actually
// obtained a reference performs this flip.
func (r *PaymentRepo) AttachGatewayRef(ctx context.Context, q Querier, paymentID uint64, gatewayRef string) error {
	const query = `UPDATE payments SET gateway_ref = ?, status = 'PROCESSING'
                   WHERE id = ? AND status = 'PENDING'`
	res, err := q.ExecContext(ctx, query, gatewayRef, paymentID)
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

// CompleteTx flips a payment to COMPLETED with its transaction id and
// paid-at timestamp.  Legal from PENDING and PROCESSING; zero affected
// rows means the payment already reached a terminal state.
func (r *PaymentRepo) CompleteTx(ctx context.Context, tx *sql.Tx, paymentID uint64, transactionID string, at time.Time) error {
	const query = `UPDATE payments SET status = 'COMPLETED', transaction_id = ?, paid_at = ?
                   WHERE id = ? AND status IN ('PENDING','PROCESSING')`
	res, err := tx.ExecContext(ctx, query, transactionID, at.UTC().Format("2006-01-02 15:04:05"), paymentID)
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

// FailTx flips a payment to FAILED from a live state.
func (r *PaymentRepo) FailTx(ctx context.Context, tx *sql.Tx, paymentID uint64) error {
	const query = `UPDATE payments SET status = 'FAILED'
                   WHERE id = ? AND status IN ('PENDING','PROCESSING')`
	res, err := tx.ExecContext(ctx, query, paymentID)
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

// ApplyRefundTx records a refund.  The WHERE clause pins the previously
// observed status and refunded amount, so two concurrent refunds of the
// same payment cannot both apply; the loser gets ErrConflict and must
// re-read.
func (r *PaymentRepo) ApplyRefundTx(ctx context.Context, tx *sql.Tx, p *model.Payment, refundCents int64, newStatus model.PaymentStatus, at time.Time) error {
	const query = `UPDATE payments
                   SET refunded_cents = refunded_cents + ?, refunded_at = ?, status = ?
                   WHERE id = ? AND status = ? AND refunded_cents = ?`
	res, err := tx.ExecContext(ctx, query, refundCents, at.UTC().Format("2006-01-02 15:04:05"),
		string(newStatus), p.ID, string(p.Status), p.RefundedCents)
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
