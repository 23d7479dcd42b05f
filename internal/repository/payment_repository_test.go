package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zezo2030/hall-reservation/internal/model"
)

func newPaymentMock(t *testing.T) (*PaymentRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPaymentRepo(db), mock
}

func TestAttachGatewayRefOnlyFromPending(t *testing.T) {
	repo, mock := newPaymentMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE payments SET gateway_ref = ?, status = 'PROCESSING'")).
		WithArgs("pi_123", uint64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AttachGatewayRef(context.Background(), repo.DB(), 3, "pi_123")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// The refund update pins the observed status and refunded amount; when a
// concurrent refund got there first the pin misses and the caller must
// re-read instead of double-applying.
func TestApplyRefundTxConflictOnStaleRead(t *testing.T) {
	repo, mock := newPaymentMock(t)
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	p := &model.Payment{
		ID:            3,
		AmountCents:   50000,
		Status:        model.PaymentCompleted,
		RefundedCents: 0,
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET refunded_cents = refunded_cents + ?")).
		WithArgs(int64(20000), "2025-06-02 09:00:00", "PARTIALLY_REFUNDED",
			uint64(3), "COMPLETED", int64(0)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	tx, err := repo.DB().BeginTx(context.Background(), nil)
	require.NoError(t, err)
	err = repo.ApplyRefundTx(context.Background(), tx, p, 20000, model.PaymentPartiallyRefunded, at)
	assert.ErrorIs(t, err, ErrConflict)
	_ = tx.Rollback()
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetActiveByBookingMethodTxNilWhenAbsent(t *testing.T) {
	repo, mock := newPaymentMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("status IN ('PENDING','PROCESSING')")).
		WithArgs(uint64(42), model.MethodCard).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	tx, err := repo.DB().BeginTx(context.Background(), nil)
	require.NoError(t, err)
	p, err := repo.GetActiveByBookingMethodTx(context.Background(), tx, 42, model.MethodCard)
	require.NoError(t, err)
	assert.Nil(t, p)
	_ = tx.Rollback()
	assert.NoError(t, mock.ExpectationsWereMet())
}
