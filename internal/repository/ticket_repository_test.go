package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTicketMock(t *testing.T) (*TicketRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewTicketRepo(db), mock
}

// Two devices scanning the same ticket: the first update matches a VALID
// row, the second matches nothing and must surface ErrConflict.
func TestMarkUsedExactlyOnce(t *testing.T) {
	repo, mock := newTicketMock(t)
	at := time.Date(2025, 6, 1, 18, 30, 0, 0, time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("SET status = 'USED'")).
		WithArgs("2025-06-01 18:30:00", uint64(9), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("SET status = 'USED'")).
		WithArgs("2025-06-01 18:30:00", uint64(9), uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkUsed(context.Background(), repo.DB(), 5, 9, at))
	err := repo.MarkUsed(context.Background(), repo.DB(), 5, 9, at)
	assert.ErrorIs(t, err, ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSetHolderRequiresValidTicket(t *testing.T) {
	repo, mock := newTicketMock(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE tickets SET holder_name")).
		WithArgs("Sam", "+4711", uint64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.SetHolder(context.Background(), repo.DB(), 5, "Sam", "+4711")
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHashNotFound(t *testing.T) {
	repo, mock := newTicketMock(t)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE token_hash = ?")).
		WithArgs("deadbeef").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByHash(context.Background(), repo.DB(), "deadbeef")
	assert.ErrorIs(t, err, ErrTicketNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
