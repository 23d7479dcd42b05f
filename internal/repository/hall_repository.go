package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// HallRepo provides read access to halls, the holiday calendar and the
// add-on catalog.  Halls are owned by administrative collaborators; the
// engine never mutates them, but it does take a row lock on a hall while
// checking availability so concurrent bookings for the same hall
// serialize.
type HallRepo struct {
	db *sql.DB
}

// NewHallRepo returns a new HallRepo bound to the given database.
func NewHallRepo(db *sql.DB) *HallRepo { return &HallRepo{db: db} }

// DB exposes the underlying handle so handlers can begin transactions.
func (r *HallRepo) DB() *sql.DB { return r.db }

const hallColumns = `id, branch_id, name, capacity, base_price_cents, hourly_price_cents,
       per_person_cents, person_threshold, weekday_multiplier, weekend_multiplier,
       holiday_multiplier, open_hour, close_hour, is_active, created_at, updated_at`

func scanHall(row interface{ Scan(dest ...any) error }) (*model.Hall, error) {
	var h model.Hall
	err := row.Scan(
		&h.ID, &h.BranchID, &h.Name, &h.Capacity, &h.BasePriceCents, &h.HourlyPriceCents,
		&h.PerPersonCents, &h.PersonThreshold, &h.WeekdayMultiplier, &h.WeekendMultiplier,
		&h.HolidayMultiplier, &h.OpenHour, &h.CloseHour, &h.IsActive, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// GetByID returns an active hall by id.  ErrHallNotFound is returned for
// missing or inactive halls.
func (r *HallRepo) GetByID(ctx context.Context, q Querier, hallID uint64) (*model.Hall, error) {
	const query = `SELECT ` + hallColumns + ` FROM halls WHERE id = ? AND is_active = 1`
	h, err := scanHall(q.QueryRowContext(ctx, query, hallID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHallNotFound
	}
	return h, err
}

// LockByIDTx loads a hall and takes a row lock on it for the duration of
// the transaction.  The lock is the mutual-exclusion point for the
// overlap check: two concurrent booking attempts on the same hall cannot
// both hold it, so they cannot both read "no conflict" and insert.
func (r *HallRepo) LockByIDTx(ctx context.Context, tx *sql.Tx, hallID uint64) (*model.Hall, error) {
	const query = `SELECT ` + hallColumns + ` FROM halls WHERE id = ? AND is_active = 1 FOR UPDATE`
	h, err := scanHall(tx.QueryRowContext(ctx, query, hallID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrHallNotFound
	}
	return h, err
}

// CandidatesByBranch returns active halls in a branch with capacity for
// the requested persons, ordered by capacity then id.  The ordering makes
// hall auto-selection deterministic: the first candidate that passes the
// availability check is the minimum-capacity match.
func (r *HallRepo) CandidatesByBranch(ctx context.Context, q Querier, branchID uint64, persons uint32) ([]model.Hall, error) {
	const query = `SELECT ` + hallColumns + `
                   FROM halls
                   WHERE branch_id = ? AND is_active = 1 AND capacity >= ?
                   ORDER BY capacity ASC, id ASC`
	rows, err := q.QueryContext(ctx, query, branchID, persons)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	halls := make([]model.Hall, 0)
	for rows.Next() {
		h, err := scanHall(rows)
		if err != nil {
			return nil, err
		}
		halls = append(halls, *h)
	}
	return halls, rows.Err()
}

// IsHoliday reports whether the calendar date of t (UTC) appears in the
// holidays table.
func (r *HallRepo) IsHoliday(ctx context.Context, q Querier, t time.Time) (bool, error) {
	const query = `SELECT COUNT(*) FROM holidays WHERE day = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, t.UTC().Format("2006-01-02")).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActiveAddOnsByIDs resolves catalog add-ons for a branch.  Unknown or
// inactive ids are simply absent from the result map; the caller decides
// whether that is an error.
func (r *HallRepo) ActiveAddOnsByIDs(ctx context.Context, q Querier, branchID uint64, ids []uint64) (map[uint64]model.AddOn, error) {
	out := make(map[uint64]model.AddOn, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	query := `SELECT id, branch_id, name, price_cents, is_active, created_at
              FROM add_ons WHERE branch_id = ? AND is_active = 1 AND id IN (`
	args := make([]any, 0, len(ids)+1)
	args = append(args, branchID)
	for i, id := range ids {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += ")"
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var a model.AddOn
		if err := rows.Scan(&a.ID, &a.BranchID, &a.Name, &a.PriceCents, &a.IsActive, &a.CreatedAt); err != nil {
			return nil, err
		}
		out[a.ID] = a
	}
	return out, rows.Err()
}
