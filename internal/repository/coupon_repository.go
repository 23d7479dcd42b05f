package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// CouponRepo resolves discount codes during quoting.  Unknown codes are
// not an error at this layer: the quote engine degrades them to a zero
// discount unless the caller requested enforcement.
type CouponRepo struct {
	db *sql.DB
}

// NewCouponRepo returns a new CouponRepo bound to the given database.
func NewCouponRepo(db *sql.DB) *CouponRepo { return &CouponRepo{db: db} }

// GetByCode returns the coupon for a code, or (nil, nil) when the code is
// unknown.  Codes are matched case-insensitively by normalizing to upper
// case, matching how administrative tooling stores them.
func (r *CouponRepo) GetByCode(ctx context.Context, q Querier, code string) (*model.Coupon, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, nil
	}
	const query = `SELECT code, kind, value, min_total_cents, expires_at, is_active, created_at
                   FROM coupons WHERE code = ?`
	var c model.Coupon
	var expires sql.NullTime
	err := q.QueryRowContext(ctx, query, code).Scan(
		&c.Code, &c.Kind, &c.Value, &c.MinTotalCents, &expires, &c.IsActive, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if expires.Valid {
		e := expires.Time
		c.ExpiresAt = &e
	}
	return &c, nil
}
