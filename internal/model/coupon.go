package model

import "time"

// CouponKind distinguishes percentage discounts from fixed-amount ones.
type CouponKind string

const (
	CouponPercent CouponKind = "PERCENT"
	CouponFixed   CouponKind = "FIXED"
)

// Coupon is a discount code resolved during quoting.  Value is percent
// points for PERCENT coupons and cents for FIXED coupons.  A coupon only
// applies when the pre-discount total reaches MinTotalCents and the
// coupon is active and unexpired at quote time.
type Coupon struct {
	Code          string     // coupons.code (primary key)
	Kind          CouponKind // coupons.kind
	Value         int64      // coupons.value
	MinTotalCents int64      // coupons.min_total_cents
	ExpiresAt     *time.Time // coupons.expires_at (nullable, nil = no expiry)
	IsActive      bool       // coupons.is_active
	CreatedAt     time.Time  // coupons.created_at
}

// UsableAt reports whether the coupon can be applied at the given time to
// a pre-discount total of totalCents.
func (c *Coupon) UsableAt(now time.Time, totalCents int64) bool {
	if !c.IsActive {
		return false
	}
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return false
	}
	return totalCents >= c.MinTotalCents
}
