package pricing

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zezo2030/hall-reservation/internal/model"
)

func testHall() *model.Hall {
	return &model.Hall{
		ID:                7,
		Name:              "Grand Hall",
		Capacity:          50,
		BasePriceCents:    50000, // 500.00
		HourlyPriceCents:  10000, // 100.00/h
		PerPersonCents:    500,   // 5.00 per person above threshold
		PersonThreshold:   10,
		WeekdayMultiplier: decimal.NewFromInt(1),
		WeekendMultiplier: decimal.RequireFromString("1.5"),
		HolidayMultiplier: decimal.NewFromInt(2),
		OpenHour:          9,
		CloseHour:         23,
		IsActive:          true,
	}
}

func TestComputeWeekdayNoExtras(t *testing.T) {
	bd, err := Compute(Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC), // Monday
		DurationHours: 2,
		Persons:       8, // below threshold, no per-person charge
		DayType:       model.DayTypeWeekday,
	})
	require.NoError(t, err)
	// 50000 + 2*10000 = 70000, multiplier 1
	assert.Equal(t, int64(70000), bd.HallCents)
	assert.Equal(t, int64(70000), bd.TotalCents)
	assert.Equal(t, int64(0), bd.DiscountCents)
}

func TestComputeWeekendMultiplierAndPersons(t *testing.T) {
	bd, err := Compute(Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC), // Saturday
		DurationHours: 3,
		Persons:       25, // 15 above threshold
		DayType:       model.DayTypeWeekend,
	})
	require.NoError(t, err)
	// (50000 + 3*10000 + 15*500) * 1.5 = 87500 * 1.5 = 131250
	assert.Equal(t, int64(131250), bd.HallCents)
	assert.Equal(t, int64(131250), bd.TotalCents)
}

func TestComputeAddOnsAndPercentCoupon(t *testing.T) {
	coupon := &model.Coupon{
		Code: "SAVE10", Kind: model.CouponPercent, Value: 10,
		MinTotalCents: 50000, IsActive: true,
	}
	bd, err := Compute(Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DurationHours: 2,
		Persons:       8,
		DayType:       model.DayTypeWeekday,
		AddOns: []AddOnLine{
			{AddOnID: 1, Quantity: 2, UnitPriceCents: 2500},
			{AddOnID: 2, Quantity: 1, UnitPriceCents: 10000},
		},
		Coupon: coupon,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(15000), bd.AddOnsCents)
	// subtotal 85000, 10% = 8500
	assert.Equal(t, int64(8500), bd.DiscountCents)
	assert.Equal(t, int64(76500), bd.TotalCents)
}

func TestComputeFixedCouponCappedAtSubtotal(t *testing.T) {
	coupon := &model.Coupon{Code: "BIG", Kind: model.CouponFixed, Value: 999999, IsActive: true}
	bd, err := Compute(Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DurationHours: 1,
		Persons:       5,
		DayType:       model.DayTypeWeekday,
		Coupon:        coupon,
	})
	require.NoError(t, err)
	assert.Equal(t, bd.HallCents, bd.DiscountCents)
	assert.Equal(t, int64(0), bd.TotalCents)
}

func TestComputeCouponBelowMinimumDegradesSilently(t *testing.T) {
	coupon := &model.Coupon{
		Code: "SAVE10", Kind: model.CouponPercent, Value: 10,
		MinTotalCents: 10_000_000, IsActive: true,
	}
	req := Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DurationHours: 1,
		Persons:       5,
		DayType:       model.DayTypeWeekday,
		Coupon:        coupon,
	}
	bd, err := Compute(req)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bd.DiscountCents)

	req.EnforceCoupon = true
	_, err = Compute(req)
	assert.ErrorIs(t, err, ErrCouponNotApplicable)
}

func TestComputeExpiredCoupon(t *testing.T) {
	past := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	coupon := &model.Coupon{
		Code: "OLD", Kind: model.CouponFixed, Value: 1000,
		ExpiresAt: &past, IsActive: true,
	}
	bd, err := Compute(Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC),
		DurationHours: 1,
		Persons:       5,
		DayType:       model.DayTypeWeekday,
		Coupon:        coupon,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), bd.DiscountCents)
}

// Quoting must be deterministic: the reservation path recomputes the
// price inside its transaction and the two results have to agree.
func TestComputeDeterministic(t *testing.T) {
	req := Request{
		Hall:          testHall(),
		StartsAt:      time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC),
		DurationHours: 3,
		Persons:       25,
		DayType:       model.DayTypeWeekend,
		AddOns:        []AddOnLine{{AddOnID: 1, Quantity: 3, UnitPriceCents: 1234}},
		Coupon: &model.Coupon{
			Code: "SAVE10", Kind: model.CouponPercent, Value: 10, IsActive: true,
		},
	}
	first, err := Compute(req)
	require.NoError(t, err)
	second, err := Compute(req)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestWithinOperatingHours(t *testing.T) {
	h := testHall() // 9..23
	at := func(hour int) time.Time { return time.Date(2025, 3, 3, hour, 0, 0, 0, time.UTC) }
	assert.True(t, WithinOperatingHours(h, at(9), 2))
	assert.True(t, WithinOperatingHours(h, at(21), 2))
	assert.False(t, WithinOperatingHours(h, at(8), 1))
	assert.False(t, WithinOperatingHours(h, at(22), 2))

	h.CloseHour = 0 // treated as midnight
	assert.True(t, WithinOperatingHours(h, at(22), 2))
}

func TestOverlaps(t *testing.T) {
	day := func(hour int) time.Time { return time.Date(2025, 3, 1, hour, 0, 0, 0, time.UTC) }
	// existing booking 18:00 + 3h
	assert.True(t, Overlaps(day(19), day(21), day(18), day(21)))  // inside
	assert.True(t, Overlaps(day(17), day(19), day(18), day(21)))  // leading edge
	assert.False(t, Overlaps(day(21), day(23), day(18), day(21))) // back-to-back is fine
	assert.False(t, Overlaps(day(15), day(18), day(18), day(21))) // ends at start
}
