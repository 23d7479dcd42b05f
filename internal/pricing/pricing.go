// Package pricing implements the pure half of the quote engine: given a
// hall, a requested window and the resolved calendar context it computes
// the price breakdown deterministically.  Nothing in this package touches
// the database, which is what allows the reservation path to re-run the
// same computation inside its transaction and obtain an identical result.
package pricing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zezo2030/hall-reservation/internal/model"
)

// ErrCouponNotApplicable is returned by Compute when discount enforcement
// is requested and the coupon does not apply.  Without enforcement an
// unusable coupon silently degrades to a zero discount.
var ErrCouponNotApplicable = errors.New("coupon not applicable")

// AddOnLine is one resolved add-on entry in a quote request.  The unit
// price must come from the catalog, never from client input.
type AddOnLine struct {
	AddOnID        uint64
	Quantity       uint32
	UnitPriceCents int64
}

// Request carries everything Compute needs.  DayType and Coupon are
// resolved by the caller (hall repository / coupon repository) so the
// computation itself stays side-effect free.
type Request struct {
	Hall          *model.Hall
	StartsAt      time.Time
	DurationHours uint32
	Persons       uint32
	DayType       model.DayType
	AddOns        []AddOnLine
	Coupon        *model.Coupon // nil when no code was supplied or it was unknown
	EnforceCoupon bool          // fail instead of degrading when the coupon is unusable
}

// Breakdown is the priced result of a quote.  All amounts are cents.
type Breakdown struct {
	HallID        uint64          `json:"hall_id"`
	HallName      string          `json:"hall_name"`
	DayType       model.DayType   `json:"day_type"`
	Multiplier    decimal.Decimal `json:"multiplier"`
	HallCents     int64           `json:"hall_cents"`
	AddOnsCents   int64           `json:"add_ons_cents"`
	DiscountCents int64           `json:"discount_cents"`
	TotalCents    int64           `json:"total_cents"`
}

// Compute prices a request against its hall.  The hall component is
// (base + hourly*duration + perPerson*max(0, persons-threshold)) scaled
// by the day-type multiplier and rounded half-up to whole cents; add-on
// cost is added before the coupon discount is applied.  The discount is
// capped at the pre-discount total so a fixed coupon can never drive the
// price negative.
func Compute(req Request) (Breakdown, error) {
	h := req.Hall
	mult := h.MultiplierFor(req.DayType)

	extraPersons := int64(0)
	if req.Persons > h.PersonThreshold {
		extraPersons = int64(req.Persons - h.PersonThreshold)
	}
	raw := h.BasePriceCents +
		h.HourlyPriceCents*int64(req.DurationHours) +
		h.PerPersonCents*extraPersons
	hallCents := decimal.NewFromInt(raw).Mul(mult).Round(0).IntPart()

	addOns := int64(0)
	for _, line := range req.AddOns {
		addOns += line.UnitPriceCents * int64(line.Quantity)
	}

	subtotal := hallCents + addOns
	discount, err := resolveDiscount(req, subtotal)
	if err != nil {
		return Breakdown{}, err
	}

	return Breakdown{
		HallID:        h.ID,
		HallName:      h.Name,
		DayType:       req.DayType,
		Multiplier:    mult,
		HallCents:     hallCents,
		AddOnsCents:   addOns,
		DiscountCents: discount,
		TotalCents:    subtotal - discount,
	}, nil
}

// resolveDiscount applies the coupon to the pre-discount subtotal.
func resolveDiscount(req Request, subtotal int64) (int64, error) {
	c := req.Coupon
	if c == nil {
		if req.EnforceCoupon {
			return 0, ErrCouponNotApplicable
		}
		return 0, nil
	}
	if !c.UsableAt(req.StartsAt, subtotal) {
		if req.EnforceCoupon {
			return 0, ErrCouponNotApplicable
		}
		return 0, nil
	}
	var discount int64
	switch c.Kind {
	case model.CouponPercent:
		discount = decimal.NewFromInt(subtotal).
			Mul(decimal.NewFromInt(c.Value)).
			Div(decimal.NewFromInt(100)).
			Round(0).IntPart()
	case model.CouponFixed:
		discount = c.Value
	}
	if discount > subtotal {
		discount = subtotal
	}
	if discount < 0 {
		discount = 0
	}
	return discount, nil
}

// WithinOperatingHours reports whether the window [start, start+duration)
// fits inside the hall's operating hours on the start day.  A CloseHour
// of 24 (or 0 treated as midnight) allows bookings running to the end of
// the day.
func WithinOperatingHours(h *model.Hall, start time.Time, durationHours uint32) bool {
	open := int(h.OpenHour)
	close := int(h.CloseHour)
	if close == 0 {
		close = 24
	}
	sh := start.Hour()
	return sh >= open && sh+int(durationHours) <= close
}

// Overlaps reports whether the half-open intervals [aStart, aEnd) and
// [bStart, bEnd) intersect.  This is the in-memory mirror of the SQL
// overlap predicate used by the booking repository.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}
