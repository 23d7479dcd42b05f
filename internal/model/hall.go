package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DayType classifies the calendar day a booking starts on.  It selects
// which multiplier from the hall's rate table applies to the quote.
type DayType string

const (
	DayTypeWeekday DayType = "WEEKDAY"
	DayTypeWeekend DayType = "WEEKEND"
	DayTypeHoliday DayType = "HOLIDAY"
)

// Hall represents a bookable venue unit within a branch.  Pricing is
// composed of a base component, an hourly component and a per-person
// component above a threshold; the sum is scaled by a day-type
// multiplier.  Halls are read-only from the engine's point of view and
// are mutated only by administrative collaborators.
//
// Fields:
//  ID                  – primary key identifier.
//  BranchID            – owning branch.
//  Name                – hall display name.
//  Capacity            – maximum number of persons.
//  BasePriceCents      – fixed price component in cents.
//  HourlyPriceCents    – price per booked hour in cents.
//  PerPersonCents      – price per person above PersonThreshold in cents.
//  PersonThreshold     – persons included in the base price.
//  WeekdayMultiplier   – rate multiplier applied on weekdays.
//  WeekendMultiplier   – rate multiplier applied on weekends.
//  HolidayMultiplier   – rate multiplier applied on holidays.
//  OpenHour, CloseHour – operating hours [open, close) in the branch's day.
//  IsActive            – whether the hall can currently be booked.
type Hall struct {
	ID                uint64          // halls.id
	BranchID          uint64          // halls.branch_id
	Name              string          // halls.name
	Capacity          uint32          // halls.capacity
	BasePriceCents    int64           // halls.base_price_cents
	HourlyPriceCents  int64           // halls.hourly_price_cents
	PerPersonCents    int64           // halls.per_person_cents
	PersonThreshold   uint32          // halls.person_threshold
	WeekdayMultiplier decimal.Decimal // halls.weekday_multiplier
	WeekendMultiplier decimal.Decimal // halls.weekend_multiplier
	HolidayMultiplier decimal.Decimal // halls.holiday_multiplier
	OpenHour          uint8           // halls.open_hour
	CloseHour         uint8           // halls.close_hour
	IsActive          bool            // halls.is_active
	CreatedAt         time.Time       // halls.created_at
	UpdatedAt         time.Time       // halls.updated_at
}

// MultiplierFor returns the rate multiplier for the given day type.
// A zero multiplier in the rate table is treated as "unset" and falls
// back to 1 so an incomplete table never zeroes a quote.
func (h *Hall) MultiplierFor(dt DayType) decimal.Decimal {
	var m decimal.Decimal
	switch dt {
	case DayTypeWeekend:
		m = h.WeekendMultiplier
	case DayTypeHoliday:
		m = h.HolidayMultiplier
	default:
		m = h.WeekdayMultiplier
	}
	if m.IsZero() {
		return decimal.NewFromInt(1)
	}
	return m
}

// DayTypeOf derives the day type of t, given whether the calendar date is
// a configured holiday.  Holidays win over weekends.
func DayTypeOf(t time.Time, isHoliday bool) DayType {
	if isHoliday {
		return DayTypeHoliday
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return DayTypeWeekend
	}
	return DayTypeWeekday
}

// AddOn is a purchasable extra offered by a branch (catering, equipment,
// decoration and the like).  Unit prices are always taken from this
// record, never from client input.
type AddOn struct {
	ID         uint64    // add_ons.id
	BranchID   uint64    // add_ons.branch_id
	Name       string    // add_ons.name
	PriceCents int64     // add_ons.price_cents
	IsActive   bool      // add_ons.is_active
	CreatedAt  time.Time // add_ons.created_at
}
