package model

import "time"

// BookingStatus enumerates the lifecycle states of a booking.  The legal
// transitions are PENDING→CONFIRMED→COMPLETED and
// PENDING/CONFIRMED→CANCELLED; a booking never moves backwards.
type BookingStatus string

const (
	BookingPending   BookingStatus = "PENDING"
	BookingConfirmed BookingStatus = "CONFIRMED"
	BookingCompleted BookingStatus = "COMPLETED"
	BookingCancelled BookingStatus = "CANCELLED"
)

// CanTransitionTo reports whether moving from s to next is legal.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	switch s {
	case BookingPending:
		return next == BookingConfirmed || next == BookingCancelled
	case BookingConfirmed:
		return next == BookingCompleted || next == BookingCancelled
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s BookingStatus) IsTerminal() bool {
	return s == BookingCompleted || s == BookingCancelled
}

// Booking records a customer's claim on a hall for the half-open window
// [StartsAt, StartsAt+DurationHours).  The total price is computed
// server-side inside the creation transaction and is never taken from
// client input.  Exactly Persons tickets are issued with the booking.
//
// Fields:
//  ID            – primary key identifier.
//  UserID        – customer who owns the booking.
//  HallID        – hall being claimed.
//  BranchID      – branch the hall belongs to (denormalized for listings).
//  StartsAt      – start of the window, UTC.
//  DurationHours – length of the window in whole hours.
//  Persons       – number of attendees; equals the ticket count at creation.
//  TotalCents    – final price in cents after discount.
//  DiscountCents – discount applied in cents.
//  CouponCode    – coupon that produced the discount, if any.
//  Status        – lifecycle state, see BookingStatus.
//  CancelReason  – free-text reason recorded on cancellation.
//  CancelledAt   – when the booking was cancelled.
//  ContactName   – contact person for the event.
//  ContactPhone  – contact phone number.
type Booking struct {
	ID            uint64        // bookings.id
	UserID        uint64        // bookings.user_id
	HallID        uint64        // bookings.hall_id
	BranchID      uint64        // bookings.branch_id
	StartsAt      time.Time     // bookings.starts_at
	DurationHours uint32        // bookings.duration_hours
	Persons       uint32        // bookings.persons
	TotalCents    int64         // bookings.total_cents
	DiscountCents int64         // bookings.discount_cents
	CouponCode    *string       // bookings.coupon_code (nullable)
	Status        BookingStatus // bookings.status
	CancelReason  *string       // bookings.cancel_reason (nullable)
	CancelledAt   *time.Time    // bookings.cancelled_at (nullable)
	ContactName   string        // bookings.contact_name
	ContactPhone  string        // bookings.contact_phone
	CreatedAt     time.Time     // bookings.created_at
	UpdatedAt     time.Time     // bookings.updated_at
}

// EndsAt returns the exclusive end of the booked window.
func (b *Booking) EndsAt() time.Time {
	return b.StartsAt.Add(time.Duration(b.DurationHours) * time.Hour)
}

// BookingAddOn links a booking to a purchased add-on.  The unit price is
// frozen at booking time so later catalog changes do not alter history.
type BookingAddOn struct {
	ID             uint64 // booking_add_ons.id
	BookingID      uint64 // booking_add_ons.booking_id
	AddOnID        uint64 // booking_add_ons.add_on_id
	Quantity       uint32 // booking_add_ons.quantity
	UnitPriceCents int64  // booking_add_ons.unit_price_cents
}
