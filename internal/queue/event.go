// Package queue defines the events published to the message broker after
// successful state transitions.  Notification and loyalty collaborators
// consume them; the core never waits on either.
package queue

// Event types carried in BookingEvent.Type.
const (
	EventBookingCreated   = "booking.created"
	EventBookingConfirmed = "booking.confirmed"
	EventBookingCancelled = "booking.cancelled"
	EventPaymentRefunded  = "payment.refunded"
)

// BookingEvent is published on the booking.events queue after a core
// transaction commits.  It carries enough for downstream consumers to
// notify the customer or accrue loyalty points without querying the
// primary database.
type BookingEvent struct {
	Type          string `json:"type"`
	EventID       string `json:"event_id"`
	BookingID     uint64 `json:"booking_id"`
	UserID        uint64 `json:"user_id"`
	HallID        uint64 `json:"hall_id"`
	HallName      string `json:"hall_name,omitempty"`
	StartsAt      string `json:"starts_at,omitempty"`
	DurationHours uint32 `json:"duration_hours,omitempty"`
	Persons       uint32 `json:"persons,omitempty"`
	TotalCents    int64  `json:"total_cents,omitempty"`
	RefundCents   int64  `json:"refund_cents,omitempty"`
	Reason        string `json:"reason,omitempty"`
	OccurredAt    string `json:"occurred_at"`
}
