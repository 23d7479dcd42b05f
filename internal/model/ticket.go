package model

import "time"

// TicketStatus enumerates admission credential states.  USED is reached
// exactly once via an atomic conditional update at scan time.  EXPIRED is
// a derived state: rows are not eagerly flipped when the validity window
// elapses; the scan path reports expiry from the window itself.
type TicketStatus string

const (
	TicketValid     TicketStatus = "VALID"
	TicketUsed      TicketStatus = "USED"
	TicketExpired   TicketStatus = "EXPIRED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Ticket is one admission credential per person in a booking.  Only a
// SHA-256 digest of the admission token is persisted; the raw token is
// returned once at issuance and cannot be recovered from storage.
//
// Fields:
//  ID          – primary key identifier.
//  BookingID   – owning booking; tickets are cancelled with it.
//  TokenHash   – SHA-256 hex digest of the raw admission token.
//  Status      – lifecycle state, see TicketStatus.
//  ValidFrom   – start of validity, mirrored from the booking window.
//  ValidUntil  – end of validity (inclusive at scan time).
//  ScannedAt   – when the ticket was consumed at the door.
//  ScannedBy   – staff user who performed the scan.
//  HolderName  – optional holder override for gifted tickets.
//  HolderPhone – optional holder phone override.
type Ticket struct {
	ID          uint64       // tickets.id
	BookingID   uint64       // tickets.booking_id
	TokenHash   string       // tickets.token_hash
	Status      TicketStatus // tickets.status
	ValidFrom   time.Time    // tickets.valid_from
	ValidUntil  time.Time    // tickets.valid_until
	ScannedAt   *time.Time   // tickets.scanned_at (nullable)
	ScannedBy   *uint64      // tickets.scanned_by (nullable)
	HolderName  *string      // tickets.holder_name (nullable)
	HolderPhone *string      // tickets.holder_phone (nullable)
	CreatedAt   time.Time    // tickets.created_at
	UpdatedAt   time.Time    // tickets.updated_at
}

// ExpiredAt reports whether the ticket's validity window has elapsed at
// the given instant without the ticket being scanned.
func (t *Ticket) ExpiredAt(now time.Time) bool {
	return t.Status == TicketValid && now.After(t.ValidUntil)
}
