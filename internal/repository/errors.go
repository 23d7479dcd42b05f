// Package repository implements raw-SQL data access for the reservation
// and settlement engine.  This file defines sentinel error values reused
// across repositories and handlers.  Handlers translate them into HTTP
// responses: not-found errors become 404, ErrConflict 409, and
// ErrInvalidState 400 with a human-readable reason.  Ownership failures
// are reported as the entity's not-found error so endpoints do not leak
// which ids exist.
package repository

import "errors"

// ErrHallNotFound is returned when a hall does not exist or is inactive.
var ErrHallNotFound = errors.New("hall not found")

// ErrBookingNotFound is returned when a booking does not exist.
var ErrBookingNotFound = errors.New("booking not found")

// ErrTicketNotFound is returned when no ticket matches a lookup; at scan
// time this is surfaced as "Invalid code".
var ErrTicketNotFound = errors.New("ticket not found")

// ErrPaymentNotFound is returned when a payment does not exist.
var ErrPaymentNotFound = errors.New("payment not found")

// ErrConflict signals that an operation cannot proceed because of
// conflicting state, such as a hall already claimed for an overlapping
// window or a conditional status update that matched zero rows because a
// concurrent transaction won the race.
var ErrConflict = errors.New("conflict")

// ErrInvalidState is returned when an operation is illegal for the
// entity's current status, e.g. confirming a cancelled booking or
// refunding a payment that never completed.
var ErrInvalidState = errors.New("invalid state")
