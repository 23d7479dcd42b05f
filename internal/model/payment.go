package model

import "time"

// PaymentStatus enumerates the settlement state machine.  Legal moves:
// PENDING→PROCESSING→COMPLETED, FAILED from PENDING/PROCESSING, and the
// refund states only from COMPLETED (or PARTIALLY_REFUNDED for follow-up
// refunds).  There is no way out of REFUNDED or FAILED.
type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "PENDING"
	PaymentProcessing        PaymentStatus = "PROCESSING"
	PaymentCompleted         PaymentStatus = "COMPLETED"
	PaymentFailed            PaymentStatus = "FAILED"
	PaymentRefunded          PaymentStatus = "REFUNDED"
	PaymentPartiallyRefunded PaymentStatus = "PARTIALLY_REFUNDED"
)

// CanTransitionTo reports whether moving from s to next is legal.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentPending:
		return next == PaymentProcessing || next == PaymentCompleted || next == PaymentFailed
	case PaymentProcessing:
		return next == PaymentCompleted || next == PaymentFailed
	case PaymentCompleted:
		return next == PaymentRefunded || next == PaymentPartiallyRefunded
	case PaymentPartiallyRefunded:
		return next == PaymentRefunded || next == PaymentPartiallyRefunded
	}
	return false
}

// IsActive reports whether the payment is a live intent.  At most one
// active payment may exist per (booking, method) pair; that pair is the
// idempotency key for intent creation.
func (s PaymentStatus) IsActive() bool {
	return s == PaymentPending || s == PaymentProcessing
}

// Refundable reports whether a refund may be applied in this state.
func (s PaymentStatus) Refundable() bool {
	return s == PaymentCompleted || s == PaymentPartiallyRefunded
}

// PaymentMethod enumerates how a customer pays.
type PaymentMethod string

const (
	MethodCard         PaymentMethod = "CARD"
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodWallet       PaymentMethod = "WALLET"
	MethodCash         PaymentMethod = "CASH"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodWallet, MethodCash:
		return true
	}
	return false
}

// Payment is one charge attempt against a booking.  A booking may have
// several payment rows over its lifetime (failed attempts, different
// methods) but at most one in an active state per method.  Payments are
// kept after booking cancellation for audit and refund purposes.
//
// Fields:
//  ID            – primary key identifier.
//  BookingID     – booking being paid for (reference, not ownership).
//  AmountCents   – charged amount in cents; frozen from the booking total.
//  Currency      – ISO currency code.
//  Method        – payment method, see PaymentMethod.
//  Status        – settlement state, see PaymentStatus.
//  GatewayRef    – provider-side session/intent reference.
//  TransactionID – internal transaction id assigned on completion.
//  PaidAt        – when the payment completed.
//  RefundedCents – cumulative refunded amount; never exceeds AmountCents.
//  RefundedAt    – when the last refund was applied.
type Payment struct {
	ID            uint64        // payments.id
	BookingID     uint64        // payments.booking_id
	AmountCents   int64         // payments.amount_cents
	Currency      string        // payments.currency
	Method        PaymentMethod // payments.method
	Status        PaymentStatus // payments.status
	GatewayRef    *string       // payments.gateway_ref (nullable)
	TransactionID *string       // payments.transaction_id (nullable)
	PaidAt        *time.Time    // payments.paid_at (nullable)
	RefundedCents int64         // payments.refunded_cents
	RefundedAt    *time.Time    // payments.refunded_at (nullable)
	CreatedAt     time.Time     // payments.created_at
	UpdatedAt     time.Time     // payments.updated_at
}

// RemainingCents returns the amount still refundable.
func (p *Payment) RemainingCents() int64 {
	return p.AmountCents - p.RefundedCents
}
