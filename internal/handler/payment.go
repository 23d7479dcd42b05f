package handler

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/zezo2030/hall-reservation/internal/cache"
	"github.com/zezo2030/hall-reservation/internal/gateway"
	"github.com/zezo2030/hall-reservation/internal/model"
	"github.com/zezo2030/hall-reservation/internal/queue"
	"github.com/zezo2030/hall-reservation/internal/repository"
)

// PaymentHandler owns settlement: intent creation, confirmation, webhook
// ingestion and refunds.  Every effectful transition is a conditional
// update keyed on the previously observed state, which is what makes
// retries and provider redeliveries collapse onto a single outcome.
//
// Provider calls never run inside a database transaction.  The intent
// path commits the PENDING row first, then talks to the provider; a
// timeout leaves the row PENDING so a retry re-enters the idempotent
// branch instead of double-charging.
type PaymentHandler struct {
	payments *repository.PaymentRepo
	bookings *repository.BookingRepo
	tickets  *repository.TicketRepo
	gw       gateway.Gateway
	store    *cache.Store
	log      *logrus.Logger
	currency string
	timeout  time.Duration
}

// NewPaymentHandler wires the settlement endpoints to their collaborators.
func NewPaymentHandler(payments *repository.PaymentRepo, bookings *repository.BookingRepo,
	tickets *repository.TicketRepo, gw gateway.Gateway, store *cache.Store,
	log *logrus.Logger, currency string, timeout time.Duration) *PaymentHandler {
	return &PaymentHandler{
		payments: payments, bookings: bookings, tickets: tickets,
		gw: gw, store: store, log: log, currency: currency, timeout: timeout,
	}
}

type intentRequest struct {
	BookingID uint64 `json:"booking_id"`
	Method    string `json:"method"`
}

// CreateIntent handles POST /v1/payments/intent.  (booking, method) is
// the idempotency key: while an intent for the pair is PENDING or
// PROCESSING, repeated calls return it instead of creating another.
func (h *PaymentHandler) CreateIntent(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	var req intentRequest
	if err := c.Bind(&req); err != nil || req.BookingID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking_id and method are required"})
	}
	method := model.PaymentMethod(req.Method)
	if !method.Valid() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown payment method"})
	}

	ctx := c.Request().Context()
	tx, err := h.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	booking, err := h.bookings.LockByIDTx(ctx, tx, req.BookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
	}
	if booking.UserID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	if booking.Status != model.BookingPending {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "booking is " + string(booking.Status) + " and cannot be paid",
		})
	}

	payment, err := h.payments.GetActiveByBookingMethodTx(ctx, tx, booking.ID, method)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
	}
	if payment != nil && payment.GatewayRef != nil {
		// Existing live intent with a provider session: return it as-is.
		// The client secret was handed out when the session was opened.
		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
		}
		committed = true
		return c.JSON(http.StatusOK, intentView(payment, ""))
	}
	if payment == nil {
		payment = &model.Payment{
			BookingID:   booking.ID,
			AmountCents: booking.TotalCents,
			Currency:    h.currency,
			Method:      method,
		}
		if err := h.payments.CreateTx(ctx, tx, payment); err != nil {
			h.log.WithError(err).Error("payment: intent insert failed")
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
		}
	}
	// Commit before the provider call: the PENDING row must survive a
	// gateway timeout so the retry finds it.
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
	}
	committed = true

	gwCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	session, err := h.gw.CreateSession(gwCtx, gateway.SessionRequest{
		PaymentID:   payment.ID,
		BookingID:   booking.ID,
		AmountCents: payment.AmountCents,
		Currency:    payment.Currency,
	})
	if err != nil {
		h.log.WithError(err).WithField("payment_id", payment.ID).Warn("payment: gateway session failed")
		return c.JSON(http.StatusBadGateway, echo.Map{
			"error":      "payment provider unavailable, retry later",
			"payment_id": payment.ID,
		})
	}

	if err := h.payments.AttachGatewayRef(ctx, h.payments.DB(), payment.ID, session.Reference); err != nil {
		// A concurrent webhook or retry already moved the payment on;
		// report the row as it stands now.
		current, gerr := h.payments.GetByID(ctx, h.payments.DB(), payment.ID)
		if gerr != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create intent"})
		}
		return c.JSON(http.StatusOK, intentView(current, ""))
	}
	payment.Status = model.PaymentProcessing
	payment.GatewayRef = &session.Reference
	return c.JSON(http.StatusCreated, intentView(payment, session.ClientSecret))
}

type confirmRequest struct {
	PaymentID uint64         `json:"payment_id"`
	Payload   map[string]any `json:"payload"`
}

// Confirm handles POST /v1/payments/confirm.  Payment completion and
// booking confirmation commit in the same transaction; a booking already
// cancelled by then rejects the confirm rather than being resurrected.
func (h *PaymentHandler) Confirm(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	var req confirmRequest
	if err := c.Bind(&req); err != nil || req.PaymentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id is required"})
	}

	ctx := c.Request().Context()
	tx, err := h.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	payment, err := h.payments.LockByIDTx(ctx, tx, req.PaymentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm payment"})
	}
	booking, err := h.bookings.LockByIDTx(ctx, tx, payment.BookingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm payment"})
	}
	if booking.UserID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
	}

	if payment.Status == model.PaymentCompleted {
		// Replayed confirm: acknowledge without re-applying effects.
		return c.JSON(http.StatusOK, echo.Map{
			"success":    true,
			"payment_id": payment.ID,
			"status":     string(payment.Status),
		})
	}
	if !payment.Status.IsActive() {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "payment is " + string(payment.Status) + " and cannot be confirmed",
		})
	}
	if payment.GatewayRef == nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment intent has no provider session"})
	}
	if booking.Status == model.BookingCancelled || booking.Status == model.BookingCompleted {
		return c.JSON(http.StatusConflict, echo.Map{
			"error": "booking is " + string(booking.Status) + " and can no longer be paid",
		})
	}
	if err := h.gw.VerifyPayload(*payment.GatewayRef, req.Payload); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "confirmation payload does not match the payment"})
	}

	now := time.Now().UTC()
	if err := h.payments.CompleteTx(ctx, tx, payment.ID, uuid.NewString(), now); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm payment"})
	}
	if booking.Status == model.BookingPending {
		if err := h.bookings.ConfirmTx(ctx, tx, booking.ID); err != nil {
			return c.JSON(http.StatusConflict, echo.Map{"error": "booking can no longer be paid"})
		}
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to confirm payment"})
	}
	committed = true

	h.afterConfirmed(booking, payment)
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"payment_id": payment.ID,
		"booking_id": booking.ID,
		"status":     string(model.PaymentCompleted),
	})
}

// Webhook handles POST /v1/payments/webhook.  Deliveries are always
// acknowledged once authenticated; redeliveries of an already-applied
// event short-circuit on the payment's terminal state.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	event, err := h.gw.ParseWebhookEvent(body, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid webhook"})
	}
	if event.Type == gateway.EventIgnored {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	ctx := c.Request().Context()
	tx, err := h.payments.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	payment, err := h.payments.LockByGatewayRefTx(ctx, tx, event.Reference)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		// Authenticated but unknown reference: acknowledge so the
		// provider stops redelivering, and leave a trace.
		h.log.WithField("reference", event.Reference).Warn("webhook: unknown payment reference")
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
	}
	if !payment.Status.IsActive() {
		// Redelivery after the transition already applied.
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	now := time.Now().UTC()
	switch event.Type {
	case gateway.EventPaymentSucceeded:
		if err := h.payments.CompleteTx(ctx, tx, payment.ID, uuid.NewString(), now); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
		}
		booking, err := h.bookings.LockByIDTx(ctx, tx, payment.BookingID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
		}
		if booking.Status == model.BookingPending {
			if err := h.bookings.ConfirmTx(ctx, tx, booking.ID); err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
			}
		}
		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
		}
		committed = true
		h.afterConfirmed(booking, payment)
	case gateway.EventPaymentFailed:
		if err := h.payments.FailTx(ctx, tx, payment.ID); err != nil && !errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
		}
		if err := tx.Commit(); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to process webhook"})
		}
		committed = true
		h.log.WithField("payment_id", payment.ID).Info("payment failed via webhook")
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

type refundRequest struct {
	PaymentID   uint64 `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"` // zero means refund the remaining balance
	Reason      string `json:"reason"`
}

// Refund handles POST /v1/payments/refund (staff/admin only).  The
// database update is a compare-and-swap pinned on the observed status
// and refunded amount, so two concurrent refunds cannot both apply.  A
// refund that empties the payment cancels the booking and its tickets.
func (h *PaymentHandler) Refund(c echo.Context) error {
	var req refundRequest
	if err := c.Bind(&req); err != nil || req.PaymentID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment_id is required"})
	}

	ctx := c.Request().Context()
	db := h.payments.DB()
	payment, err := h.payments.GetByID(ctx, db, req.PaymentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "payment not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
	}
	if !payment.Status.Refundable() {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "payment is " + string(payment.Status) + " and cannot be refunded",
		})
	}
	amount := req.AmountCents
	if amount == 0 {
		amount = payment.RemainingCents()
	}
	if amount <= 0 || amount > payment.RemainingCents() {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refund amount exceeds the remaining balance"})
	}

	// Provider first, outside any transaction.  If the provider refuses,
	// nothing changed locally.
	if payment.GatewayRef != nil {
		gwCtx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()
		if err := h.gw.Refund(gwCtx, *payment.GatewayRef, amount); err != nil {
			h.log.WithError(err).WithField("payment_id", payment.ID).Warn("refund: gateway call failed")
			return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider refused the refund"})
		}
	}

	newStatus := model.PaymentPartiallyRefunded
	if amount == payment.RemainingCents() {
		newStatus = model.PaymentRefunded
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := h.payments.ApplyRefundTx(ctx, tx, payment, amount, newStatus, time.Now().UTC()); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "payment changed concurrently, retry"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
	}

	booking, err := h.bookings.LockByIDTx(ctx, tx, payment.BookingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
	}
	if newStatus == model.PaymentRefunded && !booking.Status.IsTerminal() {
		reason := req.Reason
		if reason == "" {
			reason = "payment fully refunded"
		}
		if err := h.bookings.CancelTx(ctx, tx, booking.ID, reason, time.Now().UTC()); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
		}
		if err := h.tickets.CancelByBookingTx(ctx, tx, booking.ID); err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
		}
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to refund"})
	}
	committed = true

	h.store.InvalidateUserBookings(ctx, booking.UserID)
	go func(ev queue.BookingEvent) {
		_ = queue.Publish(context.Background(), h.log, ev)
	}(queue.BookingEvent{
		Type:        queue.EventPaymentRefunded,
		BookingID:   booking.ID,
		UserID:      booking.UserID,
		HallID:      booking.HallID,
		RefundCents: amount,
		Reason:      req.Reason,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"success":        true,
		"payment_id":     payment.ID,
		"refunded_cents": payment.RefundedCents + amount,
		"status":         string(newStatus),
	})
}

// afterConfirmed runs the post-commit side effects shared by the confirm
// and webhook success paths.
func (h *PaymentHandler) afterConfirmed(booking *model.Booking, payment *model.Payment) {
	h.store.InvalidateUserBookings(context.Background(), booking.UserID)
	go func(ev queue.BookingEvent) {
		_ = queue.Publish(context.Background(), h.log, ev)
	}(queue.BookingEvent{
		Type:       queue.EventBookingConfirmed,
		BookingID:  booking.ID,
		UserID:     booking.UserID,
		HallID:     booking.HallID,
		TotalCents: payment.AmountCents,
	})
	h.log.WithFields(logrus.Fields{
		"payment_id": payment.ID,
		"booking_id": booking.ID,
	}).Info("payment completed")
}

// intentView shapes a payment intent for JSON responses.  clientSecret is
// only non-empty right after a provider session was opened.
func intentView(p *model.Payment, clientSecret string) echo.Map {
	v := echo.Map{
		"payment_id":   p.ID,
		"booking_id":   p.BookingID,
		"amount_cents": p.AmountCents,
		"currency":     p.Currency,
		"method":       string(p.Method),
		"status":       string(p.Status),
	}
	if p.GatewayRef != nil {
		v["gateway_ref"] = *p.GatewayRef
	}
	if clientSecret != "" {
		v["client_secret"] = clientSecret
	}
	return v
}
