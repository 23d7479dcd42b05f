package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/zezo2030/hall-reservation/internal/cache"
	"github.com/zezo2030/hall-reservation/internal/model"
	"github.com/zezo2030/hall-reservation/internal/pricing"
	"github.com/zezo2030/hall-reservation/internal/queue"
	"github.com/zezo2030/hall-reservation/internal/repository"
	"github.com/zezo2030/hall-reservation/internal/utils"
)

// BookingHandler owns the reservation lifecycle: creation (with ticket
// issuance), reads and cancellation.  Creation is a single transaction
// around "lock hall, re-check overlap, re-price, insert booking and
// tickets" so a booking can never commit with a stale price or a
// conflicting window.
type BookingHandler struct {
	quoter
	tickets      *repository.TicketRepo
	store        *cache.Store
	log          *logrus.Logger
	ticketSecret string
}

// NewBookingHandler wires the booking endpoints to their collaborators.
func NewBookingHandler(halls *repository.HallRepo, bookings *repository.BookingRepo,
	coupons *repository.CouponRepo, tickets *repository.TicketRepo,
	store *cache.Store, log *logrus.Logger, ticketSecret string) *BookingHandler {
	return &BookingHandler{
		quoter:       quoter{halls: halls, bookings: bookings, coupons: coupons},
		tickets:      tickets,
		store:        store,
		log:          log,
		ticketSecret: ticketSecret,
	}
}

// createBookingRequest extends the quote shape with contact details.
type createBookingRequest struct {
	quoteRequest
	ContactName  string `json:"contact_name"`
	ContactPhone string `json:"contact_phone"`
}

// Create handles POST /v1/bookings.  The price returned by an earlier
// quote is never trusted: everything is resolved again inside the
// transaction, under the hall row lock.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	var req createBookingRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if msg := req.validate(time.Now().UTC()); msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if req.ContactName == "" || req.ContactPhone == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "contact_name and contact_phone are required"})
	}

	ctx := c.Request().Context()
	tx, err := h.bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	res, err := h.resolve(ctx, tx, req.quoteRequest)
	switch {
	case errors.Is(err, repository.ErrHallNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "hall not found"})
	case errors.Is(err, errUnknownAddOn):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown add-on in request"})
	case errors.Is(err, pricing.ErrCouponNotApplicable):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "coupon not applicable"})
	case err != nil:
		h.log.WithError(err).Error("booking: quote resolution failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}
	if !res.Available {
		return c.JSON(http.StatusConflict, echo.Map{"error": res.Reason})
	}

	booking := &model.Booking{
		UserID:        userID,
		HallID:        res.Hall.ID,
		BranchID:      res.Hall.BranchID,
		StartsAt:      req.StartsAt.UTC(),
		DurationHours: req.DurationHours,
		Persons:       req.Persons,
		TotalCents:    res.Breakdown.TotalCents,
		DiscountCents: res.Breakdown.DiscountCents,
		ContactName:   req.ContactName,
		ContactPhone:  req.ContactPhone,
	}
	if res.Breakdown.DiscountCents > 0 && req.CouponCode != "" {
		code := req.CouponCode
		booking.CouponCode = &code
	}
	if err := h.bookings.CreateTx(ctx, tx, booking); err != nil {
		h.log.WithError(err).Error("booking: insert failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}

	lines := make([]model.BookingAddOn, 0, len(res.Lines))
	for _, l := range res.Lines {
		lines = append(lines, model.BookingAddOn{
			BookingID:      booking.ID,
			AddOnID:        l.AddOnID,
			Quantity:       l.Quantity,
			UnitPriceCents: l.UnitPriceCents,
		})
	}
	if err := h.bookings.CreateAddOnsBulkTx(ctx, tx, lines); err != nil {
		h.log.WithError(err).Error("booking: add-on insert failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}

	// One ticket per person.  Raw tokens exist only in this response;
	// storage keeps their digests.
	end := booking.EndsAt()
	rawTokens := make([]string, 0, booking.Persons)
	issue := make([]model.Ticket, 0, booking.Persons)
	for i := uint32(0); i < booking.Persons; i++ {
		raw := utils.TicketToken(h.ticketSecret, booking.ID, i)
		rawTokens = append(rawTokens, raw)
		issue = append(issue, model.Ticket{
			BookingID:  booking.ID,
			TokenHash:  utils.HashToken(raw),
			ValidFrom:  booking.StartsAt,
			ValidUntil: end,
		})
	}
	if err := h.tickets.CreateBulkTx(ctx, tx, issue); err != nil {
		h.log.WithError(err).Error("booking: ticket issuance failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}

	if err := tx.Commit(); err != nil {
		h.log.WithError(err).Error("booking: commit failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to create booking"})
	}
	committed = true

	h.store.InvalidateUserBookings(ctx, userID)
	go func(ev queue.BookingEvent) {
		_ = queue.Publish(context.Background(), h.log, ev)
	}(queue.BookingEvent{
		Type:          queue.EventBookingCreated,
		BookingID:     booking.ID,
		UserID:        booking.UserID,
		HallID:        booking.HallID,
		HallName:      res.Hall.Name,
		StartsAt:      booking.StartsAt.Format(time.RFC3339),
		DurationHours: booking.DurationHours,
		Persons:       booking.Persons,
		TotalCents:    booking.TotalCents,
	})

	ticketViews := make([]echo.Map, 0, len(issue))
	for i := range issue {
		ticketViews = append(ticketViews, echo.Map{
			"index":       i,
			"token":       rawTokens[i],
			"valid_from":  issue[i].ValidFrom,
			"valid_until": issue[i].ValidUntil,
		})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"booking": bookingView(booking),
		"quote":   res.Breakdown,
		"tickets": ticketViews,
	})
}

// Get handles GET /v1/bookings/:id.  Other users' bookings read as not
// found, not forbidden.
func (h *BookingHandler) Get(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}

	ctx := c.Request().Context()
	db := h.bookings.DB()
	booking, err := h.bookings.GetByIDForUser(ctx, db, bookingID, userID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load booking"})
	}
	issued, err := h.tickets.ListByBooking(ctx, db, booking.ID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load booking"})
	}

	views := make([]echo.Map, 0, len(issued))
	now := time.Now().UTC()
	for i := range issued {
		views = append(views, ticketView(&issued[i], now))
	}
	return c.JSON(http.StatusOK, echo.Map{
		"booking": bookingView(booking),
		"tickets": views,
	})
}

// List handles GET /v1/bookings with a read-through redis cache: the
// serialized response is cached per user and invalidated after every
// booking mutation.
func (h *BookingHandler) List(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	ctx := c.Request().Context()

	if cached, ok := h.store.GetUserBookings(ctx, userID); ok {
		return c.JSONBlob(http.StatusOK, []byte(cached))
	}

	items, err := h.bookings.ListByUser(ctx, h.bookings.DB(), userID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list bookings"})
	}
	views := make([]echo.Map, 0, len(items))
	for i := range items {
		views = append(views, bookingView(&items[i]))
	}
	body, err := json.Marshal(echo.Map{"bookings": views})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list bookings"})
	}
	h.store.SetUserBookings(ctx, userID, string(body))
	return c.JSONBlob(http.StatusOK, body)
}

// cancelRequest carries the optional customer-supplied reason.
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel handles POST /v1/bookings/:id/cancel.  Refused inside the
// cutoff window before the event; otherwise the booking and all its
// still-valid tickets flip atomically.
func (h *BookingHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	bookingID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid booking id"})
	}
	var req cancelRequest
	_ = c.Bind(&req) // body is optional
	if req.Reason == "" {
		req.Reason = "cancelled by customer"
	}

	ctx := c.Request().Context()
	tx, err := h.bookings.DB().BeginTx(ctx, nil)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to start transaction"})
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	booking, err := h.bookings.LockByIDTx(ctx, tx, bookingID)
	if errors.Is(err, repository.ErrBookingNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
	}
	if booking.UserID != userID {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found"})
	}
	if booking.Status.IsTerminal() {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "booking is already " + string(booking.Status),
		})
	}
	now := time.Now().UTC()
	if now.After(booking.StartsAt.Add(-cancelCutoffHours * time.Hour)) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "cancellation is not allowed within 24 hours of the event",
		})
	}

	if err := h.bookings.CancelTx(ctx, tx, booking.ID, req.Reason, now); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "booking is no longer cancellable"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
	}
	if err := h.tickets.CancelByBookingTx(ctx, tx, booking.ID); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
	}
	if err := tx.Commit(); err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to cancel booking"})
	}
	committed = true

	h.store.InvalidateUserBookings(ctx, userID)
	go func(ev queue.BookingEvent) {
		_ = queue.Publish(context.Background(), h.log, ev)
	}(queue.BookingEvent{
		Type:      queue.EventBookingCancelled,
		BookingID: booking.ID,
		UserID:    booking.UserID,
		HallID:    booking.HallID,
		Reason:    req.Reason,
	})

	return c.JSON(http.StatusOK, echo.Map{
		"message":    "booking cancelled",
		"booking_id": booking.ID,
		"status":     string(model.BookingCancelled),
	})
}

// bookingView shapes a booking for JSON responses.  Token digests and
// internal audit columns stay out of the payload.
func bookingView(b *model.Booking) echo.Map {
	v := echo.Map{
		"id":             b.ID,
		"hall_id":        b.HallID,
		"branch_id":      b.BranchID,
		"starts_at":      b.StartsAt,
		"duration_hours": b.DurationHours,
		"persons":        b.Persons,
		"total_cents":    b.TotalCents,
		"discount_cents": b.DiscountCents,
		"status":         string(b.Status),
		"contact_name":   b.ContactName,
		"contact_phone":  b.ContactPhone,
		"created_at":     b.CreatedAt,
	}
	if b.CouponCode != nil {
		v["coupon_code"] = *b.CouponCode
	}
	if b.CancelReason != nil {
		v["cancel_reason"] = *b.CancelReason
	}
	if b.CancelledAt != nil {
		v["cancelled_at"] = *b.CancelledAt
	}
	return v
}

// ticketView shapes a ticket for JSON responses.  The stored digest never
// leaves the server; expiry is derived from the window at read time.
func ticketView(t *model.Ticket, now time.Time) echo.Map {
	status := t.Status
	if t.ExpiredAt(now) {
		status = model.TicketExpired
	}
	v := echo.Map{
		"id":          t.ID,
		"booking_id":  t.BookingID,
		"status":      string(status),
		"valid_from":  t.ValidFrom,
		"valid_until": t.ValidUntil,
	}
	if t.ScannedAt != nil {
		v["scanned_at"] = *t.ScannedAt
	}
	if t.HolderName != nil {
		v["holder_name"] = *t.HolderName
	}
	if t.HolderPhone != nil {
		v["holder_phone"] = *t.HolderPhone
	}
	return v
}
