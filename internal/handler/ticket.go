package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/zezo2030/hall-reservation/internal/cache"
	"github.com/zezo2030/hall-reservation/internal/model"
	"github.com/zezo2030/hall-reservation/internal/repository"
	"github.com/zezo2030/hall-reservation/internal/utils"
)

// TicketHandler serves the admission side: staff scanning at the door,
// QR display codes and holder overrides for gifted tickets.
type TicketHandler struct {
	tickets  *repository.TicketRepo
	bookings *repository.BookingRepo
	store    *cache.Store
	log      *logrus.Logger
}

// NewTicketHandler wires the ticket endpoints to their collaborators.
func NewTicketHandler(tickets *repository.TicketRepo, bookings *repository.BookingRepo,
	store *cache.Store, log *logrus.Logger) *TicketHandler {
	return &TicketHandler{tickets: tickets, bookings: bookings, store: store, log: log}
}

// scanRequest carries the code presented at the door: either a raw
// admission token or a short-lived QR display code.
type scanRequest struct {
	Code string `json:"code"`
}

// Scan handles POST /v1/tickets/scan (staff only).  The VALID→USED flip
// is a conditional update, so of two devices scanning the same ticket at
// once exactly one gets success and the other "Already used".
func (h *TicketHandler) Scan(c echo.Context) error {
	staffID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	var req scanRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "code is required"})
	}

	ctx := c.Request().Context()
	db := h.tickets.DB()

	// A display code resolves through redis to a ticket id; anything else
	// is treated as a raw admission token and looked up by digest.
	var ticket *model.Ticket
	if id, ok := h.store.ResolveDisplayCode(ctx, req.Code); ok {
		ticket, err = h.tickets.GetByID(ctx, db, id)
	} else {
		ticket, err = h.tickets.GetByHash(ctx, db, utils.HashToken(req.Code))
	}
	if errors.Is(err, repository.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false, "message": "Invalid code."})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "Scan failed."})
	}

	booking, err := h.bookings.GetByID(ctx, db, ticket.BookingID)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "Scan failed."})
	}

	now := time.Now().UTC()
	if deny := scanDenial(ticket, booking, now); deny != "" {
		return c.JSON(http.StatusConflict, echo.Map{
			"success": false,
			"message": deny,
			"ticket":  ticketView(ticket, now),
			"booking": bookingView(booking),
		})
	}

	if err := h.tickets.MarkUsed(ctx, db, ticket.ID, staffID, now); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{
				"success": false,
				"message": "Already used.",
				"ticket":  ticketView(ticket, now),
				"booking": bookingView(booking),
			})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"success": false, "message": "Scan failed."})
	}

	ticket.Status = model.TicketUsed
	ticket.ScannedAt = &now
	ticket.ScannedBy = &staffID
	h.log.WithFields(logrus.Fields{
		"ticket_id":  ticket.ID,
		"booking_id": booking.ID,
		"staff_id":   staffID,
	}).Info("ticket scanned")

	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Admitted.",
		"ticket":  ticketView(ticket, now),
		"booking": bookingView(booking),
	})
}

// scanDenial returns the denial message for a ticket, or "" when the scan
// may proceed to the consuming update.  Expiry is derived from the window
// here rather than from an eagerly flipped row.
func scanDenial(t *model.Ticket, b *model.Booking, now time.Time) string {
	switch t.Status {
	case model.TicketUsed:
		return "Already used."
	case model.TicketCancelled:
		return "Ticket is CANCELLED."
	case model.TicketExpired:
		return "Ticket is EXPIRED."
	}
	if b.Status != model.BookingConfirmed {
		return "Booking is " + string(b.Status) + "."
	}
	if t.ExpiredAt(now) {
		return "Ticket is EXPIRED."
	}
	if now.Before(t.ValidFrom) {
		return "Not valid for current time."
	}
	return ""
}

// QR handles GET /v1/tickets/:id/qr.  It mints a short-lived display
// code in redis that the scan endpoint can resolve; the admission token
// itself never travels again after issuance.
func (h *TicketHandler) QR(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}

	ctx := c.Request().Context()
	ticket, err := h.tickets.GetByIDForUser(ctx, h.tickets.DB(), ticketID, userID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ticket"})
	}
	now := time.Now().UTC()
	if ticket.Status != model.TicketValid || ticket.ExpiredAt(now) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket is not valid"})
	}

	code, err := utils.DisplayCode()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to generate code"})
	}
	if err := h.store.StoreDisplayCode(ctx, code, ticket.ID); err != nil {
		h.log.WithError(err).Warn("ticket: display code store failed")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "qr codes are temporarily unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"code":       code,
		"expires_at": now.Add(cache.QRCodeTTL),
	})
}

// holderRequest names the person a ticket was handed to.
type holderRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// SetHolder handles POST /v1/tickets/:id/holder, recording who actually
// carries a gifted ticket.  Allowed on still-valid tickets only.
func (h *TicketHandler) SetHolder(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
	}
	ticketID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
	}
	var req holderRequest
	if err := c.Bind(&req); err != nil || req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	ctx := c.Request().Context()
	db := h.tickets.DB()
	ticket, err := h.tickets.GetByIDForUser(ctx, db, ticketID, userID)
	if errors.Is(err, repository.ErrTicketNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load ticket"})
	}

	if err := h.tickets.SetHolder(ctx, db, ticket.ID, req.Name, req.Phone); err != nil {
		if errors.Is(err, repository.ErrInvalidState) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket is not valid"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to update holder"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":   "holder updated",
		"ticket_id": ticket.ID,
	})
}
