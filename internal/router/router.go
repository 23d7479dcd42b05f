package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/zezo2030/hall-reservation/internal/config"
	"github.com/zezo2030/hall-reservation/internal/handler"
	"github.com/zezo2030/hall-reservation/internal/middleware"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Quote   *handler.QuoteHandler
	Booking *handler.BookingHandler
	Ticket  *handler.TicketHandler
	Payment *handler.PaymentHandler
}

// Register wires all routes onto the Echo instance.
//
// Public:    /healthz, /v1/quote, /v1/payments/webhook.
// Customer:  booking and ticket self-service under /v1 behind JWT auth.
// Staff:     /v1/tickets/scan; refunds additionally admit ADMIN.
//
// The webhook is authenticated by provider signature, not JWT, and both
// it and the scan endpoint sit behind the rate limiter since they face
// unattended callers (provider retries, gate devices).
func Register(e *echo.Echo, h Handlers, jwtSecret string, rl config.RateLimitConfig, rdb *redis.Client) {
	limiter := middleware.RateLimit(rl, rdb)

	e.GET("/healthz", handler.Health)
	e.POST("/v1/quote", h.Quote.Quote)
	e.POST("/v1/payments/webhook", h.Payment.Webhook, limiter)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))

	auth.POST("/bookings", h.Booking.Create)
	auth.GET("/bookings", h.Booking.List)
	auth.GET("/bookings/:id", h.Booking.Get)
	auth.POST("/bookings/:id/cancel", h.Booking.Cancel)

	auth.GET("/tickets/:id/qr", h.Ticket.QR)
	auth.POST("/tickets/:id/holder", h.Ticket.SetHolder)

	auth.POST("/payments/intent", h.Payment.CreateIntent)
	auth.POST("/payments/confirm", h.Payment.Confirm)

	staff := e.Group("/v1")
	staff.Use(middleware.JWTAuth(jwtSecret))
	staff.POST("/tickets/scan", h.Ticket.Scan,
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin), limiter)
	staff.POST("/payments/refund", h.Payment.Refund,
		middleware.RequireRole(middleware.RoleStaff, middleware.RoleAdmin))
}
