package main // Entry point package

import (
	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"

	"github.com/zezo2030/hall-reservation/internal/cache"
	"github.com/zezo2030/hall-reservation/internal/config"
	"github.com/zezo2030/hall-reservation/internal/database"
	"github.com/zezo2030/hall-reservation/internal/gateway"
	"github.com/zezo2030/hall-reservation/internal/handler"
	"github.com/zezo2030/hall-reservation/internal/queue"
	"github.com/zezo2030/hall-reservation/internal/repository"
	"github.com/zezo2030/hall-reservation/internal/router"
)

func main() {
	// .env is a development convenience; in deployment the variables come
	// from the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})
	if lvl, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(lvl)
	}

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.WithError(err).Fatal("database connection failed")
	}
	defer func() { _ = db.Close() }()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Warn("redis unavailable, caching and QR codes disabled")
	}
	store := cache.New(rdb, log)

	halls := repository.NewHallRepo(db)
	bookings := repository.NewBookingRepo(db)
	tickets := repository.NewTicketRepo(db)
	payments := repository.NewPaymentRepo(db)
	coupons := repository.NewCouponRepo(db)

	var gw gateway.Gateway
	if cfg.StripeKey != "" {
		sg, err := gateway.NewStripeGateway(cfg.StripeKey, cfg.StripeWebhook)
		if err != nil {
			log.WithError(err).Fatal("stripe gateway init failed")
		}
		gw = sg
		log.Info("using stripe payment gateway")
	} else {
		gw = gateway.NewMockGateway()
		log.Warn("STRIPE_SECRET_KEY not set, using mock payment gateway")
	}

	h := router.Handlers{
		Quote:   handler.NewQuoteHandler(halls, bookings, coupons),
		Booking: handler.NewBookingHandler(halls, bookings, coupons, tickets, store, log, cfg.TicketSecret),
		Ticket:  handler.NewTicketHandler(tickets, bookings, store, log),
		Payment: handler.NewPaymentHandler(payments, bookings, tickets, gw, store, log,
			cfg.Currency, cfg.GatewayTimeout),
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	router.Register(e, h, cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)

	// Notification consumer; reconnects on its own if the broker drops.
	go queue.StartConsumer(log)

	addr := ":" + cfg.Port
	log.WithField("addr", addr).WithField("env", cfg.Env).Info("listening")
	if err := e.Start(addr); err != nil {
		log.WithError(err).Fatal("server stopped")
	}
}
