package main // Entry point package

import (
	"log"  // Logging library
	"time" // Durations for engine deadlines

	"github.com/joho/godotenv" // Loads .env files in development
	"github.com/labstack/echo/v4"

	"github.com/alperoz/ticket-sales/internal/config"
	"github.com/alperoz/ticket-sales/internal/database"
	"github.com/alperoz/ticket-sales/internal/handler"
	"github.com/alperoz/ticket-sales/internal/middleware"
	"github.com/alperoz/ticket-sales/internal/queue"
	"github.com/alperoz/ticket-sales/internal/repository"
	"github.com/alperoz/ticket-sales/internal/reservation"
	"github.com/alperoz/ticket-sales/internal/router"
)

func main() {
	// Load .env when present; real deployments set env vars directly.
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file loaded: %v", err)
	}

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer db.Close()

	// Redis is optional; middleware degrades gracefully without it.
	rdb := config.NewRedisClient()

	// Repositories
	userRepo := repository.NewUserRepo(db)
	tokenRepo := repository.NewTokenRepo(db)
	venueRepo := repository.NewVenueRepo(db)
	eventRepo := repository.NewEventRepo(db)
	unitRepo := repository.NewUnitRepo(db)
	saleRepo := repository.NewSaleRepo(db)

	// Reservation engine over the unit store.
	engine := reservation.New(unitRepo, cfg.PurchaseCap, time.Duration(cfg.ReserveTxSec)*time.Second)

	// Handlers
	authHandler := handler.NewAuthHandler(cfg, userRepo, tokenRepo)
	publicHandler := &handler.PublicHandler{EventRepo: eventRepo, VenueRepo: venueRepo, UnitRepo: unitRepo}
	checkoutHandler := handler.NewCheckoutHandler(engine, saleRepo)
	ticketHandler := handler.NewTicketHandler(saleRepo)
	organizerHandler := handler.NewOrganizerHandler(venueRepo, eventRepo, unitRepo)

	e := echo.New()

	rateLimit := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)

	router.RegisterRoutes(e)
	router.RegisterAuth(e, authHandler, cfg.JWTSecret)
	router.RegisterPublic(e, publicHandler, cache)
	router.RegisterCheckout(e, checkoutHandler, ticketHandler, cfg.JWTSecret, rateLimit)
	router.RegisterOrganizer(e, organizerHandler, cfg.JWTSecret)

	// Background consumer appends completed sales to logs/sales.log.
	go func() {
		if err := queue.StartSaleConsumer(); err != nil {
			log.Printf("sale consumer stopped: %v", err)
		}
	}()

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
