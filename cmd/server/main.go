package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/example/ride-booking/internal/catalog"
	"github.com/example/ride-booking/internal/config"
	"github.com/example/ride-booking/internal/draft"
	"github.com/example/ride-booking/internal/events"
	httpapi "github.com/example/ride-booking/internal/http"
	"github.com/example/ride-booking/internal/identity"
	"github.com/example/ride-booking/internal/logging"
	"github.com/example/ride-booking/internal/payments"
	"github.com/example/ride-booking/internal/pricing"
	"github.com/example/ride-booking/internal/reservation"
	"github.com/example/ride-booking/internal/routing"
	"github.com/example/ride-booking/internal/stream"
	"github.com/example/ride-booking/internal/wizard"
)

func main() {
	cfg, err := config.LoadServerConfig()
	if err != nil {
		logging.NewLogger("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.PGDSN != "" && cfg.RunMigrations {
		if err := runMigrations(cfg.PGDSN); err != nil {
			logger.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		logger.Info("migrations applied")
	}

	if cfg.MapsAPIKey == "" {
		logger.Error("MAPS_API_KEY is required")
		os.Exit(1)
	}
	router, err := routing.NewGoogleRouter(cfg.MapsAPIKey)
	if err != nil {
		logger.Error("maps client failed", "error", err)
		os.Exit(1)
	}
	routes := routing.NewService(router, cfg.RouteTimeout, cfg.RouteCacheTTL, logger)

	var vehicleStore catalog.Store
	if cfg.FirebaseProjectID != "" {
		fs, err := catalog.NewFirestoreStore(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials, "vehicles")
		if err != nil {
			logger.Error("firestore client failed", "error", err)
			os.Exit(1)
		}
		defer fs.Close()
		vehicleStore = fs
	} else {
		logger.Warn("no FIREBASE_PROJECT_ID, serving built-in demo fleet")
		vehicleStore = demoFleet()
	}
	vehicles := catalog.NewService(vehicleStore, logger)

	var verifier identity.Verifier
	if cfg.FirebaseProjectID != "" {
		fv, err := identity.NewFirebaseVerifier(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials)
		if err != nil {
			logger.Error("firebase auth failed", "error", err)
			os.Exit(1)
		}
		verifier = fv
	} else {
		logger.Warn("auth running in static dev mode")
		verifier = identity.StaticVerifier{"dev-token": {ID: "dev-user", EmailVerified: true}}
	}

	var drafts draft.Store
	var draftPing func(context.Context) error
	if cfg.RedisAddr != "" {
		rs := draft.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.DraftTTL)
		drafts = rs
		draftPing = rs.Ping
	} else {
		logger.Warn("no REDIS_ADDR, drafts will not survive restarts")
		drafts = draft.NewMemoryStore()
	}

	var store reservation.Store
	if cfg.PGDSN != "" {
		ps, err := reservation.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres connect failed", "error", err)
			os.Exit(1)
		}
		defer ps.Close()
		store = ps
	} else {
		logger.Warn("no PG_DSN, reservations held in memory only")
		store = reservation.NewMemoryStore()
	}

	var publishers events.Fanout
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publishers = append(publishers, kp)
	}
	if cfg.WebhookURL != "" {
		publishers = append(publishers, events.NewWebhookNotifier(cfg.WebhookURL))
	}
	var publisher reservation.EventPublisher
	if len(publishers) > 0 {
		publisher = publishers
	}
	persister := reservation.NewPersister(store, publisher, logger)

	if cfg.StripeKey == "" {
		logger.Warn("no STRIPE_SECRET_KEY, card payments will fail")
	}
	processor := payments.NewStripeProcessor(cfg.StripeKey)

	options := pricing.NewCatalog(pricing.DefaultOptions, logger)
	streams := stream.NewRegistry(logger)

	booking := wizard.NewService(wizard.Deps{
		Routes:    routes,
		Vehicles:  vehicles,
		Pricing:   options,
		Drafts:    drafts,
		Persister: persister,
		Processor: processor,
		Currency:  cfg.Currency,
		Notifier:  streams,
		Logger:    logger,
	})

	api := httpapi.NewServer(httpapi.Deps{
		Wizard:   booking,
		History:  persister,
		Options:  options,
		Verifier: verifier,
		Streams:  streams,
		Ready:    draftPing,
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("booking api listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}
}

func runMigrations(dsn string) error {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	b, err := os.ReadFile(filepath.Join("migrations", "001_create_reservations.sql"))
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// demoFleet mirrors the shape of real catalog documents so the parser
// path is exercised even without a backend.
func demoFleet() *catalog.MemoryStore {
	return catalog.NewMemoryStore(
		catalog.Document{ID: "berline", Name: "Berline", BasePrice: "20", PricePerKm: "1.5", PricePerHour: "10", Passengers: "4", Luggage: "3"},
		catalog.Document{ID: "van", Name: "Van", BasePrice: "35", PricePerKm: "2", PricePerHour: "15", Passengers: "7", Luggage: "6"},
	)
}
