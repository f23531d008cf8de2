package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase"
	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/plugins/migratecmd"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	pubnub "github.com/pubnub/go/v7"
	"github.com/redis/go-redis/v9"

	"ticket-inventory/config"
	"ticket-inventory/internal/handlers"
	"ticket-inventory/internal/services"
	"ticket-inventory/internal/services/gateway/stripe"
	"ticket-inventory/internal/store"
	_ "ticket-inventory/migrations"
	"ticket-inventory/monitoring"
	"ticket-inventory/security"
	"ticket-inventory/utils"
)

func Start() error {
	app := pocketbase.New()

	// Load configuration
	cfg := config.LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Redis
	redisClient, err := utils.NewRedisClient(ctx, cfg.RedisURL, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return err
	}
	defer redisClient.Close()

	// Enable migrations
	migratecmd.MustRegister(app, app.RootCmd, migratecmd.Config{
		Automigrate: cfg.Environment == "development",
	})

	// Setup graceful shutdown
	go handleShutdown(cancel)

	app.OnServe().BindFunc(func(se *core.ServeEvent) error {
		logger := app.Logger()

		db, ok := app.NonconcurrentDB().(*dbx.DB)
		if !ok {
			return errors.New("unexpected pocketbase db type")
		}
		st := store.New(db, cfg.GraceWindow, nil)
		monitor := monitoring.NewMonitor(st, logger)

		// Initialize PubNub
		var notifier services.Notifier = services.NopNotifier{}
		if cfg.PubNubEnabled() {
			pnConfig := pubnub.NewConfigWithUserId(pubnub.UserId("ticket-inventory"))
			pnConfig.PublishKey = cfg.PubNubPublishKey
			pnConfig.SubscribeKey = cfg.PubNubSubscribeKey
			pnConfig.SecretKey = cfg.PubNubSecretKey
			notifier = services.NewPubNubNotifier(pubnub.NewPubNub(pnConfig), logger)
		} else {
			logger.Warn("pubnub keys not set, realtime notifications disabled")
		}

		// Payment processor
		breaker := utils.NewCircuitBreaker("stripe", utils.WithStateChange(func(name string, from, to utils.State) {
			monitoring.BreakerStateChanged(name, from, to)
			logger.Warn("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		}))
		stripeClient := stripe.NewClient(stripe.ClientConfig{
			BaseURL:   cfg.StripeAPIBase,
			SecretKey: cfg.StripeSecretKey,
			Timeout:   cfg.StripeTimeout,
		}, breaker)
		webhook := stripe.NewWebhook(cfg.StripeWebhookSecret, nil)

		// Initialize services
		ledger := services.NewLedgerService(st, monitor, logger)
		reservations := services.NewReservationService(st, notifier, monitor, logger)
		checkin := services.NewCheckInService(st, notifier, monitor, logger)
		profiles := services.NewProfileService(st, logger)
		reconcile := services.NewReconcileService(services.ReconcileDeps{
			Store:        st,
			Lookup:       stripeClient,
			Profiles:     profiles,
			Reservations: reservations,
			Redis:        redisClient,
			LockTTL:      cfg.ReconcileLockTTL,
			Monitor:      monitor,
			Logger:       logger,
		})
		webhooks := services.NewWebhookService(webhook, reconcile, reservations, monitor, logger)

		// Initialize handlers
		ticketHandler := handlers.NewTicketHandler(ledger, logger)
		checkInHandler := handlers.NewCheckInHandler(checkin, logger)
		paymentHandler := handlers.NewPaymentHandler(reconcile, webhooks, logger)
		adminHandler := handlers.NewAdminHandler(reservations, logger)

		limiter := security.NewRateLimiter(redisClient, cfg.RateLimitPerMinute, logger)
		scanner := security.NewScannerAuth(cfg.ScannerKeyHash)
		if cfg.ScannerKeyHash == "" {
			logger.Warn("SCANNER_KEY_HASH not set, check-in is limited to superusers")
		}

		// Inventory endpoints
		se.Router.GET("/api/v1/products/{productId}/availability", ticketHandler.GetAvailability)
		se.Router.POST("/api/v1/reservations", ticketHandler.Reserve).
			BindFunc(limiter.Middleware("reserve"))

		// Door endpoints
		se.Router.POST("/api/v1/checkin", checkInHandler.CheckIn).
			BindFunc(limiter.Middleware("checkin"), scanner.Middleware())

		// Payment endpoints
		se.Router.GET("/api/v1/reconcile/{sessionId}", paymentHandler.Reconcile)
		se.Router.POST("/api/v1/webhooks/stripe", paymentHandler.StripeWebhook)

		// Admin endpoints
		se.Router.POST("/api/v1/admin/tickets/{ticketId}/refund", adminHandler.Refund).
			BindFunc(scanner.Middleware())
		se.Router.POST("/api/v1/admin/sweep", adminHandler.Sweep).
			BindFunc(scanner.Middleware())

		if cfg.EnableMetrics {
			se.Router.GET("/metrics", apis.WrapStdHandler(promhttp.Handler()))
		}

		// Health check
		se.Router.GET("/health", func(e *core.RequestEvent) error {
			if err := healthCheck(e.Request.Context(), redisClient, st); err != nil {
				return e.JSON(http.StatusServiceUnavailable, map[string]string{
					"status": "unhealthy",
					"error":  err.Error(),
				})
			}
			return e.JSON(http.StatusOK, map[string]string{"status": "healthy"})
		})

		// Background jobs
		app.Cron().MustAdd("expire_stale_tickets", cfg.SweepSchedule, func() {
			if _, err := reservations.ExpireStale(ctx); err != nil {
				logger.Error("expire stale tickets", "error", err)
			}
		})
		if cfg.EnableMetrics {
			app.Cron().MustAdd("collect_occupancy", "* * * * *", func() {
				if err := monitor.CollectOccupancy(ctx); err != nil {
					logger.Error("collect occupancy", "error", err)
				}
			})
		}

		logger.Info("server routes registered", "environment", cfg.Environment, "grace_window", cfg.GraceWindow.String())

		return se.Next()
	})

	// Start server
	return app.Start()
}

func healthCheck(ctx context.Context, redisClient *redis.Client, st *store.Store) error {
	if err := utils.RedisHealthCheck(ctx, redisClient); err != nil {
		return err
	}
	if _, err := st.DB().NewQuery("SELECT 1").WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("store health check failed: %w", err)
	}
	return nil
}

// handleShutdown cancels background work on SIGINT/SIGTERM. pocketbase
// drains in-flight requests itself.
func handleShutdown(cancel context.CancelFunc) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	slog.Info("shutdown signal received, cleaning up")
	cancel()
}
