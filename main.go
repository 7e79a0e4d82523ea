package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"retail-svc/app"
	"retail-svc/config"
	"retail-svc/handlers"
	"retail-svc/kafka"
	"retail-svc/middleware"
	"retail-svc/notify"
	"retail-svc/worker"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// Initialize OpenTelemetry
	shutdown, err := middleware.InitTracing(cfg.ServiceName, cfg.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	defer shutdown()

	a, err := app.New(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize service", zap.Error(err))
	}
	defer a.Close()

	consumer, err := kafka.InitConsumer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.Fatal("Failed to initialize Kafka consumer", zap.Error(err))
	}
	defer consumer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: newRouter(a, logger),
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Retail Service started", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	deliverer := notify.NewDeliverer(logger)
	g.Go(func() error {
		if err := kafka.NewConsumer(consumer, cfg.NotificationsTopic, deliverer.Handle, logger).Run(gctx); err != nil {
			logger.Error("Kafka consumer error", zap.Error(err))
		}
		return nil
	})

	g.Go(func() error {
		return worker.NewPeriodic("voucher-delivery", cfg.VoucherDeliveryInterval, a.Vouchers.DeliverDue, logger).Run(gctx)
	})
	g.Go(func() error {
		purge := func(ctx context.Context) (int, error) {
			n, err := a.Idempotency.Purge(ctx)
			return int(n), err
		}
		return worker.NewPeriodic("idempotency-purge", cfg.IdempotencyPurgeEvery, purge, logger).Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
	}
	logger.Info("Server exited")
}

func newRouter(a *app.App, logger *zap.Logger) *gin.Engine {
	sessions := middleware.NewSessionVerifier(a.Config.SessionJWTSecret)
	idem := func(scope string) gin.HandlerFunc {
		return middleware.Idempotent(a.Idempotency, scope, logger)
	}

	webhookHandler := handlers.NewWebhookHandler(a.Dispatcher, logger)
	bookingHandler := handlers.NewBookingHandler(a.Bookings, logger)
	voucherHandler := handlers.NewVoucherHandler(a.Vouchers, logger)
	loyaltyHandler := handlers.NewLoyaltyHandler(a.Loyalty, logger)
	sessionHandler := handlers.NewSessionHandler(a.Merger, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware(a.Config.ServiceName))
	router.Use(middleware.LoggerMiddleware(logger))
	router.Use(middleware.MetricsMiddleware())

	// Health check endpoint
	router.GET("/health", handlers.HealthCheck)

	// Metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler())

	// Stripe authenticates with the signature header, not a session
	router.POST("/webhooks/stripe", webhookHandler.Receive)

	router.GET("/events/:id/availability", bookingHandler.Availability)
	router.GET("/vouchers/session/:session_id", voucherHandler.BySession)
	router.POST("/vouchers/checkout", middleware.OptionalAuth(sessions), voucherHandler.Checkout)

	protected := router.Group("/")
	protected.Use(middleware.AuthMiddleware(sessions))
	{
		protected.POST("/events/:id/checkout", bookingHandler.Checkout)
		protected.GET("/bookings/:id", bookingHandler.Get)
		protected.POST("/bookings/:id/cancel", idem("booking_cancel"), bookingHandler.Cancel)
		protected.POST("/bookings/:id/request-cancellation", idem("booking_request_cancellation"), bookingHandler.RequestCancellation)

		protected.POST("/loyalty/opt-in", idem("loyalty_opt_in"), loyaltyHandler.OptIn)
		protected.GET("/loyalty/balance", loyaltyHandler.Balance)

		protected.POST("/auth/signed-in", sessionHandler.SignedIn)
	}

	admin := router.Group("/admin")
	admin.Use(middleware.AuthMiddleware(sessions), middleware.RequireAdmin())
	{
		admin.POST("/vouchers/:code/redeem", idem("voucher_redeem"), voucherHandler.Redeem)
	}

	return router
}
