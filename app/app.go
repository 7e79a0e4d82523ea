package app

import (
	"database/sql"
	"fmt"

	"retail-svc/bookings"
	"retail-svc/cache"
	"retail-svc/config"
	"retail-svc/database"
	"retail-svc/idempotency"
	"retail-svc/kafka"
	"retail-svc/loyalty"
	"retail-svc/notify"
	"retail-svc/orders"
	"retail-svc/payments"
	"retail-svc/vouchers"
	"retail-svc/webhook"

	"github.com/IBM/sarama"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// App holds the connected infrastructure and the services built on it. The
// HTTP server and shopctl share it so both drive the same code paths.
type App struct {
	Config *config.Config
	Logger *zap.Logger

	DB       *sql.DB
	Redis    *redis.Client
	Producer sarama.SyncProducer

	Gateway     *payments.StripeGateway
	WebhookLog  *database.WebhookEventStore
	Idempotency *idempotency.Service
	Loyalty     *loyalty.Service
	Orders      *orders.Writer
	Merger      *orders.Merger
	Vouchers    *vouchers.Service
	Bookings    *bookings.Service
	Dispatcher  *webhook.Dispatcher
}

// New connects Postgres, Redis and Kafka and wires the services. Whatever was
// opened is closed again if a later connection fails.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	a := &App{Config: cfg, Logger: logger}
	if err := a.connect(); err != nil {
		a.Close()
		return nil, err
	}
	a.wire()
	return a, nil
}

func (a *App) connect() error {
	var err error
	if a.DB, err = database.InitDB(a.Config, a.Logger); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	if a.Redis, err = cache.InitRedis(a.Config, a.Logger); err != nil {
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	if a.Producer, err = kafka.InitProducer(a.Config.KafkaBrokers, a.Logger); err != nil {
		return fmt.Errorf("failed to initialize Kafka producer: %w", err)
	}
	return nil
}

func (a *App) wire() {
	cfg, logger := a.Config, a.Logger

	tx := database.NewTxManager(a.DB)
	orderStore := database.NewOrderStore(a.DB)
	publisher := kafka.NewPublisher(a.Producer, logger)
	mailer := notify.NewMailer(publisher, cfg.NotificationsTopic)
	events := notify.NewEmitter(publisher, cfg.EventsTopic)

	a.Gateway = payments.NewStripeGateway(cfg.StripeSecretKey, logger)
	a.WebhookLog = database.NewWebhookEventStore(a.DB)
	a.Idempotency = idempotency.NewService(database.NewIdempotencyStore(a.DB), cfg.IdempotencyTTL, logger)
	a.Loyalty = loyalty.NewService(database.NewLoyaltyStore(a.DB), tx, cfg.LoyaltyJoinBonus, logger)
	a.Orders = orders.NewWriter(orderStore, tx, a.Loyalty, a.Gateway, events, logger)
	a.Merger = orders.NewMerger(orderStore, tx, events, logger)
	a.Vouchers = vouchers.NewService(database.NewVoucherStore(a.DB), a.Gateway, mailer, events, vouchers.Options{
		MinimumCents: cfg.VoucherMinimum,
		ValidMonths:  cfg.VoucherValidMonths,
		Currency:     cfg.Currency,
		SiteURL:      cfg.SiteURL,
	}, logger)
	a.Bookings = bookings.NewService(database.NewBookingStore(a.DB), orderStore, tx,
		cache.NewHoldStore(a.Redis), a.Gateway, mailer, events, bookings.Options{
			RefundWindow: cfg.RefundWindow,
			HoldTTL:      cfg.HoldTTL,
			SiteURL:      cfg.SiteURL,
		}, logger)
	a.Dispatcher = webhook.NewDispatcher(payments.NewVerifier(cfg.StripeWebhookSecret), a.WebhookLog,
		a.Vouchers, a.Bookings, a.Orders, logger)
}

func (a *App) Close() {
	if a.Producer != nil {
		if err := a.Producer.Close(); err != nil {
			a.Logger.Warn("Failed to close Kafka producer", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
