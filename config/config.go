package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`
	ServiceName string `envconfig:"SERVICE_NAME" default:"retail-service"`
	SiteURL     string `envconfig:"SITE_URL" default:"http://localhost:3000"`

	// Postgres
	DBHost         string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort         string        `envconfig:"DB_PORT" default:"5432"`
	DBUser         string        `envconfig:"DB_USER" default:"postgres"`
	DBPassword     string        `envconfig:"DB_PASSWORD" default:"postgres"`
	DBName         string        `envconfig:"DB_NAME" default:"retaildb"`
	DBSSLMode      string        `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	DBMaxIdleConns int           `envconfig:"DB_MAX_IDLE_CONNS" default:"10"`
	DBConnLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// Redis
	RedisHost     string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort     string `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD" default:""`

	// Kafka
	KafkaBrokers       []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	EventsTopic        string   `envconfig:"KAFKA_EVENTS_TOPIC" default:"shop_events"`
	NotificationsTopic string   `envconfig:"KAFKA_NOTIFICATIONS_TOPIC" default:"notification_events"`

	// Stripe
	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY" required:"true"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET" required:"true"`
	Currency            string `envconfig:"CURRENCY" default:"gbp"`

	// Sessions are issued by the identity provider and signed with this secret.
	SessionJWTSecret string `envconfig:"SESSION_JWT_SECRET" required:"true"`

	// Business policy
	RefundWindow        time.Duration `envconfig:"REFUND_WINDOW" default:"48h"`
	HoldTTL             time.Duration `envconfig:"HOLD_TTL" default:"15m"`
	VoucherMinimum      int64         `envconfig:"VOUCHER_MINIMUM_CENTS" default:"500"`
	VoucherValidMonths  int           `envconfig:"VOUCHER_VALID_MONTHS" default:"24"`
	LoyaltyJoinBonus    int64         `envconfig:"LOYALTY_JOIN_BONUS" default:"100"`
	IdempotencyTTL      time.Duration `envconfig:"IDEMPOTENCY_RETENTION" default:"720h"`

	// Workers
	VoucherDeliveryInterval time.Duration `envconfig:"VOUCHER_DELIVERY_INTERVAL" default:"1m"`
	IdempotencyPurgeEvery   time.Duration `envconfig:"IDEMPOTENCY_PURGE_INTERVAL" default:"1h"`

	// Tracing
	JaegerEndpoint string `envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &c, nil
}

func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}
