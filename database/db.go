package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"retail-svc/config"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func InitDB(cfg *config.Config, logger *zap.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(cfg.DBConnLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Database connection established", zap.String("database", cfg.DBName))
	return db, nil
}

// Migrate creates the schema if it doesn't exist. Each statement is idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %d: %w", i, err)
		}
	}
	return nil
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		price_cents BIGINT NOT NULL,
		stock INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		starts_at TIMESTAMPTZ NOT NULL,
		capacity INTEGER NOT NULL CHECK (capacity >= 0),
		price_cents BIGINT NOT NULL CHECK (price_cents >= 0),
		currency VARCHAR(3) NOT NULL DEFAULT 'gbp'
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		stripe_session_id TEXT UNIQUE,
		stripe_payment_intent_id TEXT,
		receipt_url TEXT,
		card_brand VARCHAR(32),
		card_last4 VARCHAR(4),
		paid_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id BIGSERIAL PRIMARY KEY,
		order_id BIGINT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
		product_name VARCHAR(255) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS guest_orders (
		id BIGSERIAL PRIMARY KEY,
		guest_token TEXT NOT NULL,
		email TEXT NOT NULL,
		total_cents BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		stripe_session_id TEXT UNIQUE,
		stripe_payment_intent_id TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS guest_orders_email_idx ON guest_orders (lower(email))`,
	`CREATE TABLE IF NOT EXISTS guest_order_items (
		id BIGSERIAL PRIMARY KEY,
		guest_order_id BIGINT NOT NULL REFERENCES guest_orders(id) ON DELETE CASCADE,
		product_id INTEGER REFERENCES products(id) ON DELETE SET NULL,
		product_name VARCHAR(255) NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_price_cents BIGINT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS event_bookings (
		id UUID PRIMARY KEY,
		event_id TEXT NOT NULL REFERENCES events(id),
		user_id TEXT NOT NULL,
		paid BOOLEAN NOT NULL DEFAULT FALSE,
		cancelled BOOLEAN NOT NULL DEFAULT FALSE,
		cancellation_requested BOOLEAN NOT NULL DEFAULT FALSE,
		refunded BOOLEAN NOT NULL DEFAULT FALSE,
		stripe_session_id TEXT UNIQUE,
		stripe_payment_intent_id TEXT,
		refund_id TEXT,
		contact_name TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		CHECK (NOT (refunded AND NOT cancelled))
	)`,
	`CREATE INDEX IF NOT EXISTS event_bookings_event_idx ON event_bookings (event_id) WHERE NOT cancelled`,
	`CREATE TABLE IF NOT EXISTS vouchers (
		id BIGSERIAL PRIMARY KEY,
		code VARCHAR(14) NOT NULL UNIQUE,
		initial_cents BIGINT NOT NULL,
		remaining_cents BIGINT NOT NULL,
		currency VARCHAR(3) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'active',
		buyer_name TEXT NOT NULL DEFAULT '',
		buyer_email TEXT NOT NULL,
		recipient_name TEXT NOT NULL DEFAULT '',
		recipient_email TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		delivery_mode VARCHAR(16) NOT NULL,
		scheduled_for TIMESTAMPTZ,
		delivered_at TIMESTAMPTZ,
		expires_at TIMESTAMPTZ NOT NULL,
		stripe_session_id TEXT NOT NULL UNIQUE,
		stripe_payment_intent_id TEXT,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		CHECK (remaining_cents >= 0 AND remaining_cents <= initial_cents)
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_members (
		user_id TEXT PRIMARY KEY,
		joined_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS loyalty_ledger (
		id BIGSERIAL PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES loyalty_members(user_id),
		points BIGINT NOT NULL,
		entry_type VARCHAR(32) NOT NULL,
		source TEXT NOT NULL,
		metadata JSONB,
		created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, entry_type, source)
	)`,
	`CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT NOT NULL,
		scope TEXT NOT NULL,
		principal TEXT NOT NULL,
		status VARCHAR(16) NOT NULL,
		status_code INTEGER,
		content_type TEXT,
		body BYTEA,
		created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		completed_at TIMESTAMPTZ,
		PRIMARY KEY (key, scope)
	)`,
	`CREATE TABLE IF NOT EXISTS webhook_events (
		event_id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		stripe_session_id TEXT,
		outcome VARCHAR(16) NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		attempts INTEGER NOT NULL DEFAULT 1,
		received_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
