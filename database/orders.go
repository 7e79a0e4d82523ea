package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"retail-svc/models"
)

type OrderStore struct {
	db *sql.DB
}

func NewOrderStore(db *sql.DB) *OrderStore {
	return &OrderStore{db: db}
}

// CreateOrder inserts a completed order and its items. It reports false,
// without writing anything, when an order for the same checkout session
// already exists.
func (s *OrderStore) CreateOrder(ctx context.Context, o *models.Order) (bool, error) {
	q := conn(ctx, s.db)

	err := q.QueryRowContext(ctx,
		`INSERT INTO orders (user_id, total_cents, currency, status, stripe_session_id, stripe_payment_intent_id)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		 ON CONFLICT (stripe_session_id) DO NOTHING
		 RETURNING id, created_at`,
		o.UserID, o.TotalCents, o.Currency, o.Status, o.StripeSessionID, o.StripePaymentIntentID,
	).Scan(&o.ID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := q.QueryRowContext(ctx,
			`INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents,
		).Scan(&item.ID)
		if err != nil {
			return false, fmt.Errorf("failed to insert order item: %w", err)
		}
	}
	return true, nil
}

// CreateGuestOrder is the guest counterpart of CreateOrder.
func (s *OrderStore) CreateGuestOrder(ctx context.Context, o *models.GuestOrder) (bool, error) {
	q := conn(ctx, s.db)

	err := q.QueryRowContext(ctx,
		`INSERT INTO guest_orders (guest_token, email, total_cents, currency, status, stripe_session_id, stripe_payment_intent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))
		 ON CONFLICT (stripe_session_id) DO NOTHING
		 RETURNING id, created_at`,
		o.GuestToken, o.Email, o.TotalCents, o.Currency, o.Status, o.StripeSessionID, o.StripePaymentIntentID,
	).Scan(&o.ID, &o.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert guest order: %w", err)
	}

	for i := range o.Items {
		item := &o.Items[i]
		item.OrderID = o.ID
		err := q.QueryRowContext(ctx,
			`INSERT INTO guest_order_items (guest_order_id, product_id, product_name, quantity, unit_price_cents)
			 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
			o.ID, item.ProductID, item.ProductName, item.Quantity, item.UnitPriceCents,
		).Scan(&item.ID)
		if err != nil {
			return false, fmt.Errorf("failed to insert guest order item: %w", err)
		}
	}
	return true, nil
}

func (s *OrderStore) UpdateReceipt(ctx context.Context, orderID int64, r models.Receipt) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		`UPDATE orders SET receipt_url = NULLIF($1, ''), card_brand = NULLIF($2, ''), card_last4 = NULLIF($3, ''), paid_at = $4
		 WHERE id = $5`,
		r.URL, r.CardBrand, r.CardLast4, r.PaidAt, orderID,
	)
	if err != nil {
		return fmt.Errorf("failed to update receipt: %w", err)
	}
	return nil
}

// ProductIDByName resolves a product by case-insensitive name. It returns nil
// when no single product matches.
func (s *OrderStore) ProductIDByName(ctx context.Context, name string) (*int64, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		"SELECT id FROM products WHERE lower(name) = lower($1) LIMIT 2",
		strings.TrimSpace(name),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up product: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) != 1 {
		return nil, nil
	}
	return &ids[0], nil
}

// LockGuestOrdersByEmail loads every guest order for the email, items included,
// and locks the rows for the rest of the transaction.
func (s *OrderStore) LockGuestOrdersByEmail(ctx context.Context, email string) ([]models.GuestOrder, error) {
	q := conn(ctx, s.db)

	rows, err := q.QueryContext(ctx,
		`SELECT id, guest_token, email, total_cents, currency, status, COALESCE(stripe_session_id, ''),
		        COALESCE(stripe_payment_intent_id, ''), created_at
		 FROM guest_orders WHERE lower(email) = lower($1) ORDER BY id FOR UPDATE`,
		strings.TrimSpace(email),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query guest orders: %w", err)
	}

	var orders []models.GuestOrder
	for rows.Next() {
		var o models.GuestOrder
		if err := rows.Scan(&o.ID, &o.GuestToken, &o.Email, &o.TotalCents, &o.Currency, &o.Status,
			&o.StripeSessionID, &o.StripePaymentIntentID, &o.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan guest order: %w", err)
		}
		orders = append(orders, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		items, err := s.guestItems(ctx, q, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (s *OrderStore) guestItems(ctx context.Context, q querier, guestOrderID int64) ([]models.OrderItem, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, product_id, product_name, quantity, unit_price_cents
		 FROM guest_order_items WHERE guest_order_id = $1 ORDER BY id`,
		guestOrderID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query guest order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var it models.OrderItem
		var productID sql.NullInt64
		if err := rows.Scan(&it.ID, &productID, &it.ProductName, &it.Quantity, &it.UnitPriceCents); err != nil {
			return nil, fmt.Errorf("failed to scan guest order item: %w", err)
		}
		if productID.Valid {
			id := productID.Int64
			it.ProductID = &id
		}
		it.OrderID = guestOrderID
		items = append(items, it)
	}
	return items, rows.Err()
}

func (s *OrderStore) DeleteGuestOrder(ctx context.Context, id int64) error {
	_, err := conn(ctx, s.db).ExecContext(ctx, "DELETE FROM guest_orders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to delete guest order: %w", err)
	}
	return nil
}
