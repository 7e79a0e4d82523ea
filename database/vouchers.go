package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"retail-svc/models"
)

type VoucherStore struct {
	db *sql.DB
}

func NewVoucherStore(db *sql.DB) *VoucherStore {
	return &VoucherStore{db: db}
}

const voucherColumns = `id, code, initial_cents, remaining_cents, currency, status, buyer_name, buyer_email,
	recipient_name, recipient_email, message, delivery_mode, scheduled_for, delivered_at, expires_at,
	stripe_session_id, COALESCE(stripe_payment_intent_id, ''), created_at`

func scanVoucher(row interface{ Scan(...any) error }) (*models.Voucher, error) {
	var v models.Voucher
	var scheduledFor, deliveredAt sql.NullTime
	err := row.Scan(&v.ID, &v.Code, &v.InitialCents, &v.RemainingCents, &v.Currency, &v.Status,
		&v.BuyerName, &v.BuyerEmail, &v.RecipientName, &v.RecipientEmail, &v.Message, &v.DeliveryMode,
		&scheduledFor, &deliveredAt, &v.ExpiresAt, &v.StripeSessionID, &v.StripePaymentIntentID, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if scheduledFor.Valid {
		t := scheduledFor.Time
		v.ScheduledFor = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		v.DeliveredAt = &t
	}
	return &v, nil
}

// CreateVoucher inserts v unless a voucher already exists for its checkout
// session, in which case it reports false. A code collision returns
// models.ErrDuplicateCode.
func (s *VoucherStore) CreateVoucher(ctx context.Context, v *models.Voucher) (bool, error) {
	err := conn(ctx, s.db).QueryRowContext(ctx,
		`INSERT INTO vouchers (code, initial_cents, remaining_cents, currency, status, buyer_name, buyer_email,
		                       recipient_name, recipient_email, message, delivery_mode, scheduled_for, delivered_at,
		                       expires_at, stripe_session_id, stripe_payment_intent_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''))
		 ON CONFLICT (stripe_session_id) DO NOTHING
		 RETURNING id, created_at`,
		v.Code, v.InitialCents, v.RemainingCents, v.Currency, v.Status, v.BuyerName, v.BuyerEmail,
		v.RecipientName, v.RecipientEmail, v.Message, v.DeliveryMode, v.ScheduledFor, v.DeliveredAt,
		v.ExpiresAt, v.StripeSessionID, v.StripePaymentIntentID,
	).Scan(&v.ID, &v.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if isUniqueViolation(err, "vouchers_code_key") {
		return false, models.ErrDuplicateCode
	}
	if err != nil {
		return false, fmt.Errorf("failed to insert voucher: %w", err)
	}
	return true, nil
}

func (s *VoucherStore) GetBySession(ctx context.Context, sessionID string) (*models.Voucher, error) {
	v, err := scanVoucher(conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE stripe_session_id = $1", sessionID))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, err
}

func (s *VoucherStore) GetByCode(ctx context.Context, code string) (*models.Voucher, error) {
	v, err := scanVoucher(conn(ctx, s.db).QueryRowContext(ctx,
		"SELECT "+voucherColumns+" FROM vouchers WHERE code = $1", code))
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("failed to get voucher: %w", err)
	}
	return v, err
}

// ClaimDue marks up to limit scheduled vouchers whose delivery time has passed
// as delivered and returns them. Concurrent workers never claim the same row.
func (s *VoucherStore) ClaimDue(ctx context.Context, now time.Time, limit int) ([]models.Voucher, error) {
	rows, err := conn(ctx, s.db).QueryContext(ctx,
		`UPDATE vouchers SET delivered_at = $1
		 WHERE id IN (
		     SELECT id FROM vouchers
		     WHERE delivery_mode = 'schedule' AND delivered_at IS NULL AND scheduled_for <= $1
		     ORDER BY scheduled_for
		     LIMIT $2
		     FOR UPDATE SKIP LOCKED
		 )
		 RETURNING `+voucherColumns,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due vouchers: %w", err)
	}
	defer rows.Close()

	var due []models.Voucher
	for rows.Next() {
		v, err := scanVoucher(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan voucher: %w", err)
		}
		due = append(due, *v)
	}
	return due, rows.Err()
}

// ReleaseClaim makes a claimed voucher due again.
func (s *VoucherStore) ReleaseClaim(ctx context.Context, id int64) error {
	_, err := conn(ctx, s.db).ExecContext(ctx,
		"UPDATE vouchers SET delivered_at = NULL WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("failed to release voucher claim: %w", err)
	}
	return nil
}

// Debit subtracts amount from the remaining balance if the voucher is active,
// unexpired and holds enough. It reports false when no row qualified.
func (s *VoucherStore) Debit(ctx context.Context, code string, amount int64, now time.Time) (*models.Voucher, bool, error) {
	v, err := scanVoucher(conn(ctx, s.db).QueryRowContext(ctx,
		`UPDATE vouchers
		 SET remaining_cents = remaining_cents - $2,
		     status = CASE WHEN remaining_cents - $2 = 0 THEN 'redeemed' ELSE status END
		 WHERE code = $1 AND status = 'active' AND expires_at > $3 AND remaining_cents >= $2
		 RETURNING `+voucherColumns,
		code, amount, now))
	if errors.Is(err, models.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to debit voucher: %w", err)
	}
	return v, true, nil
}
