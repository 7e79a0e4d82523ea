package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"retail-svc/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("Failed to create mock database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestTxManager_CommitsAndJoins(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)
	store := NewLoyaltyStore(db)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO loyalty_members").WithArgs("u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error {
		// A nested call joins the outer transaction.
		return tm.RunInTx(ctx, func(ctx context.Context) error {
			return store.EnsureMember(ctx, "u1")
		})
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestTxManager_RollsBackOnError(t *testing.T) {
	db, mock := newMock(t)
	tm := NewTxManager(db)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := tm.RunInTx(context.Background(), func(ctx context.Context) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderStore_CreateOrder(t *testing.T) {
	db, mock := newMock(t)
	store := NewOrderStore(db)

	productID := int64(7)
	order := &models.Order{
		UserID:          "u1",
		TotalCents:      2500,
		Currency:        "gbp",
		Status:          models.OrderStatusCompleted,
		StripeSessionID: "cs_1",
		Items:           []models.OrderItem{{ProductID: &productID, ProductName: "Mug", Quantity: 1, UnitPriceCents: 2500}},
	}

	mock.ExpectQuery("INSERT INTO orders").
		WithArgs("u1", int64(2500), "gbp", models.OrderStatusCompleted, "cs_1", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(42, time.Now()))
	mock.ExpectQuery("INSERT INTO order_items").
		WithArgs(int64(42), &productID, "Mug", 1, int64(2500)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))

	created, err := store.CreateOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !created || order.ID != 42 || order.Items[0].OrderID != 42 {
		t.Errorf("Expected order 42 to be created, got %+v", order)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderStore_CreateOrder_DuplicateSession(t *testing.T) {
	db, mock := newMock(t)
	store := NewOrderStore(db)

	mock.ExpectQuery("INSERT INTO orders").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}))

	created, err := store.CreateOrder(context.Background(), &models.Order{
		StripeSessionID: "cs_1",
		Items:           []models.OrderItem{{ProductName: "Mug", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if created {
		t.Error("Expected duplicate session to report not created")
	}
	// No item insert may follow a conflict.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Database expectations were not met: %v", err)
	}
}

func TestOrderStore_ProductIDByName_Ambiguous(t *testing.T) {
	db, mock := newMock(t)
	store := NewOrderStore(db)

	mock.ExpectQuery("SELECT id FROM products").
		WithArgs("Mug").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1).AddRow(2))

	id, err := store.ProductIDByName(context.Background(), " Mug ")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != nil {
		t.Errorf("Expected no match for ambiguous name, got %d", *id)
	}
}

func TestVoucherStore_CreateVoucher_CodeCollision(t *testing.T) {
	db, mock := newMock(t)
	store := NewVoucherStore(db)

	mock.ExpectQuery("INSERT INTO vouchers").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "vouchers_code_key"})

	_, err := store.CreateVoucher(context.Background(), &models.Voucher{Code: "AAAA-BBBB-CCCC", StripeSessionID: "cs_1"})
	if !errors.Is(err, models.ErrDuplicateCode) {
		t.Fatalf("Expected ErrDuplicateCode, got %v", err)
	}
}

func TestVoucherStore_Debit_NoQualifyingRow(t *testing.T) {
	db, mock := newMock(t)
	store := NewVoucherStore(db)
	now := time.Now()

	mock.ExpectQuery("UPDATE vouchers").
		WithArgs("AAAA-BBBB-CCCC", int64(1000), now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, ok, err := store.Debit(context.Background(), "AAAA-BBBB-CCCC", 1000, now)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if ok {
		t.Error("Expected debit to be refused")
	}
}

func TestBookingStore_LockBooking_NotFound(t *testing.T) {
	db, mock := newMock(t)
	store := NewBookingStore(db)

	mock.ExpectQuery("SELECT (.+) FROM event_bookings WHERE id = \\$1 FOR UPDATE").
		WithArgs("b1").
		WillReturnError(sql.ErrNoRows)

	_, err := store.LockBooking(context.Background(), "b1")
	if !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}

func TestIdempotencyStore_Claim(t *testing.T) {
	db, mock := newMock(t)
	store := NewIdempotencyStore(db)

	mock.ExpectQuery("INSERT INTO idempotency_keys (.+) ON CONFLICT \\(key, scope\\) DO NOTHING").
		WithArgs("k1", "loyalty.opt_in", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("k1"))
	mock.ExpectQuery("INSERT INTO idempotency_keys").
		WithArgs("k1", "loyalty.opt_in", "u1").
		WillReturnRows(sqlmock.NewRows([]string{"key"}))

	claimed, err := store.Claim(context.Background(), "k1", "loyalty.opt_in", "u1")
	if err != nil || !claimed {
		t.Fatalf("Expected first claim to win, got %v %v", claimed, err)
	}
	claimed, err = store.Claim(context.Background(), "k1", "loyalty.opt_in", "u1")
	if err != nil || claimed {
		t.Fatalf("Expected second claim to lose, got %v %v", claimed, err)
	}
}

func TestWebhookEventStore_SessionProcessed(t *testing.T) {
	db, mock := newMock(t)
	store := NewWebhookEventStore(db)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("cs_1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := store.SessionProcessed(context.Background(), "cs_1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if !ok {
		t.Error("Expected session to be reported as processed")
	}
}

func TestWebhookEventStore_Record(t *testing.T) {
	db, mock := newMock(t)
	store := NewWebhookEventStore(db)

	mock.ExpectQuery("INSERT INTO webhook_events").
		WithArgs("evt_1", "checkout.session.completed", "cs_1", models.WebhookFailed, "boom").
		WillReturnRows(sqlmock.NewRows([]string{"attempts", "received_at"}).AddRow(2, time.Now()))

	e := &models.WebhookEvent{
		EventID:         "evt_1",
		EventType:       "checkout.session.completed",
		StripeSessionID: "cs_1",
		Outcome:         models.WebhookFailed,
		Detail:          "boom",
	}
	if err := store.Record(context.Background(), e); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if e.Attempts != 2 {
		t.Errorf("Expected attempts 2, got %d", e.Attempts)
	}
}
