package loyalty

import (
	"context"
	"errors"
	"testing"

	"retail-svc/models"

	"go.uber.org/zap/zaptest"
)

type fakeStore struct {
	members map[string]bool
	entries []models.LoyaltyEntry
}

func newFakeStore() *fakeStore {
	return &fakeStore{members: map[string]bool{}}
}

func (f *fakeStore) EnsureMember(ctx context.Context, userID string) error {
	f.members[userID] = true
	return nil
}

func (f *fakeStore) IsMember(ctx context.Context, userID string) (bool, error) {
	return f.members[userID], nil
}

func (f *fakeStore) AddEntry(ctx context.Context, e *models.LoyaltyEntry) (bool, error) {
	for _, existing := range f.entries {
		if existing.UserID == e.UserID && existing.Type == e.Type && existing.Source == e.Source {
			return false, nil
		}
	}
	f.entries = append(f.entries, *e)
	return true, nil
}

func (f *fakeStore) Balance(ctx context.Context, userID string) (int64, error) {
	var total int64
	for _, e := range f.entries {
		if e.UserID == userID {
			total += e.Points
		}
	}
	return total, nil
}

type inlineTx struct{}

func (inlineTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

func TestOptIn_AwardsBonusOnce(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, inlineTx{}, 100, zaptest.NewLogger(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		balance, err := svc.OptIn(ctx, "u1")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if balance != 100 {
			t.Errorf("Attempt %d: expected balance 100, got %d", i+1, balance)
		}
	}
	if len(store.entries) != 1 {
		t.Errorf("Expected exactly one ledger entry, got %d", len(store.entries))
	}
}

func TestBalance_NotMember(t *testing.T) {
	svc := NewService(newFakeStore(), inlineTx{}, 100, zaptest.NewLogger(t))
	if _, err := svc.Balance(context.Background(), "u1"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("Expected ErrNotMember, got %v", err)
	}
}

func TestEarnForOrder(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, inlineTx{}, 100, zaptest.NewLogger(t))
	ctx := context.Background()

	points, err := svc.EarnForOrder(ctx, "u1", 1, 2599)
	if err != nil || points != 0 {
		t.Fatalf("Expected non-member to earn nothing, got %d %v", points, err)
	}

	if _, err := svc.OptIn(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	points, err = svc.EarnForOrder(ctx, "u1", 1, 2599)
	if err != nil || points != 25 {
		t.Fatalf("Expected 25 points, got %d %v", points, err)
	}
	points, _ = svc.EarnForOrder(ctx, "u1", 1, 2599)
	if points != 0 {
		t.Errorf("Expected repeat earn for the same order to award nothing, got %d", points)
	}

	balance, _ := svc.Balance(ctx, "u1")
	if balance != 125 {
		t.Errorf("Expected balance 125, got %d", balance)
	}
}
