package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/activity"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	store       *memory.MemoryStore
	ledger      *ledger.Ledger
	expenses    *ExpenseService
	settlements *SettlementService
	balances    *BalanceService
}

// newFixture wires the services over an in-memory store without realtime
// delivery.
func newFixture() *fixture {
	store := memory.New()
	ldgr := ledger.New(store)
	emitter := activity.NewEmitter(store)
	return &fixture{
		store:       store,
		ledger:      ldgr,
		expenses:    NewExpenseService(store, ldgr, emitter, nil),
		settlements: NewSettlementService(store, ldgr, emitter, nil),
		balances:    NewBalanceService(store, ldgr),
	}
}

func groupEntry(t *testing.T, f *fixture, scope, owner, counterparty string) decimal.Decimal {
	t.Helper()
	entries, err := f.store.LedgerEntries(context.Background(), scope)
	if err != nil {
		t.Fatalf("LedgerEntries failed: %v", err)
	}
	for _, e := range entries {
		if e.OwnerID == owner && e.CounterpartyID == counterparty {
			return e.Amount
		}
	}
	return decimal.Zero
}

func dinnerInput() ExpenseInput {
	return ExpenseInput{
		GroupID:      "trip",
		Description:  "Dinner",
		Amount:       dec("60"),
		Currency:     "USD",
		PayerID:      "alice",
		SplitMethod:  models.SplitEqual,
		Participants: []string{"alice", "bob", "carol"},
	}
}

func TestExpenseCreate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expense, err := f.expenses.Create(ctx, "alice", dinnerInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if expense.ID == "" {
		t.Error("expected expense ID to be generated")
	}
	if len(expense.Splits) != 3 {
		t.Fatalf("got %d splits, want 3", len(expense.Splits))
	}

	if got := groupEntry(t, f, "trip", "alice", "bob"); !got.Equal(dec("20")) {
		t.Errorf("entry(alice,bob) = %s, want 20", got)
	}
	if got := groupEntry(t, f, models.ScopeAggregate, "alice", "carol"); !got.Equal(dec("20")) {
		t.Errorf("aggregate entry(alice,carol) = %s, want 20", got)
	}

	activities, err := f.store.ListActivities(ctx, "trip", 10)
	if err != nil {
		t.Fatalf("ListActivities failed: %v", err)
	}
	if len(activities) != 1 || activities[0].Type != models.ActivityExpenseAdded {
		t.Errorf("unexpected activities: %+v", activities)
	}
}

func TestExpenseCreateRejectsOutsidePayer(t *testing.T) {
	f := newFixture()

	input := dinnerInput()
	input.PayerID = "mallory"
	if _, err := f.expenses.Create(context.Background(), "mallory", input); err == nil {
		t.Fatal("expected error for payer outside participants")
	}
}

func TestExpenseUpdate(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expense, err := f.expenses.Create(ctx, "alice", dinnerInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	updated := dinnerInput()
	updated.Amount = dec("90")
	updated.Participants = []string{"alice", "bob"}
	got, err := f.expenses.Update(ctx, "alice", expense.ID, updated)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if !got.Amount.Equal(dec("90")) {
		t.Errorf("amount = %s, want 90", got.Amount)
	}

	// Old effect gone, new effect in place: bob now owes 45, carol nothing.
	if got := groupEntry(t, f, "trip", "alice", "bob"); !got.Equal(dec("45")) {
		t.Errorf("entry(alice,bob) = %s, want 45", got)
	}
	if got := groupEntry(t, f, "trip", "alice", "carol"); !got.IsZero() {
		t.Errorf("entry(alice,carol) = %s, want 0", got)
	}
}

func TestExpenseDelete(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expense, err := f.expenses.Create(ctx, "alice", dinnerInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.expenses.Delete(ctx, "alice", expense.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	if got := groupEntry(t, f, "trip", "alice", "bob"); !got.IsZero() {
		t.Errorf("entry(alice,bob) = %s after delete, want 0", got)
	}

	// Row survives for audit, marked deleted.
	stored, err := f.expenses.Get(ctx, expense.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !stored.Deleted {
		t.Error("expected expense to be marked deleted")
	}

	// A second delete must not reverse the ledger again.
	if err := f.expenses.Delete(ctx, "alice", expense.ID); !errors.Is(err, ErrExpenseDeleted) {
		t.Errorf("second delete error = %v, want ErrExpenseDeleted", err)
	}
	if got := groupEntry(t, f, "trip", "bob", "alice"); !got.IsZero() {
		t.Errorf("entry(bob,alice) = %s after double delete, want 0", got)
	}
}

func TestExpenseUpdateDeletedFails(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	expense, err := f.expenses.Create(ctx, "alice", dinnerInput())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := f.expenses.Delete(ctx, "alice", expense.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := f.expenses.Update(ctx, "alice", expense.ID, dinnerInput()); !errors.Is(err, ErrExpenseDeleted) {
		t.Errorf("error = %v, want ErrExpenseDeleted", err)
	}
}

func TestExpenseGetMissing(t *testing.T) {
	f := newFixture()
	if _, err := f.expenses.Get(context.Background(), "nope"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("error = %v, want ErrNotFound", err)
	}
}
