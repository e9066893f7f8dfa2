package ledger

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// entryAmount finds the amount of entry(owner, counterparty) in entries, or
// fails the test.
func entryAmount(t *testing.T, entries []models.LedgerEntry, owner, counterparty string) decimal.Decimal {
	t.Helper()
	for _, e := range entries {
		if e.OwnerID == owner && e.CounterpartyID == counterparty {
			return e.Amount
		}
	}
	t.Fatalf("no entry for %s/%s", owner, counterparty)
	return decimal.Zero
}

func assertMirrored(t *testing.T, entries []models.LedgerEntry) {
	t.Helper()
	for _, e := range entries {
		mirror := entryAmount(t, entries, e.CounterpartyID, e.OwnerID)
		if !mirror.Equal(e.Amount.Neg()) {
			t.Errorf("entry(%s,%s) = %s but entry(%s,%s) = %s, want negation",
				e.OwnerID, e.CounterpartyID, e.Amount, e.CounterpartyID, e.OwnerID, mirror)
		}
	}
}

func threeWayDinner() *models.Expense {
	return &models.Expense{
		ID:          "exp-1",
		GroupID:     "trip",
		Description: "Dinner",
		Amount:      dec("60"),
		Currency:    "USD",
		PayerID:     "alice",
		SplitMethod: models.SplitEqual,
		Splits: []models.Split{
			{ParticipantID: "alice", OwedAmount: dec("20")},
			{ParticipantID: "bob", OwedAmount: dec("20")},
			{ParticipantID: "carol", OwedAmount: dec("20")},
		},
		CreatedBy: "alice",
	}
}

func TestApplyExpenseCreated(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()

	if err := ldgr.ApplyExpenseCreated(ctx, threeWayDinner()); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}

	entries, err := ldgr.Snapshot(ctx, "trip")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}

	// Alice paid 60, owes her own 20: net +40, i.e. +20 from each of the
	// other two. The payer's own share never hits the ledger.
	if got := entryAmount(t, entries, "alice", "bob"); !got.Equal(dec("20")) {
		t.Errorf("entry(alice,bob) = %s, want 20", got)
	}
	if got := entryAmount(t, entries, "alice", "carol"); !got.Equal(dec("20")) {
		t.Errorf("entry(alice,carol) = %s, want 20", got)
	}
	if got := entryAmount(t, entries, "bob", "alice"); !got.Equal(dec("-20")) {
		t.Errorf("entry(bob,alice) = %s, want -20", got)
	}
	assertMirrored(t, entries)

	// The same deltas mirror into the aggregate scope.
	aggregate, err := ldgr.Snapshot(ctx, models.ScopeAggregate)
	if err != nil {
		t.Fatalf("Snapshot aggregate failed: %v", err)
	}
	if got := entryAmount(t, aggregate, "alice", "bob"); !got.Equal(dec("20")) {
		t.Errorf("aggregate entry(alice,bob) = %s, want 20", got)
	}
	assertMirrored(t, aggregate)
}

func TestReverseExpenseRestoresZero(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()
	expense := threeWayDinner()

	if err := ldgr.ApplyExpenseCreated(ctx, expense); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}
	if err := ldgr.ReverseExpense(ctx, expense); err != nil {
		t.Fatalf("ReverseExpense failed: %v", err)
	}

	for _, scope := range []string{"trip", models.ScopeAggregate} {
		entries, err := ldgr.Snapshot(ctx, scope)
		if err != nil {
			t.Fatalf("Snapshot %q failed: %v", scope, err)
		}
		for _, e := range entries {
			if !e.Amount.IsZero() {
				t.Errorf("scope %q entry(%s,%s) = %s after reversal, want 0",
					scope, e.OwnerID, e.CounterpartyID, e.Amount)
			}
		}
	}
}

func TestReplaceExpense(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()
	old := threeWayDinner()

	if err := ldgr.ApplyExpenseCreated(ctx, old); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}

	// Re-split the same 60 across alice and bob only.
	updated := threeWayDinner()
	updated.Splits = []models.Split{
		{ParticipantID: "alice", OwedAmount: dec("30")},
		{ParticipantID: "bob", OwedAmount: dec("30")},
	}
	if err := ldgr.ReplaceExpense(ctx, old, updated); err != nil {
		t.Fatalf("ReplaceExpense failed: %v", err)
	}

	entries, err := ldgr.Snapshot(ctx, "trip")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := entryAmount(t, entries, "alice", "bob"); !got.Equal(dec("30")) {
		t.Errorf("entry(alice,bob) = %s, want 30", got)
	}
	if got := entryAmount(t, entries, "alice", "carol"); !got.IsZero() {
		t.Errorf("entry(alice,carol) = %s, want 0 after carol dropped", got)
	}
	assertMirrored(t, entries)
}

func TestApplySettlementConfirmed(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()

	if err := ldgr.ApplyExpenseCreated(ctx, threeWayDinner()); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}

	// Bob pays alice back his 20.
	settlement := &models.Settlement{
		ID:         "set-1",
		GroupID:    "trip",
		FromUserID: "bob",
		ToUserID:   "alice",
		Amount:     dec("20"),
		Currency:   "USD",
		Status:     models.SettlementConfirmed,
	}
	if err := ldgr.ApplySettlementConfirmed(ctx, settlement); err != nil {
		t.Fatalf("ApplySettlementConfirmed failed: %v", err)
	}

	entries, err := ldgr.Snapshot(ctx, "trip")
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := entryAmount(t, entries, "alice", "bob"); !got.IsZero() {
		t.Errorf("entry(alice,bob) = %s after settlement, want 0", got)
	}
	if got := entryAmount(t, entries, "alice", "carol"); !got.Equal(dec("20")) {
		t.Errorf("entry(alice,carol) = %s, want 20 untouched", got)
	}
	assertMirrored(t, entries)
}

func TestDirectExpenseOnlyTouchesAggregate(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()

	expense := &models.Expense{
		ID:          "exp-direct",
		Description: "Taxi",
		Amount:      dec("30"),
		Currency:    "USD",
		PayerID:     "alice",
		SplitMethod: models.SplitEqual,
		Splits: []models.Split{
			{ParticipantID: "alice", OwedAmount: dec("15")},
			{ParticipantID: "bob", OwedAmount: dec("15")},
		},
	}
	if err := ldgr.ApplyExpenseCreated(ctx, expense); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}

	aggregate, err := ldgr.Snapshot(ctx, models.ScopeAggregate)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if got := entryAmount(t, aggregate, "alice", "bob"); !got.Equal(dec("15")) {
		t.Errorf("aggregate entry(alice,bob) = %s, want 15", got)
	}
	if len(aggregate) != 2 {
		t.Errorf("aggregate has %d entries, want 2", len(aggregate))
	}
}

func TestLinkCreatesZeroedPair(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()

	if err := ldgr.Link(ctx, "alice", "bob", models.ScopeAggregate, "USD"); err != nil {
		t.Fatalf("Link failed: %v", err)
	}

	entries, err := ldgr.Snapshot(ctx, models.ScopeAggregate)
	if err != nil {
		t.Fatalf("Snapshot failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want mirrored pair", len(entries))
	}
	for _, e := range entries {
		if !e.Amount.IsZero() {
			t.Errorf("entry(%s,%s) = %s, want 0", e.OwnerID, e.CounterpartyID, e.Amount)
		}
	}
}

func TestSnapshotForUser(t *testing.T) {
	store := memory.New()
	ldgr := New(store)
	ctx := context.Background()

	if err := ldgr.ApplyExpenseCreated(ctx, threeWayDinner()); err != nil {
		t.Fatalf("ApplyExpenseCreated failed: %v", err)
	}

	entries, err := ldgr.SnapshotForUser(ctx, "bob")
	if err != nil {
		t.Fatalf("SnapshotForUser failed: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("expected entries owned by bob")
	}
	for _, e := range entries {
		if e.OwnerID != "bob" {
			t.Errorf("entry owned by %s leaked into bob's view", e.OwnerID)
		}
	}
}
