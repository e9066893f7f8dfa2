package service

import (
	"context"
	"testing"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/realtime"
)

func TestGroupBalances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedDebt(t, f)

	summary, err := f.balances.GroupBalances(ctx, "trip")
	if err != nil {
		t.Fatalf("GroupBalances failed: %v", err)
	}

	nets := make(map[string]string)
	for _, m := range summary.Members {
		nets[m.UserID] = m.Net
	}
	if nets["alice"] != "40.00" {
		t.Errorf("alice net = %s, want 40.00", nets["alice"])
	}
	if nets["bob"] != "-20.00" {
		t.Errorf("bob net = %s, want -20.00", nets["bob"])
	}

	if len(summary.Settle) != 2 {
		t.Fatalf("got %d settle transactions, want 2", len(summary.Settle))
	}
	for _, txn := range summary.Settle {
		if txn.ToID != "alice" {
			t.Errorf("transaction pays %s, want alice", txn.ToID)
		}
		if txn.Amount != "20" {
			t.Errorf("transaction amount = %s, want 20", txn.Amount)
		}
	}
}

func TestUserBalances(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedDebt(t, f)

	summary, err := f.balances.UserBalances(ctx, "alice")
	if err != nil {
		t.Fatalf("UserBalances failed: %v", err)
	}
	if summary.TotalOwed != "40.00" {
		t.Errorf("total owed = %s, want 40.00", summary.TotalOwed)
	}
	if summary.TotalOwing != "0.00" {
		t.Errorf("total owing = %s, want 0.00", summary.TotalOwing)
	}
	if len(summary.Friends) != 2 {
		t.Fatalf("got %d friends, want 2", len(summary.Friends))
	}

	debtor, err := f.balances.UserBalances(ctx, "bob")
	if err != nil {
		t.Fatalf("UserBalances failed: %v", err)
	}
	if debtor.TotalOwing != "20.00" {
		t.Errorf("bob total owing = %s, want 20.00", debtor.TotalOwing)
	}
}

func TestSyncState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	seedDebt(t, f)

	t.Run("group channel", func(t *testing.T) {
		state, err := f.balances.SyncState(ctx, "trip", "bob")
		if err != nil {
			t.Fatalf("SyncState failed: %v", err)
		}
		payload, ok := state.(map[string]any)
		if !ok {
			t.Fatalf("unexpected state type %T", state)
		}
		summary, ok := payload["balances"].(*GroupBalanceSummary)
		if !ok {
			t.Fatalf("unexpected balances type %T", payload["balances"])
		}
		if summary.GroupID != "trip" {
			t.Errorf("group = %s, want trip", summary.GroupID)
		}
		activities, ok := payload["activities"].([]models.Activity)
		if !ok || len(activities) != 1 {
			t.Errorf("unexpected activities: %+v", payload["activities"])
		}
	})

	t.Run("personal channel", func(t *testing.T) {
		state, err := f.balances.SyncState(ctx, realtime.UserChannel("bob"), "bob")
		if err != nil {
			t.Fatalf("SyncState failed: %v", err)
		}
		payload, ok := state.(map[string]any)
		if !ok {
			t.Fatalf("unexpected state type %T", state)
		}
		summary, ok := payload["balances"].(*UserBalanceSummary)
		if !ok {
			t.Fatalf("unexpected balances type %T", payload["balances"])
		}
		if summary.UserID != "bob" {
			t.Errorf("user = %s, want bob", summary.UserID)
		}
	})
}
