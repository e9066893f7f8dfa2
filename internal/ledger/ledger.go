// Package ledger maintains the net-balance record of who owes whom.
//
// Every balance lives in a mirrored pair of rows per scope: for users A and B,
// entry(A,B).Amount is always the negation of entry(B,A).Amount. A mutation
// scoped to a group also mirrors into the aggregate (empty) scope in the same
// atomic batch, so per-group and global balances stay consistent.
package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/metrics"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ledger exposes atomic balance adjustment operations over a storage backend.
// It is stateless; correctness for concurrent adjustments to the same pair
// relies on the store's transactional guarantees, not process-level locks.
type Ledger struct {
	store storage.Store
}

// New creates a Ledger backed by the given store.
func New(store storage.Store) *Ledger {
	return &Ledger{store: store}
}

// Adjust atomically adds delta to entry(owner, counterparty, scope) and its
// negation to the mirrored row, creating zeroed rows on first touch.
func (l *Ledger) Adjust(ctx context.Context, ownerID, counterpartyID, scopeID string, delta decimal.Decimal, currency string) error {
	adj := models.Adjustment{
		OwnerID:        ownerID,
		CounterpartyID: counterpartyID,
		ScopeID:        scopeID,
		Delta:          delta,
		Currency:       currency,
	}
	if err := l.store.ApplyAdjustments(ctx, []models.Adjustment{adj}); err != nil {
		return fmt.Errorf("adjust %s/%s: %w", ownerID, counterpartyID, err)
	}
	metrics.LedgerAdjustments.Add(1)
	return nil
}

// ApplyExpenseCreated records an expense's effect: every non-payer
// participant now owes the payer their share, in the expense's scope and in
// the aggregate scope. All pairs commit as one batch; a failure leaves the
// ledger untouched.
func (l *Ledger) ApplyExpenseCreated(ctx context.Context, expense *models.Expense) error {
	adjs := expenseAdjustments(expense, false)
	if len(adjs) == 0 {
		return nil
	}
	if err := l.store.ApplyAdjustments(ctx, adjs); err != nil {
		return fmt.Errorf("apply expense %s: %w", expense.ID, err)
	}
	metrics.LedgerAdjustments.Add(float64(len(adjs)))
	return nil
}

// ReverseExpense negates a previously applied expense using its stored
// splits, never recomputed ones. Used on delete and on update before the new
// splits are applied.
func (l *Ledger) ReverseExpense(ctx context.Context, expense *models.Expense) error {
	adjs := expenseAdjustments(expense, true)
	if len(adjs) == 0 {
		return nil
	}
	if err := l.store.ApplyAdjustments(ctx, adjs); err != nil {
		return fmt.Errorf("reverse expense %s: %w", expense.ID, err)
	}
	metrics.LedgerAdjustments.Add(float64(len(adjs)))
	return nil
}

// ReplaceExpense reverses the old expense (by its stored splits) and applies
// the new one in a single atomic batch, so the reversal can never interleave
// with the reapply and no intermediate state is ever visible.
func (l *Ledger) ReplaceExpense(ctx context.Context, oldExpense, newExpense *models.Expense) error {
	adjs := append(expenseAdjustments(oldExpense, true), expenseAdjustments(newExpense, false)...)
	if len(adjs) == 0 {
		return nil
	}
	if err := l.store.ApplyAdjustments(ctx, adjs); err != nil {
		return fmt.Errorf("replace expense %s: %w", oldExpense.ID, err)
	}
	metrics.LedgerAdjustments.Add(float64(len(adjs)))
	return nil
}

// ApplySettlementConfirmed records a confirmed payment: the recipient is owed
// the amount less by the payer.
func (l *Ledger) ApplySettlementConfirmed(ctx context.Context, settlement *models.Settlement) error {
	adjs := pairAdjustments(settlement.ToUserID, settlement.FromUserID, settlement.GroupID,
		settlement.Amount.Neg(), settlement.Currency)
	if err := l.store.ApplyAdjustments(ctx, adjs); err != nil {
		return fmt.Errorf("apply settlement %s: %w", settlement.ID, err)
	}
	metrics.LedgerAdjustments.Add(float64(len(adjs)))
	return nil
}

// Snapshot returns a consistent point-in-time view of all ledger rows in a
// scope (group ID, or models.ScopeAggregate for the global view).
func (l *Ledger) Snapshot(ctx context.Context, scopeID string) ([]models.LedgerEntry, error) {
	return l.store.LedgerEntries(ctx, scopeID)
}

// SnapshotForUser returns all rows owned by the user across every scope.
func (l *Ledger) SnapshotForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	return l.store.LedgerEntriesForUser(ctx, userID)
}

// Link creates zeroed pair rows when two users become connected (friendship
// accepted or joint group membership).
func (l *Ledger) Link(ctx context.Context, userA, userB, scopeID, currency string) error {
	return l.store.LinkUsers(ctx, userA, userB, scopeID, currency)
}

// expenseAdjustments builds the adjustment batch for an expense. The payer's
// own share is a no-op. A group-scoped expense mirrors each pair delta into
// the aggregate scope; a direct expense only touches the aggregate scope.
func expenseAdjustments(expense *models.Expense, reverse bool) []models.Adjustment {
	var adjs []models.Adjustment
	for _, split := range expense.Splits {
		if split.ParticipantID == expense.PayerID {
			continue
		}
		delta := split.OwedAmount
		if reverse {
			delta = delta.Neg()
		}
		adjs = append(adjs, pairAdjustments(expense.PayerID, split.ParticipantID, expense.GroupID, delta, expense.Currency)...)
	}
	return adjs
}

// pairAdjustments returns the scoped adjustment plus its aggregate mirror.
func pairAdjustments(ownerID, counterpartyID, scopeID string, delta decimal.Decimal, currency string) []models.Adjustment {
	adjs := []models.Adjustment{{
		OwnerID:        ownerID,
		CounterpartyID: counterpartyID,
		ScopeID:        models.ScopeAggregate,
		Delta:          delta,
		Currency:       currency,
	}}
	if scopeID != models.ScopeAggregate {
		adjs = append(adjs, models.Adjustment{
			OwnerID:        ownerID,
			CounterpartyID: counterpartyID,
			ScopeID:        scopeID,
			Delta:          delta,
			Currency:       currency,
		})
	}
	return adjs
}
