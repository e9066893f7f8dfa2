// Package activity turns completed ledger mutations into append-only,
// human-readable records.
package activity

import (
	"context"
	"fmt"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Emitter appends activity records after a mutation commits. Appends are
// best-effort: the enclosing mutation is already successful, so a failed
// append is a recoverable gap the caller logs and moves past.
type Emitter struct {
	store storage.Store
}

// NewEmitter creates an Emitter backed by the given store.
func NewEmitter(store storage.Store) *Emitter {
	return &Emitter{store: store}
}

// Record appends one activity record. Callers must invoke it only after the
// mutation it references has committed.
func (e *Emitter) Record(ctx context.Context, scopeID, actorID, activityType, referenceID, message string) error {
	record := &models.Activity{
		ScopeID:     scopeID,
		ActorID:     actorID,
		Type:        activityType,
		ReferenceID: referenceID,
		Message:     message,
	}
	if err := e.store.AppendActivity(ctx, record); err != nil {
		return fmt.Errorf("append activity %s: %w", activityType, err)
	}
	return nil
}

// ExpenseMessage renders the feed line for an expense mutation.
func ExpenseMessage(activityType string, expense *models.Expense) string {
	switch activityType {
	case models.ActivityExpenseAdded:
		return fmt.Sprintf("%s added %q (%s %s)", expense.PayerID, expense.Description, expense.Amount.Round(2), expense.Currency)
	case models.ActivityExpenseUpdated:
		return fmt.Sprintf("%s updated %q (%s %s)", expense.PayerID, expense.Description, expense.Amount.Round(2), expense.Currency)
	case models.ActivityExpenseDeleted:
		return fmt.Sprintf("%s deleted %q", expense.PayerID, expense.Description)
	default:
		return expense.Description
	}
}

// SettlementMessage renders the feed line for a settlement mutation.
func SettlementMessage(activityType string, settlement *models.Settlement) string {
	switch activityType {
	case models.ActivitySettlementAdded:
		return fmt.Sprintf("%s recorded a payment of %s %s to %s", settlement.FromUserID, settlement.Amount.Round(2), settlement.Currency, settlement.ToUserID)
	case models.ActivitySettlementConfirmed:
		return fmt.Sprintf("%s confirmed a payment of %s %s from %s", settlement.ToUserID, settlement.Amount.Round(2), settlement.Currency, settlement.FromUserID)
	case models.ActivitySettlementRejected:
		return fmt.Sprintf("%s rejected a payment claim of %s %s from %s", settlement.ToUserID, settlement.Amount.Round(2), settlement.Currency, settlement.FromUserID)
	default:
		return settlement.Note
	}
}
