package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/activity"
	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/realtime"
	"github.com/mmynk/splitledger/internal/split"
	"github.com/mmynk/splitledger/internal/storage"
)

// ErrExpenseDeleted is returned when mutating an already soft-deleted expense.
var ErrExpenseDeleted = errors.New("expense is deleted")

// ExpenseService handles expense creation, edits and soft deletion, keeping
// the ledger, activity feed and realtime channels in step.
type ExpenseService struct {
	store    storage.Store
	ledger   *ledger.Ledger
	emitter  *activity.Emitter
	registry *realtime.Registry
}

// NewExpenseService creates an ExpenseService. registry may be nil when no
// realtime delivery is wanted (batch tools, tests).
func NewExpenseService(store storage.Store, ldgr *ledger.Ledger, emitter *activity.Emitter, registry *realtime.Registry) *ExpenseService {
	return &ExpenseService{store: store, ledger: ldgr, emitter: emitter, registry: registry}
}

// ExpenseInput carries the caller-provided attributes for a create or update.
type ExpenseInput struct {
	GroupID     string
	Description string
	Amount      decimal.Decimal
	Currency    string
	PayerID     string
	SplitMethod models.SplitMethod
	// Participants lists everyone sharing the expense, payer included.
	Participants []string
	// SplitInputs carries per-participant values for the exact, percentage
	// and shares methods.
	SplitInputs map[string]decimal.Decimal
}

// validatePayerID checks if the payer is one of the participants.
func validatePayerID(payerID string, participants []string) error {
	for _, p := range participants {
		if p == payerID {
			return nil
		}
	}
	return fmt.Errorf("payer %q must be one of the participants", payerID)
}

// Create validates the input, persists the expense and applies its ledger
// effect atomically per pair. A ledger failure aborts the mutation: the
// stored row is compensated away and the error surfaces to the caller.
func (s *ExpenseService) Create(ctx context.Context, actorID string, input ExpenseInput) (*models.Expense, error) {
	if err := validatePayerID(input.PayerID, input.Participants); err != nil {
		return nil, err
	}
	splits, err := split.Compute(input.SplitMethod, input.Amount, input.Participants, input.SplitInputs)
	if err != nil {
		return nil, fmt.Errorf("compute splits: %w", err)
	}

	expense := &models.Expense{
		GroupID:     input.GroupID,
		Description: input.Description,
		Amount:      input.Amount,
		Currency:    input.Currency,
		PayerID:     input.PayerID,
		SplitMethod: input.SplitMethod,
		Splits:      splits,
		CreatedBy:   actorID,
	}
	if err := s.store.CreateExpense(ctx, expense); err != nil {
		return nil, fmt.Errorf("create expense: %w", err)
	}

	if err := s.ledger.ApplyExpenseCreated(ctx, expense); err != nil {
		// The row exists but the balances never moved; compensate so the
		// failed mutation leaves no partial commit behind.
		if delErr := s.store.MarkExpenseDeleted(ctx, expense.ID); delErr != nil {
			slog.Error("Failed to compensate expense after ledger failure",
				"expense_id", expense.ID, "error", delErr)
		}
		return nil, err
	}

	slog.Info("Expense created",
		"expense_id", expense.ID,
		"group_id", expense.GroupID,
		"payer_id", expense.PayerID,
		"amount", round(expense.Amount),
	)

	s.record(ctx, models.ActivityExpenseAdded, actorID, expense)
	notify(s.registry, realtime.TypeExpenseAdded, toExpensePayload(expense), actorID, expense.GroupID, expense.ParticipantIDs())
	return expense, nil
}

// Update replaces the expense wholesale: the stored splits are reversed and
// the new ones applied in one atomic ledger batch, then the row is rewritten.
func (s *ExpenseService) Update(ctx context.Context, actorID, expenseID string, input ExpenseInput) (*models.Expense, error) {
	stored, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return nil, err
	}
	if stored.Deleted {
		return nil, ErrExpenseDeleted
	}
	if err := validatePayerID(input.PayerID, input.Participants); err != nil {
		return nil, err
	}
	splits, err := split.Compute(input.SplitMethod, input.Amount, input.Participants, input.SplitInputs)
	if err != nil {
		return nil, fmt.Errorf("compute splits: %w", err)
	}

	updated := &models.Expense{
		ID:          stored.ID,
		GroupID:     stored.GroupID, // expenses never move between scopes
		Description: input.Description,
		Amount:      input.Amount,
		Currency:    input.Currency,
		PayerID:     input.PayerID,
		SplitMethod: input.SplitMethod,
		Splits:      splits,
		CreatedBy:   stored.CreatedBy,
		CreatedAt:   stored.CreatedAt,
	}

	if err := s.ledger.ReplaceExpense(ctx, stored, updated); err != nil {
		return nil, err
	}
	if err := s.store.UpdateExpense(ctx, updated); err != nil {
		// Balances moved but the row did not; put the ledger back.
		if revErr := s.ledger.ReplaceExpense(ctx, updated, stored); revErr != nil {
			slog.Error("Failed to compensate ledger after update failure",
				"expense_id", expenseID, "error", revErr)
		}
		return nil, fmt.Errorf("update expense: %w", err)
	}

	slog.Info("Expense updated", "expense_id", expenseID, "amount", round(updated.Amount))

	s.record(ctx, models.ActivityExpenseUpdated, actorID, updated)
	notify(s.registry, realtime.TypeExpenseUpdated, toExpensePayload(updated), actorID, updated.GroupID, updated.ParticipantIDs())
	return updated, nil
}

// Delete reverses the expense's ledger effect using its stored splits and
// soft-deletes the row; the row is retained for audit.
func (s *ExpenseService) Delete(ctx context.Context, actorID, expenseID string) error {
	stored, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return err
	}
	if stored.Deleted {
		return ErrExpenseDeleted
	}

	if err := s.ledger.ReverseExpense(ctx, stored); err != nil {
		return err
	}
	if err := s.store.MarkExpenseDeleted(ctx, expenseID); err != nil {
		if revErr := s.ledger.ApplyExpenseCreated(ctx, stored); revErr != nil {
			slog.Error("Failed to compensate ledger after delete failure",
				"expense_id", expenseID, "error", revErr)
		}
		return fmt.Errorf("delete expense: %w", err)
	}

	slog.Info("Expense deleted", "expense_id", expenseID)

	s.record(ctx, models.ActivityExpenseDeleted, actorID, stored)
	notify(s.registry, realtime.TypeExpenseDeleted, map[string]string{"id": expenseID}, actorID, stored.GroupID, stored.ParticipantIDs())
	return nil
}

// Get returns an expense by ID.
func (s *ExpenseService) Get(ctx context.Context, expenseID string) (*models.Expense, error) {
	return s.store.GetExpense(ctx, expenseID)
}

// record appends the activity entry for a committed mutation. The mutation is
// already successful, so a failed append is only logged.
func (s *ExpenseService) record(ctx context.Context, activityType, actorID string, expense *models.Expense) {
	message := activity.ExpenseMessage(activityType, expense)
	if err := s.emitter.Record(ctx, expense.GroupID, actorID, activityType, expense.ID, message); err != nil {
		slog.Warn("Activity append failed", "type", activityType, "expense_id", expense.ID, "error", err)
	}
}
