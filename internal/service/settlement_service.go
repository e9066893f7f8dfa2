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
	"github.com/mmynk/splitledger/internal/storage"
)

// ErrNotAllowed is returned when the actor is not the party permitted to
// perform the settlement transition.
var ErrNotAllowed = errors.New("actor may not perform this transition")

// SettlementService handles the settlement state machine. The ledger is
// adjusted exactly once, on the pending -> confirmed transition; creation,
// rejection and cancellation never touch it.
type SettlementService struct {
	store    storage.Store
	ledger   *ledger.Ledger
	emitter  *activity.Emitter
	registry *realtime.Registry
}

// NewSettlementService creates a SettlementService.
func NewSettlementService(store storage.Store, ldgr *ledger.Ledger, emitter *activity.Emitter, registry *realtime.Registry) *SettlementService {
	return &SettlementService{store: store, ledger: ldgr, emitter: emitter, registry: registry}
}

// SettlementInput carries the caller-provided attributes for a new claim.
type SettlementInput struct {
	GroupID  string
	ToUserID string
	Amount   decimal.Decimal
	Currency string
	Note     string
}

// Create records a payment claim from the actor in pending status. No ledger
// effect until the recipient confirms.
func (s *SettlementService) Create(ctx context.Context, actorID string, input SettlementInput) (*models.Settlement, error) {
	if input.Amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("settlement amount must be positive")
	}
	if input.ToUserID == actorID {
		return nil, fmt.Errorf("cannot settle with yourself")
	}

	settlement := &models.Settlement{
		GroupID:    input.GroupID,
		FromUserID: actorID,
		ToUserID:   input.ToUserID,
		Amount:     input.Amount,
		Currency:   input.Currency,
		Status:     models.SettlementPending,
		Note:       input.Note,
		CreatedBy:  actorID,
	}
	if err := s.store.CreateSettlement(ctx, settlement); err != nil {
		return nil, fmt.Errorf("create settlement: %w", err)
	}

	slog.Info("Settlement recorded",
		"settlement_id", settlement.ID,
		"from", settlement.FromUserID,
		"to", settlement.ToUserID,
		"amount", round(settlement.Amount),
	)

	s.record(ctx, models.ActivitySettlementAdded, actorID, settlement)
	notify(s.registry, realtime.TypeSettlementAdded, toSettlementPayload(settlement), actorID,
		settlement.GroupID, []string{settlement.FromUserID, settlement.ToUserID})
	return settlement, nil
}

// Confirm applies the pending -> confirmed transition and the ledger
// adjustment. The conditional status update is the exactly-once gate: a
// second confirm finds the row terminal and fails with ErrInvalidTransition,
// leaving the ledger untouched. Only the recipient may confirm.
func (s *SettlementService) Confirm(ctx context.Context, actorID, settlementID string) (*models.Settlement, error) {
	settlement, err := s.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.ToUserID != actorID {
		return nil, fmt.Errorf("only the recipient may confirm: %w", ErrNotAllowed)
	}

	if err := s.store.TransitionSettlement(ctx, settlementID, models.SettlementPending, models.SettlementConfirmed); err != nil {
		return nil, err
	}
	settlement.Status = models.SettlementConfirmed

	if err := s.ledger.ApplySettlementConfirmed(ctx, settlement); err != nil {
		// The gate passed but the balances never moved; put the settlement
		// back to pending so a retry can apply it.
		if revErr := s.store.TransitionSettlement(ctx, settlementID, models.SettlementConfirmed, models.SettlementPending); revErr != nil {
			slog.Error("Failed to revert settlement after ledger failure",
				"settlement_id", settlementID, "error", revErr)
		}
		return nil, err
	}

	slog.Info("Settlement confirmed", "settlement_id", settlementID, "amount", round(settlement.Amount))

	s.record(ctx, models.ActivitySettlementConfirmed, actorID, settlement)
	notify(s.registry, realtime.TypeSettlementConfirmed, toSettlementPayload(settlement), actorID,
		settlement.GroupID, []string{settlement.FromUserID, settlement.ToUserID})
	return settlement, nil
}

// Reject moves a pending settlement to rejected. Terminal, no ledger effect.
// Only the recipient may reject.
func (s *SettlementService) Reject(ctx context.Context, actorID, settlementID string) (*models.Settlement, error) {
	settlement, err := s.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return nil, err
	}
	if settlement.ToUserID != actorID {
		return nil, fmt.Errorf("only the recipient may reject: %w", ErrNotAllowed)
	}

	if err := s.store.TransitionSettlement(ctx, settlementID, models.SettlementPending, models.SettlementRejected); err != nil {
		return nil, err
	}
	settlement.Status = models.SettlementRejected

	slog.Info("Settlement rejected", "settlement_id", settlementID)

	s.record(ctx, models.ActivitySettlementRejected, actorID, settlement)
	// Resolution events share one type; the payload status distinguishes
	// confirmed from rejected.
	notify(s.registry, realtime.TypeSettlementConfirmed, toSettlementPayload(settlement), actorID,
		settlement.GroupID, []string{settlement.FromUserID, settlement.ToUserID})
	return settlement, nil
}

// Cancel removes a pending settlement. Only the creator may cancel, and only
// before confirmation; the ledger was never touched so there is nothing to
// compensate.
func (s *SettlementService) Cancel(ctx context.Context, actorID, settlementID string) error {
	settlement, err := s.store.GetSettlement(ctx, settlementID)
	if err != nil {
		return err
	}
	if settlement.CreatedBy != actorID {
		return fmt.Errorf("only the creator may cancel: %w", ErrNotAllowed)
	}
	if err := s.store.RemoveSettlement(ctx, settlementID); err != nil {
		return err
	}

	slog.Info("Settlement cancelled", "settlement_id", settlementID)
	return nil
}

// Get returns a settlement by ID.
func (s *SettlementService) Get(ctx context.Context, settlementID string) (*models.Settlement, error) {
	return s.store.GetSettlement(ctx, settlementID)
}

func (s *SettlementService) record(ctx context.Context, activityType, actorID string, settlement *models.Settlement) {
	message := activity.SettlementMessage(activityType, settlement)
	if err := s.emitter.Record(ctx, settlement.GroupID, actorID, activityType, settlement.ID, message); err != nil {
		slog.Warn("Activity append failed", "type", activityType, "settlement_id", settlement.ID, "error", err)
	}
}
