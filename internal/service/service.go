// Package service orchestrates the ledger, activity emitter and realtime hub
// behind the operations the client facade calls. Each mutation follows the
// same shape: validate, commit the ledger effect, append the activity record
// (best-effort), then fan out the realtime event (best-effort). A broadcast
// failure never unwinds a committed write.
package service

import (
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/realtime"
)

// notifyScope applies the cross-channel fan-out rule: a group-scoped mutation
// broadcasts once to the group channel; an unscoped one goes to each other
// participant's personal channel. The acting subject never gets its own echo.
func notifyScope(registry *realtime.Registry, scopeID string, participants []string, msg realtime.Message, actorID string) {
	if registry == nil {
		return
	}
	if scopeID != models.ScopeAggregate {
		registry.Broadcast(scopeID, msg, actorID)
		return
	}
	registry.NotifyUsers(participants, msg, actorID)
}

// notify builds and dispatches an event envelope, logging instead of failing:
// the write already succeeded and realtime delivery is best-effort.
func notify(registry *realtime.Registry, msgType string, data any, actorID, scopeID string, participants []string) {
	msg, err := realtime.NewMessage(msgType, data, actorID)
	if err != nil {
		slog.Warn("Failed to build realtime event", "type", msgType, "error", err)
		return
	}
	notifyScope(registry, scopeID, participants, msg, actorID)
}

// expensePayload is the wire shape of an expense in realtime events and API
// responses. Amounts are rounded to two decimal places at emission.
type expensePayload struct {
	ID          string         `json:"id"`
	GroupID     string         `json:"group_id,omitempty"`
	Description string         `json:"description"`
	Amount      string         `json:"amount"`
	Currency    string         `json:"currency"`
	PayerID     string         `json:"payer_id"`
	SplitMethod string         `json:"split_method"`
	Splits      []splitPayload `json:"splits"`
	Deleted     bool           `json:"deleted,omitempty"`
}

type splitPayload struct {
	ParticipantID string `json:"participant_id"`
	OwedAmount    string `json:"owed_amount"`
}

func toExpensePayload(expense *models.Expense) expensePayload {
	payload := expensePayload{
		ID:          expense.ID,
		GroupID:     expense.GroupID,
		Description: expense.Description,
		Amount:      round(expense.Amount),
		Currency:    expense.Currency,
		PayerID:     expense.PayerID,
		SplitMethod: string(expense.SplitMethod),
		Deleted:     expense.Deleted,
	}
	for _, s := range expense.Splits {
		payload.Splits = append(payload.Splits, splitPayload{
			ParticipantID: s.ParticipantID,
			OwedAmount:    round(s.OwedAmount),
		})
	}
	return payload
}

// settlementPayload is the wire shape of a settlement in realtime events and
// API responses.
type settlementPayload struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id,omitempty"`
	FromUserID string `json:"from_user_id"`
	ToUserID   string `json:"to_user_id"`
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	Note       string `json:"note,omitempty"`
}

func toSettlementPayload(settlement *models.Settlement) settlementPayload {
	return settlementPayload{
		ID:         settlement.ID,
		GroupID:    settlement.GroupID,
		FromUserID: settlement.FromUserID,
		ToUserID:   settlement.ToUserID,
		Amount:     round(settlement.Amount),
		Currency:   settlement.Currency,
		Status:     string(settlement.Status),
		Note:       settlement.Note,
	}
}

func round(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}
