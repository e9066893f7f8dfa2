package models

import "github.com/shopspring/decimal"

// SplitMethod describes how an expense amount is apportioned.
type SplitMethod string

const (
	// SplitEqual divides the amount evenly among participants, with any
	// remainder cents assigned to the earliest participants.
	SplitEqual SplitMethod = "equal"
	// SplitExact uses caller-provided per-participant amounts.
	SplitExact SplitMethod = "exact"
	// SplitPercentage apportions by per-participant percentages summing to 100.
	SplitPercentage SplitMethod = "percentage"
	// SplitShares apportions proportionally to per-participant share weights.
	SplitShares SplitMethod = "shares"
)

// Expense represents an amount paid by one user and split among participants.
type Expense struct {
	// ID is the unique identifier for the expense (UUID format).
	ID string

	// GroupID is the group this expense belongs to, or empty for a direct
	// expense between friends.
	GroupID string

	// Description is the human-readable label (e.g., "Dinner at Luigi's").
	Description string

	// Amount is the full expense amount paid by the payer.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code.
	Currency string

	// PayerID is the user who paid the full amount.
	PayerID string

	// SplitMethod records how Splits were derived.
	SplitMethod SplitMethod

	// Splits is the per-participant apportionment. The owed amounts sum to
	// Amount within one cent. The payer's own share appears here too but has
	// no ledger effect.
	Splits []Split

	// Deleted marks a soft-deleted expense. The row is kept for audit; its
	// ledger effect has been reversed.
	Deleted bool

	// CreatedBy is the user who recorded the expense.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the expense was created.
	CreatedAt int64

	// UpdatedAt is the Unix timestamp of the last edit, zero if never edited.
	UpdatedAt int64
}

// Split is one participant's share of an expense.
type Split struct {
	// ParticipantID is the user who owes this share.
	ParticipantID string

	// OwedAmount is this participant's share of the expense amount.
	OwedAmount decimal.Decimal
}

// ParticipantIDs returns the participant IDs in split order.
func (e *Expense) ParticipantIDs() []string {
	ids := make([]string, len(e.Splits))
	for i, s := range e.Splits {
		ids[i] = s.ParticipantID
	}
	return ids
}
