package models

import "github.com/shopspring/decimal"

// SettlementStatus is the state of a settlement claim.
type SettlementStatus string

const (
	// SettlementPending is the initial state; no ledger effect yet.
	SettlementPending SettlementStatus = "pending"
	// SettlementConfirmed is terminal; the ledger adjustment was applied
	// exactly once on this transition.
	SettlementConfirmed SettlementStatus = "confirmed"
	// SettlementRejected is terminal; the ledger was never touched.
	SettlementRejected SettlementStatus = "rejected"
)

// Settlement represents a claimed payment from one user to another.
// The ledger is adjusted only on the pending -> confirmed transition.
type Settlement struct {
	// ID is the unique identifier for the settlement (UUID format).
	ID string

	// GroupID is the group scope, or empty for a direct settlement.
	GroupID string

	// FromUserID is the user who claims to have paid (debtor settling up).
	FromUserID string

	// ToUserID is the user who received payment and must confirm it.
	ToUserID string

	// Amount is the payment amount.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code.
	Currency string

	// Status is the state machine position; see SettlementStatus.
	Status SettlementStatus

	// Note is an optional description for the settlement.
	Note string

	// CreatedBy is the user who recorded the settlement claim.
	CreatedBy string

	// CreatedAt is the Unix timestamp when the settlement was recorded.
	CreatedAt int64
}
