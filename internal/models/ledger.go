package models

import "github.com/shopspring/decimal"

// ScopeAggregate is the scope value for the aggregate (cross-group) balance
// between a pair of users.
const ScopeAggregate = ""

// LedgerEntry represents the directed net balance of one user toward another
// within a scope. For every pair and scope two mirrored rows exist:
// entry(A,B).Amount == entry(B,A).Amount.Neg() at all times.
type LedgerEntry struct {
	// OwnerID is the user this balance belongs to.
	OwnerID string

	// CounterpartyID is the user on the other side of the balance.
	CounterpartyID string

	// ScopeID is the group this balance is scoped to, or ScopeAggregate for
	// the balance across all groups and direct expenses.
	ScopeID string

	// Amount is the signed net balance. Positive means the counterparty owes
	// the owner; negative means the owner owes the counterparty.
	Amount decimal.Decimal

	// Currency is the ISO 4217 code for the balance.
	Currency string

	// LastUpdated is the Unix timestamp of the most recent adjustment.
	LastUpdated int64
}

// Adjustment is one atomic delta against a mirrored pair of ledger rows.
// Applying it adds Delta to entry(Owner, Counterparty, Scope) and
// Delta.Neg() to entry(Counterparty, Owner, Scope), creating zeroed rows on
// first touch. Both sides commit or neither does.
type Adjustment struct {
	OwnerID        string
	CounterpartyID string
	ScopeID        string
	Delta          decimal.Decimal
	Currency       string
}
