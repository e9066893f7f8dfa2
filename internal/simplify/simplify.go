// Package simplify reduces a set of net balances to a minimal set of settling
// transactions.
//
// The algorithm is a greedy largest-first matcher: it is deterministic for a
// fixed input order and minimizes transaction count in the common case, but
// is not provably minimal for every input. That behavior is intentional.
package simplify

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

// ErrImbalanced is returned when the input balances do not cancel out.
// Net balances are constructed from mirrored ledger rows and always sum to
// zero; a residual beyond tolerance means the snapshot was inconsistent, and
// emitting transactions over it would settle the wrong amounts.
var ErrImbalanced = errors.New("imbalanced ledger")

// epsilon is the tolerance for rounding noise, in currency units.
var epsilon = decimal.New(1, -2) // 0.01

// Transaction is one settling payment: From pays To the given amount.
type Transaction struct {
	FromID string
	ToID   string
	Amount decimal.Decimal
}

type party struct {
	id        string
	remaining decimal.Decimal
}

// Simplify computes the minimal settling transactions for a scope snapshot.
// If every emitted transaction is executed, each participant's net balance
// within the snapshot drops to zero.
//
// The result is deterministic: equal net amounts keep their first-appearance
// order from the input, and the same input always yields the same sequence.
// Emitted amounts are rounded to two decimal places; intermediate arithmetic
// keeps full precision.
func Simplify(entries []models.LedgerEntry) ([]Transaction, error) {
	nets := netPositions(entries)

	var creditors, debtors []party
	for _, p := range nets {
		switch {
		case p.remaining.GreaterThan(epsilon):
			creditors = append(creditors, p)
		case p.remaining.LessThan(epsilon.Neg()):
			debtors = append(debtors, party{id: p.id, remaining: p.remaining.Neg()})
		}
	}

	// Largest first; ties keep input order.
	sort.SliceStable(creditors, func(i, j int) bool {
		return creditors[i].remaining.GreaterThan(creditors[j].remaining)
	})
	sort.SliceStable(debtors, func(i, j int) bool {
		return debtors[i].remaining.GreaterThan(debtors[j].remaining)
	})

	var txns []Transaction
	i, j := 0, 0
	for i < len(debtors) && j < len(creditors) {
		amount := debtors[i].remaining
		if creditors[j].remaining.LessThan(amount) {
			amount = creditors[j].remaining
		}

		if amount.GreaterThan(epsilon) {
			txns = append(txns, Transaction{
				FromID: debtors[i].id,
				ToID:   creditors[j].id,
				Amount: amount.Round(2),
			})
		}

		debtors[i].remaining = debtors[i].remaining.Sub(amount)
		creditors[j].remaining = creditors[j].remaining.Sub(amount)

		if debtors[i].remaining.LessThanOrEqual(epsilon) {
			i++
		}
		if creditors[j].remaining.LessThanOrEqual(epsilon) {
			j++
		}
	}

	// Total debits equal total credits by construction, so both lists must
	// exhaust together.
	for ; i < len(debtors); i++ {
		if debtors[i].remaining.GreaterThan(epsilon) {
			return nil, ErrImbalanced
		}
	}
	for ; j < len(creditors); j++ {
		if creditors[j].remaining.GreaterThan(epsilon) {
			return nil, ErrImbalanced
		}
	}

	return txns, nil
}

// netPositions sums each owner's entries into a net position, preserving
// first-appearance order for deterministic tie-breaking.
func netPositions(entries []models.LedgerEntry) []party {
	index := make(map[string]int)
	var nets []party
	for _, entry := range entries {
		idx, ok := index[entry.OwnerID]
		if !ok {
			idx = len(nets)
			index[entry.OwnerID] = idx
			nets = append(nets, party{id: entry.OwnerID, remaining: decimal.Zero})
		}
		nets[idx].remaining = nets[idx].remaining.Add(entry.Amount)
	}
	return nets
}
