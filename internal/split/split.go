// Package split computes per-participant shares of an expense.
package split

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	hundred = decimal.NewFromInt(100)
	// tolerance is the allowed aggregate rounding drift, one cent.
	tolerance = decimal.New(1, -2)
)

// Compute apportions amount across participants according to method.
// inputs carries the per-participant values for the exact, percentage and
// shares methods; it is ignored for equal splits. The returned splits sum to
// amount exactly, with rounding drift folded into the final participant.
func Compute(method models.SplitMethod, amount decimal.Decimal, participants []string, inputs map[string]decimal.Decimal) ([]models.Split, error) {
	if len(participants) == 0 {
		return nil, fmt.Errorf("must have at least one participant")
	}
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, fmt.Errorf("amount must be positive")
	}

	switch method {
	case models.SplitEqual:
		return equal(amount, participants)
	case models.SplitExact:
		return exact(amount, participants, inputs)
	case models.SplitPercentage:
		return percentage(amount, participants, inputs)
	case models.SplitShares:
		return shares(amount, participants, inputs)
	default:
		return nil, fmt.Errorf("unknown split method %q", method)
	}
}

// equal divides the amount evenly, assigning remainder cents head-first so
// the shares sum to the amount exactly.
func equal(amount decimal.Decimal, participants []string) ([]models.Split, error) {
	cents := amount.Mul(hundred)
	if !cents.Equal(cents.Truncate(0)) {
		return nil, fmt.Errorf("amount %s has more than two decimal places", amount)
	}

	n := int64(len(participants))
	base := cents.IntPart() / n
	remainder := cents.IntPart() % n

	splits := make([]models.Split, len(participants))
	for i, p := range participants {
		share := base
		if int64(i) < remainder {
			share++
		}
		splits[i] = models.Split{ParticipantID: p, OwedAmount: decimal.New(share, -2)}
	}
	return splits, nil
}

// exact uses caller-provided amounts, which must sum to the total within one cent.
func exact(amount decimal.Decimal, participants []string, inputs map[string]decimal.Decimal) ([]models.Split, error) {
	splits := make([]models.Split, len(participants))
	sum := decimal.Zero
	for i, p := range participants {
		owed, ok := inputs[p]
		if !ok {
			return nil, fmt.Errorf("missing exact amount for participant %s", p)
		}
		if owed.IsNegative() {
			return nil, fmt.Errorf("negative amount for participant %s", p)
		}
		splits[i] = models.Split{ParticipantID: p, OwedAmount: owed}
		sum = sum.Add(owed)
	}
	if sum.Sub(amount).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("exact amounts sum to %s, want %s", sum, amount)
	}
	return splits, nil
}

// percentage apportions by percentages summing to 100.
func percentage(amount decimal.Decimal, participants []string, inputs map[string]decimal.Decimal) ([]models.Split, error) {
	total := decimal.Zero
	for _, p := range participants {
		pct, ok := inputs[p]
		if !ok {
			return nil, fmt.Errorf("missing percentage for participant %s", p)
		}
		if pct.IsNegative() {
			return nil, fmt.Errorf("negative percentage for participant %s", p)
		}
		total = total.Add(pct)
	}
	if total.Sub(hundred).Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("percentages sum to %s, want 100", total)
	}
	return proportional(amount, participants, inputs, hundred)
}

// shares apportions proportionally to share weights.
func shares(amount decimal.Decimal, participants []string, inputs map[string]decimal.Decimal) ([]models.Split, error) {
	total := decimal.Zero
	for _, p := range participants {
		weight, ok := inputs[p]
		if !ok {
			return nil, fmt.Errorf("missing shares for participant %s", p)
		}
		if weight.IsNegative() {
			return nil, fmt.Errorf("negative shares for participant %s", p)
		}
		total = total.Add(weight)
	}
	if total.IsZero() {
		return nil, fmt.Errorf("share weights sum to zero")
	}
	return proportional(amount, participants, inputs, total)
}

// proportional computes weight/total shares of amount, rounding each to two
// decimal places and folding the residual cent drift into the last split.
func proportional(amount decimal.Decimal, participants []string, weights map[string]decimal.Decimal, total decimal.Decimal) ([]models.Split, error) {
	splits := make([]models.Split, len(participants))
	sum := decimal.Zero
	for i, p := range participants {
		owed := amount.Mul(weights[p]).Div(total).Round(2)
		splits[i] = models.Split{ParticipantID: p, OwedAmount: owed}
		sum = sum.Add(owed)
	}

	residual := amount.Sub(sum)
	if residual.Abs().GreaterThan(tolerance) {
		return nil, fmt.Errorf("proportional split drifted by %s", residual)
	}
	if !residual.IsZero() {
		last := len(splits) - 1
		splits[last].OwedAmount = splits[last].OwedAmount.Add(residual)
	}
	return splits, nil
}

// Validate checks the expense invariant: stored splits sum to the amount
// within one cent of aggregate drift.
func Validate(amount decimal.Decimal, splits []models.Split) error {
	sum := decimal.Zero
	for _, s := range splits {
		sum = sum.Add(s.OwedAmount)
	}
	if sum.Sub(amount).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("splits sum to %s, want %s", sum, amount)
	}
	return nil
}
