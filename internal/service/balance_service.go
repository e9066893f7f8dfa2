package service

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/ledger"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/realtime"
	"github.com/mmynk/splitledger/internal/simplify"
	"github.com/mmynk/splitledger/internal/storage"
)

// BalanceService serves balance summaries and debt simplification over
// ledger snapshots. Read-only; the simplifier never runs on the write path.
type BalanceService struct {
	store  storage.Store
	ledger *ledger.Ledger
}

// NewBalanceService creates a BalanceService.
func NewBalanceService(store storage.Store, ldgr *ledger.Ledger) *BalanceService {
	return &BalanceService{store: store, ledger: ldgr}
}

// MemberBalance is one participant's net position within a scope.
type MemberBalance struct {
	UserID string `json:"user_id"`
	// Net is positive when others owe this member.
	Net string `json:"net"`
}

// SettleTransaction is one simplified settling payment.
type SettleTransaction struct {
	FromID string `json:"from"`
	ToID   string `json:"to"`
	Amount string `json:"amount"`
}

// GroupBalanceSummary is the balance view of one group: per-member nets plus
// the minimal transactions that would settle everyone up.
type GroupBalanceSummary struct {
	GroupID string              `json:"group_id"`
	Members []MemberBalance     `json:"members"`
	Settle  []SettleTransaction `json:"settle"`
}

// FriendBalance is the aggregate balance with one counterparty.
type FriendBalance struct {
	UserID string `json:"user_id"`
	// Amount is positive when they owe you, negative when you owe them.
	Amount   string `json:"amount"`
	Currency string `json:"currency"`
}

// UserBalanceSummary is a user's global view across all scopes.
type UserBalanceSummary struct {
	UserID     string          `json:"user_id"`
	TotalOwed  string          `json:"total_owed"`
	TotalOwing string          `json:"total_owing"`
	Friends    []FriendBalance `json:"friends"`
}

// GroupBalances snapshots the group scope and runs the simplifier over it.
func (s *BalanceService) GroupBalances(ctx context.Context, groupID string) (*GroupBalanceSummary, error) {
	entries, err := s.ledger.Snapshot(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("snapshot group %s: %w", groupID, err)
	}

	txns, err := simplify.Simplify(entries)
	if err != nil {
		return nil, fmt.Errorf("simplify group %s: %w", groupID, err)
	}

	summary := &GroupBalanceSummary{GroupID: groupID}
	for _, member := range netBalances(entries) {
		summary.Members = append(summary.Members, MemberBalance{
			UserID: member.userID,
			Net:    round(member.net),
		})
	}
	for _, txn := range txns {
		summary.Settle = append(summary.Settle, SettleTransaction{
			FromID: txn.FromID,
			ToID:   txn.ToID,
			Amount: txn.Amount.String(),
		})
	}
	return summary, nil
}

// UserBalances aggregates the user's null-scope rows into totals and
// per-friend balances.
func (s *BalanceService) UserBalances(ctx context.Context, userID string) (*UserBalanceSummary, error) {
	entries, err := s.ledger.SnapshotForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("snapshot user %s: %w", userID, err)
	}

	summary := &UserBalanceSummary{UserID: userID}
	totalOwed, totalOwing := decimal.Zero, decimal.Zero
	for _, entry := range entries {
		if entry.ScopeID != models.ScopeAggregate {
			continue
		}
		if entry.Amount.IsPositive() {
			totalOwed = totalOwed.Add(entry.Amount)
		} else {
			totalOwing = totalOwing.Add(entry.Amount.Neg())
		}
		summary.Friends = append(summary.Friends, FriendBalance{
			UserID:   entry.CounterpartyID,
			Amount:   round(entry.Amount),
			Currency: entry.Currency,
		})
	}
	summary.TotalOwed = round(totalOwed)
	summary.TotalOwing = round(totalOwing)
	return summary, nil
}

// SyncState backs the realtime request_sync pull path: the full balance view
// of the channel plus recent activity, enough for a reconnecting client to
// catch up on missed events.
func (s *BalanceService) SyncState(ctx context.Context, channelID, userID string) (any, error) {
	if user, ok := realtime.ParseUserChannel(channelID); ok {
		summary, err := s.UserBalances(ctx, user)
		if err != nil {
			return nil, err
		}
		activities, err := s.store.ListActivities(ctx, models.ScopeAggregate, 20)
		if err != nil {
			return nil, err
		}
		return map[string]any{"balances": summary, "activities": activities}, nil
	}

	summary, err := s.GroupBalances(ctx, channelID)
	if err != nil {
		return nil, err
	}
	activities, err := s.store.ListActivities(ctx, channelID, 20)
	if err != nil {
		return nil, err
	}
	return map[string]any{"balances": summary, "activities": activities}, nil
}

type netBalance struct {
	userID string
	net    decimal.Decimal
}

// netBalances folds snapshot rows into per-owner net positions, preserving
// first-appearance order.
func netBalances(entries []models.LedgerEntry) []netBalance {
	index := make(map[string]int)
	var nets []netBalance
	for _, entry := range entries {
		idx, ok := index[entry.OwnerID]
		if !ok {
			idx = len(nets)
			index[entry.OwnerID] = idx
			nets = append(nets, netBalance{userID: entry.OwnerID})
		}
		nets[idx].net = nets[idx].net.Add(entry.Amount)
	}
	return nets
}
