// Package memory provides an in-memory implementation of storage.Store.
// It is used by unit tests and as a throwaway backend for local development;
// all state is lost on process exit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure MemoryStore implements storage.Store
var _ storage.Store = (*MemoryStore)(nil)

type pairKey struct {
	owner        string
	counterparty string
	scope        string
}

// MemoryStore implements storage.Store with mutex-guarded maps.
// All methods are safe for concurrent use; every batch of adjustments is
// applied under one lock acquisition, so snapshots never observe a
// half-applied batch.
type MemoryStore struct {
	mu          sync.Mutex
	entries     map[pairKey]models.LedgerEntry
	expenses    map[string]models.Expense
	settlements map[string]models.Settlement
	activities  []models.Activity
	groups      map[string]models.Group
}

// New creates an empty MemoryStore.
func New() *MemoryStore {
	return &MemoryStore{
		entries:     make(map[pairKey]models.LedgerEntry),
		expenses:    make(map[string]models.Expense),
		settlements: make(map[string]models.Settlement),
		groups:      make(map[string]models.Group),
	}
}

func (m *MemoryStore) touch(key pairKey, currency string) models.LedgerEntry {
	entry, ok := m.entries[key]
	if !ok {
		entry = models.LedgerEntry{
			OwnerID:        key.owner,
			CounterpartyID: key.counterparty,
			ScopeID:        key.scope,
			Amount:         decimal.Zero,
			Currency:       currency,
		}
	}
	return entry
}

// ApplyAdjustments applies the whole batch under a single lock acquisition.
func (m *MemoryStore) ApplyAdjustments(ctx context.Context, adjs []models.Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().Unix()
	for _, adj := range adjs {
		fwd := pairKey{adj.OwnerID, adj.CounterpartyID, adj.ScopeID}
		rev := pairKey{adj.CounterpartyID, adj.OwnerID, adj.ScopeID}

		entry := m.touch(fwd, adj.Currency)
		entry.Amount = entry.Amount.Add(adj.Delta)
		entry.LastUpdated = now
		m.entries[fwd] = entry

		mirror := m.touch(rev, adj.Currency)
		mirror.Amount = mirror.Amount.Sub(adj.Delta)
		mirror.LastUpdated = now
		m.entries[rev] = mirror
	}
	return nil
}

// LedgerEntries returns a copy of all rows for the scope in deterministic
// (owner, counterparty) order.
func (m *MemoryStore) LedgerEntries(ctx context.Context, scopeID string) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.LedgerEntry
	for key, entry := range m.entries {
		if key.scope == scopeID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].OwnerID != result[j].OwnerID {
			return result[i].OwnerID < result[j].OwnerID
		}
		return result[i].CounterpartyID < result[j].CounterpartyID
	})
	return result, nil
}

func (m *MemoryStore) LedgerEntriesForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.LedgerEntry
	for key, entry := range m.entries {
		if key.owner == userID {
			result = append(result, entry)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].ScopeID != result[j].ScopeID {
			return result[i].ScopeID < result[j].ScopeID
		}
		return result[i].CounterpartyID < result[j].CounterpartyID
	})
	return result, nil
}

func (m *MemoryStore) LinkUsers(ctx context.Context, userA, userB, scopeID, currency string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, key := range []pairKey{{userA, userB, scopeID}, {userB, userA, scopeID}} {
		if _, ok := m.entries[key]; !ok {
			m.entries[key] = models.LedgerEntry{
				OwnerID:        key.owner,
				CounterpartyID: key.counterparty,
				ScopeID:        key.scope,
				Amount:         decimal.Zero,
				Currency:       currency,
				LastUpdated:    time.Now().Unix(),
			}
		}
	}
	return nil
}

func (m *MemoryStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}
	m.expenses[expense.ID] = copyExpense(expense)
	return nil
}

func (m *MemoryStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expense, ok := m.expenses[expenseID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := copyExpense(&expense)
	return &cp, nil
}

func (m *MemoryStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.expenses[expense.ID]; !ok {
		return storage.ErrNotFound
	}
	m.expenses[expense.ID] = copyExpense(expense)
	return nil
}

func (m *MemoryStore) MarkExpenseDeleted(ctx context.Context, expenseID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	expense, ok := m.expenses[expenseID]
	if !ok {
		return storage.ErrNotFound
	}
	expense.Deleted = true
	m.expenses[expenseID] = expense
	return nil
}

func (m *MemoryStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementPending
	}
	m.settlements[settlement.ID] = *settlement
	return nil
}

func (m *MemoryStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	settlement, ok := m.settlements[settlementID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := settlement
	return &cp, nil
}

func (m *MemoryStore) TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settlement, ok := m.settlements[settlementID]
	if !ok {
		return storage.ErrNotFound
	}
	if settlement.Status != from {
		return storage.ErrInvalidTransition
	}
	settlement.Status = to
	m.settlements[settlementID] = settlement
	return nil
}

func (m *MemoryStore) RemoveSettlement(ctx context.Context, settlementID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	settlement, ok := m.settlements[settlementID]
	if !ok {
		return storage.ErrNotFound
	}
	if settlement.Status != models.SettlementPending {
		return storage.ErrInvalidTransition
	}
	delete(m.settlements, settlementID)
	return nil
}

func (m *MemoryStore) AppendActivity(ctx context.Context, activity *models.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt == 0 {
		activity.CreatedAt = time.Now().Unix()
	}
	m.activities = append(m.activities, *activity)
	return nil
}

func (m *MemoryStore) ListActivities(ctx context.Context, scopeID string, limit int) ([]models.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []models.Activity
	for i := len(m.activities) - 1; i >= 0; i-- {
		if m.activities[i].ScopeID == scopeID {
			result = append(result, m.activities[i])
			if limit > 0 && len(result) == limit {
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) CreateGroup(ctx context.Context, group *models.Group) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}
	cp := *group
	cp.Members = append([]string(nil), group.Members...)
	m.groups[group.ID] = cp
	return nil
}

func (m *MemoryStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := group
	cp.Members = append([]string(nil), group.Members...)
	return &cp, nil
}

func (m *MemoryStore) AddGroupMembers(ctx context.Context, groupID string, members []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.groups[groupID]
	if !ok {
		return storage.ErrNotFound
	}
	existing := make(map[string]bool, len(group.Members))
	for _, member := range group.Members {
		existing[member] = true
	}
	for _, member := range members {
		if !existing[member] {
			group.Members = append(group.Members, member)
			existing[member] = true
		}
	}
	m.groups[groupID] = group
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func copyExpense(expense *models.Expense) models.Expense {
	cp := *expense
	cp.Splits = append([]models.Split(nil), expense.Splits...)
	return cp
}
