// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"errors"

	"github.com/mmynk/splitledger/internal/models"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable is returned when the store cannot be reached. Callers
	// may retry the enclosing mutation with backoff.
	ErrUnavailable = errors.New("store unavailable")

	// ErrConflict is returned when a concurrent write raced the requested
	// mutation. Callers should re-read and retry the adjustment.
	ErrConflict = errors.New("conflicting write")

	// ErrInvalidTransition is returned when a settlement status change is
	// requested from a terminal state. The row is left unchanged.
	ErrInvalidTransition = errors.New("invalid settlement transition")
)

// Store defines the interface for ledger, expense, settlement, activity and
// group storage. This abstraction allows swapping storage backends (SQLite,
// PostgreSQL, in-memory) without changing the ledger or service layers.
type Store interface {
	// ApplyAdjustments applies a batch of mirrored balance deltas as one
	// atomic unit: for each adjustment, Delta is added to
	// entry(Owner, Counterparty, Scope) and Delta.Neg() to the mirrored row,
	// creating zeroed rows on first touch. Either the whole batch commits or
	// none of it does.
	ApplyAdjustments(ctx context.Context, adjs []models.Adjustment) error

	// LedgerEntries returns a consistent snapshot of all ledger rows for a
	// scope (group ID, or models.ScopeAggregate). No partially applied
	// adjustment is ever visible.
	LedgerEntries(ctx context.Context, scopeID string) ([]models.LedgerEntry, error)

	// LedgerEntriesForUser returns all rows owned by the user across every
	// scope, used for global balance summaries.
	LedgerEntriesForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error)

	// LinkUsers creates the zeroed mirrored rows for a pair within a scope if
	// they do not exist yet. Called when a friendship is accepted or joint
	// group membership is established.
	LinkUsers(ctx context.Context, userA, userB, scopeID, currency string) error

	// CreateExpense persists a new expense with its splits and returns the
	// assigned ID via the Expense.ID field.
	CreateExpense(ctx context.Context, expense *models.Expense) error

	// GetExpense retrieves an expense by ID, including soft-deleted rows.
	GetExpense(ctx context.Context, expenseID string) (*models.Expense, error)

	// UpdateExpense replaces an expense's attributes and splits wholesale.
	UpdateExpense(ctx context.Context, expense *models.Expense) error

	// MarkExpenseDeleted soft-deletes an expense; the row is retained.
	MarkExpenseDeleted(ctx context.Context, expenseID string) error

	// CreateSettlement persists a new settlement in pending status.
	CreateSettlement(ctx context.Context, settlement *models.Settlement) error

	// GetSettlement retrieves a settlement by ID.
	GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error)

	// TransitionSettlement conditionally moves a settlement from one status
	// to another. Returns ErrInvalidTransition if the row is not currently in
	// the from status, leaving it unchanged.
	TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) error

	// RemoveSettlement deletes a pending settlement (creator-initiated
	// cancel). Returns ErrInvalidTransition if the row is not pending.
	RemoveSettlement(ctx context.Context, settlementID string) error

	// AppendActivity appends an immutable activity record.
	AppendActivity(ctx context.Context, activity *models.Activity) error

	// ListActivities returns activities for a scope, newest first.
	ListActivities(ctx context.Context, scopeID string, limit int) ([]models.Activity, error)

	// CreateGroup persists a new group and its member list.
	CreateGroup(ctx context.Context, group *models.Group) error

	// GetGroup retrieves a group by ID with its members.
	GetGroup(ctx context.Context, groupID string) (*models.Group, error)

	// AddGroupMembers adds members to an existing group, ignoring duplicates.
	AddGroupMembers(ctx context.Context, groupID string, members []string) error

	// Close releases any resources held by the store.
	Close() error
}
