// Package sqlite provides a SQLite-backed implementation of the storage.Store interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure SQLiteStore implements storage.Store
var _ storage.Store = (*SQLiteStore)(nil)

// SQLiteStore implements storage.Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New creates a new SQLiteStore with the given database path.
// It creates the parent directories and runs migrations automatically.
func New(dbPath string) (*SQLiteStore, error) {
	// Create parent directory if it doesn't exist
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Open database with pure Go driver
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	// Serialize writers at the driver level; adjustments rely on
	// transaction-scoped read-modify-write.
	db.SetMaxOpenConns(1)

	// Run migrations
	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ApplyAdjustments applies every mirrored delta in one transaction.
// For each adjustment both directed rows are created (zeroed) if missing,
// then incremented; either the whole batch commits or none of it does.
func (s *SQLiteStore) ApplyAdjustments(ctx context.Context, adjs []models.Adjustment) error {
	if len(adjs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to begin transaction: %v", storage.ErrUnavailable, err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, adj := range adjs {
		if err := applyOne(ctx, tx, adj.OwnerID, adj.CounterpartyID, adj.ScopeID, adj.Delta, adj.Currency, now); err != nil {
			return err
		}
		if err := applyOne(ctx, tx, adj.CounterpartyID, adj.OwnerID, adj.ScopeID, adj.Delta.Neg(), adj.Currency, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit adjustments: %w", err)
	}
	return nil
}

// applyOne increments a single directed ledger row inside tx.
func applyOne(ctx context.Context, tx *sql.Tx, owner, counterparty, scope string, delta decimal.Decimal, currency string, now int64) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (owner_id, counterparty_id, scope_id, amount, currency, last_updated)
		 VALUES (?, ?, ?, '0', ?, ?)
		 ON CONFLICT(owner_id, counterparty_id, scope_id) DO NOTHING`,
		owner, counterparty, scope, currency, now,
	)
	if err != nil {
		return fmt.Errorf("failed to ensure ledger row: %w", err)
	}

	var current string
	err = tx.QueryRowContext(ctx,
		"SELECT amount FROM ledger_entries WHERE owner_id = ? AND counterparty_id = ? AND scope_id = ?",
		owner, counterparty, scope,
	).Scan(&current)
	if err != nil {
		return fmt.Errorf("failed to read ledger row: %w", err)
	}

	amount, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("corrupt ledger amount %q: %w", current, err)
	}

	_, err = tx.ExecContext(ctx,
		"UPDATE ledger_entries SET amount = ?, last_updated = ? WHERE owner_id = ? AND counterparty_id = ? AND scope_id = ?",
		amount.Add(delta).String(), now, owner, counterparty, scope,
	)
	if err != nil {
		return fmt.Errorf("failed to update ledger row: %w", err)
	}
	return nil
}

// LedgerEntries returns all rows for a scope in (owner, counterparty) order.
func (s *SQLiteStore) LedgerEntries(ctx context.Context, scopeID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, counterparty_id, scope_id, amount, currency, last_updated
		 FROM ledger_entries WHERE scope_id = ?
		 ORDER BY owner_id, counterparty_id`,
		scopeID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LedgerEntriesForUser returns all rows owned by the user across all scopes.
func (s *SQLiteStore) LedgerEntriesForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT owner_id, counterparty_id, scope_id, amount, currency, last_updated
		 FROM ledger_entries WHERE owner_id = ?
		 ORDER BY scope_id, counterparty_id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	for rows.Next() {
		var entry models.LedgerEntry
		var amount string
		if err := rows.Scan(&entry.OwnerID, &entry.CounterpartyID, &entry.ScopeID, &amount, &entry.Currency, &entry.LastUpdated); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("corrupt ledger amount %q: %w", amount, err)
		}
		entry.Amount = parsed
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate ledger entries: %w", err)
	}
	return entries, nil
}

// LinkUsers creates the zeroed mirrored rows for a pair if they do not exist.
func (s *SQLiteStore) LinkUsers(ctx context.Context, userA, userB, scopeID, currency string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	for _, pair := range [][2]string{{userA, userB}, {userB, userA}} {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_entries (owner_id, counterparty_id, scope_id, amount, currency, last_updated)
			 VALUES (?, ?, ?, '0', ?, ?)
			 ON CONFLICT(owner_id, counterparty_id, scope_id) DO NOTHING`,
			pair[0], pair[1], scopeID, currency, now,
		)
		if err != nil {
			return fmt.Errorf("failed to link users: %w", err)
		}
	}
	return tx.Commit()
}

// CreateExpense persists a new expense and its splits.
func (s *SQLiteStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO expenses (id, group_id, description, amount, currency, payer_id, split_method, deleted, created_by, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, 0)`,
		expense.ID, expense.GroupID, expense.Description, expense.Amount.String(), expense.Currency,
		expense.PayerID, string(expense.SplitMethod), expense.CreatedBy, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertSplits(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	for i, split := range expense.Splits {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO expense_splits (expense_id, participant_id, owed_amount, position) VALUES (?, ?, ?, ?)",
			expense.ID, split.ParticipantID, split.OwedAmount.String(), i,
		)
		if err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its splits in original order.
func (s *SQLiteStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount, method string
	var deleted int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, description, amount, currency, payer_id, split_method, deleted, created_by, created_at, updated_at
		 FROM expenses WHERE id = ?`,
		expenseID,
	).Scan(&expense.ID, &expense.GroupID, &expense.Description, &amount, &expense.Currency,
		&expense.PayerID, &method, &deleted, &expense.CreatedBy, &expense.CreatedAt, &expense.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	expense.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt expense amount %q: %w", amount, err)
	}
	expense.SplitMethod = models.SplitMethod(method)
	expense.Deleted = deleted != 0

	rows, err := s.db.QueryContext(ctx,
		"SELECT participant_id, owed_amount FROM expense_splits WHERE expense_id = ? ORDER BY position",
		expenseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get splits: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var split models.Split
		var owed string
		if err := rows.Scan(&split.ParticipantID, &owed); err != nil {
			return nil, fmt.Errorf("failed to scan split: %w", err)
		}
		split.OwedAmount, err = decimal.NewFromString(owed)
		if err != nil {
			return nil, fmt.Errorf("corrupt split amount %q: %w", owed, err)
		}
		expense.Splits = append(expense.Splits, split)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate splits: %w", err)
	}
	return expense, nil
}

// UpdateExpense replaces the expense attributes and its splits wholesale.
func (s *SQLiteStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = time.Now().Unix()
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE expenses SET description = ?, amount = ?, currency = ?, payer_id = ?, split_method = ?, updated_at = ?
		 WHERE id = ?`,
		expense.Description, expense.Amount.String(), expense.Currency, expense.PayerID,
		string(expense.SplitMethod), expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM expense_splits WHERE expense_id = ?", expense.ID); err != nil {
		return fmt.Errorf("failed to clear splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// MarkExpenseDeleted soft-deletes the expense; splits are retained for audit.
func (s *SQLiteStore) MarkExpenseDeleted(ctx context.Context, expenseID string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE expenses SET deleted = 1 WHERE id = ?", expenseID)
	if err != nil {
		return fmt.Errorf("failed to mark expense deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

// CreateSettlement persists a new settlement, defaulting to pending status.
func (s *SQLiteStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementPending
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, status, note, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		settlement.ID, settlement.GroupID, settlement.FromUserID, settlement.ToUserID,
		settlement.Amount.String(), settlement.Currency, string(settlement.Status),
		settlement.Note, settlement.CreatedBy, settlement.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert settlement: %w", err)
	}
	return nil
}

// GetSettlement retrieves a settlement by ID.
func (s *SQLiteStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var amount, status string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, group_id, from_user_id, to_user_id, amount, currency, status, note, created_by, created_at
		 FROM settlements WHERE id = ?`,
		settlementID,
	).Scan(&settlement.ID, &settlement.GroupID, &settlement.FromUserID, &settlement.ToUserID,
		&amount, &settlement.Currency, &status, &settlement.Note, &settlement.CreatedBy, &settlement.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("settlement %s: %w", settlementID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	settlement.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("corrupt settlement amount %q: %w", amount, err)
	}
	settlement.Status = models.SettlementStatus(status)
	return settlement, nil
}

// TransitionSettlement moves a settlement between statuses with a
// conditional update; an attempt from the wrong status affects zero rows and
// is rejected.
func (s *SQLiteStore) TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE settlements SET status = ? WHERE id = ? AND status = ?",
		string(to), settlementID, string(from),
	)
	if err != nil {
		return fmt.Errorf("failed to transition settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Distinguish a missing row from one in the wrong status.
		if _, err := s.GetSettlement(ctx, settlementID); err != nil {
			return err
		}
		return fmt.Errorf("settlement %s is not %s: %w", settlementID, from, storage.ErrInvalidTransition)
	}
	return nil
}

// RemoveSettlement deletes a pending settlement (creator cancel).
func (s *SQLiteStore) RemoveSettlement(ctx context.Context, settlementID string) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM settlements WHERE id = ? AND status = ?",
		settlementID, string(models.SettlementPending),
	)
	if err != nil {
		return fmt.Errorf("failed to remove settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := s.GetSettlement(ctx, settlementID); err != nil {
			return err
		}
		return fmt.Errorf("settlement %s is not pending: %w", settlementID, storage.ErrInvalidTransition)
	}
	return nil
}

// AppendActivity appends an immutable activity record.
func (s *SQLiteStore) AppendActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt == 0 {
		activity.CreatedAt = time.Now().Unix()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO activities (id, scope_id, actor_id, type, reference_id, message, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		activity.ID, activity.ScopeID, activity.ActorID, activity.Type, activity.ReferenceID, activity.Message, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivities returns activities for a scope, newest first.
func (s *SQLiteStore) ListActivities(ctx context.Context, scopeID string, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, scope_id, actor_id, type, reference_id, message, created_at
		 FROM activities WHERE scope_id = ? ORDER BY created_at DESC, id LIMIT ?`,
		scopeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query activities: %w", err)
	}
	defer rows.Close()

	var activities []models.Activity
	for rows.Next() {
		var activity models.Activity
		if err := rows.Scan(&activity.ID, &activity.ScopeID, &activity.ActorID, &activity.Type,
			&activity.ReferenceID, &activity.Message, &activity.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, activity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate activities: %w", err)
	}
	return activities, nil
}

// CreateGroup persists a new group and its member list.
func (s *SQLiteStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT INTO groups (id, name, created_by, created_at) VALUES (?, ?, ?, ?)",
		group.ID, group.Name, group.CreatedBy, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, member := range group.Members {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			group.ID, member,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetGroup retrieves a group by ID with its members.
func (s *SQLiteStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_by, created_at FROM groups WHERE id = ?",
		groupID,
	).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT user_id FROM group_members WHERE group_id = ? ORDER BY user_id",
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var member string
		if err := rows.Scan(&member); err != nil {
			return nil, fmt.Errorf("failed to scan group member: %w", err)
		}
		group.Members = append(group.Members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group members: %w", err)
	}
	return group, nil
}

// AddGroupMembers adds members to an existing group, ignoring duplicates.
func (s *SQLiteStore) AddGroupMembers(ctx context.Context, groupID string, members []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, member := range members {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO group_members (group_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			groupID, member,
		)
		if err != nil {
			return fmt.Errorf("failed to add group member: %w", err)
		}
	}
	return tx.Commit()
}
