// Package postgres provides a PostgreSQL-backed implementation of the
// storage.Store interface for multi-process deployments. Concurrent
// adjustments to the same pair serialize on row locks; adjustments to
// different pairs proceed in parallel.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/storage"
)

// Ensure PostgresStore implements storage.Store
var _ storage.Store = (*PostgresStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL UNIQUE,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS groups (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    created_by TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS group_members (
    group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
    user_id TEXT NOT NULL,
    PRIMARY KEY (group_id, user_id)
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    owner_id TEXT NOT NULL,
    counterparty_id TEXT NOT NULL,
    scope_id TEXT NOT NULL DEFAULT '',
    amount NUMERIC(20, 8) NOT NULL,
    currency TEXT NOT NULL,
    last_updated BIGINT NOT NULL,
    PRIMARY KEY (owner_id, counterparty_id, scope_id)
);

CREATE TABLE IF NOT EXISTS expenses (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL,
    amount NUMERIC(20, 8) NOT NULL,
    currency TEXT NOT NULL,
    payer_id TEXT NOT NULL,
    split_method TEXT NOT NULL,
    deleted BOOLEAN NOT NULL DEFAULT FALSE,
    created_by TEXT NOT NULL,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS expense_splits (
    expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
    participant_id TEXT NOT NULL,
    owed_amount NUMERIC(20, 8) NOT NULL,
    position INT NOT NULL,
    PRIMARY KEY (expense_id, participant_id)
);

CREATE TABLE IF NOT EXISTS settlements (
    id TEXT PRIMARY KEY,
    group_id TEXT NOT NULL DEFAULT '',
    from_user_id TEXT NOT NULL,
    to_user_id TEXT NOT NULL,
    amount NUMERIC(20, 8) NOT NULL,
    currency TEXT NOT NULL,
    status TEXT NOT NULL,
    note TEXT NOT NULL DEFAULT '',
    created_by TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS activities (
    id TEXT PRIMARY KEY,
    scope_id TEXT NOT NULL DEFAULT '',
    actor_id TEXT NOT NULL,
    type TEXT NOT NULL,
    reference_id TEXT NOT NULL,
    message TEXT NOT NULL,
    created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_scope ON ledger_entries(scope_id);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_owner ON ledger_entries(owner_id);
CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id);
CREATE INDEX IF NOT EXISTS idx_settlements_group_id ON settlements(group_id);
CREATE INDEX IF NOT EXISTS idx_activities_scope_id ON activities(scope_id, created_at);
`

// PostgresStore implements storage.Store using PostgreSQL via lib/pq.
type PostgresStore struct {
	db *sql.DB
}

// New opens a connection with the given DSN and runs migrations.
func New(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}

// ApplyAdjustments applies every mirrored delta in one transaction. Rows are
// locked with SELECT ... FOR UPDATE so concurrent adjustments to the same
// pair serialize at the store.
func (p *PostgresStore) ApplyAdjustments(ctx context.Context, adjs []models.Adjustment) error {
	if len(adjs) == 0 {
		return nil
	}

	tx, err := p.db.BeginTx(ctx, nil)
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

func applyOne(ctx context.Context, tx *sql.Tx, owner, counterparty, scope string, delta decimal.Decimal, currency string, now int64) error {
	const ensure = `INSERT INTO ledger_entries (owner_id, counterparty_id, scope_id, amount, currency, last_updated)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (owner_id, counterparty_id, scope_id) DO NOTHING`
	if _, err := tx.ExecContext(ctx, ensure, owner, counterparty, scope, currency, now); err != nil {
		return fmt.Errorf("failed to ensure ledger row: %w", err)
	}

	const lock = `SELECT amount FROM ledger_entries
		WHERE owner_id = $1 AND counterparty_id = $2 AND scope_id = $3
		FOR UPDATE`
	var current string
	if err := tx.QueryRowContext(ctx, lock, owner, counterparty, scope).Scan(&current); err != nil {
		return fmt.Errorf("failed to lock ledger row: %w", err)
	}

	amount, err := decimal.NewFromString(current)
	if err != nil {
		return fmt.Errorf("corrupt ledger amount %q: %w", current, err)
	}

	const update = `UPDATE ledger_entries SET amount = $1, last_updated = $2
		WHERE owner_id = $3 AND counterparty_id = $4 AND scope_id = $5`
	if _, err := tx.ExecContext(ctx, update, amount.Add(delta).String(), now, owner, counterparty, scope); err != nil {
		return fmt.Errorf("failed to update ledger row: %w", err)
	}
	return nil
}

// LedgerEntries returns all rows for a scope in (owner, counterparty) order.
func (p *PostgresStore) LedgerEntries(ctx context.Context, scopeID string) ([]models.LedgerEntry, error) {
	const query = `SELECT owner_id, counterparty_id, scope_id, amount, currency, last_updated
		FROM ledger_entries WHERE scope_id = $1
		ORDER BY owner_id, counterparty_id`
	rows, err := p.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// LedgerEntriesForUser returns all rows owned by the user across all scopes.
func (p *PostgresStore) LedgerEntriesForUser(ctx context.Context, userID string) ([]models.LedgerEntry, error) {
	const query = `SELECT owner_id, counterparty_id, scope_id, amount, currency, last_updated
		FROM ledger_entries WHERE owner_id = $1
		ORDER BY scope_id, counterparty_id`
	rows, err := p.db.QueryContext(ctx, query, userID)
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
func (p *PostgresStore) LinkUsers(ctx context.Context, userA, userB, scopeID, currency string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO ledger_entries (owner_id, counterparty_id, scope_id, amount, currency, last_updated)
		VALUES ($1, $2, $3, 0, $4, $5)
		ON CONFLICT (owner_id, counterparty_id, scope_id) DO NOTHING`
	now := time.Now().Unix()
	for _, pair := range [][2]string{{userA, userB}, {userB, userA}} {
		if _, err := tx.ExecContext(ctx, insert, pair[0], pair[1], scopeID, currency, now); err != nil {
			return fmt.Errorf("failed to link users: %w", err)
		}
	}
	return tx.Commit()
}

// CreateExpense persists a new expense and its splits.
func (p *PostgresStore) CreateExpense(ctx context.Context, expense *models.Expense) error {
	if expense.ID == "" {
		expense.ID = uuid.New().String()
	}
	if expense.CreatedAt == 0 {
		expense.CreatedAt = time.Now().Unix()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	const insert = `INSERT INTO expenses (id, group_id, description, amount, currency, payer_id, split_method, deleted, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $9, 0)`
	_, err = tx.ExecContext(ctx, insert,
		expense.ID, expense.GroupID, expense.Description, expense.Amount.String(), expense.Currency,
		expense.PayerID, string(expense.SplitMethod), expense.CreatedBy, expense.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert expense: %w", err)
	}

	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}
	return tx.Commit()
}

func insertSplits(ctx context.Context, tx *sql.Tx, expense *models.Expense) error {
	const insert = `INSERT INTO expense_splits (expense_id, participant_id, owed_amount, position)
		VALUES ($1, $2, $3, $4)`
	for i, split := range expense.Splits {
		if _, err := tx.ExecContext(ctx, insert, expense.ID, split.ParticipantID, split.OwedAmount.String(), i); err != nil {
			return fmt.Errorf("failed to insert split: %w", err)
		}
	}
	return nil
}

// GetExpense retrieves an expense by ID, including its splits in original order.
func (p *PostgresStore) GetExpense(ctx context.Context, expenseID string) (*models.Expense, error) {
	expense := &models.Expense{}
	var amount, method string
	const query = `SELECT id, group_id, description, amount, currency, payer_id, split_method, deleted, created_by, created_at, updated_at
		FROM expenses WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, expenseID).Scan(
		&expense.ID, &expense.GroupID, &expense.Description, &amount, &expense.Currency,
		&expense.PayerID, &method, &expense.Deleted, &expense.CreatedBy, &expense.CreatedAt, &expense.UpdatedAt)
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

	rows, err := p.db.QueryContext(ctx,
		`SELECT participant_id, owed_amount FROM expense_splits WHERE expense_id = $1 ORDER BY position`,
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
func (p *PostgresStore) UpdateExpense(ctx context.Context, expense *models.Expense) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if expense.UpdatedAt == 0 {
		expense.UpdatedAt = time.Now().Unix()
	}
	const update = `UPDATE expenses SET description = $1, amount = $2, currency = $3, payer_id = $4, split_method = $5, updated_at = $6
		WHERE id = $7`
	res, err := tx.ExecContext(ctx, update,
		expense.Description, expense.Amount.String(), expense.Currency, expense.PayerID,
		string(expense.SplitMethod), expense.UpdatedAt, expense.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update expense: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expense.ID, storage.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM expense_splits WHERE expense_id = $1`, expense.ID); err != nil {
		return fmt.Errorf("failed to clear splits: %w", err)
	}
	if err := insertSplits(ctx, tx, expense); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkExpenseDeleted soft-deletes the expense; splits are retained for audit.
func (p *PostgresStore) MarkExpenseDeleted(ctx context.Context, expenseID string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE expenses SET deleted = TRUE WHERE id = $1`, expenseID)
	if err != nil {
		return fmt.Errorf("failed to mark expense deleted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("expense %s: %w", expenseID, storage.ErrNotFound)
	}
	return nil
}

// CreateSettlement persists a new settlement, defaulting to pending status.
func (p *PostgresStore) CreateSettlement(ctx context.Context, settlement *models.Settlement) error {
	if settlement.ID == "" {
		settlement.ID = uuid.New().String()
	}
	if settlement.CreatedAt == 0 {
		settlement.CreatedAt = time.Now().Unix()
	}
	if settlement.Status == "" {
		settlement.Status = models.SettlementPending
	}

	const insert = `INSERT INTO settlements (id, group_id, from_user_id, to_user_id, amount, currency, status, note, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := p.db.ExecContext(ctx, insert,
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
func (p *PostgresStore) GetSettlement(ctx context.Context, settlementID string) (*models.Settlement, error) {
	settlement := &models.Settlement{}
	var amount, status string
	const query = `SELECT id, group_id, from_user_id, to_user_id, amount, currency, status, note, created_by, created_at
		FROM settlements WHERE id = $1`
	err := p.db.QueryRowContext(ctx, query, settlementID).Scan(
		&settlement.ID, &settlement.GroupID, &settlement.FromUserID, &settlement.ToUserID,
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

// TransitionSettlement moves a settlement between statuses with a conditional update.
func (p *PostgresStore) TransitionSettlement(ctx context.Context, settlementID string, from, to models.SettlementStatus) error {
	const update = `UPDATE settlements SET status = $1 WHERE id = $2 AND status = $3`
	res, err := p.db.ExecContext(ctx, update, string(to), settlementID, string(from))
	if err != nil {
		return fmt.Errorf("failed to transition settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetSettlement(ctx, settlementID); err != nil {
			return err
		}
		return fmt.Errorf("settlement %s is not %s: %w", settlementID, from, storage.ErrInvalidTransition)
	}
	return nil
}

// RemoveSettlement deletes a pending settlement (creator cancel).
func (p *PostgresStore) RemoveSettlement(ctx context.Context, settlementID string) error {
	const remove = `DELETE FROM settlements WHERE id = $1 AND status = $2`
	res, err := p.db.ExecContext(ctx, remove, settlementID, string(models.SettlementPending))
	if err != nil {
		return fmt.Errorf("failed to remove settlement: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := p.GetSettlement(ctx, settlementID); err != nil {
			return err
		}
		return fmt.Errorf("settlement %s is not pending: %w", settlementID, storage.ErrInvalidTransition)
	}
	return nil
}

// AppendActivity appends an immutable activity record.
func (p *PostgresStore) AppendActivity(ctx context.Context, activity *models.Activity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt == 0 {
		activity.CreatedAt = time.Now().Unix()
	}
	const insert = `INSERT INTO activities (id, scope_id, actor_id, type, reference_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := p.db.ExecContext(ctx, insert,
		activity.ID, activity.ScopeID, activity.ActorID, activity.Type, activity.ReferenceID, activity.Message, activity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append activity: %w", err)
	}
	return nil
}

// ListActivities returns activities for a scope, newest first.
func (p *PostgresStore) ListActivities(ctx context.Context, scopeID string, limit int) ([]models.Activity, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `SELECT id, scope_id, actor_id, type, reference_id, message, created_at
		FROM activities WHERE scope_id = $1 ORDER BY created_at DESC, id LIMIT $2`
	rows, err := p.db.QueryContext(ctx, query, scopeID, limit)
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
func (p *PostgresStore) CreateGroup(ctx context.Context, group *models.Group) error {
	if group.ID == "" {
		group.ID = uuid.New().String()
	}
	if group.CreatedAt == 0 {
		group.CreatedAt = time.Now().Unix()
	}

	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, created_by, created_at) VALUES ($1, $2, $3, $4)`,
		group.ID, group.Name, group.CreatedBy, group.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert group: %w", err)
	}

	for _, member := range group.Members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			group.ID, member,
		)
		if err != nil {
			return fmt.Errorf("failed to insert group member: %w", err)
		}
	}
	return tx.Commit()
}

// GetGroup retrieves a group by ID with its members.
func (p *PostgresStore) GetGroup(ctx context.Context, groupID string) (*models.Group, error) {
	group := &models.Group{}
	err := p.db.QueryRowContext(ctx,
		`SELECT id, name, created_by, created_at FROM groups WHERE id = $1`,
		groupID,
	).Scan(&group.ID, &group.Name, &group.CreatedBy, &group.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("group %s: %w", groupID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get group: %w", err)
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY user_id`,
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
func (p *PostgresStore) AddGroupMembers(ctx context.Context, groupID string, members []string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, member := range members {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			groupID, member,
		)
		if err != nil {
			return fmt.Errorf("failed to add group member: %w", err)
		}
	}
	return tx.Commit()
}
