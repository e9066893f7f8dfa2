// Package models defines the core domain models for splitledger.
//
// # Models
//
//   - LedgerEntry: directed net balance of one user toward another, per scope
//   - Expense: an amount paid by one user and apportioned across participants
//   - Settlement: a claimed payment between two users, confirmed by the recipient
//   - Activity: immutable human-readable record of a completed mutation
//   - Group: a set of users who share expenses
//   - User: a registered account
//
// # Conventions
//
// Users and groups are identified by UUID strings. A scope is a group ID, or
// the empty string meaning "aggregate across all groups and direct balances"
// for a pair of users.
//
// Money is represented with shopspring/decimal throughout. Intermediate
// arithmetic keeps full precision; amounts are rounded to two decimal places
// only when emitted to clients.
//
// # Design Principles
//
// 1. **Avoid circular references**: relationships use ID strings, not pointers
// 2. **Increment-only balances**: LedgerEntry amounts are only ever adjusted
// through the ledger primitives, never overwritten
// 3. **Soft deletion**: expenses are flagged deleted and retained for audit
package models
