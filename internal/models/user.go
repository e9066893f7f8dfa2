package models

// User represents a registered account. Registration and login live in the
// external facade; the core only needs identity for ledger rows, sessions,
// and channel addressing.
type User struct {
	// ID is the unique identifier for the user (UUID format).
	ID string

	// Name is the display name of the user.
	Name string

	// Email is the user's email address (unique).
	Email string

	// CreatedAt is the Unix timestamp when the account was created.
	CreatedAt int64
}
