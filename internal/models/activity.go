package models

// Activity types recorded by the emitter after a mutation commits.
const (
	ActivityExpenseAdded        = "expense_added"
	ActivityExpenseUpdated      = "expense_updated"
	ActivityExpenseDeleted      = "expense_deleted"
	ActivitySettlementAdded     = "settlement_added"
	ActivitySettlementConfirmed = "settlement_confirmed"
	ActivitySettlementRejected  = "settlement_rejected"
	ActivityMemberJoined        = "member_joined"
	ActivityMemberLeft          = "member_left"
)

// Activity is an immutable, append-only record of a completed mutation.
// Activities are written after the ledger mutation commits, never before.
type Activity struct {
	// ID is the unique identifier for the record (UUID format).
	ID string

	// ScopeID is the group the activity belongs to, or empty for a direct
	// (friend-to-friend) mutation.
	ScopeID string

	// ActorID is the user who performed the mutation.
	ActorID string

	// Type is one of the Activity* constants above.
	Type string

	// ReferenceID points at the mutated row (expense or settlement ID).
	ReferenceID string

	// Message is the human-readable summary shown in activity feeds.
	Message string

	// CreatedAt is the Unix timestamp when the record was appended.
	CreatedAt int64
}
