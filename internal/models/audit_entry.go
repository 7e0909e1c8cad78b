package models

import "time"

// AuditEntry is the database representation of one append-only audit row.
// There are deliberately no update or delete paths for this table.
type AuditEntry struct {
	AuditID   string         `json:"auditID" db:"audit_id"`
	ExpenseID string         `json:"expenseID" db:"expense_id"`
	ActorID   string         `json:"actorID" db:"actor_id"`
	Action    string         `json:"action" db:"action"`
	OldStatus *string        `json:"oldStatus" db:"old_status"`
	NewStatus *string        `json:"newStatus" db:"new_status"`
	Note      *string        `json:"note" db:"note"`
	Metadata  map[string]any `json:"metadata" db:"metadata"` // JSONB column
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}
