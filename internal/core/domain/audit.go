package domain

import "time"

// AuditAction tags what an audit entry records.
type AuditAction string

const (
	ActionExpenseCreated      AuditAction = "EXPENSE_CREATED"
	ActionExpenseUpdated      AuditAction = "EXPENSE_UPDATED"
	ActionExpenseSubmitted    AuditAction = "EXPENSE_SUBMITTED"
	ActionExpenseApproved     AuditAction = "EXPENSE_APPROVED"
	ActionExpenseRejected     AuditAction = "EXPENSE_REJECTED"
	ActionChangesRequested    AuditAction = "CHANGES_REQUESTED"
	ActionExpenseResubmitted  AuditAction = "EXPENSE_RESUBMITTED"
	ActionExpenseReimbursed   AuditAction = "EXPENSE_REIMBURSED"
	ActionExtractionCompleted AuditAction = "EXTRACTION_COMPLETED"
	ActionExtractionFailed    AuditAction = "EXTRACTION_FAILED"
	ActionExpenseCategorized  AuditAction = "EXPENSE_CATEGORIZED"
	ActionCategoryFeedback    AuditAction = "CATEGORY_FEEDBACK"
	ActionModelRetrained      AuditAction = "MODEL_RETRAINED"
)

// AuditEntry is one append-only record of something that happened to an
// expense. Entries are never updated or deleted.
type AuditEntry struct {
	AuditID   string         `json:"auditID"`   // Primary Key (UUID)
	ExpenseID string         `json:"expenseID"` // FK -> expenses.expense_id
	ActorID   string         `json:"actorID"`   // User or system actor
	Action    AuditAction    `json:"action"`
	OldStatus *ExpenseStatus `json:"oldStatus,omitempty"`
	NewStatus *ExpenseStatus `json:"newStatus,omitempty"`
	Note      string         `json:"note,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"` // Scores, confidences, error text
	CreatedAt time.Time      `json:"createdAt"`
}

// SystemActorID marks audit entries written by the pipelines themselves
// rather than by a human actor.
const SystemActorID = "system"
