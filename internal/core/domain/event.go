package domain

// EventType tags a notification event emitted by the lifecycle state machine.
type EventType string

const (
	EventExpenseSubmitted  EventType = "EXPENSE_SUBMITTED"
	EventExpenseApproved   EventType = "EXPENSE_APPROVED"
	EventExpenseRejected   EventType = "EXPENSE_REJECTED"
	EventChangesRequested  EventType = "CHANGES_REQUESTED"
	EventExpenseReimbursed EventType = "EXPENSE_REIMBURSED"
)

// Event is the structured payload handed to the notifier. Delivery is
// fire-and-forget; failures are logged, never surfaced to the transition
// that emitted the event.
type Event struct {
	Type        EventType      `json:"type"`
	ExpenseID   string         `json:"expenseID"`
	RecipientID string         `json:"recipientID"`
	Payload     map[string]any `json:"payload,omitempty"`
}
