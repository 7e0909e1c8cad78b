package services

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/dto"
)

// ExpenseReaderSvc defines read operations for expense data
type ExpenseReaderSvc interface {
	// GetExpenseByID retrieves a specific expense. Owners see their own
	// expenses; approvers and admins see everything.
	GetExpenseByID(ctx context.Context, expenseID string, requestingUserID string) (*domain.Expense, error)

	// ListExpenses retrieves a paginated list of the requesting user's
	// expenses, or of a given status queue for reviewers.
	ListExpenses(ctx context.Context, requestingUserID string, params dto.ListExpensesParams) (*dto.ListExpensesResponse, error)

	// ListAuditTrail retrieves the append-only audit trail of an expense.
	ListAuditTrail(ctx context.Context, expenseID string, requestingUserID string) ([]domain.AuditEntry, error)
}

// ExpenseWriterSvc defines write operations for draft expenses
type ExpenseWriterSvc interface {
	// CreateExpense persists a new draft expense. When receipt bytes are
	// attached it also stores them, enqueues extraction and triggers
	// categorization, both fire-and-forget after the expense is committed.
	CreateExpense(ctx context.Context, req dto.CreateExpenseRequest, creatorUserID string) (*domain.Expense, error)

	// UpdateExpense updates a draft expense's editable fields.
	UpdateExpense(ctx context.Context, expenseID string, req dto.UpdateExpenseRequest, requestingUserID string) (*domain.Expense, error)

	// AttachReceipt stores receipt bytes for a draft expense and re-enqueues
	// extraction. A new receipt supersedes the old job entirely.
	AttachReceipt(ctx context.Context, expenseID string, req dto.AttachReceiptRequest, requestingUserID string) (*domain.Expense, error)

	// DeleteExpense removes a draft expense.
	DeleteExpense(ctx context.Context, expenseID string, requestingUserID string) error
}

// ExpenseLifecycleSvc owns the status state machine. Every transition writes
// an audit entry atomically with the status change and emits the matching
// notification event after commit.
type ExpenseLifecycleSvc interface {
	// SubmitExpense moves DRAFT to PENDING and assigns an approver.
	SubmitExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error)

	// ApproveExpense moves PENDING to APPROVED. When the human-confirmed
	// category differs from the suggestion, a feedback signal goes to the
	// categorizer.
	ApproveExpense(ctx context.Context, expenseID string, approverID string, note string) (*domain.Expense, error)

	// RejectExpense moves PENDING to REJECTED. Requires a non-empty reason.
	RejectExpense(ctx context.Context, expenseID string, approverID string, reason string) (*domain.Expense, error)

	// RequestChanges moves PENDING to CHANGES_REQUESTED. Requires a non-empty
	// message.
	RequestChanges(ctx context.Context, expenseID string, approverID string, message string) (*domain.Expense, error)

	// ResubmitExpense moves CHANGES_REQUESTED back to PENDING.
	ResubmitExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error)

	// ReimburseExpense moves APPROVED to REIMBURSED, the terminal state.
	ReimburseExpense(ctx context.Context, expenseID string, actorID string) (*domain.Expense, error)
}

// ExpenseSvcFacade combines all expense-related service interfaces
// This is a facade for clients that need access to all operations
type ExpenseSvcFacade interface {
	ExpenseReaderSvc
	ExpenseWriterSvc
	ExpenseLifecycleSvc
}
