package repositories

import (
	"context"
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// ExpenseReader defines read operations for expense data
type ExpenseReader interface {
	// FindExpenseByID retrieves an expense by its unique identifier.
	FindExpenseByID(ctx context.Context, expenseID string) (*domain.Expense, error)

	// ListExpensesByUser retrieves a paginated list of a user's expenses using
	// token-based pagination, newest first. It returns the expenses, a token
	// for the next page, and an error.
	ListExpensesByUser(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.Expense, *string, error)

	// ListExpensesByStatus retrieves a paginated list of expenses in a given
	// status, oldest first, for reviewer queues.
	ListExpensesByStatus(ctx context.Context, status domain.ExpenseStatus, limit int, nextToken *string) ([]domain.Expense, *string, error)

	// ListFinalizedSince retrieves approved or reimbursed expenses last updated
	// after the cutoff, used to gather training samples.
	ListFinalizedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.Expense, error)
}

// ExpenseWriter defines write operations for expense data
type ExpenseWriter interface {
	// SaveExpense persists a new expense.
	SaveExpense(ctx context.Context, expense domain.Expense) error

	// UpdateExpense updates the mutable fields of a draft expense. The write
	// is conditional on the row still being in DRAFT; an expense that was
	// submitted concurrently yields apperrors.ErrInvalidTransition.
	UpdateExpense(ctx context.Context, expense domain.Expense) error

	// TransitionExpenseStatus moves an expense between lifecycle statuses and
	// writes the audit entry in the same database transaction. The status
	// mutation is a compare-and-swap: it applies only while the row still
	// holds fromStatus, and returns apperrors.ErrInvalidTransition naming the
	// actual status otherwise, so concurrent double-transitions resolve to
	// exactly one winner. The updated expense carries transition side data
	// (approver, note, reason, timestamps).
	TransitionExpenseStatus(ctx context.Context, expenseID string, fromStatus domain.ExpenseStatus, updated domain.Expense, audit domain.AuditEntry) error

	// UpdateExpenseOCR writes extraction results (status + payload) without
	// touching lifecycle fields.
	UpdateExpenseOCR(ctx context.Context, expenseID string, ocrStatus domain.OCRStatus, ocrData *domain.OCRData, updatedAt time.Time) error

	// UpdateExpenseSuggestion writes the categorizer outcome onto the expense.
	UpdateExpenseSuggestion(ctx context.Context, expenseID string, category domain.Category, confidence float64, updatedAt time.Time) error

	// DeleteExpense removes a draft expense together with its extraction job.
	// Like UpdateExpense the delete only applies while the row is in DRAFT,
	// and losing to a concurrent submit yields apperrors.ErrInvalidTransition.
	DeleteExpense(ctx context.Context, expenseID string) error
}

// ExpenseRepositoryFacade combines all expense-related repository interfaces
// This is a facade for clients that need access to all operations
type ExpenseRepositoryFacade interface {
	ExpenseReader
	ExpenseWriter
}

// ExpenseRepositoryWithTx extends ExpenseRepositoryFacade with transaction capabilities
type ExpenseRepositoryWithTx interface {
	ExpenseRepositoryFacade
	TransactionManager
}
