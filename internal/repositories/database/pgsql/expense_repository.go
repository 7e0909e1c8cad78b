package pgsql

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	"github.com/expensio/expensio_backend/internal/models"
	"github.com/expensio/expensio_backend/internal/utils/mapping"
	"github.com/expensio/expensio_backend/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// expenseColumns is the select list shared by every expense query. Scan order
// must match scanExpenseRow.
const expenseColumns = `
	expense_id, user_id, amount, currency_code, title, description, vendor,
	category, ml_suggested_category, ml_confidence,
	status, ocr_status, ocr_data, receipt_location,
	approver_id, approval_note, rejection_reason,
	submitted_at, approved_at, rejected_at, reimbursed_at,
	created_at, created_by, last_updated_at, last_updated_by`

type PgxExpenseRepository struct {
	BaseRepository
}

// newPgxExpenseRepository creates a new repository for expense data.
func newPgxExpenseRepository(pool *pgxpool.Pool) portsrepo.ExpenseRepositoryWithTx {
	return &PgxExpenseRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

// Ensure PgxExpenseRepository implements portsrepo.ExpenseRepositoryWithTx
var _ portsrepo.ExpenseRepositoryWithTx = (*PgxExpenseRepository)(nil)

// rowScanner covers pgx.Row and pgx.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpenseRow(row rowScanner) (models.Expense, error) {
	var m models.Expense
	err := row.Scan(
		&m.ExpenseID,
		&m.UserID,
		&m.Amount,
		&m.CurrencyCode,
		&m.Title,
		&m.Description,
		&m.Vendor,
		&m.Category,
		&m.MLSuggestedCategory,
		&m.MLConfidence,
		&m.Status,
		&m.OCRStatus,
		&m.OCRData,
		&m.ReceiptLocation,
		&m.ApproverID,
		&m.ApprovalNote,
		&m.RejectionReason,
		&m.SubmittedAt,
		&m.ApprovedAt,
		&m.RejectedAt,
		&m.ReimbursedAt,
		&m.CreatedAt,
		&m.CreatedBy,
		&m.LastUpdatedAt,
		&m.LastUpdatedBy,
	)
	return m, err
}

// SaveExpense persists a new expense row.
func (r *PgxExpenseRepository) SaveExpense(ctx context.Context, expense domain.Expense) error {
	m := mapping.ToModelExpense(expense)
	query := `
		INSERT INTO expenses (
			expense_id, user_id, amount, currency_code, title, description, vendor,
			category, ml_suggested_category, ml_confidence,
			status, ocr_status, ocr_data, receipt_location,
			approver_id, approval_note, rejection_reason,
			submitted_at, approved_at, rejected_at, reimbursed_at,
			created_at, created_by, last_updated_at, last_updated_by
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
		        $16, $17, $18, $19, $20, $21, $22, $23, $24, $25);
	`
	_, err := r.Pool.Exec(ctx, query,
		m.ExpenseID, m.UserID, m.Amount, m.CurrencyCode, m.Title, m.Description, m.Vendor,
		m.Category, m.MLSuggestedCategory, m.MLConfidence,
		m.Status, m.OCRStatus, m.OCRData, m.ReceiptLocation,
		m.ApproverID, m.ApprovalNote, m.RejectionReason,
		m.SubmittedAt, m.ApprovedAt, m.RejectedAt, m.ReimbursedAt,
		m.CreatedAt, m.CreatedBy, m.LastUpdatedAt, m.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert expense "+m.ExpenseID, err)
	}
	return nil
}

// FindExpenseByID retrieves an expense by its ID.
func (r *PgxExpenseRepository) FindExpenseByID(ctx context.Context, expenseID string) (*domain.Expense, error) {
	query := `SELECT ` + expenseColumns + ` FROM expenses WHERE expense_id = $1;`

	m, err := scanExpenseRow(r.Pool.QueryRow(ctx, query, expenseID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find expense by ID "+expenseID, err)
	}

	domainExpense := mapping.ToDomainExpense(m)
	return &domainExpense, nil
}

// ListExpensesByUser retrieves a paginated list of a user's expenses using
// token-based pagination, newest first.
func (r *PgxExpenseRepository) ListExpensesByUser(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.Expense, *string, error) {
	filter := `WHERE user_id = $1`
	return r.listExpensesPage(ctx, filter, []any{userID}, limit, nextToken, false)
}

// ListExpensesByStatus retrieves a paginated list of expenses in a given
// status, oldest first, for reviewer queues.
func (r *PgxExpenseRepository) ListExpensesByStatus(ctx context.Context, status domain.ExpenseStatus, limit int, nextToken *string) ([]domain.Expense, *string, error) {
	filter := `WHERE status = $1`
	return r.listExpensesPage(ctx, filter, []any{string(status)}, limit, nextToken, true)
}

// listExpensesPage runs one cursor-paginated expense query. The cursor is the
// (created_at, expense_id) pair of the last row on the previous page.
func (r *PgxExpenseRepository) listExpensesPage(ctx context.Context, filterClause string, args []any, limit int, nextToken *string, oldestFirst bool) ([]domain.Expense, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra row to determine whether there is a next page.
	fetchLimit := limit + 1

	baseQuery := `SELECT ` + expenseColumns + ` FROM expenses ` + filterClause

	orderByClause := ` ORDER BY created_at DESC, expense_id DESC`
	cursorOp := `<`
	if oldestFirst {
		orderByClause = ` ORDER BY created_at ASC, expense_id ASC`
		cursorOp = `>`
	}

	if nextToken != nil && *nextToken != "" {
		lastCreatedAt, lastID, decodeErr := pagination.DecodeCursorToken(*nextToken)
		if decodeErr != nil {
			return nil, nil, apperrors.NewAppError(400, "invalid nextToken", decodeErr)
		}
		// Tuple comparison keeps the cursor stable across equal timestamps.
		baseQuery += ` AND (created_at, expense_id) ` + cursorOp + ` ($` + strconv.Itoa(len(args)+1) + `, $` + strconv.Itoa(len(args)+2) + `)`
		args = append(args, lastCreatedAt, lastID)
	}

	query := baseQuery + orderByClause + ` LIMIT $` + strconv.Itoa(len(args)+1) + `;`
	args = append(args, fetchLimit)

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query expenses", err)
	}
	defer rows.Close()

	expenses := make([]models.Expense, 0, fetchLimit)
	for rows.Next() {
		m, scanErr := scanExpenseRow(rows)
		if scanErr != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan expense row", scanErr)
		}
		expenses = append(expenses, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating expense rows", err)
	}

	var nextTokenVal *string
	if len(expenses) > limit {
		last := expenses[limit-1] // last item included in this page
		token := pagination.EncodeCursorToken(last.CreatedAt, last.ExpenseID)
		nextTokenVal = &token
		expenses = expenses[:limit]
	}

	return mapping.ToDomainExpenseSlice(expenses), nextTokenVal, nil
}

// ListFinalizedSince retrieves approved or reimbursed expenses last updated
// after the cutoff, used to gather training samples.
func (r *PgxExpenseRepository) ListFinalizedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.Expense, error) {
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + expenseColumns + `
		FROM expenses
		WHERE status IN ($1, $2) AND last_updated_at >= $3
		ORDER BY last_updated_at ASC
		LIMIT $4;
	`
	rows, err := r.Pool.Query(ctx, query,
		string(domain.StatusApproved), string(domain.StatusReimbursed), cutoff, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query finalized expenses", err)
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		m, scanErr := scanExpenseRow(rows)
		if scanErr != nil {
			return nil, apperrors.NewAppError(500, "failed to scan finalized expense row", scanErr)
		}
		expenses = append(expenses, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating finalized expense rows", err)
	}

	return mapping.ToDomainExpenseSlice(expenses), nil
}

// UpdateExpense updates the mutable fields of a draft expense. The UPDATE is
// conditional on the row still being in DRAFT, so a submit that lands between
// the service's read and this write makes the update lose cleanly with
// ErrInvalidTransition instead of mutating a pending expense.
func (r *PgxExpenseRepository) UpdateExpense(ctx context.Context, expense domain.Expense) error {
	m := mapping.ToModelExpense(expense)
	query := `
		UPDATE expenses
		SET amount = $2, currency_code = $3, title = $4, description = $5, vendor = $6,
		    category = $7, receipt_location = $8, last_updated_at = $9, last_updated_by = $10
		WHERE expense_id = $1 AND status = $11;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		m.ExpenseID, m.Amount, m.CurrencyCode, m.Title, m.Description, m.Vendor,
		m.Category, m.ReceiptLocation, m.LastUpdatedAt, m.LastUpdatedBy,
		string(domain.StatusDraft),
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update expense "+m.ExpenseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var actual string
		readErr := r.Pool.QueryRow(ctx, `SELECT status FROM expenses WHERE expense_id = $1;`, m.ExpenseID).Scan(&actual)
		if readErr != nil {
			if errors.Is(readErr, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return apperrors.NewAppError(500, "failed to read status of expense "+m.ExpenseID, readErr)
		}
		return apperrors.NewInvalidTransitionError(string(domain.ActionExpenseUpdated), string(domain.StatusDraft), actual)
	}
	return nil
}

// TransitionExpenseStatus moves an expense between lifecycle statuses and
// writes the audit entry in the same database transaction. The UPDATE is
// conditional on the row still holding fromStatus; losing that race yields
// ErrInvalidTransition with the status actually found.
func (r *PgxExpenseRepository) TransitionExpenseStatus(ctx context.Context, expenseID string, fromStatus domain.ExpenseStatus, updated domain.Expense, audit domain.AuditEntry) error {
	m := mapping.ToModelExpense(updated)

	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx) // Ignored once the transaction commits

	query := `
		UPDATE expenses
		SET status = $2, approver_id = $3, approval_note = $4, rejection_reason = $5,
		    submitted_at = $6, approved_at = $7, rejected_at = $8, reimbursed_at = $9,
		    last_updated_at = $10, last_updated_by = $11
		WHERE expense_id = $1 AND status = $12;
	`
	cmdTag, err := tx.Exec(ctx, query,
		m.ExpenseID, m.Status, m.ApproverID, m.ApprovalNote, m.RejectionReason,
		m.SubmittedAt, m.ApprovedAt, m.RejectedAt, m.ReimbursedAt,
		m.LastUpdatedAt, m.LastUpdatedBy, string(fromStatus),
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to transition expense "+expenseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Lost the compare-and-swap. Read the current status to name it.
		var actual string
		readErr := tx.QueryRow(ctx, `SELECT status FROM expenses WHERE expense_id = $1;`, expenseID).Scan(&actual)
		if readErr != nil {
			if errors.Is(readErr, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return apperrors.NewAppError(500, "failed to read status of expense "+expenseID, readErr)
		}
		return apperrors.NewInvalidTransitionError(string(audit.Action), string(fromStatus), actual)
	}

	if err := insertAuditEntry(ctx, tx, mapping.ToModelAuditEntry(audit)); err != nil {
		return apperrors.NewAppError(500, "failed to insert audit entry for expense "+expenseID, err)
	}

	if err := r.Commit(ctx, tx); err != nil {
		return err
	}
	return nil
}

// UpdateExpenseOCR writes extraction results without touching lifecycle fields.
func (r *PgxExpenseRepository) UpdateExpenseOCR(ctx context.Context, expenseID string, ocrStatus domain.OCRStatus, ocrData *domain.OCRData, updatedAt time.Time) error {
	query := `
		UPDATE expenses
		SET ocr_status = $2, ocr_data = $3, last_updated_at = $4, last_updated_by = $5
		WHERE expense_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, expenseID, string(ocrStatus), ocrData, updatedAt, domain.SystemActorID)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update OCR fields of expense "+expenseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// UpdateExpenseSuggestion writes the categorizer outcome onto the expense.
func (r *PgxExpenseRepository) UpdateExpenseSuggestion(ctx context.Context, expenseID string, category domain.Category, confidence float64, updatedAt time.Time) error {
	query := `
		UPDATE expenses
		SET ml_suggested_category = $2, ml_confidence = $3, last_updated_at = $4, last_updated_by = $5
		WHERE expense_id = $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, expenseID, string(category), confidence, updatedAt, domain.SystemActorID)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update suggestion of expense "+expenseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

// DeleteExpense removes a draft expense together with its extraction job.
// Audit entries are kept: the trail is append-only and outlives its expense.
// The DELETE is conditional on the row still being in DRAFT; losing that race
// to a concurrent submit rolls back and yields ErrInvalidTransition.
func (r *PgxExpenseRepository) DeleteExpense(ctx context.Context, expenseID string) error {
	tx, err := r.Begin(ctx)
	if err != nil {
		return err
	}
	defer r.Rollback(ctx, tx)

	if _, err := tx.Exec(ctx, `DELETE FROM extraction_jobs WHERE expense_id = $1;`, expenseID); err != nil {
		return apperrors.NewAppError(500, "failed to delete extraction job of expense "+expenseID, err)
	}

	cmdTag, err := tx.Exec(ctx, `DELETE FROM expenses WHERE expense_id = $1 AND status = $2;`, expenseID, string(domain.StatusDraft))
	if err != nil {
		return apperrors.NewAppError(500, "failed to delete expense "+expenseID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		var actual string
		readErr := tx.QueryRow(ctx, `SELECT status FROM expenses WHERE expense_id = $1;`, expenseID).Scan(&actual)
		if readErr != nil {
			if errors.Is(readErr, pgx.ErrNoRows) {
				return apperrors.ErrNotFound
			}
			return apperrors.NewAppError(500, "failed to read status of expense "+expenseID, readErr)
		}
		return apperrors.NewInvalidTransitionError("delete", string(domain.StatusDraft), actual)
	}

	return r.Commit(ctx, tx)
}
