package pgsql

import (
	"context"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	"github.com/expensio/expensio_backend/internal/models"
	"github.com/expensio/expensio_backend/internal/utils/mapping"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const auditEntryColumns = `
	audit_id, expense_id, actor_id, action, old_status, new_status, note, metadata, created_at`

type PgxAuditRepository struct {
	BaseRepository
}

// newPgxAuditRepository creates a new repository for audit trail data.
func newPgxAuditRepository(pool *pgxpool.Pool) portsrepo.AuditRepositoryFacade {
	return &PgxAuditRepository{
		BaseRepository: BaseRepository{Pool: pool},
	}
}

// Ensure PgxAuditRepository implements portsrepo.AuditRepositoryFacade
var _ portsrepo.AuditRepositoryFacade = (*PgxAuditRepository)(nil)

// execer covers *pgxpool.Pool and pgx.Tx, so audit inserts can join an open
// expense transaction or run standalone.
type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func insertAuditEntry(ctx context.Context, q execer, m models.AuditEntry) error {
	query := `
		INSERT INTO audit_entries (
			audit_id, expense_id, actor_id, action, old_status, new_status, note, metadata, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	_, err := q.Exec(ctx, query,
		m.AuditID, m.ExpenseID, m.ActorID, m.Action, m.OldStatus, m.NewStatus, m.Note, m.Metadata, m.CreatedAt,
	)
	return err
}

// SaveAuditEntry appends one entry to the audit trail. Entries are never
// updated or deleted.
func (r *PgxAuditRepository) SaveAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	if err := insertAuditEntry(ctx, r.Pool, mapping.ToModelAuditEntry(entry)); err != nil {
		return apperrors.NewAppError(500, "failed to insert audit entry for expense "+entry.ExpenseID, err)
	}
	return nil
}

// ListAuditEntriesByExpense retrieves the full audit trail of an expense,
// oldest first.
func (r *PgxAuditRepository) ListAuditEntriesByExpense(ctx context.Context, expenseID string) ([]domain.AuditEntry, error) {
	query := `SELECT ` + auditEntryColumns + `
		FROM audit_entries
		WHERE expense_id = $1
		ORDER BY created_at ASC, audit_id ASC;
	`
	rows, err := r.Pool.Query(ctx, query, expenseID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query audit entries for expense "+expenseID, err)
	}
	defer rows.Close()

	entries := []models.AuditEntry{}
	for rows.Next() {
		var m models.AuditEntry
		scanErr := rows.Scan(
			&m.AuditID,
			&m.ExpenseID,
			&m.ActorID,
			&m.Action,
			&m.OldStatus,
			&m.NewStatus,
			&m.Note,
			&m.Metadata,
			&m.CreatedAt,
		)
		if scanErr != nil {
			return nil, apperrors.NewAppError(500, "failed to scan audit entry row", scanErr)
		}
		entries = append(entries, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating audit entry rows", err)
	}

	return mapping.ToDomainAuditEntrySlice(entries), nil
}
