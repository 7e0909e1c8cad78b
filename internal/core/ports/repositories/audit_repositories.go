package repositories

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// AuditEntryReader defines read operations for the audit trail
type AuditEntryReader interface {
	// ListAuditEntriesByExpense retrieves all audit entries for an expense,
	// oldest first.
	ListAuditEntriesByExpense(ctx context.Context, expenseID string) ([]domain.AuditEntry, error)
}

// AuditEntryWriter defines write operations for the audit trail. Entries are
// append-only; there are no update or delete operations.
type AuditEntryWriter interface {
	// SaveAuditEntry persists a new audit entry.
	SaveAuditEntry(ctx context.Context, entry domain.AuditEntry) error
}

// AuditRepositoryFacade combines all audit-related repository interfaces
type AuditRepositoryFacade interface {
	AuditEntryReader
	AuditEntryWriter
}
