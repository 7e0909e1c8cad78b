package pgsql

import (
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	expenseRepo := newPgxExpenseRepository(dbPool)
	extractionJobRepo := newPgxExtractionJobRepository(dbPool)
	auditRepo := newPgxAuditRepository(dbPool)
	userRepo := newPgxUserRepository(dbPool)

	return portsrepo.RepositoryProvider{
		ExpenseRepo:       expenseRepo,
		ExtractionJobRepo: extractionJobRepo,
		AuditRepo:         auditRepo,
		UserRepo:          userRepo,
	}
}
