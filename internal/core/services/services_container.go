package services

import (
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/platform/config"
	"github.com/expensio/expensio_backend/internal/platform/tasks"
)

// NewServiceContainer creates a new service container with properly initialized dependencies
func NewServiceContainer(
	cfg *config.Config,
	repos portsrepo.RepositoryProvider,
	provider clients.ExtractionProvider,
	classifier clients.ClassifierClient,
	blobs clients.BlobStore,
	notifier clients.Notifier,
	runner *tasks.Runner,
) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}

	container.User = NewUserService(repos.UserRepo)
	container.Extraction = NewExtractionService(
		repos.ExtractionJobRepo,
		repos.ExpenseRepo,
		repos.AuditRepo,
		provider,
		cfg.MaxExtractionAttempts,
	)
	container.Categorizer = NewCategorizationService(
		repos.ExpenseRepo,
		repos.AuditRepo,
		classifier,
	)
	container.Expense = NewExpenseService(
		repos.ExpenseRepo,
		repos.AuditRepo,
		repos.UserRepo,
		blobs,
		notifier,
		container.Extraction,
		container.Categorizer,
		runner,
	)

	return container
}

// Helper to check interface implementations at compile time
var (
	_ portssvc.ExpenseSvcFacade   = (*expenseService)(nil)
	_ portssvc.ExtractionQueueSvc = (*extractionService)(nil)
	_ portssvc.CategorizerSvc     = (*categorizationService)(nil)
	_ portssvc.UserSvcFacade      = (*userService)(nil)
)
