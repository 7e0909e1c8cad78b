package services

// ServiceContainer holds all services to be injected into handlers
type ServiceContainer struct {
	Expense     ExpenseSvcFacade
	Extraction  ExtractionQueueSvc
	Categorizer CategorizerSvc
	User        UserSvcFacade
}
