package services_test

import (
	"context"
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

// --- Mock ExpenseRepository ---
type MockExpenseRepository struct {
	mock.Mock
}

var _ portsrepo.ExpenseRepositoryWithTx = (*MockExpenseRepository)(nil)

func (m *MockExpenseRepository) SaveExpense(ctx context.Context, expense domain.Expense) error {
	args := m.Called(ctx, expense)
	return args.Error(0)
}

func (m *MockExpenseRepository) FindExpenseByID(ctx context.Context, expenseID string) (*domain.Expense, error) {
	args := m.Called(ctx, expenseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Expense), args.Error(1)
}

func (m *MockExpenseRepository) ListExpensesByUser(ctx context.Context, userID string, limit int, nextToken *string) ([]domain.Expense, *string, error) {
	args := m.Called(ctx, userID, limit, nextToken)
	var expenses []domain.Expense
	if args.Get(0) != nil {
		expenses = args.Get(0).([]domain.Expense)
	}
	var token *string
	if args.Get(1) != nil {
		token = args.Get(1).(*string)
	}
	return expenses, token, args.Error(2)
}

func (m *MockExpenseRepository) ListExpensesByStatus(ctx context.Context, status domain.ExpenseStatus, limit int, nextToken *string) ([]domain.Expense, *string, error) {
	args := m.Called(ctx, status, limit, nextToken)
	var expenses []domain.Expense
	if args.Get(0) != nil {
		expenses = args.Get(0).([]domain.Expense)
	}
	var token *string
	if args.Get(1) != nil {
		token = args.Get(1).(*string)
	}
	return expenses, token, args.Error(2)
}

func (m *MockExpenseRepository) ListFinalizedSince(ctx context.Context, cutoff time.Time, limit int) ([]domain.Expense, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Expense), args.Error(1)
}

func (m *MockExpenseRepository) UpdateExpense(ctx context.Context, expense domain.Expense) error {
	args := m.Called(ctx, expense)
	return args.Error(0)
}

func (m *MockExpenseRepository) TransitionExpenseStatus(ctx context.Context, expenseID string, fromStatus domain.ExpenseStatus, updated domain.Expense, audit domain.AuditEntry) error {
	args := m.Called(ctx, expenseID, fromStatus, updated, audit)
	return args.Error(0)
}

func (m *MockExpenseRepository) UpdateExpenseOCR(ctx context.Context, expenseID string, ocrStatus domain.OCRStatus, ocrData *domain.OCRData, updatedAt time.Time) error {
	args := m.Called(ctx, expenseID, ocrStatus, ocrData, updatedAt)
	return args.Error(0)
}

func (m *MockExpenseRepository) UpdateExpenseSuggestion(ctx context.Context, expenseID string, category domain.Category, confidence float64, updatedAt time.Time) error {
	args := m.Called(ctx, expenseID, category, confidence, updatedAt)
	return args.Error(0)
}

func (m *MockExpenseRepository) DeleteExpense(ctx context.Context, expenseID string) error {
	args := m.Called(ctx, expenseID)
	return args.Error(0)
}

func (m *MockExpenseRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockExpenseRepository) Commit(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

func (m *MockExpenseRepository) Rollback(ctx context.Context, tx pgx.Tx) error {
	args := m.Called(ctx, tx)
	return args.Error(0)
}

// --- Mock ExtractionJobRepository ---
type MockExtractionJobRepository struct {
	mock.Mock
}

var _ portsrepo.ExtractionJobRepositoryFacade = (*MockExtractionJobRepository)(nil)

func (m *MockExtractionJobRepository) FindJobByExpenseID(ctx context.Context, expenseID string) (*domain.ExtractionJob, error) {
	args := m.Called(ctx, expenseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionJob), args.Error(1)
}

func (m *MockExtractionJobRepository) ListRetryableJobs(ctx context.Context, cutoff time.Time, limit int) ([]domain.ExtractionJob, error) {
	args := m.Called(ctx, cutoff, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.ExtractionJob), args.Error(1)
}

func (m *MockExtractionJobRepository) UpsertJob(ctx context.Context, job domain.ExtractionJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockExtractionJobRepository) ClaimJob(ctx context.Context, expenseID string, now time.Time) (*domain.ExtractionJob, error) {
	args := m.Called(ctx, expenseID, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionJob), args.Error(1)
}

func (m *MockExtractionJobRepository) CompleteJob(ctx context.Context, jobID string, processedAt time.Time) error {
	args := m.Called(ctx, jobID, processedAt)
	return args.Error(0)
}

func (m *MockExtractionJobRepository) FailJob(ctx context.Context, jobID string, lastError string, processedAt time.Time) error {
	args := m.Called(ctx, jobID, lastError, processedAt)
	return args.Error(0)
}

// --- Mock AuditRepository ---
type MockAuditRepository struct {
	mock.Mock
}

var _ portsrepo.AuditRepositoryFacade = (*MockAuditRepository)(nil)

func (m *MockAuditRepository) SaveAuditEntry(ctx context.Context, entry domain.AuditEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockAuditRepository) ListAuditEntriesByExpense(ctx context.Context, expenseID string) ([]domain.AuditEntry, error) {
	args := m.Called(ctx, expenseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.AuditEntry), args.Error(1)
}

// --- Mock UserRepository ---
type MockUserRepository struct {
	mock.Mock
}

var _ portsrepo.UserRepositoryFacade = (*MockUserRepository)(nil)

func (m *MockUserRepository) SaveUser(ctx context.Context, user domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindUserByID(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) FindUsers(ctx context.Context, limit int, offset int) ([]domain.User, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.User), args.Error(1)
}

func (m *MockUserRepository) FindEligibleApprover(ctx context.Context) (*domain.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, user domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) MarkUserDeleted(ctx context.Context, userID string, deletedAt time.Time, deletedBy string) error {
	args := m.Called(ctx, userID, deletedAt, deletedBy)
	return args.Error(0)
}

// --- Mock ClassifierClient ---
type MockClassifierClient struct {
	mock.Mock
}

var _ clients.ClassifierClient = (*MockClassifierClient)(nil)

func (m *MockClassifierClient) Categorize(ctx context.Context, fields domain.ExpenseFields) (*clients.RemoteClassification, error) {
	args := m.Called(ctx, fields)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.RemoteClassification), args.Error(1)
}

func (m *MockClassifierClient) SendFeedback(ctx context.Context, feedback clients.CategoryFeedback) error {
	args := m.Called(ctx, feedback)
	return args.Error(0)
}

func (m *MockClassifierClient) Train(ctx context.Context, samples []domain.TrainingSample) (*clients.TrainingResult, error) {
	args := m.Called(ctx, samples)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.TrainingResult), args.Error(1)
}

func (m *MockClassifierClient) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// --- Mock ExtractionProvider ---
type MockExtractionProvider struct {
	mock.Mock
}

var _ clients.ExtractionProvider = (*MockExtractionProvider)(nil)

func (m *MockExtractionProvider) DetectText(ctx context.Context, receiptLocation string) (*domain.ExtractionResult, error) {
	args := m.Called(ctx, receiptLocation)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ExtractionResult), args.Error(1)
}

// --- Mock BlobStore ---
type MockBlobStore struct {
	mock.Mock
}

var _ clients.BlobStore = (*MockBlobStore)(nil)

func (m *MockBlobStore) Put(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	args := m.Called(ctx, key, contentType, data)
	return args.String(0), args.Error(1)
}

func (m *MockBlobStore) Get(ctx context.Context, location string) ([]byte, error) {
	args := m.Called(ctx, location)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// --- Mock Notifier ---
type MockNotifier struct {
	mock.Mock
}

var _ clients.Notifier = (*MockNotifier)(nil)

func (m *MockNotifier) Notify(ctx context.Context, event domain.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// --- Mock ExtractionQueueSvc ---
type MockExtractionQueue struct {
	mock.Mock
}

var _ portssvc.ExtractionQueueSvc = (*MockExtractionQueue)(nil)

func (m *MockExtractionQueue) EnqueueExtraction(ctx context.Context, expenseID string, receiptLocation string) error {
	args := m.Called(ctx, expenseID, receiptLocation)
	return args.Error(0)
}

func (m *MockExtractionQueue) ProcessExpense(ctx context.Context, expenseID string) error {
	args := m.Called(ctx, expenseID)
	return args.Error(0)
}

func (m *MockExtractionQueue) RetryFailedExtractions(ctx context.Context, windowHours int, batchSize int) (int, error) {
	args := m.Called(ctx, windowHours, batchSize)
	return args.Int(0), args.Error(1)
}

// --- Mock CategorizerSvc ---
type MockCategorizer struct {
	mock.Mock
}

var _ portssvc.CategorizerSvc = (*MockCategorizer)(nil)

func (m *MockCategorizer) ClassifyExpense(ctx context.Context, expenseID string) (*domain.CategorizationOutcome, error) {
	args := m.Called(ctx, expenseID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CategorizationOutcome), args.Error(1)
}

func (m *MockCategorizer) RecordCategoryFeedback(ctx context.Context, expenseID string, correctedCategory domain.Category, actorID string) error {
	args := m.Called(ctx, expenseID, correctedCategory, actorID)
	return args.Error(0)
}

func (m *MockCategorizer) RetrainModel(ctx context.Context, sampleWindowDays int, minSamples int) (*domain.ModelInfo, error) {
	args := m.Called(ctx, sampleWindowDays, minSamples)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ModelInfo), args.Error(1)
}

func (m *MockCategorizer) CurrentModel() *domain.ModelInfo {
	args := m.Called()
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).(*domain.ModelInfo)
}

func (m *MockCategorizer) PingClassifier(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
