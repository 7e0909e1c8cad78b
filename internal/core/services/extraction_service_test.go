package services_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/core/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type ExtractionServiceTestSuite struct {
	suite.Suite
	mockJobRepo     *MockExtractionJobRepository
	mockExpenseRepo *MockExpenseRepository
	mockAuditRepo   *MockAuditRepository
	mockProvider    *MockExtractionProvider
	service         portssvc.ExtractionQueueSvc
	expenseID       string
	location        string
}

func (suite *ExtractionServiceTestSuite) SetupTest() {
	suite.mockJobRepo = new(MockExtractionJobRepository)
	suite.mockExpenseRepo = new(MockExpenseRepository)
	suite.mockAuditRepo = new(MockAuditRepository)
	suite.mockProvider = new(MockExtractionProvider)
	suite.service = services.NewExtractionService(suite.mockJobRepo, suite.mockExpenseRepo, suite.mockAuditRepo, suite.mockProvider, 3)

	suite.expenseID = uuid.NewString()
	suite.location = "receipts/" + suite.expenseID + "/receipt.png"
}

// claimedJob builds a job the way ClaimJob hands it back: status already
// flipped to processing, attempts still counting completed runs only.
func (suite *ExtractionServiceTestSuite) claimedJob(attempts int) *domain.ExtractionJob {
	return &domain.ExtractionJob{
		JobID:           uuid.NewString(),
		ExpenseID:       suite.expenseID,
		ReceiptLocation: suite.location,
		Status:          domain.JobProcessing,
		Attempts:        attempts,
		MaxAttempts:     3,
	}
}

// --- Test Cases ---

func (suite *ExtractionServiceTestSuite) TestEnqueueExtraction_Success() {
	ctx := context.Background()

	suite.mockJobRepo.On("UpsertJob", ctx, mock.MatchedBy(func(job domain.ExtractionJob) bool {
		return job.ExpenseID == suite.expenseID &&
			job.ReceiptLocation == suite.location &&
			job.Status == domain.JobPending &&
			job.Attempts == 0 &&
			job.MaxAttempts == 3
	})).Return(nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRPending, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()

	err := suite.service.EnqueueExtraction(ctx, suite.expenseID, suite.location)

	suite.Require().NoError(err)
	suite.mockJobRepo.AssertExpectations(suite.T())
	suite.mockExpenseRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestEnqueueExtraction_ReplacementResetsAttempts() {
	ctx := context.Background()

	// Both enqueues hand the repository a zero-attempt pending job; the upsert
	// replaces the first job wholesale, so a new receipt restarts the budget.
	suite.mockJobRepo.On("UpsertJob", ctx, mock.MatchedBy(func(job domain.ExtractionJob) bool {
		return job.ExpenseID == suite.expenseID && job.Status == domain.JobPending && job.Attempts == 0
	})).Return(nil).Twice()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRPending, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Twice()

	suite.Require().NoError(suite.service.EnqueueExtraction(ctx, suite.expenseID, suite.location))
	suite.Require().NoError(suite.service.EnqueueExtraction(ctx, suite.expenseID, suite.location))

	suite.mockJobRepo.AssertExpectations(suite.T())
	suite.mockExpenseRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestEnqueueExtraction_MissingLocation() {
	ctx := context.Background()

	err := suite.service.EnqueueExtraction(ctx, suite.expenseID, "")

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.mockJobRepo.AssertNotCalled(suite.T(), "UpsertJob", mock.Anything, mock.Anything)
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_Success() {
	ctx := context.Background()
	job := suite.claimedJob(0)
	result := &domain.ExtractionResult{
		FullText:   "Cafe Bom Dia\nTotal: $12.34\n15/01/2025",
		Confidence: 0.93,
		Source:     domain.ExtractionSourceRemote,
	}

	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, suite.location).Return(result, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRCompleted, mock.MatchedBy(func(data *domain.OCRData) bool {
		return data != nil &&
			data.FullText == result.FullText &&
			data.Confidence == result.Confidence &&
			data.Source == domain.ExtractionSourceRemote &&
			data.Parsed.Vendor != nil && *data.Parsed.Vendor == "Cafe Bom Dia" &&
			data.Parsed.Amount != nil && data.Parsed.Amount.Equal(decimal.NewFromFloat(12.34))
	}), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockJobRepo.On("CompleteJob", ctx, job.JobID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.ExpenseID == suite.expenseID &&
			entry.ActorID == domain.SystemActorID &&
			entry.Action == domain.ActionExtractionCompleted &&
			entry.Metadata["attempt"] == 1
	})).Return(nil).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.mockJobRepo.AssertExpectations(suite.T())
	suite.mockExpenseRepo.AssertExpectations(suite.T())
	suite.mockProvider.AssertExpectations(suite.T())
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_ClaimRefusedWhileInFlight() {
	ctx := context.Background()
	claimErr := fmt.Errorf("%w: extraction already running for expense %s", apperrors.ErrDuplicate, suite.expenseID)

	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(nil, claimErr).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	suite.Require().Error(err)
	suite.ErrorIs(err, apperrors.ErrDuplicate)
	suite.mockProvider.AssertNotCalled(suite.T(), "DetectText", mock.Anything, mock.Anything)
	suite.mockExpenseRepo.AssertNotCalled(suite.T(), "UpdateExpenseOCR", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_ProviderFailureIsRecorded() {
	ctx := context.Background()
	job := suite.claimedJob(1)
	providerErr := fmt.Errorf("%w: document understanding timed out", apperrors.ErrExtractionFailed)

	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, suite.location).Return(nil, providerErr).Once()
	suite.mockJobRepo.On("FailJob", ctx, job.JobID, providerErr.Error(), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRFailed, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.Action == domain.ActionExtractionFailed &&
			entry.Metadata["attempt"] == 2 &&
			entry.Metadata["max_attempts"] == 3
	})).Return(nil).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	// The attempt failed but was fully recorded, so nothing propagates.
	suite.Require().NoError(err)
	suite.mockJobRepo.AssertNotCalled(suite.T(), "CompleteJob", mock.Anything, mock.Anything, mock.Anything)
	suite.mockJobRepo.AssertExpectations(suite.T())
	suite.mockExpenseRepo.AssertExpectations(suite.T())
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_BookkeepingFailureSurfaces() {
	ctx := context.Background()
	job := suite.claimedJob(2)
	providerErr := fmt.Errorf("%w: malformed document", apperrors.ErrExtractionFailed)
	repoErr := errors.New("connection reset")

	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, suite.location).Return(nil, providerErr).Once()
	suite.mockJobRepo.On("FailJob", ctx, job.JobID, providerErr.Error(), mock.AnythingOfType("time.Time")).Return(repoErr).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	suite.Require().Error(err)
	suite.Contains(err.Error(), repoErr.Error())
	suite.mockJobRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_SupersededAttemptDropsResult() {
	ctx := context.Background()
	job := suite.claimedJob(0)
	result := &domain.ExtractionResult{
		FullText:   "Old Receipt Ltd\nTotal: $50.00",
		Confidence: 0.91,
		Source:     domain.ExtractionSourceRemote,
	}

	// While this attempt was calling the provider, the user attached a new
	// receipt and the job row took on a fresh job ID. CompleteJob refuses the
	// stale job ID, and the old receipt's text must never land on the expense.
	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, suite.location).Return(result, nil).Once()
	suite.mockJobRepo.On("CompleteJob", ctx, job.JobID, mock.AnythingOfType("time.Time")).Return(apperrors.ErrNotFound).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.mockExpenseRepo.AssertNotCalled(suite.T(), "UpdateExpenseOCR", mock.Anything, mock.Anything, domain.OCRCompleted, mock.Anything, mock.Anything)
	suite.mockAuditRepo.AssertNotCalled(suite.T(), "SaveAuditEntry", mock.Anything, mock.Anything)
	suite.mockJobRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestProcessExpense_SupersededFailureBooksNothing() {
	ctx := context.Background()
	job := suite.claimedJob(1)
	providerErr := fmt.Errorf("%w: document understanding timed out", apperrors.ErrExtractionFailed)

	// Same mid-flight replacement, but the provider call failed. The fresh
	// job owns the expense now, so neither the failed status nor an audit
	// entry may be booked against it.
	suite.mockJobRepo.On("ClaimJob", ctx, suite.expenseID, mock.AnythingOfType("time.Time")).Return(job, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, suite.expenseID, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, suite.location).Return(nil, providerErr).Once()
	suite.mockJobRepo.On("FailJob", ctx, job.JobID, providerErr.Error(), mock.AnythingOfType("time.Time")).Return(apperrors.ErrNotFound).Once()

	err := suite.service.ProcessExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.mockExpenseRepo.AssertNotCalled(suite.T(), "UpdateExpenseOCR", mock.Anything, mock.Anything, domain.OCRFailed, mock.Anything, mock.Anything)
	suite.mockAuditRepo.AssertNotCalled(suite.T(), "SaveAuditEntry", mock.Anything, mock.Anything)
	suite.mockJobRepo.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestRetryFailedExtractions_SkipsJobsClaimedElsewhere() {
	ctx := context.Background()
	expenseA := uuid.NewString()
	expenseB := uuid.NewString()
	locationA := "receipts/" + expenseA + "/a.png"
	listed := []domain.ExtractionJob{
		{JobID: uuid.NewString(), ExpenseID: expenseA, ReceiptLocation: locationA, Status: domain.JobFailed, Attempts: 1, MaxAttempts: 3},
		{JobID: uuid.NewString(), ExpenseID: expenseB, Status: domain.JobFailed, Attempts: 1, MaxAttempts: 3},
	}
	claimedA := &domain.ExtractionJob{
		JobID:           listed[0].JobID,
		ExpenseID:       expenseA,
		ReceiptLocation: locationA,
		Status:          domain.JobProcessing,
		Attempts:        1,
		MaxAttempts:     3,
	}
	result := &domain.ExtractionResult{FullText: "Padaria Estrela\nTotal: R$ 42,00", Confidence: 0.8, Source: domain.ExtractionSourceStub}

	suite.mockJobRepo.On("ListRetryableJobs", ctx, mock.AnythingOfType("time.Time"), 2).Return(listed, nil).Once()

	// First job runs a full successful attempt.
	suite.mockJobRepo.On("ClaimJob", ctx, expenseA, mock.AnythingOfType("time.Time")).Return(claimedA, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, expenseA, domain.OCRProcessing, (*domain.OCRData)(nil), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockProvider.On("DetectText", ctx, locationA).Return(result, nil).Once()
	suite.mockExpenseRepo.On("UpdateExpenseOCR", ctx, expenseA, domain.OCRCompleted, mock.AnythingOfType("*domain.OCRData"), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockJobRepo.On("CompleteJob", ctx, claimedA.JobID, mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.AnythingOfType("domain.AuditEntry")).Return(nil).Once()

	// Second job was claimed by a concurrent worker between listing and here.
	claimErr := fmt.Errorf("%w: extraction already running for expense %s", apperrors.ErrDuplicate, expenseB)
	suite.mockJobRepo.On("ClaimJob", ctx, expenseB, mock.AnythingOfType("time.Time")).Return(nil, claimErr).Once()

	attempted, err := suite.service.RetryFailedExtractions(ctx, 6, 2)

	suite.Require().NoError(err)
	suite.Equal(1, attempted)
	suite.mockJobRepo.AssertExpectations(suite.T())
	suite.mockProvider.AssertExpectations(suite.T())
}

func (suite *ExtractionServiceTestSuite) TestRetryFailedExtractions_DefaultsApply() {
	ctx := context.Background()

	suite.mockJobRepo.On("ListRetryableJobs", ctx, mock.AnythingOfType("time.Time"), 10).Return([]domain.ExtractionJob{}, nil).Once()

	attempted, err := suite.service.RetryFailedExtractions(ctx, 0, 0)

	suite.Require().NoError(err)
	suite.Equal(0, attempted)
	suite.mockJobRepo.AssertNotCalled(suite.T(), "ClaimJob", mock.Anything, mock.Anything, mock.Anything)
	suite.mockJobRepo.AssertExpectations(suite.T())
}

// --- Run Test Suite ---
func TestExtractionService(t *testing.T) {
	suite.Run(t, new(ExtractionServiceTestSuite))
}
