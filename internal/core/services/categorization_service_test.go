package services_test

import (
	"context"
	"fmt"
	"math"
	"testing"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/core/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

type CategorizationServiceTestSuite struct {
	suite.Suite
	mockExpenseRepo *MockExpenseRepository
	mockAuditRepo   *MockAuditRepository
	mockClassifier  *MockClassifierClient
	service         portssvc.CategorizerSvc
	expenseID       string
	actorID         string
}

func (suite *CategorizationServiceTestSuite) SetupTest() {
	suite.mockExpenseRepo = new(MockExpenseRepository)
	suite.mockAuditRepo = new(MockAuditRepository)
	suite.mockClassifier = new(MockClassifierClient)
	suite.service = services.NewCategorizationService(suite.mockExpenseRepo, suite.mockAuditRepo, suite.mockClassifier)

	suite.expenseID = uuid.NewString()
	suite.actorID = uuid.NewString()
}

func (suite *CategorizationServiceTestSuite) expenseFixture(title, vendor string, amount float64) *domain.Expense {
	return &domain.Expense{
		ExpenseID:    suite.expenseID,
		UserID:       uuid.NewString(),
		Amount:       decimal.NewFromFloat(amount),
		CurrencyCode: "USD",
		Title:        title,
		Vendor:       vendor,
		Category:     domain.CategoryOther,
		Status:       domain.StatusDraft,
		OCRStatus:    domain.OCRPending,
	}
}

func (suite *CategorizationServiceTestSuite) expectSuggestionStored() {
	suite.mockExpenseRepo.On("UpdateExpenseSuggestion", mock.Anything, suite.expenseID, mock.AnythingOfType("domain.Category"), mock.AnythingOfType("float64"), mock.AnythingOfType("time.Time")).Return(nil)
	suite.mockAuditRepo.On("SaveAuditEntry", mock.Anything, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.ExpenseID == suite.expenseID &&
			entry.ActorID == domain.SystemActorID &&
			entry.Action == domain.ActionExpenseCategorized
	})).Return(nil)
}

// --- Test Cases ---

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_BlendsRemoteScoresWithAmountPriors() {
	ctx := context.Background()
	expense := suite.expenseFixture("Flight to Boston", "Delta Airlines", 650)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("Categorize", ctx, mock.MatchedBy(func(fields domain.ExpenseFields) bool {
		return fields.Title == "Flight to Boston" && fields.Vendor == "Delta Airlines"
	})).Return(&clients.RemoteClassification{
		Category:   domain.CategoryTravel,
		Confidence: 0.92,
		Scores: domain.CategoryScores{
			domain.CategoryTravel:         0.92,
			domain.CategoryTransportation: 0.05,
		},
	}, nil).Once()
	suite.expectSuggestionStored()

	outcome, err := suite.service.ClassifyExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.Require().NotNil(outcome)
	// Large amounts carry a 0.4 travel prior: blended (0.92+0.4)/2 = 0.66.
	suite.Equal(domain.CategoryTravel, outcome.Category)
	suite.InDelta(0.66, outcome.Confidence, 1e-9)
	suite.Equal(domain.MethodRemoteClassifier, outcome.Method)
	suite.InDelta(0.66, outcome.Scores[domain.CategoryTravel], 1e-9)
	suite.InDelta(0.2, outcome.Scores[domain.CategoryAccommodation], 1e-9)
	suite.mockExpenseRepo.AssertExpectations(suite.T())
	suite.mockClassifier.AssertExpectations(suite.T())
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_FallsBackToRulesWhenClassifierDown() {
	ctx := context.Background()
	expense := suite.expenseFixture("Team Lunch", "Restaurante Central", 85.50)
	remoteErr := fmt.Errorf("%w: connect: connection refused", apperrors.ErrClassificationUnavailable)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("Categorize", ctx, mock.AnythingOfType("domain.ExpenseFields")).Return(nil, remoteErr).Once()
	suite.expectSuggestionStored()

	outcome, err := suite.service.ClassifyExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.Require().NotNil(outcome)
	// "lunch" and "restaurant" hit two of six meal keywords (2/6), the
	// 20-100 bucket adds a 0.4 meals prior, blended to just over 0.36.
	suite.Equal(domain.CategoryMeals, outcome.Category)
	suite.Greater(outcome.Confidence, 0.3)
	suite.InDelta(0.3667, outcome.Confidence, 0.001)
	suite.Equal(domain.MethodRuleBased, outcome.Method)
	suite.mockClassifier.AssertExpectations(suite.T())
}

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_LowSignalKeepsPreBlendResult() {
	ctx := context.Background()
	expense := suite.expenseFixture("Miscellaneous", "", 10)
	remoteErr := fmt.Errorf("%w: context deadline exceeded", apperrors.ErrClassificationUnavailable)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("Categorize", ctx, mock.AnythingOfType("domain.ExpenseFields")).Return(nil, remoteErr).Once()
	suite.expectSuggestionStored()

	outcome, err := suite.service.ClassifyExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	suite.Require().NotNil(outcome)
	// No keyword hits anywhere, and the halved priors stay under the
	// acceptance threshold, so the catch-all stands at zero confidence.
	suite.Equal(domain.CategoryOther, outcome.Category)
	suite.Zero(outcome.Confidence)
	suite.Equal(domain.MethodRuleBased, outcome.Method)
	suite.InDelta(0.15, outcome.Scores[domain.CategoryMeals], 1e-9)
}

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_TieBreaksAreDeterministic() {
	ctx := context.Background()
	expense := suite.expenseFixture("Quarterly spend", "Misc Vendor Ltd", 50)
	remote := &clients.RemoteClassification{
		Category:   domain.CategoryTravel,
		Confidence: 0.5,
		Scores: domain.CategoryScores{
			domain.CategoryMarketing: 0.5,
			domain.CategoryTravel:    0.5,
		},
	}

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Twice()
	suite.mockClassifier.On("Categorize", ctx, mock.AnythingOfType("domain.ExpenseFields")).Return(remote, nil).Twice()
	suite.expectSuggestionStored()

	first, err := suite.service.ClassifyExpense(ctx, suite.expenseID)
	suite.Require().NoError(err)
	second, err := suite.service.ClassifyExpense(ctx, suite.expenseID)
	suite.Require().NoError(err)

	// Equal scores resolve to the category listed first in the fixed
	// enumeration, run after run.
	suite.Equal(domain.CategoryMarketing, first.Category)
	suite.Equal(first.Category, second.Category)
	suite.Equal(first.Confidence, second.Confidence)
	suite.Equal(first.Scores, second.Scores)
}

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_HigherThresholdRestoresRemoteAnswer() {
	ctx := context.Background()
	strict := services.NewCategorizationService(suite.mockExpenseRepo, suite.mockAuditRepo, suite.mockClassifier, services.WithAcceptThreshold(0.9))
	expense := suite.expenseFixture("Flight to Boston", "Delta Airlines", 650)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("Categorize", ctx, mock.AnythingOfType("domain.ExpenseFields")).Return(&clients.RemoteClassification{
		Category:   domain.CategoryTravel,
		Confidence: 0.92,
		Scores:     domain.CategoryScores{domain.CategoryTravel: 0.92},
	}, nil).Once()
	suite.expectSuggestionStored()

	outcome, err := strict.ClassifyExpense(ctx, suite.expenseID)

	suite.Require().NoError(err)
	// Blending dilutes travel to 0.66, below the raised threshold, so the
	// remote answer stands untouched.
	suite.Equal(domain.CategoryTravel, outcome.Category)
	suite.Equal(0.92, outcome.Confidence)
}

func (suite *CategorizationServiceTestSuite) TestClassifyExpense_ExpenseNotFound() {
	ctx := context.Background()
	notFound := fmt.Errorf("expense not found: %w", apperrors.ErrNotFound)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(nil, notFound).Once()

	outcome, err := suite.service.ClassifyExpense(ctx, suite.expenseID)

	suite.Require().Error(err)
	suite.Nil(outcome)
	suite.ErrorIs(err, apperrors.ErrNotFound)
	suite.mockClassifier.AssertNotCalled(suite.T(), "Categorize", mock.Anything, mock.Anything)
}

func (suite *CategorizationServiceTestSuite) TestRecordCategoryFeedback_ForwardsCorrection() {
	ctx := context.Background()
	expense := suite.expenseFixture("Flight to Boston", "Delta Airlines", 650)
	suggested := domain.CategoryTravel
	confidence := 0.82
	expense.MLSuggestedCategory = &suggested
	expense.MLConfidence = &confidence

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("SendFeedback", ctx, mock.MatchedBy(func(fb clients.CategoryFeedback) bool {
		return fb.PredictedCategory == domain.CategoryTravel &&
			fb.ActualCategory == domain.CategoryTransportation &&
			fb.Confidence == confidence &&
			fb.Fields.Title == expense.Title
	})).Return(nil).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.ExpenseID == suite.expenseID &&
			entry.ActorID == suite.actorID &&
			entry.Action == domain.ActionCategoryFeedback &&
			entry.Metadata["predicted"] == "travel" &&
			entry.Metadata["corrected"] == "transportation"
	})).Return(nil).Once()

	err := suite.service.RecordCategoryFeedback(ctx, suite.expenseID, domain.CategoryTransportation, suite.actorID)

	suite.Require().NoError(err)
	suite.mockClassifier.AssertExpectations(suite.T())
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *CategorizationServiceTestSuite) TestRecordCategoryFeedback_NoOpWhenSuggestionMatches() {
	ctx := context.Background()
	expense := suite.expenseFixture("Team Lunch", "Restaurante Central", 85.50)
	suggested := domain.CategoryMeals
	expense.MLSuggestedCategory = &suggested

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()

	err := suite.service.RecordCategoryFeedback(ctx, suite.expenseID, domain.CategoryMeals, suite.actorID)

	suite.Require().NoError(err)
	suite.mockClassifier.AssertNotCalled(suite.T(), "SendFeedback", mock.Anything, mock.Anything)
	suite.mockAuditRepo.AssertNotCalled(suite.T(), "SaveAuditEntry", mock.Anything, mock.Anything)
}

func (suite *CategorizationServiceTestSuite) TestRecordCategoryFeedback_NoOpWithoutSuggestion() {
	ctx := context.Background()
	expense := suite.expenseFixture("Team Lunch", "Restaurante Central", 85.50)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()

	err := suite.service.RecordCategoryFeedback(ctx, suite.expenseID, domain.CategoryMeals, suite.actorID)

	suite.Require().NoError(err)
	suite.mockClassifier.AssertNotCalled(suite.T(), "SendFeedback", mock.Anything, mock.Anything)
}

func (suite *CategorizationServiceTestSuite) TestRecordCategoryFeedback_ClassifierOutageStillAudits() {
	ctx := context.Background()
	expense := suite.expenseFixture("Team Lunch", "Restaurante Central", 85.50)
	suggested := domain.CategoryTravel
	expense.MLSuggestedCategory = &suggested
	sendErr := fmt.Errorf("%w: 503 service unavailable", apperrors.ErrClassificationUnavailable)

	suite.mockExpenseRepo.On("FindExpenseByID", ctx, suite.expenseID).Return(expense, nil).Once()
	suite.mockClassifier.On("SendFeedback", ctx, mock.AnythingOfType("clients.CategoryFeedback")).Return(sendErr).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.Action == domain.ActionCategoryFeedback
	})).Return(nil).Once()

	err := suite.service.RecordCategoryFeedback(ctx, suite.expenseID, domain.CategoryMeals, suite.actorID)

	suite.Require().NoError(err)
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *CategorizationServiceTestSuite) TestRetrainModel_SkipsWhenBelowMinimum() {
	ctx := context.Background()
	finalized := []domain.Expense{
		*suite.expenseFixture("Lunch", "Cafe", 15),
		*suite.expenseFixture("Taxi", "Uber", 30),
	}

	suite.mockExpenseRepo.On("ListFinalizedSince", ctx, mock.AnythingOfType("time.Time"), 500).Return(finalized, nil).Once()

	info, err := suite.service.RetrainModel(ctx, 30, 5)

	suite.Require().NoError(err)
	suite.Nil(info)
	suite.Nil(suite.service.CurrentModel())
	suite.mockClassifier.AssertNotCalled(suite.T(), "Train", mock.Anything, mock.Anything)
}

func (suite *CategorizationServiceTestSuite) TestRetrainModel_TrainsOnFinalizedExpenses() {
	ctx := context.Background()
	finalized := []domain.Expense{
		{ExpenseID: uuid.NewString(), Title: "Team Lunch", Vendor: "Cafe", Amount: decimal.NewFromFloat(45.20), Category: domain.CategoryMeals, Status: domain.StatusApproved},
		{ExpenseID: uuid.NewString(), Title: "Flight", Vendor: "Delta", Amount: decimal.NewFromFloat(512), Category: domain.CategoryTravel, Status: domain.StatusReimbursed},
		{ExpenseID: uuid.NewString(), Title: "Monitor", Vendor: "Dell", Amount: decimal.NewFromFloat(240), Category: domain.CategoryOfficeSupplies, Status: domain.StatusApproved},
	}

	suite.mockExpenseRepo.On("ListFinalizedSince", ctx, mock.AnythingOfType("time.Time"), 500).Return(finalized, nil).Once()
	suite.mockClassifier.On("Train", ctx, mock.MatchedBy(func(samples []domain.TrainingSample) bool {
		return len(samples) == 3 &&
			samples[0].Category == domain.CategoryMeals &&
			math.Abs(samples[0].Amount-45.20) < 1e-9 &&
			samples[1].Title == "Flight"
	})).Return(&clients.TrainingResult{ModelVersion: "v14", Accuracy: 0.87}, nil).Once()
	suite.mockAuditRepo.On("SaveAuditEntry", ctx, mock.MatchedBy(func(entry domain.AuditEntry) bool {
		return entry.Action == domain.ActionModelRetrained &&
			entry.ExpenseID == "" &&
			entry.ActorID == domain.SystemActorID &&
			entry.Metadata["model_version"] == "v14" &&
			entry.Metadata["samples"] == 3
	})).Return(nil).Once()

	info, err := suite.service.RetrainModel(ctx, 30, 2)

	suite.Require().NoError(err)
	suite.Require().NotNil(info)
	suite.Equal("v14", info.Version)
	suite.Equal(0.87, info.Accuracy)
	suite.False(info.TrainedAt.IsZero())

	// CurrentModel hands out copies; mutating one must not touch the shared state.
	current := suite.service.CurrentModel()
	suite.Require().NotNil(current)
	suite.Equal("v14", current.Version)
	current.Version = "mutated"
	suite.Equal("v14", suite.service.CurrentModel().Version)

	suite.mockClassifier.AssertExpectations(suite.T())
	suite.mockAuditRepo.AssertExpectations(suite.T())
}

func (suite *CategorizationServiceTestSuite) TestPingClassifier_Delegates() {
	ctx := context.Background()
	pingErr := fmt.Errorf("%w: no route to host", apperrors.ErrClassificationUnavailable)

	suite.mockClassifier.On("Ping", ctx).Return(pingErr).Once()

	err := suite.service.PingClassifier(ctx)

	suite.ErrorIs(err, apperrors.ErrClassificationUnavailable)
	suite.mockClassifier.AssertExpectations(suite.T())
}

// --- Run Test Suite ---
func TestCategorizationService(t *testing.T) {
	suite.Run(t, new(CategorizationServiceTestSuite))
}
