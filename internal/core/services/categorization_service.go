package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	portsrepo "github.com/expensio/expensio_backend/internal/core/ports/repositories"
	portssvc "github.com/expensio/expensio_backend/internal/core/ports/services"
	"github.com/expensio/expensio_backend/internal/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// defaultAcceptThreshold is the blended score a category must exceed to
	// win outright; below it the pre-blend result stands rather than
	// defaulting to other.
	defaultAcceptThreshold = 0.3

	defaultRetrainWindowDays = 30
	defaultRetrainMinSamples = 10
	maxTrainingSamples       = 500
)

// categoryKeywords drives the rule-based fallback: case-insensitive substring
// hits over title+description+vendor, normalized by the list's length. The
// catch-all other has no keywords and only wins when nothing else scores.
var categoryKeywords = map[domain.Category][]string{
	domain.CategoryMeals:          {"restaurant", "food", "lunch", "dinner", "cafe", "pizza"},
	domain.CategoryTransportation: {"uber", "taxi", "bus", "flight", "gas", "parking"},
	domain.CategoryAccommodation:  {"hotel", "airbnb", "booking", "room"},
	domain.CategoryOfficeSupplies: {"office", "supplies", "paper", "pen", "printer"},
	domain.CategorySoftware:       {"software", "app", "subscription", "license"},
	domain.CategoryTraining:       {"course", "training", "workshop", "conference"},
	domain.CategoryMarketing:      {"advertising", "marketing", "promotion"},
	domain.CategoryTravel:         {"travel", "trip", "visa", "luggage"},
}

// amountHint is one row of the amount-prior table: amounts below the bound
// get the listed category boosts. Hand-tuned values, treated as configuration.
type amountHint struct {
	below  float64
	boosts domain.CategoryScores
}

var amountHints = []amountHint{
	{below: 20, boosts: domain.CategoryScores{
		domain.CategoryMeals:          0.3,
		domain.CategoryOfficeSupplies: 0.2,
	}},
	{below: 100, boosts: domain.CategoryScores{
		domain.CategoryMeals:          0.4,
		domain.CategoryTransportation: 0.3,
		domain.CategoryOfficeSupplies: 0.3,
	}},
	{below: 500, boosts: domain.CategoryScores{
		domain.CategorySoftware:  0.3,
		domain.CategoryTraining:  0.3,
		domain.CategoryMarketing: 0.2,
	}},
	{below: math.Inf(1), boosts: domain.CategoryScores{
		domain.CategoryTravel:        0.4,
		domain.CategoryAccommodation: 0.4,
		domain.CategorySoftware:      0.2,
	}},
}

// CategorizationOption tunes a categorization service.
type CategorizationOption func(*categorizationService)

// WithAcceptThreshold overrides the blended-score acceptance threshold.
func WithAcceptThreshold(threshold float64) CategorizationOption {
	return func(s *categorizationService) {
		s.threshold = threshold
	}
}

// categorizationService produces category suggestions by blending the remote
// classifier (or its rule-based fallback) with amount-based priors, and
// forwards human corrections back to the classifier.
type categorizationService struct {
	expenseRepo portsrepo.ExpenseRepositoryFacade
	auditRepo   portsrepo.AuditRepositoryFacade
	classifier  clients.ClassifierClient
	threshold   float64

	modelMu sync.RWMutex
	model   *domain.ModelInfo
}

// NewCategorizationService creates the categorizer.
func NewCategorizationService(
	expenseRepo portsrepo.ExpenseRepositoryFacade,
	auditRepo portsrepo.AuditRepositoryFacade,
	classifier clients.ClassifierClient,
	opts ...CategorizationOption,
) portssvc.CategorizerSvc {
	s := &categorizationService{
		expenseRepo: expenseRepo,
		auditRepo:   auditRepo,
		classifier:  classifier,
		threshold:   defaultAcceptThreshold,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ClassifyExpense runs the full strategy chain for an expense, writes the
// winning suggestion onto it and records the scores in the audit trail.
func (s *categorizationService) ClassifyExpense(ctx context.Context, expenseID string) (*domain.CategorizationOutcome, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.expenseRepo.FindExpenseByID(ctx, expenseID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.Error("Failed to find expense for categorization", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return nil, fmt.Errorf("failed to find expense %s: %w", expenseID, err)
	}

	fields := domain.ExpenseFields{
		Title:       expense.Title,
		Description: expense.Description,
		Vendor:      expense.Vendor,
		Amount:      expense.Amount,
	}
	outcome := s.classifyFields(ctx, fields)

	now := time.Now().UTC()
	if err := s.expenseRepo.UpdateExpenseSuggestion(ctx, expenseID, outcome.Category, outcome.Confidence, now); err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.Error("Failed to store category suggestion on expense", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return nil, fmt.Errorf("failed to store suggestion on expense %s: %w", expenseID, err)
	}

	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expenseID,
		ActorID:   domain.SystemActorID,
		Action:    domain.ActionExpenseCategorized,
		Metadata: map[string]any{
			"category":   string(outcome.Category),
			"confidence": outcome.Confidence,
			"method":     string(outcome.Method),
			"scores":     outcome.Scores,
		},
		CreatedAt: now,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		logger.Error("Failed to save categorization audit entry", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		return nil, fmt.Errorf("failed to save categorization audit entry for expense %s: %w", expenseID, err)
	}

	logger.Info("Expense categorized",
		slog.String("expense_id", expenseID),
		slog.String("category", string(outcome.Category)),
		slog.Float64("confidence", outcome.Confidence),
		slog.String("method", string(outcome.Method)))
	return outcome, nil
}

// classifyFields runs the strategy chain on bare fields: remote classifier
// first, rule-based scoring when the remote is unreachable, then amount
// priors blended in. The blended winner must clear the acceptance threshold;
// otherwise the pre-blend result stands, even at low confidence, rather than
// falling back to other.
func (s *categorizationService) classifyFields(ctx context.Context, fields domain.ExpenseFields) *domain.CategorizationOutcome {
	logger := middleware.GetLoggerFromCtx(ctx)

	var base domain.CategoryScores
	var baseCategory domain.Category
	var baseConfidence float64
	method := domain.MethodRemoteClassifier

	remote, err := s.classifier.Categorize(ctx, fields)
	if err != nil {
		logger.Warn("Remote classifier unavailable, using rule-based scoring", slog.String("error", err.Error()))
		method = domain.MethodRuleBased
		base = ruleScores(fields)
		baseCategory, baseConfidence = base.Best()
		if baseConfidence == 0 {
			baseCategory = domain.CategoryOther
		}
	} else {
		base = remote.Scores
		baseCategory = remote.Category
		baseConfidence = remote.Confidence
	}

	blended := blendScores(base, hintsForAmount(fields.Amount))
	category, confidence := blended.Best()
	if confidence <= s.threshold {
		category, confidence = baseCategory, baseConfidence
	}

	return &domain.CategorizationOutcome{
		Category:   category,
		Confidence: confidence,
		Method:     method,
		Scores:     blended,
	}
}

// RecordCategoryFeedback forwards a human correction to the remote
// classifier. A matching or absent suggestion makes it a no-op: no remote
// call, no audit entry. Remote failures are absorbed; the audit entry is
// written either way.
func (s *categorizationService) RecordCategoryFeedback(ctx context.Context, expenseID string, correctedCategory domain.Category, actorID string) error {
	logger := middleware.GetLoggerFromCtx(ctx)

	expense, err := s.expenseRepo.FindExpenseByID(ctx, expenseID)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			logger.Error("Failed to find expense for category feedback", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		}
		return fmt.Errorf("failed to find expense %s: %w", expenseID, err)
	}

	if expense.MLSuggestedCategory == nil || *expense.MLSuggestedCategory == correctedCategory {
		logger.Debug("No category correction to report", slog.String("expense_id", expenseID))
		return nil
	}

	predicted := *expense.MLSuggestedCategory
	confidence := 0.0
	if expense.MLConfidence != nil {
		confidence = *expense.MLConfidence
	}

	feedback := clients.CategoryFeedback{
		Fields: domain.ExpenseFields{
			Title:       expense.Title,
			Description: expense.Description,
			Vendor:      expense.Vendor,
			Amount:      expense.Amount,
		},
		PredictedCategory: predicted,
		ActualCategory:    correctedCategory,
		Confidence:        confidence,
	}
	if err := s.classifier.SendFeedback(ctx, feedback); err != nil {
		// Advisory telemetry: record the correction locally even when the
		// classifier is unreachable.
		logger.Warn("Failed to send category feedback to classifier", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
	}

	entry := domain.AuditEntry{
		AuditID:   uuid.NewString(),
		ExpenseID: expenseID,
		ActorID:   actorID,
		Action:    domain.ActionCategoryFeedback,
		Metadata: map[string]any{
			"predicted":  string(predicted),
			"corrected":  string(correctedCategory),
			"confidence": confidence,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		logger.Error("Failed to save feedback audit entry", slog.String("error", err.Error()), slog.String("expense_id", expenseID))
		return fmt.Errorf("failed to save feedback audit entry for expense %s: %w", expenseID, err)
	}

	logger.Info("Category feedback recorded",
		slog.String("expense_id", expenseID),
		slog.String("predicted", string(predicted)),
		slog.String("corrected", string(correctedCategory)))
	return nil
}

// RetrainModel submits recently finalized expenses as training samples. With
// fewer than minSamples available it skips silently and returns nil.
func (s *categorizationService) RetrainModel(ctx context.Context, sampleWindowDays int, minSamples int) (*domain.ModelInfo, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if sampleWindowDays <= 0 {
		sampleWindowDays = defaultRetrainWindowDays
	}
	if minSamples <= 0 {
		minSamples = defaultRetrainMinSamples
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -sampleWindowDays)
	expenses, err := s.expenseRepo.ListFinalizedSince(ctx, cutoff, maxTrainingSamples)
	if err != nil {
		logger.Error("Failed to list finalized expenses for retraining", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to list finalized expenses: %w", err)
	}
	if len(expenses) < minSamples {
		logger.Info("Skipping retrain, not enough finalized expenses",
			slog.Int("samples", len(expenses)),
			slog.Int("min_samples", minSamples))
		return nil, nil
	}

	samples := make([]domain.TrainingSample, len(expenses))
	for i, e := range expenses {
		samples[i] = domain.TrainingSample{
			Title:       e.Title,
			Description: e.Description,
			Vendor:      e.Vendor,
			Amount:      e.Amount.InexactFloat64(),
			Category:    e.Category,
		}
	}

	result, err := s.classifier.Train(ctx, samples)
	if err != nil {
		logger.Error("Failed to retrain classifier model", slog.String("error", err.Error()), slog.Int("samples", len(samples)))
		return nil, fmt.Errorf("failed to retrain classifier model: %w", err)
	}

	info := &domain.ModelInfo{
		Version:   result.ModelVersion,
		Accuracy:  result.Accuracy,
		TrainedAt: time.Now().UTC(),
	}
	s.modelMu.Lock()
	s.model = info
	s.modelMu.Unlock()

	entry := domain.AuditEntry{
		AuditID: uuid.NewString(),
		ActorID: domain.SystemActorID,
		Action:  domain.ActionModelRetrained,
		Metadata: map[string]any{
			"model_version": info.Version,
			"accuracy":      info.Accuracy,
			"samples":       len(samples),
		},
		CreatedAt: info.TrainedAt,
	}
	if err := s.auditRepo.SaveAuditEntry(ctx, entry); err != nil {
		// The model is already live; a missing trail entry is not worth
		// failing the retrain over.
		logger.Error("Failed to save retrain audit entry", slog.String("error", err.Error()))
	}

	logger.Info("Classifier model retrained",
		slog.String("model_version", info.Version),
		slog.Float64("accuracy", info.Accuracy),
		slog.Int("samples", len(samples)))
	return info, nil
}

// CurrentModel returns the model info recorded by the last successful retrain
// in this process, or nil when none has happened.
func (s *categorizationService) CurrentModel() *domain.ModelInfo {
	s.modelMu.RLock()
	defer s.modelMu.RUnlock()
	if s.model == nil {
		return nil
	}
	info := *s.model
	return &info
}

// PingClassifier reports remote classifier reachability for health checks.
func (s *categorizationService) PingClassifier(ctx context.Context) error {
	return s.classifier.Ping(ctx)
}

// ruleScores counts keyword hits per category over the concatenated text
// fields, normalized by each category's keyword-list length. Categories
// without hits are left out.
func ruleScores(fields domain.ExpenseFields) domain.CategoryScores {
	text := strings.ToLower(fields.Title + " " + fields.Description + " " + fields.Vendor)
	scores := domain.CategoryScores{}
	for category, keywords := range categoryKeywords {
		hits := 0
		for _, keyword := range keywords {
			if strings.Contains(text, keyword) {
				hits++
			}
		}
		if hits > 0 {
			scores[category] = float64(hits) / float64(len(keywords))
		}
	}
	return scores
}

// hintsForAmount returns the prior boosts for the amount's bucket.
func hintsForAmount(amount decimal.Decimal) domain.CategoryScores {
	value := amount.InexactFloat64()
	for _, row := range amountHints {
		if value < row.below {
			return row.boosts
		}
	}
	return nil
}

// blendScores combines base scores with amount hints per category: mean when
// both are present, half the hint when only the hint is, the score untouched
// otherwise. Iterating the fixed enum keeps the result exhaustive and
// deterministic.
func blendScores(base domain.CategoryScores, hints domain.CategoryScores) domain.CategoryScores {
	blended := make(domain.CategoryScores, len(base)+len(hints))
	for _, category := range domain.AllCategories() {
		score, hasScore := base[category]
		hint, hasHint := hints[category]
		switch {
		case hasScore && hasHint:
			blended[category] = (score + hint) / 2
		case hasHint:
			blended[category] = hint * 0.5
		case hasScore:
			blended[category] = score
		}
	}
	return blended
}
