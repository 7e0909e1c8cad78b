package services

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// CategorizerSvc produces category suggestions and learns from human
// corrections. Remote-classifier trouble degrades to local scoring and never
// surfaces to callers.
type CategorizerSvc interface {
	// ClassifyExpense runs the full strategy chain (remote classifier, rule
	// fallback, amount priors, blending) for an expense, writes the winning
	// suggestion onto it and records the scores in the audit trail.
	ClassifyExpense(ctx context.Context, expenseID string) (*domain.CategorizationOutcome, error)

	// RecordCategoryFeedback forwards a human correction to the remote
	// classifier. It acts only when a prior suggestion exists and differs
	// from the corrected category; otherwise it is a no-op. Best-effort.
	RecordCategoryFeedback(ctx context.Context, expenseID string, correctedCategory domain.Category, actorID string) error

	// RetrainModel submits recently finalized expenses as training samples.
	// With fewer than minSamples available it skips silently and returns nil.
	RetrainModel(ctx context.Context, sampleWindowDays int, minSamples int) (*domain.ModelInfo, error)

	// CurrentModel returns the model info recorded by the last successful
	// retrain, or nil when no retrain has happened in this process.
	CurrentModel() *domain.ModelInfo

	// PingClassifier reports remote classifier reachability for health checks.
	PingClassifier(ctx context.Context) error
}
