package clients

import (
	"context"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// RemoteClassification is the classifier service's answer for one expense.
type RemoteClassification struct {
	Category   domain.Category
	Confidence float64
	Scores     domain.CategoryScores
}

// CategoryFeedback is the correction signal forwarded when a human overrides
// a machine suggestion.
type CategoryFeedback struct {
	Fields            domain.ExpenseFields
	PredictedCategory domain.Category
	ActualCategory    domain.Category
	Confidence        float64
}

// TrainingResult reports the outcome of a remote training run.
type TrainingResult struct {
	ModelVersion string
	Accuracy     float64
}

// ClassifierClient talks to the remote categorization service. Every call
// carries a bounded timeout; unreachability wraps
// apperrors.ErrClassificationUnavailable and the categorizer degrades to its
// local fallback instead of surfacing the error.
type ClassifierClient interface {
	// Categorize asks the remote model for a category suggestion.
	Categorize(ctx context.Context, fields domain.ExpenseFields) (*RemoteClassification, error)

	// SendFeedback forwards a human correction. Best-effort telemetry.
	SendFeedback(ctx context.Context, feedback CategoryFeedback) error

	// Train submits a batch of finalized expenses for retraining.
	Train(ctx context.Context, samples []domain.TrainingSample) (*TrainingResult, error)

	// Ping reports whether the classifier service is reachable.
	Ping(ctx context.Context) error
}
