package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategorizationMethod records which strategy produced a suggestion.
type CategorizationMethod string

const (
	MethodRemoteClassifier CategorizationMethod = "remote-classifier"
	MethodRuleBased        CategorizationMethod = "rule-based"
)

// ExpenseFields is the classification input: the free-text fields plus the
// amount, which feeds the amount-based prior hints.
type ExpenseFields struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Vendor      string          `json:"vendor"`
	Amount      decimal.Decimal `json:"amount"`
}

// CategorizationOutcome is the result of one categorizer run. It is not
// persisted as its own table: the category/confidence pair lands on the
// expense and the full score map goes into an audit entry.
type CategorizationOutcome struct {
	Category   Category             `json:"category"`
	Confidence float64              `json:"confidence"` // In [0,1]
	Method     CategorizationMethod `json:"method"`
	Scores     CategoryScores       `json:"scores"` // Per-category blended scores
}

// TrainingSample is one finalized expense offered to the remote trainer.
type TrainingSample struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Vendor      string   `json:"vendor"`
	Amount      float64  `json:"amount"`
	Category    Category `json:"category"`
}

// ModelInfo describes the classifier model currently in use, updated after
// each successful retrain.
type ModelInfo struct {
	Version   string    `json:"version"`
	Accuracy  float64   `json:"accuracy"`
	TrainedAt time.Time `json:"trainedAt"`
}
