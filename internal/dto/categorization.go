package dto

import (
	"time"

	"github.com/expensio/expensio_backend/internal/core/domain"
)

// CategorizationResponse defines the data returned for one categorizer run.
type CategorizationResponse struct {
	Category   domain.Category       `json:"category"`
	Confidence float64               `json:"confidence"`
	Method     string                `json:"method"`
	Scores     domain.CategoryScores `json:"scores"`
}

// ToCategorizationResponse converts a domain.CategorizationOutcome to its DTO.
func ToCategorizationResponse(o *domain.CategorizationOutcome) CategorizationResponse {
	return CategorizationResponse{
		Category:   o.Category,
		Confidence: o.Confidence,
		Method:     string(o.Method),
		Scores:     o.Scores,
	}
}

// CategoryFeedbackRequest carries a human category correction.
type CategoryFeedbackRequest struct {
	Category domain.Category `json:"category" binding:"required,expensecategory"`
}

// RetrainRequest tunes one retraining run. Defaults match the scheduled run.
type RetrainRequest struct {
	SampleWindowDays int `json:"sampleWindowDays" binding:"omitempty,min=1"`
	MinSamples       int `json:"minSamples" binding:"omitempty,min=1"`
}

// ModelInfoResponse describes the classifier model currently in use.
type ModelInfoResponse struct {
	Version   string    `json:"version"`
	Accuracy  float64   `json:"accuracy"`
	TrainedAt time.Time `json:"trainedAt"`
}

// ToModelInfoResponse converts a domain.ModelInfo to ModelInfoResponse DTO.
func ToModelInfoResponse(m *domain.ModelInfo) ModelInfoResponse {
	return ModelInfoResponse{
		Version:   m.Version,
		Accuracy:  m.Accuracy,
		TrainedAt: m.TrainedAt,
	}
}
