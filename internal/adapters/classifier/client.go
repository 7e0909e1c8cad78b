// Package classifier implements the remote categorization service client.
// The service exposes /categorize, /feedback, /train and /health; every call
// here carries its own timeout so a slow classifier degrades the caller to
// its local fallback instead of stalling it.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
)

type Client struct {
	baseURL    string
	httpClient *http.Client

	classifyTimeout time.Duration
	feedbackTimeout time.Duration
	trainTimeout    time.Duration
}

// NewClient creates a classifier client for the given base URL. Timeouts are
// per operation: classification is caller-facing and short, training is slow
// and long.
func NewClient(baseURL string, classifyTimeout, feedbackTimeout, trainTimeout time.Duration) *Client {
	return &Client{
		baseURL:         strings.TrimRight(baseURL, "/"),
		httpClient:      &http.Client{},
		classifyTimeout: classifyTimeout,
		feedbackTimeout: feedbackTimeout,
		trainTimeout:    trainTimeout,
	}
}

// Ensure Client implements clients.ClassifierClient
var _ clients.ClassifierClient = (*Client)(nil)

type categorizeRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Vendor      string  `json:"vendor"`
	Amount      float64 `json:"amount"`
}

type categorizeResponse struct {
	Category   string             `json:"category"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
}

// Categorize asks the remote model for a category suggestion.
func (c *Client) Categorize(ctx context.Context, fields domain.ExpenseFields) (*clients.RemoteClassification, error) {
	ctx, cancel := context.WithTimeout(ctx, c.classifyTimeout)
	defer cancel()

	reqBody := categorizeRequest{
		Title:       fields.Title,
		Description: fields.Description,
		Vendor:      fields.Vendor,
		Amount:      fields.Amount.InexactFloat64(),
	}

	var respBody categorizeResponse
	if err := c.postJSON(ctx, "/categorize", reqBody, &respBody); err != nil {
		return nil, err
	}

	category := domain.Category(respBody.Category)
	if !domain.IsValidCategory(category) {
		return nil, fmt.Errorf("%w: classifier returned unknown category %q",
			apperrors.ErrClassificationUnavailable, respBody.Category)
	}

	scores := domain.CategoryScores{}
	for name, score := range respBody.Scores {
		if domain.IsValidCategory(domain.Category(name)) {
			scores[domain.Category(name)] = score
		}
	}

	return &clients.RemoteClassification{
		Category:   category,
		Confidence: respBody.Confidence,
		Scores:     scores,
	}, nil
}

type feedbackRequest struct {
	ExpenseData       categorizeRequest `json:"expense_data"`
	PredictedCategory string            `json:"predicted_category"`
	ActualCategory    string            `json:"actual_category"`
	Confidence        float64           `json:"confidence"`
}

// SendFeedback forwards a human correction to the classifier's feedback log.
func (c *Client) SendFeedback(ctx context.Context, feedback clients.CategoryFeedback) error {
	ctx, cancel := context.WithTimeout(ctx, c.feedbackTimeout)
	defer cancel()

	reqBody := feedbackRequest{
		ExpenseData: categorizeRequest{
			Title:       feedback.Fields.Title,
			Description: feedback.Fields.Description,
			Vendor:      feedback.Fields.Vendor,
			Amount:      feedback.Fields.Amount.InexactFloat64(),
		},
		PredictedCategory: string(feedback.PredictedCategory),
		ActualCategory:    string(feedback.ActualCategory),
		Confidence:        feedback.Confidence,
	}

	return c.postJSON(ctx, "/feedback", reqBody, nil)
}

type trainRequest struct {
	TrainingData []trainingSample `json:"training_data"`
}

type trainingSample struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Vendor      string  `json:"vendor"`
	Amount      float64 `json:"amount"`
	Category    string  `json:"category"`
}

type trainResponse struct {
	ModelVersion string  `json:"model_version"`
	Accuracy     float64 `json:"accuracy"`
}

// Train submits a batch of labeled samples for retraining.
func (c *Client) Train(ctx context.Context, samples []domain.TrainingSample) (*clients.TrainingResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.trainTimeout)
	defer cancel()

	reqBody := trainRequest{TrainingData: make([]trainingSample, 0, len(samples))}
	for _, s := range samples {
		reqBody.TrainingData = append(reqBody.TrainingData, trainingSample{
			Title:       s.Title,
			Description: s.Description,
			Vendor:      s.Vendor,
			Amount:      s.Amount,
			Category:    string(s.Category),
		})
	}

	var respBody trainResponse
	if err := c.postJSON(ctx, "/train", reqBody, &respBody); err != nil {
		return nil, err
	}

	return &clients.TrainingResult{
		ModelVersion: respBody.ModelVersion,
		Accuracy:     respBody.Accuracy,
	}, nil
}

// Ping reports whether the classifier service is reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.feedbackTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrClassificationUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health check returned status %d",
			apperrors.ErrClassificationUnavailable, resp.StatusCode)
	}
	return nil
}

// postJSON sends one JSON request and decodes the response into out when
// non-nil. Transport failures, non-200 statuses and malformed bodies all
// wrap ErrClassificationUnavailable: to the caller they are the same
// degraded-classifier condition.
func (c *Client) postJSON(ctx context.Context, path string, in any, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("%w: failed to marshal request: %v", apperrors.ErrClassificationUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrClassificationUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrClassificationUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s returned status %d: %s",
			apperrors.ErrClassificationUnavailable, path, resp.StatusCode, string(bodyBytes))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode %s response: %v",
			apperrors.ErrClassificationUnavailable, path, err)
	}
	return nil
}
