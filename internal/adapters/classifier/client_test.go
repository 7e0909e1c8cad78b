package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/expensio/expensio_backend/internal/apperrors"
	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/expensio/expensio_backend/internal/core/ports/clients"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(baseURL string) *Client {
	return NewClient(baseURL, 2*time.Second, 2*time.Second, 5*time.Second)
}

func TestCategorize_Success(t *testing.T) {
	var gotBody categorizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/categorize", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]any{
			"category":   "meals",
			"confidence": 0.82,
			"scores":     map[string]float64{"meals": 0.82, "travel": 0.05, "bogus": 0.9},
		})
	}))
	defer server.Close()

	result, err := testClient(server.URL).Categorize(context.Background(), domain.ExpenseFields{
		Title:  "Team Lunch",
		Vendor: "Restaurante Central",
		Amount: decimal.NewFromFloat(85.50),
	})

	require.NoError(t, err)
	assert.Equal(t, domain.CategoryMeals, result.Category)
	assert.InDelta(t, 0.82, result.Confidence, 1e-9)
	assert.Equal(t, "Team Lunch", gotBody.Title)
	assert.InDelta(t, 85.50, gotBody.Amount, 1e-9)

	// Unknown score keys from the service are dropped.
	_, hasBogus := result.Scores[domain.Category("bogus")]
	assert.False(t, hasBogus)
	assert.InDelta(t, 0.05, result.Scores[domain.CategoryTravel], 1e-9)
}

func TestCategorize_ServiceDownWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close() // refuse connections

	_, err := testClient(server.URL).Categorize(context.Background(), domain.ExpenseFields{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrClassificationUnavailable)
}

func TestCategorize_ErrorStatusWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model exploded"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := testClient(server.URL).Categorize(context.Background(), domain.ExpenseFields{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrClassificationUnavailable)
}

func TestCategorize_UnknownCategoryWrapsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"category": "snacks", "confidence": 0.9})
	}))
	defer server.Close()

	_, err := testClient(server.URL).Categorize(context.Background(), domain.ExpenseFields{Title: "x"})
	assert.ErrorIs(t, err, apperrors.ErrClassificationUnavailable)
}

func TestSendFeedback_WireFormat(t *testing.T) {
	var gotBody feedbackRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/feedback", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]string{"status": "success"})
	}))
	defer server.Close()

	err := testClient(server.URL).SendFeedback(context.Background(), clients.CategoryFeedback{
		Fields:            domain.ExpenseFields{Title: "Flight to Recife", Amount: decimal.NewFromInt(900)},
		PredictedCategory: domain.CategoryTravel,
		ActualCategory:    domain.CategoryTransportation,
		Confidence:        0.61,
	})

	require.NoError(t, err)
	assert.Equal(t, "travel", gotBody.PredictedCategory)
	assert.Equal(t, "transportation", gotBody.ActualCategory)
	assert.Equal(t, "Flight to Recife", gotBody.ExpenseData.Title)
	assert.InDelta(t, 0.61, gotBody.Confidence, 1e-9)
}

func TestTrain_DecodesResult(t *testing.T) {
	var gotBody trainRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/train", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"status":        "success",
			"model_version": "1.42",
			"accuracy":      0.87,
		})
	}))
	defer server.Close()

	result, err := testClient(server.URL).Train(context.Background(), []domain.TrainingSample{
		{Title: "Hotel", Amount: 600, Category: domain.CategoryAccommodation},
		{Title: "Lunch", Amount: 30, Category: domain.CategoryMeals},
	})

	require.NoError(t, err)
	assert.Equal(t, "1.42", result.ModelVersion)
	assert.InDelta(t, 0.87, result.Accuracy, 1e-9)
	require.Len(t, gotBody.TrainingData, 2)
	assert.Equal(t, "accommodation", gotBody.TrainingData[0].Category)
}

func TestPing(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	}))
	defer healthy.Close()
	assert.NoError(t, testClient(healthy.URL).Ping(context.Background()))

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()
	assert.ErrorIs(t, testClient(unhealthy.URL).Ping(context.Background()), apperrors.ErrClassificationUnavailable)
}
