package domain_test

import (
	"testing"

	"github.com/expensio/expensio_backend/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

func TestIsValidCategory(t *testing.T) {
	for _, c := range domain.AllCategories() {
		assert.True(t, domain.IsValidCategory(c), "expected %q to be valid", c)
	}

	assert.False(t, domain.IsValidCategory("yachts"))
	assert.False(t, domain.IsValidCategory(""))
	assert.False(t, domain.IsValidCategory("Meals"), "categories are case sensitive")
}

func TestCategoryScores_Best(t *testing.T) {
	tests := []struct {
		name      string
		scores    domain.CategoryScores
		wantCat   domain.Category
		wantScore float64
	}{
		{
			name:      "empty scores fall back to other",
			scores:    domain.CategoryScores{},
			wantCat:   domain.CategoryOther,
			wantScore: 0,
		},
		{
			name: "single entry wins",
			scores: domain.CategoryScores{
				domain.CategorySoftware: 0.4,
			},
			wantCat:   domain.CategorySoftware,
			wantScore: 0.4,
		},
		{
			name: "highest score wins",
			scores: domain.CategoryScores{
				domain.CategoryMeals:  0.3,
				domain.CategoryTravel: 0.8,
				domain.CategoryOther:  0.1,
			},
			wantCat:   domain.CategoryTravel,
			wantScore: 0.8,
		},
		{
			name: "tie resolves to enumeration order",
			scores: domain.CategoryScores{
				domain.CategoryTravel:         0.5,
				domain.CategoryTransportation: 0.5,
				domain.CategoryMarketing:      0.5,
			},
			wantCat:   domain.CategoryTransportation,
			wantScore: 0.5,
		},
		{
			name: "zero score still beats absent categories",
			scores: domain.CategoryScores{
				domain.CategoryTraining: 0,
			},
			wantCat:   domain.CategoryTraining,
			wantScore: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cat, score := tt.scores.Best()
			assert.Equal(t, tt.wantCat, cat)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
		})
	}
}

func TestAllCategories_ReturnsCopy(t *testing.T) {
	first := domain.AllCategories()
	first[0] = "mutated"

	second := domain.AllCategories()
	assert.Equal(t, domain.CategoryMeals, second[0])
	assert.Len(t, second, 9)
}
