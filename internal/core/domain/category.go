package domain

// Category is one of the fixed spend categories an expense can belong to.
// Values are lowercase snake case because they travel to the remote
// classifier verbatim.
type Category string

const (
	CategoryMeals          Category = "meals"
	CategoryTransportation Category = "transportation"
	CategoryAccommodation  Category = "accommodation"
	CategoryOfficeSupplies Category = "office_supplies"
	CategorySoftware       Category = "software"
	CategoryTraining       Category = "training"
	CategoryMarketing      Category = "marketing"
	CategoryTravel         Category = "travel"
	CategoryOther          Category = "other" // catch-all
)

// allCategories fixes the enumeration order used for deterministic
// tie-breaking in score comparisons. Do not reorder.
var allCategories = []Category{
	CategoryMeals,
	CategoryTransportation,
	CategoryAccommodation,
	CategoryOfficeSupplies,
	CategorySoftware,
	CategoryTraining,
	CategoryMarketing,
	CategoryTravel,
	CategoryOther,
}

// AllCategories returns every category in the fixed enumeration order.
func AllCategories() []Category {
	out := make([]Category, len(allCategories))
	copy(out, allCategories)
	return out
}

// IsValidCategory reports whether c is one of the known categories.
func IsValidCategory(c Category) bool {
	for _, known := range allCategories {
		if c == known {
			return true
		}
	}
	return false
}

// CategoryScores maps categories to scores in [0,1]. Keys are restricted to
// the fixed enum so blending code can iterate AllCategories exhaustively.
type CategoryScores map[Category]float64

// Best returns the highest-scoring category and its score. Ties resolve to
// whichever category appears first in the fixed enumeration order, so the
// result is stable across runs. An empty score set yields (other, 0).
func (s CategoryScores) Best() (Category, float64) {
	best := CategoryOther
	bestScore := -1.0
	for _, c := range allCategories {
		if score, ok := s[c]; ok && score > bestScore {
			best = c
			bestScore = score
		}
	}
	if bestScore < 0 {
		return CategoryOther, 0
	}
	return best, bestScore
}
