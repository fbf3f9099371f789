package queue

import (
	"math"

	"qualgate/internal/domain"
)

// Priority levels derived from the numeric score.
const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Fixed level thresholds. Not configurable.
const (
	highThreshold   = 100
	mediumThreshold = 50
)

var baseWeights = map[string]int{
	TypeMaterialCritical:  100,
	TypeSupplierIssue:     80,
	TypeOverrideRequest:   80,
	TypeDocumentExpiry:    75,
	TypeMissingDocument:   70,
	TypeOverrideFollowUp:  70,
	TypeConditionalExpiry: 60,
	TypeSupplierReview:    40,
	TypeStaleDraft:        25,
}

const defaultWeight = 30

// Categories whose items carry elevated operational risk. Kept as a constant
// set on purpose; making this data-driven is an open product question.
var sensitiveCategories = map[string]bool{
	"Ingredients":            true,
	"Additives":              true,
	"Processing Aids":        true,
	"Food Contact Packaging": true,
}

// Score ranks one work item on the shared priority scale. It is a pure
// function of its arguments: base weight by type, a time-urgency addend, a
// missing-document surcharge for entities already in active use, and a
// sensitive-category multiplier on the total.
func Score(itemType string, daysUntilDue *int, category, entityStatus string) (int, string) {
	score, ok := baseWeights[itemType]
	if !ok {
		score = defaultWeight
	}

	if daysUntilDue != nil {
		switch d := *daysUntilDue; {
		case d < 0:
			score += 50
		case d <= 7:
			score += 30
		case d <= 14:
			score += 15
		}
	}

	if itemType == TypeMissingDocument && entityStatus == domain.StatusApproved {
		score += 20
	}

	if sensitiveCategories[category] {
		score = int(math.Round(float64(score) * 1.2))
	}

	switch {
	case score >= highThreshold:
		return score, PriorityHigh
	case score >= mediumThreshold:
		return score, PriorityMedium
	default:
		return score, PriorityLow
	}
}
