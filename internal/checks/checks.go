package checks

import (
	"time"

	"qualgate/internal/domain"
)

// Check tiers. Tier decides whether a failure blocks approval.
const (
	TierCritical    = "critical"
	TierImportant   = "important"
	TierRecommended = "recommended"
)

// Definition is one declarative compliance rule. Definitions are created and
// edited by administrators and deactivated rather than deleted.
type Definition struct {
	Key                  string   `json:"key"`
	Tier                 string   `json:"tier" enum:"critical,important,recommended"`
	EntityType           string   `json:"entity_type"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	IsActive             bool     `json:"is_active"`
	SortOrder            int      `json:"sort_order"`
	Description          string   `json:"description,omitempty"`
}

// AppliesTo reports whether the definition applies to an entity category.
// An empty category set applies universally. An entity without a category
// never matches a category-restricted definition.
func (d Definition) AppliesTo(category string) bool {
	if len(d.ApplicableCategories) == 0 {
		return true
	}
	if category == "" {
		return false
	}
	for _, c := range d.ApplicableCategories {
		if c == category {
			return true
		}
	}
	return false
}

// Context carries everything a rule may read for one entity. It is assembled
// fresh per evaluation and never persisted.
type Context struct {
	Material      domain.Material
	Suppliers     []domain.SupplierLink
	Documents     []domain.Document
	Requirements  []domain.DocumentRequirement
	CoALimits     []domain.CoALimit
	PurchaseUnits []domain.PurchaseUnit
	WarningDays   int
	Today         time.Time
}

// Result is the outcome of evaluating one definition against one entity.
type Result struct {
	Definition Definition     `json:"definition"`
	Passed     bool           `json:"passed"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
}

// Summary aggregates all results for one entity into an approval verdict.
type Summary struct {
	CriticalFailures    []Result `json:"critical_failures"`
	ImportantFailures   []Result `json:"important_failures"`
	RecommendedFailures []Result `json:"recommended_failures"`
	Passed              []Result `json:"passed_checks"`

	IsBlocked             bool `json:"is_blocked"`
	CanConditionalApprove bool `json:"can_conditional_approve"`
	CanFullApprove        bool `json:"can_full_approve"`
	TotalChecks           int  `json:"total_checks"`
	FailedChecks          int  `json:"failed_checks"`
}

// Summarize partitions results by tier and derives the approval gate.
// Blocked forbids any approval; conditional approval is allowed whenever not
// blocked; full approval additionally requires zero important failures.
// Recommended failures are advisory only.
func Summarize(results []Result) Summary {
	s := Summary{TotalChecks: len(results)}
	for _, r := range results {
		if r.Passed {
			s.Passed = append(s.Passed, r)
			continue
		}
		s.FailedChecks++
		switch r.Definition.Tier {
		case TierCritical:
			s.CriticalFailures = append(s.CriticalFailures, r)
		case TierImportant:
			s.ImportantFailures = append(s.ImportantFailures, r)
		default:
			s.RecommendedFailures = append(s.RecommendedFailures, r)
		}
	}
	s.IsBlocked = len(s.CriticalFailures) > 0
	s.CanConditionalApprove = !s.IsBlocked
	s.CanFullApprove = s.CanConditionalApprove && len(s.ImportantFailures) == 0
	return s
}

// Evaluate runs every applicable definition against the context. Rules are
// pure; the same context always yields the same results. A definition whose
// key has no registered rule passes permissively so a newly added definition
// can never silently block approval.
func Evaluate(defs []Definition, ec Context) []Result {
	var results []Result
	for _, d := range defs {
		if !d.AppliesTo(ec.Material.Category) {
			continue
		}
		fn, ok := registry[d.Key]
		if !ok {
			results = append(results, Result{
				Definition: d,
				Passed:     true,
				Message:    "no evaluation logic registered for " + d.Key + "; treated as passed",
			})
			continue
		}
		passed, msg, details := fn(ec)
		results = append(results, Result{Definition: d, Passed: passed, Message: msg, Details: details})
	}
	return results
}
