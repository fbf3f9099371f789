// Package queue aggregates compliance work from independent signal sources
// into one ranked list. Sources are isolated: a failing source contributes no
// items and never aborts the build.
package queue

import (
	"context"
	"sort"
	"strings"
)

// Work item types. One per signal source plus the reserved escalation types
// used only for scoring.
const (
	TypeOverrideRequest   = "override_request"
	TypeOverrideFollowUp  = "override_followup"
	TypeDocumentExpiry    = "document_expiry"
	TypeMissingDocument   = "missing_document"
	TypeConditionalExpiry = "conditional_expiry"
	TypeStaleDraft        = "stale_draft"
	TypeSupplierReview    = "supplier_review"
	TypeMaterialCritical  = "material_critical"
	TypeSupplierIssue     = "supplier_issue"
)

// Item is one normalized unit of outstanding compliance work. Items are
// produced fresh on every build; the ID is a composite of source type and
// source record id so repeated builds yield the same ids.
type Item struct {
	ID               string `json:"id"`
	Type             string `json:"type"`
	Priority         string `json:"priority" enum:"high,medium,low"`
	PriorityScore    int    `json:"priority_score"`
	EntityType       string `json:"entity_type"`
	EntityID         string `json:"entity_id"`
	EntityName       string `json:"entity_name"`
	EntityCode       string `json:"entity_code,omitempty"`
	IssueDescription string `json:"issue_description"`
	DueDate          string `json:"due_date,omitempty"`
	DaysUntilDue     *int   `json:"days_until_due,omitempty"`
	IsOverdue        bool   `json:"is_overdue"`
	Category         string `json:"category,omitempty"`
}

// Filters narrow a built queue. All populated filters must match (AND).
type Filters struct {
	Types      []string `json:"types,omitempty"`
	Priorities []string `json:"priorities,omitempty"`
	Categories []string `json:"categories,omitempty"`
	Search     string   `json:"search,omitempty"`
}

func (f Filters) match(it Item) bool {
	if len(f.Types) > 0 && !contains(f.Types, it.Type) {
		return false
	}
	if len(f.Priorities) > 0 && !contains(f.Priorities, it.Priority) {
		return false
	}
	if len(f.Categories) > 0 && !contains(f.Categories, it.Category) {
		return false
	}
	if f.Search != "" {
		needle := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(it.EntityName), needle) &&
			!strings.Contains(strings.ToLower(it.EntityCode), needle) &&
			!strings.Contains(strings.ToLower(it.IssueDescription), needle) {
			return false
		}
	}
	return true
}

func contains(haystack []string, v string) bool {
	for _, h := range haystack {
		if h == v {
			return true
		}
	}
	return false
}

// Source is one independent origin of work items.
type Source struct {
	Name  string
	Fetch func(ctx context.Context) ([]Item, error)
}

// Builder runs sources in declaration order and merges their items.
type Builder struct {
	Sources []Source
	// OnSourceError observes a source failure. The failure is never fatal:
	// the source contributes zero items and siblings still run.
	OnSourceError func(name string, err error)
}

// Build fetches every source, ranks the concatenation by priority score
// (stable: ties keep source enumeration order) and applies filters.
func (b Builder) Build(ctx context.Context, f Filters) []Item {
	var items []Item
	for _, src := range b.Sources {
		fetched, err := src.Fetch(ctx)
		if err != nil {
			if b.OnSourceError != nil {
				b.OnSourceError(src.Name, err)
			}
			continue
		}
		items = append(items, fetched...)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PriorityScore > items[j].PriorityScore
	})
	if len(f.Types) == 0 && len(f.Priorities) == 0 && len(f.Categories) == 0 && f.Search == "" {
		return items
	}
	filtered := make([]Item, 0, len(items))
	for _, it := range items {
		if f.match(it) {
			filtered = append(filtered, it)
		}
	}
	return filtered
}

// Summary holds aggregate counts over a built item list. It is recomputed
// from the materialized list on every call rather than maintained
// incrementally.
type Summary struct {
	Total              int            `json:"total"`
	Overdue            int            `json:"overdue"`
	DueWithin7Days     int            `json:"due_within_7_days"`
	DueWithinLookahead int            `json:"due_within_lookahead"`
	ByType             map[string]int `json:"by_type"`
	ByPriority         map[string]int `json:"by_priority"`
}

// Summarize counts items by urgency band, type and priority level.
func Summarize(items []Item, lookaheadDays int) Summary {
	s := Summary{
		Total:      len(items),
		ByType:     map[string]int{},
		ByPriority: map[string]int{},
	}
	for _, it := range items {
		s.ByType[it.Type]++
		s.ByPriority[it.Priority]++
		if it.IsOverdue {
			s.Overdue++
		}
		if it.DaysUntilDue != nil {
			d := *it.DaysUntilDue
			if d >= 0 && d <= 7 {
				s.DueWithin7Days++
			}
			if d >= 0 && d <= lookaheadDays {
				s.DueWithinLookahead++
			}
		}
	}
	return s
}
