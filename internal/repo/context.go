package repo

import (
	"context"
	"fmt"
	"time"

	"qualgate/internal/checks"
	"qualgate/internal/domain"
)

// BuildMaterialContext gathers all per-entity facts a check evaluation needs.
// The context is assembled fresh on every call and never cached.
func (r Repo) BuildMaterialContext(ctx context.Context, materialID string, today time.Time, warningDays int) (checks.Context, error) {
	m, err := r.GetMaterial(ctx, materialID)
	if err != nil {
		return checks.Context{}, err
	}
	links, err := r.ListSupplierLinks(ctx, materialID)
	if err != nil {
		return checks.Context{}, fmt.Errorf("supplier links: %w", err)
	}
	docs, err := r.ListDocuments(ctx, "material", materialID)
	if err != nil {
		return checks.Context{}, fmt.Errorf("documents: %w", err)
	}
	reqs, err := r.ListActiveRequirements(ctx, "material")
	if err != nil {
		return checks.Context{}, fmt.Errorf("requirements: %w", err)
	}
	limits, err := r.ListCoALimits(ctx, materialID)
	if err != nil {
		return checks.Context{}, fmt.Errorf("coa limits: %w", err)
	}
	units, err := r.ListPurchaseUnits(ctx, materialID)
	if err != nil {
		return checks.Context{}, fmt.Errorf("purchase units: %w", err)
	}
	return checks.Context{
		Material:      m,
		Suppliers:     links,
		Documents:     docs,
		Requirements:  filterRequirements(reqs, m.Category),
		CoALimits:     limits,
		PurchaseUnits: units,
		WarningDays:   warningDays,
		Today:         today,
	}, nil
}

// filterRequirements keeps requirements applicable to the entity's category.
// Empty category lists apply universally; a category-restricted requirement
// never applies to an entity without a category.
func filterRequirements(reqs []domain.DocumentRequirement, category string) []domain.DocumentRequirement {
	var out []domain.DocumentRequirement
	for _, req := range reqs {
		if RequirementApplies(req, category) {
			out = append(out, req)
		}
	}
	return out
}

// RequirementApplies reports whether a document requirement is in scope for
// an entity category.
func RequirementApplies(req domain.DocumentRequirement, category string) bool {
	if len(req.ApplicableCategories) == 0 {
		return true
	}
	if category == "" {
		return false
	}
	for _, c := range req.ApplicableCategories {
		if c == category {
			return true
		}
	}
	return false
}
