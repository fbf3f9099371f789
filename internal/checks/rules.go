package checks

import (
	"fmt"
	"strings"
	"time"

	"qualgate/internal/domain"
)

// RuleFunc evaluates one rule against an entity context.
type RuleFunc func(Context) (passed bool, message string, details map[string]any)

// fraud scores at or above this ask for a manual review
const fraudScoreReviewThreshold = 70.0

// doc types whose expiry blocks rather than warns
var safetyDocTypes = map[string]bool{
	"safety_data_sheet":      true,
	"allergen_declaration":   true,
	"food_contact_statement": true,
}

var registry = map[string]RuleFunc{
	"material_no_approved_supplier":      materialNoApprovedSupplier,
	"material_manufacturer_rejected":     materialManufacturerRejected,
	"material_required_docs_missing":     materialRequiredDocsMissing,
	"material_safety_docs_expired":       materialSafetyDocsExpired,
	"material_coa_limits_missing":        materialCoALimitsMissing,
	"material_docs_expiring_soon":        materialDocsExpiringSoon,
	"material_gl_account_missing":        materialGLAccountMissing,
	"material_haccp_incomplete":          materialHACCPIncomplete,
	"material_storage_temp_missing":      materialStorageTempMissing,
	"material_country_of_origin_missing": materialCountryOfOriginMissing,
	"material_fraud_score_review":        materialFraudScoreReview,
	"material_purchase_unit_missing":     materialPurchaseUnitMissing,
}

// RegisteredKeys lists all rule keys with evaluation logic.
func RegisteredKeys() []string {
	keys := make([]string, 0, len(registry))
	for k := range registry {
		keys = append(keys, k)
	}
	return keys
}

const DayFormat = "2006-01-02"

// ParseDay parses a day-granularity date. A malformed or empty value is
// treated as absent, never as an error.
func ParseDay(s *string) (time.Time, bool) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(DayFormat, strings.TrimSpace(*s))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// DaysBetween counts whole days from a to b, both truncated to UTC dates.
func DaysBetween(a, b time.Time) int {
	au := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	bu := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	return int(bu.Sub(au).Hours() / 24)
}

func materialNoApprovedSupplier(ec Context) (bool, string, map[string]any) {
	approved := 0
	for _, s := range ec.Suppliers {
		if s.SupplierStatus == domain.StatusApproved {
			approved++
		}
	}
	if approved == 0 {
		return false, "no approved supplier linked", map[string]any{"linked_suppliers": len(ec.Suppliers)}
	}
	return true, fmt.Sprintf("%d approved supplier(s) linked", approved), nil
}

func materialManufacturerRejected(ec Context) (bool, string, map[string]any) {
	var rejected []string
	for _, s := range ec.Suppliers {
		if s.IsManufacturer && s.SupplierStatus == domain.StatusRejected {
			rejected = append(rejected, s.SupplierName)
		}
	}
	if len(rejected) > 0 {
		return false, "manufacturer rejected: " + strings.Join(rejected, ", "), map[string]any{"rejected_manufacturers": rejected}
	}
	return true, "no rejected manufacturer", nil
}

// materialRequiredDocsMissing computes required-minus-uploaded. An upload
// satisfies a requirement when it references the requirement id or carries
// the requirement's exact name; both match paths are kept for documents
// uploaded before requirement linkage existed.
func materialRequiredDocsMissing(ec Context) (bool, string, map[string]any) {
	missing := missingRequirements(ec.Requirements, ec.Documents)
	if len(missing) == 0 {
		return true, "all required documents uploaded", nil
	}
	names := make([]string, len(missing))
	for i, req := range missing {
		names[i] = req.Name
	}
	return false, "missing required documents: " + strings.Join(names, ", "), map[string]any{"missing": names}
}

func missingRequirements(reqs []domain.DocumentRequirement, docs []domain.Document) []domain.DocumentRequirement {
	var missing []domain.DocumentRequirement
	for _, req := range reqs {
		if !req.IsActive {
			continue
		}
		satisfied := false
		for _, doc := range docs {
			if doc.Archived {
				continue
			}
			if (doc.RequirementID != nil && *doc.RequirementID == req.ID) || doc.Name == req.Name {
				satisfied = true
				break
			}
		}
		if !satisfied {
			missing = append(missing, req)
		}
	}
	return missing
}

func materialSafetyDocsExpired(ec Context) (bool, string, map[string]any) {
	var expired []string
	for _, doc := range ec.Documents {
		if doc.Archived || !safetyDocTypes[doc.DocType] {
			continue
		}
		exp, ok := ParseDay(doc.ExpiryDate)
		if !ok {
			continue
		}
		if DaysBetween(ec.Today, exp) <= 0 {
			expired = append(expired, doc.Name)
		}
	}
	if len(expired) > 0 {
		return false, "expired safety documents: " + strings.Join(expired, ", "), map[string]any{"expired": expired}
	}
	return true, "no expired safety documents", nil
}

func materialCoALimitsMissing(ec Context) (bool, string, map[string]any) {
	if !ec.Material.CoARequired {
		return true, "certificate of analysis not required", nil
	}
	for _, l := range ec.CoALimits {
		if l.MinValue != nil || l.MaxValue != nil {
			return true, "CoA limits defined", nil
		}
	}
	return false, "CoA required but no limits defined", map[string]any{"limit_rows": len(ec.CoALimits)}
}

// materialDocsExpiringSoon reports all non-archived documents expiring within
// the warning window and, separately, the single nearest-to-expiry entry.
// Ties keep the first document encountered in input order.
func materialDocsExpiringSoon(ec Context) (bool, string, map[string]any) {
	type expiring struct {
		Name       string `json:"name"`
		ExpiryDate string `json:"expiry_date"`
		DaysUntil  int    `json:"days_until_expiry"`
	}
	var soon []expiring
	nearestIdx := -1
	for _, doc := range ec.Documents {
		if doc.Archived {
			continue
		}
		exp, ok := ParseDay(doc.ExpiryDate)
		if !ok {
			continue
		}
		days := DaysBetween(ec.Today, exp)
		if days > 0 && days <= ec.WarningDays {
			soon = append(soon, expiring{Name: doc.Name, ExpiryDate: *doc.ExpiryDate, DaysUntil: days})
			if nearestIdx == -1 || days < soon[nearestIdx].DaysUntil {
				nearestIdx = len(soon) - 1
			}
		}
	}
	if len(soon) == 0 {
		return true, "no documents expiring soon", nil
	}
	nearest := soon[nearestIdx]
	return false,
		fmt.Sprintf("%d document(s) expiring within %d days; nearest: %s in %d day(s)", len(soon), ec.WarningDays, nearest.Name, nearest.DaysUntil),
		map[string]any{"expiring": soon, "nearest": nearest}
}

func materialGLAccountMissing(ec Context) (bool, string, map[string]any) {
	if ec.Material.GLAccountID == nil || strings.TrimSpace(*ec.Material.GLAccountID) == "" {
		return false, "no GL account assigned", nil
	}
	return true, "GL account assigned", nil
}

func materialHACCPIncomplete(ec Context) (bool, string, map[string]any) {
	var gaps []string
	if ec.Material.HACCPStep == nil || strings.TrimSpace(*ec.Material.HACCPStep) == "" {
		gaps = append(gaps, "process step")
	}
	if ec.Material.HACCPHazard == nil || strings.TrimSpace(*ec.Material.HACCPHazard) == "" {
		gaps = append(gaps, "hazard analysis")
	}
	if len(gaps) > 0 {
		return false, "HACCP incomplete: " + strings.Join(gaps, ", "), map[string]any{"missing": gaps}
	}
	return true, "HACCP data complete", nil
}

func materialStorageTempMissing(ec Context) (bool, string, map[string]any) {
	if ec.Material.StorageTempMin == nil || ec.Material.StorageTempMax == nil {
		return false, "storage temperature range not set", nil
	}
	return true, "storage temperature range set", nil
}

func materialCountryOfOriginMissing(ec Context) (bool, string, map[string]any) {
	if ec.Material.CountryOfOrigin == nil || strings.TrimSpace(*ec.Material.CountryOfOrigin) == "" {
		return false, "country of origin not recorded", nil
	}
	return true, "country of origin recorded", nil
}

func materialFraudScoreReview(ec Context) (bool, string, map[string]any) {
	if ec.Material.FraudScore == nil {
		return true, "no fraud score recorded", nil
	}
	if *ec.Material.FraudScore >= fraudScoreReviewThreshold {
		return false,
			fmt.Sprintf("fraud score %.0f at or above review threshold %.0f", *ec.Material.FraudScore, fraudScoreReviewThreshold),
			map[string]any{"score": *ec.Material.FraudScore, "threshold": fraudScoreReviewThreshold}
	}
	return true, fmt.Sprintf("fraud score %.0f below review threshold", *ec.Material.FraudScore), nil
}

func materialPurchaseUnitMissing(ec Context) (bool, string, map[string]any) {
	for _, u := range ec.PurchaseUnits {
		if u.IsDefault {
			return true, "default purchase unit configured", nil
		}
	}
	return false, "no default purchase unit configured", map[string]any{"unit_rows": len(ec.PurchaseUnits)}
}
