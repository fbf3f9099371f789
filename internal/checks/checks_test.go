package checks_test

import (
	"testing"
	"time"

	"qualgate/internal/checks"
	"qualgate/internal/domain"
)

var today = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func strp(s string) *string       { return &s }
func fp(f float64) *float64       { return &f }
func day(d int) *string           { s := today.AddDate(0, 0, d).Format(checks.DayFormat); return &s }
func def(key, tier string) checks.Definition {
	return checks.Definition{Key: key, Tier: tier, EntityType: "material", IsActive: true}
}

func baseContext() checks.Context {
	return checks.Context{
		Material: domain.Material{
			ID:       "mat-1",
			Name:     "Citric Acid",
			Category: "Ingredients",
			Status:   domain.StatusDraft,
		},
		WarningDays: 30,
		Today:       today,
	}
}

func TestAppliesTo(t *testing.T) {
	universal := checks.Definition{Key: "k"}
	if !universal.AppliesTo("") || !universal.AppliesTo("Ingredients") {
		t.Fatalf("empty category set must apply universally")
	}
	restricted := checks.Definition{Key: "k", ApplicableCategories: []string{"Ingredients"}}
	if !restricted.AppliesTo("Ingredients") {
		t.Fatalf("matching category must apply")
	}
	if restricted.AppliesTo("Packaging") {
		t.Fatalf("non-matching category must not apply")
	}
	if restricted.AppliesTo("") {
		t.Fatalf("entity without category must never match a restricted definition")
	}
}

func TestEvaluateSkipsInapplicableDefinitions(t *testing.T) {
	ec := baseContext()
	ec.Material.Category = ""
	defs := []checks.Definition{
		def("material_gl_account_missing", checks.TierRecommended),
		{Key: "material_haccp_incomplete", Tier: checks.TierImportant, EntityType: "material", IsActive: true,
			ApplicableCategories: []string{"Ingredients"}},
	}
	results := checks.Evaluate(defs, ec)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Definition.Key != "material_gl_account_missing" {
		t.Fatalf("unexpected result %s", results[0].Definition.Key)
	}
}

func TestEvaluateUnknownKeyPasses(t *testing.T) {
	results := checks.Evaluate([]checks.Definition{def("material_custom_future_rule", checks.TierCritical)}, baseContext())
	if len(results) != 1 || !results[0].Passed {
		t.Fatalf("unknown rule key must pass permissively: %+v", results)
	}
}

func TestNoApprovedSupplier(t *testing.T) {
	ec := baseContext()
	results := checks.Evaluate([]checks.Definition{def("material_no_approved_supplier", checks.TierCritical)}, ec)
	if results[0].Passed {
		t.Fatalf("no linked suppliers must fail")
	}
	ec.Suppliers = []domain.SupplierLink{
		{SupplierID: "s1", SupplierStatus: domain.StatusDraft},
		{SupplierID: "s2", SupplierStatus: domain.StatusApproved},
	}
	results = checks.Evaluate([]checks.Definition{def("material_no_approved_supplier", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("one approved supplier must pass: %s", results[0].Message)
	}
}

func TestManufacturerRejected(t *testing.T) {
	ec := baseContext()
	ec.Suppliers = []domain.SupplierLink{
		{SupplierID: "s1", SupplierName: "Acme", SupplierStatus: domain.StatusRejected, IsManufacturer: false},
	}
	results := checks.Evaluate([]checks.Definition{def("material_manufacturer_rejected", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("rejected non-manufacturer must not fail")
	}
	ec.Suppliers[0].IsManufacturer = true
	results = checks.Evaluate([]checks.Definition{def("material_manufacturer_rejected", checks.TierCritical)}, ec)
	if results[0].Passed {
		t.Fatalf("rejected manufacturer must fail")
	}
}

func TestRequiredDocsDualKeyMatch(t *testing.T) {
	ec := baseContext()
	ec.Requirements = []domain.DocumentRequirement{
		{ID: "req-1", EntityType: "material", Name: "Specification Sheet", IsActive: true},
		{ID: "req-2", EntityType: "material", Name: "Halal Certificate", IsActive: true},
	}
	// req-1 satisfied by id reference, req-2 satisfied by exact name
	ec.Documents = []domain.Document{
		{ID: "d1", Name: "spec-v2.pdf", RequirementID: strp("req-1")},
		{ID: "d2", Name: "Halal Certificate"},
	}
	results := checks.Evaluate([]checks.Definition{def("material_required_docs_missing", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("both requirements satisfied: %s", results[0].Message)
	}

	// archived documents never satisfy
	ec.Documents[0].Archived = true
	results = checks.Evaluate([]checks.Definition{def("material_required_docs_missing", checks.TierCritical)}, ec)
	if results[0].Passed {
		t.Fatalf("archived document must not satisfy a requirement")
	}

	// inactive requirements are ignored
	ec.Requirements[0].IsActive = false
	results = checks.Evaluate([]checks.Definition{def("material_required_docs_missing", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("inactive requirement must be ignored: %s", results[0].Message)
	}
}

func TestSafetyDocsExpired(t *testing.T) {
	ec := baseContext()
	ec.Documents = []domain.Document{
		{ID: "d1", Name: "SDS", DocType: "safety_data_sheet", ExpiryDate: day(0)},
	}
	results := checks.Evaluate([]checks.Definition{def("material_safety_docs_expired", checks.TierCritical)}, ec)
	if results[0].Passed {
		t.Fatalf("safety doc expiring today counts as expired")
	}
	ec.Documents[0].ExpiryDate = day(1)
	results = checks.Evaluate([]checks.Definition{def("material_safety_docs_expired", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("safety doc expiring tomorrow is not expired")
	}
	// non-safety doc types never trip this rule
	ec.Documents[0].DocType = "invoice"
	ec.Documents[0].ExpiryDate = day(-10)
	results = checks.Evaluate([]checks.Definition{def("material_safety_docs_expired", checks.TierCritical)}, ec)
	if !results[0].Passed {
		t.Fatalf("expired non-safety doc must not fail this rule")
	}
}

func TestCoALimits(t *testing.T) {
	ec := baseContext()
	ec.Material.CoARequired = false
	results := checks.Evaluate([]checks.Definition{def("material_coa_limits_missing", checks.TierImportant)}, ec)
	if !results[0].Passed {
		t.Fatalf("CoA not required must pass")
	}
	ec.Material.CoARequired = true
	ec.CoALimits = []domain.CoALimit{{ID: "l1", MaterialID: "mat-1", Parameter: "purity"}}
	results = checks.Evaluate([]checks.Definition{def("material_coa_limits_missing", checks.TierImportant)}, ec)
	if results[0].Passed {
		t.Fatalf("limit row with both bounds nil is not a defined limit")
	}
	ec.CoALimits[0].MinValue = fp(99.5)
	results = checks.Evaluate([]checks.Definition{def("material_coa_limits_missing", checks.TierImportant)}, ec)
	if !results[0].Passed {
		t.Fatalf("one bounded limit must pass: %s", results[0].Message)
	}
}

func TestDocsExpiringSoonWindowAndNearest(t *testing.T) {
	ec := baseContext()
	ec.Documents = []domain.Document{
		{ID: "d0", Name: "today", ExpiryDate: day(0)},    // not in window, already expired
		{ID: "d1", Name: "far", ExpiryDate: day(31)},     // beyond warning window
		{ID: "d2", Name: "first", ExpiryDate: day(5)},    // nearest
		{ID: "d3", Name: "second", ExpiryDate: day(5)},   // tie, first encountered wins
		{ID: "d4", Name: "later", ExpiryDate: day(20)},
	}
	results := checks.Evaluate([]checks.Definition{def("material_docs_expiring_soon", checks.TierRecommended)}, ec)
	r := results[0]
	if r.Passed {
		t.Fatalf("documents in window must fail")
	}
	if want := "3 document(s) expiring within 30 days; nearest: first in 5 day(s)"; r.Message != want {
		t.Fatalf("message %q, want %q", r.Message, want)
	}
	if _, ok := r.Details["nearest"]; !ok {
		t.Fatalf("nearest detail missing: %+v", r.Details)
	}
}

func TestFraudScoreThreshold(t *testing.T) {
	ec := baseContext()
	results := checks.Evaluate([]checks.Definition{def("material_fraud_score_review", checks.TierRecommended)}, ec)
	if !results[0].Passed {
		t.Fatalf("absent fraud score must pass")
	}
	ec.Material.FraudScore = fp(70)
	results = checks.Evaluate([]checks.Definition{def("material_fraud_score_review", checks.TierRecommended)}, ec)
	if results[0].Passed {
		t.Fatalf("score at threshold must fail")
	}
	ec.Material.FraudScore = fp(69.9)
	results = checks.Evaluate([]checks.Definition{def("material_fraud_score_review", checks.TierRecommended)}, ec)
	if !results[0].Passed {
		t.Fatalf("score below threshold must pass")
	}
}

func TestSummarizeGate(t *testing.T) {
	mk := func(tier string, passed bool) checks.Result {
		return checks.Result{Definition: checks.Definition{Key: "k-" + tier, Tier: tier}, Passed: passed}
	}

	s := checks.Summarize([]checks.Result{mk(checks.TierCritical, false), mk(checks.TierImportant, true)})
	if !s.IsBlocked || s.CanConditionalApprove || s.CanFullApprove {
		t.Fatalf("critical failure must block everything: %+v", s)
	}

	s = checks.Summarize([]checks.Result{mk(checks.TierCritical, true), mk(checks.TierImportant, false), mk(checks.TierRecommended, false)})
	if s.IsBlocked || !s.CanConditionalApprove || s.CanFullApprove {
		t.Fatalf("important failure allows conditional only: %+v", s)
	}
	if s.FailedChecks != 2 || s.TotalChecks != 3 {
		t.Fatalf("counts wrong: %+v", s)
	}

	s = checks.Summarize([]checks.Result{mk(checks.TierCritical, true), mk(checks.TierRecommended, false)})
	if !s.CanFullApprove {
		t.Fatalf("recommended failures are advisory only: %+v", s)
	}

	s = checks.Summarize(nil)
	if s.IsBlocked || !s.CanFullApprove {
		t.Fatalf("zero results must allow full approval: %+v", s)
	}
}

func TestDaysBetween(t *testing.T) {
	a := time.Date(2024, 6, 1, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 6, 2, 1, 0, 0, 0, time.UTC)
	if d := checks.DaysBetween(a, b); d != 1 {
		t.Fatalf("dates are truncated before diffing, got %d", d)
	}
	if d := checks.DaysBetween(b, a); d != -1 {
		t.Fatalf("reverse diff must be negative, got %d", d)
	}
}

func TestParseDayMalformed(t *testing.T) {
	if _, ok := checks.ParseDay(nil); ok {
		t.Fatalf("nil must be absent")
	}
	if _, ok := checks.ParseDay(strp("not-a-date")); ok {
		t.Fatalf("malformed must be absent, not an error")
	}
	if _, ok := checks.ParseDay(strp(" 2024-06-01 ")); !ok {
		t.Fatalf("surrounding whitespace is tolerated")
	}
}
