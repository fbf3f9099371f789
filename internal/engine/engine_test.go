package engine_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"qualgate/internal/checks"
	"qualgate/internal/config"
	"qualgate/internal/db"
	"qualgate/internal/domain"
	"qualgate/internal/engine"
	"qualgate/internal/migrate"
	"qualgate/internal/queue"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return testNow }
	ctx := context.Background()
	if err := eng.SeedCatalog(ctx); err != nil {
		t.Fatalf("seed catalog: %v", err)
	}
	return testEnv{Engine: eng, Ctx: ctx}
}

func (env testEnv) createMaterial(t *testing.T, name, category string) domain.Material {
	t.Helper()
	m, err := env.Engine.CreateMaterial(env.Ctx, engine.MaterialCreateOptions{
		Name:     name,
		Category: category,
		ActorID:  "tester",
	})
	if err != nil {
		t.Fatalf("create material: %v", err)
	}
	return m
}

func (env testEnv) createApprovedSupplier(t *testing.T, name string) domain.Supplier {
	t.Helper()
	s, err := env.Engine.CreateSupplier(env.Ctx, engine.SupplierCreateOptions{Name: name, ActorID: "tester"})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	s, err = env.Engine.SetSupplierStatus(env.Ctx, s.ID, domain.StatusApproved, "tester")
	if err != nil {
		t.Fatalf("approve supplier: %v", err)
	}
	return s
}

func TestApproveBlockedByCriticalFailure(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Citric Acid", "Packaging")

	// no supplier linked, so the critical supplier check fails
	_, err := env.Engine.ApproveMaterial(env.Ctx, m.ID, "tester")
	if !errors.Is(err, engine.ErrBlocked) {
		t.Fatalf("expected blocked, got %v", err)
	}
	_, err = env.Engine.ConditionalApproveMaterial(env.Ctx, m.ID, "tester")
	if !errors.Is(err, engine.ErrBlocked) {
		t.Fatalf("conditional approval must also be blocked, got %v", err)
	}
	m, err = env.Engine.Repo.GetMaterial(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if m.Status != domain.StatusDraft {
		t.Fatalf("blocked material must keep its status, got %s", m.Status)
	}
}

func TestConditionalThenFullApproval(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Crate", "Packaging")
	s := env.createApprovedSupplier(t, "Acme Crates")
	if err := env.Engine.Repo.LinkSupplier(env.Ctx, m.ID, s.ID, true); err != nil {
		t.Fatal(err)
	}

	// GL account missing is an important failure: conditional only
	_, summary, err := env.Engine.EvaluateMaterial(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	if summary.IsBlocked {
		t.Fatalf("unexpected critical failures: %+v", summary.CriticalFailures)
	}
	if summary.CanFullApprove {
		t.Fatalf("GL account missing must prevent full approval")
	}

	_, err = env.Engine.ApproveMaterial(env.Ctx, m.ID, "tester")
	if !errors.Is(err, engine.ErrNotEligible) {
		t.Fatalf("expected not eligible, got %v", err)
	}

	m, err = env.Engine.ConditionalApproveMaterial(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("conditional approval: %v", err)
	}
	if m.Status != domain.StatusConditional {
		t.Fatalf("status %s", m.Status)
	}
	if m.ConditionalExpiresAt == nil {
		t.Fatalf("conditional approval must carry an expiry")
	}
	expiry, err := time.Parse(time.RFC3339, *m.ConditionalExpiresAt)
	if err != nil {
		t.Fatal(err)
	}
	if want := testNow.AddDate(0, 0, 90); !expiry.Equal(want) {
		t.Fatalf("expiry %s, want %s", expiry, want)
	}

	// fix the gap and fully approve
	m.GLAccountID = strp("4010")
	if _, err := env.Engine.UpdateMaterial(env.Ctx, m, "tester"); err != nil {
		t.Fatal(err)
	}
	m, err = env.Engine.ApproveMaterial(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatalf("full approval: %v", err)
	}
	if m.Status != domain.StatusApproved {
		t.Fatalf("status %s", m.Status)
	}
	if m.ConditionalExpiresAt != nil {
		t.Fatalf("full approval must clear the conditional expiry")
	}
}

func TestConditionalDurationCategoryOverride(t *testing.T) {
	env := newTestEnv(t)
	if err := env.Engine.Repo.SetSetting(env.Ctx, "conditional_duration_materials.Packaging", "14"); err != nil {
		t.Fatal(err)
	}
	m := env.createMaterial(t, "Crate", "Packaging")
	s := env.createApprovedSupplier(t, "Acme Crates")
	if err := env.Engine.Repo.LinkSupplier(env.Ctx, m.ID, s.ID, false); err != nil {
		t.Fatal(err)
	}
	m, err := env.Engine.ConditionalApproveMaterial(env.Ctx, m.ID, "tester")
	if err != nil {
		t.Fatal(err)
	}
	expiry, _ := time.Parse(time.RFC3339, *m.ConditionalExpiresAt)
	if want := testNow.AddDate(0, 0, 14); !expiry.Equal(want) {
		t.Fatalf("category override ignored: expiry %s, want %s", expiry, want)
	}
}

func TestRecommendedFailuresDoNotBlock(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Crate", "Packaging")
	s := env.createApprovedSupplier(t, "Acme Crates")
	if err := env.Engine.Repo.LinkSupplier(env.Ctx, m.ID, s.ID, false); err != nil {
		t.Fatal(err)
	}
	m.GLAccountID = strp("4010")
	if _, err := env.Engine.UpdateMaterial(env.Ctx, m, "tester"); err != nil {
		t.Fatal(err)
	}
	_, summary, err := env.Engine.EvaluateMaterial(env.Ctx, m.ID)
	if err != nil {
		t.Fatal(err)
	}
	// country of origin and purchase unit still fail, both recommended
	if len(summary.RecommendedFailures) == 0 {
		t.Fatalf("expected recommended failures, got %+v", summary)
	}
	if !summary.CanFullApprove {
		t.Fatalf("recommended failures must not block full approval")
	}
}

func TestCategoryRestrictedChecksSkipped(t *testing.T) {
	env := newTestEnv(t)
	packaging := env.createMaterial(t, "Crate", "Packaging")
	ingredient := env.createMaterial(t, "Citric Acid", "Ingredients")

	results, _, err := env.Engine.EvaluateMaterial(env.Ctx, packaging.ID)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.Definition.Key == "material_haccp_incomplete" {
			t.Fatalf("HACCP check must not run for Packaging")
		}
	}

	results, _, err = env.Engine.EvaluateMaterial(env.Ctx, ingredient.ID)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, r := range results {
		if r.Definition.Key == "material_haccp_incomplete" {
			found = true
			if r.Passed {
				t.Fatalf("HACCP must fail for an ingredient without data")
			}
		}
	}
	if !found {
		t.Fatalf("HACCP check must run for Ingredients")
	}
}

func TestOverrideLifecycle(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Citric Acid", "Ingredients")

	o, err := env.Engine.RequestOverride(env.Ctx, engine.OverrideRequestOptions{
		CheckKey:   "material_no_approved_supplier",
		EntityType: "material",
		EntityID:   m.ID,
		Reason:     "supplier onboarding in progress",
		ActorID:    "tester",
	})
	if err != nil {
		t.Fatalf("request override: %v", err)
	}
	if o.Status != domain.OverridePending {
		t.Fatalf("status %s", o.Status)
	}

	// approval without an explicit follow-up defaults to the warning window
	o, err = env.Engine.DecideOverride(env.Ctx, o.ID, true, "", "approver")
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if o.Status != domain.OverrideApproved || o.FollowUpDate == nil {
		t.Fatalf("approved override must carry a follow-up: %+v", o)
	}
	if want := testNow.AddDate(0, 0, 30).Format(checks.DayFormat); *o.FollowUpDate != want {
		t.Fatalf("follow-up %s, want %s", *o.FollowUpDate, want)
	}

	// deciding again must not flip the status
	if _, err := env.Engine.DecideOverride(env.Ctx, o.ID, false, "", "approver"); err == nil {
		t.Fatalf("second decision on a decided override must fail")
	}

	o, err = env.Engine.ResolveOverrideFollowUp(env.Ctx, o.ID, "tester")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if o.ResolvedAt == nil {
		t.Fatalf("resolved override must carry resolved_at")
	}
	// resolving twice is rejected
	if _, err := env.Engine.ResolveOverrideFollowUp(env.Ctx, o.ID, "tester"); err == nil {
		t.Fatalf("second resolve must fail")
	}
}

func TestOverrideRejectHasNoFollowUp(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Citric Acid", "Ingredients")
	o, err := env.Engine.RequestOverride(env.Ctx, engine.OverrideRequestOptions{
		CheckKey: "material_gl_account_missing", EntityType: "material", EntityID: m.ID, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	o, err = env.Engine.DecideOverride(env.Ctx, o.ID, false, "", "approver")
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != domain.OverrideRejected || o.FollowUpDate != nil {
		t.Fatalf("rejection must not carry a follow-up: %+v", o)
	}
}

func TestWorkQueueAggregation(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Citric Acid", "Ingredients")
	s := env.createApprovedSupplier(t, "Acme Chemicals")
	if err := env.Engine.Repo.LinkSupplier(env.Ctx, m.ID, s.ID, false); err != nil {
		t.Fatal(err)
	}

	// expired document on the material
	expired := testNow.AddDate(0, 0, -3).Format(checks.DayFormat)
	if _, err := env.Engine.AddDocument(env.Ctx, domain.Document{
		EntityType: "material", EntityID: m.ID, Name: "SDS", DocType: "safety_data_sheet", ExpiryDate: &expired,
	}, "tester"); err != nil {
		t.Fatal(err)
	}

	// pending override
	if _, err := env.Engine.RequestOverride(env.Ctx, engine.OverrideRequestOptions{
		CheckKey: "material_safety_docs_expired", EntityType: "material", EntityID: m.ID, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}

	items := env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{})
	byType := map[string][]queue.Item{}
	for _, it := range items {
		byType[it.Type] = append(byType[it.Type], it)
	}

	docItems := byType[queue.TypeDocumentExpiry]
	if len(docItems) != 1 {
		t.Fatalf("expected 1 document expiry item, got %+v", byType)
	}
	if !docItems[0].IsOverdue || !strings.HasPrefix(docItems[0].IssueDescription, "EXPIRED: ") {
		t.Fatalf("expired document item: %+v", docItems[0])
	}
	if docItems[0].EntityName != "Citric Acid" {
		t.Fatalf("entity name not joined: %+v", docItems[0])
	}

	if len(byType[queue.TypeOverrideRequest]) != 1 {
		t.Fatalf("expected pending override item, got %+v", byType)
	}

	// scores sorted descending
	for i := 1; i < len(items); i++ {
		if items[i].PriorityScore > items[i-1].PriorityScore {
			t.Fatalf("items not sorted at %d: %+v", i, items)
		}
	}

	summary := env.Engine.WorkQueueSummary(env.Ctx)
	if summary.Total != len(items) {
		t.Fatalf("summary total %d, want %d", summary.Total, len(items))
	}
	if summary.Overdue == 0 {
		t.Fatalf("expired document must count as overdue")
	}
}

func TestWorkQueueMissingDocumentsPerRequirement(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Citric Acid", "Ingredients")

	for _, req := range []domain.DocumentRequirement{
		{ID: "req-spec", EntityType: "material", Name: "Specification Sheet", IsActive: true},
		{ID: "req-halal", EntityType: "material", Name: "Halal Certificate", IsActive: true},
		{ID: "req-pack", EntityType: "material", Name: "Packaging Spec", IsActive: true,
			ApplicableCategories: []string{"Packaging"}},
	} {
		if err := env.Engine.Repo.UpsertRequirement(env.Ctx, req); err != nil {
			t.Fatal(err)
		}
	}

	items := env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeMissingDocument}})
	if len(items) != 2 {
		t.Fatalf("one item per applicable unmet requirement, got %d: %+v", len(items), items)
	}
	seen := map[string]bool{}
	for _, it := range items {
		if seen[it.ID] {
			t.Fatalf("duplicate item id %s", it.ID)
		}
		seen[it.ID] = true
	}

	// a document tagged with the requirement id clears exactly that item
	if _, err := env.Engine.AddDocument(env.Ctx, domain.Document{
		EntityType: "material", EntityID: m.ID, Name: "spec-v1.pdf", RequirementID: strp("req-spec"),
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeMissingDocument}})
	if len(items) != 1 || !strings.HasSuffix(items[0].ID, ":req-halal") {
		t.Fatalf("expected only the halal requirement to remain: %+v", items)
	}

	// a name-matched document without requirement linkage does not clear the
	// queue item even though the check rule would accept it
	if _, err := env.Engine.AddDocument(env.Ctx, domain.Document{
		EntityType: "material", EntityID: m.ID, Name: "Halal Certificate",
	}, "tester"); err != nil {
		t.Fatal(err)
	}
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeMissingDocument}})
	if len(items) != 1 {
		t.Fatalf("untagged upload must not clear the queue item: %+v", items)
	}
}

func TestWorkQueueStaleDraftsAndSupplierReviews(t *testing.T) {
	env := newTestEnv(t)

	// a fresh draft is not stale
	env.createMaterial(t, "Fresh", "Packaging")
	items := env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeStaleDraft}})
	if len(items) != 0 {
		t.Fatalf("fresh draft must not be stale: %+v", items)
	}

	// age the draft beyond the threshold by shifting the clock
	env.Engine.Now = func() time.Time { return testNow.AddDate(0, 0, 31) }
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeStaleDraft}})
	if len(items) != 1 {
		t.Fatalf("expected stale draft, got %+v", items)
	}
	if items[0].DaysUntilDue != nil {
		t.Fatalf("stale drafts have no due date: %+v", items[0])
	}

	env.Engine.Now = func() time.Time { return testNow }
	review := testNow.AddDate(0, 0, 10).Format(checks.DayFormat)
	if _, err := env.Engine.CreateSupplier(env.Ctx, engine.SupplierCreateOptions{
		Name: "Acme", NextReviewDate: review, ActorID: "tester",
	}); err != nil {
		t.Fatal(err)
	}
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeSupplierReview}})
	if len(items) != 1 {
		t.Fatalf("expected supplier review item: %+v", items)
	}
	if items[0].DaysUntilDue == nil || *items[0].DaysUntilDue != 10 {
		t.Fatalf("review due in 10 days: %+v", items[0])
	}
}

func TestWorkQueueConditionalExpiryAndFollowUps(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Crate", "Packaging")
	s := env.createApprovedSupplier(t, "Acme Crates")
	if err := env.Engine.Repo.LinkSupplier(env.Ctx, m.ID, s.ID, false); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ConditionalApproveMaterial(env.Ctx, m.ID, "tester"); err != nil {
		t.Fatal(err)
	}

	// 90-day expiry is outside the 45-day lookahead
	items := env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeConditionalExpiry}})
	if len(items) != 0 {
		t.Fatalf("expiry beyond lookahead must not surface: %+v", items)
	}

	// move the clock so the expiry is 5 days out
	env.Engine.Now = func() time.Time { return testNow.AddDate(0, 0, 85) }
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeConditionalExpiry}})
	if len(items) != 1 {
		t.Fatalf("expected conditional expiry item: %+v", items)
	}
	if items[0].DaysUntilDue == nil || *items[0].DaysUntilDue != 5 {
		t.Fatalf("days until due: %+v", items[0])
	}

	// approved override whose follow-up has arrived is always overdue work
	env.Engine.Now = func() time.Time { return testNow }
	o, err := env.Engine.RequestOverride(env.Ctx, engine.OverrideRequestOptions{
		CheckKey: "material_gl_account_missing", EntityType: "material", EntityID: m.ID, ActorID: "tester",
	})
	if err != nil {
		t.Fatal(err)
	}
	followUp := testNow.Format(checks.DayFormat)
	if _, err := env.Engine.DecideOverride(env.Ctx, o.ID, true, followUp, "approver"); err != nil {
		t.Fatal(err)
	}
	items = env.Engine.BuildWorkQueue(env.Ctx, queue.Filters{Types: []string{queue.TypeOverrideFollowUp}})
	if len(items) != 1 || !items[0].IsOverdue {
		t.Fatalf("due follow-up must be overdue: %+v", items)
	}
}

func TestEventsAppended(t *testing.T) {
	env := newTestEnv(t)
	m := env.createMaterial(t, "Crate", "Packaging")
	if _, err := env.Engine.RejectMaterial(env.Ctx, m.ID, "tester", "wrong spec"); err != nil {
		t.Fatal(err)
	}
	events, err := env.Engine.Repo.ListEvents(env.Ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	types := map[string]bool{}
	for _, ev := range events {
		types[ev.Type] = true
	}
	if !types["material.created"] || !types["material.rejected"] {
		t.Fatalf("missing audit events: %+v", types)
	}
}

func strp(s string) *string { return &s }
