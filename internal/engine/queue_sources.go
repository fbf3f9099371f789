package engine

import (
	"context"
	"fmt"
	"time"

	"qualgate/internal/checks"
	"qualgate/internal/domain"
	"qualgate/internal/queue"
	"qualgate/internal/repo"
	"qualgate/internal/settings"
)

// BuildWorkQueue aggregates every signal source into one scored, sorted
// queue. A failing source is logged and skipped, the rest still contribute.
func (e Engine) BuildWorkQueue(ctx context.Context, f queue.Filters) []queue.Item {
	s := e.Settings(ctx)
	b := queue.Builder{
		Sources: e.queueSources(s),
		OnSourceError: func(name string, err error) {
			e.logf("work queue source %s failed: %v", name, err)
		},
	}
	return b.Build(ctx, f)
}

// WorkQueueSummary builds the unfiltered queue and summarizes it.
func (e Engine) WorkQueueSummary(ctx context.Context) queue.Summary {
	s := e.Settings(ctx)
	items := e.BuildWorkQueue(ctx, queue.Filters{})
	return queue.Summarize(items, s.WorkQueueLookaheadDays)
}

func (e Engine) queueSources(s settings.Settings) []queue.Source {
	return []queue.Source{
		{Name: "pending_overrides", Fetch: e.pendingOverrideItems},
		{Name: "override_followups", Fetch: e.overrideFollowUpItems},
		{Name: "document_expiry", Fetch: func(ctx context.Context) ([]queue.Item, error) {
			return e.documentExpiryItems(ctx, s.WorkQueueLookaheadDays)
		}},
		{Name: "missing_documents", Fetch: e.missingDocumentItems},
		{Name: "conditional_expiry", Fetch: func(ctx context.Context) ([]queue.Item, error) {
			return e.conditionalExpiryItems(ctx, s.WorkQueueLookaheadDays)
		}},
		{Name: "stale_drafts", Fetch: func(ctx context.Context) ([]queue.Item, error) {
			return e.staleDraftItems(ctx, s.StaleDraftThresholdDays)
		}},
		{Name: "supplier_reviews", Fetch: func(ctx context.Context) ([]queue.Item, error) {
			return e.supplierReviewItems(ctx, s.WorkQueueLookaheadDays)
		}},
	}
}

func (e Engine) today() time.Time {
	return e.now().UTC().Truncate(24 * time.Hour)
}

func (e Engine) pendingOverrideItems(ctx context.Context) ([]queue.Item, error) {
	overrides, err := e.Repo.ListPendingOverrides(ctx)
	if err != nil {
		return nil, err
	}
	today := e.today()
	var items []queue.Item
	for _, o := range overrides {
		var days *int
		if requested, ok := checks.ParseDay(&o.RequestedAt); ok {
			// Age counts against urgency: an old request surfaces as
			// overdue by the days elapsed.
			d := -checks.DaysBetween(today, requested)
			days = &d
		} else if ts, err := time.Parse(time.RFC3339, o.RequestedAt); err == nil {
			d := -checks.DaysBetween(today, ts)
			days = &d
		}
		it := queue.Item{
			ID:               queue.TypeOverrideRequest + ":" + o.ID,
			Type:             queue.TypeOverrideRequest,
			EntityType:       o.EntityType,
			EntityID:         o.EntityID,
			EntityName:       o.EntityName,
			EntityCode:       o.EntityCode,
			IssueDescription: fmt.Sprintf("Override requested for check %s", o.CheckKey),
			DaysUntilDue:     days,
			IsOverdue:        days != nil && *days < 0,
			Category:         o.EntityCategory,
		}
		items = append(items, finishItem(it, ""))
	}
	return items, nil
}

func (e Engine) overrideFollowUpItems(ctx context.Context) ([]queue.Item, error) {
	today := e.today()
	overrides, err := e.Repo.ListDueOverrideFollowUps(ctx, today.Format(checks.DayFormat))
	if err != nil {
		return nil, err
	}
	var items []queue.Item
	for _, o := range overrides {
		var days *int
		var due string
		if o.FollowUpDate != nil {
			due = *o.FollowUpDate
			if d, ok := checks.ParseDay(o.FollowUpDate); ok {
				n := checks.DaysBetween(today, d)
				days = &n
			}
		}
		it := queue.Item{
			ID:               queue.TypeOverrideFollowUp + ":" + o.ID,
			Type:             queue.TypeOverrideFollowUp,
			EntityType:       o.EntityType,
			EntityID:         o.EntityID,
			EntityName:       o.EntityName,
			EntityCode:       o.EntityCode,
			IssueDescription: fmt.Sprintf("Follow up on approved override for check %s", o.CheckKey),
			DueDate:          due,
			DaysUntilDue:     days,
			IsOverdue:        true,
			Category:         o.EntityCategory,
		}
		items = append(items, finishItem(it, ""))
	}
	return items, nil
}

func (e Engine) documentExpiryItems(ctx context.Context, lookaheadDays int) ([]queue.Item, error) {
	today := e.today()
	horizon := today.AddDate(0, 0, lookaheadDays).Format(checks.DayFormat)
	var items []queue.Item
	for _, entityType := range []string{"material", "supplier"} {
		docs, err := e.Repo.ListExpiringDocuments(ctx, entityType, horizon)
		if err != nil {
			return nil, err
		}
		for _, d := range docs {
			expiry, ok := checks.ParseDay(d.ExpiryDate)
			if !ok {
				continue
			}
			days := checks.DaysBetween(today, expiry)
			desc := fmt.Sprintf("Expiring: %s (%s)", d.Name, *d.ExpiryDate)
			if days < 0 {
				desc = fmt.Sprintf("EXPIRED: %s (%s)", d.Name, *d.ExpiryDate)
			}
			it := queue.Item{
				ID:               queue.TypeDocumentExpiry + ":" + d.ID,
				Type:             queue.TypeDocumentExpiry,
				EntityType:       d.EntityType,
				EntityID:         d.EntityID,
				EntityName:       d.EntityName,
				EntityCode:       d.EntityCode,
				IssueDescription: desc,
				DueDate:          *d.ExpiryDate,
				DaysUntilDue:     &days,
				IsOverdue:        days < 0,
				Category:         d.EntityCategory,
			}
			items = append(items, finishItem(it, d.EntityStatus))
		}
	}
	return items, nil
}

// missingDocumentItems cross-checks active requirements against uploaded
// documents per entity. Matching is by requirement id: a document uploaded
// without its requirement tag still counts as missing here.
func (e Engine) missingDocumentItems(ctx context.Context) ([]queue.Item, error) {
	var items []queue.Item

	materials, err := e.Repo.ListMaterials(ctx, domain.StatusApproved, domain.StatusDraft, domain.StatusConditional)
	if err != nil {
		return nil, err
	}
	matItems, err := e.missingForEntities(ctx, "material", materialRefs(materials))
	if err != nil {
		return nil, err
	}
	items = append(items, matItems...)

	suppliers, err := e.Repo.ListSuppliers(ctx, domain.StatusApproved, domain.StatusDraft, domain.StatusConditional)
	if err != nil {
		return nil, err
	}
	supItems, err := e.missingForEntities(ctx, "supplier", supplierRefs(suppliers))
	if err != nil {
		return nil, err
	}
	items = append(items, supItems...)

	return items, nil
}

type entityRef struct {
	ID       string
	Name     string
	Code     string
	Category string
	Status   string
}

func materialRefs(ms []domain.Material) []entityRef {
	refs := make([]entityRef, 0, len(ms))
	for _, m := range ms {
		refs = append(refs, entityRef{ID: m.ID, Name: m.Name, Code: m.Code, Category: m.Category, Status: m.Status})
	}
	return refs
}

func supplierRefs(ss []domain.Supplier) []entityRef {
	refs := make([]entityRef, 0, len(ss))
	for _, s := range ss {
		refs = append(refs, entityRef{ID: s.ID, Name: s.Name, Code: s.Code, Status: s.Status})
	}
	return refs
}

func (e Engine) missingForEntities(ctx context.Context, entityType string, refs []entityRef) ([]queue.Item, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	reqs, err := e.Repo.ListActiveRequirements(ctx, entityType)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	docs, err := e.Repo.ListActiveDocumentsByEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	covered := make(map[string]bool)
	for _, d := range docs {
		if d.RequirementID != nil {
			covered[d.EntityID+"\x00"+*d.RequirementID] = true
		}
	}
	var items []queue.Item
	for _, ref := range refs {
		for _, req := range reqs {
			if !repo.RequirementApplies(req, ref.Category) {
				continue
			}
			if covered[ref.ID+"\x00"+req.ID] {
				continue
			}
			it := queue.Item{
				ID:               queue.TypeMissingDocument + ":" + ref.ID + ":" + req.ID,
				Type:             queue.TypeMissingDocument,
				EntityType:       entityType,
				EntityID:         ref.ID,
				EntityName:       ref.Name,
				EntityCode:       ref.Code,
				IssueDescription: fmt.Sprintf("Missing required document: %s", req.Name),
				Category:         ref.Category,
			}
			items = append(items, finishItem(it, ref.Status))
		}
	}
	return items, nil
}

func (e Engine) conditionalExpiryItems(ctx context.Context, lookaheadDays int) ([]queue.Item, error) {
	today := e.today()
	horizon := today.AddDate(0, 0, lookaheadDays+1).Format(time.RFC3339)
	materials, err := e.Repo.ListConditionalExpiringMaterials(ctx, horizon)
	if err != nil {
		return nil, err
	}
	var items []queue.Item
	for _, m := range materials {
		var days *int
		var due string
		if m.ConditionalExpiresAt != nil {
			if ts, err := time.Parse(time.RFC3339, *m.ConditionalExpiresAt); err == nil {
				due = ts.UTC().Format(checks.DayFormat)
				n := checks.DaysBetween(today, ts)
				days = &n
			}
		}
		it := queue.Item{
			ID:               queue.TypeConditionalExpiry + ":" + m.ID,
			Type:             queue.TypeConditionalExpiry,
			EntityType:       "material",
			EntityID:         m.ID,
			EntityName:       m.Name,
			EntityCode:       m.Code,
			IssueDescription: "Conditional approval expiring",
			DueDate:          due,
			DaysUntilDue:     days,
			IsOverdue:        days != nil && *days < 0,
			Category:         m.Category,
		}
		items = append(items, finishItem(it, m.Status))
	}
	return items, nil
}

func (e Engine) staleDraftItems(ctx context.Context, thresholdDays int) ([]queue.Item, error) {
	cutoff := e.now().UTC().AddDate(0, 0, -thresholdDays).Format(time.RFC3339)
	materials, err := e.Repo.ListStaleDraftMaterials(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	var items []queue.Item
	for _, m := range materials {
		it := queue.Item{
			ID:               queue.TypeStaleDraft + ":" + m.ID,
			Type:             queue.TypeStaleDraft,
			EntityType:       "material",
			EntityID:         m.ID,
			EntityName:       m.Name,
			EntityCode:       m.Code,
			IssueDescription: fmt.Sprintf("Draft untouched since %s", m.UpdatedAt),
			Category:         m.Category,
		}
		items = append(items, finishItem(it, m.Status))
	}
	return items, nil
}

func (e Engine) supplierReviewItems(ctx context.Context, lookaheadDays int) ([]queue.Item, error) {
	today := e.today()
	horizon := today.AddDate(0, 0, lookaheadDays).Format(checks.DayFormat)
	suppliers, err := e.Repo.ListSuppliersDueReview(ctx, horizon)
	if err != nil {
		return nil, err
	}
	var items []queue.Item
	for _, s := range suppliers {
		var days *int
		var due string
		if s.NextReviewDate != nil {
			due = *s.NextReviewDate
			if d, ok := checks.ParseDay(s.NextReviewDate); ok {
				n := checks.DaysBetween(today, d)
				days = &n
			}
		}
		it := queue.Item{
			ID:               queue.TypeSupplierReview + ":" + s.ID,
			Type:             queue.TypeSupplierReview,
			EntityType:       "supplier",
			EntityID:         s.ID,
			EntityName:       s.Name,
			EntityCode:       s.Code,
			IssueDescription: "Supplier review due",
			DueDate:          due,
			DaysUntilDue:     days,
			IsOverdue:        days != nil && *days < 0,
			Category:         "",
		}
		items = append(items, finishItem(it, s.Status))
	}
	return items, nil
}

func finishItem(it queue.Item, entityStatus string) queue.Item {
	it.PriorityScore, it.Priority = queue.Score(it.Type, it.DaysUntilDue, it.Category, entityStatus)
	return it
}
