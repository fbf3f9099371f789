package repo

import (
	"context"

	"qualgate/internal/domain"
)

// OverrideWithEntity joins an override request with display fields of the
// entity it targets.
type OverrideWithEntity struct {
	domain.OverrideRequest
	EntityName     string
	EntityCode     string
	EntityCategory string
}

const overrideEntityJoin = `
FROM override_requests o
LEFT JOIN materials m ON o.entity_type='material' AND m.id=o.entity_id
LEFT JOIN suppliers s ON o.entity_type='supplier' AND s.id=o.entity_id`

const overrideEntityCols = `o.id,o.check_key,o.entity_type,o.entity_id,o.status,COALESCE(o.reason,''),o.requested_by,o.requested_at,o.decided_at,o.follow_up_date,o.resolved_at,
COALESCE(m.name,s.name,''),COALESCE(m.code,s.code,''),COALESCE(m.category,'')`

func (r Repo) collectOverridesWithEntity(ctx context.Context, query string, args ...any) ([]OverrideWithEntity, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []OverrideWithEntity
	for rows.Next() {
		var o OverrideWithEntity
		if err := rows.Scan(&o.ID, &o.CheckKey, &o.EntityType, &o.EntityID, &o.Status, &o.Reason,
			&o.RequestedBy, &o.RequestedAt, &o.DecidedAt, &o.FollowUpDate, &o.ResolvedAt,
			&o.EntityName, &o.EntityCode, &o.EntityCategory); err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}

// ListPendingOverrides returns all pending override requests, oldest first.
func (r Repo) ListPendingOverrides(ctx context.Context) ([]OverrideWithEntity, error) {
	return r.collectOverridesWithEntity(ctx,
		`SELECT `+overrideEntityCols+overrideEntityJoin+`
WHERE o.status=? ORDER BY o.requested_at ASC, o.id ASC`, domain.OverridePending)
}

// ListDueOverrideFollowUps returns approved overrides whose follow-up date
// has arrived and that are not yet resolved.
func (r Repo) ListDueOverrideFollowUps(ctx context.Context, todayDay string) ([]OverrideWithEntity, error) {
	return r.collectOverridesWithEntity(ctx,
		`SELECT `+overrideEntityCols+overrideEntityJoin+`
WHERE o.status=? AND o.resolved_at IS NULL AND o.follow_up_date IS NOT NULL AND o.follow_up_date<=?
ORDER BY o.follow_up_date ASC, o.id ASC`, domain.OverrideApproved, todayDay)
}

// DocumentWithEntity joins a document with display fields of its owner.
type DocumentWithEntity struct {
	domain.Document
	EntityName     string
	EntityCode     string
	EntityCategory string
	EntityStatus   string
}

// ListExpiringDocuments returns non-archived documents of one entity kind
// whose expiry date is on or before the horizon day, expired included.
func (r Repo) ListExpiringDocuments(ctx context.Context, entityType, horizonDay string) ([]DocumentWithEntity, error) {
	query := `SELECT d.id,d.entity_type,d.entity_id,d.name,COALESCE(d.doc_type,''),d.requirement_id,d.expiry_date,d.archived,d.uploaded_at,
COALESCE(m.name,s.name,''),COALESCE(m.code,s.code,''),COALESCE(m.category,''),COALESCE(m.status,s.status,'')
FROM documents d
LEFT JOIN materials m ON d.entity_type='material' AND m.id=d.entity_id
LEFT JOIN suppliers s ON d.entity_type='supplier' AND s.id=d.entity_id
WHERE d.entity_type=? AND d.archived=0 AND d.expiry_date IS NOT NULL AND d.expiry_date<=?
ORDER BY d.expiry_date ASC, d.id ASC`
	rows, err := r.DB.QueryContext(ctx, query, entityType, horizonDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []DocumentWithEntity
	for rows.Next() {
		var d DocumentWithEntity
		if err := rows.Scan(&d.ID, &d.EntityType, &d.EntityID, &d.Name, &d.DocType, &d.RequirementID, &d.ExpiryDate, &d.Archived, &d.UploadedAt,
			&d.EntityName, &d.EntityCode, &d.EntityCategory, &d.EntityStatus); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// ListConditionalExpiringMaterials returns conditional materials whose
// approval expiry falls inside the horizon.
func (r Repo) ListConditionalExpiringMaterials(ctx context.Context, horizonTS string) ([]domain.Material, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+materialCols+` FROM materials
WHERE status=? AND conditional_expires_at IS NOT NULL AND conditional_expires_at<=?
ORDER BY conditional_expires_at ASC, id ASC`, domain.StatusConditional, horizonTS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMaterials(rows)
}

// ListStaleDraftMaterials returns drafts untouched since the cutoff.
func (r Repo) ListStaleDraftMaterials(ctx context.Context, cutoffTS string) ([]domain.Material, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+materialCols+` FROM materials
WHERE status=? AND updated_at<=? ORDER BY updated_at ASC, id ASC`, domain.StatusDraft, cutoffTS)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMaterials(rows)
}

// ListSuppliersDueReview returns suppliers whose next review date falls on or
// before the horizon day.
func (r Repo) ListSuppliersDueReview(ctx context.Context, horizonDay string) ([]domain.Supplier, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+supplierCols+` FROM suppliers
WHERE next_review_date IS NOT NULL AND next_review_date<=? ORDER BY next_review_date ASC, id ASC`, horizonDay)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Supplier
	for rows.Next() {
		s, err := scanSupplier(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
