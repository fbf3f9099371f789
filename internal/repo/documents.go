package repo

import (
	"context"
	"database/sql"
	"encoding/json"

	"qualgate/internal/domain"
)

const documentCols = `id,entity_type,entity_id,name,COALESCE(doc_type,''),requirement_id,expiry_date,archived,uploaded_at`

func scanDocument(row rowScanner) (domain.Document, error) {
	var d domain.Document
	err := row.Scan(&d.ID, &d.EntityType, &d.EntityID, &d.Name, &d.DocType, &d.RequirementID, &d.ExpiryDate, &d.Archived, &d.UploadedAt)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) InsertDocument(ctx context.Context, d domain.Document) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO documents(id,entity_type,entity_id,name,doc_type,requirement_id,expiry_date,archived,uploaded_at) VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.EntityType, d.EntityID, d.Name, nullable(d.DocType), d.RequirementID, d.ExpiryDate, d.Archived, d.UploadedAt)
	return err
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return scanDocument(r.DB.QueryRowContext(ctx, `SELECT `+documentCols+` FROM documents WHERE id=?`, id))
}

func (r Repo) ArchiveDocument(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE documents SET archived=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListDocuments returns all documents for one entity, archived included;
// rules decide what archived means for them.
func (r Repo) ListDocuments(ctx context.Context, entityType, entityID string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentCols+` FROM documents WHERE entity_type=? AND entity_id=? ORDER BY uploaded_at ASC, id ASC`,
		entityType, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

// ListActiveDocumentsByEntityType returns every non-archived document of one
// entity kind, in upload order.
func (r Repo) ListActiveDocumentsByEntityType(ctx context.Context, entityType string) ([]domain.Document, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+documentCols+` FROM documents WHERE entity_type=? AND archived=0 ORDER BY uploaded_at ASC, id ASC`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDocuments(rows)
}

func collectDocuments(rows *sql.Rows) ([]domain.Document, error) {
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) UpsertRequirement(ctx context.Context, req domain.DocumentRequirement) error {
	cats, err := json.Marshal(req.ApplicableCategories)
	if err != nil {
		return err
	}
	if req.ApplicableCategories == nil {
		cats = []byte("[]")
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO document_requirements(id,entity_type,name,doc_type,applicable_categories,is_active) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET entity_type=excluded.entity_type, name=excluded.name, doc_type=excluded.doc_type, applicable_categories=excluded.applicable_categories, is_active=excluded.is_active`,
		req.ID, req.EntityType, req.Name, nullable(req.DocType), string(cats), req.IsActive)
	return err
}

// ListActiveRequirements returns active document requirements for one entity
// kind, in catalog order.
func (r Repo) ListActiveRequirements(ctx context.Context, entityType string) ([]domain.DocumentRequirement, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,entity_type,name,COALESCE(doc_type,''),applicable_categories,is_active
FROM document_requirements WHERE entity_type=? AND is_active=1 ORDER BY name ASC, id ASC`, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.DocumentRequirement
	for rows.Next() {
		var req domain.DocumentRequirement
		var cats string
		if err := rows.Scan(&req.ID, &req.EntityType, &req.Name, &req.DocType, &cats, &req.IsActive); err != nil {
			return nil, err
		}
		if cats != "" {
			_ = json.Unmarshal([]byte(cats), &req.ApplicableCategories)
		}
		res = append(res, req)
	}
	return res, rows.Err()
}

func (r Repo) UpsertCoALimit(ctx context.Context, l domain.CoALimit) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO coa_limits(id,material_id,parameter,min_value,max_value,unit) VALUES (?,?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET parameter=excluded.parameter, min_value=excluded.min_value, max_value=excluded.max_value, unit=excluded.unit`,
		l.ID, l.MaterialID, l.Parameter, l.MinValue, l.MaxValue, nullable(l.Unit))
	return err
}

func (r Repo) ListCoALimits(ctx context.Context, materialID string) ([]domain.CoALimit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,material_id,parameter,min_value,max_value,COALESCE(unit,'') FROM coa_limits WHERE material_id=? ORDER BY parameter ASC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CoALimit
	for rows.Next() {
		var l domain.CoALimit
		if err := rows.Scan(&l.ID, &l.MaterialID, &l.Parameter, &l.MinValue, &l.MaxValue, &l.Unit); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpsertPurchaseUnit(ctx context.Context, u domain.PurchaseUnit) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO purchase_units(id,material_id,unit,conversion_factor,is_default) VALUES (?,?,?,?,?)
ON CONFLICT(id) DO UPDATE SET unit=excluded.unit, conversion_factor=excluded.conversion_factor, is_default=excluded.is_default`,
		u.ID, u.MaterialID, u.Unit, u.ConversionFactor, u.IsDefault)
	return err
}

func (r Repo) ListPurchaseUnits(ctx context.Context, materialID string) ([]domain.PurchaseUnit, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,material_id,unit,conversion_factor,is_default FROM purchase_units WHERE material_id=? ORDER BY unit ASC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PurchaseUnit
	for rows.Next() {
		var u domain.PurchaseUnit
		if err := rows.Scan(&u.ID, &u.MaterialID, &u.Unit, &u.ConversionFactor, &u.IsDefault); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	return res, rows.Err()
}
