package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"qualgate/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const materialCols = `id,name,COALESCE(code,''),COALESCE(category,''),status,coa_required,gl_account_id,haccp_step,haccp_hazard,storage_temp_min,storage_temp_max,fraud_score,country_of_origin,conditional_expires_at,created_at,updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMaterial(row rowScanner) (domain.Material, error) {
	var m domain.Material
	err := row.Scan(&m.ID, &m.Name, &m.Code, &m.Category, &m.Status, &m.CoARequired,
		&m.GLAccountID, &m.HACCPStep, &m.HACCPHazard, &m.StorageTempMin, &m.StorageTempMax,
		&m.FraudScore, &m.CountryOfOrigin, &m.ConditionalExpiresAt, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	return m, err
}

func (r Repo) InsertMaterial(ctx context.Context, m domain.Material) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO materials(id,name,code,category,status,coa_required,gl_account_id,haccp_step,haccp_hazard,storage_temp_min,storage_temp_max,fraud_score,country_of_origin,conditional_expires_at,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Name, nullable(m.Code), nullable(m.Category), m.Status, m.CoARequired,
		m.GLAccountID, m.HACCPStep, m.HACCPHazard, m.StorageTempMin, m.StorageTempMax,
		m.FraudScore, m.CountryOfOrigin, m.ConditionalExpiresAt, m.CreatedAt, m.UpdatedAt)
	return err
}

func (r Repo) GetMaterial(ctx context.Context, id string) (domain.Material, error) {
	return scanMaterial(r.DB.QueryRowContext(ctx, `SELECT `+materialCols+` FROM materials WHERE id=?`, id))
}

// UpdateMaterial rewrites all mutable fields.
func (r Repo) UpdateMaterial(ctx context.Context, m domain.Material) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE materials SET name=?,code=?,category=?,status=?,coa_required=?,gl_account_id=?,haccp_step=?,haccp_hazard=?,storage_temp_min=?,storage_temp_max=?,fraud_score=?,country_of_origin=?,conditional_expires_at=?,updated_at=? WHERE id=?`,
		m.Name, nullable(m.Code), nullable(m.Category), m.Status, m.CoARequired,
		m.GLAccountID, m.HACCPStep, m.HACCPHazard, m.StorageTempMin, m.StorageTempMax,
		m.FraudScore, m.CountryOfOrigin, m.ConditionalExpiresAt, m.UpdatedAt, m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetMaterialStatusTx updates status and conditional expiry inside a
// transaction so the audit event commits atomically with the transition.
func (r Repo) SetMaterialStatusTx(ctx context.Context, tx *sql.Tx, id, status string, conditionalExpiresAt *string, updatedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE materials SET status=?, conditional_expires_at=?, updated_at=? WHERE id=?`,
		status, conditionalExpiresAt, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMaterials returns materials, optionally filtered to a status set.
func (r Repo) ListMaterials(ctx context.Context, statuses ...string) ([]domain.Material, error) {
	query := `SELECT ` + materialCols + ` FROM materials`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectMaterials(rows)
}

func collectMaterials(rows *sql.Rows) ([]domain.Material, error) {
	var res []domain.Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

const supplierCols = `id,name,COALESCE(code,''),status,next_review_date,created_at,updated_at`

func scanSupplier(row rowScanner) (domain.Supplier, error) {
	var s domain.Supplier
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.Status, &s.NextReviewDate, &s.CreatedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return s, ErrNotFound
	}
	return s, err
}

func (r Repo) InsertSupplier(ctx context.Context, s domain.Supplier) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO suppliers(id,name,code,status,next_review_date,created_at,updated_at) VALUES (?,?,?,?,?,?,?)`,
		s.ID, s.Name, nullable(s.Code), s.Status, s.NextReviewDate, s.CreatedAt, s.UpdatedAt)
	return err
}

func (r Repo) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	return scanSupplier(r.DB.QueryRowContext(ctx, `SELECT `+supplierCols+` FROM suppliers WHERE id=?`, id))
}

func (r Repo) UpdateSupplier(ctx context.Context, s domain.Supplier) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE suppliers SET name=?,code=?,status=?,next_review_date=?,updated_at=? WHERE id=?`,
		s.Name, nullable(s.Code), s.Status, s.NextReviewDate, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListSuppliers(ctx context.Context, statuses ...string) ([]domain.Supplier, error) {
	query := `SELECT ` + supplierCols + ` FROM suppliers`
	var args []any
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + placeholders(len(statuses)) + `)`
		for _, s := range statuses {
			args = append(args, s)
		}
	}
	query += ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
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

// LinkSupplier attaches a supplier to a material, replacing an existing link.
func (r Repo) LinkSupplier(ctx context.Context, materialID, supplierID string, isManufacturer bool) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO material_suppliers(material_id,supplier_id,is_manufacturer) VALUES (?,?,?)
ON CONFLICT(material_id,supplier_id) DO UPDATE SET is_manufacturer=excluded.is_manufacturer`,
		materialID, supplierID, isManufacturer)
	return err
}

func (r Repo) UnlinkSupplier(ctx context.Context, materialID, supplierID string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM material_suppliers WHERE material_id=? AND supplier_id=?`, materialID, supplierID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSupplierLinks returns the material's supplier links joined with the
// supplier's current status.
func (r Repo) ListSupplierLinks(ctx context.Context, materialID string) ([]domain.SupplierLink, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT ms.material_id, ms.supplier_id, s.name, s.status, ms.is_manufacturer
FROM material_suppliers ms JOIN suppliers s ON s.id = ms.supplier_id
WHERE ms.material_id=? ORDER BY s.name ASC`, materialID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SupplierLink
	for rows.Next() {
		var l domain.SupplierLink
		if err := rows.Scan(&l.MaterialID, &l.SupplierID, &l.SupplierName, &l.SupplierStatus, &l.IsManufacturer); err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) ListEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	query := `SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, limit)
	}
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
