package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"qualgate/internal/checks"
	"qualgate/internal/domain"
)

// UpsertCheckDefinition stores a catalog definition. Definitions are never
// deleted, only deactivated.
func (r Repo) UpsertCheckDefinition(ctx context.Context, d checks.Definition) error {
	cats, err := json.Marshal(d.ApplicableCategories)
	if err != nil {
		return err
	}
	if d.ApplicableCategories == nil {
		cats = []byte("[]")
	}
	_, err = r.DB.ExecContext(ctx, `INSERT INTO check_definitions(key,tier,entity_type,applicable_categories,is_active,sort_order,description) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(key) DO UPDATE SET tier=excluded.tier, entity_type=excluded.entity_type, applicable_categories=excluded.applicable_categories, is_active=excluded.is_active, sort_order=excluded.sort_order, description=excluded.description`,
		d.Key, d.Tier, d.EntityType, string(cats), d.IsActive, d.SortOrder, nullable(d.Description))
	return err
}

func (r Repo) SetCheckDefinitionActive(ctx context.Context, key string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE check_definitions SET is_active=? WHERE key=?`, active, key)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListActiveCheckDefinitions returns active definitions for an entity kind in
// catalog sort order.
func (r Repo) ListActiveCheckDefinitions(ctx context.Context, entityType string) ([]checks.Definition, error) {
	return r.listCheckDefinitions(ctx, entityType, true)
}

// ListCheckDefinitions returns all definitions for an entity kind, inactive
// included.
func (r Repo) ListCheckDefinitions(ctx context.Context, entityType string) ([]checks.Definition, error) {
	return r.listCheckDefinitions(ctx, entityType, false)
}

func (r Repo) listCheckDefinitions(ctx context.Context, entityType string, activeOnly bool) ([]checks.Definition, error) {
	query := `SELECT key,tier,entity_type,applicable_categories,is_active,sort_order,COALESCE(description,'') FROM check_definitions WHERE entity_type=?`
	if activeOnly {
		query += ` AND is_active=1`
	}
	query += ` ORDER BY sort_order ASC, key ASC`
	rows, err := r.DB.QueryContext(ctx, query, entityType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []checks.Definition
	for rows.Next() {
		var d checks.Definition
		var cats string
		if err := rows.Scan(&d.Key, &d.Tier, &d.EntityType, &cats, &d.IsActive, &d.SortOrder, &d.Description); err != nil {
			return nil, err
		}
		if cats != "" {
			_ = json.Unmarshal([]byte(cats), &d.ApplicableCategories)
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

// GetSetting implements settings.Getter. ok is false when no row exists.
func (r Repo) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r Repo) SetSetting(ctx context.Context, key, value string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := r.DB.ExecContext(ctx, `INSERT INTO settings(key,value,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`, key, value, now)
	return err
}

func (r Repo) ListSettings(ctx context.Context) ([]domain.Setting, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT key,value,updated_at FROM settings ORDER BY key ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Setting
	for rows.Next() {
		var s domain.Setting
		if err := rows.Scan(&s.Key, &s.Value, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
