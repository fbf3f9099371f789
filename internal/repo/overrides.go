package repo

import (
	"context"
	"database/sql"

	"qualgate/internal/domain"
)

const overrideCols = `id,check_key,entity_type,entity_id,status,COALESCE(reason,''),requested_by,requested_at,decided_at,follow_up_date,resolved_at`

func scanOverride(row rowScanner) (domain.OverrideRequest, error) {
	var o domain.OverrideRequest
	err := row.Scan(&o.ID, &o.CheckKey, &o.EntityType, &o.EntityID, &o.Status, &o.Reason,
		&o.RequestedBy, &o.RequestedAt, &o.DecidedAt, &o.FollowUpDate, &o.ResolvedAt)
	if err == sql.ErrNoRows {
		return o, ErrNotFound
	}
	return o, err
}

func (r Repo) InsertOverrideTx(ctx context.Context, tx *sql.Tx, o domain.OverrideRequest) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO override_requests(id,check_key,entity_type,entity_id,status,reason,requested_by,requested_at,decided_at,follow_up_date,resolved_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.CheckKey, o.EntityType, o.EntityID, o.Status, nullable(o.Reason),
		o.RequestedBy, o.RequestedAt, o.DecidedAt, o.FollowUpDate, o.ResolvedAt)
	return err
}

func (r Repo) GetOverride(ctx context.Context, id string) (domain.OverrideRequest, error) {
	return scanOverride(r.DB.QueryRowContext(ctx, `SELECT `+overrideCols+` FROM override_requests WHERE id=?`, id))
}

func (r Repo) DecideOverrideTx(ctx context.Context, tx *sql.Tx, id, status, decidedAt string, followUpDate *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE override_requests SET status=?, decided_at=?, follow_up_date=? WHERE id=? AND status=?`,
		status, decidedAt, followUpDate, id, domain.OverridePending)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ResolveOverrideTx(ctx context.Context, tx *sql.Tx, id, resolvedAt string) error {
	res, err := tx.ExecContext(ctx, `UPDATE override_requests SET resolved_at=? WHERE id=? AND status=? AND resolved_at IS NULL`,
		resolvedAt, id, domain.OverrideApproved)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) ListOverrides(ctx context.Context, status string) ([]domain.OverrideRequest, error) {
	query := `SELECT ` + overrideCols + ` FROM override_requests`
	var args []any
	if status != "" {
		query += ` WHERE status=?`
		args = append(args, status)
	}
	query += ` ORDER BY requested_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.OverrideRequest
	for rows.Next() {
		o, err := scanOverride(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, o)
	}
	return res, rows.Err()
}
