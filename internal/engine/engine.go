package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"qualgate/internal/checks"
	"qualgate/internal/config"
	"qualgate/internal/domain"
	"qualgate/internal/events"
	"qualgate/internal/repo"
	"qualgate/internal/settings"
)

// Gate guard errors, mapped to 422 by the API layer.
var (
	ErrBlocked     = errors.New("approval blocked by critical check failures")
	ErrNotEligible = errors.New("material not eligible for full approval")
)

type Engine struct {
	DB     *sql.DB
	Repo   repo.Repo
	Events events.Writer
	Config *config.Config
	Now    func() time.Time
	Logger *log.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	return Engine{
		DB:     db,
		Repo:   repo.Repo{DB: db},
		Events: events.Writer{DB: db},
		Config: cfg,
		Now:    time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Settings resolves the typed parameter set from the store.
func (e Engine) Settings(ctx context.Context) settings.Settings {
	return settings.Resolve(ctx, e.Repo)
}

// SeedCatalog imports the config catalog into the store: check definitions
// are upserted, setting seeds are written only where no row exists yet.
// Runs on every workspace open, so it stays idempotent and emits no events.
func (e Engine) SeedCatalog(ctx context.Context) error {
	if e.Config == nil {
		return errors.New("config not loaded")
	}
	for _, d := range e.Config.Definitions() {
		if err := e.Repo.UpsertCheckDefinition(ctx, d); err != nil {
			return fmt.Errorf("seed check %s: %w", d.Key, err)
		}
	}
	for key, value := range e.Config.Settings {
		if _, ok, err := e.Repo.GetSetting(ctx, key); err == nil && !ok {
			if err := e.Repo.SetSetting(ctx, key, value); err != nil {
				return fmt.Errorf("seed setting %s: %w", key, err)
			}
		}
	}
	return nil
}

// ImportCatalog upserts definitions and settings from an external catalog.
// Unlike SeedCatalog it overwrites existing setting values.
func (e Engine) ImportCatalog(ctx context.Context, cfg *config.Config, actorID string) error {
	for _, d := range cfg.Definitions() {
		if err := e.Repo.UpsertCheckDefinition(ctx, d); err != nil {
			return fmt.Errorf("import check %s: %w", d.Key, err)
		}
	}
	for key, value := range cfg.Settings {
		if err := e.Repo.SetSetting(ctx, key, value); err != nil {
			return fmt.Errorf("import setting %s: %w", key, err)
		}
	}
	return e.appendEvent(ctx, "catalog.imported", "catalog", "", actorID, events.EventPayload{
		"checks":   len(cfg.Catalog.Checks),
		"settings": len(cfg.Settings),
	})
}

// MaterialCreateOptions are parameters for creating a material.
type MaterialCreateOptions struct {
	ID          string
	Name        string
	Code        string
	Category    string
	CoARequired bool
	ActorID     string
}

func (e Engine) CreateMaterial(ctx context.Context, opts MaterialCreateOptions) (domain.Material, error) {
	if opts.Name == "" {
		return domain.Material{}, errors.New("name is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	m := domain.Material{
		ID:          id,
		Name:        opts.Name,
		Code:        opts.Code,
		Category:    opts.Category,
		Status:      domain.StatusDraft,
		CoARequired: opts.CoARequired,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.Repo.InsertMaterial(ctx, m); err != nil {
		return domain.Material{}, err
	}
	if err := e.appendEvent(ctx, "material.created", "material", m.ID, opts.ActorID, events.EventPayload{"name": m.Name, "status": m.Status}); err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

// UpdateMaterial rewrites a material record and bumps updated_at.
func (e Engine) UpdateMaterial(ctx context.Context, m domain.Material, actorID string) (domain.Material, error) {
	existing, err := e.Repo.GetMaterial(ctx, m.ID)
	if err != nil {
		return domain.Material{}, err
	}
	m.Status = existing.Status
	m.ConditionalExpiresAt = existing.ConditionalExpiresAt
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateMaterial(ctx, m); err != nil {
		return domain.Material{}, err
	}
	if err := e.appendEvent(ctx, "material.updated", "material", m.ID, actorID, events.EventPayload{"name": m.Name}); err != nil {
		return domain.Material{}, err
	}
	return m, nil
}

type SupplierCreateOptions struct {
	ID             string
	Name           string
	Code           string
	NextReviewDate string
	ActorID        string
}

func (e Engine) CreateSupplier(ctx context.Context, opts SupplierCreateOptions) (domain.Supplier, error) {
	if opts.Name == "" {
		return domain.Supplier{}, errors.New("name is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	now := e.nowRFC3339()
	s := domain.Supplier{
		ID:             id,
		Name:           opts.Name,
		Code:           opts.Code,
		Status:         domain.StatusDraft,
		NextReviewDate: optionalString(opts.NextReviewDate),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Repo.InsertSupplier(ctx, s); err != nil {
		return domain.Supplier{}, err
	}
	if err := e.appendEvent(ctx, "supplier.created", "supplier", s.ID, opts.ActorID, events.EventPayload{"name": s.Name}); err != nil {
		return domain.Supplier{}, err
	}
	return s, nil
}

// SetSupplierStatus transitions a supplier's approval status directly.
// Supplier gating runs through the same queue signals rather than the
// material check catalog.
func (e Engine) SetSupplierStatus(ctx context.Context, id, status, actorID string) (domain.Supplier, error) {
	s, err := e.Repo.GetSupplier(ctx, id)
	if err != nil {
		return domain.Supplier{}, err
	}
	s.Status = status
	s.UpdatedAt = e.nowRFC3339()
	if err := e.Repo.UpdateSupplier(ctx, s); err != nil {
		return domain.Supplier{}, err
	}
	if err := e.appendEvent(ctx, "supplier.status", "supplier", s.ID, actorID, events.EventPayload{"status": status}); err != nil {
		return domain.Supplier{}, err
	}
	return s, nil
}

func (e Engine) AddDocument(ctx context.Context, d domain.Document, actorID string) (domain.Document, error) {
	if d.EntityType == "" || d.EntityID == "" || d.Name == "" {
		return domain.Document{}, errors.New("entity_type, entity_id and name required")
	}
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	if d.UploadedAt == "" {
		d.UploadedAt = e.nowRFC3339()
	}
	if err := e.Repo.InsertDocument(ctx, d); err != nil {
		return domain.Document{}, err
	}
	if err := e.appendEvent(ctx, "document.added", "document", d.ID, actorID, events.EventPayload{"name": d.Name, "entity": d.EntityID}); err != nil {
		return domain.Document{}, err
	}
	return d, nil
}

// EvaluateMaterial runs every applicable active check against a material and
// summarizes the approval gate. Results are recomputed on every call.
func (e Engine) EvaluateMaterial(ctx context.Context, materialID string) ([]checks.Result, checks.Summary, error) {
	s := e.Settings(ctx)
	defs, err := e.Repo.ListActiveCheckDefinitions(ctx, "material")
	if err != nil {
		return nil, checks.Summary{}, fmt.Errorf("check definitions: %w", err)
	}
	ec, err := e.Repo.BuildMaterialContext(ctx, materialID, e.now().UTC(), s.DocumentExpiryWarningDays)
	if err != nil {
		return nil, checks.Summary{}, err
	}
	results := checks.Evaluate(defs, ec)
	return results, checks.Summarize(results), nil
}

// ApproveMaterial grants full approval. The gate requires zero critical and
// zero important failures.
func (e Engine) ApproveMaterial(ctx context.Context, materialID, actorID string) (domain.Material, error) {
	_, summary, err := e.EvaluateMaterial(ctx, materialID)
	if err != nil {
		return domain.Material{}, err
	}
	if summary.IsBlocked {
		return domain.Material{}, fmt.Errorf("%w: %d critical failure(s)", ErrBlocked, len(summary.CriticalFailures))
	}
	if !summary.CanFullApprove {
		return domain.Material{}, fmt.Errorf("%w: %d important failure(s)", ErrNotEligible, len(summary.ImportantFailures))
	}
	return e.transitionMaterial(ctx, materialID, domain.StatusApproved, nil, actorID, "material.approved", events.EventPayload{
		"passed_checks": len(summary.Passed),
	})
}

// ConditionalApproveMaterial grants a time-bounded approval. Allowed whenever
// the material is not blocked by a critical failure; the expiry comes from
// the per-category conditional duration setting.
func (e Engine) ConditionalApproveMaterial(ctx context.Context, materialID, actorID string) (domain.Material, error) {
	m, err := e.Repo.GetMaterial(ctx, materialID)
	if err != nil {
		return domain.Material{}, err
	}
	_, summary, err := e.EvaluateMaterial(ctx, materialID)
	if err != nil {
		return domain.Material{}, err
	}
	if !summary.CanConditionalApprove {
		return domain.Material{}, fmt.Errorf("%w: %d critical failure(s)", ErrBlocked, len(summary.CriticalFailures))
	}
	days := e.Settings(ctx).ConditionalDurationDays(ctx, "material", m.Category)
	expiry := e.now().UTC().AddDate(0, 0, days).Format(time.RFC3339)
	return e.transitionMaterial(ctx, materialID, domain.StatusConditional, &expiry, actorID, "material.conditional_approved", events.EventPayload{
		"expires_at":         expiry,
		"important_failures": len(summary.ImportantFailures),
	})
}

func (e Engine) RejectMaterial(ctx context.Context, materialID, actorID, reason string) (domain.Material, error) {
	return e.transitionMaterial(ctx, materialID, domain.StatusRejected, nil, actorID, "material.rejected", events.EventPayload{
		"reason": reason,
	})
}

func (e Engine) transitionMaterial(ctx context.Context, materialID, status string, conditionalExpiresAt *string, actorID, eventType string, payload events.EventPayload) (domain.Material, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Material{}, err
	}
	defer tx.Rollback()
	now := e.nowRFC3339()
	if err := e.Repo.SetMaterialStatusTx(ctx, tx, materialID, status, conditionalExpiresAt, now); err != nil {
		return domain.Material{}, err
	}
	if err := e.Events.Append(ctx, tx, eventType, "material", materialID, actorID, payload); err != nil {
		return domain.Material{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Material{}, err
	}
	return e.Repo.GetMaterial(ctx, materialID)
}

// OverrideRequestOptions are parameters for requesting a check override.
type OverrideRequestOptions struct {
	CheckKey   string
	EntityType string
	EntityID   string
	Reason     string
	ActorID    string
}

func (e Engine) RequestOverride(ctx context.Context, opts OverrideRequestOptions) (domain.OverrideRequest, error) {
	if opts.CheckKey == "" || opts.EntityType == "" || opts.EntityID == "" {
		return domain.OverrideRequest{}, errors.New("check_key, entity_type and entity_id required")
	}
	switch opts.EntityType {
	case "material":
		if _, err := e.Repo.GetMaterial(ctx, opts.EntityID); err != nil {
			return domain.OverrideRequest{}, err
		}
	case "supplier":
		if _, err := e.Repo.GetSupplier(ctx, opts.EntityID); err != nil {
			return domain.OverrideRequest{}, err
		}
	default:
		return domain.OverrideRequest{}, fmt.Errorf("unknown entity type %s", opts.EntityType)
	}
	o := domain.OverrideRequest{
		ID:          uuid.New().String(),
		CheckKey:    opts.CheckKey,
		EntityType:  opts.EntityType,
		EntityID:    opts.EntityID,
		Status:      domain.OverridePending,
		Reason:      opts.Reason,
		RequestedBy: opts.ActorID,
		RequestedAt: e.nowRFC3339(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertOverrideTx(ctx, tx, o); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, "override.requested", "override", o.ID, opts.ActorID, events.EventPayload{
		"check_key": o.CheckKey, "entity": o.EntityID,
	}); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OverrideRequest{}, err
	}
	return o, nil
}

// DecideOverride approves or rejects a pending override. Approval without an
// explicit follow-up date defaults to today plus the document warning window.
func (e Engine) DecideOverride(ctx context.Context, id string, approve bool, followUpDate, actorID string) (domain.OverrideRequest, error) {
	status := domain.OverrideRejected
	var followUp *string
	if approve {
		status = domain.OverrideApproved
		if followUpDate == "" {
			days := e.Settings(ctx).DocumentExpiryWarningDays
			followUpDate = e.now().UTC().AddDate(0, 0, days).Format(checks.DayFormat)
		}
		followUp = &followUpDate
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.DecideOverrideTx(ctx, tx, id, status, e.nowRFC3339(), followUp); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, "override.decided", "override", id, actorID, events.EventPayload{
		"status": status,
	}); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OverrideRequest{}, err
	}
	return e.Repo.GetOverride(ctx, id)
}

// ResolveOverrideFollowUp closes out an approved override's follow-up.
func (e Engine) ResolveOverrideFollowUp(ctx context.Context, id, actorID string) (domain.OverrideRequest, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.OverrideRequest{}, err
	}
	defer tx.Rollback()
	if err := e.Repo.ResolveOverrideTx(ctx, tx, id, e.nowRFC3339()); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := e.Events.Append(ctx, tx, "override.resolved", "override", id, actorID, events.EventPayload{}); err != nil {
		return domain.OverrideRequest{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.OverrideRequest{}, err
	}
	return e.Repo.GetOverride(ctx, id)
}

func (e Engine) appendEvent(ctx context.Context, evtType, entityKind, entityID, actorID string, payload events.EventPayload) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Events.Append(ctx, tx, evtType, entityKind, entityID, actorID, payload); err != nil {
		return err
	}
	return tx.Commit()
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
