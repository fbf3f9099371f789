package server

import (
	"qualgate/internal/checks"
	"qualgate/internal/domain"
	"qualgate/internal/queue"
)

// Request payloads

type CreateMaterialRequest struct {
	ID          *string `json:"id,omitempty"`
	Name        string  `json:"name"`
	Code        *string `json:"code,omitempty"`
	Category    *string `json:"category,omitempty"`
	CoARequired *bool   `json:"coa_required,omitempty"`
}

type UpdateMaterialRequest struct {
	Name            *string  `json:"name,omitempty"`
	Code            *string  `json:"code,omitempty"`
	Category        *string  `json:"category,omitempty"`
	CoARequired     *bool    `json:"coa_required,omitempty"`
	GLAccountID     *string  `json:"gl_account_id,omitempty"`
	HACCPStep       *string  `json:"haccp_step,omitempty"`
	HACCPHazard     *string  `json:"haccp_hazard,omitempty"`
	StorageTempMin  *float64 `json:"storage_temp_min,omitempty"`
	StorageTempMax  *float64 `json:"storage_temp_max,omitempty"`
	FraudScore      *float64 `json:"fraud_score,omitempty"`
	CountryOfOrigin *string  `json:"country_of_origin,omitempty"`
}

type CreateSupplierRequest struct {
	ID             *string `json:"id,omitempty"`
	Name           string  `json:"name"`
	Code           *string `json:"code,omitempty"`
	NextReviewDate *string `json:"next_review_date,omitempty" format:"date"`
}

type SetSupplierStatusRequest struct {
	Status string `json:"status" enum:"draft,pending,approved,conditional,rejected"`
}

type LinkSupplierRequest struct {
	SupplierID     string `json:"supplier_id"`
	IsManufacturer bool   `json:"is_manufacturer,omitempty"`
}

type AddDocumentRequest struct {
	Name          string  `json:"name"`
	DocType       *string `json:"doc_type,omitempty"`
	RequirementID *string `json:"requirement_id,omitempty"`
	ExpiryDate    *string `json:"expiry_date,omitempty" format:"date"`
}

type RejectMaterialRequest struct {
	Reason string `json:"reason,omitempty"`
}

type CreateOverrideRequest struct {
	CheckKey   string `json:"check_key"`
	EntityType string `json:"entity_type" enum:"material,supplier"`
	EntityID   string `json:"entity_id"`
	Reason     string `json:"reason,omitempty"`
}

type DecideOverrideRequest struct {
	Approve      bool    `json:"approve"`
	FollowUpDate *string `json:"follow_up_date,omitempty" format:"date"`
}

type SetSettingRequest struct {
	Value string `json:"value"`
}

type SetDefinitionActiveRequest struct {
	Active bool `json:"active"`
}

type UpsertDefinitionRequest struct {
	Tier                 string   `json:"tier" enum:"critical,important,recommended"`
	EntityType           string   `json:"entity_type" enum:"material,supplier"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	IsActive             bool     `json:"is_active"`
	SortOrder            int      `json:"sort_order,omitempty"`
	Description          string   `json:"description,omitempty"`
}

func (r UpsertDefinitionRequest) definition(key string) checks.Definition {
	return checks.Definition{
		Key:                  key,
		Tier:                 r.Tier,
		EntityType:           r.EntityType,
		ApplicableCategories: r.ApplicableCategories,
		IsActive:             r.IsActive,
		SortOrder:            r.SortOrder,
		Description:          r.Description,
	}
}

// Response payloads

type EvaluationResponse struct {
	MaterialID string          `json:"material_id"`
	Results    []checks.Result `json:"results"`
	Summary    checks.Summary  `json:"summary"`
}

type MaterialDetailResponse struct {
	Material  domain.Material       `json:"material"`
	Suppliers []domain.SupplierLink `json:"suppliers,omitempty"`
	Documents []domain.Document     `json:"documents,omitempty"`
}

type WorkQueueResponse struct {
	Items []queue.Item `json:"items"`
	Total int          `json:"total"`
}

// WorkQueueSummary gives queue.Summary a distinct OpenAPI schema name;
// huma's registry panics when it would share the name "Summary" with
// checks.Summary.
type WorkQueueSummary queue.Summary

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}
