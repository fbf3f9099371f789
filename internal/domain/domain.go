package domain

// Material statuses.
const (
	StatusDraft       = "draft"
	StatusPending     = "pending"
	StatusApproved    = "approved"
	StatusConditional = "conditional"
	StatusRejected    = "rejected"
)

type Material struct {
	ID                   string   `json:"id"`
	Name                 string   `json:"name"`
	Code                 string   `json:"code,omitempty"`
	Category             string   `json:"category,omitempty"`
	Status               string   `json:"status" enum:"draft,pending,approved,conditional,rejected"`
	CoARequired          bool     `json:"coa_required"`
	GLAccountID          *string  `json:"gl_account_id,omitempty"`
	HACCPStep            *string  `json:"haccp_step,omitempty"`
	HACCPHazard          *string  `json:"haccp_hazard,omitempty"`
	StorageTempMin       *float64 `json:"storage_temp_min,omitempty"`
	StorageTempMax       *float64 `json:"storage_temp_max,omitempty"`
	FraudScore           *float64 `json:"fraud_score,omitempty"`
	CountryOfOrigin      *string  `json:"country_of_origin,omitempty"`
	ConditionalExpiresAt *string  `json:"conditional_expires_at,omitempty" format:"date-time"`
	CreatedAt            string   `json:"created_at" format:"date-time"`
	UpdatedAt            string   `json:"updated_at" format:"date-time"`
}

type Supplier struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Code           string  `json:"code,omitempty"`
	Status         string  `json:"status" enum:"draft,pending,approved,conditional,rejected"`
	NextReviewDate *string `json:"next_review_date,omitempty" format:"date"`
	CreatedAt      string  `json:"created_at" format:"date-time"`
	UpdatedAt      string  `json:"updated_at" format:"date-time"`
}

// SupplierLink joins a material to a supplier, carrying the link-level
// manufacturer flag and the supplier's current approval status.
type SupplierLink struct {
	MaterialID     string `json:"material_id"`
	SupplierID     string `json:"supplier_id"`
	SupplierName   string `json:"supplier_name"`
	SupplierStatus string `json:"supplier_status"`
	IsManufacturer bool   `json:"is_manufacturer"`
}

type Document struct {
	ID            string  `json:"id"`
	EntityType    string  `json:"entity_type" enum:"material,supplier"`
	EntityID      string  `json:"entity_id"`
	Name          string  `json:"name"`
	DocType       string  `json:"doc_type,omitempty"`
	RequirementID *string `json:"requirement_id,omitempty"`
	ExpiryDate    *string `json:"expiry_date,omitempty" format:"date"`
	Archived      bool    `json:"archived"`
	UploadedAt    string  `json:"uploaded_at" format:"date-time"`
}

type DocumentRequirement struct {
	ID                   string   `json:"id"`
	EntityType           string   `json:"entity_type" enum:"material,supplier"`
	Name                 string   `json:"name"`
	DocType              string   `json:"doc_type,omitempty"`
	ApplicableCategories []string `json:"applicable_categories,omitempty"`
	IsActive             bool     `json:"is_active"`
}

// CoALimit is a certificate-of-analysis numeric bound for one parameter.
// A row with both bounds nil is not a defined limit.
type CoALimit struct {
	ID         string   `json:"id"`
	MaterialID string   `json:"material_id"`
	Parameter  string   `json:"parameter"`
	MinValue   *float64 `json:"min_value,omitempty"`
	MaxValue   *float64 `json:"max_value,omitempty"`
	Unit       string   `json:"unit,omitempty"`
}

type PurchaseUnit struct {
	ID               string  `json:"id"`
	MaterialID       string  `json:"material_id"`
	Unit             string  `json:"unit"`
	ConversionFactor float64 `json:"conversion_factor"`
	IsDefault        bool    `json:"is_default"`
}

// Override request statuses.
const (
	OverridePending  = "pending"
	OverrideApproved = "approved"
	OverrideRejected = "rejected"
)

// OverrideRequest asks to waive a failing check for one entity.
type OverrideRequest struct {
	ID           string  `json:"id"`
	CheckKey     string  `json:"check_key"`
	EntityType   string  `json:"entity_type" enum:"material,supplier"`
	EntityID     string  `json:"entity_id"`
	Status       string  `json:"status" enum:"pending,approved,rejected"`
	Reason       string  `json:"reason,omitempty"`
	RequestedBy  string  `json:"requested_by"`
	RequestedAt  string  `json:"requested_at" format:"date-time"`
	DecidedAt    *string `json:"decided_at,omitempty" format:"date-time"`
	FollowUpDate *string `json:"follow_up_date,omitempty" format:"date"`
	ResolvedAt   *string `json:"resolved_at,omitempty" format:"date-time"`
}

type Setting struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	UpdatedAt string `json:"updated_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
