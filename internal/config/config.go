package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"qualgate/internal/checks"
)

// Config models qualgate.yml: the check-definition catalog and setting seeds
// imported into the store on init.
type Config struct {
	Catalog struct {
		Checks []CheckSeed `yaml:"checks"`
	} `yaml:"catalog"`
	Settings map[string]string `yaml:"settings,omitempty"`
}

// CheckSeed is one catalog entry. Empty categories means the check applies to
// every material category.
type CheckSeed struct {
	Key         string   `yaml:"key"`
	Tier        string   `yaml:"tier"`
	EntityType  string   `yaml:"entity_type"`
	Categories  []string `yaml:"categories,omitempty"`
	SortOrder   int      `yaml:"sort_order"`
	Description string   `yaml:"description,omitempty"`
	Disabled    bool     `yaml:"disabled,omitempty"`
}

var validTiers = map[string]bool{
	checks.TierCritical:    true,
	checks.TierImportant:   true,
	checks.TierRecommended: true,
}

// Validate ensures the catalog meets required structure.
func (c *Config) Validate() error {
	if len(c.Catalog.Checks) == 0 {
		return fmt.Errorf("config.catalog.checks is required")
	}
	seen := map[string]bool{}
	for _, chk := range c.Catalog.Checks {
		if chk.Key == "" {
			return fmt.Errorf("catalog contains a check without a key")
		}
		if seen[chk.Key] {
			return fmt.Errorf("duplicate check key %s", chk.Key)
		}
		seen[chk.Key] = true
		if !validTiers[chk.Tier] {
			return fmt.Errorf("check %s has invalid tier %q", chk.Key, chk.Tier)
		}
		if chk.EntityType == "" {
			return fmt.Errorf("check %s missing entity_type", chk.Key)
		}
		for _, cat := range chk.Categories {
			if cat == "" {
				return fmt.Errorf("check %s has empty category entry", chk.Key)
			}
		}
	}
	return nil
}

// Definitions converts catalog seeds to evaluation definitions.
func (c *Config) Definitions() []checks.Definition {
	defs := make([]checks.Definition, 0, len(c.Catalog.Checks))
	for _, chk := range c.Catalog.Checks {
		defs = append(defs, checks.Definition{
			Key:                  chk.Key,
			Tier:                 chk.Tier,
			EntityType:           chk.EntityType,
			ApplicableCategories: chk.Categories,
			IsActive:             !chk.Disabled,
			SortOrder:            chk.SortOrder,
			Description:          chk.Description,
		})
	}
	return defs
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "qualgate.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; run qg init or import with qg defs import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the built-in catalog.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `catalog:
  checks:
    - key: material_no_approved_supplier
      tier: critical
      entity_type: material
      sort_order: 10
      description: "At least one linked supplier must be approved"

    - key: material_manufacturer_rejected
      tier: critical
      entity_type: material
      sort_order: 20
      description: "No linked manufacturer may be rejected"

    - key: material_required_docs_missing
      tier: critical
      entity_type: material
      sort_order: 30
      description: "All category document requirements must be satisfied"

    - key: material_safety_docs_expired
      tier: critical
      entity_type: material
      sort_order: 40
      description: "Safety documents must not be expired"

    - key: material_coa_limits_missing
      tier: critical
      entity_type: material
      sort_order: 50
      description: "CoA-required materials need at least one bounded limit"

    - key: material_docs_expiring_soon
      tier: important
      entity_type: material
      sort_order: 60
      description: "Documents expiring inside the warning window"

    - key: material_gl_account_missing
      tier: important
      entity_type: material
      sort_order: 70
      description: "A GL account must be assigned"

    - key: material_haccp_incomplete
      tier: important
      entity_type: material
      sort_order: 80
      categories: [Ingredients, Additives, Processing Aids]
      description: "HACCP process step and hazard analysis required"

    - key: material_storage_temp_missing
      tier: important
      entity_type: material
      sort_order: 90
      categories: [Ingredients, Additives]
      description: "Storage temperature range required"

    - key: material_country_of_origin_missing
      tier: recommended
      entity_type: material
      sort_order: 100
      description: "Country of origin should be recorded"

    - key: material_fraud_score_review
      tier: recommended
      entity_type: material
      sort_order: 110
      categories: [Ingredients]
      description: "High fraud scores should be reviewed"

    - key: material_purchase_unit_missing
      tier: recommended
      entity_type: material
      sort_order: 120
      description: "A default purchase unit should be configured"

settings:
  document_expiry_warning_days: "30"
  work_queue_lookahead_days: "45"
  stale_draft_threshold_days: "30"
  conditional_duration_materials: "90"
  conditional_duration_suppliers: "180"
`
