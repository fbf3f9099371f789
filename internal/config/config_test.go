package config_test

import (
	"strings"
	"testing"

	"qualgate/internal/checks"
	"qualgate/internal/config"
)

func TestDefaultCatalog(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default catalog invalid: %v", err)
	}
	if got := len(cfg.Catalog.Checks); got != 12 {
		t.Fatalf("default catalog has %d checks, want 12", got)
	}
	tiers := map[string]int{}
	for _, chk := range cfg.Catalog.Checks {
		tiers[chk.Tier]++
		if chk.EntityType != "material" {
			t.Errorf("check %s entity_type = %q", chk.Key, chk.EntityType)
		}
	}
	if tiers[checks.TierCritical] != 5 || tiers[checks.TierImportant] != 4 || tiers[checks.TierRecommended] != 3 {
		t.Fatalf("tier counts = %v", tiers)
	}
	if cfg.Settings["document_expiry_warning_days"] != "30" {
		t.Errorf("seed settings missing expiry warning")
	}
}

func TestDefinitionsMapping(t *testing.T) {
	cfg := config.Default()
	defs := cfg.Definitions()
	byKey := map[string]checks.Definition{}
	for _, d := range defs {
		byKey[d.Key] = d
	}

	haccp, ok := byKey["material_haccp_incomplete"]
	if !ok {
		t.Fatal("material_haccp_incomplete not in definitions")
	}
	if len(haccp.ApplicableCategories) != 3 || haccp.ApplicableCategories[0] != "Ingredients" {
		t.Errorf("haccp categories = %v", haccp.ApplicableCategories)
	}
	if haccp.Tier != checks.TierImportant {
		t.Errorf("haccp tier = %s", haccp.Tier)
	}

	universal := byKey["material_gl_account_missing"]
	if len(universal.ApplicableCategories) != 0 {
		t.Errorf("gl_account categories = %v, want universal", universal.ApplicableCategories)
	}
	for _, d := range defs {
		if !d.IsActive {
			t.Errorf("default check %s should be active", d.Key)
		}
	}
}

func TestFromYAMLErrors(t *testing.T) {
	cases := map[string]string{
		"not yaml":       "catalog: [",
		"empty catalog":  "catalog:\n  checks: []\n",
		"missing key":    "catalog:\n  checks:\n    - tier: critical\n      entity_type: material\n",
		"bad tier":       "catalog:\n  checks:\n    - key: a\n      tier: severe\n      entity_type: material\n",
		"no entity type": "catalog:\n  checks:\n    - key: a\n      tier: critical\n",
		"duplicate key":  "catalog:\n  checks:\n    - key: a\n      tier: critical\n      entity_type: material\n    - key: a\n      tier: important\n      entity_type: material\n",
		"empty category": "catalog:\n  checks:\n    - key: a\n      tier: critical\n      entity_type: material\n      categories: [\"\"]\n",
	}
	for name, yml := range cases {
		if _, err := config.FromYAML([]byte(yml)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestFromYAMLDisabledCheck(t *testing.T) {
	cfg, err := config.FromYAML([]byte(`catalog:
  checks:
    - key: custom_check
      tier: recommended
      entity_type: material
      disabled: true
`))
	if err != nil {
		t.Fatal(err)
	}
	defs := cfg.Definitions()
	if len(defs) != 1 || defs[0].IsActive {
		t.Fatalf("disabled seed must produce inactive definition: %+v", defs)
	}
}

func TestGenerateDefaultRoundTrips(t *testing.T) {
	yml := config.GenerateDefault()
	if !strings.Contains(yml, "material_no_approved_supplier") {
		t.Fatal("template missing catalog entries")
	}
	if _, err := config.FromYAML([]byte(yml)); err != nil {
		t.Fatalf("generated template must parse: %v", err)
	}
}

func TestPath(t *testing.T) {
	if got := config.Path("/tmp/ws"); got != "/tmp/ws/qualgate.yml" {
		t.Errorf("path = %s", got)
	}
	if got := config.Path(""); got != "qualgate.yml" {
		t.Errorf("empty workspace path = %s", got)
	}
}
