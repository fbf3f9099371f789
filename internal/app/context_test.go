package app_test

import (
	"context"
	"os"
	"testing"

	"qualgate/internal/app"
	"qualgate/internal/config"
)

func TestOpenWithoutConfigFile(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()

	a, err := app.Open(ctx, workspace)
	if err != nil {
		t.Fatalf("open fresh workspace: %v", err)
	}
	defer a.Close()

	if a.Config == nil {
		t.Fatal("config must fall back to built-in defaults")
	}
	defs, err := a.Engine.Repo.ListActiveCheckDefinitions(ctx, "material")
	if err != nil {
		t.Fatalf("list definitions: %v", err)
	}
	if len(defs) != len(config.Default().Catalog.Checks) {
		t.Fatalf("seeded %d definitions, want %d", len(defs), len(config.Default().Catalog.Checks))
	}
}

func TestOpenWithConfigFile(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()
	yml := `catalog:
  checks:
    - key: custom_only_check
      tier: recommended
      entity_type: material
`
	if err := os.WriteFile(config.Path(workspace), []byte(yml), 0o644); err != nil {
		t.Fatal(err)
	}

	a, err := app.Open(ctx, workspace)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()

	defs, err := a.Engine.Repo.ListActiveCheckDefinitions(ctx, "material")
	if err != nil {
		t.Fatalf("list definitions: %v", err)
	}
	if len(defs) != 1 || defs[0].Key != "custom_only_check" {
		t.Fatalf("expected the file catalog to be seeded, got %+v", defs)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	ctx := context.Background()
	workspace := t.TempDir()

	for i := 0; i < 2; i++ {
		a, err := app.Open(ctx, workspace)
		if err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
		a.Close()
	}
}
