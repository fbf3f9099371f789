package settings_test

import (
	"context"
	"errors"
	"testing"

	"qualgate/internal/settings"
)

type mapGetter map[string]string

func (m mapGetter) GetSetting(_ context.Context, key string) (string, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

type failingGetter struct{}

func (failingGetter) GetSetting(context.Context, string) (string, bool, error) {
	return "", false, errors.New("store unavailable")
}

func TestDefaults(t *testing.T) {
	s := settings.Default()
	if s.DocumentExpiryWarningDays != 30 {
		t.Errorf("warning days = %d", s.DocumentExpiryWarningDays)
	}
	if s.WorkQueueLookaheadDays != 45 {
		t.Errorf("lookahead days = %d", s.WorkQueueLookaheadDays)
	}
	if s.StaleDraftThresholdDays != 30 {
		t.Errorf("stale threshold = %d", s.StaleDraftThresholdDays)
	}
	if s.ConditionalDurationMaterials != 90 || s.ConditionalDurationSuppliers != 180 {
		t.Errorf("conditional durations = %d/%d", s.ConditionalDurationMaterials, s.ConditionalDurationSuppliers)
	}
}

func TestResolveOverrides(t *testing.T) {
	ctx := context.Background()
	s := settings.Resolve(ctx, mapGetter{
		settings.KeyDocumentExpiryWarningDays: "14",
		settings.KeyWorkQueueLookaheadDays:    " 60 ",
	})
	if s.DocumentExpiryWarningDays != 14 {
		t.Errorf("warning days = %d, want 14", s.DocumentExpiryWarningDays)
	}
	if s.WorkQueueLookaheadDays != 60 {
		t.Errorf("lookahead days = %d, want 60", s.WorkQueueLookaheadDays)
	}
	if s.StaleDraftThresholdDays != 30 {
		t.Errorf("stale threshold = %d, want default 30", s.StaleDraftThresholdDays)
	}
}

func TestResolveDegradesToDefaults(t *testing.T) {
	ctx := context.Background()

	cases := map[string]settings.Getter{
		"nil getter":    nil,
		"failing store": failingGetter{},
		"garbage value": mapGetter{settings.KeyDocumentExpiryWarningDays: "soon"},
		"negative":      mapGetter{settings.KeyDocumentExpiryWarningDays: "-5"},
	}
	for name, g := range cases {
		s := settings.Resolve(ctx, g)
		if s.DocumentExpiryWarningDays != 30 {
			t.Errorf("%s: warning days = %d, want 30", name, s.DocumentExpiryWarningDays)
		}
	}
}

func TestConditionalDurationDays(t *testing.T) {
	ctx := context.Background()
	g := mapGetter{
		settings.KeyConditionalDurationMaterials:                  "90",
		settings.KeyConditionalDurationMaterials + ".Ingredients": "30",
		settings.KeyConditionalDurationSuppliers:                  "120",
	}
	s := settings.Resolve(ctx, g)

	if d := s.ConditionalDurationDays(ctx, "material", "Ingredients"); d != 30 {
		t.Errorf("category override = %d, want 30", d)
	}
	if d := s.ConditionalDurationDays(ctx, "material", "Packaging"); d != 90 {
		t.Errorf("unlisted category = %d, want 90", d)
	}
	if d := s.ConditionalDurationDays(ctx, "material", ""); d != 90 {
		t.Errorf("empty category = %d, want 90", d)
	}
	if d := s.ConditionalDurationDays(ctx, "supplier", "Ingredients"); d != 120 {
		t.Errorf("supplier duration = %d, want 120", d)
	}
}

func TestConditionalDurationWithoutGetter(t *testing.T) {
	s := settings.Default()
	if d := s.ConditionalDurationDays(context.Background(), "material", "Ingredients"); d != 90 {
		t.Errorf("duration = %d, want 90", d)
	}
	if d := s.ConditionalDurationDays(context.Background(), "supplier", ""); d != 180 {
		t.Errorf("supplier duration = %d, want 180", d)
	}
}
