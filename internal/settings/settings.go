// Package settings resolves tunable engine parameters from the backing store
// into one typed struct per request. Every value has a hard-coded default;
// a missing or unparseable row is never an error.
package settings

import (
	"context"
	"strconv"
	"strings"
)

// Recognized setting keys.
const (
	KeyDocumentExpiryWarningDays    = "document_expiry_warning_days"
	KeyWorkQueueLookaheadDays       = "work_queue_lookahead_days"
	KeyStaleDraftThresholdDays      = "stale_draft_threshold_days"
	KeyConditionalDurationMaterials = "conditional_duration_materials"
	KeyConditionalDurationSuppliers = "conditional_duration_suppliers"
)

// Defaults, applied when a setting row is absent.
const (
	DefaultDocumentExpiryWarningDays    = 30
	DefaultWorkQueueLookaheadDays       = 45
	DefaultStaleDraftThresholdDays      = 30
	DefaultConditionalDurationMaterials = 90
	DefaultConditionalDurationSuppliers = 180
)

// Getter fetches one raw setting value. Implementations return ok=false when
// no row exists.
type Getter interface {
	GetSetting(ctx context.Context, key string) (value string, ok bool, err error)
}

// Settings is the typed per-request parameter set.
type Settings struct {
	DocumentExpiryWarningDays    int
	WorkQueueLookaheadDays       int
	StaleDraftThresholdDays      int
	ConditionalDurationMaterials int
	ConditionalDurationSuppliers int

	getter Getter
}

// Default returns the built-in parameter set.
func Default() Settings {
	return Settings{
		DocumentExpiryWarningDays:    DefaultDocumentExpiryWarningDays,
		WorkQueueLookaheadDays:       DefaultWorkQueueLookaheadDays,
		StaleDraftThresholdDays:      DefaultStaleDraftThresholdDays,
		ConditionalDurationMaterials: DefaultConditionalDurationMaterials,
		ConditionalDurationSuppliers: DefaultConditionalDurationSuppliers,
	}
}

// Resolve reads all recognized settings once. Store errors for individual
// keys degrade to the default value for that key.
func Resolve(ctx context.Context, g Getter) Settings {
	s := Default()
	s.getter = g
	if g == nil {
		return s
	}
	s.DocumentExpiryWarningDays = intSetting(ctx, g, KeyDocumentExpiryWarningDays, s.DocumentExpiryWarningDays)
	s.WorkQueueLookaheadDays = intSetting(ctx, g, KeyWorkQueueLookaheadDays, s.WorkQueueLookaheadDays)
	s.StaleDraftThresholdDays = intSetting(ctx, g, KeyStaleDraftThresholdDays, s.StaleDraftThresholdDays)
	s.ConditionalDurationMaterials = intSetting(ctx, g, KeyConditionalDurationMaterials, s.ConditionalDurationMaterials)
	s.ConditionalDurationSuppliers = intSetting(ctx, g, KeyConditionalDurationSuppliers, s.ConditionalDurationSuppliers)
	return s
}

// ConditionalDurationDays returns the conditional-approval duration for an
// entity kind, honoring a per-category override row such as
// "conditional_duration_materials.Ingredients" when present.
func (s Settings) ConditionalDurationDays(ctx context.Context, entityType, category string) int {
	base := s.ConditionalDurationMaterials
	key := KeyConditionalDurationMaterials
	if entityType == "supplier" {
		base = s.ConditionalDurationSuppliers
		key = KeyConditionalDurationSuppliers
	}
	if s.getter == nil || strings.TrimSpace(category) == "" {
		return base
	}
	return intSetting(ctx, s.getter, key+"."+category, base)
}

func intSetting(ctx context.Context, g Getter, key string, fallback int) int {
	raw, ok, err := g.GetSetting(ctx, key)
	if err != nil || !ok {
		return fallback
	}
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || v < 0 {
		return fallback
	}
	return v
}
