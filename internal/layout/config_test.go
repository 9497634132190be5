package layout

import (
	"encoding/json"
	"math"
	"testing"
)

// TestDefaultSimConfig tests the stock force parameterization.
func TestDefaultSimConfig(t *testing.T) {
	cfg := DefaultSimConfig()

	if !cfg.Center.Enabled || cfg.Center.Strength != 1 {
		t.Errorf("Unexpected center defaults: %+v", cfg.Center)
	}
	if !cfg.Link.Enabled || cfg.Link.Iterations != 1 {
		t.Errorf("Unexpected link defaults: %+v", cfg.Link)
	}
	if !cfg.Charge.Enabled || cfg.Charge.Strength != -30 {
		t.Errorf("Unexpected charge defaults: %+v", cfg.Charge)
	}
	if cfg.Charge.Theta != 0.9 || cfg.Charge.DistanceMin != 1 {
		t.Errorf("Unexpected charge approximation defaults: %+v", cfg.Charge)
	}
	if !cfg.Collision.Enabled || cfg.Collision.Strength != 0.7 {
		t.Errorf("Unexpected collision defaults: %+v", cfg.Collision)
	}
	if cfg.Radial.Enabled {
		t.Error("Radial force should default off")
	}

	// alphaDecay is derived so a run cools to alphaMin in ~300 ticks.
	want := 1 - math.Pow(0.001, 1.0/300)
	if math.Abs(cfg.AlphaDecay-want) > 1e-12 {
		t.Errorf("alphaDecay %g, want %g", cfg.AlphaDecay, want)
	}
	if cfg.AlphaMin != 0.001 || cfg.AlphaTarget != 0 {
		t.Errorf("Unexpected cooling defaults: min=%g target=%g", cfg.AlphaMin, cfg.AlphaTarget)
	}
	if cfg.VelocityDecay != 0.4 {
		t.Errorf("velocityDecay %g, want 0.4", cfg.VelocityDecay)
	}
}

// TestConfigPatchApply tests that only the set fields overwrite the config.
func TestConfigPatchApply(t *testing.T) {
	cfg := DefaultSimConfig()
	strength := -80.0
	enabled := false
	iters := 3
	target := 0.3

	patch := ConfigPatch{
		Charge:      &ChargePatch{Strength: &strength},
		Center:      &CenterPatch{Enabled: &enabled},
		Collision:   &CollisionPatch{Iterations: &iters},
		AlphaTarget: &target,
	}
	patch.Apply(&cfg)

	if cfg.Charge.Strength != -80 {
		t.Errorf("Charge strength %g, want -80", cfg.Charge.Strength)
	}
	if cfg.Center.Enabled {
		t.Error("Center should be disabled by the patch")
	}
	if cfg.Collision.Iterations != 3 {
		t.Errorf("Collision iterations %d, want 3", cfg.Collision.Iterations)
	}
	if cfg.AlphaTarget != 0.3 {
		t.Errorf("alphaTarget %g, want 0.3", cfg.AlphaTarget)
	}

	// Untouched fields keep their defaults.
	def := DefaultSimConfig()
	if cfg.Charge.Theta != def.Charge.Theta {
		t.Errorf("Theta changed to %g without a patch", cfg.Charge.Theta)
	}
	if cfg.Center.Strength != def.Center.Strength {
		t.Errorf("Center strength changed to %g without a patch", cfg.Center.Strength)
	}
	if cfg.Link != def.Link {
		t.Errorf("Link config changed without a patch: %+v", cfg.Link)
	}
	if cfg.AlphaMin != def.AlphaMin || cfg.AlphaDecay != def.AlphaDecay {
		t.Error("Cooling parameters changed without a patch")
	}
}

// TestConfigPatchEmpty tests that an empty patch is a no-op.
func TestConfigPatchEmpty(t *testing.T) {
	cfg := DefaultSimConfig()
	ConfigPatch{}.Apply(&cfg)
	if cfg != DefaultSimConfig() {
		t.Errorf("Empty patch mutated the config: %+v", cfg)
	}
}

// TestConfigPatchFromJSON tests the wire shape used by the control API.
func TestConfigPatchFromJSON(t *testing.T) {
	raw := `{"charge":{"strength":-55,"theta":0.5},"radial":{"enabled":true,"radius":120},"alphaMin":0.01}`
	var patch ConfigPatch
	if err := json.Unmarshal([]byte(raw), &patch); err != nil {
		t.Fatalf("Failed to decode patch: %v", err)
	}

	cfg := DefaultSimConfig()
	patch.Apply(&cfg)

	if cfg.Charge.Strength != -55 {
		t.Errorf("Charge strength %g, want -55", cfg.Charge.Strength)
	}
	if cfg.Charge.Theta != 0.5 {
		t.Errorf("Theta %g, want 0.5", cfg.Charge.Theta)
	}
	if !cfg.Radial.Enabled || cfg.Radial.Radius != 120 {
		t.Errorf("Radial not applied: %+v", cfg.Radial)
	}
	if cfg.AlphaMin != 0.01 {
		t.Errorf("alphaMin %g, want 0.01", cfg.AlphaMin)
	}
	// Fields absent from the JSON stay put.
	if cfg.Charge.DistanceMin != 1 {
		t.Errorf("distanceMin changed to %g", cfg.Charge.DistanceMin)
	}
}
