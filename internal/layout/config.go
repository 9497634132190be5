package layout

import "math"

// =============================================================================
// FORCE CONFIGURATION
// =============================================================================

// CenterConfig steers the layout's centroid toward a fixed point.
type CenterConfig struct {
	Enabled  bool    `json:"enabled"`
	Strength float64 `json:"strength"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// LinkConfig controls the spring force along edges. Per-edge rest distance
// and strength live on the edges themselves.
type LinkConfig struct {
	Enabled    bool `json:"enabled"`
	Iterations int  `json:"iterations"` // relaxation passes per tick
}

// ChargeConfig controls Barnes-Hut many-body repulsion. Negative strength
// repels, positive attracts.
type ChargeConfig struct {
	Enabled     bool    `json:"enabled"`
	Strength    float64 `json:"strength"`
	DistanceMin float64 `json:"distanceMin"` // lower clamp on pair distance
	DistanceMax float64 `json:"distanceMax"` // interaction cutoff, <= 0 means unlimited
	Theta       float64 `json:"theta"`       // approximation accuracy, smaller = more exact
}

// CollisionConfig controls pairwise overlap resolution using node radii.
type CollisionConfig struct {
	Enabled    bool    `json:"enabled"`
	Strength   float64 `json:"strength"`
	Iterations int     `json:"iterations"` // resolution passes per tick
}

// RadialConfig pulls nodes toward a circle of the given radius around a
// center point.
type RadialConfig struct {
	Enabled  bool    `json:"enabled"`
	Strength float64 `json:"strength"`
	Radius   float64 `json:"radius"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

// =============================================================================
// SIMULATION CONFIGURATION
// =============================================================================

// SimConfig is the complete simulation configuration: one sub-config per
// force plus the global annealing parameters. It arrives with init and is
// mutated in place by config patches, never replaced wholesale.
type SimConfig struct {
	Center    CenterConfig    `json:"center"`
	Link      LinkConfig      `json:"link"`
	Charge    ChargeConfig    `json:"charge"`
	Collision CollisionConfig `json:"collision"`
	Radial    RadialConfig    `json:"radial"`

	AlphaDecay    float64 `json:"alphaDecay"`    // cooling rate per tick
	AlphaTarget   float64 `json:"alphaTarget"`   // alpha converges here; > alphaMin keeps it hot
	AlphaMin      float64 `json:"alphaMin"`      // stopping threshold
	VelocityDecay float64 `json:"velocityDecay"` // velocity friction per tick
}

// DefaultSimConfig returns the standard annealing setup: ~300 ticks to
// settle, repulsion and springs on, radial off.
func DefaultSimConfig() SimConfig {
	return SimConfig{
		Center: CenterConfig{
			Enabled:  true,
			Strength: 1,
		},
		Link: LinkConfig{
			Enabled:    true,
			Iterations: 1,
		},
		Charge: ChargeConfig{
			Enabled:     true,
			Strength:    -30,
			DistanceMin: 1,
			DistanceMax: 0, // unlimited
			Theta:       0.9,
		},
		Collision: CollisionConfig{
			Enabled:    true,
			Strength:   0.7,
			Iterations: 1,
		},
		Radial: RadialConfig{
			Enabled:  false,
			Strength: 0.1,
			Radius:   100,
		},
		AlphaDecay:    1 - math.Pow(0.001, 1.0/300),
		AlphaTarget:   0,
		AlphaMin:      0.001,
		VelocityDecay: 0.4,
	}
}

// =============================================================================
// CONFIGURATION PATCHES
// =============================================================================

// Patch types mirror the config types with pointer fields; nil means "leave
// the current value alone". Merging is explicit per named field, never a
// reflective walk over dynamic keys, because patches cross a trust boundary.

type CenterPatch struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

type LinkPatch struct {
	Enabled    *bool `json:"enabled,omitempty"`
	Iterations *int  `json:"iterations,omitempty"`
}

type ChargePatch struct {
	Enabled     *bool    `json:"enabled,omitempty"`
	Strength    *float64 `json:"strength,omitempty"`
	DistanceMin *float64 `json:"distanceMin,omitempty"`
	DistanceMax *float64 `json:"distanceMax,omitempty"`
	Theta       *float64 `json:"theta,omitempty"`
}

type CollisionPatch struct {
	Enabled    *bool    `json:"enabled,omitempty"`
	Strength   *float64 `json:"strength,omitempty"`
	Iterations *int     `json:"iterations,omitempty"`
}

type RadialPatch struct {
	Enabled  *bool    `json:"enabled,omitempty"`
	Strength *float64 `json:"strength,omitempty"`
	Radius   *float64 `json:"radius,omitempty"`
	X        *float64 `json:"x,omitempty"`
	Y        *float64 `json:"y,omitempty"`
}

// ConfigPatch is a partial SimConfig update.
type ConfigPatch struct {
	Center    *CenterPatch    `json:"center,omitempty"`
	Link      *LinkPatch      `json:"link,omitempty"`
	Charge    *ChargePatch    `json:"charge,omitempty"`
	Collision *CollisionPatch `json:"collision,omitempty"`
	Radial    *RadialPatch    `json:"radial,omitempty"`

	AlphaDecay    *float64 `json:"alphaDecay,omitempty"`
	AlphaTarget   *float64 `json:"alphaTarget,omitempty"`
	AlphaMin      *float64 `json:"alphaMin,omitempty"`
	VelocityDecay *float64 `json:"velocityDecay,omitempty"`
}

// Apply merges every set field of the patch into cfg, leaving unset fields
// untouched.
func (p ConfigPatch) Apply(cfg *SimConfig) {
	if p.Center != nil {
		if v := p.Center.Enabled; v != nil {
			cfg.Center.Enabled = *v
		}
		if v := p.Center.Strength; v != nil {
			cfg.Center.Strength = *v
		}
		if v := p.Center.X; v != nil {
			cfg.Center.X = *v
		}
		if v := p.Center.Y; v != nil {
			cfg.Center.Y = *v
		}
	}
	if p.Link != nil {
		if v := p.Link.Enabled; v != nil {
			cfg.Link.Enabled = *v
		}
		if v := p.Link.Iterations; v != nil {
			cfg.Link.Iterations = *v
		}
	}
	if p.Charge != nil {
		if v := p.Charge.Enabled; v != nil {
			cfg.Charge.Enabled = *v
		}
		if v := p.Charge.Strength; v != nil {
			cfg.Charge.Strength = *v
		}
		if v := p.Charge.DistanceMin; v != nil {
			cfg.Charge.DistanceMin = *v
		}
		if v := p.Charge.DistanceMax; v != nil {
			cfg.Charge.DistanceMax = *v
		}
		if v := p.Charge.Theta; v != nil {
			cfg.Charge.Theta = *v
		}
	}
	if p.Collision != nil {
		if v := p.Collision.Enabled; v != nil {
			cfg.Collision.Enabled = *v
		}
		if v := p.Collision.Strength; v != nil {
			cfg.Collision.Strength = *v
		}
		if v := p.Collision.Iterations; v != nil {
			cfg.Collision.Iterations = *v
		}
	}
	if p.Radial != nil {
		if v := p.Radial.Enabled; v != nil {
			cfg.Radial.Enabled = *v
		}
		if v := p.Radial.Strength; v != nil {
			cfg.Radial.Strength = *v
		}
		if v := p.Radial.Radius; v != nil {
			cfg.Radial.Radius = *v
		}
		if v := p.Radial.X; v != nil {
			cfg.Radial.X = *v
		}
		if v := p.Radial.Y; v != nil {
			cfg.Radial.Y = *v
		}
	}
	if p.AlphaDecay != nil {
		cfg.AlphaDecay = *p.AlphaDecay
	}
	if p.AlphaTarget != nil {
		cfg.AlphaTarget = *p.AlphaTarget
	}
	if p.AlphaMin != nil {
		cfg.AlphaMin = *p.AlphaMin
	}
	if p.VelocityDecay != nil {
		cfg.VelocityDecay = *p.VelocityDecay
	}
}
