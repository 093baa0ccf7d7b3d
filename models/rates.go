package models

import (
	"fmt"
	"math"
)

// Rate is one zone's make rate together with the evidence behind it.
// A zone nobody shot from is undefined, which is a different thing from a
// zone that was attempted and never made (a real 0.0). Callers must check
// Defined before trusting Value.
type Rate struct {
	Makes    int `json:"makes"`
	Attempts int `json:"attempts"`
}

// Defined reports whether the zone has any observations
func (r Rate) Defined() bool {
	return r.Attempts > 0
}

// Value returns the make rate in [0,1], or NaN when the zone is undefined
func (r Rate) Value() float64 {
	if !r.Defined() {
		return math.NaN()
	}
	return float64(r.Makes) / float64(r.Attempts)
}

// ValueOrNil returns the rate as a pointer for JSON payloads, nil when undefined
func (r Rate) ValueOrNil() *float64 {
	if !r.Defined() {
		return nil
	}
	v := r.Value()
	return &v
}

// RateTable maps zone index 0..K-1 to that zone's make rate for one
// population (player, league, or opponent defense)
type RateTable []Rate

// ZoneRates builds a rate table from zone-labeled outcomes. zones[i] is the
// zone index of shot i and made[i] its result; k is the model's zone count.
func ZoneRates(zones []int, made []bool, k int) (RateTable, error) {
	if len(zones) != len(made) {
		return nil, fmt.Errorf("zone rates: %d zone labels for %d outcomes", len(zones), len(made))
	}
	if k < 1 {
		return nil, fmt.Errorf("zone rates: invalid zone count %d", k)
	}

	table := make(RateTable, k)
	for i, z := range zones {
		if z < 0 || z >= k {
			return nil, fmt.Errorf("zone rates: zone label %d outside 0..%d", z, k-1)
		}
		table[z].Attempts++
		if made[i] {
			table[z].Makes++
		}
	}
	return table, nil
}

// AdjustmentFactor is one zone's defensive multiplier. Undefined means the
// league gave no usable baseline for the zone.
type AdjustmentFactor struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
}

// ValueOrNil returns the factor as a pointer for JSON payloads, nil when undefined
func (f AdjustmentFactor) ValueOrNil() *float64 {
	if !f.Defined {
		return nil
	}
	v := f.Value
	return &v
}

// AdjustmentVector holds one AdjustmentFactor per zone
type AdjustmentVector []AdjustmentFactor

// ComputeAdjustment derives per-zone defensive factors as opponent rate over
// league rate. A zone where either rate is undefined, or where the league
// rate is zero, yields an undefined factor.
func ComputeAdjustment(opponent, league RateTable) (AdjustmentVector, error) {
	if len(opponent) != len(league) {
		return nil, fmt.Errorf("adjustment: opponent table has %d zones, league has %d", len(opponent), len(league))
	}

	adj := make(AdjustmentVector, len(league))
	for z := range league {
		if !opponent[z].Defined() || !league[z].Defined() {
			continue
		}
		lg := league[z].Value()
		if lg == 0 {
			continue
		}
		adj[z] = AdjustmentFactor{Value: opponent[z].Value() / lg, Defined: true}
	}
	return adj, nil
}

// UnitAdjustment returns a vector of k defined factors of exactly 1,
// used when no opponent context is requested
func UnitAdjustment(k int) AdjustmentVector {
	adj := make(AdjustmentVector, k)
	for z := range adj {
		adj[z] = AdjustmentFactor{Value: 1, Defined: true}
	}
	return adj
}

// EffectiveProbability blends a shot's make probability across zones:
// the dot product of the player's adjusted per-zone rates with the shot's
// zone-membership probabilities. Fallbacks at undefined entries:
//   - undefined adjustment: no defensive information, the player's raw rate
//     is used unadjusted
//   - undefined player rate: the zone contributes nothing to the blend
//
// The blend is clamped to [0,1]; an adjustment above 1 can push a high rate
// past 1 and the Bernoulli draw needs a valid probability. The returned bool
// reports whether clamping occurred.
func EffectiveProbability(player RateTable, adj AdjustmentVector, membership []float64) (float64, bool) {
	p := 0.0
	for z, m := range membership {
		if z >= len(player) || !player[z].Defined() {
			continue
		}
		rate := player[z].Value()
		if z < len(adj) && adj[z].Defined {
			rate *= adj[z].Value
		}
		p += m * rate
	}

	clamped := p < 0 || p > 1
	p = math.Max(0, math.Min(1, p))
	return p, clamped
}
