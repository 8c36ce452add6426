// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tsl2591

// Thresholds parameterize the auto-ranging decision ladder over raw
// full-channel counts. All values may be updated at runtime.
type Thresholds struct {
	// Saturation to Extreme is the regular-saturation band; above Extreme
	// the controller bails out aggressively.
	Saturation uint16
	Extreme    uint16
	// WindowHigh/WindowLow bound the target measurement window.
	WindowHigh uint16
	WindowLow  uint16
}

// DefaultThresholds returns the tuning the node ships with.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Saturation: 32000,
		Extreme:    35000,
		WindowHigh: 30000,
		WindowLow:  1500,
	}
}

// setting is a gain/integration pair proposed by the rule ladder.
type setting struct {
	gain  Gain
	integ IntegrationTime
}

// rule is one guarded step of the decision ladder. Conditions are
// disjoint raw-count ranges; gating by the probe mode happens inside
// apply so the tie-break order stays auditable.
type rule struct {
	name  string
	match func(raw uint16, th Thresholds) bool
	apply func(mode AdjustMode, cur setting) setting
}

// controlRules is evaluated in priority order; the first matching rule
// decides the step.
var controlRules = []rule{
	{
		name: "extreme-saturation",
		match: func(raw uint16, th Thresholds) bool {
			return raw > th.Extreme
		},
		apply: func(mode AdjustMode, cur setting) setting {
			next := cur
			if mode.touchesGain() && cur.gain != GainLow {
				next.gain = cur.gain.skipDown()
			}
			if mode.touchesIntegration() && cur.integ != Integ100ms {
				next.integ = cur.integ.skipDown()
			}
			return next
		},
	},
	{
		name: "saturation",
		match: func(raw uint16, th Thresholds) bool {
			return raw > th.Saturation
		},
		apply: func(mode AdjustMode, cur setting) setting {
			if !mode.touchesGain() {
				return cur
			}
			// Parallel single-step reduction on both axes.
			next := cur
			if cur.gain != GainLow {
				next.gain = cur.gain.down()
			}
			if cur.integ != Integ100ms {
				next.integ = cur.integ.down()
			}
			return next
		},
	},
	{
		name: "above-window",
		match: func(raw uint16, th Thresholds) bool {
			return raw > th.WindowHigh
		},
		apply: func(mode AdjustMode, cur setting) setting {
			// Shorten exposure first; only at minimum integration fall back
			// to dropping gain.
			next := cur
			if cur.integ != Integ100ms {
				next.integ = cur.integ.down()
			} else if cur.gain != GainLow {
				next.gain = cur.gain.down()
			}
			return next
		},
	},
	{
		name: "below-window",
		match: func(raw uint16, th Thresholds) bool {
			return raw < th.WindowLow
		},
		apply: func(mode AdjustMode, cur setting) setting {
			next := cur
			if cur.integ != Integ600ms {
				next.integ = cur.integ.up()
			} else if cur.gain != GainMax {
				next.gain = cur.gain.up()
			}
			return next
		},
	},
}

// evaluate runs the ladder and returns the proposed setting. If no rule
// fires the current setting is returned unchanged.
func evaluate(raw uint16, th Thresholds, mode AdjustMode, cur setting) setting {
	for _, r := range controlRules {
		if r.match(raw, th) {
			return r.apply(mode, cur)
		}
	}
	return cur
}
