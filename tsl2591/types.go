// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tsl2591

import "time"

// Gain is the analog gain level of the sensor. Levels are ordered;
// regular transitions move to an adjacent level, the emergency
// saturation path may skip one.
type Gain uint8

// Valid values for Gain.
const (
	GainLow  Gain = 0 // 1×
	GainMed  Gain = 1 // 25×
	GainHigh Gain = 2 // 428×
	GainMax  Gain = 3 // 9876×
)

// Multiplier returns the amplification factor used for normalization.
func (g Gain) Multiplier() float32 {
	switch g {
	case GainLow:
		return 1
	case GainMed:
		return 25
	case GainHigh:
		return 428
	case GainMax:
		return 9876
	default:
		return 1
	}
}

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "1x"
	case GainMed:
		return "25x"
	case GainHigh:
		return "428x"
	case GainMax:
		return "9876x"
	default:
		return "unknown"
	}
}

// up moves one level toward GainMax.
func (g Gain) up() Gain {
	if g >= GainMax {
		return GainMax
	}
	return g + 1
}

// down moves one level toward GainLow.
func (g Gain) down() Gain {
	if g <= GainLow {
		return GainLow
	}
	return g - 1
}

// skipDown drops aggressively, skipping one intermediate level.
// MAX→MED, HIGH→LOW, MED→LOW.
func (g Gain) skipDown() Gain {
	switch g {
	case GainMax:
		return GainMed
	case GainHigh, GainMed:
		return GainLow
	default:
		return GainLow
	}
}

// IntegrationTime is the exposure duration, six discrete steps of 100 ms.
type IntegrationTime uint8

// Valid values for IntegrationTime.
const (
	Integ100ms IntegrationTime = iota
	Integ200ms
	Integ300ms
	Integ400ms
	Integ500ms
	Integ600ms
)

// Milliseconds returns the duration as a float for normalization math.
func (t IntegrationTime) Milliseconds() float32 {
	return float32(t+1) * 100
}

func (t IntegrationTime) Duration() time.Duration {
	return time.Duration(t+1) * 100 * time.Millisecond
}

func (t IntegrationTime) String() string {
	switch t {
	case Integ100ms:
		return "100ms"
	case Integ200ms:
		return "200ms"
	case Integ300ms:
		return "300ms"
	case Integ400ms:
		return "400ms"
	case Integ500ms:
		return "500ms"
	case Integ600ms:
		return "600ms"
	default:
		return "unknown"
	}
}

func (t IntegrationTime) up() IntegrationTime {
	if t >= Integ600ms {
		return Integ600ms
	}
	return t + 1
}

func (t IntegrationTime) down() IntegrationTime {
	if t <= Integ100ms {
		return Integ100ms
	}
	return t - 1
}

// skipDown shortens aggressively, skipping up to two levels.
// 600→300, 500→200, 400→100, 300→100, 200→100.
func (t IntegrationTime) skipDown() IntegrationTime {
	switch t {
	case Integ600ms:
		return Integ300ms
	case Integ500ms:
		return Integ200ms
	default:
		return Integ100ms
	}
}

// AdjustMode selects which axis the controller probes next. When the raw
// signal is static the controller alternates GAIN and INTEGRATION to
// find out which axis still has an effect; when it moves, both axes are
// adjusted together.
type AdjustMode uint8

// Valid values for AdjustMode.
const (
	AdjustNone AdjustMode = iota
	AdjustGain
	AdjustIntegration
	AdjustBoth
)

func (m AdjustMode) String() string {
	switch m {
	case AdjustNone:
		return "none"
	case AdjustGain:
		return "gain"
	case AdjustIntegration:
		return "integration"
	case AdjustBoth:
		return "both"
	default:
		return "unknown"
	}
}

func (m AdjustMode) touchesGain() bool {
	return m == AdjustGain || m == AdjustBoth
}

func (m AdjustMode) touchesIntegration() bool {
	return m == AdjustIntegration || m == AdjustBoth
}
