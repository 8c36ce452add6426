// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tsl2591

import (
	"math"

	"github.com/chewxy/math32"
)

// SQMParams calibrate the sky-quality conversion for one particular
// optical assembly.
type SQMParams struct {
	// OffsetBase anchors the logarithmic scale.
	OffsetBase float32 `yaml:"offset_base"`
	// MagnitudeConst converts between flux ratio and magnitudes,
	// 2.5/ln(10).
	MagnitudeConst float32 `yaml:"magnitude_const"`
	// CalOffset is the per-unit calibration trim.
	CalOffset float32 `yaml:"cal_offset"`
	// LensOffset corrects the lux based conversion for the lens assembly.
	LensOffset float64 `yaml:"lens_offset"`
	// DarkCap is the value reported when the lux reading is effectively
	// zero; darker cannot be resolved.
	DarkCap float64 `yaml:"dark_cap"`
}

// DefaultSQMParams returns the factory calibration.
func DefaultSQMParams() SQMParams {
	return SQMParams{
		OffsetBase:     12.6,
		MagnitudeConst: 1.086,
		CalOffset:      0,
		LensOffset:     8.5265,
		DarkCap:        23.0,
	}
}

// SQM is a sky brightness estimate in magnitudes per square arcsecond,
// with its statistical uncertainty.
type SQM struct {
	// MPSAS is the sky brightness; higher is darker.
	MPSAS float32
	// DMPSAS is the photon-counting uncertainty estimate.
	DMPSAS float32
	// Valid is false when the underlying visible signal was implausible.
	Valid bool
}

// ComputeSQM converts a normalized visible signal into sky brightness.
// visRaw is the un-normalized visible count (full − ir) from which the
// shot-noise uncertainty is estimated.
func ComputeSQM(vis, visRaw float32, p SQMParams) SQM {
	if vis <= 0 || visRaw <= 0 {
		return SQM{}
	}
	return SQM{
		MPSAS:  p.OffsetBase - p.MagnitudeConst*math32.Log(vis) + p.CalOffset,
		DMPSAS: p.MagnitudeConst / math32.Sqrt(visRaw),
		Valid:  true,
	}
}

// LuxToSQM converts an illuminance reading into sky brightness. Readings
// at or below the sensor floor saturate at DarkCap.
func LuxToSQM(lux float64, p SQMParams) float64 {
	if lux <= 1e-9 {
		return p.DarkCap
	}
	v := p.LensOffset - 2.5*math.Log10(lux)
	if v > p.DarkCap {
		return p.DarkCap
	}
	return v
}
