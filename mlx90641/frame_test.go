// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90641

import (
	"testing"

	"github.com/chewxy/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegionMean_exact(t *testing.T) {
	// A corner block of identical values must average to exactly that
	// value, no float drift.
	var m TemperatureMap
	for r := 0; r < 4; r++ {
		for c := 0; c < 4; c++ {
			m[r*Cols+c] = 12.5
		}
	}
	assert.Equal(t, float32(12.5), regionTopLeft.mean(&m))
	// The other corners saw only zeros.
	assert.Equal(t, float32(0), regionTopRight.mean(&m))
}

func TestRegionMean_placement(t *testing.T) {
	// Each region must read its own block, not a transposed or shifted
	// one. Encode the position into the value.
	var m TemperatureMap
	for r := 0; r < Rows; r++ {
		for c := 0; c < Cols; c++ {
			m[r*Cols+c] = float32(r*100 + c)
		}
	}
	// Mean of rows r0..r0+3, cols c0..c0+3 is (r0+1.5)*100 + c0 + 1.5.
	assert.Equal(t, float32(151.5), regionTopLeft.mean(&m))
	assert.Equal(t, float32(159.5), regionTopRight.mean(&m))
	assert.Equal(t, float32(1351.5), regionBottomLeft.mean(&m))
	assert.Equal(t, float32(1359.5), regionBottomRight.mean(&m))
	assert.Equal(t, float32(557.5), DefaultCenter().mean(&m))
}

func TestRegionMean_nanPoisons(t *testing.T) {
	var m TemperatureMap
	m[0] = math32.NaN()
	assert.True(t, math32.IsNaN(regionTopLeft.mean(&m)))
	assert.False(t, math32.IsNaN(regionTopRight.mean(&m)))
}

func TestRegionValidate(t *testing.T) {
	require.NoError(t, DefaultCenter().validate())
	assert.Error(t, Region{Row: 0, Col: 0, Height: 0, Width: 4}.validate())
	assert.Error(t, Region{Row: 13, Col: 0, Height: 4, Width: 4}.validate())
	assert.Error(t, Region{Row: 0, Col: 9, Height: 4, Width: 4}.validate())
	assert.Error(t, Region{Row: -1, Col: 0, Height: 4, Width: 4}.validate())
}

func TestSpread(t *testing.T) {
	r := RegionAverages{TopLeft: -10, TopRight: -12, BottomLeft: -9.5, BottomRight: -14, Center: -20}
	// Center does not participate; the spread is over the corners.
	assert.Equal(t, float32(4.5), r.Spread())
}
