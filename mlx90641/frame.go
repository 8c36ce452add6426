// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90641

import (
	"fmt"

	"github.com/chewxy/math32"
)

// Pixel grid geometry. Pixels are stored row-major, index r*Cols+c.
const (
	Rows   = 16
	Cols   = 12
	Pixels = Rows * Cols
)

// Frame is one raw readout of the pixel RAM, ECC bits already stripped.
type Frame [Pixels]uint16

// TemperatureMap holds compensated per-pixel temperatures in °C. Pixels
// whose compensation does not produce a finite value are NaN.
type TemperatureMap [Pixels]float32

// At returns the temperature at a grid position.
func (m *TemperatureMap) At(row, col int) float32 {
	return m[row*Cols+col]
}

// Region is a rectangular pixel block.
type Region struct {
	Row    int `yaml:"row"`
	Col    int `yaml:"col"`
	Height int `yaml:"height"`
	Width  int `yaml:"width"`
}

func (r Region) String() string {
	return fmt.Sprintf("rows %d-%d, cols %d-%d", r.Row, r.Row+r.Height-1, r.Col, r.Col+r.Width-1)
}

func (r Region) validate() error {
	if r.Height <= 0 || r.Width <= 0 {
		return fmt.Errorf("mlx90641: empty region %s", r)
	}
	if r.Row < 0 || r.Col < 0 || r.Row+r.Height > Rows || r.Col+r.Width > Cols {
		return fmt.Errorf("mlx90641: region %s exceeds the %dx%d grid", r, Rows, Cols)
	}
	return nil
}

// mean averages the region's compensated temperatures. A NaN member
// poisons the average, which is the desired reporting for a region with
// a broken pixel.
func (r Region) mean(m *TemperatureMap) float32 {
	sum := float32(0)
	for row := r.Row; row < r.Row+r.Height; row++ {
		for col := r.Col; col < r.Col+r.Width; col++ {
			sum += m.At(row, col)
		}
	}
	return sum / float32(r.Height*r.Width)
}

// The four fixed corner blocks. Only the center block is configurable;
// the grid corners are what the mount points at by construction.
var (
	regionTopLeft     = Region{Row: 0, Col: 0, Height: 4, Width: 4}
	regionTopRight    = Region{Row: 0, Col: Cols - 4, Height: 4, Width: 4}
	regionBottomLeft  = Region{Row: Rows - 4, Col: 0, Height: 4, Width: 4}
	regionBottomRight = Region{Row: Rows - 4, Col: Cols - 4, Height: 4, Width: 4}
)

// DefaultCenter is the interior block averaged as the zenith reading.
func DefaultCenter() Region {
	return Region{Row: 4, Col: 6, Height: 4, Width: 4}
}

// RegionAverages are the five spatial aggregates used for cloud
// detection: the sky corners and the zenith.
type RegionAverages struct {
	TopLeft     float32
	TopRight    float32
	BottomLeft  float32
	BottomRight float32
	Center      float32
}

// Spread returns the difference between the warmest and coldest corner,
// a crude clear-sky uniformity indicator.
func (r RegionAverages) Spread() float32 {
	min := r.TopLeft
	max := r.TopLeft
	for _, v := range []float32{r.TopRight, r.BottomLeft, r.BottomRight} {
		min = math32.Min(min, v)
		max = math32.Max(max, v)
	}
	return max - min
}

func invalidMap() TemperatureMap {
	var m TemperatureMap
	nan := math32.NaN()
	for i := range m {
		m[i] = nan
	}
	return m
}
