// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package skynodetest implements fake sensor sources so the node can run
// without hardware.
package skynodetest

import (
	"math/rand"
	"time"

	"github.com/chewxy/math32"

	"github.com/mzajic/go-skynode/mlx90641"
	"github.com/mzajic/go-skynode/sht4x"
	"github.com/mzajic/go-skynode/tsl2591"
)

// Light samples the photometric sensor. This interface can be mocked.
type Light interface {
	Sample() (tsl2591.Sample, error)
	Gain() tsl2591.Gain
	IntegrationTime() tsl2591.IntegrationTime
	SetTuning(th tsl2591.Thresholds, coolDown time.Duration)
}

// Thermal reads the thermal array. This interface can be mocked.
type Thermal interface {
	Read() (mlx90641.Measurement, error)
	SetCenter(r mlx90641.Region) error
}

// Env senses ambient temperature and humidity. This interface can be
// mocked.
type Env interface {
	Sense() (sht4x.Env, error)
}

// LightFake is a fake for tsl2591.Dev. It renders a slow day/night swing
// with a little noise.
type LightFake struct {
	rand  *rand.Rand
	phase float64
}

// NewLight returns a fake photometric source.
func NewLight() *LightFake {
	return &LightFake{rand: rand.New(rand.NewSource(0))}
}

func (l *LightFake) Sample() (tsl2591.Sample, error) {
	l.phase += 0.01
	base := 12000 + 8000*math32.Sin(float32(l.phase))
	full := uint16(base + float32(l.rand.Intn(200)))
	ir := full / 4
	s := tsl2591.Sample{
		Full:        full,
		IR:          ir,
		FullAvg:     full,
		IRAvg:       ir,
		Gain:        tsl2591.GainMed,
		Integration: tsl2591.Integ300ms,
		Time:        time.Now(),
	}
	s.VIS, s.Valid = tsl2591.Normalize(s.FullAvg, s.IRAvg, s.Gain, s.Integration)
	return s, nil
}

func (l *LightFake) Gain() tsl2591.Gain {
	return tsl2591.GainMed
}

func (l *LightFake) IntegrationTime() tsl2591.IntegrationTime {
	return tsl2591.Integ300ms
}

func (l *LightFake) SetTuning(th tsl2591.Thresholds, coolDown time.Duration) {
}

// ThermalFake is a fake for mlx90641.Dev: a cold clear-sky background
// with a few warm drifting blobs standing in for clouds.
type ThermalFake struct {
	rand   *rand.Rand
	center mlx90641.Region
	blobs  []blob
	frames int
}

type blob struct {
	intensity float32
	row       float32
	col       float32
}

// NewThermal returns a fake thermal source.
func NewThermal() *ThermalFake {
	t := &ThermalFake{
		rand:   rand.New(rand.NewSource(0)),
		center: mlx90641.DefaultCenter(),
	}
	t.blobs = make([]blob, 3)
	for i := range t.blobs {
		t.blobs[i].intensity = float32(t.rand.NormFloat64()*5 + 15)
		t.blobs[i].row = float32(t.rand.NormFloat64()*3 + 8)
		t.blobs[i].col = float32(t.rand.NormFloat64()*2 + 6)
	}
	return t
}

func (t *ThermalFake) Read() (mlx90641.Measurement, error) {
	for i := range t.blobs {
		t.blobs[i].row += float32(t.rand.NormFloat64() * 0.2)
		t.blobs[i].col += float32(t.rand.NormFloat64() * 0.2)
	}
	m := mlx90641.Measurement{
		Vdd:   3.3,
		Ta:    10,
		Valid: true,
		Time:  time.Now(),
	}
	for r := 0; r < mlx90641.Rows; r++ {
		for c := 0; c < mlx90641.Cols; c++ {
			v := float32(-25) // clear sky
			for _, b := range t.blobs {
				d := (b.row-float32(r))*(b.row-float32(r)) + (b.col-float32(c))*(b.col-float32(c)) + 1
				v += b.intensity / d
			}
			m.Map[r*mlx90641.Cols+c] = v
			m.Raw[r*mlx90641.Cols+c] = uint16(1000 + r*mlx90641.Cols + c)
		}
	}
	m.Regions = mlx90641.RegionAverages{
		TopLeft:     blockMean(&m.Map, mlx90641.Region{Row: 0, Col: 0, Height: 4, Width: 4}),
		TopRight:    blockMean(&m.Map, mlx90641.Region{Row: 0, Col: mlx90641.Cols - 4, Height: 4, Width: 4}),
		BottomLeft:  blockMean(&m.Map, mlx90641.Region{Row: mlx90641.Rows - 4, Col: 0, Height: 4, Width: 4}),
		BottomRight: blockMean(&m.Map, mlx90641.Region{Row: mlx90641.Rows - 4, Col: mlx90641.Cols - 4, Height: 4, Width: 4}),
		Center:      blockMean(&m.Map, t.center),
	}
	t.frames++
	return m, nil
}

func (t *ThermalFake) SetCenter(r mlx90641.Region) error {
	t.center = r
	return nil
}

// EnvFake is a fake for sht4x.Dev.
type EnvFake struct {
	rand *rand.Rand
}

// NewEnv returns a fake ambient source.
func NewEnv() *EnvFake {
	return &EnvFake{rand: rand.New(rand.NewSource(0))}
}

func (e *EnvFake) Sense() (sht4x.Env, error) {
	t := float32(10 + e.rand.NormFloat64())
	rh := float32(60 + e.rand.NormFloat64()*5)
	return sht4x.Env{
		Temperature: t,
		Humidity:    rh,
		DewPoint:    sht4x.DewPoint(t, rh),
		Time:        time.Now(),
	}, nil
}

func blockMean(m *mlx90641.TemperatureMap, r mlx90641.Region) float32 {
	sum := float32(0)
	for row := r.Row; row < r.Row+r.Height; row++ {
		for col := r.Col; col < r.Col+r.Width; col++ {
			sum += m.At(row, col)
		}
	}
	return sum / float32(r.Height*r.Width)
}
