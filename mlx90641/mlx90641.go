// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package mlx90641 drives the node's 16x12 thermal array and owns the
// calibration pipeline: one-time decode of the factory EEPROM image,
// per-frame ambient and supply computation, per-pixel temperature
// compensation, and the spatial region averages used for cloud
// detection.
package mlx90641

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chewxy/math32"

	"github.com/mzajic/go-skynode/regbus"
)

// ErrNoData means the device has not latched a fresh frame yet. Not a
// fault; poll again.
var ErrNoData = errors.New("mlx90641: no new frame available")

// Register and memory map.
const (
	ramBase    = 0x0400
	eepromBase = 0x2400
	regVBE     = 0x0580
	regPTAT    = 0x05A0
	regVDDPix  = 0x05AA
	regControl = 0x800D
)

// Module constant addresses in EEPROM, read individually so the ECC
// bits are stripped.
const (
	eeVDD25     = 0x2426
	eeKVDD      = 0x2427
	eePTAT25Hi  = 0x2428
	eePTAT25Lo  = 0x2429
	eeKtPTAT    = 0x242A
	eeKvPTAT    = 0x242B
	eeAlphaPTAT = 0x242C
)

// Control register: refresh rate 4 Hz, 18-bit resolution; the chip
// select and mode bits are preserved.
const (
	controlKeepMask = 0xFC1F
	controlValue    = 0b100<<5 | 0b10<<2
)

// Opts configures the thermal pipeline.
type Opts struct {
	// Center is the interior block averaged as the zenith reading. The
	// exact block has shifted between hardware revisions, so it is a
	// parameter, not a constant.
	Center Region
}

// DefaultOpts returns the configuration the node ships with.
func DefaultOpts() *Opts {
	return &Opts{Center: DefaultCenter()}
}

// Measurement is one fully processed thermal frame.
type Measurement struct {
	// Raw is the frame as read, ECC bits stripped.
	Raw Frame
	// Map holds the compensated per-pixel temperatures in °C. When Valid
	// is false every entry is NaN.
	Map TemperatureMap
	// Regions are the five spatial aggregates over Map.
	Regions RegionAverages
	// Vdd is the supply voltage, Ta the ambient (die) temperature used
	// for compensation.
	Vdd float32
	Ta  float32
	// Valid is false when the frame could not be fully acquired; Map and
	// Regions carry NaN and must not enter downstream averages.
	Valid bool
	Time  time.Time
}

// Dev owns one thermal array. Not safe for concurrent use.
type Dev struct {
	bus    *regbus.Dev
	cal    *Calibration
	center Region
	frames int
}

// New configures the control register and loads and decodes the factory
// calibration image. A failure here is fatal for the device: without
// calibration no frame can be compensated.
func New(bus *regbus.Dev, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOpts()
	}
	if err := opts.Center.validate(); err != nil {
		return nil, err
	}
	ctrl, err := bus.ReadRegister(regControl)
	if err != nil {
		return nil, fmt.Errorf("mlx90641: control register: %w", err)
	}
	if err := bus.WriteRegisterVerify(regControl, ctrl&controlKeepMask|controlValue); err != nil {
		return nil, fmt.Errorf("mlx90641: control register: %w", err)
	}
	// The image block read is deliberately unmasked: per-pixel offsets
	// are full signed 16-bit words.
	ee := make([]uint16, EEPROMWords)
	if err := bus.ReadBlock(eepromBase, ee); err != nil {
		return nil, fmt.Errorf("mlx90641: calibration image: %w", err)
	}
	cal, err := DecodeCalibration(ee)
	if err != nil {
		return nil, err
	}
	return &Dev{bus: bus, cal: cal, center: opts.Center}, nil
}

// Calibration returns the decoded factory image, for diagnostics.
func (d *Dev) Calibration() *Calibration {
	return d.cal
}

// SetCenter reconfigures the zenith block at runtime.
func (d *Dev) SetCenter(r Region) error {
	if err := r.validate(); err != nil {
		return err
	}
	d.center = r
	return nil
}

// Frames returns the number of frames successfully processed.
func (d *Dev) Frames() int {
	return d.frames
}

// Read acquires and processes one frame. It returns ErrNoData when the
// device has not latched a fresh frame; any other error yields a
// Measurement whose map is all NaN so a caller that logs it anyway
// cannot mistake it for data.
func (d *Dev) Read() (Measurement, error) {
	state, err := d.bus.PollNewData()
	if err != nil {
		return d.invalid(), err
	}
	if state != regbus.DataReady {
		return d.invalid(), ErrNoData
	}

	m := Measurement{Time: time.Now()}
	if err := d.bus.ReadBlock(ramBase, m.Raw[:]); err != nil {
		return d.invalid(), fmt.Errorf("mlx90641: pixel frame: %w", err)
	}
	// The ancillary ADC channels and module constants are re-read every
	// frame; they track supply and die temperature drift.
	ptat, err := d.readAncillary()
	if err != nil {
		return d.invalid(), err
	}

	m.Vdd = ptat.vdd()
	m.Ta = ptat.ta()
	d.compensate(&m)
	m.Regions = RegionAverages{
		TopLeft:     regionTopLeft.mean(&m.Map),
		TopRight:    regionTopRight.mean(&m.Map),
		BottomLeft:  regionBottomLeft.mean(&m.Map),
		BottomRight: regionBottomRight.mean(&m.Map),
		Center:      d.center.mean(&m.Map),
	}
	m.Valid = true
	d.frames++

	// A failed acknowledge only delays the next frame; the one in hand
	// is complete.
	if err := d.bus.ClearNewData(); err != nil {
		log.Printf("mlx90641: failed to acknowledge frame: %v", err)
	}
	return m, nil
}

func (d *Dev) invalid() Measurement {
	nan := math32.NaN()
	return Measurement{
		Map: invalidMap(),
		Regions: RegionAverages{
			TopLeft:     nan,
			TopRight:    nan,
			BottomLeft:  nan,
			BottomRight: nan,
			Center:      nan,
		},
		Vdd:  nan,
		Ta:   nan,
		Time: time.Now(),
	}
}

// compensate converts raw codes to temperatures using the decoded
// calibration and the frame's ambient conditions.
func (d *Dev) compensate(m *Measurement) {
	for i := 0; i < Pixels; i++ {
		p := &d.cal.Pixels[i]
		ir := float32(int16(m.Raw[i])) - float32(p.Offset)
		ir -= p.Kta * (m.Ta - 25)
		ir -= p.Kv * (m.Vdd - 3.3)
		t := m.Ta + (ir/p.Alpha)*0.01
		if math32.IsNaN(t) || math32.IsInf(t, 0) {
			t = math32.NaN()
		}
		m.Map[i] = t
	}
}

// ancillary holds one frame's supply/ambient inputs.
type ancillary struct {
	ptatRaw, vbeRaw, vddpixRaw uint16
	vdd25Raw, kvddRaw          uint16
	ptat25Hi, ptat25Lo         uint16
	ktPTATRaw, kvPTATRaw       uint16
	alphaPTATRaw               uint16
}

func (d *Dev) readAncillary() (*ancillary, error) {
	var a ancillary
	regs := []struct {
		addr uint16
		dst  *uint16
	}{
		{regPTAT, &a.ptatRaw},
		{regVBE, &a.vbeRaw},
		{regVDDPix, &a.vddpixRaw},
		{eeVDD25, &a.vdd25Raw},
		{eeKVDD, &a.kvddRaw},
		{eePTAT25Hi, &a.ptat25Hi},
		{eePTAT25Lo, &a.ptat25Lo},
		{eeKtPTAT, &a.ktPTATRaw},
		{eeKvPTAT, &a.kvPTATRaw},
		{eeAlphaPTAT, &a.alphaPTATRaw},
	}
	for _, r := range regs {
		v, err := d.bus.ReadRegister(r.addr)
		if err != nil {
			return nil, fmt.Errorf("mlx90641: ancillary register 0x%04X: %w", r.addr, err)
		}
		*r.dst = v
	}
	return &a, nil
}

// vdd computes the supply voltage from the pixel supply ADC channel.
func (a *ancillary) vdd() float32 {
	vdd25 := float32(signExtend11(a.vdd25Raw)) * 25
	kvdd := float32(signExtend11(a.kvddRaw)) * 25
	return (float32(int16(a.vddpixRaw))-vdd25)/kvdd + 3.3
}

// ta computes the ambient (die) temperature from the PTAT channel.
func (a *ancillary) ta() float32 {
	vdd25 := float32(signExtend11(a.vdd25Raw)) * 25
	kvdd := float32(signExtend11(a.kvddRaw)) * 25
	kvPTAT := float32(signExtend11(a.kvPTATRaw)) / 4096
	ktPTAT := float32(signExtend11(a.ktPTATRaw)) / 8
	alphaPTAT := float32(a.alphaPTATRaw&0x07FF) / 134217728
	ptat25 := float32(32*(a.ptat25Hi&0x07FF) + a.ptat25Lo&0x07FF)

	ptat := float32(int16(a.ptatRaw))
	vbe := float32(int16(a.vbeRaw))
	deltaV := (float32(int16(a.vddpixRaw)) - vdd25) / kvdd
	vPTAT := ptat / (ptat*alphaPTAT + vbe)
	vPTATArt := vPTAT * 262144
	ta := (vPTATArt/(1+kvPTAT*deltaV)-ptat25)/ktPTAT + 25
	return ta / 10
}
