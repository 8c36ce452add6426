// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package tsl2591 drives the node's light sensor and owns the adaptive
// gain/integration-time controller that keeps the raw signal inside a
// usable measurement window.
//
// The controller converges a noisy, quantized, saturating signal without
// oscillating: transitions are cool-down gated, move between adjacent
// levels (except the emergency saturation path), and when the raw signal
// is static the controller ping-pongs between probing the gain axis and
// the integration axis to find out which one still has an effect.
package tsl2591

import (
	"fmt"
	"log"
	"time"

	"github.com/mzajic/go-skynode/regbus"
)

// Addr is the sensor's 7-bit bus address.
const Addr = 0x29

// Register map.
const (
	regEnable  = 0x0000
	regControl = 0x0001
	regID      = 0x0012
	regC0Data  = 0x0014 // full spectrum (visible + IR)
	regC1Data  = 0x0016 // IR only
)

const (
	enablePowerOn = 0x0003 // PON | AEN
	deviceID      = 0x50
)

// BusOpts returns the regbus options for this sensor. It has no coded
// ranges and no status protocol; every register is plain data.
func BusOpts() *regbus.Opts {
	return &regbus.Opts{Addr: Addr}
}

// Opts tunes the auto-ranging controller.
type Opts struct {
	Thresholds Thresholds
	// CoolDown is the minimum spacing between gain/integration
	// transitions.
	CoolDown time.Duration
}

// DefaultOpts returns the controller tuning the node ships with.
func DefaultOpts() *Opts {
	return &Opts{
		Thresholds: DefaultThresholds(),
		CoolDown:   5 * time.Second,
	}
}

// Sample is one poll cycle's photometric reading.
type Sample struct {
	// Full and IR are the most recent raw channel counts.
	Full uint16
	IR   uint16
	// FullAvg and IRAvg are smoothed over the moving-average window.
	FullAvg uint16
	IRAvg   uint16
	// Gain and Integration are the settings the sample was taken with.
	Gain        Gain
	Integration IntegrationTime
	// VIS is the normalized visible signal; only meaningful when Valid.
	VIS float32
	// Valid is false for physically implausible input (zero or negative
	// visible component). Not a bus fault.
	Valid bool
	// Stale means the controller changed gain or integration after this
	// sample was taken; the caller must discard it.
	Stale bool
	Time  time.Time
}

// Dev owns one light sensor's control state. It is not safe for
// concurrent use; the node's poll loop is single-threaded.
type Dev struct {
	bus        *regbus.Dev
	th         Thresholds
	coolDown   time.Duration
	gain       Gain
	integ      IntegrationTime
	mode       AdjustMode
	prevRaw    uint16
	lastChange time.Time
	fullAvg    movingAvg
	irAvg      movingAvg
	now        func() time.Time // test hook
}

// New powers the sensor on and applies the initial state: medium gain,
// 300 ms integration, no probe direction yet.
func New(bus *regbus.Dev, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOpts()
	}
	d := &Dev{
		bus:      bus,
		th:       opts.Thresholds,
		coolDown: opts.CoolDown,
		gain:     GainMed,
		integ:    Integ300ms,
		mode:     AdjustNone,
		now:      time.Now,
	}
	id, err := bus.ReadRegister(regID)
	if err != nil {
		return nil, fmt.Errorf("tsl2591: probe: %w", err)
	}
	if id != deviceID {
		return nil, fmt.Errorf("tsl2591: unexpected device ID 0x%02X", id)
	}
	if err := bus.WriteRegister(regEnable, enablePowerOn); err != nil {
		return nil, err
	}
	if err := d.applySetting(); err != nil {
		return nil, err
	}
	return d, nil
}

// Gain returns the current gain level.
func (d *Dev) Gain() Gain {
	return d.gain
}

// IntegrationTime returns the current exposure setting.
func (d *Dev) IntegrationTime() IntegrationTime {
	return d.integ
}

// SetTuning updates thresholds and cool-down at runtime.
func (d *Dev) SetTuning(th Thresholds, coolDown time.Duration) {
	d.th = th
	if coolDown > 0 {
		d.coolDown = coolDown
	}
}

// Sample reads both channels, updates the moving averages, computes the
// normalized visible signal and, at most once per cool-down window, runs
// the auto-ranging control step. A bus failure abandons the cycle.
func (d *Dev) Sample() (Sample, error) {
	full, err := d.bus.ReadRegister(regC0Data)
	if err != nil {
		return Sample{}, fmt.Errorf("tsl2591: full channel: %w", err)
	}
	ir, err := d.bus.ReadRegister(regC1Data)
	if err != nil {
		return Sample{}, fmt.Errorf("tsl2591: ir channel: %w", err)
	}
	d.fullAvg.push(full)
	d.irAvg.push(ir)

	s := Sample{
		Full:        full,
		IR:          ir,
		FullAvg:     d.fullAvg.average(),
		IRAvg:       d.irAvg.average(),
		Gain:        d.gain,
		Integration: d.integ,
		Time:        d.now(),
	}
	s.VIS, s.Valid = Normalize(s.FullAvg, s.IRAvg, d.gain, d.integ)

	// The control step looks at the most recent raw value, not the
	// average, so saturation is reacted to immediately.
	if d.lastChange.IsZero() || d.now().Sub(d.lastChange) >= d.coolDown {
		changed, err := d.adjust(full)
		if err != nil {
			return Sample{}, err
		}
		if changed {
			d.lastChange = d.now()
			s.Stale = true
		}
	}
	return s, nil
}

// adjust runs one control decision and applies the new setting to the
// sensor if it differs from the current one.
func (d *Dev) adjust(raw uint16) (bool, error) {
	if raw == d.prevRaw {
		// Static signal: alternate probe axes to learn which one still
		// moves the reading.
		if d.mode == AdjustGain {
			d.mode = AdjustIntegration
		} else {
			d.mode = AdjustGain
		}
	} else {
		d.mode = AdjustBoth
	}
	d.prevRaw = raw

	cur := setting{gain: d.gain, integ: d.integ}
	next := evaluate(raw, d.th, d.mode, cur)
	if next == cur {
		return false, nil
	}
	d.gain = next.gain
	d.integ = next.integ
	if err := d.applySetting(); err != nil {
		return false, err
	}
	log.Printf("tsl2591: adjusted to gain %s, integration %s (raw %d, probing %s)", d.gain, d.integ, raw, d.mode)
	return true, nil
}

func (d *Dev) applySetting() error {
	v := uint16(d.integ) | uint16(d.gain)<<4
	return d.bus.WriteRegisterVerify(regControl, v)
}

// Normalize computes the visible signal referenced to 1× gain and 200 ms
// integration:
//
//	VIS = (full − ir) × (1 − ir/full) / (gain × integration/200ms)
//
// Returns ok=false for physically implausible input (full == 0, ir above
// full, or a non-positive result); such samples are reported with a
// sentinel, not propagated as physical values.
func Normalize(full, ir uint16, g Gain, t IntegrationTime) (float32, bool) {
	// Reject a non-positive visible component up front: with ir > full
	// both factors below go negative and would cancel into a bogus
	// positive value.
	if full == 0 || ir >= full {
		return 0, false
	}
	f := float32(full)
	i := float32(ir)
	vis := (f - i) * (1 - i/f) / (g.Multiplier() * t.Milliseconds() / 200)
	if vis <= 0 {
		return 0, false
	}
	return vis, true
}
