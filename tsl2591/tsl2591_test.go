// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tsl2591

import (
	"testing"
	"time"

	"periph.io/x/periph/conn/i2c/i2ctest"

	"github.com/mzajic/go-skynode/regbus"
)

// initOps is the transaction sequence New performs: ID probe, power-on,
// verified write of the initial 25x/300ms control value.
var initOps = []i2ctest.IO{
	{Addr: 0x29, W: []byte{0x00, 0x12}, R: []byte{0x00, 0x50}},
	{Addr: 0x29, W: []byte{0x00, 0x00, 0x00, 0x03}},
	{Addr: 0x29, W: []byte{0x00, 0x01, 0x00, 0x12}},
	{Addr: 0x29, W: []byte{0x00, 0x01}, R: []byte{0x00, 0x12}},
}

func TestNew(t *testing.T) {
	b := i2ctest.Playback{Ops: initOps}
	d := mustNewDev(t, &b)
	if d.Gain() != GainMed {
		t.Fatalf("gain = %s, want %s", d.Gain(), GainMed)
	}
	if d.IntegrationTime() != Integ300ms {
		t.Fatalf("integration = %s, want %s", d.IntegrationTime(), Integ300ms)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_wrongID(t *testing.T) {
	b := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x29, W: []byte{0x00, 0x12}, R: []byte{0x00, 0x99}},
		},
	}
	bus, err := regbus.New(&b, BusOpts())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := New(bus, nil); err == nil {
		t.Fatal("expected ID mismatch")
	}
}

func TestSample(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		// full=20000, ir=5000: comfortably inside the window.
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x14}, R: []byte{0x4E, 0x20}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x16}, R: []byte{0x13, 0x88}},
	)
	b := i2ctest.Playback{Ops: ops}
	d := mustNewDev(t, &b)
	s, err := d.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if s.Full != 20000 || s.IR != 5000 {
		t.Fatalf("raw = %d/%d, want 20000/5000", s.Full, s.IR)
	}
	if !s.Valid {
		t.Fatal("sample should be valid")
	}
	if s.Stale {
		t.Fatal("in-window sample must not trigger an adjustment")
	}
	if s.VIS < 299.9 || s.VIS > 300.1 {
		t.Fatalf("VIS = %g, want 300", s.VIS)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSample_extremeMarksStale(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		// full=36000: extreme saturation, skip step on both axes to
		// 1x/100ms (control value 0x00), then the verified write.
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x14}, R: []byte{0x8C, 0xA0}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x16}, R: []byte{0x03, 0xE8}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x01, 0x00, 0x00}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x01}, R: []byte{0x00, 0x00}},
	)
	b := i2ctest.Playback{Ops: ops}
	d := mustNewDev(t, &b)
	s, err := d.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if !s.Stale {
		t.Fatal("sample taken before the adjustment must be marked stale")
	}
	// The sample reports the settings it was taken with, not the new ones.
	if s.Gain != GainMed || s.Integration != Integ300ms {
		t.Fatalf("sample settings = %s/%s, want 25x/300ms", s.Gain, s.Integration)
	}
	if d.Gain() != GainLow || d.IntegrationTime() != Integ100ms {
		t.Fatalf("device settings = %s/%s, want 1x/100ms", d.Gain(), d.IntegrationTime())
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSample_coolDownGate(t *testing.T) {
	ops := append([]i2ctest.IO{}, initOps...)
	ops = append(ops,
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x14}, R: []byte{0x8C, 0xA0}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x16}, R: []byte{0x03, 0xE8}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x01, 0x00, 0x00}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x01}, R: []byte{0x00, 0x00}},
		// Second cycle still saturated, but inside the cool-down window:
		// no control transaction may happen.
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x14}, R: []byte{0x8C, 0xA0}},
		i2ctest.IO{Addr: 0x29, W: []byte{0x00, 0x16}, R: []byte{0x03, 0xE8}},
	)
	b := i2ctest.Playback{Ops: ops}
	d := mustNewDev(t, &b)
	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }
	if _, err := d.Sample(); err != nil {
		t.Fatal(err)
	}
	clock = clock.Add(time.Second)
	s, err := d.Sample()
	if err != nil {
		t.Fatal(err)
	}
	if s.Stale {
		t.Fatal("adjustment inside the cool-down window")
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSample_busFailure(t *testing.T) {
	b := i2ctest.Playback{Ops: initOps, DontPanic: true}
	d := mustNewDev(t, &b)
	if _, err := d.Sample(); err == nil {
		t.Fatal("expected bus failure to abandon the cycle")
	}
}

//

func mustNewDev(t *testing.T, b *i2ctest.Playback) *Dev {
	t.Helper()
	bus, err := regbus.New(b, BusOpts())
	if err != nil {
		t.Fatal(err)
	}
	d, err := New(bus, nil)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
