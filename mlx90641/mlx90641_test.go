// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90641

import (
	"errors"
	"testing"

	"github.com/chewxy/math32"
	"periph.io/x/periph/conn/i2c/i2ctest"

	"github.com/mzajic/go-skynode/regbus"
)

// testEEPROM returns a calibration image with unity scales, alpha 100
// everywhere and zero offset/slope terms, so a raw code of n compensates
// to Ta + n*0.0001 degrees.
func testEEPROM() []uint16 {
	ee := make([]uint16, EEPROMWords)
	for i := 0; i < Pixels; i++ {
		ee[eeAlphaBase+i] = 100
	}
	return ee
}

// initOps is the transaction sequence New performs: control register
// read-modify-write (verified) and the chunked calibration image load.
func initOps() []i2ctest.IO {
	ops := []i2ctest.IO{
		{Addr: 0x33, W: []byte{0x80, 0x0D}, R: []byte{0x00, 0x00}},
		{Addr: 0x33, W: []byte{0x80, 0x0D, 0x00, 0x88}},
		{Addr: 0x33, W: []byte{0x80, 0x0D}, R: []byte{0x00, 0x88}},
	}
	return append(ops, blockOps(0x2400, testEEPROM())...)
}

// frameOps is one full Read: status poll, pixel frame, the ten ancillary
// registers, frame acknowledge. The values are chosen so Vdd is exactly
// 3.3 and Ta exactly 25.0.
func frameOps(raw uint16) []i2ctest.IO {
	frame := make([]uint16, Pixels)
	for i := range frame {
		frame[i] = raw
	}
	ops := []i2ctest.IO{
		{Addr: 0x33, W: []byte{0x80, 0x00}, R: []byte{0x00, 0x08}},
	}
	ops = append(ops, blockOps(0x0400, frame)...)
	ops = append(ops,
		i2ctest.IO{Addr: 0x33, W: []byte{0x05, 0xA0}, R: []byte{0x10, 0x00}}, // ptat 4096
		i2ctest.IO{Addr: 0x33, W: []byte{0x05, 0x80}, R: []byte{0x40, 0x00}}, // vbe 16384
		i2ctest.IO{Addr: 0x33, W: []byte{0x05, 0xAA}, R: []byte{0x27, 0x10}}, // vddpix 10000
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x26}, R: []byte{0x01, 0x90}}, // vdd25 400*25
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x27}, R: []byte{0x01, 0x90}}, // kvdd 400*25
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x28}, R: []byte{0x07, 0xB9}}, // ptat25 hi 1977
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x29}, R: []byte{0x00, 0x16}}, // ptat25 lo 22
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x2A}, R: []byte{0x00, 0x50}}, // ktptat 80/8
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x2B}, R: []byte{0x00, 0x00}},
		i2ctest.IO{Addr: 0x33, W: []byte{0x24, 0x2C}, R: []byte{0x00, 0x00}},
		i2ctest.IO{Addr: 0x33, W: []byte{0x80, 0x00}, R: []byte{0x00, 0x08}},
		i2ctest.IO{Addr: 0x33, W: []byte{0x80, 0x00, 0x00, 0x00}},
	)
	return ops
}

func TestRead(t *testing.T) {
	ops := append(initOps(), frameOps(1000)...)
	b := i2ctest.Playback{Ops: ops}
	d := mustNewThermal(t, &b)
	m, err := d.Read()
	if err != nil {
		t.Fatal(err)
	}
	if !m.Valid {
		t.Fatal("measurement should be valid")
	}
	if m.Vdd != 3.3 {
		t.Fatalf("Vdd = %g, want 3.3", m.Vdd)
	}
	if m.Ta != 25.0 {
		t.Fatalf("Ta = %g, want 25.0", m.Ta)
	}
	// raw 1000 with alpha 100: 25 + 10*0.01 = 25.1.
	for i, v := range m.Map {
		if v < 25.0999 || v > 25.1001 {
			t.Fatalf("pixel %d = %g, want 25.1", i, v)
		}
	}
	for _, v := range []float32{m.Regions.TopLeft, m.Regions.TopRight, m.Regions.BottomLeft, m.Regions.BottomRight, m.Regions.Center} {
		if v < 25.0999 || v > 25.1001 {
			t.Fatalf("region average = %g, want 25.1", v)
		}
	}
	if d.Frames() != 1 {
		t.Fatalf("Frames() = %d, want 1", d.Frames())
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRead_noData(t *testing.T) {
	ops := append(initOps(), i2ctest.IO{
		Addr: 0x33, W: []byte{0x80, 0x00}, R: []byte{0x00, 0x00},
	})
	b := i2ctest.Playback{Ops: ops}
	d := mustNewThermal(t, &b)
	m, err := d.Read()
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("err = %v, want ErrNoData", err)
	}
	if m.Valid {
		t.Fatal("no-data measurement must be invalid")
	}
}

func TestRead_failureYieldsNaNMap(t *testing.T) {
	// The status poll reports a fresh frame but the pixel read fails; the
	// returned map must be unmistakably not-data.
	ops := append(initOps(), i2ctest.IO{
		Addr: 0x33, W: []byte{0x80, 0x00}, R: []byte{0x00, 0x08},
	})
	b := i2ctest.Playback{Ops: ops, DontPanic: true}
	d := mustNewThermal(t, &b)
	m, err := d.Read()
	if err == nil {
		t.Fatal("expected pixel frame failure")
	}
	if m.Valid {
		t.Fatal("failed measurement must be invalid")
	}
	for i, v := range m.Map {
		if !math32.IsNaN(v) {
			t.Fatalf("pixel %d = %g after failed read, want NaN", i, v)
		}
	}
	if !math32.IsNaN(m.Regions.Center) {
		t.Fatal("region averages must be NaN after a failed read")
	}
	if d.Frames() != 0 {
		t.Fatal("failed read must not count as a processed frame")
	}
}

func TestNew_calibrationLoadFatal(t *testing.T) {
	// Control register init succeeds, image load fails: the device is
	// unusable and New must say so.
	b := i2ctest.Playback{
		Ops: []i2ctest.IO{
			{Addr: 0x33, W: []byte{0x80, 0x0D}, R: []byte{0x00, 0x00}},
			{Addr: 0x33, W: []byte{0x80, 0x0D, 0x00, 0x88}},
			{Addr: 0x33, W: []byte{0x80, 0x0D}, R: []byte{0x00, 0x88}},
		},
		DontPanic: true,
	}
	if _, err := New(mustBus(t, &b), nil); err == nil {
		t.Fatal("expected calibration load failure")
	}
}

func TestNew_badCenter(t *testing.T) {
	b := i2ctest.Playback{}
	_, err := New(mustBus(t, &b), &Opts{Center: Region{Row: 14, Col: 0, Height: 4, Width: 4}})
	if err == nil {
		t.Fatal("expected region validation failure")
	}
}

//

func blockOps(start uint16, words []uint16) []i2ctest.IO {
	var ops []i2ctest.IO
	for off := 0; off < len(words); off += 16 {
		end := off + 16
		if end > len(words) {
			end = len(words)
		}
		addr := start + uint16(off)
		r := make([]byte, 0, 2*(end-off))
		for _, w := range words[off:end] {
			r = append(r, byte(w>>8), byte(w))
		}
		ops = append(ops, i2ctest.IO{Addr: 0x33, W: []byte{byte(addr >> 8), byte(addr)}, R: r})
	}
	return ops
}

func mustBus(t *testing.T, b *i2ctest.Playback) *regbus.Dev {
	t.Helper()
	opts := regbus.DefaultOpts()
	opts.ChunkDelay = 0 // no settle delay against a playback bus
	bus, err := regbus.New(b, opts)
	if err != nil {
		t.Fatal(err)
	}
	return bus
}

func mustNewThermal(t *testing.T, b *i2ctest.Playback) *Dev {
	t.Helper()
	d, err := New(mustBus(t, b), nil)
	if err != nil {
		t.Fatal(err)
	}
	return d
}
