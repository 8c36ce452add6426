// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sht4x drives the node's ambient hygrometer. Unlike the other
// sensors it speaks a command/response protocol, not the 16-bit register
// protocol, so it sits directly on the i2c transport.
package sht4x

import (
	"fmt"
	"time"

	"github.com/chewxy/math32"
	"periph.io/x/periph/conn/i2c"
)

// Addr is the sensor's 7-bit bus address.
const Addr = 0x44

// Commands.
const (
	cmdMeasureHigh  = 0xFD // high precision, no heater
	cmdSerialNumber = 0x89
	cmdSoftReset    = 0x94
)

// measureDelay is the worst-case high-precision conversion time.
const measureDelay = 10 * time.Millisecond

// Env is one ambient reading.
type Env struct {
	// Temperature in °C and relative humidity in %RH.
	Temperature float32
	Humidity    float32
	// DewPoint in °C, derived from the two via the Magnus formula.
	DewPoint float32
	Time     time.Time
}

// Dev is one hygrometer. Not safe for concurrent use.
type Dev struct {
	c     i2c.Dev
	sleep func(time.Duration) // test hook
}

// New probes the sensor by reading its serial number.
func New(b i2c.Bus) (*Dev, error) {
	d := &Dev{
		c:     i2c.Dev{Bus: b, Addr: Addr},
		sleep: time.Sleep,
	}
	if _, err := d.SerialNumber(); err != nil {
		return nil, fmt.Errorf("sht4x: probe: %w", err)
	}
	return d, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sht4x(%s)", &d.c)
}

// SerialNumber reads the factory serial number.
func (d *Dev) SerialNumber() (uint32, error) {
	var buf [6]byte
	if err := d.command(cmdSerialNumber, buf[:]); err != nil {
		return 0, err
	}
	hi, err := word(buf[0:3])
	if err != nil {
		return 0, err
	}
	lo, err := word(buf[3:6])
	if err != nil {
		return 0, err
	}
	return uint32(hi)<<16 | uint32(lo), nil
}

// Sense triggers a high-precision measurement and returns the reading.
func (d *Dev) Sense() (Env, error) {
	var buf [6]byte
	if err := d.command(cmdMeasureHigh, buf[:]); err != nil {
		return Env{}, err
	}
	tRaw, err := word(buf[0:3])
	if err != nil {
		return Env{}, err
	}
	rhRaw, err := word(buf[3:6])
	if err != nil {
		return Env{}, err
	}
	t := -45 + 175*float32(tRaw)/65535
	rh := -6 + 125*float32(rhRaw)/65535
	if rh < 0 {
		rh = 0
	} else if rh > 100 {
		rh = 100
	}
	return Env{
		Temperature: t,
		Humidity:    rh,
		DewPoint:    DewPoint(t, rh),
		Time:        time.Now(),
	}, nil
}

// command writes a single command byte, waits out the conversion and
// reads the response. The write and read are separate transactions; the
// sensor NAKs reads while converting.
func (d *Dev) command(cmd byte, resp []byte) error {
	if err := d.c.Tx([]byte{cmd}, nil); err != nil {
		return fmt.Errorf("sht4x: command 0x%02X: %w", cmd, err)
	}
	d.sleep(measureDelay)
	if err := d.c.Tx(nil, resp); err != nil {
		return fmt.Errorf("sht4x: response to 0x%02X: %w", cmd, err)
	}
	return nil
}

// word decodes a CRC-protected 2-byte value from a 3-byte group.
func word(b []byte) (uint16, error) {
	if c := crc8(b[0:2]); c != b[2] {
		return 0, fmt.Errorf("sht4x: CRC mismatch: computed 0x%02X, got 0x%02X", c, b[2])
	}
	return uint16(b[0])<<8 | uint16(b[1]), nil
}

// crc8 is the sensor's checksum: polynomial 0x31, init 0xFF, no final
// XOR. Reference vector: {0xBE, 0xEF} -> 0x92.
func crc8(b []byte) byte {
	crc := byte(0xFF)
	for _, v := range b {
		crc ^= v
		for i := 0; i < 8; i++ {
			if crc&0x80 != 0 {
				crc = crc<<1 ^ 0x31
			} else {
				crc <<= 1
			}
		}
	}
	return crc
}

// DewPoint computes the Magnus-formula dew point in °C.
func DewPoint(t, rh float32) float32 {
	if rh <= 0 {
		return math32.NaN()
	}
	gamma := math32.Log(rh/100) + 17.62*t/(243.12+t)
	return 243.12 * gamma / (17.62 - gamma)
}
