// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package regbus implements the transactional 16-bit register protocol
// spoken by the sensors on the node's I²C bus.
//
// A register read is an address-write transaction without a stop condition
// followed by a 2-byte read; a register write is a single 4-byte
// transaction. Block reads are split into chunks no larger than the
// transport's buffer and the device is given a short settle delay between
// chunks. Words in the coded EEPROM and RAM ranges carry 5 Hamming/ECC
// bits in D11..D15 which the driver strips.
//
// No operation retries internally. Every failure is reported to the
// caller, which decides whether to abandon the cycle or re-poll later.
package regbus

import (
	"errors"
	"fmt"
	"time"

	"periph.io/x/periph/conn/i2c"
)

// dataMask keeps the 11 data bits of an ECC-coded word.
const dataMask = 0x07FF

// Range is an inclusive span of register addresses. The zero Range is
// empty.
type Range struct {
	First uint16
	Last  uint16
}

func (r Range) contains(addr uint16) bool {
	return r.Last != 0 && addr >= r.First && addr <= r.Last
}

// Opts configures a Dev for a particular device on the bus.
type Opts struct {
	// Addr is the 7-bit device address.
	Addr uint16
	// CodedEEPROM is masked on single register reads, CodedRAM on block
	// reads. The asymmetry mirrors the device: single EEPROM reads return
	// the ECC bits, but EEPROM block reads (the calibration image) serve
	// full-width words since per-pixel offsets are signed 16-bit values.
	CodedEEPROM Range
	CodedRAM    Range
	// StatusReg holds the "new data ready" bit identified by NewDataBit.
	StatusReg  uint16
	NewDataBit uint16
	// ChunkWords is the transport's per-transaction limit for block reads.
	ChunkWords int
	// ChunkDelay lets the device's internal state settle between chunks.
	ChunkDelay time.Duration
}

// DefaultOpts returns options for the MLX90641 thermal array, the most
// demanding device on the bus.
func DefaultOpts() *Opts {
	return &Opts{
		Addr:        0x33,
		CodedEEPROM: Range{First: 0x2400, Last: 0x273F},
		CodedRAM:    Range{First: 0x0400, Last: 0x07FF},
		StatusReg:   0x8000,
		NewDataBit:  0x0008,
		ChunkWords:  16,
		ChunkDelay:  5 * time.Millisecond,
	}
}

// Stats is a snapshot of transaction counters.
type Stats struct {
	Transactions  int
	TransferFails int
	VerifyFails   int
}

// Dev is a single device behind the register protocol.
type Dev struct {
	c     i2c.Dev
	opts  Opts
	stats Stats
	sleep func(time.Duration) // test hook
}

// New returns a driver for the device described by opts on bus b.
func New(b i2c.Bus, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = DefaultOpts()
	}
	if opts.Addr == 0 || opts.Addr > 0x7F {
		return nil, fmt.Errorf("regbus: invalid device address 0x%02X", opts.Addr)
	}
	chunk := opts.ChunkWords
	if chunk <= 0 {
		chunk = 16
	}
	o := *opts
	o.ChunkWords = chunk
	return &Dev{
		c:     i2c.Dev{Bus: b, Addr: opts.Addr},
		opts:  o,
		sleep: time.Sleep,
	}, nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("regbus(%s)", &d.c)
}

// Stats returns a copy of the transaction counters.
func (d *Dev) Stats() Stats {
	return d.stats
}

// ReadRegister reads one 16-bit register. Words in the coded EEPROM range
// are masked to their 11 data bits; everything else is returned verbatim
// (signed ADC codes use the full width).
func (d *Dev) ReadRegister(addr uint16) (uint16, error) {
	var buf [2]byte
	if err := d.tx(putUint16(addr), buf[:]); err != nil {
		return 0, fmt.Errorf("regbus: read 0x%04X: %w", addr, err)
	}
	v := uint16(buf[0])<<8 | uint16(buf[1])
	if d.opts.CodedEEPROM.contains(addr) {
		v &= dataMask
	}
	return v, nil
}

// WriteRegister writes one 16-bit register as a single 4-byte transaction.
func (d *Dev) WriteRegister(addr, value uint16) error {
	w := make([]byte, 0, 4)
	w = append(w, putUint16(addr)...)
	w = append(w, putUint16(value)...)
	if err := d.tx(w, nil); err != nil {
		return fmt.Errorf("regbus: write 0x%04X: %w", addr, err)
	}
	return nil
}

// WriteRegisterVerify writes a register and reads it back, failing if the
// device did not latch the value.
func (d *Dev) WriteRegisterVerify(addr, value uint16) error {
	if err := d.WriteRegister(addr, value); err != nil {
		return err
	}
	got, err := d.ReadRegister(addr)
	if err != nil {
		return err
	}
	if got != value {
		d.stats.VerifyFails++
		return fmt.Errorf("regbus: verify 0x%04X: wrote 0x%04X, read back 0x%04X", addr, value, got)
	}
	return nil
}

// ReadBlock reads len(words) consecutive registers starting at start,
// transparently chunked to the transport limit. Words in the coded RAM
// range are masked to their 11 data bits. Any chunk failure aborts the
// whole call and the output is zeroed so partial data can never leak out.
func (d *Dev) ReadBlock(start uint16, words []uint16) error {
	done := 0
	for done < len(words) {
		n := len(words) - done
		if n > d.opts.ChunkWords {
			n = d.opts.ChunkWords
		}
		addr := start + uint16(done)
		buf := make([]byte, 2*n)
		if err := d.tx(putUint16(addr), buf); err != nil {
			for i := range words {
				words[i] = 0
			}
			return fmt.Errorf("regbus: block read 0x%04X+%d at 0x%04X: %w", start, len(words), addr, err)
		}
		for i := 0; i < n; i++ {
			v := uint16(buf[2*i])<<8 | uint16(buf[2*i+1])
			if d.opts.CodedRAM.contains(addr + uint16(i)) {
				v &= dataMask
			}
			words[done+i] = v
		}
		done += n
		if d.opts.ChunkDelay > 0 {
			d.sleep(d.opts.ChunkDelay)
		}
	}
	return nil
}

// tx is the single choke point for bus transactions.
func (d *Dev) tx(w, r []byte) error {
	d.stats.Transactions++
	if err := d.c.Tx(w, r); err != nil {
		d.stats.TransferFails++
		return err
	}
	return nil
}

func putUint16(v uint16) []byte {
	return []byte{byte(v >> 8), byte(v)}
}

var errNoStatusReg = errors.New("regbus: no status register configured")
