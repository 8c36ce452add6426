// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package mlx90641

import (
	"fmt"

	"github.com/chewxy/math32"
)

// EEPROMWords is the size of the factory calibration image in 16-bit
// words.
const EEPROMWords = 832

// EEPROM word indices inside the calibration image.
const (
	eeAlphaScale = 32  // bits 15:12
	eeKScales    = 56  // kta bits 11:8, kv bits 7:4
	eeAlphaBase  = 384 // one word per pixel
	eeOffsetBase = 512 // one word per pixel, signed
	eeKtaKvBase  = 640 // kta in the high byte, kv in the low byte
)

// PixelCalibration is the decoded per-pixel compensation record.
type PixelCalibration struct {
	// Offset is the raw ADC offset, full signed 16-bit.
	Offset int16
	// Alpha is the pixel sensitivity; the divisor of the compensated IR
	// signal.
	Alpha float32
	// Kta and Kv are the ambient-temperature and supply-voltage slopes.
	Kta float32
	Kv  float32
}

// Calibration is the decoded factory image for one sensor.
type Calibration struct {
	Pixels [Pixels]PixelCalibration

	// Scale exponents, kept for diagnostics.
	AlphaScale uint8
	KtaScale   uint8
	KvScale    uint8
}

// DecodeCalibration decodes a raw EEPROM image into per-pixel
// compensation records. It is pure; bus access happens in the caller.
func DecodeCalibration(ee []uint16) (*Calibration, error) {
	if len(ee) != EEPROMWords {
		return nil, fmt.Errorf("mlx90641: calibration image is %d words, want %d", len(ee), EEPROMWords)
	}
	c := &Calibration{
		AlphaScale: uint8((ee[eeAlphaScale] >> 12) & 0xF),
		KtaScale:   uint8((ee[eeKScales] >> 8) & 0xF),
		KvScale:    uint8((ee[eeKScales] >> 4) & 0xF),
	}
	alphaDiv := math32.Pow(2, float32(c.AlphaScale))
	ktaDiv := math32.Pow(2, float32(c.KtaScale))
	kvDiv := math32.Pow(2, float32(c.KvScale))
	for i := 0; i < Pixels; i++ {
		c.Pixels[i] = PixelCalibration{
			Offset: int16(ee[eeOffsetBase+i]),
			Alpha:  float32(int16(ee[eeAlphaBase+i])) / alphaDiv,
			Kta:    float32(int8(ee[eeKtaKvBase+i]>>8)) / ktaDiv,
			Kv:     float32(int8(ee[eeKtaKvBase+i])) / kvDiv,
		}
	}
	return c, nil
}

// signExtend11 interprets the low 11 bits of an ECC-coded word as a
// two's complement value.
func signExtend11(v uint16) int16 {
	v &= 0x07FF
	if v > 1023 {
		return int16(v) - 2048
	}
	return int16(v)
}
