// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package tsl2591

// movingAvgLen is the capacity of the per-channel smoothing window.
const movingAvgLen = 16

// movingAvg is a fixed-capacity ring of raw channel counts. The average
// is computed over the samples actually stored, so early readings are not
// diluted by an assumed-full buffer.
type movingAvg struct {
	buf   [movingAvgLen]uint16
	next  int
	count int
}

func (m *movingAvg) push(v uint16) {
	m.buf[m.next] = v
	m.next = (m.next + 1) % movingAvgLen
	if m.count < movingAvgLen {
		m.count++
	}
}

func (m *movingAvg) average() uint16 {
	if m.count == 0 {
		return 0
	}
	sum := uint32(0)
	for i := 0; i < m.count; i++ {
		sum += uint32(m.buf[i])
	}
	return uint16(sum / uint32(m.count))
}
