// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package regbus

// DataState is the polling-protocol state derived from the status
// register's new-data bit.
type DataState uint8

const (
	// AwaitingData means the device has not finished a measurement since
	// the bit was last cleared.
	AwaitingData DataState = iota
	// DataReady means a fresh measurement is waiting in RAM.
	DataReady
)

func (s DataState) String() string {
	switch s {
	case AwaitingData:
		return "awaiting-data"
	case DataReady:
		return "data-ready"
	default:
		return "unknown"
	}
}

// PollNewData reads the status register and reports whether new data is
// ready.
func (d *Dev) PollNewData() (DataState, error) {
	if d.opts.StatusReg == 0 && d.opts.NewDataBit == 0 {
		return AwaitingData, errNoStatusReg
	}
	v, err := d.ReadRegister(d.opts.StatusReg)
	if err != nil {
		return AwaitingData, err
	}
	if v&d.opts.NewDataBit != 0 {
		return DataReady, nil
	}
	return AwaitingData, nil
}

// CheckNewData is PollNewData reduced to a boolean.
func (d *Dev) CheckNewData() (bool, error) {
	s, err := d.PollNewData()
	return s == DataReady, err
}

// ClearNewData clears only the new-data bit, writing the rest of the
// status word back unchanged. The read-modify-write is not atomic with
// respect to the device setting the bit again; callers tolerate the race
// by re-polling instead of assuming the bit stays cleared.
func (d *Dev) ClearNewData() error {
	if d.opts.StatusReg == 0 && d.opts.NewDataBit == 0 {
		return errNoStatusReg
	}
	v, err := d.ReadRegister(d.opts.StatusReg)
	if err != nil {
		return err
	}
	return d.WriteRegister(d.opts.StatusReg, v&^d.opts.NewDataBit)
}
