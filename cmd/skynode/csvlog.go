// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

var csvHeader = []string{
	"time",
	"ambient_c", "humidity_rh", "dew_point_c",
	"full", "ir", "gain", "integration", "vis",
	"mpsas", "dmpsas",
	"vdd", "ta",
	"corner_tl", "corner_tr", "corner_bl", "corner_br", "center", "spread",
	"cloudy",
}

// csvLog appends one row per poll cycle to a per-day file.
type csvLog struct {
	dir string
	day string
	f   *os.File
	w   *csv.Writer
}

// newCSVLog returns nil when no data directory is configured.
func newCSVLog(dir string) (*csvLog, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &csvLog{dir: dir}, nil
}

func (l *csvLog) append(r *record) error {
	day := r.Time.UTC().Format("20060102")
	if l.f == nil || day != l.day {
		if err := l.rotate(day); err != nil {
			return err
		}
	}
	row := make([]string, 0, len(csvHeader))
	row = append(row, r.Time.UTC().Format(time.RFC3339))
	if r.Env != nil {
		row = append(row, f32(r.Env.Temperature), f32(r.Env.Humidity), f32(r.Env.DewPoint))
	} else {
		row = append(row, "", "", "")
	}
	if r.Light != nil {
		row = append(row,
			strconv.Itoa(int(r.Light.Full)), strconv.Itoa(int(r.Light.IR)),
			r.Light.Gain.String(), r.Light.Integration.String(), f32(r.Light.VIS))
	} else {
		row = append(row, "", "", "", "", "")
	}
	if r.SQM != nil {
		row = append(row, f32(r.SQM.MPSAS), f32(r.SQM.DMPSAS))
	} else {
		row = append(row, "", "")
	}
	if r.Thermal != nil && r.Thermal.Valid {
		reg := r.Thermal.Regions
		row = append(row,
			f32(r.Thermal.Vdd), f32(r.Thermal.Ta),
			f32(reg.TopLeft), f32(reg.TopRight), f32(reg.BottomLeft), f32(reg.BottomRight),
			f32(reg.Center), f32(reg.Spread()))
	} else {
		row = append(row, "", "", "", "", "", "", "", "")
	}
	if r.Cloud != nil {
		row = append(row, strconv.FormatBool(r.Cloud.Cloudy))
	} else {
		row = append(row, "")
	}
	if err := l.w.Write(row); err != nil {
		return err
	}
	l.w.Flush()
	return l.w.Error()
}

func (l *csvLog) rotate(day string) error {
	if l.f != nil {
		l.w.Flush()
		l.f.Close()
		l.f = nil
	}
	name := filepath.Join(l.dir, "skynode-"+day+".csv")
	_, statErr := os.Stat(name)
	f, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.f = f
	l.w = csv.NewWriter(f)
	l.day = day
	if os.IsNotExist(statErr) {
		if err := l.w.Write(csvHeader); err != nil {
			return err
		}
		l.w.Flush()
	}
	return l.w.Error()
}

func (l *csvLog) close() {
	if l.f != nil {
		l.w.Flush()
		l.f.Close()
	}
}

func f32(v float32) string {
	return fmt.Sprintf("%.4f", v)
}
