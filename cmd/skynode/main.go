// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// skynode polls the sky-monitoring sensors and reports the derived
// measurements over HTTP, MQTT and a CSV log.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/maruel/interrupt"

	"github.com/mzajic/go-skynode/config"
	"github.com/mzajic/go-skynode/mlx90641"
	"github.com/mzajic/go-skynode/sht4x"
	"github.com/mzajic/go-skynode/tsl2591"
)

// record is one poll cycle's worth of derived values. A nil section
// means the sensor is absent or had nothing usable this cycle.
type record struct {
	Time    time.Time             `json:"time"`
	Label   string                `json:"label"`
	Env     *sht4x.Env            `json:"env,omitempty"`
	Light   *tsl2591.Sample       `json:"light,omitempty"`
	SQM     *tsl2591.SQM          `json:"sqm,omitempty"`
	Thermal *mlx90641.Measurement `json:"thermal,omitempty"`
	Cloud   *cloudStatus          `json:"cloud,omitempty"`
}

// cloudStatus is the condensed sky-condition summary: the zenith region
// against the ambient reference.
type cloudStatus struct {
	Center       float32 `json:"center"`
	CornerSpread float32 `json:"corner_spread"`
	// SkyAmbientDelta is the zenith sky temperature minus the ambient
	// air temperature; strongly negative means clear sky.
	SkyAmbientDelta float32 `json:"sky_ambient_delta"`
	Cloudy          bool    `json:"cloudy"`
}

func pollOnce(s *sensors, cfg *config.Config, verbose bool) record {
	r := record{Time: time.Now(), Label: cfg.Label}
	if s.env != nil {
		if e, err := s.env.Sense(); err != nil {
			log.Printf("hygro: %v", err)
		} else {
			r.Env = &e
		}
	}
	if s.light != nil {
		if l, err := s.light.Sample(); err != nil {
			log.Printf("light: %v", err)
		} else if l.Stale {
			// The controller changed gain or integration after this
			// sample; the reading does not match its settings.
			log.Printf("light: discarding stale sample")
		} else {
			r.Light = &l
			if l.Valid {
				visRaw := float32(l.Full) - float32(l.IR)
				if q := tsl2591.ComputeSQM(l.VIS, visRaw, cfg.SQM); q.Valid {
					r.SQM = &q
				}
			}
		}
	}
	if s.thermal != nil {
		if m, err := s.thermal.Read(); errors.Is(err, mlx90641.ErrNoData) {
			// Frame not latched yet; the thermal refresh is slower than
			// the poll.
		} else if err != nil {
			log.Printf("thermal: %v", err)
		} else {
			r.Thermal = &m
		}
	}
	if r.Thermal != nil && r.Thermal.Valid && r.Env != nil {
		delta := r.Thermal.Regions.Center - r.Env.Temperature
		r.Cloud = &cloudStatus{
			Center:          r.Thermal.Regions.Center,
			CornerSpread:    r.Thermal.Regions.Spread(),
			SkyAmbientDelta: delta,
			// Clear sky radiates far below ambient; a zenith within the
			// threshold of air temperature is cloud cover.
			Cloudy: delta > -cfg.Thermal.CloudThreshold,
		}
	}
	if verbose {
		logRecord(&r)
	}
	return r
}

func logRecord(r *record) {
	if r.Env != nil {
		log.Printf("hygro: %.2fC %.1f%%RH dew %.2fC", r.Env.Temperature, r.Env.Humidity, r.Env.DewPoint)
	}
	if r.Light != nil {
		log.Printf("light: full %d ir %d %s/%s VIS %.3f", r.Light.Full, r.Light.IR, r.Light.Gain, r.Light.Integration, r.Light.VIS)
	}
	if r.SQM != nil {
		log.Printf("sqm: %.2f +- %.3f mpsas", r.SQM.MPSAS, r.SQM.DMPSAS)
	}
	if r.Thermal != nil {
		reg := r.Thermal.Regions
		log.Printf("thermal: Vdd %.2fV Ta %.2fC center %.2fC corners %.2f/%.2f/%.2f/%.2f", r.Thermal.Vdd, r.Thermal.Ta, reg.Center, reg.TopLeft, reg.TopRight, reg.BottomLeft, reg.BottomRight)
	}
	if r.Cloud != nil {
		log.Printf("cloud: delta %.2fC cloudy %t", r.Cloud.SkyAmbientDelta, r.Cloud.Cloudy)
	}
}

// watchRetry paces the watcher's recovery when the file is missing or
// the watch itself fails.
var watchRetry = 5 * time.Second

// watchConfig reloads the file every time it changes and hands the
// result to the main loop. The node may start before its config file
// exists; the watcher keeps polling so a file dropped in later still
// takes effect.
func watchConfig(path string, reload chan<- *config.Config) {
	for !interrupt.IsSet() {
		if err := config.Watch(path); err != nil {
			if !os.IsNotExist(err) {
				log.Printf("config: watch: %v", err)
			}
			select {
			case <-interrupt.Channel:
				return
			case <-time.After(watchRetry):
			}
			if _, err := os.Stat(path); err != nil {
				continue
			}
			// The file just appeared; fall through and load it.
		}
		if interrupt.IsSet() {
			return
		}
		cfg, err := config.Load(path)
		if err != nil {
			log.Printf("config: %v", err)
			continue
		}
		log.Printf("config: reloaded %s", path)
		reload <- cfg
	}
}

func applyConfig(s *sensors, cfg *config.Config) {
	if s.light != nil {
		s.light.SetTuning(cfg.Light.Thresholds(), cfg.Light.CoolDown())
	}
	if s.thermal != nil {
		if err := s.thermal.SetCenter(cfg.Thermal.Center); err != nil {
			log.Printf("thermal: %v", err)
		}
	}
}

func mainImpl() error {
	configPath := flag.String("config", "skynode.yaml", "configuration file")
	i2cName := flag.String("i2c", "", "I²C bus to use")
	i2cHz := flag.Int("hz", 0, "I²C bus speed")
	port := flag.Int("port", 8010, "http port to listen on")
	dataDir := flag.String("data", "", "override the CSV data directory")
	fake := flag.Bool("fake", false, "run with fake sensors, no hardware needed")
	verbose := flag.Bool("verbose", false, "log every measurement")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	interrupt.HandleCtrlC()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.Report.DataDir = *dataDir
	}
	if *i2cName != "" {
		cfg.Bus.Name = *i2cName
	}

	var s *sensors
	if *fake {
		s = fakeSensors()
	} else {
		if s, err = openSensors(cfg.Bus.Name, *i2cHz); err != nil {
			return err
		}
		defer s.close()
	}
	applyConfig(s, cfg)

	pub, err := newPublisher(cfg.Report.MQTT)
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.close()
	}
	csv, err := newCSVLog(cfg.Report.DataDir)
	if err != nil {
		return err
	}
	if csv != nil {
		defer csv.close()
	}
	if err := startServer(*port, cfg.Report.DataDir); err != nil {
		return err
	}

	reload := make(chan *config.Config)
	go watchConfig(*configPath, reload)

	ticker := time.NewTicker(cfg.Report.Interval())
	defer ticker.Stop()
	for !interrupt.IsSet() {
		select {
		case <-interrupt.Channel:
		case c := <-reload:
			cfg = c
			applyConfig(s, cfg)
			ticker.Reset(cfg.Report.Interval())
		case <-ticker.C:
			r := pollOnce(s, cfg, *verbose)
			currentState.set(&r)
			if csv != nil {
				if err := csv.append(&r); err != nil {
					log.Printf("csv: %v", err)
				}
			}
			if pub != nil {
				pub.publish(cfg.Report.MQTT.TopicPrefix, &r)
			}
		}
	}
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nskynode: %s.\n", err)
		os.Exit(1)
	}
}
