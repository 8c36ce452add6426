// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package config holds the node's on-disk tuning file. Every value has a
// default so a missing or partial file still yields a runnable node.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mzajic/go-skynode/mlx90641"
	"github.com/mzajic/go-skynode/tsl2591"
)

// Config represents the node configuration.
type Config struct {
	// Label identifies this node in reports.
	Label   string            `yaml:"label"`
	Bus     BusConfig         `yaml:"bus"`
	Light   LightConfig       `yaml:"light"`
	SQM     tsl2591.SQMParams `yaml:"sqm"`
	Thermal ThermalConfig     `yaml:"thermal"`
	Report  ReportConfig      `yaml:"report"`
}

// BusConfig selects the I²C bus the sensors hang off.
type BusConfig struct {
	// Name is the periph bus name, e.g. "1" or "/dev/i2c-1". Empty picks
	// the first available bus.
	Name string `yaml:"name"`
}

// LightConfig tunes the photometric auto-ranging controller.
type LightConfig struct {
	Saturation uint16 `yaml:"saturation"`
	Extreme    uint16 `yaml:"extreme"`
	WindowHigh uint16 `yaml:"window_high"`
	WindowLow  uint16 `yaml:"window_low"`
	// CoolDownMS spaces gain/integration transitions, in milliseconds.
	CoolDownMS int `yaml:"cooldown_ms"`
}

// Thresholds converts to the controller's parameter block.
func (l LightConfig) Thresholds() tsl2591.Thresholds {
	return tsl2591.Thresholds{
		Saturation: l.Saturation,
		Extreme:    l.Extreme,
		WindowHigh: l.WindowHigh,
		WindowLow:  l.WindowLow,
	}
}

// CoolDown returns the transition spacing as a duration.
func (l LightConfig) CoolDown() time.Duration {
	return time.Duration(l.CoolDownMS) * time.Millisecond
}

// ThermalConfig tunes the thermal pipeline.
type ThermalConfig struct {
	// Center is the interior pixel block averaged as the zenith reading.
	Center mlx90641.Region `yaml:"center"`
	// CloudThreshold is the ambient-to-sky temperature difference in °C
	// below which the zenith counts as cloudy; clear sky reads far colder
	// than the air.
	CloudThreshold float32 `yaml:"cloud_threshold"`
}

// ReportConfig drives the poll loop and the outputs.
type ReportConfig struct {
	// IntervalMS is the poll period in milliseconds.
	IntervalMS int `yaml:"interval_ms"`
	// DataDir receives the CSV measurement log; empty disables it.
	DataDir string `yaml:"data_dir"`
	MQTT    MQTTConfig `yaml:"mqtt"`
}

// Interval returns the poll period as a duration.
func (r ReportConfig) Interval() time.Duration {
	return time.Duration(r.IntervalMS) * time.Millisecond
}

// MQTTConfig configures measurement publishing; an empty broker disables
// it.
type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

// Default returns the configuration the node ships with.
func Default() *Config {
	th := tsl2591.DefaultThresholds()
	return &Config{
		Label: "skynode",
		Light: LightConfig{
			Saturation: th.Saturation,
			Extreme:    th.Extreme,
			WindowHigh: th.WindowHigh,
			WindowLow:  th.WindowLow,
			CoolDownMS: 5000,
		},
		SQM: tsl2591.DefaultSQMParams(),
		Thermal: ThermalConfig{
			Center:         mlx90641.DefaultCenter(),
			CloudThreshold: 5.0,
		},
		Report: ReportConfig{
			IntervalMS: 2000,
			MQTT: MQTTConfig{
				ClientID:    "skynode",
				TopicPrefix: "skynode",
			},
		},
	}
}

// Load loads the configuration from a YAML file. A missing file yields
// the defaults; missing fields are filled in.
func Load(filename string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", filename, err)
	}
	cfg.ensureDefaults()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ensureDefaults fills in required fields a partial file left at zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Label == "" {
		c.Label = def.Label
	}

	if c.Light.Saturation == 0 {
		c.Light.Saturation = def.Light.Saturation
	}
	if c.Light.Extreme == 0 {
		c.Light.Extreme = def.Light.Extreme
	}
	if c.Light.WindowHigh == 0 {
		c.Light.WindowHigh = def.Light.WindowHigh
	}
	if c.Light.WindowLow == 0 {
		c.Light.WindowLow = def.Light.WindowLow
	}
	if c.Light.CoolDownMS == 0 {
		c.Light.CoolDownMS = def.Light.CoolDownMS
	}

	if c.SQM.OffsetBase == 0 {
		c.SQM.OffsetBase = def.SQM.OffsetBase
	}
	if c.SQM.MagnitudeConst == 0 {
		c.SQM.MagnitudeConst = def.SQM.MagnitudeConst
	}
	if c.SQM.LensOffset == 0 {
		c.SQM.LensOffset = def.SQM.LensOffset
	}
	if c.SQM.DarkCap == 0 {
		c.SQM.DarkCap = def.SQM.DarkCap
	}

	if c.Thermal.Center.Height == 0 || c.Thermal.Center.Width == 0 {
		c.Thermal.Center = def.Thermal.Center
	}
	if c.Thermal.CloudThreshold == 0 {
		c.Thermal.CloudThreshold = def.Thermal.CloudThreshold
	}

	if c.Report.IntervalMS == 0 {
		c.Report.IntervalMS = def.Report.IntervalMS
	}
	if c.Report.MQTT.ClientID == "" {
		c.Report.MQTT.ClientID = def.Report.MQTT.ClientID
	}
	if c.Report.MQTT.TopicPrefix == "" {
		c.Report.MQTT.TopicPrefix = def.Report.MQTT.TopicPrefix
	}
}
