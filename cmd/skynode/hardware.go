// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"errors"
	"log"

	"periph.io/x/periph/conn/i2c"
	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/mzajic/go-skynode/mlx90641"
	"github.com/mzajic/go-skynode/regbus"
	"github.com/mzajic/go-skynode/sht4x"
	"github.com/mzajic/go-skynode/skynodetest"
	"github.com/mzajic/go-skynode/tsl2591"
)

// sensors is the set of sources the poll loop draws from. A nil entry
// means the sensor is absent; the node keeps running on whatever probed
// successfully.
type sensors struct {
	light   skynodetest.Light
	thermal skynodetest.Thermal
	env     skynodetest.Env

	bus        i2c.BusCloser
	thermalBus *regbus.Dev
}

// openSensors opens the bus and probes each sensor. Individual probe
// failures are logged and tolerated; a node with a dead hygrometer
// still measures sky quality.
func openSensors(busName string, hz int) (*sensors, error) {
	if _, err := host.Init(); err != nil {
		return nil, err
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, err
	}
	if hz != 0 {
		if err := bus.SetSpeed(physic.Frequency(hz) * physic.Hertz); err != nil {
			bus.Close()
			return nil, err
		}
	}
	s := &sensors{bus: bus}

	if env, err := sht4x.New(bus); err != nil {
		log.Printf("hygro: %v", err)
	} else {
		s.env = env
	}

	if lightBus, err := regbus.New(bus, tsl2591.BusOpts()); err != nil {
		log.Printf("light: %v", err)
	} else if light, err := tsl2591.New(lightBus, nil); err != nil {
		log.Printf("light: %v", err)
	} else {
		s.light = light
	}

	if thermalBus, err := regbus.New(bus, regbus.DefaultOpts()); err != nil {
		log.Printf("thermal: %v", err)
	} else if thermal, err := mlx90641.New(thermalBus, nil); err != nil {
		log.Printf("thermal: %v", err)
	} else {
		s.thermal = thermal
		s.thermalBus = thermalBus
	}

	if s.env == nil && s.light == nil && s.thermal == nil {
		bus.Close()
		return nil, errors.New("no sensor responded on the bus")
	}
	return s, nil
}

// fakeSensors returns a full set of simulated sources.
func fakeSensors() *sensors {
	return &sensors{
		light:   skynodetest.NewLight(),
		thermal: skynodetest.NewThermal(),
		env:     skynodetest.NewEnv(),
	}
}

func (s *sensors) close() {
	if s.bus != nil {
		s.bus.Close()
	}
}
