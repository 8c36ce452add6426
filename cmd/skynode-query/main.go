// Copyright 2025 Martin Zajic. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// skynode-query probes the sensors over I²C and prints one reading from
// each, for bring-up and cabling checks.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"periph.io/x/periph/conn/i2c/i2creg"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/host"

	"github.com/mzajic/go-skynode/mlx90641"
	"github.com/mzajic/go-skynode/regbus"
	"github.com/mzajic/go-skynode/sht4x"
	"github.com/mzajic/go-skynode/tsl2591"
)

func mainImpl() error {
	i2cName := flag.String("i2c", "", "I²C bus to use")
	i2cHz := flag.Int("hz", 0, "I²C bus speed")
	flag.Parse()

	if len(flag.Args()) != 0 {
		return fmt.Errorf("unexpected argument: %s", flag.Args())
	}

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(*i2cName)
	if err != nil {
		return err
	}
	defer bus.Close()
	if *i2cHz != 0 {
		if err := bus.SetSpeed(physic.Frequency(*i2cHz) * physic.Hertz); err != nil {
			return err
		}
	}

	fmt.Printf("Hygrometer (0x%02X):\n", sht4x.Addr)
	if env, err := sht4x.New(bus); err != nil {
		fmt.Printf("  %s\n", err)
	} else {
		sn, _ := env.SerialNumber()
		fmt.Printf("  Serial:      0x%08X\n", sn)
		if e, err := env.Sense(); err != nil {
			fmt.Printf("  %s\n", err)
		} else {
			fmt.Printf("  Temperature: %.2f°C\n", e.Temperature)
			fmt.Printf("  Humidity:    %.1f%%RH\n", e.Humidity)
			fmt.Printf("  Dew point:   %.2f°C\n", e.DewPoint)
		}
	}

	fmt.Printf("Light sensor (0x%02X):\n", tsl2591.Addr)
	if lightBus, err := regbus.New(bus, tsl2591.BusOpts()); err != nil {
		fmt.Printf("  %s\n", err)
	} else if light, err := tsl2591.New(lightBus, nil); err != nil {
		fmt.Printf("  %s\n", err)
	} else {
		if s, err := light.Sample(); err != nil {
			fmt.Printf("  %s\n", err)
		} else {
			fmt.Printf("  Full/IR:     %d / %d\n", s.Full, s.IR)
			fmt.Printf("  Settings:    %s / %s\n", s.Gain, s.Integration)
			fmt.Printf("  VIS:         %.3f (valid: %t)\n", s.VIS, s.Valid)
		}
		fmt.Printf("  Bus stats:   %+v\n", lightBus.Stats())
	}

	fmt.Printf("Thermal array (0x33):\n")
	thermalBus, err := regbus.New(bus, regbus.DefaultOpts())
	if err != nil {
		fmt.Printf("  %s\n", err)
		return nil
	}
	thermal, err := mlx90641.New(thermalBus, nil)
	if err != nil {
		fmt.Printf("  %s\n", err)
		return nil
	}
	cal := thermal.Calibration()
	fmt.Printf("  Scales:      alpha 2^%d, kta 2^%d, kv 2^%d\n", cal.AlphaScale, cal.KtaScale, cal.KvScale)
	// The first frame takes up to one refresh period to latch.
	var m mlx90641.Measurement
	for i := 0; i < 10; i++ {
		if m, err = thermal.Read(); !errors.Is(err, mlx90641.ErrNoData) {
			break
		}
		time.Sleep(250 * time.Millisecond)
	}
	if err != nil {
		fmt.Printf("  %s\n", err)
	} else {
		fmt.Printf("  Vdd:         %.2fV\n", m.Vdd)
		fmt.Printf("  Ta:          %.2f°C\n", m.Ta)
		fmt.Printf("  Center:      %.2f°C\n", m.Regions.Center)
		fmt.Printf("  Corners:     %.2f / %.2f / %.2f / %.2f °C\n", m.Regions.TopLeft, m.Regions.TopRight, m.Regions.BottomLeft, m.Regions.BottomRight)
	}
	fmt.Printf("  Bus stats:   %+v\n", thermalBus.Stats())
	return nil
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nskynode-query: %s.\n", err)
		os.Exit(1)
	}
}
