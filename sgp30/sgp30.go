// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sgp30 provides a driver for the Sensirion SGP30 air quality sensor.
//
// The sensor reports a total volatile organic compounds (TVOC) value and a
// CO2 equivalent derived from it. Its dynamic baseline compensation needs a
// measurement every second, which Start takes care of.
//
// # Datasheet
//
// https://sensirion.com/media/documents/984E0DD5/61644B8B/Sensirion_Gas_Sensors_Datasheet_SGP30.pdf
package sgp30

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/meshair/devices/sensirion"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// DefaultAddress is the only I2C address of the SGP30.
const DefaultAddress uint16 = 0x58

// Result of measure_test on a working sensor.
const selfTestOK uint16 = 0xd400

// Interval between measure_iaq commands required by the baseline algorithm.
const measureInterval = time.Second

var cmdInitAirQuality = sensirion.Command{Op: 0x2003, Delay: 10 * time.Millisecond}
var cmdMeasureAirQuality = sensirion.Command{Op: 0x2008, Response: 2, Delay: 12 * time.Millisecond}
var cmdGetBaseline = sensirion.Command{Op: 0x2015, Response: 2, Delay: 10 * time.Millisecond}
var cmdSetBaseline = sensirion.Command{Op: 0x201e, Args: 2, Delay: 10 * time.Millisecond}
var cmdSetHumidity = sensirion.Command{Op: 0x2061, Args: 1, Delay: 10 * time.Millisecond}
var cmdMeasureTest = sensirion.Command{Op: 0x2032, Response: 1, Delay: 220 * time.Millisecond}
var cmdGetFeatureSetVersion = sensirion.Command{Op: 0x202f, Response: 1, Delay: 10 * time.Millisecond}
var cmdMeasureRawSignals = sensirion.Command{Op: 0x2050, Response: 2, Delay: 25 * time.Millisecond}
var cmdGetTVOCBaseline = sensirion.Command{Op: 0x20b3, Response: 1, Delay: 10 * time.Millisecond}
var cmdSetTVOCBaseline = sensirion.Command{Op: 0x2077, Args: 1, Delay: 10 * time.Millisecond}
var cmdGetSerialNumber = sensirion.Command{Op: 0x3682, Response: 3, Delay: time.Millisecond}

// ErrSelfTest is returned when measure_test detects a malfunction.
var ErrSelfTest = errors.New("sgp30: self test failed")

// CO2 represents the current carbon dioxide equivalent value in ppm
type CO2 uint16

func (c CO2) String() string {
	return strconv.Itoa(int(c)) + "ppm"
}

// TVOC represents the current total volatile organic compounds value in ppb
type TVOC uint16

func (t TVOC) String() string {
	return strconv.Itoa(int(t)) + "ppb"
}

// Env represents measurements from an environmental sensor.
type Env struct {
	CO2  CO2
	TVOC TVOC
}

// Baseline is the state of the compensation algorithm. It can be saved and
// restored across power cycles.
type Baseline struct {
	CO2  uint16
	TVOC uint16
}

// Opts holds the configuration applied when the device is created.
type Opts struct {
	// Clock used to wait for command execution. Defaults to
	// sensirion.SystemClock.
	Clock sensirion.Clock
}

// Dev is a handle to an initialized SGP30 device.
type Dev struct {
	c   *i2c.Dev
	cmd *sensirion.Dispatcher

	mu  sync.Mutex
	env Env
	// Set once the background measurement loop is running.
	running bool
}

// NewI2C returns an object that communicates over I2C to SGP30 environmental
// sensor and starts the air quality algorithm.
//
// DefaultAddress should be supplied for addr. For the first 15 seconds after
// initialization the sensor reports 400ppm and 0ppb.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	c := &i2c.Dev{Bus: b, Addr: addr}
	d := &Dev{
		c:   c,
		cmd: sensirion.NewDispatcher(c, opts.Clock),
		env: Env{CO2: 400},
	}
	if _, err := d.cmd.Execute(cmdInitAirQuality); err != nil {
		return nil, fmt.Errorf("sgp30: init: %w", err)
	}
	return d, nil
}

func (d *Dev) execute(cmd sensirion.Command, args ...uint16) ([]uint16, error) {
	words, err := d.cmd.Execute(cmd, args...)
	if err != nil {
		return nil, fmt.Errorf("sgp30: %w", err)
	}
	return words, nil
}

// Start measures once and then keeps measuring every second until ctx is
// done. AirQuality returns the latest values.
func (d *Dev) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return errors.New("sgp30: measurement already running")
	}
	d.mu.Unlock()

	if _, err := d.Measure(); err != nil {
		return err
	}

	d.mu.Lock()
	d.running = true
	d.mu.Unlock()

	go func() {
		ticker := time.NewTicker(measureInterval)
		defer ticker.Stop()
		defer func() {
			d.mu.Lock()
			d.running = false
			d.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				// Failures keep the previous values. The next tick retries.
				_, _ = d.Measure()
			}
		}
	}()
	return nil
}

// AirQuality returns the latest measured values.
func (d *Dev) AirQuality() Env {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.env
}

// Measure performs a measure_iaq and returns the values.
func (d *Dev) Measure() (Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdMeasureAirQuality)
	if err != nil {
		return Env{}, err
	}
	d.env = Env{CO2: CO2(words[0]), TVOC: TVOC(words[1])}
	return d.env, nil
}

// Baseline returns the current baseline of the compensation algorithm.
func (d *Dev) Baseline() (Baseline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdGetBaseline)
	if err != nil {
		return Baseline{}, err
	}
	return Baseline{CO2: words[0], TVOC: words[1]}, nil
}

// SetBaseline restores a baseline previously returned by Baseline.
func (d *Dev) SetBaseline(b Baseline) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The sensor expects the values in the reverse order of get_iaq_baseline.
	_, err := d.execute(cmdSetBaseline, b.TVOC, b.CO2)
	return err
}

// TVOCInceptiveBaseline returns the TVOC baseline the sensor starts with
// when no baseline was restored.
func (d *Dev) TVOCInceptiveBaseline() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdGetTVOCBaseline)
	if err != nil {
		return 0, err
	}
	return words[0], nil
}

// SetTVOCBaseline sets the TVOC baseline only.
func (d *Dev) SetTVOCBaseline(v uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.execute(cmdSetTVOCBaseline, v)
	return err
}

// SetHumidity enables humidity compensation with an absolute humidity in
// g/m³. A value of 0 disables the compensation.
func (d *Dev) SetHumidity(gramsPerCubicMetre float64) error {
	if gramsPerCubicMetre < 0 || gramsPerCubicMetre >= 256 {
		return fmt.Errorf("sgp30: absolute humidity %.3fg/m³: %w", gramsPerCubicMetre, sensirion.ErrRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.execute(cmdSetHumidity, humidityToWord(gramsPerCubicMetre))
	return err
}

// humidityToWord converts to the 8.8 fixed point format. The sensor treats 0
// as disabled, so tiny values are raised to the smallest step.
func humidityToWord(v float64) uint16 {
	w := uint16(math.Round(v * 256))
	if w == 0 && v > 0 {
		w = 1
	}
	return w
}

// AbsoluteHumidity converts a temperature and relative humidity to the
// absolute humidity in g/m³ expected by SetHumidity.
func AbsoluteHumidity(t physic.Temperature, rh physic.RelativeHumidity) float64 {
	c := t.Celsius()
	rel := float64(rh) / float64(physic.PercentRH)
	return 216.7 * (rel / 100 * 6.112 * math.Exp(17.62*c/(243.12+c)) / (273.15 + c))
}

// RawSignals returns the raw H2 and ethanol signals.
func (d *Dev) RawSignals() (h2, ethanol uint16, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdMeasureRawSignals)
	if err != nil {
		return 0, 0, err
	}
	return words[0], words[1], nil
}

// SelfTest runs the on-chip self test. It must not be run while Start is
// measuring, since it resets the baseline.
func (d *Dev) SelfTest() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return fmt.Errorf("sgp30: self test while measuring: %w", sensirion.ErrInvalidState)
	}
	words, err := d.execute(cmdMeasureTest)
	if err != nil {
		return err
	}
	if words[0] != selfTestOK {
		return fmt.Errorf("%w: result 0x%04x", ErrSelfTest, words[0])
	}
	return nil
}

// FeatureSetVersion returns the product type and the feature set version.
func (d *Dev) FeatureSetVersion() (productType uint8, version uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdGetFeatureSetVersion)
	if err != nil {
		return 0, 0, err
	}
	return uint8(words[0] >> 12), uint8(words[0]), nil
}

// SerialNumber returns the 48 bit serial number of the device.
func (d *Dev) SerialNumber() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.execute(cmdGetSerialNumber)
	if err != nil {
		return 0, err
	}
	return int64(words[0])<<32 | int64(words[1])<<16 | int64(words[2]), nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sgp30: %s", d.c.String())
}
