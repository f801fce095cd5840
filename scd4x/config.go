// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"fmt"
	"math"
	"time"

	"github.com/meshair/devices/sensirion"
	"periph.io/x/conn/v3/physic"
)

// Attribute identifies a configuration setting that can be read with
// GetAttribute and written with SetAttribute. Each attribute has a declared
// range; values outside it are rejected before anything is written to the
// device.
type Attribute int

const (
	// Temperature offset in °C, 0 to 20. The offset is subtracted from the
	// measured temperature.
	TemperatureOffset Attribute = iota
	// Sensor altitude in metres above sea level, 0 to 3000.
	SensorAltitude
	// Ambient pressure in hPa, 700 to 1200.
	AmbientPressure
	// Automatic self calibration, 0 (disabled) or 1 (enabled).
	AutomaticSelfCalibration
	// Hours before the first automatic self calibration. Multiple of 4.
	SelfCalibrationInitialPeriod
	// Hours between automatic self calibrations. Multiple of 4.
	SelfCalibrationStandardPeriod
)

type attribute struct {
	name     string
	min, max int
	// Valid values are multiples of step.
	step int
	get  command
	set  command
	// Conversions between the attribute value and the device word.
	toWord   func(int) uint16
	fromWord func(uint16) int
}

func identity(v int) uint16 { return uint16(v) }

func identityWord(w uint16) int { return int(w) }

var attributes = [...]attribute{
	TemperatureOffset: {
		name: "TemperatureOffset", min: 0, max: 20, step: 1,
		get: cmdGetTemperatureOffset, set: cmdSetTemperatureOffset,
		toWord: func(v int) uint16 {
			return offsetToCount(physic.Temperature(v) * physic.Kelvin)
		},
		fromWord: func(w uint16) int {
			return int(math.Round(float64(countToOffset(w)) / float64(physic.Kelvin)))
		},
	},
	SensorAltitude: {
		name: "SensorAltitude", min: 0, max: 3000, step: 1,
		get: cmdGetSensorAltitude, set: cmdSetSensorAltitude,
		toWord: identity, fromWord: identityWord,
	},
	AmbientPressure: {
		name: "AmbientPressure", min: 700, max: 1200, step: 1,
		get: cmdGetAmbientPressure, set: cmdSetAmbientPressure,
		toWord: identity, fromWord: identityWord,
	},
	AutomaticSelfCalibration: {
		name: "AutomaticSelfCalibration", min: 0, max: 1, step: 1,
		get: cmdGetASCEnabled, set: cmdSetASCEnabled,
		toWord: identity, fromWord: identityWord,
	},
	SelfCalibrationInitialPeriod: {
		// 0xfffc is the largest multiple of 4 that fits the 16 bit word. The
		// datasheet gives no upper bound.
		name: "SelfCalibrationInitialPeriod", min: 0, max: 0xfffc, step: 4,
		get: cmdGetASCInitialPeriod, set: cmdSetASCInitialPeriod,
		toWord: identity, fromWord: identityWord,
	},
	SelfCalibrationStandardPeriod: {
		// Same word bound as the initial period.
		name: "SelfCalibrationStandardPeriod", min: 0, max: 0xfffc, step: 4,
		get: cmdGetASCStandardPeriod, set: cmdSetASCStandardPeriod,
		toWord: identity, fromWord: identityWord,
	},
}

func (a Attribute) lookup() (*attribute, error) {
	if a < 0 || int(a) >= len(attributes) {
		return nil, fmt.Errorf("scd4x: unknown attribute %d", int(a))
	}
	return &attributes[a], nil
}

func (a Attribute) String() string {
	if attr, err := a.lookup(); err == nil {
		return attr.name
	}
	return fmt.Sprintf("Attribute(%d)", int(a))
}

// Range returns the inclusive bounds of the attribute.
func (a Attribute) Range() (lo, hi int) {
	attr, err := a.lookup()
	if err != nil {
		return 0, -1
	}
	return attr.min, attr.max
}

// Validate returns an error wrapping sensirion.ErrRange if value is not a
// legal value for the attribute.
func (a Attribute) Validate(value int) error {
	attr, err := a.lookup()
	if err != nil {
		return err
	}
	if value < attr.min || value > attr.max || value%attr.step != 0 {
		if attr.step > 1 {
			return fmt.Errorf("scd4x: %s %d not a multiple of %d in [%d, %d]: %w", attr.name, value, attr.step, attr.min, attr.max, sensirion.ErrRange)
		}
		return fmt.Errorf("scd4x: %s %d not in [%d, %d]: %w", attr.name, value, attr.min, attr.max, sensirion.ErrRange)
	}
	return nil
}

// SetAttribute writes a configuration attribute. The sensor must be Idle;
// stop periodic measurement first. Changes are lost on power-cycle unless
// Persist is called.
func (d *Dev) SetAttribute(a Attribute, value int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAttribute(a, value)
}

func (d *Dev) setAttribute(a Attribute, value int) error {
	if err := a.Validate(value); err != nil {
		return err
	}
	attr := &attributes[a]
	_, err := d.sendCommand(attr.set, attr.toWord(value))
	return err
}

// GetAttribute reads a configuration attribute. Except for AmbientPressure,
// the sensor must be Idle.
func (d *Dev) GetAttribute(a Attribute) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getAttribute(a)
}

func (d *Dev) getAttribute(a Attribute) (int, error) {
	attr, err := a.lookup()
	if err != nil {
		return 0, err
	}
	words, err := d.sendCommand(attr.get)
	if err != nil {
		return 0, err
	}
	return attr.fromWord(words[0]), nil
}

// DevConfig is the current running configuration of the device. Values prefixed
// with ASC refer to Auto-Self-Calibration. Use Dev.GetConfiguration() to read
// the value, and Dev.SetConfiguration() to apply changes.
//
// Refer to the datasheet for more information on settings.
type DevConfig struct {
	// Ambient pressure value. Used to adjust operation of sensor.
	AmbientPressure physic.Pressure
	// Automatic-Self-Calibration enabled. True or false.
	ASCEnabled bool
	// Refer to datasheet for usage. SCD41 and SCD43 only.
	ASCInitialPeriod time.Duration
	// Refer to datasheet for usage. SCD41 and SCD43 only.
	ASCStandardPeriod time.Duration
	// Target CO2 concentration for automatic self calibration. To obtain the
	// current value, visit:
	//
	// https://www.co2.earth/daily-co2
	ASCTarget PPM
	// Sensor altitude in metres. Alternative method to adjust ambient pressure
	// for sensor correction.
	SensorAltitude physic.Distance
	// The 48 bit unique serial number of the device. Read-Only
	SerialNumber int64
	// Offset temperature added to reading. Refer to the datasheet for usage.
	TemperatureOffset physic.Temperature
	// The Type of sensor. SCD40, SCD41 or SCD43. Read-Only
	SensorType Variant
}

// GetConfiguration returns a structure containing all of the scd4x configuration
// variables. You can then alter settings and call SetConfiguration with it.
// The sensor must be Idle.
//
// To examine the device use:
//
//	cfg, _ :=dev.GetConfiguration()
//	fmt.Printf("Configuration=%#v\n", cfg)
func (d *Dev) GetConfiguration() (*DevConfig, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.getConfiguration()
}

func (d *Dev) getConfiguration() (*DevConfig, error) {
	cfg := &DevConfig{SensorType: d.variant}
	var words []uint16
	var err error

	if words, err = d.sendCommand(cmdGetAmbientPressure); err != nil {
		return nil, err
	}
	cfg.AmbientPressure = physic.Pascal * 100 * physic.Pressure(words[0])

	if words, err = d.sendCommand(cmdGetASCEnabled); err != nil {
		return nil, err
	}
	cfg.ASCEnabled = words[0] != 0

	if d.variant.singleShot() {
		if words, err = d.sendCommand(cmdGetASCInitialPeriod); err != nil {
			return nil, err
		}
		cfg.ASCInitialPeriod = time.Hour * time.Duration(words[0])

		if words, err = d.sendCommand(cmdGetASCStandardPeriod); err != nil {
			return nil, err
		}
		cfg.ASCStandardPeriod = time.Hour * time.Duration(words[0])
	}

	if words, err = d.sendCommand(cmdGetASCTarget); err != nil {
		return nil, err
	}
	cfg.ASCTarget = PPM(words[0])

	if cfg.SerialNumber, err = d.serialNumber(); err != nil {
		return nil, err
	}

	if words, err = d.sendCommand(cmdGetSensorAltitude); err != nil {
		return nil, err
	}
	cfg.SensorAltitude = physic.Distance(words[0]) * physic.Metre

	if words, err = d.sendCommand(cmdGetTemperatureOffset); err != nil {
		return nil, err
	}
	cfg.TemperatureOffset = countToOffset(words[0])

	return cfg, nil
}

// SetConfiguration alters the configuration of the sensor. Only settings that
// differ from the running configuration are written. Every value is validated
// before anything is sent to the sensor, and an AmbientPressure of zero leaves
// the pressure compensation unchanged. The sensor must be Idle.
//
// Note that this call does not persist the settings to EEPROM. You need to
// call Persist() to commit the writes to EEPROM. If you do not persist
// changes, then those settings will be lost when the unit is power-cycled.
func (d *Dev) SetConfiguration(newCfg *DevConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.mode != Idle {
		return fmt.Errorf("scd4x: SetConfiguration() in mode %s: %w", d.mode, sensirion.ErrInvalidState)
	}
	writes, err := d.validateConfiguration(newCfg)
	if err != nil {
		return err
	}
	currentConfig, err := d.getConfiguration()
	if err != nil {
		return fmt.Errorf("scd4x GetConfiguration(): %w", err)
	}
	current := d.configWrites(currentConfig)
	for i, w := range writes {
		if w.attr == AmbientPressure && newCfg.AmbientPressure == 0 {
			continue
		}
		if current[i].value == w.value {
			continue
		}
		if err := d.setAttribute(w.attr, w.value); err != nil {
			return err
		}
	}
	if currentConfig.ASCTarget != newCfg.ASCTarget {
		if _, err := d.sendCommand(cmdSetASCTarget, uint16(newCfg.ASCTarget)); err != nil {
			return err
		}
	}
	// The offset is written directly so fractional degrees survive.
	if currentConfig.TemperatureOffset != newCfg.TemperatureOffset {
		if _, err := d.sendCommand(cmdSetTemperatureOffset, offsetToCount(newCfg.TemperatureOffset)); err != nil {
			return err
		}
	}
	return nil
}

type configWrite struct {
	attr  Attribute
	value int
}

// configWrites converts cfg to attribute values, in the order they are
// written. The ASC periods are only present on variants that support them.
func (d *Dev) configWrites(cfg *DevConfig) []configWrite {
	asc := 0
	if cfg.ASCEnabled {
		asc = 1
	}
	writes := []configWrite{
		{AmbientPressure, int(cfg.AmbientPressure / (100 * physic.Pascal))},
		{AutomaticSelfCalibration, asc},
	}
	if d.variant.singleShot() {
		writes = append(writes,
			configWrite{SelfCalibrationInitialPeriod, int(cfg.ASCInitialPeriod / time.Hour)},
			configWrite{SelfCalibrationStandardPeriod, int(cfg.ASCStandardPeriod / time.Hour)},
		)
	}
	return append(writes, configWrite{SensorAltitude, int(cfg.SensorAltitude / physic.Metre)})
}

// validateConfiguration checks every field of cfg without any bus traffic and
// returns the attribute values to write.
func (d *Dev) validateConfiguration(cfg *DevConfig) ([]configWrite, error) {
	if !d.variant.singleShot() && (cfg.ASCInitialPeriod != 0 || cfg.ASCStandardPeriod != 0) {
		return nil, fmt.Errorf("%w: asc periods on %s", ErrNotSupported, d.variant)
	}
	if cfg.ASCInitialPeriod%time.Hour != 0 {
		return nil, fmt.Errorf("scd4x: invalid initial period %s: %w", cfg.ASCInitialPeriod, sensirion.ErrRange)
	}
	if cfg.ASCStandardPeriod%time.Hour != 0 {
		return nil, fmt.Errorf("scd4x: invalid standard period %s: %w", cfg.ASCStandardPeriod, sensirion.ErrRange)
	}
	if cfg.TemperatureOffset < 0 || cfg.TemperatureOffset > 20*physic.Kelvin {
		return nil, fmt.Errorf("scd4x: invalid temperature offset %.2f°C: %w", float64(cfg.TemperatureOffset)/float64(physic.Kelvin), sensirion.ErrRange)
	}
	if cfg.ASCTarget < 0 || cfg.ASCTarget > 0xffff {
		return nil, fmt.Errorf("scd4x: invalid asc target %s: %w", cfg.ASCTarget, sensirion.ErrRange)
	}
	writes := d.configWrites(cfg)
	for _, w := range writes {
		if w.attr == AmbientPressure && cfg.AmbientPressure == 0 {
			continue
		}
		if err := w.attr.Validate(w.value); err != nil {
			return nil, err
		}
	}
	return writes, nil
}
