// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/meshair/devices/scd4x"
	"github.com/meshair/devices/sgp30"
	"github.com/meshair/devices/sps30"
	"github.com/rs/zerolog"
)

// Config is the runtime configuration of the node.
type Config struct {
	// Name of the I2C bus, as accepted by i2creg.Open. Empty selects the
	// first bus.
	Bus string
	// Time between two payload lines.
	Interval time.Duration
	LogLevel zerolog.Level
	SCD4x    SCD4xConfig
	SPS30    SPS30Config
	SGP30    SGP30Config
}

type SCD4xConfig struct {
	Enabled bool
	Address uint16
	Variant scd4x.Variant
	Mode    scd4x.Mode
}

type SPS30Config struct {
	Enabled bool
	Address uint16
	// Auto cleaning interval written at start up. Negative leaves the
	// sensor setting alone.
	AutoCleanDays int
}

// SGP30Config configures the optional TVOC sensor.
type SGP30Config struct {
	Enabled bool
	Address uint16
	// Feed the SCD4x temperature and humidity to the humidity compensation.
	Compensate bool
}

func defaultConfig() Config {
	return Config{
		Interval: 5 * time.Second,
		LogLevel: zerolog.InfoLevel,
		SCD4x: SCD4xConfig{
			Enabled: true,
			Address: scd4x.SensorAddress,
			Variant: scd4x.SCD41,
			Mode:    scd4x.PeriodicMeasurement,
		},
		SPS30: SPS30Config{
			Enabled:       true,
			Address:       sps30.DefaultAddress,
			AutoCleanDays: -1,
		},
		SGP30: SGP30Config{
			Address:    sgp30.DefaultAddress,
			Compensate: true,
		},
	}
}

type fileConfig struct {
	Bus      string    `toml:"bus"`
	Interval string    `toml:"interval"`
	LogLevel string    `toml:"log_level"`
	SCD4x    fileSCD4x `toml:"scd4x"`
	SPS30    fileSPS30 `toml:"sps30"`
	SGP30    fileSGP30 `toml:"sgp30"`
}

type fileSCD4x struct {
	Enabled bool   `toml:"enabled"`
	Address int    `toml:"address"`
	Variant string `toml:"variant"`
	Mode    string `toml:"mode"`
}

type fileSPS30 struct {
	Enabled       bool `toml:"enabled"`
	Address       int  `toml:"address"`
	AutoCleanDays int  `toml:"autoclean_days"`
}

type fileSGP30 struct {
	Enabled    bool `toml:"enabled"`
	Address    int  `toml:"address"`
	Compensate bool `toml:"compensate"`
}

// loadConfig overlays the settings defined in the TOML file at path onto
// the defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load airnode config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) != 0 {
		return Config{}, fmt.Errorf("load airnode config: unknown keys %v", undecoded)
	}

	if meta.IsDefined("bus") {
		cfg.Bus = strings.TrimSpace(raw.Bus)
	}
	if meta.IsDefined("interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Interval))
		if err != nil {
			return Config{}, fmt.Errorf("parse interval: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("parse interval: %s is not positive", d)
		}
		cfg.Interval = d
	}
	if meta.IsDefined("log_level") {
		lvl, ok := parseLevel(raw.LogLevel)
		if !ok {
			return Config{}, fmt.Errorf("parse log_level: unknown level %q", raw.LogLevel)
		}
		cfg.LogLevel = lvl
	}

	if meta.IsDefined("scd4x", "enabled") {
		cfg.SCD4x.Enabled = raw.SCD4x.Enabled
	}
	if meta.IsDefined("scd4x", "address") {
		if cfg.SCD4x.Address, err = parseAddress(raw.SCD4x.Address); err != nil {
			return Config{}, fmt.Errorf("parse scd4x.address: %w", err)
		}
	}
	if meta.IsDefined("scd4x", "variant") {
		if cfg.SCD4x.Variant, err = parseVariant(raw.SCD4x.Variant); err != nil {
			return Config{}, fmt.Errorf("parse scd4x.variant: %w", err)
		}
	}
	if meta.IsDefined("scd4x", "mode") {
		if cfg.SCD4x.Mode, err = parseMode(raw.SCD4x.Mode); err != nil {
			return Config{}, fmt.Errorf("parse scd4x.mode: %w", err)
		}
	}

	if meta.IsDefined("sps30", "enabled") {
		cfg.SPS30.Enabled = raw.SPS30.Enabled
	}
	if meta.IsDefined("sps30", "address") {
		if cfg.SPS30.Address, err = parseAddress(raw.SPS30.Address); err != nil {
			return Config{}, fmt.Errorf("parse sps30.address: %w", err)
		}
	}
	if meta.IsDefined("sps30", "autoclean_days") {
		if raw.SPS30.AutoCleanDays < 0 || raw.SPS30.AutoCleanDays > 0xff {
			return Config{}, fmt.Errorf("parse sps30.autoclean_days: %d not in [0, 255]", raw.SPS30.AutoCleanDays)
		}
		cfg.SPS30.AutoCleanDays = raw.SPS30.AutoCleanDays
	}

	if meta.IsDefined("sgp30", "enabled") {
		cfg.SGP30.Enabled = raw.SGP30.Enabled
	}
	if meta.IsDefined("sgp30", "address") {
		if cfg.SGP30.Address, err = parseAddress(raw.SGP30.Address); err != nil {
			return Config{}, fmt.Errorf("parse sgp30.address: %w", err)
		}
	}
	if meta.IsDefined("sgp30", "compensate") {
		cfg.SGP30.Compensate = raw.SGP30.Compensate
	}

	return cfg, nil
}

func parseAddress(v int) (uint16, error) {
	if v < 0x08 || v > 0x77 {
		return 0, fmt.Errorf("0x%x is not a 7 bit i2c address", v)
	}
	return uint16(v), nil
}

func parseVariant(raw string) (scd4x.Variant, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "scd40":
		return scd4x.SCD40, nil
	case "scd41":
		return scd4x.SCD41, nil
	case "scd43":
		return scd4x.SCD43, nil
	}
	return 0, fmt.Errorf("unknown variant %q", raw)
}

func parseMode(raw string) (scd4x.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "idle", "single_shot":
		return scd4x.Idle, nil
	case "periodic":
		return scd4x.PeriodicMeasurement, nil
	case "low_power", "low_power_periodic":
		return scd4x.LowPowerPeriodicMeasurement, nil
	}
	return 0, fmt.Errorf("unknown mode %q", raw)
}
