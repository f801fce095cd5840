// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/meshair/devices/scd4x"
	"github.com/meshair/devices/sensirion"
	"github.com/meshair/devices/sgp30"
	"github.com/meshair/devices/sps30"
	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/i2c"
)

// node owns the sensors on one bus and polls them in turn.
type node struct {
	log        zerolog.Logger
	co2        *scd4x.Dev
	pm         *sps30.Dev
	voc        *sgp30.Dev
	compensate bool
}

// newNode initializes the enabled sensors. The TVOC sensor measures in the
// background until ctx is done.
func newNode(ctx context.Context, b i2c.Bus, cfg Config, clock sensirion.Clock, log zerolog.Logger) (*node, error) {
	if !cfg.SCD4x.Enabled && !cfg.SPS30.Enabled && !cfg.SGP30.Enabled {
		return nil, errors.New("no sensor enabled")
	}
	n := &node{log: log, compensate: cfg.SGP30.Compensate}
	if cfg.SCD4x.Enabled {
		dev, err := scd4x.NewI2C(b, cfg.SCD4x.Address, &scd4x.Opts{
			Variant: cfg.SCD4x.Variant,
			Mode:    cfg.SCD4x.Mode,
			Clock:   clock,
		})
		if err != nil {
			return nil, err
		}
		n.co2 = dev
		log.Info().Stringer("dev", dev).Stringer("variant", cfg.SCD4x.Variant).Stringer("mode", cfg.SCD4x.Mode).Msg("co2 sensor ready")
	}
	if cfg.SPS30.Enabled {
		dev, err := sps30.NewI2C(b, cfg.SPS30.Address, &sps30.Opts{StartMeasurement: true, Clock: clock})
		if err != nil {
			return nil, errors.Join(err, n.close())
		}
		n.pm = dev
		if cfg.SPS30.AutoCleanDays >= 0 {
			if err := dev.SetFanAutoCleaningIntervalDays(uint8(cfg.SPS30.AutoCleanDays)); err != nil {
				return nil, errors.Join(err, n.close())
			}
		}
		log.Info().Stringer("dev", dev).Msg("particulate sensor ready")
	}
	if cfg.SGP30.Enabled {
		dev, err := sgp30.NewI2C(b, cfg.SGP30.Address, &sgp30.Opts{Clock: clock})
		if err != nil {
			return nil, errors.Join(err, n.close())
		}
		if err := dev.Start(ctx); err != nil {
			return nil, errors.Join(err, n.close())
		}
		n.voc = dev
		log.Info().Stringer("dev", dev).Msg("tvoc sensor ready")
	}
	return n, nil
}

// poll reads every sensor once. A failing sensor is logged and leaves its
// part of the reading zero.
func (n *node) poll() Reading {
	r := Reading{}
	if n.co2 != nil {
		env := scd4x.Env{}
		if err := n.co2.Sense(&env); err != nil {
			n.log.Warn().Err(err).Msg("co2 sensor")
		} else {
			r.CO2 = env.CO2
			r.Temperature = env.Temperature
			r.Humidity = env.Humidity
		}
	}
	if n.pm != nil {
		if err := n.pm.Sense(&r.PM); err != nil {
			n.log.Warn().Err(err).Msg("particulate sensor")
		}
	}
	if n.voc != nil {
		if n.compensate && r.Temperature != 0 {
			ah := sgp30.AbsoluteHumidity(r.Temperature, r.Humidity)
			if err := n.voc.SetHumidity(ah); err != nil {
				n.log.Warn().Err(err).Float64("absolute_humidity", ah).Msg("tvoc sensor")
			}
		}
		r.TVOC = float64(n.voc.AirQuality().TVOC)
	}
	return r
}

// run writes one payload line to out per interval until ctx is done.
func (n *node) run(ctx context.Context, interval time.Duration, out io.Writer) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r := n.poll()
		line := r.Payload()
		n.log.Debug().Str("payload", line).Msg("reading")
		if _, err := fmt.Fprintln(out, line); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// close stops measuring on every sensor.
func (n *node) close() error {
	var errs []error
	if n.co2 != nil {
		errs = append(errs, n.co2.Halt())
	}
	if n.pm != nil {
		errs = append(errs, n.pm.Halt())
	}
	return errors.Join(errs...)
}
