// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// airnode polls an SCD4x CO2 sensor, an SPS30 particulate matter sensor and
// optionally an SGP30 TVOC sensor, and prints one payload line per interval
// on stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

func mainImpl() error {
	configPath := flag.String("config", "", "path of the TOML configuration file")
	once := flag.Bool("once", false, "print a single reading and exit")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	log := newLogger(os.Stderr, cfg.LogLevel)

	if _, err := host.Init(); err != nil {
		return err
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return err
	}
	defer bus.Close()
	log.Debug().Stringer("bus", bus).Msg("opened")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	n, err := newNode(ctx, bus, cfg, nil, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.close(); err != nil {
			log.Error().Err(err).Msg("halt")
		}
	}()

	if *once {
		r := n.poll()
		_, err = fmt.Println(r.Payload())
		return err
	}
	log.Info().Dur("interval", cfg.Interval).Msg("polling")
	return n.run(ctx, cfg.Interval, os.Stdout)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "airnode: %v\n", err)
		os.Exit(1)
	}
}
