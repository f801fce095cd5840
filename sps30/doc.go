// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sps30 provides a driver for the Sensirion SPS30 particulate matter
// sensor over I2C.
//
// The sensor reports mass concentrations (µg/m³) for PM1.0, PM2.5, PM4.0 and
// PM10, number concentrations (#/cm³) for PM0.5 to PM10 and the typical
// particle size (µm). Values are read as IEEE-754 floats.
//
// # Datasheet
//
// https://sensirion.com/media/documents/8600FF88/64A3B8D6/Sensirion_PM_Sensors_Datasheet_SPS30.pdf
package sps30
