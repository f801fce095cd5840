// Copyright 2021 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package devices is a container for drivers of Sensirion air quality
// sensors.
//
// Package sensirion holds the I2C framing and command dispatch shared by the
// drivers. scd4x drives the SCD40, SCD41 and SCD43 CO2 sensors, sps30 the
// SPS30 particulate matter sensor and sgp30 the SGP30 TVOC sensor.
// cmd/airnode polls them and prints one reading per interval.
package devices
