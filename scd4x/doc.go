// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// This package provides a driver for the Sensiron SCD4x CO2 sensors.
// The scd4x family provide a compact sensor that can be used to measure
// Temperature, Humidity, and CO2 concentration.
//
// The driver tracks the operating mode of the sensor. Commands that the
// sensor would ignore in the current mode, such as configuration writes
// during periodic measurement, fail with sensirion.ErrInvalidState before
// anything is written to the bus. Single shot measurement, power down and
// the ASC period settings are only available on the SCD41 and SCD43.
//
// Refer to the datasheet for more information.
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
package scd4x
