// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package main

import (
	"strconv"
	"strings"

	"github.com/meshair/devices/scd4x"
	"github.com/meshair/devices/sps30"
	"periph.io/x/conn/v3/physic"
)

// Reading collects one round of samples. Sensors that are disabled or
// failed leave their fields zero.
type Reading struct {
	CO2         scd4x.PPM
	Temperature physic.Temperature
	Humidity    physic.RelativeHumidity
	// TVOC in ppb. Zero when no SGP30 is fitted.
	TVOC float64
	PM   sps30.Measurement
}

// Payload returns the line reported for r:
//
//	<DATA>co2,temperature °C,humidity %,tvoc,pm2.5,pm10</DATA>
//
// Each value has 6 decimals.
func (r *Reading) Payload() string {
	var temp, hum float64
	if r.Temperature != 0 {
		temp = r.Temperature.Celsius()
	}
	if r.Humidity != 0 {
		hum = float64(r.Humidity) / float64(physic.PercentRH)
	}
	values := []float64{
		float64(r.CO2),
		temp,
		hum,
		r.TVOC,
		float64(r.PM.MC2p5),
		float64(r.PM.MC10p0),
	}
	var b strings.Builder
	b.WriteString("<DATA>")
	for i, v := range values {
		if i != 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(v, 'f', 6, 64))
	}
	b.WriteString("</DATA>")
	return b.String()
}
