// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.
//
// Unit tests for the package. Note that this supports running on a live
// sensor, or using playback mode to simulate a live device.
//
// To use a live device, define the environment variable SCD4X and run go test.
// Tests that depend on injected faults or recorded delays are skipped on a
// live device.

package scd4x

import (
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/meshair/devices/sensirion"
	"github.com/meshair/devices/sensirion/sensiriontest"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/i2c/i2ctest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/host/v3"
)

var liveBus i2c.Bus
var liveDevice bool = false

var errNack = errors.New("i2c: nack")

// Initialization to Idle.
var initIdle = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0x36, 0xf6}},
	{Addr: SensorAddress, W: []uint8{0x3f, 0x86}},
	{Addr: SensorAddress, W: []uint8{0x36, 0x46}},
}

var startPeriodic = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0x21, 0xb1}},
}

var stopPeriodic = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0x3f, 0x86}},
}

// data ready status not ready, then ready, then a reading.
var senseOps = []i2ctest.IO{
	{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
	{Addr: SensorAddress, R: []uint8{0x80, 0x0, 0xa2}},
	{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
	{Addr: SensorAddress, R: []uint8{0x80, 0x6, 0x4}},
	{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
	{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}},
}

func init() {
	var err error
	// If the environment variable is set, assume we have a live device on
	// the default i2c bus and use it for testing. If the variable is not
	// present, then use the playback/read values.
	if os.Getenv("SCD4X") != "" {
		liveDevice = true
	}
	if !liveDevice {
		return
	}
	if _, err = host.Init(); err != nil {
		fmt.Println(err)
	}
	liveBus, err = i2creg.Open("")
	if err != nil {
		fmt.Println(err)
	}
	// Add the recorder to dump the data stream when we're using a live device.
	liveBus = &i2ctest.Record{Bus: liveBus}
}

// ops concatenates playback sequences.
func ops(parts ...[]i2ctest.IO) []i2ctest.IO {
	var result []i2ctest.IO
	for _, part := range parts {
		result = append(result, part...)
	}
	return result
}

// cmdBytes returns the bytes written for op and args.
func cmdBytes(op uint16, args ...uint16) []byte {
	return sensirion.EncodeCommand(op, args)
}

// fixture bundles a device with its test doubles.
type fixture struct {
	dev   *Dev
	pb    *i2ctest.Playback
	fb    *sensiriontest.FaultyBus
	clock *sensiriontest.Clock
	// transactions performed by NewI2C.
	initTx int
}

// newFixture returns an scd4x device for testing connected to a playback
// bus wrapped in a FaultyBus. The playback operations must include the
// initialization sequence.
func newFixture(t *testing.T, opts Opts, playbackOps []i2ctest.IO, faults map[int]error) *fixture {
	f := &fixture{
		pb:    &i2ctest.Playback{Ops: playbackOps, DontPanic: true},
		clock: &sensiriontest.Clock{},
	}
	f.fb = &sensiriontest.FaultyBus{Bus: f.pb, Fail: faults}
	opts.Clock = f.clock
	dev, err := NewI2C(f.fb, SensorAddress, &opts)
	if err != nil {
		t.Fatal(err)
	}
	f.dev = dev
	f.initTx = f.fb.Count()
	f.clock.Reset()
	return f
}

// tx returns the number of transactions attempted since initialization.
func (f *fixture) tx() int {
	return f.fb.Count() - f.initTx
}

// done verifies that every playback operation was consumed.
func (f *fixture) done(t *testing.T) {
	t.Helper()
	if f.pb.Count != len(f.pb.Ops) {
		t.Errorf("consumed %d of %d playback operations", f.pb.Count, len(f.pb.Ops))
	}
}

// getDev returns an scd4x device for testing connected to either a live
// bus, or a playback bus. playbackOps is ignored for live device testing.
func getDev(t *testing.T, opts Opts, playbackOps []i2ctest.IO) *Dev {
	if !liveDevice {
		return newFixture(t, opts, playbackOps, nil).dev
	}
	if recorder, ok := liveBus.(*i2ctest.Record); ok {
		// Clear the operations buffer.
		recorder.Ops = make([]i2ctest.IO, 0, 32)
	}
	dev, err := NewI2C(liveBus, SensorAddress, &opts)
	if err != nil {
		t.Fatal(err)
	}
	return dev
}

// shutdown dumps the recorder values if we we're running a live device.
func shutdown(t *testing.T) {
	if recorder, ok := liveBus.(*i2ctest.Record); ok {
		t.Logf("%#v", recorder.Ops)
	}
}

func skipLive(t *testing.T) {
	if liveDevice {
		t.Skip("playback only")
	}
}

func TestCountToTemperature(t *testing.T) {
	tests := []struct {
		count    uint16
		expected physic.Temperature
	}{
		{count: 0x6667, expected: physic.ZeroCelsius + 25*physic.Celsius},
	}
	for _, test := range tests {
		result := countToTemp(test.count)
		// round to 2 sig figs for the floating point comparison.
		result -= result % (10 * physic.MilliKelvin)
		if result != test.expected {
			t.Errorf("received: %.8f expected %.8f", result.Celsius(), test.expected.Celsius())
		}
	}
}

func TestCountToHumidity(t *testing.T) {
	result := countToHumidity(0x5eb9) // from the datasheet
	// Truncate to 2 decimals for comparison.
	result -= result % physic.MilliRH
	expected := physic.RelativeHumidity(37 * physic.PercentRH)
	if result != expected {
		t.Errorf("unexpected value: %d expected %d", result, expected)
	}
}

func TestTemperatureOffsetConversion(t *testing.T) {
	if count := offsetToCount(20 * physic.Kelvin); count != 0x1d42 {
		t.Errorf("offsetToCount(20K)=0x%x expected 0x1d42", count)
	}
	// Datasheet example, 0x0912 = 6.2°C
	offset := countToOffset(0x0912)
	offset -= offset % (10 * physic.MilliKelvin)
	if offset != 6200*physic.MilliKelvin {
		t.Errorf("countToOffset(0x0912)=%d expected 6.2K", offset)
	}
	for v := range 21 {
		w := attributes[TemperatureOffset].toWord(v)
		if got := attributes[TemperatureOffset].fromWord(w); got != v {
			t.Errorf("temperature offset %d round trip returned %d", v, got)
		}
	}
}

func TestSample(t *testing.T) {
	s := Sample{CO2: 556, RawTemperature: 0x6667, RawHumidity: 0x5eb9}
	if s.Temperature() != countToTemp(0x6667) || s.Humidity() != countToHumidity(0x5eb9) {
		t.Errorf("unexpected conversion of %#v", s)
	}
	if s.CO2.String() != "556 PPM" {
		t.Errorf("PPM.String()=%q", s.CO2.String())
	}
}

// Non-device basic functionality.
func TestBasic(t *testing.T) {
	dev := getDev(t, Opts{Variant: SCD41, Mode: Idle}, initIdle)
	defer shutdown(t)

	env := Env{}
	dev.Precision(&env)
	t.Logf("scd4x.Precision()=%#v\n", env)
	if env.CO2 != 1 || env.Humidity != physic.TenthMicroRH || env.Temperature != (15259*physic.NanoKelvin) {
		t.Error(fmt.Errorf("incorrect value for Precision(): %#v", env))
	}

	s := dev.String()
	t.Logf("dev.String()=%s", s)
	if len(s) == 0 {
		t.Error("Dev.String() returned empty value.")
	}
	if dev.Mode() != Idle || dev.Variant() != SCD41 {
		t.Errorf("unexpected mode %s variant %s", dev.Mode(), dev.Variant())
	}
}

func TestInit(t *testing.T) {
	skipLive(t)
	clock := &sensiriontest.Clock{}
	pb := &i2ctest.Playback{Ops: ops(initIdle, startPeriodic), DontPanic: true}
	dev, err := NewI2C(pb, SensorAddress, &Opts{Variant: SCD41, Mode: PeriodicMeasurement, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	if dev.Mode() != PeriodicMeasurement {
		t.Errorf("expected PeriodicMeasurement, got %s", dev.Mode())
	}
	want := []time.Duration{30 * time.Millisecond, 500 * time.Millisecond, 30 * time.Millisecond, 0}
	if diff := cmp.Diff(clock.Slept, want); diff != "" {
		t.Errorf("delays (-got +want):\n%s", diff)
	}

	pb = &i2ctest.Playback{Ops: ops(initIdle, []i2ctest.IO{{Addr: SensorAddress, W: []uint8{0x21, 0xac}}}), DontPanic: true}
	dev, err = NewI2C(pb, SensorAddress, &Opts{Variant: SCD41, Mode: LowPowerPeriodicMeasurement, Clock: clock})
	if err != nil {
		t.Fatal(err)
	}
	if dev.Mode() != LowPowerPeriodicMeasurement {
		t.Errorf("expected LowPowerPeriodicMeasurement, got %s", dev.Mode())
	}
}

func TestInitInvalidMode(t *testing.T) {
	skipLive(t)
	for _, mode := range []Mode{SingleShot, PowerDown, Mode(42)} {
		pb := &i2ctest.Playback{DontPanic: true}
		fb := &sensiriontest.FaultyBus{Bus: pb}
		if _, err := NewI2C(fb, SensorAddress, &Opts{Mode: mode}); err == nil {
			t.Errorf("NewI2C() accepted initial mode %s", mode)
		}
		if fb.Count() != 0 {
			t.Errorf("NewI2C() with mode %s performed %d transactions", mode, fb.Count())
		}
	}
}

func TestInitWakeUpNotAcknowledged(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, initIdle[1:], map[int]error{0: errNack})
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
	f.done(t)
}

func TestInitStopFailure(t *testing.T) {
	skipLive(t)
	pb := &i2ctest.Playback{Ops: initIdle[:1], DontPanic: true}
	fb := &sensiriontest.FaultyBus{Bus: pb, Fail: map[int]error{1: errNack}}
	_, err := NewI2C(fb, SensorAddress, &Opts{Clock: &sensiriontest.Clock{}})
	var be *sensirion.BusError
	if !errors.As(err, &be) || be.Op != 0x3f86 {
		t.Errorf("expected bus error for stop, got %v", err)
	}
}

// Configuration writes while measuring must fail without touching the bus.
func TestConfigurationWhileMeasuring(t *testing.T) {
	skipLive(t)
	for _, mode := range []Mode{PeriodicMeasurement, LowPowerPeriodicMeasurement} {
		start := startPeriodic
		if mode == LowPowerPeriodicMeasurement {
			start = []i2ctest.IO{{Addr: SensorAddress, W: []uint8{0x21, 0xac}}}
		}
		f := newFixture(t, Opts{Variant: SCD41, Mode: mode}, ops(initIdle, start), nil)
		before := f.tx()

		writes := map[Attribute]int{
			TemperatureOffset:             4,
			SensorAltitude:                100,
			AmbientPressure:               1013,
			AutomaticSelfCalibration:      1,
			SelfCalibrationInitialPeriod:  44,
			SelfCalibrationStandardPeriod: 156,
		}
		for attr, value := range writes {
			err := f.dev.SetAttribute(attr, value)
			if !errors.Is(err, sensirion.ErrInvalidState) {
				t.Errorf("%s: SetAttribute(%s) expected ErrInvalidState, got %v", mode, attr, err)
			}
		}
		if err := f.dev.SetConfiguration(&DevConfig{}); !errors.Is(err, sensirion.ErrInvalidState) {
			t.Errorf("%s: SetConfiguration() expected ErrInvalidState, got %v", mode, err)
		}
		for name, fn := range map[string]func() error{
			"Persist":  f.dev.Persist,
			"SelfTest": f.dev.SelfTest,
			"Reset":    func() error { return f.dev.Reset(ResetFactory) },
			"Start":    f.dev.StartPeriodicMeasurement,
			"Single":   f.dev.MeasureSingleShot,
			"Power":    f.dev.PowerDown,
		} {
			if err := fn(); !errors.Is(err, sensirion.ErrInvalidState) {
				t.Errorf("%s: %s() expected ErrInvalidState, got %v", mode, name, err)
			}
		}
		if _, err := f.dev.GetAttribute(SensorAltitude); !errors.Is(err, sensirion.ErrInvalidState) {
			t.Errorf("%s: GetAttribute() expected ErrInvalidState, got %v", mode, err)
		}
		if f.tx() != before {
			t.Errorf("%s: rejected commands performed %d transactions", mode, f.tx()-before)
		}
		if f.dev.Mode() != mode {
			t.Errorf("mode changed to %s", f.dev.Mode())
		}
	}
}

func TestAttributeRange(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x24, 0x1d, 0x1d, 0x42, 0xf0}},
		{Addr: SensorAddress, W: []uint8{0x24, 0x27, 0x0b, 0xb8, 0x9d}},
		{Addr: SensorAddress, W: cmdBytes(0xe000, 700)},
		{Addr: SensorAddress, W: cmdBytes(0xe000, 1200)},
		{Addr: SensorAddress, W: []uint8{0x24, 0x16, 0x0, 0x0, 0x81}},
		{Addr: SensorAddress, W: cmdBytes(0x2445, 48)},
		{Addr: SensorAddress, W: cmdBytes(0x244e, 0)},
	}), nil)

	invalid := []struct {
		attr  Attribute
		value int
	}{
		{TemperatureOffset, 21},
		{TemperatureOffset, -1},
		{SensorAltitude, 3001},
		{AmbientPressure, 699},
		{AmbientPressure, 1201},
		{AutomaticSelfCalibration, 2},
		{SelfCalibrationInitialPeriod, 6},
		{SelfCalibrationStandardPeriod, -4},
		{SelfCalibrationStandardPeriod, 0x10000},
	}
	for _, test := range invalid {
		if err := f.dev.SetAttribute(test.attr, test.value); !errors.Is(err, sensirion.ErrRange) {
			t.Errorf("SetAttribute(%s, %d) expected ErrRange, got %v", test.attr, test.value, err)
		}
	}
	if f.tx() != 0 {
		t.Fatalf("out of range values performed %d transactions", f.tx())
	}

	valid := []struct {
		attr  Attribute
		value int
	}{
		{TemperatureOffset, 20},
		{SensorAltitude, 3000},
		{AmbientPressure, 700},
		{AmbientPressure, 1200},
		{AutomaticSelfCalibration, 0},
		{SelfCalibrationInitialPeriod, 48},
		{SelfCalibrationStandardPeriod, 0},
	}
	// The period bound is the largest multiple of 4 in a word.
	for _, a := range []Attribute{SelfCalibrationInitialPeriod, SelfCalibrationStandardPeriod} {
		if err := a.Validate(0xfffc); err != nil {
			t.Errorf("%s.Validate(0xfffc): %v", a, err)
		}
	}
	for _, test := range valid {
		if err := f.dev.SetAttribute(test.attr, test.value); err != nil {
			t.Errorf("SetAttribute(%s, %d): %v", test.attr, test.value, err)
		}
	}
	if err := f.dev.SetAttribute(Attribute(99), 0); err == nil {
		t.Error("SetAttribute() accepted unknown attribute")
	}
	f.done(t)
}

func TestAttributeMetadata(t *testing.T) {
	lo, hi := TemperatureOffset.Range()
	if lo != 0 || hi != 20 {
		t.Errorf("TemperatureOffset.Range()=%d,%d", lo, hi)
	}
	lo, hi = AmbientPressure.Range()
	if lo != 700 || hi != 1200 {
		t.Errorf("AmbientPressure.Range()=%d,%d", lo, hi)
	}
	if SensorAltitude.String() != "SensorAltitude" || Attribute(99).String() != "Attribute(99)" {
		t.Errorf("unexpected attribute names %s %s", SensorAltitude, Attribute(99))
	}
}

func TestGetAttribute(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x23, 0x18}},
		{Addr: SensorAddress, R: []uint8{0x1d, 0x42, 0xf0}},
		{Addr: SensorAddress, W: []uint8{0x23, 0x22}},
		{Addr: SensorAddress, R: []uint8{0x0, 0x64, 0xfe}},
	}), nil)
	offset, err := f.dev.GetAttribute(TemperatureOffset)
	if err != nil || offset != 20 {
		t.Errorf("GetAttribute(TemperatureOffset)=%d, %v expected 20", offset, err)
	}
	altitude, err := f.dev.GetAttribute(SensorAltitude)
	if err != nil || altitude != 100 {
		t.Errorf("GetAttribute(SensorAltitude)=%d, %v expected 100", altitude, err)
	}
	f.done(t)
}

func TestForcedRecalibration(t *testing.T) {
	skipLive(t)
	frc := func(result uint16) []i2ctest.IO {
		return []i2ctest.IO{
			{Addr: SensorAddress, W: []uint8{0x36, 0x2f, 0x01, 0xa4, 0x4d}},
			{Addr: SensorAddress, R: sensiriontest.Words(result)},
		}
	}
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, stopPeriodic, frc(0x800c)), nil)
	correction, err := f.dev.ForcedRecalibration(420)
	if err != nil {
		t.Fatal(err)
	}
	if correction != 12 {
		t.Errorf("expected correction 12, got %d", correction)
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle after recalibration, got %s", f.dev.Mode())
	}
	if diff := cmp.Diff(f.clock.Slept, []time.Duration{500 * time.Millisecond, 400 * time.Millisecond}); diff != "" {
		t.Errorf("delays (-got +want):\n%s", diff)
	}
	f.done(t)

	// Negative corrections.
	f = newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, stopPeriodic, frc(0x7ff0)), nil)
	if correction, err = f.dev.ForcedRecalibration(420); err != nil || correction != -16 {
		t.Errorf("expected correction -16, got %d, %v", correction, err)
	}
}

func TestForcedRecalibrationFailed(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, stopPeriodic, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x36, 0x2f, 0x01, 0xa4, 0x4d}},
		{Addr: SensorAddress, R: []uint8{0xff, 0xff, 0xac}},
	}), nil)
	correction, err := f.dev.ForcedRecalibration(420)
	if !errors.Is(err, sensirion.ErrCalibrationFailed) {
		t.Errorf("expected ErrCalibrationFailed, got %d, %v", correction, err)
	}
	if correction != 0 {
		t.Errorf("failed recalibration returned correction %d", correction)
	}
	f.done(t)
}

func TestForcedRecalibrationState(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, initIdle, nil)
	if _, err := f.dev.ForcedRecalibration(420); !errors.Is(err, sensirion.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}
	if _, err := f.dev.ForcedRecalibration(-1); !errors.Is(err, sensirion.ErrRange) {
		t.Errorf("expected ErrRange, got %v", err)
	}
	if f.tx() != 0 {
		t.Errorf("rejected recalibration performed %d transactions", f.tx())
	}
}

func TestSingleShot(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x21, 0x9d}},
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}},
	}), nil)
	if _, err := f.dev.ReadMeasurement(); !errors.Is(err, sensirion.ErrInvalidState) {
		t.Errorf("ReadMeasurement() in Idle expected ErrInvalidState, got %v", err)
	}
	if err := f.dev.MeasureSingleShot(); err != nil {
		t.Fatal(err)
	}
	if f.dev.Mode() != SingleShot {
		t.Errorf("expected SingleShot, got %s", f.dev.Mode())
	}
	s, err := f.dev.ReadMeasurement()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(s, Sample{CO2: 0x022c, RawTemperature: 0x670d, RawHumidity: 0x4d08}); diff != "" {
		t.Errorf("sample (-got +want):\n%s", diff)
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle after reading, got %s", f.dev.Mode())
	}
	if f.clock.Total() != 5001*time.Millisecond {
		t.Errorf("expected 5.001s of delays, got %s", f.clock.Total())
	}
	f.done(t)
}

func TestSingleShotNotSupported(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD40, Mode: Idle}, initIdle, nil)
	for name, fn := range map[string]func() error{
		"MeasureSingleShot":        f.dev.MeasureSingleShot,
		"MeasureSingleShotRHTOnly": f.dev.MeasureSingleShotRHTOnly,
		"PowerDown":                f.dev.PowerDown,
		"SetAttribute":             func() error { return f.dev.SetAttribute(SelfCalibrationInitialPeriod, 44) },
		"Sense":                    func() error { return f.dev.Sense(&Env{}) },
	} {
		if err := fn(); !errors.Is(err, ErrNotSupported) {
			t.Errorf("%s() on SCD40 expected ErrNotSupported, got %v", name, err)
		}
	}
	if f.tx() != 0 {
		t.Errorf("unsupported commands performed %d transactions", f.tx())
	}
}

func TestSense(t *testing.T) {
	dev := getDev(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, senseOps, stopPeriodic))
	defer func() { _ = dev.Halt() }()
	defer shutdown(t)
	env := Env{}
	err := dev.Sense(&env)
	if err != nil {
		t.Fatal(err)
	}
	t.Log(env.String())
	if !liveDevice && env.CO2 != 556 {
		t.Errorf("expected 556 PPM, got %s", env.CO2)
	}
}

func TestSenseSingleShot(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x21, 0x9d}},
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}},
	}), nil)
	env := Env{}
	if err := f.dev.Sense(&env); err != nil {
		t.Fatal(err)
	}
	if env.CO2 != 556 || env.Temperature != countToTemp(0x670d) || env.Humidity != countToHumidity(0x4d08) {
		t.Errorf("unexpected reading %s", env.String())
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
	f.done(t)
}

func TestSenseSingleShotRetry(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x21, 0x9d}},
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa4, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}},
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x36, 0x4d, 0x8, 0xf1}},
	}), nil)
	var ce *sensirion.ChecksumError
	if err := f.dev.Sense(&Env{}); !errors.As(err, &ce) || ce.Word != 0 {
		t.Fatalf("expected checksum error on word 0, got %v", err)
	}
	// The sample is still pending, so only read_measurement is sent.
	env := Env{}
	if err := f.dev.Sense(&env); err != nil {
		t.Fatal(err)
	}
	if env.CO2 != 556 {
		t.Errorf("unexpected reading %s", env.String())
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
	f.done(t)
}

func TestSenseTimeout(t *testing.T) {
	skipLive(t)
	var notReady []i2ctest.IO
	for range 6 {
		notReady = append(notReady,
			i2ctest.IO{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
			i2ctest.IO{Addr: SensorAddress, R: []uint8{0x80, 0x0, 0xa2}})
	}
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, notReady), nil)
	env := Env{CO2: 5}
	if err := f.dev.Sense(&env); err == nil {
		t.Error("expected timeout")
	}
	if env.CO2 != 0 {
		t.Errorf("failed Sense() left CO2=%d", env.CO2)
	}
	f.done(t)
}

func TestSenseChecksumError(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0xe4, 0xb8}},
		{Addr: SensorAddress, R: []uint8{0x80, 0x6, 0x4}},
		{Addr: SensorAddress, W: []uint8{0xec, 0x5}},
		{Addr: SensorAddress, R: []uint8{0x2, 0x2c, 0xa3, 0x67, 0xd, 0x37, 0x4d, 0x8, 0xf1}},
	}), nil)
	err := f.dev.Sense(&Env{})
	var ce *sensirion.ChecksumError
	if !errors.As(err, &ce) || ce.Word != 1 {
		t.Errorf("expected checksum error on word 1, got %v", err)
	}
}

func TestPowerDownWakeUp(t *testing.T) {
	skipLive(t)
	// The first wake up is not acknowledged.
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x36, 0xe0}},
		{Addr: SensorAddress, W: []uint8{0x36, 0x82}},
		{Addr: SensorAddress, R: []uint8{0x73, 0xb1, 0x19, 0xeb, 0x7, 0x7a, 0x3b, 0xc, 0x54}},
	}), map[int]error{4: errNack})
	if err := f.dev.WakeUp(); !errors.Is(err, sensirion.ErrInvalidState) {
		t.Errorf("WakeUp() in Idle expected ErrInvalidState, got %v", err)
	}
	if err := f.dev.PowerDown(); err != nil {
		t.Fatal(err)
	}
	if f.dev.Mode() != PowerDown {
		t.Fatalf("expected PowerDown, got %s", f.dev.Mode())
	}
	if _, err := f.dev.SerialNumber(); !errors.Is(err, sensirion.ErrInvalidState) {
		t.Errorf("SerialNumber() while powered down expected ErrInvalidState, got %v", err)
	}
	if err := f.dev.WakeUp(); err != nil {
		t.Fatal(err)
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
	f.done(t)
}

func TestSelfTest(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x36, 0x39}},
		{Addr: SensorAddress, R: []uint8{0x0, 0x0, 0x81}},
		{Addr: SensorAddress, W: []uint8{0x36, 0x39}},
		{Addr: SensorAddress, R: sensiriontest.Words(0x0004)},
	}), nil)
	if err := f.dev.SelfTest(); err != nil {
		t.Error(err)
	}
	if f.clock.Total() != 10*time.Second {
		t.Errorf("self test waited %s", f.clock.Total())
	}
	if err := f.dev.SelfTest(); !errors.Is(err, ErrSelfTest) {
		t.Errorf("expected ErrSelfTest, got %v", err)
	}
	f.done(t)
}

func TestPersistAndReset(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x36, 0x15}},
		{Addr: SensorAddress, W: []uint8{0x36, 0x32}},
		{Addr: SensorAddress, W: []uint8{0x36, 0x46}},
	}), nil)
	if err := f.dev.Persist(); err != nil {
		t.Error(err)
	}
	if err := f.dev.Reset(ResetFactory); err != nil {
		t.Error(err)
	}
	if err := f.dev.Reset(ResetEEPROM); err != nil {
		t.Error(err)
	}
	if err := f.dev.Reset(ResetMode(7)); err == nil {
		t.Error("Reset() accepted invalid mode")
	}
	want := []time.Duration{800 * time.Millisecond, 1200 * time.Millisecond, 30 * time.Millisecond}
	if diff := cmp.Diff(f.clock.Slept, want); diff != "" {
		t.Errorf("delays (-got +want):\n%s", diff)
	}
	f.done(t)
}

func TestSensorVariant(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(initIdle, []i2ctest.IO{
		{Addr: SensorAddress, W: []uint8{0x20, 0x2f}},
		{Addr: SensorAddress, R: sensiriontest.Words(0x1441)},
	}), nil)
	v, err := f.dev.SensorVariant()
	if err != nil || v != SCD41 {
		t.Errorf("SensorVariant()=%s, %v expected SCD41", v, err)
	}
}

func TestHalt(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, stopPeriodic), nil)
	if err := f.dev.Halt(); err != nil {
		t.Fatal(err)
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
	// Halting an idle device is a no-op.
	if err := f.dev.Halt(); err != nil {
		t.Error(err)
	}
	f.done(t)
}

func TestSenseContinuous(t *testing.T) {
	skipLive(t)
	readings := 3
	var pbOps []i2ctest.IO
	for range readings {
		pbOps = append(pbOps, senseOps[2:]...)
	}
	f := newFixture(t, Opts{Variant: SCD41, Mode: PeriodicMeasurement}, ops(initIdle, startPeriodic, pbOps, stopPeriodic), nil)
	ch, err := f.dev.SenseContinuous(5 * time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.dev.SenseContinuous(time.Second); err == nil {
		t.Error("second SenseContinuous() did not return an error")
	}
	received := 0
	for env := range ch {
		t.Log(env.String())
		received++
		if received == readings {
			if err := f.dev.Halt(); err != nil {
				t.Error(err)
			}
		}
	}
	if received != readings {
		t.Errorf("SenseContinuous() expected %d readings, got %d", readings, received)
	}
	if f.dev.Mode() != Idle {
		t.Errorf("expected Idle, got %s", f.dev.Mode())
	}
}

// configReads returns the playback for GetConfiguration on an SCD41.
func configReads(pressure, asc, initial, standard, target, altitude, offset uint16) []i2ctest.IO {
	read := func(op uint16, words ...uint16) []i2ctest.IO {
		return []i2ctest.IO{
			{Addr: SensorAddress, W: cmdBytes(op)},
			{Addr: SensorAddress, R: sensiriontest.Words(words...)},
		}
	}
	return ops(
		read(0xe000, pressure),
		read(0x2313, asc),
		read(0x2340, initial),
		read(0x234b, standard),
		read(0x233f, target),
		read(0x3682, 0x73b1, 0xeb07, 0x3b0c),
		read(0x2322, altitude),
		read(0x2318, offset),
	)
}

func TestGetSetConfiguration(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, ops(
		initIdle,
		configReads(1013, 1, 44, 156, 400, 0, 0x05da),
		configReads(1013, 1, 44, 156, 400, 0, 0x05da),
		[]i2ctest.IO{
			{Addr: SensorAddress, W: cmdBytes(0xe000, 1018)},
			{Addr: SensorAddress, W: cmdBytes(0x2416, 0)},
			{Addr: SensorAddress, W: cmdBytes(0x2445, 48)},
			{Addr: SensorAddress, W: cmdBytes(0x244e, 160)},
			{Addr: SensorAddress, W: cmdBytes(0x2427, 1604)},
			{Addr: SensorAddress, W: cmdBytes(0x243a, 420)},
		},
		configReads(1018, 0, 48, 160, 420, 1604, 0x05da),
	), nil)

	cfg, err := f.dev.GetConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	t.Logf("existing configuration: %#v", cfg)
	if cfg.SerialNumber != 0x73b1eb073b0c {
		t.Errorf("unexpected serial number 0x%x", cfg.SerialNumber)
	}
	if cfg.AmbientPressure != 101300*physic.Pascal || cfg.ASCInitialPeriod != 44*time.Hour {
		t.Errorf("unexpected configuration %#v", cfg)
	}
	cfg.AmbientPressure += 500 * physic.Pascal
	cfg.ASCEnabled = !cfg.ASCEnabled
	cfg.ASCInitialPeriod += 4 * time.Hour
	cfg.ASCStandardPeriod += 4 * time.Hour
	cfg.ASCTarget += 20
	cfg.SensorAltitude = 1604 * physic.Metre

	if err = f.dev.SetConfiguration(cfg); err != nil {
		t.Fatal(err)
	}
	read, err := f.dev.GetConfiguration()
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(read, cfg); diff != "" {
		t.Errorf("configuration (-got +want):\n%s", diff)
	}
	f.done(t)
}

func TestSetConfigurationValidatesFirst(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD41, Mode: Idle}, initIdle, nil)
	valid := DevConfig{
		AmbientPressure:   101300 * physic.Pascal,
		ASCInitialPeriod:  44 * time.Hour,
		ASCStandardPeriod: 156 * time.Hour,
		ASCTarget:         400,
		TemperatureOffset: 4 * physic.Kelvin,
	}
	tests := []struct {
		name   string
		modify func(*DevConfig)
	}{
		{"pressure", func(c *DevConfig) { c.AmbientPressure = 120100 * physic.Pascal }},
		{"altitude", func(c *DevConfig) { c.SensorAltitude = 3001 * physic.Metre }},
		{"offset", func(c *DevConfig) { c.TemperatureOffset = 21 * physic.Kelvin }},
		{"initial period", func(c *DevConfig) { c.ASCInitialPeriod = 45 * time.Hour }},
		{"standard period", func(c *DevConfig) { c.ASCStandardPeriod = 157 * time.Hour }},
		{"fractional period", func(c *DevConfig) { c.ASCStandardPeriod = 156*time.Hour + time.Minute }},
		{"target", func(c *DevConfig) { c.ASCTarget = 0x10000 }},
	}
	for _, test := range tests {
		cfg := valid
		test.modify(&cfg)
		if err := f.dev.SetConfiguration(&cfg); !errors.Is(err, sensirion.ErrRange) {
			t.Errorf("%s: expected ErrRange, got %v", test.name, err)
		}
	}
	if f.tx() != 0 {
		t.Errorf("invalid configurations performed %d transactions", f.tx())
	}
	f.done(t)
}

func TestSetConfigurationPeriodsNotSupported(t *testing.T) {
	skipLive(t)
	f := newFixture(t, Opts{Variant: SCD40, Mode: Idle}, initIdle, nil)
	cfg := &DevConfig{
		AmbientPressure:   101800 * physic.Pascal,
		ASCStandardPeriod: 160 * time.Hour,
	}
	if err := f.dev.SetConfiguration(cfg); !errors.Is(err, ErrNotSupported) {
		t.Errorf("expected ErrNotSupported, got %v", err)
	}
	if f.tx() != 0 {
		t.Errorf("unsupported configuration performed %d transactions", f.tx())
	}
	f.done(t)
}
