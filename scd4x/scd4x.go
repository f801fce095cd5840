// Copyright 2024 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package scd4x

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meshair/devices/sensirion"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// PPM=Parts Per Million. Units of measure for CO2 concentration.
type PPM int

// Sensor Variant type
type Variant int

const (
	SCD40 Variant = iota
	SCD41
	SCD43
)

func (v Variant) String() string {
	switch v {
	case SCD40:
		return "SCD40"
	case SCD41:
		return "SCD41"
	case SCD43:
		return "SCD43"
	}
	return fmt.Sprintf("Variant(%d)", int(v))
}

// singleShot reports whether the variant implements single shot measurement,
// power down and the ASC period settings.
func (v Variant) singleShot() bool {
	return v == SCD41 || v == SCD43
}

// Type of reset to perform.
type ResetMode int

const (
	ResetFactory ResetMode = iota
	// Reset to last values stored in EEPROM
	ResetEEPROM
)

// Mode is the operating mode of the sensor.
type Mode int

const (
	Idle Mode = iota
	PeriodicMeasurement
	LowPowerPeriodicMeasurement
	// A single shot measurement was triggered and has not been read yet.
	SingleShot
	PowerDown
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "Idle"
	case PeriodicMeasurement:
		return "PeriodicMeasurement"
	case LowPowerPeriodicMeasurement:
		return "LowPowerPeriodicMeasurement"
	case SingleShot:
		return "SingleShot"
	case PowerDown:
		return "PowerDown"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

const (
	// These devices only support this i2c address.
	SensorAddress uint16 = 0x62

	// Interval between readings in each periodic mode.
	periodicInterval = 5 * time.Second
	lowPowerInterval = 30 * time.Second
	// Interval between data ready queries in Sense.
	pollInterval = time.Second

	// Returned by perform_forced_recalibration when the recalibration failed.
	frcFailed uint16 = 0xffff
	frcOffset        = 0x8000

	dataReadyMask uint16 = 1<<11 - 1
)

var (
	// ErrSelfTest is returned when perform_self_test detects a malfunction.
	ErrSelfTest = errors.New("scd4x: self test failed")
	// ErrNotSupported is returned for commands the configured variant does
	// not implement.
	ErrNotSupported = errors.New("scd4x: command not supported by sensor variant")
)

type modeMask uint8

func (m Mode) mask() modeMask {
	return 1 << m
}

const (
	inIdle      = modeMask(1) << Idle
	inPeriodic  = modeMask(1)<<PeriodicMeasurement | modeMask(1)<<LowPowerPeriodicMeasurement
	inReadable  = inPeriodic | modeMask(1)<<SingleShot
	inPowerDown = modeMask(1) << PowerDown
)

// Structure to simplify sending commands to the device.
type command struct {
	sensirion.Command
	// Modes in which the command is permitted.
	modes modeMask
	// True if only SCD41 and SCD43 implement the command.
	scd41 bool
}

// The various implemented commands.

var cmdStartPeriodicMeasurement = command{
	Command: sensirion.Command{Op: 0x21b1},
	modes:   inIdle,
}

var cmdStartLowPowerPeriodicMeasurement = command{
	Command: sensirion.Command{Op: 0x21ac},
	modes:   inIdle,
}

var cmdReadMeasurement = command{
	Command: sensirion.Command{Op: 0xec05, Response: 3, Delay: time.Millisecond},
	modes:   inReadable,
}

var cmdStopPeriodicMeasurement = command{
	Command: sensirion.Command{Op: 0x3f86, Delay: 500 * time.Millisecond},
	modes:   inPeriodic,
}
var cmdGetTemperatureOffset = command{
	Command: sensirion.Command{Op: 0x2318, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdSetTemperatureOffset = command{
	Command: sensirion.Command{Op: 0x241d, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdGetSensorAltitude = command{
	Command: sensirion.Command{Op: 0x2322, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdSetSensorAltitude = command{
	Command: sensirion.Command{Op: 0x2427, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdGetAmbientPressure = command{
	Command: sensirion.Command{Op: 0xe000, Response: 1, Delay: time.Millisecond},
	modes:   inIdle | inPeriodic,
}
var cmdSetAmbientPressure = command{
	Command: sensirion.Command{Op: 0xe000, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdPerformForcedRecalibration = command{
	Command: sensirion.Command{Op: 0x362f, Args: 1, Response: 1, Delay: 400 * time.Millisecond},
	modes:   inIdle,
}
var cmdSetASCEnabled = command{
	Command: sensirion.Command{Op: 0x2416, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdGetASCEnabled = command{
	Command: sensirion.Command{Op: 0x2313, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdGetASCTarget = command{
	Command: sensirion.Command{Op: 0x233f, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdSetASCTarget = command{
	Command: sensirion.Command{Op: 0x243a, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdGetDataReadyStatus = command{
	Command: sensirion.Command{Op: 0xe4b8, Response: 1, Delay: time.Millisecond},
	modes:   inReadable,
}
var cmdPersistSettings = command{
	Command: sensirion.Command{Op: 0x3615, Delay: 800 * time.Millisecond},
	modes:   inIdle,
}
var cmdGetSerialNumber = command{
	Command: sensirion.Command{Op: 0x3682, Response: 3, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdPerformSelfTest = command{
	Command: sensirion.Command{Op: 0x3639, Response: 1, Delay: 10 * time.Second},
	modes:   inIdle,
}
var cmdPerformFactoryReset = command{
	Command: sensirion.Command{Op: 0x3632, Delay: 1200 * time.Millisecond},
	modes:   inIdle,
}
var cmdReinit = command{
	Command: sensirion.Command{Op: 0x3646, Delay: 30 * time.Millisecond},
	modes:   inIdle,
}
var cmdGetSensorVariant = command{
	Command: sensirion.Command{Op: 0x202f, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
}
var cmdMeasureSingleShot = command{
	Command: sensirion.Command{Op: 0x219d, Delay: 5000 * time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdMeasureSingleShotRHTOnly = command{
	Command: sensirion.Command{Op: 0x2196, Delay: 50 * time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdPowerDown = command{
	Command: sensirion.Command{Op: 0x36e0, Delay: time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdWakeUp = command{
	Command: sensirion.Command{Op: 0x36f6, Delay: 30 * time.Millisecond},
	modes:   inPowerDown,
	scd41:   true,
}
var cmdGetASCInitialPeriod = command{
	Command: sensirion.Command{Op: 0x2340, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdSetASCInitialPeriod = command{
	Command: sensirion.Command{Op: 0x2445, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdGetASCStandardPeriod = command{
	Command: sensirion.Command{Op: 0x234b, Response: 1, Delay: time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}
var cmdSetASCStandardPeriod = command{
	Command: sensirion.Command{Op: 0x244e, Args: 1, Delay: time.Millisecond},
	modes:   inIdle,
	scd41:   true,
}

// Opts holds the configuration applied when the device is created.
type Opts struct {
	// The sensor model. Single shot measurement, power down and the ASC
	// period settings are only available on the SCD41 and SCD43.
	Variant Variant
	// Mode entered after initialization. One of Idle, PeriodicMeasurement
	// or LowPowerPeriodicMeasurement.
	Mode Mode
	// Clock used to wait for command execution. Defaults to
	// sensirion.SystemClock.
	Clock sensirion.Clock
}

// DefaultOpts is the configuration used when NewI2C is passed nil opts.
var DefaultOpts = Opts{
	Variant: SCD41,
	Mode:    PeriodicMeasurement,
}

// Dev represents an SCD4x device.
type Dev struct {
	// The i2c bus device.
	c       *i2c.Dev
	cmd     *sensirion.Dispatcher
	clock   sensirion.Clock
	variant Variant
	// channel to halt SenseContinuous
	chHalt chan struct{}
	mu     sync.Mutex
	mode   Mode
}

func (ppm PPM) String() string {
	return fmt.Sprintf("%d PPM", int(ppm))
}

// The sensor reading. Returns CO2 PPM, Temperature, and Humidity.
type Env struct {
	physic.Env
	CO2 PPM
}

// Return the sensor readings in string format.
func (e *Env) String() string {
	return fmt.Sprintf("Temperature: %s Humidity: %s CO2: %s", e.Temperature.String(), e.Humidity.String(), e.CO2.String())
}

// Sample is a raw measurement as returned by read_measurement.
type Sample struct {
	CO2            PPM
	RawTemperature uint16
	RawHumidity    uint16
}

// Temperature converts the raw temperature word.
func (s Sample) Temperature() physic.Temperature {
	return countToTemp(s.RawTemperature)
}

// Humidity converts the raw humidity word.
func (s Sample) Humidity() physic.RelativeHumidity {
	return countToHumidity(s.RawHumidity)
}

// NewI2C creates a new SCD4x sensor using the supplied bus and address.
// The constant value SensorAddress should be supplied as the value for
// addr. If opts is nil, DefaultOpts is used.
//
// The sensor is woken, any running measurement is stopped and the settings
// are reloaded from EEPROM before the requested mode is entered.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	switch opts.Mode {
	case Idle, PeriodicMeasurement, LowPowerPeriodicMeasurement:
	default:
		return nil, fmt.Errorf("scd4x: invalid initial mode %s", opts.Mode)
	}
	clock := opts.Clock
	if clock == nil {
		clock = sensirion.SystemClock
	}
	c := &i2c.Dev{Bus: b, Addr: addr}
	d := &Dev{
		c:       c,
		cmd:     sensirion.NewDispatcher(c, clock),
		clock:   clock,
		variant: opts.Variant,
	}
	if err := d.init(opts.Mode); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Dev) init(mode Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	// A powered down sensor needs wake_up, which it never acknowledges. An
	// awake sensor ignores it.
	_, _ = d.cmd.Execute(cmdWakeUp.Command)
	// A sensor left in a periodic mode only accepts a small set of commands.
	if _, err := d.cmd.Execute(cmdStopPeriodicMeasurement.Command); err != nil {
		return fmt.Errorf("scd4x: init: %w", err)
	}
	if _, err := d.cmd.Execute(cmdReinit.Command); err != nil {
		return fmt.Errorf("scd4x: init: %w", err)
	}
	d.mode = Idle

	switch mode {
	case PeriodicMeasurement:
		return d.transition(cmdStartPeriodicMeasurement, PeriodicMeasurement)
	case LowPowerPeriodicMeasurement:
		return d.transition(cmdStartLowPowerPeriodicMeasurement, LowPowerPeriodicMeasurement)
	}
	return nil
}

// Mode returns the current operating mode.
func (d *Dev) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// Variant returns the configured sensor model.
func (d *Dev) Variant() Variant {
	return d.variant
}

// check verifies that cmd may be sent in the current mode. No bus traffic
// takes place.
func (d *Dev) check(cmd command) error {
	if cmd.scd41 && !d.variant.singleShot() {
		return fmt.Errorf("%w: cmd %s on %s", ErrNotSupported, cmd.Command, d.variant)
	}
	if cmd.modes&d.mode.mask() == 0 {
		return fmt.Errorf("scd4x: cmd %s in mode %s: %w", cmd.Command, d.mode, sensirion.ErrInvalidState)
	}
	return nil
}

// All commands to read or write to the sensor go through this function. The
// caller must hold d.mu.
func (d *Dev) sendCommand(cmd command, args ...uint16) ([]uint16, error) {
	if err := d.check(cmd); err != nil {
		return nil, err
	}
	words, err := d.cmd.Execute(cmd.Command, args...)
	if err != nil {
		return nil, fmt.Errorf("scd4x: %w", err)
	}
	return words, nil
}

// transition sends cmd and, if it succeeded, enters next.
func (d *Dev) transition(cmd command, next Mode) error {
	if _, err := d.sendCommand(cmd); err != nil {
		return err
	}
	d.mode = next
	return nil
}

// StartPeriodicMeasurement starts periodic measurement with a 5 second signal
// update interval.
func (d *Dev) StartPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdStartPeriodicMeasurement, PeriodicMeasurement)
}

// StartLowPowerPeriodicMeasurement starts periodic measurement with a 30
// second signal update interval.
func (d *Dev) StartLowPowerPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdStartLowPowerPeriodicMeasurement, LowPowerPeriodicMeasurement)
}

// StopPeriodicMeasurement returns the sensor to Idle. Configuration can only
// be changed in Idle.
func (d *Dev) StopPeriodicMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdStopPeriodicMeasurement, Idle)
}

// MeasureSingleShot triggers a measurement of CO2, temperature and humidity
// and blocks until it is complete. The reading is retrieved with
// ReadMeasurement, which returns the sensor to Idle.
func (d *Dev) MeasureSingleShot() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdMeasureSingleShot, SingleShot)
}

// MeasureSingleShotRHTOnly is like MeasureSingleShot but only measures
// temperature and humidity. The CO2 value read afterwards is 0.
func (d *Dev) MeasureSingleShotRHTOnly() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdMeasureSingleShotRHTOnly, SingleShot)
}

// ReadMeasurement reads the latest sample. In periodic modes a sample is only
// available once DataReady reports true. After a single shot it returns the
// sensor to Idle.
func (d *Dev) ReadMeasurement() (Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readMeasurement()
}

func (d *Dev) readMeasurement() (Sample, error) {
	words, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return Sample{}, err
	}
	if d.mode == SingleShot {
		d.mode = Idle
	}
	return Sample{CO2: PPM(words[0]), RawTemperature: words[1], RawHumidity: words[2]}, nil
}

// DataReady reports whether a new sample can be read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataReady()
}

func (d *Dev) dataReady() (bool, error) {
	words, err := d.sendCommand(cmdGetDataReadyStatus)
	if err != nil {
		return false, err
	}
	return words[0]&dataReadyMask != 0, nil
}

// PowerDown puts the sensor into sleep mode to reduce current consumption.
func (d *Dev) PowerDown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdPowerDown, PowerDown)
}

// WakeUp returns a powered down sensor to Idle. The sensor does not
// acknowledge wake_up, so the wake up is confirmed by reading the serial
// number.
func (d *Dev) WakeUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.check(cmdWakeUp); err != nil {
		return err
	}
	_, _ = d.cmd.Execute(cmdWakeUp.Command)
	if _, err := d.cmd.Execute(cmdGetSerialNumber.Command); err != nil {
		return fmt.Errorf("scd4x: wake up: %w", err)
	}
	d.mode = Idle
	return nil
}

// ForcedRecalibration recalibrates the sensor against a reference CO2
// concentration and returns the correction applied, in PPM.
//
// The sensor must have been in PeriodicMeasurement for at least 3 minutes in
// an environment with a homogeneous and constant CO2 concentration. The
// measurement is stopped first, and the sensor is left in Idle.
func (d *Dev) ForcedRecalibration(target PPM) (PPM, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if target < 0 || target > 0xffff {
		return 0, fmt.Errorf("scd4x: forced recalibration target %s: %w", target, sensirion.ErrRange)
	}
	if d.mode != PeriodicMeasurement {
		return 0, fmt.Errorf("scd4x: forced recalibration in mode %s: %w", d.mode, sensirion.ErrInvalidState)
	}
	if err := d.transition(cmdStopPeriodicMeasurement, Idle); err != nil {
		return 0, err
	}
	words, err := d.sendCommand(cmdPerformForcedRecalibration, uint16(target))
	if err != nil {
		return 0, err
	}
	if words[0] == frcFailed {
		return 0, fmt.Errorf("scd4x: %w", sensirion.ErrCalibrationFailed)
	}
	return PPM(int(words[0]) - frcOffset), nil
}

// SelfTest performs the end-of-line self test. It takes 10 seconds.
func (d *Dev) SelfTest() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdPerformSelfTest)
	if err != nil {
		return err
	}
	if words[0] != 0 {
		return fmt.Errorf("%w: result 0x%04x", ErrSelfTest, words[0])
	}
	return nil
}

// Persist writes the current running configuration to the sensor EEPROM for
// use on the next power-up.
func (d *Dev) Persist() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdPersistSettings)
	return err
}

// Reset performs either a factory reset, or a re-load of settings from EEPROM
// depending on the value of mode. During development, it was noticed that
// ResetFactory DOES NOT reset AmbientPressure to 0.
func (d *Dev) Reset(mode ResetMode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var err error
	if mode == ResetFactory {
		_, err = d.sendCommand(cmdPerformFactoryReset)
	} else if mode == ResetEEPROM {
		_, err = d.sendCommand(cmdReinit)
	} else {
		err = fmt.Errorf("scd4x: invalid reset mode 0x%x", mode)
	}
	return err
}

// SerialNumber returns the 48 bit unique serial number of the device.
func (d *Dev) SerialNumber() (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serialNumber()
}

func (d *Dev) serialNumber() (int64, error) {
	words, err := d.sendCommand(cmdGetSerialNumber)
	if err != nil {
		return 0, err
	}
	return int64(words[0])<<32 | int64(words[1])<<16 | int64(words[2]), nil
}

// SensorVariant reads the model from the device. Older firmware does not
// implement the command.
func (d *Dev) SensorVariant() (Variant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sensorVariant()
}

func (d *Dev) sensorVariant() (Variant, error) {
	words, err := d.sendCommand(cmdGetSensorVariant)
	if err != nil {
		return 0, err
	}
	switch words[0] >> 12 {
	case 0:
		return SCD40, nil
	case 1:
		return SCD41, nil
	case 5:
		return SCD43, nil
	}
	return 0, fmt.Errorf("scd4x: unknown sensor variant 0x%04x", words[0])
}

// Halt stops continuous sensing if enabled, and if a SenseContinuous operation
// is in progress, it too is halted.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chHalt != nil {
		close(d.chHalt)
		d.chHalt = nil
	}
	if d.mode.mask()&inPeriodic != 0 {
		return d.transition(cmdStopPeriodicMeasurement, Idle)
	}
	return nil
}

// offsetToCount converts a temperature offset to the device word.
func offsetToCount(offset physic.Temperature) uint16 {
	return uint16(float64(offset)/float64(physic.Kelvin)*65535.0/175.0 + 0.5)
}

// Formula used for temperature offset calculation.
func countToOffset(count uint16) physic.Temperature {
	frac := 175.0 / 65535.0
	return physic.Temperature(frac * float64(count) * float64(physic.Kelvin))
}

// countToTemp converts a device count to Temperature
func countToTemp(count uint16) physic.Temperature {
	frac := float64(count) / 65535.0
	result := -45 + 175*frac
	return physic.ZeroCelsius + physic.Temperature(float64(physic.Celsius)*result)
}

func countToHumidity(count uint16) physic.RelativeHumidity {
	frac := float64(count) / 65535.0
	return physic.RelativeHumidity(frac * 100.0 * float64(physic.PercentRH))
}

// Sense returns readings (Temperature, Humidity, and CO2 concentration in PPM)
// from the device.
//
// In a periodic mode it waits for the next sample, which can take up to the
// measurement interval (5 seconds, or 30 seconds in low power mode). In Idle
// it performs a single shot measurement, which takes 5 seconds. If reading a
// single shot sample failed, the next call reads it again.
func (d *Dev) Sense(env *Env) error {
	env.Temperature = 0
	env.Humidity = 0
	env.CO2 = 0
	env.Pressure = 0

	d.mu.Lock()
	defer d.mu.Unlock()

	var s Sample
	var err error
	switch d.mode {
	case PeriodicMeasurement:
		s, err = d.waitAndRead(periodicInterval)
	case LowPowerPeriodicMeasurement:
		s, err = d.waitAndRead(lowPowerInterval)
	case Idle:
		if err = d.transition(cmdMeasureSingleShot, SingleShot); err == nil {
			s, err = d.readMeasurement()
		}
	case SingleShot:
		// A previous single shot read failed. The sample is still pending.
		s, err = d.readMeasurement()
	default:
		err = fmt.Errorf("scd4x: sense in mode %s: %w", d.mode, sensirion.ErrInvalidState)
	}
	if err != nil {
		return err
	}
	env.CO2 = s.CO2
	env.Temperature = s.Temperature()
	env.Humidity = s.Humidity()
	return nil
}

// waitAndRead polls the data ready status for up to one interval and then
// reads the sample.
func (d *Dev) waitAndRead(interval time.Duration) (Sample, error) {
	for range int(interval/pollInterval) + 1 {
		ready, err := d.dataReady()
		if err != nil {
			return Sample{}, err
		}
		if ready {
			return d.readMeasurement()
		}
		d.clock.Sleep(pollInterval)
	}
	return Sample{}, errors.New("scd4x: timeout waiting for data ready status")
}

// SenseContinuous continuously reads the sensor on the specified duration, and
// writes readings to the returned channel. The sense time for the scd4x device
// is 5 seconds in normal acquisition mode. If you specify a shorter period than
// that, the routine will spin until the device indicates a reading is ready. To
// terminate a continuous sense, call Halt().
func (d *Dev) SenseContinuous(interval time.Duration) (<-chan Env, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.chHalt != nil {
		return nil, errors.New("scd4x: SenseContinuous() running already")
	}
	if d.mode.mask()&(inPeriodic|inIdle) == 0 {
		return nil, fmt.Errorf("scd4x: SenseContinuous() in mode %s: %w", d.mode, sensirion.ErrInvalidState)
	}
	channelSize := 16
	channel := make(chan Env, channelSize)
	chHalt := make(chan struct{})
	d.chHalt = chHalt

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer close(channel)

		for {
			select {
			case <-chHalt:
				return
			case <-ticker.C:
				// do the reading and write to the channel.
				e := Env{}
				err := d.Sense(&e)
				if err == nil && len(channel) < channelSize {
					channel <- e
				}
			}
		}
	}()
	return channel, nil
}

// Precision returns the sensor's resolution, or minimum value between steps the
// device can make. The specified precision is 1 PPM for CO2, 1/65535 for temperature
// and humidity.
func (d *Dev) Precision(env *Env) {
	countIncrement := float64(1.0) / float64((1<<16)-1)
	env.Temperature = physic.Temperature(countIncrement * float64(physic.Celsius))
	env.Pressure = 0
	env.Humidity = physic.RelativeHumidity(float64(physic.PercentRH) * countIncrement)
	env.CO2 = 1
}

func (d *Dev) String() string {
	return fmt.Sprintf("scd4x: %s", d.c.String())
}
