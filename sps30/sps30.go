// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sps30

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/meshair/devices/sensirion"
	"periph.io/x/conn/v3/i2c"
)

// DefaultAddress is the only I2C address of the SPS30.
const DefaultAddress uint16 = 0x69

// Mode is the operating mode of the sensor.
type Mode int

const (
	Idle Mode = iota
	Measuring
	Sleeping
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "Idle"
	case Measuring:
		return "Measuring"
	case Sleeping:
		return "Sleeping"
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

type modeMask uint8

func (m Mode) mask() modeMask {
	return 1 << m
}

const (
	inIdle      = modeMask(1) << Idle
	inMeasuring = modeMask(1) << Measuring
	inSleeping  = modeMask(1) << Sleeping
	inAwake     = inIdle | inMeasuring
)

const (
	// Output format argument of start_measurement: big-endian IEEE-754 floats.
	floatFormat uint16 = 0x0300

	secondsPerDay = 24 * 60 * 60

	// The sensor produces a new measurement every second.
	measurementInterval = time.Second
	pollInterval        = 100 * time.Millisecond

	serialWords = 16
)

// Bits of the device status register.
const (
	fanSpeedWarning = 1 << 21
	laserError      = 1 << 5
	fanError        = 1 << 4
)

type command struct {
	sensirion.Command
	// Modes in which the command is permitted.
	modes modeMask
}

var cmdStartMeasurement = command{
	Command: sensirion.Command{Op: 0x0010, Args: 1, Delay: 20 * time.Millisecond},
	modes:   inIdle,
}
var cmdStopMeasurement = command{
	Command: sensirion.Command{Op: 0x0104, Delay: 20 * time.Millisecond},
	modes:   inMeasuring,
}
var cmdReadMeasurement = command{
	Command: sensirion.Command{Op: 0x0300, Response: 20},
	modes:   inMeasuring,
}
var cmdGetDataReady = command{
	Command: sensirion.Command{Op: 0x0202, Response: 1},
	modes:   inMeasuring,
}
var cmdGetAutoCleanInterval = command{
	Command: sensirion.Command{Op: 0x8004, Response: 2, Delay: 5 * time.Millisecond},
	modes:   inAwake,
}
var cmdSetAutoCleanInterval = command{
	Command: sensirion.Command{Op: 0x8004, Args: 2, Delay: 20 * time.Millisecond},
	modes:   inAwake,
}
var cmdStartFanCleaning = command{
	Command: sensirion.Command{Op: 0x5607, Delay: 5 * time.Millisecond},
	modes:   inMeasuring,
}
var cmdGetFirmwareVersion = command{
	Command: sensirion.Command{Op: 0xd100, Response: 1},
	modes:   inAwake,
}
var cmdGetSerial = command{
	Command: sensirion.Command{Op: 0xd033, Response: serialWords},
	modes:   inAwake,
}
var cmdReset = command{
	Command: sensirion.Command{Op: 0xd304, Delay: 100 * time.Millisecond},
	modes:   inAwake,
}
var cmdSleep = command{
	Command: sensirion.Command{Op: 0x1001, Delay: 5 * time.Millisecond},
	modes:   inIdle,
}

// The wake up command must be received twice within 100ms. The first only
// wakes the interface and is not acknowledged, so it has no settle time.
var cmdWakeUpFirst = command{
	Command: sensirion.Command{Op: 0x1103},
	modes:   inSleeping | inIdle,
}
var cmdWakeUp = command{
	Command: sensirion.Command{Op: 0x1103, Delay: 5 * time.Millisecond},
	modes:   inSleeping | inIdle,
}
var cmdReadStatusRegister = command{
	Command: sensirion.Command{Op: 0xd206, Response: 2, Delay: 5 * time.Millisecond},
	modes:   inAwake,
}

// Measurement is a single reading.
type Measurement struct {
	// Mass concentrations in µg/m³.
	MC1p0  float32
	MC2p5  float32
	MC4p0  float32
	MC10p0 float32
	// Number concentrations in #/cm³.
	NC0p5  float32
	NC1p0  float32
	NC2p5  float32
	NC4p0  float32
	NC10p0 float32
	// Typical particle size in µm.
	TypicalParticleSize float32
}

func (m *Measurement) String() string {
	return fmt.Sprintf("PM1.0: %.2fµg/m³ PM2.5: %.2fµg/m³ PM4.0: %.2fµg/m³ PM10: %.2fµg/m³ Typical size: %.2fµm",
		m.MC1p0, m.MC2p5, m.MC4p0, m.MC10p0, m.TypicalParticleSize)
}

// Status is the content of the device status register.
type Status uint32

// FanSpeedWarning reports that the fan speed is out of range.
func (s Status) FanSpeedWarning() bool {
	return s&fanSpeedWarning != 0
}

// LaserError reports that the laser current is out of range.
func (s Status) LaserError() bool {
	return s&laserError != 0
}

// FanError reports that the fan is switched on but not turning.
func (s Status) FanError() bool {
	return s&fanError != 0
}

func (s Status) String() string {
	return fmt.Sprintf("0x%08x", uint32(s))
}

// Opts holds the configuration applied when the device is created.
type Opts struct {
	// Start measuring once the sensor was found.
	StartMeasurement bool
	// Clock used to wait for command execution. Defaults to
	// sensirion.SystemClock.
	Clock sensirion.Clock
}

// Dev represents an SPS30 sensor.
type Dev struct {
	c     *i2c.Dev
	cmd   *sensirion.Dispatcher
	clock sensirion.Clock

	mu   sync.Mutex
	mode Mode
}

// NewI2C returns a Dev for the sensor at addr on b. DefaultAddress should be
// supplied for addr. The sensor is woken up in case it was sleeping, and its
// serial number is read to confirm it is present.
func NewI2C(b i2c.Bus, addr uint16, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &Opts{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = sensirion.SystemClock
	}
	c := &i2c.Dev{Bus: b, Addr: addr}
	d := &Dev{
		c:     c,
		cmd:   sensirion.NewDispatcher(c, clock),
		clock: clock,
		mode:  Sleeping,
	}
	if err := d.probe(); err != nil {
		return nil, err
	}
	if opts.StartMeasurement && d.Mode() != Measuring {
		if err := d.StartMeasurement(); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dev) probe() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	// A sensor that is not asleep does not acknowledge wake up.
	_ = d.wakeUp()
	d.mode = Idle
	if _, err := d.serialNumber(); err != nil {
		return fmt.Errorf("sps30: probe: %w", err)
	}
	// Only a measuring sensor acknowledges get_data_ready. One left measuring
	// by a previous run rejects start_measurement.
	if _, err := d.cmd.Execute(cmdGetDataReady.Command); err == nil {
		d.mode = Measuring
	}
	return nil
}

// Mode returns the current operating mode.
func (d *Dev) Mode() Mode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

// sendCommand verifies that cmd is legal in the current mode and executes it.
// The caller must hold d.mu.
func (d *Dev) sendCommand(cmd command, args ...uint16) ([]uint16, error) {
	if cmd.modes&d.mode.mask() == 0 {
		return nil, fmt.Errorf("sps30: cmd %s in mode %s: %w", cmd.Command, d.mode, sensirion.ErrInvalidState)
	}
	words, err := d.cmd.Execute(cmd.Command, args...)
	if err != nil {
		return nil, fmt.Errorf("sps30: %w", err)
	}
	return words, nil
}

func (d *Dev) transition(cmd command, next Mode, args ...uint16) error {
	if _, err := d.sendCommand(cmd, args...); err != nil {
		return err
	}
	d.mode = next
	return nil
}

// StartMeasurement starts measuring. A new measurement is available every
// second.
func (d *Dev) StartMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdStartMeasurement, Measuring, floatFormat)
}

// StopMeasurement returns the sensor to Idle.
func (d *Dev) StopMeasurement() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdStopMeasurement, Idle)
}

// Sleep puts an idle sensor to sleep. Only WakeUp is accepted while sleeping.
func (d *Dev) Sleep() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdSleep, Sleeping)
}

// WakeUp returns a sleeping sensor to Idle.
func (d *Dev) WakeUp() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.wakeUp(); err != nil {
		return err
	}
	d.mode = Idle
	return nil
}

func (d *Dev) wakeUp() error {
	_, _ = d.sendCommand(cmdWakeUpFirst)
	_, err := d.sendCommand(cmdWakeUp)
	return err
}

// DataReady reports whether a new measurement can be read.
func (d *Dev) DataReady() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dataReady()
}

func (d *Dev) dataReady() (bool, error) {
	words, err := d.sendCommand(cmdGetDataReady)
	if err != nil {
		return false, err
	}
	return words[0] != 0, nil
}

// ReadMeasurement reads the latest measurement.
func (d *Dev) ReadMeasurement() (Measurement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readMeasurement()
}

func (d *Dev) readMeasurement() (Measurement, error) {
	w, err := d.sendCommand(cmdReadMeasurement)
	if err != nil {
		return Measurement{}, err
	}
	return Measurement{
		MC1p0:               sensirion.Float32(w[0], w[1]),
		MC2p5:               sensirion.Float32(w[2], w[3]),
		MC4p0:               sensirion.Float32(w[4], w[5]),
		MC10p0:              sensirion.Float32(w[6], w[7]),
		NC0p5:               sensirion.Float32(w[8], w[9]),
		NC1p0:               sensirion.Float32(w[10], w[11]),
		NC2p5:               sensirion.Float32(w[12], w[13]),
		NC4p0:               sensirion.Float32(w[14], w[15]),
		NC10p0:              sensirion.Float32(w[16], w[17]),
		TypicalParticleSize: sensirion.Float32(w[18], w[19]),
	}, nil
}

// StartFanCleaning runs the fan at maximum speed for 10 seconds.
func (d *Dev) StartFanCleaning() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, err := d.sendCommand(cmdStartFanCleaning)
	return err
}

// FanAutoCleaningInterval returns the interval between automatic fan
// cleanings, with a resolution of one second.
func (d *Dev) FanAutoCleaningInterval() (time.Duration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seconds, err := d.autoCleanSeconds()
	if err != nil {
		return 0, err
	}
	return time.Duration(seconds) * time.Second, nil
}

// SetFanAutoCleaningInterval sets the interval between automatic fan
// cleanings. The value is written to flash. A value of 0 disables automatic
// cleaning.
func (d *Dev) SetFanAutoCleaningInterval(interval time.Duration) error {
	if interval < 0 || interval%time.Second != 0 || interval/time.Second > 0xffffffff {
		return fmt.Errorf("sps30: invalid auto cleaning interval %s: %w", interval, sensirion.ErrRange)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAutoCleanSeconds(uint32(interval / time.Second))
}

// FanAutoCleaningIntervalDays returns the auto cleaning interval in whole
// days, rounded down.
func (d *Dev) FanAutoCleaningIntervalDays() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	seconds, err := d.autoCleanSeconds()
	if err != nil {
		return 0, err
	}
	days := SecondsToDays(seconds)
	if days > 0xff {
		days = 0xff
	}
	return uint8(days), nil
}

// SetFanAutoCleaningIntervalDays sets the auto cleaning interval in days.
func (d *Dev) SetFanAutoCleaningIntervalDays(days uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setAutoCleanSeconds(DaysToSeconds(uint32(days)))
}

func (d *Dev) autoCleanSeconds() (uint32, error) {
	words, err := d.sendCommand(cmdGetAutoCleanInterval)
	if err != nil {
		return 0, err
	}
	return sensirion.Uint32(words[0], words[1]), nil
}

func (d *Dev) setAutoCleanSeconds(seconds uint32) error {
	hi, lo := sensirion.SplitUint32(seconds)
	_, err := d.sendCommand(cmdSetAutoCleanInterval, hi, lo)
	return err
}

// SecondsToDays converts an auto cleaning interval to whole days, rounding
// down.
func SecondsToDays(seconds uint32) uint32 {
	return seconds / secondsPerDay
}

// DaysToSeconds converts days to an auto cleaning interval in seconds.
func DaysToSeconds(days uint32) uint32 {
	return days * secondsPerDay
}

// ReadDeviceStatusRegister returns the device status flags.
func (d *Dev) ReadDeviceStatusRegister() (Status, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdReadStatusRegister)
	if err != nil {
		return 0, err
	}
	return Status(sensirion.Uint32(words[0], words[1])), nil
}

// FirmwareVersion returns the firmware version of the sensor.
func (d *Dev) FirmwareVersion() (major, minor uint8, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	words, err := d.sendCommand(cmdGetFirmwareVersion)
	if err != nil {
		return 0, 0, err
	}
	return uint8(words[0] >> 8), uint8(words[0]), nil
}

// SerialNumber returns the ASCII serial number of the sensor.
func (d *Dev) SerialNumber() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.serialNumber()
}

func (d *Dev) serialNumber() (string, error) {
	words, err := d.sendCommand(cmdGetSerial)
	if err != nil {
		return "", err
	}
	b := sensirion.Bytes(words)
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b), nil
}

// Reset performs a soft reset. The sensor returns to Idle.
func (d *Dev) Reset() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transition(cmdReset, Idle)
}

// Sense waits for the next measurement and reads it. The sensor must be
// measuring.
func (d *Dev) Sense(m *Measurement) error {
	*m = Measurement{}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != Measuring {
		return fmt.Errorf("sps30: sense in mode %s: %w", d.mode, sensirion.ErrInvalidState)
	}
	for range int(measurementInterval/pollInterval) + 1 {
		ready, err := d.dataReady()
		if err != nil {
			return err
		}
		if ready {
			r, err := d.readMeasurement()
			if err != nil {
				return err
			}
			*m = r
			return nil
		}
		d.clock.Sleep(pollInterval)
	}
	return errors.New("sps30: timeout waiting for data ready status")
}

// Halt stops measuring.
func (d *Dev) Halt() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == Measuring {
		return d.transition(cmdStopMeasurement, Idle)
	}
	return nil
}

func (d *Dev) String() string {
	return fmt.Sprintf("sps30: %s", d.c.String())
}
