// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensirion

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3"
)

// Command describes a single sensor command.
type Command struct {
	// The 16-bit command word.
	Op uint16
	// Number of argument words written after the opcode.
	Args int
	// Number of words returned by the sensor. 0 for write-only commands.
	Response int
	// Execution time the sensor requires after the write. It elapses before
	// the response is read and before the next command is sent.
	Delay time.Duration
}

func (c Command) String() string {
	return fmt.Sprintf("0x%04x", c.Op)
}

// Clock blocks the caller for the settle time of a command.
type Clock interface {
	Sleep(d time.Duration)
}

type systemClock struct{}

func (systemClock) Sleep(d time.Duration) {
	time.Sleep(d)
}

// SystemClock sleeps using the runtime timer.
var SystemClock Clock = systemClock{}

// Dispatcher writes commands to a sensor and reads back their responses. It
// holds no state between calls. Callers sharing a bus must serialize calls.
type Dispatcher struct {
	c     conn.Conn
	clock Clock
}

// NewDispatcher returns a Dispatcher that talks over c. Normally c is an
// *i2c.Dev. If clock is nil, SystemClock is used.
func NewDispatcher(c conn.Conn, clock Clock) *Dispatcher {
	if clock == nil {
		clock = SystemClock
	}
	return &Dispatcher{c: c, clock: clock}
}

// Execute sends cmd with args, waits for the command's execution time and,
// for commands with a response, reads and verifies it.
//
// The execution time elapses once the write has been attempted, even if it
// failed, so the sensor is never addressed again before it is ready.
func (d *Dispatcher) Execute(cmd Command, args ...uint16) ([]uint16, error) {
	if len(args) != cmd.Args {
		return nil, fmt.Errorf("%w: cmd %s takes %d, got %d", ErrArity, cmd, cmd.Args, len(args))
	}

	err := d.c.Tx(EncodeCommand(cmd.Op, args), nil)
	d.clock.Sleep(cmd.Delay)
	if err != nil {
		return nil, &BusError{Op: cmd.Op, Err: err}
	}
	if cmd.Response == 0 {
		return nil, nil
	}

	r := make([]byte, cmd.Response*WordSize)
	if err := d.c.Tx(nil, r); err != nil {
		return nil, &BusError{Op: cmd.Op, Err: err}
	}
	words, err := DecodeResponse(r, cmd.Response)
	if err != nil {
		return nil, &FrameError{Op: cmd.Op, Err: err}
	}
	return words, nil
}

func (d *Dispatcher) String() string {
	return d.c.String()
}
