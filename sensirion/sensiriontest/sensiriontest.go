// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensiriontest contains test doubles for drivers built on package
// sensirion.
package sensiriontest

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/meshair/devices/sensirion"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/physic"
)

// Clock records requested delays instead of sleeping.
type Clock struct {
	mu    sync.Mutex
	Slept []time.Duration
}

// Sleep implements sensirion.Clock.
func (c *Clock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slept = append(c.Slept, d)
}

// Total returns the sum of all recorded delays.
func (c *Clock) Total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var total time.Duration
	for _, d := range c.Slept {
		total += d
	}
	return total
}

// Reset clears the recorded delays.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Slept = nil
}

// FaultyBus wraps an i2c.Bus and fails selected transactions. Failed
// transactions are not forwarded to Bus.
type FaultyBus struct {
	Bus i2c.Bus
	// Fail maps the zero-based index of a transaction to the error it returns.
	Fail map[int]error

	mu    sync.Mutex
	count int
}

// Tx implements i2c.Bus.
func (f *FaultyBus) Tx(addr uint16, w, r []byte) error {
	f.mu.Lock()
	n := f.count
	f.count++
	err := f.Fail[n]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.Bus.Tx(addr, w, r)
}

// Count returns the number of transactions attempted so far.
func (f *FaultyBus) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// SetSpeed implements i2c.Bus.
func (f *FaultyBus) SetSpeed(freq physic.Frequency) error {
	return f.Bus.SetSpeed(freq)
}

func (f *FaultyBus) String() string {
	return fmt.Sprintf("faulty(%s)", f.Bus)
}

// Words returns the wire representation of a response holding words, for use
// as the R field of an i2ctest.IO.
func Words(words ...uint16) []byte {
	return sensirion.AppendWords(nil, words...)
}

// Floats returns the wire representation of big-endian IEEE-754 values.
func Floats(values ...float32) []byte {
	var words []uint16
	for _, v := range values {
		hi, lo := sensirion.SplitUint32(math.Float32bits(v))
		words = append(words, hi, lo)
	}
	return Words(words...)
}
