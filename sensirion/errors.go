// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensirion

import (
	"errors"
	"fmt"
)

var (
	// ErrArity is returned when the number of argument words does not match
	// the command.
	ErrArity = errors.New("sensirion: wrong number of argument words")
	// ErrInvalidState is returned when a command is not permitted in the
	// current operating mode. No bus traffic takes place.
	ErrInvalidState = errors.New("sensirion: command not permitted in current mode")
	// ErrRange is returned when a value lies outside its declared range.
	ErrRange = errors.New("sensirion: value out of range")
	// ErrLength is returned when a response does not hold the expected
	// number of words.
	ErrLength = errors.New("sensirion: response length mismatch")
	// ErrCalibrationFailed is returned when the sensor reports a failed
	// forced recalibration.
	ErrCalibrationFailed = errors.New("sensirion: forced recalibration failed")
)

// ChecksumError reports a response word whose CRC did not match.
type ChecksumError struct {
	// Index of the word in the response.
	Word int
	Got  byte
	Want byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("sensirion: invalid crc for word %d: got 0x%02x want 0x%02x", e.Word, e.Got, e.Want)
}

// BusError wraps a failure reported by the transport.
type BusError struct {
	Op  uint16
	Err error
}

func (e *BusError) Error() string {
	return fmt.Sprintf("sensirion: cmd 0x%04x: bus: %v", e.Op, e.Err)
}

func (e *BusError) Unwrap() error {
	return e.Err
}

// FrameError wraps a response that failed to decode. Err is either ErrLength
// or a *ChecksumError.
type FrameError struct {
	Op  uint16
	Err error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("sensirion: cmd 0x%04x: %v", e.Op, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
