// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package sensirion

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/meshair/devices/common"
)

const (
	// WordSize is the number of bytes a word occupies on the wire, including
	// its checksum.
	WordSize = 3
	// OpSize is the size of a command opcode. Opcodes carry no checksum.
	OpSize = 2
)

// EncodeCommand returns the bytes to write for opcode op followed by args.
// Each argument word is followed by its CRC.
func EncodeCommand(op uint16, args []uint16) []byte {
	b := make([]byte, OpSize, OpSize+len(args)*WordSize)
	binary.BigEndian.PutUint16(b, op)
	return AppendWords(b, args...)
}

// AppendWords appends each word, big-endian, followed by its CRC.
func AppendWords(b []byte, words ...uint16) []byte {
	for _, w := range words {
		hi, lo := byte(w>>8), byte(w)
		b = append(b, hi, lo, common.CRC8([]byte{hi, lo}))
	}
	return b
}

// DecodeResponse verifies and converts a response into words. It returns
// ErrLength if b does not hold exactly words entries, and a *ChecksumError for
// the first word whose CRC does not match. No words are returned on error.
func DecodeResponse(b []byte, words int) ([]uint16, error) {
	if words < 0 || len(b) != words*WordSize {
		return nil, fmt.Errorf("%w: %d bytes for %d words", ErrLength, len(b), words)
	}
	result := make([]uint16, words)
	for ix := range result {
		group := b[ix*WordSize : ix*WordSize+WordSize]
		crc := common.CRC8(group[:2])
		if crc != group[2] {
			return nil, &ChecksumError{Word: ix, Got: group[2], Want: crc}
		}
		result[ix] = binary.BigEndian.Uint16(group)
	}
	return result, nil
}

// Uint32 joins two words, most significant first.
func Uint32(hi, lo uint16) uint32 {
	return uint32(hi)<<16 | uint32(lo)
}

// Float32 reconstructs a big-endian IEEE-754 single from two words.
func Float32(hi, lo uint16) float32 {
	return math.Float32frombits(Uint32(hi, lo))
}

// SplitUint32 is the inverse of Uint32.
func SplitUint32(v uint32) (hi, lo uint16) {
	return uint16(v >> 16), uint16(v)
}

// Bytes returns the words as a big-endian byte string, without checksums.
func Bytes(words []uint16) []byte {
	b := make([]byte, len(words)*2)
	for ix, w := range words {
		binary.BigEndian.PutUint16(b[ix*2:], w)
	}
	return b
}
