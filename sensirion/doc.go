// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package sensirion implements the I²C command framing shared by Sensirion
// sensors such as the SCD4x and the SPS30.
//
// A command is a 16-bit big-endian opcode optionally followed by 16-bit
// argument words. Responses are a sequence of 16-bit words. Every argument
// and response word is followed on the wire by a CRC-8 checksum byte.
//
// Most commands require a fixed execution time after the write before the
// sensor accepts further traffic. The Dispatcher enforces that delay through
// an injectable Clock.
//
// # Datasheets
//
// https://sensirion.com/media/documents/48C4B7FB/66E05452/CD_DS_SCD4x_Datasheet_D1.pdf
//
// https://sensirion.com/media/documents/8600FF88/616542B5/Sensirion_PM_Sensors_Datasheet_SPS30.pdf
package sensirion
