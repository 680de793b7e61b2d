// Package codec holds the byte-level helpers shared by the scale protocol decoders.
package codec

import (
  "encoding/binary"
  "fmt"
  "strings"
  "time"
)

func Uint16LE(b []byte, off int) uint16 {
  return binary.LittleEndian.Uint16(b[off:])
}

func Uint16BE(b []byte, off int) uint16 {
  return binary.BigEndian.Uint16(b[off:])
}

func Uint24LE(b []byte, off int) uint32 {
  _ = b[off+2]
  return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16
}

func Uint24BE(b []byte, off int) uint32 {
  _ = b[off+2]
  return uint32(b[off])<<16 | uint32(b[off+1])<<8 | uint32(b[off+2])
}

func Uint32LE(b []byte, off int) uint32 {
  return binary.LittleEndian.Uint32(b[off:])
}

func Uint32BE(b []byte, off int) uint32 {
  return binary.BigEndian.Uint32(b[off:])
}

func Uint64BE(b []byte, off int) uint64 {
  return binary.BigEndian.Uint64(b[off:])
}

func PutUint16LE(v uint16) []byte {
  return binary.LittleEndian.AppendUint16(nil, v)
}

func PutUint16BE(v uint16) []byte {
  return binary.BigEndian.AppendUint16(nil, v)
}

func PutUint32LE(v uint32) []byte {
  return binary.LittleEndian.AppendUint32(nil, v)
}

func PutUint32BE(v uint32) []byte {
  return binary.BigEndian.AppendUint32(nil, v)
}

func PutUint64BE(v uint64) []byte {
  return binary.BigEndian.AppendUint64(nil, v)
}

// XorChecksum folds b[off:off+n] into seed with XOR.
func XorChecksum(seed byte, b []byte, off, n int) byte {
  for _, v := range b[off : off+n] {
    seed ^= v
  }

  return seed
}

// SumChecksum is the 8-bit truncated sum of b[off:off+n].
func SumChecksum(b []byte, off, n int) byte {
  var sum byte

  for _, v := range b[off : off+n] {
    sum += v
  }

  return sum
}

func IsBitSet(v uint32, bit uint) bool {
  return v&(1<<bit) != 0
}

func Clamp(v, lo, hi int) int {
  if v < lo {
    return lo
  }

  if v > hi {
    return hi
  }

  return v
}

// Hex formats b as space separated uppercase octets, e.g. "CA 20 01".
func Hex(b []byte) string {
  var sb strings.Builder

  for i, v := range b {
    if i > 0 {
      sb.WriteByte(' ')
    }

    fmt.Fprintf(&sb, "%02X", v)
  }

  return sb.String()
}

// DateTime decodes a GATT date time (year u16 LE, month, day, hours, minutes, seconds)
// found at b[off:off+7].
func DateTime(b []byte, off int) time.Time {
  _ = b[off+6]

  return time.Date(
    int(Uint16LE(b, off)),
    time.Month(b[off+2]),
    int(b[off+3]),
    int(b[off+4]),
    int(b[off+5]),
    int(b[off+6]),
    0,
    time.Local,
  )
}

func PutDateTime(t time.Time) []byte {
  out := PutUint16LE(uint16(t.Year()))

  return append(out,
    byte(t.Month()),
    byte(t.Day()),
    byte(t.Hour()),
    byte(t.Minute()),
    byte(t.Second()),
  )
}

// CurrentTime encodes t using the Current Time Service layout: date time, day of
// week (1 = Monday), fractions256 and adjust reason.
func CurrentTime(t time.Time) []byte {
  dow := byte(t.Weekday())

  if dow == 0 {
    dow = 7
  }

  return append(PutDateTime(t), dow, 0, 0)
}
