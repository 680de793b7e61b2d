package cult

import (
  "github.com/pkg/errors"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
)

// The frame layouts below are reverse engineered guesses. Every decoder tries a list of
// candidate encodings and keeps the first one producing a plausible value.

const (
  minWeight = 10.0
  maxWeight = 300.0
)

type candidate struct {
  off int
  bigEndian bool
  div float32
}

func (c candidate) value(data []byte) (float32, bool) {
  if c.off+1 >= len(data) {
    return 0, false
  }

  raw := codec.Uint16LE(data, c.off)
  if c.bigEndian {
    raw = codec.Uint16BE(data, c.off)
  }

  return float32(raw) / c.div, true
}

var weightCandidates = []candidate{
  {off: 3, div: 100},
  {off: 3, bigEndian: true, div: 100},
  {off: 2, div: 100},
  {off: 3, div: 10},
  {off: 1, div: 100},
}

func plausibleWeight(w float32) bool {
  return w >= minWeight && w <= maxWeight
}

// DecodeWeight extracts the weight, in kg, from a measurement frame.
func DecodeWeight(data []byte) (float32, error) {
  if len(data) < 8 {
    return 0, errors.Wrapf(device.ErrInvalidData, "weight frame of %d bytes", len(data))
  }

  for _, c := range weightCandidates {
    if w, ok := c.value(data); ok && plausibleWeight(w) {
      return w, nil
    }
  }

  return 0, errors.Wrapf(device.ErrInvalidData, "no plausible weight in %s", codec.Hex(data))
}

// percentage reads a LE tenths value, falling back to BE when LE is out of 0..100.
func percentage(data []byte, off int) float32 {
  if off+1 >= len(data) {
    return 0
  }

  v := float32(codec.Uint16LE(data, off)) / 10
  if v <= 0 || v > 100 {
    v = float32(codec.Uint16BE(data, off)) / 10
  }

  return v
}

type metric struct {
  dst *float32
  v float32
  lo, hi float32
}

// apply stores every value inside its range and returns how many were kept.
func apply(metrics []metric) int {
  n := 0

  for _, m := range metrics {
    if m.v > m.lo && m.v <= m.hi {
      *m.dst = m.v
      n++
    }
  }

  return n
}

func composition(m *device.Measurement, fat, water, muscle, bone, visceral float32) []metric {
  return []metric{
    {&m.Fat, fat, 0, 50},
    {&m.Water, water, 30, 80},
    {&m.Muscle, muscle, 10, 70},
    {&m.Bone, bone, 0.5, 8},
    {&m.VisceralFat, visceral, 0, 30},
  }
}

// DecodeBodyComposition decodes a 0xbb status frame. Composition values that are not
// plausible under either known layout are left unset.
func DecodeBodyComposition(data []byte) (device.Measurement, error) {
  m := device.NewMeasurement()

  if len(data) < 20 {
    return m, errors.Wrapf(device.ErrInvalidData, "body composition frame of %d bytes", len(data))
  }

  for _, off := range []int{2, 4, 6, 8} {
    le := candidate{off: off, div: 100}
    be := candidate{off: off, bigEndian: true, div: 100}

    if w, _ := le.value(data); plausibleWeight(w) {
      m.Weight = w
      break
    }

    if w, _ := be.value(data); plausibleWeight(w) {
      m.Weight = w
      break
    }
  }

  if m.Weight == 0 {
    return m, errors.Wrapf(device.ErrInvalidData, "no plausible weight in %s", codec.Hex(data))
  }

  const base = 6

  first := m
  kept := apply(composition(&first,
    percentage(data, base),
    percentage(data, base+2),
    percentage(data, base+4),
    percentage(data, base+6)/10,
    percentage(data, base+8)/10,
  ))

  if kept >= 3 {
    return first, nil
  }

  second := m
  if apply(composition(&second,
    float32(data[10])/10,
    float32(data[12])/10,
    float32(data[14])/10,
    float32(data[16])/100,
    float32(data[17])/10,
  )) > kept {
    return second, nil
  }

  return first, nil
}
