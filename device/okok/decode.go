package okok

import (
  "github.com/pkg/errors"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
)

// Company identifiers the scales advertise their readings under.
const (
  ManufacturerV20 = 0x20ca
  ManufacturerV11 = 0x11ca
  ManufacturerVF0 = 0xf0ff
)

const (
  v20Length = 19
  v20Attrib = 6
  v20WeightMSB = 8
  v20WeightLSB = 9
  v20ImpedanceMSB = 10
  v20ImpedanceLSB = 11
  v20Checksum = 12

  v11Length = 23
  v11WeightMSB = 3
  v11WeightLSB = 4
  v11Properties = 9
  v11Checksum = 16

  vf0WeightMSB = 3
  vf0WeightLSB = 2
)

const (
  kgPerLB = 0.45359237
  kgPerStone = 6.35029318
)

// ErrNotFinal is returned for readings taken while the weight is still settling.
var ErrNotFinal = errors.New("reading not final")

// Reading is a decoded broadcast.
type Reading struct {
  Weight float32
  Impedance float32
}

// DecodeV20 decodes the payload advertised under ManufacturerV20. The high byte of the company
// identifier is part of the checksum.
func DecodeV20(data []byte) (Reading, error) {
  if len(data) != v20Length {
    return Reading{}, errors.Wrapf(device.ErrInvalidData, "v20 frame of %d bytes", len(data))
  }

  if data[v20Attrib]&0x01 == 0 {
    return Reading{}, ErrNotFinal
  }

  if sum := codec.XorChecksum(ManufacturerV20>>8, data, 0, v20Checksum); sum != data[v20Checksum] {
    return Reading{}, errors.Wrapf(device.ErrCorruptedData, "checksum %#02x, expected %#02x", data[v20Checksum], sum)
  }

  divider := float32(10)
  if data[v20Attrib]&0x04 != 0 {
    divider = 100
  }

  weight := uint16(data[v20WeightMSB])<<8 | uint16(data[v20WeightLSB])
  impedance := uint16(data[v20ImpedanceMSB])<<8 | uint16(data[v20ImpedanceLSB])

  return Reading{
    Weight: float32(weight) / divider,
    Impedance: float32(impedance) / 10,
  }, nil
}

// DecodeV11 decodes the payload advertised under ManufacturerV11. Both bytes of the company
// identifier are part of the checksum.
func DecodeV11(data []byte) (Reading, error) {
  if len(data) != v11Length {
    return Reading{}, errors.Wrapf(device.ErrInvalidData, "v11 frame of %d bytes", len(data))
  }

  if sum := codec.XorChecksum(0xca^0x11, data, 0, v11Checksum); sum != data[v11Checksum] {
    return Reading{}, errors.Wrapf(device.ErrCorruptedData, "checksum %#02x, expected %#02x", data[v11Checksum], sum)
  }

  weight := int(data[v11WeightMSB])<<8 | int(data[v11WeightLSB])
  props := data[v11Properties]

  var divider float64

  switch (props >> 1) & 3 {
  case 1:
    divider = 1
  case 2:
    divider = 100
  default:
    divider = 10
  }

  var extra float64

  switch (props >> 3) & 3 {
  case 1: // jin
    divider *= 2
  case 2: // lb
    divider /= kgPerLB
  case 3: // st and lb
    extra = float64(weight>>8) * kgPerStone
    weight &= 0xff
    divider /= kgPerLB
  }

  return Reading{Weight: float32(extra + float64(weight)/divider)}, nil
}

// DecodeVF0 decodes the payload advertised under ManufacturerVF0, which carries no checksum.
func DecodeVF0(data []byte) (Reading, error) {
  if len(data) <= vf0WeightMSB {
    return Reading{}, errors.Wrapf(device.ErrInvalidData, "vf0 frame of %d bytes", len(data))
  }

  weight := uint16(data[vf0WeightMSB])<<8 | uint16(data[vf0WeightLSB])

  return Reading{Weight: float32(weight) / 10}, nil
}
