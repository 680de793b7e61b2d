package standard

import (
  "math"
  "time"

  "github.com/pkg/errors"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
)

const (
  weightFlagImperial = 0x01
  weightFlagTimestamp = 0x02
  weightFlagUserIndex = 0x04
  weightFlagBMIHeight = 0x08
)

const (
  bodyFlagImperial = 0x0001
  bodyFlagTimestamp = 0x0002
  bodyFlagUserIndex = 0x0004
  bodyFlagBMR = 0x0008
  bodyFlagMusclePercent = 0x0010
  bodyFlagMuscleMass = 0x0020
  bodyFlagFatFreeMass = 0x0040
  bodyFlagSoftLeanMass = 0x0080
  bodyFlagWaterMass = 0x0100
  bodyFlagImpedance = 0x0200
  bodyFlagWeight = 0x0400
  bodyFlagHeight = 0x0800
  bodyFlagMultiPacket = 0x1000
)

func massMultiplier(imperial bool) float64 {
  if imperial {
    return 0.01
  }

  return 0.005
}

func scaled(raw uint16, mult float64) float32 {
  return float32(float64(raw) * mult)
}

// WeightMeasurement is a Weight Scale Service measurement as found on the wire. Fields
// whose flag is not set are not part of the payload.
type WeightMeasurement struct {
  Flags uint8
  RawWeight uint16
  Timestamp time.Time
  UserIndex uint8
  RawBMI uint16
  RawHeight uint16
}

func (w WeightMeasurement) has(flag uint8) bool {
  return w.Flags&flag != 0
}

// Weight in kg, or lb when the imperial flag is set.
func (w WeightMeasurement) Weight() float32 {
  return scaled(w.RawWeight, massMultiplier(w.has(weightFlagImperial)))
}

func (w WeightMeasurement) BMI() float32 {
  return scaled(w.RawBMI, 0.1)
}

// Height in meters.
func (w WeightMeasurement) Height() float32 {
  return scaled(w.RawHeight, 0.001)
}

func DecodeWeightMeasurement(b []byte) (w WeightMeasurement, err error) {
  r := codec.NewReader(b)

  w.Flags = r.Uint8()
  w.RawWeight = r.Uint16LE()

  if w.has(weightFlagTimestamp) {
    w.Timestamp = r.DateTime()
  }

  if w.has(weightFlagUserIndex) {
    w.UserIndex = r.Uint8()
  }

  if w.has(weightFlagBMIHeight) {
    w.RawBMI = r.Uint16LE()
    w.RawHeight = r.Uint16LE()
  }

  if err := r.Err(); err != nil {
    return w, errors.Wrapf(device.ErrInvalidData, "weight measurement: %v", err)
  }

  return w, nil
}

func (w WeightMeasurement) Encode() []byte {
  var out codec.Writer

  out.Uint8(w.Flags).Uint16LE(w.RawWeight)

  if w.has(weightFlagTimestamp) {
    out.DateTime(w.Timestamp)
  }

  if w.has(weightFlagUserIndex) {
    out.Uint8(w.UserIndex)
  }

  if w.has(weightFlagBMIHeight) {
    out.Uint16LE(w.RawBMI).Uint16LE(w.RawHeight)
  }

  return out.Bytes()
}

// BodyComposition is a Body Composition Service measurement as found on the wire.
type BodyComposition struct {
  Flags uint16
  RawFat uint16
  Timestamp time.Time
  UserIndex uint8
  BMRJoules uint16
  RawMusclePercent uint16
  RawMuscleMass uint16
  RawFatFreeMass uint16
  RawSoftLeanMass uint16
  RawWaterMass uint16
  RawImpedance uint16
  RawWeight uint16
  RawHeight uint16
}

func (bc BodyComposition) Has(flag uint16) bool {
  return bc.Flags&flag != 0
}

func (bc BodyComposition) mass(raw uint16) float32 {
  return scaled(raw, massMultiplier(bc.Has(bodyFlagImperial)))
}

func (bc BodyComposition) Fat() float32 { return scaled(bc.RawFat, 0.1) }
func (bc BodyComposition) MusclePercent() float32 { return scaled(bc.RawMusclePercent, 0.1) }
func (bc BodyComposition) MuscleMass() float32 { return bc.mass(bc.RawMuscleMass) }
func (bc BodyComposition) FatFreeMass() float32 { return bc.mass(bc.RawFatFreeMass) }
func (bc BodyComposition) SoftLeanMass() float32 { return bc.mass(bc.RawSoftLeanMass) }
func (bc BodyComposition) WaterMass() float32 { return bc.mass(bc.RawWaterMass) }
func (bc BodyComposition) Impedance() float32 { return scaled(bc.RawImpedance, 0.1) }
func (bc BodyComposition) Weight() float32 { return bc.mass(bc.RawWeight) }

// BMR in kcal.
func (bc BodyComposition) BMR() float32 {
  return float32(math.Round(float64(bc.BMRJoules) / 4.1868))
}

func DecodeBodyComposition(b []byte) (bc BodyComposition, err error) {
  r := codec.NewReader(b)

  bc.Flags = r.Uint16LE()
  bc.RawFat = r.Uint16LE()

  if bc.Has(bodyFlagTimestamp) {
    bc.Timestamp = r.DateTime()
  }

  if bc.Has(bodyFlagUserIndex) {
    bc.UserIndex = r.Uint8()
  }

  for _, f := range bc.fields() {
    if bc.Has(f.flag) {
      *f.raw = r.Uint16LE()
    }
  }

  if err := r.Err(); err != nil {
    return bc, errors.Wrapf(device.ErrInvalidData, "body composition: %v", err)
  }

  return bc, nil
}

// fields lists the u16 fields following the user index, in wire order.
func (bc *BodyComposition) fields() []struct{ flag uint16; raw *uint16 } {
  return []struct{ flag uint16; raw *uint16 }{
    {bodyFlagBMR, &bc.BMRJoules},
    {bodyFlagMusclePercent, &bc.RawMusclePercent},
    {bodyFlagMuscleMass, &bc.RawMuscleMass},
    {bodyFlagFatFreeMass, &bc.RawFatFreeMass},
    {bodyFlagSoftLeanMass, &bc.RawSoftLeanMass},
    {bodyFlagWaterMass, &bc.RawWaterMass},
    {bodyFlagImpedance, &bc.RawImpedance},
    {bodyFlagWeight, &bc.RawWeight},
    {bodyFlagHeight, &bc.RawHeight},
  }
}

func (bc BodyComposition) Encode() []byte {
  var out codec.Writer

  out.Uint16LE(bc.Flags).Uint16LE(bc.RawFat)

  if bc.Has(bodyFlagTimestamp) {
    out.DateTime(bc.Timestamp)
  }

  if bc.Has(bodyFlagUserIndex) {
    out.Uint8(bc.UserIndex)
  }

  for _, f := range bc.fields() {
    if bc.Has(f.flag) {
      out.Uint16LE(*f.raw)
    }
  }

  return out.Bytes()
}
