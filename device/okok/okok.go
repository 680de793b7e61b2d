package okok

import (
  "bytes"
  "net"

  "github.com/go-ble/ble"
  "github.com/pkg/errors"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
)

// OKOK reads scales that broadcast their readings in the manufacturer data of an
// advertisement. It never connects: the first settled reading ends the session.
type OKOK struct {
  s *driver.Session
}

func New(s *driver.Session, _ string) driver.Protocol {
  return &OKOK{s: s}
}

func (p *OKOK) Name() string {
  return "OKOK"
}

func (p *OKOK) OnNextStep(int) bool {
  return false
}

func (p *OKOK) OnNotify(char ble.UUID, value []byte) {
  p.s.Log().Debug().Stringer("Characteristic", char).Str("Value", codec.Hex(value)).Msg("okok: unexpected notification")
}

func (p *OKOK) OnAdvertisement(a ble.Advertisement) {
  id, data, ok := driver.ManufacturerData(a)
  if !ok {
    return
  }

  var (
    r Reading
    err error
  )

  switch id {
  case ManufacturerV20:
    r, err = DecodeV20(data)
  case ManufacturerV11:
    r, err = DecodeV11(data)
  case ManufacturerVF0:
    r, err = DecodeVF0(data)
  default:
    p.s.Log().Trace().Uint16("Manufacturer", id).Msg("okok: ignoring advertisement")
    return
  }

  if err != nil {
    if !errors.Is(err, ErrNotFinal) {
      p.s.DropFrame(nil, data, err)
    }

    return
  }

  p.s.Log().Debug().Float32("Weight", r.Weight).Float32("Impedance", r.Impedance).Msg("okok: reading")

  m := device.NewMeasurement()
  m.Weight = r.Weight
  p.s.AddMeasurement(m)

  p.s.Disconnect()
}

var Factory = driver.Factory{
  ID: "okok",
  New: New,
  AdvertisementOnly: true,
  Help: "OKOK and Chipsea scales broadcasting readings in advertisements",
}

const (
  noNameWeightMSB = 0
  noNameWeightLSB = 1
  noNameAttrib = 6
  noNameMAC = 7
  noNameLength = 13

  unitKG = 0
  unitLB = 2
  unitSTLB = 3
)

// NoName reads unbranded OKOK scales advertising under any company identifier ending in 0xc0.
// Each payload embeds the scale's MAC address. The scale repeats its reading, so only
// changes are reported and the session is left to the idle timeout.
type NoName struct {
  s *driver.Session
  lastWeight float32
}

func NewNoName(s *driver.Session, _ string) driver.Protocol {
  return &NoName{s: s}
}

// IsNoName reports whether an advertisement comes from an unbranded OKOK scale.
func IsNoName(a ble.Advertisement) bool {
  id, _, ok := driver.ManufacturerData(a)

  return ok && id&0xff == 0xc0
}

func (p *NoName) Name() string {
  return "NoName OkOk"
}

func (p *NoName) OnNextStep(int) bool {
  return false
}

func (p *NoName) OnNotify(ble.UUID, []byte) {}

func (p *NoName) OnAdvertisement(a ble.Advertisement) {
  if !IsNoName(a) {
    return
  }

  _, data, _ := driver.ManufacturerData(a)

  weight, err := DecodeNoName(data, a.Addr().String())
  if err != nil {
    if !errors.Is(err, ErrNotFinal) {
      p.s.DropFrame(nil, data, err)
    }

    return
  }

  if weight == p.lastWeight {
    return
  }

  p.lastWeight = weight

  m := device.NewMeasurement()
  m.Weight = weight
  p.s.AddMeasurement(m)
}

// DecodeNoName decodes an unbranded OKOK payload sent by the scale with address addr.
func DecodeNoName(data []byte, addr string) (float32, error) {
  if len(data) < noNameLength {
    return 0, errors.Wrapf(device.ErrInvalidData, "frame of %d bytes", len(data))
  }

  mac, err := net.ParseMAC(addr)
  if err != nil {
    return 0, errors.Wrap(err, "parse address")
  }

  if !bytes.Equal(data[noNameMAC:noNameMAC+6], mac) {
    return 0, errors.Wrapf(device.ErrInvalidData, "frame for %v", net.HardwareAddr(data[noNameMAC:noNameMAC+6]))
  }

  attrib := data[noNameAttrib]

  if attrib&0x01 == 0 {
    return 0, ErrNotFinal
  }

  var divider float32

  switch (attrib >> 1) & 3 {
  case 1:
    divider = 1
  case 2:
    divider = 100
  default:
    divider = 10
  }

  switch (attrib >> 3) & 3 {
  case unitKG:
    return float32(codec.Uint16BE(data, noNameWeightMSB)) / divider, nil
  case unitLB:
    return float32(codec.Uint16BE(data, noNameWeightMSB)) / divider * kgPerLB, nil
  case unitSTLB:
    stone := float32(int8(data[noNameWeightMSB])) + float32(int8(data[noNameWeightLSB]))/divider/14
    return stone * kgPerStone, nil
  default:
    return 0, errors.Wrapf(device.ErrUnsupported, "unit %d", (attrib>>3)&3)
  }
}

var NoNameFactory = driver.Factory{
  ID: "okok_noname",
  New: NewNoName,
  AdvertisementOnly: true,
  Help: "unbranded OKOK scales advertising under a 0x??c0 company identifier",
}
