package sinocare

import (
  "github.com/go-ble/ble"
  "github.com/pkg/errors"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
)

const (
  Manufacturer = 0xff64

  weightOffset = 9
  // StableThreshold is how many times a weight must be seen again before it is taken
  // as settled. The scale does not flag settled readings on its own.
  StableThreshold = 9
)

// Sinocare reads scales broadcasting the live weight in their advertisements.
type Sinocare struct {
  s *driver.Session

  lastWeight uint16
  repeats int
}

func New(s *driver.Session, _ string) driver.Protocol {
  return &Sinocare{s: s}
}

func (p *Sinocare) Name() string {
  return "Sinocare"
}

func (p *Sinocare) OnNextStep(int) bool {
  return false
}

func (p *Sinocare) OnNotify(ble.UUID, []byte) {}

// DecodeWeight returns the raw weight, in hundredths of kg, of an advertisement payload.
func DecodeWeight(data []byte) (uint16, error) {
  if len(data) < weightOffset+2 {
    return 0, errors.Wrapf(device.ErrInvalidData, "frame of %d bytes", len(data))
  }

  return codec.Uint16LE(data, weightOffset), nil
}

func (p *Sinocare) OnAdvertisement(a ble.Advertisement) {
  id, data, ok := driver.ManufacturerData(a)
  if !ok || id != Manufacturer {
    return
  }

  weight, err := DecodeWeight(data)
  if err != nil {
    p.s.DropFrame(nil, data, err)
    return
  }

  if weight == 0 {
    return
  }

  switch {
  case weight != p.lastWeight:
    p.lastWeight = weight
    p.repeats = 1
    p.s.SendMessage(driver.MessageMeasuring, float32(weight)/100)
  case p.repeats >= StableThreshold:
    m := device.NewMeasurement()
    m.Weight = float32(weight) / 100
    p.s.AddMeasurement(m)
    p.s.Disconnect()
  default:
    p.repeats++
  }
}

var Factory = driver.Factory{
  ID: "sinocare",
  New: New,
  AdvertisementOnly: true,
  Help: "Sinocare scales advertising as \"Weight Scale\"",
}
