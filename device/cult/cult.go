// Package cult drives the Cult Smart Scale Pro. Its vendor protocol is not documented, so
// frames are decoded on a best-effort basis.
package cult

import (
  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/device/standard"
  "github.com/robertof/go-scale-bridge/driver"
)

var (
  ServiceCult = ble.UUID16(0xfff0)

  CharMeasurement = ble.UUID16(0xfff1)
  CharControl = ble.UUID16(0xfff2)
  CharStatus = ble.UUID16(0xfff4)

  charFirmwareRevision = ble.UUID16(0x2a26)
)

const lowBattery = 20

// Control responses on fff2.
const (
  respConfigure byte = 0x37
  respStartMeasurement byte = 0x50
)

// Status frames on fff4.
const (
  statusBodyComposition byte = 0xbb
  statusBattery byte = 0xba
  statusProgress byte = 0xbc
  statusError byte = 0xbe
)

var startMeasurement = []byte{0xfd, 0x01, 0x00, 0xfc}

type Cult struct {
  s *driver.Session
  router driver.Router

  complete bool
}

func New(s *driver.Session, _ string) driver.Protocol {
  p := &Cult{s: s, router: driver.Router{}}

  p.router.Handle(CharMeasurement, p.handleWeight)
  p.router.Handle(CharControl, p.handleControl)
  p.router.Handle(CharStatus, p.handleStatus)
  p.router.Handle(standard.CharBatteryLevel, p.handleBattery)

  for _, c := range []ble.UUID{standard.CharManufacturerName, standard.CharModelNumber, charFirmwareRevision} {
    c := c
    p.router.Handle(c, func(value []byte) {
      p.s.Log().Info().Stringer("Characteristic", c).Str("Value", string(value)).Msg("cult: device information")
    })
  }

  return p
}

func (p *Cult) Name() string {
  return "Cult Smart Scale Pro"
}

// UserProfile encodes the profile frame sent before a measurement.
func UserProfile(u device.User, age int) []byte {
  height := uint16(u.Height)

  frame := []byte{
    0xfe,
    byte(u.ID),
    byte(age),
    byte(height), byte(height >> 8),
    0,
    unitCode(u.ScaleUnit),
    0x00,
  }

  if u.Gender == device.GenderMale {
    frame[5] = 1
  }

  return append(frame, codec.XorChecksum(0, frame, 0, len(frame)), 0xff)
}

func unitCode(u device.Unit) byte {
  switch u {
  case device.UnitLB:
    return 1
  case device.UnitST:
    return 2
  default:
    return 0
  }
}

func (p *Cult) OnNextStep(step int) bool {
  switch step {
  case 0:
    p.complete = false

    for _, c := range []ble.UUID{standard.CharManufacturerName, standard.CharModelNumber, charFirmwareRevision} {
      if p.s.HasCharacteristic(standard.ServiceDeviceInformation, c) {
        p.s.Read(standard.ServiceDeviceInformation, c)
      }
    }
  case 1:
    if p.s.HasCharacteristic(standard.ServiceBattery, standard.CharBatteryLevel) {
      p.s.Read(standard.ServiceBattery, standard.CharBatteryLevel)
    }
  case 2:
    p.s.SetNotificationOn(ServiceCult, CharMeasurement)
  case 3:
    p.s.SetIndicationOn(ServiceCult, CharControl)
  case 4:
    p.s.SetNotificationOn(ServiceCult, CharStatus)
  case 5:
    u := p.s.SelectedUser()
    p.s.Write(ServiceCult, CharControl, UserProfile(u, u.Age(p.s.Now())))
  case 6:
    p.s.Write(ServiceCult, CharControl, startMeasurement)
    p.s.SendMessage(driver.MessageMeasuring, 0)
  default:
    return false
  }

  return true
}

func (p *Cult) OnNotify(char ble.UUID, value []byte) {
  if !p.router.Dispatch(char, value) {
    p.s.Log().Debug().Stringer("Characteristic", char).Str("Value", codec.Hex(value)).Msg("cult: unhandled notification")
  }
}

func (p *Cult) OnDisconnect() {
  if !p.complete {
    p.s.Log().Warn().Msg("cult: disconnected before a measurement was taken")
  }
}

func (p *Cult) handleBattery(value []byte) {
  if len(value) < 1 {
    return
  }

  p.battery(int(value[0]))
}

func (p *Cult) battery(level int) {
  p.s.Log().Debug().Int("Level", level).Msg("cult: battery level")

  if level < lowBattery {
    p.s.SendMessage(driver.MessageLowBattery, level)
  }
}

func (p *Cult) handleWeight(value []byte) {
  w, err := DecodeWeight(value)
  if err != nil {
    p.s.DropFrame(CharMeasurement, value, err)
    return
  }

  if p.complete {
    return
  }

  m := device.NewMeasurement()
  m.Weight = w
  m.UserID = p.s.SelectedUser().ID

  p.complete = true
  p.s.AddMeasurement(m)
}

func (p *Cult) handleControl(value []byte) {
  if len(value) < 2 {
    return
  }

  cmd, status := value[0], value[1]

  switch {
  case cmd == respStartMeasurement && status == 0:
    p.s.SendMessage(driver.MessageMeasuring, 0)
  case cmd == respConfigure || cmd == respStartMeasurement:
    if status != 0 {
      p.s.Log().Warn().Hex("Command", []byte{cmd}).Hex("Status", []byte{status}).Msg("cult: command failed")
    }
  default:
    p.s.Log().Debug().Hex("Command", []byte{cmd}).Hex("Status", []byte{status}).Msg("cult: unknown command response")
  }
}

func (p *Cult) handleStatus(value []byte) {
  if len(value) < 3 {
    return
  }

  switch value[0] {
  case statusBodyComposition:
    m, err := DecodeBodyComposition(value)
    if err != nil {
      p.s.DropFrame(CharStatus, value, err)
      return
    }

    m.UserID = p.s.SelectedUser().ID
    p.complete = true
    p.s.AddMeasurement(m)
  case statusBattery:
    p.battery(int(value[1]))
  case statusProgress:
    if value[1] == 0x01 {
      p.s.SendMessage(driver.MessageMeasuring, 0)
    }
  case statusError:
    p.s.Log().Warn().Hex("Code", value[1:2]).Msg("cult: scale reported an error")
    p.s.SendMessage(driver.MessageScaleError, int(value[1]))
  default:
    p.s.Log().Debug().Hex("Type", value[:1]).Msg("cult: unknown status frame")
  }
}

var Factory = driver.Factory{
  ID: "cult",
  New: New,
  Help: "Cult Smart Scale Pro (best-effort decoding)",
}
