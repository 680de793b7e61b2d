package sanitas

import (
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
)

func (p *Sanitas) handleScaleAck(frame []byte) {
  s := p.s
  log := s.Log()

  switch frame[2] {
  case cmdScaleStatus:
    if len(frame) < 12 {
      s.DropFrame(CharCustom, frame, device.ErrInvalidData)
      return
    }

    battery := int(frame[4])
    unit := frame[7]

    log.Debug().
      Int("Battery", battery).
      Float32("WeightThreshold", float32(frame[5])/10).
      Float32("FatThreshold", float32(frame[6])/10).
      Uint8("Unit", unit).
      Bool("UserExists", frame[8] == 0).
      Bool("ReferenceWeight", frame[9] == 0).
      Bool("HasMeasurement", frame[10] == 0).
      Uint8("Version", frame[11]).
      Msg("sanitas: scale status")

    if battery <= lowBatteryLevel {
      s.SendMessage(driver.MessageLowBattery, battery)
    }

    requested, ok := unitCodes[s.SelectedUser().ScaleUnit]
    if !ok {
      requested = unit
    }

    if requested != unit {
      log.Info().Uint8("Unit", requested).Msg("sanitas: setting scale unit")
      p.sendCommand(cmdSetUnit, requested)
      s.Stop()
      return
    }

    p.expectIn("scale status", stepScaleStatus)
    p.done()
  case cmdSetUnit:
    if frame[3] == 0 {
      log.Debug().Msg("sanitas: scale unit set")
    }

    p.expectIn("set unit", stepScaleStatus)
    p.done()
  case cmdUserList:
    if len(frame) < 6 {
      s.DropFrame(CharCustom, frame, device.ErrInvalidData)
      return
    }

    users, maxUsers := int(frame[4]), int(frame[5])
    log.Debug().Int("Users", users).Int("Max", maxUsers).Msg("sanitas: user list")

    if users != 0 {
      s.Stop()
      return
    }

    p.expectIn("user list", stepUserList)
    p.done()
  case cmdGetSavedMeasurements:
    count := int(frame[3])
    log.Debug().Int("Count", count/2).Msg("sanitas: saved measurements")

    if count != 0 {
      s.Stop()
      return
    }

    p.readyForData = true
    p.expectIn("saved measurements", stepSavedMeasurements)
    p.done()
  case cmdDeleteSavedMeasurements:
    if frame[3] == 0 && p.current != nil {
      log.Debug().Str("RemoteUser", p.current.Name).Msg("sanitas: saved measurements deleted")
    }

    p.expectIn("delete saved measurements", stepSavedMeasurements, stepCreateUser, stepFinish)
    p.done()
  case cmdUserAdd:
    if !p.expectIn("user add", stepCreateUser) {
      p.done()
      return
    }

    if frame[3] != 0 {
      log.Error().Uint8("Error", frame[3]).Msg("sanitas: cannot create scale user")
      s.SendMessage(driver.MessageMaxScaleUsers, 0)
      s.JumpTo(stepEnd)
      p.done()
      return
    }

    p.remoteUsers = append(p.remoteUsers, p.current)

    if p.pending.data != nil {
      log.Debug().Msg("sanitas: user identified, storing measurement kept for later")
      p.addMeasurement(p.pending.data, p.current.LocalUserID)
      p.pending.data = nil
    }

    p.readyForData = true

    s.SendMessage(driver.MessageStepOnScaleForReference, 0)
    p.sendCommand(cmdDoMeasurement, encodeUserID(p.current)...)
    s.Stop()
  case cmdDoMeasurement:
    if frame[3] == 0 {
      s.SendMessage(driver.MessageStepOnScale, 0)
      s.Stop()
      return
    }

    log.Debug().Msg("sanitas: measure command rejected")

    if !p.expectIn("do measurement", stepCreateUser, stepFinish) {
      p.done()
    }
  case cmdUserDetails:
    if frame[3] == 0 && len(frame) >= 12 {
      log.Debug().
        Str("Name", decodeString(frame, 4, 3)).
        Int("Year", 1900+int(frame[7])).
        Int("Month", 1+int(frame[8])).
        Int("Day", int(frame[9])).
        Int("Height", int(frame[10])).
        Bool("Male", frame[11]&0xf0 != 0).
        Int("Activity", int(frame[11]&0x0f)).
        Msg("sanitas: user details")
    }

    p.expectIn("user details", stepUserDetails)
    p.done()
  default:
    log.Debug().Uint8("Command", frame[2]).Msg("sanitas: unhandled scale ack")
  }
}

var Factory = driver.Factory{
  ID: "beurer_sanitas",
  New: New,
  Help: "Beurer BF700/BF710/BF800, Runtastic Libra and Sanitas SBF70/SilverCrest SBF75",
}
