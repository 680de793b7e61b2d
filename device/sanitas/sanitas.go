package sanitas

import (
  "strings"

  "github.com/go-ble/ble"
  "golang.org/x/exp/slices"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
)

var (
  ServiceCustom = ble.UUID16(0xffe0)
  CharCustom = ble.UUID16(0xffe1)
)

type Model int

const (
  ModelBF700 Model = iota
  ModelBF710
  ModelSBF70
)

var modelNames = map[Model]string{
  ModelBF700: "Beurer BF700/800 / Runtastic Libra",
  ModelBF710: "Beurer BF710",
  ModelSBF70: "Sanitas SBF70/SilverCrest SBF75/Crane",
}

// ModelFromName maps an advertised name to the scale model. Unknown names are treated
// as BF700.
func ModelFromName(name string) Model {
  name = strings.ToLower(name)

  switch {
  case hasAnyPrefix(name, "sanitas sbf70", "sbf75", "aicdscale1"):
    return ModelSBF70
  case strings.HasPrefix(name, "beurer bf710") || name == "bf700":
    return ModelBF710
  default:
    return ModelBF700
  }
}

func hasAnyPrefix(s string, prefixes ...string) bool {
  for _, p := range prefixes {
    if strings.HasPrefix(s, p) {
      return true
    }
  }

  return false
}

const (
  stepStart = iota
  stepInit
  stepSetTime
  stepScaleStatus
  stepUserList
  stepSavedMeasurements
  stepCreateUser
  stepUserDetails
  stepFinish
  stepEnd
)

const notWaiting = -1

const lowBatteryLevel = 10

type pendingMeasurement struct {
  data []byte
  storedUID uint64
  candidateUID uint64
}

// Sanitas drives the Beurer BF700/BF710/BF800 and Sanitas SBF70 family. Every frame starts
// with a model specific start byte followed by a command; the app acknowledges every frame
// the scale sends. Measurements are split over several frames.
type Sanitas struct {
  s *driver.Session
  model Model
  startByte byte

  // step whose reply is awaited, or notWaiting
  waitStep int

  remoteUsers []*RemoteUser
  current *RemoteUser

  measurement driver.Reassembly
  pending pendingMeasurement
  readyForData bool
  dataReceived bool
}

func New(s *driver.Session, advertisedName string) driver.Protocol {
  p := &Sanitas{
    s: s,
    model: ModelFromName(advertisedName),
    waitStep: notWaiting,
  }

  if p.model == ModelBF700 {
    p.startByte = 0xf0 | nibbleCommand
  } else {
    p.startByte = 0xe0 | nibbleCommand
  }

  return p
}

func (p *Sanitas) Name() string {
  return modelNames[p.model]
}

func (p *Sanitas) RemoteUsers() []*RemoteUser {
  return p.remoteUsers
}

func (p *Sanitas) alternativeStartByte(nibble byte) byte {
  return p.startByte&0xf0 | nibble
}

func (p *Sanitas) write(b []byte) {
  p.s.Write(ServiceCustom, CharCustom, b)
}

func (p *Sanitas) sendCommand(cmd byte, params ...byte) {
  p.write(append([]byte{p.startByte, cmd}, params...))
}

func (p *Sanitas) sendAlternative(nibble byte, params ...byte) {
  p.write(append([]byte{p.alternativeStartByte(nibble)}, params...))
}

// sendAck echoes the command, count and index of a received frame.
func (p *Sanitas) sendAck(frame []byte) {
  p.sendCommand(cmdAppAck, frame[1:4]...)
}

func (p *Sanitas) OnNextStep(step int) bool {
  s := p.s
  log := s.Log()

  switch step {
  case stepStart:
    p.measurement.Reset()
    p.pending.data = nil
    p.readyForData = false
    p.dataReceived = false

    s.SetNotificationOn(ServiceCustom, CharCustom)
  case stepInit:
    p.waitStep = stepInit
    log.Debug().Msg("sanitas: sending init")
    p.sendAlternative(nibbleInit, 0x01)
    s.Stop()
  case stepSetTime:
    p.sendAlternative(nibbleSetTime, codec.PutUint32BE(uint32(s.Now().Unix()))...)
  case stepScaleStatus:
    p.waitStep = stepScaleStatus
    p.sendCommand(cmdScaleStatus, encodeUserID(nil)...)
    s.Stop()
  case stepUserList:
    p.waitStep = stepUserList
    p.sendCommand(cmdUserList)
    s.Stop()
  case stepSavedMeasurements:
    // next known remote user after the current one
    from := slices.Index(p.remoteUsers, p.current) + 1
    p.current = nil

    for _, u := range p.remoteUsers[from:] {
      if u.LocalUserID != -1 {
        p.current = u
        break
      }
    }

    if p.current != nil {
      p.waitStep = stepSavedMeasurements
      log.Debug().Str("RemoteUser", p.current.Name).Msg("sanitas: requesting saved measurements")
      p.sendCommand(cmdGetSavedMeasurements, encodeUserID(p.current)...)
      s.Stop()
    }
  case stepCreateUser:
    selected := s.SelectedUser()
    p.current = nil

    for _, u := range p.remoteUsers {
      if u.LocalUserID == selected.ID {
        p.current = u
        break
      }
    }

    if p.current == nil {
      p.waitStep = stepCreateUser
      p.createRemoteUser(selected)
      s.Stop()
    }
  case stepUserDetails:
    p.waitStep = stepUserDetails
    p.sendCommand(cmdUserDetails, encodeUserID(p.current)...)
    s.Stop()
  case stepFinish:
    switch {
    case p.pending.data != nil:
      userID := s.SelectedUser().ID

      if p.current != nil {
        userID = p.current.LocalUserID
      }

      log.Info().Int("UserID", userID).Msg("sanitas: storing measurement kept for later")
      p.addMeasurement(p.pending.data, userID)
      p.pending.data = nil
    case !p.dataReceived && p.current != nil && !p.current.isNew:
      p.waitStep = stepFinish
      log.Debug().Msg("sanitas: no measurement received, asking for one")
      p.sendCommand(cmdDoMeasurement, encodeUserID(p.current)...)
      s.Stop()
    default:
      log.Debug().Msg("sanitas: all done")
      return false
    }
  default:
    return false
  }

  return true
}

func (p *Sanitas) OnNotify(char ble.UUID, value []byte) {
  log := p.s.Log()

  if len(value) == 0 {
    log.Debug().Msg("sanitas: empty notification")
    return
  }

  if value[0] == p.alternativeStartByte(nibbleInit) {
    if p.waitStep != stepInit {
      log.Warn().Msg("sanitas: init ack in wrong state, continuing with time sync")
      p.s.JumpTo(stepSetTime)
    }

    p.waitStep = notWaiting
    p.s.Resume()

    return
  }

  if value[0] != p.startByte {
    log.Error().Str("Value", codec.Hex(value)).Msg("sanitas: unknown start byte")
    return
  }

  if len(value) < 4 {
    p.s.DropFrame(char, value, device.ErrInvalidData)
    return
  }

  switch value[1] {
  case cmdUserInfo:
    p.handleUserInfo(value)
  case cmdSavedMeasurement:
    p.handleSavedMeasurement(value)
  case cmdWeightMeasurement:
    p.handleWeightMeasurement(value)
  case cmdMeasurement:
    p.handleMeasurement(value)
  case cmdScaleAck:
    p.handleScaleAck(value)
  default:
    log.Debug().Str("Value", codec.Hex(value)).Msg("sanitas: unknown command")
  }
}

// expectIn checks that a reply arrived while waiting in one of steps. A reply arriving
// while another one is awaited makes the last step run again.
func (p *Sanitas) expectIn(what string, steps ...int) bool {
  if slices.Contains(steps, p.waitStep) {
    return true
  }

  if p.waitStep != notWaiting {
    p.s.Log().Warn().Str("Reply", what).Int("WaitStep", p.waitStep).Msg("sanitas: reply in wrong state, retrying last step")
    p.s.JumpBack()
  } else {
    p.s.Log().Warn().Str("Reply", what).Msg("sanitas: unexpected reply ignored")
  }

  return false
}

func (p *Sanitas) done() {
  p.waitStep = notWaiting
  p.s.Resume()
}

func (p *Sanitas) handleUserInfo(frame []byte) {
  count, current := int(frame[2]), int(frame[3])

  if len(frame) < 16 {
    p.s.DropFrame(CharCustom, frame, device.ErrInvalidData)
  } else if len(p.remoteUsers) == current-1 {
    u := &RemoteUser{
      ID: codec.Uint64BE(frame, 4),
      Name: decodeString(frame, 12, 3),
      Year: 1900 + int(frame[15]),
      LocalUserID: -1,
    }

    p.remoteUsers = append(p.remoteUsers, u)
    p.s.Log().Debug().Int("Current", current).Int("Count", count).Str("Name", u.Name).Int("Year", u.Year).Msg("sanitas: remote user")
  }

  p.sendAck(frame)

  if current != count {
    p.s.Stop()
    return
  }

  p.matchRemoteUsers()
  p.expectIn("user info", stepUserList)
  p.done()
}

// matchRemoteUsers pairs remote users with local users by name prefix and birth year.
func (p *Sanitas) matchRemoteUsers() {
  for _, local := range p.s.Users() {
    name := ScaleName(local)
    year := local.Birthday.Year()

    for _, remote := range p.remoteUsers {
      if strings.HasPrefix(name, remote.Name) && year == remote.Year {
        remote.LocalUserID = local.ID
        p.s.Log().Info().Str("RemoteUser", remote.Name).Uint64("RemoteID", remote.ID).Int("UserID", local.ID).Msg("sanitas: remote user matched")
        break
      }
    }
  }
}

func (p *Sanitas) createRemoteUser(u device.User) {
  nick := make([]byte, 3)
  copy(nick, ScaleName(u))

  var maxID uint64

  if len(p.remoteUsers) == 0 {
    maxID = 100
  }

  for _, r := range p.remoteUsers {
    if r.ID > maxID {
      maxID = r.ID
    }
  }

  p.current = &RemoteUser{
    ID: maxID + 1,
    Name: string(nick),
    Year: u.Birthday.Year(),
    LocalUserID: u.ID,
    isNew: true,
  }

  var sex byte
  if u.Gender == device.GenderMale {
    sex = 0x80
  }

  params := append(encodeUserID(p.current), nick...)
  params = append(params,
    byte(u.Birthday.Year()-1900),
    byte(u.Birthday.Month()-1),
    byte(u.Birthday.Day()),
    byte(u.Height),
    sex|byte(u.ActivityLevel+1),
  )

  p.s.Log().Info().Int("UserID", u.ID).Uint64("RemoteID", p.current.ID).Msg("sanitas: creating remote user")
  p.sendCommand(cmdUserAdd, params...)
}

func (p *Sanitas) addMeasurement(data []byte, userID int) {
  m, err := DecodeMeasurement(data)
  if err != nil {
    p.s.DropFrame(CharCustom, data, err)
    return
  }

  m.UserID = userID
  p.s.AddMeasurement(m)
}

// collect adds a measurement part to the reassembly buffer. Once the second part arrives the
// measurement is stored if its user is known, or kept for later otherwise.
func (p *Sanitas) collect(part []byte, first, saved bool) {
  log := p.s.Log()

  if first {
    if p.measurement.Start(part) {
      log.Debug().Msg("sanitas: discarding incomplete measurement")
    }

    return
  }

  if !p.measurement.Append(part) {
    log.Warn().Msg("sanitas: measurement part without a first part, discarding")
    return
  }

  data := p.measurement.Bytes()

  switch {
  case p.current != nil && (p.readyForData || saved):
    p.addMeasurement(data, p.current.LocalUserID)

    if !saved {
      p.dataReceived = true
    }

    p.measurement.Reset()
    p.pending.data = nil
  case !saved:
    log.Debug().Bool("Ready", p.readyForData).Msg("sanitas: measurement complete but user unknown, keeping it for later")
    p.pending.data = data
    p.pending.storedUID = p.pending.candidateUID
    p.measurement.Reset()
  default:
    log.Error().Msg("sanitas: saved measurement for unknown user, discarding")
    p.measurement.Reset()
  }
}

func (p *Sanitas) handleSavedMeasurement(frame []byte) {
  count, current := int(frame[2]), int(frame[3])

  p.collect(frame[4:], current%2 == 1, true)
  p.sendAck(frame)

  if current != count {
    p.s.Stop()
    return
  }

  p.s.Log().Info().Int("Count", count/2).Msg("sanitas: all saved measurements received")

  if !p.expectIn("saved measurement", stepSavedMeasurements) {
    if p.waitStep != notWaiting {
      p.s.Resume()
    }

    return
  }

  p.readyForData = true
  p.sendCommand(cmdDeleteSavedMeasurements, encodeUserID(p.current)...)
  p.s.Stop()
}

func (p *Sanitas) handleWeightMeasurement(frame []byte) {
  if len(frame) < 5 {
    p.s.DropFrame(CharCustom, frame, device.ErrInvalidData)
    return
  }

  weight := kilograms(frame, 3)

  if frame[2] != 0 {
    p.s.Log().Debug().Float32("Weight", weight).Msg("sanitas: measuring")
    p.s.SendMessage(driver.MessageMeasuring, weight)
    return
  }

  p.s.Log().Info().Float32("Weight", weight).Msg("sanitas: stable weight")
}

func (p *Sanitas) handleMeasurement(frame []byte) {
  count, current := int(frame[2]), int(frame[3])

  if current == 1 {
    if len(frame) >= 13 {
      uid := codec.Uint64BE(frame, 5)
      p.pending.candidateUID = uid
      p.current = nil

      for _, u := range p.remoteUsers {
        if u.ID == uid {
          p.current = u
          break
        }
      }

      p.s.Log().Debug().Uint64("RemoteID", uid).Bool("Known", p.current != nil).Msg("sanitas: measurement for remote user")
    }
  } else {
    p.collect(frame[4:], current == 2, false)
  }

  p.sendAck(frame)

  if current != count {
    p.s.Stop()
    return
  }

  switch {
  case p.current != nil && p.readyForData:
    p.sendCommand(cmdDeleteSavedMeasurements, encodeUserID(p.current)...)
    p.s.Stop()
  case !p.expectIn("measurement", stepCreateUser, stepFinish):
    if p.waitStep != notWaiting {
      p.s.Resume()
    }
  default:
    p.s.Resume()
  }
}
