package standard

import (
  "fmt"

  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/store"
)

const (
  stepStart = iota
  stepReadManufacturer
  stepReadModel
  stepWriteCurrentTime
  stepNotifyWeight
  stepNotifyBodyComposition
  stepNotifyChangeIncrement
  stepIndicateUserControlPoint
  stepNotifyBattery
  stepReadBattery
  stepNotifyVendorUserList
  stepRequestVendorUserList
  stepRegisterNewScaleUser
  stepSelectScaleUser
  stepSetScaleUserData
  stepRequestMeasurement
  stepMax
)

const lowBatteryLevel = 10

// Vendor fills in the parts of the standard weight profile that scales implement on their
// own service.
type Vendor interface {
  Name() string
  MaxUserCount() int
  EnableUserListNotify()
  // RequestUserList asks the scale for its user list and reports whether it did. When it
  // returns false the profile moves on to registering a new scale user.
  RequestUserList() bool
  WriteActivityLevel()
  WriteInitials()
  RequestMeasurement()
  // OnNotify handles vendor characteristics and reports whether char was one of them.
  OnNotify(char ble.UUID, value []byte) bool
}

// Profile drives a scale implementing the Bluetooth SIG Weight Scale, Body Composition and
// User Data services.
type Profile struct {
  s *driver.Session
  vendor Vendor
  router driver.Router

  registerNew bool
  haveBattery bool
  held *device.Measurement
  scaleUsers []ScaleUser
}

func New(s *driver.Session, v Vendor) *Profile {
  p := &Profile{
    s: s,
    vendor: v,
    router: driver.Router{},
  }

  p.router.Handle(CharCurrentTime, p.logValue("current time"))
  p.router.Handle(CharWeightMeasurement, p.handleWeightMeasurement)
  p.router.Handle(CharBodyCompositionMeasurement, p.handleBodyComposition)
  p.router.Handle(CharUserControlPoint, p.handleUserControlPoint)
  p.router.Handle(CharBatteryLevel, p.handleBatteryLevel)
  p.router.Handle(CharManufacturerName, p.logValue("manufacturer"))
  p.router.Handle(CharModelNumber, p.logValue("model"))
  p.router.Handle(CharChangeIncrement, func([]byte) {
    p.s.Log().Debug().Msg("standard: change increment read back")
    p.s.Resume()
  })

  return p
}

func (p *Profile) Name() string {
  return p.vendor.Name()
}

func (p *Profile) Session() *driver.Session {
  return p.s
}

func (p *Profile) logValue(what string) func([]byte) {
  return func(value []byte) {
    p.s.Log().Info().Str("Value", string(value)).Str("Hex", codec.Hex(value)).Msg("standard: " + what)
  }
}

func (p *Profile) OnNextStep(step int) bool {
  if step > stepMax {
    step = stepMax
  }

  s := p.s
  st := s.Store()
  user := s.SelectedUser()

  switch step {
  case stepStart:
  case stepReadManufacturer:
    s.Read(ServiceDeviceInformation, CharManufacturerName)
  case stepReadModel:
    s.Read(ServiceDeviceInformation, CharModelNumber)
  case stepWriteCurrentTime:
    s.Write(ServiceCurrentTime, CharCurrentTime, codec.CurrentTime(s.Now()))
  case stepNotifyWeight:
    s.SetNotificationOn(ServiceWeightScale, CharWeightMeasurement)
  case stepNotifyBodyComposition:
    s.SetNotificationOn(ServiceBodyComposition, CharBodyCompositionMeasurement)
  case stepNotifyChangeIncrement:
    s.SetNotificationOn(ServiceUserData, CharChangeIncrement)
  case stepIndicateUserControlPoint:
    s.SetIndicationOn(ServiceUserData, CharUserControlPoint)
  case stepNotifyBattery:
    p.haveBattery = s.SetNotificationOn(ServiceBattery, CharBatteryLevel)
  case stepReadBattery:
    if p.haveBattery {
      s.Read(ServiceBattery, CharBatteryLevel)
    }
  case stepNotifyVendorUserList:
    p.vendor.EnableUserListNotify()
  case stepRequestVendorUserList:
    p.scaleUsers = p.scaleUsers[:0]

    if p.vendor.RequestUserList() {
      s.Stop()
    }
  case stepRegisterNewScaleUser:
    consent := store.ConsentCode(st, user.ID)
    index := store.ScaleIndex(st, user.ID)

    if consent == -1 || index == -1 {
      p.registerNew = true
    }

    if p.registerNew {
      consent = randomConsentCode()
      store.SetConsentCode(st, user.ID, consent)

      s.Log().Info().Int("UserID", user.ID).Msg("standard: registering new scale user")
      p.registerUser(consent)
      s.Stop()
    }
  case stepSelectScaleUser:
    p.selectUser(store.ScaleIndex(st, user.ID), store.ConsentCode(st, user.ID))
    s.Stop()
  case stepSetScaleUserData:
    if p.registerNew {
      p.writeUserData(user)
      s.Stop()
      s.Read(ServiceUserData, CharChangeIncrement)
    }
  case stepRequestMeasurement:
    if p.registerNew {
      p.vendor.RequestMeasurement()
      s.Stop()
      s.SendMessage(driver.MessageStepOnScaleForReference, 0)
    }
  default:
    return false
  }

  return true
}

func (p *Profile) OnNotify(char ble.UUID, value []byte) {
  if p.vendor.OnNotify(char, value) {
    return
  }

  if !p.router.Dispatch(char, value) {
    p.s.Log().Info().Stringer("Characteristic", char).Str("Value", codec.Hex(value)).Msg("standard: unhandled notification")
  }
}

// OnDisconnect hands over a measurement still waiting for its counterpart.
func (p *Profile) OnDisconnect() {
  if p.held != nil {
    m := *p.held
    p.held = nil
    p.s.AddMeasurement(m)
  }
}

func (p *Profile) handleBatteryLevel(value []byte) {
  if len(value) == 0 {
    p.s.DropFrame(CharBatteryLevel, value, device.ErrInvalidData)
    return
  }

  level := int(value[0])
  p.s.Log().Debug().Int("Level", level).Msg("standard: battery level")

  if level <= lowBatteryLevel {
    p.s.SendMessage(driver.MessageLowBattery, level)
  }
}

func (p *Profile) handleUserControlPoint(value []byte) {
  s := p.s

  if len(value) < 3 || value[0] != ucpResponse {
    s.Log().Info().Str("Value", codec.Hex(value)).Msg("standard: unexpected user control point value")
    return
  }

  user := s.SelectedUser()
  op, result := value[1], value[2]

  switch op {
  case ucpListAllUsers:
    s.Log().Info().Str("Result", ucpResultString(result)).Msg("standard: list users response")
  case ucpRegisterNewUser:
    if result != ucpSuccess || len(value) < 4 {
      s.Log().Error().Str("Result", ucpResultString(result)).Msg("standard: register new user failed")
      return
    }

    index := int(value[3])
    s.Log().Info().Int("ScaleIndex", index).Int("UserID", user.ID).Msg("standard: new scale user registered")
    store.SetScaleIndex(s.Store(), user.ID, index)
    s.Resume()
  case ucpConsent:
    switch {
    case p.registerNew:
      s.Log().Info().Str("Result", ucpResultString(result)).Msg("standard: consent answered for new user")
      s.Resume()
    case result == ucpSuccess:
      s.Log().Info().Int("UserID", user.ID).Msg("standard: user consent accepted")
      s.Resume()
    case result == ucpUserNotAuthorized:
      s.Log().Warn().Int("UserID", user.ID).Msg("standard: user consent refused")
      p.requestConsent(user.ID, store.ScaleIndex(s.Store(), user.ID))
    default:
      s.Log().Error().Str("Result", ucpResultString(result)).Msg("standard: consent failed")
    }
  default:
    s.Log().Info().Str("Value", codec.Hex(value)).Msg("standard: unhandled user control point response")
  }
}

func (p *Profile) requestConsent(userID, scaleIndex int) {
  p.s.RequestInteraction(driver.Interaction{
    Kind: driver.InteractionEnterConsent,
    UserID: userID,
    ScaleIndex: scaleIndex,
  })
}

func (p *Profile) handleWeightMeasurement(value []byte) {
  w, err := DecodeWeightMeasurement(value)
  if err != nil {
    p.s.DropFrame(CharWeightMeasurement, value, err)
    return
  }

  m := device.NewMeasurement()
  m.Weight = w.Weight()

  if w.has(weightFlagTimestamp) {
    m.Timestamp = w.Timestamp
  }

  if w.has(weightFlagUserIndex) {
    p.applyUserIndex(&m, int(w.UserIndex))

    if p.registerNew {
      p.s.Log().Info().Int("UserID", m.UserID).Msg("standard: reference measurement received, registration done")
      p.registerNew = false
      p.s.Resume()
    }
  }

  if w.has(weightFlagBMIHeight) {
    m.BMI = w.BMI()
    p.s.Log().Debug().Float32("BMI", m.BMI).Float32("Height", w.Height()).Msg("standard: bmi and height")
  }

  p.merge(m)
}

func (p *Profile) handleBodyComposition(value []byte) {
  bc, err := DecodeBodyComposition(value)
  if err != nil {
    p.s.DropFrame(CharBodyCompositionMeasurement, value, err)
    return
  }

  log := p.s.Log()

  m := device.NewMeasurement()
  m.Fat = bc.Fat()

  if bc.Has(bodyFlagTimestamp) {
    m.Timestamp = bc.Timestamp
  }

  if bc.Has(bodyFlagUserIndex) {
    p.applyUserIndex(&m, int(bc.UserIndex))
  }

  if bc.Has(bodyFlagBMR) {
    m.BMR = bc.BMR()
  }

  if bc.Has(bodyFlagMusclePercent) {
    m.Muscle = bc.MusclePercent()
  }

  if bc.Has(bodyFlagMuscleMass) {
    log.Debug().Float32("MuscleMass", bc.MuscleMass()).Msg("standard: muscle mass")
  }

  if bc.Has(bodyFlagFatFreeMass) {
    log.Debug().Float32("FatFreeMass", bc.FatFreeMass()).Msg("standard: fat free mass")
  }

  if bc.Has(bodyFlagImpedance) {
    m.Impedance = bc.Impedance()
  }

  weight := bc.Weight()

  if bc.Has(bodyFlagWeight) {
    m.Weight = weight
  } else if p.held != nil && p.held.Weight > 0 && m.UserID == device.UnknownUser {
    weight = p.held.Weight
  }

  // water is reported as a mass, measurements carry it as a percentage of weight.
  if bc.Has(bodyFlagWaterMass) {
    if weight > 0 {
      m.Water = bc.WaterMass() / weight * 100
    } else {
      log.Debug().Float32("WaterMass", bc.WaterMass()).Msg("standard: water mass without weight")
    }
  }

  if bc.Has(bodyFlagHeight) {
    log.Debug().Uint16("Height", bc.RawHeight).Msg("standard: height")
  }

  if bc.Has(bodyFlagMultiPacket) {
    log.Warn().Msg("standard: multi packet body composition is not supported")
  }

  if weight > 0 && bc.Has(bodyFlagSoftLeanMass) {
    m.LBM = weight - weight*m.Fat/100
    m.Bone = m.LBM - bc.SoftLeanMass()
  }

  p.merge(m)
}

// applyUserIndex resolves the scale user index of a measurement to an app user.
func (p *Profile) applyUserIndex(m *device.Measurement, index int) {
  userID := store.UserIDFromScaleIndex(p.s.Store(), index)
  p.s.Log().Debug().Int("ScaleIndex", index).Int("UserID", userID).Msg("standard: measurement for scale user")

  if userID != -1 {
    m.UserID = userID
  }
}

// merge pairs a measurement attributed to a user with the one following it, as scales
// send the weight with the user index first and the body composition without it. Only a
// measurement without a user is merged into a held one; anything else is handed over on
// its own.
func (p *Profile) merge(m device.Measurement) {
  held := p.held
  p.held = nil

  switch {
  case held != nil && m.UserID == device.UnknownUser && held.UserID != device.UnknownUser:
    held.Merge(m)
    p.s.AddMeasurement(*held)
    return
  case held != nil:
    p.s.AddMeasurement(*held)
  }

  if m.UserID == device.UnknownUser {
    p.s.AddMeasurement(m)
    return
  }

  p.held = &m
}

func (p *Profile) registerUser(consent int) {
  p.s.Write(ServiceUserData, CharUserControlPoint, codec.NewWriter(ucpRegisterNewUser).Uint16LE(uint16(consent)).Bytes())
}

func (p *Profile) selectUser(index, consent int) {
  p.s.Log().Info().Int("ScaleIndex", index).Msg("standard: selecting scale user")
  p.s.Write(ServiceUserData, CharUserControlPoint,
    codec.NewWriter(ucpConsent, uint8(index)).Uint16LE(uint16(consent)).Bytes())
}

// DeleteUser removes the currently selected user from the scale.
func (p *Profile) DeleteUser() {
  p.s.Write(ServiceUserData, CharUserControlPoint, []byte{ucpDeleteUserData})
}

func (p *Profile) writeUserData(user device.User) {
  s := p.s

  var birthday codec.Writer
  birthday.Uint16LE(uint16(user.Birthday.Year())).Uint8(uint8(user.Birthday.Month())).Uint8(uint8(user.Birthday.Day()))

  s.Write(ServiceUserData, CharDateOfBirth, birthday.Bytes())
  s.Write(ServiceUserData, CharGender, []byte{uint8(user.Gender)})
  s.Write(ServiceUserData, CharHeight, codec.PutUint16LE(uint16(user.Height)))

  p.vendor.WriteActivityLevel()
  p.vendor.WriteInitials()

  s.Write(ServiceUserData, CharChangeIncrement, codec.PutUint32LE(1))
}

func (p *Profile) String() string {
  return fmt.Sprintf("standard[%s]", p.Name())
}
