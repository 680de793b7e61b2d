package beurer

import (
  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/device/standard"
  "github.com/robertof/go-scale-bridge/driver"
)

var (
  ServiceBF600 = ble.UUID16(0xfff0)

  CharBF600Settings = ble.UUID16(0xfff1)
  CharBF600UserList = ble.UUID16(0xfff2)
  CharBF600ActivityLevel = ble.UUID16(0xfff3)
  CharBF600TakeMeasurement = ble.UUID16(0xfff4)
  CharBF600ReferWeightBF = ble.UUID16(0xfff5)
  CharBF850Initials = ble.UUID16(0xfff6)
)

const bf600MaxUsers = 8

// BF600 covers the Beurer BF600/BF850 family, standard profile scales with a vendor
// service for the user list, activity level and initials.
type BF600 struct {
  standard.BaseVendor

  deviceName string
}

func NewBF600(s *driver.Session, advertisedName string) driver.Protocol {
  v := &BF600{deviceName: advertisedName}
  v.P = standard.New(s, v)

  return v.P
}

func (v *BF600) Name() string {
  if v.deviceName == "" {
    return "Beurer BF600"
  }

  return "Beurer " + v.deviceName
}

func (v *BF600) MaxUserCount() int {
  return bf600MaxUsers
}

func (v *BF600) EnableUserListNotify() {
  s := v.P.Session()

  if s.SetNotificationOn(ServiceBF600, CharBF600UserList) {
    s.Log().Debug().Msg("beurer: user list notifications requested")
  } else {
    s.Log().Warn().Msg("beurer: scale has no user list characteristic")
  }
}

func (v *BF600) RequestUserList() bool {
  v.P.Session().Write(ServiceBF600, CharBF600UserList, []byte{0x00})

  return true
}

func (v *BF600) WriteActivityLevel() {
  s := v.P.Session()
  level := s.SelectedUser().ActivityLevel

  s.Write(ServiceBF600, CharBF600ActivityLevel, []byte{uint8(level) + 1})
}

func (v *BF600) WriteInitials() {
  s := v.P.Session()

  if !s.HasCharacteristic(ServiceBF600, CharBF850Initials) {
    return
  }

  user := s.SelectedUser()
  s.Write(ServiceBF600, CharBF850Initials, []byte(standard.Initials(user.Name, user.ID)))
}

func (v *BF600) RequestMeasurement() {
  v.P.Session().Write(ServiceBF600, CharBF600TakeMeasurement, []byte{0x00})
}

func (v *BF600) OnNotify(char ble.UUID, value []byte) bool {
  if !char.Equal(CharBF600UserList) {
    return false
  }

  v.P.HandleUserList(char, value)

  return true
}

var BF600Factory = driver.Factory{
  ID: "beurer_bf600",
  New: NewBF600,
  Help: "Beurer BF600, BF850 and rebranded variants",
}
