package standard

import (
  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/driver"
)

// BaseVendor is the vendor part of scales that only implement the SIG services. Vendor
// drivers embed it and override what their scale supports.
type BaseVendor struct {
  P *Profile
}

func (BaseVendor) Name() string {
  return "Bluetooth Standard Weight Profile"
}

func (BaseVendor) MaxUserCount() int {
  return 0
}

func (BaseVendor) EnableUserListNotify() {}

func (BaseVendor) RequestUserList() bool {
  return false
}

func (v BaseVendor) WriteActivityLevel() {
  v.P.s.Log().Debug().Msg("standard: activity level not supported by scale")
}

func (v BaseVendor) WriteInitials() {
  v.P.s.Log().Debug().Msg("standard: initials not supported by scale")
}

func (v BaseVendor) RequestMeasurement() {
  v.P.s.Log().Debug().Msg("standard: waiting for the user to step on the scale")
}

func (BaseVendor) OnNotify(ble.UUID, []byte) bool {
  return false
}

// NewGeneric returns the protocol for scales without vendor extensions.
func NewGeneric(s *driver.Session, _ string) driver.Protocol {
  v := &BaseVendor{}
  v.P = New(s, v)

  return v.P
}

var Factory = driver.Factory{
  ID: "standard",
  New: NewGeneric,
  Help: "scales implementing the Bluetooth SIG weight scale and body composition services",
}
