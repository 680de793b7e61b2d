package driver

import (
  "github.com/go-ble/ble"
)

// Protocol is a vendor driver running on top of a Session.
type Protocol interface {
  Name() string
  OnNextStep(step int) bool
  OnNotify(char ble.UUID, value []byte)
}

// ServicesDiscovered is implemented by protocols that inspect the remote GATT table once
// it is known and before step 0 runs.
type ServicesDiscovered interface {
  OnServicesDiscovered()
}

// Disconnecting is implemented by protocols that hold state to flush when the session ends.
type Disconnecting interface {
  OnDisconnect()
}

// AdvertisementHandler is implemented by protocols that decode broadcasts and never connect.
type AdvertisementHandler interface {
  OnAdvertisement(a ble.Advertisement)
}

// Constructor binds a new protocol instance to its session.
type Constructor func(s *Session) Protocol

// Factory describes a driver family. The variant is the name the driver reports for a
// given advertised name.
type Factory struct {
  ID string
  New func(s *Session, advertisedName string) Protocol
  AdvertisementOnly bool
  Help string
}
