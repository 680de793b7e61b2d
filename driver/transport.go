package driver

import (
  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/device"
)

//go:generate mockgen -destination=mock/transport.go -package=mock . Transport

// Transport is the GATT side of a connection. Every operation only queues the request; the
// outcome is reported back to the session through the matching *Completed, NotificationEnabled
// or CharacteristicUpdated entry point. Reads complete through CharacteristicUpdated.
type Transport interface {
  HasCharacteristic(service, char ble.UUID) bool
  Read(service, char ble.UUID) error
  Write(service, char ble.UUID, value []byte, withResponse bool) error
  Subscribe(service, char ble.UUID, indicate bool) error
  Close() error
}

// Sink receives finished measurements. It must not block.
type Sink interface {
  Submit(scale string, m device.Measurement)
}

type SinkFunc func(scale string, m device.Measurement)

func (f SinkFunc) Submit(scale string, m device.Measurement) {
  f(scale, m)
}
