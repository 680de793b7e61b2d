package driver

import (
  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/codec"
)

// ManufacturerData splits the manufacturer specific data of an advertisement into the
// company identifier and the payload following it.
func ManufacturerData(a ble.Advertisement) (id uint16, payload []byte, ok bool) {
  data := a.ManufacturerData()

  if len(data) < 2 {
    return 0, nil, false
  }

  return codec.Uint16LE(data, 0), data[2:], true
}
