package driver

import (
  "github.com/go-ble/ble"
)

// Router maps characteristics to their notification handlers.
type Router map[string]func(value []byte)

func (r Router) Handle(char ble.UUID, fn func(value []byte)) {
  r[char.String()] = fn
}

// Dispatch runs the handler registered for char and reports whether there was one.
func (r Router) Dispatch(char ble.UUID, value []byte) bool {
  fn, ok := r[char.String()]

  if !ok {
    return false
  }

  fn(value)

  return true
}
