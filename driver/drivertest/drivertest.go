// Package drivertest runs protocols against a scripted in-memory scale.
package drivertest

import (
  "sync"
  "testing"
  "time"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/store"
)

// Op is a transport request issued by a protocol.
type Op struct {
  Kind string
  Service ble.UUID
  Char ble.UUID
  Value []byte
  WithResponse bool
}

// Transport is a driver.Transport that records every request and completes it right away.
// Reads answer with the value registered in Values, if any.
type Transport struct {
  mu sync.Mutex

  Session *driver.Session
  Chars map[string]bool
  Values map[string][]byte
  Ops []Op
  Closed int
}

func key(service, char ble.UUID) string {
  return service.String() + "/" + char.String()
}

func (t *Transport) AddCharacteristic(service, char ble.UUID) {
  t.mu.Lock()
  defer t.mu.Unlock()

  if t.Chars == nil {
    t.Chars = make(map[string]bool)
  }

  t.Chars[key(service, char)] = true
}

func (t *Transport) record(op Op) {
  t.mu.Lock()
  defer t.mu.Unlock()

  t.Ops = append(t.Ops, op)
}

func (t *Transport) HasCharacteristic(service, char ble.UUID) bool {
  t.mu.Lock()
  defer t.mu.Unlock()

  return t.Chars[key(service, char)]
}

func (t *Transport) Read(service, char ble.UUID) error {
  t.record(Op{Kind: "read", Service: service, Char: char})

  t.mu.Lock()
  v, ok := t.Values[key(service, char)]
  t.mu.Unlock()

  if ok {
    t.Session.CharacteristicUpdated(char, v)
  }

  return nil
}

func (t *Transport) Write(service, char ble.UUID, value []byte, withResponse bool) error {
  v := make([]byte, len(value))
  copy(v, value)

  t.record(Op{Kind: "write", Service: service, Char: char, Value: v, WithResponse: withResponse})

  if withResponse {
    t.Session.WriteCompleted(char, v, nil)
  }

  return nil
}

func (t *Transport) Subscribe(service, char ble.UUID, indicate bool) error {
  kind := "notify"
  if indicate {
    kind = "indicate"
  }

  t.record(Op{Kind: kind, Service: service, Char: char})
  t.Session.NotificationEnabled(char, nil)

  return nil
}

func (t *Transport) Close() error {
  t.mu.Lock()
  defer t.mu.Unlock()

  t.Closed++

  return nil
}

// Writes returns the values written to char, in order.
func (t *Transport) Writes(char ble.UUID) (out [][]byte) {
  t.mu.Lock()
  defer t.mu.Unlock()

  for _, op := range t.Ops {
    if op.Kind == "write" && op.Char.Equal(char) {
      out = append(out, op.Value)
    }
  }

  return out
}

// Harness wires a protocol to a recording transport, sink, store and observer.
type Harness struct {
  T *testing.T
  Session *driver.Session
  Transport *Transport
  Store *store.Memory

  mu sync.Mutex
  measurements []device.Measurement
  events []driver.Event
}

type Options struct {
  Users []device.User
  SelectedUser int
  Store *store.Memory
  IdleTimeout time.Duration
  Now func() time.Time
}

func New(t *testing.T, opts Options, ctor driver.Constructor) *Harness {
  h := &Harness{
    T: t,
    Transport: &Transport{},
    Store: opts.Store,
  }

  if h.Store == nil {
    h.Store = store.NewMemory(opts.Users, opts.SelectedUser)
  }

  logger := zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel)

  h.Session = driver.NewSession(driver.Options{
    Scale: "test-scale",
    Store: h.Store,
    Sink: driver.SinkFunc(func(_ string, m device.Measurement) {
      h.mu.Lock()
      defer h.mu.Unlock()

      h.measurements = append(h.measurements, m)
    }),
    Observer: func(e driver.Event) {
      h.mu.Lock()
      defer h.mu.Unlock()

      h.events = append(h.events, e)
    },
    IdleTimeout: opts.IdleTimeout,
    Logger: &logger,
    Now: opts.Now,
  }, ctor)

  h.Transport.Session = h.Session

  t.Cleanup(func() {
    h.Session.Close()

    select {
    case <-h.Session.Done():
    case <-time.After(time.Second):
    }
  })

  return h
}

// Connect attaches the transport, reports the connection and waits for the protocol to
// settle.
func (h *Harness) Connect() {
  h.Session.Start(h.Transport)
  h.Session.Connected()
  h.Session.Flush()
}

func (h *Harness) Notify(char ble.UUID, value []byte) {
  h.Session.CharacteristicUpdated(char, value)
  h.Session.Flush()
}

func (h *Harness) Advertise(a ble.Advertisement) {
  h.Session.Advertisement(a)
  h.Session.Flush()
}

func (h *Harness) Measurements() []device.Measurement {
  h.mu.Lock()
  defer h.mu.Unlock()

  out := make([]device.Measurement, len(h.measurements))
  copy(out, h.measurements)

  return out
}

func (h *Harness) Events() []driver.Event {
  h.mu.Lock()
  defer h.mu.Unlock()

  out := make([]driver.Event, len(h.events))
  copy(out, h.events)

  return out
}

// Messages returns the scale messages raised so far.
func (h *Harness) Messages() (out []driver.Message) {
  for _, e := range h.Events() {
    if e.Status == driver.StatusScaleMessage {
      out = append(out, e.Message)
    }
  }

  return out
}

// Interactions returns the interactions requested so far.
func (h *Harness) Interactions() (out []driver.Interaction) {
  for _, e := range h.Events() {
    if e.Status == driver.StatusUserInteractionRequired {
      out = append(out, *e.Interaction)
    }
  }

  return out
}

func (h *Harness) Disconnected() bool {
  select {
  case <-h.Session.Done():
    return true
  default:
    return false
  }
}

// Advertisement is a ble.Advertisement with settable fields.
type Advertisement struct {
  Name string
  Manufacturer []byte
  Address ble.Addr
}

func (f Advertisement) LocalName() string { return f.Name }
func (f Advertisement) ManufacturerData() []byte { return f.Manufacturer }
func (f Advertisement) ServiceData() []ble.ServiceData { return nil }
func (f Advertisement) Services() []ble.UUID { return nil }
func (f Advertisement) OverflowService() []ble.UUID { return nil }
func (f Advertisement) TxPowerLevel() int { return 0 }
func (f Advertisement) Connectable() bool { return false }
func (f Advertisement) SolicitedService() []ble.UUID { return nil }
func (f Advertisement) RSSI() int { return 0 }

func (f Advertisement) Addr() ble.Addr {
  if f.Address == nil {
    return ble.NewAddr("00:00:00:00:00:00")
  }

  return f.Address
}
