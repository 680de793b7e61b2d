package ble

import (
  "errors"
  "fmt"
  "sync"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
)

var ErrTransportClosed = errors.New("transport closed")

// Completions receives the outcome of the GATT requests issued through a Transport.
type Completions interface {
  CharacteristicUpdated(char ble.UUID, value []byte)
  WriteCompleted(char ble.UUID, value []byte, err error)
  NotificationEnabled(char ble.UUID, err error)
  ConnectionLost(err error)
}

type charKey struct {
  service, char string
}

// Transport runs GATT requests against a connected client one at a time, in the order they
// were issued, and reports each outcome to its Completions.
type Transport struct {
  client Client
  done Completions
  chars map[charKey]*ble.Characteristic
  keepAlive bool

  mu sync.Mutex
  queue chan func()
  closed bool
  stopped chan struct{}
}

type TransportOptions struct {
  // KeepAlive leaves the link up on Close so a pooled connection can be reused.
  KeepAlive bool
}

// NewTransport discovers the GATT table of c and starts serving requests.
func NewTransport(c Client, done Completions, opts TransportOptions) (*Transport, error) {
  p, err := c.DiscoverProfile(false)
  if err != nil {
    return nil, fmt.Errorf("cannot discover profile for device: %w", err)
  }

  t := &Transport{
    client: c,
    done: done,
    chars: make(map[charKey]*ble.Characteristic),
    keepAlive: opts.KeepAlive,
    queue: make(chan func(), 32),
    stopped: make(chan struct{}),
  }

  for _, svc := range p.Services {
    for _, char := range svc.Characteristics {
      t.chars[charKey{svc.UUID.String(), char.UUID.String()}] = char
    }
  }

  log.Debug().
    Str("Addr", c.Addr().String()).
    Int("Characteristics", len(t.chars)).
    Msg("ble: discovered device profile")

  go t.loop()
  go t.watch()

  return t, nil
}

func (t *Transport) loop() {
  defer close(t.stopped)

  for op := range t.queue {
    t.mu.Lock()
    closed := t.closed
    t.mu.Unlock()

    if !closed {
      op()
    }
  }
}

func (t *Transport) watch() {
  select {
  case <-t.client.Disconnected():
    t.mu.Lock()
    closed := t.closed
    t.mu.Unlock()

    if !closed {
      t.done.ConnectionLost(errors.New("peripheral disconnected"))
    }
  case <-t.stopped:
  }
}

func (t *Transport) enqueue(op func()) error {
  t.mu.Lock()
  defer t.mu.Unlock()

  if t.closed {
    return ErrTransportClosed
  }

  select {
  case t.queue <- op:
    return nil
  default:
    return errors.New("ble: request queue full")
  }
}

func (t *Transport) find(service, char ble.UUID) (*ble.Characteristic, error) {
  c, ok := t.chars[charKey{service.String(), char.String()}]
  if !ok {
    return nil, fmt.Errorf("characteristic %v/%v not found", service, char)
  }

  return c, nil
}

func (t *Transport) HasCharacteristic(service, char ble.UUID) bool {
  _, err := t.find(service, char)

  return err == nil
}

func (t *Transport) Read(service, char ble.UUID) error {
  c, err := t.find(service, char)
  if err != nil {
    return err
  }

  return t.enqueue(func() {
    data, err := t.client.ReadCharacteristic(c)

    if err != nil {
      log.Error().Err(err).Stringer("Characteristic", char).Msg("ble: read failed")
      return
    }

    t.done.CharacteristicUpdated(char, data)
  })
}

func (t *Transport) Write(service, char ble.UUID, value []byte, withResponse bool) error {
  c, err := t.find(service, char)
  if err != nil {
    return err
  }

  v := make([]byte, len(value))
  copy(v, value)

  return t.enqueue(func() {
    err := t.client.WriteCharacteristic(c, v, !withResponse)

    if withResponse {
      t.done.WriteCompleted(char, v, err)
    } else if err != nil {
      log.Error().Err(err).Stringer("Characteristic", char).Msg("ble: write without response failed")
    }
  })
}

func (t *Transport) Subscribe(service, char ble.UUID, indicate bool) error {
  c, err := t.find(service, char)
  if err != nil {
    return err
  }

  return t.enqueue(func() {
    if c.CCCD == nil {
      if _, err := t.client.DiscoverDescriptors(nil, c); err != nil {
        t.done.NotificationEnabled(char, fmt.Errorf("couldn't fetch descriptors: %w", err))
        return
      }
    }

    err := t.client.Subscribe(c, indicate, func(data []byte) {
      t.done.CharacteristicUpdated(char, data)
    })

    t.done.NotificationEnabled(char, err)
  })
}

// Close drops pending requests. Kept alive links only lose their subscriptions; any other
// link is torn down.
func (t *Transport) Close() error {
  t.mu.Lock()

  if t.closed {
    t.mu.Unlock()
    return nil
  }

  t.closed = true
  close(t.queue)
  t.mu.Unlock()

  if !t.keepAlive {
    return t.client.CancelConnection()
  }

  <-t.stopped

  if err := t.client.ClearSubscriptions(); err != nil {
    return fmt.Errorf("failed to clear subscriptions: %w", err)
  }

  return nil
}
