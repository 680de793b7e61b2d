package driver

import (
  "context"
  "errors"
  "sync"
  "time"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/store"
)

var (
  ErrSessionClosed = errors.New("session closed")
  ErrReconnectRequired = errors.New("reconnect required")
  ErrNoCharacteristic = errors.New("characteristic not found")
)

// HCI status reported when the peripheral did not answer the connection attempt.
const hciConnectionTimeout = 0x08

type Options struct {
  // Scale is the configured name of the scale, used to label measurements.
  Scale string
  Sink Sink
  Store store.Store
  Observer Observer
  IdleTimeout time.Duration
  Logger *zerolog.Logger
  Now func() time.Time
}

// Session is one connection attempt to a scale. Every transport callback is funneled through
// a Dispatcher, so the protocol and the step machine only ever run on one goroutine.
//
// Protocols reach the transport, the user store and the sink through the helpers below and
// drive the step machine through the embedded Machine.
type Session struct {
  *Machine

  opts Options
  log zerolog.Logger

  proto Protocol
  transport Transport
  dispatcher *Dispatcher
  watchdog *Watchdog

  mu sync.Mutex
  cancelScan context.CancelFunc
  closed bool
  done chan struct{}
}

func NewSession(opts Options, ctor Constructor) *Session {
  if opts.Now == nil {
    opts.Now = time.Now
  }

  if opts.Observer == nil {
    opts.Observer = func(Event) {}
  }

  if opts.Store == nil {
    opts.Store = store.NewMemory(nil, 0)
  }

  logger := log.Logger
  if opts.Logger != nil {
    logger = *opts.Logger
  }

  s := &Session{
    opts: opts,
    done: make(chan struct{}),
  }

  s.proto = ctor(s)
  s.log = logger.With().Str("Scale", opts.Scale).Str("Driver", s.proto.Name()).Logger()
  s.Machine = NewMachine(s.proto.OnNextStep, s.onFinished, s.log)
  s.Machine.Reset()
  s.dispatcher = NewDispatcher(s.log)
  s.watchdog = NewWatchdog(opts.IdleTimeout, s.onIdle)

  return s
}

func (s *Session) Protocol() Protocol {
  return s.proto
}

func (s *Session) Log() *zerolog.Logger {
  return &s.log
}

func (s *Session) Now() time.Time {
  return s.opts.Now()
}

func (s *Session) Store() store.Store {
  return s.opts.Store
}

func (s *Session) SelectedUser() device.User {
  u, ok := s.opts.Store.SelectedUser()

  if !ok {
    s.log.Warn().Int("UserID", u.ID).Msg("driver: selected user has no profile")
  }

  return u
}

func (s *Session) Users() []device.User {
  return s.opts.Store.Users()
}

// Done is closed once the session is disconnected.
func (s *Session) Done() <-chan struct{} {
  return s.done
}

func (s *Session) Closed() bool {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.closed
}

// Flush waits until every callback delivered so far has been handled.
func (s *Session) Flush() {
  s.dispatcher.Flush()
}

func (s *Session) post(fn func()) {
  if !s.dispatcher.Post(fn) {
    s.log.Trace().Msg("driver: dropping event for closed session")
  }
}

func (s *Session) emit(e Event) {
  s.log.Debug().Stringer("Event", e).Msg("driver: session event")
  s.opts.Observer(e)
}

func (s *Session) status(st Status, detail string) {
  s.emit(Event{Status: st, Detail: detail})
}

func (s *Session) onFinished() {
  s.log.Debug().Dur("IdleTimeout", s.watchdog.timeout).Msg("driver: disconnecting after idle timeout")
  s.watchdog.Reset()
}

func (s *Session) onIdle() {
  idleTimeoutsCounter.Inc()
  s.log.Info().Msg("driver: idle timeout reached, disconnecting")
  s.Close()
}

// Start binds the session to an established connection. Step 0 runs once the connection is
// reported through Connected.
func (s *Session) Start(t Transport) {
  s.mu.Lock()
  s.transport = t
  s.mu.Unlock()
}

// StartScan marks the session as waiting for advertisements; cancel stops the scan and is
// called on disconnect.
func (s *Session) StartScan(cancel context.CancelFunc) {
  s.mu.Lock()
  s.cancelScan = cancel
  s.mu.Unlock()

  s.post(func() {
    s.status(StatusInitProcess, "scanning")
    s.watchdog.Reset()
  })
}

// Connected is called once the connection is up and the GATT table is discovered.
func (s *Session) Connected() {
  s.post(func() {
    s.status(StatusConnectionEstablished, "")

    if hook, ok := s.proto.(ServicesDiscovered); ok {
      hook.OnServicesDiscovered()
    }

    s.Machine.Resume()
    s.watchdog.Reset()
  })
}

// ConnectionFailed reports a connection attempt that never came up.
func (s *Session) ConnectionFailed(hciStatus int, err error) {
  s.post(func() {
    s.log.Error().Err(err).Int("HCIStatus", hciStatus).Msg("driver: connection failed")
    s.status(StatusConnectionLost, "connection failed")

    if hciStatus == hciConnectionTimeout {
      s.SendMessage(MessageScaleOffline, 0)
    }

    s.Disconnect()
  })
}

// ConnectionLost reports a link that went down while the session was running.
func (s *Session) ConnectionLost(err error) {
  s.post(func() {
    s.log.Warn().Err(err).Msg("driver: connection lost")
    s.status(StatusConnectionLost, "")
    s.Disconnect()
  })
}

// fail ends a session whose machine waits on a GATT operation that will never complete.
func (s *Session) fail(err error, char ble.UUID, what string) {
  s.log.Error().Err(err).Stringer("Characteristic", char).Msg("driver: " + what)
  s.status(StatusUnexpectedError, what+" on "+char.String())
  s.Disconnect()
}

func (s *Session) NotificationEnabled(char ble.UUID, err error) {
  s.post(func() {
    if err != nil {
      s.fail(err, char, "failed to enable notifications")
      return
    }

    s.log.Debug().Stringer("Characteristic", char).Msg("driver: notifications enabled")
    s.Machine.Resume()
  })
}

func (s *Session) WriteCompleted(char ble.UUID, value []byte, err error) {
  s.post(func() {
    if err != nil {
      s.fail(err, char, "write failed")
      return
    }

    s.log.Trace().Stringer("Characteristic", char).Str("Value", codec.Hex(value)).Msg("driver: write done")
    s.Machine.Next()
  })
}

// CharacteristicUpdated delivers a notification, an indication or the result of a read.
func (s *Session) CharacteristicUpdated(char ble.UUID, value []byte) {
  payload := make([]byte, len(value))
  copy(payload, value)

  s.post(func() {
    s.watchdog.Reset()

    s.log.Trace().Stringer("Characteristic", char).Str("Value", codec.Hex(payload)).Msg("driver: notification")
    s.proto.OnNotify(char, payload)
  })
}

// Advertisement delivers a broadcast from the scale to an advertisement driven protocol.
func (s *Session) Advertisement(a ble.Advertisement) {
  handler, ok := s.proto.(AdvertisementHandler)

  if !ok {
    return
  }

  s.post(func() {
    s.watchdog.Reset()
    handler.OnAdvertisement(a)
  })
}

// Do runs fn on the session goroutine, as if it was a transport callback.
func (s *Session) Do(fn func()) bool {
  return s.dispatcher.Post(fn)
}

func (s *Session) getTransport() Transport {
  s.mu.Lock()
  defer s.mu.Unlock()

  return s.transport
}

func (s *Session) HasCharacteristic(service, char ble.UUID) bool {
  t := s.getTransport()

  return t != nil && t.HasCharacteristic(service, char)
}

func (s *Session) subscribe(service, char ble.UUID, indicate bool) bool {
  if !s.HasCharacteristic(service, char) {
    s.log.Debug().
      Stringer("Service", service).
      Stringer("Characteristic", char).
      Msg("driver: characteristic not available, not subscribing")
    return false
  }

  s.Machine.Stop()

  if err := s.getTransport().Subscribe(service, char, indicate); err != nil {
    s.log.Error().Err(err).Stringer("Characteristic", char).Msg("driver: subscribe failed")
    s.Machine.unstop()
    return false
  }

  return true
}

// SetNotificationOn subscribes to char and stops the machine until the subscription is
// confirmed. It returns false, leaving the machine running, if char does not exist.
func (s *Session) SetNotificationOn(service, char ble.UUID) bool {
  return s.subscribe(service, char, false)
}

func (s *Session) SetIndicationOn(service, char ble.UUID) bool {
  return s.subscribe(service, char, true)
}

func (s *Session) Read(service, char ble.UUID) {
  t := s.getTransport()

  if t == nil {
    s.log.Error().Err(ErrSessionClosed).Msg("driver: read without transport")
    return
  }

  if err := t.Read(service, char); err != nil {
    s.log.Error().Err(err).Stringer("Characteristic", char).Msg("driver: read failed")
  }
}

func (s *Session) write(service, char ble.UUID, value []byte, withResponse bool) {
  t := s.getTransport()

  if t == nil {
    s.log.Error().Err(ErrSessionClosed).Msg("driver: write without transport")
    return
  }

  s.log.Debug().
    Stringer("Characteristic", char).
    Str("Value", codec.Hex(value)).
    Msg("driver: writing")

  if err := t.Write(service, char, value, withResponse); err != nil {
    s.log.Error().Err(err).Stringer("Characteristic", char).Msg("driver: write failed")
  }
}

func (s *Session) Write(service, char ble.UUID, value []byte) {
  s.write(service, char, value, true)
}

func (s *Session) WriteNoResponse(service, char ble.UUID, value []byte) {
  s.write(service, char, value, false)
}

// AddMeasurement hands a finished measurement to the sink. Measurements without a weight
// are dropped.
func (s *Session) AddMeasurement(m device.Measurement) {
  if m.Weight <= 0 {
    s.log.Warn().Stringer("Measurement", m).Msg("driver: dropping measurement without weight")
    return
  }

  if m.Timestamp.IsZero() {
    m.Timestamp = s.Now()
  }

  measurementsCounter.WithLabelValues(s.proto.Name()).Inc()
  s.log.Info().Stringer("Measurement", m).Msg("driver: measurement received")

  s.emit(Event{Status: StatusRetrieveScaleData, Value: m})

  if s.opts.Sink != nil {
    s.opts.Sink.Submit(s.opts.Scale, m)
  }
}

// DropFrame records a payload that could not be decoded.
func (s *Session) DropFrame(char ble.UUID, value []byte, err error) {
  droppedFramesCounter.WithLabelValues(s.proto.Name()).Inc()

  s.log.Debug().
    Err(err).
    Stringer("Characteristic", char).
    Str("Value", codec.Hex(value)).
    Msg("driver: dropping frame")
}

func (s *Session) SendMessage(msg Message, value any) {
  s.emit(Event{Status: StatusScaleMessage, Message: msg, Value: value})
}

func (s *Session) RequestInteraction(i Interaction) {
  s.emit(Event{Status: StatusUserInteractionRequired, Interaction: &i})
}

// Answer posts an interaction answer to the protocol.
func (s *Session) Answer(fn func(r Responder) error) error {
  r, ok := s.proto.(Responder)

  if !ok {
    return errors.New("driver does not take interaction answers")
  }

  errCh := make(chan error, 1)

  if !s.dispatcher.Post(func() { errCh <- fn(r) }) {
    // the session is gone: the answer was not stored either, so let the protocol store it
    // and ask for a new connection.
    return fn(r)
  }

  select {
  case err := <-errCh:
    return err
  case <-s.dispatcher.Done():
    return ErrSessionClosed
  }
}

// Disconnect tears the session down. It must run on the session goroutine, i.e. from a
// protocol; use Close from anywhere else. Calling it more than once is a no-op.
func (s *Session) Disconnect() {
  s.mu.Lock()

  if s.closed {
    s.mu.Unlock()
    return
  }

  s.closed = true
  transport, cancelScan := s.transport, s.cancelScan
  s.transport, s.cancelScan = nil, nil
  s.mu.Unlock()

  if hook, ok := s.proto.(Disconnecting); ok {
    hook.OnDisconnect()
  }

  if cancelScan != nil {
    cancelScan()
  }

  if transport != nil {
    if err := transport.Close(); err != nil {
      s.log.Debug().Err(err).Msg("driver: error closing transport")
    }
  }

  s.watchdog.Stop()
  s.dispatcher.Close()

  s.status(StatusConnectionDisconnect, "")
  close(s.done)
}

// Close disconnects the session from outside of the session goroutine.
func (s *Session) Close() {
  s.dispatcher.Post(s.Disconnect)
}
