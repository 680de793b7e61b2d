package collector

import (
  "context"
  "fmt"
  "sync"
  "sync/atomic"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/collector/model"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/registry"
  "github.com/robertof/go-scale-bridge/utils"
)

// worker follows one scale through a collection. Advertisements are handed to it one at a
// time by the scan; connections run on the shared errgroup.
type worker struct {
  ctx context.Context
  scale *device.Scale
  radio Radio
  opts CollectionOptions
  eg *errgroup.Group
  finish func()

  mu sync.Mutex
  stopped bool
  seen bool
  factory driver.Factory
  passive *driver.Session

  measurements atomic.Int32
  attempts atomic.Int32
  finishOnce sync.Once
  result model.Result
}

func (w *worker) done(err error) {
  w.finishOnce.Do(func() {
    w.result = model.Result{
      Driver: w.factory.ID,
      Measurements: int(w.measurements.Load()),
      Attempts: int(w.attempts.Load()),
      Error: err,
    }

    log.Debug().
      Stringer("Scale", w.scale).
      Stringer("Result", w.result).
      Msg("collector: scale done")

    w.finish()
  })
}

func (w *worker) resolve(a ble.Advertisement) (driver.Factory, error) {
  if id := w.scale.Driver; id != "" {
    f, ok := registry.ByID(id)
    if !ok {
      return f, fmt.Errorf("%w: unknown driver %q", ErrNoDriver, id)
    }

    return f, nil
  }

  f, ok := registry.LookupAdvertisement(a)
  if !ok {
    return f, fmt.Errorf("%w: nothing handles advertised name %q", ErrNoDriver, a.LocalName())
  }

  return f, nil
}

// advertisement reports whether the scan is over for this scale.
func (w *worker) advertisement(a ble.Advertisement) bool {
  w.mu.Lock()
  defer w.mu.Unlock()

  if w.stopped {
    return true
  }

  if w.passive != nil {
    select {
    case <-w.passive.Done():
      return true
    default:
    }

    w.passive.Advertisement(a)
    return false
  }

  if w.seen {
    return true
  }

  w.seen = true

  f, err := w.resolve(a)
  if err != nil {
    log.Error().Err(err).Stringer("Scale", w.scale).Msg("collector: cannot pick a driver")
    w.done(err)
    return true
  }

  w.factory = f
  name := a.LocalName()

  log.Info().
    Stringer("Scale", w.scale).
    Str("LocalName", name).
    Str("Driver", f.ID).
    Msg("collector: scale found")

  if f.AdvertisementOnly {
    s := w.newSession(f, name, nil)
    w.passive = s

    // the scan is shared with the other scales and ends once all of them are done.
    s.StartScan(nil)
    s.Advertisement(a)

    w.eg.Go(func() error {
      <-s.Done()
      w.done(nil)
      return nil
    })

    return false
  }

  w.eg.Go(func() error {
    w.connect(f, name)
    return nil
  })

  return true
}

// stopScan runs once the scan is over.
func (w *worker) stopScan() {
  w.mu.Lock()
  w.stopped = true
  seen, passive := w.seen, w.passive
  w.mu.Unlock()

  if !seen {
    log.Debug().Stringer("Scale", w.scale).Msg("collector: scale not seen")

    if w.opts.Observer != nil {
      w.opts.Observer(driver.Event{Status: driver.StatusNoDeviceFound, Detail: w.scale.Name})
    }

    w.done(ErrScaleNotFound)
    return
  }

  if passive != nil {
    passive.Close()
  }
}

func (w *worker) submit(scale string, m device.Measurement) {
  w.measurements.Add(1)

  if w.opts.Sink != nil {
    w.opts.Sink.Submit(scale, m)
  }
}

func (w *worker) newSession(f driver.Factory, name string, a *answerer) *driver.Session {
  var s *driver.Session

  observer := func(e driver.Event) {
    if w.opts.Observer != nil {
      w.opts.Observer(e)
    }

    if e.Status == driver.StatusUserInteractionRequired && a != nil {
      a.answer(s, *e.Interaction)
    }
  }

  s = driver.NewSession(driver.Options{
    Scale: w.scale.Name,
    Sink: driver.SinkFunc(w.submit),
    Store: w.opts.Store,
    Observer: observer,
    IdleTimeout: w.opts.IdleTimeout,
  }, func(s *driver.Session) driver.Protocol {
    return f.New(s, name)
  })

  return s
}

// runSession connects once and waits for the session to end. It reports whether an answer
// given during the session needs another connection to be applied.
func (w *worker) runSession(f driver.Factory, name string) (reconnect bool, err error) {
  a := newAnswerer(w.opts.Answers)
  s := w.newSession(f, name, a)

  w.attempts.Add(1)

  ctx, cancel := context.WithTimeout(w.ctx, w.opts.ConnectTimeout)
  t, err := w.radio.Open(ctx, w.scale.Addr, s)
  cancel()

  if err != nil {
    s.ConnectionFailed(ble.HCIStatus(err), err)
    <-s.Done()

    return false, fmt.Errorf("failed to connect to scale: %w", err)
  }

  s.Start(t)
  s.Connected()

  select {
  case <-s.Done():
  case <-w.ctx.Done():
    s.Close()
    <-s.Done()
  }

  return a.wait(), nil
}

func (w *worker) connect(f driver.Factory, name string) {
  retries, reconnects := 0, 0

  for {
    reconnect, err := w.runSession(f, name)

    switch {
    case w.ctx.Err() != nil:
      w.done(w.ctx.Err())
      return
    case err == nil && !reconnect:
      w.done(nil)
      return
    case err == nil:
      if reconnects == maxReconnects {
        log.Warn().Stringer("Scale", w.scale).Msg("collector: too many reconnections, giving up")
        w.done(nil)
        return
      }

      reconnects++

      log.Info().
        Stringer("Scale", w.scale).
        Int("Reconnects", reconnects).
        Msg("collector: reconnecting to apply answers")
    default:
      if retries >= w.opts.MaxRetries {
        w.done(err)
        return
      }

      backoff := utils.Backoff(w.opts.BackoffFactor, w.opts.BackoffLimit, retries)
      retries++

      log.Debug().
        Err(err).
        Stringer("Scale", w.scale).
        Int("RetriesLeft", w.opts.MaxRetries-retries+1).
        Dur("Backoff", backoff).
        Msg("collector: connection failed, will retry")

      select {
      case <-w.ctx.Done():
        w.done(w.ctx.Err())
        return
      case <-time.After(backoff):
      }
    }
  }
}
