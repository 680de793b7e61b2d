package driver

import (
  "sync"
  "time"
)

const DefaultIdleTimeout = 60 * time.Second

// Watchdog calls fire once timeout elapses without a Reset. Every Reset restarts the
// countdown; a stale timer from an earlier arming never fires.
type Watchdog struct {
  mu sync.Mutex

  timeout time.Duration
  timer *time.Timer
  gen uint64
  stopped bool

  fire func()
}

func NewWatchdog(timeout time.Duration, fire func()) *Watchdog {
  if timeout <= 0 {
    timeout = DefaultIdleTimeout
  }

  return &Watchdog{
    timeout: timeout,
    fire: fire,
  }
}

func (w *Watchdog) Reset() {
  w.mu.Lock()
  defer w.mu.Unlock()

  if w.stopped {
    return
  }

  if w.timer != nil {
    w.timer.Stop()
  }

  w.gen++
  gen := w.gen

  w.timer = time.AfterFunc(w.timeout, func() {
    w.mu.Lock()

    if w.stopped || gen != w.gen {
      w.mu.Unlock()
      return
    }

    w.stopped = true
    w.mu.Unlock()

    w.fire()
  })
}

// Stop disarms the watchdog for good.
func (w *Watchdog) Stop() {
  w.mu.Lock()
  defer w.mu.Unlock()

  w.stopped = true

  if w.timer != nil {
    w.timer.Stop()
  }
}
