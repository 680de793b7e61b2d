package driver

import (
  "runtime/debug"
  "sync"

  "github.com/rs/zerolog"
)

// Dispatcher runs posted events one at a time, in the order they were posted, on its own
// goroutine. A panicking event is logged and skipped.
type Dispatcher struct {
  mu sync.Mutex
  queue []func()
  closed bool

  wake chan struct{}
  exited chan struct{}
  log zerolog.Logger
}

func NewDispatcher(logger zerolog.Logger) *Dispatcher {
  d := &Dispatcher{
    wake: make(chan struct{}, 1),
    exited: make(chan struct{}),
    log: logger,
  }

  go d.loop()

  return d
}

// Post enqueues fn. It returns false once the dispatcher is closed.
func (d *Dispatcher) Post(fn func()) bool {
  d.mu.Lock()

  if d.closed {
    d.mu.Unlock()
    return false
  }

  d.queue = append(d.queue, fn)
  d.mu.Unlock()

  select {
  case d.wake <- struct{}{}:
  default:
  }

  return true
}

// Flush blocks until the queue is drained, including events posted by the events it ran.
// Must not be called from an event.
func (d *Dispatcher) Flush() {
  for {
    idle := make(chan bool, 1)

    posted := d.Post(func() {
      d.mu.Lock()
      idle <- len(d.queue) == 0
      d.mu.Unlock()
    })

    if !posted {
      return
    }

    select {
    case empty := <-idle:
      if empty {
        return
      }
    case <-d.exited:
      return
    }
  }
}

// Close drops pending events and stops the loop after the running event returns.
func (d *Dispatcher) Close() {
  d.mu.Lock()
  defer d.mu.Unlock()

  if d.closed {
    return
  }

  d.closed = true
  d.queue = nil

  select {
  case d.wake <- struct{}{}:
  default:
  }
}

func (d *Dispatcher) Done() <-chan struct{} {
  return d.exited
}

func (d *Dispatcher) loop() {
  defer close(d.exited)

  for range d.wake {
    for {
      d.mu.Lock()

      if d.closed {
        d.mu.Unlock()
        return
      }

      if len(d.queue) == 0 {
        d.mu.Unlock()
        break
      }

      fn := d.queue[0]
      d.queue[0] = nil
      d.queue = d.queue[1:]
      d.mu.Unlock()

      d.run(fn)
    }
  }
}

func (d *Dispatcher) run(fn func()) {
  defer func() {
    if r := recover(); r != nil {
      panicsCounter.Inc()

      d.log.Error().
        Interface("Panic", r).
        Bytes("Stack", debug.Stack()).
        Msg("driver: event handler panicked, session left as is")
    }
  }()

  fn()
}
