package driver

import (
  "sync"

  "github.com/rs/zerolog"
)

// StepFunc runs step n and reports whether the sequence continues.
type StepFunc func(n int) bool

// Machine sequences the numbered steps of a driver. After a step returns true the next one
// runs right away unless the step stopped the machine, in which case the sequence waits for
// Resume. A step returning false ends the sequence and calls OnFinished.
//
// Steps run with the lock released so they may call back into the machine. Advancing from
// inside a step never nests: the running loop picks the new state up once the step returns.
type Machine struct {
  mu sync.Mutex

  step int
  stopped bool
  running bool

  onStep StepFunc
  onFinished func()
  log zerolog.Logger
}

func NewMachine(onStep StepFunc, onFinished func(), logger zerolog.Logger) *Machine {
  if onFinished == nil {
    onFinished = func() {}
  }

  return &Machine{
    onStep: onStep,
    onFinished: onFinished,
    log: logger,
  }
}

// Next runs steps from the current one until a step stops the machine or ends the sequence.
func (m *Machine) Next() {
  m.mu.Lock()

  if m.running {
    m.mu.Unlock()
    return
  }

  m.running = true

  for !m.stopped {
    step := m.step
    m.mu.Unlock()

    m.log.Trace().Int("Step", step).Msg("driver: running step")
    cont := m.onStep(step)

    m.mu.Lock()

    if !cont {
      m.running = false
      m.mu.Unlock()

      m.log.Debug().Int("Step", step).Msg("driver: step sequence finished")
      m.onFinished()

      return
    }

    m.step++
  }

  m.running = false
  m.mu.Unlock()
}

func (m *Machine) Stop() {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.log.Trace().Int("Step", m.step).Msg("driver: machine stopped")
  m.stopped = true
}

// Resume clears the stop flag and runs the next step.
func (m *Machine) Resume() {
  m.mu.Lock()
  m.stopped = false
  m.mu.Unlock()

  m.Next()
}

// ResumeFrom resumes only if cur is the step that ran last, so completions belonging to an
// older step are ignored.
func (m *Machine) ResumeFrom(cur int) bool {
  m.mu.Lock()

  if cur != m.step-1 {
    m.log.Debug().Int("From", cur).Int("Step", m.step).Msg("driver: ignoring stale resume")
    m.mu.Unlock()
    return false
  }

  m.stopped = false
  m.mu.Unlock()

  m.Next()

  return true
}

// JumpTo makes n the next step to run.
func (m *Machine) JumpTo(n int) {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.log.Trace().Int("Step", n).Msg("driver: jumping to step")
  m.step = n
}

// JumpFrom makes n the next step only if cur is the step that ran last.
func (m *Machine) JumpFrom(cur, n int) bool {
  m.mu.Lock()
  defer m.mu.Unlock()

  if cur != m.step-1 {
    m.log.Debug().Int("From", cur).Int("Step", m.step).Msg("driver: ignoring stale jump")
    return false
  }

  m.step = n

  return true
}

// JumpBack makes the last step run again on the next resume.
func (m *Machine) JumpBack() {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.step--
}

func (m *Machine) Step() int {
  m.mu.Lock()
  defer m.mu.Unlock()

  return m.step
}

func (m *Machine) Stopped() bool {
  m.mu.Lock()
  defer m.mu.Unlock()

  return m.stopped
}

// Reset rewinds to step 0. The machine is left stopped until the first Resume.
func (m *Machine) Reset() {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.step = 0
  m.stopped = true
}

func (m *Machine) unstop() {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.stopped = false
}
