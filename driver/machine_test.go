package driver_test

import (
  "reflect"
  "testing"

  "github.com/rs/zerolog"

  "github.com/robertof/go-scale-bridge/driver"
)

func TestMachine_RunsStepsInOrder(t *testing.T) {
  var ran []int
  finished := 0
  k := 5

  m := driver.NewMachine(func(n int) bool {
    ran = append(ran, n)
    return n < k
  }, func() { finished++ }, zerolog.Nop())

  m.Next()

  want := []int{0, 1, 2, 3, 4, 5}
  if !reflect.DeepEqual(ran, want) {
    t.Fatalf("Next(): ran %v, wanted %v", ran, want)
  }

  if finished != 1 {
    t.Fatalf("Next(): finished called %d times, wanted 1", finished)
  }

  if m.Step() != k {
    t.Fatalf("Step(): got %d, wanted %d", m.Step(), k)
  }
}

func TestMachine_StopAndResume(t *testing.T) {
  var ran []int
  var m *driver.Machine

  m = driver.NewMachine(func(n int) bool {
    ran = append(ran, n)

    if n == 1 {
      m.Stop()
    }

    return n < 3
  }, nil, zerolog.Nop())

  m.Next()

  if want := []int{0, 1}; !reflect.DeepEqual(ran, want) {
    t.Fatalf("Next(): ran %v, wanted %v", ran, want)
  }

  // a stopped machine ignores Next
  m.Next()

  if len(ran) != 2 {
    t.Fatalf("Next() while stopped: ran %v", ran)
  }

  m.Resume()

  if want := []int{0, 1, 2, 3}; !reflect.DeepEqual(ran, want) {
    t.Fatalf("Resume(): ran %v, wanted %v", ran, want)
  }
}

func TestMachine_StaleGuards(t *testing.T) {
  var ran []int
  var m *driver.Machine

  m = driver.NewMachine(func(n int) bool {
    ran = append(ran, n)
    m.Stop()
    return n < 10
  }, nil, zerolog.Nop())

  m.Next() // runs 0, stops with 1 as the next step

  if m.ResumeFrom(5) {
    t.Fatalf("ResumeFrom(5): resumed on a stale step")
  }

  if m.JumpFrom(5, 8) {
    t.Fatalf("JumpFrom(5, 8): jumped on a stale step")
  }

  if m.Step() != 1 {
    t.Fatalf("Step(): got %d, wanted 1", m.Step())
  }

  if !m.JumpFrom(0, 7) {
    t.Fatalf("JumpFrom(0, 7): did not jump")
  }

  if !m.ResumeFrom(6) {
    t.Fatalf("ResumeFrom(6): did not resume")
  }

  if want := []int{0, 7}; !reflect.DeepEqual(ran, want) {
    t.Fatalf("ran %v, wanted %v", ran, want)
  }
}

func TestMachine_JumpBackRepeatsStep(t *testing.T) {
  var ran []int
  var m *driver.Machine

  m = driver.NewMachine(func(n int) bool {
    ran = append(ran, n)
    m.Stop()
    return true
  }, nil, zerolog.Nop())

  m.Next()
  m.JumpBack()
  m.Resume()
  m.Resume()

  if want := []int{0, 0, 1}; !reflect.DeepEqual(ran, want) {
    t.Fatalf("ran %v, wanted %v", ran, want)
  }
}

func TestMachine_ResumeInsideStepDoesNotNest(t *testing.T) {
  var ran []int
  var m *driver.Machine

  m = driver.NewMachine(func(n int) bool {
    ran = append(ran, n)

    if n == 0 {
      m.Stop()
      m.Resume()
    }

    return n < 2
  }, nil, zerolog.Nop())

  m.Next()

  if want := []int{0, 1, 2}; !reflect.DeepEqual(ran, want) {
    t.Fatalf("ran %v, wanted %v", ran, want)
  }
}

func TestMachine_ResetLeavesMachineStopped(t *testing.T) {
  ran := 0

  m := driver.NewMachine(func(n int) bool {
    ran++
    return false
  }, nil, zerolog.Nop())

  m.Reset()
  m.Next()

  if ran != 0 || !m.Stopped() {
    t.Fatalf("Next() after Reset(): ran %d steps", ran)
  }

  m.Resume()

  if ran != 1 {
    t.Fatalf("Resume() after Reset(): ran %d steps, wanted 1", ran)
  }
}
