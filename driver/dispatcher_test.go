package driver_test

import (
  "reflect"
  "sync"
  "testing"

  "github.com/rs/zerolog"

  "github.com/robertof/go-scale-bridge/driver"
)

func TestDispatcher_PreservesOrder(t *testing.T) {
  d := driver.NewDispatcher(zerolog.Nop())
  defer d.Close()

  var mu sync.Mutex
  var got []int

  for i := 0; i < 100; i++ {
    i := i
    d.Post(func() {
      mu.Lock()
      defer mu.Unlock()

      got = append(got, i)
    })
  }

  d.Flush()

  mu.Lock()
  defer mu.Unlock()

  for i, v := range got {
    if v != i {
      t.Fatalf("event %d delivered at position %d", v, i)
    }
  }

  if len(got) != 100 {
    t.Fatalf("delivered %d events, wanted 100", len(got))
  }
}

func TestDispatcher_RecoversPanics(t *testing.T) {
  d := driver.NewDispatcher(zerolog.Nop())
  defer d.Close()

  var got []string

  d.Post(func() { got = append(got, "a") })
  d.Post(func() {
    var b []byte
    _ = b[3]
  })
  d.Post(func() { got = append(got, "b") })
  d.Flush()

  if want := []string{"a", "b"}; !reflect.DeepEqual(got, want) {
    t.Fatalf("got %v, wanted %v", got, want)
  }
}

func TestDispatcher_FlushWaitsForChainedEvents(t *testing.T) {
  d := driver.NewDispatcher(zerolog.Nop())
  defer d.Close()

  depth := 0
  var chain func()
  chain = func() {
    depth++
    if depth < 10 {
      d.Post(chain)
    }
  }

  d.Post(chain)
  d.Flush()

  if depth != 10 {
    t.Fatalf("Flush() returned at depth %d", depth)
  }
}

func TestDispatcher_ClosedRejectsEvents(t *testing.T) {
  d := driver.NewDispatcher(zerolog.Nop())
  d.Close()
  d.Close()

  if d.Post(func() {}) {
    t.Fatalf("Post() on closed dispatcher succeeded")
  }

  <-d.Done()
}
