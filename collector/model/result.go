package model

import (
  "fmt"
  "strings"
)

// Result is the outcome of one collection from one scale.
type Result struct {
  Driver string
  Measurements int
  // Attempts counts connections opened; advertising scales never need one.
  Attempts int
  Error error
}

func (r Result) Ok() bool {
  return r.Error == nil
}

func (r Result) String() string {
  var b strings.Builder

  if r.Ok() {
    b.WriteString("result:success(")
  } else {
    fmt.Fprintf(&b, "result:error(%v, ", r.Error)
  }

  fmt.Fprintf(&b, "driver=%s, measurements=%d, attempts=%d)", r.Driver, r.Measurements, r.Attempts)

  return b.String()
}
