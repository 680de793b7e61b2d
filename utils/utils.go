// Package utils holds small helpers shared by the bridge packages.
package utils

import (
  "errors"
  "fmt"
  "time"

  "github.com/rs/zerolog"
)

func ErrorIsAnyOf(err error, targets ...error) bool {
  for _, target := range targets {
    if errors.Is(err, target) {
      return true
    }
  }

  return false
}

func ToZeroLogArray[T fmt.Stringer](arr []T) (ret *zerolog.Array) {
  ret = zerolog.Arr()

  for _, elem := range arr {
    ret = ret.Str(elem.String())
  }

  return ret
}

// Reverse returns a reversed copy of s.
func Reverse[S ~[]E, E any](s S) S {
  out := make(S, len(s))
  copy(out, s)

  for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
    out[i], out[j] = out[j], out[i]
  }

  return out
}

// Backoff is factor doubled once per previous attempt, capped at limit.
func Backoff(factor, limit time.Duration, attempt int) time.Duration {
  if factor <= 0 {
    return 0
  }

  if attempt > 30 {
    return limit
  }

  d := factor << attempt

  if d <= 0 || (limit > 0 && d > limit) {
    return limit
  }

  return d
}
