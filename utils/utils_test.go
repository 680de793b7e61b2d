package utils_test

import (
  "errors"
  "fmt"
  "reflect"
  "testing"
  "time"

  "github.com/robertof/go-scale-bridge/utils"
)

var (
  errA = errors.New("a")
  errB = errors.New("b")
)

func TestErrorIsAnyOf(t *testing.T) {
  wrapped := fmt.Errorf("context: %w", errB)

  if !utils.ErrorIsAnyOf(wrapped, errA, errB) {
    t.Fatalf("ErrorIsAnyOf(%v): got false, wanted true", wrapped)
  }

  if utils.ErrorIsAnyOf(wrapped, errA) {
    t.Fatalf("ErrorIsAnyOf(%v, errA): got true, wanted false", wrapped)
  }

  if utils.ErrorIsAnyOf(nil, errA) {
    t.Fatalf("ErrorIsAnyOf(nil): got true, wanted false")
  }
}

func TestReverse(t *testing.T) {
  in := []byte{1, 2, 3, 4, 5, 6}
  got := utils.Reverse(in)
  want := []byte{6, 5, 4, 3, 2, 1}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("Reverse(%v): got %v, wanted %v", in, got, want)
  }

  if in[0] != 1 {
    t.Fatalf("Reverse modified its input: %v", in)
  }
}

func TestBackoff(t *testing.T) {
  tests := []struct {
    factor, limit time.Duration
    attempt int
    want time.Duration
  }{
    {500 * time.Millisecond, time.Minute, 0, 500 * time.Millisecond},
    {500 * time.Millisecond, time.Minute, 3, 4 * time.Second},
    {500 * time.Millisecond, 2 * time.Second, 3, 2 * time.Second},
    {500 * time.Millisecond, time.Minute, 64, time.Minute},
    {0, time.Minute, 2, 0},
  }

  for _, tt := range tests {
    if got := utils.Backoff(tt.factor, tt.limit, tt.attempt); got != tt.want {
      t.Fatalf("Backoff(%v, %v, %d): got %v, wanted %v", tt.factor, tt.limit, tt.attempt, got, tt.want)
    }
  }
}
