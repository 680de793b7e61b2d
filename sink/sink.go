// Package sink delivers finished measurements to their consumers.
package sink

import (
  "sync"

  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
)

// Fanout submits every measurement to all of its sinks, in order.
type Fanout []driver.Sink

func (f Fanout) Submit(scale string, m device.Measurement) {
  for _, s := range f {
    s.Submit(scale, m)
  }
}

// Log writes measurements to a zerolog logger.
type Log struct {
  Logger *zerolog.Logger
}

func (l Log) Submit(scale string, m device.Measurement) {
  logger := &log.Logger
  if l.Logger != nil {
    logger = l.Logger
  }

  logger.Info().
    Str("Scale", scale).
    Int("UserID", m.UserID).
    Time("Timestamp", m.Timestamp).
    Float32("Weight", m.Weight).
    Float32("Fat", m.Fat).
    Float32("Water", m.Water).
    Float32("Muscle", m.Muscle).
    Float32("Bone", m.Bone).
    Float32("BMI", m.BMI).
    Msg("sink: new measurement")
}

// Key identifies the latest measurement of one user on one scale.
type Key struct {
  Scale string
  UserID int
}

// Latest keeps the newest measurement per scale and user.
type Latest struct {
  mu sync.Mutex
  values map[Key]device.Measurement
}

func NewLatest() *Latest {
  return &Latest{values: make(map[Key]device.Measurement)}
}

// Submit replaces the stored measurement unless it is newer than m.
func (l *Latest) Submit(scale string, m device.Measurement) {
  l.mu.Lock()
  defer l.mu.Unlock()

  k := Key{Scale: scale, UserID: m.UserID}

  if prev, ok := l.values[k]; ok && prev.Timestamp.After(m.Timestamp) {
    log.Debug().
      Str("Scale", scale).
      Stringer("Measurement", m).
      Msg("sink: ignoring measurement older than the latest one")
    return
  }

  l.values[k] = m
}

// Snapshot returns a copy of the stored measurements.
func (l *Latest) Snapshot() map[Key]device.Measurement {
  l.mu.Lock()
  defer l.mu.Unlock()

  return maps.Clone(l.values)
}
