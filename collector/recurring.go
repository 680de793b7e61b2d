package collector

import (
  "context"
  "errors"
  "sync"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"

  "github.com/robertof/go-scale-bridge/collector/model"
  "github.com/robertof/go-scale-bridge/device"
)

var collectionsCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
  Name: "scale_bridge_collections_total",
  Help: "Collections run per scale, by outcome.",
}, []string{"scale", "result"})

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(collectionsCounter)
}

func outcome(r model.Result) string {
  switch {
  case r.Ok() && r.Measurements > 0:
    return "measured"
  case r.Ok():
    return "empty"
  case errors.Is(r.Error, ErrScaleNotFound):
    return "not_found"
  default:
    return "failed"
  }
}

// Recurring keeps scanning for the configured scales. Scales only wake up when stepped on,
// so every collection waits up to the scan timeout and a new one starts right after.
type Recurring struct {
  radio Radio
  scales []*device.Scale

  mu sync.Mutex
  results map[*device.Scale]model.Result
  collectionTime time.Time

  started bool
}

func NewRecurring(radio Radio, scales []*device.Scale) *Recurring {
  return &Recurring{
    radio: radio,
    scales: scales,
    results: make(map[*device.Scale]model.Result),
  }
}

func (s *Recurring) update(r map[*device.Scale]model.Result) {
  s.mu.Lock()
  defer s.mu.Unlock()

  for scale, res := range r {
    s.results[scale] = res
  }

  s.collectionTime = time.Now()
}

// Latest returns the outcome of the last collection of every scale.
func (s *Recurring) Latest() (map[*device.Scale]model.Result, time.Time) {
  s.mu.Lock()
  defer s.mu.Unlock()

  return maps.Clone(s.results), s.collectionTime
}

// Start collects until ctx is done, pausing for interval between collections.
func (s *Recurring) Start(
  ctx context.Context,
  interval time.Duration,
  opts CollectionOptions,
) {
  if s.started {
    panic("attempted to call collector.Recurring.Start() twice")
  }

  s.started = true
  opts.setDefaults()

  log.Info().
    Dur("Interval", interval).
    Int("MaxRetries", opts.MaxRetries).
    Dur("ScanTimeout", opts.ScanTimeout).
    Dur("IdleTimeout", opts.IdleTimeout).
    Int("Scales", len(s.scales)).
    Msg("collector: starting recurring collection")

  for {
    results, err := Collect(ctx, s.radio, s.scales, opts)

    if ctx.Err() != nil {
      log.Info().Msg("collector: recurring collection is shutting down")
      return
    }

    if err != nil {
      log.Error().Err(err).Msg("collector: collection failed")
    }

    for scale, res := range results {
      collectionsCounter.WithLabelValues(scale.Name, outcome(res)).Inc()

      switch {
      case res.Error == nil:
        log.Debug().Stringer("Scale", scale).Stringer("Result", res).Msg("collector: collection finished")
      case errors.Is(res.Error, ErrScaleNotFound):
        log.Trace().Stringer("Scale", scale).Msg("collector: scale not active")
      default:
        log.Warn().Stringer("Scale", scale).Err(res.Error).Msg("collector: collection failed for scale")
      }
    }

    s.update(results)

    select {
    case <-ctx.Done():
      log.Info().Msg("collector: recurring collection is shutting down")
      return
    case <-time.After(interval):
    }
  }
}
