package collector

import (
  "context"
  "errors"
  "net"
  "strings"
  "sync"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/sync/errgroup"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/collector/model"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/store"
  "github.com/robertof/go-scale-bridge/utils"
)

const (
  DefaultMaxRetries = 2
  DefaultScanTimeout = 30 * time.Second
  DefaultConnectTimeout = 10 * time.Second
  DefaultIdleTimeout = 30 * time.Second
  DefaultBackoffFactor = 500 * time.Millisecond
  DefaultBackoffLimit = 10 * time.Second

  // an answered interaction may need a few more connections to be applied on the scale.
  maxReconnects = 3
)

var (
  ErrScaleNotFound = errors.New("scale not found")
  ErrNoDriver = errors.New("no driver for scale")
)

// Radio is the part of the Bluetooth stack a collection runs on.
type Radio interface {
  ScanAddresses(ctx context.Context, addresses []net.HardwareAddr, onAdvertisement func(ble.Advertisement) bool) error
  Open(ctx context.Context, addr net.HardwareAddr, done ble.Completions) (driver.Transport, error)
}

type bleRadio struct {
  *ble.Handle
}

func NewRadio(h *ble.Handle) Radio {
  return bleRadio{h}
}

func (r bleRadio) Open(ctx context.Context, addr net.HardwareAddr, done ble.Completions) (driver.Transport, error) {
  t, err := r.Handle.Open(ctx, addr, done)
  if err != nil {
    return nil, err
  }

  return t, nil
}

// Answers are the replies given on behalf of users when a scale asks for them, keyed by
// app user id.
type Answers struct {
  ScaleUserIndex map[int]int
  ConsentCode map[int]int
  // RegisterNewUsers picks "create new user on scale" when a user has no configured index.
  RegisterNewUsers bool
}

type CollectionOptions struct {
  Sink driver.Sink
  Store store.Store
  Observer driver.Observer
  Answers Answers

  // ScanTimeout bounds how long scales are waited for.
  ScanTimeout time.Duration
  ConnectTimeout time.Duration
  IdleTimeout time.Duration
  MaxRetries int
  BackoffFactor time.Duration
  BackoffLimit time.Duration
}

func (o *CollectionOptions) setDefaults() {
  if o.ScanTimeout <= 0 {
    o.ScanTimeout = DefaultScanTimeout
  }

  if o.ConnectTimeout <= 0 {
    o.ConnectTimeout = DefaultConnectTimeout
  }

  if o.IdleTimeout <= 0 {
    o.IdleTimeout = DefaultIdleTimeout
  }

  if o.Store == nil {
    o.Store = store.NewMemory(nil, 0)
  }
}

// Collect scans for the given scales and runs a driver session with every scale that shows
// up before the scan timeout expires. It returns once every session is over.
func Collect(
  parentCtx context.Context,
  radio Radio,
  scales []*device.Scale,
  opts CollectionOptions,
) (out map[*device.Scale]model.Result, err error) {
  opts.setDefaults()
  out = make(map[*device.Scale]model.Result, len(scales))

  if len(scales) == 0 {
    return out, nil
  }

  log.Debug().
    Array("Scales", utils.ToZeroLogArray(scales)).
    Dur("ScanTimeout", opts.ScanTimeout).
    Msg("collector: waiting for scales")

  scanCtx, cancelScan := context.WithTimeout(parentCtx, opts.ScanTimeout)
  defer cancelScan()

  var eg errgroup.Group
  var pending sync.WaitGroup

  addresses := make([]net.HardwareAddr, len(scales))
  workers := make(map[string]*worker, len(scales))

  for i, scale := range scales {
    addresses[i] = scale.Addr
    pending.Add(1)

    workers[strings.ToLower(scale.Addr.String())] = &worker{
      ctx: parentCtx,
      scale: scale,
      radio: radio,
      opts: opts,
      eg: &eg,
      finish: pending.Done,
    }
  }

  // stop scanning as soon as every scale is done.
  go func() {
    pending.Wait()
    cancelScan()
  }()

  err = radio.ScanAddresses(scanCtx, addresses, func(a ble.Advertisement) bool {
    w := workers[strings.ToLower(a.Addr().String())]

    if w == nil {
      log.Warn().
        Str("Addr", a.Addr().String()).
        Str("LocalName", a.LocalName()).
        Hex("ManufacturerData", a.ManufacturerData()).
        Msg("collector: received advertisement from unknown scale")

      return false
    }

    return w.advertisement(a)
  })

  if utils.ErrorIsAnyOf(err, context.DeadlineExceeded, context.Canceled) {
    err = parentCtx.Err()
  }

  for _, w := range workers {
    w.stopScan()
  }

  if waitErr := eg.Wait(); waitErr != nil && err == nil {
    err = waitErr
  }

  for _, w := range workers {
    out[w.scale] = w.result
  }

  return out, err
}

// CollectScale runs Collect for a single scale.
func CollectScale(ctx context.Context, radio Radio, scale *device.Scale, opts CollectionOptions) model.Result {
  out, err := Collect(ctx, radio, []*device.Scale{scale}, opts)

  res := out[scale]
  if res.Error == nil && err != nil {
    res.Error = err
  }

  return res
}
