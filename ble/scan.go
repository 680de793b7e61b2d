package ble

import (
  "context"
  "errors"
  "fmt"
  "net"
  "strings"
  "sync"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
)

const advertisementQueueSize = 10

func WrapContextWithSigHandler(ctx context.Context, cancel func()) context.Context {
  return ble.WithSigHandler(ctx, cancel)
}

// ScanAll reports every advertisement, duplicates included, until ctx is done.
func (h *Handle) ScanAll(ctx context.Context, onAdvertisement func(Advertisement)) error {
  if err := h.dev.Scan(ctx, true, onAdvertisement); err != nil {
    return fmt.Errorf("failed to initiate scan: %w", err)
  }

  return nil
}

// scanRouter queues the advertisements of every wanted scale and hands them over one at a
// time, so a slow handler for one scale never holds up the others.
type scanRouter struct {
  ctx context.Context
  cancel context.CancelFunc
  handle func(Advertisement) bool

  queues map[string]chan Advertisement
  wg sync.WaitGroup
}

func newScanRouter(
  ctx context.Context,
  addresses []net.HardwareAddr,
  handle func(Advertisement) bool,
) *scanRouter {
  r := &scanRouter{
    handle: handle,
    queues: make(map[string]chan Advertisement, len(addresses)),
  }

  r.ctx, r.cancel = context.WithCancel(ctx)

  for _, addr := range addresses {
    r.queues[strings.ToLower(addr.String())] = make(chan Advertisement, advertisementQueueSize)
  }

  r.wg.Add(len(r.queues))

  for addr, queue := range r.queues {
    go r.drain(addr, queue)
  }

  // every scale done: stop scanning.
  go func() {
    r.wg.Wait()
    r.cancel()
  }()

  return r
}

func (r *scanRouter) drain(addr string, queue <-chan Advertisement) {
  defer r.wg.Done()

  for {
    select {
    case a := <-queue:
      if r.handle(a) {
        log.Trace().Str("Addr", addr).Msg("ble: scale done, no longer routing its advertisements")
        return
      }
    case <-r.ctx.Done():
      return
    }
  }
}

func (r *scanRouter) route(a Advertisement) {
  // go-ble may deliver advertisements after Scan returns.
  if r.ctx.Err() != nil {
    return
  }

  addr := strings.ToLower(a.Addr().String())

  queue, ok := r.queues[addr]
  if !ok {
    return
  }

  select {
  case queue <- a:
    log.Trace().
      Str("Addr", addr).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("ble: received advertisement, enqueueing")
  default:
    log.Trace().Str("Addr", addr).Msg("ble: advertisement queue full, dropping")
  }
}

// ScanAddresses scans until every address in addresses is done. Advertisements from each
// scale are handed to onAdvertisement one at a time; returning true marks that scale as done.
// Scales broadcasting their readings repeat identical advertisements, so duplicates are
// reported too.
func (h *Handle) ScanAddresses(
  ctx context.Context,
  addresses []net.HardwareAddr,
  onAdvertisement func(Advertisement) bool,
) error {
  if len(addresses) == 0 {
    return nil
  }

  r := newScanRouter(ctx, addresses, onAdvertisement)
  defer r.cancel()

  err := h.dev.Scan(r.ctx, true, r.route)

  // the router ends every scan whose scales are all done.
  if errors.Is(err, context.Canceled) && ctx.Err() == nil {
    return nil
  }

  return err
}
