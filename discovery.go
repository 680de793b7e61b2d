package main

import (
  "context"
  "time"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/maps"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/config"
  "github.com/robertof/go-scale-bridge/registry"
  "github.com/robertof/go-scale-bridge/utils"
)

func doScaleDiscovery(cfg *config.Config) {
  log.Info().Msg("Starting in scale discovery mode - collecting devices for 5 seconds...")

  handle, err := ble.Init(ble.Options{
    DeviceID: cfg.Bluetooth.DeviceID,
    ConnParams: cfg.Bluetooth.ConnParams,
    Flags: ble.FlagScanResponses,
  })

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  defer handle.Stop()

  ctx := ble.WrapContextWithSigHandler(
    context.WithTimeout(
      context.Background(),
      5 * time.Second,
    ),
  )

  type deviceInfo struct {
    name string
    connectable bool
    services map[string]bool
    driver string
  }

  devices := make(map[string]*deviceInfo)

  err = handle.ScanAll(ctx, func(a ble.Advertisement) {
    addr := a.Addr().String()
    info, ok := devices[addr]

    if !ok {
      info = &deviceInfo{services: make(map[string]bool)}
      devices[addr] = info
    }

    // merge
    if info.name == "" {
      info.name = a.LocalName()
    }

    info.connectable = a.Connectable()

    for _, uuid := range a.Services() {
      info.services[uuid.String()] = true
    }

    if info.driver == "" {
      if f, ok := registry.LookupAdvertisement(a); ok {
        info.driver = f.ID
      }
    }

    log.Debug().
      Str("Addr", addr).
      Str("Name", a.LocalName()).
      Bool("Connectable", a.Connectable()).
      Strs("Services", maps.Keys(info.services)).
      Hex("ManufacturerData", a.ManufacturerData()).
      Msg("Received device advertisement")
  })

  if err != nil && !utils.ErrorIsAnyOf(err, context.Canceled, context.DeadlineExceeded) {
    log.Fatal().Err(err).Msg("Failed to initiate scan")
  }

  log.Info().Int("Found", len(devices)).Msg("Finished scale discovery")

  for addr, data := range devices {
    if data.driver == "" {
      log.Debug().
        Str("Addr", addr).
        Str("Name", data.name).
        Msg("Found device without a matching driver")
      continue
    }

    log.Info().
      Str("Addr", addr).
      Str("Name", data.name).
      Bool("Connectable", data.connectable).
      Strs("Services", maps.Keys(data.services)).
      Str("Driver", data.driver).
      Msg("Found scale")
  }
}
