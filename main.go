package main

import (
  "context"
  "errors"
  "net"
  "net/http"
  "os"
  "time"

  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/promhttp"
  "github.com/rs/zerolog"
  "github.com/rs/zerolog/log"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/collector"
  "github.com/robertof/go-scale-bridge/config"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/metrics"
  "github.com/robertof/go-scale-bridge/sink"
  "github.com/robertof/go-scale-bridge/store"
  "github.com/robertof/go-scale-bridge/utils"
)

func main() {
  zerolog.DurationFieldUnit = time.Second
  zerolog.TimeFieldFormat = time.RFC3339Nano

  log.Logger = log.Output(zerolog.ConsoleWriter{
    Out: os.Stderr,
    TimeFormat: "15:04:05.000",
  })

  opts := ParseArgs()
  cfg := opts.Config

  level, err := zerolog.ParseLevel(cfg.LogLevel)
  if err != nil {
    level = zerolog.InfoLevel
  }

  zerolog.SetGlobalLevel(level)

  if opts.DiscoverScales {
    doScaleDiscovery(cfg)
    return
  }

  log.Info().
    Str("BindAddr", cfg.Bind).
    Array("Scales", utils.ToZeroLogArray(opts.Scales)).
    Int("Users", len(cfg.Users)).
    Int("BluetoothDeviceID", cfg.Bluetooth.DeviceID).
    Msg("Starting with the specified configuration")

  st := openStore(cfg)
  bleHandle := initBle(cfg, opts.Scales)
  defer bleHandle.Stop()

  registry := prometheus.NewRegistry()
  driver.RegisterMetrics(registry)
  ble.RegisterMetrics(registry)
  sink.RegisterMetrics(registry)
  collector.RegisterMetrics(registry)

  latest := sink.NewLatest()
  sinks := sink.Fanout{sink.Log{}, latest}

  if cfg.AMQP.Enabled() {
    publisher := sink.NewAMQP(sink.AMQPOptions{
      URL: cfg.AMQP.URL,
      Exchange: cfg.AMQP.Exchange,
      RoutingKey: cfg.AMQP.RoutingKey,
    })
    defer publisher.Close()

    sinks = append(sinks, publisher)
  }

  metrics.RegisterCollector(latest.Snapshot, registry)

  ctx := ble.WrapContextWithSigHandler(context.WithCancel(context.Background()))

  coll := collector.NewRecurring(collector.NewRadio(bleHandle), opts.Scales)
  stopped := make(chan struct{})

  go func() {
    defer close(stopped)

    coll.Start(ctx, cfg.Collection.Interval, collector.CollectionOptions{
      Sink: sinks,
      Store: st,
      Observer: logEvent,
      Answers: answers(cfg),
      ScanTimeout: cfg.Collection.ScanTimeout,
      ConnectTimeout: cfg.Collection.ConnectTimeout,
      IdleTimeout: cfg.Collection.IdleTimeout,
      MaxRetries: cfg.Collection.MaxRetries,
      BackoffFactor: cfg.Collection.Backoff,
      BackoffLimit: cfg.Collection.BackoffLimit,
    })
  }()

  log.Info().
    Str("ListenAddress", cfg.Bind).
    Msg("Starting Prometheus server")

  mux := http.NewServeMux()
  mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))

  server := &http.Server{Addr: cfg.Bind, Handler: mux}

  go func() {
    <-ctx.Done()

    shutdownCtx, cancel := context.WithTimeout(context.Background(), 5 * time.Second)
    defer cancel()

    if err := server.Shutdown(shutdownCtx); err != nil {
      log.Warn().Err(err).Msg("Failed to shut down the Prometheus server")
    }
  }()

  if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
    log.Fatal().Err(err).Msg("Unable to bind on requested address")
  }

  <-stopped
}

func initBle(cfg *config.Config, scales []*device.Scale) *ble.Handle {
  scaleAddresses := make([]net.HardwareAddr, len(scales))

  for i, s := range scales {
    scaleAddresses[i] = s.Addr
  }

  bleHandle, err := ble.Init(bleOptions(cfg, scales))

  if err != nil {
    log.Fatal().Err(err).Msg("Failed to initialize Bluetooth device")
  }

  err = bleHandle.SetAllowListedAddresses(scaleAddresses)

  if err != nil {
    log.Error().Err(err).Msg("Failed to set scale allow list")
  }

  return bleHandle
}

// openStore loads the users and the values scales handed out in previous sessions. Values
// set in the configuration are only written when the scale has not handed out its own yet.
func openStore(cfg *config.Config) store.Store {
  users := make([]device.User, len(cfg.Users))

  for i, u := range cfg.Users {
    user, err := u.User()
    if err != nil {
      // already checked by Validate.
      panic(err)
    }

    users[i] = user
  }

  file, err := store.OpenFile(cfg.StateFile, users, cfg.SelectedUser)
  if err != nil {
    log.Fatal().Err(err).Str("StateFile", cfg.StateFile).Msg("Failed to open state file")
  }

  var st store.Store = file

  if cfg.Keyring.Enabled {
    ring, err := store.OpenKeyring(cfg.Keyring.Service, cfg.Keyring.FileDir, os.Getenv(cfg.Keyring.PasswordEnv))
    if err != nil {
      log.Fatal().Err(err).Msg("Failed to open keyring")
    }

    st = store.WithKeyring(file, ring)
  }

  for _, u := range cfg.Users {
    if u.ScaleIndex != nil && store.ScaleIndex(st, u.ID) == -1 {
      store.SetScaleIndex(st, u.ID, *u.ScaleIndex)
    }

    if u.ConsentCode != nil && store.ConsentCode(st, u.ID) == -1 {
      store.SetConsentCode(st, u.ID, *u.ConsentCode)
    }
  }

  return st
}

func answers(cfg *config.Config) collector.Answers {
  a := collector.Answers{
    ScaleUserIndex: make(map[int]int),
    ConsentCode: make(map[int]int),
    RegisterNewUsers: cfg.Collection.RegisterNewUsers,
  }

  for _, u := range cfg.Users {
    if u.ScaleIndex != nil {
      a.ScaleUserIndex[u.ID] = *u.ScaleIndex
    }

    if u.ConsentCode != nil {
      a.ConsentCode[u.ID] = *u.ConsentCode
    }
  }

  return a
}

func logEvent(e driver.Event) {
  switch e.Status {
  case driver.StatusScaleMessage:
    log.Info().Stringer("Message", e.Message).Interface("Value", e.Value).Msg("Scale message")
  case driver.StatusUserInteractionRequired:
    log.Info().
      Stringer("Interaction", e.Interaction.Kind).
      Int("UserID", e.Interaction.UserID).
      Msg("Scale asks for user input")
  case driver.StatusConnectionLost, driver.StatusUnexpectedError:
    log.Warn().Stringer("Event", e).Msg("Scale session event")
  default:
    log.Trace().Stringer("Event", e).Msg("Scale session event")
  }
}
