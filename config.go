package main

import (
  "errors"
  "flag"
  "fmt"
  "io/fs"
  "os"
  "time"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/config"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/registry"
)

type options struct {
  ConfigPath string
  DiscoverScales bool
  Config *config.Config
  Scales []*device.Scale
}

// boundScaleList appends the scales given on the command line, pinned to a driver unless
// driverID is empty.
type boundScaleList struct {
  driverID string
  list *[]*device.Scale
}

func (d *boundScaleList) String() string {
  return ""
}

func (d *boundScaleList) Set(v string) error {
  spec := device.NewScaleSpec(v)

  if d.driverID != "" {
    spec[device.ScaleSpecFieldDriver] = d.driverID
  } else if id := spec.Driver(); id != "" {
    if _, ok := registry.ByID(id); !ok {
      return fmt.Errorf("unknown driver %q", id)
    }
  }

  scale, err := device.ScaleFromSpec(spec)
  if err != nil {
    return fmt.Errorf("failed to create scale: %w", err)
  }

  *d.list = append(*d.list, scale)

  return nil
}

func factoryHelp(f driver.Factory) string {
  help := "Scale spec for a " + f.Help + ", in the form of `addr=..,name=..`."

  if f.AdvertisementOnly {
    help += "\nThe scale is only scanned for, never connected to."
  }

  return help
}

func ParseArgs() options {
  var opts options
  var flagScales []*device.Scale

  def := config.Default()

  var (
    bind string
    deviceID int
    connParams = def.Bluetooth.ConnParams
    persist bool
    maxRetries int
    scanTimeout, idleTimeout, interval, backoff time.Duration
    debug, trace bool
  )

  flag.StringVar(&opts.ConfigPath, "config", config.DefaultConfigPath(), "Path to the YAML configuration file")
  flag.StringVar(&bind, "bind", def.Bind, "Where the metrics server will bind to")
  flag.IntVar(&deviceID, "bluetooth-device", def.Bluetooth.DeviceID, "Bluetooth (HCI) device ID")
  flag.Var(&connParams, "bluetooth-connection-params", "Bluetooth connection parameters (one of 'default' or 'power-saving')")
  flag.BoolVar(&persist, "persist-connections", def.Bluetooth.PersistConnections, "Keep Bluetooth connections open between sessions")
  flag.BoolVar(&opts.DiscoverScales, "discover", false, "Discover available BLE devices and quit")
  flag.IntVar(&maxRetries, "max-retries", def.Collection.MaxRetries, "Max number of connection retries")
  flag.DurationVar(&scanTimeout, "timeout", def.Collection.ScanTimeout, "How long every scan waits for scales")
  flag.DurationVar(&idleTimeout, "idle-timeout", def.Collection.IdleTimeout,
    "Disconnect from a scale after this long without notifications")
  flag.DurationVar(&interval, "interval", def.Collection.Interval, "Pause between two scans")
  flag.DurationVar(&backoff, "backoff", def.Collection.Backoff, "Exponential backoff factor for retries")
  flag.BoolVar(&debug, "debug", false, "Enable debug logs")
  flag.BoolVar(&trace, "trace", false, "Enable trace logs")

  flag.Var(
    &boundScaleList{list: &flagScales},
    "scale",
    "Scale spec in the form of `addr=..,name=..,driver=..`. The driver is picked from the advertised name when omitted.",
  )

  for _, f := range registry.Factories() {
    flag.Var(&boundScaleList{driverID: f.ID, list: &flagScales}, f.ID, factoryHelp(f))
  }

  flag.Parse()

  cfg := def
  explicitConfig := false

  flag.Visit(func(f *flag.Flag) {
    if f.Name == "config" {
      explicitConfig = true
    }
  })

  loaded, err := config.Load(opts.ConfigPath)

  switch {
  case err == nil:
    cfg = loaded
  case explicitConfig || !errors.Is(err, fs.ErrNotExist):
    fmt.Fprintln(os.Stderr, "Error:", err)
    os.Exit(1)
  }

  // flags given explicitly win over the configuration file.
  flag.Visit(func(f *flag.Flag) {
    switch f.Name {
    case "bind":
      cfg.Bind = bind
    case "bluetooth-device":
      cfg.Bluetooth.DeviceID = deviceID
    case "bluetooth-connection-params":
      cfg.Bluetooth.ConnParams = connParams
    case "persist-connections":
      cfg.Bluetooth.PersistConnections = persist
    case "max-retries":
      cfg.Collection.MaxRetries = maxRetries
    case "timeout":
      cfg.Collection.ScanTimeout = scanTimeout
    case "idle-timeout":
      cfg.Collection.IdleTimeout = idleTimeout
    case "interval":
      cfg.Collection.Interval = interval
    case "backoff":
      cfg.Collection.Backoff = backoff
    }
  })

  if trace || os.Getenv("TRACE") != "" {
    cfg.LogLevel = "trace"
  } else if debug || os.Getenv("DEBUG") != "" {
    cfg.LogLevel = "debug"
  }

  if err := cfg.Validate(); err != nil {
    fmt.Fprintln(os.Stderr, "Error: invalid configuration:", err)
    os.Exit(1)
  }

  for _, s := range cfg.Scales {
    scale, err := s.Scale()
    if err != nil {
      // already checked by Validate.
      panic(err)
    }

    opts.Scales = append(opts.Scales, scale)
  }

  opts.Scales = append(opts.Scales, flagScales...)
  opts.Config = cfg

  if !opts.DiscoverScales && len(opts.Scales) == 0 {
    fmt.Fprintln(os.Stderr, "Error: at least one scale is required!")
    flag.Usage()
    os.Exit(1)
  }

  return opts
}

func bleOptions(cfg *config.Config, scales []*device.Scale) ble.Options {
  return ble.Options{
    DeviceID: cfg.Bluetooth.DeviceID,
    ConnParams: cfg.Bluetooth.ConnParams,
    Flags: ble.FlagsForScales(scales, cfg.Bluetooth.PersistConnections),
  }
}
