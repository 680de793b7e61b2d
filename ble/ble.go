// Package ble wraps the HCI device used to scan for and connect to scales.
package ble

import (
  "fmt"
  "net"

  "github.com/go-ble/ble"
  "github.com/go-ble/ble/linux"
  "github.com/go-ble/ble/linux/hci/cmd"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/rs/zerolog/log"

  "github.com/robertof/go-scale-bridge/utils"
)

type Advertisement = ble.Advertisement
type Characteristic = ble.Characteristic
type Client = ble.Client

type Handle struct {
  dev *linux.Device
  connPool *connectionPool
}

type Options struct {
  DeviceID int
  ConnParams ConnParams
  Flags Flags
}

func (o Options) has(f Flags) bool {
  return o.Flags & f == f
}

// scanParams continuously scans: scales only advertise for a few seconds after being
// stepped on.
func (o Options) scanParams() cmd.LESetScanParameters {
  p := cmd.LESetScanParameters{
    LEScanType: uint8(scanTypePassive),
    LEScanInterval: 0x0010, // 10ms
    LEScanWindow: 0x0010, // 10ms
    OwnAddressType: 0x00, // public
    ScanningFilterPolicy: uint8(filterPolicyAcceptAll),
  }

  if o.has(FlagScanResponses) {
    p.LEScanType = uint8(scanTypeActive)
  }

  if o.has(FlagConfiguredScalesOnly) {
    p.ScanningFilterPolicy = uint8(filterPolicyAllowListedOnly)
  }

  return p
}

func RegisterMetrics(reg prometheus.Registerer) {
  reg.MustRegister(
    successfulConnectionsCounter,
    failedConnectionsCounter,
    connectionsFromPoolCounter,
    disconnectsCounter,
  )
}

func Init(opts Options) (*Handle, error) {
  if opts.ConnParams == "" {
    opts.ConnParams = ConnParamsDefault
  }

  scan := opts.scanParams()

  log.Debug().
    Stringer("ScanType", scanType(scan.LEScanType)).
    Stringer("FilterPolicy", filterPolicy(scan.ScanningFilterPolicy)).
    Stringer("ConnParams", &opts.ConnParams).
    Stringer("Flags", opts.Flags).
    Int("DeviceID", opts.DeviceID).
    Msg("ble: initializing Bluetooth device")

  dev, err := linux.NewDevice(
    ble.OptDeviceID(opts.DeviceID),
    ble.OptScanParams(scan),
    ble.OptConnParams(opts.ConnParams.AdapterOptions()),
  )

  if err != nil {
    return nil, fmt.Errorf("failed to init bluetooth device: %w", err)
  }

  ble.SetDefaultDevice(dev)

  h := &Handle{dev: dev}

  if opts.has(FlagKeepScaleLinks) {
    h.connPool = initConnectionPool()
  }

  return h, nil
}

// send runs an HCI command and fails on a non-zero status in its response.
func send(what string, run func() (uint8, error)) error {
  status, err := run()

  if err != nil {
    return fmt.Errorf("failed to %s: %w", what, err)
  }

  if status != 0 {
    return fmt.Errorf("failed to %s: got status: %#x", what, status)
  }

  return nil
}

// SetAllowListedAddresses limits scans to the given scales. Scales reached by name only
// must not be used together with the allow list.
func (h *Handle) SetAllowListedAddresses(a []net.HardwareAddr) error {
  log.Debug().
    Array("ScaleAddresses", utils.ToZeroLogArray(a)).
    Msg("ble: allow-listing the configured scales")

  err := send("clear allow-list", func() (uint8, error) {
    var res cmd.LEClearWhiteListRP
    err := h.dev.HCI.Send(&cmd.LEClearWhiteList{}, &res)
    return res.Status, err
  })

  if err != nil {
    return err
  }

  for _, addr := range a {
    if len(addr) != 6 {
      return fmt.Errorf("cannot allow-list %q: not a 6 byte address", addr.String())
    }

    // HCI wants the address little-endian.
    add := &cmd.LEAddDeviceToWhiteList{
      AddressType: 0x00,
      Address: [6]byte(utils.Reverse([]byte(addr))),
    }

    err := send("allow-list scale "+addr.String(), func() (uint8, error) {
      var res cmd.LEAddDeviceToWhiteListRP
      err := h.dev.HCI.Send(add, &res)
      return res.Status, err
    })

    if err != nil {
      return err
    }
  }

  return nil
}

func (h *Handle) Stop() {
  h.DisconnectAll()
  h.dev.Stop()
}
