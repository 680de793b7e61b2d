package ble

import (
  "fmt"

  "github.com/go-ble/ble/linux/hci/cmd"
  "golang.org/x/exp/maps"
  "golang.org/x/exp/slices"
)

// ConnParams names a preset of LE connection parameters. It is both a flag.Value and a
// TextUnmarshaler, so it can be set from the command line or the configuration file.
type ConnParams string

const (
  ConnParamsDefault ConnParams = "default"
  // ConnParamsPowerSaving suits links kept open in the connection pool.
  ConnParamsPowerSaving ConnParams = "power-saving"
)

var connParamsPresets = map[ConnParams]func(p *cmd.LECreateConnection){
  // scales answer quickly and sessions are short: keep the interval low.
  ConnParamsDefault: func(p *cmd.LECreateConnection) {},
  // https://developer.apple.com/accessories/Accessory-Design-Guidelines.pdf, section
  // "Connection Parameters":
  // - supervision timeout between 6 to 18 secs
  // - interval max * (latency + 1) <= 6 secs, and <= 1/2 supervision timeout
  ConnParamsPowerSaving: func(p *cmd.LECreateConnection) {
    p.ConnIntervalMin = 0x00f0    // 300ms
    p.ConnIntervalMax = 0x00f0    // 300ms
    p.ConnLatency = 0x0014        // 20
    p.SupervisionTimeout = 0x0708 // 18s
  },
}

func ConnParamsNames() []ConnParams {
  names := maps.Keys(connParamsPresets)
  slices.Sort(names)

  return names
}

// *flag.Value
func (c *ConnParams) String() string {
  return string(*c)
}

func (c *ConnParams) Set(v string) error {
  if v == "" {
    *c = ConnParamsDefault
    return nil
  }

  p := ConnParams(v)

  if _, ok := connParamsPresets[p]; !ok {
    return fmt.Errorf("unknown connection param %v (must be one of %v)", p, ConnParamsNames())
  }

  *c = p
  return nil
}

func (c *ConnParams) UnmarshalText(b []byte) error {
  return c.Set(string(b))
}

func (c ConnParams) AdapterOptions() cmd.LECreateConnection {
  p := cmd.LECreateConnection{
    LEScanInterval:        0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    LEScanWindow:          0x0004,    // 0x0004 - 0x4000; N * 0.625 msec
    InitiatorFilterPolicy: 0x00,      // White list is not used
    PeerAddressType:       0x00,      // Public Device Address
    PeerAddress:           [6]byte{}, //
    OwnAddressType:        0x00,      // Public Device Address
    ConnIntervalMin:       0x0006,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnIntervalMax:       0x0010,    // 0x0006 - 0x0C80; N * 1.25 msec
    ConnLatency:           0x0000,    // 0x0000 - 0x01F3; N * 1.25 msec
    SupervisionTimeout:    0x0190,    // 0x000A - 0x0C80; N * 10 msec
    MinimumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
    MaximumCELength:       0x0000,    // 0x0000 - 0xFFFF; N * 0.625 msec
  }

  preset, ok := connParamsPresets[c]
  if !ok {
    panic("unknown Bluetooth connection param: " + c)
  }

  preset(&p)

  return p
}
