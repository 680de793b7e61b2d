package ble

import (
  "fmt"
  "strings"

  "github.com/robertof/go-scale-bridge/device"
)

// Flags tune how the radio looks for and talks to scales.
type Flags int

const (
  // FlagScanResponses asks scales for their scan responses. Some scales only put their name
  // there, which the registry needs to pick a driver.
  FlagScanResponses Flags = 1 << iota
  // FlagConfiguredScalesOnly drops advertisements from anything but the scales passed to
  // SetAllowListedAddresses.
  FlagConfiguredScalesOnly
  // FlagKeepScaleLinks keeps connections to scales open between two collections.
  FlagKeepScaleLinks
)

var flagNames = []struct {
  flag Flags
  name string
}{
  {FlagScanResponses, "scan responses"},
  {FlagConfiguredScalesOnly, "configured scales only"},
  {FlagKeepScaleLinks, "keep scale links"},
}

// FlagsForScales picks the flags needed to reach scales. Scan responses are only requested
// when one of them needs them.
func FlagsForScales(scales []*device.Scale, keepLinks bool) Flags {
  f := FlagConfiguredScalesOnly

  for _, s := range scales {
    if s.Flags & device.FlagRequiresBleActiveScan != 0 {
      f |= FlagScanResponses
      break
    }
  }

  if keepLinks {
    f |= FlagKeepScaleLinks
  }

  return f
}

func (f Flags) String() string {
  var names []string

  for _, fn := range flagNames {
    if f & fn.flag == fn.flag {
      names = append(names, fn.name)
    }
  }

  if len(names) == 0 {
    return "none"
  }

  return strings.Join(names, ", ")
}

// HCI values of LE Set Scan Parameters.
type scanType uint8

const (
  scanTypePassive scanType = iota
  scanTypeActive
)

type filterPolicy uint8

const (
  filterPolicyAcceptAll filterPolicy = iota
  filterPolicyAllowListedOnly
)

func (s scanType) String() string {
  return lookupName([]string{"passive", "active (scan responses)"}, uint8(s), "scanType")
}

func (f filterPolicy) String() string {
  return lookupName([]string{"every device", "configured scales"}, uint8(f), "filterPolicy")
}

func lookupName(names []string, v uint8, kind string) string {
  if int(v) < len(names) {
    return names[v]
  }

  return fmt.Sprintf("%s(%d)", kind, v)
}
