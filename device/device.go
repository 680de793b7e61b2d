package device

import (
  "errors"
  "fmt"
  "net"
  "strings"
)

var (
  ErrInvalidData = errors.New("invalid data")
  ErrCorruptedData = errors.New("corrupted data")
  ErrUnsupported = errors.New("unsupported")
)

type Flags uint8

const (
  // The scale only broadcasts advertisements and must be scanned for.
  FlagAdvertisementOnly Flags = 1 << iota
  // Advertisements carrying the measurement are only sent in scan responses.
  FlagRequiresBleActiveScan
)

// Scale is a configured body scale: where to find it and, optionally, which driver to use.
// An empty Driver means the driver is picked by the advertised name.
type Scale struct {
  Name string
  Addr net.HardwareAddr
  Driver string
  Flags Flags
}

func ScaleFromSpec(spec ScaleSpec) (*Scale, error) {
  s := &Scale{
    Driver: spec.Driver(),
  }

  addr := spec.Addr()

  hwAddr, err := net.ParseMAC(addr)
  if err != nil {
    return nil, fmt.Errorf("invalid addr: %w", err)
  }

  s.Addr = hwAddr

  if name := spec.Name(); name != "" {
    s.Name = name
  } else {
    s.Name = "scale-" + strings.ToLower(strings.ReplaceAll(addr, ":", ""))
  }

  if active := spec["active-scan"]; active == "yes" || active == "true" {
    s.Flags |= FlagRequiresBleActiveScan
  }

  return s, nil
}

func (s *Scale) String() string {
  return fmt.Sprintf("scale[name=%q, addr=%v, driver=%q]", s.Name, s.Addr.String(), s.Driver)
}
