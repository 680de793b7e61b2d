// Package registry picks the driver for a scale from what it advertises.
package registry

import (
  "strings"

  "github.com/go-ble/ble"
  "github.com/rs/zerolog/log"
  "golang.org/x/exp/slices"

  "github.com/robertof/go-scale-bridge/device/beurer"
  "github.com/robertof/go-scale-bridge/device/cult"
  "github.com/robertof/go-scale-bridge/device/okok"
  "github.com/robertof/go-scale-bridge/device/sanitas"
  "github.com/robertof/go-scale-bridge/device/sinocare"
  "github.com/robertof/go-scale-bridge/device/standard"
  "github.com/robertof/go-scale-bridge/driver"
)

type rule struct {
  factory driver.Factory
  prefixes []string
  names []string
  contains []string
}

func (r rule) matches(name string) bool {
  for _, p := range r.prefixes {
    if strings.HasPrefix(name, p) {
      return true
    }
  }

  for _, c := range r.contains {
    if strings.Contains(name, c) {
      return true
    }
  }

  return slices.Contains(r.names, name)
}

// Rules are matched in order against the lowercased advertised name.
var rules = []rule{
  {
    factory: sanitas.Factory,
    prefixes: []string{
      "beurer bf700", "beurer bf800", "bf-800", "bf-700", "rt-libra-b",
      "beurer bf710", "sanitas sbf70", "sbf75", "aicdscale1",
    },
    names: []string{"bf700"},
  },
  {
    factory: beurer.BF600Factory,
    contains: []string{"bf600", "bf850"},
  },
  {
    factory: okok.Factory,
    names: []string{"adv", "chipsea-ble", "okok nameless"},
  },
  {
    factory: sinocare.Factory,
    names: []string{"weight scale"},
  },
  {
    factory: cult.Factory,
    prefixes: []string{"cult"},
  },
}

var factories = []driver.Factory{
  standard.Factory,
  beurer.BF600Factory,
  sanitas.Factory,
  okok.Factory,
  okok.NoNameFactory,
  sinocare.Factory,
  cult.Factory,
}

// Lookup returns the driver handling scales advertising as name.
func Lookup(name string) (driver.Factory, bool) {
  name = strings.ToLower(strings.TrimSpace(name))

  if name == "" {
    return driver.Factory{}, false
  }

  for _, r := range rules {
    if r.matches(name) {
      log.Trace().Str("Name", name).Str("Driver", r.factory.ID).Msg("registry: matched advertised name")
      return r.factory, true
    }
  }

  return driver.Factory{}, false
}

// LookupAdvertisement also considers unnamed broadcasters and scales announcing the standard
// weight scale service.
func LookupAdvertisement(a ble.Advertisement) (driver.Factory, bool) {
  if f, ok := Lookup(a.LocalName()); ok {
    return f, true
  }

  if okok.IsNoName(a) {
    return okok.NoNameFactory, true
  }

  for _, svc := range a.Services() {
    if svc.Equal(standard.ServiceWeightScale) {
      return standard.Factory, true
    }
  }

  return driver.Factory{}, false
}

// ByID returns the driver registered under id, as used in scale specs.
func ByID(id string) (driver.Factory, bool) {
  i := slices.IndexFunc(factories, func(f driver.Factory) bool {
    return f.ID == id
  })

  if i < 0 {
    return driver.Factory{}, false
  }

  return factories[i], true
}

func Factories() []driver.Factory {
  return slices.Clone(factories)
}
