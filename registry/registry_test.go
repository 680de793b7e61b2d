package registry_test

import (
  "testing"

  "github.com/go-ble/ble"

  "github.com/robertof/go-scale-bridge/driver/drivertest"
  "github.com/robertof/go-scale-bridge/registry"
)

func TestLookup(t *testing.T) {
  tests := []struct {
    name string
    want string
  }{
    {"BEURER BF700", "beurer_sanitas"},
    {"Beurer BF710", "beurer_sanitas"},
    {"BF700", "beurer_sanitas"},
    {"RT-Libra-B", "beurer_sanitas"},
    {"SANITAS SBF70", "beurer_sanitas"},
    {"SBF75", "beurer_sanitas"},
    {"BF600", "beurer_bf600"},
    {"Beurer BF850", "beurer_bf600"},
    {"ADV", "okok"},
    {"Chipsea-BLE", "okok"},
    {"Weight Scale", "sinocare"},
    {"Cult Smart Scale", "cult"},
  }

  for _, tt := range tests {
    got, ok := registry.Lookup(tt.name)

    if !ok {
      t.Fatalf("Lookup(%q): no driver found, wanted %q", tt.name, tt.want)
    }

    if got.ID != tt.want {
      t.Fatalf("Lookup(%q): got %q, wanted %q", tt.name, got.ID, tt.want)
    }
  }
}

func TestLookup_Unknown(t *testing.T) {
  for _, name := range []string{"", "  ", "MI_SCALE", "Weight Scale Pro"} {
    if f, ok := registry.Lookup(name); ok {
      t.Fatalf("Lookup(%q): got %q, wanted no match", name, f.ID)
    }
  }
}

type serviceAdvertisement struct {
  drivertest.Advertisement
  services []ble.UUID
}

func (a serviceAdvertisement) Services() []ble.UUID {
  return a.services
}

func TestLookupAdvertisement(t *testing.T) {
  tests := []struct {
    name string
    a ble.Advertisement
    want string
  }{
    {"by name", drivertest.Advertisement{Name: "ADV"}, "okok"},
    {"noname okok", drivertest.Advertisement{Manufacturer: []byte{0xc0, 0x12, 0x00}}, "okok_noname"},
    {
      "weight scale service",
      serviceAdvertisement{drivertest.Advertisement{Name: "Unbranded"}, []ble.UUID{ble.UUID16(0x181d)}},
      "standard",
    },
  }

  for _, tt := range tests {
    got, ok := registry.LookupAdvertisement(tt.a)

    if !ok || got.ID != tt.want {
      t.Fatalf("%s: LookupAdvertisement got %q (%v), wanted %q", tt.name, got.ID, ok, tt.want)
    }
  }

  if f, ok := registry.LookupAdvertisement(drivertest.Advertisement{Name: "Thermometer"}); ok {
    t.Fatalf("LookupAdvertisement: got %q for an unknown device", f.ID)
  }
}

func TestByID(t *testing.T) {
  for _, f := range registry.Factories() {
    got, ok := registry.ByID(f.ID)

    if !ok || got.ID != f.ID {
      t.Fatalf("ByID(%q): got %q (%v)", f.ID, got.ID, ok)
    }

    if f.New == nil {
      t.Fatalf("factory %q has no constructor", f.ID)
    }
  }

  if len(registry.Factories()) != 7 {
    t.Fatalf("Factories: got %d drivers, wanted 7", len(registry.Factories()))
  }

  if _, ok := registry.ByID("inkbird"); ok {
    t.Fatalf("ByID accepted an unknown driver")
  }
}
