package ble

import (
  "context"
  "errors"
  "fmt"
  "reflect"
  "testing"

  "github.com/robertof/go-scale-bridge/device"
)

func TestConnParams_Set(t *testing.T) {
  tests := []struct {
    in string
    want ConnParams
    err bool
  }{
    {"", ConnParamsDefault, false},
    {"default", ConnParamsDefault, false},
    {"power-saving", ConnParamsPowerSaving, false},
    {"turbo", "", true},
  }

  for _, tt := range tests {
    var got ConnParams
    err := got.UnmarshalText([]byte(tt.in))

    if (err != nil) != tt.err {
      t.Fatalf("UnmarshalText(%q): got error %v", tt.in, err)
    }

    if got != tt.want {
      t.Fatalf("UnmarshalText(%q): got %q, wanted %q", tt.in, got, tt.want)
    }
  }
}

func TestConnParams_AdapterOptions(t *testing.T) {
  def := ConnParamsDefault.AdapterOptions()
  saving := ConnParamsPowerSaving.AdapterOptions()

  if def.ConnIntervalMax != 0x0010 || def.SupervisionTimeout != 0x0190 {
    t.Fatalf("AdapterOptions(default): got %+v", def)
  }

  if saving.ConnIntervalMin != 0x00f0 || saving.ConnLatency != 0x0014 || saving.SupervisionTimeout != 0x0708 {
    t.Fatalf("AdapterOptions(power-saving): got %+v", saving)
  }

  if saving.LEScanInterval != def.LEScanInterval {
    t.Fatalf("AdapterOptions(power-saving) changed the scan interval")
  }

  if got, want := ConnParamsNames(), []ConnParams{ConnParamsDefault, ConnParamsPowerSaving}; !reflect.DeepEqual(got, want) {
    t.Fatalf("ConnParamsNames: got %v, wanted %v", got, want)
  }
}

func TestFlags_String(t *testing.T) {
  tests := []struct {
    in Flags
    want string
  }{
    {0, "none"},
    {FlagScanResponses, "scan responses"},
    {FlagConfiguredScalesOnly | FlagKeepScaleLinks, "configured scales only, keep scale links"},
  }

  for _, tt := range tests {
    if got := tt.in.String(); got != tt.want {
      t.Fatalf("Flags(%d).String(): got %q, wanted %q", tt.in, got, tt.want)
    }
  }
}

func TestHCIStatus(t *testing.T) {
  tests := []struct {
    err error
    want int
  }{
    {context.DeadlineExceeded, HCIStatusConnectionTimeout},
    {fmt.Errorf("dial: %w", context.DeadlineExceeded), HCIStatusConnectionTimeout},
    {errors.New("refused"), HCIStatusUnknown},
  }

  for _, tt := range tests {
    if got := HCIStatus(tt.err); got != tt.want {
      t.Fatalf("HCIStatus(%v): got %#x, wanted %#x", tt.err, got, tt.want)
    }
  }
}

func TestFlagsForScales(t *testing.T) {
  passive := &device.Scale{Name: "hallway"}
  active := &device.Scale{Name: "bathroom", Flags: device.FlagRequiresBleActiveScan}

  tests := []struct {
    scales []*device.Scale
    keep bool
    want Flags
  }{
    {nil, false, FlagConfiguredScalesOnly},
    {[]*device.Scale{passive}, true, FlagConfiguredScalesOnly | FlagKeepScaleLinks},
    {[]*device.Scale{passive, active}, false, FlagConfiguredScalesOnly | FlagScanResponses},
  }

  for _, tt := range tests {
    if got := FlagsForScales(tt.scales, tt.keep); got != tt.want {
      t.Fatalf("FlagsForScales(%v, %v): got %v, wanted %v", tt.scales, tt.keep, got, tt.want)
    }
  }

  if got := scanType(7).String(); got != "scanType(7)" {
    t.Fatalf("scanType(7).String(): got %q", got)
  }
}
