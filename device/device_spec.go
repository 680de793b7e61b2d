package device

import (
  "strings"

  "github.com/rs/zerolog/log"
)

// ScaleSpec is the `key=value,key=value` form used on the command line to describe a scale.
type ScaleSpec map[string]string

const (
  ScaleSpecFieldName = "name"
  ScaleSpecFieldAddress = "addr"
  ScaleSpecFieldDriver = "driver"
)

func NewScaleSpec(s string) ScaleSpec {
  spec := ScaleSpec{}

  for _, entry := range strings.Split(s, ",") {
    if strings.TrimSpace(entry) == "" {
      continue
    }

    key, value, ok := strings.Cut(entry, "=")

    if !ok {
      log.Warn().Str("Entry", entry).Msg("Skipping invalid scale spec entry")
      continue
    }

    spec[strings.TrimSpace(key)] = strings.TrimSpace(value)
  }

  return spec
}

func (ss ScaleSpec) Name() string {
  return ss[ScaleSpecFieldName]
}

func (ss ScaleSpec) Addr() string {
  return ss[ScaleSpecFieldAddress]
}

func (ss ScaleSpec) Driver() string {
  return ss[ScaleSpecFieldDriver]
}
