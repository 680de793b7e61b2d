// Package metrics exports the latest measurement of every user as Prometheus gauges.
package metrics

import (
  "strconv"

  "github.com/prometheus/client_golang/prometheus"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/sink"
)

var labels = []string{"scale", "user"}

type gauge struct {
  desc *prometheus.Desc
  value func(m device.Measurement) float32
  // scale turns the reported value into the exported unit.
  scale float64
}

var gauges = []gauge{
  {
    desc: prometheus.NewDesc("scale_weight_kilograms", "Body weight in kg.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Weight },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_body_fat_ratio", "Body fat ratio.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Fat },
    scale: 0.01,
  },
  {
    desc: prometheus.NewDesc("scale_body_water_ratio", "Body water ratio.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Water },
    scale: 0.01,
  },
  {
    desc: prometheus.NewDesc("scale_muscle_ratio", "Muscle ratio.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Muscle },
    scale: 0.01,
  },
  {
    desc: prometheus.NewDesc("scale_bone_mass_kilograms", "Bone mass in kg.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Bone },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_lean_body_mass_kilograms", "Lean body mass in kg.", labels, nil),
    value: func(m device.Measurement) float32 { return m.LBM },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_visceral_fat_rating", "Visceral fat rating reported by the scale.", labels, nil),
    value: func(m device.Measurement) float32 { return m.VisceralFat },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_bmi", "Body mass index.", labels, nil),
    value: func(m device.Measurement) float32 { return m.BMI },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_bmr_kilocalories", "Basal metabolic rate in kcal per day.", labels, nil),
    value: func(m device.Measurement) float32 { return m.BMR },
    scale: 1,
  },
  {
    desc: prometheus.NewDesc("scale_impedance_ohms", "Body impedance in ohms.", labels, nil),
    value: func(m device.Measurement) float32 { return m.Impedance },
    scale: 1,
  },
}

type CollectFunc func() map[sink.Key]device.Measurement

type collector struct {
  CollectFunc
}

func (c *collector) Describe(ch chan<- *prometheus.Desc) {
  for _, g := range gauges {
    ch <- g.desc
  }
}

// Collect exports only the fields the scale reported, stamped with the measurement time.
func (c *collector) Collect(ch chan<- prometheus.Metric) {
  for key, m := range c.CollectFunc() {
    user := strconv.Itoa(key.UserID)

    for _, g := range gauges {
      v := g.value(m)
      if v == 0 {
        continue
      }

      metric := prometheus.MustNewConstMetric(
        g.desc,
        prometheus.GaugeValue,
        float64(v) * g.scale,
        key.Scale,
        user,
      )

      ch <- prometheus.NewMetricWithTimestamp(m.Timestamp, metric)
    }
  }
}

func RegisterCollector(f CollectFunc, reg prometheus.Registerer) {
  c := &collector{f}

  reg.MustRegister(c)
}
