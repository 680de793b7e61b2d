package metrics

import (
  "testing"
  "time"

  . "github.com/onsi/gomega"
  "github.com/prometheus/client_golang/prometheus"
  "github.com/prometheus/client_golang/prometheus/testutil"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/sink"
)

func TestCollector(t *testing.T) {
  g := NewWithT(t)
  ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)

  latest := sink.NewLatest()
  latest.Submit("bathroom", device.Measurement{UserID: 1, Timestamp: ts, Weight: 70.5, Fat: 20})
  latest.Submit("bathroom", device.Measurement{UserID: 2, Timestamp: ts, Weight: 55})

  reg := prometheus.NewPedanticRegistry()
  RegisterCollector(latest.Snapshot, reg)

  g.Expect(testutil.GatherAndCount(reg)).To(Equal(3))
  g.Expect(testutil.GatherAndCount(reg, "scale_weight_kilograms")).To(Equal(2))
  g.Expect(testutil.GatherAndCount(reg, "scale_bone_mass_kilograms")).To(Equal(0))

  families, err := reg.Gather()
  g.Expect(err).NotTo(HaveOccurred())

  for _, f := range families {
    if f.GetName() != "scale_body_fat_ratio" {
      continue
    }

    g.Expect(f.GetMetric()).To(HaveLen(1))

    m := f.GetMetric()[0]
    g.Expect(m.GetGauge().GetValue()).To(BeNumerically("~", 0.2, 1e-6))
    g.Expect(m.GetTimestampMs()).To(Equal(ts.UnixMilli()))
  }
}

func TestCollector_Empty(t *testing.T) {
  g := NewWithT(t)

  reg := prometheus.NewPedanticRegistry()
  RegisterCollector(sink.NewLatest().Snapshot, reg)

  g.Expect(testutil.GatherAndCount(reg)).To(Equal(0))
}
