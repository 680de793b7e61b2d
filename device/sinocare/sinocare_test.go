package sinocare_test

import (
  "testing"

  . "github.com/onsi/gomega"

  "github.com/robertof/go-scale-bridge/device/sinocare"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/driver/drivertest"
)

func advertisement(lsb, msb byte) drivertest.Advertisement {
  data := []byte{0x64, 0xff, 0, 0, 0, 0, 0, 0, 0, 0, 0, lsb, msb, 0}

  return drivertest.Advertisement{Name: "Weight Scale", Manufacturer: data}
}

func TestDecodeWeight(t *testing.T) {
  got, err := sinocare.DecodeWeight([]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0x58, 0x1b})

  if err != nil || got != 7000 {
    t.Fatalf("DecodeWeight: got %d, %v, wanted 7000", got, err)
  }

  if _, err := sinocare.DecodeWeight(make([]byte, 10)); err == nil {
    t.Fatalf("DecodeWeight accepted a short frame")
  }
}

func TestSinocare_WaitsForStableWeight(t *testing.T) {
  g := NewWithT(t)
  h := drivertest.New(t, drivertest.Options{}, func(s *driver.Session) driver.Protocol {
    return sinocare.New(s, "Weight Scale")
  })

  h.Advertise(advertisement(0x00, 0x00))
  h.Advertise(advertisement(0x10, 0x1b))

  for i := 0; i < sinocare.StableThreshold; i++ {
    g.Expect(h.Measurements()).To(BeEmpty())
    h.Advertise(advertisement(0x58, 0x1b))
  }

  g.Expect(h.Measurements()).To(BeEmpty())
  g.Expect(h.Messages()).To(Equal([]driver.Message{driver.MessageMeasuring, driver.MessageMeasuring}))

  h.Advertise(advertisement(0x58, 0x1b))
  g.Eventually(h.Session.Done()).Should(BeClosed())

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Weight).To(Equal(float32(70.0)))
}
