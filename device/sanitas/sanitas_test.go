package sanitas_test

import (
  "reflect"
  "testing"
  "time"

  . "github.com/onsi/gomega"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/device/sanitas"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/driver/drivertest"
)

var measurementRecord = []byte{
  0x65, 0x53, 0xf1, 0x00,
  0x05, 0x78,
  0x01, 0xf4,
  0x00, 0xe1,
  0x02, 0x26,
  0x01, 0x90,
  0x00, 0x3c,
  0x05, 0xdc,
  0x09, 0x60,
  0x00, 0xf2,
}

var remoteID = []byte{0, 0, 0, 0, 0, 0, 0, 101}

var anna = device.User{
  ID: 1,
  Name: "Anna",
  Birthday: time.Date(1990, 3, 12, 0, 0, 0, 0, time.Local),
  Gender: device.GenderFemale,
  Height: 165,
  ScaleUnit: device.UnitKG,
}

func frame(b ...[]byte) []byte {
  var out []byte

  for _, part := range b {
    out = append(out, part...)
  }

  return out
}

func TestDecodeMeasurement(t *testing.T) {
  got, err := sanitas.DecodeMeasurement(measurementRecord)

  if err != nil {
    t.Fatalf("DecodeMeasurement got error: %v", err)
  }

  want := device.NewMeasurement()
  want.Timestamp = time.Unix(1700000000, 0)
  want.Weight = 70
  want.Impedance = 500
  want.Fat = 22.5
  want.Water = 55
  want.Muscle = 40
  want.Bone = 3
  want.BMR = 1500
  want.AMR = 2400
  want.BMI = 24.2

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("DecodeMeasurement: got %+v, wanted %+v", got, want)
  }

  if _, err := sanitas.DecodeMeasurement(measurementRecord[:21]); err == nil {
    t.Fatalf("DecodeMeasurement accepted a truncated record")
  }
}

func TestModelFromName(t *testing.T) {
  tests := []struct {
    name string
    want sanitas.Model
  }{
    {"BEURER BF700", sanitas.ModelBF700},
    {"RT-Libra-W", sanitas.ModelBF700},
    {"BEURER BF710", sanitas.ModelBF710},
    {"BF700", sanitas.ModelBF710},
    {"SANITAS SBF70", sanitas.ModelSBF70},
    {"sbf75", sanitas.ModelSBF70},
    {"AICDSCALE1", sanitas.ModelSBF70},
  }

  for _, tt := range tests {
    if got := sanitas.ModelFromName(tt.name); got != tt.want {
      t.Errorf("ModelFromName(%q): got %v, wanted %v", tt.name, got, tt.want)
    }
  }
}

func TestScaleName(t *testing.T) {
  tests := []struct {
    user device.User
    want string
  }{
    {device.User{ID: 1, Name: "Jürgen Müller"}, "JURGENMULLER"},
    {device.User{ID: 2, Name: "zoë-2"}, "ZOE2"},
    {device.User{ID: 3, Name: "李"}, "3"},
  }

  for _, tt := range tests {
    if got := sanitas.ScaleName(tt.user); got != tt.want {
      t.Errorf("ScaleName(%q): got %q, wanted %q", tt.user.Name, got, tt.want)
    }
  }
}

func newHarness(t *testing.T) *drivertest.Harness {
  h := drivertest.New(t, drivertest.Options{
    Users: []device.User{anna},
    SelectedUser: anna.ID,
  }, func(s *driver.Session) driver.Protocol {
    return sanitas.New(s, "BEURER BF800")
  })

  h.Transport.AddCharacteristic(sanitas.ServiceCustom, sanitas.CharCustom)

  return h
}

func countWrites(h *drivertest.Harness, prefix ...byte) (n int) {
  for _, w := range h.Transport.Writes(sanitas.CharCustom) {
    if len(w) >= len(prefix) && reflect.DeepEqual(w[:len(prefix)], prefix) {
      n++
    }
  }

  return n
}

func TestSanitas_FullSession(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  g.Expect(h.Transport.Writes(sanitas.CharCustom)).To(Equal([][]byte{{0xf6, 0x01}}))

  h.Notify(sanitas.CharCustom, []byte{0xf6, 0x00})
  g.Expect(countWrites(h, 0xf9)).To(Equal(1))
  g.Expect(countWrites(h, 0xf7, 0x4f)).To(Equal(1))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x4f, 0x00, 80, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01})
  g.Expect(countWrites(h, 0xf7, 0x33)).To(Equal(1))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x33, 0x00, 0x01, 0x08})
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x34, 0x01, 0x01}, remoteID, []byte{'A', 'N', 'N', 90}))
  g.Expect(countWrites(h, 0xf7, 0xf1, 0x34, 0x01, 0x01)).To(Equal(1))
  g.Expect(countWrites(h, 0xf7, 0x41)).To(Equal(1))

  // one saved measurement in two parts
  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x41, 0x02})
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x42, 0x02, 0x01}, measurementRecord[:10]))
  g.Expect(h.Measurements()).To(BeEmpty())
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x42, 0x02, 0x02}, measurementRecord[10:]))

  g.Expect(h.Measurements()).To(HaveLen(1))
  g.Expect(h.Measurements()[0].UserID).To(Equal(anna.ID))
  g.Expect(countWrites(h, 0xf7, 0x43)).To(Equal(1))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x43, 0x00})
  g.Expect(countWrites(h, 0xf7, 0x36)).To(Equal(1))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x36, 0x00, 'A', 'N', 'N', 90, 2, 12, 165, 0x02})
  g.Expect(countWrites(h, 0xf7, 0x40)).To(Equal(1))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x40, 0x00})
  g.Expect(h.Messages()).To(ContainElement(driver.MessageStepOnScale))

  // live measurement: user header, then two data parts
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x59, 0x03, 0x01, 0x00}, remoteID))
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x59, 0x03, 0x02}, measurementRecord[:10]))
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x59, 0x03, 0x03}, measurementRecord[10:]))

  g.Expect(h.Measurements()).To(HaveLen(2))
  g.Expect(countWrites(h, 0xf7, 0xf1, 0x59)).To(Equal(3))
  g.Expect(countWrites(h, 0xf7, 0x43)).To(Equal(2))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x43, 0x00})
  g.Expect(h.Session.Step()).To(Equal(9))
}

func TestSanitas_TruncatedMeasurementIsDropped(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x59, 0x03, 0x01, 0x00}, remoteID))
  h.Notify(sanitas.CharCustom, frame([]byte{0xf7, 0x59, 0x03, 0x02}, measurementRecord[:10]))

  g.Expect(countWrites(h, 0xf7, 0xf1, 0x59)).To(Equal(2))

  h.Session.Close()
  g.Eventually(h.Session.Done()).Should(BeClosed())

  g.Expect(h.Measurements()).To(BeEmpty())
  g.Expect(countWrites(h, 0xf7, 0x43)).To(Equal(0))
}

func TestSanitas_CreatesMissingUser(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  h.Notify(sanitas.CharCustom, []byte{0xf6, 0x00})
  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x4f, 0x00, 5, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01})
  g.Expect(h.Messages()).To(Equal([]driver.Message{driver.MessageLowBattery}))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x33, 0x00, 0x00, 0x08})

  adds := h.Transport.Writes(sanitas.CharCustom)
  g.Expect(adds[len(adds)-1]).To(Equal([]byte{
    0xf7, 0x31,
    0, 0, 0, 0, 0, 0, 0, 101,
    'A', 'N', 'N',
    90, 2, 12, 165, 0x01,
  }))

  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x31, 0x00})
  g.Expect(h.Messages()).To(ContainElement(driver.MessageStepOnScaleForReference))
  g.Expect(countWrites(h, 0xf7, 0x40)).To(Equal(1))
}

func TestSanitas_MaxUsers(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  h.Notify(sanitas.CharCustom, []byte{0xf6, 0x00})
  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x4f, 0x00, 80, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01})
  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x33, 0x00, 0x00, 0x08})
  h.Notify(sanitas.CharCustom, []byte{0xf7, 0xf0, 0x31, 0x01})

  g.Expect(h.Messages()).To(Equal([]driver.Message{driver.MessageMaxScaleUsers}))
  g.Expect(h.Session.Step()).To(Equal(9))
}
