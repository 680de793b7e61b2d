package cult_test

import (
  "errors"
  "reflect"
  "testing"
  "time"

  "github.com/go-ble/ble"
  . "github.com/onsi/gomega"

  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/device/cult"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/driver/drivertest"
)

var (
  testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
  testUser = device.User{
    ID: 1,
    Name: "Jane Doe",
    Birthday: time.Date(1990, 4, 12, 0, 0, 0, 0, time.Local),
    Gender: device.GenderFemale,
    Height: 170,
  }
)

func TestDecodeWeight(t *testing.T) {
  tests := []struct {
    name string
    data []byte
    want float32
  }{
    {"le at 3", []byte{0xcf, 0, 0, 0x58, 0x1b, 0, 0, 0}, 70},
    {"be at 3", []byte{0xcf, 0, 0, 0x0f, 0xa0, 0, 0, 0}, 40},
    {"le at 1", []byte{0x00, 0x10, 0x27, 0, 0, 0, 0, 0}, 100},
    {"tenths at 3", []byte{0xaa, 0, 0, 0xbc, 0x02, 0, 0, 0}, 70},
  }

  for _, tt := range tests {
    got, err := cult.DecodeWeight(tt.data)

    if err != nil {
      t.Fatalf("%s: DecodeWeight got error: %v", tt.name, err)
    }

    if got != tt.want {
      t.Fatalf("%s: DecodeWeight got %v, wanted %v", tt.name, got, tt.want)
    }
  }
}

func TestDecodeWeight_Implausible(t *testing.T) {
  for _, data := range [][]byte{
    make([]byte, 7),
    make([]byte, 8),
    {0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff},
  } {
    if _, err := cult.DecodeWeight(data); !errors.Is(err, device.ErrInvalidData) {
      t.Fatalf("DecodeWeight(% x): got %v, wanted ErrInvalidData", data, err)
    }
  }
}

func bodyFrame() []byte {
  data := make([]byte, 20)
  data[0] = 0xbb
  data[2], data[3] = 0x58, 0x1b

  return data
}

func TestDecodeBodyComposition_FirstLayout(t *testing.T) {
  data := bodyFrame()
  copy(data[6:], []byte{0xe1, 0x00, 0x26, 0x02, 0x90, 0x01, 0x2c, 0x01, 0x84, 0x03})

  got, err := cult.DecodeBodyComposition(data)
  if err != nil {
    t.Fatalf("DecodeBodyComposition got error: %v", err)
  }

  want := device.NewMeasurement()
  want.Weight = 70
  want.Fat = 22.5
  want.Water = 55
  want.Muscle = 40
  want.Bone = 3
  want.VisceralFat = 9

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("DecodeBodyComposition: got %v, wanted %v", got, want)
  }
}

func TestDecodeBodyComposition_SecondLayout(t *testing.T) {
  data := bodyFrame()
  data[10], data[14], data[16], data[17] = 200, 150, 120, 50

  got, err := cult.DecodeBodyComposition(data)
  if err != nil {
    t.Fatalf("DecodeBodyComposition got error: %v", err)
  }

  want := device.NewMeasurement()
  want.Weight = 70
  want.Fat = 20
  want.Muscle = 15
  want.Bone = 1.2
  want.VisceralFat = 5

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("DecodeBodyComposition: got %v, wanted %v", got, want)
  }
}

func TestDecodeBodyComposition_NoWeight(t *testing.T) {
  data := make([]byte, 20)
  data[0] = 0xbb

  if _, err := cult.DecodeBodyComposition(data); !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("DecodeBodyComposition: got %v, wanted ErrInvalidData", err)
  }

  if _, err := cult.DecodeBodyComposition(bodyFrame()[:19]); !errors.Is(err, device.ErrInvalidData) {
    t.Fatalf("DecodeBodyComposition accepted a short frame: %v", err)
  }
}

func TestUserProfile(t *testing.T) {
  got := cult.UserProfile(testUser, testUser.Age(testNow))
  want := []byte{0xfe, 0x01, 0x22, 0xaa, 0x00, 0x00, 0x00, 0x00, 0x77, 0xff}

  if !reflect.DeepEqual(got, want) {
    t.Fatalf("UserProfile: got % x, wanted % x", got, want)
  }

  male := testUser
  male.Gender = device.GenderMale
  male.ScaleUnit = device.UnitLB

  got = cult.UserProfile(male, 34)
  if got[5] != 1 || got[6] != 1 || got[8] != 0x77^0x01^0x01 {
    t.Fatalf("UserProfile: got % x for a male user in lb", got)
  }
}

func newHarness(t *testing.T) *drivertest.Harness {
  h := drivertest.New(t, drivertest.Options{
    Users: []device.User{testUser},
    SelectedUser: testUser.ID,
    Now: func() time.Time { return testNow },
  }, func(s *driver.Session) driver.Protocol {
    return cult.New(s, "Cult")
  })

  for _, c := range []ble.UUID{cult.CharMeasurement, cult.CharControl, cult.CharStatus} {
    h.Transport.AddCharacteristic(cult.ServiceCult, c)
  }

  return h
}

func TestCult_Session(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  var kinds []string
  for _, op := range h.Transport.Ops {
    kinds = append(kinds, op.Kind+" "+op.Char.String())
  }

  g.Expect(kinds).To(Equal([]string{
    "notify fff1",
    "indicate fff2",
    "notify fff4",
    "write fff2",
    "write fff2",
  }))

  g.Expect(h.Transport.Writes(cult.CharControl)).To(Equal([][]byte{
    cult.UserProfile(testUser, 34),
    {0xfd, 0x01, 0x00, 0xfc},
  }))
  g.Expect(h.Messages()).To(ContainElement(driver.MessageMeasuring))

  h.Notify(cult.CharMeasurement, []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
  g.Expect(h.Measurements()).To(BeEmpty())

  h.Notify(cult.CharMeasurement, []byte{0xcf, 0, 0, 0x58, 0x1b, 0, 0, 0})
  h.Notify(cult.CharMeasurement, []byte{0xcf, 0, 0, 0x60, 0x1b, 0, 0, 0})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Weight).To(Equal(float32(70)))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
  g.Expect(ms[0].Timestamp).To(Equal(testNow))
}

func TestCult_StatusFrames(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t)
  h.Connect()

  h.Notify(cult.CharStatus, []byte{0xba, 15, 0})
  g.Expect(h.Messages()).To(ContainElement(driver.MessageLowBattery))

  h.Notify(cult.CharStatus, []byte{0xbe, 0x02, 0})
  g.Expect(h.Messages()).To(ContainElement(driver.MessageScaleError))

  data := bodyFrame()
  copy(data[6:], []byte{0xe1, 0x00, 0x26, 0x02, 0x90, 0x01, 0x2c, 0x01, 0x84, 0x03})
  h.Notify(cult.CharStatus, data)

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Fat).To(Equal(float32(22.5)))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
}
