package standard_test

import (
  "testing"
  "time"

  "github.com/go-ble/ble"
  . "github.com/onsi/gomega"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/device/standard"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/driver/drivertest"
  "github.com/robertof/go-scale-bridge/store"
)

var (
  testNow = time.Date(2024, 5, 1, 8, 0, 0, 0, time.Local)
  testUser = device.User{
    ID: 1,
    Name: "Jane Doe",
    Birthday: time.Date(1990, 4, 12, 0, 0, 0, 0, time.Local),
    Gender: device.GenderFemale,
    Height: 170,
    ActivityLevel: device.ActivityModerate,
  }
)

func newGeneric(s *driver.Session) driver.Protocol {
  return standard.NewGeneric(s, "")
}

func newHarness(t *testing.T, st *store.Memory) *drivertest.Harness {
  h := drivertest.New(t, drivertest.Options{
    Users: []device.User{testUser},
    SelectedUser: testUser.ID,
    Store: st,
    Now: func() time.Time { return testNow },
  }, newGeneric)

  for _, c := range []struct{ svc, char ble.UUID }{
    {standard.ServiceWeightScale, standard.CharWeightMeasurement},
    {standard.ServiceBodyComposition, standard.CharBodyCompositionMeasurement},
    {standard.ServiceUserData, standard.CharChangeIncrement},
    {standard.ServiceUserData, standard.CharUserControlPoint},
    {standard.ServiceBattery, standard.CharBatteryLevel},
  } {
    h.Transport.AddCharacteristic(c.svc, c.char)
  }

  return h
}

func registeredStore(index, consent int) *store.Memory {
  st := store.NewMemory([]device.User{testUser}, testUser.ID)
  store.SetScaleIndex(st, testUser.ID, index)
  store.SetConsentCode(st, testUser.ID, consent)

  return st
}

func closeAndWait(g *WithT, h *drivertest.Harness) {
  h.Session.Close()
  g.Eventually(h.Session.Done()).Should(BeClosed())
}

func TestProfile_MeasurementWithoutUserIsEmittedAtOnce(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1234))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x00, 0x58, 0x1b})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Weight).To(Equal(float32(35.0)))
  g.Expect(ms[0].Timestamp).To(Equal(testNow))
  g.Expect(ms[0].UserID).To(Equal(device.UnknownUser))

  closeAndWait(g, h)
  g.Expect(h.Measurements()).To(HaveLen(1))
}

func TestProfile_UserMeasurementFlushedOnDisconnect(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1234))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x01})
  g.Expect(h.Measurements()).To(BeEmpty())

  closeAndWait(g, h)

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Weight).To(Equal(float32(35.0)))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
}

func TestProfile_MergesWeightAndBodyComposition(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1234))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x01})
  // fat 20%, soft lean mass 20kg, no weight field, no user
  h.Notify(standard.CharBodyCompositionMeasurement, []byte{0x80, 0x00, 0xc8, 0x00, 0xa0, 0x0f})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
  g.Expect(ms[0].Weight).To(Equal(float32(35)))
  g.Expect(ms[0].Fat).To(Equal(float32(20)))
  g.Expect(ms[0].LBM).To(Equal(float32(28)))
  g.Expect(ms[0].Bone).To(Equal(float32(8)))

  closeAndWait(g, h)
  g.Expect(h.Measurements()).To(HaveLen(1))
}

func TestProfile_KeepsMeasurementsOfDifferentUsersApart(t *testing.T) {
  g := NewWithT(t)

  other := device.User{ID: 2, Name: "John Doe", Birthday: testUser.Birthday, Height: 180}
  st := store.NewMemory([]device.User{testUser, other}, testUser.ID)
  store.SetScaleIndex(st, testUser.ID, 1)
  store.SetScaleIndex(st, other.ID, 2)
  store.SetConsentCode(st, testUser.ID, 1234)

  h := newHarness(t, st)
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x01})
  // fat 20% and 50kg for scale user 2
  h.Notify(standard.CharBodyCompositionMeasurement, []byte{0x04, 0x04, 0xc8, 0x00, 0x02, 0x10, 0x27})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
  g.Expect(ms[0].Weight).To(Equal(float32(35)))
  g.Expect(ms[0].Fat).To(BeZero())

  closeAndWait(g, h)

  ms = h.Measurements()
  g.Expect(ms).To(HaveLen(2))
  g.Expect(ms[1].UserID).To(Equal(other.ID))
  g.Expect(ms[1].Weight).To(Equal(float32(50)))
  g.Expect(ms[1].Fat).To(Equal(float32(20)))
}

func TestProfile_SecondUserMeasurementFlushesHeldOne(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1234))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x01})
  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x10, 0x27, 0x01})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Weight).To(Equal(float32(35)))

  closeAndWait(g, h)

  ms = h.Measurements()
  g.Expect(ms).To(HaveLen(2))
  g.Expect(ms[1].Weight).To(Equal(float32(50)))
}

func TestProfile_WaterMassAsPercentage(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1234))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x01})
  // fat 20%, water mass 17.5kg
  h.Notify(standard.CharBodyCompositionMeasurement, []byte{0x00, 0x01, 0xc8, 0x00, 0xac, 0x0d})

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].Water).To(BeNumerically("~", 50, 0.01))
}

func TestProfile_SelectsKnownUser(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(3, 0x0102))
  h.Connect()

  g.Expect(h.Transport.Writes(standard.CharUserControlPoint)).To(Equal([][]byte{{0x02, 0x03, 0x02, 0x01}}))

  h.Notify(standard.CharUserControlPoint, []byte{0x20, 0x02, 0x01})
  g.Expect(h.Session.Step()).To(Equal(16))

  // measurements for scale user 3 belong to app user 1
  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x03})
  closeAndWait(g, h)

  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
}

func TestProfile_ConsentRefusedAsksForCode(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(3, 42))
  h.Connect()

  h.Notify(standard.CharUserControlPoint, []byte{0x20, 0x02, 0x05})

  is := h.Interactions()
  g.Expect(is).To(HaveLen(1))
  g.Expect(is[0].Kind).To(Equal(driver.InteractionEnterConsent))
  g.Expect(is[0].ScaleIndex).To(Equal(3))

  err := h.Session.Answer(func(r driver.Responder) error {
    return r.SetScaleUserConsent(testUser.ID, 7777)
  })
  g.Expect(err).NotTo(HaveOccurred())
  g.Expect(store.ConsentCode(h.Store, testUser.ID)).To(Equal(7777))

  writes := h.Transport.Writes(standard.CharUserControlPoint)
  g.Expect(writes[len(writes)-1]).To(Equal([]byte{0x02, 0x03, 0x61, 0x1e}))
}

func TestProfile_RegistersNewUser(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, nil)
  h.Connect()

  consent := store.ConsentCode(h.Store, testUser.ID)
  g.Expect(consent).To(BeNumerically(">=", 0))
  g.Expect(consent).To(BeNumerically("<", 10000))

  ucp := h.Transport.Writes(standard.CharUserControlPoint)
  g.Expect(ucp).To(Equal([][]byte{{0x01, byte(consent), byte(consent >> 8)}}))

  h.Notify(standard.CharUserControlPoint, []byte{0x20, 0x01, 0x01, 0x05})
  g.Expect(store.ScaleIndex(h.Store, testUser.ID)).To(Equal(5))
  g.Expect(h.Transport.Writes(standard.CharUserControlPoint)[1]).To(Equal([]byte{0x02, 0x05, byte(consent), byte(consent >> 8)}))

  h.Notify(standard.CharUserControlPoint, []byte{0x20, 0x02, 0x01})
  g.Expect(h.Transport.Writes(standard.CharDateOfBirth)).To(Equal([][]byte{{0xc6, 0x07, 0x04, 0x0c}}))
  g.Expect(h.Transport.Writes(standard.CharGender)).To(Equal([][]byte{{0x01}}))
  g.Expect(h.Transport.Writes(standard.CharHeight)).To(Equal([][]byte{codec.PutUint16LE(170)}))
  g.Expect(h.Transport.Writes(standard.CharChangeIncrement)).To(Equal([][]byte{{0x01, 0x00, 0x00, 0x00}}))
  g.Expect(h.Messages()).To(BeEmpty())

  h.Notify(standard.CharChangeIncrement, []byte{0x01, 0x00, 0x00, 0x00})
  g.Expect(h.Messages()).To(Equal([]driver.Message{driver.MessageStepOnScaleForReference}))

  // only the weight measurement completes the registration.
  waiting := h.Session.Step()
  h.Notify(standard.CharBodyCompositionMeasurement, []byte{0x04, 0x00, 0xc8, 0x00, 0x05})
  g.Expect(h.Session.Step()).To(Equal(waiting))

  h.Notify(standard.CharWeightMeasurement, []byte{0x04, 0x58, 0x1b, 0x05})
  g.Expect(h.Session.Step()).To(Equal(16))

  closeAndWait(g, h)

  // the body composition had no weight and was dropped when the weight arrived.
  ms := h.Measurements()
  g.Expect(ms).To(HaveLen(1))
  g.Expect(ms[0].UserID).To(Equal(testUser.ID))
  g.Expect(ms[0].Weight).To(Equal(float32(35)))
}

func TestProfile_LowBattery(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1))
  h.Connect()

  h.Notify(standard.CharBatteryLevel, []byte{55})
  g.Expect(h.Messages()).To(BeEmpty())

  h.Notify(standard.CharBatteryLevel, []byte{9})
  g.Expect(h.Messages()).To(Equal([]driver.Message{driver.MessageLowBattery}))
}

func TestProfile_DropsTruncatedFrames(t *testing.T) {
  g := NewWithT(t)
  h := newHarness(t, registeredStore(1, 1))
  h.Connect()

  h.Notify(standard.CharWeightMeasurement, []byte{0x08, 0x58, 0x1b, 0x01})
  h.Notify(standard.CharBodyCompositionMeasurement, []byte{0x00})

  closeAndWait(g, h)
  g.Expect(h.Measurements()).To(BeEmpty())
}
