package device

import (
  "fmt"
  "strings"
  "time"
)

// UnknownUser marks a measurement the scale did not attribute to any known user.
const UnknownUser = -1

// Measurement is a decoded scale reading. Weight is in kg and always set on emitted
// measurements; the remaining fields are left at zero when the scale did not report them.
// Fat, Water and Muscle are percentages, Bone and LBM are in kg.
type Measurement struct {
  Timestamp time.Time
  UserID int

  Weight float32
  Fat float32
  Water float32
  Muscle float32
  Bone float32
  VisceralFat float32
  LBM float32
  BMI float32
  BMR float32
  AMR float32
  Impedance float32
}

func NewMeasurement() Measurement {
  return Measurement{
    UserID: UnknownUser,
  }
}

// Merge fills every unset field of m with the value from other.
func (m *Measurement) Merge(other Measurement) {
  if m.Timestamp.IsZero() {
    m.Timestamp = other.Timestamp
  }

  if m.UserID == UnknownUser {
    m.UserID = other.UserID
  }

  for _, f := range []struct{ dst *float32; src float32 }{
    {&m.Weight, other.Weight},
    {&m.Fat, other.Fat},
    {&m.Water, other.Water},
    {&m.Muscle, other.Muscle},
    {&m.Bone, other.Bone},
    {&m.VisceralFat, other.VisceralFat},
    {&m.LBM, other.LBM},
    {&m.BMI, other.BMI},
    {&m.BMR, other.BMR},
    {&m.AMR, other.AMR},
    {&m.Impedance, other.Impedance},
  } {
    if *f.dst == 0 {
      *f.dst = f.src
    }
  }
}

func (m Measurement) String() string {
  fields := []string{fmt.Sprintf("Weight=%.2fkg", m.Weight)}

  for _, f := range []struct{ name string; v float32 }{
    {"Fat", m.Fat},
    {"Water", m.Water},
    {"Muscle", m.Muscle},
    {"Bone", m.Bone},
    {"VisceralFat", m.VisceralFat},
    {"LBM", m.LBM},
    {"BMI", m.BMI},
    {"BMR", m.BMR},
    {"Impedance", m.Impedance},
  } {
    if f.v != 0 {
      fields = append(fields, fmt.Sprintf("%s=%.2f", f.name, f.v))
    }
  }

  ts := "now"
  if !m.Timestamp.IsZero() {
    ts = m.Timestamp.Format(time.RFC3339)
  }

  return fmt.Sprintf("Measurement[User=%d,Time=%s,%s]", m.UserID, ts, strings.Join(fields, ","))
}
