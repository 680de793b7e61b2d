package device

import (
  "testing"

  . "github.com/onsi/gomega"
  "gopkg.in/yaml.v3"
)

func TestEnums_String(t *testing.T) {
  tests := []struct {
    in interface{ String() string }
    want string
  }{
    {GenderFemale, "female"},
    {Gender(9), "gender(9)"},
    {UnitST, "st"},
    {Unit(7), "unit(7)"},
    {ActivityHeavy, "heavy"},
    {ActivityLevel(12), "activity(12)"},
  }

  for _, tt := range tests {
    if got := tt.in.String(); got != tt.want {
      t.Fatalf("String(): got %q, wanted %q", got, tt.want)
    }
  }
}

func TestEnums_MarshalText(t *testing.T) {
  g := NewWithT(t)

  out, err := yaml.Marshal(map[string]any{"gender": GenderMale, "unit": UnitLB, "activity": ActivityMild})
  g.Expect(err).NotTo(HaveOccurred())
  g.Expect(string(out)).To(Equal("activity: mild\ngender: male\nunit: lb\n"))

  _, err = Gender(4).MarshalText()
  g.Expect(err).To(MatchError(ContainSubstring("unknown gender")))

  _, err = Unit(4).MarshalText()
  g.Expect(err).To(MatchError(ContainSubstring("unknown unit")))

  _, err = ActivityLevel(9).MarshalText()
  g.Expect(err).To(MatchError(ContainSubstring("unknown activity level")))
}
