package device

import (
  "fmt"
  "strconv"
  "strings"
  "time"
)

type Gender uint8

const (
  GenderMale Gender = iota
  GenderFemale
)

func (g Gender) String() string {
  switch g {
  case GenderMale:
    return "male"
  case GenderFemale:
    return "female"
  default:
    return "gender(" + strconv.Itoa(int(g)) + ")"
  }
}

func (g *Gender) UnmarshalText(b []byte) error {
  switch strings.ToLower(string(b)) {
  case "male", "m":
    *g = GenderMale
  case "female", "f":
    *g = GenderFemale
  default:
    return fmt.Errorf("unknown gender %q", b)
  }

  return nil
}

func (g Gender) MarshalText() ([]byte, error) {
  if g > GenderFemale {
    return nil, fmt.Errorf("unknown gender %d", g)
  }

  return []byte(g.String()), nil
}

type ActivityLevel uint8

const (
  ActivitySedentary ActivityLevel = iota
  ActivityMild
  ActivityModerate
  ActivityHeavy
  ActivityExtreme
)

var activityLevelNames = []string{"sedentary", "mild", "moderate", "heavy", "extreme"}

func (a ActivityLevel) String() string {
  if int(a) < len(activityLevelNames) {
    return activityLevelNames[a]
  }

  return "activity(" + strconv.Itoa(int(a)) + ")"
}

func (a *ActivityLevel) UnmarshalText(b []byte) error {
  for i, name := range activityLevelNames {
    if strings.EqualFold(name, string(b)) {
      *a = ActivityLevel(i)
      return nil
    }
  }

  return fmt.Errorf("unknown activity level %q", b)
}

func (a ActivityLevel) MarshalText() ([]byte, error) {
  if int(a) >= len(activityLevelNames) {
    return nil, fmt.Errorf("unknown activity level %d", a)
  }

  return []byte(a.String()), nil
}

type Unit uint8

const (
  UnitKG Unit = iota
  UnitLB
  UnitST
)

func (u Unit) String() string {
  switch u {
  case UnitKG:
    return "kg"
  case UnitLB:
    return "lb"
  case UnitST:
    return "st"
  default:
    return "unit(" + strconv.Itoa(int(u)) + ")"
  }
}

func (u *Unit) UnmarshalText(b []byte) error {
  switch strings.ToLower(string(b)) {
  case "kg":
    *u = UnitKG
  case "lb":
    *u = UnitLB
  case "st":
    *u = UnitST
  default:
    return fmt.Errorf("unknown unit %q", b)
  }

  return nil
}

func (u Unit) MarshalText() ([]byte, error) {
  if u > UnitST {
    return nil, fmt.Errorf("unknown unit %d", u)
  }

  return []byte(u.String()), nil
}

// User is a local person profile. Height is in cm, weights in kg.
type User struct {
  ID int
  Name string
  Birthday time.Time
  Gender Gender
  Height float32
  ActivityLevel ActivityLevel
  ScaleUnit Unit
  GoalWeight float32
  InitialWeight float32
}

func (u User) Age(at time.Time) int {
  age := at.Year() - u.Birthday.Year()

  if at.Month() < u.Birthday.Month() ||
     (at.Month() == u.Birthday.Month() && at.Day() < u.Birthday.Day()) {
    age--
  }

  return age
}

func (u User) String() string {
  return fmt.Sprintf("user[id=%d, name=%q]", u.ID, u.Name)
}
