package standard

import (
  "fmt"
  "strconv"
  "strings"
  "time"

  "github.com/go-ble/ble"
  "github.com/pkg/errors"
  "golang.org/x/exp/rand"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/driver"
  "github.com/robertof/go-scale-bridge/store"
)

const (
  userListEntry = 0x00
  userListDone = 0x01
  userListEmpty = 0x02
)

// ScaleUser is a user slot as reported by the scale's vendor user list.
type ScaleUser struct {
  Index int
  Initials string
  Birthday time.Time
  Height int
  Gender device.Gender
  ActivityLevel device.ActivityLevel
}

func (u ScaleUser) String() string {
  initials := u.Initials
  if initials == "" {
    initials = fmt.Sprintf("P%02d", u.Index)
  }

  return fmt.Sprintf("%s %v %dcm %s activity:%d",
    initials, u.Gender, u.Height, u.Birthday.Format("2006-01-02"), int(u.ActivityLevel)+1)
}

func randomConsentCode() int {
  return rand.Intn(10000)
}

// ParseScaleUser decodes one entry of a vendor user list.
func ParseScaleUser(b []byte) (ScaleUser, error) {
  if len(b) < 12 {
    return ScaleUser{}, errors.Wrapf(device.ErrInvalidData, "user list entry of %d bytes", len(b))
  }

  u := ScaleUser{
    Index: int(b[1]),
    Birthday: time.Date(int(codec.Uint16LE(b, 5)), time.Month(b[7]), int(b[8]), 0, 0, 0, 0, time.Local),
    Height: int(b[9]),
  }

  if b[10] != 0 {
    u.Gender = device.GenderFemale
  }

  if b[2] != 0xff || b[3] != 0xff || b[4] != 0xff {
    u.Initials = strings.TrimRight(string(b[2:5]), " \x00")
  }

  if b[11] > 0 {
    u.ActivityLevel = device.ActivityLevel(b[11] - 1)
  }

  return u, nil
}

// HandleUserList processes one notification of the vendor user list.
func (p *Profile) HandleUserList(char ble.UUID, value []byte) {
  s := p.s

  if len(value) == 0 {
    s.DropFrame(char, value, device.ErrInvalidData)
    return
  }

  user := s.SelectedUser()
  st := s.Store()

  switch value[0] {
  case userListEmpty:
    s.Log().Info().Msg("standard: scale has no users")
    p.registerFromScratch(user.ID)
  case userListDone:
    if len(p.scaleUsers) == 0 {
      p.registerFromScratch(user.ID)
      return
    }

    if store.ScaleIndex(st, user.ID) == -1 || store.ConsentCode(st, user.ID) == -1 {
      p.chooseExistingScaleUser(user.ID)
      return
    }

    s.Resume()
  case userListEntry:
    u, err := ParseScaleUser(value)
    if err != nil {
      s.DropFrame(char, value, err)
      return
    }

    s.Log().Info().Stringer("ScaleUser", u).Msg("standard: scale user")
    p.scaleUsers = append(p.scaleUsers, u)

    if len(p.scaleUsers) == p.vendor.MaxUserCount() {
      if store.ScaleIndex(st, user.ID) == -1 || store.ConsentCode(st, user.ID) == -1 {
        p.chooseExistingScaleUser(user.ID)
        return
      }

      s.Resume()
    }
  default:
    s.Log().Info().Str("Value", codec.Hex(value)).Msg("standard: unexpected user list value")
  }
}

func (p *Profile) ScaleUsers() []ScaleUser {
  return p.scaleUsers
}

func (p *Profile) registerFromScratch(userID int) {
  st := p.s.Store()

  store.SetConsentCode(st, userID, -1)
  store.SetScaleIndex(st, userID, -1)

  p.s.JumpTo(stepRegisterNewScaleUser)
  p.s.Resume()
}

func (p *Profile) chooseExistingScaleUser(userID int) {
  choices := make([]driver.ScaleUserChoice, 0, len(p.scaleUsers)+1)

  for _, u := range p.scaleUsers {
    choices = append(choices, driver.ScaleUserChoice{Index: u.Index, Label: u.String()})
  }

  if len(p.scaleUsers) < p.vendor.MaxUserCount() {
    choices = append(choices, driver.ScaleUserChoice{Index: -1, Label: "create new user on scale"})
  }

  p.s.Log().Info().Int("UserID", userID).Int("Choices", len(choices)).Msg("standard: asking which scale user to use")
  p.s.RequestInteraction(driver.Interaction{
    Kind: driver.InteractionChooseScaleUser,
    UserID: userID,
    ScaleIndex: -1,
    Choices: choices,
  })
}

// Initials derives the three letter tag shown on the scale display from a user name.
func Initials(name string, userID int) string {
  parts := strings.Fields(name)

  if len(parts) == 0 {
    return "P" + strconv.Itoa(userID) + " "
  }

  var b strings.Builder

  for _, p := range parts {
    if b.Len() == 3 {
      break
    }

    b.WriteString(string([]rune(p)[:1]))
  }

  out := b.String()
  for len(out) < 3 {
    out += " "
  }

  return strings.ToUpper(out)
}

// reconnectOrSetStep moves a running session to requested, unless it is already before min.
func (p *Profile) reconnectOrSetStep(requested, min int) error {
  if p.s.Closed() {
    return driver.ErrReconnectRequired
  }

  if p.s.Step() > min {
    p.s.JumpTo(requested)
  }

  p.s.Resume()

  return nil
}

func (p *Profile) SelectScaleUserIndex(appUserID, scaleIndex int) error {
  p.s.Log().Info().Int("UserID", appUserID).Int("ScaleIndex", scaleIndex).Msg("standard: scale user selected")

  if scaleIndex == -1 {
    return p.reconnectOrSetStep(stepRegisterNewScaleUser, stepRegisterNewScaleUser)
  }

  st := p.s.Store()
  store.SetScaleIndex(st, appUserID, scaleIndex)

  if store.ConsentCode(st, appUserID) == -1 {
    p.requestConsent(appUserID, scaleIndex)
    return nil
  }

  return p.reconnectOrSetStep(stepSelectScaleUser, stepRequestVendorUserList)
}

func (p *Profile) SetScaleUserConsent(appUserID, consent int) error {
  p.s.Log().Info().Int("UserID", appUserID).Msg("standard: consent code entered")
  store.SetConsentCode(p.s.Store(), appUserID, consent)

  if consent == -1 {
    return p.reconnectOrSetStep(stepRequestVendorUserList, stepRequestVendorUserList)
  }

  return p.reconnectOrSetStep(stepSelectScaleUser, stepRequestVendorUserList)
}
