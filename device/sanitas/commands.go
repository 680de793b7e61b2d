package sanitas

import (
  "strconv"
  "strings"
  "time"
  "unicode"

  "github.com/pkg/errors"
  "golang.org/x/text/unicode/norm"

  "github.com/robertof/go-scale-bridge/codec"
  "github.com/robertof/go-scale-bridge/device"
)

// Low nibbles of the first byte of a frame.
const (
  nibbleInit = 0x06
  nibbleCommand = 0x07
  nibbleSetTime = 0x09
)

const (
  cmdSetUnit byte = 0x4d
  cmdScaleStatus byte = 0x4f
  cmdUserAdd byte = 0x31
  cmdUserList byte = 0x33
  cmdUserInfo byte = 0x34
  cmdUserDetails byte = 0x36
  cmdDoMeasurement byte = 0x40
  cmdGetSavedMeasurements byte = 0x41
  cmdSavedMeasurement byte = 0x42
  cmdDeleteSavedMeasurements byte = 0x43
  cmdWeightMeasurement byte = 0x58
  cmdMeasurement byte = 0x59
  cmdScaleAck byte = 0xf0
  cmdAppAck byte = 0xf1
)

// Scale side unit codes.
var unitCodes = map[device.Unit]byte{
  device.UnitKG: 1,
  device.UnitLB: 2,
  device.UnitST: 4,
}

// RemoteUser is a user stored on the scale, identified by a 64-bit id.
type RemoteUser struct {
  ID uint64
  Name string
  Year int
  LocalUserID int
  isNew bool
}

func encodeUserID(u *RemoteUser) []byte {
  if u == nil {
    return codec.PutUint64BE(0)
  }

  return codec.PutUint64BE(u.ID)
}

func decodeString(b []byte, off, n int) string {
  s := b[off : off+n]

  if i := strings.IndexByte(string(s), 0); i >= 0 {
    s = s[:i]
  }

  return string(s)
}

// ScaleName is the name a local user is stored under on the scale: accents removed, only
// letters and digits kept, upper case. Names with nothing left map to the user id.
func ScaleName(u device.User) string {
  var b strings.Builder

  for _, r := range norm.NFD.String(u.Name) {
    if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
      b.WriteRune(r)
    }
  }

  if b.Len() == 0 {
    return strconv.Itoa(u.ID)
  }

  return strings.ToUpper(b.String())
}

// kilograms decodes a weight in units of 50 g.
func kilograms(b []byte, off int) float32 {
  return float32(codec.Uint16BE(b, off)) * 50 / 1000
}

// percent decodes a value in units of 0.1 %.
func percent(b []byte, off int) float32 {
  return float32(codec.Uint16BE(b, off)) / 10
}

const measurementLength = 22

// DecodeMeasurement decodes a reassembled measurement record.
func DecodeMeasurement(b []byte) (device.Measurement, error) {
  if len(b) < measurementLength {
    return device.Measurement{}, errors.Wrapf(device.ErrInvalidData, "measurement of %d bytes", len(b))
  }

  m := device.NewMeasurement()
  m.Timestamp = time.Unix(int64(codec.Uint32BE(b, 0)), 0)
  m.Weight = kilograms(b, 4)
  m.Impedance = float32(codec.Uint16BE(b, 6))
  m.Fat = percent(b, 8)
  m.Water = percent(b, 10)
  m.Muscle = percent(b, 12)
  m.Bone = kilograms(b, 14)
  m.BMR = float32(codec.Uint16BE(b, 16))
  m.AMR = float32(codec.Uint16BE(b, 18))
  m.BMI = float32(codec.Uint16BE(b, 20)) / 10

  return m, nil
}
