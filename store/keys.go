package store

import (
  "strconv"

  "github.com/rs/zerolog/log"
  "golang.org/x/exp/rand"
)

const (
  keyConsentCode = "userConsentCode"
  keyScaleIndex = "userScaleIndex"
  keyUserIDFromScaleIndex = "userIdFromUserScaleIndex"
  keyUniqueNumber = "uniqueNumber"
)

func ConsentCodeKey(userID int) string {
  return keyConsentCode + strconv.Itoa(userID)
}

func ScaleIndexKey(userID int) string {
  return keyScaleIndex + strconv.Itoa(userID)
}

func UserIDFromScaleIndexKey(index int) string {
  return keyUserIDFromScaleIndex + strconv.Itoa(index)
}

func set(s Store, key string, v int) {
  if err := s.SetInt(key, v); err != nil {
    log.Error().Err(err).Str("Key", key).Int("Value", v).Msg("store: failed to persist value")
  }
}

// ConsentCode returns the consent code registered for userID on the scale, or -1.
func ConsentCode(s Store, userID int) int {
  return s.Int(ConsentCodeKey(userID), -1)
}

func SetConsentCode(s Store, userID, code int) {
  set(s, ConsentCodeKey(userID), code)
}

// ScaleIndex returns the scale-side user slot of userID, or -1.
func ScaleIndex(s Store, userID int) int {
  return s.Int(ScaleIndexKey(userID), -1)
}

// SetScaleIndex binds userID to a scale slot, dropping the reverse mapping of the slot it
// previously held. Passing -1 unbinds the user.
func SetScaleIndex(s Store, userID, index int) {
  if old := ScaleIndex(s, userID); old != -1 {
    set(s, UserIDFromScaleIndexKey(old), -1)
  }

  set(s, ScaleIndexKey(userID), index)

  if index != -1 {
    set(s, UserIDFromScaleIndexKey(index), userID)
  }
}

func UserIDFromScaleIndex(s Store, index int) int {
  return s.Int(UserIDFromScaleIndexKey(index), -1)
}

// UniqueNumber is a per-installation random number in [100, 65535] offset by the selected
// user id, used where a scale wants a 16-bit identity for the app user.
func UniqueNumber(s Store) int {
  n := s.Int(keyUniqueNumber, 0)

  if n == 0 {
    n = rand.Intn(65535-100+1) + 100
    set(s, keyUniqueNumber, n)
  }

  user, _ := s.SelectedUser()

  return n + user.ID
}
