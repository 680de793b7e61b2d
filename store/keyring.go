package store

import (
  "errors"
  "fmt"
  "strconv"
  "strings"

  "github.com/99designs/keyring"
  "github.com/rs/zerolog/log"
)

// Secured keeps consent codes in a keyring, as they are what authorizes reading a user's
// data off the scale. Every other key goes to the wrapped Store.
type Secured struct {
  Store
  ring keyring.Keyring
}

func WithKeyring(s Store, ring keyring.Keyring) *Secured {
  return &Secured{Store: s, ring: ring}
}

// OpenKeyring opens the system keyring, falling back to an encrypted file in fileDir.
func OpenKeyring(serviceName, fileDir string, password string) (keyring.Keyring, error) {
  ring, err := keyring.Open(keyring.Config{
    ServiceName: serviceName,
    FileDir: fileDir,
    FilePasswordFunc: keyring.FixedStringPrompt(password),
    KeychainTrustApplication: true,
  })

  if err != nil {
    return nil, fmt.Errorf("failed to open keyring: %w", err)
  }

  return ring, nil
}

func (s *Secured) Int(key string, def int) int {
  if !strings.HasPrefix(key, keyConsentCode) {
    return s.Store.Int(key, def)
  }

  item, err := s.ring.Get(key)

  if errors.Is(err, keyring.ErrKeyNotFound) {
    return def
  }

  if err != nil {
    log.Warn().Err(err).Str("Key", key).Msg("store: keyring lookup failed")
    return def
  }

  v, err := strconv.Atoi(string(item.Data))

  if err != nil {
    log.Warn().Err(err).Str("Key", key).Msg("store: keyring holds a non-numeric value")
    return def
  }

  return v
}

func (s *Secured) SetInt(key string, v int) error {
  if !strings.HasPrefix(key, keyConsentCode) {
    return s.Store.SetInt(key, v)
  }

  return s.ring.Set(keyring.Item{
    Key: key,
    Data: []byte(strconv.Itoa(v)),
    Label: "scale consent code",
  })
}
