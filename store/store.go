// Package store keeps the local user profiles and the small set of integers drivers persist
// between connections (consent codes, scale indices).
package store

import (
  "sync"

  "github.com/robertof/go-scale-bridge/device"
)

type Store interface {
  Users() []device.User
  SelectedUser() (device.User, bool)
  Int(key string, def int) int
  SetInt(key string, v int) error
}

// Memory is a Store that does not outlive the process.
type Memory struct {
  mu sync.Mutex

  users []device.User
  selected int
  values map[string]int
}

func NewMemory(users []device.User, selectedID int) *Memory {
  return &Memory{
    users: users,
    selected: selectedID,
    values: make(map[string]int),
  }
}

func (m *Memory) Users() []device.User {
  m.mu.Lock()
  defer m.mu.Unlock()

  out := make([]device.User, len(m.users))
  copy(out, m.users)

  return out
}

func (m *Memory) SelectedUser() (device.User, bool) {
  m.mu.Lock()
  defer m.mu.Unlock()

  for _, u := range m.users {
    if u.ID == m.selected {
      return u, true
    }
  }

  return device.User{ID: m.selected}, false
}

func (m *Memory) Select(userID int) {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.selected = userID
}

func (m *Memory) Int(key string, def int) int {
  m.mu.Lock()
  defer m.mu.Unlock()

  if v, ok := m.values[key]; ok {
    return v
  }

  return def
}

func (m *Memory) SetInt(key string, v int) error {
  m.mu.Lock()
  defer m.mu.Unlock()

  m.values[key] = v

  return nil
}

func (m *Memory) snapshot() map[string]int {
  m.mu.Lock()
  defer m.mu.Unlock()

  out := make(map[string]int, len(m.values))
  for k, v := range m.values {
    out[k] = v
  }

  return out
}
