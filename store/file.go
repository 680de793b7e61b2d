package store

import (
  "fmt"
  "os"
  "path/filepath"

  "gopkg.in/yaml.v3"

  "github.com/robertof/go-scale-bridge/device"
)

type fileState struct {
  Values map[string]int `yaml:"values"`
}

// File is a Memory store whose values are written to a YAML state file on every change.
type File struct {
  *Memory
  path string
}

func OpenFile(path string, users []device.User, selectedID int) (*File, error) {
  f := &File{
    Memory: NewMemory(users, selectedID),
    path: path,
  }

  data, err := os.ReadFile(path)

  if os.IsNotExist(err) {
    return f, nil
  }

  if err != nil {
    return nil, fmt.Errorf("failed to read state file: %w", err)
  }

  var state fileState

  if err := yaml.Unmarshal(data, &state); err != nil {
    return nil, fmt.Errorf("failed to parse state file %q: %w", path, err)
  }

  for k, v := range state.Values {
    f.values[k] = v
  }

  return f, nil
}

func (f *File) SetInt(key string, v int) error {
  if err := f.Memory.SetInt(key, v); err != nil {
    return err
  }

  return f.save()
}

func (f *File) save() error {
  data, err := yaml.Marshal(fileState{Values: f.snapshot()})
  if err != nil {
    return fmt.Errorf("failed to encode state: %w", err)
  }

  if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
    return fmt.Errorf("failed to create state dir: %w", err)
  }

  tmp := f.path + ".tmp"

  if err := os.WriteFile(tmp, data, 0o600); err != nil {
    return fmt.Errorf("failed to write state file: %w", err)
  }

  if err := os.Rename(tmp, f.path); err != nil {
    return fmt.Errorf("failed to replace state file: %w", err)
  }

  return nil
}
