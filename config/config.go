// Package config loads the YAML configuration of the bridge.
package config

import (
  "fmt"
  "net"
  "os"
  "path/filepath"
  "strings"
  "time"

  "gopkg.in/yaml.v3"

  "github.com/robertof/go-scale-bridge/ble"
  "github.com/robertof/go-scale-bridge/device"
  "github.com/robertof/go-scale-bridge/registry"
)

const birthdayLayout = "2006-01-02"

type Config struct {
  Bind string `yaml:"bind"`
  LogLevel string `yaml:"log_level"`
  Bluetooth BluetoothConfig `yaml:"bluetooth"`
  Collection CollectionConfig `yaml:"collection"`
  SelectedUser int `yaml:"selected_user"`
  Users []UserConfig `yaml:"users"`
  Scales []ScaleConfig `yaml:"scales"`
  // StateFile keeps the values scales hand out, such as scale indices and consent codes.
  StateFile string `yaml:"state_file"`
  Keyring KeyringConfig `yaml:"keyring"`
  AMQP AMQPConfig `yaml:"amqp"`
}

type BluetoothConfig struct {
  DeviceID int `yaml:"device_id"`
  ConnParams ble.ConnParams `yaml:"connection_params"`
  PersistConnections bool `yaml:"persist_connections"`
}

type CollectionConfig struct {
  Interval time.Duration `yaml:"interval"`
  ScanTimeout time.Duration `yaml:"scan_timeout"`
  ConnectTimeout time.Duration `yaml:"connect_timeout"`
  IdleTimeout time.Duration `yaml:"idle_timeout"`
  MaxRetries int `yaml:"max_retries"`
  Backoff time.Duration `yaml:"backoff"`
  BackoffLimit time.Duration `yaml:"backoff_limit"`
  RegisterNewUsers bool `yaml:"register_new_users"`
}

type UserConfig struct {
  ID int `yaml:"id"`
  Name string `yaml:"name"`
  Birthday string `yaml:"birthday"` // YYYY-MM-DD
  Gender device.Gender `yaml:"gender"`
  Height float32 `yaml:"height"` // cm
  ActivityLevel device.ActivityLevel `yaml:"activity_level"`
  Unit device.Unit `yaml:"unit"`
  GoalWeight float32 `yaml:"goal_weight"`
  InitialWeight float32 `yaml:"initial_weight"`
  // ScaleIndex and ConsentCode answer the scale when it asks which of its users this is.
  ScaleIndex *int `yaml:"scale_index"`
  ConsentCode *int `yaml:"consent_code"`
}

type ScaleConfig struct {
  Name string `yaml:"name"`
  Addr string `yaml:"addr"`
  Driver string `yaml:"driver"`
  ActiveScan bool `yaml:"active_scan"`
}

type KeyringConfig struct {
  Enabled bool `yaml:"enabled"`
  Service string `yaml:"service"`
  // FileDir is used by the encrypted file backend when no system keyring is available.
  FileDir string `yaml:"file_dir"`
  PasswordEnv string `yaml:"password_env"`
}

type AMQPConfig struct {
  URL string `yaml:"url"`
  Exchange string `yaml:"exchange"`
  RoutingKey string `yaml:"routing_key"`
}

func (a AMQPConfig) Enabled() bool {
  return a.URL != ""
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
  home, err := os.UserHomeDir()
  if err != nil {
    return ""
  }

  return filepath.Join(home, ".config", "go-scale-bridge")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
  return filepath.Join(DefaultConfigDir(), "config.yaml")
}

func Default() *Config {
  return &Config{
    Bind: "localhost:9102",
    LogLevel: "info",
    Bluetooth: BluetoothConfig{
      ConnParams: ble.ConnParamsDefault,
      PersistConnections: false,
    },
    Collection: CollectionConfig{
      Interval: time.Second,
      ScanTimeout: 30 * time.Second,
      ConnectTimeout: 10 * time.Second,
      IdleTimeout: 60 * time.Second,
      MaxRetries: 2,
      Backoff: 500 * time.Millisecond,
      BackoffLimit: 10 * time.Second,
    },
    StateFile: filepath.Join(DefaultConfigDir(), "state.yaml"),
    Keyring: KeyringConfig{
      Service: "go-scale-bridge",
      FileDir: filepath.Join(DefaultConfigDir(), "keyring"),
      PasswordEnv: "SCALE_BRIDGE_KEYRING_PASSWORD",
    },
    AMQP: AMQPConfig{
      RoutingKey: "scale.measurements",
    },
  }
}

// Load reads and parses a YAML config file. Missing fields are filled with defaults.
func Load(path string) (*Config, error) {
  data, err := os.ReadFile(path)
  if err != nil {
    return nil, fmt.Errorf("reading config file: %w", err)
  }

  cfg := Default()
  if err := yaml.Unmarshal(data, cfg); err != nil {
    return nil, fmt.Errorf("parsing config file: %w", err)
  }

  cfg.StateFile = expandTilde(cfg.StateFile)
  cfg.Keyring.FileDir = expandTilde(cfg.Keyring.FileDir)

  return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
  if c.Bind == "" {
    return fmt.Errorf("bind must not be empty")
  }

  switch c.LogLevel {
  case "trace", "debug", "info", "warn", "error":
  default:
    return fmt.Errorf("log_level must be trace, debug, info, warn, or error, got %q", c.LogLevel)
  }

  if err := c.Bluetooth.ConnParams.Set(string(c.Bluetooth.ConnParams)); err != nil {
    return fmt.Errorf("bluetooth.connection_params: %w", err)
  }

  col := c.Collection
  if col.Interval < 0 || col.ScanTimeout < 0 || col.ConnectTimeout < 0 || col.IdleTimeout < 0 {
    return fmt.Errorf("collection timeouts must not be negative")
  }

  if col.MaxRetries < 0 {
    return fmt.Errorf("collection.max_retries must be >= 0")
  }

  ids := make(map[int]bool, len(c.Users))

  for i, u := range c.Users {
    if ids[u.ID] {
      return fmt.Errorf("users[%d]: duplicate id %d", i, u.ID)
    }

    ids[u.ID] = true

    if _, err := u.User(); err != nil {
      return fmt.Errorf("users[%d]: %w", i, err)
    }
  }

  if len(c.Users) > 0 && !ids[c.SelectedUser] {
    return fmt.Errorf("selected_user %d is not one of the configured users", c.SelectedUser)
  }

  for i, s := range c.Scales {
    if _, err := s.Scale(); err != nil {
      return fmt.Errorf("scales[%d]: %w", i, err)
    }
  }

  if c.AMQP.Enabled() && c.AMQP.Exchange == "" && c.AMQP.RoutingKey == "" {
    return fmt.Errorf("amqp needs an exchange or a routing_key")
  }

  if c.Keyring.Enabled && c.Keyring.Service == "" {
    return fmt.Errorf("keyring.service must not be empty")
  }

  return nil
}

// User converts the entry to the profile handed to drivers.
func (u UserConfig) User() (device.User, error) {
  if u.Height <= 0 {
    return device.User{}, fmt.Errorf("height must be > 0")
  }

  birthday, err := time.Parse(birthdayLayout, u.Birthday)
  if err != nil {
    return device.User{}, fmt.Errorf("birthday must be YYYY-MM-DD, got %q", u.Birthday)
  }

  name := u.Name
  if name == "" {
    name = fmt.Sprintf("user%d", u.ID)
  }

  return device.User{
    ID: u.ID,
    Name: name,
    Birthday: birthday,
    Gender: u.Gender,
    Height: u.Height,
    ActivityLevel: u.ActivityLevel,
    ScaleUnit: u.Unit,
    GoalWeight: u.GoalWeight,
    InitialWeight: u.InitialWeight,
  }, nil
}

// Scale converts the entry the same way a scale spec given on the command line is.
func (s ScaleConfig) Scale() (*device.Scale, error) {
  if _, err := net.ParseMAC(s.Addr); err != nil {
    return nil, fmt.Errorf("invalid addr %q", s.Addr)
  }

  if s.Driver != "" {
    if _, ok := registry.ByID(s.Driver); !ok {
      return nil, fmt.Errorf("unknown driver %q", s.Driver)
    }
  }

  spec := device.ScaleSpec{
    device.ScaleSpecFieldName: s.Name,
    device.ScaleSpecFieldAddress: s.Addr,
    device.ScaleSpecFieldDriver: s.Driver,
  }

  if s.ActiveScan {
    spec["active-scan"] = "yes"
  }

  return device.ScaleFromSpec(spec)
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
  if !strings.HasPrefix(path, "~") {
    return path
  }

  home, err := os.UserHomeDir()
  if err != nil {
    return path
  }

  return filepath.Join(home, path[1:])
}
