package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Hardware  HardwareConfig  `yaml:"hardware"`
	Codes     CodesConfig     `yaml:"codes"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port                 int     `yaml:"port"`
	RateLimitPerSec      float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst       int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds      int     `yaml:"cache_ttl_seconds"`
	RequireDeliveryPIN   *bool   `yaml:"require_delivery_pin"`
	MaxFailedPickups     int     `yaml:"max_failed_pickups"`
	PickupLockoutSeconds int     `yaml:"pickup_lockout_seconds"`
}

// DeliveryPINRequired reports whether delivery-only endpoints demand a PIN header.
// Unset means required.
func (s ServerConfig) DeliveryPINRequired() bool {
	return s.RequireDeliveryPIN == nil || *s.RequireDeliveryPIN
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // sqlite or postgres
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
	DefaultDeliveryUser    string `yaml:"default_delivery_user"`
	DefaultDeliveryPIN     string `yaml:"default_delivery_pin"`
}

// HardwareConfig describes the locker fleet and how it is wired.
type HardwareConfig struct {
	// Simulate skips real hardware entirely and drives the in-memory simulator.
	Simulate bool `yaml:"simulate"`
	// FleetSize is the number of lockers, numbered 1..FleetSize.
	FleetSize int `yaml:"fleet_size"`
	// DirectLockers is the size of the contiguous block (starting at locker 1)
	// wired to dedicated GPIO lines. The remainder sits on the port expander.
	DirectLockers int `yaml:"direct_lockers"`
	// BCM pin numbers, indexed by position in the direct block. A sensor
	// table shorter than the actuator table leaves the trailing lockers
	// without a door sensor.
	DirectActuatorPins []int          `yaml:"direct_actuator_pins"`
	DirectSensorPins   []int          `yaml:"direct_sensor_pins"`
	DwellMillis        int            `yaml:"dwell_ms"`
	Dwell              time.Duration  `yaml:"-"`
	Expander           ExpanderConfig `yaml:"expander"`
}

// ExpanderConfig locates the two MCP23017 chips on the I2C bus.
type ExpanderConfig struct {
	Bus           string `yaml:"bus"` // empty opens the first available bus
	RelayAddress  uint16 `yaml:"relay_address"`
	SensorAddress uint16 `yaml:"sensor_address"`
}

// CodesConfig controls one-time code generation.
type CodesConfig struct {
	Length   int           `yaml:"length"`
	TTLHours int           `yaml:"ttl_hours"`
	TTL      time.Duration `yaml:"-"`
}

// ReconcileConfig controls the background door-state reconciliation.
type ReconcileConfig struct {
	IntervalSeconds     int           `yaml:"interval_seconds"`
	Interval            time.Duration `yaml:"-"`
	WatchTimeoutSeconds int           `yaml:"watch_timeout_seconds"`
	WatchTimeout        time.Duration `yaml:"-"`
	WatchPollMillis     int           `yaml:"watch_poll_ms"`
	WatchPoll           time.Duration `yaml:"-"`
	Workers             int           `yaml:"workers"`
}

var (
	defaultActuatorPins = []int{4, 5, 6, 12, 13, 16, 17, 18, 19, 20, 21, 22, 23, 24, 25, 26}
	defaultSensorPins   = []int{27, 7, 8, 9, 10, 11, 14, 15}
)

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	return &cfg, nil
}

// Default returns a configuration with every default applied, suitable for
// tests and for running the simulator without a config file.
func Default() *Config {
	cfg := &Config{Hardware: HardwareConfig{Simulate: true}}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero or invalid values and derives durations.
func (cfg *Config) ApplyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	if cfg.Server.MaxFailedPickups <= 0 {
		cfg.Server.MaxFailedPickups = 5
	}
	if cfg.Server.PickupLockoutSeconds <= 0 {
		cfg.Server.PickupLockoutSeconds = 300
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	cfg.Database.Driver = strings.ToLower(cfg.Database.Driver)
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "./data/smartlocker.db"
	}
	if cfg.Database.DefaultDeliveryUser == "" {
		cfg.Database.DefaultDeliveryUser = "Admin"
	}
	if cfg.Database.DefaultDeliveryPIN == "" {
		cfg.Database.DefaultDeliveryPIN = "1234"
	}

	hw := &cfg.Hardware
	if hw.FleetSize <= 0 {
		hw.FleetSize = 32
	}
	if hw.DirectActuatorPins == nil {
		hw.DirectActuatorPins = append([]int(nil), defaultActuatorPins...)
	}
	if hw.DirectSensorPins == nil {
		hw.DirectSensorPins = append([]int(nil), defaultSensorPins...)
	}
	if hw.DirectLockers < 0 || hw.DirectLockers > len(hw.DirectActuatorPins) {
		slog.Warn("hardware.direct_lockers exceeds the actuator pin table; clamping",
			"direct_lockers", hw.DirectLockers, "pins", len(hw.DirectActuatorPins))
		hw.DirectLockers = len(hw.DirectActuatorPins)
	}
	if hw.DirectLockers == 0 {
		hw.DirectLockers = len(hw.DirectActuatorPins)
	}
	hw.DirectLockers = min(hw.DirectLockers, hw.FleetSize)
	if hw.DwellMillis <= 0 {
		hw.DwellMillis = 1000
	}
	hw.Dwell = time.Duration(hw.DwellMillis) * time.Millisecond
	if hw.Expander.RelayAddress == 0 {
		hw.Expander.RelayAddress = 0x20
	}
	if hw.Expander.SensorAddress == 0 {
		hw.Expander.SensorAddress = 0x21
	}

	if cfg.Codes.Length <= 0 {
		cfg.Codes.Length = 6
	}
	if cfg.Codes.TTLHours <= 0 {
		cfg.Codes.TTLHours = 72
	}
	cfg.Codes.TTL = time.Duration(cfg.Codes.TTLHours) * time.Hour

	rc := &cfg.Reconcile
	if rc.IntervalSeconds <= 0 {
		rc.IntervalSeconds = 30
	}
	rc.Interval = time.Duration(rc.IntervalSeconds) * time.Second
	if rc.WatchTimeoutSeconds <= 0 {
		rc.WatchTimeoutSeconds = 120
	}
	rc.WatchTimeout = time.Duration(rc.WatchTimeoutSeconds) * time.Second
	if rc.WatchPollMillis <= 0 {
		rc.WatchPollMillis = 500
	}
	rc.WatchPoll = time.Duration(rc.WatchPollMillis) * time.Millisecond
	if rc.Workers <= 0 {
		slog.Warn("reconcile.workers is not set or invalid; defaulting to 2")
		rc.Workers = 2
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}
