package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for manipd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	Serial      SerialConfig      `yaml:"serial"`
	Manipulator ManipulatorConfig `yaml:"manipulator"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// DeviceConfig identifies the manipulator this daemon controls.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// SerialConfig contains serial link settings for the controller connection.
type SerialConfig struct {
	// Port is the serial port identifier (e.g. "/dev/ttyUSB0", "COM4").
	Port string `yaml:"port"`

	// Baud is the link baud rate. The PatchStar controller runs at 9600.
	Baud int `yaml:"baud"`

	// ReadTimeout is the reply timeout in milliseconds.
	ReadTimeout int `yaml:"read_timeout"`
}

// ManipulatorConfig contains device geometry and capability settings.
type ManipulatorConfig struct {
	// Scale is the per-axis conversion factor in metres per raw device unit.
	// The controller reports micrometre-resolution counts at 1e-7 m each.
	Scale [3]float64 `yaml:"scale"`

	// Capabilities optionally overrides the default capability descriptor.
	Capabilities *CapabilitiesConfig `yaml:"capabilities"`
}

// CapabilitiesConfig describes per-axis device capabilities.
type CapabilitiesConfig struct {
	GetPos [3]bool `yaml:"get_pos"`
	SetPos [3]bool `yaml:"set_pos"`
	Limits [3]bool `yaml:"limits"`
}

// MonitorConfig contains position monitor polling settings.
type MonitorConfig struct {
	// Interval is the idle polling ceiling in milliseconds. The monitor backs
	// off toward this value while the manipulator is stationary.
	Interval int `yaml:"interval"`

	// Floor is the minimum polling interval in milliseconds, used immediately
	// after a position change is detected.
	Floor int `yaml:"floor"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for position telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MANIPD_SECTION_KEY
// For example: MANIPD_SERIAL_PORT, MANIPD_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "patchstar-01",
			Name: "PatchStar",
		},
		Serial: SerialConfig{
			Baud:        9600,
			ReadTimeout: 5000,
		},
		Manipulator: ManipulatorConfig{
			Scale: [3]float64{1e-7, 1e-7, 1e-7},
		},
		Monitor: MonitorConfig{
			Interval: 300,
			Floor:    100,
		},
		Database: DatabaseConfig{
			Path:        "./data/manipd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Enabled: true,
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "manipd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MANIPD_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Serial
	if v := os.Getenv("MANIPD_SERIAL_PORT"); v != "" {
		cfg.Serial.Port = v
	}
	if v := os.Getenv("MANIPD_SERIAL_BAUD"); v != "" {
		if baud, err := strconv.Atoi(v); err == nil {
			cfg.Serial.Baud = baud
		}
	}

	// Database
	if v := os.Getenv("MANIPD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("MANIPD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("MANIPD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("MANIPD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("MANIPD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Device validation
	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	// Serial validation
	if c.Serial.Port == "" {
		errs = append(errs, "serial.port is required (set MANIPD_SERIAL_PORT environment variable)")
	}
	if c.Serial.Baud <= 0 {
		errs = append(errs, "serial.baud must be positive")
	}
	if c.Serial.ReadTimeout <= 0 {
		errs = append(errs, "serial.read_timeout must be positive")
	}

	// Manipulator validation
	for i, s := range c.Manipulator.Scale {
		if s <= 0 {
			errs = append(errs, fmt.Sprintf("manipulator.scale[%d] must be positive", i))
		}
	}

	// Monitor validation
	if c.Monitor.Floor <= 0 {
		errs = append(errs, "monitor.floor must be positive")
	}
	if c.Monitor.Interval < c.Monitor.Floor {
		errs = append(errs, "monitor.interval must be at least monitor.floor")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// SerialReadTimeout returns the serial reply timeout as a Duration.
func (c *Config) SerialReadTimeout() time.Duration {
	return time.Duration(c.Serial.ReadTimeout) * time.Millisecond
}

// MonitorInterval returns the monitor polling ceiling as a Duration.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Monitor.Interval) * time.Millisecond
}

// MonitorFloor returns the monitor polling floor as a Duration.
func (c *Config) MonitorFloor() time.Duration {
	return time.Duration(c.Monitor.Floor) * time.Millisecond
}
