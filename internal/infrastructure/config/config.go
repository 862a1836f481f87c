package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for gpustated.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Controller ControllerConfig `yaml:"controller"`
	Logging    LoggingConfig    `yaml:"logging"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Journal    JournalConfig    `yaml:"journal"`
}

// ControllerConfig contains the control-policy parameters. They are fixed
// for the life of the process.
type ControllerConfig struct {
	// DeviceIDs selects the canonical device indices to manage.
	// Empty means manage every GPU found.
	DeviceIDs []int `yaml:"device_ids"`

	// IterationsBeforeSwitch is the hysteresis threshold: the number of
	// consecutive idle ticks a device may spend in the high band before it
	// is demoted.
	IterationsBeforeSwitch uint `yaml:"iterations_before_switch"`

	// PerformanceStateHigh and PerformanceStateLow are the discrete
	// performance states forced for the two bands.
	PerformanceStateHigh uint32 `yaml:"performance_state_high"`
	PerformanceStateLow  uint32 `yaml:"performance_state_low"`

	// Explicit clocks (MHz) for the override path. Zero means auto.
	ClockMemHigh  uint32 `yaml:"clock_mem_high"`
	ClockCoreHigh uint32 `yaml:"clock_core_high"`
	ClockMemLow   uint32 `yaml:"clock_mem_low"`
	ClockCoreLow  uint32 `yaml:"clock_core_low"`

	// FallbackClocks enables clock control when performance-state control
	// is rejected.
	FallbackClocks bool `yaml:"fallback_clocks"`

	// SleepIntervalMS is the pause between monitoring ticks, in
	// milliseconds.
	SleepIntervalMS int `yaml:"sleep_interval_ms"`

	// TemperatureThreshold is the thermal ceiling in degrees Celsius.
	TemperatureThreshold uint32 `yaml:"temperature_threshold"`
}

// PollInterval returns the tick interval as a Duration.
func (c ControllerConfig) PollInterval() time.Duration {
	return time.Duration(c.SleepIntervalMS) * time.Millisecond
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// MQTTConfig contains MQTT broker connection settings. The broker is
// optional; when disabled no status events are published.
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

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// JournalConfig contains settings for the SQLite transition journal.
type JournalConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is: defaults, then YAML file values, then GPUSTATED_*
// environment variables, then validation.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, already validated. Used when
// no config file exists; the defaults match the daemon's historical
// behaviour (30-tick hysteresis, p-states 16/8, 100 ms ticks, 80 °C
// ceiling, fallback enabled).
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with built-in defaults.
func defaultConfig() *Config {
	return &Config{
		Controller: ControllerConfig{
			IterationsBeforeSwitch: 30,
			PerformanceStateHigh:   16,
			PerformanceStateLow:    8,
			FallbackClocks:         true,
			SleepIntervalMS:        100,
			TemperatureThreshold:   80,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gpustated",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Org:           "gpustated",
			Bucket:        "gpu_metrics",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Journal: JournalConfig{
			Path:        "./data/gpustated.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
	}
}

// applyEnvOverrides applies GPUSTATED_* environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	// Logging
	if v := os.Getenv("GPUSTATED_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GPUSTATED_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}

	// Controller
	if v := os.Getenv("GPUSTATED_TEMPERATURE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Controller.TemperatureThreshold = uint32(n)
		}
	}
	if v := os.Getenv("GPUSTATED_SLEEP_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Controller.SleepIntervalMS = n
		}
	}

	// MQTT
	if v := os.Getenv("GPUSTATED_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("GPUSTATED_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("GPUSTATED_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("GPUSTATED_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("GPUSTATED_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Journal
	if v := os.Getenv("GPUSTATED_JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Controller.SleepIntervalMS < 1 {
		errs = append(errs, "controller.sleep_interval_ms must be at least 1")
	}
	if c.Controller.PerformanceStateHigh > 16 {
		errs = append(errs, "controller.performance_state_high must be between 0 and 16")
	}
	if c.Controller.PerformanceStateLow > 16 {
		errs = append(errs, "controller.performance_state_low must be between 0 and 16")
	}
	for _, id := range c.Controller.DeviceIDs {
		if id < 0 {
			errs = append(errs, fmt.Sprintf("controller.device_ids contains negative id %d", id))
			break
		}
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Token == "" {
			errs = append(errs, "influxdb.token is required when influxdb is enabled (set GPUSTATED_INFLUXDB_TOKEN)")
		}
	}

	if c.Journal.Enabled && c.Journal.Path == "" {
		errs = append(errs, "journal.path is required when the journal is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
