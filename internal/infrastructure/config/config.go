package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. ROOMGATE_API_PORT.
const EnvPrefix = "ROOMGATE_"

// DefaultPath is used when ROOMGATE_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for RoomGate.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site        SiteConfig        `yaml:"site"`
	Database    DatabaseConfig    `yaml:"database"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	API         APIConfig         `yaml:"api"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
	Controllers ControllersConfig `yaml:"controllers"`
	Security    SecurityConfig    `yaml:"security"`
}

// SiteConfig identifies the property this gateway serves.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
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

	// QueueSize bounds events waiting to be published.
	QueueSize int `yaml:"queue_size"`

	// AcceptCommands subscribes to roomgate/command/+ for MQTT dispatch.
	AcceptCommands bool `yaml:"accept_commands"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	Output    string `yaml:"output"`
	AddSource bool   `yaml:"add_source"`
}

// ControllersConfig contains room-controller discovery and dispatch settings.
type ControllersConfig struct {
	// DiscoveryTimeout bounds one GET_IP_ADDRESS request.
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`

	// RefreshInterval is the sleep between background refresh passes.
	RefreshInterval time.Duration `yaml:"refresh_interval"`

	// RefreshSpacing is the pause between controllers within a pass.
	RefreshSpacing time.Duration `yaml:"refresh_spacing"`

	// WarmUpSpacing is the pause between controllers during start-up.
	WarmUpSpacing time.Duration `yaml:"warm_up_spacing"`

	// CommandTimeout applies when a caller gives no timeout.
	CommandTimeout time.Duration `yaml:"command_timeout"`

	// MaxPendingResolutions bounds concurrent background resolutions.
	MaxPendingResolutions int `yaml:"max_pending_resolutions"`

	// Acknowledgements overrides or extends the built-in acceptance phrases.
	// An empty phrase disables validation for that command kind.
	Acknowledgements map[string]string `yaml:"acknowledgements"`

	// Devices seeds the controller store on start-up. Rows already stored
	// are left as they are.
	Devices []DeviceConfig `yaml:"devices"`
}

// DeviceConfig describes one controller in the seed list.
type DeviceConfig struct {
	ID              string `yaml:"id"`
	Hostname        string `yaml:"hostname"`
	Port            int    `yaml:"port"`
	PinControllerID string `yaml:"pin_controller_id"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	APIKeys APIKeyConfig `yaml:"api_keys"`
}

// APIKeyConfig contains the static API key guarding the REST API.
type APIKeyConfig struct {
	// Enabled requires the key on every /api/v1 route except health.
	// External PIN routes require it regardless.
	Enabled bool   `yaml:"enabled"`
	Key     string `yaml:"key"`
}

// minAPIKeyLength is the shortest accepted API key.
const minAPIKeyLength = 16

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ROOMGATE_SECTION_KEY
// For example: ROOMGATE_DATABASE_PATH, ROOMGATE_API_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Path returns the config file location from ROOMGATE_CONFIG, or DefaultPath.
func Path() string {
	if v := os.Getenv(EnvPrefix + "CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "RoomGate",
		},
		Database: DatabaseConfig{
			Path:        "./data/roomgate.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "roomgate",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			QueueSize: 256,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodyBytes: 1 << 20,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Controllers: ControllersConfig{
			DiscoveryTimeout:      5 * time.Second,
			RefreshInterval:       60 * time.Second,
			RefreshSpacing:        time.Second,
			WarmUpSpacing:         500 * time.Millisecond,
			CommandTimeout:        3 * time.Second,
			MaxPendingResolutions: 16,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ROOMGATE_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	var errs []string

	setString := func(key string, dst *string) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(EnvPrefix + key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}

	// Database
	setString("DATABASE_PATH", &cfg.Database.Path)

	// MQTT
	setBool("MQTT_ENABLED", &cfg.MQTT.Enabled)
	setString("MQTT_HOST", &cfg.MQTT.Broker.Host)
	setInt("MQTT_PORT", &cfg.MQTT.Broker.Port)
	setString("MQTT_USERNAME", &cfg.MQTT.Auth.Username)
	setString("MQTT_PASSWORD", &cfg.MQTT.Auth.Password)

	// API
	setString("API_HOST", &cfg.API.Host)
	setInt("API_PORT", &cfg.API.Port)

	// InfluxDB
	setBool("INFLUXDB_ENABLED", &cfg.InfluxDB.Enabled)
	setString("INFLUXDB_URL", &cfg.InfluxDB.URL)
	setString("INFLUXDB_TOKEN", &cfg.InfluxDB.Token)

	// Logging
	setString("LOG_LEVEL", &cfg.Logging.Level)

	// Controllers
	setDuration("DISCOVERY_TIMEOUT", &cfg.Controllers.DiscoveryTimeout)
	setDuration("REFRESH_INTERVAL", &cfg.Controllers.RefreshInterval)

	// Security - the API key belongs in the environment, not the file
	setString("API_KEY", &cfg.Security.APIKeys.Key)

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.QueueSize < 1 {
		errs = append(errs, "mqtt.queue_size must be at least 1")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "" || c.InfluxDB.Org == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	errs = append(errs, c.Controllers.validate()...)

	// An enabled gate without a key would reject every protected request.
	if c.Security.APIKeys.Enabled && c.Security.APIKeys.Key == "" {
		errs = append(errs, "security.api_keys.key is required when api keys are enabled (set ROOMGATE_API_KEY)")
	}
	if c.Security.APIKeys.Key != "" && len(c.Security.APIKeys.Key) < minAPIKeyLength {
		errs = append(errs, fmt.Sprintf("security.api_keys.key must be at least %d characters", minAPIKeyLength))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c ControllersConfig) validate() []string {
	var errs []string

	if c.DiscoveryTimeout <= 0 {
		errs = append(errs, "controllers.discovery_timeout must be positive")
	}
	if c.RefreshInterval <= 0 {
		errs = append(errs, "controllers.refresh_interval must be positive")
	}
	if c.RefreshSpacing < 0 || c.WarmUpSpacing < 0 {
		errs = append(errs, "controllers spacing values must not be negative")
	}
	if c.CommandTimeout <= 0 {
		errs = append(errs, "controllers.command_timeout must be positive")
	}
	if c.MaxPendingResolutions < 1 {
		errs = append(errs, "controllers.max_pending_resolutions must be at least 1")
	}

	seen := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Sprintf("controllers.devices[%d].id is required", i))
		case seen[d.ID]:
			errs = append(errs, fmt.Sprintf("controllers.devices[%d].id %q is duplicated", i, d.ID))
		}
		seen[d.ID] = true

		if d.Hostname == "" {
			errs = append(errs, fmt.Sprintf("controllers.devices[%d].hostname is required", i))
		}
		if d.Port < 1 || d.Port > 65535 {
			errs = append(errs, fmt.Sprintf("controllers.devices[%d].port must be between 1 and 65535", i))
		}
	}

	return errs
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
