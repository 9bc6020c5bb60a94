package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the bridge configuration, read from YAML by Load.
type Config struct {
	Device      DeviceConfig      `yaml:"device"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	Transitions TransitionsConfig `yaml:"transitions"`
	Database    DatabaseConfig    `yaml:"database"`
	InfluxDB    InfluxDBConfig    `yaml:"influxdb"`
	API         APIConfig         `yaml:"api"`
	WebSocket   WebSocketConfig   `yaml:"websocket"`
	Logging     LoggingConfig     `yaml:"logging"`
	Security    SecurityConfig    `yaml:"security"`
}

// DeviceConfig contains the Venus device connection settings.
type DeviceConfig struct {
	// Host is the device's LAN address.
	Host string `yaml:"host"`

	// Port is the UDP port of the device's local API. Default: 30000
	Port int `yaml:"port"`

	// ID identifies the device in MQTT topics (typically its MAC address).
	ID string `yaml:"id"`

	// PollInterval is the time between poll cycles (seconds). Default: 60
	PollInterval int `yaml:"poll_interval"`

	// Timeout is the per-request timeout (seconds). Default: 10
	Timeout int `yaml:"timeout"`

	// RPCID is the component id sent in request params. Default: 0
	RPCID int `yaml:"rpc_id"`
}

// MQTTConfig contains MQTT broker connection and publish settings.
type MQTTConfig struct {
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	TopicPrefix string              `yaml:"topic_prefix"`
	QoS         int                 `yaml:"qos"`
	Retain      bool                `yaml:"retain"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
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

// TransitionsConfig contains mode transition timing (all values in seconds).
type TransitionsConfig struct {
	// AutoSettle is the wait after an AI mode command. Default: 10
	AutoSettle int `yaml:"auto_settle"`

	// ManualSettle is the wait after a manual mode command. Default: 5
	ManualSettle int `yaml:"manual_settle"`

	// VerifyRetry is the delay schedule for mode verification queries. Default: [5]
	VerifyRetry []int `yaml:"verify_retry"`

	// RestoreDelay is the wait before restoring manual mode. Default: 5
	RestoreDelay int `yaml:"restore_delay"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
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

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
	Panel    PanelConfig      `yaml:"panel"`
}

// PanelConfig controls the status dashboard served under /panel/.
type PanelConfig struct {
	Enabled bool `yaml:"enabled"`

	// Dir serves the dashboard from disk instead of the embedded copy.
	Dir string `yaml:"dir"`
}

// APITimeoutConfig contains HTTP timeout settings.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT token settings for the control API.
// An empty secret leaves the control endpoints unauthenticated.
type JWTConfig struct {
	Secret         string `yaml:"secret"`
	AccessTokenTTL int    `yaml:"access_token_ttl"`
}

// Load builds the configuration in three layers: defaults, then the YAML
// file at path, then VENUSBRIDGE_* environment variables. The result is
// validated before it is returned.
//
// Parameters:
//   - path: YAML file to read
//
// Returns:
//   - *Config: Validated configuration
//   - error: Read, parse or validation failure
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig holds the values used for anything the file leaves out.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Port:         30000,
			PollInterval: 60,
			Timeout:      10,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "venusbridge",
			},
			TopicPrefix: "marstek/venus",
			QoS:         1,
			Retain:      true,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Transitions: TransitionsConfig{
			AutoSettle:   10,
			ManualSettle: 5,
			VerifyRetry:  []int{5},
			RestoreDelay: 5,
		},
		Database: DatabaseConfig{
			Enabled:     true,
			Path:        "./data/venusbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			Panel: PanelConfig{Enabled: true},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL: 60,
			},
		},
	}
}

// envBinding maps a VENUSBRIDGE_* variable onto a config field.
type envBinding struct {
	name string
	set  func(cfg *Config, v string)
}

func envString(name string, field func(*Config) *string) envBinding {
	return envBinding{name, func(cfg *Config, v string) { *field(cfg) = v }}
}

// envInt ignores values that are not integers.
func envInt(name string, field func(*Config) *int) envBinding {
	return envBinding{name, func(cfg *Config, v string) {
		if n, err := strconv.Atoi(v); err == nil {
			*field(cfg) = n
		}
	}}
}

var envBindings = []envBinding{
	envString("VENUSBRIDGE_DEVICE_HOST", func(c *Config) *string { return &c.Device.Host }),
	envString("VENUSBRIDGE_DEVICE_ID", func(c *Config) *string { return &c.Device.ID }),
	envString("VENUSBRIDGE_MQTT_HOST", func(c *Config) *string { return &c.MQTT.Broker.Host }),
	envInt("VENUSBRIDGE_MQTT_PORT", func(c *Config) *int { return &c.MQTT.Broker.Port }),
	envString("VENUSBRIDGE_MQTT_USERNAME", func(c *Config) *string { return &c.MQTT.Auth.Username }),
	envString("VENUSBRIDGE_MQTT_PASSWORD", func(c *Config) *string { return &c.MQTT.Auth.Password }),
	envString("VENUSBRIDGE_DATABASE_PATH", func(c *Config) *string { return &c.Database.Path }),
	envString("VENUSBRIDGE_INFLUXDB_TOKEN", func(c *Config) *string { return &c.InfluxDB.Token }),
	envString("VENUSBRIDGE_LOG_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	envString("VENUSBRIDGE_JWT_SECRET", func(c *Config) *string { return &c.Security.JWT.Secret }),
}

// applyEnvOverrides copies every non-empty bound variable into cfg.
func applyEnvOverrides(cfg *Config) {
	for _, b := range envBindings {
		if v := os.Getenv(b.name); v != "" {
			b.set(cfg, v)
		}
	}
}

// minJWTSecretLength is the shortest accepted HS256 secret. An empty
// secret turns auth off.
const minJWTSecretLength = 32

func validPort(p int) bool { return p >= 1 && p <= 65535 }

// Validate reports every problem in one error.
func (c *Config) Validate() error {
	var problems []string
	check := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	check(c.Device.Host != "", "device.host is required")
	check(c.Device.ID != "", "device.id is required")
	check(!strings.ContainsAny(c.Device.ID, topicReserved+"/"), "device.id must not contain +, # or /")
	check(validPort(c.Device.Port), "device.port must be between 1 and 65535")
	check(c.Device.PollInterval > 0, "device.poll_interval must be positive")
	check(c.Device.Timeout > 0, "device.timeout must be positive")

	check(c.MQTT.Broker.Host != "", "mqtt.broker.host is required")
	check(validPort(c.MQTT.Broker.Port), "mqtt.broker.port must be between 1 and 65535")
	check(c.MQTT.QoS >= 0 && c.MQTT.QoS <= 2, "mqtt.qos must be 0, 1, or 2")
	check(strings.Trim(c.MQTT.TopicPrefix, "/") != "", "mqtt.topic_prefix is required")
	check(validTopicPrefix(c.MQTT.TopicPrefix), "mqtt.topic_prefix must not contain wildcards or empty levels")

	t := c.Transitions
	check(t.AutoSettle >= 0 && t.ManualSettle >= 0 && t.RestoreDelay >= 0,
		"transitions delays must not be negative")
	check(!slices.ContainsFunc(t.VerifyRetry, func(d int) bool { return d < 0 }),
		"transitions.verify_retry delays must not be negative")

	check(!c.Database.Enabled || c.Database.Path != "", "database.path is required when database is enabled")
	check(!c.InfluxDB.Enabled || c.InfluxDB.URL != "", "influxdb.url is required when influxdb is enabled")
	check(!c.API.Enabled || validPort(c.API.Port), "api.port must be between 1 and 65535")
	check(c.Security.JWT.Secret == "" || len(c.Security.JWT.Secret) >= minJWTSecretLength,
		"security.jwt.secret must be at least 32 characters")

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// topicReserved holds the MQTT wildcard characters, which are not allowed
// in published topic names.
const topicReserved = "+#"

// validTopicPrefix reports whether prefix, once its outer slashes are
// trimmed, is a run of non-empty topic levels free of wildcards. An empty
// prefix is reported by the required check instead.
func validTopicPrefix(prefix string) bool {
	trimmed := strings.Trim(prefix, "/")
	if trimmed == "" {
		return true
	}
	for _, level := range strings.Split(trimmed, "/") {
		if level == "" || strings.ContainsAny(level, topicReserved) {
			return false
		}
	}
	return true
}

// PollInterval returns the device poll interval as a Duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Device.PollInterval) * time.Second
}

// RequestTimeout returns the per-request device timeout as a Duration.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Device.Timeout) * time.Second
}

// AutoSettle returns the settle time after an AI mode command.
func (c *Config) AutoSettle() time.Duration {
	return time.Duration(c.Transitions.AutoSettle) * time.Second
}

// ManualSettle returns the settle time after a manual mode command.
func (c *Config) ManualSettle() time.Duration {
	return time.Duration(c.Transitions.ManualSettle) * time.Second
}

// RestoreDelay returns the wait before the neutral manual restore.
func (c *Config) RestoreDelay() time.Duration {
	return time.Duration(c.Transitions.RestoreDelay) * time.Second
}

// VerifySchedule returns the mode verification retry delays.
func (c *Config) VerifySchedule() []time.Duration {
	out := make([]time.Duration, len(c.Transitions.VerifyRetry))
	for i, s := range c.Transitions.VerifyRetry {
		out[i] = time.Duration(s) * time.Second
	}
	return out
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
