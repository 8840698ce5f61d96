package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aminofox/zenclient/pkg/backoff"
	"github.com/aminofox/zenclient/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the streaming client
type Config struct {
	// Backend describes where the platform API and sockets live
	Backend BackendConfig `json:"backend" yaml:"backend"`

	// Socket configures the public and authenticated channels
	Socket SocketConfig `json:"socket" yaml:"socket"`

	// Dedup configures inbound duplicate suppression
	Dedup DedupConfig `json:"dedup" yaml:"dedup"`

	// Player configures the adaptive media player controller
	Player PlayerConfig `json:"player" yaml:"player"`

	// Auth holds login hashing parameters
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Metrics configuration
	Metrics MetricsConfig `json:"metrics" yaml:"metrics"`

	// Logging configuration
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// BackendConfig holds backend addressing
type BackendConfig struct {
	// Host is the backend host name, optionally with scheme
	Host string `json:"host" yaml:"host"`

	// Port is the backend port; 0 leaves it out of URLs
	Port int `json:"port" yaml:"port"`

	// Secure switches to https/wss
	Secure bool `json:"secure" yaml:"secure"`

	// PublicNamespace is the namespace of the anonymous channel
	PublicNamespace string `json:"public_namespace" yaml:"public_namespace"`

	// AuthNamespace is the namespace of the per-user channel
	AuthNamespace string `json:"auth_namespace" yaml:"auth_namespace"`

	// RequestTimeout bounds each HTTP request
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`
}

// SocketConfig holds per-channel socket configuration
type SocketConfig struct {
	// DialTimeout bounds one connection attempt
	DialTimeout time.Duration `json:"dial_timeout" yaml:"dial_timeout"`

	// PingTimeout is how long to wait for a server ping before declaring the link dead
	PingTimeout time.Duration `json:"ping_timeout" yaml:"ping_timeout"`

	// Public is the reconnect policy of the anonymous channel
	Public backoff.Policy `json:"public" yaml:"public"`

	// Auth is the reconnect policy of the per-user channel
	Auth backoff.Policy `json:"auth" yaml:"auth"`

	// ChatRatePerSecond limits outbound chat messages; 0 disables the limiter
	ChatRatePerSecond float64 `json:"chat_rate_per_second" yaml:"chat_rate_per_second"`

	// ChatBurst is the chat limiter burst size
	ChatBurst int `json:"chat_burst" yaml:"chat_burst"`
}

// DedupConfig holds duplicate suppression parameters
type DedupConfig struct {
	// Window is the time bucket resolution of dedup keys
	Window time.Duration `json:"window" yaml:"window"`

	// Horizon is how long a key is remembered
	Horizon time.Duration `json:"horizon" yaml:"horizon"`

	// MaxEntries caps remembered keys per event
	MaxEntries int `json:"max_entries" yaml:"max_entries"`

	// PayloadPrefix is how many bytes of serialized payload feed the key
	PayloadPrefix int `json:"payload_prefix" yaml:"payload_prefix"`
}

// PlayerConfig holds player controller defaults
type PlayerConfig struct {
	// Retry is the manifest failure retry policy
	Retry backoff.Policy `json:"retry" yaml:"retry"`

	// InitialBitrateKbps seeds the ABR estimator
	InitialBitrateKbps int `json:"initial_bitrate_kbps" yaml:"initial_bitrate_kbps"`

	// ManifestRetryAttempts is handed to the engine for its own MPD retries
	ManifestRetryAttempts int `json:"manifest_retry_attempts" yaml:"manifest_retry_attempts"`

	// LiveDelay is the target distance from the live edge
	LiveDelay time.Duration `json:"live_delay" yaml:"live_delay"`

	// LiveDelayFragmentCount is the live delay expressed in fragments
	LiveDelayFragmentCount int `json:"live_delay_fragment_count" yaml:"live_delay_fragment_count"`

	// QualityRestoreDelay is how long after a quality switch the position is restored
	QualityRestoreDelay time.Duration `json:"quality_restore_delay" yaml:"quality_restore_delay"`

	// LiveSettleDelay is how long after going live the current quality is reloaded
	LiveSettleDelay time.Duration `json:"live_settle_delay" yaml:"live_settle_delay"`

	// SourceDebounce coalesces rapid stream URL changes
	SourceDebounce time.Duration `json:"source_debounce" yaml:"source_debounce"`
}

// AuthConfig holds login hashing parameters
type AuthConfig struct {
	// Salt is prepended to the password before hashing
	Salt string `json:"salt" yaml:"salt"`

	// Pepper is appended to the password before hashing
	Pepper string `json:"pepper" yaml:"pepper"`
}

// MetricsConfig holds client metrics configuration
type MetricsConfig struct {
	// Enabled registers client collectors
	Enabled bool `json:"enabled" yaml:"enabled"`

	// Namespace prefixes every metric name
	Namespace string `json:"namespace" yaml:"namespace"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error)
	Level string `json:"level" yaml:"level"`

	// Format is the log format (json, text)
	Format string `json:"format" yaml:"format"`
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			Host:            "localhost",
			Port:            5000,
			PublicNamespace: "/public",
			AuthNamespace:   "/auth",
			RequestTimeout:  15 * time.Second,
		},
		Socket: SocketConfig{
			DialTimeout: 10 * time.Second,
			PingTimeout: 45 * time.Second,
			Public: backoff.Policy{
				BaseDelay:   time.Second,
				MaxDelay:    10 * time.Second,
				Jitter:      0.25,
				MaxAttempts: 0, // the public channel never gives up
			},
			Auth: backoff.Policy{
				BaseDelay:   time.Second,
				MaxDelay:    30 * time.Second,
				Jitter:      0.25,
				MaxAttempts: 10,
			},
			ChatRatePerSecond: 2,
			ChatBurst:         5,
		},
		Dedup: DedupConfig{
			Window:        time.Second,
			Horizon:       10 * time.Second,
			MaxEntries:    50,
			PayloadPrefix: 100,
		},
		Player: PlayerConfig{
			Retry: backoff.Policy{
				BaseDelay:   time.Second,
				MaxDelay:    10 * time.Second,
				MaxAttempts: 3,
			},
			InitialBitrateKbps:     800,
			ManifestRetryAttempts:  3,
			LiveDelay:              12 * time.Second,
			LiveDelayFragmentCount: 4,
			QualityRestoreDelay:    500 * time.Millisecond,
			LiveSettleDelay:        500 * time.Millisecond,
			SourceDebounce:         300 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Enabled:   false,
			Namespace: "zenclient",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.LoadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv overrides config from environment variables
func (c *Config) LoadFromEnv() {
	if host := os.Getenv("BACK_HOST"); host != "" {
		c.Backend.Host = host
	}
	if port := os.Getenv("BACK_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Backend.Port = p
		}
	}
	if salt := os.Getenv("SALT"); salt != "" {
		c.Auth.Salt = salt
	}
	if pepper := os.Getenv("PEPPER"); pepper != "" {
		c.Auth.Pepper = pepper
	}
	if level := os.Getenv("ZENCLIENT_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the configuration for values the client cannot run with
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Backend.Host) == "" {
		return errors.New(errors.ErrCodeMissingConfig, "backend.host is required")
	}
	if c.Backend.Port < 0 || c.Backend.Port > 65535 {
		return errors.New(errors.ErrCodeInvalidConfig, fmt.Sprintf("backend.port out of range: %d", c.Backend.Port))
	}
	if !strings.HasPrefix(c.Backend.PublicNamespace, "/") || !strings.HasPrefix(c.Backend.AuthNamespace, "/") {
		return errors.New(errors.ErrCodeInvalidConfig, "socket namespaces must start with /")
	}
	if c.Socket.Public.BaseDelay <= 0 || c.Socket.Auth.BaseDelay <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "socket reconnect base delay must be positive")
	}
	if err := requireCap("public", c.Socket.Public); err != nil {
		return err
	}
	if err := requireCap("auth", c.Socket.Auth); err != nil {
		return err
	}
	if c.Dedup.Window <= 0 || c.Dedup.Horizon < c.Dedup.Window {
		return errors.New(errors.ErrCodeInvalidConfig, "dedup horizon must be at least one window")
	}
	if c.Dedup.MaxEntries < 2 {
		return errors.New(errors.ErrCodeInvalidConfig, "dedup.max_entries must be at least 2")
	}
	if c.Player.Retry.BaseDelay <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig, "player retry base delay must be positive")
	}
	return nil
}

// requireCap rejects an unlimited reconnect policy without a delay cap
func requireCap(name string, p backoff.Policy) error {
	if p.MaxAttempts == 0 && p.MaxDelay <= 0 {
		return errors.New(errors.ErrCodeInvalidConfig,
			fmt.Sprintf("socket.%s.max_delay is required when reconnect attempts are unlimited", name))
	}
	return nil
}

// hostPort strips any scheme from Host and appends the port.
func (b BackendConfig) hostPort() string {
	host := b.Host
	if u, err := url.Parse(host); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.TrimSuffix(host, "/")
	if b.Port > 0 && !strings.Contains(host, ":") {
		host = fmt.Sprintf("%s:%d", host, b.Port)
	}
	return host
}

// BaseURL returns the HTTP base URL of the backend API
func (b BackendConfig) BaseURL() string {
	scheme := "http"
	if b.Secure || strings.HasPrefix(b.Host, "https://") {
		scheme = "https"
	}
	return scheme + "://" + b.hostPort()
}

// SocketURL returns the socket base URL of the backend
func (b BackendConfig) SocketURL() string {
	scheme := "ws"
	if b.Secure || strings.HasPrefix(b.Host, "https://") {
		scheme = "wss"
	}
	return scheme + "://" + b.hostPort()
}
