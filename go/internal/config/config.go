package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file read when ARENA_CONFIG is unset.
const DefaultPath = "arena-timer.yaml"

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config is the device configuration.
type Config struct {
	LogLevel  string          `yaml:"log_level"`
	HTTP      HTTPConfig      `yaml:"http"`
	Remote    RemoteConfig    `yaml:"remote"`
	Display   DisplayConfig   `yaml:"display"`
	Timer     TimerConfig     `yaml:"timer"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
}

type HTTPConfig struct {
	Port         int    `yaml:"port"`
	MDNSHostname string `yaml:"mdns_hostname"`
	MDNSEnabled  bool   `yaml:"mdns_enabled"`
}

// RemoteConfig points the device at the Socket.IO server that sends
// timer_update events.
type RemoteConfig struct {
	Enabled           bool          `yaml:"enabled"`
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	Path              string        `yaml:"path"`
	DisableMasking    bool          `yaml:"disable_masking"`
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

type DisplayConfig struct {
	Mode       display.Mode        `yaml:"mode"`
	Color      display.Color       `yaml:"color"`
	Brightness int                 `yaml:"brightness"`
	Thresholds []display.Threshold `yaml:"thresholds"`
}

// TimerConfig is the countdown duration loaded at boot.
type TimerConfig struct {
	Minutes int `yaml:"minutes"`
	Seconds int `yaml:"seconds"`
}

type SchedulerConfig struct {
	HTTPInterval   time.Duration `yaml:"http_interval"`
	SocketInterval time.Duration `yaml:"socket_interval"`
	Yield          time.Duration `yaml:"yield"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			Port:         8080,
			MDNSHostname: "arena-timer",
			MDNSEnabled:  true,
		},
		Remote: RemoteConfig{
			Enabled:           true,
			Host:              "127.0.0.1",
			Port:              8765,
			Path:              socketio.DefaultPath,
			HandshakeTimeout:  socketio.DefaultConfig().HandshakeTimeout,
			ReconnectInterval: 5 * time.Second,
		},
		Display: DisplayConfig{
			Mode:       display.ModeTimer,
			Color:      display.Green,
			Brightness: 255,
		},
		Timer: TimerConfig{Minutes: 3},
		Scheduler: SchedulerConfig{
			HTTPInterval:   50 * time.Millisecond,
			SocketInterval: 100 * time.Millisecond,
			Yield:          10 * time.Millisecond,
		},
	}
}

// Load reads the YAML file at path over the defaults, then applies
// environment overrides and validates the result. A missing file is not an
// error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.HTTP.Port = getEnvAsInt("HTTP_PORT", c.HTTP.Port)
	c.HTTP.MDNSHostname = getEnv("MDNS_HOSTNAME", c.HTTP.MDNSHostname)
	c.HTTP.MDNSEnabled = getEnvAsBool("MDNS_ENABLED", c.HTTP.MDNSEnabled)

	c.Remote.Enabled = getEnvAsBool("REMOTE_ENABLED", c.Remote.Enabled)
	c.Remote.Host = getEnv("REMOTE_HOST", c.Remote.Host)
	c.Remote.Port = getEnvAsInt("REMOTE_PORT", c.Remote.Port)
	c.Remote.Path = getEnv("REMOTE_PATH", c.Remote.Path)
	c.Remote.DisableMasking = getEnvAsBool("REMOTE_DISABLE_MASKING", c.Remote.DisableMasking)
	c.Remote.HandshakeTimeout = getEnvAsDuration("HANDSHAKE_TIMEOUT", c.Remote.HandshakeTimeout)
	c.Remote.ReconnectInterval = getEnvAsDuration("RECONNECT_INTERVAL", c.Remote.ReconnectInterval)

	c.Display.Mode = display.Mode(getEnv("DISPLAY_MODE", string(c.Display.Mode)))
	if v := os.Getenv("DISPLAY_COLOR"); v != "" {
		if col, err := display.ParseColor(v); err == nil {
			c.Display.Color = col
		}
	}
	c.Display.Brightness = getEnvAsInt("DISPLAY_BRIGHTNESS", c.Display.Brightness)
}

// Validate checks ranges and enumerations.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("%w: http.port %d out of range", ErrInvalidConfig, c.HTTP.Port)
	}
	if c.HTTP.MDNSEnabled && c.HTTP.MDNSHostname == "" {
		return fmt.Errorf("%w: http.mdns_hostname is required when mDNS is enabled", ErrInvalidConfig)
	}
	if c.Remote.Enabled {
		if c.Remote.Host == "" {
			return fmt.Errorf("%w: remote.host is required", ErrInvalidConfig)
		}
		if c.Remote.Port <= 0 || c.Remote.Port > 65535 {
			return fmt.Errorf("%w: remote.port %d out of range", ErrInvalidConfig, c.Remote.Port)
		}
		if c.Remote.ReconnectInterval <= 0 {
			return fmt.Errorf("%w: remote.reconnect_interval must be positive", ErrInvalidConfig)
		}
	}
	if _, err := display.ParseMode(string(c.Display.Mode)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Display.Brightness < 0 || c.Display.Brightness > 255 {
		return fmt.Errorf("%w: display.brightness %d out of range 0-255", ErrInvalidConfig, c.Display.Brightness)
	}
	if len(c.Display.Thresholds) > display.MaxThresholds {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, display.ErrTooManyThresholds)
	}
	if c.Timer.Minutes < 0 || c.Timer.Seconds < 0 {
		return fmt.Errorf("%w: timer duration must not be negative", ErrInvalidConfig)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

// ClientConfig converts the remote section into socketio client settings.
func (r RemoteConfig) ClientConfig() socketio.Config {
	cfg := socketio.DefaultConfig()
	cfg.DisableMasking = r.DisableMasking
	if r.HandshakeTimeout > 0 {
		cfg.HandshakeTimeout = r.HandshakeTimeout
	}
	return cfg
}
