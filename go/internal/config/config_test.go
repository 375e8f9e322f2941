package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "arena-timer.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Timer.Minutes)
	assert.Equal(t, 0, cfg.Timer.Seconds)
	assert.Equal(t, display.ModeTimer, cfg.Display.Mode)
	assert.Equal(t, display.Green, cfg.Display.Color)
	assert.Equal(t, 50*time.Millisecond, cfg.Scheduler.HTTPInterval)
	assert.Equal(t, 100*time.Millisecond, cfg.Scheduler.SocketInterval)
	assert.Equal(t, 10*time.Millisecond, cfg.Scheduler.Yield)
	assert.Equal(t, "/socket.io/", cfg.Remote.Path)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().HTTP.Port, cfg.HTTP.Port)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
log_level: debug
http:
  port: 9090
remote:
  enabled: false
  handshake_timeout: 2s
display:
  mode: stopwatch
  color: "#FF8800"
  brightness: 128
  thresholds:
    - seconds: 60
      color: "#FF0000"
timer:
  minutes: 5
  seconds: 30
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, zerolog.DebugLevel, cfg.Level())
	assert.Equal(t, 9090, cfg.HTTP.Port)
	assert.Equal(t, "arena-timer", cfg.HTTP.MDNSHostname)
	assert.False(t, cfg.Remote.Enabled)
	assert.Equal(t, 8765, cfg.Remote.Port)
	assert.Equal(t, 2*time.Second, cfg.Remote.HandshakeTimeout)
	assert.Equal(t, display.ModeStopwatch, cfg.Display.Mode)
	assert.Equal(t, display.Color{R: 0xFF, G: 0x88, B: 0x00}, cfg.Display.Color)
	assert.Equal(t, 128, cfg.Display.Brightness)
	assert.Equal(t, []display.Threshold{{Seconds: 60, Color: display.Red}}, cfg.Display.Thresholds)
	assert.Equal(t, TimerConfig{Minutes: 5, Seconds: 30}, cfg.Timer)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "http:\n  port: 9090\n")
	t.Setenv("HTTP_PORT", "7070")
	t.Setenv("REMOTE_HOST", "10.0.0.9")
	t.Setenv("REMOTE_DISABLE_MASKING", "true")
	t.Setenv("RECONNECT_INTERVAL", "3")
	t.Setenv("HANDSHAKE_TIMEOUT", "750ms")
	t.Setenv("DISPLAY_COLOR", "#0000FF")
	t.Setenv("MDNS_ENABLED", "false")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.HTTP.Port)
	assert.Equal(t, "10.0.0.9", cfg.Remote.Host)
	assert.True(t, cfg.Remote.DisableMasking)
	assert.Equal(t, 3*time.Second, cfg.Remote.ReconnectInterval)
	assert.Equal(t, 750*time.Millisecond, cfg.Remote.HandshakeTimeout)
	assert.Equal(t, display.Color{B: 0xFF}, cfg.Display.Color)
	assert.False(t, cfg.HTTP.MDNSEnabled)
}

func TestLoad_IgnoresUnparsableEnv(t *testing.T) {
	t.Setenv("HTTP_PORT", "eighty")
	t.Setenv("MDNS_ENABLED", "maybe")
	t.Setenv("RECONNECT_INTERVAL", "soon")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, Default().HTTP.Port, cfg.HTTP.Port)
	assert.True(t, cfg.HTTP.MDNSEnabled)
	assert.Equal(t, Default().Remote.ReconnectInterval, cfg.Remote.ReconnectInterval)
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "http: [unclosed\n")

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_BadColorInFile(t *testing.T) {
	path := writeConfig(t, "display:\n  color: \"#GG0000\"\n")

	_, err := Load(path)
	assert.ErrorIs(t, err, display.ErrInvalidColor)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"port zero", func(c *Config) { c.HTTP.Port = 0 }},
		{"port too high", func(c *Config) { c.HTTP.Port = 70000 }},
		{"mdns without hostname", func(c *Config) { c.HTTP.MDNSHostname = "" }},
		{"remote without host", func(c *Config) { c.Remote.Host = "" }},
		{"remote bad port", func(c *Config) { c.Remote.Port = -1 }},
		{"no reconnect interval", func(c *Config) { c.Remote.ReconnectInterval = 0 }},
		{"unknown mode", func(c *Config) { c.Display.Mode = "clock" }},
		{"brightness too high", func(c *Config) { c.Display.Brightness = 300 }},
		{"negative duration", func(c *Config) { c.Timer.Seconds = -1 }},
		{"too many thresholds", func(c *Config) {
			c.Display.Thresholds = make([]display.Threshold, display.MaxThresholds+1)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}
}

func TestValidate_DisabledRemoteSkipsRemoteChecks(t *testing.T) {
	cfg := Default()
	cfg.Remote.Enabled = false
	cfg.Remote.Host = ""

	assert.NoError(t, cfg.Validate())
}

func TestRemoteConfig_ClientConfig(t *testing.T) {
	r := RemoteConfig{DisableMasking: true, HandshakeTimeout: time.Second}

	cc := r.ClientConfig()
	assert.True(t, cc.DisableMasking)
	assert.Equal(t, time.Second, cc.HandshakeTimeout)

	cc = RemoteConfig{}.ClientConfig()
	assert.Equal(t, 5*time.Second, cc.HandshakeTimeout)
}

func TestLoadBridge(t *testing.T) {
	t.Setenv("FIGHTTIMER_URL", "http://10.0.0.2:3000")
	t.Setenv("ARENA_TIMER_URL", "http://10.0.0.3:8080")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("CHECK_INTERVAL", "30s")

	cfg, err := LoadBridge()
	require.NoError(t, err)

	assert.Equal(t, "http://10.0.0.2:3000", cfg.FightTimerURL)
	assert.Equal(t, "http://10.0.0.3:8080", cfg.ArenaTimerURL)
	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, "arena.timer.updates", cfg.NATSSubject)
	assert.Equal(t, 30*time.Second, cfg.CheckInterval)
}

func TestLoadBridge_RejectsRelativeURL(t *testing.T) {
	t.Setenv("ARENA_TIMER_URL", "arena-timer")

	_, err := LoadBridge()
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
