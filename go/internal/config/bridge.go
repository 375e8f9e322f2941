package config

import (
	"fmt"
	"net/url"
	"time"
)

// BridgeConfig configures the desktop bridge and the console.
type BridgeConfig struct {
	// FightTimerURL is the Socket.IO server of the timer app.
	FightTimerURL string

	// ArenaTimerURL is the base URL of the device HTTP API.
	ArenaTimerURL string

	// NATSURL enables update publishing when set.
	NATSURL     string
	NATSSubject string

	CheckInterval     time.Duration
	ReconnectInterval time.Duration
	LogLevel          string
}

// LoadBridge reads bridge settings from the environment.
func LoadBridge() (BridgeConfig, error) {
	cfg := BridgeConfig{
		FightTimerURL:     getEnv("FIGHTTIMER_URL", "http://127.0.0.1:8765"),
		ArenaTimerURL:     getEnv("ARENA_TIMER_URL", "http://arena-timer.local:8080"),
		NATSURL:           getEnv("NATS_URL", ""),
		NATSSubject:       getEnv("NATS_SUBJECT", "arena.timer.updates"),
		CheckInterval:     getEnvAsDuration("CHECK_INTERVAL", 10*time.Second),
		ReconnectInterval: getEnvAsDuration("RECONNECT_INTERVAL", 5*time.Second),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
	}
	if err := cfg.Validate(); err != nil {
		return BridgeConfig{}, err
	}
	return cfg, nil
}

func (c BridgeConfig) Validate() error {
	for key, raw := range map[string]string{
		"FIGHTTIMER_URL":  c.FightTimerURL,
		"ARENA_TIMER_URL": c.ArenaTimerURL,
	} {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			return fmt.Errorf("%w: %s %q is not an absolute URL", ErrInvalidConfig, key, raw)
		}
	}
	if c.CheckInterval <= 0 {
		return fmt.Errorf("%w: CHECK_INTERVAL must be positive", ErrInvalidConfig)
	}
	if c.ReconnectInterval <= 0 {
		return fmt.Errorf("%w: RECONNECT_INTERVAL must be positive", ErrInvalidConfig)
	}
	return nil
}
