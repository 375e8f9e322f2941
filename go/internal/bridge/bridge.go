package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenatimer/go/clients/arena_timer_client"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/rs/zerolog/log"
)

// DefaultDurationSeconds is the remembered duration before any update
// carries one.
const DefaultDurationSeconds = 180

// ErrUnknownAction is returned for timer_update actions the bridge does not
// relay.
var ErrUnknownAction = errors.New("unknown timer action")

// Device is the arena timer API the bridge drives.
type Device interface {
	Start(ctx context.Context) (arena_timer_client.Status, error)
	Pause(ctx context.Context) (arena_timer_client.Status, error)
	ApplySettings(ctx context.Context, durationSeconds int, brightness *int) (arena_timer_client.Status, error)
	Status(ctx context.Context) (arena_timer_client.Status, error)
}

// Publisher receives every relayed update.
type Publisher interface {
	Publish(u Relayed) error
}

// Relayed records one timer_update and what the bridge did with it.
type Relayed struct {
	ID              string    `json:"id"`
	Action          string    `json:"action"`
	DurationSeconds int       `json:"durationSeconds"`
	Restarted       bool      `json:"restarted,omitempty"`
	Error           string    `json:"error,omitempty"`
	Timestamp       time.Time `json:"timestamp"`
}

// Config configures a Bridge.
type Config struct {
	// FightTimerURL is the timer app's base URL (http or ws scheme).
	FightTimerURL string

	ReconnectInterval time.Duration

	// RequestTimeout bounds each device call.
	RequestTimeout time.Duration
}

// Bridge relays timer_update events from the timer app to the arena timer.
type Bridge struct {
	config    Config
	device    Device
	publisher Publisher
	clock     clockwork.Clock

	mu       sync.Mutex
	duration int
}

// New creates a bridge. publisher may be nil. Pass a nil clock to use the
// real clock.
func New(config Config, device Device, publisher Publisher, clock clockwork.Clock) *Bridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.ReconnectInterval <= 0 {
		config.ReconnectInterval = 5 * time.Second
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = 5 * time.Second
	}
	return &Bridge{
		config:    config,
		device:    device,
		publisher: publisher,
		clock:     clock,
		duration:  DefaultDurationSeconds,
	}
}

// Duration returns the remembered duration in seconds.
func (b *Bridge) Duration() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.duration
}

func (b *Bridge) setDuration(seconds int) {
	b.mu.Lock()
	b.duration = seconds
	b.mu.Unlock()
}

// resolveDuration picks the duration an update describes: an explicit
// duration, then minutes and seconds, then minutes alone, then the
// remembered value.
func (b *Bridge) resolveDuration(u socketio.TimerUpdate) int {
	switch {
	case u.Duration != nil:
		return *u.Duration
	case u.Minutes != nil && u.Seconds != nil:
		return *u.Minutes*60 + *u.Seconds
	case u.Minutes != nil:
		return *u.Minutes * 60
	default:
		return b.Duration()
	}
}

// HandleUpdate relays one timer_update to the device.
func (b *Bridge) HandleUpdate(ctx context.Context, u socketio.TimerUpdate) error {
	ctx, cancel := context.WithTimeout(ctx, b.config.RequestTimeout)
	defer cancel()

	rec := Relayed{
		ID:              uuid.New().String(),
		Action:          u.Action,
		DurationSeconds: b.resolveDuration(u),
		Timestamp:       b.clock.Now().UTC(),
	}

	var err error
	switch u.Action {
	case "start":
		_, err = b.device.Start(ctx)
	case "stop":
		_, err = b.device.Pause(ctx)
	case "reset":
		b.setDuration(rec.DurationSeconds)
		rec.Restarted, err = b.reset(ctx, rec.DurationSeconds)
	case "settings":
		if u.Duration != nil || u.Minutes != nil {
			b.setDuration(rec.DurationSeconds)
		}
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownAction, u.Action)
	}

	if err != nil {
		rec.Error = err.Error()
	}
	b.publish(rec)

	if err != nil {
		return err
	}
	log.Info().
		Str("action", u.Action).
		Int("duration_seconds", rec.DurationSeconds).
		Bool("restarted", rec.Restarted).
		Msg("relayed timer update")
	return nil
}

// reset applies the duration on the device. A timer that was running keeps
// running from the new duration, as the timer app's own display does.
func (b *Bridge) reset(ctx context.Context, seconds int) (restarted bool, err error) {
	wasRunning := false
	if st, err := b.device.Status(ctx); err == nil {
		wasRunning = st.IsRunning && !st.IsPaused
	} else {
		log.Debug().Err(err).Msg("status before reset failed, assuming stopped")
	}

	if _, err := b.device.ApplySettings(ctx, seconds, nil); err != nil {
		return false, fmt.Errorf("apply settings: %w", err)
	}
	if !wasRunning {
		return false, nil
	}
	if _, err := b.device.Start(ctx); err != nil {
		return false, fmt.Errorf("restart after reset: %w", err)
	}
	return true, nil
}

func (b *Bridge) publish(rec Relayed) {
	if b.publisher == nil {
		return
	}
	if err := b.publisher.Publish(rec); err != nil {
		log.Warn().Err(err).Str("action", rec.Action).Msg("failed to publish relayed update")
	}
}
