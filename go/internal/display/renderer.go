package display

import (
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/arenatimer/go/internal/timer"
)

// Mode selects what the display counts.
type Mode string

const (
	// ModeTimer counts down and shows remaining time.
	ModeTimer Mode = "timer"
	// ModeStopwatch counts up and shows elapsed time.
	ModeStopwatch Mode = "stopwatch"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTimer, ModeStopwatch:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown display mode %q", s)
}

// BlinkInterval is the visibility toggle period while expired or paused.
const BlinkInterval = 500 * time.Millisecond

// TimerState is the read-only view of a timer the renderer needs.
type TimerState interface {
	Snapshot() timer.Snapshot
}

// blinkCondition is the input to the blink state machine.
type blinkCondition int

const (
	conditionSteady blinkCondition = iota
	conditionExpired
	conditionPaused
)

// Renderer turns timer state into text, color and blink visibility and
// writes the result to a Surface.
//
// Update advances only the blink state machine. Draw only writes to the
// surface. Callers run Update then Draw every tick.
type Renderer struct {
	timer   TimerState
	surface Surface

	mu           sync.RWMutex
	mode         Mode
	defaultColor Color
	brightness   uint8
	flipped      bool
	thresholds   []Threshold

	// blink state, owned by the loop goroutine
	visible    bool
	lastToggle time.Time
	condition  blinkCondition
}

// NewRenderer creates a renderer in timer mode with a green default color
// at full brightness.
func NewRenderer(t TimerState, surface Surface) *Renderer {
	return &Renderer{
		timer:        t,
		surface:      surface,
		mode:         ModeTimer,
		defaultColor: Green,
		brightness:   255,
		visible:      true,
	}
}

// SetMode switches between timer and stopwatch rendering.
func (r *Renderer) SetMode(mode Mode) {
	r.mu.Lock()
	r.mode = mode
	r.mu.Unlock()
}

// Mode returns the current mode.
func (r *Renderer) Mode() Mode {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.mode
}

// SetColor sets the default color used when no threshold matches.
func (r *Renderer) SetColor(c Color) {
	r.mu.Lock()
	r.defaultColor = c
	r.mu.Unlock()
}

// DefaultColor returns the default color.
func (r *Renderer) DefaultColor() Color {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultColor
}

// SetBrightness sets output brightness, 0 (off) to 255 (full).
func (r *Renderer) SetBrightness(b uint8) {
	r.mu.Lock()
	r.brightness = b
	r.mu.Unlock()
}

// Brightness returns the output brightness.
func (r *Renderer) Brightness() uint8 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.brightness
}

// ToggleFlip flips the display orientation and returns the new value.
func (r *Renderer) ToggleFlip() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flipped = !r.flipped
	return r.flipped
}

// AddColorThreshold adds a threshold, keeping the set in ascending order.
func (r *Renderer) AddColorThreshold(seconds int, c Color) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.thresholds) >= MaxThresholds {
		return ErrTooManyThresholds
	}
	r.thresholds = append(r.thresholds, Threshold{Seconds: seconds, Color: c})
	sortThresholds(r.thresholds)
	return nil
}

// ClearColorThresholds removes every threshold.
func (r *Renderer) ClearColorThresholds() {
	r.mu.Lock()
	r.thresholds = nil
	r.mu.Unlock()
}

// SetColorThresholds replaces the threshold set.
func (r *Renderer) SetColorThresholds(ts []Threshold) error {
	if len(ts) > MaxThresholds {
		return fmt.Errorf("%w: %d > %d", ErrTooManyThresholds, len(ts), MaxThresholds)
	}
	sorted := append([]Threshold(nil), ts...)
	sortThresholds(sorted)

	r.mu.Lock()
	r.thresholds = sorted
	r.mu.Unlock()
	return nil
}

// Thresholds returns a copy of the thresholds in ascending order.
func (r *Renderer) Thresholds() []Threshold {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Threshold(nil), r.thresholds...)
}

// Visible reports the current blink visibility.
func (r *Renderer) Visible() bool {
	return r.visible
}

// Update advances the blink state machine to now.
//
// Expired (in any run state) and paused timers toggle visibility every
// BlinkInterval. Anything else is always visible. Entering or leaving a
// blinking condition makes the display visible at once and restarts the
// toggle phase from now.
func (r *Renderer) Update(now time.Time) {
	snap := r.timer.Snapshot()

	cond := conditionSteady
	switch {
	case snap.Expired:
		cond = conditionExpired
	case snap.State == timer.StatePaused:
		cond = conditionPaused
	}

	if cond != r.condition {
		r.condition = cond
		r.visible = true
		r.lastToggle = now
	}

	if cond == conditionSteady {
		r.visible = true
		return
	}

	if now.Sub(r.lastToggle) >= BlinkInterval {
		r.visible = !r.visible
		r.lastToggle = now
	}
}

// Draw renders the current timer state to the surface.
func (r *Renderer) Draw() error {
	return r.surface.Render(r.Frame())
}

// Frame computes what Draw would render.
func (r *Renderer) Frame() Frame {
	snap := r.timer.Snapshot()

	r.mu.RLock()
	defer r.mu.RUnlock()

	var text string
	color := r.defaultColor
	if r.mode == ModeStopwatch {
		text = FormatTime(snap.Elapsed, false)
	} else {
		text = FormatTime(snap.Remaining, true)
		color = selectColor(r.thresholds, int(snap.Remaining/time.Second), r.defaultColor)
	}

	f := Frame{
		Color:   color.Scale(r.brightness),
		Visible: r.visible,
		Flipped: r.flipped,
	}
	if r.visible {
		f.Text = text
	}
	return f
}
