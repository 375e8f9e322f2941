package display

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// MaxThresholds caps the number of color thresholds a renderer holds.
const MaxThresholds = 10

// ErrTooManyThresholds is returned when adding beyond MaxThresholds.
var ErrTooManyThresholds = errors.New("too many color thresholds")

// Threshold recolors the countdown once remaining seconds drop to Seconds.
type Threshold struct {
	Seconds int   `json:"seconds" yaml:"seconds"`
	Color   Color `json:"color" yaml:"color"`
}

// sortThresholds orders thresholds by ascending cutoff. The sort is stable
// so duplicate cutoffs keep insertion order.
func sortThresholds(ts []Threshold) {
	sort.SliceStable(ts, func(i, j int) bool { return ts[i].Seconds < ts[j].Seconds })
}

// selectColor scans ascending thresholds and returns the first whose cutoff
// is at or above remainingSeconds.
func selectColor(ts []Threshold, remainingSeconds int, fallback Color) Color {
	for _, t := range ts {
		if t.Seconds >= remainingSeconds {
			return t.Color
		}
	}
	return fallback
}

// ParseThresholds parses the "120:#FFFF00|60:#FF0000" form used by the
// control API. An empty string yields no thresholds.
func ParseThresholds(s string) ([]Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}

	var out []Threshold
	for _, entry := range strings.Split(s, "|") {
		if entry == "" {
			continue
		}
		secStr, colorStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("parse threshold %q: missing ':'", entry)
		}
		secs, err := strconv.Atoi(strings.TrimSpace(secStr))
		if err != nil || secs < 0 {
			return nil, fmt.Errorf("parse threshold %q: invalid seconds", entry)
		}
		c, err := ParseColor(colorStr)
		if err != nil {
			return nil, fmt.Errorf("parse threshold %q: %w", entry, err)
		}
		out = append(out, Threshold{Seconds: secs, Color: c})
	}
	if len(out) > MaxThresholds {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooManyThresholds, len(out), MaxThresholds)
	}
	return out, nil
}

// FormatThresholds is the inverse of ParseThresholds.
func FormatThresholds(ts []Threshold) string {
	parts := make([]string, 0, len(ts))
	for _, t := range ts {
		parts = append(parts, strconv.Itoa(t.Seconds)+":"+t.Color.Hex())
	}
	return strings.Join(parts, "|")
}
