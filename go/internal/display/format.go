package display

import (
	"fmt"
	"time"

	"github.com/mcdev12/arenatimer/go/internal/timer"
)

// secondsModeCutoff is where countdowns switch from M:SS to SS.d.
const secondsModeCutoff = time.Minute

// FormatTime renders d for the display.
//
// With secondsMode set and d under one minute the result is "SS.d".
// Otherwise it is "M:SS" below ten minutes and "MM:SS" from ten minutes up,
// so the final minutes read at a glance.
func FormatTime(d time.Duration, secondsMode bool) string {
	c := timer.Split(d)
	if secondsMode && d < secondsModeCutoff {
		return fmt.Sprintf("%02d.%d", c.Seconds, c.Deciseconds())
	}
	if c.Minutes < 10 {
		return fmt.Sprintf("%d:%02d", c.Minutes, c.Seconds)
	}
	return fmt.Sprintf("%02d:%02d", c.Minutes, c.Seconds)
}
