package timer

import "time"

// Components is a duration broken into display units.
type Components struct {
	Minutes int
	Seconds int
	Millis  int
}

// Split breaks d into whole minutes, seconds and milliseconds.
// Negative durations are treated as zero.
func Split(d time.Duration) Components {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return Components{
		Minutes: int(ms / 60000),
		Seconds: int(ms % 60000 / 1000),
		Millis:  int(ms % 1000),
	}
}

// Deciseconds returns the tenths-of-a-second digit.
func (c Components) Deciseconds() int {
	return c.Millis / 100
}
