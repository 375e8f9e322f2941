package display

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidColor is returned when a color string is not #RRGGBB.
var ErrInvalidColor = errors.New("invalid color")

// Color is a 24-bit RGB color.
type Color struct {
	R, G, B uint8
}

// Named colors used by defaults and tests.
var (
	Green  = Color{0x00, 0xFF, 0x00}
	Yellow = Color{0xFF, 0xFF, 0x00}
	Red    = Color{0xFF, 0x00, 0x00}
	Black  = Color{}
)

// ParseColor parses "#RRGGBB" or "RRGGBB".
func ParseColor(s string) (Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) != 6 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// Hex formats the color as "#RRGGBB".
func (c Color) Hex() string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

func (c Color) String() string { return c.Hex() }

// Scale dims the color by brightness/255.
func (c Color) Scale(brightness uint8) Color {
	if brightness == 255 {
		return c
	}
	scale := func(v uint8) uint8 { return uint8(uint16(v) * uint16(brightness) / 255) }
	return Color{R: scale(c.R), G: scale(c.G), B: scale(c.B)}
}

// MarshalText implements encoding.TextMarshaler so colors read naturally in
// YAML and JSON.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
