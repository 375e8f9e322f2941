package display

import (
	"fmt"
	"io"
	"sync"
)

// Frame is one rendered state of the display.
type Frame struct {
	Text    string
	Color   Color
	Visible bool
	Flipped bool
}

// Surface is the presentation target a Renderer draws to.
type Surface interface {
	Render(f Frame) error
}

// TerminalSurface draws frames on a single terminal line using ANSI
// 24-bit color. Identical consecutive frames are not rewritten.
type TerminalSurface struct {
	mu   sync.Mutex
	w    io.Writer
	last *Frame
}

// NewTerminalSurface creates a terminal surface writing to w.
func NewTerminalSurface(w io.Writer) *TerminalSurface {
	return &TerminalSurface{w: w}
}

// Render implements Surface.
func (s *TerminalSurface) Render(f Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.last != nil && *s.last == f {
		return nil
	}

	text := f.Text
	if f.Flipped {
		text = reverse(text)
	}

	// \r returns to column 0, \x1b[2K clears the line
	_, err := fmt.Fprintf(s.w, "\r\x1b[2K\x1b[1;38;2;%d;%d;%dm%8s\x1b[0m", f.Color.R, f.Color.G, f.Color.B, text)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	s.last = &f
	return nil
}

func reverse(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}
