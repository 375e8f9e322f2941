// Package console provides the interactive command line for driving an
// arena timer over its HTTP API.
package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/mcdev12/arenatimer/go/clients/arena_timer_client"
)

// Device is the arena timer API the console drives.
type Device interface {
	Start(ctx context.Context) (arena_timer_client.Status, error)
	Pause(ctx context.Context) (arena_timer_client.Status, error)
	Reset(ctx context.Context) (arena_timer_client.Status, error)
	Flip(ctx context.Context) (arena_timer_client.Status, error)
	ApplySettings(ctx context.Context, durationSeconds int, brightness *int) (arena_timer_client.Status, error)
	Status(ctx context.Context) (arena_timer_client.Status, error)
	Thresholds(ctx context.Context) (arena_timer_client.ThresholdsResponse, error)
	SetThresholds(ctx context.Context, spec, defaultColor string) (arena_timer_client.ThresholdsResponse, error)
	SetMode(ctx context.Context, mode string) (arena_timer_client.Status, error)
	WebSocketStatus(ctx context.Context) (arena_timer_client.WebSocketStatus, error)
	ConnectWebSocket(ctx context.Context, host string, port int, path string) (arena_timer_client.RemoteResponse, error)
	DisconnectWebSocket(ctx context.Context) (arena_timer_client.RemoteResponse, error)
	NetworkStatus(ctx context.Context) (arena_timer_client.NetworkStatus, error)
}

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Console handles interactive mode for the arena timer.
type Console struct {
	device  Device
	timeout time.Duration
	rl      *readline.Instance

	// duration remembered for brightness-only settings
	duration int
}

// New creates a console bound to device.
func New(device Device) *Console {
	return &Console{
		device:   device,
		timeout:  5 * time.Second,
		duration: 180,
	}
}

// Run starts the interactive command loop. It returns when the user exits
// or ctx is cancelled.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "arena> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	c.rl = rl
	defer rl.Close()

	out := rl.Stdout()
	c.printHelp(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(out, "Exiting...")
			cancel()
			return nil
		}

		if err := c.Execute(ctx, line, out); err != nil {
			if errors.Is(err, errQuit) {
				fmt.Fprintln(out, "Exiting...")
				cancel()
				return nil
			}
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}
}

// Stdout returns a writer that coordinates with the prompt, or nil before
// Run.
func (c *Console) Stdout() io.Writer {
	if c.rl == nil {
		return nil
	}
	return c.rl.Stdout()
}

// Execute runs one command line and writes its result to out.
func (c *Console) Execute(ctx context.Context, line string, out io.Writer) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	switch cmd {
	case "help", "?":
		c.printHelp(out)
		return nil
	case "start", "s":
		return c.printStatus(out)(c.device.Start(ctx))
	case "pause", "stop", "p":
		return c.printStatus(out)(c.device.Pause(ctx))
	case "reset", "r":
		return c.printStatus(out)(c.device.Reset(ctx))
	case "flip", "f":
		return c.printStatus(out)(c.device.Flip(ctx))
	case "status", "st":
		return c.printStatus(out)(c.device.Status(ctx))
	case "duration", "d":
		return c.cmdDuration(ctx, out, args)
	case "brightness", "b":
		return c.cmdBrightness(ctx, out, args)
	case "mode", "m":
		if len(args) != 1 {
			return errors.New("usage: mode <timer|stopwatch>")
		}
		return c.printStatus(out)(c.device.SetMode(ctx, strings.ToLower(args[0])))
	case "thresholds", "t":
		return c.cmdThresholds(ctx, out, args)
	case "remote", "ws":
		if len(args) != 0 {
			return errors.New("usage: remote")
		}
		ws, err := c.device.WebSocketStatus(ctx)
		if err != nil {
			return err
		}
		writeRemoteStatus(out, ws)
		return nil
	case "connect", "c":
		return c.cmdConnect(ctx, out, args)
	case "disconnect":
		resp, err := c.device.DisconnectWebSocket(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, resp.Message)
		return nil
	case "ip":
		st, err := c.device.NetworkStatus(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Device IP: %s\n", st.IP)
		return nil
	case "quit", "exit", "q":
		return errQuit
	}
	return fmt.Errorf("unknown command: %s (type 'help' for commands)", cmd)
}

// cmdDuration accepts seconds or m:ss.
func (c *Console) cmdDuration(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: duration <seconds|m:ss>")
	}
	seconds, err := parseDuration(args[0])
	if err != nil {
		return err
	}
	st, err := c.device.ApplySettings(ctx, seconds, nil)
	if err != nil {
		return err
	}
	c.duration = seconds
	writeStatus(out, st)
	return nil
}

func (c *Console) cmdBrightness(ctx context.Context, out io.Writer, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: brightness <0-255>")
	}
	level, err := strconv.Atoi(args[0])
	if err != nil || level < 0 || level > 255 {
		return fmt.Errorf("brightness must be 0-255, got %q", args[0])
	}

	// settings always carries a duration and resets the timer
	st, err := c.device.ApplySettings(ctx, c.duration, &level)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Brightness set to %d\n", level)
	writeStatus(out, st)
	return nil
}

// cmdConnect takes a host and optional port and path; the device fills in
// the rest.
func (c *Console) cmdConnect(ctx context.Context, out io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 3 {
		return errors.New("usage: connect <host> [port] [path]")
	}
	port := 0
	if len(args) >= 2 {
		p, err := strconv.Atoi(args[1])
		if err != nil || p < 1 || p > 65535 {
			return fmt.Errorf("port must be 1-65535, got %q", args[1])
		}
		port = p
	}
	path := ""
	if len(args) == 3 {
		path = args[2]
	}

	resp, err := c.device.ConnectWebSocket(ctx, args[0], port, path)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s: %s\n", resp.Message, resp.URL)
	return nil
}

func (c *Console) cmdThresholds(ctx context.Context, out io.Writer, args []string) error {
	var (
		resp arena_timer_client.ThresholdsResponse
		err  error
	)
	switch {
	case len(args) == 0:
		resp, err = c.device.Thresholds(ctx)
	case strings.EqualFold(args[0], "set") && len(args) >= 2 && len(args) <= 3:
		defaultColor := ""
		if len(args) == 3 {
			defaultColor = args[2]
		}
		resp, err = c.device.SetThresholds(ctx, args[1], defaultColor)
	case strings.EqualFold(args[0], "clear") && len(args) == 1:
		resp, err = c.device.SetThresholds(ctx, "", "")
	default:
		return errors.New("usage: thresholds [set <secs:#RRGGBB|...> [#default] | clear]")
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Default color: %s\n", resp.DefaultColor)
	if len(resp.Thresholds) == 0 {
		fmt.Fprintln(out, "No thresholds")
		return nil
	}
	for _, th := range resp.Thresholds {
		fmt.Fprintf(out, "  <= %s  %s\n", formatSeconds(th.Seconds), th.Color)
	}
	return nil
}

func (c *Console) printStatus(out io.Writer) func(arena_timer_client.Status, error) error {
	return func(st arena_timer_client.Status, err error) error {
		if err != nil {
			return err
		}
		writeStatus(out, st)
		return nil
	}
}

func writeStatus(out io.Writer, st arena_timer_client.Status) {
	state := "idle"
	switch {
	case st.IsExpired:
		state = "expired"
	case st.IsPaused:
		state = "paused"
	case st.IsRunning:
		state = "running"
	}
	remote := "disconnected"
	if st.Connected {
		remote = "connected"
	}
	fmt.Fprintf(out, "%s  remaining %s  elapsed %s  duration %s  mode %s  remote %s\n",
		state,
		formatMillis(st.RemainingMs),
		formatMillis(st.ElapsedMs),
		formatMillis(st.DurationMs),
		st.Mode,
		remote,
	)
}

func writeRemoteStatus(out io.Writer, ws arena_timer_client.WebSocketStatus) {
	url := ws.URL
	if url == "" {
		url = "(none)"
	}
	fmt.Fprintf(out, "%s  %s\n", ws.Status, url)
}

func (c *Console) printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Arena Timer Commands:
  Timer:
    start                  - Start or resume the countdown
    pause                  - Pause the countdown
    reset                  - Reset to the configured duration
    duration <s|m:ss>      - Set the duration and reset
    status                 - Show timer status

  Display:
    brightness <0-255>     - Set display brightness
    mode <timer|stopwatch> - Switch display mode
    flip                   - Rotate the display 180 degrees
    thresholds             - List color thresholds
    thresholds set <spec> [#default]
                           - Replace thresholds, e.g. 60:#FFFF00|10:#FF0000
    thresholds clear       - Remove all thresholds

  Remote:
    remote                 - Show the event source connection
    connect <host> [port] [path]
                           - Connect to a Socket.IO server
    disconnect             - Drop the event source connection
    ip                     - Show the device IP address

  Other:
    help                   - Show this help
    exit                   - Exit`)
}

func parseDuration(s string) (int, error) {
	if m, sec, ok := strings.Cut(s, ":"); ok {
		minutes, err1 := strconv.Atoi(m)
		seconds, err2 := strconv.Atoi(sec)
		if err1 != nil || err2 != nil || minutes < 0 || seconds < 0 || seconds > 59 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		return minutes*60 + seconds, nil
	}
	seconds, err := strconv.Atoi(s)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	return seconds, nil
}

func formatSeconds(s int) string {
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

func formatMillis(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	return fmt.Sprintf("%d:%02d.%d", ms/60000, (ms/1000)%60, (ms%1000)/100)
}
