package control

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/mcdev12/arenatimer/go/internal/timer"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// DefaultQueueSize bounds pending mutating requests.
const DefaultQueueSize = 16

var (
	// ErrUnknownAction is returned for an unsupported POST /api action.
	ErrUnknownAction = errors.New("unknown action")

	// ErrQueueFull is returned when the loop is not draining commands.
	ErrQueueFull = errors.New("command queue full")
)

// Timer is the timer surface the API drives.
type Timer interface {
	Start()
	Stop()
	Reset()
	SetDuration(minutes, seconds, millis int)
	Snapshot() timer.Snapshot
}

// Display is the renderer surface the API configures.
type Display interface {
	SetMode(mode display.Mode)
	Mode() display.Mode
	SetColor(c display.Color)
	DefaultColor() display.Color
	SetBrightness(b uint8)
	ToggleFlip() bool
	SetColorThresholds(ts []display.Threshold) error
	Thresholds() []display.Threshold
}

// Link is the remote event source connection. Connected, Status and
// Target are read from handler goroutines; BeginConnect and Disconnect run
// on the loop.
type Link interface {
	Connected() bool
	Status() string
	Target() socketio.Target
	BeginConnect(t socketio.Target)
	Disconnect()
}

const (
	commandQueued int32 = iota
	commandClaimed
	commandCancelled
)

// command is a mutation applied on the loop goroutine. Exactly one of Poll
// (claim) and the waiting handler (cancel) wins it.
type command struct {
	name  string
	apply func() error
	done  chan error
	state atomic.Int32
}

func (c *command) claim() bool {
	return c.state.CompareAndSwap(commandQueued, commandClaimed)
}

func (c *command) cancel() bool {
	return c.state.CompareAndSwap(commandQueued, commandCancelled)
}

// Server is the device HTTP control API. Handlers run on net/http
// goroutines; every mutation is queued and applied when the owning loop
// calls Poll.
type Server struct {
	timer   Timer
	display Display
	link    Link
	queue   chan *command
}

// NewServer creates a control server. link may be nil when no remote is
// configured.
func NewServer(t Timer, d Display, link Link) *Server {
	return &Server{
		timer:   t,
		display: d,
		link:    link,
		queue:   make(chan *command, DefaultQueueSize),
	}
}

// Poll applies every queued command whose request is still waiting. It
// never blocks.
func (s *Server) Poll() {
	for {
		select {
		case cmd := <-s.queue:
			if !cmd.claim() {
				log.Debug().Str("command", cmd.name).Msg("skipping withdrawn control command")
				continue
			}
			err := cmd.apply()
			if err != nil {
				log.Debug().Err(err).Str("command", cmd.name).Msg("control command failed")
			} else {
				log.Debug().Str("command", cmd.name).Msg("control command applied")
			}
			cmd.done <- err
		default:
			return
		}
	}
}

// submit queues fn and waits for the loop to apply it. When ctx ends first
// the command is withdrawn, so an error always means it was not applied.
func (s *Server) submit(ctx context.Context, name string, fn func() error) error {
	cmd := &command{name: name, apply: fn, done: make(chan error, 1)}

	select {
	case s.queue <- cmd:
	default:
		return ErrQueueFull
	}

	select {
	case err := <-cmd.done:
		return err
	case <-ctx.Done():
		if cmd.cancel() {
			return fmt.Errorf("wait for %s: %w", name, ctx.Err())
		}
		// the loop already claimed it; apply never blocks
		return <-cmd.done
	}
}

// Handler returns the routed API wrapped in CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(mux)
}

// RegisterRoutes registers the API routes with mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api", s.HandleAction)
	mux.HandleFunc("/api/status", s.HandleStatus)
	mux.HandleFunc("/api/thresholds", s.HandleThresholds)
	mux.HandleFunc("/api/mode", s.HandleMode)
	mux.HandleFunc("/api/websocket/status", s.HandleWebSocketStatus)
	mux.HandleFunc("/api/websocket/connect", s.HandleWebSocketConnect)
	mux.HandleFunc("/api/websocket/disconnect", s.HandleWebSocketDisconnect)
	mux.HandleFunc("/api/network/status", s.HandleNetworkStatus)
	mux.HandleFunc("/health", handleHealth)
}

// NewHTTPServer serves the API on addr over HTTP/1.1 and h2c.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		log.Warn().Err(err).Msg("failed to write health check response")
	}
}
