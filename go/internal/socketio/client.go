package socketio

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// State is the connection state of a Client.
type State string

const (
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosed     State = "closed"
)

// Default reset duration when a reset command omits it.
const (
	DefaultResetMinutes = 3
	DefaultResetSeconds = 0
)

// Controller is the timer surface the client drives.
type Controller interface {
	Start()
	Stop()
	Reset()
	SetDuration(minutes, seconds, millis int)
}

// Config holds client settings.
type Config struct {
	// HandshakeTimeout bounds dialing plus the handshake exchange.
	HandshakeTimeout time.Duration

	// DisableMasking sends client frames unmasked. RFC 6455 requires
	// masking; only disable it for servers known to accept unmasked frames.
	DisableMasking bool

	// ReadSize is the size of each non-blocking read.
	ReadSize int

	// MaxBufferSize drops buffered bytes that never form a complete frame.
	MaxBufferSize int
}

// DefaultConfig returns default client settings.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 5 * time.Second,
		ReadSize:         2048,
		MaxBufferSize:    64 * 1024,
	}
}

// Target is the Socket.IO server the client connects to.
type Target struct {
	Host string
	Port int
	Path string
}

// URL returns the target as a ws:// URL, or "" when no host is set.
func (t Target) URL() string {
	if t.Host == "" {
		return ""
	}
	return "ws://" + net.JoinHostPort(t.Host, strconv.Itoa(t.Port)) + t.Path
}

// dialResult is the outcome of one dial and handshake.
type dialResult struct {
	conn Conn
	rest []byte
	err  error
}

// Client is a minimal WebSocket + Socket.IO client that turns timer_update
// events into timer commands.
//
// The client is driven from a single loop goroutine: Connect, BeginConnect,
// Poll and Disconnect must not be called concurrently. State, Connected,
// Status and Target are safe to call from anywhere.
type Client struct {
	ctrl   Controller
	dialer Dialer
	config Config
	clock  clockwork.Clock

	conn    Conn
	connID  string
	addr    string
	buf     []byte
	readBuf []byte
	session Session

	// pending carries the result of a dial started by BeginConnect.
	pending       chan dialResult
	cancelPending context.CancelFunc

	mu        sync.RWMutex
	state     State
	target    Target
	attempted bool
	manual    bool
}

// NewClient creates a disconnected client. Pass a nil clock to use the
// real clock.
func NewClient(ctrl Controller, dialer Dialer, config Config, clock clockwork.Clock) *Client {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.ReadSize <= 0 {
		config.ReadSize = DefaultConfig().ReadSize
	}
	if config.MaxBufferSize <= 0 {
		config.MaxBufferSize = DefaultConfig().MaxBufferSize
	}
	return &Client{
		ctrl:    ctrl,
		dialer:  dialer,
		config:  config,
		clock:   clock,
		readBuf: make([]byte, config.ReadSize),
		state:   StateClosed,
	}
}

// State returns the connection state.
func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Connected reports whether the handshake completed and the transport is
// still up.
func (c *Client) Connected() bool {
	return c.State() == StateOpen
}

// Target returns the last server Connect or BeginConnect was pointed at.
func (c *Client) Target() Target {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.target
}

// SetTarget records the server to connect to without dialing.
func (c *Client) SetTarget(t Target) {
	c.mu.Lock()
	c.target = t
	c.mu.Unlock()
}

// Status describes the link for operators: "Connected", "Connecting...",
// "Disconnected" after an explicit Disconnect, "Reconnecting..." after a
// lost or failed connection, otherwise "Not connected".
func (c *Client) Status() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch {
	case c.state == StateOpen:
		return "Connected"
	case c.state == StateConnecting:
		return "Connecting..."
	case c.manual:
		return "Disconnected"
	case c.attempted && c.target.Host != "":
		return "Reconnecting..."
	}
	return "Not connected"
}

// ShouldReconnect reports whether a supervisor should dial again: a target
// is set, nothing is open or in flight, and the operator did not
// disconnect.
func (c *Client) ShouldReconnect() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state == StateClosed && !c.manual && c.target.Host != ""
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// begin drops any current or pending connection and records t as the
// target of a new attempt.
func (c *Client) begin(t Target) {
	c.abort()

	c.connID = uuid.New().String()[:8]
	c.addr = net.JoinHostPort(t.Host, strconv.Itoa(t.Port))

	c.mu.Lock()
	c.target = t
	c.attempted = true
	c.manual = false
	c.state = StateConnecting
	c.mu.Unlock()
}

// Connect opens the transport and performs the WebSocket upgrade, blocking
// for at most HandshakeTimeout. On failure it returns a *HandshakeError and
// leaves the client disconnected. Retrying is the caller's job.
func (c *Client) Connect(ctx context.Context, host string, port int, path string) error {
	c.begin(Target{Host: host, Port: port, Path: path})

	if c.config.HandshakeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
		defer cancel()
	}
	return c.install(c.dial(ctx, c.addr, host, port, path))
}

// BeginConnect starts dialing t in the background and returns at once. The
// connection is installed by the Poll that observes the finished
// handshake. A later Connect, BeginConnect or Disconnect abandons the
// attempt.
func (c *Client) BeginConnect(t Target) {
	c.begin(t)

	ctx := context.Background()
	var cancel context.CancelFunc
	if c.config.HandshakeTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.config.HandshakeTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}

	result := make(chan dialResult, 1)
	c.pending = result
	c.cancelPending = cancel

	addr := c.addr
	go func() {
		defer cancel()
		result <- c.dial(ctx, addr, t.Host, t.Port, t.Path)
	}()

	log.Debug().
		Str("conn_id", c.connID).
		Str("remote", c.addr).
		Msg("websocket connect started")
}

// install adopts a finished dial or reports its failure.
func (c *Client) install(res dialResult) error {
	if res.err != nil {
		c.release()
		log.Warn().
			Err(res.err).
			Str("conn_id", c.connID).
			Str("remote", c.addr).
			Msg("websocket connect failed")
		return res.err
	}

	c.conn = res.conn
	// the server may pipeline its OPEN packet right behind the headers
	c.buf = append(c.buf[:0], res.rest...)
	c.setState(StateOpen)
	log.Info().
		Str("conn_id", c.connID).
		Str("remote", c.addr).
		Msg("websocket connected")
	return nil
}

// dial connects and upgrades without touching loop-owned client state, so
// it can run off the loop goroutine. The connection is closed on failure.
func (c *Client) dial(ctx context.Context, addr, host string, port int, path string) dialResult {
	conn, err := c.dialer.Dial(ctx, addr)
	if err != nil {
		return dialResult{err: &HandshakeError{Addr: addr, Err: err}}
	}

	// cancelling ctx unblocks a pending handshake read
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	rest, err := handshake(ctx, conn, addr, host, port, path)
	stop()
	if err != nil {
		if cerr := conn.Close(); cerr != nil {
			log.Debug().Err(cerr).Str("remote", addr).Msg("close transport")
		}
		return dialResult{err: err}
	}
	return dialResult{conn: conn, rest: rest}
}

func handshake(ctx context.Context, conn Conn, addr, host string, port int, path string) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, &HandshakeError{Addr: addr, Err: fmt.Errorf("set deadline: %w", err)}
		}
	}

	key, err := newWebSocketKey()
	if err != nil {
		return nil, &HandshakeError{Addr: addr, Err: err}
	}
	if err := conn.Send(buildHandshakeRequest(host, port, path, key)); err != nil {
		return nil, &HandshakeError{Addr: addr, Err: fmt.Errorf("send upgrade request: %w", err)}
	}

	resp := make([]byte, handshakeReadSize)
	n, err := conn.Recv(resp)
	if err != nil && n == 0 {
		return nil, &HandshakeError{Addr: addr, Err: fmt.Errorf("read upgrade response: %w", err)}
	}
	resp = resp[:n]

	status, rest := splitHandshakeResponse(resp)
	if !bytes.Contains(resp, []byte(switchingProtocols)) {
		return nil, &HandshakeError{Addr: addr, Status: status}
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return nil, &HandshakeError{Addr: addr, Err: fmt.Errorf("clear deadline: %w", err)}
	}
	if err := conn.SetNonBlocking(true); err != nil {
		return nil, &HandshakeError{Addr: addr, Err: fmt.Errorf("set non-blocking: %w", err)}
	}
	return append([]byte(nil), rest...), nil
}

// collect installs a background dial once it has finished. It never
// blocks.
func (c *Client) collect() {
	select {
	case res := <-c.pending:
		c.pending = nil
		c.cancelPending = nil
		_ = c.install(res)
	default:
	}
}

// Poll installs a finished background dial, then performs one non-blocking
// read and dispatches every complete frame buffered so far. No data is a
// no-op. Any I/O failure closes the
// connection and is logged, never returned.
func (c *Client) Poll() {
	if c.pending != nil {
		c.collect()
	}
	if c.conn == nil || c.State() != StateOpen {
		return
	}

	n, err := c.conn.Recv(c.readBuf)
	switch {
	case errors.Is(err, ErrWouldBlock):
	case err != nil:
		c.fail("read", err)
		return
	default:
		c.buf = append(c.buf, c.readBuf[:n]...)
	}

	c.drain()
}

// drain decodes and dispatches buffered frames until none is complete.
func (c *Client) drain() {
	for c.conn != nil && len(c.buf) > 0 {
		frame, consumed, err := DecodeFrame(c.buf)
		if err != nil {
			if len(c.buf) > c.config.MaxBufferSize {
				log.Warn().
					Str("conn_id", c.connID).
					Int("buffered", len(c.buf)).
					Msg("dropping oversized partial frame")
				c.buf = c.buf[:0]
			}
			return
		}
		c.buf = append(c.buf[:0], c.buf[consumed:]...)

		if frame.Opcode != OpText {
			log.Debug().
				Str("conn_id", c.connID).
				Uint8("opcode", frame.Opcode).
				Msg("ignoring non-text frame")
			continue
		}
		c.dispatch(string(frame.Payload))
	}
}

// dispatch handles one Engine.IO packet.
func (c *Client) dispatch(packet string) {
	reply, ev, err := c.session.Handle(packet, c.clock.Now())
	if err != nil {
		evt := log.Debug()
		if errors.Is(err, ErrKeepAliveStale) {
			evt = log.Warn()
		}
		evt.Err(err).Str("conn_id", c.connID).Msg("dropped packet")
	}

	if reply != "" {
		if err := c.send(reply); err != nil {
			c.fail("write", err)
			return
		}
	}

	if ev != nil && ev.Name == EventTimerUpdate {
		c.handleTimerUpdate(ev)
	}
}

func (c *Client) handleTimerUpdate(ev *Event) {
	u, err := DecodeTimerUpdate(ev.Data)
	if err != nil {
		log.Debug().Err(err).Str("conn_id", c.connID).Msg("dropped timer_update")
		return
	}

	switch u.Action {
	case "start":
		c.ctrl.Start()
	case "stop":
		c.ctrl.Stop()
	case "reset":
		minutes, seconds := DefaultResetMinutes, DefaultResetSeconds
		if u.Minutes != nil {
			minutes = *u.Minutes
		}
		if u.Seconds != nil {
			seconds = *u.Seconds
		}
		c.ctrl.SetDuration(minutes, seconds, 0)
		c.ctrl.Reset()
	default:
		log.Debug().
			Str("conn_id", c.connID).
			Str("action", u.Action).
			Msg("ignoring unknown timer action")
		return
	}

	log.Info().
		Str("conn_id", c.connID).
		Str("action", u.Action).
		Msg("applied timer_update")
}

// Send writes text as a single text frame.
func (c *Client) Send(text string) error {
	if c.conn == nil || c.State() != StateOpen {
		return fmt.Errorf("send: %w", net.ErrClosed)
	}
	if err := c.send(text); err != nil {
		c.fail("write", err)
		return err
	}
	return nil
}

func (c *Client) send(text string) error {
	var key []byte
	if !c.config.DisableMasking {
		key = make([]byte, 4)
		if _, err := rand.Read(key); err != nil {
			return fmt.Errorf("generate mask key: %w", err)
		}
	}

	frame, err := EncodeTextFrame([]byte(text), key)
	if err != nil {
		return err
	}
	return c.conn.Send(frame)
}

// fail tears the connection down after an I/O error.
func (c *Client) fail(op string, err error) {
	log.Warn().
		Err(err).
		Str("conn_id", c.connID).
		Str("remote", c.addr).
		Str("op", op).
		Msg("websocket connection lost")
	c.release()
}

// Disconnect releases the transport, abandons any background dial and
// clears all connection state. It is safe to call at any time and leaves
// the client ready for Connect. ShouldReconnect stays false until the next
// Connect or BeginConnect.
func (c *Client) Disconnect() {
	if c.conn != nil || c.pending != nil {
		log.Info().Str("conn_id", c.connID).Msg("websocket disconnecting")
	}
	c.abort()

	c.mu.Lock()
	c.manual = true
	c.mu.Unlock()
}

// abort drops the current connection and any dial in flight.
func (c *Client) abort() {
	if c.pending != nil {
		c.cancelPending()
		// the dial goroutine always delivers; close what it brings back
		go func(result <-chan dialResult) {
			if res := <-result; res.conn != nil {
				res.conn.Close()
			}
		}(c.pending)
		c.pending = nil
		c.cancelPending = nil
	}
	c.release()
}

func (c *Client) release() {
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			log.Debug().Err(err).Str("conn_id", c.connID).Msg("close transport")
		}
		c.conn = nil
	}
	c.buf = c.buf[:0]
	c.session.Reset()
	c.setState(StateClosed)
}
