package socketio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// ErrWouldBlock is returned by Conn.Recv in non-blocking mode when no data
// is pending. It is not a failure.
var ErrWouldBlock = errors.New("no data available")

// Dialer opens transport connections.
type Dialer interface {
	Dial(ctx context.Context, address string) (Conn, error)
}

// Conn is the byte-stream capability the client speaks WebSocket over.
type Conn interface {
	// Send writes all of p.
	Send(p []byte) error

	// Recv reads whatever is available into p. In non-blocking mode it
	// returns ErrWouldBlock instead of waiting.
	Recv(p []byte) (int, error)

	// SetNonBlocking switches Recv between waiting and polling.
	SetNonBlocking(enabled bool) error

	// SetDeadline bounds blocking Send and Recv calls. The zero time clears it.
	SetDeadline(t time.Time) error

	// Close releases the connection.
	Close() error
}

// Default NetDialer settings.
const (
	DefaultPollWait     = time.Millisecond
	DefaultWriteTimeout = time.Second
)

// NetDialer dials TCP connections.
type NetDialer struct {
	// PollWait is how long a non-blocking Recv waits for data before
	// reporting ErrWouldBlock. net.Conn has no true non-blocking read, so a
	// short read deadline stands in for one.
	PollWait time.Duration

	// WriteTimeout bounds each Send once the connection is non-blocking.
	WriteTimeout time.Duration
}

// NewNetDialer returns a NetDialer with default timings.
func NewNetDialer() *NetDialer {
	return &NetDialer{
		PollWait:     DefaultPollWait,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.SetDeadline(deadline)
	}
	return &netConn{conn: c, pollWait: d.PollWait, writeTimeout: d.WriteTimeout}, nil
}

type netConn struct {
	conn         net.Conn
	nonBlocking  bool
	pollWait     time.Duration
	writeTimeout time.Duration
}

func (c *netConn) Send(p []byte) error {
	if c.nonBlocking && c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	_, err := c.conn.Write(p)
	return err
}

func (c *netConn) Recv(p []byte) (int, error) {
	if c.nonBlocking {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.pollWait))
	}
	n, err := c.conn.Read(p)
	if err != nil && c.nonBlocking && errors.Is(err, os.ErrDeadlineExceeded) {
		if n > 0 {
			return n, nil
		}
		return 0, ErrWouldBlock
	}
	return n, err
}

func (c *netConn) SetNonBlocking(enabled bool) error {
	c.nonBlocking = enabled
	return nil
}

func (c *netConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *netConn) Close() error {
	return c.conn.Close()
}
