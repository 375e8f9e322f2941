package socketio

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	// switchingProtocols must appear in the upgrade response.
	switchingProtocols = "101 Switching Protocols"

	// handshakeReadSize bounds the single handshake read.
	handshakeReadSize = 1024

	// DefaultPath is the Socket.IO endpoint path.
	DefaultPath = "/socket.io/"
)

// ErrHandshake matches every *HandshakeError with errors.Is.
var ErrHandshake = errors.New("websocket handshake failed")

// HandshakeError reports a failed Connect. Err is nil when the server
// answered with something other than a protocol switch.
type HandshakeError struct {
	Addr   string
	Status string
	Err    error
}

func (e *HandshakeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("handshake with %s: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("handshake with %s: unexpected response %q", e.Addr, e.Status)
}

func (e *HandshakeError) Unwrap() error { return e.Err }

func (e *HandshakeError) Is(target error) bool { return target == ErrHandshake }

// newWebSocketKey returns a fresh base64-encoded 16-byte nonce.
func newWebSocketKey() (string, error) {
	var nonce [16]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generate websocket key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce[:]), nil
}

// buildHandshakeRequest builds the HTTP upgrade request for the Engine.IO
// websocket transport.
func buildHandshakeRequest(host string, port int, path, key string) []byte {
	if path == "" {
		path = DefaultPath
	}
	var b strings.Builder
	fmt.Fprintf(&b, "GET %s?EIO=4&transport=websocket HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s:%d\r\n", host, port)
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	b.WriteString("Sec-WebSocket-Version: 13\r\n")
	b.WriteString("\r\n")
	return []byte(b.String())
}

// splitHandshakeResponse returns the status line and any bytes that
// followed the response headers in the same read.
func splitHandshakeResponse(resp []byte) (status string, rest []byte) {
	head := resp
	if i := bytes.Index(resp, []byte("\r\n\r\n")); i >= 0 {
		head = resp[:i]
		rest = resp[i+4:]
	}
	status, _, _ = strings.Cut(string(head), "\r\n")
	return status, rest
}
