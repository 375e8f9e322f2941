package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Engine.IO and Socket.IO packet prefixes.
const (
	PacketOpen    = "0"
	PacketClose   = "1"
	PacketPing    = "2"
	PacketPong    = "3"
	PacketMessage = "4"

	PacketConnect    = "40"
	PacketDisconnect = "41"
	PacketEvent      = "42"
)

// EventTimerUpdate is the event carrying timer commands.
const EventTimerUpdate = "timer_update"

// Session errors. All of them mean the packet was dropped.
var (
	ErrMalformedPacket = errors.New("malformed packet")
	ErrNotJoined       = errors.New("event before namespace connect")
	ErrKeepAliveStale  = errors.New("keep-alive stale")
)

// Event is a decoded Socket.IO EVENT packet.
type Event struct {
	Name string
	Data json.RawMessage
}

// TimerUpdate is the payload of a timer_update event.
type TimerUpdate struct {
	Action   string `json:"action"`
	Minutes  *int   `json:"minutes,omitempty"`
	Seconds  *int   `json:"seconds,omitempty"`
	Duration *int   `json:"duration,omitempty"`
}

// openPayload is the JSON body of an OPEN packet.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// Session tracks the Engine.IO keep-alive and Socket.IO namespace state of
// one connection and decides which packets are answered and which events
// are trusted.
type Session struct {
	joined       bool
	sid          string
	pingInterval time.Duration
	pingTimeout  time.Duration
	lastSeen     time.Time
}

// Handle processes one text packet received at now. It returns the reply
// to send, if any, and the event when the packet is a trusted EVENT.
//
// EVENT packets are trusted only after OPEN was answered and while the
// keep-alive is current; otherwise they are dropped with an error.
func (s *Session) Handle(packet string, now time.Time) (reply string, ev *Event, err error) {
	switch {
	case strings.HasPrefix(packet, PacketOpen):
		s.open(packet[len(PacketOpen):], now)
		return PacketConnect, nil, nil

	case strings.HasPrefix(packet, PacketPing):
		s.lastSeen = now
		return PacketPong, nil, nil

	case strings.HasPrefix(packet, PacketEvent):
		if !s.joined {
			return "", nil, ErrNotJoined
		}
		if s.Stale(now) {
			return "", nil, ErrKeepAliveStale
		}
		ev, err := ParseEvent(packet[len(PacketEvent):])
		if err != nil {
			return "", nil, err
		}
		return "", ev, nil
	}
	return "", nil, nil
}

// Stale reports whether the server has missed its ping deadline. A session
// that was never told a ping interval is never stale.
func (s *Session) Stale(now time.Time) bool {
	if s.pingInterval <= 0 {
		return false
	}
	return now.Sub(s.lastSeen) > s.pingInterval+s.pingTimeout
}

// Joined reports whether OPEN has been answered with a namespace connect.
func (s *Session) Joined() bool { return s.joined }

// SID returns the Engine.IO session id announced by the server.
func (s *Session) SID() string { return s.sid }

// Reset forgets all session state.
func (s *Session) Reset() {
	*s = Session{}
}

func (s *Session) open(body string, now time.Time) {
	s.joined = true
	s.lastSeen = now

	var p openPayload
	if err := json.Unmarshal([]byte(body), &p); err != nil {
		// OPEN is answered even when its body is unreadable
		return
	}
	s.sid = p.SID
	s.pingInterval = time.Duration(p.PingInterval) * time.Millisecond
	s.pingTimeout = time.Duration(p.PingTimeout) * time.Millisecond
}

// ParseEvent decodes the JSON array body of an EVENT packet.
func ParseEvent(body string) (*Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal([]byte(body), &parts); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPacket, err)
	}
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: event needs a name and data", ErrMalformedPacket)
	}

	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return nil, fmt.Errorf("%w: event name: %v", ErrMalformedPacket, err)
	}
	return &Event{Name: name, Data: parts[1]}, nil
}

// DecodeTimerUpdate decodes event data as a TimerUpdate.
func DecodeTimerUpdate(data json.RawMessage) (TimerUpdate, error) {
	var u TimerUpdate
	if err := json.Unmarshal(data, &u); err != nil {
		return TimerUpdate{}, fmt.Errorf("%w: timer_update: %v", ErrMalformedPacket, err)
	}
	return u, nil
}
