package socketio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// WebSocket opcodes. Only OpText is dispatched; the rest are consumed and
// ignored.
const (
	OpContinuation byte = 0x0
	OpText         byte = 0x1
	OpBinary       byte = 0x2
	OpClose        byte = 0x8
	OpPing         byte = 0x9
	OpPong         byte = 0xA
)

const (
	finBit  = 0x80
	maskBit = 0x80

	// MaxPayloadSize is the largest payload EncodeTextFrame accepts. Only
	// the 7-bit and 16-bit length forms are written.
	MaxPayloadSize = 65535

	len16Marker = 126
	len64Marker = 127
)

// Framing errors.
var (
	// ErrIncompleteFrame indicates the buffer does not yet hold a whole frame.
	ErrIncompleteFrame = errors.New("incomplete frame")

	// ErrPayloadTooLarge indicates an outgoing payload over MaxPayloadSize.
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Frame is a single decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  byte
	Length  int
	Payload []byte
}

// DecodeFrame parses one frame from the start of buf and returns it with
// the number of bytes consumed.
//
// Known limitations:
//   - For the 127 length marker the 8-byte extended length is skipped and
//     127 itself is used as the payload length. Payloads are only handled
//     correctly up to 125 bytes or in the 16-bit (126) range.
//   - The mask bit is neither validated nor stripped. Servers do not mask.
func DecodeFrame(buf []byte) (Frame, int, error) {
	if len(buf) < 2 {
		return Frame{}, 0, ErrIncompleteFrame
	}

	f := Frame{
		Fin:    buf[0]&finBit != 0,
		Opcode: buf[0] & 0x0F,
	}

	length := int(buf[1] & 0x7F)
	offset := 2
	switch length {
	case len16Marker:
		if len(buf) < 4 {
			return Frame{}, 0, ErrIncompleteFrame
		}
		length = int(binary.BigEndian.Uint16(buf[2:4]))
		offset = 4
	case len64Marker:
		offset = 10
	}

	if len(buf) < offset+length {
		return Frame{}, 0, ErrIncompleteFrame
	}

	f.Length = length
	f.Payload = append([]byte(nil), buf[offset:offset+length]...)
	return f, offset + length, nil
}

// EncodeTextFrame builds a single unfragmented text frame.
// A 4-byte maskKey masks the payload as RFC 6455 requires of clients; a nil
// key sends it unmasked.
func EncodeTextFrame(payload, maskKey []byte) ([]byte, error) {
	n := len(payload)
	if n > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLarge, n, MaxPayloadSize)
	}
	if maskKey != nil && len(maskKey) != 4 {
		return nil, fmt.Errorf("mask key must be 4 bytes, got %d", len(maskKey))
	}

	var mask byte
	if maskKey != nil {
		mask = maskBit
	}

	out := make([]byte, 0, 4+len(maskKey)+n)
	out = append(out, finBit|OpText)
	if n <= 125 {
		out = append(out, mask|byte(n))
	} else {
		out = append(out, mask|len16Marker, byte(n>>8), byte(n))
	}

	if maskKey == nil {
		return append(out, payload...), nil
	}

	out = append(out, maskKey...)
	for i, b := range payload {
		out = append(out, b^maskKey[i%4])
	}
	return out, nil
}
