package bridge

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUpdateMsg(t *testing.T) {
	u := Relayed{
		ID:              "6f1c2a",
		Action:          "start",
		DurationSeconds: 300,
		Restarted:       true,
		Timestamp:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	msg, err := newUpdateMsg("arena.timer.updates", u)
	require.NoError(t, err)

	assert.Equal(t, "arena.timer.updates", msg.Subject)
	assert.Equal(t, "6f1c2a", msg.Header.Get(nats.MsgIdHdr))
	assert.Equal(t, "6f1c2a", msg.Header.Get("Nats-Msg-Id"))
	assert.JSONEq(t, `{
		"id": "6f1c2a",
		"action": "start",
		"durationSeconds": 300,
		"restarted": true,
		"timestamp": "2024-05-01T12:00:00Z"
	}`, string(msg.Data))
}

func TestNewUpdateMsg_OmitsEmptyOptionalFields(t *testing.T) {
	msg, err := newUpdateMsg("arena.timer.updates", Relayed{
		ID:              "a1",
		Action:          "stop",
		DurationSeconds: 180,
		Error:           "device unreachable",
		Timestamp:       time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"id": "a1",
		"action": "stop",
		"durationSeconds": 180,
		"error": "device unreachable",
		"timestamp": "2024-05-01T12:00:00Z"
	}`, string(msg.Data))
}
