package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenatimer/go/internal/config"
	"github.com/mcdev12/arenatimer/go/internal/control"
	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/mcdev12/arenatimer/go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// unreachableDialer never completes a dial; it waits for the handshake
// deadline like a blackholed remote.
type unreachableDialer struct {
	dials atomic.Int32
}

func (d *unreachableDialer) Dial(ctx context.Context, _ string) (socketio.Conn, error) {
	d.dials.Add(1)
	<-ctx.Done()
	return nil, ctx.Err()
}

type countingSurface struct {
	frames atomic.Int32
}

func (s *countingSurface) Render(display.Frame) error {
	s.frames.Add(1)
	return nil
}

func TestMainLoop_KeepsRunningWhileRemoteUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Remote.HandshakeTimeout = 300 * time.Millisecond
	cfg.Remote.ReconnectInterval = 300 * time.Millisecond

	clock := clockwork.NewRealClock()
	tm := timer.New(clock)
	tm.SetDuration(3, 0, 0)
	surface := &countingSurface{}
	renderer := display.NewRenderer(tm, surface)

	dialer := &unreachableDialer{}
	client := socketio.NewClient(tm, dialer, cfg.Remote.ClientConfig(), clock)
	client.SetTarget(socketio.Target{Host: "10.255.255.1", Port: 8765, Path: socketio.DefaultPath})
	srv := control.NewServer(tm, renderer, client)

	loop := setupScheduler(cfg, clock, renderer, srv, client)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = loop.Run(ctx)
	}()

	// a mutation submitted during the stalled dial is still applied
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()
	time.Sleep(100 * time.Millisecond)
	resp, err := http.Post(ts.URL+"/api", "application/x-www-form-urlencoded", strings.NewReader("action=start"))
	require.NoError(t, err)
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	<-done
	client.Disconnect()

	// about 100 ticks fit in a second at the 10ms yield
	assert.Greater(t, surface.frames.Load(), int32(40))
	assert.GreaterOrEqual(t, dialer.dials.Load(), int32(2))
	assert.True(t, tm.IsRunning())
}
