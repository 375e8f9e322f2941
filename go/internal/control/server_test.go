package control

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/mcdev12/arenatimer/go/internal/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLink struct {
	connected atomic.Bool

	mu           sync.Mutex
	target       socketio.Target
	status       string
	dials        []socketio.Target
	disconnected int
}

func (l *fakeLink) Connected() bool { return l.connected.Load() }

func (l *fakeLink) Status() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.status == "" {
		return "Not connected"
	}
	return l.status
}

func (l *fakeLink) Target() socketio.Target {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.target
}

func (l *fakeLink) BeginConnect(t socketio.Target) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.target = t
	l.status = "Connecting..."
	l.dials = append(l.dials, t)
}

func (l *fakeLink) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.status = "Disconnected"
	l.disconnected++
}

type fixture struct {
	srv      *Server
	timer    *timer.Timer
	renderer *display.Renderer
	clock    *clockwork.FakeClock
	link     *fakeLink
	handler  http.Handler
}

// newFixture builds a server whose queue is drained by a background loop,
// the way the scheduler drains it on the device.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClock()
	tm := timer.New(clock)
	tm.SetDuration(3, 0, 0)
	r := display.NewRenderer(tm, display.NewTerminalSurface(io.Discard))
	link := &fakeLink{}
	srv := NewServer(tm, r, link)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Millisecond):
				srv.Poll()
			}
		}
	}()

	return &fixture{srv: srv, timer: tm, renderer: r, clock: clock, link: link, handler: srv.Handler()}
}

func (f *fixture) do(t *testing.T, method, target string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) Status {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	return st
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestStatus_Idle(t *testing.T) {
	f := newFixture(t)
	f.link.connected.Store(true)

	st := decodeStatus(t, f.do(t, http.MethodGet, "/api/status", nil))
	assert.True(t, st.IsIdle)
	assert.False(t, st.IsRunning)
	assert.False(t, st.IsExpired)
	assert.Equal(t, int64(180_000), st.DurationMs)
	assert.Equal(t, int64(180_000), st.RemainingMs)
	assert.Equal(t, "timer", st.Mode)
	assert.True(t, st.Connected)
}

func TestStatus_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/status", url.Values{})
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAction_StartPauseReset(t *testing.T) {
	f := newFixture(t)

	st := decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"start"}}))
	assert.True(t, st.IsRunning)

	f.clock.Advance(2 * time.Second)
	st = decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"pause"}}))
	assert.True(t, st.IsPaused)
	assert.Equal(t, int64(2000), st.ElapsedMs)
	assert.Equal(t, int64(178_000), st.RemainingMs)

	st = decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"start"}}))
	assert.True(t, st.IsRunning)
	st = decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"stop"}}))
	assert.True(t, st.IsPaused)

	st = decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"reset"}}))
	assert.True(t, st.IsIdle)
	assert.Zero(t, st.ElapsedMs)
}

func TestAction_QueryString(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api?action=start", nil)
	assert.True(t, decodeStatus(t, rec).IsRunning)
}

func TestAction_JSONBody(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{"action":"settings","duration":75,"brightness":64}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	st := decodeStatus(t, rec)
	assert.Equal(t, int64(75_000), st.DurationMs)
	assert.Equal(t, uint8(64), f.renderer.Brightness())
}

func TestAction_Settings(t *testing.T) {
	f := newFixture(t)

	decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"start"}}))
	f.clock.Advance(5 * time.Second)

	st := decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{
		"action":     {"settings"},
		"duration":   {"90"},
		"brightness": {"128"},
	}))
	assert.True(t, st.IsIdle)
	assert.Equal(t, int64(90_000), st.DurationMs)
	assert.Equal(t, int64(90_000), st.RemainingMs)
	assert.Equal(t, uint8(128), f.renderer.Brightness())
}

func TestAction_SettingsDefaultsDuration(t *testing.T) {
	f := newFixture(t)
	f.timer.SetDuration(1, 0, 0)

	st := decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"settings"}}))
	assert.Equal(t, int64(180_000), st.DurationMs)
	assert.Equal(t, uint8(255), f.renderer.Brightness())
}

func TestAction_Flip(t *testing.T) {
	f := newFixture(t)

	decodeStatus(t, f.do(t, http.MethodPost, "/api", url.Values{"action": {"flip"}}))
	assert.True(t, f.renderer.Frame().Flipped)
}

func TestAction_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		body string
	}{
		{"unknown action", url.Values{"action": {"explode"}}, "Unknown action\n"},
		{"missing action", url.Values{}, "Unknown action\n"},
		{"brightness out of range", url.Values{"action": {"settings"}, "brightness": {"300"}}, ""},
		{"negative duration", url.Values{"action": {"settings"}, "duration": {"-5"}}, ""},
		{"non-numeric duration", url.Values{"action": {"settings"}, "duration": {"ten"}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/api", tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
			assert.True(t, f.timer.IsIdle())
		})
	}
}

func TestAction_MalformedJSON(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api", strings.NewReader(`{"action":`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAction_MethodNotAllowed(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api?action=start", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.True(t, f.timer.IsIdle())
}

func TestThresholds_SetAndGet(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"thresholds":[],"defaultColor":"#00FF00"}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/thresholds", url.Values{
		"thresholds": {"120:#FFFF00|60:#FF0000"},
		"default":    {"#0000FF"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"thresholds":[{"seconds":60,"color":"#FF0000"},{"seconds":120,"color":"#FFFF00"}],
		"defaultColor":"#0000FF"
	}`, rec.Body.String())
}

func TestThresholds_EmptyClears(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.renderer.AddColorThreshold(30, display.Red))

	rec := f.do(t, http.MethodPost, "/api/thresholds", url.Values{"thresholds": {""}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, f.renderer.Thresholds())
}

func TestThresholds_BadInput(t *testing.T) {
	tooMany := make([]string, display.MaxThresholds+1)
	for i := range tooMany {
		tooMany[i] = "10:#FF0000"
	}

	tests := []struct {
		name string
		form url.Values
	}{
		{"bad color", url.Values{"thresholds": {"60:#XYZ"}}},
		{"bad seconds", url.Values{"thresholds": {"soon:#FF0000"}}},
		{"too many", url.Values{"thresholds": {strings.Join(tooMany, "|")}}},
		{"bad default", url.Values{"thresholds": {"60:#FF0000"}, "default": {"blue"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			rec := f.do(t, http.MethodPost, "/api/thresholds", tt.form)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, f.renderer.Thresholds())
		})
	}
}

func TestMode(t *testing.T) {
	f := newFixture(t)

	st := decodeStatus(t, f.do(t, http.MethodPost, "/api/mode", url.Values{"mode": {"stopwatch"}}))
	assert.Equal(t, "stopwatch", st.Mode)
	assert.Equal(t, display.ModeStopwatch, f.renderer.Mode())

	rec := f.do(t, http.MethodPost, "/api/mode", url.Values{"mode": {"clock"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/mode", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	req := httptest.NewRequest(http.MethodOptions, "/api", nil)
	req.Header.Set("Origin", "http://scoreboard.local")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.True(t, f.timer.IsIdle())
}

func TestSubmit_QueueFull(t *testing.T) {
	tm := timer.New(clockwork.NewFakeClock())
	srv := NewServer(tm, display.NewRenderer(tm, display.NewTerminalSurface(io.Discard)), nil)
	for i := 0; i < DefaultQueueSize; i++ {
		srv.queue <- &command{name: "filler", apply: func() error { return nil }, done: make(chan error, 1)}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api?action=start", nil)
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	srv.Poll()
	assert.True(t, tm.IsIdle())
}

func TestSubmit_RequestCancelledBeforePollIsNotApplied(t *testing.T) {
	tm := timer.New(clockwork.NewFakeClock())
	tm.SetDuration(3, 0, 0)
	srv := NewServer(tm, display.NewRenderer(tm, display.NewTerminalSurface(io.Discard)), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/api?action=settings&duration=30", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	// a 503 means the withdrawn command never lands
	srv.Poll()
	assert.Equal(t, 3*time.Minute, tm.Duration())
	assert.Empty(t, srv.queue)
}

func TestCommand_ClaimAndCancelAreExclusive(t *testing.T) {
	claimed := &command{name: "start"}
	require.True(t, claimed.claim())
	assert.False(t, claimed.cancel())

	cancelled := &command{name: "start"}
	require.True(t, cancelled.cancel())
	assert.False(t, cancelled.claim())
}

func TestPoll_SkipsCancelledCommand(t *testing.T) {
	tm := timer.New(clockwork.NewFakeClock())
	srv := NewServer(tm, display.NewRenderer(tm, display.NewTerminalSurface(io.Discard)), nil)

	var applied atomic.Int32
	withdrawn := &command{name: "start", apply: func() error { applied.Add(1); return nil }, done: make(chan error, 1)}
	require.True(t, withdrawn.cancel())
	kept := &command{name: "pause", apply: func() error { applied.Add(1); return nil }, done: make(chan error, 1)}
	srv.queue <- withdrawn
	srv.queue <- kept

	srv.Poll()
	assert.Equal(t, int32(1), applied.Load())
	assert.Empty(t, withdrawn.done)
	assert.NoError(t, <-kept.done)
}

func TestStatus_NoLink(t *testing.T) {
	tm := timer.New(clockwork.NewFakeClock())
	srv := NewServer(tm, display.NewRenderer(tm, display.NewTerminalSurface(io.Discard)), nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	assert.False(t, decodeStatus(t, rec).Connected)
}

func TestNewHTTPServer(t *testing.T) {
	tm := timer.New(clockwork.NewFakeClock())
	srv := NewServer(tm, display.NewRenderer(tm, display.NewTerminalSurface(io.Discard)), nil)

	hs := srv.NewHTTPServer(":8080")
	assert.Equal(t, ":8080", hs.Addr)

	ts := httptest.NewServer(hs.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
