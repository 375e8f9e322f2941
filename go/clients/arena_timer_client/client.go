package arena_timer_client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/mcdev12/arenatimer/go/clients"
)

type Status struct {
	IsRunning   bool   `json:"isRunning"`
	IsPaused    bool   `json:"isPaused"`
	IsIdle      bool   `json:"isIdle"`
	IsExpired   bool   `json:"isExpired"`
	RemainingMs int64  `json:"remainingMs"`
	ElapsedMs   int64  `json:"elapsedMs"`
	DurationMs  int64  `json:"durationMs"`
	Mode        string `json:"mode"`
	Connected   bool   `json:"connected"`
}

type Threshold struct {
	Seconds int    `json:"seconds"`
	Color   string `json:"color"`
}

type ThresholdsResponse struct {
	Thresholds   []Threshold `json:"thresholds"`
	DefaultColor string      `json:"defaultColor"`
}

// WebSocketStatus is the device's link to the remote event source.
type WebSocketStatus struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
	URL       string `json:"url"`
}

// RemoteResponse acknowledges a websocket connect or disconnect.
type RemoteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

type NetworkStatus struct {
	IP string `json:"ip"`
}

// ArenaTimerClient talks to the device HTTP control API.
type ArenaTimerClient struct {
	*clients.BaseClient
}

func NewArenaTimerClient(baseURL string) *ArenaTimerClient {
	return &ArenaTimerClient{
		BaseClient: clients.NewBaseClient(baseURL),
	}
}

func (c *ArenaTimerClient) Start(ctx context.Context) (Status, error) {
	return c.action(ctx, url.Values{"action": {ActionStart}})
}

func (c *ArenaTimerClient) Pause(ctx context.Context) (Status, error) {
	return c.action(ctx, url.Values{"action": {ActionPause}})
}

func (c *ArenaTimerClient) Reset(ctx context.Context) (Status, error) {
	return c.action(ctx, url.Values{"action": {ActionReset}})
}

func (c *ArenaTimerClient) Flip(ctx context.Context) (Status, error) {
	return c.action(ctx, url.Values{"action": {ActionFlip}})
}

// ApplySettings sets the countdown duration in seconds and resets the
// timer. A nil brightness leaves it unchanged.
func (c *ArenaTimerClient) ApplySettings(ctx context.Context, durationSeconds int, brightness *int) (Status, error) {
	values := url.Values{
		"action":   {ActionSettings},
		"duration": {strconv.Itoa(durationSeconds)},
	}
	if brightness != nil {
		values.Set("brightness", strconv.Itoa(*brightness))
	}
	return c.action(ctx, values)
}

func (c *ArenaTimerClient) Status(ctx context.Context) (Status, error) {
	body, err := c.Get(ctx, StatusEndpoint)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get status: %w", err)
	}
	return decodeStatus(body)
}

func (c *ArenaTimerClient) Thresholds(ctx context.Context) (ThresholdsResponse, error) {
	body, err := c.Get(ctx, ThresholdsEndpoint)
	if err != nil {
		return ThresholdsResponse{}, fmt.Errorf("failed to get thresholds: %w", err)
	}

	var response ThresholdsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ThresholdsResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response, nil
}

// SetThresholds replaces the color thresholds. spec uses the
// "120:#FFFF00|60:#FF0000" form; an empty defaultColor keeps the current one.
func (c *ArenaTimerClient) SetThresholds(ctx context.Context, spec, defaultColor string) (ThresholdsResponse, error) {
	values := url.Values{"thresholds": {spec}}
	if defaultColor != "" {
		values.Set("default", defaultColor)
	}

	body, err := c.PostForm(ctx, ThresholdsEndpoint, values)
	if err != nil {
		return ThresholdsResponse{}, fmt.Errorf("failed to set thresholds: %w", err)
	}

	var response ThresholdsResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return ThresholdsResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response, nil
}

func (c *ArenaTimerClient) SetMode(ctx context.Context, mode string) (Status, error) {
	body, err := c.PostForm(ctx, ModeEndpoint, url.Values{"mode": {mode}})
	if err != nil {
		return Status{}, fmt.Errorf("failed to set mode: %w", err)
	}
	return decodeStatus(body)
}

// Health returns nil when the device answers its health check.
func (c *ArenaTimerClient) Health(ctx context.Context) error {
	if _, err := c.Get(ctx, HealthEndpoint); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

func (c *ArenaTimerClient) WebSocketStatus(ctx context.Context) (WebSocketStatus, error) {
	body, err := c.Get(ctx, WebSocketStatusEndpoint)
	if err != nil {
		return WebSocketStatus{}, fmt.Errorf("failed to get websocket status: %w", err)
	}

	var response WebSocketStatus
	if err := json.Unmarshal(body, &response); err != nil {
		return WebSocketStatus{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response, nil
}

// ConnectWebSocket points the device at a Socket.IO server. A zero port or
// empty path uses the device defaults. The device dials in the background;
// poll WebSocketStatus for the outcome.
func (c *ArenaTimerClient) ConnectWebSocket(ctx context.Context, host string, port int, path string) (RemoteResponse, error) {
	values := url.Values{"host": {host}}
	if port != 0 {
		values.Set("port", strconv.Itoa(port))
	}
	if path != "" {
		values.Set("path", path)
	}

	body, err := c.PostForm(ctx, WebSocketConnectEndpoint, values)
	if err != nil {
		return RemoteResponse{}, fmt.Errorf("failed to connect websocket: %w", err)
	}
	return decodeRemote(body)
}

func (c *ArenaTimerClient) DisconnectWebSocket(ctx context.Context) (RemoteResponse, error) {
	body, err := c.PostForm(ctx, WebSocketDisconnectEndpoint, url.Values{})
	if err != nil {
		return RemoteResponse{}, fmt.Errorf("failed to disconnect websocket: %w", err)
	}
	return decodeRemote(body)
}

func (c *ArenaTimerClient) NetworkStatus(ctx context.Context) (NetworkStatus, error) {
	body, err := c.Get(ctx, NetworkStatusEndpoint)
	if err != nil {
		return NetworkStatus{}, fmt.Errorf("failed to get network status: %w", err)
	}

	var response NetworkStatus
	if err := json.Unmarshal(body, &response); err != nil {
		return NetworkStatus{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response, nil
}

func (c *ArenaTimerClient) action(ctx context.Context, values url.Values) (Status, error) {
	body, err := c.PostForm(ctx, ActionEndpoint, values)
	if err != nil {
		return Status{}, fmt.Errorf("failed to send %s: %w", values.Get("action"), err)
	}
	return decodeStatus(body)
}

func decodeStatus(body []byte) (Status, error) {
	var status Status
	if err := json.Unmarshal(body, &status); err != nil {
		return Status{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return status, nil
}

func decodeRemote(body []byte) (RemoteResponse, error) {
	var response RemoteResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return RemoteResponse{}, fmt.Errorf("failed to unmarshal response: %w, raw response: %s", err, string(body))
	}
	return response, nil
}
