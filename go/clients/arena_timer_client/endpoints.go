package arena_timer_client

const (
	// API Endpoints
	ActionEndpoint     = "/api"
	StatusEndpoint     = "/api/status"
	ThresholdsEndpoint = "/api/thresholds"
	ModeEndpoint       = "/api/mode"
	HealthEndpoint     = "/health"

	WebSocketStatusEndpoint     = "/api/websocket/status"
	WebSocketConnectEndpoint    = "/api/websocket/connect"
	WebSocketDisconnectEndpoint = "/api/websocket/disconnect"
	NetworkStatusEndpoint       = "/api/network/status"

	// Actions
	ActionStart    = "start"
	ActionPause    = "pause"
	ActionReset    = "reset"
	ActionFlip     = "flip"
	ActionSettings = "settings"

	// Display modes
	ModeTimer     = "timer"
	ModeStopwatch = "stopwatch"
)
