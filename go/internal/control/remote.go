package control

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/rs/zerolog/log"
)

// Defaults for POST /api/websocket/connect.
const (
	DefaultRemotePort = 8765
	DefaultRemotePath = socketio.DefaultPath
)

var errNoHost = errors.New("host parameter required")

// LinkStatus is the body of GET /api/websocket/status.
type LinkStatus struct {
	Connected bool   `json:"connected"`
	Status    string `json:"status"`
	URL       string `json:"url"`
}

// RemoteResponse is the body of the websocket connect and disconnect
// routes.
type RemoteResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// NetworkStatus is the body of GET /api/network/status.
type NetworkStatus struct {
	IP string `json:"ip"`
}

func writeRemote(w http.ResponseWriter, code int, resp RemoteResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, resp)
}

func remoteError(w http.ResponseWriter, code int, msg string) {
	writeRemote(w, code, RemoteResponse{Status: "error", Message: msg})
}

// HandleWebSocketStatus serves GET /api/websocket/status.
func (s *Server) HandleWebSocketStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.link == nil {
		writeJSON(w, LinkStatus{Status: "Not initialized"})
		return
	}
	writeJSON(w, LinkStatus{
		Connected: s.link.Connected(),
		Status:    s.link.Status(),
		URL:       s.link.Target().URL(),
	})
}

// HandleWebSocketConnect serves POST /api/websocket/connect. The dial runs
// in the background, so success means the attempt started; poll the status
// route for the outcome.
func (s *Server) HandleWebSocketConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.link == nil {
		remoteError(w, http.StatusInternalServerError, "WebSocket client not initialized")
		return
	}

	target, err := parseTarget(r)
	if errors.Is(err, errNoHost) {
		remoteError(w, http.StatusBadRequest, "Host parameter required")
		return
	}
	if err != nil {
		remoteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.submit(r.Context(), "websocket_connect", func() error {
		s.link.BeginConnect(target)
		return nil
	}); err != nil {
		log.Warn().Err(err).Str("command", "websocket_connect").Msg("control command not applied")
		remoteError(w, http.StatusServiceUnavailable, "Command not applied")
		return
	}

	log.Info().Str("url", target.URL()).Msg("websocket connect requested")
	writeRemote(w, http.StatusAccepted, RemoteResponse{
		Status:  "success",
		Message: "Connecting to WebSocket server",
		URL:     target.URL(),
	})
}

// HandleWebSocketDisconnect serves POST /api/websocket/disconnect.
func (s *Server) HandleWebSocketDisconnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.link == nil {
		remoteError(w, http.StatusInternalServerError, "WebSocket client not initialized")
		return
	}

	if err := s.submit(r.Context(), "websocket_disconnect", func() error {
		s.link.Disconnect()
		return nil
	}); err != nil {
		log.Warn().Err(err).Str("command", "websocket_disconnect").Msg("control command not applied")
		remoteError(w, http.StatusServiceUnavailable, "Command not applied")
		return
	}

	log.Info().Msg("websocket disconnect requested")
	writeRemote(w, http.StatusOK, RemoteResponse{
		Status:  "success",
		Message: "Disconnected from WebSocket server",
	})
}

// HandleNetworkStatus serves GET /api/network/status.
func (s *Server) HandleNetworkStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, NetworkStatus{IP: localIP(r)})
}

func parseTarget(r *http.Request) (socketio.Target, error) {
	if err := r.ParseForm(); err != nil {
		return socketio.Target{}, fmt.Errorf("invalid form: %w", err)
	}

	t := socketio.Target{
		Host: strings.TrimSpace(r.Form.Get("host")),
		Port: DefaultRemotePort,
		Path: strings.TrimSpace(r.Form.Get("path")),
	}
	if t.Host == "" {
		return socketio.Target{}, errNoHost
	}
	if v := strings.TrimSpace(r.Form.Get("port")); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port < 1 || port > 65535 {
			return socketio.Target{}, fmt.Errorf("invalid port %q", v)
		}
		t.Port = port
	}
	if t.Path == "" {
		t.Path = DefaultRemotePath
	}
	return t, nil
}

// localIP returns the address the request reached the device on, falling
// back to the first non-loopback IPv4 interface address.
func localIP(r *http.Request) string {
	if addr, ok := r.Context().Value(http.LocalAddrContextKey).(*net.TCPAddr); ok && !addr.IP.IsUnspecified() {
		return addr.IP.String()
	}

	addrs, err := net.InterfaceAddrs()
	if err != nil {
		log.Debug().Err(err).Msg("list interface addresses")
		return ""
	}
	for _, a := range addrs {
		ipNet, ok := a.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			return ip4.String()
		}
	}
	return ""
}
