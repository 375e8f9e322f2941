package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/timer"
	"github.com/rs/zerolog/log"
)

// DefaultSettingsDuration is used when a settings action omits duration.
const DefaultSettingsDuration = 180

// Status is the body of GET /api/status and of successful actions.
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

// ThresholdsResponse is the body of GET /api/thresholds.
type ThresholdsResponse struct {
	Thresholds   []display.Threshold `json:"thresholds"`
	DefaultColor display.Color       `json:"defaultColor"`
}

// actionRequest is a POST /api body. Form fields and JSON share names.
type actionRequest struct {
	Action     string `json:"action"`
	Duration   *int   `json:"duration,omitempty"`
	Brightness *int   `json:"brightness,omitempty"`
}

func (s *Server) status() Status {
	snap := s.timer.Snapshot()
	st := Status{
		IsRunning:   snap.State == timer.StateRunning,
		IsPaused:    snap.State == timer.StatePaused,
		IsIdle:      snap.State == timer.StateIdle,
		IsExpired:   snap.Expired,
		RemainingMs: snap.Remaining.Milliseconds(),
		ElapsedMs:   snap.Elapsed.Milliseconds(),
		DurationMs:  snap.Duration.Milliseconds(),
		Mode:        string(s.display.Mode()),
	}
	if s.link != nil {
		st.Connected = s.link.Connected()
	}
	return st
}

// HandleStatus serves GET /api/status. It reads state directly; the timer
// and renderer are safe for concurrent reads.
func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.status())
}

// HandleAction serves POST /api.
func (s *Server) HandleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := parseActionRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fn, err := s.actionFunc(req)
	if err != nil {
		if errors.Is(err, ErrUnknownAction) {
			http.Error(w, "Unknown action", http.StatusBadRequest)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.submit(r.Context(), req.Action, fn); err != nil {
		s.writeSubmitError(w, req.Action, err)
		return
	}

	log.Info().Str("action", req.Action).Msg("control action applied")
	writeJSON(w, s.status())
}

// actionFunc validates req and returns the mutation it describes.
func (s *Server) actionFunc(req actionRequest) (func() error, error) {
	switch req.Action {
	case "start":
		return func() error { s.timer.Start(); return nil }, nil
	case "pause", "stop":
		return func() error { s.timer.Stop(); return nil }, nil
	case "reset":
		return func() error { s.timer.Reset(); return nil }, nil
	case "flip":
		return func() error { s.display.ToggleFlip(); return nil }, nil
	case "settings":
		duration := DefaultSettingsDuration
		if req.Duration != nil {
			duration = *req.Duration
		}
		if duration < 0 {
			return nil, fmt.Errorf("duration must not be negative")
		}
		var brightness *uint8
		if req.Brightness != nil {
			if *req.Brightness < 0 || *req.Brightness > 255 {
				return nil, fmt.Errorf("brightness must be 0-255")
			}
			b := uint8(*req.Brightness)
			brightness = &b
		}
		return func() error {
			s.timer.SetDuration(duration/60, duration%60, 0)
			s.timer.Reset()
			if brightness != nil {
				s.display.SetBrightness(*brightness)
			}
			return nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, req.Action)
	}
}

func parseActionRequest(r *http.Request) (actionRequest, error) {
	var req actionRequest

	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return actionRequest{}, fmt.Errorf("invalid JSON body: %w", err)
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return actionRequest{}, fmt.Errorf("invalid form: %w", err)
	}
	req.Action = r.Form.Get("action")

	var err error
	if req.Duration, err = formInt(r, "duration"); err != nil {
		return actionRequest{}, err
	}
	if req.Brightness, err = formInt(r, "brightness"); err != nil {
		return actionRequest{}, err
	}
	return req, nil
}

func formInt(r *http.Request, key string) (*int, error) {
	v := r.Form.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q", key, v)
	}
	return &n, nil
}

// HandleThresholds serves GET and POST /api/thresholds.
func (s *Server) HandleThresholds(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		ts := s.display.Thresholds()
		if ts == nil {
			ts = []display.Threshold{}
		}
		writeJSON(w, ThresholdsResponse{Thresholds: ts, DefaultColor: s.display.DefaultColor()})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "invalid form", http.StatusBadRequest)
			return
		}
		ts, err := display.ParseThresholds(r.Form.Get("thresholds"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		var defaultColor *display.Color
		if v := r.Form.Get("default"); v != "" {
			c, err := display.ParseColor(v)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			defaultColor = &c
		}

		err = s.submit(r.Context(), "thresholds", func() error {
			if err := s.display.SetColorThresholds(ts); err != nil {
				return err
			}
			if defaultColor != nil {
				s.display.SetColor(*defaultColor)
			}
			return nil
		})
		if err != nil {
			s.writeSubmitError(w, "thresholds", err)
			return
		}

		log.Info().
			Int("count", len(ts)).
			Str("thresholds", display.FormatThresholds(ts)).
			Msg("color thresholds updated")
		writeJSON(w, ThresholdsResponse{Thresholds: s.display.Thresholds(), DefaultColor: s.display.DefaultColor()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// HandleMode serves POST /api/mode.
func (s *Server) HandleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}

	mode, err := display.ParseMode(r.Form.Get("mode"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.submit(r.Context(), "mode", func() error { s.display.SetMode(mode); return nil }); err != nil {
		s.writeSubmitError(w, "mode", err)
		return
	}

	log.Info().Str("mode", string(mode)).Msg("display mode changed")
	writeJSON(w, s.status())
}

func (s *Server) writeSubmitError(w http.ResponseWriter, name string, err error) {
	log.Warn().Err(err).Str("command", name).Msg("control command not applied")
	switch {
	case errors.Is(err, ErrQueueFull):
		http.Error(w, "Device busy", http.StatusServiceUnavailable)
	case errors.Is(err, display.ErrTooManyThresholds):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, "Command not applied", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
