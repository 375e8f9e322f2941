package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/rs/zerolog/log"
)

// SocketURL turns the timer app's base URL into its Engine.IO websocket
// endpoint.
func SocketURL(base string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse timer app url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported timer app url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("timer app url %q has no host", base)
	}

	if u.Path == "" || u.Path == "/" {
		u.Path = socketio.DefaultPath
	} else if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Run keeps a connection to the timer app open until ctx is cancelled,
// redialing after ReconnectInterval whenever it drops.
func (b *Bridge) Run(ctx context.Context) error {
	endpoint, err := SocketURL(b.config.FightTimerURL)
	if err != nil {
		return err
	}

	for {
		err := b.runOnce(ctx, endpoint)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).
			Str("url", endpoint).
			Dur("retry_in", b.config.ReconnectInterval).
			Msg("timer app connection lost")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.clock.After(b.config.ReconnectInterval):
		}
	}
}

// runOnce serves one websocket connection until it fails.
func (b *Bridge) runOnce(ctx context.Context, endpoint string) error {
	connID := uuid.New().String()
	logger := log.With().Str("conn_id", connID).Logger()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", endpoint, err)
	}
	defer conn.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	logger.Info().Str("url", endpoint).Msg("connected to timer app")

	var session socketio.Session
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		if kind != websocket.TextMessage {
			continue
		}

		reply, ev, err := session.Handle(string(data), b.clock.Now())
		if reply != "" {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(reply)); err != nil {
				return fmt.Errorf("write: %w", err)
			}
		}
		if err != nil {
			if errors.Is(err, socketio.ErrKeepAliveStale) {
				return err
			}
			logger.Warn().Err(err).Msg("dropped packet")
			continue
		}
		if ev == nil || ev.Name != socketio.EventTimerUpdate {
			continue
		}

		update, err := socketio.DecodeTimerUpdate(ev.Data)
		if err != nil {
			logger.Warn().Err(err).Msg("dropped timer update")
			continue
		}
		if err := b.HandleUpdate(ctx, update); err != nil {
			logger.Error().Err(err).Str("action", update.Action).Msg("failed to relay timer update")
		}
	}
}
