package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/arenatimer/go/internal/config"
	"github.com/mcdev12/arenatimer/go/internal/control"
	"github.com/mcdev12/arenatimer/go/internal/discovery"
	"github.com/mcdev12/arenatimer/go/internal/display"
	"github.com/mcdev12/arenatimer/go/internal/scheduler"
	"github.com/mcdev12/arenatimer/go/internal/socketio"
	"github.com/mcdev12/arenatimer/go/internal/timer"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfgPath := os.Getenv("ARENA_CONFIG")
	if cfgPath == "" {
		cfgPath = config.DefaultPath
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfgPath).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	clock := clockwork.NewRealClock()

	tm := timer.New(clock)
	tm.SetDuration(cfg.Timer.Minutes, cfg.Timer.Seconds, 0)

	renderer, err := setupRenderer(cfg.Display, tm)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to configure display")
	}

	client := socketio.NewClient(tm, socketio.NewNetDialer(), cfg.Remote.ClientConfig(), clock)
	if cfg.Remote.Enabled {
		client.SetTarget(socketio.Target{Host: cfg.Remote.Host, Port: cfg.Remote.Port, Path: cfg.Remote.Path})
	}
	srv := control.NewServer(tm, renderer, client)

	server := srv.NewHTTPServer(fmt.Sprintf(":%d", cfg.HTTP.Port))

	var advertiser *discovery.Advertiser
	if cfg.HTTP.MDNSEnabled {
		advertiser = discovery.NewAdvertiser(discovery.Config{
			Hostname: cfg.HTTP.MDNSHostname,
			Port:     cfg.HTTP.Port,
		})
	}

	log.Info().
		Int("port", cfg.HTTP.Port).
		Bool("remote_enabled", cfg.Remote.Enabled).
		Str("remote", fmt.Sprintf("%s:%d", cfg.Remote.Host, cfg.Remote.Port)).
		Dur("duration", tm.Duration()).
		Msg("starting arena timer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := setupScheduler(cfg, clock, renderer, srv, client)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	if advertiser != nil {
		if err := advertiser.Start(); err != nil {
			log.Error().Err(err).Msg("mDNS advertisement failed")
		}
	}

	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("main loop stopped")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if advertiser != nil {
		advertiser.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	<-loopDone
	client.Disconnect()

	log.Info().Msg("arena timer shutdown complete")
}

func setupRenderer(cfg config.DisplayConfig, tm *timer.Timer) (*display.Renderer, error) {
	renderer := display.NewRenderer(tm, display.NewTerminalSurface(os.Stdout))
	renderer.SetMode(cfg.Mode)
	renderer.SetColor(cfg.Color)
	renderer.SetBrightness(uint8(cfg.Brightness))
	if err := renderer.SetColorThresholds(cfg.Thresholds); err != nil {
		return nil, fmt.Errorf("set color thresholds: %w", err)
	}
	return renderer, nil
}

// setupScheduler registers the cooperative tasks of the main loop. All
// timer, display and socket state is touched only from these tasks, and
// none of them blocks.
func setupScheduler(
	cfg config.Config,
	clock clockwork.Clock,
	renderer *display.Renderer,
	srv *control.Server,
	client *socketio.Client,
) *scheduler.Scheduler {
	s := scheduler.New(clock)
	s.SetYield(cfg.Scheduler.Yield)

	s.Every("display", 0, func(now time.Time) {
		renderer.Update(now)
		if err := renderer.Draw(); err != nil {
			log.Debug().Err(err).Msg("draw failed")
		}
	})
	s.Every("http", cfg.Scheduler.HTTPInterval, func(time.Time) {
		srv.Poll()
	})
	s.Every("socket", cfg.Scheduler.SocketInterval, func(time.Time) {
		client.Poll()
	})

	reconnect := cfg.Remote.ReconnectInterval
	if reconnect <= 0 {
		reconnect = config.Default().Remote.ReconnectInterval
	}
	// the dial runs in the background; socket's Poll installs it
	s.Every("reconnect", reconnect, func(time.Time) {
		if client.ShouldReconnect() {
			client.BeginConnect(client.Target())
		}
	})
	return s
}
