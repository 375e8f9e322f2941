package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/arenatimer/go/clients/arena_timer_client"
	"github.com/mcdev12/arenatimer/go/internal/config"
	"github.com/mcdev12/arenatimer/go/internal/console"
	"github.com/mcdev12/arenatimer/go/internal/discovery"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		baseURL  = flag.String("url", "", "arena timer base URL (default $ARENA_TIMER_URL)")
		discover = flag.String("discover", "", "find the device over mDNS by instance name, e.g. arena-timer")
		timeout  = flag.Duration("discover-timeout", 5*time.Second, "how long to wait for mDNS answers")
	)
	flag.Parse()

	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.WarnLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	url := *baseURL
	switch {
	case url != "":
	case *discover != "":
		lookupCtx, lookupCancel := context.WithTimeout(ctx, *timeout)
		dev, err := discovery.Lookup(lookupCtx, *discover)
		lookupCancel()
		if err != nil {
			log.Fatal().Err(err).Str("instance", *discover).Msg("device discovery failed")
		}
		url = dev.BaseURL()
	default:
		cfg, err := config.LoadBridge()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to load config")
		}
		url = cfg.ArenaTimerURL
	}

	client := arena_timer_client.NewArenaTimerClient(url)
	if err := client.Health(ctx); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("arena timer not reachable yet")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	c := console.New(client)
	if err := c.Run(ctx, cancel); err != nil {
		log.Fatal().Err(err).Msg("console failed")
	}
}
