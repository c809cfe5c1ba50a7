package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/burkido/medai-client-go/config"
	"github.com/burkido/medai-client-go/medai"
	"github.com/burkido/medai-client-go/session"
)

func main() {
	var interval time.Duration
	flag.DurationVar(&interval, "interval", time.Hour, "Fallback refresh interval when token expiry is unknown")
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	config.LoadEnvFile()
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	encryptionKey, err := session.DeriveKey(cfg.TokenKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	store, err := session.NewSQLiteStore(cfg.DBPath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Str("dbPath", cfg.DBPath).Msg("failed to open session store")
	}
	defer store.Close()
	log.Info().Str("dbPath", cfg.DBPath).Msg("session store opened")

	if !store.Active() {
		log.Fatal().Msg("no stored session, log in with the whoami command first")
	}

	client := medai.NewClient(medai.ClientOpts{
		BaseURL:     cfg.BaseURL,
		PackageName: cfg.PackageName,
		Store:       store,
		OnSessionInvalid: func() {
			log.Warn().Msg("session invalidated, a new login is required")
		},
	})

	// Cancel on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return client.KeepAlive(ctx, interval)
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("keep-alive stopped")
	}
}
