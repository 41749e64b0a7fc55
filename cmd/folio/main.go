package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"folio/internal/application/usecase/review"
	"folio/internal/infrastructure/config"
	"folio/internal/infrastructure/logger"
	"folio/internal/infrastructure/svc"
)

func main() {
	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Setup(*debug)

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service context initialization failed")
	}
	defer func() {
		if err := sc.Close(); err != nil {
			log.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	// Background refresh of the scheduled (never-on-read) cache keys.
	sc.Refresher.Start(ctx)

	reviewSvc := review.NewService(review.ServiceDeps{
		Positions:     sc.Positions,
		Quotes:        sc.Quotes(),
		ReviewEveryMin: cfg.App.ReviewEveryMin,
		Sink:          sc.Sink,
	})

	log.Info().
		Str("config", *configPath).
		Int("review_every_min", cfg.App.ReviewEveryMin).
		Msg("folio started")

	if err := reviewSvc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("review service exited")
	}
}
