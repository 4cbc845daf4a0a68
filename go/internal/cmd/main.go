package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

const sweepInterval = time.Minute

func main() {
	cfg, err := loadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}
	defer services.Close()

	loopDone := make(chan error, 1)
	go func() { loopDone <- services.Loop.Run(ctx) }()
	if err := services.Loop.Post(func() { services.Registry.StartSweeper(sweepInterval) }); err != nil {
		log.Fatal().Err(err).Msg("failed to start sweeper")
	}

	server, gw := setupServer(cfg, services)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("cardroom server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	gw.Connections().CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown failed")
	}
	if err := <-loopDone; err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("event loop stopped with error")
	}
}
