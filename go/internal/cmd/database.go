package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/archive"
	"github.com/mcdev12/cardroom/go/internal/config"
)

func setupArchive(ctx context.Context, cfg config.Config) (*archive.Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	store, err := archive.Open(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection: %w", err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, err
	}

	log.Info().
		Str("user", cfg.Database.User).
		Str("host", cfg.Database.Host).
		Int("port", cfg.Database.Port).
		Str("database", cfg.Database.Name).
		Msg("connected to database")
	return store, nil
}
