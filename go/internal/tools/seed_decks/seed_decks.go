package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/config"
	"github.com/mcdev12/cardroom/go/internal/store"
)

func main() {
	dir := flag.String("dir", "", "deck directory (defaults to DECK_DIR)")
	flag.Parse()
	ctx := context.Background()

	// 1) Load the deck files
	cfg, err := config.Load(os.Getenv("CARDROOM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *dir == "" {
		*dir = cfg.DeckDir
	}
	decks, err := cards.LoadDir(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load decks: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect to Redis
	backend, err := store.NewRedisBackend(ctx, store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect error: %v\n", err)
		os.Exit(1)
	}
	defer backend.Close()

	// 3) Replace the master decks
	if err := store.Seed(ctx, backend, decks); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Decks seed: dir=%s whites=%d blacks=%d\n", *dir, len(decks.Whites), len(decks.Blacks))
}
