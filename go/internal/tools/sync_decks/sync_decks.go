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
	dryRun := flag.Bool("dry-run", false, "report changes without writing them")
	verbose := flag.Bool("v", false, "list every added and removed card")
	flag.Parse()
	ctx := context.Background()

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

	report, err := store.Sync(ctx, backend, decks, *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sync: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		for _, d := range report.Decks {
			for _, c := range d.Added {
				fmt.Printf("+ %s %s\n", d.Deck, c)
			}
			for _, c := range d.Removed {
				fmt.Printf("- %s %s\n", d.Deck, c)
			}
		}
	}
	fmt.Println(report)
	if *dryRun {
		fmt.Println("dry run: nothing written")
	}
}
