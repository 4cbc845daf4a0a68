package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mcdev12/cardroom/go/internal/config"
	"github.com/mcdev12/cardroom/go/internal/store"
)

func main() {
	yes := flag.Bool("y", false, "skip the confirmation prompt")
	list := flag.Bool("list", false, "print the suggestions before clearing")
	flag.Parse()
	ctx := context.Background()

	cfg, err := config.Load(os.Getenv("CARDROOM_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
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

	suggestions := store.NewSuggestions(backend)
	count, err := suggestions.Count(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "count suggestions: %v\n", err)
		os.Exit(1)
	}
	if count == 0 {
		fmt.Println("No suggestions to clear.")
		return
	}

	if *list {
		all, err := suggestions.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list suggestions: %v\n", err)
			os.Exit(1)
		}
		for _, s := range all {
			fmt.Println(s)
		}
	}

	if !*yes {
		fmt.Printf("Delete %d suggestions? [y/N] ", count)
		answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := suggestions.Vacuum(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "vacuum: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Cleared %d suggestions.\n", count)
}
