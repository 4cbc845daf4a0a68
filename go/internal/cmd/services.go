package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/archive"
	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/config"
	"github.com/mcdev12/cardroom/go/internal/game"
	"github.com/mcdev12/cardroom/go/internal/gateway"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/publisher"
	"github.com/mcdev12/cardroom/go/internal/store"
)

type Services struct {
	Loop      *game.Loop
	Registry  *game.Registry
	Backend   *store.RedisBackend
	Publisher *publisher.Publisher
	Archive   *archive.Store
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up dependency injection chain
	// Store → optional publisher/archive → loop → registry
	backend, err := store.NewRedisBackend(ctx, store.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err != nil {
		return nil, err
	}
	services := &Services{Backend: backend}

	if err := seedIfEmpty(ctx, backend, cfg.DeckDir); err != nil {
		services.Close()
		return nil, err
	}

	deps := game.Deps{Backend: backend}
	if cfg.NATS.URL != "" {
		jsCfg := publisher.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		if cfg.NATS.Stream != "" {
			jsCfg.StreamName = cfg.NATS.Stream
		}
		pub, err := publisher.Connect(jsCfg)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Publisher = pub
		deps.Notifier = pub
		log.Info().Str("url", jsCfg.URL).Str("stream", jsCfg.StreamName).Msg("publishing room events")
	}
	if cfg.Archive {
		arc, err := setupArchive(ctx, cfg)
		if err != nil {
			services.Close()
			return nil, err
		}
		services.Archive = arc
		deps.Archive = arc
	}

	services.Loop = game.NewLoop(clockwork.NewRealClock(), 1024)
	services.Registry = game.NewRegistry(cfg.Game, services.Loop, deps)
	return services, nil
}

// seedIfEmpty loads the deck directory when the store has no master decks.
func seedIfEmpty(ctx context.Context, backend store.Backend, dir string) error {
	whites, err := backend.SMembers(ctx, store.DeckKey(models.DeckWhite))
	if err != nil {
		return fmt.Errorf("check decks: %w", err)
	}
	if len(whites) > 0 {
		return nil
	}

	decks, err := cards.LoadDir(dir)
	if err != nil {
		return fmt.Errorf("no decks in store and none loadable from %s: %w", dir, err)
	}
	if err := store.Seed(ctx, backend, decks); err != nil {
		return err
	}
	log.Info().Int("whites", len(decks.Whites)).Int("blacks", len(decks.Blacks)).Str("dir", dir).Msg("seeded decks")
	return nil
}

// history is the archive as a gateway history source, or nil when
// archiving is off.
func (s *Services) history() gateway.HistorySource {
	if s.Archive == nil {
		return nil
	}
	return s.Archive
}

func (s *Services) Close() {
	var errs []error
	if s.Publisher != nil {
		errs = append(errs, s.Publisher.Close())
	}
	if s.Archive != nil {
		s.Archive.Close()
	}
	if s.Backend != nil {
		errs = append(errs, s.Backend.Close())
	}
	if err := errors.Join(errs...); err != nil {
		log.Error().Err(err).Msg("error closing services")
	}
}
