package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/models"
)

// Seed replaces the master decks. Rooms that were already seeded keep their
// pools; use Sync to reconcile them.
func Seed(ctx context.Context, b Backend, decks cards.Decks) error {
	if len(decks.Whites) == 0 {
		return cards.ErrNoWhites
	}
	if len(decks.Blacks) == 0 {
		return cards.ErrNoBlacks
	}

	batch := NewBatch().
		Del(DeckKey(models.DeckWhite), DeckKey(models.DeckBlack)).
		SAdd(DeckKey(models.DeckWhite), decks.Whites...).
		SAdd(DeckKey(models.DeckBlack), decks.Blacks...)
	if err := b.Exec(ctx, batch); err != nil {
		return fmt.Errorf("seed decks: %w", err)
	}
	return nil
}

// DeckDiff is the change to one deck found by Sync.
type DeckDiff struct {
	Deck    models.Deck
	Added   []string
	Removed []string
}

// SyncReport summarises a Sync run.
type SyncReport struct {
	Decks []DeckDiff
	Rooms []string
}

func (r SyncReport) String() string {
	var sb strings.Builder
	for _, d := range r.Decks {
		fmt.Fprintf(&sb, "%s: +%d -%d\n", d.Deck, len(d.Added), len(d.Removed))
	}
	fmt.Fprintf(&sb, "rooms: %d", len(r.Rooms))
	return sb.String()
}

// Sync reconciles the master decks and every seeded room with decks. Cards
// that are gone from the files leave the draw and discard pools; new cards
// join the draw pools unless a room already holds them somewhere. Hands are
// never touched. With dryRun nothing is written.
func Sync(ctx context.Context, b Backend, decks cards.Decks, dryRun bool) (SyncReport, error) {
	rooms, err := b.SMembers(ctx, roomsKey)
	if err != nil {
		return SyncReport{}, fmt.Errorf("list rooms: %w", err)
	}
	report := SyncReport{Rooms: rooms}

	wanted := map[models.Deck][]string{
		models.DeckWhite: decks.Whites,
		models.DeckBlack: decks.Blacks,
	}
	batch := NewBatch()
	for _, deck := range []models.Deck{models.DeckWhite, models.DeckBlack} {
		current, err := b.SMembers(ctx, DeckKey(deck))
		if err != nil {
			return SyncReport{}, fmt.Errorf("read %s deck: %w", deck, err)
		}
		diff := DeckDiff{Deck: deck}
		diff.Added, diff.Removed = difference(wanted[deck], current)
		report.Decks = append(report.Decks, diff)

		batch.SRem(DeckKey(deck), diff.Removed...)
		batch.SAdd(DeckKey(deck), diff.Added...)

		for _, room := range rooms {
			held, err := roomHoldings(ctx, b, room, deck)
			if err != nil {
				return SyncReport{}, err
			}
			var fresh []string
			for _, c := range diff.Added {
				if _, ok := held[c]; !ok {
					fresh = append(fresh, c)
				}
			}
			batch.SRem(PoolKey(room, deck), diff.Removed...)
			batch.SRem(DiscardKey(room, deck), diff.Removed...)
			batch.SAdd(PoolKey(room, deck), fresh...)
		}
	}

	if dryRun || batch.Len() == 0 {
		return report, nil
	}
	if err := b.Exec(ctx, batch); err != nil {
		return SyncReport{}, fmt.Errorf("sync decks: %w", err)
	}
	return report, nil
}

// roomHoldings is every card of a deck the room has anywhere: draw pool,
// discards, hands, or the prompt on the table.
func roomHoldings(ctx context.Context, b Backend, room string, deck models.Deck) (map[string]struct{}, error) {
	held := make(map[string]struct{})
	keys := []string{PoolKey(room, deck), DiscardKey(room, deck)}
	if deck == models.DeckWhite {
		hands, err := b.Scan(ctx, handPattern(room))
		if err != nil {
			return nil, fmt.Errorf("scan hands of %s: %w", room, err)
		}
		keys = append(keys, hands...)
	} else {
		prompt, ok, err := b.HGet(ctx, RoomKey(room), fieldPrompt)
		if err != nil {
			return nil, fmt.Errorf("read prompt of %s: %w", room, err)
		}
		if ok && prompt != "" {
			held[prompt] = struct{}{}
		}
	}

	for _, key := range keys {
		members, err := b.SMembers(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		for _, m := range members {
			held[m] = struct{}{}
		}
	}
	return held, nil
}

// difference returns what is in want but not have, and what is in have but
// not want, both sorted.
func difference(want, have []string) (added, removed []string) {
	w := make(map[string]struct{}, len(want))
	for _, c := range want {
		w[c] = struct{}{}
	}
	h := make(map[string]struct{}, len(have))
	for _, c := range have {
		h[c] = struct{}{}
		if _, ok := w[c]; !ok {
			removed = append(removed, c)
		}
	}
	for _, c := range want {
		if _, ok := h[c]; !ok {
			added = append(added, c)
		}
	}
	sort.Strings(added)
	sort.Strings(removed)
	return added, removed
}
