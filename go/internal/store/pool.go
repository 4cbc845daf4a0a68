package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/mcdev12/cardroom/go/internal/models"
)

// ErrEmptyDeck is returned when a room is seeded from a master deck that has
// no cards in it.
var ErrEmptyDeck = errors.New("master deck is empty")

const (
	fieldSeeded      = "seeded"
	fieldState       = "state"
	fieldPrompt      = "black"
	fieldSubmissions = "submissions"
	fieldDealer      = "dealer"
)

// CardPool is one room's view of the shared store: its draw and discard
// pools, the hands of its players, scores and chat.
type CardPool struct {
	b    Backend
	room string
}

// NewCardPool returns the pool adapter for a room.
func NewCardPool(b Backend, room string) *CardPool {
	return &CardPool{b: b, room: room}
}

// Room is the id this pool belongs to.
func (p *CardPool) Room() string {
	return p.room
}

// Ensure copies the master decks into the room's draw pools the first time
// the room is used. Later calls are no-ops.
func (p *CardPool) Ensure(ctx context.Context) error {
	_, seeded, err := p.b.HGet(ctx, RoomKey(p.room), fieldSeeded)
	if err != nil {
		return fmt.Errorf("check seeded: %w", err)
	}
	if seeded {
		return nil
	}

	whites, err := p.b.SMembers(ctx, DeckKey(models.DeckWhite))
	if err != nil {
		return fmt.Errorf("read white deck: %w", err)
	}
	blacks, err := p.b.SMembers(ctx, DeckKey(models.DeckBlack))
	if err != nil {
		return fmt.Errorf("read black deck: %w", err)
	}
	if len(whites) == 0 || len(blacks) == 0 {
		return ErrEmptyDeck
	}

	batch := NewBatch().
		Del(PoolKey(p.room, models.DeckWhite), DiscardKey(p.room, models.DeckWhite)).
		Del(PoolKey(p.room, models.DeckBlack), DiscardKey(p.room, models.DeckBlack)).
		SAdd(PoolKey(p.room, models.DeckWhite), whites...).
		SAdd(PoolKey(p.room, models.DeckBlack), blacks...).
		HSet(RoomKey(p.room), map[string]string{fieldSeeded: "1"}).
		SAdd(roomsKey, p.room)
	if err := p.b.Exec(ctx, batch); err != nil {
		return fmt.Errorf("seed room %s: %w", p.room, err)
	}
	return nil
}

// Draw pops up to n random cards from a deck. When the draw pool runs dry the
// discards are renamed over it and the draw is retried once. Fewer than n
// cards is not an error.
func (p *CardPool) Draw(ctx context.Context, deck models.Deck, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	cards, err := p.b.SPopN(ctx, PoolKey(p.room, deck), int64(n))
	if err != nil {
		return nil, fmt.Errorf("draw %s: %w", deck, err)
	}
	if len(cards) == n {
		return cards, nil
	}

	if _, err := p.Reshuffle(ctx, deck); err != nil {
		return cards, err
	}
	more, err := p.b.SPopN(ctx, PoolKey(p.room, deck), int64(n-len(cards)))
	if err != nil {
		return cards, fmt.Errorf("draw %s after reshuffle: %w", deck, err)
	}
	return append(cards, more...), nil
}

// Reshuffle moves the discard pool into an empty draw pool. It reports false
// when there was nothing to move or the draw pool was already refilled, which
// includes losing a race with another reshuffle.
func (p *CardPool) Reshuffle(ctx context.Context, deck models.Deck) (bool, error) {
	moved, err := p.b.RenameNX(ctx, DiscardKey(p.room, deck), PoolKey(p.room, deck))
	if err != nil {
		return false, fmt.Errorf("reshuffle %s: %w", deck, err)
	}
	return moved, nil
}

// Hand returns a player's cards sorted by name.
func (p *CardPool) Hand(ctx context.Context, player string) ([]string, error) {
	cards, err := p.b.SMembers(ctx, HandKey(p.room, player))
	if err != nil {
		return nil, fmt.Errorf("read hand: %w", err)
	}
	sort.Strings(cards)
	return cards, nil
}

// AddToHand stores freshly drawn cards in a player's hand.
func (p *CardPool) AddToHand(ctx context.Context, player string, cards []string) error {
	if len(cards) == 0 {
		return nil
	}
	if err := p.b.Exec(ctx, NewBatch().SAdd(HandKey(p.room, player), cards...)); err != nil {
		return fmt.Errorf("add to hand: %w", err)
	}
	return nil
}

// Scores returns the persisted score table.
func (p *CardPool) Scores(ctx context.Context) (map[string]int, error) {
	raw, err := p.b.HGetAll(ctx, ScoresKey(p.room))
	if err != nil {
		return nil, fmt.Errorf("read scores: %w", err)
	}
	scores := make(map[string]int, len(raw))
	for id, v := range raw {
		n, err := strconv.Atoi(v)
		if err != nil {
			continue
		}
		scores[id] = n
	}
	return scores, nil
}

// AppendChat pushes a line onto the room's chat log, keeping the newest keep.
func (p *CardPool) AppendChat(ctx context.Context, line models.ChatLine, keep int) error {
	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode chat line: %w", err)
	}
	if err := p.b.Exec(ctx, NewBatch().RPushTrim(ChatKey(p.room), string(data), int64(keep))); err != nil {
		return fmt.Errorf("append chat: %w", err)
	}
	return nil
}

// Chat returns the stored chat log, oldest first. Lines that fail to decode
// are skipped.
func (p *CardPool) Chat(ctx context.Context) ([]models.ChatLine, error) {
	raw, err := p.b.LRange(ctx, ChatKey(p.room), 0, -1)
	if err != nil {
		return nil, fmt.Errorf("read chat: %w", err)
	}
	lines := make([]models.ChatLine, 0, len(raw))
	for _, r := range raw {
		var line models.ChatLine
		if err := json.Unmarshal([]byte(r), &line); err != nil {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// Begin starts a round transaction for this room.
func (p *CardPool) Begin() *RoundTx {
	return &RoundTx{room: p.room, batch: NewBatch()}
}

// Commit applies every write queued on tx atomically.
func (p *CardPool) Commit(ctx context.Context, tx *RoundTx) error {
	if err := p.b.Exec(ctx, tx.batch); err != nil {
		return fmt.Errorf("commit round: %w", err)
	}
	return nil
}

// RoundTx queues the compound writes of a round transition.
type RoundTx struct {
	room  string
	batch *Batch
}

// HandOver moves submitted cards out of a hand and into the white discards.
func (tx *RoundTx) HandOver(player string, cards []string) *RoundTx {
	tx.batch.SRem(HandKey(tx.room, player), cards...)
	tx.batch.SAdd(DiscardKey(tx.room, models.DeckWhite), cards...)
	return tx
}

// ReturnToHand undoes HandOver.
func (tx *RoundTx) ReturnToHand(player string, cards []string) *RoundTx {
	tx.batch.SRem(DiscardKey(tx.room, models.DeckWhite), cards...)
	tx.batch.SAdd(HandKey(tx.room, player), cards...)
	return tx
}

// DiscardHand folds a whole hand into the white discards.
func (tx *RoundTx) DiscardHand(player string, cards []string) *RoundTx {
	tx.batch.Del(HandKey(tx.room, player))
	tx.batch.SAdd(DiscardKey(tx.room, models.DeckWhite), cards...)
	return tx
}

// DiscardPrompt retires a prompt card.
func (tx *RoundTx) DiscardPrompt(prompt string) *RoundTx {
	if prompt != "" {
		tx.batch.SAdd(DiscardKey(tx.room, models.DeckBlack), prompt)
	}
	return tx
}

// SetState records the room's status, prompt and dealer.
func (tx *RoundTx) SetState(status models.RoomStatus, prompt, dealer string) *RoundTx {
	tx.batch.HSet(RoomKey(tx.room), map[string]string{
		fieldState:  string(status),
		fieldPrompt: prompt,
		fieldDealer: dealer,
	})
	return tx
}

// SaveSubmissions snapshots the pending submissions for crash recovery.
func (tx *RoundTx) SaveSubmissions(subs []models.Submission) *RoundTx {
	if len(subs) == 0 {
		tx.batch.HDel(RoomKey(tx.room), fieldSubmissions)
		return tx
	}
	data, err := json.Marshal(subs)
	if err != nil {
		return tx
	}
	tx.batch.HSet(RoomKey(tx.room), map[string]string{fieldSubmissions: string(data)})
	return tx
}

// AwardPoint adds one point to a player's persisted score.
func (tx *RoundTx) AwardPoint(player string) *RoundTx {
	tx.batch.HIncrBy(ScoresKey(tx.room), player, 1)
	return tx
}

// ResetScore drops a single player's persisted score.
func (tx *RoundTx) ResetScore(player string) *RoundTx {
	tx.batch.HDel(ScoresKey(tx.room), player)
	return tx
}

// ClearScores wipes the score table.
func (tx *RoundTx) ClearScores() *RoundTx {
	tx.batch.Del(ScoresKey(tx.room))
	return tx
}

// Len is the number of queued writes.
func (tx *RoundTx) Len() int {
	return tx.batch.Len()
}
