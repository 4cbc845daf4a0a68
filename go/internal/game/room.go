package game

import (
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/events"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/store"
)

// Room is one game: its roster, spectators, dealer rotation and round state.
// All methods run on the loop.
type Room struct {
	id   string
	reg  *Registry
	pool *store.CardPool

	status     models.RoomStatus
	players    []*Player
	spectators []Conn

	dealer *Player
	// keepDealer skips the next rotation because the dealer's successor
	// has not judged yet.
	keepDealer bool

	prompt      *cards.Prompt
	submissions []models.Submission
	lastWinner  *Player

	// busy is set while a prompt draw or submission collection is in
	// flight against the store.
	busy bool
	// epoch changes with every status change so late store results can
	// tell the round moved on.
	epoch uint64
	guard electionGuard

	nominationTimer *Timer
	electionTimer   *Timer
	announceTimer   *Timer

	chatQueue []models.ChatLine
	chatting  bool

	pendingSet Fields
	lastActive time.Time
}

func newRoom(reg *Registry, id string) *Room {
	return &Room{
		id:         id,
		reg:        reg,
		pool:       store.NewCardPool(reg.backend, id),
		status:     models.RoomStatusInactive,
		lastActive: reg.loop.clock.Now(),
	}
}

func (r *Room) ID() string { return r.id }

func (r *Room) Status() models.RoomStatus { return r.status }

// Players returns the roster in turn order.
func (r *Room) Players() []*Player {
	return append([]*Player(nil), r.players...)
}

func (r *Room) Spectators() int { return len(r.spectators) }

// Dealer is the current judge, or nil.
func (r *Room) Dealer() *Player { return r.dealer }

// Prompt is the card on the table, or nil.
func (r *Room) Prompt() *cards.Prompt { return r.prompt }

// Submissions are the pending entries in judge order.
func (r *Room) Submissions() []models.Submission {
	return append([]models.Submission(nil), r.submissions...)
}

func (r *Room) seated(p *Player) bool {
	return r.indexOf(p) >= 0
}

func (r *Room) indexOf(p *Player) int {
	for i, q := range r.players {
		if q == p {
			return i
		}
	}
	return -1
}

func (r *Room) playerByID(id string) *Player {
	for _, p := range r.players {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (r *Room) touch() {
	r.lastActive = r.reg.loop.clock.Now()
}

// AddSpectator lets c watch the room.
func (r *Room) AddSpectator(c Conn) {
	for _, s := range r.spectators {
		if s == c {
			r.reg.out.Warn(c, "Already watching.")
			return
		}
	}
	r.spectators = append(r.spectators, c)
	r.touch()
	r.rosterChanged()
	r.snapshot(c, nil, false)
}

// RemoveSpectator stops c watching. Unknown connections are ignored.
func (r *Room) RemoveSpectator(c Conn) {
	for i, s := range r.spectators {
		if s == c {
			r.spectators = append(r.spectators[:i], r.spectators[i+1:]...)
			r.touch()
			r.rosterChanged()
			return
		}
	}
}

// AddPlayer seats p. The store membership must already be recorded.
func (r *Room) AddPlayer(p *Player) error {
	return r.addPlayer(p, false)
}

// Resume seats p again after a restart. Unlike AddPlayer it keeps the score
// the store holds for p.
func (r *Room) Resume(p *Player) error {
	return r.addPlayer(p, true)
}

func (r *Room) addPlayer(p *Player, resume bool) error {
	if r.seated(p) {
		p.warn("Already playing.")
		return ErrAlreadyPlaying
	}
	if p.room != nil && p.room != r {
		p.warn("Already in a game!")
		return ErrAlreadyPlaying
	}

	p.room = r
	p.seat = r.id
	p.score = 0
	p.selection = nil
	r.players = append(r.players, p)
	r.touch()
	if p.conn != nil {
		r.reg.unwatch(p.conn)
	}

	log.Info().Str("room_id", r.id).Str("player_id", p.id).Int("players", len(r.players)).Msg("player joined")

	p.send(msg("set", Fields{"canJoin": false}))
	r.rosterChanged()
	r.snapshot(p.conn, p, false)
	if resume {
		r.restoreScore(p)
	} else {
		r.commit("reset score", r.pool.Begin().ResetScore(p.id))
	}
	p.DealHand(false)

	r.notify(events.TypePlayerJoined, events.PlayerJoinedPayload{
		PlayerID: p.id,
		Name:     p.Name(),
		Players:  len(r.players),
	})
	r.maybeStart()
	return nil
}

// restoreScore reads p's persisted score. A round settled while the read
// was in flight is read again.
func (r *Room) restoreScore(p *Player) {
	epoch := r.epoch
	pool := r.pool
	Await(r.reg.loop, func() (map[string]int, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		return pool.Scores(ctx)
	}, func(scores map[string]int, err error) {
		switch {
		case err != nil:
			r.fail(storeErr("read scores", err))
		case !r.seated(p):
		case r.epoch != epoch:
			r.restoreScore(p)
		case scores[p.id] != p.score:
			p.score = scores[p.id]
			r.rosterChanged()
		}
	})
}

// Leave unseats p. Their hand goes to the discards, their membership is
// cleared and their connection keeps watching as a spectator.
func (r *Room) Leave(p *Player, reason string) error {
	idx := r.indexOf(p)
	if idx < 0 {
		return ErrNotInRoom
	}
	wasDealer := r.dealer == p

	r.players = append(r.players[:idx], r.players[idx+1:]...)
	p.room = nil
	p.seat = ""
	p.selection = nil
	p.score = 0
	p.hand = nil
	r.touch()

	log.Info().Str("room_id", r.id).Str("player_id", p.id).Str("reason", reason).Int("players", len(r.players)).Msg("player left")

	p.send(msg("set", Fields{"canJoin": true, "unlocked": false, "action": nil}))
	p.send(msg("hand", Fields{"hand": []models.Card{}}))
	r.foldHand(p.id)
	id := p.id
	Await(r.reg.loop, func() (struct{}, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		return struct{}{}, r.reg.accounts.ClearRoom(ctx, id)
	}, func(_ struct{}, err error) {
		if err != nil {
			r.fail(storeErr("clear membership", err))
		}
	})
	if p.conn != nil {
		r.reg.watch(p.conn, r)
	}

	r.notify(events.TypePlayerLeft, events.PlayerLeftPayload{
		PlayerID: p.id,
		Reason:   reason,
		Players:  len(r.players),
	})

	if wasDealer {
		r.dealer = nil
		if len(r.players) > 0 {
			r.dealer = r.players[idx%len(r.players)]
		}
	}
	r.rosterChanged()

	if r.checkQuorum() {
		return nil
	}

	switch r.status {
	case models.RoomStatusNominating:
		if wasDealer && r.dealer != nil {
			// The new dealer cannot also play this round.
			if r.dealer.selection != nil {
				r.dealer.selection = nil
				r.dealer.send(msg("select", Fields{"cards": []string{}}))
			}
			r.sendPersonalState(r.dealer)
		}
		r.updateNominationTimer()
		if !r.busy {
			r.checkNominate(evLostPlayer)
		}
	case models.RoomStatusElecting:
		if wasDealer {
			r.keepDealer = true
			r.forceElection()
		}
	}
	return nil
}

// foldHand moves whatever the store holds for player id back to the
// discards.
func (r *Room) foldHand(id string) {
	pool := r.pool
	Await(r.reg.loop, func() (struct{}, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		hand, err := pool.Hand(ctx, id)
		if err != nil || len(hand) == 0 {
			return struct{}{}, err
		}
		return struct{}{}, pool.Commit(ctx, pool.Begin().DiscardHand(id, hand))
	}, func(_ struct{}, err error) {
		if err != nil {
			r.fail(storeErr("fold hand", err))
		}
	})
}

// Chat posts a line from a named speaker. The limiter is keyed by user id.
func (r *Room) Chat(userID, name, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if name == "" {
		return invalid("Set a name first.")
	}
	if limit := r.reg.cfg.MessageLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	if !r.reg.limiter.Allow(userID) {
		return invalid("Slow down! You're chatting too fast.")
	}
	r.appendChat(models.ChatLine{Name: name, Text: text})
	return nil
}

// notice posts a system line to the room chat.
func (r *Room) notice(text string) {
	log.Info().Str("room_id", r.id).Str("notice", text).Msg("room notice")
	r.appendChat(models.ChatLine{Text: text, System: true})
}

// appendChat queues line. Lines are persisted and broadcast one at a time
// so the log keeps posting order.
func (r *Room) appendChat(line models.ChatLine) {
	r.chatQueue = append(r.chatQueue, line)
	if !r.chatting {
		r.writeChat()
	}
}

func (r *Room) writeChat() {
	if len(r.chatQueue) == 0 {
		r.chatting = false
		return
	}
	line := r.chatQueue[0]
	r.chatQueue = r.chatQueue[1:]
	r.chatting = true

	pool := r.pool
	keep := r.reg.cfg.ChatHistory
	Await(r.reg.loop, func() (struct{}, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		return struct{}{}, pool.AppendChat(ctx, line, keep)
	}, func(_ struct{}, err error) {
		if err != nil {
			r.chatting = false
			r.chatQueue = nil
			r.fail(storeErr("append chat", err))
			return
		}
		r.broadcast(msg("add", Fields{"t": "chat", "obj": line}))
		r.writeChat()
	})
}

// fail drops every player's connection with the error and returns the
// room to Inactive. There is no retry.
func (r *Room) fail(err error) {
	log.Error().Err(err).Str("room_id", r.id).Str("state", string(r.status)).Msg("room failed")

	reason := err.Error()
	var se *StoreError
	if errors.As(err, &se) {
		reason = "Storage failure: " + se.Op + "."
	}
	for _, p := range r.players {
		p.drop(reason)
	}
	if r.status != models.RoomStatusInactive {
		r.transition(evFailed)
	}
	r.clearRound()
	r.busy = false
	r.epoch++
	r.broadcastWaiting()
}

// rosterChanged queues a roster rebroadcast for the end of the task.
func (r *Room) rosterChanged() {
	r.broadcastSet("roster", r.roster())
}

func (r *Room) roster() []Fields {
	out := make([]Fields, 0, len(r.players)+len(r.spectators))
	for _, p := range r.players {
		out = append(out, p.rosterEntry(p == r.dealer))
	}
	for _, c := range r.spectators {
		out = append(out, Fields{"id": c.ID(), "name": c.Name(), "kind": "spec"})
	}
	return out
}

// broadcastSet merges k into the one "set" message every member receives
// for this task.
func (r *Room) broadcastSet(k string, v any) {
	if r.pendingSet == nil {
		r.pendingSet = Fields{}
		r.broadcast(msg("set", r.pendingSet))
		r.reg.out.Defer(func() { r.pendingSet = nil })
	}
	r.pendingSet[k] = v
}

func (r *Room) broadcast(m Message) {
	for _, p := range r.players {
		r.reg.out.Send(p.conn, m)
	}
	for _, c := range r.spectators {
		r.reg.out.Send(c, m)
	}
}

func (r *Room) broadcastCountdown(t *Timer) {
	r.broadcast(msg("countdown", Fields{"remaining": seconds(t.Remaining())}))
}

func seconds(d time.Duration) int {
	return int((d + time.Second - 1) / time.Second)
}

func (r *Room) anonymized() []models.AnonymousSubmission {
	out := make([]models.AnonymousSubmission, len(r.submissions))
	for i, s := range r.submissions {
		out[i] = models.AnonymousSubmission{Cards: s.Cards}
	}
	return out
}

// snapshot sends the full room state to c. p is the player behind c, or
// nil for a spectator. withHand also pushes the stored hand.
func (r *Room) snapshot(c Conn, p *Player, withHand bool) {
	if c == nil {
		return
	}
	out := r.reg.out
	info := r.stateFor(p)
	if r.prompt == nil {
		info["black"] = nil
	}
	if r.status == models.RoomStatusElecting || r.status == models.RoomStatusAwarding {
		info["submissions"] = r.anonymized()
	} else {
		info["submissions"] = nil
	}
	out.Send(c, msg("set", info))
	if r.prompt != nil {
		out.Send(c, msg("black", Fields{"black": r.prompt.Card}))
	}
	out.Send(c, msg("set", Fields{"roster": r.roster()}))
	for _, t := range []*Timer{r.nominationTimer, r.electionTimer} {
		if t.Active() {
			out.Send(c, msg("countdown", Fields{"remaining": seconds(t.Remaining())}))
		}
	}
	if p != nil && p.selection != nil {
		out.Send(c, msg("select", Fields{"cards": p.selection}))
	}

	pool := r.pool
	var id string
	if p != nil {
		id = p.id
	}
	type view struct {
		chat []models.ChatLine
		hand []string
	}
	Await(r.reg.loop, func() (view, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		var v view
		var err error
		if v.chat, err = pool.Chat(ctx); err != nil {
			return v, err
		}
		if withHand && id != "" {
			v.hand, err = pool.Hand(ctx, id)
		}
		return v, err
	}, func(v view, err error) {
		if err != nil {
			r.fail(storeErr("load snapshot", err))
			return
		}
		r.reg.out.Send(c, msg("reset", Fields{"t": "chat", "objs": v.chat}))
		if withHand && p != nil && p.room == r && p.conn == c {
			p.hand = v.hand
			p.sendHand()
		}
	})
}

// stateFor is the status line, lock and action a given viewer should see.
func (r *Room) stateFor(p *Player) Fields {
	info := Fields{"unlocked": false, "action": nil}
	seatedPlayer := p != nil && p.room == r
	switch r.status {
	case models.RoomStatusInactive:
		info["status"] = "Waiting for players..."
	case models.RoomStatusNominating:
		switch {
		case !seatedPlayer:
			info["status"] = "Players are choosing..."
		case p == r.dealer:
			info["status"] = "You are the dealer this round."
		case r.busy:
			info["status"] = "Collecting submissions..."
		default:
			info["unlocked"] = true
			info["action"] = "nominate"
			info["status"] = "Choose your cards."
		}
	case models.RoomStatusElecting:
		if seatedPlayer && p == r.dealer {
			info["action"] = "elect"
			info["status"] = "Choose your favorite."
		} else {
			info["status"] = "The dealer is choosing..."
		}
	case models.RoomStatusAwarding:
		info["status"] = "Next round soon..."
	}
	return info
}

// sendPersonalState pushes stateFor to one seated player.
func (r *Room) sendPersonalState(p *Player) {
	p.send(msg("set", r.stateFor(p)))
}

func (r *Room) broadcastWaiting() {
	r.broadcastSet("black", nil)
	r.broadcastSet("submissions", nil)
	r.broadcastSet("unlocked", false)
	r.broadcastSet("action", nil)
	r.broadcastSet("status", "Waiting for players...")
}

func (r *Room) notify(eventType string, payload any) {
	r.reg.notifier.Notify(events.New(eventType, r.id, r.reg.loop.clock.Now(), payload))
}

// commit applies tx off the loop; a failure fails the room.
func (r *Room) commit(op string, tx *store.RoundTx) {
	pool := r.pool
	Await(r.reg.loop, func() (struct{}, error) {
		ctx, cancel := r.reg.storeCtx()
		defer cancel()
		return struct{}{}, pool.Commit(ctx, tx)
	}, func(_ struct{}, err error) {
		if err != nil {
			r.fail(storeErr(op, err))
		}
	})
}

// Snapshot is the read-only view served to HTTP stats.
type Snapshot struct {
	ID         string            `json:"id"`
	Status     models.RoomStatus `json:"status"`
	Players    int               `json:"players"`
	Spectators int               `json:"spectators"`
	Dealer     string            `json:"dealer,omitempty"`
	Prompt     string            `json:"prompt,omitempty"`
}

func (r *Room) describe() Snapshot {
	s := Snapshot{
		ID:         r.id,
		Status:     r.status,
		Players:    len(r.players),
		Spectators: len(r.spectators),
	}
	if r.dealer != nil {
		s.Dealer = r.dealer.id
	}
	if r.prompt != nil {
		s.Prompt = r.prompt.Card
	}
	return s
}
