package game

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/ratelimit"
	"github.com/mcdev12/cardroom/go/internal/store"
)

// Deps are the collaborators a Registry needs besides its config and loop.
type Deps struct {
	Backend  store.Backend
	Notifier Notifier
	Archive  Archive
	Rand     *rand.Rand
}

// Registry owns every room and player. Rooms are created on first
// reference and evicted once idle; players are evicted after abandonment.
// All methods must run on the loop unless noted.
type Registry struct {
	cfg  Config
	loop *Loop

	backend     store.Backend
	accounts    *store.Accounts
	suggestions *store.Suggestions
	notifier    Notifier
	archive     Archive
	rng         *rand.Rand
	out         *Outbox
	limiter     *ratelimit.Limiter

	rooms    map[string]*Room
	players  map[string]*Player
	watching map[Conn]*Room

	sweeper *Timer
}

// NewRegistry wires a registry to loop. Outbound messages are flushed after
// every loop task.
func NewRegistry(cfg Config, loop *Loop, deps Deps) *Registry {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Archive == nil {
		deps.Archive = nopArchive{}
	}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(loop.clock.Now().UnixNano()))
	}

	r := &Registry{
		cfg:         cfg,
		loop:        loop,
		backend:     deps.Backend,
		accounts:    store.NewAccounts(deps.Backend),
		suggestions: store.NewSuggestions(deps.Backend),
		notifier:    deps.Notifier,
		archive:     deps.Archive,
		rng:         deps.Rand,
		out:         NewOutbox(),
		limiter:     ratelimit.New(loop.clock, cfg.ChatPerMinute),
		rooms:       make(map[string]*Room),
		players:     make(map[string]*Player),
		watching:    make(map[Conn]*Room),
	}
	loop.OnTaskDone(r.out.Flush)
	return r
}

func (r *Registry) Config() Config { return r.cfg }

func (r *Registry) Loop() *Loop { return r.loop }

func (r *Registry) Outbox() *Outbox { return r.out }

// Accounts and Suggestions are safe to call off the loop.
func (r *Registry) Accounts() *store.Accounts { return r.accounts }

func (r *Registry) Suggestions() *store.Suggestions { return r.suggestions }

func (r *Registry) Limiter() *ratelimit.Limiter { return r.limiter }

// Room returns the room with id, creating it on first reference.
func (r *Registry) Room(id string) *Room {
	room, ok := r.rooms[id]
	if !ok {
		room = newRoom(r, id)
		r.rooms[id] = room
		log.Debug().Str("room_id", id).Msg("room created")
	}
	return room
}

// LookupRoom returns an existing room without creating it.
func (r *Registry) LookupRoom(id string) (*Room, bool) {
	room, ok := r.rooms[id]
	return room, ok
}

// LookupPlayer returns a registered player.
func (r *Registry) LookupPlayer(id string) (*Player, bool) {
	p, ok := r.players[id]
	return p, ok
}

// Attach binds c to the account user. A player already held by another
// connection leaves c watching instead and Attach returns nil. A player
// whose account records a seat is put back in that room.
func (r *Registry) Attach(c Conn, user models.User) *Player {
	p, ok := r.players[user.ID]
	if !ok {
		p = newPlayer(r, user.ID)
		p.name = user.Name
		p.seat = user.RoomID
		r.players[user.ID] = p
	}

	if !p.Adopt(c) {
		log.Info().Str("player_id", p.id).Str("connection_id", c.ID()).Msg("player already connected")
		r.out.Warn(c, "Already connected.")
		r.watchDefault(c, p)
		return nil
	}
	r.out.Send(c, msg("set", Fields{"t": "account", "name": p.name}))

	switch {
	case p.room != nil:
		r.unwatch(c)
	case p.seat != "":
		if err := r.Room(p.seat).Resume(p); err != nil {
			log.Warn().Err(err).Str("player_id", p.id).Str("room_id", p.seat).Msg("could not resume seat")
			r.watchDefault(c, p)
		}
	default:
		r.watchDefault(c, p)
	}
	return p
}

func (r *Registry) watchDefault(c Conn, p *Player) {
	if _, ok := r.watching[c]; ok {
		return
	}
	id := r.cfg.DefaultRoom
	if p != nil && p.room != nil {
		id = p.room.id
	}
	r.watch(c, r.Room(id))
}

// Join seats p in room id once the store records the membership.
func (r *Registry) Join(p *Player, id string) error {
	if p.room != nil {
		if p.room.id == id {
			p.warn("Already playing.")
			return ErrAlreadyPlaying
		}
		p.warn("Already in a game!")
		return ErrAlreadyPlaying
	}
	if id == "" {
		id = r.cfg.DefaultRoom
	}

	accounts := r.accounts
	Await(r.loop, func() (bool, error) {
		ctx, cancel := r.storeCtx()
		defer cancel()
		return accounts.SetRoom(ctx, p.id, id)
	}, func(ok bool, err error) {
		switch {
		case err != nil:
			log.Error().Err(err).Str("player_id", p.id).Msg("failed to record room membership")
			p.drop("Storage failure: join.")
		case !ok:
			p.warn("Already in a game!")
		case p.room != nil:
			// Joined elsewhere while the store was busy.
		default:
			if err := r.Room(id).AddPlayer(p); err != nil {
				log.Warn().Err(err).Str("player_id", p.id).Str("room_id", id).Msg("join refused")
			}
		}
	})
	return nil
}

// Leave unseats p from whatever room it is in.
func (r *Registry) Leave(p *Player) error {
	if p.room == nil {
		return ErrNotInRoom
	}
	return p.room.Leave(p, "left")
}

// Spectate makes c watch room id, the default room when id is empty. p is
// the player c adopted, or nil. Seated players keep watching their own room.
func (r *Registry) Spectate(c Conn, p *Player, id string) error {
	if p != nil && p.room != nil {
		p.warn("Already in a game!")
		return ErrAlreadyPlaying
	}
	if id == "" {
		id = r.cfg.DefaultRoom
	}
	r.watch(c, r.Room(id))
	return nil
}

// Watching is the room c spectates, or nil.
func (r *Registry) Watching(c Conn) *Room {
	return r.watching[c]
}

func (r *Registry) watch(c Conn, room *Room) {
	if cur, ok := r.watching[c]; ok {
		if cur == room {
			return
		}
		cur.RemoveSpectator(c)
	}
	r.watching[c] = room
	room.AddSpectator(c)
}

func (r *Registry) unwatch(c Conn) {
	if room, ok := r.watching[c]; ok {
		delete(r.watching, c)
		room.RemoveSpectator(c)
	}
}

// Disconnect tears down everything c held. p is the player c adopted, or
// nil.
func (r *Registry) Disconnect(c Conn, p *Player) {
	r.unwatch(c)
	if p != nil {
		p.Abandon(c)
	}
}

// Rename validates, rate limits and claims a new display name for p.
func (r *Registry) Rename(p *Player, raw string) error {
	name := CleanName(raw, r.cfg.NameLength)
	if name == "" {
		return ErrBadName
	}
	if name == p.name {
		return nil
	}
	if !r.limiter.Allow(p.id) {
		return invalid("Slow down! You're changing names too fast.")
	}

	accounts := r.accounts
	old := p.name
	Await(r.loop, func() (struct{}, error) {
		ctx, cancel := r.storeCtx()
		defer cancel()
		return struct{}{}, accounts.ClaimName(ctx, p.id, old, name)
	}, func(_ struct{}, err error) {
		switch {
		case errors.Is(err, store.ErrNameTaken):
			p.warn("Name is already taken.")
		case err != nil:
			log.Error().Err(err).Str("player_id", p.id).Msg("failed to claim name")
			p.drop("Storage failure: set name.")
		default:
			log.Info().Str("player_id", p.id).Str("name", name).Msg("player renamed")
			p.name = name
			p.send(msg("set", Fields{"t": "account", "name": name}))
			p.warn(`Your name is now "` + name + `".`)
			if p.room != nil {
				p.room.rosterChanged()
			} else if room, ok := r.watching[p.conn]; ok && p.conn != nil {
				room.rosterChanged()
			}
		}
	})
	return nil
}

func (r *Registry) evictPlayer(p *Player) {
	if p.room != nil || p.conn != nil {
		return
	}
	if cur, ok := r.players[p.id]; ok && cur == p {
		delete(r.players, p.id)
		log.Info().Str("player_id", p.id).Msg("player evicted")
	}
}

func (r *Registry) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.cfg.StoreTimeout)
}

func (r *Registry) archiveRound(result models.RoundResult) {
	archive := r.archive
	Await(r.loop, func() (struct{}, error) {
		ctx, cancel := r.storeCtx()
		defer cancel()
		return struct{}{}, archive.RecordRound(ctx, result)
	}, func(_ struct{}, err error) {
		if err != nil {
			log.Warn().Err(err).Str("room_id", result.RoomID).Msg("failed to archive round")
		}
	})
}

// StartSweeper evicts idle rooms and stale limiter entries every interval.
// Must be called on the loop.
func (r *Registry) StartSweeper(every time.Duration) {
	r.sweeper.Stop()
	r.sweeper = r.loop.After(every, func() {
		r.Sweep()
		r.StartSweeper(every)
	})
}

// Sweep drops rooms that have been empty and inactive for the room TTL.
func (r *Registry) Sweep() int {
	now := r.loop.clock.Now()
	evicted := 0
	for id, room := range r.rooms {
		if len(room.players) > 0 || len(room.spectators) > 0 || room.status != models.RoomStatusInactive || room.busy || room.chatting {
			continue
		}
		if now.Sub(room.lastActive) < r.cfg.RoomTTL {
			continue
		}
		delete(r.rooms, id)
		evicted++
		log.Info().Str("room_id", id).Msg("idle room evicted")
	}
	if pruned := r.limiter.Prune(); pruned > 0 {
		log.Debug().Int("entries", pruned).Msg("pruned rate limiter")
	}
	return evicted
}

// Stats is a point-in-time summary for the HTTP stats route.
type Stats struct {
	Rooms       []Snapshot `json:"rooms"`
	Players     int        `json:"players"`
	Connected   int        `json:"connected"`
	Spectators  int        `json:"spectators"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// Stats collects a summary on the loop. Safe to call from any goroutine.
func (r *Registry) Stats(ctx context.Context) (Stats, error) {
	done := make(chan Stats, 1)
	err := r.loop.Do(ctx, func() {
		s := Stats{
			GeneratedAt: r.loop.clock.Now().UTC(),
			Players:     len(r.players),
			Spectators:  len(r.watching),
			Rooms:       make([]Snapshot, 0, len(r.rooms)),
		}
		for _, p := range r.players {
			if p.conn != nil {
				s.Connected++
			}
		}
		for _, room := range r.rooms {
			s.Rooms = append(s.Rooms, room.describe())
		}
		sort.Slice(s.Rooms, func(i, j int) bool { return s.Rooms[i].ID < s.Rooms[j].ID })
		done <- s
	})
	if err != nil {
		return Stats{}, err
	}
	return <-done, nil
}
