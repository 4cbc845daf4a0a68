package game

import (
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/models"
)

// Player is a durable identity. It outlives connections: a dropped client
// can reconnect and adopt it again until the abandonment timers fire.
type Player struct {
	id   string
	name string
	reg  *Registry

	conn Conn
	room *Room
	// seat is the room recorded in the store, resumed on adoption.
	seat string

	selection []string
	score     int
	hand      []string

	// A deal requested while one is in flight runs when it lands.
	dealing   bool
	redeal    bool
	freshDeal bool

	abandonTimer *Timer
	idleTimer    *Timer
}

func newPlayer(reg *Registry, id string) *Player {
	return &Player{id: id, reg: reg}
}

func (p *Player) ID() string { return p.id }

// Name is the display name, or a placeholder before one is chosen.
func (p *Player) Name() string {
	if p.name == "" {
		return "Anonymous"
	}
	return p.name
}

// Named reports whether the account has chosen a name.
func (p *Player) Named() bool { return p.name != "" }

func (p *Player) Room() *Room { return p.room }

func (p *Player) Conn() Conn { return p.conn }

func (p *Player) Score() int { return p.score }

// Selection is the pending card choice, nil when none.
func (p *Player) Selection() []string { return p.selection }

// Hand is the last hand snapshot pushed to the client.
func (p *Player) Hand() []string { return p.hand }

// Adopt binds c to this player. It fails when another connection already
// holds the player.
func (p *Player) Adopt(c Conn) bool {
	if p.conn != nil && p.conn != c {
		return false
	}
	p.abandonTimer.Stop()
	p.idleTimer.Stop()
	p.abandonTimer, p.idleTimer = nil, nil
	p.conn = c

	log.Info().Str("player_id", p.id).Str("connection_id", c.ID()).Msg("player adopted")
	if p.room != nil {
		p.room.rosterChanged()
		p.room.snapshot(c, p, true)
		p.room.kick()
	} else {
		p.send(msg("set", Fields{"canJoin": true}))
	}
	return true
}

// Abandon detaches c and arms the abandonment and idle timers.
func (p *Player) Abandon(c Conn) {
	if p.conn == nil || p.conn != c {
		return
	}
	p.conn = nil
	log.Info().Str("player_id", p.id).Str("connection_id", c.ID()).Msg("player abandoned")

	cfg := p.reg.cfg
	p.abandonTimer = p.reg.loop.After(cfg.AbandonTimeout, p.onAbandoned)
	if p.room != nil {
		p.idleTimer = p.reg.loop.After(cfg.IdleTimeout, p.onIdle)
		p.room.rosterChanged()
	}
}

func (p *Player) onAbandoned() {
	p.abandonTimer = nil
	if p.conn != nil {
		return
	}
	if p.room == nil {
		p.idleTimer.Stop()
		p.reg.evictPlayer(p)
	}
}

func (p *Player) onIdle() {
	p.idleTimer = nil
	if p.conn != nil {
		return
	}
	log.Info().Str("player_id", p.id).Msg("idle player dropped")
	if p.room != nil {
		p.room.Leave(p, "idle")
	}
	p.abandonTimer.Stop()
	p.reg.evictPlayer(p)
}

type dealt struct {
	hand  []string
	drawn int
	short bool
}

// DealHand tops the hand up to capacity from the room's white pool. With
// fresh the current hand is discarded first. A full hand costs no draw and
// no write. Running out of cards is reported to the player, not fatal.
func (p *Player) DealHand(fresh bool) {
	room := p.room
	if room == nil {
		return
	}
	if p.dealing {
		if fresh {
			p.freshDeal = true
		} else {
			p.redeal = true
		}
		return
	}
	p.dealing = true

	pool := room.pool
	id := p.id
	size := p.reg.cfg.HandSize
	Await(p.reg.loop, func() (dealt, error) {
		ctx, cancel := p.reg.storeCtx()
		defer cancel()

		hand, err := pool.Hand(ctx, id)
		if err != nil {
			return dealt{}, err
		}
		if fresh && len(hand) > 0 {
			if err := pool.Commit(ctx, pool.Begin().DiscardHand(id, hand)); err != nil {
				return dealt{}, err
			}
			hand = nil
		}
		need := size - len(hand)
		if need <= 0 {
			return dealt{hand: hand}, nil
		}
		drawn, err := pool.Draw(ctx, models.DeckWhite, need)
		if err != nil {
			return dealt{}, err
		}
		if err := pool.AddToHand(ctx, id, drawn); err != nil {
			log.Error().Err(err).Str("player_id", id).Int("lost", len(drawn)).Msg("drawn cards lost")
			return dealt{}, err
		}
		hand = append(hand, drawn...)
		sort.Strings(hand)
		return dealt{hand: hand, drawn: len(drawn), short: len(drawn) < need}, nil
	}, func(d dealt, err error) {
		p.dealing = false
		if err != nil {
			room.fail(storeErr("deal hand", err))
			return
		}
		if p.room != room {
			// Left while dealing; the new cards go back to the discards.
			room.foldHand(id)
			return
		}
		p.hand = d.hand
		p.sendHand()
		if d.short {
			p.warn("The deck ran out of cards!")
		}
		switch {
		case p.freshDeal:
			p.freshDeal, p.redeal = false, false
			p.DealHand(true)
		case p.redeal:
			p.redeal = false
			p.DealHand(false)
		}
	})
}

func (p *Player) sendHand() {
	p.send(msg("hand", Fields{"hand": models.CardsFromNames(p.hand)}))
}

// confirmSubmission tells the player whether their selection made it into
// the round and clears it either way.
func (p *Player) confirmSubmission(accepted map[string]models.Submission) {
	if sub, ok := accepted[p.id]; ok {
		p.send(msg("select", Fields{"cards": sub.Cards, "final": true}))
		p.hand = without(p.hand, sub.Cards)
	} else {
		p.warn("Invalid submission!")
	}
	p.send(msg("set", Fields{"unlocked": false}))
	p.selection = nil
}

func (p *Player) send(m Message) {
	p.reg.out.Send(p.conn, m)
}

func (p *Player) warn(text string) {
	p.reg.out.Warn(p.conn, text)
}

func (p *Player) drop(reason string) {
	p.reg.out.Drop(p.conn, reason)
}

func (p *Player) rosterEntry(dealer bool) Fields {
	return Fields{
		"id":        p.id,
		"name":      p.Name(),
		"kind":      "player",
		"score":     p.score,
		"ready":     p.selection != nil,
		"abandoned": p.conn == nil,
		"dealer":    dealer,
	}
}

func without(cards, remove []string) []string {
	gone := make(map[string]struct{}, len(remove))
	for _, c := range remove {
		gone[c] = struct{}{}
	}
	out := make([]string, 0, len(cards))
	for _, c := range cards {
		if _, ok := gone[c]; !ok {
			out = append(out, c)
		}
	}
	return out
}
