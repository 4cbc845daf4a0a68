package gateway

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/game"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/store"
)

// Dispatcher routes client messages into the game. Decoding happens on the
// caller's goroutine; everything else runs on the loop.
type Dispatcher struct {
	reg  *game.Registry
	loop *game.Loop
}

func NewDispatcher(reg *game.Registry) *Dispatcher {
	return &Dispatcher{reg: reg, loop: reg.Loop()}
}

// Handle decodes raw and applies it for s. Safe from any goroutine.
func (d *Dispatcher) Handle(s *Session, raw []byte) {
	msg, err := Decode(raw)
	d.post(s, func() {
		if err != nil {
			d.drop(s, err)
			return
		}
		d.dispatch(s, msg)
	})
}

// Closed releases whatever s held once its transport is gone.
func (d *Dispatcher) Closed(s *Session) {
	if err := d.loop.Post(func() {
		if s.state == stateClosed {
			return
		}
		s.state = stateClosed
		d.reg.Disconnect(s, s.player)
		s.player = nil
	}); err != nil {
		log.Debug().Err(err).Str("connection_id", s.id).Msg("loop stopped before disconnect")
	}
}

func (d *Dispatcher) post(s *Session, fn func()) {
	err := d.loop.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("connection_id", s.id).Msg("handler panicked")
				d.reg.Outbox().Drop(s, "Caught.")
			}
		}()
		if s.state == stateClosed {
			return
		}
		fn()
	})
	if err != nil {
		log.Debug().Err(err).Str("connection_id", s.id).Msg("dropping message for stopped loop")
	}
}

func (d *Dispatcher) dispatch(s *Session, msg Inbound) {
	log.Debug().Str("connection_id", s.id).Str("kind", msg.kind()).Msg("client message")

	if m, ok := msg.(Login); ok {
		d.login(s, m)
		return
	}
	if s.state != stateReady {
		d.warn(s, "Not logged in!")
		return
	}
	p := s.player
	if m, ok := msg.(Watch); ok {
		d.report(s, d.reg.Spectate(s, p, m.Game))
		return
	}
	if p == nil {
		d.warn(s, "Already connected.")
		return
	}

	var err error
	switch m := msg.(type) {
	case SetName:
		err = d.reg.Rename(p, m.Name)
	case Join:
		err = d.reg.Join(p, m.Game)
	case Leave:
		err = d.reg.Leave(p)
	case Submit:
		switch room := p.Room(); {
		case room == nil:
			err = game.ErrNotInRoom
		case m.Malformed:
			err = &game.ValidationError{Reason: "Invalid choices!"}
		default:
			err = room.Submit(p, m.Cards)
		}
	case Elect:
		switch room := p.Room(); {
		case room == nil:
			err = game.ErrNotInRoom
		case m.Malformed:
			err = &game.ValidationError{Reason: "Invalid choice!"}
		default:
			err = room.Elect(p, m.Cards)
		}
	case Chat:
		err = d.chat(s, p, m.Text)
	case Suggest:
		err = d.suggest(s, p, m.Text)
	}
	d.report(s, err)
}

func (d *Dispatcher) login(s *Session, m Login) {
	if s.state != stateNew {
		d.warn(s, "Can't login.")
		return
	}
	s.state = stateLoggingIn

	accounts := d.reg.Accounts()
	timeout := d.reg.Config().StoreTimeout
	game.Await(d.loop, func() (models.User, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		id, err := accounts.Resolve(ctx, m.ID)
		if err != nil {
			return models.User{}, err
		}
		return accounts.Load(ctx, id)
	}, func(user models.User, err error) {
		if s.state == stateClosed {
			return
		}
		switch {
		case errors.Is(err, store.ErrBadToken):
			s.state = stateNew
			d.warn(s, "Bad id.")
		case errors.Is(err, store.ErrAccountRace):
			d.reg.Outbox().Drop(s, "Couldn't save your account.")
		case err != nil:
			log.Error().Err(err).Str("connection_id", s.id).Msg("login failed")
			d.reg.Outbox().Drop(s, "Storage failure: login.")
		default:
			log.Info().Str("connection_id", s.id).Str("player_id", user.ID).Msg("logged in")
			s.player = d.reg.Attach(s, user)
			s.state = stateReady
		}
	})
}

func (d *Dispatcher) chat(s *Session, p *game.Player, text string) error {
	room := p.Room()
	if room == nil {
		room = d.reg.Watching(s)
	}
	if room == nil {
		return game.ErrNotInRoom
	}
	var name string
	if p.Named() {
		name = p.Name()
	}
	return room.Chat(p.ID(), name, text)
}

func (d *Dispatcher) suggest(s *Session, p *game.Player, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit := d.reg.Config().MessageLength; limit > 0 && utf8.RuneCountInString(text) > limit {
		text = string([]rune(text)[:limit])
	}
	if !d.reg.Limiter().Allow(p.ID()) {
		return &game.ValidationError{Reason: "Slow down! Too many suggestions."}
	}

	suggestions := d.reg.Suggestions()
	timeout := d.reg.Config().StoreTimeout
	game.Await(d.loop, func() (bool, error) {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return suggestions.Add(ctx, text)
	}, func(added bool, err error) {
		switch {
		case err != nil:
			log.Error().Err(err).Str("player_id", p.ID()).Msg("failed to save suggestion")
			d.warn(s, "Couldn't save your suggestion.")
		case added:
			d.warn(s, "Thanks for the suggestion!")
		default:
			d.warn(s, "Already suggested.")
		}
	})
	return nil
}

// report surfaces a handler error to the sender. Anything unexpected ends
// the session.
func (d *Dispatcher) report(s *Session, err error) {
	if err == nil {
		return
	}
	var verr *game.ValidationError
	switch {
	case errors.As(err, &verr):
		d.warn(s, verr.Reason)
	case errors.Is(err, game.ErrBadName):
		d.drop(s, protocolError("Bad name.", err))
	case errors.Is(err, game.ErrNotInRoom):
		d.warn(s, "Not playing!")
	case errors.Is(err, game.ErrNotElecting):
		d.warn(s, "Not choosing right now!")
	case errors.Is(err, game.ErrNotDealer):
		d.warn(s, "You are not the dealer!")
	case errors.Is(err, game.ErrNotNominating), errors.Is(err, game.ErrAlreadyPlaying):
		log.Debug().Err(err).Str("connection_id", s.id).Msg("ignored client message")
	default:
		log.Error().Err(err).Str("connection_id", s.id).Msg("unexpected handler error")
		d.reg.Outbox().Drop(s, "Caught.")
	}
}

func (d *Dispatcher) warn(s *Session, text string) {
	d.reg.Outbox().Warn(s, text)
}

func (d *Dispatcher) drop(s *Session, err error) {
	reason := "Caught."
	var perr *ProtocolError
	if errors.As(err, &perr) {
		reason = perr.Reason
	}
	log.Warn().Err(err).Str("connection_id", s.id).Msg("dropping connection")
	d.reg.Outbox().Drop(s, reason)
}
