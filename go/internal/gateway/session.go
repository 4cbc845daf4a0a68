package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/cardroom/go/internal/game"
)

type sessionState int

const (
	stateNew sessionState = iota
	stateLoggingIn
	stateReady
	stateClosed
)

// Session is one client connection. It implements game.Conn; the game
// fields are only touched on the loop.
type Session struct {
	id          string
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	connectedAt time.Time

	state  sessionState
	player *game.Player
}

func newSession(id string, conn *websocket.Conn, buffer int) *Session {
	return &Session{
		id:          id,
		conn:        conn,
		send:        make(chan []byte, buffer),
		done:        make(chan struct{}),
		connectedAt: time.Now(),
	}
}

func (s *Session) ID() string { return s.id }

// Name is how a spectator shows up in rosters.
func (s *Session) Name() string {
	if s.player != nil {
		return s.player.Name()
	}
	return "Anonymous"
}

// Send encodes batch as one JSON array frame. A client that cannot keep up
// is disconnected.
func (s *Session) Send(batch []game.Message) {
	select {
	case <-s.done:
		return
	default:
	}
	data, err := json.Marshal(batch)
	if err != nil {
		log.Error().Err(err).Str("connection_id", s.id).Msg("failed to marshal outbound batch")
		return
	}
	select {
	case s.send <- data:
	default:
		log.Warn().Str("connection_id", s.id).Msg("connection send buffer full, closing connection")
		s.Close()
	}
}

// Close ends the session once queued frames are written.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}

// Done is closed when the session is closing.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
