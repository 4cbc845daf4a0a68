package gateway

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ConnectionManager owns the websocket sessions and their pumps.
type ConnectionManager struct {
	sessions map[string]*Session
	mu       sync.RWMutex

	upgrader   websocket.Upgrader
	config     ConnectionConfig
	dispatcher *Dispatcher
}

// ConnectionConfig holds configuration for WebSocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConnectionConfig returns default WebSocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

func NewConnectionManager(config ConnectionConfig, dispatcher *Dispatcher) *ConnectionManager {
	if config.SendBuffer <= 0 {
		config.SendBuffer = 256
	}
	return &ConnectionManager{
		sessions: make(map[string]*Session),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:     config,
		dispatcher: dispatcher,
	}
}

// UpgradeConnection upgrades an HTTP connection to WebSocket and starts its
// pumps.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	s := newSession(uuid.New().String(), conn, cm.config.SendBuffer)
	cm.register(s)

	go cm.writePump(s)
	go cm.readPump(s)

	log.Info().
		Str("connection_id", s.id).
		Str("remote_addr", r.RemoteAddr).
		Msg("WebSocket connection established")
	return nil
}

func (cm *ConnectionManager) register(s *Session) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.sessions[s.id] = s

	log.Debug().
		Str("connection_id", s.id).
		Int("total_connections", len(cm.sessions)).
		Msg("connection registered")
}

func (cm *ConnectionManager) unregister(s *Session) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if _, ok := cm.sessions[s.id]; !ok {
		return false
	}
	delete(cm.sessions, s.id)

	log.Info().
		Str("connection_id", s.id).
		Dur("connected_for", time.Since(s.connectedAt)).
		Msg("connection unregistered")
	return true
}

// Count returns the number of open sessions.
func (cm *ConnectionManager) Count() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.sessions)
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	var oldest time.Duration
	for _, s := range cm.sessions {
		if age := time.Since(s.connectedAt); age > oldest {
			oldest = age
		}
	}
	return map[string]interface{}{
		"total_connections":      len(cm.sessions),
		"oldest_connection_secs": int(oldest.Seconds()),
	}
}

// CloseAll asks every session to close.
func (cm *ConnectionManager) CloseAll() {
	cm.mu.RLock()
	sessions := make([]*Session, 0, len(cm.sessions))
	for _, s := range cm.sessions {
		sessions = append(sessions, s)
	}
	cm.mu.RUnlock()

	for _, s := range sessions {
		s.Close()
	}
}

// writePump handles sending frames to the WebSocket connection. Frames
// queued before Close are still written.
func (cm *ConnectionManager) writePump(s *Session) {
	ticker := time.NewTicker(cm.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.send:
			if err := cm.write(s, websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("connection_id", s.id).Msg("failed to write message to WebSocket")
				s.Close()
				return
			}

		case <-ticker.C:
			if err := cm.write(s, websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("connection_id", s.id).Msg("failed to send ping")
				s.Close()
				return
			}

		case <-s.done:
			for {
				select {
				case frame := <-s.send:
					if err := cm.write(s, websocket.TextMessage, frame); err != nil {
						return
					}
				default:
					cm.write(s, websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
					return
				}
			}
		}
	}
}

func (cm *ConnectionManager) write(s *Session, kind int, data []byte) error {
	s.conn.SetWriteDeadline(time.Now().Add(cm.config.WriteTimeout))
	return s.conn.WriteMessage(kind, data)
}

// readPump handles reading messages from the WebSocket connection
func (cm *ConnectionManager) readPump(s *Session) {
	defer func() {
		if cm.unregister(s) {
			cm.dispatcher.Closed(s)
		}
		s.Close()
	}()

	s.conn.SetReadLimit(cm.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", s.id).
					Msg("unexpected WebSocket close error")
			}
			return
		}
		cm.dispatcher.Handle(s, message)
		s.conn.SetReadDeadline(time.Now().Add(cm.config.ReadTimeout))
	}
}
