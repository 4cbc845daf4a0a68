package events

import (
	"time"

	"github.com/google/uuid"
)

// Event types published for every room transition.
const (
	TypeRoundStarted      = "RoundStarted"
	TypeSubmissionsClosed = "SubmissionsClosed"
	TypeVictoryAwarded    = "VictoryAwarded"
	TypeRoundReset        = "RoundReset"
	TypePlayerJoined      = "PlayerJoined"
	TypePlayerLeft        = "PlayerLeft"
)

// Event is the envelope around a room event payload.
type Event struct {
	ID         uuid.UUID `json:"event_id"`
	Type       string    `json:"event_type"`
	RoomID     string    `json:"room_id"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// New wraps payload in an envelope with a fresh id.
func New(eventType, roomID string, at time.Time, payload any) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		RoomID:     roomID,
		OccurredAt: at.UTC(),
		Payload:    payload,
	}
}

// RoundStartedPayload is the payload for a RoundStarted event
type RoundStartedPayload struct {
	Prompt   string `json:"prompt"`
	Blanks   int    `json:"blanks"`
	DealerID string `json:"dealer_id"`
	Players  int    `json:"players"`
}

// SubmissionsClosedPayload is the payload for a SubmissionsClosed event
type SubmissionsClosedPayload struct {
	Prompt     string `json:"prompt"`
	Accepted   int    `json:"accepted"`
	Rejected   int    `json:"rejected"`
	TimedOut   bool   `json:"timed_out"`
	LostPlayer bool   `json:"lost_player"`
}

// VictoryAwardedPayload is the payload for a VictoryAwarded event
type VictoryAwardedPayload struct {
	Prompt   string   `json:"prompt"`
	WinnerID string   `json:"winner_id,omitempty"`
	Cards    []string `json:"cards,omitempty"`
	Score    int      `json:"score"`
	Forced   bool     `json:"forced"`
}

// RoundResetPayload is the payload for a RoundReset event
type RoundResetPayload struct {
	ChampionID string `json:"champion_id"`
	Points     int    `json:"points"`
}

// PlayerJoinedPayload is the payload for a PlayerJoined event
type PlayerJoinedPayload struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	Players  int    `json:"players"`
}

// PlayerLeftPayload is the payload for a PlayerLeft event
type PlayerLeftPayload struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
	Players  int    `json:"players"`
}
