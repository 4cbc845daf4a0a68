package models

import "time"

// RoomStatus mirrors the state hash persisted for each room.
type RoomStatus string

const (
	RoomStatusInactive   RoomStatus = "inactive"
	RoomStatusNominating RoomStatus = "nominating"
	RoomStatusElecting   RoomStatus = "electing"
	RoomStatusAwarding   RoomStatus = "awarding"
)

// Submission is one player's filler cards for the current prompt.
type Submission struct {
	PlayerID string   `json:"id"`
	Cards    []string `json:"cards"`
}

// AnonymousSubmission is the judge-facing view of a Submission.
type AnonymousSubmission struct {
	Cards []string `json:"cards"`
}

// ScoreEntry is a row of the persisted score table.
type ScoreEntry struct {
	PlayerID string `json:"id"`
	Score    int    `json:"score"`
}

// ChatLine is one entry of a room's chat log.
type ChatLine struct {
	Name   string `json:"name"`
	Text   string `json:"text"`
	System bool   `json:"system,omitempty"`
}

// RoundResult describes a resolved round.
type RoundResult struct {
	RoomID      string    `json:"room_id"`
	Prompt      string    `json:"prompt"`
	WinnerID    string    `json:"winner_id,omitempty"`
	WinnerCards []string  `json:"winner_cards,omitempty"`
	Submissions int       `json:"submissions"`
	Forced      bool      `json:"forced"`
	ResolvedAt  time.Time `json:"resolved_at"`
}
