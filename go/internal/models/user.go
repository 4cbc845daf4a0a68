package models

// User is a durable account resolved from a client token.
type User struct {
	ID     string `json:"id"`
	Name   string `json:"name,omitempty"`
	RoomID string `json:"room_id,omitempty"`
}
