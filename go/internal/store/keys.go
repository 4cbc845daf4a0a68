package store

import (
	"fmt"

	"github.com/mcdev12/cardroom/go/internal/models"
)

const keyPrefix = "cam"

const (
	userIDsKey        = keyPrefix + ":userIds"
	userCounterKey    = keyPrefix + ":userCtr"
	userNamesKey      = keyPrefix + ":userNames"
	suggestionsKey    = keyPrefix + ":suggestions"
	suggestionListKey = keyPrefix + ":suggestionList"
	roomsKey          = keyPrefix + ":rooms"
)

// DeckKey is the master copy of a deck that new rooms are seeded from.
func DeckKey(deck models.Deck) string {
	if deck == models.DeckBlack {
		return keyPrefix + ":blacks"
	}
	return keyPrefix + ":whites"
}

// RoomKey is the hash holding a room's persisted state.
func RoomKey(room string) string {
	return fmt.Sprintf("%s:game:%s", keyPrefix, room)
}

// PoolKey is the draw pool for a deck.
func PoolKey(room string, deck models.Deck) string {
	if deck == models.DeckBlack {
		return RoomKey(room) + ":blacks"
	}
	return RoomKey(room) + ":whites"
}

// DiscardKey is the discard pool for a deck.
func DiscardKey(room string, deck models.Deck) string {
	if deck == models.DeckBlack {
		return RoomKey(room) + ":blackDiscards"
	}
	return RoomKey(room) + ":whiteDiscards"
}

// HandKey is the set of cards a player holds in a room.
func HandKey(room, player string) string {
	return fmt.Sprintf("%s:hand:%s", RoomKey(room), player)
}

func handPattern(room string) string {
	return RoomKey(room) + ":hand:*"
}

// ScoresKey is the hash of player id to points for the current game.
func ScoresKey(room string) string {
	return RoomKey(room) + ":scores"
}

// ChatKey is the bounded chat log list.
func ChatKey(room string) string {
	return RoomKey(room) + ":chat"
}

// UserKey is the hash holding an account's name and room membership.
func UserKey(id string) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}
