package game

import (
	"fmt"

	"github.com/mcdev12/cardroom/go/internal/models"
)

// roomEvent drives the room state machine.
type roomEvent int

const (
	evNewPlayer roomEvent = iota
	evNominate
	evNominationTimedOut
	evLostPlayer
	evNotEnoughPlayers
	evVictoryAwarded
	evNextNominations
	evFailed
)

func (e roomEvent) String() string {
	switch e {
	case evNewPlayer:
		return "newPlayer"
	case evNominate:
		return "nominate"
	case evNominationTimedOut:
		return "nominationTimedOut"
	case evLostPlayer:
		return "lostPlayer"
	case evNotEnoughPlayers:
		return "notEnoughPlayers"
	case evVictoryAwarded:
		return "victoryAwarded"
	case evNextNominations:
		return "nextNominations"
	case evFailed:
		return "failed"
	}
	return fmt.Sprintf("roomEvent(%d)", int(e))
}

var transitions = map[models.RoomStatus]map[roomEvent]models.RoomStatus{
	models.RoomStatusInactive: {
		evNewPlayer: models.RoomStatusNominating,
		evFailed:    models.RoomStatusInactive,
	},
	models.RoomStatusNominating: {
		evNominate:           models.RoomStatusElecting,
		evNominationTimedOut: models.RoomStatusElecting,
		evLostPlayer:         models.RoomStatusElecting,
		evNotEnoughPlayers:   models.RoomStatusInactive,
		evFailed:             models.RoomStatusInactive,
	},
	models.RoomStatusElecting: {
		evVictoryAwarded:   models.RoomStatusAwarding,
		evNotEnoughPlayers: models.RoomStatusInactive,
		evFailed:           models.RoomStatusInactive,
	},
	models.RoomStatusAwarding: {
		evNextNominations:  models.RoomStatusNominating,
		evNotEnoughPlayers: models.RoomStatusInactive,
		evFailed:           models.RoomStatusInactive,
	},
}

// nextStatus looks up the target of ev from status.
func nextStatus(status models.RoomStatus, ev roomEvent) (models.RoomStatus, error) {
	to, ok := transitions[status][ev]
	if !ok {
		return status, fmt.Errorf("%w: %s from %s", ErrIllegalMove, ev, status)
	}
	return to, nil
}
