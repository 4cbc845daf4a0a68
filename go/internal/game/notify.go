package game

import (
	"context"

	"github.com/mcdev12/cardroom/go/internal/events"
	"github.com/mcdev12/cardroom/go/internal/models"
)

// Notifier receives room events. Notify is called on the loop and must not
// block.
type Notifier interface {
	Notify(evt events.Event)
}

// Archive stores resolved rounds. It is called off the loop.
type Archive interface {
	RecordRound(ctx context.Context, result models.RoundResult) error
}

type nopNotifier struct{}

func (nopNotifier) Notify(events.Event) {}

type nopArchive struct{}

func (nopArchive) RecordRound(context.Context, models.RoundResult) error { return nil }
