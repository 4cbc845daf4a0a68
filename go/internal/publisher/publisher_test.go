package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cardroom/go/internal/events"
)

type fakeStream struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	fail error
	gate chan struct{}
}

func (f *fakeStream) PublishMsg(ctx context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return nil, f.fail
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "CARDROOM_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

func (f *fakeStream) published() []*nats.Msg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*nats.Msg(nil), f.msgs...)
}

func testEvent(room, kind string) events.Event {
	return events.New(kind, room, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), events.PlayerJoinedPayload{
		PlayerID: "7",
		Name:     "Ada",
		Players:  3,
	})
}

func TestSubject(t *testing.T) {
	tests := []struct {
		room string
		want string
	}{
		{room: "1", want: "cardroom.rooms.1.PlayerJoined"},
		{room: "a.b", want: "cardroom.rooms.a_b.PlayerJoined"},
		{room: "x >*", want: "cardroom.rooms.x___.PlayerJoined"},
		{room: "", want: "cardroom.rooms._.PlayerJoined"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Subject("cardroom.rooms", testEvent(tt.room, events.TypePlayerJoined)))
	}
}

func TestPublisher_PublishesInOrderAndFlushesOnClose(t *testing.T) {
	stream := &fakeStream{}
	p := newPublisher(stream, DefaultJetStreamConfig())

	first := testEvent("1", events.TypePlayerJoined)
	second := testEvent("1", events.TypeRoundStarted)
	p.Notify(first)
	p.Notify(second)
	require.NoError(t, p.Close())

	msgs := stream.published()
	require.Len(t, msgs, 2)
	assert.Equal(t, "cardroom.rooms.1.PlayerJoined", msgs[0].Subject)
	assert.Equal(t, "cardroom.rooms.1.RoundStarted", msgs[1].Subject)
	assert.Equal(t, first.ID.String(), msgs[0].Header.Get("Event-ID"))
	assert.Equal(t, "1", msgs[0].Header.Get("Room-ID"))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	assert.Equal(t, "PlayerJoined", decoded["event_type"])
	assert.Equal(t, "Ada", decoded["payload"].(map[string]any)["name"])

	p.Notify(testEvent("1", events.TypeRoundReset))
	assert.Len(t, stream.published(), 2, "events after close are ignored")
}

func TestPublisher_NotifyNeverBlocks(t *testing.T) {
	stream := &fakeStream{gate: make(chan struct{})}
	cfg := DefaultJetStreamConfig()
	cfg.QueueSize = 2
	p := newPublisher(stream, cfg)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			p.Notify(testEvent("1", events.TypePlayerLeft))
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Notify blocked on a stalled stream")
	}

	close(stream.gate)
	require.NoError(t, p.Close())
	got := len(stream.published())
	assert.GreaterOrEqual(t, got, 1)
	assert.LessOrEqual(t, got, 3, "one in flight plus a full queue")
}

func TestPublisher_FailuresAreLogged(t *testing.T) {
	stream := &fakeStream{fail: errors.New("no responders")}
	p := newPublisher(stream, DefaultJetStreamConfig())
	p.Notify(testEvent("1", events.TypeVictoryAwarded))
	require.NoError(t, p.Close())
	assert.Empty(t, stream.published())
}

func TestPublisher_PingWithoutConnection(t *testing.T) {
	p := newPublisher(&fakeStream{}, DefaultJetStreamConfig())
	defer p.Close()
	assert.Error(t, p.Ping(context.Background()))
}
