package game

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cardroom/go/internal/cards"
	"github.com/mcdev12/cardroom/go/internal/events"
	"github.com/mcdev12/cardroom/go/internal/models"
	"github.com/mcdev12/cardroom/go/internal/store"
)

// fakeConn records every frame the outbox delivers.
type fakeConn struct {
	id     string
	name   string
	frames [][]Message
	closed bool
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id, name: id}
}

func (c *fakeConn) ID() string   { return c.id }
func (c *fakeConn) Name() string { return c.name }

func (c *fakeConn) Send(batch []Message) {
	c.frames = append(c.frames, batch)
}

func (c *fakeConn) Close() { c.closed = true }

func (c *fakeConn) all() []Message {
	var out []Message
	for _, f := range c.frames {
		out = append(out, f...)
	}
	return out
}

func (c *fakeConn) messages(action string) []Message {
	var out []Message
	for _, m := range c.all() {
		if m.Action == action {
			out = append(out, m)
		}
	}
	return out
}

// lastWith is the latest message of action carrying key.
func (c *fakeConn) lastWith(action, key string) (any, bool) {
	msgs := c.messages(action)
	for i := len(msgs) - 1; i >= 0; i-- {
		if v, ok := msgs[i].Body[key]; ok {
			return v, true
		}
	}
	return nil, false
}

func (c *fakeConn) statuses() []string {
	var out []string
	for _, m := range c.messages("set") {
		if s, ok := m.Body["status"].(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeConn) reset() { c.frames = nil }

type recordingNotifier struct {
	events []events.Event
}

func (n *recordingNotifier) Notify(evt events.Event) {
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) ofType(t string) []events.Event {
	var out []events.Event
	for _, e := range n.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type mockArchive struct {
	mock.Mock
}

func (m *mockArchive) RecordRound(ctx context.Context, result models.RoundResult) error {
	args := m.Called(ctx, result)
	return args.Error(0)
}

// countingBackend counts the calls that draw or write.
type countingBackend struct {
	*store.MemoryBackend
	pops  atomic.Int64
	execs atomic.Int64
	adds  atomic.Int64
}

func (b *countingBackend) SPopN(ctx context.Context, key string, n int64) ([]string, error) {
	b.pops.Add(1)
	return b.MemoryBackend.SPopN(ctx, key, n)
}

func (b *countingBackend) SAdd(ctx context.Context, key string, members ...string) (int64, error) {
	b.adds.Add(1)
	return b.MemoryBackend.SAdd(ctx, key, members...)
}

func (b *countingBackend) Exec(ctx context.Context, batch *store.Batch) error {
	b.execs.Add(1)
	return b.MemoryBackend.Exec(ctx, batch)
}

func (b *countingBackend) writes() int64 {
	return b.pops.Load() + b.execs.Load() + b.adds.Load()
}

type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	loop     *Loop
	memory   *store.MemoryBackend
	backend  *countingBackend
	reg      *Registry
	notifier *recordingNotifier
	archive  *mockArchive
	cfg      Config
}

type harnessOpt func(*Config, *cards.Decks)

func withQuorum(n int) harnessOpt {
	return func(c *Config, _ *cards.Decks) { c.Quorum = n }
}

func withConfig(fn func(*Config)) harnessOpt {
	return func(c *Config, _ *cards.Decks) { fn(c) }
}

func withBlacks(blacks ...string) harnessOpt {
	return func(_ *Config, d *cards.Decks) { d.Blacks = blacks }
}

func withWhites(n int) harnessOpt {
	return func(_ *Config, d *cards.Decks) { d.Whites = whiteCards(n) }
}

func whiteCards(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("White card %03d.", i)
	}
	return out
}

func newHarness(t *testing.T, opts ...harnessOpt) *harness {
	t.Helper()

	cfg := DefaultConfig()
	decks := cards.Decks{
		Whites: whiteCards(200),
		Blacks: []string{
			"What keeps me up at night? _.",
			"My new diet consists of _.",
			"The secret ingredient is _.",
			"I blame _.",
			"Nothing beats _.",
		},
	}
	for _, opt := range opts {
		opt(&cfg, &decks)
	}
	require.NoError(t, cfg.Validate())

	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	memory := store.NewMemoryBackend(rand.New(rand.NewSource(7)))
	require.NoError(t, store.Seed(context.Background(), memory, decks))
	backend := &countingBackend{MemoryBackend: memory}

	archive := &mockArchive{}
	archive.On("RecordRound", mock.Anything, mock.Anything).Return(nil).Maybe()
	notifier := &recordingNotifier{}

	loop := NewLoop(clock, 1024)
	reg := NewRegistry(cfg, loop, Deps{
		Backend:  backend,
		Notifier: notifier,
		Archive:  archive,
		Rand:     rand.New(rand.NewSource(11)),
	})
	return &harness{
		t:        t,
		clock:    clock,
		loop:     loop,
		memory:   memory,
		backend:  backend,
		reg:      reg,
		notifier: notifier,
		archive:  archive,
		cfg:      cfg,
	}
}

// settle plays the loop's part until no task is queued and no store call is
// in flight.
func (h *harness) settle() {
	h.t.Helper()
	for {
		select {
		case fn := <-h.loop.tasks:
			h.loop.exec(fn)
			continue
		default:
		}
		if h.loop.inflight.Load() == 0 {
			return
		}
		select {
		case fn := <-h.loop.tasks:
			h.loop.exec(fn)
		case <-time.After(5 * time.Second):
			h.t.Fatal("store call never returned to the loop")
		}
	}
}

// run executes fn as one loop task and waits for everything it started.
func (h *harness) run(fn func()) {
	h.t.Helper()
	h.loop.exec(fn)
	h.settle()
}

// advance moves the fake clock and fires whatever timers came due.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	h.clock.Advance(d)
	h.loop.runDue()
	h.settle()
}

func (h *harness) room() *Room {
	return h.reg.Room(h.cfg.DefaultRoom)
}

// connect logs user id in on a fresh connection.
func (h *harness) connect(id string) (*Player, *fakeConn) {
	h.t.Helper()
	c := newFakeConn("conn-" + id)
	var p *Player
	h.run(func() {
		p = h.reg.Attach(c, models.User{ID: id, Name: "Player " + id})
	})
	return p, c
}

// join connects user id and seats them in the default room.
func (h *harness) join(id string) (*Player, *fakeConn) {
	h.t.Helper()
	p, c := h.connect(id)
	require.NotNil(h.t, p)
	h.run(func() {
		require.NoError(h.t, h.reg.Join(p, h.cfg.DefaultRoom))
	})
	require.Equal(h.t, h.room(), p.Room(), "player %s should be seated", id)
	return p, c
}

// joinAll seats n players named p1..pn.
func (h *harness) joinAll(n int) ([]*Player, []*fakeConn) {
	ps := make([]*Player, n)
	cs := make([]*fakeConn, n)
	for i := range ps {
		ps[i], cs[i] = h.join(fmt.Sprintf("p%d", i+1))
	}
	return ps, cs
}

func (h *harness) submit(p *Player, picks ...string) {
	h.t.Helper()
	h.run(func() {
		require.NoError(h.t, h.room().Submit(p, picks))
	})
}

// submitFromHand submits the first n cards p holds.
func (h *harness) submitFromHand(p *Player, n int) []string {
	h.t.Helper()
	require.GreaterOrEqual(h.t, len(p.Hand()), n)
	picks := append([]string(nil), p.Hand()[:n]...)
	h.submit(p, picks...)
	return picks
}

func (h *harness) storedHand(p *Player) []string {
	h.t.Helper()
	hand, err := h.memory.SMembers(context.Background(), store.HandKey(h.cfg.DefaultRoom, p.ID()))
	require.NoError(h.t, err)
	return hand
}

func (h *harness) members(key string) []string {
	h.t.Helper()
	got, err := h.memory.SMembers(context.Background(), key)
	require.NoError(h.t, err)
	return got
}

// nonDealers returns the seated players other than the dealer.
func nonDealers(r *Room) []*Player {
	var out []*Player
	for _, p := range r.Players() {
		if p != r.Dealer() {
			out = append(out, p)
		}
	}
	return out
}

func totalScore(r *Room) int {
	total := 0
	for _, p := range r.Players() {
		total += p.Score()
	}
	return total
}
