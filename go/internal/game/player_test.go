package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/cardroom/go/internal/models"
)

func TestPlayer_DealHandIsIdempotentWhenFull(t *testing.T) {
	h := newHarness(t)
	p, c := h.join("p1")
	require.Len(t, p.Hand(), h.cfg.HandSize)

	before := h.backend.writes()
	hands := len(c.messages("hand"))
	h.run(func() { p.DealHand(false) })

	assert.Equal(t, before, h.backend.writes(), "a full hand draws and writes nothing")
	assert.Len(t, p.Hand(), h.cfg.HandSize)
	assert.Len(t, c.messages("hand"), hands+1, "the hand is still echoed")
}

func TestPlayer_FreshDealReplacesHand(t *testing.T) {
	h := newHarness(t)
	p, _ := h.join("p1")
	old := append([]string(nil), p.Hand()...)

	h.run(func() { p.DealHand(true) })

	assert.Len(t, p.Hand(), h.cfg.HandSize)
	assert.ElementsMatch(t, p.Hand(), h.storedHand(p))
	for _, card := range h.storedHand(p) {
		assert.NotContains(t, old, card)
	}
}

func TestPlayer_OverlappingDealsQueue(t *testing.T) {
	h := newHarness(t)
	p, _ := h.join("p1")

	h.run(func() {
		p.DealHand(true)
		p.DealHand(false)
		p.DealHand(true)
	})

	assert.False(t, p.dealing)
	assert.Len(t, h.storedHand(p), h.cfg.HandSize, "queued deals never overfill")
	assert.ElementsMatch(t, p.Hand(), h.storedHand(p))
}

func TestPlayer_ShortDeckWarns(t *testing.T) {
	h := newHarness(t, withWhites(4))
	p, c := h.join("p1")

	assert.Len(t, p.Hand(), 4)
	assert.Contains(t, c.statuses(), "The deck ran out of cards!")
	assert.False(t, c.closed, "running out is not fatal")
}

func TestPlayer_ReconnectAdoptsAndResends(t *testing.T) {
	h := newHarness(t, withQuorum(3))
	ps, conns := h.joinAll(3)
	p := ps[1]

	h.run(func() { h.reg.Disconnect(conns[1], p) })
	assert.Nil(t, p.Conn())
	assert.True(t, p.abandonTimer.Active())
	assert.True(t, p.idleTimer.Active())

	again := newFakeConn("conn-p2-again")
	var adopted *Player
	h.run(func() { adopted = h.reg.Attach(again, models.User{ID: p.ID()}) })

	require.Same(t, p, adopted)
	assert.Same(t, again, p.Conn())
	assert.False(t, p.abandonTimer.Active())
	assert.False(t, p.idleTimer.Active())
	require.NotEmpty(t, again.messages("hand"), "the hand is pushed on adoption")
	assert.NotEmpty(t, again.messages("black"))
	assert.NotEmpty(t, again.messages("reset"))

	h.advance(h.cfg.IdleTimeout)
	assert.Same(t, h.room(), p.Room())
}

func TestPlayer_SecondConnectionSpectates(t *testing.T) {
	h := newHarness(t)
	p, _ := h.join("p1")

	dup := newFakeConn("dup")
	var got *Player
	h.run(func() { got = h.reg.Attach(dup, models.User{ID: p.ID()}) })

	assert.Nil(t, got)
	assert.Contains(t, dup.statuses(), "Already connected.")
	assert.Equal(t, 1, h.room().Spectators())
}

func TestPlayer_IdleInRoomIsRemoved(t *testing.T) {
	h := newHarness(t, withQuorum(3))
	ps, conns := h.joinAll(3)
	p := ps[2]

	h.run(func() { h.reg.Disconnect(conns[2], p) })
	h.advance(h.cfg.IdleTimeout)

	assert.Nil(t, p.Room())
	assert.Len(t, h.room().Players(), 2)
	assert.Equal(t, models.RoomStatusInactive, h.room().Status())
	_, ok := h.reg.LookupPlayer(p.ID())
	assert.False(t, ok, "an idle player is deregistered")
	assert.Empty(t, h.storedHand(p))
}

func TestPlayer_AbandonedOutsideRoomIsEvicted(t *testing.T) {
	h := newHarness(t)
	p, c := h.connect("p1")
	require.NotNil(t, p)

	h.run(func() { h.reg.Disconnect(c, p) })
	_, ok := h.reg.LookupPlayer(p.ID())
	require.True(t, ok)

	h.advance(h.cfg.AbandonTimeout)
	_, ok = h.reg.LookupPlayer(p.ID())
	assert.False(t, ok)
	assert.Zero(t, h.room().Spectators())
}

func TestPlayer_RosterEntry(t *testing.T) {
	h := newHarness(t)
	p, c := h.join("p1")

	entry := p.rosterEntry(true)
	assert.Equal(t, "p1", entry["id"])
	assert.Equal(t, "Player p1", entry["name"])
	assert.Equal(t, "player", entry["kind"])
	assert.Equal(t, false, entry["abandoned"])
	assert.Equal(t, true, entry["dealer"])

	h.run(func() { h.reg.Disconnect(c, p) })
	assert.Equal(t, true, p.rosterEntry(false)["abandoned"])
}
