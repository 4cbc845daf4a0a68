package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_MarshalFlattensAction(t *testing.T) {
	raw, err := json.Marshal(msg("countdown", Fields{"remaining": 12}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":"countdown","remaining":12}`, string(raw))

	raw, err = json.Marshal([]Message{msg("set", nil), msg("hand", Fields{"hand": []string{}})})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"a":"set"},{"a":"hand","hand":[]}]`, string(raw))
}

func TestOutbox_OneFramePerConnection(t *testing.T) {
	out := NewOutbox()
	a, b := newFakeConn("a"), newFakeConn("b")

	out.Send(a, msg("set", Fields{"status": "1"}))
	out.Send(b, msg("black", Fields{"black": "_."}))
	out.Send(a, msg("select", Fields{"cards": []string{"x"}}))
	out.Send(nil, msg("set", nil))
	out.Flush()

	require.Len(t, a.frames, 1)
	assert.Equal(t, []string{"set", "select"}, actions(a.frames[0]))
	require.Len(t, b.frames, 1)
	assert.Equal(t, []string{"black"}, actions(b.frames[0]))

	out.Flush()
	assert.Len(t, a.frames, 1, "an empty flush sends nothing")
}

func TestOutbox_DropClosesAfterSend(t *testing.T) {
	out := NewOutbox()
	c := newFakeConn("c")

	out.Warn(c, "careful")
	out.Drop(c, "Bad JSON.")
	out.Drop(c, "twice")
	assert.False(t, c.closed)
	out.Flush()

	assert.True(t, c.closed)
	require.Len(t, c.frames, 1)
	msgs := c.frames[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, Fields{"status": "careful"}, msgs[0].Body)
	assert.Equal(t, Fields{"status": "Bad JSON.", "error": true}, msgs[1].Body)
}

func TestOutbox_DeferRunsAfterFlush(t *testing.T) {
	out := NewOutbox()
	c := newFakeConn("c")
	body := Fields{}
	out.Send(c, msg("set", body))
	out.Defer(func() { body["late"] = true })

	out.Flush()
	require.Len(t, c.frames, 1)
	assert.Equal(t, true, body["late"])
}

func actions(batch []Message) []string {
	out := make([]string, len(batch))
	for i, m := range batch {
		out[i] = m.Action
	}
	return out
}
