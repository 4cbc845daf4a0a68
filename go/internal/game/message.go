package game

import (
	"encoding/json"
)

// Fields is the body of an outbound message.
type Fields map[string]any

// Message is one outbound instruction. It encodes as a flat JSON object with
// the action under "a".
type Message struct {
	Action string
	Body   Fields
}

func (m Message) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Body)+1)
	for k, v := range m.Body {
		out[k] = v
	}
	out["a"] = m.Action
	return json.Marshal(out)
}

func msg(action string, body Fields) Message {
	if body == nil {
		body = Fields{}
	}
	return Message{Action: action, Body: body}
}

// Conn is the outbound half of a client session.
type Conn interface {
	ID() string
	// Name is shown in rosters for spectators.
	Name() string
	// Send delivers one batch of messages as a single frame. It must not
	// block.
	Send(batch []Message)
	// Close ends the session after pending sends.
	Close()
}

type pending struct {
	conn  Conn
	msgs  []Message
	close bool
}

// Outbox collects the messages a task produces and delivers them per
// connection, one frame each, when the task ends.
type Outbox struct {
	order   []*pending
	byConn  map[Conn]*pending
	cleanup []func()
}

func NewOutbox() *Outbox {
	return &Outbox{byConn: make(map[Conn]*pending)}
}

func (o *Outbox) entry(c Conn) *pending {
	p, ok := o.byConn[c]
	if !ok {
		p = &pending{conn: c}
		o.byConn[c] = p
		o.order = append(o.order, p)
	}
	return p
}

// Send queues m for c. A nil conn is ignored.
func (o *Outbox) Send(c Conn, m Message) {
	if c == nil {
		return
	}
	p := o.entry(c)
	p.msgs = append(p.msgs, m)
}

// Drop queues a final error status for c and closes it after the flush.
func (o *Outbox) Drop(c Conn, reason string) {
	if c == nil {
		return
	}
	p := o.entry(c)
	if p.close {
		return
	}
	p.msgs = append(p.msgs, msg("set", Fields{"status": reason, "error": true}))
	p.close = true
}

// Warn sends a status line to c only.
func (o *Outbox) Warn(c Conn, text string) {
	o.Send(c, msg("set", Fields{"status": text}))
}

// Defer runs fn after the next flush. Rooms use it to reset coalesced state.
func (o *Outbox) Defer(fn func()) {
	o.cleanup = append(o.cleanup, fn)
}

// Flush delivers everything queued.
func (o *Outbox) Flush() {
	order := o.order
	o.order = nil
	o.byConn = make(map[Conn]*pending)
	cleanup := o.cleanup
	o.cleanup = nil

	for _, p := range order {
		if len(p.msgs) > 0 {
			p.conn.Send(p.msgs)
		}
		if p.close {
			p.conn.Close()
		}
	}
	for _, fn := range cleanup {
		fn()
	}
}
