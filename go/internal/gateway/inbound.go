package gateway

import (
	"encoding/json"
)

// Inbound is one decoded client message. The set of kinds is closed.
type Inbound interface {
	kind() string
}

type Login struct {
	ID string `json:"id"`
}

type SetName struct {
	Name string `json:"name"`
}

type Join struct {
	Game string `json:"game"`
}

type Leave struct{}

// Watch spectates a room without taking a seat.
type Watch struct {
	Game string `json:"game"`
}

// Submit carries a nomination. An empty Cards clears the selection, and so
// does a "cards" value that is not an array. Malformed is set when the array
// held anything but strings.
type Submit struct {
	Cards     []string
	Malformed bool
}

type Elect struct {
	Cards     []string
	Malformed bool
}

func (m *Submit) UnmarshalJSON(raw []byte) (err error) {
	m.Cards, m.Malformed, err = decodeCards(raw)
	return err
}

func (m *Elect) UnmarshalJSON(raw []byte) (err error) {
	m.Cards, m.Malformed, err = decodeCards(raw)
	return err
}

type Chat struct {
	Text string `json:"text"`
}

// Suggest proposes a new card for the decks.
type Suggest struct {
	Text string `json:"text"`
}

func (Login) kind() string   { return "login" }
func (SetName) kind() string { return "setName" }
func (Join) kind() string    { return "join" }
func (Leave) kind() string   { return "leave" }
func (Watch) kind() string   { return "watch" }
func (Submit) kind() string  { return "submit" }
func (Elect) kind() string   { return "elect" }
func (Chat) kind() string    { return "chat" }
func (Suggest) kind() string { return "suggest" }

type envelope struct {
	Action string `json:"a"`
}

// Decode parses one client frame: a JSON object whose "a" names the kind.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, protocolError("Bad JSON.", err)
	}
	if env.Action == "" {
		return nil, protocolError("No type.", nil)
	}

	switch env.Action {
	case "login":
		return decodeAs[Login](raw)
	case "setName":
		return decodeAs[SetName](raw)
	case "join":
		return decodeAs[Join](raw)
	case "leave":
		return Leave{}, nil
	case "watch":
		return decodeAs[Watch](raw)
	case "submit", "select":
		return decodeAs[Submit](raw)
	case "elect":
		return decodeAs[Elect](raw)
	case "chat":
		return decodeAs[Chat](raw)
	case "suggest":
		return decodeAs[Suggest](raw)
	}
	return nil, protocolError("No handler.", nil)
}

// decodeCards reads the "cards" field leniently. Only a body that is not an
// object fails.
func decodeCards(raw []byte) ([]string, bool, error) {
	var body struct {
		Cards json.RawMessage `json:"cards"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, false, err
	}
	var items []json.RawMessage
	if err := json.Unmarshal(body.Cards, &items); err != nil || items == nil {
		return nil, false, nil
	}

	cards := make([]string, 0, len(items))
	for _, item := range items {
		var card string
		if err := json.Unmarshal(item, &card); err != nil {
			return nil, true, nil
		}
		cards = append(cards, card)
	}
	return cards, false, nil
}

func decodeAs[T Inbound](raw []byte) (Inbound, error) {
	var m T
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, protocolError("Bad JSON.", err)
	}
	return m, nil
}
