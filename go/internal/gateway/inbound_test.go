package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		want   Inbound
		reason string
	}{
		{name: "login", raw: `{"a":"login","id":"123"}`, want: Login{ID: "123"}},
		{name: "set name", raw: `{"a":"setName","name":"Ada"}`, want: SetName{Name: "Ada"}},
		{name: "join", raw: `{"a":"join","game":"7"}`, want: Join{Game: "7"}},
		{name: "leave ignores body", raw: `{"a":"leave","x":1}`, want: Leave{}},
		{name: "watch", raw: `{"a":"watch","game":"2"}`, want: Watch{Game: "2"}},
		{name: "submit", raw: `{"a":"submit","cards":["A.","B."]}`, want: Submit{Cards: []string{"A.", "B."}}},
		{name: "select is submit", raw: `{"a":"select","cards":[]}`, want: Submit{Cards: []string{}}},
		{name: "elect", raw: `{"a":"elect","cards":["A."]}`, want: Elect{Cards: []string{"A."}}},
		{name: "chat", raw: `{"a":"chat","text":"hi"}`, want: Chat{Text: "hi"}},
		{name: "suggest", raw: `{"a":"suggest","text":"A card."}`, want: Suggest{Text: "A card."}},
		{name: "not json", raw: `nope`, reason: "Bad JSON."},
		{name: "array", raw: `[1,2]`, reason: "Bad JSON."},
		{name: "no type", raw: `{"id":"1"}`, reason: "No type."},
		{name: "unknown type", raw: `{"a":"dance"}`, reason: "No handler."},
		{name: "cards not an array", raw: `{"a":"submit","cards":"A."}`, want: Submit{}},
		{name: "cards missing", raw: `{"a":"submit"}`, want: Submit{}},
		{name: "cards not strings", raw: `{"a":"submit","cards":["A.",7]}`, want: Submit{Malformed: true}},
		{name: "elect cards not strings", raw: `{"a":"elect","cards":[{}]}`, want: Elect{Malformed: true}},
		{name: "elect cards not an array", raw: `{"a":"elect","cards":3}`, want: Elect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.raw))
			if tt.reason != "" {
				var perr *ProtocolError
				require.ErrorAs(t, err, &perr)
				assert.Equal(t, tt.reason, perr.Reason)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
