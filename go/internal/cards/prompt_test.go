package cards

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePromptBlankCount(t *testing.T) {
	tests := []struct {
		name  string
		card  string
		want  int
		skipQ bool
	}{
		{name: "no blanks takes one filler", card: "What ended my last relationship?", want: 1, skipQ: true},
		{name: "single blank", card: "I drink to forget _.", want: 1},
		{name: "two blanks", card: "_ + _ = trouble.", want: 2},
		{name: "three blanks", card: "Step 1: _. Step 2: _. Step 3: _.", want: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ParsePrompt(tt.card)
			assert.Equal(t, tt.want, p.BlankCount)
			assert.Equal(t, tt.skipQ, p.SkipQuestion)
			assert.Equal(t, tt.card, p.Card)
		})
	}
}

func TestParsePromptHints(t *testing.T) {
	p := ParsePrompt("I blame the _. And being _")
	require.Len(t, p.Tokens, 5)

	first := p.Tokens[1].Blank
	require.NotNil(t, first)
	assert.True(t, first.OmitArticle)
	assert.True(t, first.OmitPeriod)

	second := p.Tokens[3].Blank
	require.NotNil(t, second)
	assert.True(t, second.OmitBeing)
	assert.False(t, second.OmitPeriod)
}

func TestParsePromptElidesLongLeadIn(t *testing.T) {
	card := strings.Repeat("x", 70) + " _."
	p := ParsePrompt(card)
	assert.Equal(t, "[...] ", p.Tokens[0].Text)
}

func TestRender(t *testing.T) {
	p := ParsePrompt("I blame the _.")
	got := Render(p, []string{"The government."})

	require.Len(t, got, 3)
	assert.Equal(t, "I blame the ", got[0].Text)
	assert.Equal(t, "government", got[1].White)
	assert.Equal(t, ".", got[2].Text)
}

func TestRenderQuestionCard(t *testing.T) {
	p := ParsePrompt("Why can't I sleep at night?")
	got := Render(p, []string{"Being on fire."})

	require.Len(t, got, 1)
	assert.Equal(t, "Being on fire.", got[0].White)
}

func TestPlain(t *testing.T) {
	p := ParsePrompt("I never leave home without _.")
	assert.Equal(t, "I never leave home without My keys.", Plain(Render(p, []string{"My keys."})))

	q := ParsePrompt("What's that smell?")
	assert.Equal(t, "A dead mouse.", Plain(Render(q, []string{"A dead mouse."})))
}
