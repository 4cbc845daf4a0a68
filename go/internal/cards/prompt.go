package cards

import (
	"regexp"
	"strings"
)

// longLeadIn is the length at which text before a blank is elided on render.
const longLeadIn = 60

var (
	articleBefore  = regexp.MustCompile(`(?i)\b(?:the|a|an|my|your|yo'|his|her|their)\s+$`)
	beingBefore    = regexp.MustCompile(`(?i)\bbeing\s+$`)
	leadingBeing   = regexp.MustCompile(`(?i)^being\s+(.+)$`)
	leadingArticle = regexp.MustCompile(`(?i)^(?:the|a|an|my|your)\s+(.+)$`)
	trailingPeriod = regexp.MustCompile(`[.]$`)
)

// Blank carries the rendering hints for one "_" in a prompt.
type Blank struct {
	OmitArticle bool `json:"omitArticle,omitempty"`
	OmitBeing   bool `json:"omitBeing,omitempty"`
	OmitPeriod  bool `json:"omitPeriod,omitempty"`
}

// Token is either literal prompt text, a blank, or a filled-in filler.
type Token struct {
	Text  string `json:"text,omitempty"`
	Blank *Blank `json:"blank,omitempty"`
	White string `json:"white,omitempty"`
}

// Prompt is a parsed black card.
type Prompt struct {
	Card         string  `json:"card"`
	Text         string  `json:"text"`
	BlankCount   int     `json:"blankCount"`
	Tokens       []Token `json:"tokens"`
	SkipQuestion bool    `json:"skipQuestion"`
}

// ParsePrompt splits a black card on its blanks. A card without blanks
// still takes one filler, rendered after the question.
func ParsePrompt(card string) Prompt {
	p := Prompt{
		Card: card,
		Text: strings.ReplaceAll(card, "_", "__________"),
	}

	parts := strings.Split(card, "_")
	tokens := make([]Token, 0, len(parts)*2-1)
	for i, part := range parts {
		if i > 0 {
			tokens = append(tokens, Token{Blank: &Blank{}})
		}
		tokens = append(tokens, Token{Text: part})
	}

	p.BlankCount = len(parts) - 1
	if p.BlankCount == 0 {
		p.BlankCount = 1
	}

	for i := 1; i < len(tokens); i += 2 {
		before, after := tokens[i-1].Text, tokens[i+1].Text
		blank := tokens[i].Blank
		blank.OmitArticle = articleBefore.MatchString(before)
		blank.OmitBeing = beingBefore.MatchString(before)
		blank.OmitPeriod = after != ""
		if len(before) >= longLeadIn {
			if i > 1 {
				tokens[i-1].Text = " [...] "
			} else {
				tokens[i-1].Text = "[...] "
			}
		}
	}

	p.Tokens = tokens
	p.SkipQuestion = len(tokens) == 1
	return p
}

// Render fills a prompt's blanks with the submitted fillers in order.
func Render(p Prompt, whites []string) []Token {
	var out []Token
	if !p.SkipQuestion && len(p.Tokens) > 0 {
		out = append(out, p.Tokens[0])
	}

	for i, white := range whites {
		var blank Blank
		if idx := i*2 + 1; idx < len(p.Tokens) && p.Tokens[idx].Blank != nil {
			blank = *p.Tokens[idx].Blank
		}
		if blank.OmitBeing {
			if m := leadingBeing.FindStringSubmatch(white); m != nil {
				white = m[1]
			}
		}
		if blank.OmitArticle {
			if m := leadingArticle.FindStringSubmatch(white); m != nil {
				white = m[1]
			}
		}
		if blank.OmitPeriod {
			white = trailingPeriod.ReplaceAllString(white, "")
		}
		out = append(out, Token{White: white})

		if next := i*2 + 2; next < len(p.Tokens) {
			out = append(out, p.Tokens[next])
		}
	}
	return out
}

// Plain flattens rendered tokens into a single line.
func Plain(tokens []Token) string {
	var sb strings.Builder
	for _, t := range tokens {
		if t.Blank != nil {
			sb.WriteString("____")
			continue
		}
		sb.WriteString(t.Text)
		sb.WriteString(t.White)
	}
	return strings.TrimSpace(sb.String())
}
