package game

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

// ErrBadName is returned for names that are empty once cleaned.
var ErrBadName = errors.New("bad name")

var (
	nameJunk   = regexp.MustCompile(`[^\w .?/<>'\[\]{}|\\\-+=!@#$%^&*()]`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CleanName strips disallowed characters, collapses whitespace and caps the
// result at limit runes.
func CleanName(raw string, limit int) string {
	name := nameJunk.ReplaceAllString(raw, "")
	name = strings.TrimSpace(whitespace.ReplaceAllString(name, " "))
	if limit > 0 && utf8.RuneCountInString(name) > limit {
		name = strings.TrimSpace(string([]rune(name)[:limit]))
	}
	return name
}
