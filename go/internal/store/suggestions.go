package store

import (
	"context"
	"fmt"
)

// Suggestions collects card ideas submitted by players.
type Suggestions struct {
	b Backend
}

func NewSuggestions(b Backend) *Suggestions {
	return &Suggestions{b: b}
}

// Add stores a suggestion. Duplicates are accepted silently and reported as
// false.
func (s *Suggestions) Add(ctx context.Context, text string) (bool, error) {
	added, err := s.b.SAdd(ctx, suggestionsKey, text)
	if err != nil {
		return false, fmt.Errorf("add suggestion: %w", err)
	}
	if added == 0 {
		return false, nil
	}
	if err := s.b.Exec(ctx, NewBatch().RPushTrim(suggestionListKey, text, 0)); err != nil {
		return false, fmt.Errorf("list suggestion: %w", err)
	}
	return true, nil
}

func (s *Suggestions) Count(ctx context.Context) (int64, error) {
	return s.b.LLen(ctx, suggestionListKey)
}

// List returns suggestions in the order they arrived.
func (s *Suggestions) List(ctx context.Context) ([]string, error) {
	return s.b.LRange(ctx, suggestionListKey, 0, -1)
}

// Vacuum deletes every suggestion.
func (s *Suggestions) Vacuum(ctx context.Context) error {
	if err := s.b.Exec(ctx, NewBatch().Del(suggestionsKey, suggestionListKey)); err != nil {
		return fmt.Errorf("vacuum suggestions: %w", err)
	}
	return nil
}
