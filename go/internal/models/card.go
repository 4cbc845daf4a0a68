package models

// Deck identifies one of the two card categories a room draws from.
type Deck string

const (
	// DeckWhite holds the filler cards players submit.
	DeckWhite Deck = "white"
	// DeckBlack holds the prompt cards the room draws each round.
	DeckBlack Deck = "black"
)

// Card is an opaque card identifier. Its text doubles as its identity.
type Card struct {
	ID string `json:"id"`
}

// CardsFromNames wraps card names for the wire.
func CardsFromNames(names []string) []Card {
	cards := make([]Card, len(names))
	for i, name := range names {
		cards[i] = Card{ID: name}
	}
	return cards
}
