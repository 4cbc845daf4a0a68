package game

// CheckSelection validates the shape of a proposed card selection: a
// non-empty list of distinct card names.
func CheckSelection(cards []string) error {
	if len(cards) == 0 {
		return invalid("No cards chosen!")
	}
	seen := make(map[string]struct{}, len(cards))
	for _, c := range cards {
		if c == "" {
			return invalid("Invalid choices!")
		}
		if _, dup := seen[c]; dup {
			return invalid("Duplicate choices!")
		}
		seen[c] = struct{}{}
	}
	return nil
}

// CheckSubmission validates a selection against the prompt's blank count and
// the cards the player actually holds.
func CheckSubmission(selection []string, blanks int, hand []string) error {
	if err := CheckSelection(selection); err != nil {
		return err
	}
	if len(selection) != blanks {
		return invalid("Wrong number of selections!")
	}
	held := make(map[string]struct{}, len(hand))
	for _, c := range hand {
		held[c] = struct{}{}
	}
	for _, c := range selection {
		if _, ok := held[c]; !ok {
			return invalid("You don't have that card!")
		}
	}
	return nil
}
