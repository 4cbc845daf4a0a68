package cards

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrNoWhites = errors.New("empty white deck")
	ErrNoBlacks = errors.New("empty black deck")
)

var blackFile = regexp.MustCompile(`(?i)black`)

// Decks is the content of a deck directory.
type Decks struct {
	Whites []string
	Blacks []string
}

// LoadDir reads every file in dir. Files whose name mentions "black" hold
// prompts; everything else holds fillers. Either category being empty is
// an error.
func LoadDir(dir string) (Decks, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Decks{}, fmt.Errorf("read deck dir: %w", err)
	}

	var whites, blacks []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		lines, err := readLines(filepath.Join(dir, entry.Name()))
		if err != nil {
			return Decks{}, err
		}
		if blackFile.MatchString(entry.Name()) {
			blacks = append(blacks, lines...)
		} else {
			whites = append(whites, lines...)
		}
	}

	decks := Decks{Whites: unique(whites), Blacks: unique(blacks)}
	if len(decks.Whites) == 0 {
		return Decks{}, ErrNoWhites
	}
	if len(decks.Blacks) == 0 {
		return Decks{}, ErrNoBlacks
	}
	return decks, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open deck %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan deck %s: %w", path, err)
	}
	return lines, nil
}

func unique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
