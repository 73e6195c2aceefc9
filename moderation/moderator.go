// Package moderation rewrites forbidden words out of message text before it
// is stored, and tags the text with its detected language.
package moderation

import (
	"fmt"
	"log/slog"
	"market-chat/contract"
	"unicode"

	"github.com/abadojack/whatlanggo"
	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator censors message text against a fixed word list. It is immutable
// once built and safe for concurrent use.
type Moderator struct {
	automaton *goahocorasick.Machine
	mask      rune
	log       *slog.Logger
}

var _ contract.IModerator = (*Moderator)(nil)

// folded is the searchable form of a text: lower-cased letters without noise,
// each one remembering the rune position it came from.
type folded struct {
	letters []rune
	origin  []int
}

// NewModerator builds the Aho-Corasick automaton over the folded words.
// Words made only of noise fold to nothing and are ignored.
func NewModerator(words []string, mask rune, log *slog.Logger) (*Moderator, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		if f := fold(word); len(f.letters) > 0 {
			patterns = append(patterns, f.letters)
		}
	}
	m := &Moderator{mask: mask, log: log}
	if len(patterns) == 0 {
		log.Warn("No usable censored word, moderation disabled")
		return m, nil
	}

	automaton := new(goahocorasick.Machine)
	if err := automaton.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build censor automaton: %w", err)
	}
	m.automaton = automaton
	return m, nil
}

// Moderate censors text and detects its language (ISO 639-1, empty when unsure).
func (m *Moderator) Moderate(text string) (string, string) {
	censored, hits := m.Censor(text)
	if len(hits) > 0 {
		m.log.Debug("Censored words replaced", "count", len(hits))
	}
	return censored, DetectLanguage(text)
}

func DetectLanguage(text string) string {
	info := whatlanggo.Detect(text)
	if !info.IsReliable() {
		return ""
	}
	return info.Lang.Iso6391()
}

// Censor masks every occurrence of a forbidden word, noise inside the
// occurrence included, and returns the folded words that matched in order.
func (m *Moderator) Censor(text string) (string, []string) {
	if m.automaton == nil {
		return text, nil
	}
	f := fold(text)
	if len(f.letters) == 0 {
		return text, nil
	}
	matches := m.automaton.MultiPatternSearch(f.letters, false)
	if len(matches) == 0 {
		return text, nil
	}

	runes := []rune(text)
	hits := make([]string, 0, len(matches))
	for _, match := range matches {
		first, last := match.Pos, match.Pos+len(match.Word)-1
		if first < 0 || last >= len(f.origin) {
			continue
		}
		for i := f.origin[first]; i <= f.origin[last]; i++ {
			runes[i] = m.mask
		}
		hits = append(hits, string(match.Word))
	}
	return string(runes), hits
}

func fold(text string) folded {
	runes := []rune(text)
	f := folded{letters: make([]rune, 0, len(runes)), origin: make([]int, 0, len(runes))}
	for i, r := range runes {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		f.letters = append(f.letters, unicode.ToLower(r))
		f.origin = append(f.origin, i)
	}
	return f
}

// unleet maps leet speak back to letters.
func unleet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	}
	return r
}
