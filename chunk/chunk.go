// Package chunk splits long replies into carrier-sized segments at the
// most natural boundary available.
package chunk

import (
	"strings"
	"unicode/utf8"
)

// DefaultBudget leaves headroom under the carrier's 1024-byte per-message
// cap for entity escaping.
const DefaultBudget = 950

// Split cuts text into pieces of at most budget bytes each. Within every
// window it prefers, in order: a paragraph break at or past 40% of the
// budget, a line break at or past 40%, the end of a sentence at or past
// 30%, and finally a hard cut on a rune boundary. Whitespace around each
// cut is dropped; everything else is preserved in order.
//
// Text that already fits is returned unchanged as the only element. The
// result always has at least one element and no piece exceeds budget.
// Pieces are valid UTF-8 whenever budget >= utf8.UTFMax.
func Split(text string, budget int) []string {
	budget = max(budget, 1)
	if len(text) <= budget {
		return []string{text}
	}

	var out []string
	rest := text
	for len(rest) > budget {
		cut, skip := breakPoint(rest, budget)
		if piece := strings.TrimSpace(rest[:cut]); piece != "" {
			out = append(out, piece)
		}
		rest = strings.TrimSpace(rest[cut+skip:])
	}
	if rest != "" {
		out = append(out, rest)
	}
	if len(out) == 0 {
		// Only whitespace was longer than the budget.
		return []string{""}
	}
	return out
}

// breakPoint returns the end of the next piece and how many separator
// bytes after it to discard. cut is always > 0.
func breakPoint(s string, budget int) (cut, skip int) {
	window := s[:budget]
	paraMin := budget * 4 / 10
	sentMin := budget * 3 / 10

	if i := strings.LastIndex(window, "\n\n"); i >= paraMin && i > 0 {
		return i, 2
	}
	if i := strings.LastIndex(window, "\n"); i >= paraMin && i > 0 {
		return i, 1
	}
	if i := lastSentenceEnd(window); i >= sentMin && i > 0 {
		// Keep the punctuation, drop the space.
		return i + 1, 1
	}
	return hardCut(s, budget), 0
}

// lastSentenceEnd returns the index of the last '.', '!' or '?' in window
// that is followed by a space, or -1.
func lastSentenceEnd(window string) int {
	for i := len(window) - 2; i >= 0; i-- {
		switch window[i] {
		case '.', '!', '?':
			if window[i+1] == ' ' {
				return i
			}
		}
	}
	return -1
}

// hardCut backs budget up to the nearest rune start so no UTF-8 sequence
// is split. Only a budget below utf8.UTFMax can meet a rune wider than
// itself; that rune is cut at the byte budget.
func hardCut(s string, budget int) int {
	cut := budget
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut == 0 {
		return budget
	}
	return cut
}
