package chunk

import (
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sentences builds roughly n bytes of prose out of 25-byte sentences.
func sentences(n int) string {
	const s = "The stars align tonight. "
	return strings.TrimSpace(strings.Repeat(s, n/len(s)))
}

// assertLossless checks every piece fits and that the pieces appear in the
// input in order, with only whitespace between them.
func assertLossless(t *testing.T, text string, budget int, pieces []string) {
	t.Helper()
	require.NotEmpty(t, pieces)
	cursor := 0
	for i, p := range pieces {
		assert.LessOrEqual(t, len(p), budget, "piece %d exceeds budget", i)
		idx := strings.Index(text[cursor:], p)
		require.GreaterOrEqual(t, idx, 0, "piece %d %q not found in order", i, p)
		assert.Empty(t, strings.TrimSpace(text[cursor:cursor+idx]), "non-whitespace dropped before piece %d", i)
		cursor += idx + len(p)
	}
	assert.Empty(t, strings.TrimSpace(text[cursor:]), "non-whitespace dropped at the end")
}

func TestSplit_FitsReturnsInputUnchanged(t *testing.T) {
	for _, s := range []string{"", "hey", "  padded  ", strings.Repeat("x", 950)} {
		assert.Equal(t, []string{s}, Split(s, 950))
	}
}

func TestSplit_PrefersParagraphBreak(t *testing.T) {
	p1, p2, p3 := sentences(800), sentences(1100), sentences(1100)
	text := p1 + "\n\n" + p2 + "\n\n" + p3
	require.InDelta(t, 3000, len(text), 50)

	pieces := Split(text, DefaultBudget)
	assert.GreaterOrEqual(t, len(pieces), 3)
	assert.LessOrEqual(t, len(pieces), 4)
	assert.Equal(t, p1, pieces[0], "first cut should land on the paragraph break")
	assertLossless(t, text, DefaultBudget, pieces)
}

func TestSplit_LineBreakBeforeSentence(t *testing.T) {
	text := strings.Repeat("a", 50) + ". " + strings.Repeat("b", 20) + "\n" + strings.Repeat("c", 60)
	pieces := Split(text, 100)
	require.Len(t, pieces, 2)
	assert.Equal(t, strings.Repeat("a", 50)+". "+strings.Repeat("b", 20), pieces[0])
}

func TestSplit_ParagraphBelowThresholdIgnored(t *testing.T) {
	// The only paragraph break sits at 10% of the budget, so the sentence
	// end further in wins.
	text := "Hi.\n\n" + strings.Repeat("a", 60) + ". " + strings.Repeat("b", 60)
	pieces := Split(text, 100)
	require.Len(t, pieces, 2)
	assert.Equal(t, "Hi.\n\n"+strings.Repeat("a", 60)+".", pieces[0])
	assert.Equal(t, strings.Repeat("b", 60), pieces[1])
}

func TestSplit_HardCut(t *testing.T) {
	text := strings.Repeat("x", 25)
	assert.Equal(t, []string{"xxxxxxxxxx", "xxxxxxxxxx", "xxxxx"}, Split(text, 10))
}

func TestSplit_NeverBreaksRunes(t *testing.T) {
	text := strings.Repeat("é", 30) // 2 bytes each
	pieces := Split(text, 7)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 7)
		assert.Equal(t, 0, len(p)%2, "piece %q splits a rune", p)
	}
	assert.Equal(t, text, strings.Join(pieces, ""))
}

func TestSplit_WideRunes(t *testing.T) {
	text := "🌙🌙" // 4 bytes each
	for budget := 1; budget < utf8.UTFMax; budget++ {
		pieces := Split(text, budget)
		for _, p := range pieces {
			assert.LessOrEqual(t, len(p), budget, "budget %d", budget)
		}
		assert.Equal(t, text, strings.Join(pieces, ""), "budget %d", budget)
	}

	pieces := Split(text+" "+text, utf8.UTFMax)
	assert.Equal(t, []string{"🌙", "🌙", "🌙", "🌙"}, pieces)
	for _, p := range pieces {
		assert.True(t, utf8.ValidString(p))
	}
}

func TestSplit_BudgetOne(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, Split("a b c", 1))
	assert.Equal(t, []string{"a", "b"}, Split("ab", 0), "budget below one is clamped")
}

func TestSplit_WhitespaceOnly(t *testing.T) {
	assert.Equal(t, []string{""}, Split(strings.Repeat(" ", 20), 5))
}

func TestSplit_LosslessRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	alphabet := []string{"a", "b", "c", " ", ".", "!", "?", "\n", "\n\n", "word ", "é"}
	for range 300 {
		var b strings.Builder
		for range rng.Intn(400) {
			b.WriteString(alphabet[rng.Intn(len(alphabet))])
		}
		text := b.String()
		budget := 2 + rng.Intn(120)
		pieces := Split(text, budget)
		if len(text) <= budget {
			assert.Equal(t, []string{text}, pieces)
			continue
		}
		assertLossless(t, text, budget, pieces)
	}
}
