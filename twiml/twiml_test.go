package twiml

import (
	"encoding/xml"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type response struct {
	XMLName  xml.Name `xml:"Response"`
	Messages []string `xml:"Message"`
}

func decode(t *testing.T, payload []byte) response {
	t.Helper()
	var r response
	require.NoError(t, xml.Unmarshal(payload, &r), "payload is not well-formed: %s", payload)
	return r
}

func TestAssemble_EmptyInput(t *testing.T) {
	want := `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`
	for _, in := range []string{"", "   ", "\n\n\t"} {
		assert.Equal(t, want, string(Assemble(in, 950)))
	}
	assert.Equal(t, want, string(Empty()))
	assert.Empty(t, decode(t, Empty()).Messages)
}

func TestAssemble_SingleSegment(t *testing.T) {
	got := string(Assemble(`Tom & Jerry say "hi" <3 it's`, 950))
	assert.Equal(t, `<?xml version="1.0" encoding="UTF-8"?><Response><Message>Tom &amp; Jerry say &quot;hi&quot; &lt;3 it&apos;s</Message></Response>`, got)
}

func TestAssemble_MultipleSegmentsRoundTrip(t *testing.T) {
	para := strings.TrimSpace(strings.Repeat("Venus & Mars <3 you. ", 30))
	text := para + "\n\n" + para + "\n\n" + para

	payload := Assemble(text, 950)
	r := decode(t, payload)
	require.Greater(t, len(r.Messages), 1)
	for _, m := range r.Messages {
		assert.LessOrEqual(t, len(m), 950)
		assert.LessOrEqual(t, len(Escape(m)), 1600)
	}
	assert.Equal(t, para, r.Messages[0])
	assert.Equal(t,
		strings.Join(strings.Fields(text), " "),
		strings.Join(strings.Fields(strings.Join(r.Messages, " ")), " "),
		"segments reassemble to the original text")
}

func TestAssemble_DefaultBudget(t *testing.T) {
	r := decode(t, Assemble(strings.Repeat("x", 2000), 0))
	require.Len(t, r.Messages, 3)
	assert.Len(t, r.Messages[0], DefaultSegmentBytes)
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a &amp; &lt;b&gt; &quot;c&quot; &apos;d&apos;`, Escape(`a & <b> "c" 'd'`))
	assert.Equal(t, "&amp;amp;", Escape("&amp;"), "existing entities are escaped, not passed through")
	assert.Equal(t, "plain", Escape("plain"))
}

func TestPlainText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "just text", "just text"},
		{"emphasis", "**Bold** and *italic* and ~~gone~~", "Bold and italic and gone"},
		{"heading", "# Your week\n\nExpect surprises.", "Your week\n\nExpect surprises."},
		{"bullets", "- one\n- two", "- one\n- two"},
		{"ordered", "3. a\n4. b", "3. a\n4. b"},
		{"link", "See [the forecast](https://example.com/f).", "See the forecast (https://example.com/f)."},
		{"autolink", "<https://example.com>", "https://example.com"},
		{"code", "Run `chart` now", "Run chart now"},
		{"soft break", "line one\nline two", "line one\nline two"},
		{"paragraphs", "one\n\n\n\ntwo", "one\n\ntwo"},
		{"inline html kept", "Reply with <your birth city> and I'll do the rest.", "Reply with <your birth city> and I'll do the rest."},
		{"html block kept", "<div>\nhi\n</div>", "<div>\nhi\n</div>"},
		{"backslash escapes", `Tip: write \*exactly\* what you feel.`, "Tip: write *exactly* what you feel."},
		{"entities", "Fish &amp; chips &#9790;", "Fish & chips \u263e"},
		{"code span raw", "Type `a\\*b`", `Type a\*b`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PlainText(tt.in))
		})
	}
}

func TestAssemblePlainTextKeepsAngleBrackets(t *testing.T) {
	out := string(Assemble(PlainText("Send me <your birth city> please"), DefaultSegmentBytes))
	assert.Contains(t, out, "<Message>Send me &lt;your birth city&gt; please</Message>")
}
