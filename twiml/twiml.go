// Package twiml packages a reply for the carrier gateway: one <Message>
// element per carrier-sized segment inside a single <Response>.
package twiml

import (
	"bytes"
	"strings"

	"github.com/nevindra/courier/chunk"
)

// DefaultSegmentBytes stays under the carrier's 1024-byte per-message cap
// with room for entity expansion.
const DefaultSegmentBytes = chunk.DefaultBudget

// ContentType is the media type of Assemble's output.
const ContentType = "text/xml; charset=utf-8"

const header = `<?xml version="1.0" encoding="UTF-8"?>`

// Assemble splits text into segments of at most maxSegmentBytes (before
// escaping) and wraps each in a <Message>. Empty or whitespace-only text
// yields an empty <Response></Response>.
func Assemble(text string, maxSegmentBytes int) []byte {
	if maxSegmentBytes <= 0 {
		maxSegmentBytes = DefaultSegmentBytes
	}
	var b bytes.Buffer
	b.WriteString(header)
	b.WriteString("<Response>")
	if strings.TrimSpace(text) != "" {
		for _, seg := range chunk.Split(text, maxSegmentBytes) {
			if strings.TrimSpace(seg) == "" {
				continue
			}
			b.WriteString("<Message>")
			b.WriteString(Escape(seg))
			b.WriteString("</Message>")
		}
	}
	b.WriteString("</Response>")
	return b.Bytes()
}

// Empty is the acknowledgement for status callbacks and for messages that
// were merged into another request's turn.
func Empty() []byte {
	return []byte(header + "<Response></Response>")
}

// Escape replaces the five XML special characters. '&' goes first so the
// entities introduced afterwards are not escaped twice.
func Escape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	s = strings.ReplaceAll(s, "'", "&apos;")
	return s
}
