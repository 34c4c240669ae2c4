package twiml

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/util"
)

var blankRuns = regexp.MustCompile(`\n{3,}`)

// PlainText converts the Markdown models like to emit into text that reads
// well on a phone: emphasis markers and headings are dropped, list items
// become "- " or "N. " lines, and links become "text (url)". Inline HTML
// is kept as literal text; backslash escapes and entities are resolved.
func PlainText(md string) string {
	r := renderer.NewRenderer(
		renderer.WithNodeRenderers(
			util.Prioritized(&plainRenderer{}, 1),
		),
	)
	gm := goldmark.New(
		goldmark.WithExtensions(extension.Strikethrough),
		goldmark.WithRenderer(r),
	)

	var buf bytes.Buffer
	if err := gm.Convert([]byte(md), &buf); err != nil {
		return strings.TrimSpace(md)
	}
	out := strings.ReplaceAll(buf.String(), " \n", "\n")
	return strings.TrimSpace(blankRuns.ReplaceAllString(out, "\n\n"))
}

// plainRenderer implements goldmark's renderer.NodeRenderer, emitting text
// with no markup.
type plainRenderer struct {
	counters []int // ordered-list counters, innermost last; -1 for bullets
}

// RegisterFuncs registers render functions for each AST node kind.
func (r *plainRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	// Block nodes
	reg.Register(ast.KindDocument, r.renderNoop)
	reg.Register(ast.KindHeading, r.renderBlockEnd)
	reg.Register(ast.KindParagraph, r.renderParagraph)
	reg.Register(ast.KindBlockquote, r.renderNoop)
	reg.Register(ast.KindFencedCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindCodeBlock, r.renderCodeBlock)
	reg.Register(ast.KindList, r.renderList)
	reg.Register(ast.KindListItem, r.renderListItem)
	reg.Register(ast.KindTextBlock, r.renderTextBlock)
	reg.Register(ast.KindThematicBreak, r.renderThematicBreak)
	reg.Register(ast.KindHTMLBlock, r.renderHTMLBlock)

	// Inline nodes
	reg.Register(ast.KindText, r.renderText)
	reg.Register(ast.KindString, r.renderString)
	reg.Register(ast.KindCodeSpan, r.renderNoop)
	reg.Register(ast.KindEmphasis, r.renderNoop)
	reg.Register(ast.KindLink, r.renderLink)
	reg.Register(ast.KindAutoLink, r.renderAutoLink)
	reg.Register(ast.KindImage, r.renderImage)
	reg.Register(ast.KindRawHTML, r.renderRawHTML)

	// Extension: strikethrough
	reg.Register(extast.KindStrikethrough, r.renderNoop)
}

func (r *plainRenderer) renderNoop(util.BufWriter, []byte, ast.Node, bool) (ast.WalkStatus, error) {
	return ast.WalkContinue, nil
}

// renderHTMLBlock writes the block's source lines as text; Assemble
// escapes them later.
func (r *plainRenderer) renderHTMLBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.HTMLBlock)
	lines := n.Lines()
	for i := 0; i < lines.Len(); i++ {
		line := lines.At(i)
		_, _ = w.Write(line.Value(source))
	}
	if n.HasClosure() {
		_, _ = w.Write(n.ClosureLine.Value(source))
	}
	_, _ = w.WriteString("\n\n")
	return ast.WalkSkipChildren, nil
}

func (r *plainRenderer) renderBlockEnd(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderParagraph(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		return ast.WalkContinue, nil
	}
	if node.Parent() != nil && node.Parent().Kind() == ast.KindListItem {
		_, _ = w.WriteString("\n")
	} else {
		_, _ = w.WriteString("\n\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderCodeBlock(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			_, _ = w.Write(line.Value(source))
		}
		_, _ = w.WriteString("\n")
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderList(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	n := node.(*ast.List)
	if entering {
		start := -1
		if n.IsOrdered() {
			start = n.Start
		}
		r.counters = append(r.counters, start)
	} else {
		r.counters = r.counters[:len(r.counters)-1]
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderListItem(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	depth := len(r.counters)
	if depth > 1 {
		_, _ = w.WriteString(strings.Repeat("  ", depth-1))
	}
	if c := r.counters[depth-1]; c >= 0 {
		_, _ = fmt.Fprintf(w, "%d. ", c)
		r.counters[depth-1]++
	} else {
		_, _ = w.WriteString("- ")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderTextBlock(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderThematicBreak(w util.BufWriter, _ []byte, _ ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

// --- Inline renderers ---

func (r *plainRenderer) renderText(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*ast.Text)
	value := n.Segment.Value(source)
	if p := n.Parent(); p == nil || p.Kind() != ast.KindCodeSpan {
		value = util.UnescapePunctuations(value)
		value = util.ResolveNumericReferences(value)
		value = util.ResolveEntityNames(value)
	}
	_, _ = w.Write(value)
	if n.SoftLineBreak() || n.HardLineBreak() {
		_, _ = w.WriteString("\n")
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderString(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.Write(node.(*ast.String).Value)
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderRawHTML(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	segs := node.(*ast.RawHTML).Segments
	for i := 0; i < segs.Len(); i++ {
		seg := segs.At(i)
		_, _ = w.Write(seg.Value(source))
	}
	return ast.WalkSkipChildren, nil
}

func (r *plainRenderer) renderLink(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		if dest := node.(*ast.Link).Destination; len(dest) > 0 {
			_, _ = fmt.Fprintf(w, " (%s)", dest)
		}
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderAutoLink(w util.BufWriter, source []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if entering {
		_, _ = w.Write(node.(*ast.AutoLink).URL(source))
		return ast.WalkSkipChildren, nil
	}
	return ast.WalkContinue, nil
}

func (r *plainRenderer) renderImage(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		_, _ = fmt.Fprintf(w, " (%s)", node.(*ast.Image).Destination)
	}
	return ast.WalkContinue, nil
}
