// Package parser turns markup text into a structural model.
//
// The jsx dialect is a bounded recursive-descent scanner: it understands
// tags, quoted and brace-expression attribute values and nesting, and treats
// everything else (imports, component shells, expressions in content) as
// opaque text. The html dialect is backed by golang.org/x/net/html's
// tokenizer. Neither ever fails on malformed input; text without any
// elements yields an empty model.
package parser

import (
	"fmt"
	"strings"

	"github.com/conneroisu/livecanvas/internal/model"
)

// DefaultMaxDepth bounds element nesting. Deeper markup is kept as the
// content of the deepest element.
const DefaultMaxDepth = 64

// Options configure a Parser.
type Options struct {
	Dialect  model.Dialect
	MaxDepth int
}

// DefaultOptions returns the jsx dialect with the default depth bound.
func DefaultOptions() Options {
	return Options{
		Dialect:  model.DialectJSX,
		MaxDepth: DefaultMaxDepth,
	}
}

// Parser converts text into a model. It is stateless and safe for
// concurrent use.
type Parser struct {
	opts Options
}

// New creates a parser, filling zero options with defaults.
func New(opts Options) *Parser {
	if opts.Dialect == "" {
		opts.Dialect = model.DialectJSX
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	return &Parser{opts: opts}
}

// Dialect returns the dialect this parser reads.
func (p *Parser) Dialect() model.Dialect {
	return p.opts.Dialect
}

// Parse parses text with the default options.
func Parse(text string) (*model.Model, error) {
	return New(DefaultOptions()).Parse(text)
}

// Parse builds a model from text. Ids are assigned in document order.
func (p *Parser) Parse(text string) (*model.Model, error) {
	var (
		roots []*rawNode
		err   error
	)
	switch p.opts.Dialect {
	case model.DialectJSX:
		s := &scanner{src: text, maxDepth: p.opts.MaxDepth}
		roots = s.scanTop()
	case model.DialectHTML:
		roots, err = tokenizeHTML(text, p.opts.MaxDepth)
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported dialect %q", p.opts.Dialect)
	}

	return build(p.opts.Dialect, roots), nil
}

// rawNode is the parse tree before ids are assigned.
type rawNode struct {
	kind     string
	attrs    []model.Attribute
	segments []segment
	// raw holds the unparsed inner markup of a node past the depth bound.
	raw      string
	verbatim bool
	span     model.Span
}

// segment is either text or a child.
type segment struct {
	text  string
	child *rawNode
}

// addText adds one run of source text after applying the whitespace rules.
func (n *rawNode) addText(text string) {
	n.addRaw(cleanText(text))
}

// addRaw appends text unchanged, merging it into a preceding text segment.
func (n *rawNode) addRaw(text string) {
	if text == "" {
		return
	}
	if last := len(n.segments) - 1; last >= 0 && n.segments[last].child == nil {
		n.segments[last].text += text
		return
	}
	n.segments = append(n.segments, segment{text: text})
}

func (n *rawNode) addChild(child *rawNode) {
	n.segments = append(n.segments, segment{child: child})
}

func (n *rawNode) children() []*rawNode {
	var out []*rawNode
	for _, seg := range n.segments {
		if seg.child != nil {
			out = append(out, seg.child)
		}
	}

	return out
}

// content is the node's own text. Text on either side of a child reads as
// separate words.
func (n *rawNode) content() string {
	if n.verbatim {
		return n.raw
	}

	var b strings.Builder
	for _, seg := range n.segments {
		if seg.child != nil {
			b.WriteByte(' ')
			continue
		}
		b.WriteString(seg.text)
	}

	return strings.Trim(collapseSpace(b.String()), " ")
}

// layout returns the source order of text and children, or nil when the
// node does not mix them.
func (n *rawNode) layout() []model.Segment {
	var text, children bool
	for _, seg := range n.segments {
		if seg.child != nil {
			children = true
		} else {
			text = true
		}
	}
	if !text || !children {
		return nil
	}

	out := make([]model.Segment, len(n.segments))
	for i, seg := range n.segments {
		if seg.child != nil {
			out[i] = model.Segment{Child: true}
		} else {
			out[i] = model.Segment{Text: seg.text}
		}
	}

	return out
}

const asciiSpace = " \t\n\r\f"

// cleanText applies the JSX whitespace rules to one run of text: lines are
// trimmed where they meet a line break, blank lines vanish and the rest are
// joined by one space. Runs of ASCII whitespace collapse to one space.
// Other spaces, such as U+00A0 from &nbsp;, are content.
func cleanText(text string) string {
	lines := strings.Split(text, "\n")
	kept := make([]string, 0, len(lines))
	for i, line := range lines {
		if i > 0 {
			line = strings.TrimLeft(line, asciiSpace)
		}
		if i < len(lines)-1 {
			line = strings.TrimRight(line, asciiSpace)
		}
		if line != "" {
			kept = append(kept, line)
		}
	}

	return collapseSpace(strings.Join(kept, " "))
}

func collapseSpace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for i := 0; i < len(s); i++ {
		if isSpace(s[i]) {
			space = true
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteByte(s[i])
	}
	if space {
		b.WriteByte(' ')
	}

	return b.String()
}

func build(dialect model.Dialect, roots []*rawNode) *model.Model {
	m := model.New(dialect)

	var add func(parent *model.Element, nodes []*rawNode)
	add = func(parent *model.Element, nodes []*rawNode) {
		for _, n := range nodes {
			e := m.Append(parent, n.kind, n.attrs, n.content())
			span := n.span
			e.Span = &span
			e.Verbatim = n.verbatim
			add(e, n.children())
			// Set after attaching the children, which would otherwise add slots.
			e.Layout = n.layout()
		}
	}
	add(nil, roots)

	return m
}
