// Package generator serializes structural models back to markup text.
//
// Output is normalized rather than byte-identical to the parsed source, but
// parsing generated text yields a model with the same kinds, attributes,
// content and nesting.
package generator

import (
	"html"
	"strings"

	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/parser"
)

// Options configure a Generator.
type Options struct {
	// Indent is repeated once per nesting level.
	Indent string
	// WrapComponent wraps jsx output in an importable component module.
	WrapComponent bool
	// ComponentName names the wrapping component.
	ComponentName string
}

// DefaultOptions returns two-space indentation without a wrapper.
func DefaultOptions() Options {
	return Options{
		Indent:        "  ",
		ComponentName: "App",
	}
}

// Generator renders models. It is safe for concurrent use.
type Generator struct {
	opts Options
}

// New creates a generator, filling an empty component name.
func New(opts Options) *Generator {
	if opts.ComponentName == "" {
		opts.ComponentName = "App"
	}

	return &Generator{opts: opts}
}

// Generate renders m with the default options.
func Generate(m *model.Model) string {
	return New(DefaultOptions()).Generate(m)
}

// Generate renders m. An empty model renders as "" unless wrapped.
func (g *Generator) Generate(m *model.Model) string {
	if g.opts.WrapComponent && m.Dialect == model.DialectJSX {
		return g.wrap(m)
	}

	var b strings.Builder
	for _, root := range m.Roots() {
		g.element(&b, m, root, 0)
	}

	return b.String()
}

func (g *Generator) wrap(m *model.Model) string {
	var b strings.Builder
	b.WriteString("import React from 'react';\n\n")

	roots := m.Roots()
	switch len(roots) {
	case 0:
		b.WriteString("const " + g.opts.ComponentName + " = () => null;\n")
	case 1:
		b.WriteString("const " + g.opts.ComponentName + " = () => (\n")
		g.element(&b, m, roots[0], 1)
		b.WriteString(");\n")
	default:
		b.WriteString("const " + g.opts.ComponentName + " = () => (\n")
		b.WriteString(g.opts.Indent + "<>\n")
		for _, root := range roots {
			g.element(&b, m, root, 2)
		}
		b.WriteString(g.opts.Indent + "</>\n")
		b.WriteString(");\n")
	}

	b.WriteString("\nexport default " + g.opts.ComponentName + ";\n")

	return b.String()
}

func (g *Generator) element(b *strings.Builder, m *model.Model, e *model.Element, depth int) {
	indent := strings.Repeat(g.opts.Indent, depth)
	children := m.Children(e)

	b.WriteString(indent)
	if g.openTag(b, m, e, children) {
		b.WriteByte('\n')
		return
	}

	// Mixed text and children stay on one line, since a line break between
	// them would drop the space JSX keeps there.
	if e.Layout != nil || len(children) == 0 {
		g.inner(b, m, e, children)
		b.WriteString("</" + e.Kind + ">\n")
		return
	}

	b.WriteByte('\n')
	if content := g.content(m.Dialect, e); content != "" {
		b.WriteString(indent + g.opts.Indent + content + "\n")
	}
	for _, child := range children {
		g.element(b, m, child, depth+1)
	}
	b.WriteString(indent + "</" + e.Kind + ">\n")
}

// openTag writes the start tag. An element with nothing inside is closed
// at once, and openTag reports true.
func (g *Generator) openTag(b *strings.Builder, m *model.Model, e *model.Element, children []*model.Element) bool {
	b.WriteString("<" + e.Kind)
	for _, attr := range e.Attributes {
		b.WriteByte(' ')
		b.WriteString(g.attribute(m.Dialect, attr))
	}

	if e.Content == "" && len(children) == 0 && !hasText(e.Layout) {
		switch {
		case m.Dialect != model.DialectHTML:
			b.WriteString(" />")
		case parser.IsVoidElement(e.Kind):
			b.WriteString(">")
		default:
			b.WriteString("></" + e.Kind + ">")
		}
		return true
	}
	b.WriteByte('>')

	return false
}

// inline writes e and its subtree without line breaks.
func (g *Generator) inline(b *strings.Builder, m *model.Model, e *model.Element) {
	children := m.Children(e)
	if g.openTag(b, m, e, children) {
		return
	}
	g.inner(b, m, e, children)
	b.WriteString("</" + e.Kind + ">")
}

// inner writes the content and children of e in layout order.
func (g *Generator) inner(b *strings.Builder, m *model.Model, e *model.Element, children []*model.Element) {
	if e.Layout == nil {
		b.WriteString(g.content(m.Dialect, e))
		for _, child := range children {
			g.inline(b, m, child)
		}
		return
	}

	next := 0
	for _, seg := range e.Layout {
		switch {
		case !seg.Child:
			b.WriteString(g.text(m.Dialect, seg.Text))
		case next < len(children):
			g.inline(b, m, children[next])
			next++
		}
	}
	for ; next < len(children); next++ {
		g.inline(b, m, children[next])
	}
}

func hasText(layout []model.Segment) bool {
	for _, seg := range layout {
		if !seg.Child && seg.Text != "" {
			return true
		}
	}

	return false
}

func (g *Generator) content(dialect model.Dialect, e *model.Element) string {
	if e.Verbatim {
		return e.Content
	}

	return g.text(dialect, e.Content)
}

func (g *Generator) attribute(dialect model.Dialect, attr model.Attribute) string {
	if dialect == model.DialectHTML {
		if attr.Value == "" {
			return attr.Name
		}
		return attr.Name + `="` + html.EscapeString(attr.Value) + `"`
	}

	switch {
	case attr.Expr && attr.Name == "":
		return "{" + attr.Value + "}"
	case attr.Expr:
		return attr.Name + "={" + attr.Value + "}"
	default:
		return attr.Name + `="` + attrEscaper.Replace(attr.Value) + `"`
	}
}

var (
	attrEscaper = strings.NewReplacer(`&`, "&amp;", `"`, "&quot;")
	textEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", "\u00a0", "&nbsp;")
	jsxEscaper  = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", "\u00a0", "&nbsp;", `}`, `{"}"}`)
)

// text escapes content. In jsx, balanced {expression} groups are emitted
// verbatim and a brace outside of one is written as a string expression.
func (g *Generator) text(dialect model.Dialect, content string) string {
	if dialect == model.DialectHTML {
		return textEscaper.Replace(content)
	}
	if !strings.ContainsAny(content, "{}") {
		return textEscaper.Replace(content)
	}

	var b strings.Builder
	for i := 0; i < len(content); {
		if content[i] != '{' {
			next := strings.IndexByte(content[i:], '{')
			if next < 0 {
				next = len(content) - i
			}
			b.WriteString(jsxEscaper.Replace(content[i : i+next]))
			i += next
			continue
		}

		end := braceEnd(content, i)
		if end < 0 {
			b.WriteString(`{"{"}`)
			i++
			continue
		}
		b.WriteString(content[i : end+1])
		i = end + 1
	}

	return b.String()
}

// braceEnd returns the index of the '}' closing the group opened at i, or
// -1 when the group is unbalanced.
func braceEnd(s string, i int) int {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return j
			}
		case '"', '\'', '`':
			quote := s[j]
			for j++; j < len(s) && s[j] != quote; j++ {
				if s[j] == '\\' {
					j++
				}
			}
		}
	}

	return -1
}
