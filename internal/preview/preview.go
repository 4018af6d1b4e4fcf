// Package preview renders a session's model as a live HTML page whose
// elements carry data-component-id attributes for patch targeting.
package preview

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/a-h/templ"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/parser"
)

//go:embed client.js
var clientJS string

// Options configure a Renderer.
type Options struct {
	// Sanitize passes the rendered body through an allow-list policy.
	Sanitize bool
	// StylesheetURL is linked from the page head when set.
	StylesheetURL string
}

// Renderer turns models into preview markup. It is safe for concurrent use.
type Renderer struct {
	opts   Options
	policy *bluemonday.Policy
}

// NewRenderer creates a renderer.
func NewRenderer(opts Options) *Renderer {
	return &Renderer{opts: opts, policy: newPolicy()}
}

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("div", "span", "section", "article", "aside", "header", "footer", "nav", "main",
		"button", "label", "form", "input", "textarea", "select", "option")
	p.AllowAttrs("class", "id", "title", "role").Globally()
	p.AllowAttrs("type", "name", "value", "placeholder", "disabled", "checked").
		OnElements("input", "button", "textarea", "select", "option")
	p.AllowDataAttributes()

	return p
}

// RenderBody renders the elements of m. Components with a capitalized kind
// render as a div tagged with data-component-kind; expression attributes
// are omitted.
func (r *Renderer) RenderBody(m *model.Model) (string, error) {
	var buf bytes.Buffer
	for _, root := range m.Roots() {
		if err := html.Render(&buf, buildNode(m, root)); err != nil {
			return "", fmt.Errorf("render element %s: %w", root.ID, err)
		}
	}

	if !r.opts.Sanitize {
		return buf.String(), nil
	}

	return r.policy.Sanitize(buf.String()), nil
}

func buildNode(m *model.Model, e *model.Element) *html.Node {
	tag, kindAttr := tagFor(e.Kind)

	node := &html.Node{
		Type:     html.ElementNode,
		Data:     tag,
		DataAtom: atom.Lookup([]byte(tag)),
		Attr:     []html.Attribute{{Key: "data-component-id", Val: e.ID}},
	}
	if kindAttr {
		node.Attr = append(node.Attr, html.Attribute{Key: "data-component-kind", Val: e.Kind})
	}

	for _, attr := range e.Attributes {
		if attr.Expr || attr.Name == "" {
			continue
		}
		name := attr.Name
		if name == "className" {
			name = "class"
		}
		node.Attr = append(node.Attr, html.Attribute{Key: strings.ToLower(name), Val: attr.Value})
	}

	if parser.IsVoidElement(tag) {
		return node
	}

	children := m.Children(e)
	if e.Layout == nil {
		if e.Content != "" {
			node.AppendChild(&html.Node{Type: html.TextNode, Data: e.Content})
		}
		for _, child := range children {
			node.AppendChild(buildNode(m, child))
		}
		return node
	}

	next := 0
	for _, seg := range e.Layout {
		switch {
		case !seg.Child:
			node.AppendChild(&html.Node{Type: html.TextNode, Data: seg.Text})
		case next < len(children):
			node.AppendChild(buildNode(m, children[next]))
			next++
		}
	}
	for ; next < len(children); next++ {
		node.AppendChild(buildNode(m, children[next]))
	}

	return node
}

func tagFor(kind string) (string, bool) {
	if kind == "" {
		return "div", true
	}
	first := []rune(kind)[0]
	if unicode.IsUpper(first) || strings.ContainsAny(kind, ".:") {
		return "div", true
	}

	return strings.ToLower(kind), false
}

// Page returns the full preview document for a session.
func (r *Renderer) Page(sessionID string, m *model.Model) (templ.Component, error) {
	body, err := r.RenderBody(m)
	if err != nil {
		return nil, err
	}

	return page(sessionID, r.opts.StylesheetURL, body), nil
}

// Render writes the full preview document for a session to w.
func (r *Renderer) Render(ctx context.Context, w io.Writer, sessionID string, m *model.Model) error {
	component, err := r.Page(sessionID, m)
	if err != nil {
		return err
	}

	return component.Render(ctx, w)
}

func page(sessionID, stylesheetURL, body string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var b strings.Builder
		b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
		b.WriteString(`<meta charset="utf-8">` + "\n")
		b.WriteString("<title>" + templ.EscapeString(sessionID) + " - livecanvas preview</title>\n")
		if stylesheetURL != "" {
			b.WriteString(`<link rel="stylesheet" href="` + templ.EscapeString(stylesheetURL) + `">` + "\n")
		}
		b.WriteString("</head>\n<body>\n")
		b.WriteString(`<div id="livecanvas-status" hidden></div>` + "\n")
		b.WriteString(`<div id="livecanvas-root" data-session-id="` + templ.EscapeString(sessionID) + `">`)
		b.WriteString(body)
		b.WriteString("</div>\n")
		b.WriteString("<script>\n" + clientJS + "</script>\n")
		b.WriteString("</body>\n</html>\n")

		_, err := io.WriteString(w, b.String())
		return err
	})
}
