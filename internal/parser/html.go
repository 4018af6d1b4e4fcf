package parser

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"

	"github.com/conneroisu/livecanvas/internal/model"
)

// voidElements never have content or an end tag.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"source": true, "track": true, "wbr": true,
}

// IsVoidElement reports whether an html element is written without an end
// tag.
func IsVoidElement(kind string) bool {
	return voidElements[strings.ToLower(kind)]
}

// tokenizeHTML builds the raw tree with the x/net/html tokenizer. Missing
// end tags close implicitly, as browsers do; stray end tags are ignored.
// Elements deeper than maxDepth are flattened into the deepest allowed
// ancestor, which keeps their text.
func tokenizeHTML(text string, maxDepth int) ([]*rawNode, error) {
	z := html.NewTokenizer(strings.NewReader(text))

	var (
		roots    []*rawNode
		stack    []*rawNode
		overflow []string
		offset   int
	)

	appendNode := func(n *rawNode) {
		if len(stack) == 0 {
			roots = append(roots, n)
			return
		}
		stack[len(stack)-1].addChild(n)
	}

	for {
		tt := z.Next()
		start := offset
		offset += len(z.Raw())

		switch tt {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return roots, nil
			}
			return nil, z.Err()

		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			if len(stack) >= maxDepth {
				if tt == html.StartTagToken && !voidElements[tok.Data] {
					overflow = append(overflow, tok.Data)
				}
				continue
			}

			n := &rawNode{
				kind: tok.Data,
				span: model.Span{Start: start, End: offset},
			}
			for _, attr := range tok.Attr {
				name := attr.Key
				if attr.Namespace != "" {
					name = attr.Namespace + ":" + name
				}
				n.attrs = append(n.attrs, model.Attribute{Name: name, Value: attr.Val})
			}
			appendNode(n)
			if tt == html.StartTagToken && !voidElements[n.kind] {
				stack = append(stack, n)
			}

		case html.EndTagToken:
			tok := z.Token()
			if len(overflow) > 0 && overflow[len(overflow)-1] == tok.Data {
				overflow = overflow[:len(overflow)-1]
				continue
			}
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i].kind != tok.Data {
					continue
				}
				for _, open := range stack[i:] {
					open.span.End = offset
				}
				stack = stack[:i]
				break
			}

		case html.TextToken:
			if len(stack) == 0 {
				continue
			}
			// Text() returns unescaped text.
			stack[len(stack)-1].addText(string(z.Text()))

		case html.CommentToken, html.DoctypeToken:
		}
	}
}
