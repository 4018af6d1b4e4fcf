package parser

import (
	"html"
	"strings"

	"github.com/conneroisu/livecanvas/internal/model"
)

type scanner struct {
	src      string
	pos      int
	maxDepth int
}

// scanTop collects top-level elements. Text between them is not part of
// the model.
func (s *scanner) scanTop() []*rawNode {
	var roots []*rawNode
	for s.pos < len(s.src) {
		next := strings.IndexByte(s.src[s.pos:], '<')
		if next < 0 {
			break
		}
		s.pos += next

		switch {
		case s.skipMarkup():
		case s.hasPrefix("</"):
			if _, end, ok := s.peekClosingTag(); ok {
				s.pos = end
			} else {
				s.pos++
			}
		default:
			node, orphans, ok := s.scanElement(0, nil)
			if !ok {
				s.pos++
				continue
			}
			roots = append(roots, node)
			for _, seg := range orphans {
				if seg.child != nil {
					roots = append(roots, seg.child)
				}
			}
		}
	}

	return roots
}

// scanElement parses the element starting at the current '<'. When the
// element is never closed it degrades to an empty element, and what it
// collected is returned as orphans for the caller to adopt in its place.
func (s *scanner) scanElement(depth int, open []string) (*rawNode, []segment, bool) {
	start := s.pos
	s.pos++

	kind := s.readName()
	if kind == "" {
		s.pos = start
		return nil, nil, false
	}

	node := &rawNode{kind: kind, span: model.Span{Start: start}}
	selfClosing, ok := s.scanAttributes(node)
	if !ok {
		s.pos = start
		return nil, nil, false
	}
	if selfClosing {
		node.span.End = s.pos
		return node, nil, true
	}

	if depth >= s.maxDepth-1 {
		if inner, ok := s.opaqueInner(kind); ok {
			node.raw = strings.Trim(inner, asciiSpace)
			node.verbatim = node.raw != ""
		}
		node.span.End = s.pos
		return node, nil, true
	}

	openEnd := s.pos
	stack := append(open[:len(open):len(open)], kind)
	if s.scanChildren(node, depth+1, stack) {
		node.span.End = s.pos
		return node, nil, true
	}

	empty := &rawNode{
		kind:  kind,
		attrs: node.attrs,
		span:  model.Span{Start: start, End: openEnd},
	}

	return empty, node.segments, true
}

// braceLiterals are the expressions that stand for a literal brace in text.
var braceLiterals = map[string]string{
	`{"{"}`: "{",
	`{"}"}`: "}",
	`{'{'}`: "{",
	`{'}'}`: "}",
}

// scanChildren reads content until node's closing tag, which it consumes.
// It returns false without consuming anything when it meets the closing
// tag of an ancestor, or at end of input.
func (s *scanner) scanChildren(node *rawNode, depth int, open []string) bool {
	for s.pos < len(s.src) {
		switch s.src[s.pos] {
		case '{':
			expr, ok := s.readBraces()
			if !ok {
				node.addText(s.src[s.pos:])
				s.pos = len(s.src)
				return false
			}
			if literal, ok := braceLiterals[expr]; ok {
				expr = literal
			}
			node.addRaw(expr)
		case '<':
			if s.skipMarkup() {
				continue
			}
			if s.hasPrefix("</") {
				name, end, ok := s.peekClosingTag()
				switch {
				case !ok:
					node.addRaw("<")
					s.pos++
				case name == node.kind:
					s.pos = end
					return true
				case contains(open, name):
					return false
				default:
					s.pos = end
				}
				continue
			}

			child, orphans, ok := s.scanElement(depth, open)
			if !ok {
				node.addRaw("<")
				s.pos++
				continue
			}
			node.addChild(child)
			for _, seg := range orphans {
				if seg.child != nil {
					node.addChild(seg.child)
				} else {
					node.addRaw(seg.text)
				}
			}
		default:
			end := strings.IndexAny(s.src[s.pos:], "<{")
			if end < 0 {
				end = len(s.src) - s.pos
			}
			// Entities are decoded after whitespace handling, so &nbsp;
			// stays a non-breaking space.
			node.addRaw(html.UnescapeString(cleanText(s.src[s.pos : s.pos+end])))
			s.pos += end
		}
	}

	return false
}

// scanAttributes reads attributes up to and including '>' or '/>'.
func (s *scanner) scanAttributes(node *rawNode) (selfClosing, ok bool) {
	for {
		s.skipSpace()
		if s.pos >= len(s.src) {
			return false, false
		}

		switch {
		case s.hasPrefix("/>"):
			s.pos += 2
			return true, true
		case s.src[s.pos] == '>':
			s.pos++
			return false, true
		case s.src[s.pos] == '{':
			expr, ok := s.readBraces()
			if !ok {
				return false, false
			}
			// Spread attribute, e.g. {...props}; it has no name.
			node.attrs = append(node.attrs, model.Attribute{
				Value: strings.TrimSpace(expr[1 : len(expr)-1]),
				Expr:  true,
			})
		default:
			name := s.readAttrName()
			if name == "" {
				return false, false
			}
			s.skipSpace()
			if !s.hasPrefix("=") {
				node.attrs = append(node.attrs, model.Attribute{Name: name, Value: "true", Expr: true})
				continue
			}
			s.pos++
			s.skipSpace()

			value, expr, ok := s.readAttrValue()
			if !ok {
				return false, false
			}
			node.attrs = append(node.attrs, model.Attribute{Name: name, Value: value, Expr: expr})
		}
	}
}

func (s *scanner) readAttrValue() (value string, expr, ok bool) {
	if s.pos >= len(s.src) {
		return "", false, false
	}

	switch quote := s.src[s.pos]; quote {
	case '"', '\'':
		end := strings.IndexByte(s.src[s.pos+1:], quote)
		if end < 0 {
			return "", false, false
		}
		value = html.UnescapeString(s.src[s.pos+1 : s.pos+1+end])
		s.pos += end + 2
		return value, false, true
	case '{':
		braced, ok := s.readBraces()
		if !ok {
			return "", false, false
		}
		return strings.TrimSpace(braced[1 : len(braced)-1]), true, true
	default:
		start := s.pos
		for s.pos < len(s.src) && !isSpace(s.src[s.pos]) && s.src[s.pos] != '>' && !s.hasPrefix("/>") {
			s.pos++
		}
		if s.pos == start {
			return "", false, false
		}
		return s.src[start:s.pos], false, true
	}
}

// readBraces consumes a balanced {...} expression starting at the current
// '{' and returns it including the braces. String literals inside the
// expression may contain unbalanced braces.
func (s *scanner) readBraces() (string, bool) {
	start := s.pos
	depth := 0
	for i := s.pos; i < len(s.src); i++ {
		switch c := s.src[i]; c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s.pos = i + 1
				return s.src[start:s.pos], true
			}
		case '"', '\'', '`':
			i = skipString(s.src, i)
		}
	}

	return "", false
}

// skipString returns the index of the quote closing the literal opened at i.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j
		}
	}

	return len(src)
}

// opaqueInner consumes everything up to the matching closing tag of kind
// and returns it unparsed.
func (s *scanner) opaqueInner(kind string) (string, bool) {
	start := s.pos
	depth := 1
	for i := s.pos; i < len(s.src); i++ {
		if s.src[i] != '<' {
			continue
		}
		rest := s.src[i+1:]
		if strings.HasPrefix(rest, "/"+kind) && tagNameEnds(rest, len(kind)+1) {
			depth--
			if depth == 0 {
				end := strings.IndexByte(rest, '>')
				if end < 0 {
					return "", false
				}
				s.pos = i + 1 + end + 1
				return s.src[start:i], true
			}
		} else if strings.HasPrefix(rest, kind) && tagNameEnds(rest, len(kind)) {
			depth++
		}
	}

	return "", false
}

func tagNameEnds(s string, i int) bool {
	return i >= len(s) || !isNameChar(s[i])
}

// skipMarkup skips comments, doctype-like declarations and fragment
// markers, reporting whether it consumed anything.
func (s *scanner) skipMarkup() bool {
	switch {
	case s.hasPrefix("<!--"):
		end := strings.Index(s.src[s.pos+4:], "-->")
		if end < 0 {
			s.pos = len(s.src)
		} else {
			s.pos += 4 + end + 3
		}
	case s.hasPrefix("<!"):
		end := strings.IndexByte(s.src[s.pos:], '>')
		if end < 0 {
			s.pos = len(s.src)
		} else {
			s.pos += end + 1
		}
	case s.hasPrefix("<>"):
		s.pos += 2
	case s.hasPrefix("</>"):
		s.pos += 3
	default:
		return false
	}

	return true
}

// peekClosingTag reads "</name>" at the current position without consuming
// it. end is the position after '>'.
func (s *scanner) peekClosingTag() (name string, end int, ok bool) {
	i := s.pos + 2
	for i < len(s.src) && isSpace(s.src[i]) {
		i++
	}
	start := i
	for i < len(s.src) && isNameChar(s.src[i]) {
		i++
	}
	name = s.src[start:i]
	for i < len(s.src) && isSpace(s.src[i]) {
		i++
	}
	if name == "" || i >= len(s.src) || s.src[i] != '>' {
		return "", 0, false
	}

	return name, i + 1, true
}

func (s *scanner) readName() string {
	if s.pos >= len(s.src) || !isNameStart(s.src[s.pos]) {
		return ""
	}
	start := s.pos
	for s.pos < len(s.src) && isNameChar(s.src[s.pos]) {
		s.pos++
	}

	return s.src[start:s.pos]
}

func (s *scanner) readAttrName() string {
	start := s.pos
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if isSpace(c) || strings.IndexByte(`=>/"'{}<`, c) >= 0 {
			break
		}
		s.pos++
	}

	return s.src[start:s.pos]
}

func (s *scanner) skipSpace() {
	for s.pos < len(s.src) && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

func (s *scanner) hasPrefix(prefix string) bool {
	return strings.HasPrefix(s.src[s.pos:], prefix)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isNameStart(c byte) bool {
	return c == '_' || c == '$' || ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isNameChar(c byte) bool {
	return isNameStart(c) || ('0' <= c && c <= '9') || c == '.' || c == '-' || c == ':'
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}

	return false
}
