// Package model holds the editable structural model: an arena-backed tree of
// elements with stable, session-unique ids.
//
// Elements refer to each other by arena index. Removing an element leaves a
// hole in the arena which Clone compacts away, so indices are only stable for
// the lifetime of one Model value. Ids are stable until the element is
// deleted and are never reused.
package model

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect selects the markup flavour a model was parsed from and is
// generated back into.
type Dialect string

const (
	DialectJSX  Dialect = "jsx"
	DialectHTML Dialect = "html"
)

// ParseDialect accepts the config and API spellings of a dialect.
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "jsx", "tsx", "react":
		return DialectJSX, nil
	case "html", "htm":
		return DialectHTML, nil
	default:
		return "", fmt.Errorf("unknown dialect %q", s)
	}
}

// ClassAttr is the attribute that holds the class list in this dialect.
func (d Dialect) ClassAttr() string {
	if d == DialectHTML {
		return "class"
	}

	return "className"
}

// IDPrefix prefixes every element id.
const IDPrefix = "comp_"

// Attribute is one name/value pair. Expr marks a brace expression, which is
// generated as name={value} rather than name="value".
type Attribute struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
	Expr  bool   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// Span is a half-open byte range in the parsed source.
type Span struct {
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`
}

// Segment is one piece of mixed content in source order: text, which may
// hold {expressions}, or the slot of the element's next child.
type Segment struct {
	Text  string `json:"text,omitempty" yaml:"text,omitempty"`
	Child bool   `json:"child,omitempty" yaml:"child,omitempty"`
}

// Element is one structural node.
type Element struct {
	ID         string
	Kind       string
	Attributes []Attribute
	// Content is the element's own text with children left out.
	Content string
	// Layout interleaves text with child slots as the source did, holding
	// one slot per child. Nil means Content comes before all children.
	Layout []Segment
	// Verbatim marks Content as unparsed markup that is written back as is.
	Verbatim bool
	// Span is only set by the parser; any mutation of the element clears it.
	Span *Span

	parent   int
	children []int
	index    int
}

// Attr returns the value of the named attribute.
func (e *Element) Attr(name string) (string, bool) {
	for _, attr := range e.Attributes {
		if attr.Name == name {
			return attr.Value, true
		}
	}

	return "", false
}

// SetAttr replaces the named attribute in place, or appends it.
func (e *Element) SetAttr(name, value string, expr bool) {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			e.Attributes[i].Value = value
			e.Attributes[i].Expr = expr
			return
		}
	}
	e.Attributes = append(e.Attributes, Attribute{Name: name, Value: value, Expr: expr})
}

// RemoveAttr deletes the named attribute and reports whether it existed.
func (e *Element) RemoveAttr(name string) bool {
	for i := range e.Attributes {
		if e.Attributes[i].Name == name {
			e.Attributes = append(e.Attributes[:i], e.Attributes[i+1:]...)
			return true
		}
	}

	return false
}

// SetContent replaces the element's text. Text that was interleaved with
// children is dropped, so the new content comes before them.
func (e *Element) SetContent(content string) {
	e.Content = content
	e.Layout = nil
	e.Verbatim = false
}

// Touch marks the element as mutated, which invalidates its source span.
func (e *Element) Touch() {
	e.Span = nil
}

// Model is an ordered forest of elements.
type Model struct {
	Dialect Dialect

	nodes  []*Element
	roots  []int
	nextID int
	ids    map[string]int
}

// New returns an empty model.
func New(dialect Dialect) *Model {
	if dialect == "" {
		dialect = DialectJSX
	}

	return &Model{
		Dialect: dialect,
		ids:     make(map[string]int),
	}
}

// Len returns the number of live elements.
func (m *Model) Len() int {
	return len(m.ids)
}

// IsEmpty reports whether the model has no elements.
func (m *Model) IsEmpty() bool {
	return len(m.ids) == 0
}

// Find returns the element with the given id.
func (m *Model) Find(id string) (*Element, bool) {
	i, ok := m.ids[id]
	if !ok {
		return nil, false
	}

	return m.nodes[i], true
}

// Root returns the first top-level element, or nil for an empty model.
func (m *Model) Root() *Element {
	if len(m.roots) == 0 {
		return nil
	}

	return m.nodes[m.roots[0]]
}

// Roots returns the top-level elements in order.
func (m *Model) Roots() []*Element {
	return m.resolve(m.roots)
}

// Children returns the direct children of e in order.
func (m *Model) Children(e *Element) []*Element {
	return m.resolve(e.children)
}

// Parent returns the parent of e, or nil for a top-level element.
func (m *Model) Parent(e *Element) *Element {
	if e.parent < 0 {
		return nil
	}

	return m.nodes[e.parent]
}

// ParentID returns the id of e's parent, or "" at the top level.
func (m *Model) ParentID(e *Element) string {
	if p := m.Parent(e); p != nil {
		return p.ID
	}

	return ""
}

// Depth returns the number of ancestors of e.
func (m *Model) Depth(e *Element) int {
	depth := 0
	for p := e.parent; p >= 0; p = m.nodes[p].parent {
		depth++
	}

	return depth
}

// Position returns the index of e among its siblings.
func (m *Model) Position(e *Element) int {
	for i, idx := range m.siblings(e.parent) {
		if idx == e.index {
			return i
		}
	}

	return -1
}

// Elements returns every element in document (pre-order) order.
func (m *Model) Elements() []*Element {
	out := make([]*Element, 0, len(m.ids))
	var walk func(indices []int)
	walk = func(indices []int) {
		for _, i := range indices {
			out = append(out, m.nodes[i])
			walk(m.nodes[i].children)
		}
	}
	walk(m.roots)

	return out
}

// IsAncestor reports whether ancestor is e itself or one of its ancestors.
func (m *Model) IsAncestor(ancestor, e *Element) bool {
	for i := e.index; i >= 0; i = m.nodes[i].parent {
		if i == ancestor.index {
			return true
		}
	}

	return false
}

// Append creates an element under parent (nil for top level) at the end of
// its sibling list and assigns it the next id.
func (m *Model) Append(parent *Element, kind string, attrs []Attribute, content string) *Element {
	return m.Insert(parent, -1, kind, attrs, content)
}

// Insert creates an element under parent at position. A negative or
// out-of-range position appends.
func (m *Model) Insert(parent *Element, position int, kind string, attrs []Attribute, content string) *Element {
	e := &Element{
		ID:         IDPrefix + strconv.Itoa(m.nextID),
		Kind:       kind,
		Attributes: attrs,
		Content:    content,
		parent:     -1,
		index:      len(m.nodes),
	}
	m.nextID++
	m.nodes = append(m.nodes, e)
	m.ids[e.ID] = e.index
	m.attach(e, parent, position)

	return e
}

// Move detaches e and reattaches it under parent at position. It fails when
// parent is e or one of its descendants.
func (m *Model) Move(e, parent *Element, position int) error {
	if parent != nil && m.IsAncestor(e, parent) {
		return fmt.Errorf("cannot move %s under %s", e.ID, parent.ID)
	}
	m.detach(e)
	m.attach(e, parent, position)
	e.Touch()

	return nil
}

// Remove deletes e and its whole subtree. It returns the removed ids in
// document order.
func (m *Model) Remove(e *Element) []string {
	m.detach(e)

	var removed []string
	var drop func(i int)
	drop = func(i int) {
		n := m.nodes[i]
		removed = append(removed, n.ID)
		delete(m.ids, n.ID)
		for _, c := range n.children {
			drop(c)
		}
		m.nodes[i] = nil
	}
	drop(e.index)

	return removed
}

func (m *Model) attach(e, parent *Element, position int) {
	if parent == nil {
		e.parent = -1
		m.roots = insertAt(m.roots, position, e.index)
		return
	}
	e.parent = parent.index
	if parent.Layout != nil {
		parent.Layout = insertSlot(parent.Layout, position, len(parent.children))
	}
	parent.children = insertAt(parent.children, position, e.index)
}

func (m *Model) detach(e *Element) {
	if e.parent < 0 {
		m.roots = without(m.roots, e.index)
	} else {
		p := m.nodes[e.parent]
		if p.Layout != nil {
			for k, idx := range p.children {
				if idx == e.index {
					p.Layout = removeSlot(p.Layout, k)
					break
				}
			}
		}
		p.children = without(p.children, e.index)
	}
	e.parent = -1
}

func (m *Model) siblings(parent int) []int {
	if parent < 0 {
		return m.roots
	}

	return m.nodes[parent].children
}

func (m *Model) resolve(indices []int) []*Element {
	out := make([]*Element, len(indices))
	for i, idx := range indices {
		out[i] = m.nodes[idx]
	}

	return out
}

func insertAt(list []int, position, value int) []int {
	if position < 0 || position >= len(list) {
		return append(list, value)
	}
	list = append(list, 0)
	copy(list[position+1:], list[position:])
	list[position] = value

	return list
}

// insertSlot adds a child slot before the slot of the child currently at
// position, or at the end when position is out of range for n children.
func insertSlot(layout []Segment, position, n int) []Segment {
	at := len(layout)
	if position >= 0 && position < n {
		at = slotIndex(layout, position)
	}
	layout = append(layout, Segment{})
	copy(layout[at+1:], layout[at:])
	layout[at] = Segment{Child: true}

	return layout
}

func removeSlot(layout []Segment, k int) []Segment {
	at := slotIndex(layout, k)
	if at == len(layout) {
		return layout
	}

	return append(layout[:at], layout[at+1:]...)
}

// slotIndex returns the index of the k-th child slot, or len(layout).
func slotIndex(layout []Segment, k int) int {
	for i, seg := range layout {
		if !seg.Child {
			continue
		}
		if k == 0 {
			return i
		}
		k--
	}

	return len(layout)
}

func without(list []int, value int) []int {
	out := list[:0]
	for _, v := range list {
		if v != value {
			out = append(out, v)
		}
	}

	return out
}

// Clone returns a deep copy with a compacted arena. Element ids, the id
// counter and spans are preserved.
func (m *Model) Clone() *Model {
	c := &Model{
		Dialect: m.Dialect,
		nodes:   make([]*Element, 0, len(m.ids)),
		nextID:  m.nextID,
		ids:     make(map[string]int, len(m.ids)),
	}

	var copyNode func(src *Element, parent int) int
	copyNode = func(src *Element, parent int) int {
		dst := &Element{
			ID:         src.ID,
			Kind:       src.Kind,
			Attributes: append([]Attribute(nil), src.Attributes...),
			Content:    src.Content,
			Verbatim:   src.Verbatim,
			parent:     parent,
			index:      len(c.nodes),
		}
		if src.Layout != nil {
			dst.Layout = append(make([]Segment, 0, len(src.Layout)), src.Layout...)
		}
		if src.Span != nil {
			span := *src.Span
			dst.Span = &span
		}
		c.nodes = append(c.nodes, dst)
		c.ids[dst.ID] = dst.index
		for _, child := range src.children {
			dst.children = append(dst.children, copyNode(m.nodes[child], dst.index))
		}

		return dst.index
	}
	for _, r := range m.roots {
		c.roots = append(c.roots, copyNode(m.nodes[r], -1))
	}

	return c
}
