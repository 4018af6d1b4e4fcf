package model

// ElementSummary is the flat, caller-facing description of one element.
type ElementSummary struct {
	ID        string `json:"id" yaml:"id"`
	Kind      string `json:"type" yaml:"type"`
	ParentID  string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`
	Depth     int    `json:"depth" yaml:"depth"`
	ClassName string `json:"class_name,omitempty" yaml:"class_name,omitempty"`
	Content   string `json:"content,omitempty" yaml:"content,omitempty"`
	Span      *Span  `json:"span,omitempty" yaml:"span,omitempty"`
}

// Summaries lists every element in document order. The result is never nil.
func (m *Model) Summaries() []ElementSummary {
	classAttr := m.Dialect.ClassAttr()
	elements := m.Elements()
	out := make([]ElementSummary, 0, len(elements))
	for _, e := range elements {
		class, _ := e.Attr(classAttr)
		out = append(out, ElementSummary{
			ID:        e.ID,
			Kind:      e.Kind,
			ParentID:  m.ParentID(e),
			Depth:     m.Depth(e),
			ClassName: class,
			Content:   e.Content,
			Span:      e.Span,
		})
	}

	return out
}

// Node is a nested, serializable view of an element and its subtree.
type Node struct {
	ID         string      `json:"id" yaml:"id"`
	Kind       string      `json:"type" yaml:"type"`
	Attributes []Attribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Content    string      `json:"content,omitempty" yaml:"content,omitempty"`
	Children   []Node      `json:"children,omitempty" yaml:"children,omitempty"`
}

// Tree returns the nested view of the whole model.
func (m *Model) Tree() []Node {
	var build func(elements []*Element) []Node
	build = func(elements []*Element) []Node {
		if len(elements) == 0 {
			return nil
		}
		nodes := make([]Node, 0, len(elements))
		for _, e := range elements {
			nodes = append(nodes, Node{
				ID:         e.ID,
				Kind:       e.Kind,
				Attributes: e.Attributes,
				Content:    e.Content,
				Children:   build(m.Children(e)),
			})
		}

		return nodes
	}

	out := build(m.Roots())
	if out == nil {
		out = []Node{}
	}

	return out
}

// Shape is an id-free description of an element used to compare models.
type Shape struct {
	Kind       string
	Attributes []Attribute
	Content    string
	Depth      int
}

// Shapes lists the id-free shape of every element in document order.
func (m *Model) Shapes() []Shape {
	elements := m.Elements()
	out := make([]Shape, 0, len(elements))
	for _, e := range elements {
		attrs := e.Attributes
		if len(attrs) == 0 {
			attrs = nil
		}
		out = append(out, Shape{
			Kind:       e.Kind,
			Attributes: attrs,
			Content:    e.Content,
			Depth:      m.Depth(e),
		})
	}

	return out
}
