// Package mutation applies edit operations to structural models.
package mutation

import (
	"fmt"
	"strings"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/styles"
	"github.com/conneroisu/livecanvas/internal/types"
)

// Library resolves component kinds for AddComponent.
type Library interface {
	Resolve(kind string) (*registry.Entry, error)
}

// Options configure an Engine.
type Options struct {
	// StrictTargets makes operations naming a missing element (or parent)
	// fail with ERR_TARGET_NOT_FOUND. When false every such operation is a
	// silent no-op reported with Applied=false.
	StrictTargets bool
}

// DefaultOptions returns the strict target policy.
func DefaultOptions() Options {
	return Options{StrictTargets: true}
}

// Engine applies operations. It holds no per-model state and is safe for
// concurrent use.
type Engine struct {
	library Library
	opts    Options
}

// NewEngine creates an engine resolving new components in library.
func NewEngine(library Library, opts Options) *Engine {
	return &Engine{library: library, opts: opts}
}

// Apply returns a new model with op applied. The input model is never
// modified; on error no model is returned.
func (e *Engine) Apply(m *model.Model, op types.Operation) (*model.Model, types.ChangeResult, error) {
	if op == nil {
		return nil, types.ChangeResult{}, errors.ErrInvalidOperation("operation is required")
	}
	if err := op.Validate(); err != nil {
		return nil, types.ChangeResult{}, err
	}

	next := m.Clone()

	var (
		res types.ChangeResult
		err error
	)
	switch o := op.(type) {
	case types.UpdateStyle:
		res, err = e.updateStyle(next, o)
	case types.UpdateContent:
		res, err = e.updateContent(next, o)
	case types.UpdateProps:
		res, err = e.updateProps(next, o)
	case types.AddComponent:
		res, err = e.addComponent(next, o)
	case types.MoveComponent:
		res, err = e.moveComponent(next, o)
	case types.DeleteComponent:
		res, err = e.deleteComponent(next, o)
	default:
		err = errors.ErrInvalidOperation(fmt.Sprintf("unsupported operation %T", op))
	}
	if err != nil {
		return nil, types.ChangeResult{}, err
	}

	return next, res, nil
}

// find applies the target policy. A nil element with a nil error means the
// operation must be skipped.
func (e *Engine) find(m *model.Model, id string) (*model.Element, error) {
	if el, ok := m.Find(id); ok {
		return el, nil
	}
	if e.opts.StrictTargets {
		return nil, errors.ErrTargetNotFound(id)
	}

	return nil, nil
}

// findParent resolves an optional parent id; "" is the top level.
func (e *Engine) findParent(m *model.Model, id string) (parent *model.Element, skip bool, err error) {
	if id == "" {
		return nil, false, nil
	}
	parent, err = e.find(m, id)
	if err != nil {
		return nil, false, err
	}

	return parent, parent == nil, nil
}

func skipped(id string) types.ChangeResult {
	return types.ChangeResult{ComponentID: id, Applied: false}
}

func (e *Engine) updateStyle(m *model.Model, op types.UpdateStyle) (types.ChangeResult, error) {
	el, err := e.find(m, op.ComponentID)
	if el == nil {
		return skipped(op.ComponentID), err
	}

	classAttr := m.Dialect.ClassAttr()
	old, _ := el.Attr(classAttr)
	updated := styles.Apply(old, op.StyleProperty, styles.Map(op.StyleProperty, op.NewValue))
	el.SetAttr(classAttr, updated, false)
	el.Touch()

	return types.ChangeResult{
		ComponentID: el.ID,
		OldValue:    old,
		NewValue:    updated,
		Applied:     true,
	}, nil
}

func (e *Engine) updateContent(m *model.Model, op types.UpdateContent) (types.ChangeResult, error) {
	el, err := e.find(m, op.ComponentID)
	if el == nil {
		return skipped(op.ComponentID), err
	}

	old := el.Content
	el.SetContent(op.NewContent)
	el.Touch()

	return types.ChangeResult{
		ComponentID: el.ID,
		OldValue:    old,
		NewValue:    op.NewContent,
		Applied:     true,
	}, nil
}

// updateProps merges props in sorted key order. children sets the content,
// className and class set the dialect's class attribute, and an empty value
// removes the attribute. A value wrapped in braces becomes an expression in
// the jsx dialect; an attribute that already is an expression stays one.
func (e *Engine) updateProps(m *model.Model, op types.UpdateProps) (types.ChangeResult, error) {
	el, err := e.find(m, op.ComponentID)
	if el == nil {
		return skipped(op.ComponentID), err
	}

	old := describe(el)
	classAttr := m.Dialect.ClassAttr()
	for _, name := range op.NewProps.Keys() {
		value := op.NewProps[name]
		switch {
		case name == "children":
			el.SetContent(value)
		case name == "className" || name == "class":
			if value == "" {
				el.RemoveAttr(classAttr)
			} else {
				el.SetAttr(classAttr, strings.Join(strings.Fields(value), " "), false)
			}
		case value == "":
			el.RemoveAttr(name)
		default:
			value, expr := propValue(m.Dialect, el, name, value)
			el.SetAttr(name, value, expr)
		}
	}
	el.Touch()

	return types.ChangeResult{
		ComponentID: el.ID,
		OldValue:    old,
		NewValue:    describe(el),
		Applied:     true,
	}, nil
}

func propValue(dialect model.Dialect, el *model.Element, name, value string) (string, bool) {
	if dialect != model.DialectJSX {
		return value, false
	}
	trimmed := strings.TrimSpace(value)
	if len(trimmed) >= 2 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}' {
		return strings.TrimSpace(trimmed[1 : len(trimmed)-1]), true
	}
	for _, attr := range el.Attributes {
		if attr.Name == name && attr.Expr {
			return value, true
		}
	}

	return value, false
}

// describe renders an element's attributes and content for change records.
func describe(el *model.Element) string {
	parts := make([]string, 0, len(el.Attributes)+1)
	for _, attr := range el.Attributes {
		if attr.Expr {
			parts = append(parts, fmt.Sprintf("%s={%s}", attr.Name, attr.Value))
		} else {
			parts = append(parts, fmt.Sprintf("%s=%q", attr.Name, attr.Value))
		}
	}
	if el.Content != "" {
		parts = append(parts, fmt.Sprintf("children=%q", el.Content))
	}

	return strings.Join(parts, " ")
}

func (e *Engine) addComponent(m *model.Model, op types.AddComponent) (types.ChangeResult, error) {
	entry, err := e.library.Resolve(op.ComponentType)
	if err != nil {
		return types.ChangeResult{}, err
	}

	parent, skip, err := e.findParent(m, op.ParentID)
	if err != nil || skip {
		return skipped(""), err
	}

	position := -1
	if op.Position != nil {
		position = *op.Position
	}

	inst := entry.Instantiate(op.Props, m.Dialect)
	el := m.Insert(parent, position, inst.Kind, inst.Attributes, inst.Content)

	return types.ChangeResult{
		ComponentID: el.ID,
		NewValue:    entry.Name,
		Applied:     true,
	}, nil
}

func (e *Engine) moveComponent(m *model.Model, op types.MoveComponent) (types.ChangeResult, error) {
	el, err := e.find(m, op.ComponentID)
	if el == nil {
		return skipped(op.ComponentID), err
	}

	parent, skip, err := e.findParent(m, op.NewParentID)
	if err != nil || skip {
		return skipped(op.ComponentID), err
	}

	position := -1
	if op.NewPosition != nil {
		position = *op.NewPosition
	}

	old := location(m, el)
	if err := m.Move(el, parent, position); err != nil {
		return types.ChangeResult{}, errors.ErrInvalidMove(el.ID, op.NewParentID)
	}

	return types.ChangeResult{
		ComponentID: el.ID,
		OldValue:    old,
		NewValue:    location(m, el),
		Applied:     true,
	}, nil
}

// location renders an element's place as parent[index], with "root" for
// the top level.
func location(m *model.Model, el *model.Element) string {
	parent := m.ParentID(el)
	if parent == "" {
		parent = "root"
	}

	return fmt.Sprintf("%s[%d]", parent, m.Position(el))
}

func (e *Engine) deleteComponent(m *model.Model, op types.DeleteComponent) (types.ChangeResult, error) {
	el, err := e.find(m, op.ComponentID)
	if el == nil {
		return skipped(op.ComponentID), err
	}

	removed := m.Remove(el)

	return types.ChangeResult{
		ComponentID: op.ComponentID,
		OldValue:    strings.Join(removed, ","),
		Applied:     true,
	}, nil
}
