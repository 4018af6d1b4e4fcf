// Package patch derives hot reload patches from applied operations.
package patch

import (
	"github.com/conneroisu/livecanvas/internal/model"
	"github.com/conneroisu/livecanvas/internal/styles"
	"github.com/conneroisu/livecanvas/internal/types"
)

// Reasons carried by FullReload patches.
const (
	ReasonAdded   = "component added"
	ReasonMoved   = "component moved"
	ReasonDeleted = "component deleted"
	ReasonProps   = "props updated"
)

// Derive computes the patch for op, given the model after the operation
// and the code generated from it. Style and content updates produce a
// surgical patch for the target node; every structural operation produces
// a FullReload with the whole code. A nil operation yields nil.
//
// Style and content patches are produced even when the target was skipped
// under the lenient target policy; the live preview ignores selectors that
// match nothing.
func Derive(op types.Operation, m *model.Model, code string) types.Patch {
	switch o := op.(type) {
	case types.UpdateStyle:
		var class string
		if el, ok := m.Find(o.ComponentID); ok {
			class, _ = el.Attr(m.Dialect.ClassAttr())
		}
		return types.StyleUpdate{
			ComponentID:   o.ComponentID,
			StyleProperty: o.StyleProperty,
			NewValue:      o.NewValue,
			Token:         styles.Map(o.StyleProperty, o.NewValue),
			ClassName:     class,
			CSSUpdate: types.CSSUpdate{
				Property: o.StyleProperty,
				Value:    o.NewValue,
				CSSRule:  styles.CSSRule(o.StyleProperty, o.NewValue),
			},
			DOMSelector: types.ComponentSelector(o.ComponentID),
		}
	case types.UpdateContent:
		return types.ContentUpdate{
			ComponentID: o.ComponentID,
			NewContent:  o.NewContent,
			DOMSelector: types.ComponentSelector(o.ComponentID),
		}
	case types.AddComponent:
		return types.FullReload{UpdatedCode: code, Reason: ReasonAdded}
	case types.MoveComponent:
		return types.FullReload{UpdatedCode: code, Reason: ReasonMoved}
	case types.DeleteComponent:
		return types.FullReload{UpdatedCode: code, Reason: ReasonDeleted}
	case types.UpdateProps:
		return types.FullReload{UpdatedCode: code, Reason: ReasonProps}
	default:
		return nil
	}
}
