package patch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecanvas/internal/generator"
	"github.com/conneroisu/livecanvas/internal/mutation"
	"github.com/conneroisu/livecanvas/internal/parser"
	"github.com/conneroisu/livecanvas/internal/registry"
	"github.com/conneroisu/livecanvas/internal/types"
)

func TestDeriveStyleUpdate(t *testing.T) {
	m, err := parser.Parse(`<button className="p-2">Click</button>`)
	require.NoError(t, err)

	op := types.UpdateStyle{ComponentID: "comp_0", StyleProperty: "background-color", NewValue: "#3b82f6"}
	next, _, err := mutation.NewEngine(registry.NewDefaultRegistry(), mutation.DefaultOptions()).Apply(m, op)
	require.NoError(t, err)

	p := Derive(op, next, generator.Generate(next))
	assert.Equal(t, types.StyleUpdate{
		ComponentID:   "comp_0",
		StyleProperty: "background-color",
		NewValue:      "#3b82f6",
		Token:         "bg-blue-500",
		ClassName:     "p-2 bg-blue-500",
		CSSUpdate: types.CSSUpdate{
			Property: "background-color",
			Value:    "#3b82f6",
			CSSRule:  "background-color: #3b82f6",
		},
		DOMSelector: "[data-component-id='comp_0']",
	}, p)
}

func TestDeriveContentUpdate(t *testing.T) {
	m, err := parser.Parse(`<h1>Old</h1>`)
	require.NoError(t, err)

	p := Derive(types.UpdateContent{ComponentID: "comp_0", NewContent: "New"}, m, "")
	assert.Equal(t, types.ContentUpdate{
		ComponentID: "comp_0",
		NewContent:  "New",
		DOMSelector: "[data-component-id='comp_0']",
	}, p)
}

func TestDeriveStructuralOperations(t *testing.T) {
	m, err := parser.Parse(`<div><p>a</p></div>`)
	require.NoError(t, err)
	code := generator.Generate(m)

	tests := []struct {
		op     types.Operation
		reason string
	}{
		{types.AddComponent{ComponentType: "Card"}, ReasonAdded},
		{types.MoveComponent{ComponentID: "comp_1"}, ReasonMoved},
		{types.DeleteComponent{ComponentID: "comp_1"}, ReasonDeleted},
		{types.UpdateProps{ComponentID: "comp_1", NewProps: types.Props{"id": "x"}}, ReasonProps},
	}

	for _, tt := range tests {
		t.Run(string(tt.op.Type()), func(t *testing.T) {
			p := Derive(tt.op, m, code)
			assert.Equal(t, types.FullReload{UpdatedCode: code, Reason: tt.reason}, p)
			assert.Equal(t, types.PatchFullReload, p.Type())
		})
	}
}

func TestDeriveSkippedTargetStaysSurgical(t *testing.T) {
	m, err := parser.Parse(`<p>a</p>`)
	require.NoError(t, err)

	style := Derive(types.UpdateStyle{ComponentID: "comp_9", StyleProperty: "color", NewValue: "#000000"}, m, "<p>a</p>\n")
	require.IsType(t, types.StyleUpdate{}, style)
	assert.Equal(t, "text-black", style.(types.StyleUpdate).Token)
	assert.Empty(t, style.(types.StyleUpdate).ClassName)

	content := Derive(types.UpdateContent{ComponentID: "comp_9", NewContent: "x"}, m, "<p>a</p>\n")
	assert.Equal(t, types.PatchContentUpdate, content.Type())

	assert.Nil(t, Derive(nil, m, ""))
}
