package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/model"
)

func TestNewDefaultRegistry(t *testing.T) {
	registry := NewDefaultRegistry()

	assert.Equal(t, 6, registry.Count())
	assert.Equal(t, map[string][]string{
		CategoryComponents: {"Button", "Card", "Input"},
		CategoryLayout:     {"Container", "Flex", "Grid"},
	}, registry.Categories())
}

func TestResolveIgnoresCase(t *testing.T) {
	registry := NewDefaultRegistry()

	for _, kind := range []string{"Button", "button", "BUTTON"} {
		entry, err := registry.Resolve(kind)
		require.NoError(t, err, kind)
		assert.Equal(t, "Button", entry.Name)
	}

	_, err := registry.Resolve("Carousel")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeComponentKindNotFound))
	assert.Contains(t, err.Error(), "component type 'Carousel' not found")
}

func TestClassName(t *testing.T) {
	registry := NewDefaultRegistry()

	tests := []struct {
		kind     string
		props    map[string]string
		expected string
	}{
		{"Container", nil, "container mx-auto p-4"},
		{"Grid", nil, "grid grid-cols-2 gap-4"},
		{"Grid", map[string]string{"cols": "3", "gap": "8"}, "grid grid-cols-3 gap-8"},
		{"Flex", map[string]string{"direction": "col"}, "flex flex-col items-center justify-start"},
		{"Button", nil, "bg-blue-600 hover:bg-blue-700 text-white px-4 py-2"},
		{"Button", map[string]string{"variant": "outline", "size": "lg"}, "border border-gray-300 hover:bg-gray-50 px-6 py-3 text-lg"},
		{"Button", map[string]string{"variant": "ghost", "size": "xl"}, ""},
		{"Card", map[string]string{"className": "mt-4  w-full"}, "bg-white rounded-lg shadow-md p-6 mt-4 w-full"},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			entry, err := registry.Resolve(tt.kind)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, entry.ClassName(tt.props))
		})
	}
}

func TestUnresolvedPlaceholderIsDropped(t *testing.T) {
	entry := &Entry{
		Name:           "Stack",
		DefaultClasses: "space-y-{gap} flex",
		Template:       Template{Tag: "div"},
	}

	assert.Equal(t, "flex", entry.ClassName(nil))
	assert.Equal(t, "space-y-2 flex", entry.ClassName(map[string]string{"gap": "2"}))
}

func TestInstantiate(t *testing.T) {
	registry := NewDefaultRegistry()

	button, _ := registry.Get("Button")
	inst := button.Instantiate(map[string]string{"children": "Save", "variant": "secondary", "size": "sm"}, model.DialectJSX)
	assert.Equal(t, "button", inst.Kind)
	assert.Equal(t, "Save", inst.Content)
	assert.Equal(t, []model.Attribute{
		{Name: "className", Value: "bg-gray-200 hover:bg-gray-300 text-gray-900 px-3 py-1.5 text-sm"},
		{Name: "onClick", Value: "() => {}", Expr: true},
		{Name: "disabled", Value: "false", Expr: true},
	}, inst.Attributes)

	input, _ := registry.Get("Input")
	inst = input.Instantiate(map[string]string{"placeholder": "Email", "id": "email"}, model.DialectJSX)
	assert.Equal(t, "input", inst.Kind)
	assert.Empty(t, inst.Content)
	assert.Equal(t, []model.Attribute{
		{Name: "className", Value: input.DefaultClasses},
		{Name: "type", Value: "text"},
		{Name: "placeholder", Value: "Email"},
		{Name: "onChange", Value: "() => {}", Expr: true},
		{Name: "id", Value: "email"},
	}, inst.Attributes)

	inst = button.Instantiate(nil, model.DialectHTML)
	assert.Equal(t, []model.Attribute{
		{Name: "class", Value: "bg-blue-600 hover:bg-blue-700 text-white px-4 py-2"},
	}, inst.Attributes)
	assert.Equal(t, "Button", inst.Content)
}

func TestRegisterValidation(t *testing.T) {
	registry := NewComponentRegistry()

	err := registry.Register(&Entry{Name: "Broken"})
	require.Error(t, err)
	assert.True(t, errors.IsValidation(err))
	assert.Contains(t, err.Error(), "template.tag")
	assert.Equal(t, 0, registry.Count())

	require.NoError(t, registry.Register(&Entry{Name: "navBar", Template: Template{Tag: "nav"}}))
	entry, ok := registry.Get("NAVBAR")
	require.True(t, ok)
	assert.Equal(t, "NavBar", entry.Name)
}

func TestWatch(t *testing.T) {
	registry := NewComponentRegistry()
	events := registry.Watch()

	entry := &Entry{Name: "Badge", Template: Template{Tag: "span"}}
	require.NoError(t, registry.Register(entry))
	require.NoError(t, registry.Register(entry))
	registry.Remove("badge")
	registry.Remove("missing")

	expected := []EventType{EventTypeAdded, EventTypeUpdated, EventTypeRemoved}
	for _, want := range expected {
		select {
		case event := <-events:
			assert.Equal(t, want, event.Type)
			assert.Equal(t, "Badge", event.Component.Name)
		case <-time.After(time.Second):
			t.Fatalf("expected %s event", want)
		}
	}

	registry.UnWatch(events)
	_, open := <-events
	assert.False(t, open)
	assert.Equal(t, "removed", EventTypeRemoved.String())
}

func TestLoadYAML(t *testing.T) {
	registry := NewDefaultRegistry()

	n, err := registry.LoadYAML(strings.NewReader(`
components:
  - name: badge
    category: display
    props: [tone, children]
    default_classes: "inline-flex rounded-full px-2 text-{tone}"
    defaults:
      tone: sm
    template:
      tag: span
  - name: Card
    category: components
    default_classes: "rounded-xl border"
    template:
      tag: article
`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 7, registry.Count())

	badge, err := registry.Resolve("Badge")
	require.NoError(t, err)
	assert.Equal(t, "inline-flex rounded-full px-2 text-sm", badge.ClassName(nil))

	card, _ := registry.Get("card")
	assert.Equal(t, "article", card.Template.Tag)
}

func TestLoadYAMLRejectsInvalid(t *testing.T) {
	registry := NewComponentRegistry()

	_, err := registry.LoadYAML(strings.NewReader(`
components:
  - name: Good
    template: {tag: div}
  - name: Bad
`))
	require.Error(t, err)
	assert.Equal(t, 0, registry.Count(), "nothing registered on error")

	_, err = registry.LoadYAML(strings.NewReader("components:\n  - nmae: typo\n"))
	assert.Error(t, err)

	n, err := registry.LoadYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "library.yml")
	require.NoError(t, os.WriteFile(path, []byte("components:\n  - name: Hero\n    template: {tag: section}\n"), 0o600))

	registry := NewComponentRegistry()
	n, err := registry.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = registry.LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
