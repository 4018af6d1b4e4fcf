package registry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Categories of the built-in library.
const (
	CategoryLayout     = "layout"
	CategoryComponents = "components"
)

// BuiltinLibrary returns fresh copies of the built-in entries.
func BuiltinLibrary() []*Entry {
	panel := Template{Tag: "div"}

	return []*Entry{
		{
			Name:           "Container",
			Category:       CategoryLayout,
			Props:          []string{"className", "children"},
			DefaultClasses: "container mx-auto p-4",
			Template:       panel,
		},
		{
			Name:           "Grid",
			Category:       CategoryLayout,
			Props:          []string{"cols", "gap", "className", "children"},
			DefaultClasses: "grid grid-cols-{cols} gap-{gap}",
			Defaults:       map[string]string{"cols": "2", "gap": "4"},
			Template:       panel,
		},
		{
			Name:           "Flex",
			Category:       CategoryLayout,
			Props:          []string{"direction", "align", "justify", "className", "children"},
			DefaultClasses: "flex flex-{direction} items-{align} justify-{justify}",
			Defaults:       map[string]string{"direction": "row", "align": "center", "justify": "start"},
			Template:       panel,
		},
		{
			Name:     "Button",
			Category: CategoryComponents,
			Props:    []string{"variant", "size", "onClick", "children", "disabled"},
			Variants: map[string]string{
				"primary":   "bg-blue-600 hover:bg-blue-700 text-white",
				"secondary": "bg-gray-200 hover:bg-gray-300 text-gray-900",
				"outline":   "border border-gray-300 hover:bg-gray-50",
			},
			Sizes: map[string]string{
				"sm": "px-3 py-1.5 text-sm",
				"md": "px-4 py-2",
				"lg": "px-6 py-3 text-lg",
			},
			Defaults: map[string]string{
				"variant":  "primary",
				"size":     "md",
				"onClick":  "() => {}",
				"disabled": "false",
				"children": "Button",
			},
			Template: Template{
				Tag: "button",
				Attributes: []TemplateAttribute{
					{Name: "onClick", Value: "{onClick}", Expr: true},
					{Name: "disabled", Value: "{disabled}", Expr: true},
				},
			},
		},
		{
			Name:           "Input",
			Category:       CategoryComponents,
			Props:          []string{"type", "placeholder", "value", "onChange", "className"},
			DefaultClasses: "border border-gray-300 rounded-md px-3 py-2 focus:outline-none focus:ring-2 focus:ring-blue-500",
			Defaults: map[string]string{
				"type":     "text",
				"onChange": "() => {}",
			},
			Template: Template{
				Tag: "input",
				Attributes: []TemplateAttribute{
					{Name: "type", Value: "{type}"},
					{Name: "placeholder", Value: "{placeholder}"},
					{Name: "value", Value: "{value}", Expr: true},
					{Name: "onChange", Value: "{onChange}", Expr: true},
				},
			},
		},
		{
			Name:           "Card",
			Category:       CategoryComponents,
			Props:          []string{"className", "children"},
			DefaultClasses: "bg-white rounded-lg shadow-md p-6",
			Template:       panel,
		},
	}
}

// LibraryFile is the on-disk format of extra registry entries.
type LibraryFile struct {
	Components []*Entry `yaml:"components"`
}

// LoadYAML registers every entry in a YAML library document and returns
// how many were loaded. Nothing is registered when any entry is invalid.
func (r *ComponentRegistry) LoadYAML(reader io.Reader) (int, error) {
	var file LibraryFile
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, fmt.Errorf("decode component library: %w", err)
	}

	for i, entry := range file.Components {
		if entry == nil {
			return 0, fmt.Errorf("component library entry %d is empty", i)
		}
		if err := entry.Validate(); err != nil {
			return 0, fmt.Errorf("component library entry %d: %w", i, err)
		}
	}
	for _, entry := range file.Components {
		if err := r.Register(entry); err != nil {
			return 0, err
		}
	}

	return len(file.Components), nil
}

// LoadFile registers the entries of a YAML library file.
func (r *ComponentRegistry) LoadFile(path string) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open component library: %w", err)
	}
	defer f.Close()

	return r.LoadYAML(f)
}
