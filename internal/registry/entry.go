package registry

import (
	"regexp"
	"sort"
	"strings"

	"github.com/conneroisu/livecanvas/internal/errors"
	"github.com/conneroisu/livecanvas/internal/model"
)

// Entry describes one component kind.
type Entry struct {
	Name     string   `json:"name" yaml:"name"`
	Category string   `json:"category" yaml:"category"`
	Props    []string `json:"props" yaml:"props"`
	// DefaultClasses may reference props as {name} placeholders.
	DefaultClasses string            `json:"default_classes,omitempty" yaml:"default_classes,omitempty"`
	Variants       map[string]string `json:"variants,omitempty" yaml:"variants,omitempty"`
	Sizes          map[string]string `json:"sizes,omitempty" yaml:"sizes,omitempty"`
	// Defaults fill props the caller leaves out.
	Defaults map[string]string `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Template Template          `json:"template" yaml:"template"`
}

// Template is the element an entry synthesizes.
type Template struct {
	Tag        string              `json:"tag" yaml:"tag"`
	Attributes []TemplateAttribute `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// TemplateAttribute is a static attribute; Value may hold {prop} placeholders.
type TemplateAttribute struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
	Expr  bool   `json:"expr,omitempty" yaml:"expr,omitempty"`
}

// Instance is the element synthesized for one AddComponent request.
type Instance struct {
	Kind       string
	Attributes []model.Attribute
	Content    string
}

// reserved props are consumed by class synthesis or content.
var reserved = map[string]bool{
	"variant":   true,
	"size":      true,
	"className": true,
	"class":     true,
	"children":  true,
}

var placeholder = regexp.MustCompile(`\{[A-Za-z_][A-Za-z0-9_]*\}`)

// Validate checks that an entry can synthesize an element.
func (e *Entry) Validate() error {
	vec := &errors.ValidationErrorCollection{}
	if strings.TrimSpace(e.Name) == "" {
		vec.AddField("name", e.Name, "is required")
	}
	if strings.TrimSpace(e.Template.Tag) == "" {
		vec.AddField("template.tag", e.Template.Tag, "is required")
	}
	for _, attr := range e.Template.Attributes {
		if attr.Name == "" {
			vec.AddField("template.attributes", attr.Value, "attribute name is required")
		}
	}
	if ee := vec.ToEditorError(); ee != nil {
		return ee.WithComponent(e.Name)
	}

	return nil
}

// values merges caller props over the entry defaults.
func (e *Entry) values(props map[string]string) map[string]string {
	values := make(map[string]string, len(e.Defaults)+len(props))
	for k, v := range e.Defaults {
		values[k] = v
	}
	for k, v := range props {
		values[k] = v
	}

	return values
}

// ClassName synthesizes the class list: default classes with placeholders
// filled, then the variant and size classes, then the caller's className.
// Default class tokens whose placeholders stay unresolved are dropped.
func (e *Entry) ClassName(props map[string]string) string {
	values := e.values(props)

	var classes []string
	if e.DefaultClasses != "" {
		for _, token := range strings.Fields(e.DefaultClasses) {
			if filled, ok := fill(token, values); ok {
				classes = append(classes, filled)
			}
		}
	}
	if variant, ok := e.Variants[values["variant"]]; ok {
		classes = append(classes, strings.Fields(variant)...)
	}
	if size, ok := e.Sizes[values["size"]]; ok {
		classes = append(classes, strings.Fields(size)...)
	}
	if custom := firstNonEmpty(props["className"], props["class"]); custom != "" {
		classes = append(classes, strings.Fields(custom)...)
	}

	return strings.Join(classes, " ")
}

// Instantiate builds the element for props in the given dialect. Template
// attributes that resolve to an empty value are omitted, as are expression
// attributes in the html dialect. Props the entry does not declare are
// passed through as plain attributes in sorted order.
func (e *Entry) Instantiate(props map[string]string, dialect model.Dialect) Instance {
	values := e.values(props)
	inst := Instance{
		Kind:    e.Template.Tag,
		Content: strings.TrimSpace(values["children"]),
	}

	if class := e.ClassName(props); class != "" {
		inst.Attributes = append(inst.Attributes, model.Attribute{Name: dialect.ClassAttr(), Value: class})
	}

	used := make(map[string]bool)
	for _, attr := range e.Template.Attributes {
		for _, match := range placeholder.FindAllString(attr.Value, -1) {
			used[match[1:len(match)-1]] = true
		}
		if attr.Expr && dialect == model.DialectHTML {
			continue
		}
		value, ok := fill(attr.Value, values)
		if !ok || value == "" {
			continue
		}
		inst.Attributes = append(inst.Attributes, model.Attribute{Name: attr.Name, Value: value, Expr: attr.Expr})
	}

	declared := make(map[string]bool, len(e.Props))
	for _, p := range e.Props {
		declared[p] = true
	}
	keys := make([]string, 0, len(props))
	for k := range props {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if reserved[k] || declared[k] || used[k] || props[k] == "" {
			continue
		}
		inst.Attributes = append(inst.Attributes, model.Attribute{Name: k, Value: props[k]})
	}

	return inst
}

// fill substitutes {prop} placeholders and reports whether all of them
// had a value.
func fill(s string, values map[string]string) (string, bool) {
	complete := true
	filled := placeholder.ReplaceAllStringFunc(s, func(match string) string {
		if v, ok := values[match[1:len(match)-1]]; ok && v != "" {
			return v
		}
		complete = false
		return match
	})

	return filled, complete
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}

	return ""
}
