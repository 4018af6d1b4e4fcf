//go:build property
// +build property

package styles

import (
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestMapProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("map is total and non-empty", prop.ForAll(
		func(property, value string) bool {
			return Map(property, value) != ""
		},
		gen.AnyString(),
		gen.AnyString(),
	))

	properties.Property("map is deterministic", prop.ForAll(
		func(property, value string) bool {
			return Map(property, value) == Map(property, value)
		},
		gen.OneConstOf("background-color", "color", "padding", "margin", "line-height"),
		gen.AnyString(),
	))

	properties.Property("tokens contain no whitespace", prop.ForAll(
		func(property, value string) bool {
			return !strings.ContainsAny(Map(property, value), " \t\n")
		},
		gen.AlphaString(),
		gen.AnyString(),
	))

	properties.Property("mapped token is in the property family", prop.ForAll(
		func(property, value string) bool {
			return IsSameFamily(Map(property, value), property)
		},
		gen.OneConstOf("background-color", "color", "font-size", "padding", "margin", "border-radius", "width", "z-index"),
		gen.OneConstOf("#3b82f6", "#ffffff", "8px", "12px", "50%", "auto", "3", "1.5rem"),
	))

	properties.Property("apply keeps exactly one family token", prop.ForAll(
		func(classes []string, value string) bool {
			out := Apply(strings.Join(classes, " "), "padding", Map("padding", value))
			count := 0
			for _, class := range strings.Fields(out) {
				if IsSameFamily(class, "padding") {
					count++
				}
			}
			return count == 1
		},
		gen.SliceOf(gen.OneConstOf("p-2", "px-4", "bg-white", "flex", "m-1", "style-padding-7")),
		gen.OneConstOf("4px", "8px", "10px", "2rem"),
	))

	properties.TestingRun(t)
}
