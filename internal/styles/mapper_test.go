package styles

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMap(t *testing.T) {
	tests := []struct {
		property string
		value    string
		expected string
	}{
		{"background-color", "#3b82f6", "bg-blue-500"},
		{"background-color", "#3B82F6", "bg-blue-500"},
		{"color", "#ffffff", "text-white"},
		{"font-size", "24px", "text-2xl"},
		{"padding", "8px", "p-2"},
		{"margin", " 16px ", "m-4"},
		{"border-radius", "50%", "rounded-full"},
		{"width", "50%", "w-1/2"},
		{"Padding", "8px", "p-2"},
		{"background-color", "#123456", "style-background-color-123456"},
		{"padding", "10px", "style-padding-10"},
		{"line-height", "1.5", "style-line-height-1-5"},
		{"opacity", "", "style-opacity-none"},
	}

	for _, tt := range tests {
		t.Run(tt.property+"="+tt.value, func(t *testing.T) {
			assert.Equal(t, tt.expected, Map(tt.property, tt.value))
		})
	}
}

func TestLookup(t *testing.T) {
	token, ok := Lookup("font-size", "12px")
	assert.True(t, ok)
	assert.Equal(t, "text-xs", token)

	_, ok = Lookup("font-size", "13px")
	assert.False(t, ok)

	_, ok = Lookup("z-index", "1")
	assert.False(t, ok)
}

func TestIsSameFamily(t *testing.T) {
	tests := []struct {
		token    string
		property string
		expected bool
	}{
		{"bg-red-500", "background-color", true},
		{"text-white", "background-color", false},
		{"text-white", "color", true},
		{"text-gray-900", "color", true},
		{"text-lg", "color", false},
		{"text-lg", "font-size", true},
		{"text-white", "font-size", false},
		{"p-2", "padding", true},
		{"px-4", "padding", true},
		{"pt-1", "padding", true},
		{"m-2", "padding", false},
		{"mx-auto", "margin", true},
		{"rounded", "border-radius", true},
		{"rounded-lg", "border-radius", true},
		{"roundedish", "border-radius", false},
		{"w-full", "width", true},
		{"style-padding-10", "padding", true},
		{"style-padding-10", "margin", false},
		{"style-line-height-1-5", "line-height", true},
		{"flex", "line-height", false},
		{"style-background-color-123456", "background", false},
		{"style-background-color-123456", "background-color", true},
		{"style-background-url-a-png", "background", true},
		{"style-border-top-width-2", "border-top", false},
		{"style-border-top-2", "border", false},
		{"style-border-2", "border", true},
		{"hover:bg-blue-700", "background-color", false},
	}

	for _, tt := range tests {
		t.Run(tt.token+"/"+tt.property, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSameFamily(tt.token, tt.property))
		})
	}
}

func TestApply(t *testing.T) {
	tests := []struct {
		name     string
		classes  string
		property string
		token    string
		expected string
	}{
		{"append to empty", "", "padding", "p-2", "p-2"},
		{"append keeps order", "p-2", "background-color", "bg-blue-500", "p-2 bg-blue-500"},
		{"replaces family", "bg-red-500 p-2", "background-color", "bg-blue-500", "p-2 bg-blue-500"},
		{"replaces every family member", "px-4 py-2 text-sm", "padding", "p-4", "text-sm p-4"},
		{"no duplicate", "p-2 bg-blue-500", "background-color", "bg-blue-500", "p-2 bg-blue-500"},
		{"collapses whitespace", "  a   b ", "padding", "p-1", "a b p-1"},
		{"shorthand keeps longhand fallback", "style-background-color-123456 style-background-red", "background", "style-background-blue", "style-background-color-123456 style-background-blue"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Apply(tt.classes, tt.property, tt.token))
		})
	}
}

func TestCSSRule(t *testing.T) {
	assert.Equal(t, "background-color: #3b82f6", CSSRule("Background-Color", " #3b82f6"))
}

func TestFamiliesAndTokens(t *testing.T) {
	assert.Equal(t, []string{
		"background-color", "border-radius", "color", "font-size", "margin", "padding", "width",
	}, Families())

	tokens := Tokens("border-radius")
	assert.Len(t, tokens, 5)
	tokens["4px"] = "changed"
	assert.Equal(t, "rounded", Map("border-radius", "4px"), "Tokens returns a copy")
}

func TestCuratedTokensBelongToTheirFamily(t *testing.T) {
	for _, prop := range Families() {
		for value, token := range Tokens(prop) {
			assert.True(t, IsSameFamily(token, prop), "%s=%s -> %s", prop, value, token)
			assert.True(t, IsUtilityClass(token))
		}
	}
	assert.False(t, IsUtilityClass("container"))
}
