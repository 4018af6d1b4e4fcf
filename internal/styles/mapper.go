// Package styles maps CSS property and value pairs onto utility class tokens
// and knows which tokens belong to which property family.
package styles

import (
	"regexp"
	"sort"
	"strings"
)

// curated holds the exact value mappings, keyed by property then by the
// normalized value.
var curated = map[string]map[string]string{
	"background-color": {
		"#ffffff": "bg-white",
		"#000000": "bg-black",
		"#ef4444": "bg-red-500",
		"#3b82f6": "bg-blue-500",
		"#10b981": "bg-green-500",
		"#f59e0b": "bg-yellow-500",
		"#8b5cf6": "bg-purple-500",
	},
	"color": {
		"#ffffff": "text-white",
		"#000000": "text-black",
		"#ef4444": "text-red-500",
		"#3b82f6": "text-blue-500",
		"#10b981": "text-green-500",
	},
	"font-size": {
		"12px": "text-xs",
		"14px": "text-sm",
		"16px": "text-base",
		"18px": "text-lg",
		"20px": "text-xl",
		"24px": "text-2xl",
		"30px": "text-3xl",
	},
	"padding": {
		"4px":  "p-1",
		"8px":  "p-2",
		"12px": "p-3",
		"16px": "p-4",
		"20px": "p-5",
		"24px": "p-6",
	},
	"margin": {
		"4px":  "m-1",
		"8px":  "m-2",
		"12px": "m-3",
		"16px": "m-4",
		"20px": "m-5",
		"24px": "m-6",
	},
	"border-radius": {
		"4px":  "rounded",
		"6px":  "rounded-md",
		"8px":  "rounded-lg",
		"12px": "rounded-xl",
		"50%":  "rounded-full",
	},
	"width": {
		"100%": "w-full",
		"50%":  "w-1/2",
		"auto": "w-auto",
	},
}

// families lists the token prefixes that express each property.
var families = map[string][]string{
	"background-color": {"bg-"},
	"color":            {"text-"},
	"font-size":        {"text-"},
	"padding":          {"p-", "px-", "py-", "pt-", "pb-", "pl-", "pr-"},
	"margin":           {"m-", "mx-", "my-", "mt-", "mb-", "ml-", "mr-"},
	"border-radius":    {"rounded"},
	"width":            {"w-"},
}

// fontSizes are the text- suffixes that mean a size rather than a colour.
var fontSizes = map[string]bool{
	"xs": true, "sm": true, "base": true, "lg": true, "xl": true,
	"2xl": true, "3xl": true, "4xl": true, "5xl": true, "6xl": true,
	"7xl": true, "8xl": true, "9xl": true,
}

// longhands are properties whose names extend a shorter property. Their
// fallback tokens also start with the shorter property's prefix, so they
// must not count as that property's family.
var longhands = []string{
	"background-attachment", "background-clip", "background-color", "background-image",
	"background-origin", "background-position", "background-repeat", "background-size",
	"border-bottom", "border-collapse", "border-color", "border-left", "border-radius",
	"border-right", "border-spacing", "border-style", "border-top", "border-width",
	"border-bottom-color", "border-bottom-style", "border-bottom-width",
	"border-left-color", "border-left-style", "border-left-width",
	"border-right-color", "border-right-style", "border-right-width",
	"border-top-color", "border-top-style", "border-top-width",
	"flex-basis", "flex-direction", "flex-flow", "flex-grow", "flex-shrink", "flex-wrap",
	"font-family", "font-size", "font-style", "font-variant", "font-weight",
	"grid-area", "grid-column", "grid-row", "grid-template",
	"grid-column-end", "grid-column-start", "grid-row-end", "grid-row-start",
	"grid-template-areas", "grid-template-columns", "grid-template-rows",
	"list-style", "list-style-image", "list-style-position", "list-style-type",
	"margin-bottom", "margin-left", "margin-right", "margin-top",
	"outline-color", "outline-offset", "outline-style", "outline-width",
	"overflow-x", "overflow-y",
	"padding-bottom", "padding-left", "padding-right", "padding-top",
	"text-align", "text-decoration", "text-indent", "text-overflow", "text-shadow", "text-transform",
	"transition-delay", "transition-duration", "transition-property", "transition-timing-function",
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

// Map returns the utility token for a property and value. Unknown pairs get
// a deterministic fallback of the form style-<property>-<value>, so Map never
// fails and is a pure function of its inputs.
func Map(property, value string) string {
	prop := normalizeProperty(property)
	val := normalizeValue(value)

	if table, ok := curated[prop]; ok {
		if token, ok := table[val]; ok {
			return token
		}
	}

	return fallback(prop, val)
}

// Lookup reports the curated token for a pair, if there is one.
func Lookup(property, value string) (string, bool) {
	table, ok := curated[normalizeProperty(property)]
	if !ok {
		return "", false
	}
	token, ok := table[normalizeValue(value)]

	return token, ok
}

func fallback(prop, val string) string {
	val = strings.ReplaceAll(val, "#", "")
	val = strings.ReplaceAll(val, "px", "")

	return "style-" + slug(prop) + "-" + slug(val)
}

func slug(s string) string {
	s = slugInvalid.ReplaceAllString(strings.ToLower(s), "-")
	s = strings.Trim(s, "-")
	if s == "" {
		return "none"
	}

	return s
}

func normalizeProperty(property string) string {
	return strings.ToLower(strings.TrimSpace(property))
}

func normalizeValue(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// IsSameFamily reports whether token expresses the given property, meaning
// it has to be removed before a new value for that property is added.
// Fallback tokens belong to the family of the property they were built for.
func IsSameFamily(token, property string) bool {
	prop := normalizeProperty(property)

	if rest, ok := strings.CutPrefix(token, "style-"+slug(prop)+"-"); ok {
		return !ownedByLonghand(prop, rest)
	}

	prefixes, ok := families[prop]
	if !ok {
		return false
	}

	// text- is shared by colour and font size; split on the suffix.
	if prop == "color" || prop == "font-size" {
		if !strings.HasPrefix(token, "text-") {
			return false
		}
		isSize := fontSizes[strings.TrimPrefix(token, "text-")]

		return isSize == (prop == "font-size")
	}

	for _, prefix := range prefixes {
		if prefix == "rounded" {
			if token == "rounded" || strings.HasPrefix(token, "rounded-") {
				return true
			}

			continue
		}
		if strings.HasPrefix(token, prefix) {
			return true
		}
	}

	return false
}

// ownedByLonghand reports whether the remainder of a fallback token built
// for prop actually starts with the rest of a longer property's name.
func ownedByLonghand(prop, rest string) bool {
	for _, long := range longhands {
		suffix, ok := strings.CutPrefix(long, prop+"-")
		if ok && strings.HasPrefix(rest, slug(suffix)+"-") {
			return true
		}
	}

	return false
}

// Apply returns the class list with every token of the property's family
// removed and token appended. The order of the remaining classes is kept.
func Apply(classList, property, token string) string {
	fields := strings.Fields(classList)
	kept := make([]string, 0, len(fields)+1)
	for _, class := range fields {
		if IsSameFamily(class, property) || class == token {
			continue
		}
		kept = append(kept, class)
	}
	kept = append(kept, token)

	return strings.Join(kept, " ")
}

// CSSRule renders the inline equivalent of a property and value.
func CSSRule(property, value string) string {
	return normalizeProperty(property) + ": " + strings.TrimSpace(value)
}

// Families returns the properties that have a curated table, sorted.
func Families() []string {
	props := make([]string, 0, len(families))
	for prop := range families {
		props = append(props, prop)
	}
	sort.Strings(props)

	return props
}

// Tokens returns the curated value to token table for a property.
func Tokens(property string) map[string]string {
	table := curated[normalizeProperty(property)]
	out := make(map[string]string, len(table))
	for value, token := range table {
		out[value] = token
	}

	return out
}

// IsUtilityClass reports whether a class looks like one of the tokens this
// package produces or removes.
func IsUtilityClass(class string) bool {
	if strings.HasPrefix(class, "style-") {
		return true
	}
	for prop := range families {
		if IsSameFamily(class, prop) {
			return true
		}
	}

	return false
}
