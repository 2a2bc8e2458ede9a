package cache

import (
	"reflect"
	"strings"
	"unicode"
)

// CategoryOf derives a key category from the Go type name of T,
// e.g. SourceDocument -> "source-document". Pointer and generic decorations are stripped.
func CategoryOf[T any]() string {
	rt := reflect.TypeOf((*T)(nil)).Elem()
	for rt.Kind() == reflect.Ptr || rt.Kind() == reflect.Slice {
		rt = rt.Elem()
	}
	name := rt.Name()
	if i := strings.IndexByte(name, '['); i >= 0 {
		name = name[:i]
	}
	return toKebab(name)
}

// toKebab converts s to kebab-case using ASCII-aware rules. Punctuation collapses
// into a single dash so reflected names never leak separators into keys.
func toKebab(s string) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)
	lastDash := false

	dash := func() {
		if !lastDash && b.Len() > 0 {
			b.WriteByte('-')
			lastDash = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					dash()
				}
			}
			b.WriteRune(unicode.ToLower(r))
			lastDash = false
		case unicode.IsLower(r), unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			dash()
		}
	}

	return strings.Trim(b.String(), "-")
}
