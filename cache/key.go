package cache

import (
	"encoding/json"
	"reflect"
	"strconv"
	"strings"
)

// Key identifies one cached slice of state: an entity category plus ordered
// scalar discriminators, e.g. ("sdoc-annotations", 5, 9).
// Equality is structural: component-wise over ID, never over String.
type Key struct {
	Category string
	Parts    []any
}

// NewKey builds a key from a category and its discriminators.
func NewKey(category string, parts ...any) Key {
	return Key{Category: category, Parts: append([]any(nil), parts...)}
}

// String returns the readable form used in logs, e.g. "sdoc-annotations::5::9".
// Distinct keys may share a String; use ID for identity.
func (k Key) String() string {
	return defaultSerializer.SerializeKey(k.Category, k.Parts...)
}

// ID returns the identity of the key. Every part is tagged with its kind and
// escaped, so ("memo", 5) and ("memo", "5") differ, and so do ("m", "a::b")
// and ("m", "a", "b"). All integer types share a kind.
func (k Key) ID() string {
	var b strings.Builder
	b.WriteString(escapePart(k.Category))
	for _, part := range k.Parts {
		b.WriteString(KeySeparator)
		b.WriteString(encodePart(part))
	}
	return b.String()
}

// Equal reports whether both keys have the same category and discriminators.
func (k Key) Equal(other Key) bool {
	return k.ID() == other.ID()
}

// IsZero reports whether the key has no category.
func (k Key) IsZero() bool {
	return k.Category == ""
}

// Len returns the number of discriminators.
func (k Key) Len() int {
	return len(k.Parts)
}

// Part returns the i-th discriminator, or nil when out of range.
func (k Key) Part(i int) any {
	if i < 0 || i >= len(k.Parts) {
		return nil
	}
	return k.Parts[i]
}

// With returns a child key extending k with more discriminators.
func (k Key) With(parts ...any) Key {
	combined := make([]any, 0, len(k.Parts)+len(parts))
	combined = append(combined, k.Parts...)
	combined = append(combined, parts...)
	return Key{Category: k.Category, Parts: combined}
}

// HasPrefix reports whether prefix is a component-wise prefix of k.
// Related keys are never invalidated implicitly; this is only used to enumerate them.
func (k Key) HasPrefix(prefix Key) bool {
	if k.Category != prefix.Category || len(prefix.Parts) > len(k.Parts) {
		return false
	}
	for i, part := range prefix.Parts {
		if encodePart(part) != encodePart(k.Parts[i]) {
			return false
		}
	}
	return true
}

// UniqueKeys drops duplicate keys while keeping the order of first appearance.
func UniqueKeys(keys []Key) []Key {
	if len(keys) < 2 {
		return keys
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]Key, 0, len(keys))
	for _, key := range keys {
		id := key.ID()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, key)
	}
	return out
}

// encodePart renders one discriminator as kind=value with ':' and backslash escaped,
// so an unescaped "::" only ever separates parts.
func encodePart(part any) string {
	if part == nil {
		return "n="
	}
	rv := reflect.ValueOf(part)
	for rv.Kind() == reflect.Ptr || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return "n="
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.String:
		return "s=" + escapePart(rv.String())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return "i=" + strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return "i=" + strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return "f=" + strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Bool:
		return "b=" + strconv.FormatBool(rv.Bool())
	}

	if data, err := json.Marshal(rv.Interface()); err == nil {
		return "j=" + escapePart(string(data))
	}
	return "x=" + escapePart(rv.Type().String()+"="+(&defaultKeySerializer{}).serializeValue(rv.Interface()))
}

var partEscaper = strings.NewReplacer(`\`, `\\`, ":", `\:`)

func escapePart(s string) string {
	return partEscaper.Replace(s)
}
