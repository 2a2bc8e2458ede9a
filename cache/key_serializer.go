package cache

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
const KeySeparator = "::"

// KeySerializer turns a key category and its discriminators into a canonical string.
// Two keys are equal exactly when their serialized forms are equal.
type KeySerializer interface {
	SerializeKey(category string, parts ...any) string
}

// defaultKeySerializer implements KeySerializer for scalar discriminators,
// with deterministic handling of slices, maps and structs for compound ones.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

var defaultSerializer = NewDefaultKeySerializer()

// SerializeKey joins the category and every serialized part with KeySeparator.
func (s *defaultKeySerializer) SerializeKey(category string, parts ...any) string {
	if len(parts) == 0 {
		return category
	}

	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, category)
	for _, part := range parts {
		segments = append(segments, s.serializeValue(part))
	}

	return strings.Join(segments, KeySeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	switch tv := v.(type) {
	case nil:
		return "nil"
	case string:
		return tv
	case int:
		return strconv.Itoa(tv)
	case int64:
		return strconv.FormatInt(tv, 10)
	case int32:
		return strconv.FormatInt(int64(tv), 10)
	case uint:
		return strconv.FormatUint(uint64(tv), 10)
	case uint64:
		return strconv.FormatUint(tv, 10)
	case bool:
		return strconv.FormatBool(tv)
	case fmt.Stringer:
		return tv.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return "nil"
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice:
		if rv.IsNil() {
			return "slice:nil"
		}
		return "slice" + s.serializeSequence(rv)
	case reflect.Array:
		return "array" + s.serializeSequence(rv)
	case reflect.Map:
		if rv.IsNil() {
			return "map:nil"
		}
		return s.serializeMap(rv)
	case reflect.Struct:
		return s.serializeStruct(rv)
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.String:
		return fmt.Sprintf("%v", v)
	}

	return s.jsonFallback(v)
}

// serializeSequence renders slices and arrays as [n]:{a,b,c}.
func (s *defaultKeySerializer) serializeSequence(rv reflect.Value) string {
	n := rv.Len()
	items := make([]string, n)
	for i := 0; i < n; i++ {
		items[i] = s.serializeValue(rv.Index(i).Interface())
	}
	return fmt.Sprintf("[%d]:{%s}", n, strings.Join(items, ","))
}

// serializeMap sorts pairs by serialized key so map iteration order never leaks into keys.
func (s *defaultKeySerializer) serializeMap(rv reflect.Value) string {
	pairs := make([]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		k := s.serializeValue(iter.Key().Interface())
		v := s.serializeValue(iter.Value().Interface())
		pairs = append(pairs, k+"="+v)
	}
	sort.Strings(pairs)
	return fmt.Sprintf("map[%d]:{%s}", len(pairs), strings.Join(pairs, ","))
}

// serializeStruct uses exported fields only.
func (s *defaultKeySerializer) serializeStruct(rv reflect.Value) string {
	rt := rv.Type()
	fields := make([]string, 0, rv.NumField())
	for i := 0; i < rv.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		fields = append(fields, field.Name+":"+s.serializeValue(rv.Field(i).Interface()))
	}
	return fmt.Sprintf("struct:{%s}", strings.Join(fields, ","))
}

func (s *defaultKeySerializer) jsonFallback(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "fallback:" + reflect.TypeOf(v).String()
	}
	return "json:" + string(data)
}
