package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// KeyScenario represents a group of key cases loaded from fixtures
type KeyScenario struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Cases       []KeyCase `json:"cases"`
}

// KeyCase is a single category/parts combination and its canonical form
type KeyCase struct {
	Category    string `json:"category"`
	Parts       []any  `json:"parts"`
	ExpectedKey string `json:"expectedKey"`
}

type keyFixtures struct {
	Scenarios []KeyScenario `json:"scenarios"`
}

func joinWithSeparator(parts ...string) string {
	return strings.Join(parts, KeySeparator)
}

func TestDefaultKeySerializer_BasicTypes(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name     string
		category string
		parts    []any
		want     string
	}{
		{
			name:     "no parts",
			category: "project-codes",
			parts:    []any{},
			want:     "project-codes",
		},
		{
			name:     "single int",
			category: "annotation",
			parts:    []any{42},
			want:     joinWithSeparator("annotation", "42"),
		},
		{
			name:     "multiple basic types",
			category: "mixed",
			parts:    []any{1, "code", true, 3.14},
			want:     joinWithSeparator("mixed", "1", "code", "true", "3.14"),
		},
		{
			name:     "int64 and uint",
			category: "sdoc-annotations",
			parts:    []any{int64(5), uint(9)},
			want:     joinWithSeparator("sdoc-annotations", "5", "9"),
		},
		{
			name:     "string with separator chars",
			category: "search",
			parts:    []any{"hello:world"},
			want:     joinWithSeparator("search", "hello:world"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey(tt.category, tt.parts...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_NilValues(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{name: "nil interface", parts: []any{nil}, want: joinWithSeparator("k", "nil")},
		{name: "nil pointer", parts: []any{(*int)(nil)}, want: joinWithSeparator("k", "nil")},
		{name: "nil slice", parts: []any{([]int)(nil)}, want: joinWithSeparator("k", "slice:nil")},
		{name: "nil map", parts: []any{(map[string]int)(nil)}, want: joinWithSeparator("k", "map:nil")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("k", tt.parts...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Compound(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	type filter struct {
		Project int
		Tag     string
		secret  string
	}
	value := 42

	tests := []struct {
		name  string
		parts []any
		want  string
	}{
		{name: "empty slice", parts: []any{[]int{}}, want: joinWithSeparator("k", "slice[0]:{}")},
		{name: "int slice", parts: []any{[]int{1, 2, 3}}, want: joinWithSeparator("k", "slice[3]:{1,2,3}")},
		{name: "nested slice", parts: []any{[][]int{{1, 2}, {3}}}, want: joinWithSeparator("k", "slice[2]:{slice[2]:{1,2},slice[1]:{3}}")},
		{name: "array", parts: []any{[2]string{"a", "b"}}, want: joinWithSeparator("k", "array[2]:{a,b}")},
		{name: "map sorted", parts: []any{map[string]int{"z": 1, "a": 2}}, want: joinWithSeparator("k", "map[2]:{a=2,z=1}")},
		{name: "struct exported only", parts: []any{filter{Project: 3, Tag: "x", secret: "s"}}, want: joinWithSeparator("k", "struct:{Project:3,Tag:x}")},
		{name: "pointer dereferenced", parts: []any{&value}, want: joinWithSeparator("k", "42")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := serializer.SerializeKey("k", tt.parts...)
			if got != tt.want {
				t.Errorf("SerializeKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDefaultKeySerializer_Stability(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	parts := []any{1, "hello", []int{1, 2, 3}, map[string]int{"a": 1, "b": 2, "c": 3}}

	first := serializer.SerializeKey("stable", parts...)
	for i := 0; i < 20; i++ {
		if got := serializer.SerializeKey("stable", parts...); got != first {
			t.Fatalf("key serialization should be stable: %v != %v", got, first)
		}
	}
}

func TestDefaultKeySerializer_Fallback(t *testing.T) {
	serializer := NewDefaultKeySerializer()

	key := serializer.SerializeKey("chan", make(chan int))
	if !strings.HasPrefix(key, joinWithSeparator("chan", "fallback:")) {
		t.Errorf("expected fallback prefix for unserializable part, got %v", key)
	}
}

func TestDefaultKeySerializer_Fixtures(t *testing.T) {
	serializer := NewDefaultKeySerializer()
	fixtures := loadKeyFixtures(t)

	for _, scenario := range fixtures.Scenarios {
		t.Run(scenario.Name, func(t *testing.T) {
			for _, tc := range scenario.Cases {
				got := serializer.SerializeKey(tc.Category, tc.Parts...)
				if got != tc.ExpectedKey {
					t.Errorf("SerializeKey(%s, %v) = %v, want %v", tc.Category, tc.Parts, got, tc.ExpectedKey)
				}
			}
		})
	}
}

func loadKeyFixtures(t *testing.T) keyFixtures {
	t.Helper()

	filename := filepath.Join("testdata", "key_scenarios.json")
	data, err := os.ReadFile(filename)
	if err != nil {
		t.Fatalf("failed to read fixture file: %v", err)
	}

	var fixtures keyFixtures
	if err := json.Unmarshal(data, &fixtures); err != nil {
		t.Fatalf("failed to unmarshal fixture data: %v", err)
	}
	return fixtures
}

func BenchmarkDefaultKeySerializer(b *testing.B) {
	serializer := NewDefaultKeySerializer()
	parts := []any{5, 9, []int{1, 2, 3}, map[string]int{"test": 1}}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		serializer.SerializeKey("sdoc-annotations", parts...)
	}
}
