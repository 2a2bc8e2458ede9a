package workbench_test

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keys"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
	"github.com/goliatone/go-query-cache/workbench"
)

type keyCase struct {
	Name         string          `json:"name"`
	Category     string          `json:"category"`
	Op           string          `json:"op"`
	Entity       json.RawMessage `json:"entity"`
	Affected     []string        `json:"affected"`
	PostResponse []string        `json:"post_response"`
	Invalidated  []string        `json:"invalidated"`
}

func keyStrings(keys []cache.Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k.String())
	}
	return out
}

func composed[E any](t *testing.T, c *keys.Composer[E], raw json.RawMessage, op keys.Operation) (affected, post, invalidated []string) {
	t.Helper()
	var e E
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("failed to decode entity: %v", err)
	}
	return keyStrings(c.AffectedKeys(e, op)), keyStrings(c.PostResponseKeys(e, op)), keyStrings(c.InvalidatedKeys(e, op))
}

func TestComposers_Fixtures(t *testing.T) {
	var fixture struct {
		Cases []keyCase `json:"cases"`
	}
	testsupport.LoadFixtureJSON(t, testsupport.FixturePath("affected_keys.json"), &fixture)
	if len(fixture.Cases) == 0 {
		t.Fatal("fixture has no cases")
	}

	for _, tc := range fixture.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			op, err := keys.ParseOperation(tc.Op)
			if err != nil {
				t.Fatal(err)
			}

			var affected, post, invalidated []string
			switch tc.Category {
			case workbench.CategoryAnnotation:
				affected, post, invalidated = composed(t, workbench.Annotations, tc.Entity, op)
			case workbench.CategoryCode:
				affected, post, invalidated = composed(t, workbench.Codes, tc.Entity, op)
			case workbench.CategoryMemo:
				affected, post, invalidated = composed(t, workbench.Memos, tc.Entity, op)
			default:
				t.Fatalf("unknown category %s", tc.Category)
			}

			if !reflect.DeepEqual(affected, tc.Affected) {
				t.Errorf("affected: expected %v, got %v", tc.Affected, affected)
			}
			if !reflect.DeepEqual(post, tc.PostResponse) {
				t.Errorf("post response: expected %v, got %v", tc.PostResponse, post)
			}
			if !reflect.DeepEqual(invalidated, tc.Invalidated) {
				t.Errorf("invalidated: expected %v, got %v", tc.Invalidated, invalidated)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := workbench.Registry()

	want := []string{workbench.CategoryAnnotation, workbench.CategoryCode, workbench.CategoryMemo}
	if got := r.Categories(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected categories %v, got %v", want, got)
	}

	got, err := r.AffectedKeys(workbench.CategoryCode, &workbench.Code{ID: 7, ProjectID: 3}, keys.OpUpdate)
	if err != nil {
		t.Fatalf("AffectedKeys() failed: %v", err)
	}
	if want := []string{"code::7", "project-codes::3"}; !reflect.DeepEqual(keyStrings(got), want) {
		t.Errorf("expected %v, got %v", want, keyStrings(got))
	}

	if _, err := r.AffectedKeys(workbench.CategoryCode, workbench.Memo{}, keys.OpUpdate); !errors.Is(err, keys.ErrEntityType) {
		t.Errorf("expected ErrEntityType, got %v", err)
	}
	if _, err := r.AffectedKeys("project", nil, keys.OpUpdate); !errors.Is(err, keys.ErrUnknownCategory) {
		t.Errorf("expected ErrUnknownCategory, got %v", err)
	}
}

func TestAnnotations_GroupBulkResult(t *testing.T) {
	batch := []workbench.Annotation{
		{ID: 1, ProjectID: 3, SdocID: 5, UserID: 9},
		{ID: 2, ProjectID: 3, SdocID: 6, UserID: 9},
		{ID: 3, ProjectID: 3, SdocID: 5, UserID: 9},
	}

	groups := workbench.Annotations.Group(batch, keys.OpUpdate)
	got := make(map[string]int, len(groups))
	order := make([]string, 0, len(groups))
	for _, g := range groups {
		got[g.Key.String()] = len(g.Entities)
		order = append(order, g.Key.String())
	}

	want := map[string]int{
		"annotation::1":          1,
		"sdoc-annotations::5::9": 2,
		"annotation::2":          1,
		"sdoc-annotations::6::9": 1,
		"annotation::3":          1,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected groups %v, got %v", want, got)
	}
	if order[0] != "annotation::1" || order[1] != "sdoc-annotations::5::9" {
		t.Errorf("groups must keep order of first appearance, got %v", order)
	}
	if stale := keyStrings(workbench.Annotations.InvalidatedKeysOf(batch, keys.OpUpdate)); !reflect.DeepEqual(stale, []string{"annotation-table::3"}) {
		t.Errorf("expected one table key, got %v", stale)
	}
}
