package mutation

import (
	"reflect"
	"testing"
)

type item struct {
	ID   int
	Sdoc int
	User int
	Text string
}

func itemID(i item) int { return i.ID }

func ids(list []item) []int {
	out := make([]int, len(list))
	for i, e := range list {
		out[i] = e.ID
	}
	return out
}

func TestInsertPlaceholder_ReplacesInsteadOfDuplicating(t *testing.T) {
	list := []item{{ID: 1}, {ID: 2}}

	once := InsertPlaceholder(list, item{ID: SentinelID, Text: "first"}, itemID)
	twice := InsertPlaceholder(once, item{ID: SentinelID, Text: "second"}, itemID)

	if got := ids(twice); !reflect.DeepEqual(got, []int{1, 2, -1}) {
		t.Fatalf("expected [1 2 -1], got %v", got)
	}
	if twice[2].Text != "second" {
		t.Errorf("expected the newer placeholder to win, got %q", twice[2].Text)
	}
	if len(list) != 2 {
		t.Error("input list must not be modified")
	}
}

func TestReplacePlaceholder(t *testing.T) {
	tests := []struct {
		name string
		list []item
		want []int
	}{
		{name: "placeholder swapped in place", list: []item{{ID: 1}, {ID: SentinelID}, {ID: 2}}, want: []int{1, 42, 2}},
		{name: "refetch already brought entity", list: []item{{ID: 1}, {ID: 42}, {ID: SentinelID}}, want: []int{1, 42}},
		{name: "no placeholder appends", list: []item{{ID: 1}}, want: []int{1, 42}},
		{name: "empty list", list: nil, want: []int{42}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ReplacePlaceholder(tt.list, item{ID: 42}, itemID)
			if !reflect.DeepEqual(ids(got), tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids(got))
			}
		})
	}
}

func TestReplaceByID(t *testing.T) {
	list := []item{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}}

	got := ReplaceByID(list, item{ID: 2, Text: "b2"}, itemID)
	if got[1].Text != "b2" || list[1].Text != "b" {
		t.Errorf("expected a replaced copy, got %+v (input %+v)", got, list)
	}

	unchanged := ReplaceByID(list, item{ID: 9}, itemID)
	if !reflect.DeepEqual(unchanged, list) {
		t.Errorf("expected list unchanged for unknown id, got %+v", unchanged)
	}
}

func TestRemoveByID(t *testing.T) {
	list := []item{{ID: 1}, {ID: 2}, {ID: 1}}
	if got := ids(RemoveByID(list, 1, itemID)); !reflect.DeepEqual(got, []int{2}) {
		t.Errorf("expected [2], got %v", got)
	}
	if got := ids(RemovePlaceholder([]item{{ID: SentinelID}, {ID: 3}}, itemID)); !reflect.DeepEqual(got, []int{3}) {
		t.Errorf("expected [3], got %v", got)
	}
}

func TestMergeByID(t *testing.T) {
	list := []item{{ID: 1, Text: "a"}, {ID: 2, Text: "b"}, {ID: 3, Text: "c"}}
	updates := []item{{ID: 4, Text: "d"}, {ID: 2, Text: "B"}, {ID: 4, Text: "D"}}

	once := MergeByID(list, updates, itemID)
	twice := MergeByID(once, updates, itemID)

	want := []item{{ID: 1, Text: "a"}, {ID: 2, Text: "B"}, {ID: 3, Text: "c"}, {ID: 4, Text: "D"}}
	if !reflect.DeepEqual(once, want) {
		t.Errorf("expected %+v, got %+v", want, once)
	}
	if !reflect.DeepEqual(twice, once) {
		t.Errorf("expected merge to be idempotent, got %+v then %+v", once, twice)
	}
	if list[1].Text != "b" {
		t.Error("input list must not be modified")
	}
}

func TestMergeByID_OrderInsensitive(t *testing.T) {
	list := []item{{ID: 1}, {ID: 2}}
	a := MergeByID(list, []item{{ID: 1, Text: "x"}, {ID: 2, Text: "y"}}, itemID)
	b := MergeByID(list, []item{{ID: 2, Text: "y"}, {ID: 1, Text: "x"}}, itemID)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("expected the same list for reordered updates, got %+v and %+v", a, b)
	}
}

func TestMergeMap(t *testing.T) {
	m := map[int]item{1: {ID: 1, Text: "a"}}

	got := MergeMap(m, []item{{ID: 1, Text: "A"}, {ID: 2, Text: "b"}}, itemID)
	if len(got) != 2 || got[1].Text != "A" {
		t.Errorf("unexpected merge result %+v", got)
	}
	if m[1].Text != "a" || len(m) != 1 {
		t.Error("input map must not be modified")
	}

	pruned := DeleteFromMap(got, 1)
	if _, ok := pruned[1]; ok || len(got) != 2 {
		t.Errorf("expected a pruned copy, got %+v (input %+v)", pruned, got)
	}
}
