package mutation

// SentinelID marks an optimistic placeholder. Server ids are always positive,
// so it can never collide with one.
const SentinelID = -1

// Integer is the set of id types placeholders can be used with.
type Integer interface {
	~int | ~int32 | ~int64
}

// The helpers below never modify their input. Snapshots share the previous
// value of a key, so an in-place edit would corrupt rollback.

// InsertPlaceholder appends placeholder to list, replacing an existing
// placeholder instead of adding a second one.
func InsertPlaceholder[E any, ID Integer](list []E, placeholder E, id func(E) ID) []E {
	out := make([]E, 0, len(list)+1)
	replaced := false
	for _, e := range list {
		if id(e) == ID(SentinelID) {
			if !replaced {
				out = append(out, placeholder)
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, placeholder)
	}
	return out
}

// ReplacePlaceholder swaps the placeholder in list for the authoritative entity.
// If a refetch already brought the entity in, the placeholder is dropped and the
// existing copy replaced, so the list holds exactly one entity with that id.
// Without any placeholder the entity is upserted.
func ReplacePlaceholder[E any, ID Integer](list []E, real E, id func(E) ID) []E {
	target := id(real)
	out := make([]E, 0, len(list)+1)
	placed := false
	for _, e := range list {
		switch id(e) {
		case ID(SentinelID), target:
			if !placed {
				out = append(out, real)
				placed = true
			}
		default:
			out = append(out, e)
		}
	}
	if !placed {
		out = append(out, real)
	}
	return out
}

// RemovePlaceholder drops every placeholder from list.
func RemovePlaceholder[E any, ID Integer](list []E, id func(E) ID) []E {
	return RemoveByID(list, ID(SentinelID), id)
}

// ReplaceByID replaces the entity that has the same id as e. list is returned
// unchanged in content when no entity matches.
func ReplaceByID[E any, ID comparable](list []E, e E, id func(E) ID) []E {
	target := id(e)
	out := make([]E, len(list))
	for i, cur := range list {
		if id(cur) == target {
			out[i] = e
			continue
		}
		out[i] = cur
	}
	return out
}

// UpsertByID replaces the matching entity or appends e.
func UpsertByID[E any, ID comparable](list []E, e E, id func(E) ID) []E {
	return MergeByID(list, []E{e}, id)
}

// RemoveByID drops every entity whose id is target.
func RemoveByID[E any, ID comparable](list []E, target ID, id func(E) ID) []E {
	out := make([]E, 0, len(list))
	for _, e := range list {
		if id(e) != target {
			out = append(out, e)
		}
	}
	return out
}

// MergeByID overlays updates onto list by id. Existing entities keep their
// position, new ones are appended in update order, and duplicate ids collapse
// to one. Merging the same updates twice yields the same list as merging once.
func MergeByID[E any, ID comparable](list []E, updates []E, id func(E) ID) []E {
	index := make(map[ID]int, len(list)+len(updates))
	out := make([]E, 0, len(list)+len(updates))
	for _, e := range list {
		k := id(e)
		if i, ok := index[k]; ok {
			out[i] = e
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	for _, e := range updates {
		k := id(e)
		if i, ok := index[k]; ok {
			out[i] = e
			continue
		}
		index[k] = len(out)
		out = append(out, e)
	}
	return out
}

// MergeMap overlays updates onto a derived id map and returns a new map.
func MergeMap[E any, ID comparable](m map[ID]E, updates []E, id func(E) ID) map[ID]E {
	out := make(map[ID]E, len(m)+len(updates))
	for k, v := range m {
		out[k] = v
	}
	for _, e := range updates {
		out[id(e)] = e
	}
	return out
}

// DeleteFromMap returns a copy of m without the given ids.
func DeleteFromMap[E any, ID comparable](m map[ID]E, ids ...ID) map[ID]E {
	out := make(map[ID]E, len(m))
	for k, v := range m {
		out[k] = v
	}
	for _, k := range ids {
		delete(out, k)
	}
	return out
}
