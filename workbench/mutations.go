package workbench

import (
	"context"
	"fmt"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keys"
	"github.com/goliatone/go-query-cache/mutation"
)

// Mutations holds every workbench write, bound to one coordinator.
type Mutations struct {
	CreateAnnotation      *mutation.Mutation[Annotation, Annotation]
	UpdateAnnotation      *mutation.Mutation[Annotation, Annotation]
	DeleteAnnotation      *mutation.Mutation[Annotation, Annotation]
	UpdateAnnotationCodes *mutation.Bulk[CodeAssignment, Annotation, int]
	CreateCode            *mutation.Mutation[Code, Code]
	UpdateCode            *mutation.Mutation[Code, Code]
	DeleteCode            *mutation.Mutation[Code, Code]
	CreateMemo            *mutation.Mutation[Memo, Memo]
}

// NewMutations declares the workbench writes against api.
func NewMutations(c *mutation.Coordinator, api Writer) *Mutations {
	return &Mutations{
		CreateAnnotation:      mutation.New(c, createAnnotation(api)),
		UpdateAnnotation:      mutation.New(c, updateAnnotation(api)),
		DeleteAnnotation:      mutation.New(c, deleteAnnotation(api)),
		UpdateAnnotationCodes: mutation.NewBulk(c, updateAnnotationCodes(api)),
		CreateCode:            mutation.New(c, createCode(api)),
		UpdateCode:            mutation.New(c, updateCode(api)),
		DeleteCode:            mutation.New(c, deleteCode(c.Store(), api)),
		CreateMemo:            mutation.New(c, createMemo(api)),
	}
}

func onList[E any](prev any, fn func([]E) []E) any {
	if list, ok := prev.([]E); ok {
		return fn(list)
	}
	return prev
}

func onMap[E any](prev any, fn func(map[int]E) map[int]E) any {
	if m, ok := prev.(map[int]E); ok {
		return fn(m)
	}
	return prev
}

func failure(action string, err error) string {
	return fmt.Sprintf("Could not %s: %v", action, err)
}

func createAnnotation(api Writer) mutation.Descriptor[Annotation, Annotation] {
	return mutation.Descriptor[Annotation, Annotation]{
		Name:   "create-annotation",
		Remote: api.CreateAnnotation,
		Keys: func(in Annotation) []cache.Key {
			return Annotations.AffectedKeys(in, keys.OpCreate)
		},
		Optimistic: func(_ cache.Key, in Annotation, prev any) any {
			placeholder := in
			placeholder.ID = mutation.SentinelID
			return onList(prev, func(list []Annotation) []Annotation {
				return mutation.InsertPlaceholder(list, placeholder, AnnotationID)
			})
		},
		Reconcile: func(key cache.Key, _ Annotation, out Annotation, prev any, _ bool) any {
			if key.Category == CategoryAnnotation {
				return out
			}
			return onList(prev, func(list []Annotation) []Annotation {
				return mutation.ReplacePlaceholder(list, out, AnnotationID)
			})
		},
		Confirmed: func(_ Annotation, out Annotation) []cache.Key {
			return Annotations.PostResponseKeys(out, keys.OpCreate)
		},
		Invalidate: func(_ Annotation, out Annotation) []cache.Key {
			return Annotations.InvalidatedKeys(out, keys.OpCreate)
		},
		Message: func(_ Annotation, out Annotation, err error) string {
			if err != nil {
				return failure("create annotation", err)
			}
			return fmt.Sprintf("Created annotation %d", out.ID)
		},
	}
}

// replaceAnnotation puts a where its previous version was cached.
func replaceAnnotation(key cache.Key, a Annotation, prev any) any {
	if key.Category == CategoryAnnotation {
		return a
	}
	return onList(prev, func(list []Annotation) []Annotation {
		return mutation.ReplaceByID(list, a, AnnotationID)
	})
}

func updateAnnotation(api Writer) mutation.Descriptor[Annotation, Annotation] {
	return mutation.Descriptor[Annotation, Annotation]{
		Name:   "update-annotation",
		Remote: api.UpdateAnnotation,
		Keys: func(in Annotation) []cache.Key {
			return Annotations.AffectedKeys(in, keys.OpUpdate)
		},
		Optimistic: func(key cache.Key, in Annotation, prev any) any {
			return replaceAnnotation(key, in, prev)
		},
		Reconcile: func(key cache.Key, _ Annotation, out Annotation, prev any, _ bool) any {
			return replaceAnnotation(key, out, prev)
		},
		Invalidate: func(_ Annotation, out Annotation) []cache.Key {
			return Annotations.InvalidatedKeys(out, keys.OpUpdate)
		},
		Message: func(_ Annotation, out Annotation, err error) string {
			if err != nil {
				return failure("update annotation", err)
			}
			return fmt.Sprintf("Updated annotation %d", out.ID)
		},
	}
}

func deleteAnnotation(api Writer) mutation.Descriptor[Annotation, Annotation] {
	return mutation.Descriptor[Annotation, Annotation]{
		Name: "delete-annotation",
		Remote: func(ctx context.Context, in Annotation) (Annotation, error) {
			return api.DeleteAnnotation(ctx, in.ID)
		},
		Keys: func(in Annotation) []cache.Key {
			return Annotations.AffectedKeys(in, keys.OpDelete)
		},
		Optimistic: func(key cache.Key, in Annotation, prev any) any {
			if key.Category == CategoryAnnotation {
				return prev
			}
			return onList(prev, func(list []Annotation) []Annotation {
				return mutation.RemoveByID(list, in.ID, AnnotationID)
			})
		},
		Remove: func(in Annotation, _ Annotation) []cache.Key {
			return []cache.Key{AnnotationKey(in.ID)}
		},
		Invalidate: func(in Annotation, _ Annotation) []cache.Key {
			return Annotations.InvalidatedKeys(in, keys.OpDelete)
		},
		Message: func(in Annotation, _ Annotation, err error) string {
			if err != nil {
				return failure("delete annotation", err)
			}
			return fmt.Sprintf("Deleted annotation %d", in.ID)
		},
	}
}

func updateAnnotationCodes(api Writer) mutation.BulkDescriptor[CodeAssignment, Annotation, int] {
	return mutation.BulkDescriptor[CodeAssignment, Annotation, int]{
		Name:     "update-annotation-codes",
		Remote:   api.UpdateAnnotationCodes,
		Composer: Annotations,
		Op:       keys.OpUpdate,
		ID:       AnnotationID,
		Message: func(in CodeAssignment, out []Annotation, err error) string {
			if err != nil {
				return failure("update annotation codes", err)
			}
			return fmt.Sprintf("Updated the code of %d annotations", len(out))
		},
	}
}

func createCode(api Writer) mutation.Descriptor[Code, Code] {
	return mutation.Descriptor[Code, Code]{
		Name:   "create-code",
		Remote: api.CreateCode,
		Keys: func(in Code) []cache.Key {
			return Codes.AffectedKeys(in, keys.OpCreate)
		},
		Optimistic: func(_ cache.Key, in Code, prev any) any {
			placeholder := in
			placeholder.ID = mutation.SentinelID
			return onMap(prev, func(m map[int]Code) map[int]Code {
				return mutation.MergeMap(m, []Code{placeholder}, CodeID)
			})
		},
		Reconcile: func(key cache.Key, _ Code, out Code, prev any, _ bool) any {
			if key.Category == CategoryCode {
				return out
			}
			return onMap(prev, func(m map[int]Code) map[int]Code {
				return mutation.MergeMap(mutation.DeleteFromMap(m, mutation.SentinelID), []Code{out}, CodeID)
			})
		},
		Confirmed: func(_ Code, out Code) []cache.Key {
			return Codes.PostResponseKeys(out, keys.OpCreate)
		},
		Message: func(_ Code, out Code, err error) string {
			if err != nil {
				return failure("create code", err)
			}
			return fmt.Sprintf("Created code %s", out.Name)
		},
	}
}

func replaceCode(key cache.Key, c Code, prev any) any {
	if key.Category == CategoryCode {
		return c
	}
	return onMap(prev, func(m map[int]Code) map[int]Code {
		return mutation.MergeMap(m, []Code{c}, CodeID)
	})
}

func updateCode(api Writer) mutation.Descriptor[Code, Code] {
	return mutation.Descriptor[Code, Code]{
		Name:   "update-code",
		Remote: api.UpdateCode,
		Keys: func(in Code) []cache.Key {
			return Codes.AffectedKeys(in, keys.OpUpdate)
		},
		Optimistic: func(key cache.Key, in Code, prev any) any {
			return replaceCode(key, in, prev)
		},
		Reconcile: func(key cache.Key, _ Code, out Code, prev any, _ bool) any {
			return replaceCode(key, out, prev)
		},
		Message: func(_ Code, out Code, err error) string {
			if err != nil {
				return failure("update code", err)
			}
			return fmt.Sprintf("Updated code %s", out.Name)
		},
	}
}

// deleteCode also marks every cached annotation list stale: the server
// unassigns the deleted code from its annotations.
func deleteCode(store *cache.Store, api Writer) mutation.Descriptor[Code, Code] {
	return mutation.Descriptor[Code, Code]{
		Name: "delete-code",
		Remote: func(ctx context.Context, in Code) (Code, error) {
			return api.DeleteCode(ctx, in.ID)
		},
		Keys: func(in Code) []cache.Key {
			return Codes.AffectedKeys(in, keys.OpDelete)
		},
		Optimistic: func(key cache.Key, in Code, prev any) any {
			if key.Category == CategoryCode {
				return prev
			}
			return onMap(prev, func(m map[int]Code) map[int]Code {
				return mutation.DeleteFromMap(m, in.ID)
			})
		},
		Remove: func(in Code, _ Code) []cache.Key {
			return []cache.Key{CodeKey(in.ID)}
		},
		Invalidate: func(in Code, _ Code) []cache.Key {
			stale := []cache.Key{AnnotationTableKey(in.ProjectID)}
			return append(stale, store.Related(cache.NewKey(CategorySdocAnnotations))...)
		},
		Message: func(in Code, _ Code, err error) string {
			if err != nil {
				return failure("delete code", err)
			}
			return fmt.Sprintf("Deleted code %s", in.Name)
		},
	}
}

func createMemo(api Writer) mutation.Descriptor[Memo, Memo] {
	return mutation.Descriptor[Memo, Memo]{
		Name:   "create-memo",
		Remote: api.CreateMemo,
		Keys: func(in Memo) []cache.Key {
			return Memos.AffectedKeys(in, keys.OpCreate)
		},
		Optimistic: func(_ cache.Key, in Memo, prev any) any {
			placeholder := in
			placeholder.ID = mutation.SentinelID
			return onList(prev, func(list []Memo) []Memo {
				return mutation.InsertPlaceholder(list, placeholder, MemoID)
			})
		},
		Reconcile: func(key cache.Key, _ Memo, out Memo, prev any, _ bool) any {
			if key.Category != CategoryObjectMemos {
				return out
			}
			return onList(prev, func(list []Memo) []Memo {
				return mutation.ReplacePlaceholder(list, out, MemoID)
			})
		},
		Confirmed: func(_ Memo, out Memo) []cache.Key {
			return Memos.PostResponseKeys(out, keys.OpCreate)
		},
		Message: func(_ Memo, out Memo, err error) string {
			if err != nil {
				return failure("create memo", err)
			}
			return fmt.Sprintf("Created memo %q", out.Title)
		},
	}
}
