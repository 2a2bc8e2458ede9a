package workbench

import (
	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/keys"
)

// Key categories of the workbench.
const (
	CategoryAnnotation      = "annotation"
	CategorySdocAnnotations = "sdoc-annotations"
	CategoryAnnotationTable = "annotation-table"
	CategoryCode            = "code"
	CategoryProjectCodes    = "project-codes"
	CategoryMemo            = "memo"
	CategoryObjectMemos     = "object-memos"
	CategoryUserObjectMemo  = "user-object-memo"
	CategorySdocsAwaiting   = "sdocs-awaiting"
	CategoryProjectSdocs    = "project-sdocs"
	CategorySearchIndex     = "search-index"
)

// Categories lists every category RegisterFetchers binds.
func Categories() []string {
	return []string{
		CategoryAnnotation,
		CategorySdocAnnotations,
		CategoryAnnotationTable,
		CategoryCode,
		CategoryProjectCodes,
		CategoryMemo,
		CategoryObjectMemos,
		CategoryUserObjectMemo,
		CategorySdocsAwaiting,
		CategoryProjectSdocs,
		CategorySearchIndex,
	}
}

func AnnotationKey(id int) cache.Key { return cache.NewKey(CategoryAnnotation, id) }

func SdocAnnotationsKey(sdocID, userID int) cache.Key {
	return cache.NewKey(CategorySdocAnnotations, sdocID, userID)
}

func AnnotationTableKey(projectID int) cache.Key {
	return cache.NewKey(CategoryAnnotationTable, projectID)
}

func CodeKey(id int) cache.Key { return cache.NewKey(CategoryCode, id) }

func ProjectCodesKey(projectID int) cache.Key { return cache.NewKey(CategoryProjectCodes, projectID) }

func MemoKey(id int) cache.Key { return cache.NewKey(CategoryMemo, id) }

func ObjectMemosKey(objectType string, objectID int) cache.Key {
	return cache.NewKey(CategoryObjectMemos, objectType, objectID)
}

func UserObjectMemoKey(objectType string, objectID, userID int) cache.Key {
	return cache.NewKey(CategoryUserObjectMemo, objectType, objectID, userID)
}

func SdocsAwaitingKey(projectID int) cache.Key { return cache.NewKey(CategorySdocsAwaiting, projectID) }

func ProjectSdocsKey(projectID int) cache.Key { return cache.NewKey(CategoryProjectSdocs, projectID) }

func SearchIndexKey(projectID int) cache.Key { return cache.NewKey(CategorySearchIndex, projectID) }

var (
	beforeResponse = []keys.Operation{keys.OpUpdate, keys.OpDelete}
	onCreate       = []keys.Operation{keys.OpCreate}
	onUpdate       = []keys.Operation{keys.OpUpdate}
)

// byID builds the key of an entity with a server id. Placeholders and
// unsaved entities have none.
func byID[E any](id func(E) int, key func(int) cache.Key) func(E) (cache.Key, bool) {
	return func(e E) (cache.Key, bool) {
		if id(e) <= 0 {
			return cache.Key{}, false
		}
		return key(id(e)), true
	}
}

// Annotations enumerates the key shapes of span annotations. The table view
// is a server aggregation and is invalidated instead of patched.
var Annotations = keys.NewComposer(CategoryAnnotation,
	keys.Shape[Annotation]{
		Name: "by-id",
		Ops:  beforeResponse,
		Key:  byID(AnnotationID, AnnotationKey),
	},
	keys.Shape[Annotation]{
		Name:          "by-id-created",
		Ops:           onCreate,
		AfterResponse: true,
		Key:           byID(AnnotationID, AnnotationKey),
	},
	keys.Shape[Annotation]{
		Name: "by-sdoc-user",
		Key: func(a Annotation) (cache.Key, bool) {
			return SdocAnnotationsKey(a.SdocID, a.UserID), true
		},
	},
	keys.Shape[Annotation]{
		Name:       "table",
		Invalidate: true,
		Key: func(a Annotation) (cache.Key, bool) {
			return AnnotationTableKey(a.ProjectID), a.ProjectID > 0
		},
	},
)

// Codes enumerates the key shapes of codes. project-codes holds a derived id map.
var Codes = keys.NewComposer(CategoryCode,
	keys.Shape[Code]{
		Name: "by-id",
		Ops:  beforeResponse,
		Key:  byID(CodeID, CodeKey),
	},
	keys.Shape[Code]{
		Name:          "by-id-created",
		Ops:           onCreate,
		AfterResponse: true,
		Key:           byID(CodeID, CodeKey),
	},
	keys.Shape[Code]{
		Name: "by-project",
		Key: func(c Code) (cache.Key, bool) {
			return ProjectCodesKey(c.ProjectID), true
		},
	},
)

// Memos enumerates the key shapes of memos. A user has at most one memo per
// object, so user-object-memo caches a single value.
var Memos = keys.NewComposer(CategoryMemo,
	keys.Shape[Memo]{
		Name: "by-id",
		Ops:  beforeResponse,
		Key:  byID(MemoID, MemoKey),
	},
	keys.Shape[Memo]{
		Name:          "by-id-created",
		Ops:           onCreate,
		AfterResponse: true,
		Key:           byID(MemoID, MemoKey),
	},
	keys.Shape[Memo]{
		Name: "by-object",
		Key: func(m Memo) (cache.Key, bool) {
			return ObjectMemosKey(m.AttachedObjectType, m.AttachedObjectID), true
		},
	},
	keys.Shape[Memo]{
		Name: "by-user-object",
		Ops:  onUpdate,
		Key: func(m Memo) (cache.Key, bool) {
			return UserObjectMemoKey(m.AttachedObjectType, m.AttachedObjectID, m.UserID), true
		},
	},
	keys.Shape[Memo]{
		Name:          "by-user-object-created",
		Ops:           onCreate,
		AfterResponse: true,
		Key: func(m Memo) (cache.Key, bool) {
			return UserObjectMemoKey(m.AttachedObjectType, m.AttachedObjectID, m.UserID), true
		},
	},
)

// Registry returns a key registry over every workbench composer.
func Registry() *keys.Registry {
	r := keys.NewRegistry()
	keys.Register(r, Annotations)
	keys.Register(r, Codes)
	keys.Register(r, Memos)
	return r
}
