package workbench

import (
	"context"
	"fmt"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/mutation"
)

// Reader is the Remote Read collaborator of the workbench.
type Reader interface {
	Annotation(ctx context.Context, id int) (Annotation, error)
	SdocAnnotations(ctx context.Context, sdocID, userID int) ([]Annotation, error)
	AnnotationTable(ctx context.Context, projectID int) (AnnotationPage, error)
	Code(ctx context.Context, id int) (Code, error)
	ProjectCodes(ctx context.Context, projectID int) ([]Code, error)
	Memo(ctx context.Context, id int) (Memo, error)
	ObjectMemos(ctx context.Context, objectType string, objectID int) ([]Memo, error)
	UserObjectMemo(ctx context.Context, objectType string, objectID, userID int) (Memo, error)
	SdocsAwaiting(ctx context.Context, projectID int) ([]SourceDocument, error)
	ProjectSdocs(ctx context.Context, projectID int) ([]SourceDocument, error)
	SearchIndex(ctx context.Context, projectID int) (SearchIndex, error)
}

// Writer is the Remote Write collaborator of the workbench.
type Writer interface {
	CreateAnnotation(ctx context.Context, a Annotation) (Annotation, error)
	UpdateAnnotation(ctx context.Context, a Annotation) (Annotation, error)
	DeleteAnnotation(ctx context.Context, id int) (Annotation, error)
	UpdateAnnotationCodes(ctx context.Context, in CodeAssignment) ([]Annotation, error)
	CreateCode(ctx context.Context, c Code) (Code, error)
	UpdateCode(ctx context.Context, c Code) (Code, error)
	DeleteCode(ctx context.Context, id int) (Code, error)
	CreateMemo(ctx context.Context, m Memo) (Memo, error)
}

// API is the full server surface the workbench talks to.
type API interface {
	Reader
	Writer
}

// RegisterFetchers binds every workbench category of store to api.
func RegisterFetchers(store *cache.Store, api Reader) {
	store.Register(CategoryAnnotation, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (Annotation, error) {
		id, err := intPart(key, 0)
		if err != nil {
			return Annotation{}, err
		}
		return api.Annotation(ctx, id)
	}))

	store.Register(CategorySdocAnnotations, cache.TypedFetcher(func(ctx context.Context, key cache.Key) ([]Annotation, error) {
		sdocID, err := intPart(key, 0)
		if err != nil {
			return nil, err
		}
		userID, err := intPart(key, 1)
		if err != nil {
			return nil, err
		}
		return api.SdocAnnotations(ctx, sdocID, userID)
	}))

	store.Register(CategoryAnnotationTable, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (AnnotationPage, error) {
		projectID, err := intPart(key, 0)
		if err != nil {
			return AnnotationPage{}, err
		}
		return api.AnnotationTable(ctx, projectID)
	}))

	store.Register(CategoryCode, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (Code, error) {
		id, err := intPart(key, 0)
		if err != nil {
			return Code{}, err
		}
		return api.Code(ctx, id)
	}))

	store.Register(CategoryProjectCodes, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (map[int]Code, error) {
		projectID, err := intPart(key, 0)
		if err != nil {
			return nil, err
		}
		codes, err := api.ProjectCodes(ctx, projectID)
		if err != nil {
			return nil, err
		}
		return mutation.MergeMap(map[int]Code{}, codes, CodeID), nil
	}))

	store.Register(CategoryMemo, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (Memo, error) {
		id, err := intPart(key, 0)
		if err != nil {
			return Memo{}, err
		}
		return api.Memo(ctx, id)
	}))

	store.Register(CategoryObjectMemos, cache.TypedFetcher(func(ctx context.Context, key cache.Key) ([]Memo, error) {
		objectType, err := stringPart(key, 0)
		if err != nil {
			return nil, err
		}
		objectID, err := intPart(key, 1)
		if err != nil {
			return nil, err
		}
		return api.ObjectMemos(ctx, objectType, objectID)
	}))

	store.Register(CategoryUserObjectMemo, cache.TypedFetcher(func(ctx context.Context, key cache.Key) (Memo, error) {
		objectType, err := stringPart(key, 0)
		if err != nil {
			return Memo{}, err
		}
		objectID, err := intPart(key, 1)
		if err != nil {
			return Memo{}, err
		}
		userID, err := intPart(key, 2)
		if err != nil {
			return Memo{}, err
		}
		return api.UserObjectMemo(ctx, objectType, objectID, userID)
	}))

	store.Register(CategorySdocsAwaiting, projectFetcher(api.SdocsAwaiting))
	store.Register(CategoryProjectSdocs, projectFetcher(api.ProjectSdocs))
	store.Register(CategorySearchIndex, projectFetcher(api.SearchIndex))
}

func projectFetcher[T any](fn func(ctx context.Context, projectID int) (T, error)) cache.Fetcher {
	return cache.TypedFetcher(func(ctx context.Context, key cache.Key) (T, error) {
		projectID, err := intPart(key, 0)
		if err != nil {
			var zero T
			return zero, err
		}
		return fn(ctx, projectID)
	})
}

func intPart(key cache.Key, i int) (int, error) {
	switch v := key.Part(i).(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	}
	return 0, fmt.Errorf("workbench: key %s: part %d is not an int", key, i)
}

func stringPart(key cache.Key, i int) (string, error) {
	if v, ok := key.Part(i).(string); ok {
		return v, nil
	}
	return "", fmt.Errorf("workbench: key %s: part %d is not a string", key, i)
}
