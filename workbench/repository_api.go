package workbench

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/remote"
	"github.com/uptrace/bun"
)

// Repositories are the go-repository-bun repositories backing a RepositoryAPI.
type Repositories struct {
	Annotations remote.Repository[Annotation]
	Codes       remote.Repository[Code]
	Memos       remote.Repository[Memo]
	Documents   remote.Reader[SourceDocument]
}

// RepositoryAPI serves the workbench API straight from repositories, for
// embedded deployments and tests that run against a database.
type RepositoryAPI struct {
	repos Repositories
	now   func() time.Time
}

var _ API = (*RepositoryAPI)(nil)

// NewRepositoryAPI returns an API over repos.
func NewRepositoryAPI(repos Repositories) *RepositoryAPI {
	return &RepositoryAPI{repos: repos, now: time.Now}
}

func (a *RepositoryAPI) Annotation(ctx context.Context, id int) (Annotation, error) {
	v, err := remote.ByID[Annotation](a.repos.Annotations, 0).Fetch(ctx, AnnotationKey(id))
	return typed[Annotation](v, err)
}

func (a *RepositoryAPI) SdocAnnotations(ctx context.Context, sdocID, userID int) ([]Annotation, error) {
	return remote.List[Annotation](ctx, a.repos.Annotations, SdocAnnotationsKey(sdocID, userID),
		remote.Column{Name: "sdoc_id", Part: 0},
		remote.Column{Name: "user_id", Part: 1},
	)
}

func (a *RepositoryAPI) AnnotationTable(ctx context.Context, projectID int) (AnnotationPage, error) {
	rows, err := remote.List[Annotation](ctx, a.repos.Annotations, AnnotationTableKey(projectID),
		remote.Column{Name: "project_id", Part: 0},
	)
	if err != nil {
		return AnnotationPage{}, err
	}
	return AnnotationPage{ProjectID: projectID, Total: len(rows), Rows: rows}, nil
}

func (a *RepositoryAPI) Code(ctx context.Context, id int) (Code, error) {
	v, err := remote.ByID[Code](a.repos.Codes, 0).Fetch(ctx, CodeKey(id))
	return typed[Code](v, err)
}

func (a *RepositoryAPI) ProjectCodes(ctx context.Context, projectID int) ([]Code, error) {
	return remote.List[Code](ctx, a.repos.Codes, ProjectCodesKey(projectID),
		remote.Column{Name: "project_id", Part: 0},
	)
}

func (a *RepositoryAPI) Memo(ctx context.Context, id int) (Memo, error) {
	v, err := remote.ByID[Memo](a.repos.Memos, 0).Fetch(ctx, MemoKey(id))
	return typed[Memo](v, err)
}

func (a *RepositoryAPI) ObjectMemos(ctx context.Context, objectType string, objectID int) ([]Memo, error) {
	return remote.List[Memo](ctx, a.repos.Memos, ObjectMemosKey(objectType, objectID),
		remote.Column{Name: "attached_object_type", Part: 0},
		remote.Column{Name: "attached_object_id", Part: 1},
	)
}

func (a *RepositoryAPI) UserObjectMemo(ctx context.Context, objectType string, objectID, userID int) (Memo, error) {
	memos, err := remote.List[Memo](ctx, a.repos.Memos, UserObjectMemoKey(objectType, objectID, userID),
		remote.Column{Name: "attached_object_type", Part: 0},
		remote.Column{Name: "attached_object_id", Part: 1},
		remote.Column{Name: "user_id", Part: 2},
	)
	if err != nil {
		return Memo{}, err
	}
	if len(memos) == 0 {
		return Memo{}, cache.RemoteError(http.StatusNotFound, fmt.Sprintf("no memo of user %d on %s %d", userID, objectType, objectID))
	}
	return memos[0], nil
}

func (a *RepositoryAPI) SdocsAwaiting(ctx context.Context, projectID int) ([]SourceDocument, error) {
	docs, err := a.ProjectSdocs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]SourceDocument, 0, len(docs))
	for _, d := range docs {
		if d.Status == DocAwaiting {
			out = append(out, d)
		}
	}
	return out, nil
}

func (a *RepositoryAPI) ProjectSdocs(ctx context.Context, projectID int) ([]SourceDocument, error) {
	return remote.List[SourceDocument](ctx, a.repos.Documents, ProjectSdocsKey(projectID),
		remote.Column{Name: "project_id", Part: 0},
	)
}

func (a *RepositoryAPI) SearchIndex(ctx context.Context, projectID int) (SearchIndex, error) {
	docs, err := a.ProjectSdocs(ctx, projectID)
	if err != nil {
		return SearchIndex{}, err
	}
	indexed := 0
	for _, d := range docs {
		if d.Status == DocFinished {
			indexed++
		}
	}
	return SearchIndex{ProjectID: projectID, Documents: indexed, UpdatedAt: a.now()}, nil
}

func (a *RepositoryAPI) CreateAnnotation(ctx context.Context, in Annotation) (Annotation, error) {
	return remote.Create[Annotation](a.repos.Annotations)(ctx, in)
}

func (a *RepositoryAPI) UpdateAnnotation(ctx context.Context, in Annotation) (Annotation, error) {
	return remote.Update[Annotation](a.repos.Annotations)(ctx, in)
}

func (a *RepositoryAPI) DeleteAnnotation(ctx context.Context, id int) (Annotation, error) {
	current, err := a.Annotation(ctx, id)
	if err != nil {
		return Annotation{}, err
	}
	return remote.Delete[Annotation](a.repos.Annotations)(ctx, current)
}

// UpdateAnnotationCodes loads the targeted annotations, assigns the code and
// writes them back in one call. The result follows the requested id order.
func (a *RepositoryAPI) UpdateAnnotationCodes(ctx context.Context, in CodeAssignment) ([]Annotation, error) {
	if len(in.AnnotationIDs) == 0 {
		return []Annotation{}, nil
	}
	rows, _, err := a.repos.Annotations.List(ctx, remote.WhereIn("id", in.AnnotationIDs),
		func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("project_id = ?", in.ProjectID)
		},
	)
	if err != nil {
		return nil, remote.Translate(err)
	}
	if len(rows) != len(in.AnnotationIDs) {
		return nil, cache.RemoteError(http.StatusNotFound, "some annotations do not exist in project "+strconv.Itoa(in.ProjectID))
	}

	order := make(map[int]int, len(in.AnnotationIDs))
	for i, id := range in.AnnotationIDs {
		order[id] = i
	}
	for i := range rows {
		rows[i].CodeID = in.CodeID
	}
	sort.SliceStable(rows, func(i, j int) bool { return order[rows[i].ID] < order[rows[j].ID] })
	return remote.UpdateMany[Annotation](a.repos.Annotations)(ctx, rows)
}

func (a *RepositoryAPI) CreateCode(ctx context.Context, in Code) (Code, error) {
	return remote.Create[Code](a.repos.Codes)(ctx, in)
}

func (a *RepositoryAPI) UpdateCode(ctx context.Context, in Code) (Code, error) {
	return remote.Update[Code](a.repos.Codes)(ctx, in)
}

func (a *RepositoryAPI) DeleteCode(ctx context.Context, id int) (Code, error) {
	current, err := a.Code(ctx, id)
	if err != nil {
		return Code{}, err
	}
	return remote.Delete[Code](a.repos.Codes)(ctx, current)
}

func (a *RepositoryAPI) CreateMemo(ctx context.Context, in Memo) (Memo, error) {
	return remote.Create[Memo](a.repos.Memos)(ctx, in)
}

func typed[T any](v any, err error) (T, error) {
	if err != nil {
		var zero T
		return zero, err
	}
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, cache.ErrInvalidResultType
	}
	return out, nil
}
