package workbench_test

import (
	"context"
	"database/sql"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/remote"
	"github.com/goliatone/go-query-cache/workbench"
	repository "github.com/goliatone/go-repository-bun"
)

// mockRepo is a hand-rolled repository returning canned records.
type mockRepo[T any] struct {
	mu       sync.Mutex
	calls    []string
	criteria []int

	byID      T
	byIDErr   error
	list      []T
	listErr   error
	written   []T
	deleted   []T
	createdAs T
}

func (m *mockRepo[T]) record(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepo[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.record("GetByID")
	return m.byID, m.byIDErr
}

func (m *mockRepo[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.record("List")
	m.mu.Lock()
	m.criteria = append(m.criteria, len(criteria))
	m.mu.Unlock()
	return m.list, len(m.list), m.listErr
}

func (m *mockRepo[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.record("Create")
	m.written = append(m.written, record)
	return m.createdAs, nil
}

func (m *mockRepo[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.record("Update")
	m.written = append(m.written, record)
	return record, nil
}

func (m *mockRepo[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.record("UpdateMany")
	m.written = append(m.written, records...)
	return records, nil
}

func (m *mockRepo[T]) Delete(ctx context.Context, record T) error {
	m.record("Delete")
	m.deleted = append(m.deleted, record)
	return nil
}

type repoEnv struct {
	annotations *mockRepo[workbench.Annotation]
	codes       *mockRepo[workbench.Code]
	memos       *mockRepo[workbench.Memo]
	documents   *mockRepo[workbench.SourceDocument]
	api         *workbench.RepositoryAPI
}

func newRepoEnv() *repoEnv {
	e := &repoEnv{
		annotations: &mockRepo[workbench.Annotation]{},
		codes:       &mockRepo[workbench.Code]{},
		memos:       &mockRepo[workbench.Memo]{},
		documents:   &mockRepo[workbench.SourceDocument]{},
	}
	e.api = workbench.NewRepositoryAPI(workbench.Repositories{
		Annotations: e.annotations,
		Codes:       e.codes,
		Memos:       e.memos,
		Documents:   e.documents,
	})
	return e
}

func TestRepositoryAPI_Reads(t *testing.T) {
	ctx := context.Background()
	e := newRepoEnv()
	e.annotations.list = []workbench.Annotation{{ID: 1, ProjectID: 3, SdocID: 5, UserID: 9}}
	e.documents.list = []workbench.SourceDocument{
		{ID: 1, ProjectID: 3, Status: workbench.DocAwaiting},
		{ID: 2, ProjectID: 3, Status: workbench.DocFinished},
		{ID: 3, ProjectID: 3, Status: workbench.DocFinished},
	}

	list, err := e.api.SdocAnnotations(ctx, 5, 9)
	if err != nil || len(list) != 1 {
		t.Fatalf("SdocAnnotations() = %+v, %v", list, err)
	}
	if got := e.annotations.criteria[0]; got != 2 {
		t.Errorf("expected one criterion per column, got %d", got)
	}

	page, err := e.api.AnnotationTable(ctx, 3)
	if err != nil || page.Total != 1 || page.ProjectID != 3 {
		t.Errorf("AnnotationTable() = %+v, %v", page, err)
	}

	awaiting, err := e.api.SdocsAwaiting(ctx, 3)
	if err != nil || len(awaiting) != 1 || awaiting[0].ID != 1 {
		t.Errorf("SdocsAwaiting() = %+v, %v", awaiting, err)
	}

	index, err := e.api.SearchIndex(ctx, 3)
	if err != nil || index.Documents != 2 {
		t.Errorf("SearchIndex() = %+v, %v", index, err)
	}
}

func TestRepositoryAPI_NotFound(t *testing.T) {
	ctx := context.Background()
	e := newRepoEnv()
	e.codes.byIDErr = sql.ErrNoRows

	if _, err := e.api.Code(ctx, 7); cache.StatusCode(err) != http.StatusNotFound {
		t.Errorf("expected 404 for a missing code, got %v", err)
	}
	if _, err := e.api.DeleteCode(ctx, 7); cache.StatusCode(err) != http.StatusNotFound {
		t.Errorf("expected 404 when deleting a missing code, got %v", err)
	}
	if len(e.codes.deleted) != 0 {
		t.Error("nothing must be deleted when the record does not exist")
	}

	if _, err := e.api.UserObjectMemo(ctx, "code", 7, 9); cache.StatusCode(err) != http.StatusNotFound {
		t.Errorf("expected 404 when the user has no memo, got %v", err)
	}
}

func TestRepositoryAPI_Writes(t *testing.T) {
	ctx := context.Background()
	e := newRepoEnv()
	e.codes.createdAs = workbench.Code{ID: 11, ProjectID: 3, Name: "Place"}
	e.codes.byID = workbench.Code{ID: 11, ProjectID: 3, Name: "Place"}

	created, err := e.api.CreateCode(ctx, workbench.Code{ProjectID: 3, Name: "Place"})
	if err != nil || created.ID != 11 {
		t.Fatalf("CreateCode() = %+v, %v", created, err)
	}

	deleted, err := e.api.DeleteCode(ctx, 11)
	if err != nil || deleted.ID != 11 {
		t.Fatalf("DeleteCode() = %+v, %v", deleted, err)
	}
	if want := []string{"Create", "GetByID", "Delete"}; !reflect.DeepEqual(e.codes.calls, want) {
		t.Errorf("expected calls %v, got %v", want, e.codes.calls)
	}
}

func TestRepositoryAPI_UpdateAnnotationCodes(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		rows    []workbench.Annotation
		ids     []int
		want    []int
		wantErr int
	}{
		{
			name: "keeps requested order",
			rows: []workbench.Annotation{{ID: 1, ProjectID: 3}, {ID: 2, ProjectID: 3}},
			ids:  []int{2, 1},
			want: []int{2, 1},
		},
		{
			name:    "missing annotation",
			rows:    []workbench.Annotation{{ID: 1, ProjectID: 3}},
			ids:     []int{1, 2},
			wantErr: http.StatusNotFound,
		},
		{
			name: "empty request",
			want: []int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newRepoEnv()
			e.annotations.list = tt.rows

			got, err := e.api.UpdateAnnotationCodes(ctx, workbench.CodeAssignment{ProjectID: 3, AnnotationIDs: tt.ids, CodeID: 7})
			if tt.wantErr != 0 {
				if cache.StatusCode(err) != tt.wantErr {
					t.Errorf("expected status %d, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateAnnotationCodes() failed: %v", err)
			}

			ids := make([]int, 0, len(got))
			for _, a := range got {
				ids = append(ids, a.ID)
				if a.CodeID != 7 {
					t.Errorf("annotation %d kept code %d", a.ID, a.CodeID)
				}
			}
			if !reflect.DeepEqual(ids, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, ids)
			}
		})
	}
}

func TestRepositoryAPI_ServesStore(t *testing.T) {
	e := newRepoEnv()
	e.codes.list = []workbench.Code{{ID: 7, ProjectID: 3}, {ID: 8, ProjectID: 3}}

	store, err := cache.NewStore(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("NewStore() failed: %v", err)
	}
	t.Cleanup(store.Close)
	workbench.RegisterFetchers(store, e.api)

	entry, err := store.Await(context.Background(), workbench.ProjectCodesKey(3))
	if err != nil {
		t.Fatalf("Await() failed: %v", err)
	}
	codes, ok := cache.ValueOf[map[int]workbench.Code](entry)
	if !ok || len(codes) != 2 || codes[8].ID != 8 {
		t.Errorf("expected project codes keyed by id, got %+v", entry.Value)
	}
}

var _ remote.Repository[workbench.Code] = (*mockRepo[workbench.Code])(nil)
