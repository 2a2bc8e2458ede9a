package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"github.com/goliatone/go-query-cache/cache"
	repository "github.com/goliatone/go-repository-bun"
)

type testCode struct {
	ID        int
	ProjectID int
	Name      string
}

func testCodeID(c testCode) int { return c.ID }

// mockRepository tracks method calls and the criteria they received.
type mockRepository[T any] struct {
	mu       sync.Mutex
	calls    []string
	criteria int
	lastID   string

	getByIDResult T
	getByIDError  error
	listRecords   []T
	listError     error
	createResult  T
	createError   error
	updateResult  T
	updateError   error
	manyResult    []T
	deleteError   error
}

func (m *mockRepository[T]) recordCall(method string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, method)
}

func (m *mockRepository[T]) getCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockRepository[T]) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error) {
	m.recordCall("GetByID")
	m.mu.Lock()
	m.lastID = id
	m.mu.Unlock()
	return m.getByIDResult, m.getByIDError
}

func (m *mockRepository[T]) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error) {
	m.recordCall("List")
	m.mu.Lock()
	m.criteria = len(criteria)
	m.mu.Unlock()
	return m.listRecords, len(m.listRecords), m.listError
}

func (m *mockRepository[T]) Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error) {
	m.recordCall("Create")
	return m.createResult, m.createError
}

func (m *mockRepository[T]) Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error) {
	m.recordCall("Update")
	return m.updateResult, m.updateError
}

func (m *mockRepository[T]) UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error) {
	m.recordCall("UpdateMany")
	return m.manyResult, nil
}

func (m *mockRepository[T]) Delete(ctx context.Context, record T) error {
	m.recordCall("Delete")
	return m.deleteError
}

var _ Repository[testCode] = (*mockRepository[testCode])(nil)

func TestByID(t *testing.T) {
	repo := &mockRepository[testCode]{getByIDResult: testCode{ID: 7, Name: "Person"}}
	fetcher := ByID[testCode](repo, 0)

	got, err := fetcher.Fetch(context.Background(), cache.NewKey("code", 7))
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if got.(testCode).Name != "Person" {
		t.Errorf("unexpected record %+v", got)
	}
	if repo.lastID != "7" {
		t.Errorf("expected id 7 to be passed as string, got %q", repo.lastID)
	}

	if _, err := fetcher.Fetch(context.Background(), cache.NewKey("code")); err == nil {
		t.Error("expected an error for a key without id part")
	}
}

func TestByID_NotFound(t *testing.T) {
	repo := &mockRepository[testCode]{getByIDError: fmt.Errorf("select: %w", sql.ErrNoRows)}

	_, err := ByID[testCode](repo, 0).Fetch(context.Background(), cache.NewKey("code", 1))
	if got := cache.StatusCode(err); got != http.StatusNotFound {
		t.Errorf("expected status 404, got %d (%v)", got, err)
	}
	if cache.IsTransient(err) {
		t.Error("a missing record must not be retried")
	}
}

func TestListWhere(t *testing.T) {
	tests := []struct {
		name         string
		records      []testCode
		key          cache.Key
		columns      []Column
		wantLen      int
		wantCriteria int
		wantErr      bool
	}{
		{
			name:         "filters by every column",
			records:      []testCode{{ID: 1}, {ID: 2}},
			key:          cache.NewKey("sdoc-annotations", 5, 9),
			columns:      []Column{{Name: "sdoc_id", Part: 0}, {Name: "user_id", Part: 1}},
			wantLen:      2,
			wantCriteria: 2,
		},
		{
			name:         "empty result is an empty slice",
			key:          cache.NewKey("project-codes", 3),
			columns:      []Column{{Name: "project_id", Part: 0}},
			wantLen:      0,
			wantCriteria: 1,
		},
		{
			name:    "missing part",
			key:     cache.NewKey("project-codes"),
			columns: []Column{{Name: "project_id", Part: 0}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockRepository[testCode]{listRecords: tt.records}
			got, err := ListWhere[testCode](repo, tt.columns...).Fetch(context.Background(), tt.key)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				if len(repo.getCalls()) != 0 {
					t.Error("repository must not be queried with incomplete criteria")
				}
				return
			}
			if err != nil {
				t.Fatalf("Fetch() failed: %v", err)
			}
			list, ok := got.([]testCode)
			if !ok || list == nil {
				t.Fatalf("expected a non-nil []testCode, got %#v", got)
			}
			if len(list) != tt.wantLen {
				t.Errorf("expected %d records, got %d", tt.wantLen, len(list))
			}
			if repo.criteria != tt.wantCriteria {
				t.Errorf("expected %d criteria, got %d", tt.wantCriteria, repo.criteria)
			}
		})
	}
}

func TestMapWhere(t *testing.T) {
	repo := &mockRepository[testCode]{listRecords: []testCode{{ID: 1, Name: "a"}, {ID: 4, Name: "b"}}}

	got, err := MapWhere[testCode, int](repo, testCodeID, Column{Name: "project_id", Part: 0}).
		Fetch(context.Background(), cache.NewKey("project-codes", 3))
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	want := map[int]testCode{1: {ID: 1, Name: "a"}, 4: {ID: 4, Name: "b"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestWriteAdapters(t *testing.T) {
	ctx := context.Background()
	repo := &mockRepository[testCode]{
		createResult: testCode{ID: 10},
		updateResult: testCode{ID: 10, Name: "renamed"},
		manyResult:   []testCode{{ID: 10}, {ID: 11}},
	}

	if out, err := Create[testCode](repo)(ctx, testCode{}); err != nil || out.ID != 10 {
		t.Errorf("Create() = %+v, %v", out, err)
	}
	if out, err := Update[testCode](repo)(ctx, testCode{ID: 10}); err != nil || out.Name != "renamed" {
		t.Errorf("Update() = %+v, %v", out, err)
	}
	if out, err := UpdateMany[testCode](repo)(ctx, nil); err != nil || len(out) != 2 {
		t.Errorf("UpdateMany() = %+v, %v", out, err)
	}
	if out, err := Delete[testCode](repo)(ctx, testCode{ID: 10}); err != nil || out.ID != 10 {
		t.Errorf("Delete() = %+v, %v", out, err)
	}

	want := []string{"Create", "Update", "UpdateMany", "Delete"}
	if got := repo.getCalls(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected calls %v, got %v", want, got)
	}
}

func TestTranslate(t *testing.T) {
	conflict := cache.RemoteError(http.StatusConflict, "")

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantSame   bool
	}{
		{name: "nil", err: nil},
		{name: "no rows", err: sql.ErrNoRows, wantStatus: http.StatusNotFound},
		{name: "cancelled", err: context.Canceled, wantSame: true},
		{name: "already typed", err: conflict, wantStatus: http.StatusConflict, wantSame: true},
		{name: "driver error", err: errors.New("connection reset"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Translate(tt.err)
			if tt.err == nil {
				if got != nil {
					t.Errorf("expected nil, got %v", got)
				}
				return
			}
			if tt.wantSame && got != tt.err {
				t.Errorf("expected error to pass through, got %v", got)
			}
			if status := cache.StatusCode(got); status != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, status)
			}
		})
	}
}
