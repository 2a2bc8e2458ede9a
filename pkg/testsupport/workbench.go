package testsupport

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/workbench"
)

// Gate holds calls to one server method until released.
type Gate struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newGate() *Gate {
	return &Gate{entered: make(chan struct{}, 64), release: make(chan struct{})}
}

// Entered receives once per call that reached the gate.
func (g *Gate) Entered() <-chan struct{} { return g.entered }

// Release lets every held and future call through.
func (g *Gate) Release() { g.once.Do(func() { close(g.release) }) }

// Workbench is an in-memory workbench server with call counting, one-shot
// failure injection and gates for holding calls in flight.
type Workbench struct {
	mu          sync.Mutex
	nextID      int
	annotations map[int]workbench.Annotation
	codes       map[int]workbench.Code
	memos       map[int]workbench.Memo
	docs        map[int]workbench.SourceDocument
	calls       map[string]int
	failures    map[string]error
	gates       map[string]*Gate
}

var _ workbench.API = (*Workbench)(nil)

// NewWorkbench returns an empty server. New ids start at 100.
func NewWorkbench() *Workbench {
	return &Workbench{
		nextID:      100,
		annotations: make(map[int]workbench.Annotation),
		codes:       make(map[int]workbench.Code),
		memos:       make(map[int]workbench.Memo),
		docs:        make(map[int]workbench.SourceDocument),
		calls:       make(map[string]int),
		failures:    make(map[string]error),
		gates:       make(map[string]*Gate),
	}
}

// SeedAnnotations stores annotations as if they already existed.
func (w *Workbench) SeedAnnotations(items ...workbench.Annotation) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, a := range items {
		w.annotations[a.ID] = a
	}
}

// SeedCodes stores codes as if they already existed.
func (w *Workbench) SeedCodes(items ...workbench.Code) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, c := range items {
		w.codes[c.ID] = c
	}
}

// SeedMemos stores memos as if they already existed.
func (w *Workbench) SeedMemos(items ...workbench.Memo) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range items {
		w.memos[m.ID] = m
	}
}

// SeedDocuments stores source documents.
func (w *Workbench) SeedDocuments(items ...workbench.SourceDocument) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, d := range items {
		w.docs[d.ID] = d
	}
}

// FailNext makes the next call of method return err.
func (w *Workbench) FailNext(method string, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures[method] = err
}

// Hold installs a gate on method. Calls block until Release or ctx end.
func (w *Workbench) Hold(method string) *Gate {
	w.mu.Lock()
	defer w.mu.Unlock()
	g := newGate()
	w.gates[method] = g
	return g
}

// Calls returns how many times method was called.
func (w *Workbench) Calls(method string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.calls[method]
}

func (w *Workbench) enter(ctx context.Context, method string) error {
	w.mu.Lock()
	w.calls[method]++
	gate := w.gates[method]
	w.mu.Unlock()

	if gate != nil {
		select {
		case gate.entered <- struct{}{}:
		default:
		}
		select {
		case <-gate.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err, ok := w.failures[method]; ok {
		delete(w.failures, method)
		return err
	}
	return nil
}

func notFound(kind string, id int) error {
	return cache.RemoteError(http.StatusNotFound, fmt.Sprintf("%s %d not found", kind, id))
}

func sortedValues[E any](m map[int]E, keep func(E) bool) []E {
	ids := make([]int, 0, len(m))
	for id, e := range m {
		if keep(e) {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	out := make([]E, 0, len(ids))
	for _, id := range ids {
		out = append(out, m[id])
	}
	return out
}

func (w *Workbench) Annotation(ctx context.Context, id int) (workbench.Annotation, error) {
	if err := w.enter(ctx, "Annotation"); err != nil {
		return workbench.Annotation{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.annotations[id]
	if !ok {
		return workbench.Annotation{}, notFound("annotation", id)
	}
	return a, nil
}

func (w *Workbench) SdocAnnotations(ctx context.Context, sdocID, userID int) ([]workbench.Annotation, error) {
	if err := w.enter(ctx, "SdocAnnotations"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.annotations, func(a workbench.Annotation) bool {
		return a.SdocID == sdocID && a.UserID == userID
	}), nil
}

func (w *Workbench) AnnotationTable(ctx context.Context, projectID int) (workbench.AnnotationPage, error) {
	if err := w.enter(ctx, "AnnotationTable"); err != nil {
		return workbench.AnnotationPage{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	rows := sortedValues(w.annotations, func(a workbench.Annotation) bool { return a.ProjectID == projectID })
	return workbench.AnnotationPage{ProjectID: projectID, Total: len(rows), Rows: rows}, nil
}

func (w *Workbench) Code(ctx context.Context, id int) (workbench.Code, error) {
	if err := w.enter(ctx, "Code"); err != nil {
		return workbench.Code{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.codes[id]
	if !ok {
		return workbench.Code{}, notFound("code", id)
	}
	return c, nil
}

func (w *Workbench) ProjectCodes(ctx context.Context, projectID int) ([]workbench.Code, error) {
	if err := w.enter(ctx, "ProjectCodes"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.codes, func(c workbench.Code) bool { return c.ProjectID == projectID }), nil
}

func (w *Workbench) Memo(ctx context.Context, id int) (workbench.Memo, error) {
	if err := w.enter(ctx, "Memo"); err != nil {
		return workbench.Memo{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.memos[id]
	if !ok {
		return workbench.Memo{}, notFound("memo", id)
	}
	return m, nil
}

func (w *Workbench) ObjectMemos(ctx context.Context, objectType string, objectID int) ([]workbench.Memo, error) {
	if err := w.enter(ctx, "ObjectMemos"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.memos, func(m workbench.Memo) bool {
		return m.AttachedObjectType == objectType && m.AttachedObjectID == objectID
	}), nil
}

func (w *Workbench) UserObjectMemo(ctx context.Context, objectType string, objectID, userID int) (workbench.Memo, error) {
	if err := w.enter(ctx, "UserObjectMemo"); err != nil {
		return workbench.Memo{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range sortedValues(w.memos, func(workbench.Memo) bool { return true }) {
		if m.AttachedObjectType == objectType && m.AttachedObjectID == objectID && m.UserID == userID {
			return m, nil
		}
	}
	return workbench.Memo{}, notFound("memo of object", objectID)
}

func (w *Workbench) SdocsAwaiting(ctx context.Context, projectID int) ([]workbench.SourceDocument, error) {
	if err := w.enter(ctx, "SdocsAwaiting"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.docs, func(d workbench.SourceDocument) bool {
		return d.ProjectID == projectID && d.Status == workbench.DocAwaiting
	}), nil
}

func (w *Workbench) ProjectSdocs(ctx context.Context, projectID int) ([]workbench.SourceDocument, error) {
	if err := w.enter(ctx, "ProjectSdocs"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return sortedValues(w.docs, func(d workbench.SourceDocument) bool { return d.ProjectID == projectID }), nil
}

func (w *Workbench) SearchIndex(ctx context.Context, projectID int) (workbench.SearchIndex, error) {
	if err := w.enter(ctx, "SearchIndex"); err != nil {
		return workbench.SearchIndex{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	indexed := sortedValues(w.docs, func(d workbench.SourceDocument) bool {
		return d.ProjectID == projectID && d.Status == workbench.DocFinished
	})
	return workbench.SearchIndex{ProjectID: projectID, Documents: len(indexed), UpdatedAt: time.Now()}, nil
}

func (w *Workbench) CreateAnnotation(ctx context.Context, a workbench.Annotation) (workbench.Annotation, error) {
	if err := w.enter(ctx, "CreateAnnotation"); err != nil {
		return workbench.Annotation{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a.ID = w.nextID
	w.nextID++
	w.annotations[a.ID] = a
	return a, nil
}

func (w *Workbench) UpdateAnnotation(ctx context.Context, a workbench.Annotation) (workbench.Annotation, error) {
	if err := w.enter(ctx, "UpdateAnnotation"); err != nil {
		return workbench.Annotation{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.annotations[a.ID]; !ok {
		return workbench.Annotation{}, notFound("annotation", a.ID)
	}
	w.annotations[a.ID] = a
	return a, nil
}

func (w *Workbench) DeleteAnnotation(ctx context.Context, id int) (workbench.Annotation, error) {
	if err := w.enter(ctx, "DeleteAnnotation"); err != nil {
		return workbench.Annotation{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	a, ok := w.annotations[id]
	if !ok {
		return workbench.Annotation{}, notFound("annotation", id)
	}
	delete(w.annotations, id)
	return a, nil
}

func (w *Workbench) UpdateAnnotationCodes(ctx context.Context, in workbench.CodeAssignment) ([]workbench.Annotation, error) {
	if err := w.enter(ctx, "UpdateAnnotationCodes"); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]workbench.Annotation, 0, len(in.AnnotationIDs))
	for _, id := range in.AnnotationIDs {
		a, ok := w.annotations[id]
		if !ok {
			return nil, notFound("annotation", id)
		}
		a.CodeID = in.CodeID
		out = append(out, a)
	}
	for _, a := range out {
		w.annotations[a.ID] = a
	}
	return out, nil
}

func (w *Workbench) CreateCode(ctx context.Context, c workbench.Code) (workbench.Code, error) {
	if err := w.enter(ctx, "CreateCode"); err != nil {
		return workbench.Code{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c.ID = w.nextID
	w.nextID++
	w.codes[c.ID] = c
	return c, nil
}

func (w *Workbench) UpdateCode(ctx context.Context, c workbench.Code) (workbench.Code, error) {
	if err := w.enter(ctx, "UpdateCode"); err != nil {
		return workbench.Code{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.codes[c.ID]; !ok {
		return workbench.Code{}, notFound("code", c.ID)
	}
	w.codes[c.ID] = c
	return c, nil
}

// DeleteCode also unassigns the code from its annotations.
func (w *Workbench) DeleteCode(ctx context.Context, id int) (workbench.Code, error) {
	if err := w.enter(ctx, "DeleteCode"); err != nil {
		return workbench.Code{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	c, ok := w.codes[id]
	if !ok {
		return workbench.Code{}, notFound("code", id)
	}
	delete(w.codes, id)
	for aid, a := range w.annotations {
		if a.CodeID == id {
			a.CodeID = 0
			w.annotations[aid] = a
		}
	}
	return c, nil
}

func (w *Workbench) CreateMemo(ctx context.Context, m workbench.Memo) (workbench.Memo, error) {
	if err := w.enter(ctx, "CreateMemo"); err != nil {
		return workbench.Memo{}, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	m.ID = w.nextID
	w.nextID++
	w.memos[m.ID] = m
	return m, nil
}
