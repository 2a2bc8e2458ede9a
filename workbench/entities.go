package workbench

import (
	"time"

	"github.com/uptrace/bun"
)

// Annotation is a span annotation: a code applied to a text range of a source
// document by one user.
type Annotation struct {
	bun.BaseModel `bun:"table:span_annotations,alias:sa"`

	ID        int    `bun:"id,pk,autoincrement" json:"id"`
	ProjectID int    `bun:"project_id,notnull" json:"project_id"`
	SdocID    int    `bun:"sdoc_id,notnull" json:"sdoc_id"`
	UserID    int    `bun:"user_id,notnull" json:"user_id"`
	CodeID    int    `bun:"code_id,notnull" json:"code_id"`
	Begin     int    `bun:"begin" json:"begin"`
	End       int    `bun:"end" json:"end"`
	Text      string `bun:"text" json:"text"`
}

// AnnotationID returns the id of a.
func AnnotationID(a Annotation) int { return a.ID }

// Code is one entry of a project's code tree.
type Code struct {
	bun.BaseModel `bun:"table:codes,alias:c"`

	ID        int    `bun:"id,pk,autoincrement" json:"id"`
	ProjectID int    `bun:"project_id,notnull" json:"project_id"`
	ParentID  int    `bun:"parent_id,nullzero" json:"parent_id,omitempty"`
	Name      string `bun:"name,notnull" json:"name"`
	Color     string `bun:"color" json:"color"`
}

// CodeID returns the id of c.
func CodeID(c Code) int { return c.ID }

// Memo is a note a user attaches to any workbench object.
type Memo struct {
	bun.BaseModel `bun:"table:memos,alias:m"`

	ID                 int    `bun:"id,pk,autoincrement" json:"id"`
	ProjectID          int    `bun:"project_id,notnull" json:"project_id"`
	UserID             int    `bun:"user_id,notnull" json:"user_id"`
	AttachedObjectID   int    `bun:"attached_object_id,notnull" json:"attached_object_id"`
	AttachedObjectType string `bun:"attached_object_type,notnull" json:"attached_object_type"`
	Title              string `bun:"title" json:"title"`
	Content            string `bun:"content" json:"content"`
	Starred            bool   `bun:"starred" json:"starred"`
}

// MemoID returns the id of m.
func MemoID(m Memo) int { return m.ID }

// DocStatus is the preprocessing state of a source document.
type DocStatus string

const (
	DocAwaiting  DocStatus = "awaiting"
	DocFinished  DocStatus = "finished"
	DocErroneous DocStatus = "erroneous"
)

// SourceDocument is a document of a project corpus.
type SourceDocument struct {
	bun.BaseModel `bun:"table:source_documents,alias:sd"`

	ID        int       `bun:"id,pk,autoincrement" json:"id"`
	ProjectID int       `bun:"project_id,notnull" json:"project_id"`
	Name      string    `bun:"name" json:"name"`
	Status    DocStatus `bun:"status" json:"status"`
}

// AnnotationPage is one page of the project annotation table. It is a
// server-side aggregation the client never patches.
type AnnotationPage struct {
	ProjectID int
	Total     int
	Rows      []Annotation
}

// SearchIndex is the indexing state of a project's documents.
type SearchIndex struct {
	ProjectID int
	Documents int
	UpdatedAt time.Time
}

// CodeAssignment applies CodeID to many annotations at once.
type CodeAssignment struct {
	ProjectID     int
	AnnotationIDs []int
	CodeID        int
}
