package remote

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/goliatone/go-query-cache/cache"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// Reader is the read side of a go-repository-bun repository this package needs.
type Reader[T any] interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (T, error)
	List(ctx context.Context, criteria ...repository.SelectCriteria) ([]T, int, error)
}

// Writer is the write side of a go-repository-bun repository this package needs.
type Writer[T any] interface {
	Create(ctx context.Context, record T, criteria ...repository.InsertCriteria) (T, error)
	Update(ctx context.Context, record T, criteria ...repository.UpdateCriteria) (T, error)
	UpdateMany(ctx context.Context, records []T, criteria ...repository.UpdateCriteria) ([]T, error)
	Delete(ctx context.Context, record T) error
}

// Repository is a Reader and a Writer.
type Repository[T any] interface {
	Reader[T]
	Writer[T]
}

// Any full repository satisfies the narrow interface.
var _ Repository[any] = repository.Repository[any](nil)

// Column names the table column filled from one key discriminator.
type Column struct {
	Name string
	Part int
}

// Where builds select criteria matching every column against the key parts.
func Where(key cache.Key, columns ...Column) ([]repository.SelectCriteria, error) {
	criteria := make([]repository.SelectCriteria, 0, len(columns))
	for _, col := range columns {
		if col.Part >= key.Len() {
			return nil, fmt.Errorf("remote: key %s has no part %d for column %s", key, col.Part, col.Name)
		}
		value := key.Part(col.Part)
		name := col.Name
		criteria = append(criteria, func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("? = ?", bun.Ident(name), value)
		})
	}
	return criteria, nil
}

// WhereIn selects the records whose column is one of values.
func WhereIn[V any](column string, values []V) repository.SelectCriteria {
	return func(q *bun.SelectQuery) *bun.SelectQuery {
		return q.Where("? IN (?)", bun.Ident(column), bun.In(values))
	}
}

// ByID fetches the record whose id is the key discriminator at part.
func ByID[T any](r Reader[T], part int) cache.Fetcher {
	return cache.TypedFetcher(func(ctx context.Context, key cache.Key) (T, error) {
		var zero T
		if part >= key.Len() {
			return zero, fmt.Errorf("remote: key %s has no id part %d", key, part)
		}
		record, err := r.GetByID(ctx, fmt.Sprint(key.Part(part)))
		if err != nil {
			return zero, Translate(err)
		}
		return record, nil
	})
}

// ListWhere fetches every record matching the key discriminators.
func ListWhere[T any](r Reader[T], columns ...Column) cache.Fetcher {
	return cache.TypedFetcher(func(ctx context.Context, key cache.Key) ([]T, error) {
		return List(ctx, r, key, columns...)
	})
}

// MapWhere fetches like ListWhere and indexes the records by id.
func MapWhere[T any, ID comparable](r Reader[T], id func(T) ID, columns ...Column) cache.Fetcher {
	return cache.TypedFetcher(func(ctx context.Context, key cache.Key) (map[ID]T, error) {
		records, err := List(ctx, r, key, columns...)
		if err != nil {
			return nil, err
		}
		out := make(map[ID]T, len(records))
		for _, record := range records {
			out[id(record)] = record
		}
		return out, nil
	})
}

// List runs a filtered list query for key. An empty result is an empty
// slice, never nil, so it caches as a value.
func List[T any](ctx context.Context, r Reader[T], key cache.Key, columns ...Column) ([]T, error) {
	criteria, err := Where(key, columns...)
	if err != nil {
		return nil, err
	}
	records, _, err := r.List(ctx, criteria...)
	if err != nil {
		return nil, Translate(err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Create adapts w.Create to a Remote Write function.
func Create[T any](w Writer[T]) func(ctx context.Context, record T) (T, error) {
	return func(ctx context.Context, record T) (T, error) {
		out, err := w.Create(ctx, record)
		return out, Translate(err)
	}
}

// Update adapts w.Update to a Remote Write function.
func Update[T any](w Writer[T]) func(ctx context.Context, record T) (T, error) {
	return func(ctx context.Context, record T) (T, error) {
		out, err := w.Update(ctx, record)
		return out, Translate(err)
	}
}

// UpdateMany adapts w.UpdateMany to a bulk Remote Write function.
func UpdateMany[T any](w Writer[T]) func(ctx context.Context, records []T) ([]T, error) {
	return func(ctx context.Context, records []T) ([]T, error) {
		out, err := w.UpdateMany(ctx, records)
		return out, Translate(err)
	}
}

// Delete adapts w.Delete to a Remote Write function returning the deleted record.
func Delete[T any](w Writer[T]) func(ctx context.Context, record T) (T, error) {
	return func(ctx context.Context, record T) (T, error) {
		if err := w.Delete(ctx, record); err != nil {
			var zero T
			return zero, Translate(err)
		}
		return record, nil
	}
}

// Translate gives a missing row the 404 status the cache taxonomy expects.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return cache.WrapRemote(err, http.StatusNotFound, "record not found")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case cache.StatusCode(err) != 0:
		return err
	default:
		return cache.WrapRemote(err, http.StatusInternalServerError, "repository error")
	}
}
