package cache

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

type textRenderer interface {
	Render() string
}

func TestFetch_NilInterfaceValue(t *testing.T) {
	store := newTestStore(t, FetchFunc(func(ctx context.Context, key Key) (any, error) {
		return nil, nil
	}))

	// must not panic on a nil interface value
	result, err := Fetch[textRenderer](context.Background(), store, NewKey("codes", 1))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestFetch_NilPointerValue(t *testing.T) {
	type code struct{ Name string }
	store := newTestStore(t, TypedFetcher(func(ctx context.Context, key Key) (*code, error) {
		return nil, nil
	}))

	result, err := Fetch[*code](context.Background(), store, NewKey("codes", 1))
	if err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	if result != nil {
		t.Errorf("expected nil result, got %v", result)
	}
}

func TestFetch_TypeMismatch(t *testing.T) {
	store := newTestStore(t, FetchFunc(func(ctx context.Context, key Key) (any, error) {
		return "not an int", nil
	}))

	_, err := Fetch[int](context.Background(), store, NewKey("codes", 1))
	if !errors.Is(err, ErrInvalidResultType) {
		t.Errorf("expected ErrInvalidResultType, got %v", err)
	}
}

func TestFetch_ValidResult(t *testing.T) {
	store := newTestStore(t, TypedFetcher(func(ctx context.Context, key Key) ([]string, error) {
		return []string{fmt.Sprint(key.Part(0))}, nil
	}))

	result, err := Fetch[[]string](context.Background(), store, NewKey("codes", 7))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(result) != 1 || result[0] != "7" {
		t.Errorf("expected [7], got %v", result)
	}

	cached, entry, ok := Get[[]string](store, NewKey("codes", 7))
	if !ok {
		t.Fatal("expected cached value")
	}
	if entry.Status != StatusFresh {
		t.Errorf("expected fresh status, got %v", entry.Status)
	}
	if cached[0] != "7" {
		t.Errorf("expected cached [7], got %v", cached)
	}
}

func TestFetch_FetcherError(t *testing.T) {
	remoteErr := RemoteError(404, "code not found")
	store := newTestStore(t, TypedFetcher(func(ctx context.Context, key Key) (int, error) {
		return 0, remoteErr
	}))

	_, err := Fetch[int](context.Background(), store, NewKey("codes", 1))
	if !errors.Is(err, remoteErr) {
		t.Errorf("expected remote error, got %v", err)
	}
}

func TestUpdateValue_TypeMismatchSeesZero(t *testing.T) {
	store := newTestStore(t, newStubFetcher())
	key := NewKey("codes", 1)
	store.Write(key, "text")

	var sawOK bool
	UpdateValue(store, key, func(prev int, ok bool) int {
		sawOK = ok
		return prev + 1
	})

	if sawOK {
		t.Error("expected ok=false for a value of another type")
	}
	if got := store.Peek(key).Value; got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		wantStatus    int
		wantTransient bool
		wantRejection bool
	}{
		{name: "nil", err: nil},
		{name: "network failure", err: errors.New("connection reset"), wantTransient: true},
		{name: "server error", err: RemoteError(500, ""), wantStatus: 500, wantTransient: true},
		{name: "bad gateway wrapped", err: WrapRemote(errors.New("upstream"), 502, "proxy"), wantStatus: 502, wantTransient: true},
		{name: "timeout", err: RemoteError(408, ""), wantStatus: 408, wantTransient: true},
		{name: "rate limited", err: RemoteError(429, ""), wantStatus: 429, wantTransient: true},
		{name: "not found", err: RemoteError(404, ""), wantStatus: 404, wantRejection: true},
		{name: "conflict", err: RemoteError(409, "duplicate"), wantStatus: 409, wantRejection: true},
		{name: "validation", err: RemoteError(422, ""), wantStatus: 422, wantRejection: true},
		{name: "wrapped validation", err: fmt.Errorf("create: %w", RemoteError(400, "")), wantStatus: 400, wantRejection: true},
		{name: "cancelled", err: ErrFetchCancelled},
		{name: "closed", err: ErrStoreClosed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusCode(tt.err); got != tt.wantStatus {
				t.Errorf("StatusCode() = %d, want %d", got, tt.wantStatus)
			}
			if got := IsTransient(tt.err); got != tt.wantTransient {
				t.Errorf("IsTransient() = %v, want %v", got, tt.wantTransient)
			}
			if got := IsRejection(tt.err); got != tt.wantRejection {
				t.Errorf("IsRejection() = %v, want %v", got, tt.wantRejection)
			}
		})
	}
}

func TestRemoteError_DefaultMessage(t *testing.T) {
	err := RemoteError(404, "")
	if err.Error() == "" {
		t.Error("expected a status text message")
	}
}
