package cache

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Sentinel errors are plain values so errors.Is matches them by identity.
var (
	// ErrFetchCancelled is reported to waiters of a fetch that was cancelled
	// before its response could be applied.
	ErrFetchCancelled = errors.New("cache: fetch cancelled")

	// ErrStoreClosed is returned by blocking operations after Close.
	ErrStoreClosed = errors.New("cache: store closed")

	// ErrUnknownCategory means a key was used whose category has no fetcher.
	// This is a key composition defect, not a runtime condition.
	ErrUnknownCategory = errors.New("cache: unknown key category")

	// ErrInvalidResultType is returned by typed helpers when a cached value has an unexpected type.
	ErrInvalidResultType = errors.New("cache: cached value has unexpected type")
)

// RemoteError builds the typed error a Remote Read or Remote Write collaborator
// returns when the server answered with an HTTP-like status code.
func RemoteError(status int, message string) *goerrors.Error {
	if message == "" {
		message = http.StatusText(status)
	}
	return goerrors.New(message, categoryForStatus(status)).WithCode(status)
}

// WrapRemote attaches a status code to an arbitrary transport error.
func WrapRemote(err error, status int, message string) *goerrors.Error {
	return goerrors.Wrap(err, categoryForStatus(status), message).WithCode(status)
}

// StatusCode extracts the HTTP-like status of err, or 0 when it carries none.
func StatusCode(err error) int {
	var typed *goerrors.Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return 0
}

// IsTransient reports whether err looks like a network or server-side failure
// that may succeed when retried: no status at all, 5xx, 408 or 429.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrFetchCancelled) || errors.Is(err, ErrStoreClosed) {
		return false
	}
	switch code := StatusCode(err); {
	case code == 0:
		return true
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// IsRejection reports whether err is a 4xx answer: validation, conflict, not found.
func IsRejection(err error) bool {
	code := StatusCode(err)
	return code >= 400 && code < 500 && !IsTransient(err)
}

func categoryForStatus(status int) goerrors.Category {
	switch {
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusConflict:
		return goerrors.CategoryConflict
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return goerrors.CategoryValidation
	case status >= 500:
		return goerrors.CategoryExternal
	default:
		return goerrors.CategoryOperation
	}
}
