// Package errors defines the sentinel errors shared by the record store, the
// index builder, the index store and the query layer, plus the AppError
// wrapper the HTTP shell uses to pick a status code.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Store errors.
var (
	ErrIndexMissing     = errors.New("index missing")
	ErrIndexCorrupt     = errors.New("index corrupt")
	ErrWriteFailed      = errors.New("index write failed")
	ErrPublishFailed    = errors.New("index publish failed")
	ErrCleanupFailed    = errors.New("index cleanup failed")
	ErrDirectoryMissing = errors.New("data directory missing")
	ErrNotFound         = errors.New("post not found")
	ErrMalformedRecord  = errors.New("malformed record")
)

// Build errors.
var ErrNoEligiblePosts = errors.New("no eligible posts")

// Selection errors.
var ErrEmptySelection = errors.New("not enough posts to select from")

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
)

var storeErrors = []error{
	ErrIndexMissing,
	ErrIndexCorrupt,
	ErrWriteFailed,
	ErrPublishFailed,
	ErrCleanupFailed,
	ErrDirectoryMissing,
	ErrNotFound,
	ErrMalformedRecord,
}

// AppError pairs a sentinel with an HTTP status and a user-facing message.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New returns an AppError wrapping sentinel.
func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Newf is New with a formatted message.
func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// IsStoreError reports whether err came from the record store or the index
// store.
func IsStoreError(err error) bool {
	for _, sentinel := range storeErrors {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsBuildError reports whether err is an index build failure.
func IsBuildError(err error) bool {
	return errors.Is(err, ErrNoEligiblePosts)
}

// IsSelectionError reports whether err is a random-selection failure.
func IsSelectionError(err error) bool {
	return errors.Is(err, ErrEmptySelection)
}

// HTTPStatusCode maps err to the status the API answers with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptySelection):
		return http.StatusConflict
	case errors.Is(err, ErrIndexMissing), errors.Is(err, ErrIndexCorrupt):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
