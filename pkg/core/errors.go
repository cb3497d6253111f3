package core

import (
	"errors"
	"fmt"
)

// Kind is a coarse error classification, independent of Go error types, so
// that callers (and the JSON-RPC dispatcher that sits above this package)
// can map an error onto a wire-level error code without type-asserting on
// concrete Go error values.
type Kind string

// Recognized error kinds.
const (
	KindInvalidArgument  Kind = "INVALID_ARGUMENT"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindUnauthenticated  Kind = "UNAUTHENTICATED"
	KindRateLimited      Kind = "RATE_LIMITED"
	KindProviderError    Kind = "PROVIDER_ERROR"
	KindExternalConflict Kind = "EXTERNAL_CONFLICT"
	KindSyncTokenExpired Kind = "SYNC_TOKEN_EXPIRED"
	KindTimeout          Kind = "TIMEOUT"
	KindInternal         Kind = "INTERNAL"
)

// Predefined sentinel errors for common failure scenarios. These are wrapped
// by MemoryError for operation context and remain compatible with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrConnectionFailed = errors.New("connection failed")
	ErrEmbeddingFailed  = errors.New("embedding generation failed")
	ErrInvalidInput     = errors.New("invalid input")
	ErrStorageOperation = errors.New("storage operation failed")
	ErrLLMOperation     = errors.New("llm operation failed")
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrRateLimited      = errors.New("rate limited")
	ErrSyncTokenExpired = errors.New("sync token expired")
	ErrExternalConflict = errors.New("external source conflict")
)

// MemoryError wraps an error with operation context and an error Kind.
//
// Example:
//
//	err := &MemoryError{Op: "storeMemory", Kind: KindInvalidArgument, Err: ErrInvalidInput}
//	// Error() returns: "memvault: storeMemory: INVALID_ARGUMENT: invalid input"
type MemoryError struct {
	Op      string
	Kind    Kind
	Err     error
	Details map[string]interface{}
}

// Error returns a formatted error message: "memvault: <Op>: <Kind>: <Err>".
func (e *MemoryError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("memvault: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("memvault: %s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *MemoryError) Unwrap() error {
	return e.Err
}

// NewMemoryError wraps err with operation context and a Kind inferred from
// the sentinel it wraps (see classify). If err is nil, returns nil.
func NewMemoryError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Kind: classify(err), Err: err}
}

// NewKindError wraps err with an explicit Kind, bypassing sentinel
// inference. If err is nil, returns nil.
func NewKindError(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &MemoryError{Op: op, Kind: kind, Err: err}
}

// classify maps a sentinel error onto its Kind. Errors not recognized here
// default to KindInternal.
func classify(err error) Kind {
	switch {
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrInvalidConfig):
		return KindInvalidArgument
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	case errors.Is(err, ErrRateLimited):
		return KindRateLimited
	case errors.Is(err, ErrEmbeddingFailed), errors.Is(err, ErrLLMOperation):
		return KindProviderError
	case errors.Is(err, ErrExternalConflict):
		return KindExternalConflict
	case errors.Is(err, ErrSyncTokenExpired):
		return KindSyncTokenExpired
	case errors.Is(err, ErrConnectionFailed), errors.Is(err, ErrStorageOperation):
		return KindInternal
	default:
		return KindInternal
	}
}

// KindOf returns the Kind carried by err if it (or something it wraps) is a
// *MemoryError, and KindInternal otherwise.
func KindOf(err error) Kind {
	var me *MemoryError
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternal
}
