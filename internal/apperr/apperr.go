// Package apperr defines the closed set of error kinds the pipeline can
// fail with, each a sentinel joined into the wrapping error chain with
// %w so callers can classify a failure with errors.Is without parsing
// strings.
package apperr

import "errors"

// Kind is one of the fixed failure categories a pipeline stage can report.
type Kind string

const (
	KindInputInvalid               Kind = "input_invalid"
	KindIntentUnparseable          Kind = "intent_unparseable"
	KindPlanInvalid                Kind = "plan_invalid"
	KindEmbeddingUnavailable       Kind = "embedding_unavailable"
	KindEmbeddingDimensionMismatch Kind = "embedding_dimension_mismatch"
	KindVectorStoreError           Kind = "vector_store_error"
	KindDocumentStoreError         Kind = "document_store_error"
	KindTimeout                    Kind = "timeout"
	KindPartialFailure             Kind = "partial_failure"
	KindFatalConfig                Kind = "fatal_config"
)

var (
	ErrInputInvalid               = errors.New("input invalid")
	ErrIntentUnparseable          = errors.New("intent unparseable")
	ErrPlanInvalid                = errors.New("plan invalid")
	ErrEmbeddingUnavailable       = errors.New("embedding provider unavailable")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrVectorStoreError           = errors.New("vector store error")
	ErrDocumentStoreError         = errors.New("document store error")
	ErrTimeout                    = errors.New("operation timed out")
	ErrPartialFailure             = errors.New("partial failure")
	ErrFatalConfig                = errors.New("fatal configuration error")
)

var sentinels = map[Kind]error{
	KindInputInvalid:               ErrInputInvalid,
	KindIntentUnparseable:          ErrIntentUnparseable,
	KindPlanInvalid:                ErrPlanInvalid,
	KindEmbeddingUnavailable:       ErrEmbeddingUnavailable,
	KindEmbeddingDimensionMismatch: ErrEmbeddingDimensionMismatch,
	KindVectorStoreError:           ErrVectorStoreError,
	KindDocumentStoreError:         ErrDocumentStoreError,
	KindTimeout:                    ErrTimeout,
	KindPartialFailure:             ErrPartialFailure,
	KindFatalConfig:                ErrFatalConfig,
}

// Error wraps an underlying cause with a classified Kind.
type Error struct {
	Kind  Kind
	Stage string
	Err   error
}

func (e *Error) Error() string {
	if e.Stage == "" {
		return string(e.Kind) + ": " + e.Err.Error()
	}
	return e.Stage + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports equality against the sentinel for e.Kind, so
// errors.Is(err, apperr.ErrTimeout) works regardless of the wrapped cause.
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinels[e.Kind]
	return ok && errors.Is(sentinel, target)
}

// Wrap classifies err under kind and stage, producing an *Error suitable
// for fmt.Errorf("%w", ...) chaining further up the call stack.
func Wrap(kind Kind, stage string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Stage: stage, Err: err}
}

// Of extracts the Kind of err if it (or something it wraps) is an *Error,
// reporting ok=false otherwise.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
