// Package tracerr declares the error-kind taxonomy shared across tracegraph's
// core subsystems.
//
// Each kind is a sentinel value checked with errors.Is, following idiomatic
// Go error handling rather than a closed tagged-union the way the distilled
// source expressed it. Call [Wrap] to attach a kind to an underlying cause;
// callers inspect the kind with [KindOf] or errors.Is against the sentinels
// below.
package tracerr

import (
	"errors"
	"fmt"
)

// Kind classifies a tracegraph error for programmatic handling (HTTP status
// mapping, retry policy, logging level).
type Kind error

var (
	SchemaNotLoaded               Kind = errors.New("schema not loaded")
	SchemaInvalid                 Kind = errors.New("schema invalid")
	EntityTypeUnknown             Kind = errors.New("entity type unknown")
	RelationTypeUnknown           Kind = errors.New("relation type unknown")
	PropertyMissing               Kind = errors.New("property missing")
	PropertyTypeMismatch          Kind = errors.New("property type mismatch")
	CardinalityViolation          Kind = errors.New("cardinality violation")
	ConstraintViolation           Kind = errors.New("constraint violation")
	RelationEndpointsIncompatible Kind = errors.New("relation endpoints incompatible")
	FunctionalRelationExceeded    Kind = errors.New("functional relation exceeded")
	GraphStoreFailure             Kind = errors.New("graph store failure")
	VectorStoreFailure            Kind = errors.New("vector store failure")
	EmbeddingFailure              Kind = errors.New("embedding failure")
	TraceResolutionFailure        Kind = errors.New("trace resolution failure")
	NotFound                      Kind = errors.New("not found")
	InvalidQuery                  Kind = errors.New("invalid query")
)

// Error pairs a [Kind] with the underlying cause and optional context.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target matches this error's Kind, so that
// errors.Is(err, tracerr.NotFound) works through any number of fmt.Errorf wraps.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// Wrap attaches kind to err under operation op. Returns nil if err is nil.
func Wrap(op string, kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// New constructs a kinded error with no further cause.
func New(op string, kind Kind) error {
	return &Error{Kind: kind, Op: op}
}

// KindOf walks err's chain and returns the first attached [Kind], or nil if
// err was never wrapped by [Wrap] or [New].
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return nil
}
