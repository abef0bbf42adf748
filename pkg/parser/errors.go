package parser

import (
	"context"
	"errors"
	"fmt"
)

// ParseErrorKind classifies why a file produced no FileContext.
type ParseErrorKind string

const (
	ErrKindUnsupported ParseErrorKind = "unsupported"
	ErrKindRead        ParseErrorKind = "read"
	ErrKindSyntax      ParseErrorKind = "syntax"
	ErrKindTimeout     ParseErrorKind = "timeout"
	ErrKindTooLarge    ParseErrorKind = "too_large"
	ErrKindCanceled    ParseErrorKind = "canceled"
)

// ErrUnsupported is wrapped by ParseErrors for files no front-end handles.
var ErrUnsupported = errors.New("no front-end registered")

// ParseError is a per-file failure. It never aborts a run: the file is
// counted but left out of the graph and every pass.
type ParseError struct {
	Path string         `json:"path"`
	Kind ParseErrorKind `json:"kind"`
	Err  error          `json:"-"`
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Message returns the underlying cause as text, for serialisation.
func (e *ParseError) Message() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return e.Err.Error()
}

// NewParseError wraps err for path, classifying context errors as
// timeouts or cancellations.
func NewParseError(path string, kind ParseErrorKind, err error) *ParseError {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = ErrKindTimeout
	case errors.Is(err, context.Canceled):
		kind = ErrKindCanceled
	case errors.Is(err, ErrUnsupported):
		kind = ErrKindUnsupported
	}
	return &ParseError{Path: path, Kind: kind, Err: err}
}
