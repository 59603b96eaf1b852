package inference

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by Generate matches exactly one of them
// under errors.Is.
var (
	ErrInvalidConfig         = errors.New("invalid generation config")
	ErrTokenization          = errors.New("tokenization failed")
	ErrBackend               = errors.New("model backend failed")
	ErrUninitializedResource = errors.New("model resource not initialized")
	ErrSampling              = errors.New("sampling failed")
	ErrCanceled              = errors.New("generation canceled")
)

// Error tags a failure with its kind and the operation that produced it.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func invalidConfig(format string, args ...any) *Error {
	return newError(ErrInvalidConfig, "validate", fmt.Errorf(format, args...))
}

// KindOf returns the kind sentinel of err, or nil when err carries none.
func KindOf(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return nil
}
