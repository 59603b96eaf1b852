package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tsuki-kuma/tsuki/internal/inference"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// FlattenError renders err as one line of text for display.
func FlattenError(err error) string {
	if err == nil {
		return ""
	}
	return strings.Join(strings.Fields(err.Error()), " ")
}

// flatError carries the flattened message while keeping the chain for
// errors.Is.
type flatError struct {
	msg string
	err error
}

func (e *flatError) Error() string { return e.msg }
func (e *flatError) Unwrap() error { return e.err }

func flatten(err error) error {
	if err == nil {
		return nil
	}
	return &flatError{msg: FlattenError(err), err: err}
}

// statusFor maps an error onto an HTTP status and error type.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, inference.ErrInvalidConfig):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, inference.ErrUninitializedResource):
		return http.StatusServiceUnavailable, "model_unavailable"
	case errors.Is(err, inference.ErrCanceled):
		return http.StatusRequestTimeout, "canceled"
	}
	return http.StatusInternalServerError, "server_error"
}
