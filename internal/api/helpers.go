package api

import (
	"fmt"
	"io"
	"net/http"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

func writeBadRequest(c *echo.Context, msg string) error {
	return writeError(c, http.StatusBadRequest, "invalid_request_error", msg)
}

func writeError(c *echo.Context, status int, errType, msg string) error {
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    errType,
		},
	})
}

// writeInferenceError picks the status from the error kind.
func writeInferenceError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	return writeError(c, status, errType, FlattenError(err))
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	if r == nil {
		return out, newInvalidRequest("request body is required")
	}
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return out, newInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
	}
	return out, nil
}

func newCompletionID() string {
	return "cmpl-" + uuid.NewString()
}

func strPtr(s string) *string { return &s }
