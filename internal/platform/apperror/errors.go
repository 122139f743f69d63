// Package apperror defines the error kinds shared by the inventory core and
// their mapping onto HTTP responses.
package apperror

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// Error kinds. Domain code wraps these with fmt.Errorf("...: %w") or with a
// typed error whose Unwrap returns one of them.
var (
	ErrInsufficientStock      = errors.New("insufficient stock")
	ErrNotFound               = errors.New("not found")
	ErrInvalidState           = errors.New("invalid state")
	ErrConcurrentModification = errors.New("concurrent modification")
	ErrInvalidInput           = errors.New("invalid input")
)

// Detailer is implemented by errors that carry extra fields for the client,
// such as the remaining quantity on an insufficient-stock rejection.
type Detailer interface {
	Details() map[string]interface{}
}

// Response is the JSON body returned for a failed request.
type Response struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	// Retryable tells the client the same request may succeed if resent.
	Retryable bool `json:"retryable,omitempty"`
}

// Code returns the stable error code for err, or "internal" when err does
// not belong to a known kind.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrConcurrentModification):
		return "concurrent_modification"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	default:
		return "internal"
	}
}

// Status returns the HTTP status for err.
func Status(err error) int {
	switch Code(err) {
	case "insufficient_stock":
		return http.StatusUnprocessableEntity
	case "not_found":
		return http.StatusNotFound
	case "invalid_state", "concurrent_modification":
		return http.StatusConflict
	case "invalid_input":
		return http.StatusBadRequest
	case "timeout":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the whole operation unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// HTTPError converts err into an echo.HTTPError with a Response body.
// Internal errors are not echoed back to the client.
func HTTPError(err error) *echo.HTTPError {
	status := Status(err)
	resp := Response{Code: Code(err), Message: err.Error(), Retryable: Retryable(err)}
	if status == http.StatusInternalServerError {
		resp.Message = "internal server error"
	}
	var d Detailer
	if errors.As(err, &d) {
		resp.Details = d.Details()
	}
	return echo.NewHTTPError(status, resp).SetInternal(err)
}
