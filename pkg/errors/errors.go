package errors

import (
	"errors"
	"net/http"
)

// Sentinel errors for the core taxonomy. Components wrap these with
// fmt.Errorf("...: %w", ...) and callers test with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrConflict         = errors.New("conflict")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrTransientNetwork = errors.New("transient network failure")
)

// HTTPStatus maps a taxonomy error to an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ErrTransientNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// FromHTTPStatus maps a response status code back to a taxonomy error.
// Returns nil for 2xx codes.
func FromHTTPStatus(code int) error {
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code == http.StatusForbidden || code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusBadRequest:
		return ErrInvalidArgument
	case code >= 500:
		return ErrTransientNetwork
	default:
		return errors.New(http.StatusText(code))
	}
}
