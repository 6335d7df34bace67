package storefront

import (
	"fmt"
	"net/http"

	"github.com/ericfisherdev/storepanel/internal/domain/port/driven"
)

// APIError is returned for any non-2xx backend response. It matches the
// driven port sentinels with errors.Is according to its status code.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s %s: backend returned %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: backend returned %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
}

// Is maps the status code onto the driven port sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case driven.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case driven.ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case driven.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case driven.ErrConflict:
		return e.StatusCode == http.StatusConflict
	case driven.ErrInvalidInput:
		return e.StatusCode == http.StatusBadRequest || e.StatusCode == http.StatusUnprocessableEntity
	default:
		return false
	}
}
