package matrix

import (
	"fmt"

	"github.com/pkg/errors"
)

// APIError carries the request and response details of a failed call
// against the homeserver, so isolated failures can be diagnosed and
// retried manually.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("received status code %d for %s %s: %s", err.StatusCode, err.Method, err.Path, err.Body)
}

func AsAPIError(err error) (*APIError, bool) {
	apiErr, ok := errors.Cause(err).(*APIError)
	return apiErr, ok
}
