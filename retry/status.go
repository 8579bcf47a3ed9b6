package retry

import (
	"errors"
	"fmt"
	"net/http"
)

// StatusCoder is implemented by errors that carry a transport status code.
type StatusCoder interface {
	StatusCode() int
}

// StatusError is a collaborator failure carrying an HTTP status code.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("status %d: %s", e.Code, msg)
}

// StatusCode implements StatusCoder.
func (e *StatusError) StatusCode() int { return e.Code }

// StatusCode extracts the status code carried anywhere in err's chain.
func StatusCode(err error) (int, bool) {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode(), true
	}
	return 0, false
}

// IsServerError reports whether err carries a status code >= 500.
// Errors without a status code are not retryable.
func IsServerError(err error) bool {
	code, ok := StatusCode(err)
	return ok && code >= http.StatusInternalServerError
}
