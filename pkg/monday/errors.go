package monday

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingToken is returned by NewClient when no API token is configured.
var ErrMissingToken = errors.New("monday: api token is required")

// TransportError means the call never produced a usable GraphQL response:
// the network failed, the retries ran out, or the server answered with an
// HTTP error status.
type TransportError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("monday transport: %v", e.Err)
	}
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("monday transport: http %d: %s", e.StatusCode, body)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError means the request reached the API but the API rejected it.
type APIError struct {
	Messages []string
	Code     string
}

func (e *APIError) Error() string {
	msg := strings.Join(e.Messages, "; ")
	if e.Code != "" {
		return fmt.Sprintf("monday api [%s]: %s", e.Code, msg)
	}
	return "monday api: " + msg
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsAPI reports whether err is (or wraps) an APIError.
func IsAPI(err error) bool {
	var ae *APIError
	return errors.As(err, &ae)
}
