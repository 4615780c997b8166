package quickbooks

import (
	"errors"
	"fmt"
)

var (
	// ErrTokenRejected means the token endpoint refused the code or refresh token.
	ErrTokenRejected = errors.New("quickbooks token rejected")
	// ErrForbidden means the API answered 403 for the realm.
	ErrForbidden = errors.New("quickbooks access forbidden")
	// ErrTransport covers network failures, timeouts and unexpected statuses.
	ErrTransport = errors.New("quickbooks transport failure")
	// ErrMalformedResponse means a 2xx body could not be decoded.
	ErrMalformedResponse = errors.New("quickbooks malformed response")
)

// APIError describes a non-2xx answer from Intuit.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }
