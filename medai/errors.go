package medai

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNoSession means there is no stored session (or no refresh token)
	// to work with.
	ErrNoSession = errors.New("no active session")

	// ErrUnauthorized is the terminal authentication failure surfaced to
	// callers once recovery is not possible. Check with errors.Is.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRefreshExhausted means a refresh already failed for this session;
	// no further refresh happens until a new login.
	ErrRefreshExhausted = errors.New("token refresh already attempted")

	// ErrRefreshFailed wraps any refresh call failure: network error,
	// rejected refresh token, or malformed response.
	ErrRefreshFailed = errors.New("token refresh failed")
)

// APIError describes a non-2xx response from the backend.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("request failed: %s %s (status: %d)", e.Method, e.URL, e.StatusCode)
}

func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}
