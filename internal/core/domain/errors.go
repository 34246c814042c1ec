package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrAuthenticationFailed indicates credentials were invalid, expired,
	// or refused by the provider, including OAuth errors signalled in an
	// HTTP 200 body.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrPermissionDenied indicates the caller authenticated but is not
	// authorised for the resource.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrDocumentNotFound indicates the requested document does not exist.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrRepositoryNotFound indicates the requested repository does not exist.
	ErrRepositoryNotFound = errors.New("repository not found")

	// ErrAccountNotFound indicates the requested connected account does not exist.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidConfiguration indicates connector or driver config is
	// malformed. Caller error; never retried.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidURL indicates a malformed resource URL. Never retried.
	ErrInvalidURL = errors.New("invalid url")

	// ErrInvalidCredentials indicates credentials fail local validation
	// before any provider call. Never retried.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNetwork indicates a transport failure (DNS, timeout, 5xx).
	// Retried with backoff.
	ErrNetwork = errors.New("network error")

	// ErrUnsupportedOperation indicates the provider does not implement
	// the operation. Never retried.
	ErrUnsupportedOperation = errors.New("unsupported operation")

	// ErrRateLimited indicates the provider rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")

	// ErrSyncInProgress indicates a sync is already running for the account.
	ErrSyncInProgress = errors.New("sync in progress")

	// ErrCache indicates a local cache failure. Logged, not surfaced.
	ErrCache = errors.New("cache error")

	// ErrIndex indicates a local search index failure. Logged, not surfaced.
	ErrIndex = errors.New("index error")
)

// HTTPError is a non-2xx provider response not otherwise classified.
// Retried only for 5xx status codes.
type HTTPError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("http error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("http error: status %d: %s", e.StatusCode, e.Body)
}

// OperationError is the catch-all for provider operation failures.
type OperationError struct {
	Op  string
	Msg string
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s failed: %s: %v", e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Msg)
}

// Unwrap exposes the wrapped cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// MapHTTPStatus converts a provider HTTP status into the domain error
// taxonomy. The raw response body is carried along for diagnosis.
func MapHTTPStatus(status int, body string) error {
	switch {
	case status == 401:
		return fmt.Errorf("%w: status 401: %s", ErrAuthenticationFailed, body)
	case status == 403:
		return fmt.Errorf("%w: status 403: %s", ErrPermissionDenied, body)
	case status == 404:
		return fmt.Errorf("%w: status 404: %s", ErrDocumentNotFound, body)
	case status == 429:
		return fmt.Errorf("%w: status 429: %s", ErrRateLimited, body)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", ErrNetwork, status, body)
	case status >= 400:
		return &HTTPError{StatusCode: status, Body: body}
	default:
		return nil
	}
}

// IsRetryable reports whether an error is transient. Network failures
// and 5xx responses are retried with backoff; everything else is
// surfaced immediately.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrNetwork) || errors.Is(err, ErrRateLimited) {
		return true
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= 500
	}
	return false
}

// IsTerminal reports whether an error should flip the account status to
// error rather than leaving it connected with partial results.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrAuthenticationFailed) ||
		errors.Is(err, ErrInvalidCredentials) ||
		errors.Is(err, ErrInvalidConfiguration)
}
