package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// AuthError indicates the server rejected the account's credentials.
// It is fatal for that credential set until a new secret is supplied.
type AuthError struct {
	Address string
	Hint    string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("authentication failed for %s: %v (%s)", e.Address, e.Err, e.Hint)
	}
	return fmt.Sprintf("authentication failed for %s: %v", e.Address, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is or wraps an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// ConnectError indicates the transport endpoint could not be reached or
// the session broke mid-operation. Retryable with backoff.
type ConnectError struct {
	Endpoint string
	Timeout  bool
	Err      error
}

func (e *ConnectError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("timeout connecting to %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("cannot reach %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// connectError classifies err against net.Error to set the Timeout flag.
func connectError(endpoint string, err error) *ConnectError {
	ce := &ConnectError{Endpoint: endpoint, Err: err}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ce.Timeout = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ce.Timeout = true
	}
	return ce
}

// IsRetryable reports whether the operation that produced err may be
// retried later. Authentication failures are not retryable; connection
// failures are.
func IsRetryable(err error) bool {
	if IsAuthError(err) {
		return false
	}
	var connErr *ConnectError
	return errors.As(err, &connErr)
}
