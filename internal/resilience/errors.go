package resilience

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
)

// Error taxonomy shared by the scoring pipeline. Extraction gaps are not
// errors and are represented as nil fields on model.ExtractedFields.
var (
	// ErrUnconfigured means the reasoning service has no credential.
	ErrUnconfigured = eris.New("reasoning service unconfigured")
	// ErrUnavailable covers transport failures, timeouts, an open circuit
	// and an exhausted local call budget.
	ErrUnavailable = eris.New("reasoning service unavailable")
	// ErrSchemaViolation means a reasoning response did not match its contract.
	ErrSchemaViolation = eris.New("reasoning response violates schema")
	// ErrPersistence marks a failed audit or listing write.
	ErrPersistence = eris.New("persistence failure")
)

// RateLimitedError is returned when the request governor denies a call.
// It is the only pipeline failure surfaced to callers with retry timing.
type RateLimitedError struct {
	Identity          string
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited: retry after %ds", e.RetryAfterSeconds)
}

// AsRateLimited extracts a RateLimitedError from an error chain.
func AsRateLimited(err error) (*RateLimitedError, bool) {
	var rl *RateLimitedError
	if errors.As(err, &rl) {
		return rl, true
	}
	return nil, false
}

// TransientError wraps a transport-level failure from an external service.
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// IsTransient reports whether err looks like a network or server-side
// failure. Transient errors trip the circuit breaker; caller mistakes
// (bad request, auth) do not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"no such host",
		"i/o timeout",
		"context deadline exceeded",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientHTTPStatus returns true for status codes that indicate an
// overloaded or failing upstream.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
