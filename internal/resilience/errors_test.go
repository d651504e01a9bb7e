package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
)

func TestIsTransient_ExplicitTransientError(t *testing.T) {
	err := NewTransientError(errors.New("server overloaded"), 503)
	if !IsTransient(err) {
		t.Error("expected TransientError to be transient")
	}
}

func TestIsTransient_Wrapped(t *testing.T) {
	wrapped := eris.Wrap(NewTransientError(errors.New("rate limited"), 429), "review call")
	if !IsTransient(wrapped) {
		t.Error("expected wrapped TransientError to be transient")
	}
}

func TestIsTransient_Nil(t *testing.T) {
	if IsTransient(nil) {
		t.Error("nil error should not be transient")
	}
}

func TestIsTransient_RegularError(t *testing.T) {
	if IsTransient(errors.New("invalid input: missing field")) {
		t.Error("regular error should not be transient")
	}
}

func TestIsTransient_Syscall(t *testing.T) {
	for _, e := range []error{syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.ECONNABORTED} {
		if !IsTransient(fmt.Errorf("dial: %w", e)) {
			t.Errorf("expected %v to be transient", e)
		}
	}
}

func TestIsTransient_MessagePatterns(t *testing.T) {
	if !IsTransient(errors.New("read tcp: i/o timeout")) {
		t.Error("expected i/o timeout to be transient")
	}
	if !IsTransient(errors.New("Post \"https://api\": context deadline exceeded")) {
		t.Error("expected deadline exceeded to be transient")
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		if !IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be transient", code)
		}
	}
	for _, code := range []int{200, 400, 401, 404} {
		if IsTransientHTTPStatus(code) {
			t.Errorf("expected %d to be permanent", code)
		}
	}
}

func TestRateLimitedError(t *testing.T) {
	err := eris.Wrap(&RateLimitedError{Identity: "u1", RetryAfterSeconds: 42}, "admit")

	rl, ok := AsRateLimited(err)
	if !ok {
		t.Fatal("expected RateLimitedError in chain")
	}
	if rl.RetryAfterSeconds != 42 {
		t.Errorf("RetryAfterSeconds = %d, want 42", rl.RetryAfterSeconds)
	}
	if rl.Error() != "rate limited: retry after 42s" {
		t.Errorf("unexpected message %q", rl.Error())
	}

	if _, ok := AsRateLimited(ErrUnavailable); ok {
		t.Error("ErrUnavailable is not a RateLimitedError")
	}
}

func TestSentinelsWrap(t *testing.T) {
	err := eris.Wrap(ErrSchemaViolation, "decode review")
	if !errors.Is(err, ErrSchemaViolation) {
		t.Error("expected wrapped sentinel to match")
	}
	if errors.Is(err, ErrUnavailable) {
		t.Error("sentinels must be distinct")
	}
}
