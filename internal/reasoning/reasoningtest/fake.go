// Package reasoningtest provides a scripted Reasoner for tests.
package reasoningtest

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/listing-trust/internal/reasoning"
)

// Fake is a Reasoner that returns a fixed response or error and records
// every request it receives.
type Fake struct {
	Response string
	Err      error
	// Delay blocks each call until it elapses or the context ends.
	Delay time.Duration

	mu       sync.Mutex
	requests []reasoning.Request
}

// Name implements reasoning.Reasoner.
func (f *Fake) Name() string { return "fake" }

// Complete implements reasoning.Reasoner.
func (f *Fake) Complete(ctx context.Context, req reasoning.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.Err != nil {
		return "", f.Err
	}
	return f.Response, nil
}

// Requests returns a copy of the recorded requests.
func (f *Fake) Requests() []reasoning.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]reasoning.Request(nil), f.requests...)
}

// Calls returns the number of recorded requests.
func (f *Fake) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

// Guard wraps f in a reasoning.Guard with a short timeout and no budget.
func Guard(f *Fake) *reasoning.Guard {
	return reasoning.NewGuard(f, reasoning.GuardConfig{Timeout: 2 * time.Second})
}
