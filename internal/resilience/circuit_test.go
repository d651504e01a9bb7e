package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreaker(threshold int, reset time.Duration) (*CircuitBreaker, *fakeClock) {
	clk := &fakeClock{now: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: threshold, ResetTimeout: reset, Now: clk.Now})
	return cb, clk
}

func fail(_ context.Context) (string, error) { return "", errors.New("upstream 503") }

func ok(_ context.Context) (string, error) { return `{"textScore":80}`, nil }

func TestCall_ClosedPassesThrough(t *testing.T) {
	cb := NewCircuitBreaker(DefaultCircuitBreakerConfig())

	got, err := Call(context.Background(), cb, ok)
	require.NoError(t, err)
	assert.Equal(t, `{"textScore":80}`, got)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCall_OpensAfterThreshold(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	for range 3 {
		_, _ = Call(context.Background(), cb, fail)
	}
	require.Equal(t, CircuitOpen, cb.State())

	_, err := Call(context.Background(), cb, func(context.Context) (string, error) {
		t.Error("should not be called when circuit is open")
		return "", nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCall_SuccessResetsFailures(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute)

	_, _ = Call(context.Background(), cb, fail)
	_, _ = Call(context.Background(), cb, fail)
	assert.Equal(t, 2, cb.Snapshot().ConsecutiveFailures)

	_, _ = Call(context.Background(), cb, ok)
	snap := cb.Snapshot()
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Equal(t, CircuitClosed, snap.State)
}

func TestCall_HalfOpenProbeCloses(t *testing.T) {
	cb, clk := newTestBreaker(1, 30*time.Second)

	_, _ = Call(context.Background(), cb, fail)
	require.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, clk.Now(), cb.Snapshot().OpenedAt)

	clk.Advance(31 * time.Second)
	require.Equal(t, CircuitHalfOpen, cb.State())

	_, err := Call(context.Background(), cb, ok)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCall_HalfOpenFailureReopens(t *testing.T) {
	cb, clk := newTestBreaker(1, 30*time.Second)

	_, _ = Call(context.Background(), cb, fail)
	clk.Advance(31 * time.Second)
	_, _ = Call(context.Background(), cb, fail)

	assert.Equal(t, CircuitOpen, cb.State())

	clk.Advance(10 * time.Second)
	_, err := Call(context.Background(), cb, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen, "cooldown restarts on a failed probe")
}

func TestCall_SingleProbeInFlight(t *testing.T) {
	cb, clk := newTestBreaker(1, time.Second)
	_, _ = Call(context.Background(), cb, fail)
	clk.Advance(2 * time.Second)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := Call(context.Background(), cb, func(context.Context) (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
		done <- err
	}()
	<-started

	_, err := Call(context.Background(), cb, ok)
	assert.ErrorIs(t, err, ErrCircuitOpen, "second caller is rejected while the probe runs")

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCall_ShouldTripFiltersErrors(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, ShouldTrip: IsTransient})

	_, _ = Call(context.Background(), cb, func(context.Context) (string, error) {
		return "", errors.New("invalid api key")
	})
	assert.Equal(t, CircuitClosed, cb.State(), "non-transient error should not trip")

	_, _ = Call(context.Background(), cb, func(context.Context) (string, error) {
		return "", NewTransientError(errors.New("overloaded"), 529)
	})
	assert.Equal(t, CircuitOpen, cb.State(), "transient error should trip")
}

func TestCircuitBreaker_OnStateChange(t *testing.T) {
	var transitions []string
	cb, clk := newTestBreaker(1, time.Second)
	cb.cfg.OnStateChange = func(from, to CircuitState) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	_, _ = Call(context.Background(), cb, fail)
	clk.Advance(time.Second)
	_, _ = Call(context.Background(), cb, ok)

	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestCall_ConcurrentFailures(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1000})

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = Call(context.Background(), cb, fail)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, cb.Snapshot().ConsecutiveFailures)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestFromCircuitConfig(t *testing.T) {
	cfg := FromCircuitConfig(0, 0)
	assert.Equal(t, 5, cfg.FailureThreshold)
	assert.Equal(t, 30*time.Second, cfg.ResetTimeout)

	cfg = FromCircuitConfig(2, time.Minute)
	assert.Equal(t, 2, cfg.FailureThreshold)
	assert.Equal(t, time.Minute, cfg.ResetTimeout)
}
