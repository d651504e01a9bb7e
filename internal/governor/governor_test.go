package governor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/resilience"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestGovernor(t *testing.T, store BucketStore) (*Governor, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)}
	g, err := New(store, Config{Capacity: 10, Window: 10 * time.Minute}, WithClock(clock.Now))
	require.NoError(t, err)
	return g, clock
}

func TestAdmit_EleventhCallDenied(t *testing.T) {
	g, clock := newTestGovernor(t, NewMemoryStore())
	ctx := context.Background()

	for i := range 10 {
		d := g.Admit(ctx, "user:u1")
		require.True(t, d.Allowed, "call %d", i+1)
		assert.Equal(t, int64(9-i), d.Remaining)
	}

	clock.Advance(4*time.Minute + 500*time.Millisecond)
	d := g.Admit(ctx, "user:u1")
	assert.False(t, d.Allowed)
	assert.Equal(t, 360, d.RetryAfterSeconds) // ceil(359.5)

	var rl *resilience.RateLimitedError
	require.ErrorAs(t, d.Err("user:u1"), &rl)
	assert.Equal(t, 360, rl.RetryAfterSeconds)
}

func TestAdmit_AllowedAfterWindowExpiry(t *testing.T) {
	g, clock := newTestGovernor(t, NewMemoryStore())
	ctx := context.Background()

	for range 10 {
		g.Admit(ctx, "user:u1")
	}
	require.False(t, g.Admit(ctx, "user:u1").Allowed)

	clock.Advance(10 * time.Minute)
	require.False(t, g.Admit(ctx, "user:u1").Allowed, "window end itself is still inside")

	clock.Advance(time.Millisecond)
	d := g.Admit(ctx, "user:u1")
	assert.True(t, d.Allowed)
	assert.Equal(t, int64(9), d.Remaining)
	assert.Equal(t, clock.Now().Add(10*time.Minute), d.ResetAt)
}

func TestAdmit_DeniedCallsDoNotExtendWindow(t *testing.T) {
	store := NewMemoryStore()
	g, clock := newTestGovernor(t, store)
	ctx := context.Background()

	for range 15 {
		g.Admit(ctx, "k")
		clock.Advance(time.Second)
	}
	b, ok, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(10), b.Count)
}

func TestAdmit_IdentitiesAreIndependent(t *testing.T) {
	g, _ := newTestGovernor(t, NewMemoryStore())
	ctx := context.Background()

	for range 10 {
		g.Admit(ctx, "user:a")
	}
	assert.False(t, g.Admit(ctx, "user:a").Allowed)
	assert.True(t, g.Admit(ctx, "user:b").Allowed)
}

func TestAdmit_ConcurrentSameIdentity(t *testing.T) {
	g, _ := newTestGovernor(t, NewMemoryStore())
	ctx := context.Background()

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.Admit(ctx, "user:burst").Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(10), allowed.Load())
}

func TestRetryAfter(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, RetryAfter(now, now))
	assert.Equal(t, 1, RetryAfter(now.Add(-time.Second), now))
	assert.Equal(t, 1, RetryAfter(now.Add(time.Millisecond), now))
	assert.Equal(t, 2, RetryAfter(now.Add(1001*time.Millisecond), now))
	assert.Equal(t, 600, RetryAfter(now.Add(10*time.Minute), now))
}

func TestIdentity(t *testing.T) {
	assert.Equal(t, "user:u1", Identity("u1", "10.0.0.1"))
	assert.Equal(t, "origin:10.0.0.1", Identity("  ", "10.0.0.1"))
	assert.Equal(t, Anonymous, Identity("", ""))
}

type failingStore struct {
	getErr, incErr error
}

func (f failingStore) Get(context.Context, string) (model.RateBucket, bool, error) {
	return model.RateBucket{}, false, f.getErr
}

func (f failingStore) Set(context.Context, string, model.RateBucket) error { return nil }

func (f failingStore) Increment(_ context.Context, _ string, w time.Duration, now time.Time) (model.RateBucket, error) {
	if f.incErr != nil {
		return model.RateBucket{}, f.incErr
	}
	return model.RateBucket{Count: 1, ResetAt: now.Add(w)}, nil
}

func TestAdmit_FailsOpen(t *testing.T) {
	for _, store := range []failingStore{
		{getErr: errors.New("connection refused")},
		{incErr: errors.New("i/o timeout")},
	} {
		g, _ := newTestGovernor(t, store)
		d := g.Admit(context.Background(), "user:u1")
		assert.True(t, d.Allowed)
		assert.True(t, d.FailOpen)
		assert.NoError(t, d.Err("user:u1"))
	}
}

func TestNew_Defaults(t *testing.T) {
	g, err := New(NewMemoryStore(), Config{})
	require.NoError(t, err)
	assert.Equal(t, int64(DefaultCapacity), g.capacity)
	assert.Equal(t, DefaultWindow, g.window)

	_, err = New(nil, Config{})
	assert.Error(t, err)
}
