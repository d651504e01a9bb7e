package governor

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/listing-trust/internal/model"
)

func TestMemoryStore_IncrementResetsExpired(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	b, err := s.Increment(ctx, "k", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, model.RateBucket{Count: 1, ResetAt: now.Add(time.Minute)}, b)

	b, _ = s.Increment(ctx, "k", time.Minute, now.Add(30*time.Second))
	assert.Equal(t, int64(2), b.Count)
	assert.Equal(t, now.Add(time.Minute), b.ResetAt)

	later := now.Add(61 * time.Second)
	b, _ = s.Increment(ctx, "k", time.Minute, later)
	assert.Equal(t, model.RateBucket{Count: 1, ResetAt: later.Add(time.Minute)}, b)
}

func TestMemoryStore_GetSet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := model.RateBucket{Count: 7, ResetAt: time.Unix(1700000000, 0)}
	require.NoError(t, s.Set(ctx, "k", want))
	got, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, want, got)
}

func TestMemoryStore_Sweep(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	_, _ = s.Increment(ctx, "old", time.Minute, now)
	_, _ = s.Increment(ctx, "fresh", time.Hour, now)

	assert.Equal(t, 1, s.Sweep(now.Add(2*time.Minute)))
	_, ok, _ := s.Get(ctx, "old")
	assert.False(t, ok)
	_, ok, _ = s.Get(ctx, "fresh")
	assert.True(t, ok)
}

func TestMemoryStore_SweptCellTakesNoWrites(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	// An empty cell, as left by a writer between lookup and lock.
	v, _ := s.cells.LoadOrStore("k", &cell{})
	stale := v.(*cell)
	require.Equal(t, 1, s.Sweep(now))
	assert.True(t, stale.dead)

	b, err := s.Increment(ctx, "k", time.Minute, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), b.Count)
	assert.False(t, stale.ok, "write went to a fresh cell")

	got, ok, _ := s.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, int64(1), got.Count)
}

func TestMemoryStore_SweepConcurrentIncrements(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2025, 10, 1, 12, 0, 0, 0, time.UTC)

	const workers, perWorker = 16, 50
	stop := make(chan struct{})
	swept := make(chan struct{})
	go func() {
		defer close(swept)
		for {
			select {
			case <-stop:
				return
			default:
				s.Sweep(now)
			}
		}
	}()

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := fmt.Sprintf("user:%d", w%4)
			for range perWorker {
				_, err := s.Increment(ctx, key, time.Minute, now)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
	close(stop)
	<-swept

	var total int64
	for i := range 4 {
		b, ok, _ := s.Get(ctx, fmt.Sprintf("user:%d", i))
		require.True(t, ok)
		total += b.Count
	}
	assert.Equal(t, int64(workers*perWorker), total, "no increment lost to a swept cell")
}

func TestMemoryStore_RunSweeperStops(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		s.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}

func modelBucket(count int64, resetAt time.Time) model.RateBucket {
	return model.RateBucket{Count: count, ResetAt: resetAt}
}
