package governor

import (
	"context"
	"sync"
	"time"

	"github.com/sells-group/listing-trust/internal/model"
)

// cell is one identity's bucket with its own lock. A dead cell has been
// swept from the map and must not take writes.
type cell struct {
	mu     sync.Mutex
	bucket model.RateBucket
	ok     bool
	dead   bool
}

// MemoryStore keeps buckets in process. Each identity has its own cell, so
// identities never contend on a shared lock.
type MemoryStore struct {
	cells sync.Map // string -> *cell
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// lock returns key's live cell, locked. A cell swept between lookup and
// lock is skipped and the lookup retried.
func (m *MemoryStore) lock(key string) *cell {
	for {
		v, ok := m.cells.Load(key)
		if !ok {
			v, _ = m.cells.LoadOrStore(key, &cell{})
		}
		c := v.(*cell)
		c.mu.Lock()
		if !c.dead {
			return c
		}
		c.mu.Unlock()
	}
}

// Get implements BucketStore.
func (m *MemoryStore) Get(_ context.Context, key string) (model.RateBucket, bool, error) {
	v, ok := m.cells.Load(key)
	if !ok {
		return model.RateBucket{}, false, nil
	}
	c := v.(*cell)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead {
		return model.RateBucket{}, false, nil
	}
	return c.bucket, c.ok, nil
}

// Set implements BucketStore.
func (m *MemoryStore) Set(_ context.Context, key string, b model.RateBucket) error {
	c := m.lock(key)
	c.bucket, c.ok = b, true
	c.mu.Unlock()
	return nil
}

// Increment implements BucketStore.
func (m *MemoryStore) Increment(_ context.Context, key string, window time.Duration, now time.Time) (model.RateBucket, error) {
	c := m.lock(key)
	defer c.mu.Unlock()

	if !c.ok || c.bucket.Expired(now) {
		c.bucket = model.RateBucket{ResetAt: now.Add(window)}
		c.ok = true
	}
	c.bucket.Count++
	return c.bucket, nil
}

// Sweep drops buckets whose window closed before now and returns how many
// were removed. The expiry check and the delete happen under the cell's
// lock, so a concurrent write lands either before the check or on a new cell.
func (m *MemoryStore) Sweep(now time.Time) int {
	removed := 0
	m.cells.Range(func(k, v any) bool {
		c := v.(*cell)
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.dead || (c.ok && !c.bucket.Expired(now)) {
			return true
		}
		if m.cells.CompareAndDelete(k, v) {
			c.dead = true
			removed++
		}
		return true
	})
	return removed
}

// RunSweeper calls Sweep every interval until ctx ends.
func (m *MemoryStore) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			m.Sweep(t)
		}
	}
}
