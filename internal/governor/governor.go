// Package governor implements the fixed-window request governor that
// protects the scoring entry point per caller identity.
package governor

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/metrics"
	"github.com/sells-group/listing-trust/internal/model"
	"github.com/sells-group/listing-trust/internal/resilience"
)

// Anonymous is the shared bucket for callers with no identity at all.
const Anonymous = "anonymous"

// Defaults match a 10 calls per 10 minutes budget.
const (
	DefaultCapacity = 10
	DefaultWindow   = 10 * time.Minute
)

// BucketStore holds per-identity rate buckets. Increment must be atomic
// per key; different keys must not contend.
type BucketStore interface {
	// Get returns the bucket for key, or false when none exists.
	Get(ctx context.Context, key string) (model.RateBucket, bool, error)
	// Set replaces the bucket for key.
	Set(ctx context.Context, key string, b model.RateBucket) error
	// Increment adds one to the bucket for key, first resetting it to
	// {0, now+window} when it is missing or expired, and returns the result.
	Increment(ctx context.Context, key string, window time.Duration, now time.Time) (model.RateBucket, error)
}

// Decision is the outcome of one Admit call.
type Decision struct {
	Allowed           bool      `json:"allowed"`
	Limit             int64     `json:"limit"`
	Remaining         int64     `json:"remaining"`
	ResetAt           time.Time `json:"resetAt"`
	RetryAfterSeconds int       `json:"retryAfterSeconds,omitempty"`
	// FailOpen is set when the store failed and the call was let through.
	FailOpen bool `json:"-"`
}

// Err returns a *resilience.RateLimitedError for a denial, else nil.
func (d Decision) Err(identity string) error {
	if d.Allowed {
		return nil
	}
	return &resilience.RateLimitedError{Identity: identity, RetryAfterSeconds: d.RetryAfterSeconds}
}

// Config sets the window and capacity.
type Config struct {
	Capacity int64
	Window   time.Duration
}

// ConfigFrom converts the governor section of the service config.
func ConfigFrom(c config.GovernorConfig) Config {
	return Config{Capacity: c.Capacity, Window: time.Duration(c.WindowSecs) * time.Second}
}

// Governor admits or denies calls per identity. The window is fixed, not
// sliding: a burst straddling a window boundary can see up to 2C calls.
type Governor struct {
	store    BucketStore
	capacity int64
	window   time.Duration
	now      func() time.Time
}

// Option configures a Governor.
type Option func(*Governor)

// WithClock overrides the governor's clock.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) { g.now = now }
}

// New creates a Governor over store. Zero config values take the defaults.
func New(store BucketStore, cfg Config, opts ...Option) (*Governor, error) {
	if store == nil {
		return nil, eris.New("governor: bucket store is required")
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	g := &Governor{store: store, capacity: cfg.Capacity, window: cfg.Window, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	return g, nil
}

// Identity picks the bucket key: the user id, else the fallback (such as
// the network origin), else the shared anonymous bucket.
func Identity(userID, fallback string) string {
	if id := strings.TrimSpace(userID); id != "" {
		return "user:" + id
	}
	if fb := strings.TrimSpace(fallback); fb != "" {
		return "origin:" + fb
	}
	return Anonymous
}

// Admit decides whether identity may make one more call in its window.
// Store failures fail open: the call is allowed, logged and counted.
func (g *Governor) Admit(ctx context.Context, identity string) Decision {
	now := g.now()

	b, ok, err := g.store.Get(ctx, identity)
	if err != nil {
		return g.failOpen(identity, err)
	}
	if ok && !b.Expired(now) && b.Count >= g.capacity {
		return g.deny(b, now)
	}

	b, err = g.store.Increment(ctx, identity, g.window, now)
	if err != nil {
		return g.failOpen(identity, err)
	}
	// A concurrent caller can win the last slot between Get and Increment.
	if b.Count > g.capacity {
		return g.deny(b, now)
	}

	metrics.GovernorDecisionsTotal.WithLabelValues("allow").Inc()
	return Decision{
		Allowed:   true,
		Limit:     g.capacity,
		Remaining: g.capacity - b.Count,
		ResetAt:   b.ResetAt,
	}
}

func (g *Governor) deny(b model.RateBucket, now time.Time) Decision {
	metrics.GovernorDecisionsTotal.WithLabelValues("deny").Inc()
	return Decision{
		Limit:             g.capacity,
		ResetAt:           b.ResetAt,
		RetryAfterSeconds: RetryAfter(b.ResetAt, now),
	}
}

func (g *Governor) failOpen(identity string, err error) Decision {
	metrics.GovernorDecisionsTotal.WithLabelValues("fail_open").Inc()
	zap.L().Warn("governor: bucket store failed, admitting request",
		zap.String("identity", identity), zap.Error(err))
	return Decision{Allowed: true, Limit: g.capacity, FailOpen: true}
}

// RetryAfter returns whole seconds until resetAt, rounded up, at least 1.
func RetryAfter(resetAt, now time.Time) int {
	secs := int(math.Ceil(resetAt.Sub(now).Seconds()))
	return max(1, secs)
}
