package governor

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/rueidis"
	"github.com/rotisserie/eris"

	"github.com/sells-group/listing-trust/internal/config"
	"github.com/sells-group/listing-trust/internal/model"
)

// RedisStore keeps buckets in Redis so every replica shares one budget per
// identity. A bucket is an integer counter whose key expiry is the window
// end; Redis deletes it when the window closes.
type RedisStore struct {
	client rueidis.Client
	prefix string
}

// NewRedisStore connects to the Redis instance in cfg.
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		return nil, eris.New("governor: redis addr is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  []string{cfg.Addr},
		Password:     cfg.Password,
		DisableCache: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "governor: create redis client")
	}
	return &RedisStore{client: client, prefix: cfg.KeyPrefix}, nil
}

// NewRedisStoreForTest wraps an existing client.
func NewRedisStoreForTest(c rueidis.Client, prefix string) *RedisStore {
	return &RedisStore{client: c, prefix: prefix}
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Do(ctx, s.client.B().Ping().Build()).Error(); err != nil {
		return eris.Wrap(err, "governor: redis ping")
	}
	return nil
}

// Close shuts down the client.
func (s *RedisStore) Close() {
	s.client.Close()
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + identity
}

// Get implements BucketStore.
func (s *RedisStore) Get(ctx context.Context, identity string) (model.RateBucket, bool, error) {
	key := s.key(identity)
	res := s.client.DoMulti(ctx,
		s.client.B().Get().Key(key).Build(),
		s.client.B().Pttl().Key(key).Build(),
	)

	count, err := res[0].AsInt64()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return model.RateBucket{}, false, nil
		}
		return model.RateBucket{}, false, eris.Wrapf(err, "governor: get %s", key)
	}
	pttl, err := res[1].AsInt64()
	if err != nil {
		return model.RateBucket{}, false, eris.Wrapf(err, "governor: pttl %s", key)
	}
	if pttl == -2 {
		// Expired between GET and PTTL.
		return model.RateBucket{}, false, nil
	}
	return model.RateBucket{Count: count, ResetAt: resetAt(time.Now(), pttl)}, true, nil
}

// Set implements BucketStore.
func (s *RedisStore) Set(ctx context.Context, identity string, b model.RateBucket) error {
	ttl := time.Until(b.ResetAt)
	if ttl <= 0 {
		return nil
	}
	cmd := s.client.B().Set().Key(s.key(identity)).Value(strconv.FormatInt(b.Count, 10)).Ex(ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return eris.Wrapf(err, "governor: set %s", s.key(identity))
	}
	return nil
}

// Increment implements BucketStore. INCR creates a missing or expired
// bucket at 1; EXPIRE NX starts its window only on that first hit.
func (s *RedisStore) Increment(ctx context.Context, identity string, window time.Duration, now time.Time) (model.RateBucket, error) {
	key := s.key(identity)
	secs := max(int64(1), int64(window/time.Second))
	res := s.client.DoMulti(ctx,
		s.client.B().Incr().Key(key).Build(),
		s.client.B().Expire().Key(key).Seconds(secs).Nx().Build(),
		s.client.B().Pttl().Key(key).Build(),
	)

	count, err := res[0].AsInt64()
	if err != nil {
		return model.RateBucket{}, eris.Wrapf(err, "governor: incr %s", key)
	}
	if err := res[1].Error(); err != nil {
		return model.RateBucket{}, eris.Wrapf(err, "governor: expire %s", key)
	}
	pttl, err := res[2].AsInt64()
	if err != nil {
		return model.RateBucket{}, eris.Wrapf(err, "governor: pttl %s", key)
	}
	if pttl < 0 {
		pttl = window.Milliseconds()
	}
	return model.RateBucket{Count: count, ResetAt: resetAt(now, pttl)}, nil
}

func resetAt(now time.Time, pttlMillis int64) time.Time {
	return now.Add(time.Duration(pttlMillis) * time.Millisecond)
}
