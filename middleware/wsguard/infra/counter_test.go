package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// harness expõe um store e uma forma de avançar o tempo visto pelo store.
type harness struct {
	name    string
	store   domain.CounterStore
	advance func(time.Duration)
}

func newMemoryHarness(t *testing.T) harness {
	t.Helper()
	var mu sync.Mutex
	now := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	return harness{
		name:  "memory",
		store: NewMemoryCounterStore(WithMemoryClock(clock), WithMemoryCleanupEvery(0)),
		advance: func(d time.Duration) {
			mu.Lock()
			now = now.Add(d)
			mu.Unlock()
		},
	}
}

func newRedisHarness(t *testing.T) harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return harness{
		name:    "redis",
		store:   NewRedisCounterStore(rdb),
		advance: mr.FastForward,
	}
}

func harnesses(t *testing.T) []harness {
	return []harness{newMemoryHarness(t), newRedisHarness(t)}
}

func TestCounterStore_IncrAndExpire(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			n, err := h.store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)

			n, err = h.store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			h.advance(61 * time.Second)

			_, ok, err := h.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "expected key to expire")
		})
	}
}

func TestCounterStore_SetGetDelete(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			require.NoError(t, h.store.Set(ctx, "k", 42, time.Hour))
			v, ok, err := h.store.Get(ctx, "k")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, int64(42), v)

			require.NoError(t, h.store.Delete(ctx, "k"))
			_, ok, err = h.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok)
		})
	}
}

func TestCounterStore_IncrBelowStopsAtLimit(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			for i := 1; i <= 3; i++ {
				n, ok, err := h.store.IncrBelow(ctx, "k", 3, time.Hour)
				require.NoError(t, err)
				require.True(t, ok, "attempt %d", i)
				assert.Equal(t, int64(i), n)
			}

			n, ok, err := h.store.IncrBelow(ctx, "k", 3, time.Hour)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Equal(t, int64(3), n)

			v, _, err := h.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, int64(3), v, "rejected attempt must not mutate the counter")
		})
	}
}

func TestCounterStore_IncrBelowIsAtomic(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			var admitted atomic.Int64
			var wg sync.WaitGroup
			for i := 0; i < 40; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, ok, err := h.store.IncrBelow(ctx, "k", 5, time.Hour)
					if err == nil && ok {
						admitted.Add(1)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, int64(5), admitted.Load())
			v, _, err := h.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.Equal(t, int64(5), v)
		})
	}
}

func TestCounterStore_DecrFloorNeverNegative(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			n, err := h.store.DecrFloor(ctx, "missing")
			require.NoError(t, err)
			assert.Equal(t, int64(0), n)

			_, err = h.store.Incr(ctx, "k", time.Hour)
			require.NoError(t, err)

			for i := 0; i < 3; i++ {
				n, err = h.store.DecrFloor(ctx, "k")
				require.NoError(t, err)
				assert.Equal(t, int64(0), n)
			}
		})
	}
}

func TestCounterStore_DecrFloorKeepsTTL(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			_, err := h.store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)
			_, err = h.store.Incr(ctx, "k", time.Minute)
			require.NoError(t, err)

			h.advance(30 * time.Second)
			_, err = h.store.DecrFloor(ctx, "k")
			require.NoError(t, err)

			h.advance(31 * time.Second)
			_, ok, err := h.store.Get(ctx, "k")
			require.NoError(t, err)
			assert.False(t, ok, "decrement must not extend the TTL")
		})
	}
}

func TestCounterStore_PushBoundedKeepsNewest(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()

			for i := 0; i < 150; i++ {
				require.NoError(t, h.store.PushBounded(ctx, domain.KeyConnectionDurations, float64(i), domain.MaxDurationSamples, time.Hour))
			}

			got, err := h.store.List(ctx, domain.KeyConnectionDurations)
			require.NoError(t, err)
			require.Len(t, got, 100)
			for i, v := range got {
				assert.Equal(t, float64(i+50), v)
			}
		})
	}
}

func TestCounterStore_MinuteBucketExpires(t *testing.T) {
	for _, h := range harnesses(t) {
		t.Run(h.name, func(t *testing.T) {
			ctx := context.Background()
			key := domain.MessagesPerMinuteKey(1000)

			_, err := h.store.Incr(ctx, key, domain.TTLMinuteBucket)
			require.NoError(t, err)

			h.advance(time.Minute)
			_, ok, err := h.store.Get(ctx, key)
			require.NoError(t, err)
			assert.True(t, ok, "previous minute bucket must still be readable")

			h.advance(2 * time.Minute)
			_, ok, err = h.store.Get(ctx, key)
			require.NoError(t, err)
			assert.False(t, ok, "bucket from 3 minutes ago must be gone")
		})
	}
}

func TestRedisCounterStore_Prefix(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisCounterStore(rdb, WithCounterPrefix("wsguard:"))
	_, _, err := s.IncrBelow(context.Background(), domain.ConnRateKey("1.2.3.4"), 10, time.Hour)
	require.NoError(t, err)

	v, err := mr.Get("wsguard:conn_rate:1.2.3.4")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
	assert.Equal(t, time.Hour, mr.TTL("wsguard:conn_rate:1.2.3.4"))
}

func TestRedisCounterStore_ErrorsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	s := NewRedisCounterStore(rdb)
	_, _, err := s.IncrBelow(context.Background(), "k", 1, time.Hour)
	assert.Error(t, err)
}
