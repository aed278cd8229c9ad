package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"ws-gateway/middleware/wsguard/domain"
	"ws-gateway/middleware/wsguard/infra"
)

var errDown = errors.New("store down")

// downStore falha em todas as operações, como um Redis fora do ar.
type downStore struct{}

func (downStore) Get(context.Context, string) (int64, bool, error) { return 0, false, errDown }
func (downStore) Set(context.Context, string, int64, time.Duration) error {
	return errDown
}
func (downStore) Incr(context.Context, string, time.Duration) (int64, error) { return 0, errDown }
func (downStore) IncrBelow(context.Context, string, int64, time.Duration) (int64, bool, error) {
	return 0, false, errDown
}
func (downStore) DecrFloor(context.Context, string) (int64, error) { return 0, errDown }
func (downStore) Delete(context.Context, string) error              { return errDown }
func (downStore) PushBounded(context.Context, string, float64, int, time.Duration) error {
	return errDown
}
func (downStore) List(context.Context, string) ([]float64, error) { return nil, errDown }

// testClock é um relógio manual compartilhado entre o store e o collector.
type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 10, 16, 10, 0, 30, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newMemStore(clock *testClock) domain.CounterStore {
	return infra.NewMemoryCounterStore(infra.WithMemoryClock(clock.Now), infra.WithMemoryCleanupEvery(0))
}
