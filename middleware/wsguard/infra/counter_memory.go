package infra

import (
	"context"
	"sync"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

var _ domain.CounterStore = (*MemoryCounterStore)(nil)

type memEntry struct {
	n         int64
	samples   []float64
	expiresAt time.Time
}

// MemoryCounterStore implementa domain.CounterStore em memória, sobre um cache
// com expiração (go-pkgz/expirable-cache).
//
// Toda leitura-modificação-escrita é serializada por um mutex, o que torna
// Incr/IncrBelow/DecrFloor atômicos dentro do processo. Não é compartilhado entre
// instâncias: para mais de um gateway use RedisCounterStore.
type MemoryCounterStore struct {
	mu           sync.Mutex
	c            cache.Cache[string, memEntry]
	now          func() time.Time
	cleanupEvery time.Duration
}

type MemoryCounterOption func(*MemoryCounterStore)

// WithMemoryClock troca o relógio usado para decidir expiração (útil em testes).
func WithMemoryClock(now func() time.Time) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.now = now }
}

func WithMemoryCleanupEvery(d time.Duration) MemoryCounterOption {
	return func(s *MemoryCounterStore) { s.cleanupEvery = d }
}

func NewMemoryCounterStore(opts ...MemoryCounterOption) *MemoryCounterStore {
	s := &MemoryCounterStore{
		c:            cache.NewCache[string, memEntry]().WithTTL(time.Hour),
		now:          time.Now,
		cleanupEvery: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// load devolve a entrada viva; expiradas são removidas na hora (lazy delete).
func (s *MemoryCounterStore) load(key string) (memEntry, bool) {
	ent, ok := s.c.Get(key)
	if !ok {
		return memEntry{}, false
	}
	if !s.now().Before(ent.expiresAt) {
		s.c.Invalidate(key)
		return memEntry{}, false
	}
	return ent, true
}

func (s *MemoryCounterStore) store(key string, ent memEntry, ttl time.Duration) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	ent.expiresAt = s.now().Add(ttl)
	s.c.Set(key, ent, ttl)
}

func (s *MemoryCounterStore) Get(_ context.Context, key string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.load(key)
	return ent.n, ok, nil
}

func (s *MemoryCounterStore) Set(_ context.Context, key string, value int64, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.store(key, memEntry{n: value}, ttl)
	return nil
}

func (s *MemoryCounterStore) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, _ := s.load(key)
	ent.n++
	s.store(key, ent, ttl)
	return ent.n, nil
}

func (s *MemoryCounterStore) IncrBelow(_ context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, _ := s.load(key)
	if ent.n >= limit {
		return ent.n, false, nil
	}
	ent.n++
	s.store(key, ent, ttl)
	return ent.n, true, nil
}

func (s *MemoryCounterStore) DecrFloor(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.load(key)
	if !ok || ent.n <= 0 {
		return 0, nil
	}
	ent.n--
	// preserva o TTL restante
	remaining := ent.expiresAt.Sub(s.now())
	s.c.Set(key, ent, remaining)
	return ent.n, nil
}

func (s *MemoryCounterStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.Invalidate(key)
	return nil
}

func (s *MemoryCounterStore) PushBounded(_ context.Context, key string, value float64, max int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, _ := s.load(key)
	samples := append(ent.samples, value)
	if max > 0 && len(samples) > max {
		samples = samples[len(samples)-max:]
	}
	// copia para não reter o array antigo indefinidamente
	ent.samples = append([]float64(nil), samples...)
	s.store(key, ent, ttl)
	return nil
}

func (s *MemoryCounterStore) List(_ context.Context, key string) ([]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ent, ok := s.load(key)
	if !ok {
		return nil, nil
	}
	return append([]float64(nil), ent.samples...), nil
}

// Cleanup remove entradas expiradas.
func (s *MemoryCounterStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.c.DeleteExpired()
}

// StartJanitor inicia uma goroutine que limpa chaves expiradas periodicamente.
// Pare cancelando o contexto.
func (s *MemoryCounterStore) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}
