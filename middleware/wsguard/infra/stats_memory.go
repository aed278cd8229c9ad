package infra

import (
	"context"
	"sync"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// Counters é a contagem de decisões de admissão.
type Counters struct {
	Admitted int64 `json:"admitted"`
	Rejected int64 `json:"rejected"`
}

func (c *Counters) add(allowed bool) {
	if allowed {
		c.Admitted++
	} else {
		c.Rejected++
	}
}

// MemoryStatsStore guarda as estatísticas de admissão do processo. Os totais e
// a contagem por motivo são cumulativos; a contagem por cliente expira depois
// de ficar clientTTL sem eventos.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	rejections map[domain.Reason]int64

	trackKeys bool
	clientTTL time.Duration
	clients   cache.Cache[domain.Key, Counters]
}

type MemoryStatsOption func(*MemoryStatsStore)

func WithTrackKeys(track bool) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.trackKeys = track }
}

func WithClientTTL(d time.Duration) MemoryStatsOption {
	return func(s *MemoryStatsStore) { s.clientTTL = d }
}

func NewMemoryStatsStore(opts ...MemoryStatsOption) *MemoryStatsStore {
	s := &MemoryStatsStore{
		rejections: make(map[domain.Reason]int64),
		clientTTL:  time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.clients = cache.NewCache[domain.Key, Counters]().WithTTL(s.clientTTL)
	return s
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.StatsEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Allowed)
	if ev.Reason != domain.ReasonNone {
		s.rejections[ev.Reason]++
	}
	if s.trackKeys {
		c, _ := s.clients.Get(ev.Key)
		c.add(ev.Allowed)
		s.clients.Set(ev.Key, c, s.clientTTL)
	}
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Rejections devolve uma cópia da contagem por motivo.
func (s *MemoryStatsStore) Rejections() map[domain.Reason]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.Reason]int64, len(s.rejections))
	for k, v := range s.rejections {
		out[k] = v
	}
	return out
}

// Client devolve a contagem de um cliente ainda não expirado.
func (s *MemoryStatsStore) Client(key domain.Key) (Counters, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients.Peek(key)
}
