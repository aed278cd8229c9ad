package infra

import (
	"sync"
	"time"

	"ws-gateway/middleware/wsguard/domain"

	"golang.org/x/time/rate"
)

// Store é um token-bucket (x/time/rate) por cliente, usado para limitar as
// mensagens recebidas. Mantém cache por chave com limpeza periódica.
type Store struct {
	mu           sync.Mutex
	entries      map[string]*storeEntry
	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type storeEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type StoreOption func(*Store)

func WithIdleTTL(d time.Duration) StoreOption {
	return func(s *Store) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) StoreOption {
	return func(s *Store) { s.cleanupEvery = d }
}

// NewMessageStore cria o store a partir de "mensagens por minuto":
// a taxa é perMinute/60 por segundo e o burst é perMinute.
func NewMessageStore(perMinute int, opts ...StoreOption) *Store {
	if perMinute <= 0 {
		perMinute = 1
	}
	return NewStore(float64(perMinute)/60, perMinute, opts...)
}

func NewStore(rps float64, burst int, opts ...StoreOption) *Store {
	s := &Store{
		entries:      make(map[string]*storeEntry),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implementa domain.LimiterStore.
func (s *Store) Get(key domain.Key) domain.Limiter {
	return s.limiter(string(key))
}

func (s *Store) limiter(key string) *rate.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ent, ok := s.entries[key]; ok {
		ent.lastSeen = now
		return ent.lim
	}

	lim := rate.NewLimiter(s.rps, s.burst)
	s.entries[key] = &storeEntry{lim: lim, lastSeen: now}
	return lim
}

func (s *Store) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.lastSeen.Before(cutoff) {
			delete(s.entries, k)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa chaves inativas periodicamente.
// Pare cancelando o contexto.
func (s *Store) StartJanitor(ctx DoneContext) {
	startJanitor(ctx, s.cleanupEvery, s.Cleanup)
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
type DoneContext interface {
	Done() <-chan struct{}
}

func startJanitor(ctx DoneContext, every time.Duration, cleanup func()) {
	if every <= 0 {
		return
	}

	t := time.NewTicker(every)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				cleanup()
			}
		}
	}()
}
