package infra

import (
	"sync"

	"ws-gateway/middleware/wsguard/domain"
)

type chanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool baseado em channel com capacidade `max`.
// Com max <= 0 retorna nil: sem limite global.
func NewChanPool(max int) domain.SlotPool {
	if max <= 0 {
		return nil
	}
	return &chanPool{sem: make(chan struct{}, max)}
}

func (p *chanPool) TryAcquire() (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-p.sem }) }, true
	default:
		return nil, false
	}
}

func (p *chanPool) InUse() int { return len(p.sem) }
