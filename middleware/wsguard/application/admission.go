package application

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ws-gateway/middleware/wsguard/domain"
)

// releaseTimeout limita o decremento de concurrent_conn no fechamento.
const releaseTimeout = 2 * time.Second

// AdmissionService decide se uma nova conexão pode entrar, sem saber nada sobre HTTP.
//
// Ordem das travas (a primeira que falha rejeita):
//
//  1. tentativas na janela: conn_rate:{ip} < MaxReconnectAttemptsPerHour (conta a tentativa)
//  2. conexões simultâneas: concurrent_conn:{ip} < MaxConnectionsPerIP (conta só se admitir)
type AdmissionService struct {
	Store  domain.CounterStore
	Limits domain.Limits
	Policy domain.FailurePolicy
}

// Admission é o resultado de Admit. Release deve ser chamado quando a conexão
// terminar, por qualquer caminho; chamadas extras são ignoradas.
type Admission struct {
	Decision domain.Decision
	// Held indica que uma vaga em concurrent_conn foi reservada.
	Held bool

	release func(ctx context.Context) error
	once    sync.Once
}

// Release libera a vaga reservada. Usa um contexto próprio: o contexto da
// conexão normalmente já está cancelado quando ela fecha.
func (a *Admission) Release() error {
	if a == nil || a.release == nil {
		return nil
	}
	var err error
	a.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		err = a.release(ctx)
	})
	return err
}

// Admit roda as travas para a chave. O erro só é não-nil quando o store falhou;
// nesse caso a decisão já reflete a Policy (fail-open admite, fail-closed rejeita).
func (s AdmissionService) Admit(ctx context.Context, key domain.Key) (*Admission, error) {
	if s.Store == nil {
		return &Admission{Decision: domain.Decision{Allowed: true}}, nil
	}
	lim := s.Limits.WithDefaults()

	_, ok, err := s.Store.IncrBelow(ctx, domain.ConnRateKey(key), int64(lim.MaxReconnectAttemptsPerHour), lim.Window())
	if err != nil {
		return s.storeFailure(), fmt.Errorf("attempts check: %w", err)
	}
	if !ok {
		return reject(domain.ReasonAttemptsExceeded), nil
	}

	concKey := domain.ConcurrentConnKey(key)
	_, ok, err = s.Store.IncrBelow(ctx, concKey, int64(lim.MaxConnectionsPerIP), domain.TTLConcurrent)
	if err != nil {
		return s.storeFailure(), fmt.Errorf("concurrency check: %w", err)
	}
	if !ok {
		return reject(domain.ReasonConcurrencyExceeded), nil
	}

	store := s.Store
	return &Admission{
		Decision: domain.Decision{Allowed: true},
		Held:     true,
		release: func(ctx context.Context) error {
			_, err := store.DecrFloor(ctx, concKey)
			return err
		},
	}, nil
}

func (s AdmissionService) storeFailure() *Admission {
	if s.Policy == domain.FailClosed {
		return reject(domain.ReasonStoreUnavailable)
	}
	return &Admission{Decision: domain.Decision{Allowed: true, Reason: domain.ReasonStoreUnavailable}}
}

func reject(r domain.Reason) *Admission {
	return &Admission{Decision: domain.Decision{Allowed: false, Reason: r}}
}
