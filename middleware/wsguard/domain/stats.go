package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão.
//
// Cuidado com cardinalidade: salvar Key sem controle pode explodir o número de
// chaves em uma base como Redis/Prometheus.
type StatsEvent struct {
	Key     Key
	Allowed bool
	Reason  Reason
	Path    string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// O adapter trata erro como best-effort (não derruba a conexão).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
