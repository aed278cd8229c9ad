package domain

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado para o limite de mensagens recebidas por cliente; a camada de infra
// usa golang.org/x/time/rate.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave (ex: IP).
// A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}
