package domain

import "time"

// Key identifica o cliente (normalmente o IP).
type Key string

// UnknownKey agrupa todos os clientes sem identidade resolvível.
const UnknownKey Key = "unknown"

// Limits concentra os limites configuráveis da admissão e das mensagens.
type Limits struct {
	MaxConnectionsPerIP         int
	MaxMessagesPerMinute        int
	MaxReconnectAttemptsPerHour int
	RateLimitWindowSeconds      int
}

func DefaultLimits() Limits {
	return Limits{
		MaxConnectionsPerIP:         5,
		MaxMessagesPerMinute:        60,
		MaxReconnectAttemptsPerHour: 10,
		RateLimitWindowSeconds:      3600,
	}
}

// Window é a janela do contador de tentativas (conn_rate).
func (l Limits) Window() time.Duration {
	if l.RateLimitWindowSeconds <= 0 {
		return time.Hour
	}
	return time.Duration(l.RateLimitWindowSeconds) * time.Second
}

// WithDefaults preenche campos zerados com os valores padrão.
func (l Limits) WithDefaults() Limits {
	def := DefaultLimits()
	if l.MaxConnectionsPerIP <= 0 {
		l.MaxConnectionsPerIP = def.MaxConnectionsPerIP
	}
	if l.MaxMessagesPerMinute <= 0 {
		l.MaxMessagesPerMinute = def.MaxMessagesPerMinute
	}
	if l.MaxReconnectAttemptsPerHour <= 0 {
		l.MaxReconnectAttemptsPerHour = def.MaxReconnectAttemptsPerHour
	}
	if l.RateLimitWindowSeconds <= 0 {
		l.RateLimitWindowSeconds = def.RateLimitWindowSeconds
	}
	return l
}

// FailurePolicy define o comportamento da admissão quando o store está indisponível.
type FailurePolicy int

const (
	// FailOpen admite a conexão mesmo sem conseguir consultar os contadores.
	FailOpen FailurePolicy = iota
	// FailClosed rejeita a conexão.
	FailClosed
)

func (p FailurePolicy) String() string {
	if p == FailClosed {
		return "closed"
	}
	return "open"
}

// ParseFailurePolicy aceita "open" ou "closed".
func ParseFailurePolicy(s string) (FailurePolicy, bool) {
	switch s {
	case "open", "fail-open":
		return FailOpen, true
	case "closed", "fail-closed":
		return FailClosed, true
	}
	return FailOpen, false
}

type Reason string

const (
	ReasonNone                Reason = ""
	ReasonAttemptsExceeded    Reason = "attempts_exceeded"
	ReasonConcurrencyExceeded Reason = "concurrency_exceeded"
	ReasonStoreUnavailable    Reason = "store_unavailable"
	ReasonServerFull          Reason = "server_full"
	ReasonMessageRateExceeded Reason = "message_rate_exceeded"
)

type Decision struct {
	Allowed bool
	// Reason explica a rejeição. Numa admissão fail-open vale ReasonStoreUnavailable.
	Reason Reason
}
