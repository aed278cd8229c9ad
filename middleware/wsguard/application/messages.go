package application

import "ws-gateway/middleware/wsguard/domain"

// MessageGate aplica o limite de mensagens recebidas por cliente
// (max_messages_per_minute).
type MessageGate struct {
	Store domain.LimiterStore
}

func (g MessageGate) Decide(key domain.Key) domain.Decision {
	if g.Store == nil {
		return domain.Decision{Allowed: true}
	}
	lim := g.Store.Get(key)
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}
	return domain.Decision{Allowed: false, Reason: domain.ReasonMessageRateExceeded}
}
