package domain

// SlotPool representa um recurso com capacidade finita (ex: conexões abertas no servidor).
//
// Conexões WebSocket são longas, então TryAcquire nunca bloqueia: ou há vaga
// agora ou a conexão é recusada. Ao adquirir, retorna uma função de release
// que deve ser chamada exatamente uma vez.
type SlotPool interface {
	TryAcquire() (release func(), ok bool)
	InUse() int
}
