// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisCounterStore / MemoryCounterStore: store de contadores com TTL
//   - Store: token bucket por cliente usando golang.org/x/time/rate (mensagens)
//   - ChanPool: semáforo não bloqueante para o limite global de conexões
//   - MemoryStatsStore / RedisStatsStore / PrometheusStatsStore: estatísticas de admissão
package infra
