// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - MemoryStore: store transacional em memória com lock por recurso (KeyLocker)
//   - RedisStore: store transacional em Redis (SET NX PX + commit via script Lua)
//   - RateStore: token bucket por cliente usando golang.org/x/time/rate
//   - ChanPool: semáforo simples para limite de requisições em voo
//   - *StatsStore / PrometheusStats: estatísticas de admissão
package infra
