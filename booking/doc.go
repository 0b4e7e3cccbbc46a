// Package booking expõe o allocator de vagas via HTTP (net/http).
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Resource, Reservation, Store/Tx, taxonomia de erros)
//   - application: casos de uso (Reserve, Status, Reset) sem net/http
//   - infra: implementações concretas (store em memória, store Redis, rate limit, stats)
//   - booking (este pacote): rotas HTTP + extração de holder/cliente/correlação +
//     tradução de erros para status/JSON + middlewares de rate limit e requisições em voo
//
// Rotas:
//
//	POST /booking/{id}/reserve  -> 200 | 404 NotFound | 409 SoldOut | 503 Timeout | 500 InternalError
//	GET  /booking/{id}/status
//	POST /booking/{id}/reset?capacity=N
//
// As rotas sem {id} (/booking/reserve, /booking/status, /booking/reset) atuam sobre o
// recurso padrão, como o serviço de um imóvel só fazia.
package booking
