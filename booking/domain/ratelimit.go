package domain

import "time"

// Key identifica o cliente para o rate limit (IP, header, etc).
type Key string

// Limiter decide se uma ação é permitida agora.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter por chave. A implementação pode manter cache, TTL, etc.
type LimiterStore interface {
	Get(Key) Limiter
}

type Decision struct {
	Allowed bool
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	RetryAfter time.Duration
}

// AttemptKey limita tentativas de reserva por cliente em cada recurso: martelar um
// recurso esgotado não tira a vez do mesmo cliente em outro.
func AttemptKey(id ResourceID, client string) Key {
	return Key(id.String() + "|" + client)
}
