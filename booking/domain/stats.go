package domain

import (
	"context"
	"time"
)

// AdmissionEvent representa uma decisão do allocator.
//
// Observação: cuidado com cardinalidade. Holder é livre (vem do cliente) e não deve
// virar label/chave sem controle em Redis/Prometheus.
type AdmissionEvent struct {
	ResourceID ResourceID
	Outcome    Outcome
	Holder     string

	// Wait é o tempo esperando a exclusividade; Took é o tempo total da chamada.
	Wait time.Duration
	Took time.Duration

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, Prometheus, memória, etc.
// O allocator trata erro como best-effort (não derruba a reserva).
type StatsStore interface {
	Record(ctx context.Context, ev AdmissionEvent) error
}

// MultiStats repassa o evento para vários StatsStore e devolve o primeiro erro.
type MultiStats []StatsStore

func (m MultiStats) Record(ctx context.Context, ev AdmissionEvent) error {
	var first error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Record(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
