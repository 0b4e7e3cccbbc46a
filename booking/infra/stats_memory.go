package infra

import (
	"context"
	"sync"

	"viewing-slots/booking/domain"
)

// Counters soma resultados de admissão.
type Counters struct {
	Success  int64
	SoldOut  int64
	NotFound int64
	Timeout  int64
	Internal int64
	Canceled int64

	RateLimited int64
	Overloaded  int64
}

func (c *Counters) add(o domain.Outcome) {
	switch o {
	case domain.OutcomeSuccess:
		c.Success++
	case domain.OutcomeSoldOut:
		c.SoldOut++
	case domain.OutcomeNotFound:
		c.NotFound++
	case domain.OutcomeTimeout:
		c.Timeout++
	case domain.OutcomeCanceled:
		c.Canceled++
	case domain.OutcomeRateLimited:
		c.RateLimited++
	case domain.OutcomeOverloaded:
		c.Overloaded++
	default:
		c.Internal++
	}
}

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento; não faz expiração.
type MemoryStatsStore struct {
	mu         sync.Mutex
	total      Counters
	byResource map[domain.ResourceID]Counters
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{byResource: make(map[domain.ResourceID]Counters)}
}

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.AdmissionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total.add(ev.Outcome)
	c := s.byResource[ev.ResourceID]
	c.add(ev.Outcome)
	s.byResource[ev.ResourceID] = c
	return nil
}

func (s *MemoryStatsStore) Total() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

func (s *MemoryStatsStore) ByResource() map[domain.ResourceID]Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.ResourceID]Counters, len(s.byResource))
	for k, v := range s.byResource {
		out[k] = v
	}
	return out
}
