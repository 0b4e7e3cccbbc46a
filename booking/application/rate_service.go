package application

import (
	"context"
	"time"

	"viewing-slots/booking/domain"
)

// RateService decide se um cliente pode tentar reservar um recurso agora.
//
// Não protege a capacidade (isso é do Allocator); só evita que um cliente martele o
// reserve de um recurso. Recusas viram AdmissionEvent com resultado rate_limited.
type RateService struct {
	Store      domain.LimiterStore
	RetryAfter time.Duration
	Stats      domain.StatsStore
}

func (s RateService) Decide(ctx context.Context, id domain.ResourceID, client string) domain.Decision {
	if s.Store == nil {
		return domain.Decision{Allowed: true}
	}
	if s.RetryAfter <= 0 {
		s.RetryAfter = 1 * time.Second
	}

	lim := s.Store.Get(domain.AttemptKey(id, client))
	if lim == nil || lim.Allow() {
		return domain.Decision{Allowed: true}
	}

	if s.Stats != nil {
		_ = s.Stats.Record(context.WithoutCancel(ctx), domain.AdmissionEvent{
			ResourceID: id,
			Outcome:    domain.OutcomeRateLimited,
			Holder:     client,
			At:         time.Now(),
		})
	}
	return domain.Decision{Allowed: false, RetryAfter: s.RetryAfter}
}
