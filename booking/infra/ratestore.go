package infra

import (
	"context"
	"sync"
	"time"

	"viewing-slots/booking/domain"

	"golang.org/x/time/rate"
)

// RateStore guarda um token bucket (x/time/rate) por cliente e esquece clientes
// inativos depois de idleTTL.
type RateStore struct {
	mu      sync.Mutex
	clients map[domain.Key]*clientBucket

	rps          rate.Limit
	burst        int
	idleTTL      time.Duration
	cleanupEvery time.Duration
}

type clientBucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type RateStoreOption func(*RateStore)

func WithIdleTTL(d time.Duration) RateStoreOption {
	return func(s *RateStore) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) RateStoreOption {
	return func(s *RateStore) { s.cleanupEvery = d }
}

func NewRateStore(rps float64, burst int, opts ...RateStoreOption) *RateStore {
	s := &RateStore{
		clients:      make(map[domain.Key]*clientBucket),
		rps:          rate.Limit(rps),
		burst:        burst,
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RateStore) RPS() float64 { return float64(s.rps) }
func (s *RateStore) Burst() int   { return s.burst }

// Get implementa domain.LimiterStore.
func (s *RateStore) Get(key domain.Key) domain.Limiter {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.clients[key]
	if !ok {
		b = &clientBucket{lim: rate.NewLimiter(s.rps, s.burst)}
		s.clients[key] = b
	}
	b.lastSeen = now
	return b.lim
}

// Cleanup remove clientes sem atividade há mais de idleTTL.
func (s *RateStore) Cleanup() {
	cutoff := time.Now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.clients {
		if b.lastSeen.Before(cutoff) {
			delete(s.clients, k)
		}
	}
}

// StartJanitor roda Cleanup periodicamente até o ctx encerrar.
func (s *RateStore) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}
