package infra

import (
	"context"
)

// ChanPool é um semáforo baseado em channel com capacidade fixa.
type ChanPool struct {
	sem chan struct{}
}

// NewChanPool cria um pool com capacidade `max`.
func NewChanPool(max int) *ChanPool {
	return &ChanPool{sem: make(chan struct{}, max)}
}

// Acquire implementa domain.SlotPool. Um ctx já encerrado nunca adquire.
func (p *ChanPool) Acquire(ctx context.Context) (func(), bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *ChanPool) InFlight() int { return len(p.sem) }
func (p *ChanPool) Cap() int      { return cap(p.sem) }
