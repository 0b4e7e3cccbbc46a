package booking

import (
	"context"
	"net/http"
	"time"

	"viewing-slots/booking/domain"
	"viewing-slots/booking/infra"
)

type InFlightOptions struct {
	Max int
	// AcquireTimeout limita a espera por uma vaga; <= 0 espera até o ctx da requisição.
	AcquireTimeout time.Duration
	// RetryAfter vai no 503. Padrão 1s.
	RetryAfter time.Duration
	// Pool substitui o ChanPool(Max) padrão.
	Pool domain.SlotPool

	// Reservas recusadas viram AdmissionEvent com resultado overloaded.
	DefaultResource domain.ResourceID
	Stats           domain.StatsStore
}

// InFlight limita requisições simultâneas no servidor inteiro (503 quando cheio).
// É proteção do processo, não a regra de capacidade dos recursos. Max <= 0 desliga.
func InFlight(opts InFlightOptions) func(next http.Handler) http.Handler {
	if opts.Max <= 0 && opts.Pool == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.Pool == nil {
		opts.Pool = infra.NewChanPool(opts.Max)
	}
	if opts.RetryAfter <= 0 {
		opts.RetryAfter = 1 * time.Second
	}
	if opts.DefaultResource == 0 {
		opts.DefaultResource = 1
	}

	acquire := func(ctx context.Context) (func(), bool) {
		if opts.AcquireTimeout <= 0 {
			return opts.Pool.Acquire(ctx)
		}
		acqCtx, cancel := context.WithTimeout(ctx, opts.AcquireTimeout)
		defer cancel()
		return opts.Pool.Acquire(acqCtx)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			started := time.Now()
			release, ok := acquire(r.Context())
			if !ok {
				if id, isReserve := reserveTarget(r, opts.DefaultResource); isReserve && opts.Stats != nil {
					_ = opts.Stats.Record(context.WithoutCancel(r.Context()), domain.AdmissionEvent{
						ResourceID: id,
						Outcome:    domain.OutcomeOverloaded,
						Holder:     explicitHolder(r),
						Wait:       time.Since(started),
						Took:       time.Since(started),
						At:         started,
					})
				}
				w.Header().Set("Retry-After", retryAfter(opts.RetryAfter))
				writeError(w, r, http.StatusServiceUnavailable, "Overloaded", "Server busy, try again")
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}
