package booking

import (
	"net/http"
	"time"

	"viewing-slots/booking/application"
	"viewing-slots/booking/domain"
)

type RateLimitOptions struct {
	Store              domain.LimiterStore
	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RetryAfter         time.Duration
	AddHeaders         bool

	// ByHolder usa o holder informado (X-Holder ou ?holder=) como cliente; sem holder
	// explícito cai no KeyFn.
	ByHolder bool
	// DefaultResource é o recurso das rotas sem {id}. Padrão 1.
	DefaultResource domain.ResourceID
	Stats           domain.StatsStore
}

type rateInfo interface {
	RPS() float64
	Burst() int
}

// RateLimit limita tentativas de reserva por cliente e recurso (429).
// Requisições que não são reserva passam direto.
func RateLimit(opts RateLimitOptions) func(next http.Handler) http.Handler {
	if opts.Store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.DefaultResource == 0 {
		opts.DefaultResource = 1
	}

	svc := application.RateService{Store: opts.Store, RetryAfter: opts.RetryAfter, Stats: opts.Stats}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := reserveTarget(r, opts.DefaultResource)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			client := ""
			if opts.ByHolder {
				client = explicitHolder(r)
			}
			if client == "" {
				client = opts.KeyFn(r)
			}

			if opts.AddHeaders {
				w.Header().Set("X-RateLimit-Key", string(domain.AttemptKey(id, client)))
				if ri, ok := opts.Store.(rateInfo); ok {
					w.Header().Set("X-RateLimit-RPS", formatFloat(ri.RPS()))
					w.Header().Set("X-RateLimit-Burst", formatInt(ri.Burst()))
				}
			}

			dec := svc.Decide(r.Context(), id, client)
			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfter(dec.RetryAfter))
				writeError(w, r, http.StatusTooManyRequests, "RateLimited", "Too many reserve attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
