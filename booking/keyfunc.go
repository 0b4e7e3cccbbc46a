package booking

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"viewing-slots/booking/domain"

	"github.com/google/uuid"
)

const (
	HeaderHolder    = "X-Holder"
	HeaderRequestID = "X-Request-ID"
)

// KeyFunc extrai a chave do cliente para o rate limit.
type KeyFunc func(r *http.Request) string

func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
		}

		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// HolderOf identifica quem está reservando: header X-Holder, query `holder`, ou
// "User-<unix millis>".
func HolderOf(r *http.Request) string {
	if v := explicitHolder(r); v != "" {
		return v
	}
	return "User-" + strconv.FormatInt(time.Now().UnixMilli(), 10)
}

func explicitHolder(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get(HeaderHolder)); v != "" {
		return v
	}
	return strings.TrimSpace(r.URL.Query().Get("holder"))
}

// reserveTarget reconhece POST /booking/{id}/reserve e POST /booking/reserve (recurso
// padrão) pelo path, sem depender do mux.
func reserveTarget(r *http.Request, def domain.ResourceID) (domain.ResourceID, bool) {
	if r.Method != http.MethodPost {
		return 0, false
	}
	rest, ok := strings.CutPrefix(r.URL.Path, "/booking/")
	if !ok {
		return 0, false
	}
	if rest == "reserve" {
		return def, true
	}
	raw, ok := strings.CutSuffix(rest, "/reserve")
	if !ok {
		return 0, false
	}
	id, err := domain.ParseResourceID(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// WithCorrelation garante um X-Request-ID (gera um UUID se o cliente não mandou),
// devolve no response e coloca no ctx para os logs de erro interno.
func WithCorrelation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(domain.WithCorrelationID(r.Context(), id)))
	})
}
