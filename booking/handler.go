package booking

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"viewing-slots/booking/application"
	"viewing-slots/booking/domain"
)

type Options struct {
	Allocator application.Allocator
	Reporter  application.Reporter

	// DefaultResource atende as rotas sem {id}. Padrão 1.
	DefaultResource domain.ResourceID
	// ResetCapacity é usado quando o reset não informa capacity. Padrão 5.
	ResetCapacity int
	// BusyRetryAfter vai no Retry-After do 503 de timeout. Padrão 1s.
	BusyRetryAfter time.Duration

	// ReserveMiddleware envolve só as rotas de reserva (ex: RateLimit).
	ReserveMiddleware func(http.Handler) http.Handler
}

type reserveResponse struct {
	Status        string            `json:"status"`
	ReservationID int64             `json:"reservation_id"`
	ResourceID    domain.ResourceID `json:"resource_id"`
	Holder        string            `json:"holder"`
}

type statusResponse struct {
	ResourceID      domain.ResourceID `json:"resource_id"`
	Name            string            `json:"name"`
	MaxSlots        int               `json:"max_slots"`
	CurrentBookings int               `json:"current_bookings"`
	IsOverbooked    bool              `json:"is_overbooked"`
	Survivors       []string          `json:"survivors"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error         string `json:"error"`
	Detail        string `json:"detail"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

type handler struct {
	opts Options
}

// NewHandler monta as rotas de reserva, status e reset.
func NewHandler(opts Options) http.Handler {
	if opts.DefaultResource == 0 {
		opts.DefaultResource = 1
	}
	if opts.ResetCapacity <= 0 {
		opts.ResetCapacity = 5
	}
	if opts.BusyRetryAfter <= 0 {
		opts.BusyRetryAfter = 1 * time.Second
	}
	if opts.ReserveMiddleware == nil {
		opts.ReserveMiddleware = func(next http.Handler) http.Handler { return next }
	}

	h := &handler{opts: opts}
	reserve := opts.ReserveMiddleware(http.HandlerFunc(h.reserve))

	mux := http.NewServeMux()
	mux.Handle("POST /booking/{id}/reserve", reserve)
	mux.HandleFunc("GET /booking/{id}/status", h.status)
	mux.HandleFunc("POST /booking/{id}/reset", h.reset)

	mux.Handle("POST /booking/reserve", reserve)
	mux.HandleFunc("GET /booking/status", h.status)
	mux.HandleFunc("GET /booking/reset", h.reset)
	mux.HandleFunc("POST /booking/reset", h.reset)

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	return WithCorrelation(mux)
}

func (h *handler) resourceID(r *http.Request) (domain.ResourceID, error) {
	raw := r.PathValue("id")
	if raw == "" {
		return h.opts.DefaultResource, nil
	}
	return domain.ParseResourceID(raw)
}

func (h *handler) reserve(w http.ResponseWriter, r *http.Request) {
	id, err := h.resourceID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", "invalid resource id")
		return
	}

	holder := HolderOf(r)
	res, err := h.opts.Allocator.Reserve(r.Context(), id, holder)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reserveResponse{
		Status:        "Success",
		ReservationID: res.ID,
		ResourceID:    id,
		Holder:        res.Holder,
	})
}

func (h *handler) status(w http.ResponseWriter, r *http.Request) {
	id, err := h.resourceID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", "invalid resource id")
		return
	}

	st, err := h.opts.Reporter.Status(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, statusResponse{
		ResourceID:      st.ResourceID,
		Name:            st.Name,
		MaxSlots:        st.Capacity,
		CurrentBookings: st.CurrentCount,
		IsOverbooked:    st.IsOverbooked,
		Survivors:       st.Holders,
	})
}

func (h *handler) reset(w http.ResponseWriter, r *http.Request) {
	id, err := h.resourceID(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", "invalid resource id")
		return
	}
	capacity, err := h.resetCapacity(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err.Error())
		return
	}

	if err := h.opts.Reporter.Reset(r.Context(), id, capacity); err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("System Reset Complete. Max Slots: %d", capacity),
	})
}

// resetCapacity lê ?capacity=N, depois {"capacity":N} no corpo, depois o padrão.
func (h *handler) resetCapacity(r *http.Request) (int, error) {
	if v := strings.TrimSpace(r.URL.Query().Get("capacity")); v != "" {
		c, err := strconv.Atoi(v)
		if err != nil || c <= 0 {
			return 0, errors.New("capacity must be a positive integer")
		}
		return c, nil
	}

	if r.Body != nil && r.Method == http.MethodPost {
		var body struct {
			Capacity *int `json:"capacity"`
		}
		err := json.NewDecoder(io.LimitReader(r.Body, 1<<12)).Decode(&body)
		switch {
		case errors.Is(err, io.EOF):
		case err != nil:
			return 0, errors.New("invalid JSON body")
		case body.Capacity != nil:
			if *body.Capacity <= 0 {
				return 0, errors.New("capacity must be a positive integer")
			}
			return *body.Capacity, nil
		}
	}

	return h.opts.ResetCapacity, nil
}

func (h *handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "NotFound", "Property not found")
	case errors.Is(err, domain.ErrSoldOut):
		writeError(w, r, http.StatusConflict, "SoldOut", "Sold Out! Too late.")
	case errors.Is(err, domain.ErrBusy):
		w.Header().Set("Retry-After", retryAfter(h.opts.BusyRetryAfter))
		writeError(w, r, http.StatusServiceUnavailable, "Timeout", "Resource busy, try again")
	case errors.Is(err, domain.ErrCanceled):
		writeError(w, r, http.StatusServiceUnavailable, "Canceled", "Request canceled before the reservation was written")
	case errors.Is(err, domain.ErrInvalidCapacity):
		writeError(w, r, http.StatusBadRequest, "InvalidRequest", err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "InternalError", "Internal error")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, code int, kind, detail string) {
	writeJSON(w, code, errorResponse{
		Error:         kind,
		Detail:        detail,
		CorrelationID: domain.CorrelationID(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
