package booking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"viewing-slots/booking/infra"
)

func TestInFlight_TimesOutWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	secondDone := make(chan struct{})
	var startedOnce sync.Once

	// handler que segura a vaga até liberarmos.
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startedOnce.Do(func() { close(started) })
		<-release
		w.WriteHeader(http.StatusOK)
	})

	h := InFlight(InFlightOptions{Max: 1, AcquireTimeout: 25 * time.Millisecond})(next)

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		w1 := httptest.NewRecorder()
		h.ServeHTTP(w1, httptest.NewRequest(http.MethodGet, "http://example/", nil))
		if w1.Code != http.StatusOK {
			t.Errorf("expected first request 200, got %d", w1.Code)
		}
	}()

	select {
	case <-started:
	case <-time.After(200 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting first request to start")
	}

	go func() {
		defer wg.Done()
		w2 := httptest.NewRecorder()
		h.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "http://example/", nil))
		if w2.Code != http.StatusServiceUnavailable {
			t.Errorf("expected second request 503, got %d", w2.Code)
		}
		close(secondDone)
	}()

	// a segunda tem que terminar antes de liberarmos a primeira
	select {
	case <-secondDone:
	case <-time.After(500 * time.Millisecond):
		close(release)
		wg.Wait()
		t.Fatalf("timeout waiting second request to finish")
	}

	close(release)
	wg.Wait()
}

func TestInFlight_DisabledWhenMaxZero(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusAccepted) })
	h := InFlight(InFlightOptions{})(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "http://example/", nil))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected passthrough, got %d", w.Code)
	}
}

type fullPool struct{}

func (fullPool) Acquire(ctx context.Context) (func(), bool) {
	<-ctx.Done()
	return nil, false
}

func TestInFlight_RecordsOverloadedReserve(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := InFlight(InFlightOptions{
		Pool:           fullPool{},
		AcquireTimeout: 5 * time.Millisecond,
		RetryAfter:     200 * time.Millisecond,
		Stats:          stats,
	})(next)

	for _, target := range []string{"/booking/4/reserve", "/booking/reserve"} {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, target, nil))
		if w.Code != http.StatusServiceUnavailable || w.Header().Get("Retry-After") != "1" {
			t.Fatalf("%s: expected 503 with Retry-After=1, got %d %q", target, w.Code, w.Header().Get("Retry-After"))
		}
	}

	// status recusado não conta como tentativa de reserva
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/booking/4/status", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for status, got %d", w.Code)
	}

	by := stats.ByResource()
	if by[4].Overloaded != 1 || by[1].Overloaded != 1 || stats.Total().Overloaded != 2 {
		t.Fatalf("unexpected overloaded counters %+v", by)
	}
}
