package application

import (
	"bytes"
	"context"
	"errors"
	"log"
	"strings"
	"testing"

	"viewing-slots/booking/domain"
	"viewing-slots/booking/infra"

	"github.com/google/go-cmp/cmp"
)

func TestReporter_ResetThenStatusIsEmpty(t *testing.T) {
	store := infra.NewMemoryStore()
	rep := Reporter{Store: store}
	a := Allocator{Store: store}
	ctx := context.Background()

	_ = rep.Reset(ctx, 1, 2)
	_, _ = a.Reserve(ctx, 1, "alice")
	_, _ = a.Reserve(ctx, 1, "bob")

	if err := rep.Reset(ctx, 1, 5); err != nil {
		t.Fatalf("reset: %v", err)
	}
	got, err := rep.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}

	want := domain.Status{
		ResourceID:   1,
		Name:         "Property 1",
		Capacity:     5,
		CurrentCount: 0,
		IsOverbooked: false,
		Holders:      []string{},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestReporter_StatusListsHolders(t *testing.T) {
	store := infra.NewMemoryStore()
	rep := Reporter{Store: store}
	ctx := context.Background()

	if created, err := rep.Seed(ctx, domain.Resource{ID: 1, Name: "Zurich Penthouse", Capacity: 5}); err != nil || !created {
		t.Fatalf("expected seed to create resource, created=%v err=%v", created, err)
	}
	a := Allocator{Store: store}
	_, _ = a.Reserve(ctx, 1, "alice")
	_, _ = a.Reserve(ctx, 1, "bob")

	got, _ := rep.Status(ctx, 1)
	want := domain.Status{
		ResourceID:   1,
		Name:         "Zurich Penthouse",
		Capacity:     5,
		CurrentCount: 2,
		Holders:      []string{"alice", "bob"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestReporter_ResetKeepsName(t *testing.T) {
	store := infra.NewMemoryStore()
	rep := Reporter{Store: store}
	ctx := context.Background()

	_, _ = rep.Seed(ctx, domain.Resource{ID: 7, Name: "Basel Loft", Capacity: 1})
	_ = rep.Reset(ctx, 7, 3)

	st, _ := rep.Status(ctx, 7)
	if st.Name != "Basel Loft" || st.Capacity != 3 {
		t.Fatalf("expected name kept and capacity 3, got %+v", st)
	}
}

func TestReporter_SeedDoesNotOverwrite(t *testing.T) {
	store := infra.NewMemoryStore()
	rep := Reporter{Store: store}
	ctx := context.Background()

	_, _ = rep.Seed(ctx, domain.Resource{ID: 1, Name: "first", Capacity: 2})
	created, err := rep.Seed(ctx, domain.Resource{ID: 1, Name: "second", Capacity: 9})
	if err != nil || created {
		t.Fatalf("expected existing resource to be kept, created=%v err=%v", created, err)
	}
	st, _ := rep.Status(ctx, 1)
	if st.Name != "first" || st.Capacity != 2 {
		t.Fatalf("seed overwrote resource: %+v", st)
	}
}

func TestReporter_InvalidCapacityAndUnknown(t *testing.T) {
	rep := Reporter{Store: infra.NewMemoryStore()}
	ctx := context.Background()

	if err := rep.Reset(ctx, 1, 0); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := rep.Seed(ctx, domain.Resource{ID: 1, Capacity: -1}); !errors.Is(err, domain.ErrInvalidCapacity) {
		t.Fatalf("expected ErrInvalidCapacity, got %v", err)
	}
	if _, err := rep.Status(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestReporter_ResetCommitFaultIsLogged(t *testing.T) {
	store := infra.NewMemoryStore()
	var buf bytes.Buffer
	rep := Reporter{Store: store, Logger: log.New(&buf, "", 0)}

	store.SetCommitError(errors.New("write failed"))
	ctx := domain.WithCorrelationID(context.Background(), "req-7")
	err := rep.Reset(ctx, 3, 4)
	store.SetCommitError(nil)

	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	logged := buf.String()
	for _, want := range []string{"reset failed", "resource_id=3", "correlation_id=req-7", "write failed"} {
		if !strings.Contains(logged, want) {
			t.Fatalf("expected %q in log, got %q", want, logged)
		}
	}

	// NotFound é resultado esperado, não vai para o log
	buf.Reset()
	if _, err := rep.Status(ctx, 3); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after failed reset, got %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no log for not found, got %q", buf.String())
	}
}

func TestReporter_SeedCommitFaultIsLogged(t *testing.T) {
	store := infra.NewMemoryStore()
	var buf bytes.Buffer
	rep := Reporter{Store: store, Logger: log.New(&buf, "", 0)}

	store.SetCommitError(errors.New("disk full"))
	_, err := rep.Seed(context.Background(), domain.Resource{ID: 9, Capacity: 2})
	store.SetCommitError(nil)

	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
	if !strings.Contains(buf.String(), "seed failed resource_id=9") {
		t.Fatalf("expected seed failure in log, got %q", buf.String())
	}
}
