package infra

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"viewing-slots/booking/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), DisableIdentity: true})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

// lostReply deixa o primeiro comando com o nome dado rodar no servidor e devolve erro
// de rede ao cliente, como uma resposta perdida.
type lostReply struct {
	names map[string]bool
	fired atomic.Bool
}

func newLostReply(names ...string) *lostReply {
	h := &lostReply{names: make(map[string]bool)}
	for _, n := range names {
		h.names[n] = true
	}
	return h
}

func (h *lostReply) DialHook(next redis.DialHook) redis.DialHook { return next }

func (h *lostReply) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		err := next(ctx, cmd)
		if err == nil && h.names[cmd.Name()] && h.fired.CompareAndSwap(false, true) {
			return &net.OpError{Op: "read", Net: "tcp", Err: errors.New("i/o timeout")}
		}
		return err
	}
}

func (h *lostReply) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func seedRedis(t *testing.T, s *RedisStore, r domain.Resource) {
	t.Helper()
	ctx := context.Background()
	tx, err := s.Begin(ctx, r.ID)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Put(ctx, r); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
}

func TestRedisStore_CommitPersistsAndReleasesLock(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithKeyPrefix("test:"), WithLockPoll(time.Millisecond))
	ctx := context.Background()
	seedRedis(t, s, domain.Resource{ID: 1, Name: "Zurich Penthouse", Capacity: 5})

	tx, _ := s.Begin(ctx, 1)
	r, err := tx.Get(ctx, 1)
	if err != nil || r.Capacity != 5 || r.Name != "Zurich Penthouse" {
		t.Fatalf("unexpected resource %+v (%v)", r, err)
	}
	a, _ := tx.Append(ctx, 1, "alice")
	b, _ := tx.Append(ctx, 1, "bob:with:colons")
	if a.ID == b.ID {
		t.Fatalf("expected unique reservation ids, got %d twice", a.ID)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}
	if mr.Exists("test:lock:1") {
		t.Fatalf("expected lock key to be deleted on commit")
	}

	tx, _ = s.Begin(ctx, 1)
	defer tx.Rollback(ctx)
	list, err := tx.List(ctx, 1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Holder != "alice" || list[1].Holder != "bob:with:colons" {
		t.Fatalf("unexpected ledger %+v", list)
	}
	if list[1].ID != b.ID {
		t.Fatalf("expected id %d, got %d", b.ID, list[1].ID)
	}
}

func TestRedisStore_RollbackReleasesWithoutWriting(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(time.Millisecond))
	ctx := context.Background()
	seedRedis(t, s, domain.Resource{ID: 1, Capacity: 1})

	tx, _ := s.Begin(ctx, 1)
	_, _ = tx.Append(ctx, 1, "ghost")
	if err := tx.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if mr.Exists("booking:lock:1") {
		t.Fatalf("expected lock released")
	}
	if mr.Exists("booking:ledger:1") {
		t.Fatalf("expected no ledger entries after rollback")
	}
}

func TestRedisStore_BeginTimesOutWhileHeld(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(2*time.Millisecond))
	ctx := context.Background()

	held, _ := s.Begin(ctx, 1)
	defer held.Rollback(ctx)

	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := s.Begin(cctx, 1); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	// outro recurso não espera
	other, err := s.Begin(ctx, 2)
	if err != nil {
		t.Fatalf("expected resource 2 to be free: %v", err)
	}
	_ = other.Rollback(ctx)
}

func TestRedisStore_CommitFailsWhenLockExpired(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockTTL(time.Second), WithLockPoll(time.Millisecond))
	ctx := context.Background()
	seedRedis(t, s, domain.Resource{ID: 1, Capacity: 3})

	tx, _ := s.Begin(ctx, 1)
	_, _ = tx.Append(ctx, 1, "late")

	mr.FastForward(2 * time.Second)

	// outra transação pega o lock expirado
	thief, err := s.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("expected expired lock to be acquirable: %v", err)
	}

	if err := tx.Commit(ctx); !errors.Is(err, domain.ErrLockLost) {
		t.Fatalf("expected ErrLockLost, got %v", err)
	}
	if !mr.Exists("booking:lock:1") {
		t.Fatalf("commit with a lost lock must not delete the new owner's lock")
	}

	n, err := thief.Count(ctx, 1)
	if err != nil || n != 0 {
		t.Fatalf("expected no reservation written, got %d (%v)", n, err)
	}
	_ = thief.Rollback(ctx)
}

func TestRedisStore_ResetClearsAndUpdatesCapacity(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(time.Millisecond))
	ctx := context.Background()
	seedRedis(t, s, domain.Resource{ID: 3, Name: "Basel Loft", Capacity: 2})

	tx, _ := s.Begin(ctx, 3)
	_, _ = tx.Append(ctx, 3, "a")
	_ = tx.Commit(ctx)

	tx, _ = s.Begin(ctx, 3)
	_ = tx.Clear(ctx, 3)
	_ = tx.Put(ctx, domain.Resource{ID: 3, Name: "Basel Loft", Capacity: 7})
	if n, _ := tx.Count(ctx, 3); n != 0 {
		t.Fatalf("expected staged clear to be visible, got %d", n)
	}
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx, _ = s.Begin(ctx, 3)
	defer tx.Rollback(ctx)
	r, _ := tx.Get(ctx, 3)
	n, _ := tx.Count(ctx, 3)
	if r.Capacity != 7 || n != 0 {
		t.Fatalf("expected capacity 7 and empty ledger, got %+v count=%d", r, n)
	}
}

func TestRedisStore_GetUnknownResource(t *testing.T) {
	_, rdb := newTestRedis(t)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	tx, _ := s.Begin(ctx, 999)
	defer tx.Rollback(ctx)
	if _, err := tx.Get(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRedisStore_BeginReleasesLockWhenReplyIsLost(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(time.Millisecond))
	seedRedis(t, s, domain.Resource{ID: 1, Name: "Zurich Penthouse", Capacity: 5})

	rdb.AddHook(newLostReply("set"))

	if _, err := s.Begin(context.Background(), 1); err == nil {
		t.Fatalf("expected begin to fail when the SET reply is lost")
	}
	if mr.Exists("booking:lock:1") {
		t.Fatalf("expected lock key to be released after failed begin")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	tx, err := s.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("expected next begin to get the lock, got %v", err)
	}
	_ = tx.Rollback(ctx)
}

func TestRedisStore_CommitConfirmsAppliedWriteWhenReplyIsLost(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(time.Millisecond))
	ctx := context.Background()
	seedRedis(t, s, domain.Resource{ID: 1, Name: "Zurich Penthouse", Capacity: 5})

	tx, err := s.Begin(ctx, 1)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if _, err := tx.Append(ctx, 1, "alice"); err != nil {
		t.Fatalf("append: %v", err)
	}

	rdb.AddHook(newLostReply("evalsha", "eval"))
	if err := tx.Commit(ctx); err != nil {
		t.Fatalf("expected commit to be confirmed from the ledger, got %v", err)
	}

	entries, err := mr.List("booking:ledger:1")
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %v (%v)", entries, err)
	}
	if mr.Exists("booking:lock:1") {
		t.Fatalf("expected lock key to be deleted by the commit")
	}
}

func TestRedisStore_CommitWithoutReservationsFailsWhenReplyIsLost(t *testing.T) {
	mr, rdb := newTestRedis(t)
	s := NewRedisStore(rdb, WithLockPoll(time.Millisecond))
	ctx := context.Background()

	tx, err := s.Begin(ctx, 2)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := tx.Put(ctx, domain.Resource{ID: 2, Name: "Basel Loft", Capacity: 3}); err != nil {
		t.Fatalf("put: %v", err)
	}

	rdb.AddHook(newLostReply("evalsha", "eval"))
	if err := tx.Commit(ctx); err == nil {
		t.Fatalf("expected commit error when the reply is lost and nothing can be confirmed")
	}
	if mr.Exists("booking:lock:2") {
		t.Fatalf("expected lock key to be gone after a failed commit")
	}
}
