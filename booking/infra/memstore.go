package infra

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"viewing-slots/booking/domain"

	"github.com/pkg/errors"
)

var errTxDone = errors.New("transaction already finished")

// MemoryStore é um store transacional em memória.
//
// A exclusividade por recurso vem do KeyLocker; o mutex interno só protege os mapas.
// Útil para testes, desenvolvimento e instância única. Não sobrevive a restart.
type MemoryStore struct {
	locks domain.KeyLocker
	now   func() time.Time

	mu        sync.RWMutex
	resources map[domain.ResourceID]domain.Resource
	ledger    map[domain.ResourceID][]domain.Reservation
	commitErr error

	seq atomic.Int64
}

type MemoryStoreOption func(*MemoryStore)

func WithLocker(l domain.KeyLocker) MemoryStoreOption {
	return func(s *MemoryStore) { s.locks = l }
}

func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		locks:     NewKeyLocker(),
		now:       time.Now,
		resources: make(map[domain.ResourceID]domain.Resource),
		ledger:    make(map[domain.ResourceID][]domain.Reservation),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetCommitError faz todo Commit seguinte falhar com err (nil volta ao normal).
// Simula falha de armazenamento depois do lock adquirido.
func (s *MemoryStore) SetCommitError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

// Begin implementa domain.Store.
func (s *MemoryStore) Begin(ctx context.Context, id domain.ResourceID) (domain.Tx, error) {
	release, ok := s.locks.Acquire(ctx, id)
	if !ok {
		err := ctx.Err()
		if err == nil {
			err = context.DeadlineExceeded
		}
		return nil, errors.Wrapf(err, "memory store: lock resource %d", id)
	}
	return &memTx{s: s, id: id, release: release}, nil
}

type memTx struct {
	s       *MemoryStore
	id      domain.ResourceID
	release func()
	done    bool

	resource *domain.Resource
	cleared  bool
	pending  []domain.Reservation
}

func (t *memTx) check(id domain.ResourceID) error {
	if t.done {
		return errTxDone
	}
	if id != t.id {
		return errors.Wrapf(domain.ErrNotLocked, "resource %d (locked %d)", id, t.id)
	}
	return nil
}

func (t *memTx) Get(_ context.Context, id domain.ResourceID) (domain.Resource, error) {
	if err := t.check(id); err != nil {
		return domain.Resource{}, err
	}
	if t.resource != nil {
		return *t.resource, nil
	}

	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	r, ok := t.s.resources[id]
	if !ok {
		return domain.Resource{}, domain.ErrNotFound
	}
	return r, nil
}

func (t *memTx) Put(_ context.Context, r domain.Resource) error {
	if err := t.check(r.ID); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	t.resource = &r
	return nil
}

func (t *memTx) Count(_ context.Context, id domain.ResourceID) (int, error) {
	if err := t.check(id); err != nil {
		return 0, err
	}
	n := len(t.pending)
	if !t.cleared {
		t.s.mu.RLock()
		n += len(t.s.ledger[id])
		t.s.mu.RUnlock()
	}
	return n, nil
}

func (t *memTx) Append(_ context.Context, id domain.ResourceID, holder string) (domain.Reservation, error) {
	if err := t.check(id); err != nil {
		return domain.Reservation{}, err
	}
	res := domain.Reservation{
		ID:         t.s.seq.Add(1),
		ResourceID: id,
		Holder:     holder,
		CreatedAt:  t.s.now(),
	}
	t.pending = append(t.pending, res)
	return res, nil
}

func (t *memTx) List(_ context.Context, id domain.ResourceID) ([]domain.Reservation, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	var out []domain.Reservation
	if !t.cleared {
		t.s.mu.RLock()
		out = append(out, t.s.ledger[id]...)
		t.s.mu.RUnlock()
	}
	return append(out, t.pending...), nil
}

func (t *memTx) Clear(_ context.Context, id domain.ResourceID) error {
	if err := t.check(id); err != nil {
		return err
	}
	t.cleared = true
	t.pending = nil
	return nil
}

// Commit aplica as escritas pendentes e só então solta o lock do recurso.
func (t *memTx) Commit(_ context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true
	defer t.release()

	t.s.mu.Lock()
	defer t.s.mu.Unlock()

	if t.s.commitErr != nil {
		return errors.Wrapf(t.s.commitErr, "memory store: commit resource %d", t.id)
	}

	if t.resource != nil {
		t.s.resources[t.id] = *t.resource
	}
	if t.cleared {
		delete(t.s.ledger, t.id)
	}
	if len(t.pending) > 0 {
		t.s.ledger[t.id] = append(t.s.ledger[t.id], t.pending...)
	}
	return nil
}

func (t *memTx) Rollback(_ context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	t.release()
	return nil
}
