package infra

import (
	"context"
	"sync"

	"viewing-slots/booking/domain"
)

// KeyLocker dá exclusividade por ResourceID usando um ChanPool de uma vaga por chave.
//
// As entradas são contadas por referência (donos + quem espera) e removidas do mapa
// quando ninguém mais usa a chave, então o mapa não cresce com ids antigos.
type KeyLocker struct {
	mu    sync.Mutex
	locks map[domain.ResourceID]*keyLock
}

type keyLock struct {
	pool *ChanPool
	refs int
}

func NewKeyLocker() *KeyLocker {
	return &KeyLocker{locks: make(map[domain.ResourceID]*keyLock)}
}

// Acquire implementa domain.KeyLocker. O release retornado é idempotente.
func (l *KeyLocker) Acquire(ctx context.Context, id domain.ResourceID) (func(), bool) {
	kl := l.ref(id)

	release, ok := kl.pool.Acquire(ctx)
	if !ok {
		l.unref(id, kl)
		return nil, false
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			release()
			l.unref(id, kl)
		})
	}, true
}

// Len retorna quantas chaves estão em uso (com dono ou com alguém esperando).
func (l *KeyLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

func (l *KeyLocker) ref(id domain.ResourceID) *keyLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl, ok := l.locks[id]
	if !ok {
		kl = &keyLock{pool: NewChanPool(1)}
		l.locks[id] = kl
	}
	kl.refs++
	return kl
}

func (l *KeyLocker) unref(id domain.ResourceID, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, id)
	}
}
