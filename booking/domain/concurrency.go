package domain

import "context"

// SlotPool representa um recurso com capacidade finita (ex: requisições em voo).
//
// A semântica é: Acquire bloqueia até conseguir uma vaga ou até o ctx encerrar.
// Ao adquirir, retorna uma função de release que deve ser chamada exatamente uma vez.
type SlotPool interface {
	Acquire(ctx context.Context) (release func(), ok bool)
}

// KeyLocker dá exclusividade por chave: no máximo um dono por ResourceID por vez,
// e chaves diferentes não bloqueiam umas às outras.
type KeyLocker interface {
	Acquire(ctx context.Context, id ResourceID) (release func(), ok bool)
}
