package domain

import "context"

// Registry guarda os recursos (id, nome, capacidade).
//
// Leitura frequente, escrita rara. Só é alcançado através de um Tx, então a capacidade
// é sempre lida sob a exclusividade do recurso.
type Registry interface {
	Get(ctx context.Context, id ResourceID) (Resource, error)
	Put(ctx context.Context, r Resource) error
}

// Ledger é o registro append-only das reservas concedidas por recurso.
//
// O Ledger não tem política de lock própria: ele confia que quem chama (o Allocator)
// já garantiu a exclusividade através do Tx.
type Ledger interface {
	Count(ctx context.Context, id ResourceID) (int, error)
	Append(ctx context.Context, id ResourceID, holder string) (Reservation, error)
	List(ctx context.Context, id ResourceID) ([]Reservation, error)
	Clear(ctx context.Context, id ResourceID) error
}

// Tx é uma transação com exclusividade sobre UM recurso.
//
// Escritas ficam pendentes até Commit. Commit persiste as escritas e libera a
// exclusividade na mesma ação; se a exclusividade foi perdida antes, Commit falha
// (ErrLockLost) e nada é gravado. Rollback descarta e libera; depois de Commit é no-op.
// Usar outro ResourceID que não o do Begin retorna ErrNotLocked.
type Tx interface {
	Registry
	Ledger
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store é o armazenamento transacional externo.
//
// Begin bloqueia até obter a exclusividade sobre id ou até o ctx encerrar (nesse caso
// retorna um erro que envolve ctx.Err()). Begin em recursos diferentes nunca espera um
// pelo outro.
type Store interface {
	Begin(ctx context.Context, id ResourceID) (Tx, error)
}
