// Package application contém os casos de uso da reserva de vagas.
//
// Ele depende apenas do pacote domain e não conhece net/http nem Redis.
// Ex.: Allocator.Reserve(ctx, id, holder) admite ou rejeita uma reserva;
// Reporter.Status / Reset fazem a introspecção e a preparação de testes.
package application
