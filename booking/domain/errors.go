package domain

import (
	"errors"
	"fmt"
)

// Taxonomia de resultados do reserve.
//
// NotFound, SoldOut e Busy são resultados esperados e não mudam estado.
// Internal é falha de armazenamento depois da exclusividade obtida; é o único que
// o chamador pode tentar de novo.
var (
	ErrNotFound        = errors.New("resource not found")
	ErrSoldOut         = errors.New("sold out")
	ErrBusy            = errors.New("resource busy: lock not acquired in time")
	ErrInternal        = errors.New("internal error")
	ErrInvalidCapacity = errors.New("capacity must be > 0")
	// ErrCanceled: o chamador desistiu (ctx encerrado) com o lock em mãos; nada foi gravado.
	ErrCanceled = errors.New("request canceled before the reservation was written")

	ErrNotLocked = errors.New("resource not locked by this transaction")
	ErrLockLost  = errors.New("resource lock lost before commit")
)

// InternalError carrega o contexto de diagnóstico de uma falha de armazenamento.
type InternalError struct {
	Op            string
	ResourceID    ResourceID
	CorrelationID string
	Err           error
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("%s resource=%d correlation=%s: %v", e.Op, e.ResourceID, e.CorrelationID, e.Err)
}

func (e *InternalError) Unwrap() error { return e.Err }

func (e *InternalError) Is(target error) bool { return target == ErrInternal }

// Retryable diz se o chamador pode repetir a operação.
func Retryable(err error) bool {
	return errors.Is(err, ErrInternal)
}

type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeSoldOut  Outcome = "sold_out"
	OutcomeNotFound Outcome = "not_found"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeInternal Outcome = "internal_error"
	OutcomeCanceled Outcome = "canceled"

	// Recusas antes de chegar ao Allocator.
	OutcomeRateLimited Outcome = "rate_limited"
	OutcomeOverloaded  Outcome = "overloaded"
)

// OutcomeOf classifica o erro retornado por Allocator.Reserve.
func OutcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, ErrSoldOut):
		return OutcomeSoldOut
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	case errors.Is(err, ErrBusy):
		return OutcomeTimeout
	case errors.Is(err, ErrCanceled):
		return OutcomeCanceled
	default:
		return OutcomeInternal
	}
}
