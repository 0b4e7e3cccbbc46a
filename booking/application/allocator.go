package application

import (
	"context"
	"log"
	"time"

	"viewing-slots/booking/domain"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/pkg/errors"
)

// HoldFunc roda com a exclusividade do recurso ainda em mãos, entre a leitura do
// contador e o commit. Serve para simular latência de processamento em testes de
// concorrência; em produção fica nil.
type HoldFunc func(ctx context.Context, id domain.ResourceID) error

// SleepHold segura o lock por d (ou até o ctx encerrar).
func SleepHold(d time.Duration) HoldFunc {
	if d <= 0 {
		return nil
	}
	return func(ctx context.Context, _ domain.ResourceID) error {
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Allocator concentra a regra de admissão de reservas, sem saber nada sobre HTTP.
//
// Toda decisão (ler contador, comparar, gravar) acontece dentro de um Tx com
// exclusividade sobre o recurso, e o commit que grava a reserva é o mesmo passo que
// solta o lock. Chamadas para recursos diferentes não se bloqueiam.
type Allocator struct {
	Store domain.Store
	// AcquireTimeout limita só a espera pelo lock.
	// Se <= 0, espera até o ctx do chamador encerrar.
	AcquireTimeout time.Duration
	Hold           HoldFunc
	Stats          domain.StatsStore
	Logger         *log.Logger
}

// Reserve tenta admitir uma reserva de holder em id.
//
// Erros: domain.ErrNotFound, domain.ErrSoldOut, domain.ErrBusy (lock não obtido a
// tempo), domain.ErrCanceled (ctx encerrado durante o Hold) ou *domain.InternalError
// (falha de armazenamento; tudo desfeito). Nenhum deles é repetido aqui.
func (a Allocator) Reserve(ctx context.Context, id domain.ResourceID, holder string) (res domain.Reservation, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "booking.reserve")
	span.SetTag("resource_id", int64(id))
	defer span.Finish()

	start := time.Now()
	var waited time.Duration
	defer func() {
		outcome := domain.OutcomeOf(err)
		span.SetTag("outcome", string(outcome))
		if outcome == domain.OutcomeInternal {
			ext.Error.Set(span, true)
		}
		logInternal(ctx, a.Logger, "reserve", id, err)
		if a.Stats != nil {
			_ = a.Stats.Record(context.WithoutCancel(ctx), domain.AdmissionEvent{
				ResourceID: id,
				Outcome:    outcome,
				Holder:     holder,
				Wait:       waited,
				Took:       time.Since(start),
				At:         start,
			})
		}
	}()

	tx, err := begin(ctx, a.Store, id, a.AcquireTimeout)
	waited = time.Since(start)
	if err != nil {
		return domain.Reservation{}, err
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	r, err := tx.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Reservation{}, domain.ErrNotFound
		}
		return domain.Reservation{}, internal(ctx, "get", id, err)
	}

	count, err := tx.Count(ctx, id)
	if err != nil {
		return domain.Reservation{}, internal(ctx, "count", id, err)
	}
	if count >= r.Capacity {
		return domain.Reservation{}, domain.ErrSoldOut
	}

	if a.Hold != nil {
		if err := a.Hold(ctx, id); err != nil {
			if ctx.Err() != nil {
				return domain.Reservation{}, errors.Wrapf(domain.ErrCanceled, "resource %d: %v", id, ctx.Err())
			}
			return domain.Reservation{}, internal(ctx, "hold", id, err)
		}
	}

	// Decidido: a escrita termina mesmo que o chamador desista agora.
	wctx := context.WithoutCancel(ctx)
	res, err = tx.Append(wctx, id, holder)
	if err != nil {
		return domain.Reservation{}, internal(ctx, "append", id, err)
	}

	// Commit libera o lock; a partir daqui não há Rollback, nem em caso de erro.
	committed = true
	if err := tx.Commit(wctx); err != nil {
		return domain.Reservation{}, internal(ctx, "commit", id, err)
	}
	return res, nil
}

// begin abre o Tx com o timeout de aquisição e traduz espera esgotada em ErrBusy.
func begin(ctx context.Context, store domain.Store, id domain.ResourceID, timeout time.Duration) (domain.Tx, error) {
	acqCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := store.Begin(acqCtx, id)
	if err == nil {
		return tx, nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return nil, errors.Wrapf(domain.ErrBusy, "resource %d", id)
	}
	return nil, internal(ctx, "begin", id, err)
}

func internal(ctx context.Context, op string, id domain.ResourceID, err error) error {
	return &domain.InternalError{
		Op:            op,
		ResourceID:    id,
		CorrelationID: domain.CorrelationID(ctx),
		Err:           err,
	}
}

// logInternal registra só erros internos, com resource_id e correlation_id.
func logInternal(ctx context.Context, l *log.Logger, op string, id domain.ResourceID, err error) {
	if !errors.Is(err, domain.ErrInternal) {
		return
	}
	logger(l).Printf("%s failed resource_id=%d correlation_id=%s: %v", op, id, domain.CorrelationID(ctx), err)
}

func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.Default()
	}
	return l
}
