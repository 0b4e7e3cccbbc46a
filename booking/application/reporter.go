package application

import (
	"context"
	"log"
	"time"

	"viewing-slots/booking/domain"

	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
)

// Reporter expõe o estado de um recurso e o reset usado para preparar testes.
//
// Tudo roda sob a mesma exclusividade do Allocator, então Status nunca vê um
// contador pela metade e Reset pode rodar junto com reservas em andamento.
type Reporter struct {
	Store          domain.Store
	AcquireTimeout time.Duration
	Logger         *log.Logger
}

func (r Reporter) Status(ctx context.Context, id domain.ResourceID) (_ domain.Status, err error) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "booking.status")
	span.SetTag("resource_id", int64(id))
	defer span.Finish()
	defer func() { logInternal(ctx, r.Logger, "status", id, err) }()

	tx, err := begin(ctx, r.Store, id, r.AcquireTimeout)
	if err != nil {
		return domain.Status{}, err
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	res, err := tx.Get(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Status{}, domain.ErrNotFound
		}
		return domain.Status{}, internal(ctx, "status", id, err)
	}
	list, err := tx.List(ctx, id)
	if err != nil {
		return domain.Status{}, internal(ctx, "status", id, err)
	}
	return domain.NewStatus(res, list), nil
}

// Reset apaga as reservas de id e define a capacidade, criando o recurso se preciso.
func (r Reporter) Reset(ctx context.Context, id domain.ResourceID, capacity int) (err error) {
	if capacity <= 0 {
		return domain.ErrInvalidCapacity
	}

	span, ctx := opentracing.StartSpanFromContext(ctx, "booking.reset")
	span.SetTag("resource_id", int64(id))
	defer span.Finish()
	defer func() { logInternal(ctx, r.Logger, "reset", id, err) }()

	tx, err := begin(ctx, r.Store, id, r.AcquireTimeout)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	res, err := tx.Get(ctx, id)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		res = domain.Resource{ID: id, Name: domain.DefaultName(id)}
	case err != nil:
		return internal(ctx, "reset", id, err)
	}
	res.Capacity = capacity

	if err := tx.Clear(ctx, id); err != nil {
		return internal(ctx, "reset", id, err)
	}
	if err := tx.Put(ctx, res); err != nil {
		return internal(ctx, "reset", id, err)
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return internal(ctx, "reset", id, err)
	}
	return nil
}

// Seed cria o recurso se ele ainda não existe. Um recurso existente não é tocado.
func (r Reporter) Seed(ctx context.Context, res domain.Resource) (_ bool, err error) {
	if err := res.Validate(); err != nil {
		return false, err
	}
	if res.Name == "" {
		res.Name = domain.DefaultName(res.ID)
	}
	defer func() { logInternal(ctx, r.Logger, "seed", res.ID, err) }()

	tx, err := begin(ctx, r.Store, res.ID, r.AcquireTimeout)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	_, err = tx.Get(ctx, res.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return false, internal(ctx, "seed", res.ID, err)
	}
	if err := tx.Put(ctx, res); err != nil {
		return false, internal(ctx, "seed", res.ID, err)
	}

	committed = true
	if err := tx.Commit(ctx); err != nil {
		return false, internal(ctx, "seed", res.ID, err)
	}
	return true, nil
}
