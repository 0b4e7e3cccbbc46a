package infra

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"viewing-slots/booking/domain"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// commitScript aplica as escritas pendentes e apaga o lock numa única execução,
// mas só se o token do lock ainda for nosso.
//
// KEYS: lock, ledger, resource
// ARGV: token, clear(0|1), put(0|1), name, capacity, entradas...
var commitScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) ~= ARGV[1] then
	return 0
end
if ARGV[2] == '1' then
	redis.call('DEL', KEYS[2])
end
if ARGV[3] == '1' then
	redis.call('HSET', KEYS[3], 'name', ARGV[4], 'capacity', ARGV[5])
end
for i = 6, #ARGV do
	redis.call('RPUSH', KEYS[2], ARGV[i])
end
redis.call('DEL', KEYS[1])
return 1
`)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore é um store transacional em Redis.
//
// Exclusividade: SET lock:<id> <token> NX PX ttl, tentado de novo a cada pollEvery até o
// ctx encerrar. O TTL precisa cobrir o tempo entre Begin e Commit; se expirar, o Commit
// detecta (token diferente) e falha com domain.ErrLockLost sem gravar nada.
//
// Commit ambíguo: se a resposta do script se perde, o Commit lê o fim do ledger. Achando
// as reservas deste Tx, o commit é dado como feito; senão devolve erro. Esse erro ainda
// pode esconder um commit aplicado (ex: Redis inacessível também na conferência), e
// repetir a reserva nesse caso pode gerar uma segunda reserva para o mesmo holder.
// Commits sem reservas (reset, seed) são idempotentes e podem ser repetidos.
type RedisStore struct {
	rdb *redis.Client

	prefix    string
	lockTTL   time.Duration
	pollEvery time.Duration
	now       func() time.Time
}

type RedisStoreOption func(*RedisStore)

func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithLockTTL(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.lockTTL = d }
}

func WithLockPoll(d time.Duration) RedisStoreOption {
	return func(s *RedisStore) { s.pollEvery = d }
}

func WithRedisClock(now func() time.Time) RedisStoreOption {
	return func(s *RedisStore) { s.now = now }
}

func NewRedisStore(rdb *redis.Client, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		rdb:       rdb,
		prefix:    "booking",
		lockTTL:   30 * time.Second,
		pollEvery: 5 * time.Millisecond,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) lockKey(id domain.ResourceID) string {
	return s.prefix + ":lock:" + id.String()
}

func (s *RedisStore) ledgerKey(id domain.ResourceID) string {
	return s.prefix + ":ledger:" + id.String()
}

func (s *RedisStore) resourceKey(id domain.ResourceID) string {
	return s.prefix + ":resource:" + id.String()
}

func (s *RedisStore) seqKey() string { return s.prefix + ":seq" }

// Begin implementa domain.Store.
func (s *RedisStore) Begin(ctx context.Context, id domain.ResourceID) (domain.Tx, error) {
	token := uuid.NewString()
	poll := rate.NewLimiter(rate.Every(s.pollEvery), 1)

	for {
		ok, err := s.rdb.SetNX(ctx, s.lockKey(id), token, s.lockTTL).Result()
		if err != nil {
			// O SET pode ter sido aplicado mesmo sem resposta: solta o que for nosso.
			s.releaseBestEffort(id, token)
			if ctx.Err() != nil {
				return nil, errors.Wrapf(ctx.Err(), "redis store: lock resource %d", id)
			}
			return nil, errors.Wrapf(err, "redis store: lock resource %d", id)
		}
		if ok {
			return &redisTx{s: s, id: id, token: token}, nil
		}

		if err := poll.Wait(ctx); err != nil {
			// Wait também falha quando a próxima tentativa passaria do deadline.
			cause := ctx.Err()
			if cause == nil {
				cause = context.DeadlineExceeded
			}
			return nil, errors.Wrapf(cause, "redis store: lock resource %d", id)
		}
	}
}

type redisTx struct {
	s     *RedisStore
	id    domain.ResourceID
	token string
	done  bool

	resource *domain.Resource
	cleared  bool
	pending  []domain.Reservation
}

func (t *redisTx) check(id domain.ResourceID) error {
	if t.done {
		return errTxDone
	}
	if id != t.id {
		return errors.Wrapf(domain.ErrNotLocked, "resource %d (locked %d)", id, t.id)
	}
	return nil
}

func (t *redisTx) Get(ctx context.Context, id domain.ResourceID) (domain.Resource, error) {
	if err := t.check(id); err != nil {
		return domain.Resource{}, err
	}
	if t.resource != nil {
		return *t.resource, nil
	}

	fields, err := t.s.rdb.HGetAll(ctx, t.s.resourceKey(id)).Result()
	if err != nil {
		return domain.Resource{}, errors.Wrapf(err, "redis store: get resource %d", id)
	}
	if len(fields) == 0 {
		return domain.Resource{}, domain.ErrNotFound
	}
	capacity, err := strconv.Atoi(fields["capacity"])
	if err != nil {
		return domain.Resource{}, errors.Wrapf(err, "redis store: resource %d capacity", id)
	}
	return domain.Resource{ID: id, Name: fields["name"], Capacity: capacity}, nil
}

func (t *redisTx) Put(_ context.Context, r domain.Resource) error {
	if err := t.check(r.ID); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	t.resource = &r
	return nil
}

func (t *redisTx) Count(ctx context.Context, id domain.ResourceID) (int, error) {
	if err := t.check(id); err != nil {
		return 0, err
	}
	n := len(t.pending)
	if !t.cleared {
		stored, err := t.s.rdb.LLen(ctx, t.s.ledgerKey(id)).Result()
		if err != nil {
			return 0, errors.Wrapf(err, "redis store: count resource %d", id)
		}
		n += int(stored)
	}
	return n, nil
}

func (t *redisTx) Append(ctx context.Context, id domain.ResourceID, holder string) (domain.Reservation, error) {
	if err := t.check(id); err != nil {
		return domain.Reservation{}, err
	}
	rid, err := t.s.rdb.Incr(ctx, t.s.seqKey()).Result()
	if err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "redis store: reservation id for resource %d", id)
	}
	res := domain.Reservation{
		ID:         rid,
		ResourceID: id,
		Holder:     holder,
		CreatedAt:  t.s.now().Truncate(time.Millisecond),
	}
	t.pending = append(t.pending, res)
	return res, nil
}

func (t *redisTx) List(ctx context.Context, id domain.ResourceID) ([]domain.Reservation, error) {
	if err := t.check(id); err != nil {
		return nil, err
	}
	var out []domain.Reservation
	if !t.cleared {
		entries, err := t.s.rdb.LRange(ctx, t.s.ledgerKey(id), 0, -1).Result()
		if err != nil {
			return nil, errors.Wrapf(err, "redis store: list resource %d", id)
		}
		for _, e := range entries {
			res, err := decodeEntry(id, e)
			if err != nil {
				return nil, err
			}
			out = append(out, res)
		}
	}
	return append(out, t.pending...), nil
}

func (t *redisTx) Clear(_ context.Context, id domain.ResourceID) error {
	if err := t.check(id); err != nil {
		return err
	}
	t.cleared = true
	t.pending = nil
	return nil
}

func (t *redisTx) Commit(ctx context.Context) error {
	if t.done {
		return errTxDone
	}
	t.done = true

	args := make([]interface{}, 0, 5+len(t.pending))
	args = append(args, t.token, boolArg(t.cleared), boolArg(t.resource != nil))
	if t.resource != nil {
		args = append(args, t.resource.Name, t.resource.Capacity)
	} else {
		args = append(args, "", 0)
	}
	for _, res := range t.pending {
		args = append(args, encodeEntry(res))
	}

	keys := []string{t.s.lockKey(t.id), t.s.ledgerKey(t.id), t.s.resourceKey(t.id)}
	applied, err := commitScript.Run(ctx, t.s.rdb, keys, args...).Int64()
	if err != nil {
		// O script é atômico, mas não sabemos se chegou a rodar.
		if t.appliedAfterError() {
			return nil
		}
		t.s.releaseBestEffort(t.id, t.token)
		return errors.Wrapf(err, "redis store: commit resource %d", t.id)
	}
	if applied == 0 {
		return errors.Wrapf(domain.ErrLockLost, "redis store: commit resource %d", t.id)
	}
	return nil
}

func (t *redisTx) Rollback(ctx context.Context) error {
	if t.done {
		return nil
	}
	t.done = true
	if err := releaseScript.Run(ctx, t.s.rdb, []string{t.s.lockKey(t.id)}, t.token).Err(); err != nil {
		return errors.Wrapf(err, "redis store: release resource %d", t.id)
	}
	return nil
}

// appliedAfterError confere se um commit sem resposta chegou a gravar: as últimas
// entradas do ledger são as reservas pendentes deste Tx (os ids vêm do INCR e não se
// repetem). Sem reservas pendentes não há como distinguir, e o commit conta como falho.
func (t *redisTx) appliedAfterError() bool {
	if len(t.pending) == 0 {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	n := int64(len(t.pending))
	tail, err := t.s.rdb.LRange(ctx, t.s.ledgerKey(t.id), -n, -1).Result()
	if err != nil || int64(len(tail)) != n {
		return false
	}
	for i, res := range t.pending {
		if tail[i] != encodeEntry(res) {
			return false
		}
	}
	return true
}

func (s *RedisStore) releaseBestEffort(id domain.ResourceID, token string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, s.rdb, []string{s.lockKey(id)}, token).Err()
}

func boolArg(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Entrada do ledger: <reservationID>:<unixMillis>:<holder>. O holder pode conter ':'.
func encodeEntry(res domain.Reservation) string {
	return fmt.Sprintf("%d:%d:%s", res.ID, res.CreatedAt.UnixMilli(), res.Holder)
}

func decodeEntry(id domain.ResourceID, e string) (domain.Reservation, error) {
	parts := strings.SplitN(e, ":", 3)
	if len(parts) != 3 {
		return domain.Reservation{}, errors.Errorf("redis store: malformed ledger entry %q", e)
	}
	rid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "redis store: ledger entry %q", e)
	}
	ms, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return domain.Reservation{}, errors.Wrapf(err, "redis store: ledger entry %q", e)
	}
	return domain.Reservation{
		ID:         rid,
		ResourceID: id,
		Holder:     parts[2],
		CreatedAt:  time.UnixMilli(ms),
	}, nil
}
