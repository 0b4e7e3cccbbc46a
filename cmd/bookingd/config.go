package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"viewing-slots/booking/domain"

	"github.com/jessevdk/go-flags"
)

type options struct {
	Addr    string `long:"bind-address" short:"b" description:"address to listen on" default:":8000" env:"LISTEN_ADDR"`
	Backend string `long:"backend" description:"reservation store" choice:"memory" choice:"redis" default:"memory" env:"STORE_BACKEND"`

	RedisAddr     string        `long:"redis-addr" description:"redis address for the redis backend" default:"localhost:6379" env:"REDIS_ADDR"`
	RedisPassword string        `long:"redis-password" description:"redis password" env:"REDIS_PASSWORD"`
	RedisDB       int           `long:"redis-db" description:"redis database" default:"0" env:"REDIS_DB"`
	RedisPrefix   string        `long:"redis-prefix" description:"key prefix for the redis backend" default:"booking" env:"REDIS_PREFIX"`
	LockTTL       time.Duration `long:"lock-ttl" description:"redis lock expiry; must cover hold delay + commit" default:"30s" env:"LOCK_TTL"`
	LockPoll      time.Duration `long:"lock-poll" description:"interval between redis lock attempts" default:"5ms" env:"LOCK_POLL"`

	AcquireTimeout  time.Duration `long:"acquire-timeout" description:"max wait for a resource lock (0 = until the request ends)" default:"5s" env:"ACQUIRE_TIMEOUT"`
	HoldDelay       time.Duration `long:"hold-delay" description:"simulated processing latency while the lock is held (testing only)" default:"0s" env:"HOLD_DELAY"`
	ResetCapacity   int           `long:"reset-capacity" description:"capacity used by reset when none is given" default:"5" env:"RESET_CAPACITY"`
	DefaultResource int64         `long:"default-resource" description:"resource served by the routes without {id}" default:"1" env:"DEFAULT_RESOURCE"`
	Seed            []string      `long:"seed" description:"id:name:capacity created at start-up if absent" default:"1:Zurich Penthouse:5" env:"SEED_RESOURCES" env-delim:","`

	RateEnabled    bool          `long:"rate-enabled" description:"per-client rate limit on reserve" env:"RATE_ENABLED"`
	RateRPS        float64       `long:"rate-rps" default:"10" env:"RATE_RPS"`
	RateBurst      int           `long:"rate-burst" default:"20" env:"RATE_BURST"`
	RateKeyHeader  string        `long:"rate-key-header" env:"RATE_KEY_HEADER"`
	TrustXFF       bool          `long:"trust-xff" env:"TRUST_XFF"`
	RetryAfter     time.Duration `long:"retry-after" default:"1s" env:"RETRY_AFTER"`
	AddRateHeaders bool          `long:"rate-headers" env:"ADD_RATELIMIT_HEADERS"`
	RateByHolder   bool          `long:"rate-by-holder" description:"rate limit by X-Holder instead of client address" env:"RATE_BY_HOLDER"`

	ConcurrencyMax     int           `long:"concurrency-max" description:"max in-flight requests (0 = unlimited)" default:"100" env:"CONCURRENCY_MAX"`
	ConcurrencyTimeout time.Duration `long:"concurrency-timeout" default:"0s" env:"CONCURRENCY_TIMEOUT"`

	StatsRedisEnabled   bool          `long:"stats-redis" env:"STATS_REDIS_ENABLED"`
	StatsRedisAddr      string        `long:"stats-redis-addr" env:"STATS_REDIS_ADDR"`
	StatsPrefix         string        `long:"stats-prefix" default:"booking:stats" env:"STATS_PREFIX"`
	StatsTTL            time.Duration `long:"stats-ttl" default:"24h" env:"STATS_TTL"`
	StatsBucket         string        `long:"stats-bucket" default:"minute" env:"STATS_BUCKET"`
	StatsTrackResources bool          `long:"stats-track-resources" env:"STATS_TRACK_RESOURCES"`
}

func parseOptions(args []string) (options, error) {
	opts := options{}
	parser := flags.NewParser(&opts, flags.Default)
	parser.ShortDescription = "bookingd"
	parser.LongDescription = "Capacity-bounded viewing slot booking service"

	if _, err := parser.ParseArgs(args); err != nil {
		return options{}, err
	}
	if err := opts.validate(); err != nil {
		return options{}, err
	}
	return opts, nil
}

func (o options) validate() error {
	if o.Backend == "redis" && strings.TrimSpace(o.RedisAddr) == "" {
		return errors.New("REDIS_ADDR is required when STORE_BACKEND=redis")
	}
	if o.Backend == "redis" && o.LockTTL <= o.HoldDelay {
		return errors.New("LOCK_TTL must be greater than HOLD_DELAY")
	}
	if o.StatsRedisEnabled && strings.TrimSpace(o.StatsRedisAddr) == "" {
		return errors.New("STATS_REDIS_ADDR is required when STATS_REDIS_ENABLED=true")
	}
	if o.ResetCapacity <= 0 {
		return errors.New("RESET_CAPACITY must be > 0")
	}
	if o.DefaultResource <= 0 {
		return errors.New("DEFAULT_RESOURCE must be > 0")
	}
	if o.RateEnabled && o.RateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if o.RateEnabled && o.RateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if o.ConcurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

// parseSeeds lê entradas "id:name:capacity"; o nome pode ficar vazio ("3::4").
func parseSeeds(entries []string) ([]domain.Resource, error) {
	out := make([]domain.Resource, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		parts := strings.Split(e, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("seed %q: expected id:name:capacity", e)
		}
		id, err := domain.ParseResourceID(strings.TrimSpace(parts[0]))
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("seed %q: invalid id", e)
		}
		capacity, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil || capacity <= 0 {
			return nil, fmt.Errorf("seed %q: capacity must be > 0", e)
		}
		out = append(out, domain.Resource{ID: id, Name: strings.TrimSpace(parts[1]), Capacity: capacity})
	}
	return out, nil
}
