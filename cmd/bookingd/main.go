package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"viewing-slots/booking"
	"viewing-slots/booking/application"
	"viewing-slots/booking/domain"
	"viewing-slots/booking/infra"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	opts, err := parseOptions(os.Args[1:])
	if err != nil {
		var fe *flags.Error
		if errors.As(err, &fe) && fe.Type == flags.ErrHelp {
			os.Exit(0)
		}
		log.Fatalf("config error: %v", err)
	}
	seeds, err := parseSeeds(opts.Seed)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var store domain.Store
	var stats domain.MultiStats

	switch opts.Backend {
	case "redis":
		rdb := mustRedis(opts.RedisAddr, opts.RedisPassword, opts.RedisDB)
		defer func() { _ = rdb.Close() }()
		store = infra.NewRedisStore(
			rdb,
			infra.WithKeyPrefix(opts.RedisPrefix),
			infra.WithLockTTL(opts.LockTTL),
			infra.WithLockPoll(opts.LockPoll),
		)
	default:
		store = infra.NewMemoryStore()
	}

	stats = append(stats, infra.NewPrometheusStats(prometheus.DefaultRegisterer))
	if opts.StatsRedisEnabled {
		rdb := mustRedis(opts.StatsRedisAddr, opts.RedisPassword, opts.RedisDB)
		defer func() { _ = rdb.Close() }()
		stats = append(stats, infra.NewRedisStatsStore(
			rdb,
			infra.WithStatsPrefix(opts.StatsPrefix),
			infra.WithStatsTTL(opts.StatsTTL),
			infra.WithStatsBucket(opts.StatsBucket),
			infra.WithStatsTrackResources(opts.StatsTrackResources),
		))
	}

	allocator := application.Allocator{
		Store:          store,
		AcquireTimeout: opts.AcquireTimeout,
		Hold:           application.SleepHold(opts.HoldDelay),
		Stats:          stats,
	}
	reporter := application.Reporter{Store: store, AcquireTimeout: opts.AcquireTimeout}

	for _, r := range seeds {
		created, err := reporter.Seed(ctx, r)
		if err != nil {
			log.Fatalf("seed resource %d: %v", r.ID, err)
		}
		log.Printf("seed: resource=%d name=%q capacity=%d created=%v", r.ID, r.Name, r.Capacity, created)
	}

	var reserveMW func(http.Handler) http.Handler
	if opts.RateEnabled {
		rateStore := infra.NewRateStore(opts.RateRPS, opts.RateBurst)
		rateStore.StartJanitor(ctx)
		reserveMW = booking.RateLimit(booking.RateLimitOptions{
			Store:              rateStore,
			KeyHeader:          opts.RateKeyHeader,
			TrustXForwardedFor: opts.TrustXFF,
			RetryAfter:         opts.RetryAfter,
			AddHeaders:         opts.AddRateHeaders,
			ByHolder:           opts.RateByHolder,
			DefaultResource:    domain.ResourceID(opts.DefaultResource),
			Stats:              stats,
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/", booking.NewHandler(booking.Options{
		Allocator:         allocator,
		Reporter:          reporter,
		DefaultResource:   domain.ResourceID(opts.DefaultResource),
		ResetCapacity:     opts.ResetCapacity,
		BusyRetryAfter:    opts.RetryAfter,
		ReserveMiddleware: reserveMW,
	}))

	h := booking.InFlight(booking.InFlightOptions{
		Max:             opts.ConcurrencyMax,
		AcquireTimeout:  opts.ConcurrencyTimeout,
		RetryAfter:      opts.RetryAfter,
		DefaultResource: domain.ResourceID(opts.DefaultResource),
		Stats:           stats,
	})(mux)

	srv := &http.Server{
		Addr:              opts.Addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("bookingd listening on %s backend=%s", opts.Addr, opts.Backend)
	log.Printf("allocator: acquireTimeout=%s holdDelay=%s resetCapacity=%d defaultResource=%d", opts.AcquireTimeout, opts.HoldDelay, opts.ResetCapacity, opts.DefaultResource)
	log.Printf("rate: enabled=%v rps=%.3f burst=%d keyHeader=%q trustXFF=%v byHolder=%v", opts.RateEnabled, opts.RateRPS, opts.RateBurst, opts.RateKeyHeader, opts.TrustXFF, opts.RateByHolder)
	log.Printf("stats-redis: enabled=%v addr=%q bucket=%q ttl=%s", opts.StatsRedisEnabled, opts.StatsRedisAddr, opts.StatsBucket, opts.StatsTTL)
	log.Printf("concurrency: max=%d acquireTimeout=%s", opts.ConcurrencyMax, opts.ConcurrencyTimeout)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("server error: %v", err)
	}
}

func mustRedis(addr, password string, db int) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})

	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := rdb.Ping(pingCtx).Result(); err != nil {
		log.Fatalf("redis ping error (%s): %v", addr, err)
	}
	return rdb
}
