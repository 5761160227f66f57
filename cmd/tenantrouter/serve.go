package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/weeklype/tenantrouter/pkg/authctx"
	"github.com/weeklype/tenantrouter/pkg/catalog"
	"github.com/weeklype/tenantrouter/pkg/config"
	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/httpserver"
	"github.com/weeklype/tenantrouter/pkg/jwt"
	"github.com/weeklype/tenantrouter/pkg/logger"
	"github.com/weeklype/tenantrouter/pkg/pg"
	"github.com/weeklype/tenantrouter/pkg/ratelimiter"
	redisconn "github.com/weeklype/tenantrouter/pkg/redis"
	"github.com/weeklype/tenantrouter/pkg/router"
	"github.com/weeklype/tenantrouter/pkg/simulation"
	"github.com/weeklype/tenantrouter/pkg/telemetry"
	"github.com/weeklype/tenantrouter/pkg/tenant"
	"github.com/weeklype/tenantrouter/pkg/tenantdb"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return serve(cmd.Context(), cfg)
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := []logger.Option{
		logger.WithEnvironment(cfg.Environment(), cfg.ServiceName),
		logger.WithContextExtractors(
			logger.RequestIDExtractor(),
			tenant.LoggerExtractor(),
			authctx.LoggerExtractor(),
		),
	}
	if lvl, ok := cfg.Level(); ok {
		opts = append(opts, logger.WithLevel(lvl))
	}
	return logger.New(opts...)
}

// serve assembles the service and blocks until shutdown. Components that
// own resources are pushed onto a cleanup stack which unwinds if assembly
// fails; once the server is built its stop hooks take over.
func serve(ctx context.Context, cfg config.Config) (err error) {
	env := cfg.Environment()
	log := newLogger(cfg)
	slog.SetDefault(log)

	var cleanup cleanupStack
	defer func() {
		if err != nil {
			cleanup.unwind()
		}
	}()

	tel, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Environment:    env.String(),
		Endpoint:       cfg.Telemetry.OTLPEndpoint,
		Insecure:       cfg.Telemetry.Insecure,
		ExportInterval: cfg.Telemetry.ExportInterval,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	cleanup.push(func() { _ = tel.Shutdown(context.WithoutCancel(ctx)) })

	// The registry pool connects lazily so the process starts, and falls back
	// outside production, while the registry is down.
	registryPool, err := pg.Open(ctx, cfg.RegistryDB())
	if err != nil {
		return fmt.Errorf("registry: %w", err)
	}
	cleanup.push(registryPool.Close)

	cached, err := catalog.NewCached(
		catalog.New(registryPool,
			catalog.WithTable(cfg.Registry.Table),
			catalog.WithLookupTimeout(cfg.Registry.LookupTimeout),
		),
		cfg.Registry.CacheTTL,
		cfg.Registry.CacheMaxEntries,
	)
	if err != nil {
		return fmt.Errorf("catalog cache: %w", err)
	}
	cleanup.push(cached.Close)

	pools := tenantdb.New(tenantdb.NewPGConnector(cfg.TenantDB()),
		tenantdb.WithConnectTimeout(cfg.Tenant.ConnectTimeout),
		tenantdb.WithMaxPools(cfg.Tenant.MaxPools),
		tenantdb.WithIdleTTL(cfg.Tenant.IdleTTL),
		tenantdb.WithSweepInterval(cfg.Tenant.SweepInterval),
		tenantdb.WithLogger(log),
		tenantdb.WithMeterProvider(tel.MeterProvider()),
	)
	pools.Init(ctx)
	cleanup.push(func() { _ = pools.Shutdown(context.WithoutCancel(ctx)) })

	var sim tenant.Simulator
	switch {
	case cfg.SimulationActive():
		s, err := simulation.New(env)
		if err != nil {
			return fmt.Errorf("simulation: %w", err)
		}
		sim = s
		log.WarnContext(ctx, "simulated tenant databases enabled for registry fallback")
	case cfg.SimulationEnabled:
		log.WarnContext(ctx, "SIMULATION_ENABLED is ignored in production")
	}

	tokens, err := newTokenService(ctx, cfg, log)
	if err != nil {
		return err
	}

	readiness := []httpserver.Check{{Name: "registry", Probe: pg.Healthcheck(registryPool)}}

	limits, err := newLimiter(ctx, cfg, log)
	if err != nil {
		return err
	}
	cleanup.push(func() { _ = limits.close(context.WithoutCancel(ctx)) })
	if limits.check != nil {
		readiness = append(readiness, *limits.check)
	}

	// Stop hooks run in reverse: tenant pools first, telemetry last.
	srv := httpserver.NewFromConfig(httpserver.Config{
		Addr:              cfg.HTTP.Addr,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		ShutdownTimeout:   cfg.HTTP.ShutdownTimeout,
	},
		httpserver.WithLogger(log),
		httpserver.WithStopHook("telemetry", tel.Shutdown),
		httpserver.WithStopHook("registry pool", func(context.Context) error {
			registryPool.Close()
			return nil
		}),
		httpserver.WithStopHook("catalog cache", func(context.Context) error {
			cached.Close()
			return nil
		}),
		httpserver.WithStopHook("rate limiter", limits.close),
		httpserver.WithStopHook("tenant pools", pools.Shutdown),
	)
	readiness = append(readiness, httpserver.Check{Name: "server", Probe: srv.Ready})
	cleanup.release()

	handler := router.New(router.Deps{
		Logger:      log,
		Environment: env,
		Resolver:    tenant.NewHostResolver(cfg.Tenant.RootDomains...),
		Validator: tenant.NewValidator(cached, env,
			tenant.WithAllowList(cfg.Tenant.AllowedTenants),
			tenant.WithDatabasePrefix(cfg.Tenant.DBPrefix),
			tenant.WithValidatorLogger(log),
		),
		Pools:           pools,
		Auth:            authctx.New(tokens, authctx.WithLogger(log)),
		Simulator:       sim,
		Cache:           cached,
		ResolveLimiter:  limits.resolve,
		Limiter:         limits.tenant,
		ConcealNotFound: cfg.Tenant.ConcealNotFound,
		Readiness:       readiness,
		TracerProvider:  tel.TracerProvider(),
		MeterProvider:   tel.MeterProvider(),
	})

	log.InfoContext(ctx, "starting tenant router",
		slog.String("version", version),
		slog.Any("root_domains", cfg.Tenant.RootDomains),
		slog.Int("allowed_tenants", len(cfg.Tenant.AllowedTenants)),
		slog.Bool("telemetry", tel.Enabled()),
	)
	if err := srv.Run(ctx, handler); err != nil {
		if errors.Is(err, httpserver.ErrStart) {
			// The listener never came up, so the stop hooks have not run.
			_ = srv.Shutdown(context.WithoutCancel(ctx))
		}
		return err
	}
	return nil
}

// newTokenService falls back to a random per-process secret outside
// production, so protected routes stay closed until JWT_SECRET is set.
func newTokenService(ctx context.Context, cfg config.Config, log *slog.Logger) (*jwt.Service, error) {
	secret := cfg.Auth.JWTSecret
	if secret == "" {
		if cfg.Environment() == environment.Production {
			return nil, config.ErrMissingJWTSecret
		}
		secret = rand.Text()
		log.WarnContext(ctx, "JWT_SECRET is not set, tokens are signed with a random per-process secret")
	}
	tokens, err := jwt.New(secret, jwt.WithIssuer(cfg.Auth.Issuer), jwt.WithLeeway(cfg.Auth.Leeway))
	if err != nil {
		return nil, fmt.Errorf("token service: %w", err)
	}
	return tokens, nil
}

// limiters are the resolve and tenant buckets. Both share one store; their
// keys never collide because IPKey and the tenant composite use distinct
// prefixes.
type limiters struct {
	resolve *ratelimiter.Bucket
	tenant  *ratelimiter.Bucket
	close   func(context.Context) error
	check   *httpserver.Check
}

// newLimiter returns empty limiters when rate limiting is disabled. With
// REDIS_URL set the buckets are shared through Redis, otherwise they are
// process local.
func newLimiter(ctx context.Context, cfg config.Config, log *slog.Logger) (limiters, error) {
	l := limiters{close: func(context.Context) error { return nil }}
	if !cfg.RateLimit.Enabled {
		return l, nil
	}

	var store ratelimiter.Store
	if cfg.Redis.URL == "" {
		mem := ratelimiter.NewMemoryStore()
		store = mem
		l.close = func(context.Context) error {
			mem.Close()
			return nil
		}
	} else {
		client, err := redisconn.Connect(ctx, cfg.RedisConfig())
		if err != nil {
			return limiters{}, fmt.Errorf("rate limiter redis: %w", err)
		}
		store = ratelimiter.NewRedisStore(client)
		l.close = func(context.Context) error { return client.Close() }
		l.check = &httpserver.Check{Name: "redis", Probe: redisconn.Healthcheck(client)}
		log.InfoContext(ctx, "rate limiter uses redis store", logger.Component("ratelimiter"))
	}

	var err error
	l.tenant, err = ratelimiter.NewBucket(store, ratelimiter.Config{
		Capacity:       cfg.RateLimit.Capacity,
		RefillRate:     cfg.RateLimit.Refill,
		RefillInterval: cfg.RateLimit.Interval,
	})
	if err == nil {
		l.resolve, err = ratelimiter.NewBucket(store, ratelimiter.Config{
			Capacity:       cfg.RateLimit.ResolveCapacity,
			RefillRate:     cfg.RateLimit.ResolveRefill,
			RefillInterval: cfg.RateLimit.Interval,
		})
	}
	if err != nil {
		_ = l.close(ctx)
		return limiters{}, fmt.Errorf("rate limiter: %w", err)
	}
	return l, nil
}

// cleanupStack releases partially assembled components in reverse order.
type cleanupStack []func()

func (c *cleanupStack) push(fn func()) { *c = append(*c, fn) }

func (c *cleanupStack) unwind() {
	for i := len(*c) - 1; i >= 0; i-- {
		(*c)[i]()
	}
	*c = nil
}

// release hands ownership to the server's stop hooks.
func (c *cleanupStack) release() { *c = nil }
