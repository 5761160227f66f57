package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/weeklype/tenantrouter/pkg/environment"
	"github.com/weeklype/tenantrouter/pkg/pg"
	"github.com/weeklype/tenantrouter/pkg/redis"
)

// Config is the complete service configuration.
type Config struct {
	NodeEnv     string `env:"NODE_ENV"` // empty means development
	AppEnv      string `env:"APP_ENV"` // takes precedence over NODE_ENV when set
	ServiceName string `env:"SERVICE_NAME" envDefault:"tenantrouter"`
	LogLevel    string `env:"LOG_LEVEL"`

	SimulationEnabled bool `env:"SIMULATION_ENABLED" envDefault:"false"`

	HTTP      HTTP
	Database  Database
	Registry  Registry
	Tenant    Tenant
	Auth      Auth
	RateLimit RateLimit
	Redis     Redis
	Telemetry Telemetry
}

// HTTP configures the listener.
type HTTP struct {
	Addr              string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout       time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"10s"`
	ReadHeaderTimeout time.Duration `env:"HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	WriteTimeout      time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"15s"`
}

// Database is the PostgreSQL server shared by the registry and tenant
// databases.
type Database struct {
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     int    `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD"`
	SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`
}

// Registry configures the tenant catalog.
type Registry struct {
	Database        string        `env:"REGISTRY_DB_NAME" envDefault:"weekly_registry"`
	Table           string        `env:"REGISTRY_TABLE" envDefault:"tenants"`
	MaxConns        int32         `env:"REGISTRY_MAX_CONNS" envDefault:"4"`
	LookupTimeout   time.Duration `env:"REGISTRY_LOOKUP_TIMEOUT" envDefault:"2s"`
	CacheTTL        time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"30s"`
	CacheMaxEntries int64         `env:"CATALOG_CACHE_MAX_ENTRIES" envDefault:"10000"`
}

// Tenant configures resolution and the per-tenant pools.
type Tenant struct {
	RootDomains     []string      `env:"ROOT_DOMAINS" envSeparator:"," envDefault:"weekly.pe"`
	AllowedTenants  []string      `env:"ALLOWED_TENANTS" envSeparator:","`
	DBPrefix        string        `env:"TENANT_DB_PREFIX" envDefault:"weekly"`
	PoolMaxConns    int32         `env:"TENANT_POOL_MAX_CONNS" envDefault:"10"`
	PoolMinConns    int32         `env:"TENANT_POOL_MIN_CONNS" envDefault:"0"`
	ConnectTimeout  time.Duration `env:"TENANT_CONNECT_TIMEOUT" envDefault:"5s"`
	MaxPools        int           `env:"TENANT_MAX_POOLS" envDefault:"500"`
	IdleTTL         time.Duration `env:"TENANT_POOL_IDLE_TTL" envDefault:"30m"`
	SweepInterval   time.Duration `env:"TENANT_POOL_SWEEP_INTERVAL" envDefault:"1m"`
	ConcealNotFound bool          `env:"TENANT_CONCEAL_NOT_FOUND" envDefault:"false"`
}

// Auth configures token verification.
type Auth struct {
	JWTSecret string        `env:"JWT_SECRET"`
	Issuer    string        `env:"JWT_ISSUER"`
	Leeway    time.Duration `env:"JWT_LEEWAY" envDefault:"30s"`
}

// RateLimit configures the limiters. The resolve limiter is keyed by client
// address alone and runs before tenant resolution, bounding the registry
// lookups one client can trigger; the tenant limiter runs after it, keyed
// by tenant and client.
type RateLimit struct {
	Enabled         bool          `env:"RATE_LIMIT_ENABLED" envDefault:"true"`
	Capacity        int           `env:"RATE_LIMIT_CAPACITY" envDefault:"100"`
	Refill          int           `env:"RATE_LIMIT_REFILL" envDefault:"100"`
	Interval        time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"1m"`
	ResolveCapacity int           `env:"RATE_LIMIT_RESOLVE_CAPACITY" envDefault:"300"`
	ResolveRefill   int           `env:"RATE_LIMIT_RESOLVE_REFILL" envDefault:"300"`
}

// Redis is optional; when URL is empty the limiter keeps state in memory.
type Redis struct {
	URL            string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"1s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"10s"`
}

// Telemetry configures metric export. An empty endpoint disables export.
type Telemetry struct {
	OTLPEndpoint   string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure       bool          `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	ExportInterval time.Duration `env:"OTEL_METRIC_EXPORT_INTERVAL" envDefault:"30s"`
}

// Load reads the configuration from the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := Parse(&cfg); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFrom reads the configuration from environ only.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := ParseFrom(&cfg, environ); err != nil {
		return Config{}, err
	}
	cfg.normalize()
	return cfg, nil
}

func (c *Config) normalize() {
	c.Tenant.RootDomains = cleanList(c.Tenant.RootDomains)
	c.Tenant.AllowedTenants = cleanList(c.Tenant.AllowedTenants)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Environment returns the deployment environment. Unknown names and a
// production conflict between APP_ENV and NODE_ENV resolve to Production;
// Validate reports them.
func (c Config) Environment() environment.Environment {
	env, _ := c.environment()
	return env
}

func (c Config) environment() (environment.Environment, error) {
	node, err := environment.Lookup(c.NodeEnv)
	if err != nil {
		return environment.Production, fmt.Errorf("%w: NODE_ENV: %w", ErrUnknownEnvironment, err)
	}
	if strings.TrimSpace(c.AppEnv) == "" {
		return node, nil
	}
	app, err := environment.Lookup(c.AppEnv)
	if err != nil {
		return environment.Production, fmt.Errorf("%w: APP_ENV: %w", ErrUnknownEnvironment, err)
	}
	// APP_ENV wins, except that it may not move a production NODE_ENV out of
	// production or the other way round.
	if strings.TrimSpace(c.NodeEnv) != "" && app.IsProduction() != node.IsProduction() {
		return environment.Production, fmt.Errorf("%w: APP_ENV=%q, NODE_ENV=%q", ErrConflictingEnvironment, c.AppEnv, c.NodeEnv)
	}
	return app, nil
}

// Level returns the configured log level, or ok=false to use the
// environment default.
func (c Config) Level() (slog.Level, bool) {
	if c.LogLevel == "" {
		return 0, false
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, false
	}
	return l, true
}

// SimulationActive reports whether the simulated database may be used. It
// is false whenever the environment is production or cannot be determined.
func (c Config) SimulationActive() bool {
	env, err := c.environment()
	return c.SimulationEnabled && err == nil && !env.IsProduction()
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	env, err := c.environment()
	if err != nil {
		errs = append(errs, err)
	}
	if env.IsProduction() && c.Auth.JWTSecret == "" {
		errs = append(errs, ErrMissingJWTSecret)
	}
	if c.Registry.MaxConns < 1 {
		errs = append(errs, fmt.Errorf("%w: REGISTRY_MAX_CONNS must be positive", ErrInvalidValue))
	}
	if c.Tenant.PoolMaxConns < 1 {
		errs = append(errs, fmt.Errorf("%w: TENANT_POOL_MAX_CONNS must be positive", ErrInvalidValue))
	}
	if c.RateLimit.Enabled && (c.RateLimit.Capacity < 1 || c.RateLimit.Refill < 1 || c.RateLimit.Interval <= 0) {
		errs = append(errs, fmt.Errorf("%w: rate limit capacity, refill and interval must be positive", ErrInvalidValue))
	}
	if c.RateLimit.Enabled && (c.RateLimit.ResolveCapacity < 1 || c.RateLimit.ResolveRefill < 1) {
		errs = append(errs, fmt.Errorf("%w: resolve rate limit capacity and refill must be positive", ErrInvalidValue))
	}
	return errors.Join(errs...)
}

func (c Config) server() pg.Config {
	return pg.Config{
		Host:     c.Database.Host,
		Port:     c.Database.Port,
		User:     c.Database.User,
		Password: c.Database.Password,
		SSLMode:  c.Database.SSLMode,
	}
}

// RegistryDB returns the pool configuration of the shared registry.
func (c Config) RegistryDB() pg.Config {
	p := c.server().WithDatabase(c.Registry.Database)
	p.MaxConns = c.Registry.MaxConns
	p.ConnectTimeout = c.Registry.LookupTimeout
	return p
}

// TenantDB returns the base pool configuration of tenant databases. The
// database name is filled in per tenant.
func (c Config) TenantDB() pg.Config {
	p := c.server()
	p.MaxConns = c.Tenant.PoolMaxConns
	p.MinConns = c.Tenant.PoolMinConns
	p.ConnectTimeout = c.Tenant.ConnectTimeout
	p.MaxConnIdleTime = c.Tenant.IdleTTL
	p.RetryAttempts = 1
	return p
}

// RedisConfig returns the limiter store connection settings.
func (c Config) RedisConfig() redis.Config {
	return redis.Config{
		URL:            c.Redis.URL,
		RetryAttempts:  c.Redis.RetryAttempts,
		RetryInterval:  c.Redis.RetryInterval,
		ConnectTimeout: c.Redis.ConnectTimeout,
	}
}
