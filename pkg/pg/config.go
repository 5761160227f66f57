package pg

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// Config describes one PostgreSQL connection pool. The tenant router builds
// one Config for the shared registry and derives one per tenant database
// from a base Config with WithDatabase.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string

	MaxConns          int32         // MaxConns is the connection ceiling of the pool.
	MinConns          int32         // MinConns is the number of connections kept open when idle.
	ConnectTimeout    time.Duration // ConnectTimeout bounds dialing and the verification ping.
	HealthCheckPeriod time.Duration
	MaxConnIdleTime   time.Duration
	MaxConnLifetime   time.Duration

	RetryAttempts int           // RetryAttempts is the number of connect attempts; values below 1 mean one attempt.
	RetryInterval time.Duration // RetryInterval is multiplied by the attempt number between attempts.
}

// WithDatabase returns a copy of c targeting another database on the same server.
func (c Config) WithDatabase(name string) Config {
	c.Database = name
	return c
}

// ConnString renders c as a postgres:// URL understood by pgxpool.ParseConfig.
func (c Config) ConnString() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.User != "" {
		if c.Password != "" {
			u.User = url.UserPassword(c.User, c.Password)
		} else {
			u.User = url.User(c.User)
		}
	}

	q := url.Values{}
	if c.SSLMode != "" {
		q.Set("sslmode", c.SSLMode)
	}
	if c.ConnectTimeout > 0 {
		q.Set("connect_timeout", strconv.Itoa(max(1, int(c.ConnectTimeout/time.Second))))
	}
	u.RawQuery = q.Encode()

	return u.String()
}
