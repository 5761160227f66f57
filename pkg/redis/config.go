package redis

import "time"

// Config describes how to reach Redis.
type Config struct {
	URL            string        // redis://:password@host:6379/0
	RetryAttempts  int           // connection attempts, at least one
	RetryInterval  time.Duration // pause between attempts
	ConnectTimeout time.Duration // overall budget for Connect
}

func (c Config) withDefaults() Config {
	if c.RetryAttempts < 1 {
		c.RetryAttempts = 1
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = time.Second
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	return c
}
