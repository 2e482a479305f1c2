package rediscache

import "time"

// Option configures the candle cache.
type Option func(*Config)

// Config holds Redis and cache settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	PoolTimeout time.Duration
	Prefix      string
	TTL         time.Duration // Lifetime of a cached candle window
}

// WithAddr sets the Redis address (host:port).
func WithAddr(addr string) Option {
	return func(c *Config) {
		c.Addr = addr
	}
}

// WithPassword sets the Redis password.
func WithPassword(password string) Option {
	return func(c *Config) {
		c.Password = password
	}
}

// WithDB selects the Redis database.
func WithDB(db int) Option {
	return func(c *Config) {
		c.DB = db
	}
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(c *Config) {
		c.Prefix = prefix
	}
}

// WithTTL sets how long a candle window stays cached.
func WithTTL(ttl time.Duration) Option {
	return func(c *Config) {
		c.TTL = ttl
	}
}
