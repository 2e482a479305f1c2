package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"signalHub/internal/domain"
	"signalHub/internal/ports"
)

// ErrCacheMiss is returned by a store when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

// store is the byte-level cache the decorator needs.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type redisStore struct {
	client *redis.Client
}

func (s *redisStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return data, nil
}

func (s *redisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

// MarketData decorates a ports.MarketData with a shared Redis cache so that
// bindings scanning the same symbol and timeframe reuse one venue request.
type MarketData struct {
	next   ports.MarketData
	store  store
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger ports.Logger
}

// New connects to Redis and wraps next.
func New(next ports.MarketData, logger ports.Logger, opts ...Option) (*MarketData, error) {
	if next == nil || logger == nil {
		return nil, fmt.Errorf("market data and logger are required for the candle cache")
	}
	cfg := &Config{
		Addr:        "localhost:6379",
		PoolSize:    10,
		PoolTimeout: 30 * time.Second,
		Prefix:      "signalhub",
		TTL:         20 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		PoolTimeout: cfg.PoolTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w: %w", ports.ErrConnectionFailed, err)
	}
	logger.Info(ctx, "Redis candle cache connected", map[string]interface{}{"addr": cfg.Addr, "ttl": cfg.TTL.String()})

	m := newMarketData(next, &redisStore{client: client}, cfg.Prefix, cfg.TTL, logger)
	m.client = client
	return m, nil
}

func newMarketData(next ports.MarketData, s store, prefix string, ttl time.Duration, logger ports.Logger) *MarketData {
	return &MarketData{next: next, store: s, prefix: prefix, ttl: ttl, logger: logger}
}

// Close closes the Redis connection.
func (m *MarketData) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *MarketData) key(symbol, timeframe string, count int) string {
	return fmt.Sprintf("%s:candles:%s:%s:%d", m.prefix, symbol, timeframe, count)
}

// GetRecentCandles serves from the cache when possible. Cache failures fall through to the wrapped source.
func (m *MarketData) GetRecentCandles(ctx context.Context, symbol, timeframe string, count int) ([]domain.Candle, error) {
	key := m.key(symbol, timeframe, count)

	data, err := m.store.Get(ctx, key)
	switch {
	case err == nil:
		var candles []domain.Candle
		if jerr := json.Unmarshal(data, &candles); jerr == nil {
			return candles, nil
		}
		m.logger.Warn(ctx, "Discarding undecodable cached candles", map[string]interface{}{"key": key})
	case !errors.Is(err, ErrCacheMiss):
		m.logger.Warn(ctx, "Candle cache read failed", map[string]interface{}{"key": key, "error": err.Error()})
	}

	candles, err := m.next.GetRecentCandles(ctx, symbol, timeframe, count)
	if err != nil {
		return nil, err
	}
	if payload, jerr := json.Marshal(candles); jerr == nil {
		if serr := m.store.Set(ctx, key, payload, m.ttl); serr != nil {
			m.logger.Warn(ctx, "Candle cache write failed", map[string]interface{}{"key": key, "error": serr.Error()})
		}
	}
	return candles, nil
}
