package service

import (
	"context"
	"fmt"
	"time"

	"ibkr-paper-gateway/internal/ibkr"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
)

const defaultContractCacheTTL = 24 * time.Hour

// ContractCache stores qualified contracts so repeat orders for the same
// symbol skip the gateway qualification round trip.
type ContractCache interface {
	Load(ctx context.Context, symbol, exchange, currency string) (*ibkr.Contract, bool, error)
	Save(ctx context.Context, contract *ibkr.Contract) error
}

type RedisContractCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisContractCache(cacheDSN string, ttl time.Duration) (*RedisContractCache, error) {
	if cacheDSN == "" {
		return nil, fmt.Errorf("redis cache_dsn is required")
	}

	options, err := redis.ParseURL(cacheDSN)
	if err != nil {
		return nil, fmt.Errorf("parse redis cache_dsn: %w", err)
	}

	if ttl <= 0 {
		ttl = defaultContractCacheTTL
	}

	return &RedisContractCache{client: redis.NewClient(options), ttl: ttl}, nil
}

func (c *RedisContractCache) Load(ctx context.Context, symbol, exchange, currency string) (*ibkr.Contract, bool, error) {
	raw, err := c.client.Get(ctx, contractCacheKey(symbol, exchange, currency)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, false, nil
		}
		return nil, false, err
	}

	var contract ibkr.Contract
	if err := json.Unmarshal([]byte(raw), &contract); err != nil {
		return nil, false, err
	}

	return &contract, true, nil
}

func (c *RedisContractCache) Save(ctx context.Context, contract *ibkr.Contract) error {
	payload, err := json.Marshal(contract)
	if err != nil {
		return err
	}

	key := contractCacheKey(contract.Symbol, contract.Exchange, contract.Currency)
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}

func (c *RedisContractCache) Close() error {
	return c.client.Close()
}

func contractCacheKey(symbol, exchange, currency string) string {
	return fmt.Sprintf("contract:%s:%s:%s", symbol, exchange, currency)
}
