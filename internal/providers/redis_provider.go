package providers

import "github.com/go-redis/redis/v8"

// NewRedisProvider builds the client shared by the ledger, the nonce counter
// and the rate limiter.
func NewRedisProvider(addr, password string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
}
