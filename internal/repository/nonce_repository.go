package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/bsm/redislock"
	"github.com/go-redis/redis/v8"
)

// NonceRepository allocates chain nonces from a Redis counter guarded by a
// distributed lock. The lock serializes the read-pending/seed/increment
// cycle across replicas; everything after Next runs lock-free.
type NonceRepository struct {
	rdb    *redis.Client
	locker *redislock.Client
}

var _ persistence.NonceStorage = (*NonceRepository)(nil)

const (
	nonceLockTTL   = 5 * time.Second
	nonceLockRetry = 50 * time.Millisecond
)

func NewNonceRepository(rdb *redis.Client) *NonceRepository {
	return &NonceRepository{rdb: rdb, locker: redislock.New(rdb)}
}

func (r *NonceRepository) keyNonce(addr string) string {
	return fmt.Sprintf("oraculo:nonce:%s", addr)
}

func (r *NonceRepository) keyNonceLock(addr string) string {
	return fmt.Sprintf("oraculo:noncelock:%s", addr)
}

// Next returns the next unused nonce for addr. When the counter does not
// exist yet it is seeded from the chain's pending nonce via seed.
func (r *NonceRepository) Next(ctx context.Context, addr string, seed func(context.Context) (uint64, error)) (uint64, error) {
	lock, err := r.locker.Obtain(ctx, r.keyNonceLock(addr), nonceLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(nonceLockRetry), 40),
	})
	if err != nil {
		return 0, fmt.Errorf("obtain nonce lock: %w", err)
	}
	defer lock.Release(ctx)

	cur, err := r.rdb.Get(ctx, r.keyNonce(addr)).Result()
	if err == redis.Nil {
		next, serr := seed(ctx)
		if serr != nil {
			return 0, fmt.Errorf("seed nonce from chain: %w", serr)
		}
		if err := r.rdb.Set(ctx, r.keyNonce(addr), strconv.FormatUint(next+1, 10), 0).Err(); err != nil {
			return 0, fmt.Errorf("redis SET nonce: %w", err)
		}
		return next, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis GET nonce: %w", err)
	}
	next, err := strconv.ParseUint(cur, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse nonce counter: %w", err)
	}
	if err := r.rdb.Set(ctx, r.keyNonce(addr), strconv.FormatUint(next+1, 10), 0).Err(); err != nil {
		return 0, fmt.Errorf("redis SET nonce: %w", err)
	}
	return next, nil
}

// Rollback returns nonce to the pool, but only when it is still the most
// recently allocated one. Nonces handed out after it stay allocated.
func (r *NonceRepository) Rollback(ctx context.Context, addr string, nonce uint64) error {
	lock, err := r.locker.Obtain(ctx, r.keyNonceLock(addr), nonceLockTTL, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(nonceLockRetry), 40),
	})
	if err != nil {
		return fmt.Errorf("obtain nonce lock: %w", err)
	}
	defer lock.Release(ctx)

	cur, err := r.rdb.Get(ctx, r.keyNonce(addr)).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("redis GET nonce: %w", err)
	}
	next, err := strconv.ParseUint(cur, 10, 64)
	if err != nil {
		return fmt.Errorf("parse nonce counter: %w", err)
	}
	if next != nonce+1 {
		return nil
	}
	if err := r.rdb.Set(ctx, r.keyNonce(addr), strconv.FormatUint(nonce, 10), 0).Err(); err != nil {
		return fmt.Errorf("redis SET nonce: %w", err)
	}
	return nil
}
