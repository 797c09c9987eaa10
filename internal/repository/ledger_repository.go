package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// LedgerRepository is the Redis-backed idempotency ledger. Records live in a
// single hash keyed by idempotency key; the in-flight marker is a SETNX key
// with a TTL so a crashed attempt cannot block a milestone forever.
type LedgerRepository struct {
	rdb *redis.Client
}

var _ persistence.LedgerStorage = (*LedgerRepository)(nil)

func NewLedgerRepository(rdb *redis.Client) *LedgerRepository {
	return &LedgerRepository{rdb: rdb}
}

func (r *LedgerRepository) keySubmissionsHash() string { return "oraculo:submissions" }
func (r *LedgerRepository) keyInFlight(key domain.IdempotencyKey) string {
	return fmt.Sprintf("oraculo:submission:inflight:%s", key)
}

func (r *LedgerRepository) Get(ctx context.Context, key domain.IdempotencyKey) (*domain.SubmissionRecord, error) {
	js, err := r.rdb.HGet(ctx, r.keySubmissionsHash(), key.String()).Result()
	if err == redis.Nil || js == "" {
		return nil, persistence.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis HGET submission: %w", err)
	}
	var rec domain.SubmissionRecord
	if err := json.Unmarshal([]byte(js), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal submission: %w", err)
	}
	return &rec, nil
}

func (r *LedgerRepository) Save(ctx context.Context, rec *domain.SubmissionRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := r.rdb.HSet(ctx, r.keySubmissionsHash(), rec.Key.String(), string(b)).Err(); err != nil {
		return fmt.Errorf("redis HSET submission: %w", err)
	}
	return nil
}

func (r *LedgerRepository) AcquireInFlight(ctx context.Context, key domain.IdempotencyKey, ttl time.Duration) (bool, error) {
	ok, err := r.rdb.SetNX(ctx, r.keyInFlight(key), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis SETNX inflight: %w", err)
	}
	return ok, nil
}

func (r *LedgerRepository) ReleaseInFlight(ctx context.Context, key domain.IdempotencyKey) error {
	if err := r.rdb.Del(ctx, r.keyInFlight(key)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("redis DEL inflight: %w", err)
	}
	return nil
}
