package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func setupLedgerRepo(t *testing.T) (context.Context, *miniredis.Miniredis, *LedgerRepository, *NonceRepository) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return context.Background(), mr, NewLedgerRepository(rdb), NewNonceRepository(rdb)
}

func TestLedgerGetMissing(t *testing.T) {
	ctx, _, ledger, _ := setupLedgerRepo(t)

	_, err := ledger.Get(ctx, domain.IdempotencyKey("b1:m1"))
	if !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLedgerSaveGet(t *testing.T) {
	ctx, _, ledger, _ := setupLedgerRepo(t)

	ref := domain.MilestoneReference{BuildingID: 7, MilestoneNumber: 2}
	rec := &domain.SubmissionRecord{
		Key:       domain.NewIdempotencyKey(ref, ""),
		Milestone: ref,
		State:     domain.SubmissionConfirmed,
		TxHash:    "0xabc",
		Nonce:     42,
		Attempts:  1,
		Result: &domain.OracleResult{
			TransactionHash: "0xabc",
			BlockNumber:     100,
			GasUsed:         21000,
			Status:          "success",
		},
		CreatedAt: time.Now().UTC().Truncate(time.Second),
		UpdatedAt: time.Now().UTC().Truncate(time.Second),
	}
	if err := ledger.Save(ctx, rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := ledger.Get(ctx, rec.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.State != domain.SubmissionConfirmed || got.TxHash != "0xabc" || got.Nonce != 42 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Result == nil || got.Result.BlockNumber != 100 {
		t.Fatalf("result not preserved: %+v", got.Result)
	}
	if got.Milestone != ref {
		t.Fatalf("milestone mismatch: %+v", got.Milestone)
	}
}

func TestLedgerInFlightMarker(t *testing.T) {
	ctx, mr, ledger, _ := setupLedgerRepo(t)

	key := domain.IdempotencyKey("b1:m3")
	ok, err := ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should lose: ok=%v err=%v", ok, err)
	}
	if err := ledger.ReleaseInFlight(ctx, key); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}

	// Marker expires, milestone becomes claimable again.
	mr.FastForward(2 * time.Minute)
	otherKey := domain.IdempotencyKey("b1:m4")
	if ok, _ := ledger.AcquireInFlight(ctx, otherKey, time.Minute); !ok {
		t.Fatal("fresh key should acquire")
	}
	if ok, _ := ledger.AcquireInFlight(ctx, key, time.Minute); !ok {
		t.Fatal("expired marker should be claimable")
	}
}

func TestNonceSeedAndIncrement(t *testing.T) {
	ctx, _, _, nonces := setupLedgerRepo(t)

	seedCalls := 0
	seed := func(context.Context) (uint64, error) {
		seedCalls++
		return 10, nil
	}

	n, err := nonces.Next(ctx, "0xdead", seed)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 10 {
		t.Fatalf("seeded nonce = %d, want 10", n)
	}
	n, err = nonces.Next(ctx, "0xdead", seed)
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if n != 11 {
		t.Fatalf("second nonce = %d, want 11", n)
	}
	if seedCalls != 1 {
		t.Fatalf("seed called %d times, want 1", seedCalls)
	}
}

func TestNonceRollback(t *testing.T) {
	ctx, _, _, nonces := setupLedgerRepo(t)

	seed := func(context.Context) (uint64, error) { return 0, nil }

	a, _ := nonces.Next(ctx, "0xbeef", seed) // 0
	b, _ := nonces.Next(ctx, "0xbeef", seed) // 1

	// Rolling back a stale nonce is a no-op.
	if err := nonces.Rollback(ctx, "0xbeef", a); err != nil {
		t.Fatalf("rollback stale: %v", err)
	}
	n, _ := nonces.Next(ctx, "0xbeef", seed)
	if n != 2 {
		t.Fatalf("after stale rollback nonce = %d, want 2", n)
	}

	// Rolling back the most recent allocation reuses it.
	if err := nonces.Rollback(ctx, "0xbeef", n); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	again, _ := nonces.Next(ctx, "0xbeef", seed)
	if again != n {
		t.Fatalf("after rollback nonce = %d, want %d", again, n)
	}
	_ = b
}

func TestNonceConcurrentAllocation(t *testing.T) {
	ctx, _, _, nonces := setupLedgerRepo(t)

	seed := func(context.Context) (uint64, error) { return 100, nil }

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uint64]bool)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			n, err := nonces.Next(ctx, "0xcafe", seed)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			if seen[n] {
				t.Errorf("duplicate nonce %d", n)
			}
			seen[n] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != workers {
		t.Fatalf("allocated %d distinct nonces, want %d", len(seen), workers)
	}
}
