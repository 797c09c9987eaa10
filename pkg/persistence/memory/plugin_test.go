package memory

import (
	"context"
	"testing"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"
)

func TestMemoryPlugin(t *testing.T) {
	plugin, err := NewPlugin(persistence.PluginConfig{Config: []byte("{}")})
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	defer plugin.Close()

	ctx := context.Background()
	if err := plugin.Health(ctx); err != nil {
		t.Errorf("Health check failed: %v", err)
	}

	ledger := plugin.Ledger()
	if ledger == nil {
		t.Fatal("Ledger returned nil")
	}

	ref := domain.MilestoneReference{BuildingID: 7, MilestoneNumber: 3}
	key := domain.NewIdempotencyKey(ref, "")
	rec := &domain.SubmissionRecord{
		Key:       key,
		Milestone: ref,
		State:     domain.SubmissionConfirmed,
		TxHash:    "0xfeed",
		Result:    &domain.OracleResult{TransactionHash: "0xfeed", BlockNumber: 42, Status: "success"},
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := ledger.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := ledger.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.TxHash != rec.TxHash {
		t.Errorf("Retrieved record TxHash mismatch: got %s, want %s", got.TxHash, rec.TxHash)
	}
	if got.State != domain.SubmissionConfirmed {
		t.Errorf("Retrieved record State mismatch: got %s, want %s", got.State, domain.SubmissionConfirmed)
	}

	// The stored copy must not alias the caller's struct.
	rec.TxHash = "0xmutated"
	got2, err := ledger.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after mutation failed: %v", err)
	}
	if got2.TxHash != "0xfeed" {
		t.Errorf("Ledger aliased caller memory: got %s, want 0xfeed", got2.TxHash)
	}

	ok, err := ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("AcquireInFlight failed: %v", err)
	}
	if !ok {
		t.Fatal("Expected first AcquireInFlight to succeed")
	}
	ok, err = ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("Second AcquireInFlight failed: %v", err)
	}
	if ok {
		t.Error("Expected second AcquireInFlight to be rejected while marker is held")
	}
	if err := ledger.ReleaseInFlight(ctx, key); err != nil {
		t.Fatalf("ReleaseInFlight failed: %v", err)
	}
	ok, err = ledger.AcquireInFlight(ctx, key, time.Minute)
	if err != nil {
		t.Fatalf("AcquireInFlight after release failed: %v", err)
	}
	if !ok {
		t.Error("Expected AcquireInFlight to succeed after release")
	}

	nonces := plugin.Nonces()
	if nonces == nil {
		t.Fatal("Nonces returned nil")
	}

	seed := func(ctx context.Context) (uint64, error) { return 100, nil }
	for want := uint64(100); want < 103; want++ {
		n, err := nonces.Next(ctx, "0xsigner", seed)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if n != want {
			t.Errorf("Next mismatch: got %d, want %d", n, want)
		}
	}

	// Rolling back the latest issue returns it; rolling back a stale one does not.
	if err := nonces.Rollback(ctx, "0xsigner", 102); err != nil {
		t.Fatalf("Rollback failed: %v", err)
	}
	if err := nonces.Rollback(ctx, "0xsigner", 100); err != nil {
		t.Fatalf("Stale rollback failed: %v", err)
	}
	n, err := nonces.Next(ctx, "0xsigner", seed)
	if err != nil {
		t.Fatalf("Next after rollback failed: %v", err)
	}
	if n != 102 {
		t.Errorf("Next after rollback mismatch: got %d, want 102", n)
	}
}

func TestMemoryPluginNotFound(t *testing.T) {
	plugin, err := NewPlugin(persistence.PluginConfig{Config: []byte("{}")})
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	defer plugin.Close()

	ctx := context.Background()
	key := domain.NewIdempotencyKey(domain.MilestoneReference{BuildingID: 1, MilestoneNumber: 1}, "")
	if _, err := plugin.Ledger().Get(ctx, key); err != persistence.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}
