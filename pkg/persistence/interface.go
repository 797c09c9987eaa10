package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")
)

// PluginPersistence provides storage operations for persistence plugins.
// This is the main interface that all persistence backends must implement.
type PluginPersistence interface {
	// Ledger returns the idempotency-ledger storage implementation.
	Ledger() LedgerStorage

	// Nonces returns the nonce-counter storage implementation.
	Nonces() NonceStorage

	// Health checks if the persistence backend is healthy.
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend.
	Close() error
}

// LedgerStorage persists submission records keyed by idempotency key. Once a
// record reaches a terminal state it must survive a process restart; that is
// what keeps the at-most-once guarantee across crashes mid-retry.
type LedgerStorage interface {
	// Get retrieves the submission record for a key.
	Get(ctx context.Context, key domain.IdempotencyKey) (*domain.SubmissionRecord, error)

	// Save writes the submission record, overwriting any prior version.
	Save(ctx context.Context, rec *domain.SubmissionRecord) error

	// AcquireInFlight atomically marks a key as having an active submission
	// attempt. Returns false when another attempt already holds the marker.
	// The ttl bounds how long a crashed attempt can block the key.
	AcquireInFlight(ctx context.Context, key domain.IdempotencyKey, ttl time.Duration) (bool, error)

	// ReleaseInFlight clears the in-flight marker for a key.
	ReleaseInFlight(ctx context.Context, key domain.IdempotencyKey) error
}

// NonceStorage hands out transaction sequence numbers for a signing address.
// Acquisition and increment happen under a single mutual-exclusion section;
// this is the one serialization point in the whole system.
type NonceStorage interface {
	// Next returns the next nonce for addr and advances the counter. When no
	// counter exists yet, seed is consulted (typically the chain's pending
	// nonce for the address).
	Next(ctx context.Context, addr string, seed func(ctx context.Context) (uint64, error)) (uint64, error)

	// Rollback returns nonce to the counter, but only if it is still the most
	// recently issued value. A rollback after someone else acquired is a no-op.
	Rollback(ctx context.Context, addr string, nonce uint64) error
}
