package memory

import (
	"context"
	"sync"
	"time"

	"github.com/obralink/oraculo/pkg/domain"
	"github.com/obralink/oraculo/pkg/persistence"
)

// Plugin implements PluginPersistence with in-process maps. It is meant for
// tests and single-instance dev setups; terminal ledger state does not survive
// a restart here.
type Plugin struct {
	mu       sync.Mutex
	records  map[domain.IdempotencyKey]domain.SubmissionRecord
	inflight map[domain.IdempotencyKey]time.Time
	nonces   map[string]uint64
	seeded   map[string]bool
}

// NewPlugin creates a new in-memory persistence plugin.
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return &Plugin{
		records:  make(map[domain.IdempotencyKey]domain.SubmissionRecord),
		inflight: make(map[domain.IdempotencyKey]time.Time),
		nonces:   make(map[string]uint64),
		seeded:   make(map[string]bool),
	}, nil
}

func (p *Plugin) Ledger() persistence.LedgerStorage { return &ledgerStorage{plugin: p} }
func (p *Plugin) Nonces() persistence.NonceStorage  { return &nonceStorage{plugin: p} }

func (p *Plugin) Health(ctx context.Context) error { return nil }
func (p *Plugin) Close() error                     { return nil }

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

type ledgerStorage struct {
	plugin *Plugin
}

func (s *ledgerStorage) Get(ctx context.Context, key domain.IdempotencyKey) (*domain.SubmissionRecord, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	rec, ok := s.plugin.records[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	cp := rec
	return &cp, nil
}

func (s *ledgerStorage) Save(ctx context.Context, rec *domain.SubmissionRecord) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	s.plugin.records[rec.Key] = *rec
	return nil
}

func (s *ledgerStorage) AcquireInFlight(ctx context.Context, key domain.IdempotencyKey, ttl time.Duration) (bool, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if until, ok := s.plugin.inflight[key]; ok && time.Now().Before(until) {
		return false, nil
	}
	s.plugin.inflight[key] = time.Now().Add(ttl)
	return true, nil
}

func (s *ledgerStorage) ReleaseInFlight(ctx context.Context, key domain.IdempotencyKey) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	delete(s.plugin.inflight, key)
	return nil
}

type nonceStorage struct {
	plugin *Plugin
}

func (s *nonceStorage) Next(ctx context.Context, addr string, seed func(ctx context.Context) (uint64, error)) (uint64, error) {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if !s.plugin.seeded[addr] {
		n, err := seed(ctx)
		if err != nil {
			return 0, err
		}
		s.plugin.nonces[addr] = n
		s.plugin.seeded[addr] = true
	}
	n := s.plugin.nonces[addr]
	s.plugin.nonces[addr] = n + 1
	return n, nil
}

func (s *nonceStorage) Rollback(ctx context.Context, addr string, nonce uint64) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if s.plugin.seeded[addr] && s.plugin.nonces[addr] == nonce+1 {
		s.plugin.nonces[addr] = nonce
	}
	return nil
}
