package redis

import (
	"context"
	"encoding/json"

	"github.com/obralink/oraculo/internal/repository"
	"github.com/obralink/oraculo/pkg/persistence"

	"github.com/go-redis/redis/v8"
)

// Config holds Redis-specific configuration
type Config struct {
	Addr     string `json:"addr"`
	Password string `json:"password,omitempty"`
}

// Plugin implements PluginPersistence for Redis/KVRocks
type Plugin struct {
	client *redis.Client
	ledger *repository.LedgerRepository
	nonces *repository.NonceRepository
}

// NewPlugin creates a new Redis persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	var cfg Config
	if err := json.Unmarshal(config.Config, &cfg); err != nil {
		return nil, err
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
	})

	return &Plugin{
		client: client,
		ledger: repository.NewLedgerRepository(client),
		nonces: repository.NewNonceRepository(client),
	}, nil
}

// Ledger returns the idempotency-ledger storage implementation
func (p *Plugin) Ledger() persistence.LedgerStorage {
	return p.ledger
}

// Nonces returns the nonce-counter storage implementation
func (p *Plugin) Nonces() persistence.NonceStorage {
	return p.nonces
}

// Health checks if Redis is healthy
func (p *Plugin) Health(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Close releases Redis connection
func (p *Plugin) Close() error {
	return p.client.Close()
}

func init() {
	persistence.RegisterProvider("redis", NewPlugin)
}
