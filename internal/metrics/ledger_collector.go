package metrics

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
)

// ledgerCollector exposes the current submission-ledger composition as gauges.
// It scans the ledger hash on scrape with a bounded cursor so a large ledger
// cannot hang /metrics.
type ledgerCollector struct {
	rdb    *redis.Client
	logger *slog.Logger

	submissionsDesc *prometheus.Desc
}

const (
	ledgerHashKey   = "oraculo:submissions"
	maxScannedItems = 10000
)

func newLedgerCollector(rdb *redis.Client, logger *slog.Logger) *ledgerCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &ledgerCollector{
		rdb:    rdb,
		logger: logger,
		submissionsDesc: prometheus.NewDesc(
			"oraculo_ledger_submissions",
			"Submission records in the ledger by state.",
			[]string{"state"},
			nil,
		),
	}
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.submissionsDesc
}

func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	if c.rdb == nil {
		return
	}

	// Keep Redis reads bounded so scrapes do not hang.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	counts := map[string]float64{}
	var cursor uint64
	scanned := 0
	for {
		fields, next, err := c.rdb.HScan(ctx, ledgerHashKey, cursor, "*", 500).Result()
		if err != nil {
			c.logger.Debug("ledger scan failed during scrape", "error", err)
			return
		}
		// fields alternate key, value
		for i := 1; i < len(fields); i += 2 {
			var rec struct {
				State string `json:"state"`
			}
			if err := json.Unmarshal([]byte(fields[i]), &rec); err == nil && rec.State != "" {
				counts[rec.State]++
			}
			scanned++
		}
		cursor = next
		if cursor == 0 || scanned >= maxScannedItems {
			break
		}
	}

	for state, v := range counts {
		m, err := prometheus.NewConstMetric(c.submissionsDesc, prometheus.GaugeValue, v, state)
		if err != nil {
			continue
		}
		ch <- m
	}
}

var registerLedgerCollectorOnce sync.Once

// RegisterLedgerCollector wires the ledger gauge into the default registry.
func RegisterLedgerCollector(rdb *redis.Client, logger *slog.Logger) {
	registerLedgerCollectorOnce.Do(func() {
		prometheus.MustRegister(newLedgerCollector(rdb, logger))
	})
}
