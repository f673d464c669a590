// Package monitor re-checks published marketplace domains for a live
// pay-per-crawl signal and flags listings whose signal has gone away.
package monitor

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/probe"
)

// Config holds availability monitor configuration.
type Config struct {
	CheckInterval time.Duration
	FailThreshold int
	Concurrency   int
}

// DomainLister returns the published domains to re-check.
type DomainLister interface {
	ListPublished(ctx context.Context) ([]*model.DiscoveredDomain, error)
}

// AvailabilityUpdater records the availability of a published domain.
type AvailabilityUpdater interface {
	SetAvailability(ctx context.Context, domain string, available bool, checkedAt time.Time) error
}

// Prober issues the probe for a single domain. *probe.Prober satisfies it.
type Prober interface {
	Probe(ctx context.Context, domain string, withPricing bool) probe.Result
}

// MetricsRecordFunc is an optional callback for recording check results.
type MetricsRecordFunc func(available bool)

// Monitor runs periodic availability checks over published domains. A
// domain is marked unavailable only after FailThreshold consecutive misses,
// so a single transient failure never delists anything.
type Monitor struct {
	lister     DomainLister
	updater    AvailabilityUpdater
	prober     Prober
	failCounts map[string]int
	mu         sync.Mutex
	cfg        Config
	onMetrics  MetricsRecordFunc
	logger     *zap.Logger
}

// New creates a Monitor.
func New(lister DomainLister, updater AvailabilityUpdater, prober Prober, cfg Config, logger *zap.Logger) *Monitor {
	if cfg.CheckInterval < time.Minute {
		cfg.CheckInterval = 6 * time.Hour
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 3
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 10
	}
	return &Monitor{
		lister:     lister,
		updater:    updater,
		prober:     prober,
		failCounts: make(map[string]int),
		cfg:        cfg,
		logger:     logger,
	}
}

// SetMetricsRecord configures the metrics recording callback.
func (m *Monitor) SetMetricsRecord(fn MetricsRecordFunc) {
	m.onMetrics = fn
}

// Start runs the check loop until quit is signalled.
func (m *Monitor) Start(quit <-chan os.Signal) {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), m.cfg.CheckInterval-time.Second)
			m.CheckAll(ctx)
			cancel()
		case <-quit:
			return
		}
	}
}

// CheckAll re-probes all published domains with bounded concurrency.
func (m *Monitor) CheckAll(ctx context.Context) {
	domains, err := m.lister.ListPublished(ctx)
	if err != nil {
		m.logger.Error("monitor: list published domains", zap.Error(err))
		return
	}

	sem := make(chan struct{}, m.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, d := range domains {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			res := m.prober.Probe(ctx, name, true)
			// Any positive crawl-market signal keeps the listing available.
			alive := res.Error == "" && (res.PricingDetected || res.EdgeDetected)

			if m.onMetrics != nil {
				m.onMetrics(alive)
			}

			m.mu.Lock()
			prev := m.failCounts[name]
			if alive {
				m.failCounts[name] = 0
			} else {
				m.failCounts[name]++
			}
			count := m.failCounts[name]
			m.mu.Unlock()

			now := time.Now().UTC()

			switch {
			case alive && prev >= m.cfg.FailThreshold:
				if err := m.updater.SetAvailability(ctx, name, true, now); err != nil {
					m.logger.Warn("monitor: set availability", zap.Error(err))
				}
				m.logger.Info("monitor: domain recovered", zap.String("domain", name))
			case alive:
				if err := m.updater.SetAvailability(ctx, name, true, now); err != nil {
					m.logger.Warn("monitor: set availability", zap.Error(err))
				}
			case count == m.cfg.FailThreshold:
				if err := m.updater.SetAvailability(ctx, name, false, now); err != nil {
					m.logger.Warn("monitor: set availability", zap.Error(err))
				}
				m.logger.Warn("monitor: domain unavailable",
					zap.String("domain", name),
					zap.Int("fail_count", count),
				)
			}
		}(d.Domain)
	}

	wg.Wait()
}
