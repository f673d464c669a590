package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/probe"
)

type stubLister struct {
	domains []*model.DiscoveredDomain
}

func (s *stubLister) ListPublished(_ context.Context) ([]*model.DiscoveredDomain, error) {
	return s.domains, nil
}

type stubUpdater struct {
	mu        sync.Mutex
	available map[string]bool
	calls     int
}

func newStubUpdater() *stubUpdater {
	return &stubUpdater{available: make(map[string]bool)}
}

func (s *stubUpdater) SetAvailability(_ context.Context, domain string, available bool, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.available[domain] = available
	s.calls++
	return nil
}

func (s *stubUpdater) get(domain string) (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.available[domain]
	return v, ok
}

// scriptedProber returns canned results per domain, in call order.
type scriptedProber struct {
	mu      sync.Mutex
	results map[string][]probe.Result
}

func (p *scriptedProber) Probe(_ context.Context, domain string, _ bool) probe.Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := p.results[domain]
	if len(q) == 0 {
		return probe.Result{Domain: domain, Error: "no scripted result"}
	}
	r := q[0]
	p.results[domain] = q[1:]
	return r
}

func alive(domain string) probe.Result {
	return probe.Result{Domain: domain, PricingDetected: true}
}

func dead(domain string) probe.Result {
	return probe.Result{Domain: domain, Error: "connection refused"}
}

func published(domains ...string) *stubLister {
	l := &stubLister{}
	for _, d := range domains {
		l.domains = append(l.domains, &model.DiscoveredDomain{Domain: d, Status: model.DomainPublished})
	}
	return l
}

func TestNew_clampsShortCheckInterval(t *testing.T) {
	// The loop derives its per-pass context timeout from the interval, so
	// an interval this short would yield an already-expired context.
	m := New(published(), newStubUpdater(), &scriptedProber{}, Config{CheckInterval: time.Second}, zap.NewNop())
	if m.cfg.CheckInterval < time.Minute {
		t.Fatalf("CheckInterval = %v, want at least a minute", m.cfg.CheckInterval)
	}
}

func TestCheckAll_keepsAvailableOnSignal(t *testing.T) {
	updater := newStubUpdater()
	prober := &scriptedProber{results: map[string][]probe.Result{
		"a.example": {alive("a.example")},
	}}
	m := New(published("a.example"), updater, prober, Config{FailThreshold: 3}, zap.NewNop())

	m.CheckAll(context.Background())

	if v, ok := updater.get("a.example"); !ok || !v {
		t.Errorf("expected a.example marked available, got %v ok=%v", v, ok)
	}
}

func TestCheckAll_marksUnavailableOnlyAtThreshold(t *testing.T) {
	updater := newStubUpdater()
	prober := &scriptedProber{results: map[string][]probe.Result{
		"b.example": {dead("b.example"), dead("b.example"), dead("b.example")},
	}}
	m := New(published("b.example"), updater, prober, Config{FailThreshold: 3}, zap.NewNop())

	m.CheckAll(context.Background())
	m.CheckAll(context.Background())
	if _, ok := updater.get("b.example"); ok {
		t.Fatal("availability must not change before the threshold")
	}

	m.CheckAll(context.Background())
	if v, ok := updater.get("b.example"); !ok || v {
		t.Errorf("expected b.example marked unavailable at threshold, got %v ok=%v", v, ok)
	}
}

func TestCheckAll_recoversAfterOutage(t *testing.T) {
	updater := newStubUpdater()
	prober := &scriptedProber{results: map[string][]probe.Result{
		"c.example": {dead("c.example"), dead("c.example"), dead("c.example"), alive("c.example")},
	}}
	m := New(published("c.example"), updater, prober, Config{FailThreshold: 3}, zap.NewNop())

	for i := 0; i < 4; i++ {
		m.CheckAll(context.Background())
	}

	if v, ok := updater.get("c.example"); !ok || !v {
		t.Errorf("expected c.example available after recovery, got %v ok=%v", v, ok)
	}
}

func TestCheckAll_edgeSignalAloneCountsAsAlive(t *testing.T) {
	updater := newStubUpdater()
	prober := &scriptedProber{results: map[string][]probe.Result{
		"d.example": {{Domain: "d.example", EdgeDetected: true}},
	}}
	m := New(published("d.example"), updater, prober, Config{FailThreshold: 1}, zap.NewNop())

	m.CheckAll(context.Background())

	if v, ok := updater.get("d.example"); !ok || !v {
		t.Errorf("edge-only signal should keep the domain available, got %v ok=%v", v, ok)
	}
}

func TestCheckAll_recordsMetrics(t *testing.T) {
	updater := newStubUpdater()
	prober := &scriptedProber{results: map[string][]probe.Result{
		"e.example": {alive("e.example")},
		"f.example": {dead("f.example")},
	}}
	m := New(published("e.example", "f.example"), updater, prober, Config{FailThreshold: 3}, zap.NewNop())

	var mu sync.Mutex
	got := map[bool]int{}
	m.SetMetricsRecord(func(available bool) {
		mu.Lock()
		got[available]++
		mu.Unlock()
	})

	m.CheckAll(context.Background())

	if got[true] != 1 || got[false] != 1 {
		t.Errorf("metrics = %v, want one available and one unavailable", got)
	}
}
