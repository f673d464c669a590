// Package discovery implements the domain discovery orchestrator: it merges
// candidate domains from the configured source adapters, bounds large
// candidate sets by sampling, drives batched concurrent probing, and
// aggregates the outcome into a single result.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/discovery/source"
	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/probe"
	"github.com/paycrawl/paycrawl/pkg/domainname"
)

// ErrInvalidRequest marks a discovery request that failed basic validation.
// It is the only error class Discover propagates; partial source and probe
// failures degrade the result instead.
var ErrInvalidRequest = errors.New("invalid discovery request")

// Request describes one discovery run.
type Request struct {
	Technology      string   `json:"technology"`
	Limit           int      `json:"limit"`
	Sources         []string `json:"sources"`
	RankMin         int      `json:"rank_min,omitempty"`
	RankMax         int      `json:"rank_max,omitempty"`
	Country         string   `json:"country,omitempty"`  // ISO 3166-1 alpha-2
	Category        string   `json:"category,omitempty"` // provider category slug
	VerifyTech      bool     `json:"verify_technology,omitempty"`
	ProbeForPricing bool     `json:"probe_for_pricing"`
	PersistResults  bool     `json:"persist_results"`
}

// Totals aggregates counters across a run.
type Totals struct {
	Discovered   int `json:"discovered"`
	Probed       int `json:"probed"`
	PricingFound int `json:"pricing_found"`
	EdgeDetected int `json:"edge_detected"`
	Errors       int `json:"errors"`
}

// QualifiedDomain is a domain that survived probing with a positive signal.
type QualifiedDomain struct {
	Domain       string          `json:"domain"`
	Source       string          `json:"source"`
	EdgeDetected bool            `json:"edge_detected"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
}

// Result is the summary of one discovery run.
type Result struct {
	Totals            Totals            `json:"totals"`
	AvgResponseTimeMs int64             `json:"avg_response_time_ms"`
	Domains           []QualifiedDomain `json:"domains"`
	GeneratedAt       time.Time         `json:"generated_at"`
}

// Prober issues network probes for a single domain. *probe.Prober satisfies
// this interface.
type Prober interface {
	Probe(ctx context.Context, domain string, withPricing bool) probe.Result
}

// DomainStore persists qualifying domains when a run requests it. Writes are
// best-effort; failures never invalidate the returned result.
type DomainStore interface {
	UpsertDiscovered(ctx context.Context, d *model.DiscoveredDomain) error
}

// rankRanger is implemented by sources that support rank-window listing
// (the ranking-list adapter).
type rankRanger interface {
	DomainsInRankRange(ctx context.Context, min, max int) ([]source.CandidateDomain, error)
}

// filteredLister is implemented by sources that support country/category
// filtered listing (the technology-lookup adapter).
type filteredLister interface {
	ListCandidatesFiltered(ctx context.Context, technology string, limit int, country, category string) ([]source.CandidateDomain, error)
}

// factsLookup is implemented by sources that expose per-domain technology
// facts (the technology-lookup adapter).
type factsLookup interface {
	FactsFor(ctx context.Context, domain string) ([]source.TechnologyFact, error)
}

// Config bounds the cost of a run.
type Config struct {
	BatchSize      int           // probe concurrency ceiling; default 50
	PerDomainDelay time.Duration // inter-batch delay is PerDomainDelay × BatchSize; default 20ms
	SampleCap      int           // max domains probed per run; default 1000
}

// Orchestrator runs discovery requests.
type Orchestrator struct {
	sources []source.Source
	prober  Prober
	store   DomainStore
	cfg     Config
	logger  *zap.Logger
}

// New creates an Orchestrator. store may be nil when persistence is not
// wired (results are then never persisted regardless of the request flag).
func New(sources []source.Source, prober Prober, store DomainStore, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.PerDomainDelay <= 0 {
		cfg.PerDomainDelay = 20 * time.Millisecond
	}
	if cfg.SampleCap <= 0 {
		cfg.SampleCap = 1000
	}
	return &Orchestrator{sources: sources, prober: prober, store: store, cfg: cfg, logger: logger}
}

// Discover runs one end-to-end discovery pass. It only fails on request
// validation; every source or probe failure degrades the result instead.
func (o *Orchestrator) Discover(ctx context.Context, req Request) (*Result, error) {
	if err := o.validate(req); err != nil {
		return nil, err
	}

	res := &Result{GeneratedAt: time.Now().UTC()}

	merged := o.collectCandidates(ctx, req, res)
	res.Totals.Discovered = len(merged)
	if len(merged) == 0 {
		res.Domains = []QualifiedDomain{}
		return res, nil
	}

	candidates := flatten(merged)
	if len(candidates) > o.cfg.SampleCap {
		o.logger.Info("sampling candidate set",
			zap.Int("candidates", len(candidates)),
			zap.Int("cap", o.cfg.SampleCap),
		)
		candidates = sample(candidates, o.cfg.SampleCap)
	}

	if req.VerifyTech && req.Technology != "" {
		candidates = o.verifyTechnology(ctx, candidates, req.Technology, res)
	}

	results := o.probeAll(ctx, candidates, req.ProbeForPricing)
	o.aggregate(req, candidates, results, res)

	if req.PersistResults && o.store != nil {
		o.persist(ctx, res.Domains)
	}
	return res, nil
}

func (o *Orchestrator) validate(req Request) error {
	if req.Limit <= 0 {
		return fmt.Errorf("%w: limit must be positive", ErrInvalidRequest)
	}
	for _, name := range req.Sources {
		s := o.sourceByName(name)
		if s == nil {
			return fmt.Errorf("%w: unknown source %q", ErrInvalidRequest, name)
		}
		if name == source.NameTechnologyAPI && req.Technology == "" {
			return fmt.Errorf("%w: the %s source requires a technology", ErrInvalidRequest, name)
		}
	}
	if req.RankMax > 0 && req.RankMax < req.RankMin {
		return fmt.Errorf("%w: rank_max below rank_min", ErrInvalidRequest)
	}
	if req.Country != "" && len(req.Country) != 2 {
		return fmt.Errorf("%w: country must be an ISO 3166-1 alpha-2 code", ErrInvalidRequest)
	}
	return nil
}

func (o *Orchestrator) sourceByName(name string) source.Source {
	for _, s := range o.sources {
		if s.Name() == name {
			return s
		}
	}
	return nil
}

// collectCandidates fans out to the enabled sources and merges their output
// into a set keyed by normalized domain name. The first source that produced
// a domain keeps provenance.
func (o *Orchestrator) collectCandidates(ctx context.Context, req Request, res *Result) map[string]source.CandidateDomain {
	merged := make(map[string]source.CandidateDomain)

	for _, name := range req.Sources {
		s := o.sourceByName(name)

		var (
			candidates []source.CandidateDomain
			err        error
		)
		if rr, ok := s.(rankRanger); ok && req.RankMin > 0 && req.RankMax > 0 {
			candidates, err = rr.DomainsInRankRange(ctx, req.RankMin, req.RankMax)
		} else if fl, ok := s.(filteredLister); ok && (req.Country != "" || req.Category != "") {
			candidates, err = fl.ListCandidatesFiltered(ctx, req.Technology, req.Limit, req.Country, req.Category)
		} else {
			candidates, err = s.ListCandidates(ctx, req.Technology, req.Limit)
		}
		if err != nil {
			// Degraded source: count it and keep going with the others.
			o.logger.Warn("source failed; continuing without it",
				zap.String("source", name),
				zap.Error(err),
			)
			res.Totals.Errors++
		}

		for _, c := range candidates {
			d, nerr := domainname.Normalize(c.Domain)
			if nerr != nil {
				continue
			}
			if _, seen := merged[d]; seen {
				continue
			}
			c.Domain = d
			merged[d] = c
		}
	}
	return merged
}

// verifyTechnology confirms, via per-domain provider lookups, that each
// candidate actually runs the requested technology, and drops those that
// provably do not. Candidates the provider already asserted (the
// technology-lookup source itself) are kept without a second lookup, and a
// failed lookup keeps the candidate rather than discarding it on a provider
// hiccup. The per-domain lookups are serialized by the adapter's own
// throttle, so a verified run trades speed for precision.
func (o *Orchestrator) verifyTechnology(ctx context.Context, candidates []source.CandidateDomain, technology string, res *Result) []source.CandidateDomain {
	var fl factsLookup
	for _, s := range o.sources {
		if l, ok := s.(factsLookup); ok {
			fl = l
			break
		}
	}
	if fl == nil {
		return candidates
	}

	kept := candidates[:0]
	for _, c := range candidates {
		if c.Source == source.NameTechnologyAPI {
			kept = append(kept, c)
			continue
		}
		facts, err := fl.FactsFor(ctx, c.Domain)
		if err != nil {
			o.logger.Warn("technology verification lookup failed; keeping candidate",
				zap.String("domain", c.Domain),
				zap.Error(err),
			)
			res.Totals.Errors++
			kept = append(kept, c)
			continue
		}
		matched := false
		for _, f := range facts {
			if strings.EqualFold(f.Technology, technology) {
				matched = true
				break
			}
		}
		if matched {
			kept = append(kept, c)
		}
	}
	return kept
}

// probeAll partitions candidates into fixed-size batches and probes each
// batch concurrently with a settle-all policy: one slow or failing probe
// never blocks or aborts its siblings. A fixed delay proportional to batch
// size separates consecutive batches.
func (o *Orchestrator) probeAll(ctx context.Context, candidates []source.CandidateDomain, withPricing bool) []probe.Result {
	results := make([]probe.Result, 0, len(candidates))
	delay := o.cfg.PerDomainDelay * time.Duration(o.cfg.BatchSize)

	for start := 0; start < len(candidates); start += o.cfg.BatchSize {
		end := start + o.cfg.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}
		batch := candidates[start:end]

		out := make(chan probe.Result, len(batch))
		for _, c := range batch {
			go func(domain string) {
				out <- o.prober.Probe(ctx, domain, withPricing)
			}(c.Domain)
		}
		for range batch {
			results = append(results, <-out)
		}

		if end < len(candidates) {
			time.Sleep(delay)
		}
	}
	return results
}

func (o *Orchestrator) aggregate(req Request, candidates []source.CandidateDomain, probeResults []probe.Result, res *Result) {
	provenance := make(map[string]string, len(candidates))
	for _, c := range candidates {
		provenance[c.Domain] = c.Source
	}

	var totalMs int64
	res.Domains = []QualifiedDomain{}
	for _, pr := range probeResults {
		res.Totals.Probed++
		totalMs += pr.ResponseTimeMs
		if pr.Error != "" {
			res.Totals.Errors++
		}
		if pr.EdgeDetected {
			res.Totals.EdgeDetected++
		}
		if pr.PricingDetected {
			res.Totals.PricingFound++
		}
		if pr.EdgeDetected || pr.PricingDetected {
			res.Domains = append(res.Domains, QualifiedDomain{
				Domain:       pr.Domain,
				Source:       provenance[pr.Domain],
				EdgeDetected: pr.EdgeDetected,
				Price:        pr.Price,
				Currency:     pr.Currency,
			})
		}
	}
	if res.Totals.Probed > 0 {
		res.AvgResponseTimeMs = totalMs / int64(res.Totals.Probed)
	}
	if req.Limit > 0 && len(res.Domains) > req.Limit {
		res.Domains = res.Domains[:req.Limit]
	}
}

// persist writes qualifying domains to the record store. Best-effort only.
func (o *Orchestrator) persist(ctx context.Context, domains []QualifiedDomain) {
	for _, d := range domains {
		rec := &model.DiscoveredDomain{
			Domain:    d.Domain,
			Status:    model.DomainDiscovered,
			Price:     d.Price,
			Currency:  d.Currency,
			Source:    d.Source,
			Available: true,
		}
		if err := o.store.UpsertDiscovered(ctx, rec); err != nil {
			o.logger.Warn("persist discovered domain", zap.String("domain", d.Domain), zap.Error(err))
		}
	}
}

// flatten returns the merged set as a slice. Map iteration order is
// intentionally acceptable: result ordering carries no guarantee.
func flatten(merged map[string]source.CandidateDomain) []source.CandidateDomain {
	out := make([]source.CandidateDomain, 0, len(merged))
	for _, c := range merged {
		out = append(out, c)
	}
	return out
}
