// Package probe performs lightweight network checks against candidate
// domains: edge-network fingerprint detection and pay-per-crawl pricing
// detection via HTTP 402 responses.
//
// Probes are pure functions of the domain name and hold no shared mutable
// state, so a single Prober is safe to use from many goroutines.
package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Fingerprint describes how an edge network is recognized from response
// headers. A domain matches when any presence header exists or the Server
// header contains any of the substrings (case-insensitive).
type Fingerprint struct {
	PresenceHeaders  []string
	ServerSubstrings []string
}

// DefaultFingerprint recognizes Cloudflare's edge network.
func DefaultFingerprint() Fingerprint {
	return Fingerprint{
		PresenceHeaders:  []string{"Cf-Ray", "Cf-Cache-Status"},
		ServerSubstrings: []string{"cloudflare"},
	}
}

// PricingHeaders names the response headers a 402 carries its price in.
// Price headers may hold a bare decimal ("0.05") or a combined value
// ("0.05 USD" / "USD 0.05"); currency headers hold an ISO 4217 code.
type PricingHeaders struct {
	Price    []string
	Currency []string
}

// DefaultPricingHeaders returns the pay-per-crawl header set.
func DefaultPricingHeaders() PricingHeaders {
	return PricingHeaders{
		Price:    []string{"Crawler-Price", "X-Crawl-Price"},
		Currency: []string{"Crawler-Price-Currency", "X-Crawl-Currency"},
	}
}

// Config holds probe settings.
type Config struct {
	Timeout     time.Duration // per-probe network timeout; default 5s
	UserAgent   string
	Scheme      string // default "https"; overridable for tests
	Fingerprint Fingerprint
	Pricing     PricingHeaders
}

// Result is the outcome of probing one domain.
type Result struct {
	Domain          string          `json:"domain"`
	EdgeDetected    bool            `json:"edge_detected"`
	PricingDetected bool            `json:"pricing_detected"`
	Price           decimal.Decimal `json:"price"`
	Currency        string          `json:"currency,omitempty"`
	ResponseTimeMs  int64           `json:"response_time_ms"`
	Error           string          `json:"error,omitempty"`
}

// Prober issues edge-network and pricing probes.
type Prober struct {
	cfg        Config
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a Prober. Zero config fields take defaults.
func New(cfg Config, logger *zap.Logger) *Prober {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "paycrawl-probe/1.0 (+https://paycrawl.dev)"
	}
	if cfg.Scheme == "" {
		cfg.Scheme = "https"
	}
	if len(cfg.Fingerprint.PresenceHeaders) == 0 && len(cfg.Fingerprint.ServerSubstrings) == 0 {
		cfg.Fingerprint = DefaultFingerprint()
	}
	if len(cfg.Pricing.Price) == 0 {
		cfg.Pricing = DefaultPricingHeaders()
	}
	return &Prober{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			// Pricing is surfaced on the original response; redirects would
			// mask the 402.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger: logger,
	}
}

// Probe runs the edge-network probe and, when withPricing is set, the
// pricing probe. Network failures are recorded in Result.Error and never
// returned as a Go error: a dead or unreachable domain is a valid probe
// outcome, not a fault of the batch.
func (p *Prober) Probe(ctx context.Context, domain string, withPricing bool) Result {
	res := Result{Domain: domain}
	start := time.Now()

	edge, err := p.EdgeProbe(ctx, domain)
	res.EdgeDetected = edge
	if err != nil {
		res.Error = trimErr(err)
	}

	if withPricing {
		detected, price, currency, perr := p.PricingProbe(ctx, domain)
		res.PricingDetected = detected
		res.Price = price
		res.Currency = currency
		if perr != nil && res.Error == "" {
			res.Error = trimErr(perr)
		}
	}

	res.ResponseTimeMs = time.Since(start).Milliseconds()
	return res
}

// EdgeProbe issues a HEAD request to the domain and inspects response
// headers for the configured edge-network fingerprint. Any network error
// (timeout, TLS, DNS) means "not detected".
func (p *Prober) EdgeProbe(ctx context.Context, domain string) (bool, error) {
	resp, err := p.do(ctx, http.MethodHead, domain)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	for _, h := range p.cfg.Fingerprint.PresenceHeaders {
		if resp.Header.Get(h) != "" {
			return true, nil
		}
	}
	server := strings.ToLower(resp.Header.Get("Server"))
	for _, sub := range p.cfg.Fingerprint.ServerSubstrings {
		if sub != "" && strings.Contains(server, strings.ToLower(sub)) {
			return true, nil
		}
	}
	return false, nil
}

// PricingProbe issues a GET request expected to surface HTTP 402 and parses
// the pricing headers. A non-402 response or a malformed price header means
// "no pricing", not an error.
func (p *Prober) PricingProbe(ctx context.Context, domain string) (bool, decimal.Decimal, string, error) {
	resp, err := p.do(ctx, http.MethodGet, domain)
	if err != nil {
		return false, decimal.Zero, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPaymentRequired {
		return false, decimal.Zero, "", nil
	}

	price, currency, ok := p.parsePricing(resp.Header)
	if !ok {
		p.logger.Debug("402 without parseable pricing headers", zap.String("domain", domain))
		return false, decimal.Zero, "", nil
	}
	return true, price, currency, nil
}

func (p *Prober) do(ctx context.Context, method, domain string) (*http.Response, error) {
	url := p.cfg.Scheme + "://" + domain + "/"
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", domain, err)
	}
	req.Header.Set("User-Agent", p.cfg.UserAgent)
	return p.httpClient.Do(req)
}

// parsePricing extracts a positive price and a 3-letter currency code from
// the response headers. Returns ok=false when nothing valid is present.
func (p *Prober) parsePricing(h http.Header) (decimal.Decimal, string, bool) {
	var raw string
	for _, name := range p.cfg.Pricing.Price {
		if v := h.Get(name); v != "" {
			raw = strings.TrimSpace(v)
			break
		}
	}
	if raw == "" {
		return decimal.Zero, "", false
	}

	amount := raw
	currency := ""

	// Combined forms: "0.05 USD" or "USD 0.05".
	if fields := strings.Fields(raw); len(fields) == 2 {
		if isCurrencyCode(fields[0]) {
			currency, amount = fields[0], fields[1]
		} else if isCurrencyCode(fields[1]) {
			amount, currency = fields[0], fields[1]
		}
	}

	if currency == "" {
		for _, name := range p.cfg.Pricing.Currency {
			if v := strings.TrimSpace(h.Get(name)); v != "" {
				currency = v
				break
			}
		}
	}
	currency = strings.ToUpper(currency)
	if !isCurrencyCode(currency) {
		return decimal.Zero, "", false
	}

	price, err := decimal.NewFromString(amount)
	if err != nil || !price.IsPositive() {
		return decimal.Zero, "", false
	}
	return price, currency, true
}

// isCurrencyCode reports whether s looks like an ISO 4217 code.
func isCurrencyCode(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}

// trimErr shortens network error strings for storage in probe results.
func trimErr(err error) string {
	msg := err.Error()
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	return msg
}
