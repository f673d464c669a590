// Package client provides the Go SDK for the paycrawl domain marketplace:
// submitting and verifying domain ownership claims, browsing published
// domains, and triggering discovery runs.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when the requested claim or domain does not exist.
var ErrNotFound = errors.New("not found")

// Claim mirrors the claim record returned by the API.
type Claim struct {
	ID             string          `json:"id"`
	Domain         string          `json:"domain"`
	Email          string          `json:"email"`
	ContactName    string          `json:"contact_name"`
	Organization   string          `json:"organization,omitempty"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	Currency       string          `json:"currency"`
	Status         string          `json:"status"`
	Challenge      struct {
		RecordName  string    `json:"record_name"`
		RecordValue string    `json:"record_value"`
		ExpiresAt   time.Time `json:"expires_at"`
		Verified    bool      `json:"verified"`
	} `json:"challenge"`
	RejectReason string    `json:"reject_reason,omitempty"`
	SubmittedAt  time.Time `json:"submitted_at"`
}

// Guidance carries the status-derived next steps returned alongside a claim.
type Guidance struct {
	CurrentStep string   `json:"current_step"`
	NextSteps   []string `json:"next_steps"`
	CanRetry    bool     `json:"can_retry"`
}

// SubmitClaimRequest is the payload for SubmitClaim.
type SubmitClaimRequest struct {
	Domain         string          `json:"domain"`
	Email          string          `json:"email"`
	ContactName    string          `json:"contact_name"`
	Organization   string          `json:"organization,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	Currency       string          `json:"currency,omitempty"`
}

// SubmitClaimResult holds the created claim and its DNS setup instructions.
type SubmitClaimResult struct {
	Claim        Claim    `json:"claim"`
	Instructions []string `json:"instructions"`
	Guidance     Guidance `json:"guidance"`
}

// VerifyResult mirrors the verification outcome returned by the API.
type VerifyResult struct {
	Verified      bool     `json:"verified"`
	Outcome       string   `json:"outcome"`
	Error         string   `json:"error,omitempty"`
	ExpectedValue string   `json:"expected_value,omitempty"`
	ActualValue   string   `json:"actual_value,omitempty"`
	NextSteps     []string `json:"next_steps"`
}

// Domain mirrors a published marketplace domain record.
type Domain struct {
	Domain        string          `json:"domain"`
	Status        string          `json:"status"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Source        string          `json:"source"`
	Available     bool            `json:"available"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
}

// DiscoveryRequest is the payload for RunDiscovery.
type DiscoveryRequest struct {
	Technology      string   `json:"technology"`
	Limit           int      `json:"limit"`
	Sources         []string `json:"sources"`
	RankMin         int      `json:"rank_min,omitempty"`
	RankMax         int      `json:"rank_max,omitempty"`
	Country         string   `json:"country,omitempty"`
	Category        string   `json:"category,omitempty"`
	VerifyTech      bool     `json:"verify_technology,omitempty"`
	ProbeForPricing bool     `json:"probe_for_pricing"`
	PersistResults  bool     `json:"persist_results"`
}

// DiscoveryResult mirrors the discovery run summary returned by the API.
type DiscoveryResult struct {
	Totals struct {
		Discovered   int `json:"discovered"`
		Probed       int `json:"probed"`
		PricingFound int `json:"pricing_found"`
		EdgeDetected int `json:"edge_detected"`
		Errors       int `json:"errors"`
	} `json:"totals"`
	AvgResponseTimeMs int64 `json:"avg_response_time_ms"`
	Domains           []struct {
		Domain       string          `json:"domain"`
		Source       string          `json:"source"`
		EdgeDetected bool            `json:"edge_detected"`
		Price        decimal.Decimal `json:"price"`
		Currency     string          `json:"currency,omitempty"`
	} `json:"domains"`
	GeneratedAt time.Time `json:"generated_at"`
}

// Client is the paycrawl SDK entry point.
type Client struct {
	baseURL    string
	httpClient *http.Client
	adminToken string
	cache      *domainCache
}

// Option is a functional option for configuring a Client.
type Option func(*Client) error

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}

// WithAdminToken attaches the shared admin secret used by review and
// discovery endpoints.
func WithAdminToken(token string) Option {
	return func(c *Client) error {
		c.adminToken = token
		return nil
	}
}

// WithCacheTTL enables in-memory caching of the published domain listing
// with the given TTL.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) error {
		c.cache = newDomainCache(ttl)
		return nil
	}
}

// New creates a Client connected to baseURL.
//
//	c, err := client.New("https://market.paycrawl.dev",
//	    client.WithCacheTTL(60*time.Second),
//	)
func New(baseURL string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		if err := o(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Useful in tests and program init.
func MustNew(baseURL string, opts ...Option) *Client {
	c, err := New(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SubmitClaim submits a new ownership claim and returns the DNS record the
// owner must publish.
func (c *Client) SubmitClaim(ctx context.Context, req SubmitClaimRequest) (*SubmitClaimResult, error) {
	var res SubmitClaimResult
	if err := c.postJSON(ctx, "/api/v1/claims", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// GetClaim fetches a claim and its guidance by ID.
func (c *Client) GetClaim(ctx context.Context, id string) (*Claim, *Guidance, error) {
	var res struct {
		Claim    Claim    `json:"claim"`
		Guidance Guidance `json:"guidance"`
	}
	if err := c.getJSON(ctx, "/api/v1/claims/"+id, &res); err != nil {
		return nil, nil, err
	}
	return &res.Claim, &res.Guidance, nil
}

// VerifyClaim triggers a DNS verification attempt for the claim. The
// returned result reports the outcome; a non-verified outcome is not a Go
// error.
func (c *Client) VerifyClaim(ctx context.Context, id string) (*VerifyResult, error) {
	var res VerifyResult
	if err := c.postJSON(ctx, "/api/v1/claims/"+id+"/verify", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// UpdateClaimStatus approves or rejects a claim. Requires WithAdminToken.
func (c *Client) UpdateClaimStatus(ctx context.Context, id, status, reason string) (*Claim, error) {
	payload := map[string]string{"status": status}
	if reason != "" {
		payload["reason"] = reason
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/v1/claims/"+id+"/status", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	respBody, err := c.do(req)
	if err != nil {
		return nil, err
	}
	var res struct {
		Claim Claim `json:"claim"`
	}
	if err := json.Unmarshal(respBody, &res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res.Claim, nil
}

// ListDomains returns all published marketplace domains.
func (c *Client) ListDomains(ctx context.Context) ([]Domain, error) {
	if c.cache != nil {
		if domains, ok := c.cache.get(); ok {
			return domains, nil
		}
	}

	var res struct {
		Domains []Domain `json:"domains"`
	}
	if err := c.getJSON(ctx, "/api/v1/domains", &res); err != nil {
		return nil, err
	}

	if c.cache != nil {
		c.cache.set(res.Domains)
	}
	return res.Domains, nil
}

// GetDomain fetches a single published domain record.
func (c *Client) GetDomain(ctx context.Context, domain string) (*Domain, error) {
	var d Domain
	if err := c.getJSON(ctx, "/api/v1/domains/"+domain, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// RunDiscovery triggers a synchronous discovery run. Requires
// WithAdminToken. Large runs can take minutes; size the context
// accordingly.
func (c *Client) RunDiscovery(ctx context.Context, req DiscoveryRequest) (*DiscoveryResult, error) {
	var res DiscoveryResult
	if err := c.postJSON(ctx, "/api/v1/discovery/run", req, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	var reader io.Reader
	if in != nil {
		body, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	body, err := c.do(req)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// do executes an HTTP request, attaching the admin token if present.
func (c *Client) do(req *http.Request) ([]byte, error) {
	if c.adminToken != "" {
		req.Header.Set("X-Admin-Token", c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, req.URL.Path)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("unauthorized: %s", string(body))
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// --- simple in-memory domain listing cache ---

type domainCache struct {
	mu        sync.RWMutex
	domains   []Domain
	expiresAt time.Time
	ttl       time.Duration
}

func newDomainCache(ttl time.Duration) *domainCache {
	return &domainCache{ttl: ttl}
}

func (dc *domainCache) get() ([]Domain, bool) {
	dc.mu.RLock()
	defer dc.mu.RUnlock()
	if dc.domains == nil || time.Now().After(dc.expiresAt) {
		return nil, false
	}
	return dc.domains, true
}

func (dc *domainCache) set(domains []Domain) {
	dc.mu.Lock()
	defer dc.mu.Unlock()
	dc.domains = domains
	dc.expiresAt = time.Now().Add(dc.ttl)
}
