package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ProviderMaxLimit is the largest result set the technology-lookup provider
// accepts per request; larger requests are capped silently.
const ProviderMaxLimit = 50000

// lookupMinSpacing is the minimum delay between consecutive per-domain
// lookup calls, required by the provider's rate limits.
const lookupMinSpacing = 100 * time.Millisecond

// TechAPI queries a paid technology-intelligence provider for domains known
// to run a given technology, and for per-domain technology facts.
type TechAPI struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	// Serializes per-domain lookups with a fixed minimum spacing.
	mu       sync.Mutex
	lastCall time.Time
}

// NewTechAPI creates a TechAPI adapter. An empty apiKey disables the source:
// every call returns an empty result.
func NewTechAPI(baseURL, apiKey string, timeout time.Duration, logger *zap.Logger) *TechAPI {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &TechAPI{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// Name implements Source.
func (a *TechAPI) Name() string { return NameTechnologyAPI }

// techListResponse is the provider's domain-listing response envelope.
type techListResponse struct {
	Results []struct {
		Domain     string  `json:"domain"`
		Technology string  `json:"technology"`
		Category   string  `json:"category"`
		Version    string  `json:"version"`
		Confidence float64 `json:"confidence"`
		Rank       int     `json:"rank"`
	} `json:"results"`
	Errors []string `json:"errors"`
}

// ListCandidates implements Source. Provider failures are logged and
// surfaced as a non-nil error together with an empty result; the caller
// continues the run regardless.
func (a *TechAPI) ListCandidates(ctx context.Context, technology string, limit int) ([]CandidateDomain, error) {
	return a.ListCandidatesFiltered(ctx, technology, limit, "", "")
}

// ListCandidatesFiltered narrows the domain listing by the provider's
// country and category filters. Empty filters are omitted from the query.
func (a *TechAPI) ListCandidatesFiltered(ctx context.Context, technology string, limit int, country, category string) ([]CandidateDomain, error) {
	if a.apiKey == "" {
		a.logger.Debug("technology API not configured; returning no candidates")
		return nil, nil
	}
	if technology == "" {
		return nil, fmt.Errorf("technology API requires a technology filter")
	}
	if limit <= 0 || limit > ProviderMaxLimit {
		limit = ProviderMaxLimit
	}

	q := url.Values{}
	q.Set("limit", fmt.Sprintf("%d", limit))
	if country != "" {
		q.Set("country", country)
	}
	if category != "" {
		q.Set("category", category)
	}
	u := fmt.Sprintf("%s/v1/technologies/%s/domains?%s",
		a.baseURL, url.PathEscape(technology), q.Encode())

	var parsed techListResponse
	if err := a.getJSON(ctx, u, &parsed); err != nil {
		a.logger.Warn("technology API list failed", zap.String("technology", technology), zap.Error(err))
		return nil, err
	}
	if len(parsed.Errors) > 0 {
		a.logger.Warn("technology API reported errors",
			zap.String("technology", technology),
			zap.Strings("errors", parsed.Errors),
		)
		return nil, fmt.Errorf("provider reported %d errors", len(parsed.Errors))
	}

	candidates := make([]CandidateDomain, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		if r.Domain == "" {
			continue
		}
		candidates = append(candidates, CandidateDomain{
			Domain: r.Domain,
			Source: NameTechnologyAPI,
			Rank:   r.Rank,
		})
	}
	return candidates, nil
}

// FactsFor returns the technologies the provider reports for a single
// domain. Consecutive calls are spaced at least 100ms apart.
func (a *TechAPI) FactsFor(ctx context.Context, domain string) ([]TechnologyFact, error) {
	if a.apiKey == "" {
		return nil, nil
	}
	a.throttle()

	u := fmt.Sprintf("%s/v1/domains/%s/technologies", a.baseURL, url.PathEscape(domain))

	var parsed techListResponse
	if err := a.getJSON(ctx, u, &parsed); err != nil {
		a.logger.Warn("technology API lookup failed", zap.String("domain", domain), zap.Error(err))
		return nil, err
	}

	facts := make([]TechnologyFact, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		facts = append(facts, TechnologyFact{
			Domain:     domain,
			Technology: r.Technology,
			Category:   r.Category,
			Version:    r.Version,
			Confidence: r.Confidence,
		})
	}
	return facts, nil
}

// throttle enforces the fixed minimum spacing between provider calls.
// Deliberately a simple fixed delay, not a token bucket.
func (a *TechAPI) throttle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if wait := lookupMinSpacing - time.Since(a.lastCall); wait > 0 {
		time.Sleep(wait)
	}
	a.lastCall = time.Now()
}

func (a *TechAPI) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("provider request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("provider returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("read provider response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode provider response: %w", err)
	}
	return nil
}
