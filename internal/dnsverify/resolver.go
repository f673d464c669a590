package dnsverify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

// ErrNoRecords is returned by a Resolver when the name resolves but carries
// no TXT answer (including NXDOMAIN). Callers must treat it differently from
// a transport failure: the claimant has not published the record yet, whereas
// a transport failure means "try again later".
var ErrNoRecords = errors.New("no TXT records found")

// Resolver performs DNS TXT lookups. Implementations must be safe for
// concurrent use.
type Resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}

// ── DNS-over-HTTPS resolver ────────────────────────────────────────────────

// DefaultDoHEndpoint is Cloudflare's public JSON DNS-over-HTTPS endpoint.
const DefaultDoHEndpoint = "https://cloudflare-dns.com/dns-query"

// DoHResolver resolves TXT records through a DNS-over-HTTPS provider using
// the application/dns-json wire format.
type DoHResolver struct {
	endpoint   string
	httpClient *http.Client
}

// NewDoHResolver creates a DoHResolver. Empty endpoint selects
// DefaultDoHEndpoint; zero timeout defaults to 5s.
func NewDoHResolver(endpoint string, timeout time.Duration) *DoHResolver {
	if endpoint == "" {
		endpoint = DefaultDoHEndpoint
	}
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &DoHResolver{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// dohAnswer is a single answer entry in a dns-json response.
type dohAnswer struct {
	Name string `json:"name"`
	Type int    `json:"type"`
	Data string `json:"data"`
}

// dohResponse is the subset of the dns-json response format we consume.
type dohResponse struct {
	Status int         `json:"Status"` // DNS RCODE; 0 = NOERROR, 3 = NXDOMAIN
	Answer []dohAnswer `json:"Answer"`
}

const dnsTypeTXT = 16

// LookupTXT implements Resolver.
func (r *DoHResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	u := fmt.Sprintf("%s?name=%s&type=TXT", r.endpoint, url.QueryEscape(name))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build DoH request: %w", err)
	}
	req.Header.Set("Accept", "application/dns-json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("DoH query for %s: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("DoH provider returned HTTP %d for %s", resp.StatusCode, name)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read DoH response: %w", err)
	}

	var parsed dohResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode DoH response: %w", err)
	}

	// NXDOMAIN means the record does not exist, not that the lookup failed.
	if parsed.Status == 3 {
		return nil, ErrNoRecords
	}
	if parsed.Status != 0 {
		return nil, fmt.Errorf("DoH lookup for %s failed with RCODE %d", name, parsed.Status)
	}

	var txts []string
	for _, a := range parsed.Answer {
		if a.Type == dnsTypeTXT {
			txts = append(txts, a.Data)
		}
	}
	if len(txts) == 0 {
		return nil, ErrNoRecords
	}
	return txts, nil
}

// ── System resolver ────────────────────────────────────────────────────────

// NetResolver resolves TXT records through the operating system's stub
// resolver. Used when no DoH endpoint is configured.
type NetResolver struct {
	resolver *net.Resolver
}

// NewNetResolver creates a NetResolver backed by net.DefaultResolver.
func NewNetResolver() *NetResolver {
	return &NetResolver{resolver: &net.Resolver{}}
}

// LookupTXT implements Resolver. NXDOMAIN and empty answers are normalized
// to ErrNoRecords so both resolver implementations behave alike.
func (r *NetResolver) LookupTXT(ctx context.Context, name string) ([]string, error) {
	txts, err := r.resolver.LookupTXT(ctx, name)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, ErrNoRecords
		}
		return nil, fmt.Errorf("DNS lookup for %s: %w", name, err)
	}
	if len(txts) == 0 {
		return nil, ErrNoRecords
	}
	return txts, nil
}
