package source

import "context"

// defaultCuratedDomains are well-known edge-network deployments maintained
// by hand. They act as a reliability floor when the paid lookup and ranking
// sources are unavailable or rate-limited.
var defaultCuratedDomains = []string{
	"cloudflare.com",
	"discord.com",
	"medium.com",
	"canva.com",
	"gitlab.com",
	"udemy.com",
	"shopify.com",
	"zendesk.com",
	"digitalocean.com",
	"coinbase.com",
	"patreon.com",
	"glassdoor.com",
	"npmjs.com",
	"codepen.io",
	"stackexchange.com",
}

// Curated serves a fixed, hand-maintained set of technology-positive
// domains. It never fails.
type Curated struct {
	domains []string
}

// NewCurated creates a Curated source. An empty list selects the built-in
// default set; deployments can override it through configuration.
func NewCurated(domains []string) *Curated {
	if len(domains) == 0 {
		domains = defaultCuratedDomains
	}
	return &Curated{domains: domains}
}

// Name implements Source.
func (c *Curated) Name() string { return NameCurated }

// ListCandidates implements Source.
func (c *Curated) ListCandidates(_ context.Context, _ string, limit int) ([]CandidateDomain, error) {
	n := len(c.domains)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]CandidateDomain, 0, n)
	for _, d := range c.domains[:n] {
		out = append(out, CandidateDomain{Domain: d, Source: NameCurated})
	}
	return out, nil
}
