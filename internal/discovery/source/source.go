// Package source contains the discovery source adapters. Each adapter
// produces candidate domains (or per-domain technology facts) from one
// external provider and degrades to an empty result on provider failure:
// a discovery run must never abort because a single source errored.
package source

import "context"

// Well-known source names used as provenance tags.
const (
	NameTechnologyAPI = "technology-api"
	NameRankings      = "rankings"
	NameCurated       = "curated"
)

// CandidateDomain is a domain produced by a source, scoped to one discovery
// run.
type CandidateDomain struct {
	Domain string `json:"domain"`
	Source string `json:"source"`
	Rank   int    `json:"rank,omitempty"` // 1 = most trafficked; 0 = unranked
}

// TechnologyFact is one technology detected on a domain by the lookup
// provider.
type TechnologyFact struct {
	Domain     string  `json:"domain"`
	Technology string  `json:"technology"`
	Category   string  `json:"category,omitempty"`
	Version    string  `json:"version,omitempty"`
	Confidence float64 `json:"confidence"` // [0,1]
}

// Source is a single discovery data provider.
//
// ListCandidates returns up to limit candidate domains for the given
// technology. Implementations return partial results alongside a non-nil
// error when the provider failed; the orchestrator records the error and
// continues with whatever was returned.
type Source interface {
	Name() string
	ListCandidates(ctx context.Context, technology string, limit int) ([]CandidateDomain, error)
}
