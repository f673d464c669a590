package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// DomainStatus describes a domain record's listing state.
type DomainStatus string

const (
	// DomainDiscovered marks a domain found by a discovery run but not yet
	// claimed by its owner.
	DomainDiscovered DomainStatus = "discovered"
	// DomainPublished marks a domain listed on the marketplace after an
	// approved ownership claim.
	DomainPublished DomainStatus = "published"
)

// DiscoveredDomain is the persistent record for a domain known to the
// marketplace, whether found by discovery or published after approval.
type DiscoveredDomain struct {
	Domain        string          `json:"domain"`
	Status        DomainStatus    `json:"status"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	OwnerEmail    string          `json:"owner_email,omitempty"`
	Source        string          `json:"source,omitempty"` // discovery provenance tag
	Available     bool            `json:"available"`        // false after repeated failed re-probes
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	LastCheckedAt *time.Time      `json:"last_checked_at,omitempty"`
}
