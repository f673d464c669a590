package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClaimStatus is the lifecycle state of a domain ownership claim.
// Progression is strictly forward: pending → verified → approved/rejected,
// with a direct pending → rejected path for administrative rejection.
type ClaimStatus string

const (
	ClaimPending  ClaimStatus = "pending"
	ClaimVerified ClaimStatus = "verified"
	ClaimApproved ClaimStatus = "approved"
	ClaimRejected ClaimStatus = "rejected"
)

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimPending, ClaimVerified, ClaimApproved, ClaimRejected:
		return true
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func (s ClaimStatus) Terminal() bool {
	return s == ClaimApproved || s == ClaimRejected
}

// TXTChallenge is the DNS TXT challenge attached to a claim. Exactly one
// active (unexpired, unverified) challenge exists per claim; submitting a new
// claim for the domain mints a fresh one.
type TXTChallenge struct {
	Token       string     `json:"-"` // never serialized to callers beyond RecordValue
	RecordName  string     `json:"record_name"`
	RecordValue string     `json:"record_value"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Verified    bool       `json:"verified"`
	VerifiedAt  *time.Time `json:"verified_at,omitempty"`
}

// Expired reports whether the challenge can no longer be verified.
func (c *TXTChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Claim is a domain ownership claim submitted by a prospective seller.
type Claim struct {
	ID             uuid.UUID       `json:"id"`
	Domain         string          `json:"domain"`
	Email          string          `json:"email"`
	ContactName    string          `json:"contact_name"`
	Organization   string          `json:"organization,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	Currency       string          `json:"currency"`
	Status         ClaimStatus     `json:"status"`
	Challenge      TXTChallenge    `json:"challenge"`
	RejectReason   string          `json:"reject_reason,omitempty"`
	SubmittedAt    time.Time       `json:"submitted_at"`
	VerifiedAt     *time.Time      `json:"verified_at,omitempty"`
	ApprovedAt     *time.Time      `json:"approved_at,omitempty"`
	RejectedAt     *time.Time      `json:"rejected_at,omitempty"`
}

// Guidance is display-oriented, status-derived next-step information.
type Guidance struct {
	CurrentStep string   `json:"current_step"`
	NextSteps   []string `json:"next_steps"`
	CanRetry    bool     `json:"can_retry"`
}

// GuidanceFor maps a claim status to user-facing guidance. Pure function,
// no side effects.
func GuidanceFor(status ClaimStatus) Guidance {
	switch status {
	case ClaimPending:
		return Guidance{
			CurrentStep: "Awaiting DNS verification",
			NextSteps: []string{
				"Publish the TXT record shown in your claim instructions",
				"Wait a few minutes for DNS propagation",
				"Trigger verification for this claim",
			},
			CanRetry: true,
		}
	case ClaimVerified:
		return Guidance{
			CurrentStep: "Domain ownership verified, awaiting review",
			NextSteps: []string{
				"Our team is reviewing your claim",
				"You will be notified by email once a decision is made",
			},
			CanRetry: false,
		}
	case ClaimApproved:
		return Guidance{
			CurrentStep: "Claim approved and domain listed",
			NextSteps: []string{
				"Your domain is published on the marketplace",
				"You may remove the verification TXT record",
			},
			CanRetry: false,
		}
	case ClaimRejected:
		return Guidance{
			CurrentStep: "Claim rejected",
			NextSteps: []string{
				"Review the rejection reason",
				"You may submit a new claim for this domain",
			},
			CanRetry: true,
		}
	default:
		return Guidance{CurrentStep: "Unknown status"}
	}
}
