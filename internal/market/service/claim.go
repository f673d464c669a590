// Package service implements the domain ownership claim workflow: claim
// submission, DNS TXT verification, and the administrative review path.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/dnsverify"
	"github.com/paycrawl/paycrawl/internal/email"
	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/market/repository"
	"github.com/paycrawl/paycrawl/pkg/domainname"
)

// claimStore is the storage interface required by ClaimService.
// *repository.ClaimRepository and *repository.MemoryClaimRepository satisfy
// it.
type claimStore interface {
	Create(ctx context.Context, c *model.Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Claim, error)
	FindActiveByDomain(ctx context.Context, domain string) (*model.Claim, error)
	MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, rejectReason string, at time.Time) error
}

// domainPublisher creates the published marketplace record for an approved
// claim. The implementation must be idempotent per domain.
type domainPublisher interface {
	Publish(ctx context.Context, d *model.DiscoveredDomain) error
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9.!#$%&'*+/=?^_` + "`" + `{|}~-]+@[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(?:\.[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)+$`)

// ClaimService manages the domain ownership claim lifecycle.
type ClaimService struct {
	claims   claimStore
	domains  domainPublisher
	resolver dnsverify.Resolver
	mailer   email.Sender
	logger   *zap.Logger

	label string        // verification subdomain label
	ttl   time.Duration // challenge TTL
	now   func() time.Time
}

// NewClaimService creates a ClaimService. domains may be nil when approval
// should not publish records (e.g. in tooling); mailer may be an
// email.NoopSender.
func NewClaimService(claims claimStore, domains domainPublisher, resolver dnsverify.Resolver, mailer email.Sender, logger *zap.Logger) *ClaimService {
	return &ClaimService{
		claims:   claims,
		domains:  domains,
		resolver: resolver,
		mailer:   mailer,
		logger:   logger,
		label:    dnsverify.DefaultLabel,
		ttl:      dnsverify.DefaultTTL,
		now:      time.Now,
	}
}

// SetVerificationLabel overrides the DNS label used in challenge record
// names (record name becomes "_<label>.<domain>").
func (s *ClaimService) SetVerificationLabel(label string) {
	if label != "" {
		s.label = label
	}
}

// SetChallengeTTL overrides the challenge expiry window.
func (s *ClaimService) SetChallengeTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// SetClock overrides the time source. Tests only.
func (s *ClaimService) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// CreateClaimRequest is the input for CreateClaim.
type CreateClaimRequest struct {
	Domain         string          `json:"domain"`
	Email          string          `json:"email"`
	ContactName    string          `json:"contact_name"`
	Organization   string          `json:"organization,omitempty"`
	Reason         string          `json:"reason,omitempty"`
	RequestedPrice decimal.Decimal `json:"requested_price"`
	Currency       string          `json:"currency,omitempty"`
}

// CreateClaimResult is the outcome of a successful claim submission.
type CreateClaimResult struct {
	Claim        *model.Claim `json:"claim"`
	Instructions []string     `json:"instructions"`
}

// CreateClaim validates the request, rejects duplicates, mints a fresh TXT
// challenge and persists the claim in pending state. A fresh challenge is
// minted on every new claim; prior challenges for the domain are never
// reused.
func (s *ClaimService) CreateClaim(ctx context.Context, req CreateClaimRequest) (*CreateClaimResult, error) {
	domain, err := domainname.Normalize(req.Domain)
	if err != nil {
		return nil, &ValidationError{Field: "domain", Msg: err.Error()}
	}
	if req.Email == "" || !emailPattern.MatchString(req.Email) {
		return nil, &ValidationError{Field: "email", Msg: "a valid email address is required"}
	}
	if strings.TrimSpace(req.ContactName) == "" {
		return nil, &ValidationError{Field: "contact_name", Msg: "contact name is required"}
	}
	if req.RequestedPrice.IsNegative() {
		return nil, &ValidationError{Field: "requested_price", Msg: "price must not be negative"}
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "USD"
	}
	if len(currency) != 3 {
		return nil, &ValidationError{Field: "currency", Msg: "currency must be a 3-letter ISO 4217 code"}
	}

	// A domain with a live claim cannot be claimed again. Checked before any
	// DNS or network work.
	if existing, err := s.claims.FindActiveByDomain(ctx, domain); err == nil {
		return nil, &ConflictError{Domain: domain, Status: existing.Status}
	} else if !errors.Is(err, repository.ErrClaimNotFound) {
		return nil, fmt.Errorf("check existing claims: %w", err)
	}

	raw, err := dnsverify.NewChallenge(domain, s.label, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("generate challenge: %w", err)
	}

	claim := &model.Claim{
		Domain:         domain,
		Email:          req.Email,
		ContactName:    strings.TrimSpace(req.ContactName),
		Organization:   strings.TrimSpace(req.Organization),
		Reason:         strings.TrimSpace(req.Reason),
		RequestedPrice: req.RequestedPrice,
		Currency:       currency,
		Status:         model.ClaimPending,
		Challenge: model.TXTChallenge{
			Token:       raw.Token,
			RecordName:  raw.RecordName,
			RecordValue: raw.RecordValue,
			CreatedAt:   raw.CreatedAt,
			ExpiresAt:   raw.ExpiresAt,
		},
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		return nil, fmt.Errorf("persist claim: %w", err)
	}

	instructions := setupInstructions(claim)
	s.sendClaimEmail(ctx, claim, "Verify your domain "+claim.Domain,
		"Thanks for claiming "+claim.Domain+" on the pay-per-crawl marketplace.\n\n"+
			strings.Join(instructions, "\n")+
			"\n\nThe record expires at "+claim.Challenge.ExpiresAt.Format(time.RFC3339)+".",
	)

	s.logger.Info("claim created",
		zap.String("claim_id", claim.ID.String()),
		zap.String("domain", claim.Domain),
		zap.String("record_name", claim.Challenge.RecordName),
		zap.Time("expires_at", claim.Challenge.ExpiresAt),
	)
	return &CreateClaimResult{Claim: claim, Instructions: instructions}, nil
}

// Verify outcome codes.
const (
	VerifyOutcomeVerified       = "verified"
	VerifyOutcomeClaimClosed    = "claim_closed"
	VerifyOutcomeExpired        = "challenge_expired"
	VerifyOutcomeLookupFailed   = "lookup_failed"
	VerifyOutcomeRecordNotFound = "record_not_found"
	VerifyOutcomeValueMismatch  = "value_mismatch"
)

// VerifyResult is the structured outcome of a verification attempt. DNS
// outcomes are data, not Go errors: only an unknown claim id or a store
// failure makes VerifyClaim return an error.
type VerifyResult struct {
	Verified      bool     `json:"verified"`
	Outcome       string   `json:"outcome"`
	Error         string   `json:"error,omitempty"`
	ExpectedValue string   `json:"expected_value,omitempty"`
	ActualValue   string   `json:"actual_value,omitempty"`
	NextSteps     []string `json:"next_steps"`
}

// VerifyClaim performs the DNS TXT lookup for the claim's challenge and, on
// a match, transitions the claim to verified. Safe to call repeatedly: an
// already-verified claim returns its current state without touching the
// recorded verification time.
func (s *ClaimService) VerifyClaim(ctx context.Context, id uuid.UUID) (*VerifyResult, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}

	// Rejection is terminal. A matching TXT record must never pull a
	// rejected claim back into the review queue, so this is checked before
	// any DNS work.
	if claim.Status == model.ClaimRejected {
		return &VerifyResult{
			Verified: false,
			Outcome:  VerifyOutcomeClaimClosed,
			Error:    "this claim was rejected and can no longer be verified; submit a new claim to start over",
			NextSteps: []string{
				"Submit a new claim for " + claim.Domain,
			},
		}, nil
	}

	if claim.Challenge.Verified {
		return &VerifyResult{
			Verified:  true,
			Outcome:   VerifyOutcomeVerified,
			NextSteps: model.GuidanceFor(claim.Status).NextSteps,
		}, nil
	}

	now := s.now().UTC()
	if claim.Challenge.Expired(now) {
		return &VerifyResult{
			Verified: false,
			Outcome:  VerifyOutcomeExpired,
			Error:    "the verification challenge has expired; submit a new claim to receive a fresh TXT record",
			NextSteps: []string{
				"Submit a new claim for " + claim.Domain,
				"Publish the new TXT record within its validity window",
			},
		}, nil
	}

	answers, err := s.resolver.LookupTXT(ctx, claim.Challenge.RecordName)
	if err != nil {
		if errors.Is(err, dnsverify.ErrNoRecords) {
			return &VerifyResult{
				Verified:      false,
				Outcome:       VerifyOutcomeRecordNotFound,
				Error:         "no TXT record found at " + claim.Challenge.RecordName,
				ExpectedValue: claim.Challenge.RecordValue,
				NextSteps: []string{
					"Publish a TXT record at " + claim.Challenge.RecordName,
					"Allow a few minutes for DNS propagation, then retry",
				},
			}, nil
		}
		// Resolver transport failure: distinct from a missing record so the
		// caller retries later instead of treating it as permanent.
		s.logger.Warn("DNS lookup failed during verification",
			zap.String("claim_id", id.String()),
			zap.String("record_name", claim.Challenge.RecordName),
			zap.Error(err),
		)
		return &VerifyResult{
			Verified:  false,
			Outcome:   VerifyOutcomeLookupFailed,
			Error:     "temporary DNS resolution problem; try again in a few minutes",
			NextSteps: []string{"Retry verification shortly"},
		}, nil
	}

	raw := &dnsverify.Challenge{
		Domain:      claim.Domain,
		Token:       claim.Challenge.Token,
		RecordName:  claim.Challenge.RecordName,
		RecordValue: claim.Challenge.RecordValue,
		ExpiresAt:   claim.Challenge.ExpiresAt,
	}
	matched, actual := raw.Match(answers)
	if !matched {
		return &VerifyResult{
			Verified:      false,
			Outcome:       VerifyOutcomeValueMismatch,
			Error:         "the published TXT record does not match the expected challenge value",
			ExpectedValue: claim.Challenge.RecordValue,
			ActualValue:   actual,
			NextSteps: []string{
				"Update the TXT record at " + claim.Challenge.RecordName + " to the expected value",
				"Retry verification after DNS propagation",
			},
		}, nil
	}

	if err := s.claims.MarkVerified(ctx, id, now); err != nil {
		return nil, fmt.Errorf("mark claim verified: %w", err)
	}

	s.sendClaimEmail(ctx, claim, "Domain "+claim.Domain+" verified",
		"Ownership of "+claim.Domain+" has been verified. Your claim is now under review; "+
			"you will hear from us once a decision is made.",
	)
	s.logger.Info("claim verified",
		zap.String("claim_id", id.String()),
		zap.String("domain", claim.Domain),
	)

	return &VerifyResult{
		Verified:  true,
		Outcome:   VerifyOutcomeVerified,
		NextSteps: model.GuidanceFor(model.ClaimVerified).NextSteps,
	}, nil
}

// GetClaim returns a claim together with its status-derived guidance.
func (s *ClaimService) GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, model.Guidance, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return nil, model.Guidance{}, ErrClaimNotFound
		}
		return nil, model.Guidance{}, fmt.Errorf("get claim: %w", err)
	}
	return claim, model.GuidanceFor(claim.Status), nil
}

// UpdateStatus is the administrative review path. Allowed transitions:
// verified → approved, and pending/verified → rejected. Repeating the same
// terminal decision is a harmless no-op (approval re-runs the idempotent
// domain publication). First-time approval publishes the domain record.
func (s *ClaimService) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, rejectReason string) (*model.Claim, error) {
	if status != model.ClaimApproved && status != model.ClaimRejected {
		return nil, fmt.Errorf("%w: target status %q is not reviewable", ErrInvalidTransition, status)
	}

	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotFound) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}

	switch status {
	case model.ClaimApproved:
		if claim.Status != model.ClaimVerified && claim.Status != model.ClaimApproved {
			return nil, fmt.Errorf("%w: cannot approve a %s claim", ErrInvalidTransition, claim.Status)
		}
	case model.ClaimRejected:
		if claim.Status == model.ClaimApproved {
			return nil, fmt.Errorf("%w: cannot reject an approved claim", ErrInvalidTransition)
		}
	}

	now := s.now().UTC()
	if claim.Status != status {
		if err := s.claims.UpdateStatus(ctx, id, status, rejectReason, now); err != nil {
			return nil, fmt.Errorf("update claim status: %w", err)
		}
	}

	if status == model.ClaimApproved && s.domains != nil {
		rec := &model.DiscoveredDomain{
			Domain:     claim.Domain,
			Price:      claim.RequestedPrice,
			Currency:   claim.Currency,
			OwnerEmail: claim.Email,
			Source:     "claim",
		}
		if err := s.domains.Publish(ctx, rec); err != nil {
			// The approval is recorded; a retried approve call re-runs this
			// idempotent publication.
			return nil, fmt.Errorf("publish domain record: %w", err)
		}
	}

	switch status {
	case model.ClaimApproved:
		s.sendClaimEmail(ctx, claim, "Claim for "+claim.Domain+" approved",
			"Your claim for "+claim.Domain+" has been approved and the domain is now listed on the marketplace.")
	case model.ClaimRejected:
		msg := "Your claim for " + claim.Domain + " was rejected."
		if rejectReason != "" {
			msg += "\n\nReason: " + rejectReason
		}
		s.sendClaimEmail(ctx, claim, "Claim for "+claim.Domain+" rejected", msg)
	}

	s.logger.Info("claim status updated",
		zap.String("claim_id", id.String()),
		zap.String("domain", claim.Domain),
		zap.String("from", string(claim.Status)),
		zap.String("to", string(status)),
	)
	return s.reload(ctx, id)
}

func (s *ClaimService) reload(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	claim, err := s.claims.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload claim: %w", err)
	}
	return claim, nil
}

// sendClaimEmail delivers a notification best-effort. A delivery failure
// never rolls back the state change that triggered it.
func (s *ClaimService) sendClaimEmail(ctx context.Context, claim *model.Claim, subject, body string) {
	if s.mailer == nil {
		return
	}
	if err := s.mailer.Send(ctx, claim.Email, subject, body); err != nil {
		s.logger.Warn("claim notification email failed",
			zap.String("claim_id", claim.ID.String()),
			zap.String("to", claim.Email),
			zap.Error(err),
		)
	}
}

// setupInstructions renders the human-readable DNS setup steps returned to
// the claimant.
func setupInstructions(claim *model.Claim) []string {
	return []string{
		"Add a DNS record of type TXT to the zone for " + claim.Domain,
		"Record name: " + claim.Challenge.RecordName,
		"Record value: " + claim.Challenge.RecordValue,
		"Then trigger verification for claim " + claim.ID.String(),
	}
}
