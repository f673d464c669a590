package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/dnsverify"
	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/market/repository"
)

// resolverFunc adapts a function to dnsverify.Resolver.
type resolverFunc func(ctx context.Context, name string) ([]string, error)

func (f resolverFunc) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f(ctx, name)
}

type countingResolver struct {
	calls   int
	answers []string
	err     error
}

func (r *countingResolver) LookupTXT(_ context.Context, _ string) ([]string, error) {
	r.calls++
	return r.answers, r.err
}

func newTestService(resolver interface {
	LookupTXT(ctx context.Context, name string) ([]string, error)
}) (*ClaimService, *repository.MemoryClaimRepository, *repository.MemoryDomainRepository) {
	claims := repository.NewMemoryClaimRepository()
	domains := repository.NewMemoryDomainRepository()
	svc := NewClaimService(claims, domains, resolver, nil, zap.NewNop())
	return svc, claims, domains
}

func validRequest(domain string) CreateClaimRequest {
	return CreateClaimRequest{
		Domain:         domain,
		Email:          "owner@" + domain,
		ContactName:    "Site Owner",
		RequestedPrice: decimal.RequireFromString("0.05"),
	}
}

func TestCreateClaim_mintsChallengeAtVerifyLabel(t *testing.T) {
	svc, _, _ := newTestService(resolverFunc(func(context.Context, string) ([]string, error) {
		t.Fatal("resolver must not be called during claim creation")
		return nil, nil
	}))

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	claim := res.Claim

	if claim.Status != model.ClaimPending {
		t.Errorf("status = %q, want pending", claim.Status)
	}
	if claim.Challenge.RecordName != "_verify.example.com" {
		t.Errorf("record name = %q, want _verify.example.com", claim.Challenge.RecordName)
	}
	if len(claim.Challenge.RecordValue) != 32 {
		t.Errorf("record value length = %d, want 32", len(claim.Challenge.RecordValue))
	}
	if claim.Currency != "USD" {
		t.Errorf("currency defaulted to %q, want USD", claim.Currency)
	}
	if got := claim.Challenge.ExpiresAt.Sub(claim.Challenge.CreatedAt); got != 24*time.Hour {
		t.Errorf("challenge window = %v, want 24h", got)
	}
	if len(res.Instructions) == 0 {
		t.Error("expected setup instructions")
	}
}

func TestCreateClaim_validation(t *testing.T) {
	svc, _, _ := newTestService(&countingResolver{})

	cases := []struct {
		name  string
		mut   func(*CreateClaimRequest)
		field string
	}{
		{"bad domain", func(r *CreateClaimRequest) { r.Domain = "not a domain" }, "domain"},
		{"bad email", func(r *CreateClaimRequest) { r.Email = "nope" }, "email"},
		{"missing contact", func(r *CreateClaimRequest) { r.ContactName = "  " }, "contact_name"},
		{"negative price", func(r *CreateClaimRequest) { r.RequestedPrice = decimal.RequireFromString("-1") }, "requested_price"},
		{"bad currency", func(r *CreateClaimRequest) { r.Currency = "DOLLARS" }, "currency"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validRequest("example.com")
			tc.mut(&req)
			_, err := svc.CreateClaim(context.Background(), req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("err = %v, want ValidationError", err)
			}
			if verr.Field != tc.field {
				t.Errorf("field = %q, want %q", verr.Field, tc.field)
			}
		})
	}
}

func TestCreateClaim_rejectsDuplicateActiveClaim(t *testing.T) {
	svc, _, _ := newTestService(&countingResolver{})

	if _, err := svc.CreateClaim(context.Background(), validRequest("example.com")); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	_, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	var cerr *ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if cerr.Status != model.ClaimPending {
		t.Errorf("conflicting status = %q, want pending", cerr.Status)
	}
}

func TestCreateClaim_allowsReclaimAfterRejection(t *testing.T) {
	resolver := &countingResolver{}
	svc, _, _ := newTestService(resolver)

	first, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("first claim: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), first.Claim.ID, model.ClaimRejected, "insufficient detail"); err != nil {
		t.Fatalf("reject: %v", err)
	}

	second, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("claim after rejection: %v", err)
	}
	if second.Claim.Challenge.Token == first.Claim.Challenge.Token {
		t.Error("new claim reused the previous challenge token")
	}
}

func TestVerifyClaim_success(t *testing.T) {
	resolver := &countingResolver{}
	svc, claims, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	resolver.answers = []string{"unrelated-record", res.Claim.Challenge.RecordValue}

	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if !vr.Verified || vr.Outcome != VerifyOutcomeVerified {
		t.Fatalf("result = %+v, want verified", vr)
	}

	stored, err := claims.GetByID(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != model.ClaimVerified {
		t.Errorf("status = %q, want verified", stored.Status)
	}
	if stored.VerifiedAt == nil {
		t.Error("VerifiedAt not recorded")
	}
}

func TestVerifyClaim_acceptsQuotedAnswer(t *testing.T) {
	resolver := &countingResolver{}
	svc, _, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	resolver.answers = []string{`"` + res.Claim.Challenge.RecordValue + `"`}

	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if !vr.Verified {
		t.Errorf("quoted TXT answer not accepted: %+v", vr)
	}
}

func TestVerifyClaim_valueMismatchSurfacesBothValues(t *testing.T) {
	resolver := &countingResolver{answers: []string{"wrong-token"}}
	svc, claims, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if vr.Verified || vr.Outcome != VerifyOutcomeValueMismatch {
		t.Fatalf("result = %+v, want value_mismatch", vr)
	}
	if vr.ExpectedValue != res.Claim.Challenge.RecordValue {
		t.Errorf("expected value = %q, want %q", vr.ExpectedValue, res.Claim.Challenge.RecordValue)
	}
	if vr.ActualValue != "wrong-token" {
		t.Errorf("actual value = %q, want wrong-token", vr.ActualValue)
	}

	stored, _ := claims.GetByID(context.Background(), res.Claim.ID)
	if stored.Status != model.ClaimPending {
		t.Errorf("status = %q, want pending after mismatch", stored.Status)
	}
}

func TestVerifyClaim_recordNotFoundVsLookupFailure(t *testing.T) {
	t.Run("no records", func(t *testing.T) {
		svc, _, _ := newTestService(resolverFunc(func(context.Context, string) ([]string, error) {
			return nil, dnsverify.ErrNoRecords
		}))
		res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
		if err != nil {
			t.Fatalf("CreateClaim: %v", err)
		}
		vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
		if err != nil {
			t.Fatalf("VerifyClaim: %v", err)
		}
		if vr.Outcome != VerifyOutcomeRecordNotFound {
			t.Errorf("outcome = %q, want record_not_found", vr.Outcome)
		}
		if vr.ExpectedValue == "" {
			t.Error("expected value missing from result")
		}
	})

	t.Run("transport failure", func(t *testing.T) {
		svc, _, _ := newTestService(resolverFunc(func(context.Context, string) ([]string, error) {
			return nil, errors.New("connection refused")
		}))
		res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
		if err != nil {
			t.Fatalf("CreateClaim: %v", err)
		}
		vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
		if err != nil {
			t.Fatalf("VerifyClaim: %v", err)
		}
		if vr.Outcome != VerifyOutcomeLookupFailed {
			t.Errorf("outcome = %q, want lookup_failed", vr.Outcome)
		}
	})
}

func TestVerifyClaim_expiredChallenge(t *testing.T) {
	resolver := &countingResolver{}
	svc, claims, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	svc.SetClock(func() time.Time { return time.Now().Add(25 * time.Hour) })

	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if vr.Verified || vr.Outcome != VerifyOutcomeExpired {
		t.Fatalf("result = %+v, want challenge_expired", vr)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for expired challenge, want 0", resolver.calls)
	}
	stored, _ := claims.GetByID(context.Background(), res.Claim.ID)
	if stored.Status != model.ClaimPending {
		t.Errorf("status = %q, expiry must not change status", stored.Status)
	}
}

func TestVerifyClaim_rejectedClaimStaysRejected(t *testing.T) {
	resolver := &countingResolver{}
	svc, claims, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimRejected, "not the owner"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}

	// The TXT record now matches, but the claim is closed.
	resolver.answers = []string{res.Claim.Challenge.RecordValue}
	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("VerifyClaim: %v", err)
	}
	if vr.Verified || vr.Outcome != VerifyOutcomeClaimClosed {
		t.Fatalf("result = %+v, want claim_closed", vr)
	}
	if resolver.calls != 0 {
		t.Errorf("resolver called %d times for rejected claim, want 0", resolver.calls)
	}
	stored, _ := claims.GetByID(context.Background(), res.Claim.ID)
	if stored.Status != model.ClaimRejected {
		t.Errorf("status = %q, rejection is terminal", stored.Status)
	}
}

func TestVerifyClaim_idempotent(t *testing.T) {
	resolver := &countingResolver{}
	svc, claims, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	resolver.answers = []string{res.Claim.Challenge.RecordValue}

	if _, err := svc.VerifyClaim(context.Background(), res.Claim.ID); err != nil {
		t.Fatalf("first verify: %v", err)
	}
	first, _ := claims.GetByID(context.Background(), res.Claim.ID)

	vr, err := svc.VerifyClaim(context.Background(), res.Claim.ID)
	if err != nil {
		t.Fatalf("second verify: %v", err)
	}
	if !vr.Verified {
		t.Error("second verify did not report verified")
	}
	if resolver.calls != 1 {
		t.Errorf("resolver called %d times, want 1 (second verify short-circuits)", resolver.calls)
	}
	second, _ := claims.GetByID(context.Background(), res.Claim.ID)
	if !second.VerifiedAt.Equal(*first.VerifiedAt) {
		t.Errorf("VerifiedAt changed on re-verify: %v -> %v", first.VerifiedAt, second.VerifiedAt)
	}
}

func TestVerifyClaim_unknownClaim(t *testing.T) {
	svc, _, _ := newTestService(&countingResolver{})
	_, err := svc.VerifyClaim(context.Background(), uuid.New())
	if !errors.Is(err, ErrClaimNotFound) {
		t.Errorf("err = %v, want ErrClaimNotFound", err)
	}
}

func TestUpdateStatus_approvePublishesDomain(t *testing.T) {
	resolver := &countingResolver{}
	svc, _, domains := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	resolver.answers = []string{res.Claim.Challenge.RecordValue}
	if _, err := svc.VerifyClaim(context.Background(), res.Claim.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}

	claim, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimApproved, "")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if claim.Status != model.ClaimApproved {
		t.Errorf("status = %q, want approved", claim.Status)
	}
	if claim.ApprovedAt == nil {
		t.Error("ApprovedAt not recorded")
	}

	rec, err := domains.GetByDomain(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("published record missing: %v", err)
	}
	if rec.Status != model.DomainPublished {
		t.Errorf("domain status = %q, want published", rec.Status)
	}
	if !rec.Price.Equal(decimal.RequireFromString("0.05")) || rec.Currency != "USD" {
		t.Errorf("published price = %s %s, want 0.05 USD", rec.Price, rec.Currency)
	}
	if rec.OwnerEmail != res.Claim.Email {
		t.Errorf("owner email = %q, want %q", rec.OwnerEmail, res.Claim.Email)
	}
}

func TestUpdateStatus_doubleApproveIsIdempotent(t *testing.T) {
	resolver := &countingResolver{}
	svc, _, domains := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}
	resolver.answers = []string{res.Claim.Challenge.RecordValue}
	if _, err := svc.VerifyClaim(context.Background(), res.Claim.ID); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimApproved, ""); err != nil {
		t.Fatalf("first approve: %v", err)
	}
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimApproved, ""); err != nil {
		t.Fatalf("second approve: %v", err)
	}

	published, err := domains.ListPublished(context.Background())
	if err != nil {
		t.Fatalf("ListPublished: %v", err)
	}
	if len(published) != 1 {
		t.Errorf("published records = %d, want 1", len(published))
	}
}

func TestUpdateStatus_transitions(t *testing.T) {
	resolver := &countingResolver{}
	svc, _, _ := newTestService(resolver)

	res, err := svc.CreateClaim(context.Background(), validRequest("example.com"))
	if err != nil {
		t.Fatalf("CreateClaim: %v", err)
	}

	// Approving an unverified claim is forbidden.
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("approve pending: err = %v, want ErrInvalidTransition", err)
	}

	// Rejecting a pending claim is allowed and records the reason.
	claim, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimRejected, "not the registrant")
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if claim.Status != model.ClaimRejected || claim.RejectReason != "not the registrant" {
		t.Errorf("rejected claim = status %q reason %q", claim.Status, claim.RejectReason)
	}

	// A rejected claim cannot be approved.
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimApproved, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("approve rejected: err = %v, want ErrInvalidTransition", err)
	}

	// Only approved/rejected are reviewable targets.
	if _, err := svc.UpdateStatus(context.Background(), res.Claim.ID, model.ClaimVerified, ""); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("set verified via review: err = %v, want ErrInvalidTransition", err)
	}
}
