// Package repository provides persistence for claims and domain records,
// backed by Postgres with in-memory mirrors for tests and single-process
// deployments.
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paycrawl/paycrawl/internal/market/model"
)

// Sentinel errors shared by the Postgres and memory implementations.
var (
	ErrClaimNotFound  = errors.New("claim not found")
	ErrDomainNotFound = errors.New("domain record not found")
)

const claimColumns = `id, domain, email, contact_name, organization, reason,
	requested_price, currency, status,
	challenge_token, challenge_record_name, challenge_record_value,
	challenge_created_at, challenge_expires_at, challenge_verified, challenge_verified_at,
	reject_reason, submitted_at, verified_at, approved_at, rejected_at`

// ClaimRepository persists claims (with their embedded TXT challenge) in
// Postgres.
type ClaimRepository struct {
	db *pgxpool.Pool
}

// NewClaimRepository creates a ClaimRepository.
func NewClaimRepository(db *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create inserts a new claim, assigning its ID and submission time.
func (r *ClaimRepository) Create(ctx context.Context, c *model.Claim) error {
	c.ID = uuid.New()
	c.SubmittedAt = time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO claims (`+claimColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		c.ID, c.Domain, c.Email, c.ContactName, c.Organization, c.Reason,
		c.RequestedPrice, c.Currency, c.Status,
		c.Challenge.Token, c.Challenge.RecordName, c.Challenge.RecordValue,
		c.Challenge.CreatedAt, c.Challenge.ExpiresAt, c.Challenge.Verified, c.Challenge.VerifiedAt,
		c.RejectReason, c.SubmittedAt, c.VerifiedAt, c.ApprovedAt, c.RejectedAt,
	)
	if err != nil {
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

// GetByID returns a single claim by its UUID.
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Claim, error) {
	row := r.db.QueryRow(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("get claim: %w", err)
	}
	return c, nil
}

// FindActiveByDomain returns the most recent claim for domain whose status
// still blocks a new submission (pending, verified or approved), or
// ErrClaimNotFound.
func (r *ClaimRepository) FindActiveByDomain(ctx context.Context, domain string) (*model.Claim, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+claimColumns+` FROM claims
		 WHERE domain = $1 AND status IN ($2, $3, $4)
		 ORDER BY submitted_at DESC
		 LIMIT 1`,
		domain, model.ClaimPending, model.ClaimVerified, model.ClaimApproved,
	)
	c, err := scanClaim(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClaimNotFound
		}
		return nil, fmt.Errorf("find active claim: %w", err)
	}
	return c, nil
}

// MarkVerified records a successful challenge verification: challenge and
// claim flip to verified with the given timestamp, in one atomic update.
func (r *ClaimRepository) MarkVerified(ctx context.Context, id uuid.UUID, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE claims
		 SET status = $2, challenge_verified = true,
		     challenge_verified_at = $3, verified_at = $3
		 WHERE id = $1`,
		id, model.ClaimVerified, at,
	)
	if err != nil {
		return fmt.Errorf("mark claim verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// UpdateStatus transitions the claim to status, recording the decision
// timestamp and, for rejections, the reason.
func (r *ClaimRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, rejectReason string, at time.Time) error {
	var (
		tag pgconn.CommandTag
		err error
	)
	switch status {
	case model.ClaimApproved:
		tag, err = r.db.Exec(ctx,
			`UPDATE claims SET status = $2, approved_at = $3 WHERE id = $1`,
			id, status, at,
		)
	case model.ClaimRejected:
		tag, err = r.db.Exec(ctx,
			`UPDATE claims SET status = $2, rejected_at = $3, reject_reason = $4 WHERE id = $1`,
			id, status, at, rejectReason,
		)
	default:
		return fmt.Errorf("unsupported status update to %q", status)
	}
	if err != nil {
		return fmt.Errorf("update claim status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrClaimNotFound
	}
	return nil
}

// rowScanner is satisfied by pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanClaim(row rowScanner) (*model.Claim, error) {
	c := &model.Claim{}
	err := row.Scan(
		&c.ID, &c.Domain, &c.Email, &c.ContactName, &c.Organization, &c.Reason,
		&c.RequestedPrice, &c.Currency, &c.Status,
		&c.Challenge.Token, &c.Challenge.RecordName, &c.Challenge.RecordValue,
		&c.Challenge.CreatedAt, &c.Challenge.ExpiresAt, &c.Challenge.Verified, &c.Challenge.VerifiedAt,
		&c.RejectReason, &c.SubmittedAt, &c.VerifiedAt, &c.ApprovedAt, &c.RejectedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}
