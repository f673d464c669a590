package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/paycrawl/paycrawl/internal/market/model"
)

const domainColumns = `domain, status, price, currency, owner_email, source,
	available, created_at, updated_at, last_checked_at`

// DomainRepository persists marketplace domain records in Postgres.
type DomainRepository struct {
	db *pgxpool.Pool
}

// NewDomainRepository creates a DomainRepository.
func NewDomainRepository(db *pgxpool.Pool) *DomainRepository {
	return &DomainRepository{db: db}
}

// UpsertDiscovered records a domain found by a discovery run. A published
// record is never downgraded: the update only applies while the row is
// still in the discovered state.
func (r *DomainRepository) UpsertDiscovered(ctx context.Context, d *model.DiscoveredDomain) error {
	now := time.Now().UTC()
	d.Status = model.DomainDiscovered
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.db.Exec(ctx,
		`INSERT INTO domains (`+domainColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (domain) DO UPDATE
		 SET price = EXCLUDED.price, currency = EXCLUDED.currency,
		     source = EXCLUDED.source, updated_at = EXCLUDED.updated_at
		 WHERE domains.status = 'discovered'`,
		d.Domain, d.Status, d.Price, d.Currency, d.OwnerEmail, d.Source,
		d.Available, d.CreatedAt, d.UpdatedAt, d.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert discovered domain: %w", err)
	}
	return nil
}

// Publish creates or activates the published record for a domain after an
// approved claim. Idempotent: repeated calls for the same domain leave a
// single published row.
func (r *DomainRepository) Publish(ctx context.Context, d *model.DiscoveredDomain) error {
	now := time.Now().UTC()

	_, err := r.db.Exec(ctx,
		`INSERT INTO domains (`+domainColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (domain) DO UPDATE
		 SET status = $2, price = EXCLUDED.price, currency = EXCLUDED.currency,
		     owner_email = EXCLUDED.owner_email, available = true,
		     updated_at = EXCLUDED.updated_at`,
		d.Domain, model.DomainPublished, d.Price, d.Currency, d.OwnerEmail, d.Source,
		true, now, now, d.LastCheckedAt,
	)
	if err != nil {
		return fmt.Errorf("publish domain: %w", err)
	}
	return nil
}

// GetByDomain returns the record for a single domain.
func (r *DomainRepository) GetByDomain(ctx context.Context, domain string) (*model.DiscoveredDomain, error) {
	row := r.db.QueryRow(ctx, `SELECT `+domainColumns+` FROM domains WHERE domain = $1`, domain)
	d, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDomainNotFound
		}
		return nil, fmt.Errorf("get domain: %w", err)
	}
	return d, nil
}

// ListPublished returns all published domain records.
func (r *DomainRepository) ListPublished(ctx context.Context) ([]*model.DiscoveredDomain, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+domainColumns+` FROM domains WHERE status = $1 ORDER BY domain`,
		model.DomainPublished,
	)
	if err != nil {
		return nil, fmt.Errorf("list published domains: %w", err)
	}
	defer rows.Close()

	var out []*model.DiscoveredDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, fmt.Errorf("scan domain: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// SetAvailability updates a domain's availability flag after a re-probe.
func (r *DomainRepository) SetAvailability(ctx context.Context, domain string, available bool, checkedAt time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE domains SET available = $2, last_checked_at = $3, updated_at = $3
		 WHERE domain = $1`,
		domain, available, checkedAt,
	)
	if err != nil {
		return fmt.Errorf("set domain availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDomainNotFound
	}
	return nil
}

func scanDomain(row rowScanner) (*model.DiscoveredDomain, error) {
	d := &model.DiscoveredDomain{}
	err := row.Scan(
		&d.Domain, &d.Status, &d.Price, &d.Currency, &d.OwnerEmail, &d.Source,
		&d.Available, &d.CreatedAt, &d.UpdatedAt, &d.LastCheckedAt,
	)
	if err != nil {
		return nil, err
	}
	return d, nil
}
