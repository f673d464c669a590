package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paycrawl/paycrawl/internal/market/model"
)

// MemoryClaimRepository is an in-memory, thread-safe claim store. It mirrors
// ClaimRepository's behavior for tests and single-process deployments that
// do not require durable persistence.
type MemoryClaimRepository struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*model.Claim
}

// NewMemoryClaimRepository creates an empty MemoryClaimRepository.
func NewMemoryClaimRepository() *MemoryClaimRepository {
	return &MemoryClaimRepository{rows: make(map[uuid.UUID]*model.Claim)}
}

// Create implements the claim store.
func (r *MemoryClaimRepository) Create(_ context.Context, c *model.Claim) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c.ID = uuid.New()
	c.SubmittedAt = time.Now().UTC()
	cp := *c
	r.rows[c.ID] = &cp
	return nil
}

// GetByID implements the claim store.
func (r *MemoryClaimRepository) GetByID(_ context.Context, id uuid.UUID) (*model.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.rows[id]
	if !ok {
		return nil, ErrClaimNotFound
	}
	cp := *c
	return &cp, nil
}

// FindActiveByDomain implements the claim store.
func (r *MemoryClaimRepository) FindActiveByDomain(_ context.Context, domain string) (*model.Claim, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *model.Claim
	for _, c := range r.rows {
		if c.Domain != domain {
			continue
		}
		switch c.Status {
		case model.ClaimPending, model.ClaimVerified, model.ClaimApproved:
			if latest == nil || c.SubmittedAt.After(latest.SubmittedAt) {
				latest = c
			}
		}
	}
	if latest == nil {
		return nil, ErrClaimNotFound
	}
	cp := *latest
	return &cp, nil
}

// MarkVerified implements the claim store.
func (r *MemoryClaimRepository) MarkVerified(_ context.Context, id uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrClaimNotFound
	}
	c.Status = model.ClaimVerified
	c.Challenge.Verified = true
	at = at.UTC()
	c.Challenge.VerifiedAt = &at
	c.VerifiedAt = &at
	return nil
}

// UpdateStatus implements the claim store.
func (r *MemoryClaimRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.ClaimStatus, rejectReason string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[id]
	if !ok {
		return ErrClaimNotFound
	}
	at = at.UTC()
	c.Status = status
	switch status {
	case model.ClaimApproved:
		c.ApprovedAt = &at
	case model.ClaimRejected:
		c.RejectedAt = &at
		c.RejectReason = rejectReason
	}
	return nil
}

// MemoryDomainRepository is the in-memory counterpart of DomainRepository.
type MemoryDomainRepository struct {
	mu   sync.RWMutex
	rows map[string]*model.DiscoveredDomain
}

// NewMemoryDomainRepository creates an empty MemoryDomainRepository.
func NewMemoryDomainRepository() *MemoryDomainRepository {
	return &MemoryDomainRepository{rows: make(map[string]*model.DiscoveredDomain)}
}

// UpsertDiscovered implements the domain store.
func (r *MemoryDomainRepository) UpsertDiscovered(_ context.Context, d *model.DiscoveredDomain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()

	if existing, ok := r.rows[d.Domain]; ok {
		if existing.Status != model.DomainDiscovered {
			return nil // never downgrade a published record
		}
		existing.Price = d.Price
		existing.Currency = d.Currency
		existing.Source = d.Source
		existing.UpdatedAt = now
		return nil
	}

	cp := *d
	cp.Status = model.DomainDiscovered
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.rows[d.Domain] = &cp
	return nil
}

// Publish implements the domain store. Idempotent.
func (r *MemoryDomainRepository) Publish(_ context.Context, d *model.DiscoveredDomain) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()

	if existing, ok := r.rows[d.Domain]; ok {
		existing.Status = model.DomainPublished
		existing.Price = d.Price
		existing.Currency = d.Currency
		existing.OwnerEmail = d.OwnerEmail
		existing.Available = true
		existing.UpdatedAt = now
		return nil
	}

	cp := *d
	cp.Status = model.DomainPublished
	cp.Available = true
	cp.CreatedAt = now
	cp.UpdatedAt = now
	r.rows[d.Domain] = &cp
	return nil
}

// GetByDomain implements the domain store.
func (r *MemoryDomainRepository) GetByDomain(_ context.Context, domain string) (*model.DiscoveredDomain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.rows[domain]
	if !ok {
		return nil, ErrDomainNotFound
	}
	cp := *d
	return &cp, nil
}

// ListPublished implements the domain store.
func (r *MemoryDomainRepository) ListPublished(_ context.Context) ([]*model.DiscoveredDomain, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*model.DiscoveredDomain
	for _, d := range r.rows {
		if d.Status == model.DomainPublished {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

// SetAvailability implements the domain store.
func (r *MemoryDomainRepository) SetAvailability(_ context.Context, domain string, available bool, checkedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.rows[domain]
	if !ok {
		return ErrDomainNotFound
	}
	checkedAt = checkedAt.UTC()
	d.Available = available
	d.LastCheckedAt = &checkedAt
	d.UpdatedAt = checkedAt
	return nil
}
