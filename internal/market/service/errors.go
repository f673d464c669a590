package service

import (
	"errors"
	"fmt"

	"github.com/paycrawl/paycrawl/internal/market/model"
)

// Sentinel errors surfaced by the claim service.
var (
	ErrClaimNotFound     = errors.New("claim not found")
	ErrInvalidTransition = errors.New("invalid claim status transition")
)

// ValidationError reports malformed caller input. It halts the operation
// immediately and is never retried internally.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// ConflictError reports that a domain already has a claim whose status
// blocks a new submission. The status is carried so callers can present an
// accurate message for each case.
type ConflictError struct {
	Domain string
	Status model.ClaimStatus
}

func (e *ConflictError) Error() string {
	switch e.Status {
	case model.ClaimPending:
		return fmt.Sprintf("a claim for %s is already pending verification", e.Domain)
	case model.ClaimVerified:
		return fmt.Sprintf("a verified claim for %s is already under review", e.Domain)
	case model.ClaimApproved:
		return fmt.Sprintf("%s has already been claimed and approved", e.Domain)
	default:
		return fmt.Sprintf("a conflicting claim exists for %s", e.Domain)
	}
}
