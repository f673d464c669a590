// Package dnsverify implements the DNS TXT challenge used to prove ownership
// of a claimed domain.
//
// The claimant publishes a TXT record at "_<label>.<domain>" whose value is
// an opaque random token. Verification looks the record up through a
// pluggable Resolver and compares quote-stripped answers against the token.
package dnsverify

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// DefaultLabel is the well-known subdomain label reserved for ownership
// verification records.
const DefaultLabel = "verify"

// DefaultTTL is how long a freshly minted challenge stays verifiable.
const DefaultTTL = 24 * time.Hour

// Challenge holds the state for a single domain ownership challenge.
type Challenge struct {
	Domain      string    `json:"domain"`
	Token       string    `json:"token"`
	RecordName  string    `json:"record_name"`  // where the TXT record must be published
	RecordValue string    `json:"record_value"` // exact TXT value (= Token)
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// NewChallenge mints a challenge for domain using the given verification
// label and TTL. Zero values fall back to DefaultLabel / DefaultTTL.
func NewChallenge(domain, label string, ttl time.Duration) (*Challenge, error) {
	if domain == "" {
		return nil, fmt.Errorf("domain must not be empty")
	}
	if label == "" {
		label = DefaultLabel
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	token, err := generateToken()
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	now := time.Now().UTC()
	return &Challenge{
		Domain:      domain,
		Token:       token,
		RecordName:  RecordName(domain, label),
		RecordValue: token,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}, nil
}

// RecordName returns the DNS hostname where the TXT record must be published
// for domain, e.g. "_verify.example.com".
func RecordName(domain, label string) string {
	if label == "" {
		label = DefaultLabel
	}
	return "_" + label + "." + strings.TrimSuffix(domain, ".")
}

// Expired reports whether the challenge can no longer be verified.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Match scans TXT answers for the challenge value. DNS TXT encoding may wrap
// values in quotes; each answer is quote-stripped before comparison. The
// first answer (stripped) is returned for diagnostics even when no answer
// matches.
func (c *Challenge) Match(answers []string) (matched bool, firstActual string) {
	for i, a := range answers {
		v := StripQuotes(a)
		if i == 0 {
			firstActual = v
		}
		if v == c.RecordValue {
			return true, v
		}
	}
	return false, firstActual
}

// StripQuotes removes one layer of surrounding double quotes, as added by
// some DNS TXT encodings and resolvers.
func StripQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}

// generateToken produces a 32-character hex token from a CSPRNG.
func generateToken() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
