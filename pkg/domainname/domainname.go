// Package domainname provides normalization and validation for bare domain
// names as used throughout the platform.
//
// A normalized domain is lower-case, carries no URL scheme, path, port or
// trailing dot, and contains at least one dot-separated label pair:
//
//	"HTTPS://Example.COM/pricing" → "example.com"
//	"blog.example.co.uk."         → "blog.example.co.uk"
package domainname

import (
	"fmt"
	"strings"
)

// Normalize converts raw user or source input into a canonical domain name.
// It strips any scheme, path, query, port and trailing dot, and lower-cases
// the result. An error is returned when nothing domain-shaped remains.
func Normalize(raw string) (string, error) {
	d := strings.TrimSpace(strings.ToLower(raw))
	if d == "" {
		return "", fmt.Errorf("domain must not be empty")
	}

	// Strip scheme if present ("https://example.com").
	if i := strings.Index(d, "://"); i >= 0 {
		d = d[i+3:]
	}

	// Strip path, query and fragment.
	for _, sep := range []string{"/", "?", "#"} {
		if i := strings.Index(d, sep); i >= 0 {
			d = d[:i]
		}
	}

	// Strip port and trailing dot.
	if i := strings.LastIndex(d, ":"); i >= 0 {
		d = d[:i]
	}
	d = strings.TrimSuffix(d, ".")

	if err := Validate(d); err != nil {
		return "", err
	}
	return d, nil
}

// Validate checks that d looks like a registrable domain name. It does not
// consult the public suffix list; a single dot is the minimum requirement.
func Validate(d string) error {
	if d == "" {
		return fmt.Errorf("domain must not be empty")
	}
	if len(d) > 253 {
		return fmt.Errorf("domain %q exceeds 253 characters", d)
	}
	if !strings.Contains(d, ".") {
		return fmt.Errorf("domain %q must contain at least one dot", d)
	}
	if strings.ContainsAny(d, " \t@\\?#/") {
		return fmt.Errorf("domain %q contains invalid characters", d)
	}

	for _, label := range strings.Split(d, ".") {
		if label == "" {
			return fmt.Errorf("domain %q contains an empty label", d)
		}
		if len(label) > 63 {
			return fmt.Errorf("domain label %q exceeds 63 characters", label)
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("domain label %q must not start or end with a hyphen", label)
		}
	}
	return nil
}

// MustNormalize normalizes a domain and panics on error. Useful in tests
// and static tables.
func MustNormalize(raw string) string {
	d, err := Normalize(raw)
	if err != nil {
		panic(err)
	}
	return d
}
