package domainname_test

import (
	"testing"

	"github.com/paycrawl/paycrawl/pkg/domainname"
)

func TestNormalize_stripsSchemePathAndCase(t *testing.T) {
	cases := map[string]string{
		"example.com":                      "example.com",
		"EXAMPLE.COM":                      "example.com",
		"https://Example.com/pricing?x=1":  "example.com",
		"http://example.com:8080/":         "example.com",
		"blog.example.co.uk.":              "blog.example.co.uk",
		"  example.com  ":                  "example.com",
		"https://sub.Example.ORG#fragment": "sub.example.org",
	}
	for in, want := range cases {
		got, err := domainname.Normalize(in)
		if err != nil {
			t.Errorf("Normalize(%q): unexpected error %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNormalize_rejectsGarbage(t *testing.T) {
	for _, in := range []string{"", "   ", "localhost", "no spaces.com ok", "a@b.com", "-bad.example.com", "bad-.example.com", "ex..ample.com"} {
		if _, err := domainname.Normalize(in); err == nil {
			t.Errorf("Normalize(%q): expected error, got none", in)
		}
	}
}

func TestValidate_labelLimits(t *testing.T) {
	long := make([]byte, 64)
	for i := range long {
		long[i] = 'a'
	}
	if err := domainname.Validate(string(long) + ".com"); err == nil {
		t.Error("expected error for 64-char label")
	}
	if err := domainname.Validate("example.com"); err != nil {
		t.Errorf("Validate(example.com): %v", err)
	}
}
