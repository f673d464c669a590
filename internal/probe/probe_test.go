package probe_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/paycrawl/paycrawl/internal/probe"
	"go.uber.org/zap"
)

// testProber returns a Prober pointed at a plain-HTTP test server and the
// server's host:port to probe.
func testProber(t *testing.T, handler http.HandlerFunc) (*probe.Prober, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := probe.New(probe.Config{
		Timeout: 2 * time.Second,
		Scheme:  "http",
	}, zap.NewNop())
	return p, strings.TrimPrefix(srv.URL, "http://")
}

func TestEdgeProbe_presenceHeader(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Cf-Ray", "8f2ab-IAD")
		w.WriteHeader(http.StatusOK)
	})

	ok, err := p.EdgeProbe(context.Background(), host)
	if err != nil {
		t.Fatalf("EdgeProbe: %v", err)
	}
	if !ok {
		t.Error("cf-ray header should be detected")
	}
}

func TestEdgeProbe_serverSubstring(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "CloudFlare")
		w.WriteHeader(http.StatusOK)
	})

	ok, err := p.EdgeProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("Server substring match should be case-insensitive")
	}
}

func TestEdgeProbe_noFingerprint(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", "nginx")
		w.WriteHeader(http.StatusOK)
	})

	ok, err := p.EdgeProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("plain nginx must not be detected")
	}
}

func TestProbe_networkErrorIsNotFatal(t *testing.T) {
	p := probe.New(probe.Config{Timeout: 500 * time.Millisecond, Scheme: "http"}, zap.NewNop())

	// Reserved port, nothing listening.
	res := p.Probe(context.Background(), "127.0.0.1:1", true)
	if res.Error == "" {
		t.Error("expected recorded error for unreachable host")
	}
	if res.EdgeDetected || res.PricingDetected {
		t.Error("unreachable host must report nothing detected")
	}
}

func TestPricingProbe_combinedHeader(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Crawler-Price", "0.05 USD")
		w.WriteHeader(http.StatusPaymentRequired)
	})

	detected, price, currency, err := p.PricingProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if !detected {
		t.Fatal("pricing should be detected")
	}
	if price.String() != "0.05" || currency != "USD" {
		t.Errorf("got %s %s", price, currency)
	}
}

func TestPricingProbe_splitHeaders(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Crawler-Price", "1.25")
		w.Header().Set("Crawler-Price-Currency", "eur")
		w.WriteHeader(http.StatusPaymentRequired)
	})

	detected, price, currency, err := p.PricingProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if !detected || price.String() != "1.25" || currency != "EUR" {
		t.Errorf("got detected=%v %s %s", detected, price, currency)
	}
}

func TestPricingProbe_non402(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Crawler-Price", "0.05 USD")
		w.WriteHeader(http.StatusOK)
	})

	detected, _, _, err := p.PricingProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if detected {
		t.Error("pricing headers on a 200 must be ignored")
	}
}

func TestPricingProbe_malformedPrice(t *testing.T) {
	for _, hdr := range []string{"free", "-0.05 USD", "0 USD", "0.05 DOLLARS"} {
		p, host := testProber(t, func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Crawler-Price", hdr)
			w.WriteHeader(http.StatusPaymentRequired)
		})

		detected, _, _, err := p.PricingProbe(context.Background(), host)
		if err != nil {
			t.Fatal(err)
		}
		if detected {
			t.Errorf("header %q must be treated as absent pricing", hdr)
		}
	}
}

func TestPricingProbe_doesNotFollowRedirects(t *testing.T) {
	p, host := testProber(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			w.Header().Set("Crawler-Price", "0.10 USD")
			w.Header().Set("Location", "/landing")
			w.WriteHeader(http.StatusPaymentRequired)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	detected, _, _, err := p.PricingProbe(context.Background(), host)
	if err != nil {
		t.Fatal(err)
	}
	if !detected {
		t.Error("402 with Location header must still surface pricing")
	}
}
