//go:build ignore

// probe-pricing.go checks a list of domains for pay-per-crawl signals:
// edge-network response headers and HTTP 402 crawler pricing headers.
//
// Run with: go run scripts/probe-pricing.go
package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Domains to probe — publishers, docs sites, and known edge-network users.
var domains = []string{
	// Major publishers
	"nytimes.com", "theguardian.com", "wsj.com", "bloomberg.com",
	"reuters.com", "apnews.com", "washingtonpost.com", "ft.com",
	"economist.com", "theatlantic.com", "wired.com", "arstechnica.com",

	// Community and reference content
	"stackoverflow.com", "reddit.com", "quora.com", "medium.com",
	"substack.com", "wikihow.com", "fandom.com", "genius.com",

	// Documentation & developer content
	"developer.mozilla.org", "w3schools.com", "geeksforgeeks.org",
	"digitalocean.com", "freecodecamp.org",

	// Recipe / lifestyle (heavily crawled verticals)
	"allrecipes.com", "seriouseats.com", "epicurious.com",
	"tripadvisor.com", "yelp.com", "zillow.com",

	// Known edge-network users (for fingerprint baseline)
	"cloudflare.com", "discord.com", "canva.com", "shopify.com",
}

type result struct {
	domain   string
	status   int
	edge     bool
	pricing  bool
	price    string
	currency string
	err      string
	latency  time.Duration
}

func probe(domain string, client *http.Client) result {
	url := "https://" + domain + "/"
	start := time.Now()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return result{domain: domain, err: err.Error()}
	}
	req.Header.Set("User-Agent", "paycrawl-probe/1.0 (pay-per-crawl survey; +https://paycrawl.dev)")

	resp, err := client.Do(req)
	latency := time.Since(start)
	if err != nil {
		msg := err.Error()
		if len(msg) > 60 {
			msg = msg[:60] + "..."
		}
		return result{domain: domain, err: msg, latency: latency}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 512)) //nolint:errcheck

	r := result{
		domain:  domain,
		status:  resp.StatusCode,
		latency: latency,
	}

	// Edge-network fingerprint.
	if resp.Header.Get("Cf-Ray") != "" || resp.Header.Get("Cf-Cache-Status") != "" ||
		strings.Contains(strings.ToLower(resp.Header.Get("Server")), "cloudflare") {
		r.edge = true
	}

	// HTTP 402 pricing headers.
	if resp.StatusCode == http.StatusPaymentRequired {
		price := resp.Header.Get("Crawler-Price")
		currency := resp.Header.Get("Crawler-Price-Currency")
		if price != "" {
			r.pricing = true
			// Combined form: "0.05 USD" or "USD 0.05".
			if currency == "" {
				parts := strings.Fields(price)
				if len(parts) == 2 {
					if len(parts[1]) == 3 {
						price, currency = parts[0], parts[1]
					} else if len(parts[0]) == 3 {
						price, currency = parts[1], parts[0]
					}
				}
			}
			r.price = price
			r.currency = currency
		}
	}
	return r
}

func main() {
	httpClient := &http.Client{
		Timeout: 8 * time.Second,
		// Keep redirects visible: a 402 must not be followed away.
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	jobs := make(chan string, len(domains))
	results := make(chan result, len(domains))

	// Worker pool — 20 concurrent probes
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for d := range jobs {
				results <- probe(d, httpClient)
			}
		}()
	}

	for _, d := range domains {
		jobs <- d
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []result
	checked := 0
	for r := range results {
		checked++
		fmt.Printf("\r  probing... %d/%d", checked, len(domains))
		all = append(all, r)
	}
	fmt.Printf("\r  done — %d domains probed\n\n", len(domains))

	sort.Slice(all, func(i, j int) bool { return all[i].domain < all[j].domain })

	var edgeCount, pricingCount, errCount int
	for _, r := range all {
		if r.edge {
			edgeCount++
		}
		if r.pricing {
			pricingCount++
		}
		if r.err != "" {
			errCount++
		}
	}

	// ── Report ────────────────────────────────────────────────────────────────
	fmt.Printf("══════════════════════════════════════════════════════\n")
	fmt.Printf("  Pay-Per-Crawl Probe Results\n")
	fmt.Printf("  Domains checked: %d  |  Edge: %d  |  Pricing: %d  |  Errors: %d\n",
		len(domains), edgeCount, pricingCount, errCount)
	fmt.Printf("══════════════════════════════════════════════════════\n\n")

	for _, r := range all {
		switch {
		case r.pricing:
			fmt.Printf("  $ %-28s %s %s  (%d, %dms)\n", r.domain, r.price, r.currency, r.status, r.latency.Milliseconds())
		case r.edge:
			fmt.Printf("  ~ %-28s edge network detected  (%d, %dms)\n", r.domain, r.status, r.latency.Milliseconds())
		case r.err != "":
			fmt.Printf("  ! %-28s %s\n", r.domain, r.err)
		default:
			fmt.Printf("    %-28s no signal  (%d, %dms)\n", r.domain, r.status, r.latency.Milliseconds())
		}
	}

	if pricingCount == 0 {
		fmt.Println("\n  No live 402 pricing endpoints found in this sample.")
		fmt.Println("  Edge fingerprints remain the primary discovery signal.")
	}
}
