package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/paycrawl/paycrawl/pkg/client"
	"github.com/paycrawl/paycrawl/pkg/domainname"
)

// version is overridden by goreleaser via -ldflags "-X main.version=...".
var version = "dev"

var (
	serverURL  string
	adminToken string
	cfgFile    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paycrawl",
	Short: "Pay-per-crawl domain marketplace CLI",
	Long: `paycrawl is the command-line interface for the pay-per-crawl domain
marketplace.

It lets domain owners claim and verify their domains, and operators
discover pay-per-crawl domains and review pending claims.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.paycrawl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if serverURL == "" {
			serverURL = viper.GetString("server_url")
		}
		if serverURL == "" {
			serverURL = "http://localhost:8080"
		}
		if adminToken == "" {
			adminToken = viper.GetString("admin_token")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.paycrawl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "marketplace server URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&adminToken, "admin-token", "", "admin token for review and discovery commands")

	rootCmd.AddCommand(claimCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(domainsCmd)
	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(reviewCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{}
	if adminToken != "" {
		opts = append(opts, client.WithAdminToken(adminToken))
	}
	return client.MustNew(serverURL, opts...)
}

// ── claim ────────────────────────────────────────────────────────────────────

var (
	claimEmail      string
	claimContact    string
	claimOrg        string
	claimReason     string
	claimPrice      string
	claimCurrency   string
	claimTimeoutMin int
	claimNoWait     bool
)

var claimCmd = &cobra.Command{
	Use:   "claim <domain>",
	Short: "Claim ownership of a domain via DNS TXT verification",
	Long: `claim submits an ownership claim and guides you through publishing the
DNS TXT record that proves you control the domain.

After the record is published the command polls until verification
succeeds or the timeout elapses. Use --no-wait to submit the claim and
verify later with "paycrawl verify <claim-id>".`,
	Args: cobra.ExactArgs(1),
	RunE: runClaim,
}

func init() {
	claimCmd.Flags().StringVar(&claimEmail, "email", "", "Contact email address (required)")
	claimCmd.Flags().StringVar(&claimContact, "name", "", "Contact name (required)")
	claimCmd.Flags().StringVar(&claimOrg, "org", "", "Organization name")
	claimCmd.Flags().StringVar(&claimReason, "reason", "", "Why you are claiming this domain")
	claimCmd.Flags().StringVar(&claimPrice, "price", "0.01", "Requested per-crawl price")
	claimCmd.Flags().StringVar(&claimCurrency, "currency", "USD", "Price currency (ISO 4217)")
	claimCmd.Flags().IntVar(&claimTimeoutMin, "timeout", 10, "DNS polling timeout in minutes")
	claimCmd.Flags().BoolVar(&claimNoWait, "no-wait", false, "Submit the claim without waiting for verification")
}

func runClaim(cmd *cobra.Command, args []string) error {
	domain, err := domainname.Normalize(args[0])
	if err != nil {
		return fmt.Errorf("invalid domain %q: %w", args[0], err)
	}
	if claimEmail == "" || claimContact == "" {
		return fmt.Errorf("--email and --name are required")
	}
	price, err := decimal.NewFromString(claimPrice)
	if err != nil {
		return fmt.Errorf("invalid price %q: %w", claimPrice, err)
	}

	ctx := context.Background()
	c := newClient()

	fmt.Printf("Submitting claim for %s (%s %s per crawl)...\n", domain, price, claimCurrency)
	res, err := c.SubmitClaim(ctx, client.SubmitClaimRequest{
		Domain:         domain,
		Email:          claimEmail,
		ContactName:    claimContact,
		Organization:   claimOrg,
		Reason:         claimReason,
		RequestedPrice: price,
		Currency:       claimCurrency,
	})
	if err != nil {
		return fmt.Errorf("submit claim: %w", err)
	}

	fmt.Printf("✓ Claim created: %s\n", res.Claim.ID)
	fmt.Println()
	fmt.Println("┌─────────────────────────────────────────────────────────────┐")
	fmt.Println("│  Add this DNS TXT record to your domain:                    │")
	fmt.Println("│                                                             │")
	fmt.Printf("│  Host:  %-51s│\n", res.Claim.Challenge.RecordName)
	fmt.Println("│  Type:  TXT                                                 │")
	fmt.Printf("│  Value: %-51s│\n", res.Claim.Challenge.RecordValue)
	fmt.Println("│                                                             │")
	fmt.Printf("│  Record expires: %-42s│\n", res.Claim.Challenge.ExpiresAt.Format(time.RFC3339))
	fmt.Println("└─────────────────────────────────────────────────────────────┘")
	fmt.Println()

	if claimNoWait {
		fmt.Printf("Run \"paycrawl verify %s\" once the record is published.\n", res.Claim.ID)
		return nil
	}

	fmt.Print("Press Enter when the record is published (TTL ~60s to propagate)... ")
	bufio.NewReader(os.Stdin).ReadString('\n') //nolint:errcheck

	return pollVerification(ctx, c, res.Claim.ID, time.Duration(claimTimeoutMin)*time.Minute)
}

func pollVerification(ctx context.Context, c *client.Client, claimID string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	spinner := []string{"|", "/", "-", "\\"}
	spinIdx := 0

	for time.Now().Before(deadline) {
		res, err := c.VerifyClaim(ctx, claimID)
		if err != nil {
			fmt.Println()
			return fmt.Errorf("verify claim: %w", err)
		}
		if res.Verified {
			fmt.Println()
			fmt.Println("✓ Domain ownership verified")
			for _, step := range res.NextSteps {
				fmt.Printf("  → %s\n", step)
			}
			return nil
		}
		if res.Outcome == "challenge_expired" || res.Outcome == "value_mismatch" || res.Outcome == "claim_closed" {
			fmt.Println()
			fmt.Printf("Verification failed: %s\n", res.Error)
			if res.ExpectedValue != "" {
				fmt.Printf("  Expected: %s\n", res.ExpectedValue)
			}
			if res.ActualValue != "" {
				fmt.Printf("  Found:    %s\n", res.ActualValue)
			}
			return fmt.Errorf("verification failed: %s", res.Outcome)
		}
		fmt.Printf("\rWaiting for DNS record... %s ", spinner[spinIdx%len(spinner)])
		spinIdx++
		time.Sleep(15 * time.Second)
	}
	fmt.Println()
	return fmt.Errorf("DNS verification timed out after %s; retry with \"paycrawl verify %s\"", timeout, claimID)
}

// ── verify ───────────────────────────────────────────────────────────────────

var verifyCmd = &cobra.Command{
	Use:   "verify <claim-id>",
	Short: "Trigger DNS verification for a pending claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := newClient().VerifyClaim(context.Background(), args[0])
		if err != nil {
			return err
		}
		if res.Verified {
			fmt.Println("✓ Domain ownership verified")
		} else {
			fmt.Printf("Not verified (%s): %s\n", res.Outcome, res.Error)
		}
		for _, step := range res.NextSteps {
			fmt.Printf("  → %s\n", step)
		}
		return nil
	},
}

// ── status ───────────────────────────────────────────────────────────────────

var statusFormat string

var statusCmd = &cobra.Command{
	Use:   "status <claim-id>",
	Short: "Show the status and next steps of a claim",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		claim, guidance, err := newClient().GetClaim(context.Background(), args[0])
		if err != nil {
			return err
		}

		if statusFormat == "json" {
			out, _ := json.MarshalIndent(map[string]any{"claim": claim, "guidance": guidance}, "", "  ")
			fmt.Println(string(out))
			return nil
		}

		fmt.Printf("Claim:    %s\n", claim.ID)
		fmt.Printf("Domain:   %s\n", claim.Domain)
		fmt.Printf("Status:   %s\n", claim.Status)
		fmt.Printf("Price:    %s %s\n", claim.RequestedPrice, claim.Currency)
		if claim.RejectReason != "" {
			fmt.Printf("Rejected: %s\n", claim.RejectReason)
		}
		fmt.Printf("\n%s\n", guidance.CurrentStep)
		for _, step := range guidance.NextSteps {
			fmt.Printf("  → %s\n", step)
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "Output format: text or json")
}

// ── domains ──────────────────────────────────────────────────────────────────

var domainsFormat string

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List published marketplace domains",
	RunE: func(cmd *cobra.Command, args []string) error {
		domains, err := newClient().ListDomains(context.Background())
		if err != nil {
			return err
		}

		if domainsFormat == "json" {
			out, _ := json.MarshalIndent(domains, "", "  ")
			fmt.Println(string(out))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "DOMAIN\tPRICE\tSOURCE\tAVAILABLE")
		for _, d := range domains {
			fmt.Fprintf(w, "%s\t%s %s\t%s\t%v\n", d.Domain, d.Price, d.Currency, d.Source, d.Available)
		}
		return w.Flush()
	},
}

func init() {
	domainsCmd.Flags().StringVar(&domainsFormat, "format", "text", "Output format: text or json")
}

// ── discover ─────────────────────────────────────────────────────────────────

var (
	discoverTech    string
	discoverLimit   int
	discoverSources []string
	discoverRankMin int
	discoverRankMax int
	discoverCountry string
	discoverCat     string
	discoverVerify  bool
	discoverPricing bool
	discoverPersist bool
	discoverFormat  string
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run a discovery pass over candidate domains (admin)",
	Long: `discover merges candidate domains from the configured sources, probes
them for edge-network and HTTP 402 pricing signals, and reports the
qualifying domains. Requires --admin-token.`,
	RunE: runDiscover,
}

func init() {
	discoverCmd.Flags().StringVar(&discoverTech, "technology", "", "Technology to look up in the paid API source")
	discoverCmd.Flags().IntVar(&discoverLimit, "limit", 100, "Maximum number of qualified domains to return")
	discoverCmd.Flags().StringSliceVar(&discoverSources, "sources", []string{"curated"}, "Candidate sources: technology-api, rankings, curated")
	discoverCmd.Flags().IntVar(&discoverRankMin, "rank-min", 0, "Minimum rank for the rankings source")
	discoverCmd.Flags().IntVar(&discoverRankMax, "rank-max", 0, "Maximum rank for the rankings source")
	discoverCmd.Flags().StringVar(&discoverCountry, "country", "", "Restrict the technology-api source to a country (ISO 3166-1 alpha-2)")
	discoverCmd.Flags().StringVar(&discoverCat, "category", "", "Restrict the technology-api source to a site category")
	discoverCmd.Flags().BoolVar(&discoverVerify, "verify-tech", false, "Confirm each candidate's technology with a per-domain lookup before probing")
	discoverCmd.Flags().BoolVar(&discoverPricing, "probe-pricing", true, "Probe for HTTP 402 pricing headers")
	discoverCmd.Flags().BoolVar(&discoverPersist, "persist", false, "Persist qualifying domains to the marketplace store")
	discoverCmd.Flags().StringVar(&discoverFormat, "format", "text", "Output format: text or json")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	if adminToken == "" {
		return fmt.Errorf("--admin-token is required for discover")
	}

	fmt.Fprintf(os.Stderr, "Running discovery (sources: %s)...\n", strings.Join(discoverSources, ", "))
	res, err := newClient().RunDiscovery(context.Background(), client.DiscoveryRequest{
		Technology:      discoverTech,
		Limit:           discoverLimit,
		Sources:         discoverSources,
		RankMin:         discoverRankMin,
		RankMax:         discoverRankMax,
		Country:         discoverCountry,
		Category:        discoverCat,
		VerifyTech:      discoverVerify,
		ProbeForPricing: discoverPricing,
		PersistResults:  discoverPersist,
	})
	if err != nil {
		return err
	}

	if discoverFormat == "json" {
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(out))
		return nil
	}

	fmt.Printf("Discovered %d, probed %d, pricing on %d, edge on %d, errors %d (avg %dms)\n\n",
		res.Totals.Discovered, res.Totals.Probed, res.Totals.PricingFound,
		res.Totals.EdgeDetected, res.Totals.Errors, res.AvgResponseTimeMs)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DOMAIN\tSOURCE\tEDGE\tPRICE")
	for _, d := range res.Domains {
		price := "-"
		if d.Currency != "" {
			price = fmt.Sprintf("%s %s", d.Price, d.Currency)
		}
		fmt.Fprintf(w, "%s\t%s\t%v\t%s\n", d.Domain, d.Source, d.EdgeDetected, price)
	}
	return w.Flush()
}

// ── review ───────────────────────────────────────────────────────────────────

var (
	reviewApprove bool
	reviewReject  bool
	reviewReason  string
)

var reviewCmd = &cobra.Command{
	Use:   "review <claim-id>",
	Short: "Approve or reject a verified claim (admin)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if adminToken == "" {
			return fmt.Errorf("--admin-token is required for review")
		}
		if reviewApprove == reviewReject {
			return fmt.Errorf("exactly one of --approve or --reject is required")
		}

		status := "approved"
		if reviewReject {
			status = "rejected"
			if reviewReason == "" {
				return fmt.Errorf("--reason is required with --reject")
			}
		}

		claim, err := newClient().UpdateClaimStatus(context.Background(), args[0], status, reviewReason)
		if err != nil {
			return err
		}
		fmt.Printf("✓ Claim %s is now %s\n", claim.ID, claim.Status)
		return nil
	},
}

func init() {
	reviewCmd.Flags().BoolVar(&reviewApprove, "approve", false, "Approve the claim and publish the domain")
	reviewCmd.Flags().BoolVar(&reviewReject, "reject", false, "Reject the claim")
	reviewCmd.Flags().StringVar(&reviewReason, "reason", "", "Rejection reason")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("paycrawl %s\n", version)
	},
}
