package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	rankingLatestKey = "rankings:latest"
	rankingDayTTL    = 24 * time.Hour
)

// RankingList serves candidate domains from a public top-domain ranking list
// (a two-column "rank,domain" file of up to ~1,000,000 entries, refreshed
// daily). The raw list body is cached; on fetch failure the adapter falls
// back to the last successfully cached list, and returns empty when none
// exists.
type RankingList struct {
	listURL    string
	httpClient *http.Client
	cache      Cache
	logger     *zap.Logger
}

// NewRankingList creates a RankingList adapter. cache may be a MemoryCache
// or RedisCache; a nil cache disables caching (always refetch).
func NewRankingList(listURL string, cache Cache, timeout time.Duration, logger *zap.Logger) *RankingList {
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &RankingList{
		listURL:    listURL,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
		logger:     logger,
	}
}

// Name implements Source.
func (r *RankingList) Name() string { return NameRankings }

// ListCandidates implements Source. The technology filter does not apply to
// a pure traffic ranking; it is ignored.
func (r *RankingList) ListCandidates(ctx context.Context, _ string, limit int) ([]CandidateDomain, error) {
	return r.TopDomains(ctx, limit)
}

// TopDomains returns the limit highest-ranked domains in today's list.
func (r *RankingList) TopDomains(ctx context.Context, limit int) ([]CandidateDomain, error) {
	body, err := r.listBody(ctx)
	if err != nil {
		return nil, err
	}
	return parseRankedList(body, func(rank int) bool { return true }, limit), nil
}

// DomainsInRankRange returns domains whose rank r satisfies min <= r <= max.
func (r *RankingList) DomainsInRankRange(ctx context.Context, min, max int) ([]CandidateDomain, error) {
	if min <= 0 {
		min = 1
	}
	if max < min {
		return nil, fmt.Errorf("invalid rank range [%d, %d]", min, max)
	}
	body, err := r.listBody(ctx)
	if err != nil {
		return nil, err
	}
	return parseRankedList(body, func(rank int) bool { return rank >= min && rank <= max }, 0), nil
}

// listBody returns today's raw list, consulting the cache first and falling
// back to the last cached copy when the fetch fails.
func (r *RankingList) listBody(ctx context.Context) (string, error) {
	todayKey := "rankings:" + time.Now().UTC().Format("2006-01-02")

	if body, err := r.cache.Get(ctx, todayKey); err == nil {
		return body, nil
	}

	body, err := r.fetch(ctx)
	if err != nil {
		r.logger.Warn("ranking list fetch failed; trying last cached copy", zap.Error(err))
		if stale, cerr := r.cache.Get(ctx, rankingLatestKey); cerr == nil {
			return stale, nil
		}
		return "", err
	}

	if cerr := r.cache.Set(ctx, todayKey, body, rankingDayTTL); cerr != nil {
		r.logger.Warn("cache ranking list", zap.Error(cerr))
	}
	// The fallback copy is kept without expiry.
	if cerr := r.cache.Set(ctx, rankingLatestKey, body, 0); cerr != nil {
		r.logger.Warn("cache ranking list fallback", zap.Error(cerr))
	}
	return body, nil
}

func (r *RankingList) fetch(ctx context.Context) (string, error) {
	if r.listURL == "" {
		return "", fmt.Errorf("ranking list URL not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.listURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch ranking list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ranking list host returned HTTP %d", resp.StatusCode)
	}

	// ~1M two-column rows fit comfortably under 64 MiB.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return "", fmt.Errorf("read ranking list: %w", err)
	}
	return string(body), nil
}

// parseRankedList parses "rank,domain" lines (comma or tab separated),
// keeping rows accepted by keep, up to limit (0 = unlimited). Malformed rows
// are skipped.
func parseRankedList(body string, keep func(rank int) bool, limit int) []CandidateDomain {
	var out []CandidateDomain
	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		sep := ","
		if !strings.Contains(line, ",") {
			sep = "\t"
		}
		parts := strings.SplitN(line, sep, 2)
		if len(parts) != 2 {
			continue
		}

		rank, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil || rank <= 0 {
			continue
		}
		domain := strings.TrimSpace(parts[1])
		if domain == "" || !keep(rank) {
			continue
		}

		out = append(out, CandidateDomain{Domain: domain, Source: NameRankings, Rank: rank})
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
