package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/discovery"
	"github.com/paycrawl/paycrawl/internal/market/handler"
	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/market/repository"
)

type stubRunner struct {
	lastReq discovery.Request
	result  *discovery.Result
	err     error
}

func (s *stubRunner) Discover(_ context.Context, req discovery.Request) (*discovery.Result, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func setupDiscoveryRouter(t *testing.T, runner *stubRunner) (*gin.Engine, *repository.MemoryDomainRepository) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	domains := repository.NewMemoryDomainRepository()
	h := handler.NewDiscoveryHandler(runner, domains, zap.NewNop())
	h.SetAdminSecret(testAdminToken)
	r := gin.New()
	v1 := r.Group("/api/v1")
	h.Register(v1)
	return r, domains
}

func TestRunDiscovery_200(t *testing.T) {
	runner := &stubRunner{result: &discovery.Result{
		Totals:      discovery.Totals{Discovered: 3, Probed: 3, PricingFound: 1},
		Domains:     []discovery.QualifiedDomain{{Domain: "a.example", Source: "curated"}},
		GeneratedAt: time.Now().UTC(),
	}}
	router, _ := setupDiscoveryRouter(t, runner)

	body := `{"technology":"pay-per-crawl","limit":10,"sources":["curated"],"probe_for_pricing":true}`
	w := postJSON(t, router, "/api/v1/discovery/run", body, map[string]string{"X-Admin-Token": testAdminToken})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if runner.lastReq.Technology != "pay-per-crawl" || runner.lastReq.Limit != 10 {
		t.Errorf("request not forwarded: %+v", runner.lastReq)
	}

	var res discovery.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Totals.Probed != 3 || len(res.Domains) != 1 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRunDiscovery_400_invalidRequest(t *testing.T) {
	runner := &stubRunner{err: discovery.ErrInvalidRequest}
	router, _ := setupDiscoveryRouter(t, runner)

	w := postJSON(t, router, "/api/v1/discovery/run", `{"limit":0}`, map[string]string{"X-Admin-Token": testAdminToken})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRunDiscovery_401_withoutToken(t *testing.T) {
	router, _ := setupDiscoveryRouter(t, &stubRunner{result: &discovery.Result{}})

	w := postJSON(t, router, "/api/v1/discovery/run", `{"limit":1,"sources":["curated"]}`, nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
}

func TestListDomains_publishedOnly(t *testing.T) {
	router, domains := setupDiscoveryRouter(t, &stubRunner{})

	ctx := context.Background()
	if err := domains.Publish(ctx, &model.DiscoveredDomain{
		Domain:   "listed.example",
		Price:    decimal.RequireFromString("0.02"),
		Currency: "USD",
		Source:   "claim",
	}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := domains.UpsertDiscovered(ctx, &model.DiscoveredDomain{
		Domain: "raw.example",
		Source: "rankings",
	}); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/domains", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Domains []struct {
			Domain string `json:"domain"`
		} `json:"domains"`
		Count int `json:"count"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Domains) != 1 || resp.Domains[0].Domain != "listed.example" {
		t.Errorf("unexpected listing: %s", w.Body.String())
	}
}

func TestGetDomain_404(t *testing.T) {
	router, _ := setupDiscoveryRouter(t, &stubRunner{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/domains/missing.example", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}
