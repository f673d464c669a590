package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/discovery"
	"github.com/paycrawl/paycrawl/internal/market/model"
)

// discoveryRunner is the subset of discovery.Orchestrator used by
// DiscoveryHandler.
type discoveryRunner interface {
	Discover(ctx context.Context, req discovery.Request) (*discovery.Result, error)
}

// domainLister reads marketplace domain records.
type domainLister interface {
	ListPublished(ctx context.Context) ([]*model.DiscoveredDomain, error)
	GetByDomain(ctx context.Context, domain string) (*model.DiscoveredDomain, error)
}

// DiscoveryHandler exposes discovery runs and the published domain listing.
type DiscoveryHandler struct {
	runner      discoveryRunner
	domains     domainLister
	logger      *zap.Logger
	adminSecret string
}

// NewDiscoveryHandler creates a new DiscoveryHandler.
func NewDiscoveryHandler(runner discoveryRunner, domains domainLister, logger *zap.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{runner: runner, domains: domains, logger: logger}
}

// SetAdminSecret configures the shared secret required to trigger discovery
// runs. When unset, runs are disabled over HTTP.
func (h *DiscoveryHandler) SetAdminSecret(secret string) {
	h.adminSecret = secret
}

// Register mounts discovery and domain routes on the given router group.
func (h *DiscoveryHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/discovery/run", requireSecret(&h.adminSecret), h.RunDiscovery)
	domains := rg.Group("/domains")
	{
		domains.GET("", h.ListDomains)
		domains.GET("/:domain", h.GetDomain)
	}
}

// RunDiscovery handles POST /discovery/run (admin only). The run executes
// synchronously; large runs are expected to be triggered from tooling with a
// generous client timeout.
func (h *DiscoveryHandler) RunDiscovery(c *gin.Context) {
	var req discovery.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.runner.Discover(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, discovery.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("discovery run", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discovery run failed"})
		return
	}

	RecordDiscoveryRun(res.Totals.Probed, len(res.Domains))
	c.JSON(http.StatusOK, res)
}

// ListDomains handles GET /domains: all published marketplace domains.
func (h *DiscoveryHandler) ListDomains(c *gin.Context) {
	list, err := h.domains.ListPublished(c.Request.Context())
	if err != nil {
		h.logger.Error("list domains", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list domains"})
		return
	}
	SetPublishedDomainsGauge(float64(len(list)))
	c.JSON(http.StatusOK, gin.H{"domains": list, "count": len(list)})
}

// GetDomain handles GET /domains/:domain.
func (h *DiscoveryHandler) GetDomain(c *gin.Context) {
	rec, err := h.domains.GetByDomain(c.Request.Context(), c.Param("domain"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "domain not found"})
		return
	}
	c.JSON(http.StatusOK, rec)
}

// requireSecret guards a route with a shared X-Admin-Token secret. The
// pointer indirection lets the secret be configured after route setup.
func requireSecret(secret *string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if *secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "this endpoint is not enabled on this instance"})
			return
		}
		if subtle.ConstantTimeCompare([]byte(c.GetHeader("X-Admin-Token")), []byte(*secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid admin token"})
			return
		}
		c.Next()
	}
}
