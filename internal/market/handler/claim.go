package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/paycrawl/paycrawl/internal/market/model"
	"github.com/paycrawl/paycrawl/internal/market/service"
)

// claimSvc is the subset of service.ClaimService used by ClaimHandler.
type claimSvc interface {
	CreateClaim(ctx context.Context, req service.CreateClaimRequest) (*service.CreateClaimResult, error)
	GetClaim(ctx context.Context, id uuid.UUID) (*model.Claim, model.Guidance, error)
	VerifyClaim(ctx context.Context, id uuid.UUID) (*service.VerifyResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ClaimStatus, rejectReason string) (*model.Claim, error)
}

// ClaimHandler handles HTTP requests for the domain claim workflow.
type ClaimHandler struct {
	svc         claimSvc
	logger      *zap.Logger
	adminSecret string
}

// NewClaimHandler creates a new ClaimHandler.
func NewClaimHandler(svc claimSvc, logger *zap.Logger) *ClaimHandler {
	return &ClaimHandler{svc: svc, logger: logger}
}

// SetAdminSecret configures the shared secret required for review endpoints.
// When unset, status updates are disabled.
func (h *ClaimHandler) SetAdminSecret(secret string) {
	h.adminSecret = secret
}

// Register mounts the claim routes on the given router group.
func (h *ClaimHandler) Register(rg *gin.RouterGroup) {
	claims := rg.Group("/claims")
	{
		claims.POST("", h.CreateClaim)
		claims.GET("/:id", h.GetClaim)
		claims.POST("/:id/verify", h.VerifyClaim)
		claims.PATCH("/:id/status", requireSecret(&h.adminSecret), h.UpdateStatus)
	}
}

// CreateClaim handles POST /claims.
//
// Response: the pending claim plus the DNS record the owner must publish.
func (h *ClaimHandler) CreateClaim(c *gin.Context) {
	var req service.CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.svc.CreateClaim(c.Request.Context(), req)
	if err != nil {
		var verr *service.ValidationError
		var cerr *service.ConflictError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "field": verr.Field})
		case errors.As(err, &cerr):
			c.JSON(http.StatusConflict, gin.H{"error": cerr.Error(), "status": cerr.Status})
		default:
			h.logger.Error("create claim", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create claim"})
		}
		return
	}

	RecordClaimEvent("created")
	c.JSON(http.StatusCreated, gin.H{
		"claim":        res.Claim,
		"instructions": res.Instructions,
		"guidance":     model.GuidanceFor(res.Claim.Status),
	})
}

// GetClaim handles GET /claims/:id. The response includes status-derived
// guidance so callers can render next steps without hardcoding the flow.
func (h *ClaimHandler) GetClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim ID"})
		return
	}

	claim, guidance, err := h.svc.GetClaim(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClaimNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
			return
		}
		h.logger.Error("get claim", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to get claim"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"claim": claim, "guidance": guidance})
}

// VerifyClaim handles POST /claims/:id/verify. DNS outcomes (missing record,
// mismatch, expired challenge, transient resolver trouble) are reported in
// the body with a 200; only an unknown claim or an internal failure is an
// HTTP error.
func (h *ClaimHandler) VerifyClaim(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim ID"})
		return
	}

	res, err := h.svc.VerifyClaim(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrClaimNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
			return
		}
		h.logger.Error("verify claim", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "verification error"})
		return
	}

	RecordVerification(res.Outcome)
	c.JSON(http.StatusOK, res)
}

// UpdateStatus handles PATCH /claims/:id/status (admin only).
//
// Request body: {"status": "approved"} or {"status": "rejected", "reason": "..."}
func (h *ClaimHandler) UpdateStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid claim ID"})
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claim, err := h.svc.UpdateStatus(c.Request.Context(), id, model.ClaimStatus(req.Status), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrClaimNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "claim not found"})
		case errors.Is(err, service.ErrInvalidTransition):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			h.logger.Error("update claim status", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update claim"})
		}
		return
	}

	RecordClaimEvent(string(claim.Status))
	c.JSON(http.StatusOK, gin.H{"claim": claim, "guidance": model.GuidanceFor(claim.Status)})
}
