package handler

import (
	"net/http"

	"github.com/GoAffiliate/tiergate/internal/admission"
	"github.com/GoAffiliate/tiergate/internal/ledger"
	"github.com/GoAffiliate/tiergate/internal/model"
	"github.com/GoAffiliate/tiergate/internal/tier"
	"github.com/gin-gonic/gin"
)

type AdmissionHandler struct {
	svc    *admission.Service
	ledger *ledger.Ledger
	tiers  *tier.Registry
}

func NewAdmissionHandler(svc *admission.Service, led *ledger.Ledger, tiers *tier.Registry) *AdmissionHandler {
	return &AdmissionHandler{svc: svc, ledger: led, tiers: tiers}
}

func (h *AdmissionHandler) ListTiers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tiers": h.tiers.Ordered()})
}

func (h *AdmissionHandler) GetTierStatus(c *gin.Context) {
	id := c.Param("id")
	status, err := h.svc.CurrentTier(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// CheckRequest is the admission question body.
type CheckRequest struct {
	Action      string `json:"action" binding:"required"`
	AffiliateID string `json:"affiliate_id"`
}

func (h *AdmissionHandler) CheckAction(c *gin.Context) {
	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	decision := h.svc.IsActionAllowed(c.Request.Context(), model.Action(req.Action), req.AffiliateID)
	c.JSON(http.StatusOK, decision)
}

func (h *AdmissionHandler) GetUpgradeEligibility(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "affiliate id is required"})
		return
	}
	c.JSON(http.StatusOK, h.svc.CanUpgrade(c.Request.Context(), id))
}

func (h *AdmissionHandler) RequestUpgrade(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "affiliate id is required"})
		return
	}

	result := h.svc.RequestUpgrade(c.Request.Context(), id)
	status := http.StatusOK
	if !result.Success {
		status = http.StatusConflict
	}
	c.JSON(status, result)
}

func (h *AdmissionHandler) GetTierCapacity(c *gin.Context) {
	name := model.TierName(c.Param("name"))
	c.JSON(http.StatusOK, gin.H{
		"tier":     name,
		"capacity": h.svc.TierCapacity(c.Request.Context(), name),
	})
}

// GetSignupTier answers where a new signup lands. Pause state rides along
// so the signup form can disable itself without a second call.
func (h *AdmissionHandler) GetSignupTier(c *gin.Context) {
	paused := h.ledger.ShouldPauseSignups()
	assignment := h.svc.AvailableTierForSignup(c.Request.Context())
	if assignment == nil {
		c.JSON(http.StatusOK, gin.H{
			"available": false,
			"paused":    paused,
			"message":   "All tiers are currently full",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"available":   true,
		"paused":      paused,
		"assignment":  assignment,
		"recommended": h.ledger.RecommendedTier(),
	})
}
