package handler

import (
	"net/http"
	"strconv"

	"github.com/GoAffiliate/tiergate/internal/ledger"
	"github.com/GoAffiliate/tiergate/internal/notify"
	"github.com/GoAffiliate/tiergate/internal/warning"
	"github.com/gin-gonic/gin"
)

type CapacityHandler struct {
	ledger  *ledger.Ledger
	engine  *warning.Engine
	history *warning.History
	hub     *notify.Hub
}

func NewCapacityHandler(led *ledger.Ledger, engine *warning.Engine, history *warning.History, hub *notify.Hub) *CapacityHandler {
	return &CapacityHandler{ledger: led, engine: engine, history: history, hub: hub}
}

// GetCapacity returns the latest snapshot. 503 with a loading message only
// before the first successful refresh.
func (h *CapacityHandler) GetCapacity(c *gin.Context) {
	snap := h.ledger.Current()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Loading system status..."})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"capacity": snap,
		"stale":    h.ledger.Stale(),
	})
}

func (h *CapacityHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.ledger.SystemStatus())
}

// Refresh forces a snapshot fetch. Failure still answers 200 with the
// last-known snapshot when one exists; admission must stay answerable.
func (h *CapacityHandler) Refresh(c *gin.Context) {
	snap, err := h.ledger.Refresh(c.Request.Context())
	if err != nil {
		if last := h.ledger.Current(); last != nil {
			c.JSON(http.StatusOK, gin.H{"capacity": last, "stale": true})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"capacity": snap, "stale": false})
}

func (h *CapacityHandler) ServeWS(c *gin.Context) {
	h.hub.Serve(c.Writer, c.Request)
}

func (h *CapacityHandler) GetWarnings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"warnings": h.engine.Active()})
}

func (h *CapacityHandler) DismissWarning(c *gin.Context) {
	key := c.Param("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "warning key is required"})
		return
	}
	h.engine.Dismiss(key)
	c.JSON(http.StatusOK, gin.H{"dismissed": key})
}

func (h *CapacityHandler) ResetWarnings(c *gin.Context) {
	h.engine.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *CapacityHandler) WarningHistory(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			limit = parsed
		}
	}
	records, err := h.history.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"warnings": records})
}
