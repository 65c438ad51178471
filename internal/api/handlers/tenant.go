package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Me returns the authenticated tenant's public fields.
func (h *Handler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"cliente": h.tenant(c),
	})
}

func (h *Handler) ListRoutines(c *gin.Context) {
	tenant := h.tenant(c)

	routines, err := h.repo.GetActiveRoutinesByTenant(tenant.ID)
	if err != nil {
		h.logger.Error("Failed to list routines", zap.Error(err), zap.String("tenant_id", tenant.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rotinas": routines,
	})
}

func (h *Handler) ListHosts(c *gin.Context) {
	tenant := h.tenant(c)

	hosts, err := h.repo.GetActiveHostsByTenant(tenant.ID)
	if err != nil {
		h.logger.Error("Failed to list hosts", zap.Error(err), zap.String("tenant_id", tenant.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"hosts":   hosts,
	})
}

func (h *Handler) ListHostTelemetry(c *gin.Context) {
	tenant := h.tenant(c)
	hostID := c.Param("id")

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit < 1 || limit > 1000 {
		limit = 100
	}

	samples, err := h.repo.GetRecentSamples(tenant.ID, hostID, limit)
	if err != nil {
		h.logger.Error("Failed to list telemetry", zap.Error(err), zap.String("host_id", hostID))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"telemetria": samples,
	})
}

func (h *Handler) ListExecutions(c *gin.Context) {
	tenant := h.tenant(c)

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 500 {
		limit = 50
	}

	executions, err := h.repo.GetRecentExecutions(tenant.ID, limit)
	if err != nil {
		h.logger.Error("Failed to list executions", zap.Error(err), zap.String("tenant_id", tenant.ID))
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"execucoes": executions,
	})
}
