package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/ingest"
)

// Backup handles POST /api/backup. The whole report is transactional: either
// the execution lands (created/updated/skipped) or nothing does.
func (h *Handler) Backup(c *gin.Context) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveIngest("backup", time.Since(start).Seconds())
	}()

	payload, ok := h.readJSONObject(c)
	if !ok {
		return
	}

	tenant := h.tenant(c)
	result, err := h.backup.Report(tenant, payload)
	if err != nil {
		var validation *ingest.ValidationError
		if errors.As(err, &validation) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success": false,
				"error":   "Validation failed",
				"errors":  validation.Fields,
			})
			return
		}

		// Raw payload and error detail stay in the log, never in the
		// response body.
		h.logger.Error("Backup report failed",
			zap.Error(err),
			zap.String("tenant_id", tenant.ID),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":     true,
		"execucao_id": result.ExecutionID,
		"action":      result.Action,
		"message":     "Execução registrada",
	})
}
