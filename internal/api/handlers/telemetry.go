package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/ingest"
)

// Telemetry handles POST /api/telemetry (and its /api/heartbeat alias).
// Parse and validation problems are hard failures; everything past the host
// upsert is best-effort inside the service.
func (h *Handler) Telemetry(c *gin.Context) {
	start := time.Now()
	defer func() {
		h.metrics.ObserveIngest("telemetry", time.Since(start).Seconds())
	}()

	payload, ok := h.readJSONObject(c)
	if !ok {
		return
	}

	tenant := h.tenant(c)
	result, err := h.telemetry.Process(tenant, payload)
	if err != nil {
		var missing *ingest.MissingHostNameError
		if errors.As(err, &missing) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{
				"success":         false,
				"error":           "Host name not found in payload (expected host_name, hostname or name)",
				"received_fields": missing.ReceivedFields,
			})
			return
		}

		h.logger.Error("Heartbeat processing failed",
			zap.Error(err),
			zap.String("tenant_id", tenant.ID),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"host_id":   result.HostID,
		"host_name": result.HostName,
		"status":    "online",
	})
}

// readJSONObject rejects empty bodies and syntactically invalid JSON with a
// 400 carrying the parser diagnostic. It writes the response itself on
// failure.
func (h *Handler) readJSONObject(c *gin.Context) (map[string]interface{}, bool) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Failed to read request body"})
		return nil, false
	}
	if len(bytes.TrimSpace(body)) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Empty request body"})
		return nil, false
	}

	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid JSON: " + err.Error(),
		})
		return nil, false
	}
	return payload, true
}
