package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/db"
)

// TenantKey is the gin context key holding the authenticated *db.Tenant.
const TenantKey = "tenant"

// APIKeyAuth resolves the agent credential from, in priority order, the
// Authorization Bearer header, the X-API-Key header, or the api_key query
// parameter, and attaches the owning tenant to the request context.
func APIKeyAuth(repo *db.Repository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := extractAPIKey(c)
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "API key required"})
			c.Abort()
			return
		}

		tenant, err := repo.GetTenantByAPIKey(key)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				logger.Warn("Rejected unknown API key",
					zap.String("api_key", redactKey(key)),
					zap.String("client_ip", c.ClientIP()),
				)
				c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid API key"})
			} else {
				logger.Error("API key lookup failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Internal server error"})
			}
			c.Abort()
			return
		}

		if !tenant.Active {
			logger.Warn("Rejected API key of inactive tenant",
				zap.String("api_key", redactKey(key)),
				zap.String("tenant_id", tenant.ID),
			)
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Invalid API key"})
			c.Abort()
			return
		}

		c.Set(TenantKey, tenant)
		c.Set("tenant_id", tenant.ID)
		c.Next()
	}
}

func extractAPIKey(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if key := strings.TrimPrefix(header, "Bearer "); key != header {
			return strings.TrimSpace(key)
		}
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return strings.TrimSpace(c.Query("api_key"))
}

func redactKey(key string) string {
	if len(key) <= 4 {
		return "…"
	}
	return key[:4] + "…"
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization, X-API-Key")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
