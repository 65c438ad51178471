package handlers

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/api/middleware"
	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/ingest"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

type Handler struct {
	repo      *db.Repository
	telemetry *ingest.TelemetryService
	backup    *ingest.BackupService
	metrics   *metrics.Collector
	logger    *zap.Logger
}

func NewHandler(repo *db.Repository, collector *metrics.Collector, logger *zap.Logger) *Handler {
	return &Handler{
		repo:      repo,
		telemetry: ingest.NewTelemetryService(repo, collector, logger),
		backup:    ingest.NewBackupService(repo, collector, logger),
		metrics:   collector,
		logger:    logger,
	}
}

// tenant returns the principal attached by the auth middleware.
func (h *Handler) tenant(c *gin.Context) *db.Tenant {
	value, _ := c.Get(middleware.TenantKey)
	tenant, _ := value.(*db.Tenant)
	return tenant
}
