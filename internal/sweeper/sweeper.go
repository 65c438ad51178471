// Package sweeper runs the periodic jobs the ingestion path deliberately does
// not: declaring silent hosts offline and pruning telemetry history for
// tenants whose hosts stopped reporting.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/ingest"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

type Sweeper struct {
	repo    *db.Repository
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

func New(repo *db.Repository, collector *metrics.Collector, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		repo:    repo,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	s.logger.Info("Sweeper started", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Sweep performs one pass. Each job fails independently.
func (s *Sweeper) Sweep() {
	now := s.now()

	marked, err := s.repo.MarkStaleHostsOffline(now)
	if err != nil {
		s.logger.Error("Offline sweep failed", zap.Error(err))
	} else if marked > 0 {
		s.metrics.RecordSweep(marked)
		s.logger.Info("Hosts marked offline", zap.Int64("count", marked))
	}

	s.pruneTelemetry(now)
}

func (s *Sweeper) pruneTelemetry(now time.Time) {
	tenants, err := s.repo.GetActiveTenants()
	if err != nil {
		s.logger.Error("Failed to list tenants for retention", zap.Error(err))
		return
	}

	for _, tenant := range tenants {
		days := ingest.RetentionDays(s.repo, tenant.ID)
		if days <= 0 {
			continue
		}

		cutoff := now.AddDate(0, 0, -days)
		deleted, err := s.repo.PruneTenantSamples(tenant.ID, cutoff)
		if err != nil {
			s.logger.Warn("Tenant retention failed",
				zap.Error(err),
				zap.String("tenant_id", tenant.ID),
			)
			continue
		}
		if deleted > 0 {
			s.metrics.RecordRetention(tenant.ID, deleted)
			s.logger.Info("Telemetry pruned",
				zap.String("tenant_id", tenant.ID),
				zap.Int64("deleted", deleted),
				zap.Int("retention_days", days),
			)
		}
	}
}
