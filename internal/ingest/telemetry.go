package ingest

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

// RetentionSettingKey is the configuration key controlling telemetry history
// retention in days. 0 or absent keeps history forever.
const RetentionSettingKey = "dias_retencao_telemetria"

// TelemetryService processes heartbeats: host upsert, sample append,
// retention and routine auto-link.
type TelemetryService struct {
	repo    *db.Repository
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

func NewTelemetryService(repo *db.Repository, collector *metrics.Collector, logger *zap.Logger) *TelemetryService {
	return &TelemetryService{
		repo:    repo,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

type HeartbeatResult struct {
	HostID   string
	HostName string
	Created  bool
}

// Process handles one heartbeat. The host upsert and sample append run in a
// single transaction; retention and auto-link are best-effort bookkeeping
// that must never fail the liveness signal.
func (s *TelemetryService) Process(tenant *db.Tenant, payload map[string]interface{}) (*HeartbeatResult, error) {
	name := resolveField(payload, hostNameKeys...)
	if name == "" {
		return nil, &MissingHostNameError{ReceivedFields: payloadKeys(payload)}
	}

	metricsObj, _ := payload["metrics"].(map[string]interface{})
	now := s.now()

	var host *db.Host
	var created bool

	err := s.repo.InTx(func(tx *sqlx.Tx) error {
		var err error
		host, created, err = s.upsertHost(tx, tenant, name, payload, metricsObj, now)
		if err != nil {
			return err
		}

		if metricsObj != nil {
			sample := buildSample(host, metricsObj, now)
			if err := s.repo.InsertSample(tx, sample); err != nil {
				return fmt.Errorf("append telemetry sample: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordHeartbeat(tenant.ID)
	if created {
		s.metrics.RecordHostAutoCreated(tenant.ID)
		s.logger.Info("Host auto-created via telemetry",
			zap.String("tenant_id", tenant.ID),
			zap.String("host_id", host.ID),
			zap.String("host_name", host.Name),
		)
	}
	if metricsObj != nil {
		cpu, _ := numberField(metricsObj, "cpu_percent")
		mem, _ := numberField(metricsObj, "memory_percent")
		disk, _ := numberField(metricsObj, "disk_percent")
		s.metrics.RecordSample(tenant.ID, host.Name, cpu, mem, disk)
	}

	// Soft failures from here on: logged, never surfaced.
	s.applyRetention(tenant, host, now)
	s.autoLinkRoutines(tenant, host)

	return &HeartbeatResult{HostID: host.ID, HostName: host.Name, Created: created}, nil
}

func (s *TelemetryService) upsertHost(tx *sqlx.Tx, tenant *db.Tenant, name string, payload, metricsObj map[string]interface{}, now time.Time) (*db.Host, bool, error) {
	host, err := s.repo.GetHostByName(tx, tenant.ID, name)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, false, fmt.Errorf("lookup host: %w", err)
	}

	if host == nil {
		host = &db.Host{
			ID:                 uuid.New().String(),
			TenantID:           tenant.ID,
			Name:               name,
			Hostname:           resolveField(payload, "hostname"),
			IP:                 resolveField(payload, "ip"),
			OS:                 resolveField(payload, "sistema_operacional", "os"),
			Type:               resolveField(payload, "tipo", "type"),
			Active:             true,
			OnlineStatus:       db.HostOnline,
			LastSeenAt:         &now,
			TelemetryEnabled:   true,
			TelemetryInterval:  5,
			TelemetryThreshold: 3,
			CreatedAt:          now,
			UpdatedAt:          now,
		}
		if metricsObj != nil {
			host.TelemetryData = db.JSONB(metricsObj)
		}

		err = s.repo.InsertHost(tx, host)
		if err == nil {
			return host, true, nil
		}
		if !errors.Is(err, db.ErrHostExists) {
			return nil, false, fmt.Errorf("create host: %w", err)
		}

		// Lost the (tenant, nome) race to a concurrent heartbeat; fall
		// through to a plain update.
		host, err = s.repo.GetHostByName(tx, tenant.ID, name)
		if err != nil {
			return nil, false, fmt.Errorf("re-fetch host after insert race: %w", err)
		}
	}

	// Overwrite identity fields only when the payload carries a different
	// non-empty value.
	if v := resolveField(payload, "ip"); v != "" && v != host.IP {
		host.IP = v
	}
	if v := resolveField(payload, "hostname"); v != "" && v != host.Hostname {
		host.Hostname = v
	}
	if v := resolveField(payload, "sistema_operacional", "os"); v != "" && v != host.OS {
		host.OS = v
	}
	host.OnlineStatus = db.HostOnline
	host.LastSeenAt = &now
	host.UpdatedAt = now
	if metricsObj != nil {
		host.TelemetryData = db.JSONB(metricsObj)
	}

	if err := s.repo.TouchHost(tx, host); err != nil {
		return nil, false, fmt.Errorf("update host: %w", err)
	}
	return host, false, nil
}

func buildSample(host *db.Host, metricsObj map[string]interface{}, now time.Time) *db.TelemetrySample {
	sample := &db.TelemetrySample{
		ID:        uuid.New().String(),
		HostID:    host.ID,
		TenantID:  host.TenantID,
		Payload:   db.JSONB(metricsObj),
		CreatedAt: now,
	}
	// Missing numeric sub-fields default to 0; uptime stays NULL.
	sample.CPUPercent, _ = numberField(metricsObj, "cpu_percent")
	sample.MemoryPercent, _ = numberField(metricsObj, "memory_percent")
	sample.DiskPercent, _ = numberField(metricsObj, "disk_percent")
	if uptime, ok := numberField(metricsObj, "uptime_seconds"); ok {
		sample.UptimeSeconds = &uptime
	}
	return sample
}

// applyRetention reads the retention setting fresh on every heartbeat so an
// operator change takes effect immediately.
func (s *TelemetryService) applyRetention(tenant *db.Tenant, host *db.Host, now time.Time) {
	days := RetentionDays(s.repo, tenant.ID)
	if days <= 0 {
		return
	}

	cutoff := now.AddDate(0, 0, -days)
	deleted, err := s.repo.PruneSamples(host.ID, cutoff)
	if err != nil {
		s.logger.Warn("Telemetry retention failed",
			zap.Error(err),
			zap.String("host_id", host.ID),
		)
		return
	}
	s.metrics.RecordRetention(tenant.ID, deleted)
}

// RetentionDays resolves the tenant's retention window. Absent, zero,
// negative or non-numeric settings all mean "keep forever".
func RetentionDays(repo *db.Repository, tenantID string) int {
	value, err := repo.GetSetting(tenantID, RetentionSettingKey)
	if err != nil {
		return 0
	}
	days, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || days < 0 {
		return 0
	}
	return days
}

// autoLinkRoutines binds orphaned routines whose host_info names this host.
func (s *TelemetryService) autoLinkRoutines(tenant *db.Tenant, host *db.Host) {
	orphans, err := s.repo.GetOrphanRoutines(tenant.ID)
	if err != nil {
		s.logger.Warn("Failed to scan orphaned routines", zap.Error(err))
		return
	}

	for _, routine := range orphans {
		expected := resolveField(routine.HostInfo, "nome", "name", "host_name", "hostname")
		if expected == "" || !strings.EqualFold(expected, host.Name) {
			continue
		}

		if err := s.repo.BindRoutineToHost(routine.ID, host.ID); err != nil {
			s.logger.Warn("Failed to auto-link routine",
				zap.Error(err),
				zap.String("routine_id", routine.ID),
				zap.String("host_id", host.ID),
			)
			continue
		}

		s.metrics.RecordAutoLink(tenant.ID)
		s.logger.Info("Routine auto-linked to host",
			zap.String("tenant_id", tenant.ID),
			zap.String("routine_id", routine.ID),
			zap.String("routine", routine.Name),
			zap.String("host_id", host.ID),
			zap.String("host_name", host.Name),
		)
	}
}
