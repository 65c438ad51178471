package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/keys"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionSkipped = "skipped"
)

// BackupService ingests backup-run reports with the (rotina, data_inicio)
// idempotency contract.
type BackupService struct {
	repo    *db.Repository
	metrics *metrics.Collector
	logger  *zap.Logger
	now     func() time.Time
}

func NewBackupService(repo *db.Repository, collector *metrics.Collector, logger *zap.Logger) *BackupService {
	return &BackupService{
		repo:    repo,
		metrics: collector,
		logger:  logger,
		now:     time.Now,
	}
}

type backupReport struct {
	Server       string
	Routine      string
	StartedAt    time.Time
	FinishedAt   *time.Time
	Status       db.ExecutionStatus
	SizeBytes    *int64
	Destination  string
	ErrorMessage string
	Details      map[string]interface{}
}

type ReportResult struct {
	ExecutionID string
	Action      string
}

// Report validates and applies one backup report inside a single
// transaction. Any persistence failure rolls the whole report back.
func (s *BackupService) Report(tenant *db.Tenant, payload map[string]interface{}) (*ReportResult, error) {
	report, err := parseReport(payload)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := &ReportResult{}

	err = s.repo.InTx(func(tx *sqlx.Tx) error {
		group, err := s.getOrCreateServerGroup(tx, tenant, report.Server, now)
		if err != nil {
			return err
		}

		routine, err := s.getOrCreateRoutine(tx, tenant, group, report, now)
		if err != nil {
			return err
		}

		return s.upsertExecution(tx, routine, report, result, now)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordExecution(tenant.ID, result.Action)
	s.logger.Info("Backup report processed",
		zap.String("tenant_id", tenant.ID),
		zap.String("rotina", report.Routine),
		zap.String("execucao_id", result.ExecutionID),
		zap.String("action", result.Action),
	)
	return result, nil
}

func parseReport(payload map[string]interface{}) (*backupReport, error) {
	errs := map[string]string{}
	report := &backupReport{}

	report.Server = resolveField(payload, "servidor")
	if report.Server == "" {
		errs["servidor"] = "campo obrigatório"
	}
	report.Routine = resolveField(payload, "rotina")
	if report.Routine == "" {
		errs["rotina"] = "campo obrigatório"
	}

	status := resolveField(payload, "status")
	if status == "" {
		errs["status"] = "campo obrigatório"
	} else if !db.ValidExecutionStatus(status) {
		errs["status"] = "deve ser um de: sucesso, falha, alerta, executando"
	} else {
		report.Status = db.ExecutionStatus(status)
	}

	if start := resolveField(payload, "data_inicio"); start == "" {
		errs["data_inicio"] = "campo obrigatório"
	} else if t, err := parseTimestamp(start); err != nil {
		errs["data_inicio"] = err.Error()
	} else {
		report.StartedAt = t
	}

	if end := resolveField(payload, "data_fim"); end != "" {
		if t, err := parseTimestamp(end); err != nil {
			errs["data_fim"] = err.Error()
		} else {
			report.FinishedAt = &t
		}
	}

	if _, ok := payload["tamanho_bytes"]; ok {
		if size, ok := numberField(payload, "tamanho_bytes"); ok {
			bytes := int64(size)
			report.SizeBytes = &bytes
		} else {
			errs["tamanho_bytes"] = "deve ser numérico"
		}
	}

	report.Destination = resolveField(payload, "destino")
	report.ErrorMessage = resolveField(payload, "mensagem_erro")
	if details, ok := payload["detalhes"].(map[string]interface{}); ok {
		report.Details = details
	}

	if len(errs) > 0 {
		return nil, &ValidationError{Fields: errs}
	}
	return report, nil
}

func (s *BackupService) getOrCreateServerGroup(tx *sqlx.Tx, tenant *db.Tenant, name string, now time.Time) (*db.ServerGroup, error) {
	group, err := s.repo.GetServerGroupByName(tx, tenant.ID, name)
	if err == nil {
		return group, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("lookup server group: %w", err)
	}

	group = &db.ServerGroup{
		ID:        uuid.New().String(),
		TenantID:  tenant.ID,
		Name:      name,
		CreatedAt: now,
	}
	if err := s.repo.InsertServerGroup(tx, group); err != nil {
		return nil, fmt.Errorf("create server group: %w", err)
	}
	return group, nil
}

func (s *BackupService) getOrCreateRoutine(tx *sqlx.Tx, tenant *db.Tenant, group *db.ServerGroup, report *backupReport, now time.Time) (*db.Routine, error) {
	routine, err := s.repo.GetRoutineByName(tx, tenant.ID, report.Routine)
	if err == nil {
		return routine, nil
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, fmt.Errorf("lookup routine: %w", err)
	}

	key, err := keys.NewUniqueToken(s.repo.RoutineKeyExists)
	if err != nil {
		return nil, fmt.Errorf("generate routine key: %w", err)
	}

	routine = &db.Routine{
		ID:          uuid.New().String(),
		TenantID:    tenant.ID,
		ServerID:    &group.ID,
		RoutineKey:  key,
		Name:        report.Routine,
		Destination: report.Destination,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.InsertRoutine(tx, routine); err != nil {
		return nil, fmt.Errorf("create routine: %w", err)
	}
	return routine, nil
}

func (s *BackupService) upsertExecution(tx *sqlx.Tx, routine *db.Routine, report *backupReport, result *ReportResult, now time.Time) error {
	existing, err := s.repo.GetExecutionByStart(tx, routine.ID, report.StartedAt)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return fmt.Errorf("lookup execution: %w", err)
	}

	if existing == nil {
		execution := &db.Execution{
			ID:        uuid.New().String(),
			RoutineID: routine.ID,
			// Tenant and host always mirror the owning routine.
			TenantID:    routine.TenantID,
			HostID:      routine.HostID,
			StartedAt:   report.StartedAt,
			FinishedAt:  report.FinishedAt,
			Status:      report.Status,
			SizeBytes:   report.SizeBytes,
			Destination: report.Destination,
			Details:     db.JSONB(report.Details),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if report.ErrorMessage != "" {
			execution.ErrorMessage = &report.ErrorMessage
		}
		if err := s.repo.InsertExecution(tx, execution); err != nil {
			return fmt.Errorf("insert execution: %w", err)
		}
		result.ExecutionID = execution.ID
		result.Action = ActionCreated
		return nil
	}

	result.ExecutionID = existing.ID
	if !updateWorthy(existing, report) {
		result.Action = ActionSkipped
		return nil
	}

	existing.Status = report.Status
	if report.FinishedAt != nil {
		existing.FinishedAt = report.FinishedAt
	}
	if report.SizeBytes != nil {
		existing.SizeBytes = report.SizeBytes
	}
	if report.Destination != "" {
		existing.Destination = report.Destination
	}
	if report.ErrorMessage != "" {
		existing.ErrorMessage = &report.ErrorMessage
	}
	if report.Details != nil {
		existing.Details = db.JSONB(report.Details)
	}
	existing.UpdatedAt = now

	if err := s.repo.UpdateExecution(tx, existing); err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	result.Action = ActionUpdated
	return nil
}

// updateWorthy decides whether a resend of an already-known execution carries
// anything new: a status change, a first data_fim, or a first tamanho_bytes.
// Identical retries are skipped so agent retry storms stay write-free.
func updateWorthy(existing *db.Execution, report *backupReport) bool {
	if existing.Status != report.Status {
		return true
	}
	if existing.FinishedAt == nil && report.FinishedAt != nil {
		return true
	}
	if existing.SizeBytes == nil && report.SizeBytes != nil {
		return true
	}
	return false
}
