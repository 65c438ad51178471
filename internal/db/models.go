package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type OnlineStatus string

const (
	HostUnknown OnlineStatus = "unknown"
	HostOnline  OnlineStatus = "online"
	HostOffline OnlineStatus = "offline"
)

type ExecutionStatus string

const (
	ExecutionRunning ExecutionStatus = "executando"
	ExecutionSuccess ExecutionStatus = "sucesso"
	ExecutionFailure ExecutionStatus = "falha"
	ExecutionAlert   ExecutionStatus = "alerta"
)

// ValidExecutionStatus reports whether s is one of the statuses agents may
// report.
func ValidExecutionStatus(s string) bool {
	switch ExecutionStatus(s) {
	case ExecutionRunning, ExecutionSuccess, ExecutionFailure, ExecutionAlert:
		return true
	}
	return false
}

// Tenant is the root aggregate: every host, routine and execution belongs to
// exactly one. Agents authenticate with the tenant's api_key.
type Tenant struct {
	ID        string    `json:"id" db:"id"`
	Slug      string    `json:"identificador" db:"identificador"`
	Name      string    `json:"nome" db:"nome"`
	APIKey    string    `json:"-" db:"api_key"`
	Active    bool      `json:"ativo" db:"ativo"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Host struct {
	ID                 string       `json:"id" db:"id"`
	TenantID           string       `json:"-" db:"cliente_id"`
	Name               string       `json:"nome" db:"nome"`
	Hostname           string       `json:"hostname" db:"hostname"`
	IP                 string       `json:"ip" db:"ip"`
	OS                 string       `json:"sistema_operacional" db:"sistema_operacional"`
	Type               string       `json:"tipo" db:"tipo"`
	Active             bool         `json:"ativo" db:"ativo"`
	OnlineStatus       OnlineStatus `json:"online_status" db:"online_status"`
	LastSeenAt         *time.Time   `json:"last_seen_at" db:"last_seen_at"`
	TelemetryEnabled   bool         `json:"telemetry_enabled" db:"telemetry_enabled"`
	TelemetryInterval  int          `json:"telemetry_interval_minutes" db:"telemetry_interval_minutes"`
	TelemetryThreshold int          `json:"telemetry_offline_threshold" db:"telemetry_offline_threshold"`
	TelemetryData      JSONB        `json:"telemetry_data" db:"telemetry_data"`
	CreatedAt          time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time    `json:"updated_at" db:"updated_at"`
}

// TelemetrySample is one append-only metrics row. Rows are only ever removed
// by retention pruning.
type TelemetrySample struct {
	ID            string    `json:"id" db:"id"`
	HostID        string    `json:"host_id" db:"host_id"`
	TenantID      string    `json:"-" db:"cliente_id"`
	CPUPercent    float64   `json:"cpu_percent" db:"cpu_percent"`
	MemoryPercent float64   `json:"memory_percent" db:"memory_percent"`
	DiskPercent   float64   `json:"disk_percent" db:"disk_percent"`
	UptimeSeconds *float64  `json:"uptime_seconds" db:"uptime_seconds"`
	Payload       JSONB     `json:"payload" db:"payload"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// ServerGroup is the legacy "servidor" grouping older agents report under; a
// weaker host reference kept for backward compatibility.
type ServerGroup struct {
	ID        string    `json:"id" db:"id"`
	TenantID  string    `json:"-" db:"cliente_id"`
	Name      string    `json:"nome" db:"nome"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Routine struct {
	ID          string    `json:"id" db:"id"`
	TenantID    string    `json:"-" db:"cliente_id"`
	ServerID    *string   `json:"servidor_id" db:"servidor_id"`
	HostID      *string   `json:"host_id" db:"host_id"`
	RoutineKey  string    `json:"-" db:"routine_key"`
	Name        string    `json:"nome" db:"nome"`
	Type        string    `json:"tipo" db:"tipo"`
	Schedule    string    `json:"agendamento" db:"agendamento"`
	Destination string    `json:"destino" db:"destino"`
	Active      bool      `json:"ativa" db:"ativa"`
	HostInfo    JSONB     `json:"host_info" db:"host_info"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Execution denormalizes cliente_id and host_id from its routine for read
// efficiency; the ingest service always derives them from the owning routine.
type Execution struct {
	ID           string          `json:"id" db:"id"`
	RoutineID    string          `json:"rotina_id" db:"rotina_id"`
	TenantID     string          `json:"-" db:"cliente_id"`
	HostID       *string         `json:"host_id" db:"host_id"`
	StartedAt    time.Time       `json:"data_inicio" db:"data_inicio"`
	FinishedAt   *time.Time      `json:"data_fim" db:"data_fim"`
	Status       ExecutionStatus `json:"status" db:"status"`
	SizeBytes    *int64          `json:"tamanho_bytes" db:"tamanho_bytes"`
	Destination  string          `json:"destino" db:"destino"`
	ErrorMessage *string         `json:"mensagem_erro" db:"mensagem_erro"`
	Details      JSONB           `json:"detalhes" db:"detalhes"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Setting is one row of the key/value configuration store. TenantID is NULL
// for global defaults.
type Setting struct {
	Key      string  `json:"chave" db:"chave"`
	Value    string  `json:"valor" db:"valor"`
	TenantID *string `json:"-" db:"cliente_id"`
}

// JSONB maps a Postgres jsonb column to a generic object. Opaque payloads
// (telemetry_data, host_info, detalhes) are stored and returned as-is.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("jsonb scan: unexpected type %T", value)
	}
	return json.Unmarshal(b, j)
}
