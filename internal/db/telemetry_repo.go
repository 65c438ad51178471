package db

import (
	"time"

	"github.com/jmoiron/sqlx"
)

// Telemetry history is append-only; rows only leave through PruneSamples.

func (r *Repository) InsertSample(q sqlx.Ext, s *TelemetrySample) error {
	if q == nil {
		q = r.db
	}
	query := `
        INSERT INTO host_telemetria (
            id, host_id, cliente_id, cpu_percent, memory_percent,
            disk_percent, uptime_seconds, payload, created_at
        ) VALUES (
            :id, :host_id, :cliente_id, :cpu_percent, :memory_percent,
            :disk_percent, :uptime_seconds, :payload, :created_at
        )`

	_, err := sqlx.NamedExec(q, query, s)
	return err
}

// PruneSamples deletes samples for a host strictly older than cutoff. A row
// created exactly at the cutoff survives.
func (r *Repository) PruneSamples(hostID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM host_telemetria WHERE host_id = $1 AND created_at < $2`
	res, err := r.db.Exec(query, hostID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PruneTenantSamples is the sweep-side variant covering every host of a
// tenant, so history stays bounded even for hosts that stopped reporting.
func (r *Repository) PruneTenantSamples(tenantID string, cutoff time.Time) (int64, error) {
	query := `DELETE FROM host_telemetria WHERE cliente_id = $1 AND created_at < $2`
	res, err := r.db.Exec(query, tenantID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) GetRecentSamples(tenantID, hostID string, limit int) ([]*TelemetrySample, error) {
	samples := []*TelemetrySample{}
	query := `
        SELECT * FROM host_telemetria
        WHERE cliente_id = $1 AND host_id = $2
        ORDER BY created_at DESC
        LIMIT $3`

	err := r.db.Select(&samples, query, tenantID, hostID, limit)
	return samples, err
}
