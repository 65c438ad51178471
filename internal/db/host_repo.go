package db

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Host operations. Methods that participate in the heartbeat transaction take
// an sqlx.Ext so they run against either the pool or an open tx.

func (r *Repository) GetHostByName(q sqlx.Ext, tenantID, name string) (*Host, error) {
	if q == nil {
		q = r.db
	}
	var h Host
	query := `SELECT * FROM hosts WHERE cliente_id = $1 AND nome = $2`
	err := sqlx.Get(q, &h, query, tenantID, name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// InsertHost creates the row. Returns ErrHostExists when another request won
// the (cliente_id, nome) race, so the caller can fall back to an update. The
// conflict clause keeps the surrounding transaction usable after a lost race.
func (r *Repository) InsertHost(q sqlx.Ext, h *Host) error {
	if q == nil {
		q = r.db
	}
	query := `
        INSERT INTO hosts (
            id, cliente_id, nome, hostname, ip, sistema_operacional, tipo,
            ativo, online_status, last_seen_at, telemetry_enabled,
            telemetry_interval_minutes, telemetry_offline_threshold,
            telemetry_data, created_at, updated_at
        ) VALUES (
            :id, :cliente_id, :nome, :hostname, :ip, :sistema_operacional, :tipo,
            :ativo, :online_status, :last_seen_at, :telemetry_enabled,
            :telemetry_interval_minutes, :telemetry_offline_threshold,
            :telemetry_data, :created_at, :updated_at
        ) ON CONFLICT (cliente_id, nome) DO NOTHING`

	res, err := sqlx.NamedExec(q, query, h)
	if err != nil {
		return err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if inserted == 0 {
		return ErrHostExists
	}
	return nil
}

// TouchHost applies the heartbeat mutation: liveness, the conditional
// identity fields and the telemetry snapshot.
func (r *Repository) TouchHost(q sqlx.Ext, h *Host) error {
	if q == nil {
		q = r.db
	}
	query := `
        UPDATE hosts SET
            hostname = :hostname,
            ip = :ip,
            sistema_operacional = :sistema_operacional,
            online_status = :online_status,
            last_seen_at = :last_seen_at,
            telemetry_data = :telemetry_data,
            updated_at = :updated_at
        WHERE id = :id`

	_, err := sqlx.NamedExec(q, query, h)
	return err
}

func (r *Repository) GetActiveHostsByTenant(tenantID string) ([]*Host, error) {
	hosts := []*Host{}
	query := `
        SELECT * FROM hosts
        WHERE cliente_id = $1 AND ativo = true
        ORDER BY nome`

	err := r.db.Select(&hosts, query, tenantID)
	return hosts, err
}

// MarkStaleHostsOffline flips hosts whose last heartbeat is older than
// interval × threshold. It is the only writer of online_status = 'offline'.
func (r *Repository) MarkStaleHostsOffline(now time.Time) (int64, error) {
	query := `
        UPDATE hosts SET
            online_status = 'offline',
            updated_at = $1
        WHERE telemetry_enabled = true
        AND online_status = 'online'
        AND last_seen_at IS NOT NULL
        AND last_seen_at + (telemetry_interval_minutes * telemetry_offline_threshold || ' minutes')::interval < $1`

	res, err := r.db.Exec(query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
