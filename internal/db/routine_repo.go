package db

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

// Server groupings and routines.

func (r *Repository) GetServerGroupByName(q sqlx.Ext, tenantID, name string) (*ServerGroup, error) {
	if q == nil {
		q = r.db
	}
	var g ServerGroup
	query := `SELECT * FROM servidores WHERE cliente_id = $1 AND nome = $2`
	err := sqlx.Get(q, &g, query, tenantID, name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *Repository) InsertServerGroup(q sqlx.Ext, g *ServerGroup) error {
	if q == nil {
		q = r.db
	}
	query := `
        INSERT INTO servidores (id, cliente_id, nome, created_at)
        VALUES (:id, :cliente_id, :nome, :created_at)`

	_, err := sqlx.NamedExec(q, query, g)
	return err
}

func (r *Repository) GetRoutineByName(q sqlx.Ext, tenantID, name string) (*Routine, error) {
	if q == nil {
		q = r.db
	}
	var rt Routine
	query := `SELECT * FROM rotinas WHERE cliente_id = $1 AND nome = $2`
	err := sqlx.Get(q, &rt, query, tenantID, name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rt, nil
}

func (r *Repository) InsertRoutine(q sqlx.Ext, rt *Routine) error {
	if q == nil {
		q = r.db
	}
	query := `
        INSERT INTO rotinas (
            id, cliente_id, servidor_id, host_id, routine_key, nome, tipo,
            agendamento, destino, ativa, host_info, created_at, updated_at
        ) VALUES (
            :id, :cliente_id, :servidor_id, :host_id, :routine_key, :nome, :tipo,
            :agendamento, :destino, :ativa, :host_info, :created_at, :updated_at
        )`

	_, err := sqlx.NamedExec(q, query, rt)
	return err
}

func (r *Repository) RoutineKeyExists(key string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM rotinas WHERE routine_key = $1)`
	err := r.db.Get(&exists, query, key)
	return exists, err
}

func (r *Repository) GetActiveRoutinesByTenant(tenantID string) ([]*Routine, error) {
	routines := []*Routine{}
	query := `
        SELECT * FROM rotinas
        WHERE cliente_id = $1 AND ativa = true
        ORDER BY nome`

	err := r.db.Select(&routines, query, tenantID)
	return routines, err
}

// GetOrphanRoutines lists routines with no bound host but a host_info
// snapshot describing the one they expect. Auto-link candidates.
func (r *Repository) GetOrphanRoutines(tenantID string) ([]*Routine, error) {
	routines := []*Routine{}
	query := `
        SELECT * FROM rotinas
        WHERE cliente_id = $1
        AND host_id IS NULL
        AND host_info IS NOT NULL`

	err := r.db.Select(&routines, query, tenantID)
	return routines, err
}

func (r *Repository) BindRoutineToHost(routineID, hostID string) error {
	query := `UPDATE rotinas SET host_id = $1, updated_at = NOW() WHERE id = $2`
	_, err := r.db.Exec(query, hostID, routineID)
	return err
}
