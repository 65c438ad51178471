package db

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// Execution ledger. (rotina_id, data_inicio) is the natural key agents retry
// against; the update-worthiness policy lives in the ingest service.

func (r *Repository) GetExecutionByStart(q sqlx.Ext, routineID string, startedAt time.Time) (*Execution, error) {
	if q == nil {
		q = r.db
	}
	var e Execution
	query := `SELECT * FROM execucoes WHERE rotina_id = $1 AND data_inicio = $2`
	err := sqlx.Get(q, &e, query, routineID, startedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (r *Repository) InsertExecution(q sqlx.Ext, e *Execution) error {
	if q == nil {
		q = r.db
	}
	query := `
        INSERT INTO execucoes (
            id, rotina_id, cliente_id, host_id, data_inicio, data_fim,
            status, tamanho_bytes, destino, mensagem_erro, detalhes,
            created_at, updated_at
        ) VALUES (
            :id, :rotina_id, :cliente_id, :host_id, :data_inicio, :data_fim,
            :status, :tamanho_bytes, :destino, :mensagem_erro, :detalhes,
            :created_at, :updated_at
        )`

	_, err := sqlx.NamedExec(q, query, e)
	return err
}

func (r *Repository) UpdateExecution(q sqlx.Ext, e *Execution) error {
	if q == nil {
		q = r.db
	}
	query := `
        UPDATE execucoes SET
            data_fim = :data_fim,
            status = :status,
            tamanho_bytes = :tamanho_bytes,
            destino = :destino,
            mensagem_erro = :mensagem_erro,
            detalhes = :detalhes,
            updated_at = :updated_at
        WHERE id = :id`

	_, err := sqlx.NamedExec(q, query, e)
	return err
}

func (r *Repository) GetRecentExecutions(tenantID string, limit int) ([]*Execution, error) {
	executions := []*Execution{}
	query := `
        SELECT * FROM execucoes
        WHERE cliente_id = $1
        ORDER BY data_inicio DESC
        LIMIT $2`

	err := r.db.Select(&executions, query, tenantID, limit)
	return executions, err
}
