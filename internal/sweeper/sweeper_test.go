package sweeper

import (
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/config"
	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/metrics"
)

var testCollector = metrics.NewCollector(config.MimirConfig{})

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

func newTestSweeper(t *testing.T) (*Sweeper, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	sw := New(db.NewRepository(sqlx.NewDb(mockDB, "postgres")), testCollector, zap.NewNop())
	sw.now = func() time.Time { return testNow }
	return sw, mock
}

func TestSweepMarksStaleHostsOfflineAndPrunes(t *testing.T) {
	sw, mock := newTestSweeper(t)

	mock.ExpectExec(`UPDATE hosts SET`).
		WithArgs(testNow).
		WillReturnResult(sqlmock.NewResult(0, 2))

	tenantColumns := []string{
		"id", "identificador", "nome", "api_key", "ativo", "created_at", "updated_at",
	}
	mock.ExpectQuery(`SELECT (.+) FROM clientes WHERE ativo = true`).
		WillReturnRows(sqlmock.NewRows(tenantColumns).AddRow(
			"t-1", "acme", "ACME Corp", "secret", true, testNow, testNow,
		))
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"valor"}).AddRow("7"))
	mock.ExpectExec(`DELETE FROM host_telemetria WHERE cliente_id = \$1 AND created_at < \$2`).
		WithArgs("t-1", testNow.AddDate(0, 0, -7)).
		WillReturnResult(sqlmock.NewResult(0, 5))

	sw.Sweep()

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSweepSkipsTenantsWithoutRetention(t *testing.T) {
	sw, mock := newTestSweeper(t)

	mock.ExpectExec(`UPDATE hosts SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	tenantColumns := []string{
		"id", "identificador", "nome", "api_key", "ativo", "created_at", "updated_at",
	}
	mock.ExpectQuery(`SELECT (.+) FROM clientes WHERE ativo = true`).
		WillReturnRows(sqlmock.NewRows(tenantColumns).AddRow(
			"t-1", "acme", "ACME Corp", "secret", true, testNow, testNow,
		))
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id = \$2`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id IS NULL`).
		WillReturnError(sql.ErrNoRows)
	// No DELETE expected.

	sw.Sweep()

	assert.NoError(t, mock.ExpectationsWereMet())
}
