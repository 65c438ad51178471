package ingest

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

// One collector for the whole package; promauto registers globally.
var testCollector = metrics.NewCollector(config.MimirConfig{})

var testNow = time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

var testTenant = &db.Tenant{
	ID:     "11111111-1111-1111-1111-111111111111",
	Slug:   "acme",
	Name:   "ACME Corp",
	Active: true,
}

func newTestRepo(t *testing.T) (*db.Repository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	return db.NewRepository(sqlx.NewDb(mockDB, "postgres")), mock
}

func newTelemetryService(t *testing.T) (*TelemetryService, sqlmock.Sqlmock) {
	t.Helper()
	repo, mock := newTestRepo(t)
	svc := NewTelemetryService(repo, testCollector, zap.NewNop())
	svc.now = func() time.Time { return testNow }
	return svc, mock
}

func hostColumns() []string {
	return []string{
		"id", "cliente_id", "nome", "hostname", "ip", "sistema_operacional",
		"tipo", "ativo", "online_status", "last_seen_at", "telemetry_enabled",
		"telemetry_interval_minutes", "telemetry_offline_threshold",
		"telemetry_data", "created_at", "updated_at",
	}
}

func existingHostRow() *sqlmock.Rows {
	return sqlmock.NewRows(hostColumns()).AddRow(
		"host-1", testTenant.ID, "srv1", "srv1.acme.local", "10.0.0.5", "Ubuntu 22.04",
		"vm", true, "online", testNow.Add(-5*time.Minute), true,
		5, 3,
		nil, testNow.Add(-24*time.Hour), testNow.Add(-5*time.Minute),
	)
}

// expectNoRetentionConfigured satisfies the fresh per-heartbeat settings read
// with neither a tenant nor a global row.
func expectNoRetentionConfigured(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id = \$2`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id IS NULL`).
		WillReturnError(sql.ErrNoRows)
}

func expectNoOrphans(mock sqlmock.Sqlmock) {
	mock.ExpectQuery(`SELECT (.+) FROM rotinas`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
}

func TestProcessCreatesHostOnFirstHeartbeat(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts WHERE cliente_id = \$1 AND nome = \$2`).
		WithArgs(testTenant.ID, "srv-new").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO hosts`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(`INSERT INTO host_telemetria`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	expectNoRetentionConfigured(mock)
	expectNoOrphans(mock)

	result, err := svc.Process(testTenant, map[string]interface{}{
		"host_name": "srv-new",
		"ip":        "10.0.0.9",
		"metrics": map[string]interface{}{
			"cpu_percent":    42.5,
			"memory_percent": 61.0,
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, "srv-new", result.HostName)
	assert.NotEmpty(t, result.HostID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessKeepsIdentityFieldsWhenPayloadOmitsThem(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts WHERE cliente_id = \$1 AND nome = \$2`).
		WithArgs(testTenant.ID, "srv1").
		WillReturnRows(existingHostRow())
	// Stored hostname/ip/os must come back unchanged in the update.
	mock.ExpectExec(`UPDATE hosts SET`).
		WithArgs("srv1.acme.local", "10.0.0.5", "Ubuntu 22.04", "online",
			testNow, nil, testNow, "host-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectNoRetentionConfigured(mock)
	expectNoOrphans(mock)

	result, err := svc.Process(testTenant, map[string]interface{}{
		"host_name": "srv1",
	})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "host-1", result.HostID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAppendsSampleOnEveryHeartbeat(t *testing.T) {
	svc, mock := newTelemetryService(t)

	for i := 0; i < 2; i++ {
		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT (.+) FROM hosts`).
			WillReturnRows(existingHostRow())
		mock.ExpectExec(`UPDATE hosts SET`).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(`INSERT INTO host_telemetria`).
			WithArgs(sqlmock.AnyArg(), "host-1", testTenant.ID, 42.5, 61.0, 70.0,
				nil, sqlmock.AnyArg(), testNow).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()
		expectNoRetentionConfigured(mock)
		expectNoOrphans(mock)
	}

	payload := map[string]interface{}{
		"host_name": "srv1",
		"metrics": map[string]interface{}{
			"cpu_percent":    42.5,
			"memory_percent": 61.0,
			"disk_percent":   70.0,
		},
	}

	// Identical repeated metrics still append, never deduplicate.
	for i := 0; i < 2; i++ {
		_, err := svc.Process(testTenant, payload)
		require.NoError(t, err)
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessAppliesRetention(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts`).
		WillReturnRows(existingHostRow())
	mock.ExpectExec(`UPDATE hosts SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id = \$2`).
		WithArgs(RetentionSettingKey, testTenant.ID).
		WillReturnRows(sqlmock.NewRows([]string{"valor"}).AddRow("7"))
	mock.ExpectExec(`DELETE FROM host_telemetria WHERE host_id = \$1 AND created_at < \$2`).
		WithArgs("host-1", testNow.AddDate(0, 0, -7)).
		WillReturnResult(sqlmock.NewResult(0, 3))
	expectNoOrphans(mock)

	_, err := svc.Process(testTenant, map[string]interface{}{"host_name": "srv1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessRetentionFailureDoesNotFailHeartbeat(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts`).
		WillReturnRows(existingHostRow())
	mock.ExpectExec(`UPDATE hosts SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectQuery(`SELECT valor FROM configuracoes WHERE chave = \$1 AND cliente_id = \$2`).
		WillReturnRows(sqlmock.NewRows([]string{"valor"}).AddRow("7"))
	mock.ExpectExec(`DELETE FROM host_telemetria`).
		WillReturnError(sql.ErrConnDone)
	expectNoOrphans(mock)

	_, err := svc.Process(testTenant, map[string]interface{}{"host_name": "srv1"})
	assert.NoError(t, err)
}

func TestProcessAutoLinksOrphanRoutineCaseInsensitively(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts`).
		WillReturnRows(existingHostRow())
	mock.ExpectExec(`UPDATE hosts SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectNoRetentionConfigured(mock)

	orphanColumns := []string{"id", "cliente_id", "host_id", "nome", "host_info"}
	mock.ExpectQuery(`SELECT (.+) FROM rotinas`).
		WillReturnRows(sqlmock.NewRows(orphanColumns).
			AddRow("rot-1", testTenant.ID, nil, "backup-diario", []byte(`{"nome":"SRV1"}`)).
			AddRow("rot-2", testTenant.ID, nil, "backup-semanal", []byte(`{"nome":"other"}`)))
	mock.ExpectExec(`UPDATE rotinas SET host_id = \$1`).
		WithArgs("host-1", "rot-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	// Host is "srv1"; host_info says "SRV1" — match is case-insensitive.
	_, err := svc.Process(testTenant, map[string]interface{}{"host_name": "srv1"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProcessMissingHostName(t *testing.T) {
	svc, _ := newTelemetryService(t)

	_, err := svc.Process(testTenant, map[string]interface{}{"foo": "bar"})
	require.Error(t, err)

	missing, ok := err.(*MissingHostNameError)
	require.True(t, ok)
	assert.Equal(t, []string{"foo"}, missing.ReceivedFields)
}

func TestProcessHostInsertRaceFallsBackToUpdate(t *testing.T) {
	svc, mock := newTelemetryService(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM hosts`).
		WillReturnError(sql.ErrNoRows)
	// Concurrent heartbeat won the (cliente_id, nome) race: the conflict
	// clause swallows the insert, zero rows affected.
	mock.ExpectExec(`INSERT INTO hosts`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT (.+) FROM hosts`).
		WillReturnRows(existingHostRow())
	mock.ExpectExec(`UPDATE hosts SET`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	expectNoRetentionConfigured(mock)
	expectNoOrphans(mock)

	result, err := svc.Process(testTenant, map[string]interface{}{"host_name": "srv1"})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, "host-1", result.HostID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
