package middleware

import (
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/backupwatch/backupwatch/internal/db"
)

func newAuthRouter(t *testing.T) (*gin.Engine, sqlmock.Sqlmock) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { mockDB.Close() })

	repo := db.NewRepository(sqlx.NewDb(mockDB, "postgres"))

	router := gin.New()
	router.Use(APIKeyAuth(repo, zap.NewNop()))
	router.GET("/probe", func(c *gin.Context) {
		tenant := c.MustGet(TenantKey).(*db.Tenant)
		c.JSON(http.StatusOK, gin.H{"tenant": tenant.Slug})
	})
	return router, mock
}

func tenantRow(active bool) *sqlmock.Rows {
	now := time.Now()
	return sqlmock.NewRows([]string{
		"id", "identificador", "nome", "api_key", "ativo", "created_at", "updated_at",
	}).AddRow("t-1", "acme", "ACME Corp", "secret-key", active, now, now)
}

func TestAuthMissingCredential(t *testing.T) {
	router, _ := newAuthRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/probe", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthUnknownKey(t *testing.T) {
	router, mock := newAuthRouter(t)

	mock.ExpectQuery(`SELECT (.+) FROM clientes WHERE api_key = \$1`).
		WithArgs("nope").
		WillReturnError(sql.ErrNoRows)

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("X-API-Key", "nope")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthInactiveTenant(t *testing.T) {
	router, mock := newAuthRouter(t)

	mock.ExpectQuery(`SELECT (.+) FROM clientes WHERE api_key = \$1`).
		WithArgs("secret-key").
		WillReturnRows(tenantRow(false))

	req := httptest.NewRequest(http.MethodGet, "/probe", nil)
	req.Header.Set("Authorization", "Bearer secret-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthCredentialTransports(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(*http.Request)
	}{
		{
			name: "bearer header",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer secret-key")
			},
		},
		{
			name: "x-api-key header",
			prepare: func(r *http.Request) {
				r.Header.Set("X-API-Key", "secret-key")
			},
		},
		{
			name:    "query parameter",
			prepare: func(r *http.Request) { r.URL.RawQuery = "api_key=secret-key" },
		},
		{
			name: "bearer header wins over the others",
			prepare: func(r *http.Request) {
				r.Header.Set("Authorization", "Bearer secret-key")
				r.Header.Set("X-API-Key", "wrong")
				r.URL.RawQuery = "api_key=also-wrong"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, mock := newAuthRouter(t)
			mock.ExpectQuery(`SELECT (.+) FROM clientes WHERE api_key = \$1`).
				WithArgs("secret-key").
				WillReturnRows(tenantRow(true))

			req := httptest.NewRequest(http.MethodGet, "/probe", nil)
			tt.prepare(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), "acme")
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestRedactKey(t *testing.T) {
	assert.Equal(t, "abcd…", redactKey("abcdef123456"))
	assert.Equal(t, "…", redactKey("ab"))
}
