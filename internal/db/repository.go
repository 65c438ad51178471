package db

import (
	"database/sql"
	"embed"
	"errors"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

var (
	ErrNotFound   = errors.New("not found")
	ErrHostExists = errors.New("host already exists")
)

type Repository struct {
	db *sqlx.DB
}

func NewConnection(databaseURL string) (*sqlx.DB, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Ping() error {
	return r.db.Ping()
}

// RunMigrations applies the embedded schema migrations.
func RunMigrations(db *sqlx.DB) error {
	source, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return err
	}

	driver, err := postgres.WithInstance(db.DB, &postgres.Config{})
	if err != nil {
		return err
	}

	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return err
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// InTx runs fn inside a transaction, rolling back on error.
func (r *Repository) InTx(fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Tenant operations

func (r *Repository) GetTenantByAPIKey(apiKey string) (*Tenant, error) {
	var t Tenant
	query := `SELECT * FROM clientes WHERE api_key = $1`
	err := r.db.Get(&t, query, apiKey)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *Repository) TenantSlugExists(slug string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM clientes WHERE identificador = $1)`
	err := r.db.Get(&exists, query, slug)
	return exists, err
}

func (r *Repository) CreateTenant(t *Tenant) error {
	query := `
        INSERT INTO clientes (
            id, identificador, nome, api_key, ativo, created_at, updated_at
        ) VALUES (
            :id, :identificador, :nome, :api_key, :ativo, :created_at, :updated_at
        )`

	_, err := r.db.NamedExec(query, t)
	return err
}

func (r *Repository) GetActiveTenants() ([]*Tenant, error) {
	tenants := []*Tenant{}
	query := `SELECT * FROM clientes WHERE ativo = true ORDER BY identificador`
	err := r.db.Select(&tenants, query)
	return tenants, err
}

// Configuration store

// GetSetting resolves a configuration key for a tenant, falling back to the
// global row (cliente_id NULL). Returns ErrNotFound when neither exists.
func (r *Repository) GetSetting(tenantID, key string) (string, error) {
	var value string
	query := `SELECT valor FROM configuracoes WHERE chave = $1 AND cliente_id = $2`
	err := r.db.Get(&value, query, key, tenantID)
	if err == nil {
		return value, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	query = `SELECT valor FROM configuracoes WHERE chave = $1 AND cliente_id IS NULL`
	err = r.db.Get(&value, query, key)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *Repository) SetSetting(tenantID *string, key, value string) error {
	query := `
        INSERT INTO configuracoes (chave, cliente_id, valor)
        VALUES ($1, $2, $3)
        ON CONFLICT (chave, cliente_id) DO UPDATE SET valor = $3`
	_, err := r.db.Exec(query, key, tenantID, value)
	return err
}
