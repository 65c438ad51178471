// Seed registers a tenant and prints its API key. Meant for bootstrapping a
// fresh install or a local environment.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/backupwatch/backupwatch/internal/config"
	"github.com/backupwatch/backupwatch/internal/db"
	"github.com/backupwatch/backupwatch/internal/ingest"
	"github.com/backupwatch/backupwatch/internal/keys"
)

func main() {
	slug := flag.String("identificador", "", "unique tenant slug")
	name := flag.String("nome", "", "tenant display name")
	retention := flag.Int("retencao-dias", 0, "telemetry retention in days (0 = keep forever)")
	flag.Parse()

	if *slug == "" || *name == "" {
		log.Fatal("both -identificador and -nome are required")
	}

	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.NewConnection(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	repo := db.NewRepository(database)

	exists, err := repo.TenantSlugExists(*slug)
	if err != nil {
		log.Fatalf("Failed to check slug: %v", err)
	}
	if exists {
		log.Fatalf("Tenant %q already exists", *slug)
	}

	apiKey, err := keys.NewToken()
	if err != nil {
		log.Fatalf("Failed to generate API key: %v", err)
	}

	now := time.Now()
	tenant := &db.Tenant{
		ID:        uuid.New().String(),
		Slug:      *slug,
		Name:      *name,
		APIKey:    apiKey,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := repo.CreateTenant(tenant); err != nil {
		log.Fatalf("Failed to create tenant: %v", err)
	}

	if *retention > 0 {
		value := fmt.Sprintf("%d", *retention)
		if err := repo.SetSetting(&tenant.ID, ingest.RetentionSettingKey, value); err != nil {
			log.Fatalf("Failed to set retention: %v", err)
		}
	}

	fmt.Printf("Tenant created\n")
	fmt.Printf("  id:            %s\n", tenant.ID)
	fmt.Printf("  identificador: %s\n", tenant.Slug)
	fmt.Printf("  api_key:       %s\n", tenant.APIKey)
}
