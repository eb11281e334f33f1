package store

import (
	"context"
	"fmt"
	"log"

	"github.com/yashwanths814/vital-sub001/internal/config"
)

// Open builds the issue store selected by storage.driver
func Open(ctx context.Context, cfg config.Config) (IssueStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverFirestore, "":
		client, err := NewFirestoreClient(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile)
		if err != nil {
			return nil, err
		}
		return NewFirestoreStore(client, cfg.Firebase.Collection, cfg.Escalation.MaxAttempts), nil

	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable (or config) is required for the postgres driver")
		}
		pg, err := OpenPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		log.Println("Postgres Store: connected to database successfully")
		return NewPostgresStore(pg), nil

	case config.DriverMemory:
		log.Println("WARNING: Using in-memory issue store; data is lost on restart")
		return NewMemoryStore(), nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
}
