package main

import (
	"log"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/yashwanths814/vital-sub001/internal/config"
	"github.com/yashwanths814/vital-sub001/migrations"
	"github.com/yashwanths814/vital-sub001/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	if err := config.LoadConfig(""); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if config.App.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	pg, err := store.OpenPostgres(config.App.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pg.Close()

	all, err := migrations.All()
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	for _, m := range all {
		log.Printf("Running migration %s...", m.Name)
		if _, err := pg.Exec(m.SQL); err != nil {
			log.Fatalf("Migration %s failed: %v", m.Name, err)
		}
	}

	log.Println("Migrations applied successfully!")
}
