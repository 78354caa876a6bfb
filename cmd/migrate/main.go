package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"therapist-effects/internal/container"
)

// Creates the simulation_cache schema in the database named by DATABASE_URL
// (or the first argument) without starting anything else.
func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	databaseURL := os.Getenv("DATABASE_URL")
	if len(os.Args) > 1 {
		databaseURL = os.Args[1]
	}
	if databaseURL == "" {
		log.Fatal("Usage: migrate <database_url> (or set DATABASE_URL)")
	}

	db, err := container.OpenDatabase(context.Background(), databaseURL)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
	defer db.Close()
	log.Println("Migration complete")
}
