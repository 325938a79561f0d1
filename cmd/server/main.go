package main

import (
	"log"
	"net/http"

	"github.com/pcorbett/issuedeck/internal/api"
	"github.com/pcorbett/issuedeck/internal/automigrate"
	"github.com/pcorbett/issuedeck/internal/config"
	"github.com/pcorbett/issuedeck/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := automigrate.Run(db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	router := api.NewRouter(cfg, db)

	log.Printf("issuedeck listening on port %s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
