package main

import (
	"log"

	"github.com/badlogic/nazi-radio/internal/api"
	"github.com/badlogic/nazi-radio/internal/broadcast"
	"github.com/badlogic/nazi-radio/internal/config"
	database "github.com/badlogic/nazi-radio/internal/db"
	"github.com/badlogic/nazi-radio/internal/index"
	"github.com/badlogic/nazi-radio/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("🚀 Starting Radio Monitor API...")

	cfg := config.Load()

	store, err := broadcast.NewStore(cfg.Server.DataDir)
	if err != nil {
		log.Fatalf("❌ Failed to prepare data dir: %v", err)
	}

	db := database.New(cfg)
	db.AutoMigrate()

	archive := storage.New(cfg)
	builder := index.NewBuilder(store.BroadcastsDir())

	server := api.New(cfg, db, store, builder, archive)

	log.Printf("🌍 API listening on %s", cfg.Server.APIPort)
	if err := server.Start(cfg.Server.APIPort); err != nil {
		log.Fatalf("❌ API server failed: %v", err)
	}
}
