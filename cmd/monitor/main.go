package main

import (
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/badlogic/nazi-radio/internal/broadcast"
	"github.com/badlogic/nazi-radio/internal/config"
	database "github.com/badlogic/nazi-radio/internal/db"
	"github.com/badlogic/nazi-radio/internal/index"
	"github.com/badlogic/nazi-radio/internal/metadata"
	"github.com/badlogic/nazi-radio/internal/models"
	"github.com/badlogic/nazi-radio/internal/recorder"
	"github.com/badlogic/nazi-radio/internal/storage"
	"github.com/badlogic/nazi-radio/internal/transcribe"
)

func main() {
	// 1. Parse Flags
	simulate := flag.Bool("simulate", false, "Dry run: classify chunks without merging or deleting anything")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *simulate {
		log.Println("🧪 MODE: DRY RUN / SIMULATION")
		log.Println("   - Chunks are classified and logged only")
		log.Println("   - No merges, no deletions, no transcription")
	} else {
		log.Println("🚀 Starting Radio Monitor (Live Mode)...")
	}

	// 2. Load Config
	cfg := config.LoadMonitor()

	// 3. Init Infrastructure
	store, err := broadcast.NewStore(cfg.Server.DataDir)
	if err != nil {
		log.Fatalf("❌ Failed to prepare data dir: %v", err)
	}
	db := database.New(cfg)
	db.AutoMigrate()
	archive := storage.New(cfg)
	builder := index.NewBuilder(store.BroadcastsDir())

	// 4. Metrics
	metadata.RegisterMetrics()
	recorder.RegisterMetrics()
	broadcast.RegisterMetrics()
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/metrics", cfg.Server.MetricsPort)
		log.Fatal(http.ListenAndServe(cfg.Server.MetricsPort, nil))
	}()

	// 5. Catch up on whatever is already on disk
	if broadcasts, err := builder.Rebuild(); err != nil {
		log.Printf("⚠️ Initial index rebuild failed: %v", err)
	} else if err := db.SyncCatalog(broadcasts); err != nil {
		log.Printf("⚠️ Initial catalog sync failed: %v", err)
	}

	// 6. Wire the pipeline: recorder -> classifier -> assembler
	sampler := metadata.NewSampler(
		metadata.NewHTTPFetcher(cfg.Metadata.URL),
		cfg.PollInterval(),
		cfg.Retention(),
	)

	transcriber := transcribe.NewClient(
		cfg.Transcribe.URL,
		cfg.Transcribe.APIKey,
		cfg.Transcribe.Model,
		cfg.Transcribe.Language,
		cfg.Transcribe.MaxFileBytes,
	)

	asm := broadcast.NewAssembler(sampler, transcriber, store)
	asm.IdleFlush = cfg.IdleFlush()
	asm.TitleMaxWords = cfg.Assembler.TitleMaxWords
	asm.DryRun = *simulate
	asm.OnFinalized = func(b models.Broadcast) {
		broadcasts, err := builder.Rebuild()
		if err != nil {
			log.Printf("⚠️ Index rebuild failed: %v", err)
			return
		}
		if err := db.SyncCatalog(broadcasts); err != nil {
			log.Printf("⚠️ Catalog sync failed: %v", err)
		}
		if archive != nil {
			archive.MirrorBroadcast(b, store.AudioPath(b), store.RecordPath(b.ID))
			archive.MirrorManifest(builder.ManifestPath())
		}
	}

	rec := recorder.New(
		cfg.Stream.URL,
		cfg.Stream.ChunkDir,
		cfg.ChunkDuration(),
		time.Duration(cfg.Stream.RestartDelay)*time.Second,
		cfg.StallThreshold(),
		asm.HandleChunk,
	)

	// 7. Run until told otherwise
	sampler.Start()
	asm.Start()
	rec.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	rec.Stop()
	asm.Stop()
	sampler.Stop()
}
