package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/romangod6/sitemap-extractor/config"
	"github.com/romangod6/sitemap-extractor/internal/api"
	"github.com/romangod6/sitemap-extractor/internal/crawler"
	"github.com/romangod6/sitemap-extractor/internal/storage"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	opts, err := cfg.ExtractorOptions()
	if err != nil {
		log.Fatalf("Invalid extractor config: %v", err)
	}

	// Initialize storage
	store, err := storage.New(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		log.Fatalf("Failed to initialize database tables: %v", err)
	}

	server := api.NewServer(cfg.Server.Port, store, &api.Extractor{
		Fetcher:  crawler.NewCollector(cfg.CollectorConfig()),
		Defaults: opts,
		LogsDir:  cfg.Logging.Dir,
		Debug:    cfg.Logging.Debug,
	})

	go func() {
		log.Printf("Starting API server on port %d (%s storage)", cfg.Server.Port, cfg.Database.Driver)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start API server: %v", err)
		}
	}()

	waitForShutdown(server)
}

func waitForShutdown(server *api.Server) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	log.Println("Shutting down...")

	// In-flight extractions get a bounded window to finish
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down server: %v", err)
	}
	log.Println("Server shut down gracefully")
}
