package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/romangod6/sitemap-extractor/config"
	"github.com/romangod6/sitemap-extractor/internal/crawler"
	"github.com/romangod6/sitemap-extractor/internal/export"
	"github.com/romangod6/sitemap-extractor/internal/models"
	"github.com/romangod6/sitemap-extractor/internal/utils"
)

const samplesToPrint = 5

func main() {
	if len(os.Args) < 2 || len(os.Args) > 3 {
		fmt.Fprintln(os.Stderr, "usage: sitemap <sitemap-url> [out.csv|out.xlsx]")
		os.Exit(2)
	}
	sitemapURL := os.Args[1]

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	opts, err := cfg.ExtractorOptions()
	if err != nil {
		log.Fatalf("Invalid extractor config: %v", err)
	}

	var format export.Format
	outPath := ""
	if len(os.Args) == 3 {
		outPath = os.Args[2]
		if format, err = export.FormatFromPath(outPath); err != nil {
			log.Fatalf("Unsupported output file %s: %v", outPath, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := utils.NewWriterLogger(os.Stderr, cfg.Logging.Debug)
	resolver := crawler.NewResolver(crawler.NewCollector(cfg.CollectorConfig()), logger, opts)

	result, err := resolver.Resolve(ctx, sitemapURL)
	if err != nil {
		log.Fatalf("Error extracting sitemap: %v", err)
	}

	printSummary(result)

	if outPath == "" {
		return
	}
	if err := writeFile(outPath, format, result.Entries); err != nil {
		log.Fatalf("Error writing %s: %v", outPath, err)
	}
	fmt.Printf("\nWrote %d URLs to %s\n", len(result.Entries), outPath)
}

func printSummary(result *models.ExtractionResult) {
	fmt.Printf("Total URLs found: %d\n", len(result.Entries))
	fmt.Printf("Sitemaps fetched: %d\n", result.SitemapsFetched)
	if result.Truncated {
		fmt.Println("Output truncated at the configured entry limit")
	}

	if len(result.Skipped) > 0 {
		fmt.Printf("\n--- Skipped Sitemaps (%d) ---\n", len(result.Skipped))
		for _, s := range result.Skipped {
			fmt.Printf("  [depth %d] %s: %s\n", s.Depth, s.URL, s.Reason)
		}
	}

	if len(result.Entries) == 0 {
		return
	}
	fmt.Println("\n--- Sample URLs ---")
	for i := 0; i < samplesToPrint && i < len(result.Entries); i++ {
		entry := result.Entries[i]
		fmt.Printf("  %s  %s\n", entry.URL, export.FormatLastModified(entry.LastModified))
	}
}

func writeFile(path string, format export.Format, entries []models.SitemapEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := export.Write(f, format, entries); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
