package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/conversation"
	"github.com/pdfchat/pdfchat/internal/index"
)

// handleStats implements the stats subcommand
func handleStats(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    pdfchat stats [options]

DESCRIPTION:
    Show index and conversation statistics.

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	ix, err := index.Open(cfg.Index.Dir)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer ix.Close()

	stats, err := ix.Stats()
	if err != nil {
		log.Fatalf("Failed to read index stats: %v", err)
	}

	store, err := conversation.Open(cfg.Conversation.Path)
	if err != nil {
		log.Fatalf("Failed to open conversation store: %v", err)
	}
	convs, err := store.List()
	store.Close()
	if err != nil {
		log.Fatalf("Failed to list conversations: %v", err)
	}

	if *jsonOutput {
		out := map[string]interface{}{
			"index_dir":     cfg.Index.Dir,
			"chunks":        stats.ChunkCount,
			"sources":       stats.SourceCount,
			"size_bytes":    stats.SizeBytes,
			"dimension":     stats.Dimension,
			"model":         stats.Model,
			"created_at":    stats.CreatedAt.Format(time.RFC3339),
			"conversations": len(convs),
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			log.Fatalf("Failed to encode output: %v", err)
		}
		return
	}

	fmt.Printf("Index: %s\n", cfg.Index.Dir)
	fmt.Printf("  Chunks:     %d\n", stats.ChunkCount)
	fmt.Printf("  Sources:    %d\n", stats.SourceCount)
	fmt.Printf("  Size:       %.1f MB\n", float64(stats.SizeBytes)/(1024*1024))
	fmt.Printf("  Dimension:  %d\n", stats.Dimension)
	fmt.Printf("  Model:      %s\n", stats.Model)
	fmt.Printf("  Built:      %s\n", stats.CreatedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Conversations: %d\n", len(convs))
	for i, conv := range convs {
		if i >= 5 {
			fmt.Printf("  ... and %d more\n", len(convs)-5)
			break
		}
		title := conv.Title
		if title == "" {
			title = "(untitled)"
		}
		fmt.Printf("  %s  %d messages  %s\n", title, conv.MessageCount,
			conv.UpdatedAt.Format("2006-01-02 15:04"))
	}
}
