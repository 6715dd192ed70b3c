package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pdfchat/pdfchat/cmd/pdfchat/internal"
	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/embedding"
	"github.com/pdfchat/pdfchat/internal/indexer"
)

// handleIndex implements the index subcommand
func handleIndex(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	force := fs.Bool("force", false, "Rebuild the index from scratch")
	noProgress := fs.Bool("no-progress", false, "Disable the progress bar")
	verbose := fs.Bool("v", false, "Echo the build log to stderr")
	var extensions internal.StringList
	fs.Var(&extensions, "ext", "Only index this extension, repeatable (overrides config)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    pdfchat index [options]

DESCRIPTION:
    Build the document index. This will:
      1. Scan the configured documents directory
      2. Extract text from each document
      3. Split the text into overlapping chunks
      4. Embed the chunks and store them in the index

    Documents already indexed are skipped; use -force to start over.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    # Incremental build
    pdfchat index

    # Full rebuild (required after changing embedding models)
    pdfchat index -force
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if len(extensions) > 0 {
		cfg.Documents.Extensions = extensions
	}

	if _, err := os.Stat(cfg.Documents.Dir); os.IsNotExist(err) {
		log.Fatalf("Documents directory does not exist: %s", cfg.Documents.Dir)
	}

	embedder, err := embedding.NewService(&cfg.Embedding)
	if err != nil {
		log.Fatalf("Failed to create embedding service: %v", err)
	}

	builder, err := indexer.NewBuilder(cfg, embedder)
	if err != nil {
		log.Fatalf("Failed to create index builder: %v", err)
	}

	if !*noProgress {
		builder.SetProgress(indexer.NewBuildProgress(indexer.DefaultProgressEnabled()))
	}
	if logDir, err := internal.LogDir(); err == nil {
		if buildLog, err := indexer.NewBuildLogger(logDir); err == nil {
			if *verbose {
				buildLog.Echo(os.Stderr)
			}
			builder.SetLogger(buildLog)
			defer buildLog.Close()
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Indexing documents from %s", cfg.Documents.Dir)
	report, err := builder.Build(ctx, *force)
	if err != nil {
		log.Fatalf("Index build failed: %v", err)
	}

	fmt.Printf("\nIndexed %d of %d documents (%d chunks) in %v\n",
		report.DocumentsIndexed, report.DocumentsFound, report.ChunksCreated, report.Duration.Round(time.Millisecond))
	if report.DocumentsSkipped > 0 {
		fmt.Printf("Skipped %d already-indexed documents\n", report.DocumentsSkipped)
	}
	if len(report.Errors) > 0 {
		fmt.Printf("\n%d documents failed:\n", len(report.Errors))
		for _, docErr := range report.Errors {
			fmt.Printf("  %s: %v\n", docErr.Path, docErr.Err)
		}
		os.Exit(1)
	}
}
