package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/index"
)

// handleQuery implements the query subcommand
func handleQuery(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	showSources := fs.Bool("sources", true, "Show source chunks")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    pdfchat query [options] "<question>"

DESCRIPTION:
    Answer a single question over the indexed documents and exit.
    The conversation history is not consulted or modified.

OPTIONS:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
EXAMPLES:
    pdfchat query "what does the warranty cover?"
    pdfchat query -json "list the return policy steps"
`)
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "Error: no question given")
		fs.Usage()
		os.Exit(1)
	}
	question := strings.Join(fs.Args(), " ")

	stack, err := newQAStack(cfg, false)
	if err != nil {
		if index.IsIndexNotFound(err) {
			log.Fatalf("%v", err)
		}
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer stack.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := stack.agent.Query(ctx, question)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	if *jsonOutput {
		type sourceJSON struct {
			ID         string  `json:"id"`
			SourcePath string  `json:"source_path"`
			ChunkIndex int     `json:"chunk_index"`
			Score      float32 `json:"score"`
		}
		sources := make([]sourceJSON, 0, len(result.Sources))
		for _, src := range result.Sources {
			sources = append(sources, sourceJSON{
				ID:         src.ID,
				SourcePath: src.SourcePath,
				ChunkIndex: src.ChunkIndex,
				Score:      src.Score,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]interface{}{
			"answer":  result.Answer,
			"sources": sources,
		}); err != nil {
			log.Fatalf("Failed to encode output: %v", err)
		}
		return
	}

	fmt.Println(result.Answer)
	if *showSources && len(result.Sources) > 0 {
		fmt.Println("\nSources:")
		for _, src := range result.Sources {
			fmt.Printf("  %s (chunk %d, score %.3f)\n", src.SourcePath, src.ChunkIndex, src.Score)
		}
	}
}
