package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/httpserver"
)

// handleServe implements the serve subcommand
func handleServe(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	host := fs.String("host", "", "Listen host (overrides config)")
	port := fs.Int("port", 0, "Listen port (overrides config)")
	startNew := fs.Bool("new", false, "Start a fresh conversation instead of resuming")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    pdfchat serve [options]

DESCRIPTION:
    Serve the question-answering agent over HTTP.

ENDPOINTS:
    GET  /api/health    Liveness check
    POST /api/query     One-shot question, JSON answer with sources
    POST /api/chat      Conversational question, streamed plain-text answer
    POST /api/reset     Clear the conversation history
    GET  /api/stats     Index and conversation statistics

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}

	stack, err := newQAStack(cfg, *startNew)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer stack.Close()

	srv := httpserver.New(stack.agent, stack.store, stack.index)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	addr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	log.Printf("Listening on http://%s", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server stopped")
}
