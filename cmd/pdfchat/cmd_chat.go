package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pdfchat/pdfchat/cmd/pdfchat/internal"
	"github.com/pdfchat/pdfchat/internal/agent"
	"github.com/pdfchat/pdfchat/internal/config"
	"github.com/pdfchat/pdfchat/internal/document"
)

// handleChat implements the chat subcommand
func handleChat(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	startNew := fs.Bool("new", false, "Start a fresh conversation instead of resuming")
	showSources := fs.Bool("sources", false, "Show retrieved sources before each answer")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `USAGE:
    pdfchat chat [options]

DESCRIPTION:
    Interactive question answering over the indexed documents.
    Exchanges are saved, so follow-up questions see earlier turns.

COMMANDS (inside the session):
    /reset    Clear the current conversation history
    /quit     Exit (Ctrl-D also works)

OPTIONS:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		log.Fatalf("Failed to parse arguments: %v", err)
	}

	stack, err := newQAStack(cfg, *startNew)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer stack.Close()

	fmt.Printf("pdfchat v%s - ask about your documents (/quit to exit)\n", internal.Version)
	if conv, err := stack.store.Get(stack.agent.ConversationID()); err == nil && conv.MessageCount > 0 {
		fmt.Printf("Resuming conversation %q (%d messages). Use -new for a fresh one.\n",
			conv.Title, conv.MessageCount)
	}
	fmt.Println()

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return
		case "/reset":
			if err := stack.agent.Reset(); err != nil {
				fmt.Fprintf(os.Stderr, "Reset failed: %v\n", err)
				continue
			}
			fmt.Println("Conversation cleared.")
			continue
		}

		askOne(stack.agent, line, *showSources)
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("Failed to read input: %v", err)
	}
}

// askOne runs a single exchange, streaming the answer to stdout.
// Ctrl-C cancels the in-flight question without ending the session.
func askOne(a *agent.Agent, question string, showSources bool) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := agent.Events{
		OnDelta: func(delta string) {
			fmt.Print(delta)
		},
	}
	if showSources {
		events.OnSources = func(sources []document.ScoredChunk) {
			for _, src := range sources {
				fmt.Printf("[source: %s chunk %d, score %.3f]\n",
					src.SourcePath, src.ChunkIndex, src.Score)
			}
		}
	}

	_, err := a.Ask(ctx, question, events)
	fmt.Println()
	switch {
	case err == nil:
	case errors.Is(err, agent.ErrCancelled):
		fmt.Println("(cancelled)")
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	fmt.Println()
}
