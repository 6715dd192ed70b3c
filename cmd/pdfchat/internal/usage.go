package internal

import (
	"fmt"
	"os"
	"strings"
)

const Version = "0.1.0"

// PrintUsage writes the top-level usage text to stderr
func PrintUsage() {
	fmt.Fprintf(os.Stderr, `pdfchat - Chat with your documents

Version: %s

USAGE:
    pdfchat [global options] <command> [command options]

GLOBAL OPTIONS:
    -config <path>
        Path to config file (default: ~/.pdfchat/config.yaml)

    -v, -version
        Show version information

    -h, -help
        Show this help message

COMMANDS:
    index
        Build the document index from the configured documents directory

    query
        Ask a single question and print the answer with sources

    chat
        Interactive question-answering session with conversation memory

    serve
        Run the HTTP API server

    stats
        Show index and conversation statistics

EXAMPLES:
    # Build the index
    pdfchat index

    # Rebuild from scratch
    pdfchat index -force

    # One-shot question
    pdfchat query "what does the warranty cover?"

    # Interactive session
    pdfchat chat

    # HTTP API on the configured address
    pdfchat serve

For detailed help on each command, use:
    pdfchat <command> -help
`, Version)
}

// PrintConfigExample writes a starter configuration to stderr
func PrintConfigExample() {
	homeDir, _ := os.UserHomeDir()
	configPath := fmt.Sprintf("%s/.pdfchat/config.yaml", homeDir)

	fmt.Fprintf(os.Stderr, `Create a configuration file at %s:

# Documents to index (required)
documents:
  dir: ~/Documents/manuals
  extensions: [.pdf, .txt, .md]

# Embedding service (required)
embedding:
  # Provider: "ollama" | "openai"
  provider: ollama
  base_url: http://localhost:11434
  model: nomic-embed-text
  dimensions: 768

# Generation service (required)
generation:
  provider: ollama
  base_url: http://localhost:11434
  model: llama3.1

Usage:
  1. Create the config file
  2. Run: pdfchat index
  3. Ask: pdfchat query "your question"
`, configPath)
}

// StringList is a flag.Value that collects multiple strings
type StringList []string

func (s *StringList) String() string {
	return strings.Join(*s, ",")
}

func (s *StringList) Set(value string) error {
	*s = append(*s, value)
	return nil
}
