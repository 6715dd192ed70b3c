package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/pdfchat/pdfchat/cmd/pdfchat/internal"
	"github.com/pdfchat/pdfchat/internal/config"
)

func main() {
	// A .env beside the binary can carry API keys referenced from the
	// config via ${VAR} expansion. Missing files are fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		internal.PrintUsage()
		os.Exit(1)
	}

	inv, err := parseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
		internal.PrintUsage()
		os.Exit(1)
	}
	if inv.showHelp {
		internal.PrintUsage()
		os.Exit(0)
	}
	if inv.showVersion {
		fmt.Printf("pdfchat version %s\n", internal.Version)
		os.Exit(0)
	}
	if inv.subcommand == "" {
		fmt.Fprintf(os.Stderr, "Error: No subcommand specified\n\n")
		internal.PrintUsage()
		os.Exit(1)
	}

	subcommand := inv.subcommand
	subcommandArgs := inv.subArgs

	cfg, err := internal.LoadConfig(inv.configPath)
	if err != nil {
		if config.IsConfigNotFound(err) {
			if notFoundErr, ok := err.(*config.ConfigNotFoundError); ok && subcommand == "index" {
				created, createErr := config.WriteDefaultTemplate(notFoundErr.RequestedPath)
				if createErr != nil {
					fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
					fmt.Fprintf(os.Stderr, "Also failed to create default config at %s: %v\n\n", notFoundErr.RequestedPath, createErr)
					internal.PrintConfigExample()
					os.Exit(1)
				}
				if created {
					fmt.Fprintf(os.Stderr, "Created default config at %s\n", notFoundErr.RequestedPath)
				}
				fmt.Fprintln(os.Stderr, "Please set documents.dir in the config file and rerun `pdfchat index`.")
				os.Exit(1)
			}
			fmt.Fprintf(os.Stderr, "Error: %v\n\n", err)
			internal.PrintConfigExample()
			os.Exit(1)
		}
		log.Fatalf("Failed to load config: %v", err)
	}

	if err := internal.ResolvePaths(cfg); err != nil {
		log.Fatalf("Failed to resolve data paths: %v", err)
	}

	if err := internal.SetupLogging(subcommand); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize log file: %v\n", err)
	}

	switch subcommand {
	case "index":
		handleIndex(cfg, subcommandArgs)
	case "query":
		handleQuery(cfg, subcommandArgs)
	case "chat":
		handleChat(cfg, subcommandArgs)
	case "serve":
		handleServe(cfg, subcommandArgs)
	case "stats":
		handleStats(cfg, subcommandArgs)
	}
}

var validSubcommands = map[string]bool{
	"index": true,
	"query": true,
	"chat":  true,
	"serve": true,
	"stats": true,
}

// invocation is the decoded command line: global flags, the subcommand,
// and everything after it.
type invocation struct {
	configPath  string
	subcommand  string
	subArgs     []string
	showHelp    bool
	showVersion bool
}

// parseArgs splits the argument list at the subcommand. Only flags
// before the subcommand are global; everything after it belongs to the
// subcommand's own flag set, so `pdfchat index -v` reaches the index
// handler instead of printing the version.
func parseArgs(args []string) (*invocation, error) {
	inv := &invocation{}

	global := args
	for i, arg := range args {
		if !strings.HasPrefix(arg, "-") && validSubcommands[arg] {
			global = args[:i]
			inv.subcommand = arg
			inv.subArgs = args[i+1:]
			break
		}
	}

	for i := 0; i < len(global); i++ {
		arg := global[i]
		switch {
		case arg == "-h" || arg == "-help" || arg == "--help":
			inv.showHelp = true
		case arg == "-v" || arg == "-version" || arg == "--version":
			inv.showVersion = true
		case arg == "-config" || arg == "--config":
			if i+1 >= len(global) {
				return nil, fmt.Errorf("flag -config requires a path")
			}
			inv.configPath = global[i+1]
			i++
		case strings.HasPrefix(arg, "-"):
			return nil, fmt.Errorf("unknown global flag: %s", arg)
		default:
			return nil, fmt.Errorf("unknown subcommand: %s", arg)
		}
	}

	return inv, nil
}
