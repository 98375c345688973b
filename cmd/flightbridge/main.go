// Package main provides the flightbridge CLI: run queries, statements and
// bulk loads against a configured engine target.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/flightbridge/flightbridge/internal/config"
	"github.com/flightbridge/flightbridge/pkg/adapter"

	_ "github.com/flightbridge/flightbridge/pkg/adapters/gizmosql"
)

var version = "dev"

// Command represents a CLI command.
type Command struct {
	Name        string
	Description string
	Run         func(args []string) error
}

var (
	// Global flags
	configDir  string
	targetName string
	verbose    bool
)

func main() {
	commands := map[string]*Command{
		"query": {
			Name:        "query",
			Description: "Run a SQL query and print the result",
			Run:         queryCmd,
		},
		"exec": {
			Name:        "exec",
			Description: "Run a SQL statement that returns no rows",
			Run:         execCmd,
		},
		"ingest": {
			Name:        "ingest",
			Description: "Bulk-load a CSV file into a table",
			Run:         ingestCmd,
		},
		"catalog": {
			Name:        "catalog",
			Description: "Create or drop a catalog",
			Run:         catalogCmd,
		},
		"version": {
			Name:        "version",
			Description: "Show version information",
			Run:         versionCmd,
		},
	}

	if len(os.Args) < 2 {
		printUsage(commands)
		os.Exit(0)
	}

	cmdName := os.Args[1]

	if cmdName == "help" || cmdName == "-h" || cmdName == "--help" {
		printUsage(commands)
		os.Exit(0)
	}

	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmdName)
		printUsage(commands)
		os.Exit(1)
	}

	if err := cmd.Run(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(commands map[string]*Command) {
	fmt.Println("flightbridge - SQL engine bridge")
	fmt.Println()
	fmt.Println("Usage: flightbridge <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	for _, name := range []string{"query", "exec", "ingest", "catalog", "version"} {
		if c, ok := commands[name]; ok {
			fmt.Printf("  %-10s %s\n", c.Name, c.Description)
		}
	}
	fmt.Println()
	fmt.Println("Run 'flightbridge <command> -h' for help on a specific command.")
}

func setupFlags(fs *flag.FlagSet) {
	fs.StringVar(&configDir, "config", ".", "Directory containing flightbridge.yaml")
	fs.StringVar(&targetName, "target", "", "Target profile to connect to")
	fs.BoolVar(&verbose, "verbose", false, "Enable debug logging")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// connect loads the config, resolves the target profile and connects an
// adapter to it. The returned context ends on SIGINT/SIGTERM.
func connect() (context.Context, context.CancelFunc, adapter.Adapter, error) {
	cfg, err := config.LoadFromDir(configDir)
	if err != nil {
		return nil, nil, nil, err
	}
	target, err := cfg.ResolveTarget(targetName)
	if err != nil {
		return nil, nil, nil, err
	}

	logger := newLogger()
	a, err := adapter.New(target.AdapterConfig(), logger)
	if err != nil {
		return nil, nil, nil, err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	if err := a.Connect(ctx, target.AdapterConfig()); err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, a, nil
}

func versionCmd(args []string) error {
	fs := flag.NewFlagSet("version", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	fmt.Printf("flightbridge %s\n", version)
	return nil
}
