// Package cmd contains the command-line entry points for engineqa.
// main.go stays a minimal shim; all initialization and routing lives
// here, following the usual kubectl/hugo layout.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/engineqa/engineqa/internal/log"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "0.1.0"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// Execute is the main entry point. It routes to the requested
// subcommand; "serve" is the default.
func Execute() error {
	// A missing .env file is fine; environment variables win anyway.
	_ = godotenv.Load()

	logger := initLogger()
	slog.SetDefault(logger)

	cmd := "serve"
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	switch cmd {
	case "serve":
		return runServe(logger)
	case "index":
		return runIndex(logger, os.Args[2:])
	case "version", "--version", "-v":
		return printVersionInfo()
	case "help", "--help", "-h":
		printHelp()
		return nil
	default:
		printHelp()
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

// initLogger builds the structured logger. DEBUG=1 (any non-empty value)
// enables debug level; LOG_JSON=1 switches to JSON output for log
// shippers.
func initLogger() log.Logger {
	return log.New(log.Config{
		Level: logLevel(),
		JSON:  os.Getenv("LOG_JSON") != "",
	})
}

func logLevel() slog.Level {
	if os.Getenv("DEBUG") != "" {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func printVersionInfo() error {
	fmt.Printf("engineqa %s\n", AppVersion)
	fmt.Printf("Build: %s\n", BuildTime)
	fmt.Printf("Commit: %s\n", GitCommit)
	return nil
}

func printHelp() {
	fmt.Println(`engineqa - knowledge-base Q&A service

Usage:
  engineqa [command]

Commands:
  serve      Start the HTTP API server (default)
  index      Run one indexing pass and exit
  version    Show version information
  help       Show this help

Flags for index:
  --incremental   Only re-embed new or changed documents

Environment:
  DEBUG=1                 Enable debug logging
  LOG_JSON=1              JSON log output
  UPSTREAM_API_TOKEN      Token for the internal inference API
  POSTGRES_PASSWORD       Database password`)
}
