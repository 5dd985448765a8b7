package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/avelinecho/pixelpet/internal/config"
	"github.com/avelinecho/pixelpet/internal/engine"
	"github.com/avelinecho/pixelpet/internal/logging"
	"github.com/avelinecho/pixelpet/internal/store"
)

const Version = "0.1.0"

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printHelp()
		return
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("pixelpet v%s\n", Version)
	case "help", "--help", "-h":
		printHelp()
	case "hook":
		handleHook()
	case "watch":
		handleWatch(args[1:])
	case "status":
		handleStatus(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printHelp()
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`pixelpet - activity state engine for AI coding agents

Usage:
  pixelpet hook             read one canonical event from stdin (always exits 0)
  pixelpet watch [--serve]  run the consumer loop; --serve exposes a websocket feed
  pixelpet status [--json]  print tracked sessions and streak counters
  pixelpet version          print version

Configuration lives at ~/.pixelpet/config.toml.
`)
}

// setup loads config, initializes logging, and opens the state database.
// Config and logging failures degrade to defaults; only a store failure is
// reported, and the caller decides whether that is fatal.
func setup() (*engine.Engine, *config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		// Defaults are already applied; surface the parse problem in the log
		// once logging is up.
		defer func() {
			logging.Logger().Warn("config_parse_failed", "error", err.Error())
		}()
	}

	dir, dirErr := config.Dir()
	logDir := ""
	if cfg.Logs.Debug && dirErr == nil {
		logDir = dir
	}
	logging.Init(logging.Config{
		LogDir:     logDir,
		Level:      cfg.Logs.Level,
		Format:     cfg.Logs.Format,
		MaxSizeMB:  cfg.Logs.MaxSizeMB,
		MaxBackups: cfg.Logs.MaxBackups,
		MaxAgeDays: cfg.Logs.RetentionDays,
		Debug:      cfg.Logs.Debug,
	})

	if dirErr != nil {
		return nil, cfg, dirErr
	}
	st, err := store.Open(filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, cfg, err
	}
	return engine.New(st, cfg), cfg, nil
}
