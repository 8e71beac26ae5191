// Package main is the entry point for the Inkwell editing engine.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/tmarten/inkwell/internal/config"
	"github.com/tmarten/inkwell/internal/editor"
	"github.com/tmarten/inkwell/internal/logging"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.room != "" {
		cfg.Collab.Room = opts.room
	}
	if opts.name != "" {
		cfg.Identity.Name = opts.name
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.collab {
		cfg.Collab.Enabled = true
	}

	log := logging.New(logging.Config{
		Level:  logging.ParseLevel(cfg.Log.Level),
		Prefix: "inkwell",
	})
	log.Info("starting inkwell %s", version)

	session := editor.NewSession(editor.Options{
		Config: cfg,
		Logger: log,
	})
	defer session.Close()

	// Handle signals for graceful shutdown
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	log.Info("shutting down")
	return 0
}

type flags struct {
	configPath string
	room       string
	name       string
	logLevel   string
	collab     bool
}

func parseFlags() flags {
	var f flags
	var showVersion bool

	flag.StringVar(&f.configPath, "config", config.DefaultPath(), "Path to configuration file")
	flag.StringVar(&f.configPath, "c", config.DefaultPath(), "Path to configuration file (shorthand)")
	flag.StringVar(&f.room, "room", "", "Collaboration room name")
	flag.StringVar(&f.name, "name", "", "Display name for collaboration")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&f.collab, "collab", false, "Enable collaboration at startup")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Inkwell - collaborative rich text editing engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: inkwell [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("Inkwell %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	if f.logLevel != "" {
		switch f.logLevel {
		case "debug", "info", "warn", "error":
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", f.logLevel)
			os.Exit(1)
		}
	}

	return f
}
