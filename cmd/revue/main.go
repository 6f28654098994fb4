package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/revue-dev/revue/internal/agent"
	"github.com/revue-dev/revue/internal/config"
	"github.com/revue-dev/revue/internal/discovery"
	"github.com/revue-dev/revue/internal/docstore"
	"github.com/revue-dev/revue/internal/logging"
	"github.com/revue-dev/revue/internal/poller"
	"github.com/revue-dev/revue/internal/provider/github"
	"github.com/revue-dev/revue/internal/review"
	"github.com/revue-dev/revue/internal/server"
	"github.com/revue-dev/revue/internal/storage"
	"github.com/revue-dev/revue/internal/workspace"
)

var version = "0.1.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "version":
		fmt.Printf("revue v%s\n", version)
	default:
		fmt.Printf("Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: revue <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the review portal server")
	fmt.Println("  version  Print version information")
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	envFile := fs.String("env-file", "", "Path to .env file (optional)")
	fs.Parse(args)

	// Load .env file if specified or exists
	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			log.Printf("Warning: could not load env file %s: %v", *envFile, err)
		}
	} else {
		// Try default locations
		godotenv.Load(".env")
		godotenv.Load("/etc/revue/revue.env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// Sessions left running by a previous process are dead by definition.
	if n, err := db.FailStaleSessions(0); err != nil {
		log.Printf("Warning: failing stale sessions: %v", err)
	} else if n > 0 {
		log.Printf("Marked %d stale session(s) as failed", n)
	}

	docs := docstore.New(cfg.Store.Dir)
	forge := github.New(cfg.GitHub.Token)

	runner, err := newRunner(cfg)
	if err != nil {
		log.Fatalf("Failed to create agent runner: %v", err)
	}

	transcripts := logging.NewWriter(cfg.Logging.Dir)
	cleaner := logging.NewCleaner(cfg.Logging.Dir, cfg.Logging.RetentionDays)
	cleanupScheduler := logging.NewCleanupScheduler(cleaner, 24*time.Hour)
	cleanupScheduler.Start()
	defer cleanupScheduler.Stop()

	workspaces := workspace.NewManager("").
		WithMirrors(workspace.NewMirrorCache(filepath.Join(cfg.Store.Dir, "mirrors")))

	orch := review.New(db, forge, runner, workspaces, transcripts, review.Config{
		AgentTimeout: time.Duration(cfg.Agent.TimeoutMinutes) * time.Minute,
		ReviewsDir:   docs.ReviewsDir(),
	})

	engine := discovery.New(forge, db)
	poll := poller.New(db, engine, orch, time.Duration(cfg.Poller.IntervalSeconds)*time.Second).
		WithStaleReaper(db, time.Duration(cfg.Poller.StaleSessionMinutes)*time.Minute)
	if cfg.Poller.Autostart {
		poll.Start()
	}
	defer poll.Stop()

	srv := server.New(cfg, db, docs, forge, engine, orch, poll)

	log.Printf("Starting revue server")
	if err := srv.ListenAndServeWithShutdown(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// newRunner builds the agent runner selected by the config.
func newRunner(cfg *config.Config) (agent.Runner, error) {
	switch cfg.Agent.Mode {
	case "", "cli":
		return agent.NewCLIRunner(cfg.Agent.Command), nil
	case "docker":
		return agent.NewDockerRunner(cfg.Agent.Command, cfg.Agent.Image, cfg.Agent.AuthDir)
	default:
		return nil, fmt.Errorf("unknown agent mode %q", cfg.Agent.Mode)
	}
}
