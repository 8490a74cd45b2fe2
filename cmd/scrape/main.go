package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/renderinc/moltbook-search/internal/config"
	"github.com/renderinc/moltbook-search/internal/moltbook"
	"github.com/renderinc/moltbook-search/internal/scheduler"
	"github.com/renderinc/moltbook-search/internal/scraper"
)

func main() {
	globalFlags := flag.NewFlagSet("scrape", flag.ExitOnError)
	globalFlags.Usage = printUsage
	dataDirFlag := globalFlags.String("data-dir", "", "Directory for snapshot files")
	configFlag := globalFlags.String("config", "", "Path to config file")
	globalFlags.Parse(os.Args[1:])

	if globalFlags.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}
	command := globalFlags.Arg(0)

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}

	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	var feeds []moltbook.Feed
	switch command {
	case "all", "schedule":
		feeds = cfg.AllFeeds()
	default:
		feed, ok := cfg.Feed(command)
		if !ok {
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
			printUsage()
			os.Exit(1)
		}
		feeds = []moltbook.Feed{feed}
	}

	client, err := moltbook.NewClient(cfg.APIBase, os.Getenv("MOLTBOOK_API_KEY"), cfg.HTTPTimeout())
	if errors.Is(err, moltbook.ErrMissingAPIKey) {
		log.Fatal("Error: MOLTBOOK_API_KEY environment variable required")
	} else if err != nil {
		log.Fatalf("Error creating API client: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	s := scraper.New(client, cfg.DataDir, logger)

	if command == "schedule" {
		runSchedule(ctx, cfg.Schedule, s, feeds, logger)
		return
	}

	if err := runFeeds(ctx, s, feeds); err != nil {
		log.Fatalf("Error scraping: %v", err)
	}
}

func printUsage() {
	w := os.Stderr
	fmt.Fprintln(w, "Moltbook Scraper - Save Moltbook feeds as JSON snapshots")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  scrape [global-flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Global Flags:")
	fmt.Fprintln(w, "  --data-dir=<dir>   Directory for snapshot files (default from config: data)")
	fmt.Fprintln(w, "  --config=<file>    Config file (default: moltbook.yaml, or $MOLTBOOK_CONFIG)")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  posts              Scrape the global feed (newest first)")
	fmt.Fprintln(w, "  introductions      Scrape the introductions submolt")
	fmt.Fprintln(w, "  all                Scrape every configured feed in order")
	fmt.Fprintln(w, "  <feed>             Scrape any other feed named in the config file")
	fmt.Fprintln(w, "  schedule           Scrape every feed on the configured cron schedule until interrupted")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment:")
	fmt.Fprintln(w, "  MOLTBOOK_API_KEY   API key sent as a bearer token (required)")
}

// runFeeds scrapes feeds in order under one run timestamp and stops at the
// first failure
func runFeeds(ctx context.Context, s *scraper.Scraper, feeds []moltbook.Feed) error {
	results, err := s.RunAll(ctx, feeds)
	for _, r := range results {
		fmt.Printf("Saved %d posts to %s\n", r.Posts, r.Path)
	}
	return err
}

func runSchedule(ctx context.Context, spec string, s *scraper.Scraper, feeds []moltbook.Feed, logger *slog.Logger) {
	sched, err := scheduler.New(spec, logger)
	if err != nil {
		log.Fatalf("Error creating scheduler: %v", err)
	}

	if err := sched.Schedule(ctx, func(ctx context.Context) error {
		return runFeeds(ctx, s, feeds)
	}); err != nil {
		log.Fatalf("Error scheduling scrape: %v", err)
	}

	fmt.Printf("Scraping %d feeds on schedule %q. Press Ctrl+C to stop.\n", len(feeds), spec)
	sched.Run(ctx)
}
