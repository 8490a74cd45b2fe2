package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/renderinc/moltbook-search/internal/config"
	"github.com/renderinc/moltbook-search/internal/search"
	"github.com/renderinc/moltbook-search/internal/storage"
	"github.com/renderinc/moltbook-search/internal/sync"
	"github.com/renderinc/moltbook-search/internal/web"
)

var cfg config.Config

func main() {
	globalFlags := flag.NewFlagSet("indexer", flag.ExitOnError)
	globalFlags.Usage = printUsage
	dataDirFlag := globalFlags.String("data-dir", "", "Directory of snapshot files")
	configFlag := globalFlags.String("config", "", "Path to config file")
	globalFlags.Parse(os.Args[1:])

	var err error
	cfg, err = config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	slog.SetDefault(config.NewLogger(cfg.LogLevel))

	if globalFlags.NArg() < 1 {
		printUsage()
		runCurrentStats()
		return
	}

	command := globalFlags.Arg(0)
	args := globalFlags.Args()[1:]

	switch command {
	case "index":
		runIndex()
	case "search":
		searchFlags := flag.NewFlagSet("search", flag.ExitOnError)
		fuzzy := searchFlags.Bool("fuzzy", false, "Search the bleve index (supports term~N, field:term)")
		limit := searchFlags.Int("limit", 20, "Maximum results per section")
		searchFlags.Parse(args)

		if searchFlags.NArg() < 1 {
			fmt.Println("Error: search query required")
			fmt.Println("Usage: indexer [global-flags] search [-fuzzy] [-limit=N] <query>")
			os.Exit(1)
		}

		query := strings.Join(searchFlags.Args(), " ")
		runSearch(query, *fuzzy, *limit)
	case "stats":
		runStats()
	case "reindex":
		runReindex()
	case "serve":
		serveFlags := flag.NewFlagSet("serve", flag.ExitOnError)
		port := serveFlags.String("port", "6893", "Port to listen on")
		host := serveFlags.String("host", "localhost", "Host to bind to")
		serveFlags.Parse(args)

		runServe(*host, *port)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Moltbook Indexer - Full-text search over scraped Moltbook snapshots")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  indexer [global-flags] <command> [flags]")
	fmt.Println()
	fmt.Println("Global Flags:")
	fmt.Println("  --data-dir=<dir>   Directory of snapshot files (default from config: data)")
	fmt.Println("  --config=<file>    Config file (default: moltbook.yaml, or $MOLTBOOK_CONFIG)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  index                    Ingest every snapshot into the database")
	fmt.Println("  search [flags] <query>   Search posts and agents")
	fmt.Println("  stats                    Show index statistics")
	fmt.Println("  reindex                  Rebuild the bleve fuzzy index from the database")
	fmt.Println("  serve [flags]            Start the JSON search API")
	fmt.Println()
	fmt.Println("Search Flags:")
	fmt.Println("  -fuzzy            Use the bleve index instead of SQLite FTS")
	fmt.Println("  -limit=<n>        Maximum results per section (default: 20)")
	fmt.Println()
	fmt.Println("Serve Flags:")
	fmt.Println("  -host=<host>      Host to bind to (default: localhost)")
	fmt.Println("  -port=<port>      Port to listen on (default: 6893)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  indexer index")
	fmt.Println("  indexer search kubernetes")
	fmt.Println("  indexer search \"agent memory\"")
	fmt.Println("  indexer search -fuzzy 'kubernets~1'")
	fmt.Println("  indexer serve -port=3000")
}

func openDB() *storage.DB {
	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("Error opening database: %v", err)
	}
	return db
}

// openIndex opens the bleve mirror, creating it when missing
func openIndex() *search.Index {
	idx, err := search.Open(cfg.BlevePath)
	if err != nil {
		log.Fatalf("Error opening search index: %v", err)
	}
	return idx
}

// openExistingIndex returns nil when there is no bleve index on disk
func openExistingIndex() *search.Index {
	if cfg.BlevePath == "" {
		return nil
	}
	if _, err := os.Stat(cfg.BlevePath); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return openIndex()
}

func runCurrentStats() {
	db := openDB()
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		log.Fatalf("Error getting stats: %v", err)
	}
	fmt.Println()
	fmt.Printf("Current stats: %s agents, %s posts\n", humanize.Comma(int64(stats.Agents)), humanize.Comma(int64(stats.Posts)))
}

func runIndex() {
	db := openDB()
	defer db.Close()

	var idx *search.Index
	if cfg.BlevePath != "" {
		idx = openIndex()
		defer idx.Close()
	}

	worker := sync.NewWorker(db, idx, slog.Default())
	stats, runErr := worker.Run(context.Background(), cfg.DataDir)
	if stats == nil {
		log.Fatalf("Error indexing: %v", runErr)
	}

	fmt.Println()
	fmt.Println("=== Index Complete ===")
	fmt.Printf("Files:         %d\n", stats.Files)
	fmt.Printf("Total posts:   %d\n", stats.TotalPosts)
	fmt.Printf("New:           %d\n", stats.NewPosts)
	fmt.Printf("Updated:       %d\n", stats.UpdatedPosts)
	fmt.Printf("Skipped:       %d\n", stats.SkippedPosts)
	fmt.Printf("Errors:        %d\n", stats.Errors)
	fmt.Printf("Duration:      %v\n", stats.Duration.Round(time.Millisecond))

	if runErr != nil {
		fmt.Println()
		log.Fatalf("Error indexing: %v", runErr)
	}
}

func runSearch(query string, fuzzy bool, limit int) {
	db := openDB()
	defer db.Close()
	ctx := context.Background()

	fmt.Printf("\nSearching for: %s\n\n", query)
	fmt.Println("=== Posts ===")

	if fuzzy {
		idx := openExistingIndex()
		if idx == nil {
			log.Fatal("Error: fuzzy search requires a bleve index. Run: indexer reindex")
		}
		defer idx.Close()

		results, err := idx.Search(query, limit)
		if err != nil {
			log.Fatalf("Error searching: %v", err)
		}
		for _, r := range results {
			fmt.Printf("- [%s] %s (%d upvotes, score %.3f)\n", r.Author, titleOrPlaceholder(r.Title), r.Upvotes, r.Score)
		}
	} else {
		posts, err := db.SearchPosts(ctx, query, limit)
		if err != nil {
			log.Fatalf("Error searching posts: %v", err)
		}
		for _, p := range posts {
			title := ""
			if p.Title != nil {
				title = *p.Title
			}
			fmt.Printf("- [%s] %s (%d upvotes)\n", p.AuthorName, titleOrPlaceholder(title), p.Upvotes)
		}
	}

	fmt.Println("\n=== Agents ===")
	agents, err := db.SearchAgents(ctx, query, limit)
	if err != nil {
		log.Fatalf("Error searching agents: %v", err)
	}
	for _, a := range agents {
		fmt.Printf("- %s (karma: %d, followers: %d)\n", a.Name, a.Karma, a.FollowerCount)
	}
}

func titleOrPlaceholder(title string) string {
	if title == "" {
		return "(no title)"
	}
	return title
}

func runStats() {
	db := openDB()
	defer db.Close()

	stats, err := db.Stats(context.Background())
	if err != nil {
		log.Fatalf("Error getting stats: %v", err)
	}

	fmt.Println("=== Index Statistics ===")
	fmt.Printf("Agents:             %s\n", humanize.Comma(int64(stats.Agents)))
	fmt.Printf("Posts:              %s\n", humanize.Comma(int64(stats.Posts)))
	if info, err := os.Stat(cfg.DBPath); err == nil {
		fmt.Printf("Database size:      %s\n", humanize.Bytes(uint64(info.Size())))
	}

	if idx := openExistingIndex(); idx != nil {
		defer idx.Close()
		count, err := idx.Count()
		if err != nil {
			log.Fatalf("Error getting index count: %v", err)
		}
		fmt.Printf("Posts in fuzzy index: %s\n", humanize.Comma(int64(count)))
	}
}

func runReindex() {
	fmt.Println("Rebuilding bleve fuzzy search index...")
	fmt.Println()

	db := openDB()
	defer db.Close()

	startTime := time.Now()
	idx := openIndex()
	defer idx.Close()

	progressFn := func(current, total int) {
		percent := float64(current) / float64(total) * 100
		fmt.Printf("\rIndexing: %d/%d (%.1f%%)  ", current, total, percent)
	}

	if err := idx.Rebuild(context.Background(), db, progressFn); err != nil {
		log.Fatalf("\nError rebuilding index: %v", err)
	}

	count, err := idx.Count()
	if err != nil {
		log.Fatalf("\nError getting index count: %v", err)
	}

	fmt.Println()
	fmt.Println()
	fmt.Println("=== Reindex Complete ===")
	fmt.Printf("Posts indexed: %d\n", count)
	fmt.Printf("Duration:      %v\n", time.Since(startTime).Round(time.Millisecond))
}

func runServe(host, port string) {
	db := openDB()
	defer db.Close()

	// FuzzyIndex stays a nil interface when there is no index on disk
	var fuzzy web.FuzzyIndex
	if idx := openExistingIndex(); idx != nil {
		defer idx.Close()
		fuzzy = idx
	} else {
		slog.Warn("no bleve index found, fuzzy search disabled", "path", cfg.BlevePath)
	}

	server := web.NewServer(db, fuzzy, slog.Default())
	addr := net.JoinHostPort(host, port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	fmt.Println()
	fmt.Println("=== Moltbook Search API ===")
	fmt.Printf("Server running at: http://%s\n", addr)
	fmt.Println()
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Error starting server: %v", err)
	}
}
