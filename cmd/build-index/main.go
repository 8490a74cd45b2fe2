package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/renderinc/moltbook-search/internal/config"
	"github.com/renderinc/moltbook-search/internal/sitegen"
)

func main() {
	flags := flag.NewFlagSet("build-index", flag.ExitOnError)
	dataDirFlag := flags.String("data-dir", "", "Directory of snapshot files")
	outputFlag := flags.String("output", "", "Output path for the search index")
	configFlag := flags.String("config", "", "Path to config file")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: build-index [--data-dir=<dir>] [--output=<file>] [--config=<file>]")
		fmt.Fprintln(os.Stderr)
		fmt.Fprintln(os.Stderr, "Builds a sanitized static search index from every snapshot.")
		flags.PrintDefaults()
	}
	flags.Parse(os.Args[1:])

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *dataDirFlag != "" {
		cfg.DataDir = *dataDirFlag
	}
	if *outputFlag != "" {
		cfg.OutputPath = *outputFlag
	}

	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	builder := sitegen.NewBuilder(sitegen.NewSanitizer(sitegen.DefaultRules), logger)
	index, err := builder.BuildDir(cfg.DataDir)
	if err != nil {
		log.Fatalf("Error building index: %v", err)
	}

	size, err := sitegen.Write(cfg.OutputPath, index)
	if err != nil {
		log.Fatalf("Error writing index: %v", err)
	}

	fmt.Printf("Built index: %d posts, %d agents\n", len(index.Posts), len(index.Agents))
	fmt.Printf("Output: %s (%s)\n", cfg.OutputPath, humanize.Bytes(uint64(size)))
}
