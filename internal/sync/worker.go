package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/renderinc/moltbook-search/internal/search"
	"github.com/renderinc/moltbook-search/internal/snapshot"
	"github.com/renderinc/moltbook-search/internal/storage"
)

// Worker ingests snapshot files into the store
type Worker struct {
	db     *storage.DB
	index  *search.Index // optional fuzzy-search mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewWorker creates a new ingestion worker. index may be nil.
func NewWorker(db *storage.DB, index *search.Index, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		db:     db,
		index:  index,
		logger: logger,
		now:    time.Now,
	}
}

// Stats holds ingestion statistics
type Stats struct {
	Files        int
	TotalPosts   int
	NewPosts     int
	UpdatedPosts int
	SkippedPosts int
	Errors       int
	Duration     time.Duration
}

// Run ingests every snapshot in dataDir, one transaction per file. A file
// that cannot be loaded or stored is logged and skipped; the returned error
// then names every failed file.
func (w *Worker) Run(ctx context.Context, dataDir string) (*Stats, error) {
	startTime := time.Now()
	stats := &Stats{}

	paths, err := snapshot.List(dataDir)
	if err != nil {
		return nil, err
	}
	w.logger.Info("starting ingestion", "dir", dataDir, "files", len(paths))

	var errs []error
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		if err := w.ingestFile(ctx, path, stats); err != nil {
			w.logger.Error("ingest failed", "path", path, "error", err)
			stats.Errors++
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		stats.Files++
	}

	stats.Duration = time.Since(startTime)
	w.logger.Info("ingestion complete",
		"files", stats.Files, "new", stats.NewPosts, "updated", stats.UpdatedPosts,
		"errors", stats.Errors, "duration", stats.Duration)

	return stats, errors.Join(errs...)
}

// ingestFile stores one snapshot and mirrors the stored rows into the
// search index
func (w *Worker) ingestFile(ctx context.Context, path string, stats *Stats) error {
	posts, err := snapshot.Load(path)
	if err != nil {
		return err
	}

	result, err := w.db.IndexPosts(ctx, posts, w.now())
	if err != nil {
		return fmt.Errorf("index posts: %w", err)
	}

	stats.TotalPosts += len(posts)
	stats.NewPosts += result.New
	stats.UpdatedPosts += result.Updated
	stats.SkippedPosts += result.Skipped
	w.logger.Info("indexed snapshot", "path", path, "posts", len(posts), "new", result.New, "updated", result.Updated)

	if w.index == nil {
		return nil
	}

	for _, id := range result.IDs {
		post, err := w.db.GetPost(ctx, id)
		if err != nil {
			return fmt.Errorf("reload post %s: %w", id, err)
		}
		if post == nil {
			continue
		}
		if err := w.index.IndexPost(post); err != nil {
			return fmt.Errorf("search index post %s: %w", id, err)
		}
	}

	return nil
}
