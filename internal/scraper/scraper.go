package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/renderinc/moltbook-search/internal/moltbook"
	"github.com/renderinc/moltbook-search/internal/snapshot"
)

// PageFetcher fetches one page of a feed
type PageFetcher interface {
	FetchPage(ctx context.Context, feed moltbook.Feed, offset int) (*moltbook.Page, error)
}

// Scraper pages through feeds and saves each run as a snapshot
type Scraper struct {
	client  PageFetcher
	dataDir string
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Scraper writing snapshots into dataDir
func New(client PageFetcher, dataDir string, logger *slog.Logger) *Scraper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scraper{
		client:  client,
		dataDir: dataDir,
		logger:  logger,
		now:     time.Now,
	}
}

// Scrape returns every post of feed in server order. Paging stops on an
// empty page, when the server reports no more pages, or after
// feed.MaxPages requests.
func (s *Scraper) Scrape(ctx context.Context, feed moltbook.Feed) ([]moltbook.Post, error) {
	var all []moltbook.Post
	offset := 0

	for page := 0; feed.MaxPages <= 0 || page < feed.MaxPages; page++ {
		s.logger.Info("fetching page", "feed", feed.Name, "page", page+1, "offset", offset)

		resp, err := s.client.FetchPage(ctx, feed, offset)
		if err != nil {
			if feed.ToleratePartialFailure {
				s.logger.Warn("fetch failed, keeping partial results",
					"feed", feed.Name, "offset", offset, "posts", len(all), "error", err)
				return all, nil
			}
			return nil, fmt.Errorf("scrape %s at offset %d: %w", feed.Name, offset, err)
		}

		if len(resp.Posts) == 0 {
			break
		}
		all = append(all, resp.Posts...)

		if !resp.HasMore {
			break
		}
		offset += feed.PageSize
	}

	return all, nil
}

// Result describes one saved snapshot
type Result struct {
	Feed  string
	Path  string
	Posts int
}

// Run scrapes feed and writes the result to a new snapshot named after the
// feed. It returns the snapshot path and the number of posts saved.
func (s *Scraper) Run(ctx context.Context, feed moltbook.Feed) (string, int, error) {
	return s.runAt(ctx, feed, s.now())
}

// RunAll scrapes feeds in order, stamping every snapshot with the run's
// start time so the files of one run share a timestamp. It stops at the
// first failure and returns the snapshots saved before it.
func (s *Scraper) RunAll(ctx context.Context, feeds []moltbook.Feed) ([]Result, error) {
	started := s.now()

	results := make([]Result, 0, len(feeds))
	for _, feed := range feeds {
		path, n, err := s.runAt(ctx, feed, started)
		if err != nil {
			return results, err
		}
		results = append(results, Result{Feed: feed.Name, Path: path, Posts: n})
	}
	return results, nil
}

func (s *Scraper) runAt(ctx context.Context, feed moltbook.Feed, started time.Time) (string, int, error) {
	posts, err := s.Scrape(ctx, feed)
	if err != nil {
		return "", 0, err
	}

	path, err := snapshot.Write(s.dataDir, feed.Name, started, posts)
	if err != nil {
		return "", 0, fmt.Errorf("save %s: %w", feed.Name, err)
	}

	s.logger.Info("saved snapshot", "feed", feed.Name, "posts", len(posts), "path", path)
	return path, len(posts), nil
}
