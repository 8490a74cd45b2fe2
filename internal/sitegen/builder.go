// Package sitegen builds the sanitized search index consumed by the static
// site.
package sitegen

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/renderinc/moltbook-search/internal/moltbook"
	"github.com/renderinc/moltbook-search/internal/snapshot"
)

// Index is the generated search-index.json document
type Index struct {
	UpdatedAt string         `json:"updated_at"`
	Posts     []PostSummary  `json:"posts"`
	Agents    []AgentSummary `json:"agents"`
}

// PostSummary is a flattened, sanitized post
type PostSummary struct {
	ID           string  `json:"id"`
	Title        *string `json:"title"`
	Content      *string `json:"content"`
	Author       string  `json:"author"`
	AuthorID     string  `json:"author_id"`
	Submolt      *string `json:"submolt"`
	Upvotes      int     `json:"upvotes"`
	CommentCount int     `json:"comment_count"`
	CreatedAt    *string `json:"created_at"`
}

// AgentSummary describes one author
type AgentSummary struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Karma         int    `json:"karma"`
	FollowerCount int    `json:"follower_count"`
}

// Builder turns snapshots into an Index
type Builder struct {
	sanitizer *Sanitizer
	logger    *slog.Logger
	now       func() time.Time
}

// NewBuilder creates a Builder. A nil sanitizer uses the default rules.
func NewBuilder(sanitizer *Sanitizer, logger *slog.Logger) *Builder {
	if sanitizer == nil {
		sanitizer = NewSanitizer(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{
		sanitizer: sanitizer,
		logger:    logger,
		now:       time.Now,
	}
}

// BuildDir loads every snapshot in dir and builds the index. Any malformed
// snapshot fails the build.
func (b *Builder) BuildDir(dir string) (*Index, error) {
	files, err := snapshot.LoadAll(dir)
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}

	var posts []moltbook.Post
	for _, f := range files {
		b.logger.Info("loaded snapshot", "path", f.Path, "posts", len(f.Posts))
		posts = append(posts, f.Posts...)
	}

	return b.Build(posts), nil
}

// Build deduplicates posts by id (first occurrence wins), sanitizes them
// and sorts them by upvotes, keeping input order among equal counts
func (b *Builder) Build(posts []moltbook.Post) *Index {
	seen := make(map[string]bool)
	agentPos := make(map[string]int)
	summaries := make([]PostSummary, 0, len(posts))
	agents := make([]AgentSummary, 0)

	for i := range posts {
		post := &posts[i]
		if seen[post.ID] {
			continue
		}
		seen[post.ID] = true

		// Later posts refresh an agent's numbers but not its position
		if author := post.Author; author.ID != "" {
			summary := AgentSummary{
				ID:            author.ID,
				Name:          author.Name,
				Karma:         author.Karma,
				FollowerCount: author.FollowerCount,
			}
			if pos, ok := agentPos[author.ID]; ok {
				agents[pos] = summary
			} else {
				agentPos[author.ID] = len(agents)
				agents = append(agents, summary)
			}
		}

		summaries = append(summaries, b.summarize(post))
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		return summaries[i].Upvotes > summaries[j].Upvotes
	})

	return &Index{
		UpdatedAt: b.now().UTC().Format(time.RFC3339),
		Posts:     summaries,
		Agents:    agents,
	}
}

func (b *Builder) summarize(post *moltbook.Post) PostSummary {
	summary := PostSummary{
		ID:           post.ID,
		Title:        b.sanitizer.SanitizePtr(post.Title),
		Content:      b.sanitizer.SanitizePtr(post.Content),
		Author:       post.Author.Name,
		AuthorID:     post.Author.ID,
		Upvotes:      post.Upvotes,
		CommentCount: post.CommentCount,
	}
	if post.CreatedAt != "" {
		createdAt := post.CreatedAt
		summary.CreatedAt = &createdAt
	}
	if name := post.SubmoltName(); name != "" {
		summary.Submolt = &name
	}
	return summary
}

// Write saves index as compact JSON at path, replacing any previous file,
// and returns the number of bytes written
func Write(path string, index *Index) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	data, err := json.Marshal(index)
	if err != nil {
		return 0, fmt.Errorf("marshal index: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("write index: %w", err)
	}

	return int64(len(data)), nil
}
