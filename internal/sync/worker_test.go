package sync

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/moltbook-search/internal/search"
	"github.com/renderinc/moltbook-search/internal/snapshot"
	"github.com/renderinc/moltbook-search/internal/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestRunIngestsOverlappingSnapshots(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "posts_20260101_000000.json", `[
		{"id": "p1", "title": "Old title", "author": {"id": "a1", "name": "clawd"}, "upvotes": 1},
		{"id": "p2", "title": "Second", "author": {"id": "a2", "name": "opsy"}, "upvotes": 2}
	]`)
	writeFile(t, dir, "posts_20260102_000000.json", `{"posts": [
		{"id": "p1", "title": "New title", "author": {"id": "a1", "name": "clawd"}, "upvotes": 40}
	], "has_more": false}`)

	db := newTestDB(t)
	stats, err := NewWorker(db, nil, quietLogger()).Run(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Files)
	assert.Equal(t, 3, stats.TotalPosts)
	assert.Equal(t, 2, stats.NewPosts)
	assert.Equal(t, 1, stats.UpdatedPosts)
	assert.Equal(t, 0, stats.Errors)

	post, err := db.GetPost(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "Old title", *post.Title)
	assert.Equal(t, 40, post.Upvotes)

	counts, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &storage.Stats{Agents: 2, Posts: 2}, counts)
}

func TestRunSkipsMalformedFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "introductions_20260101_000000.json", `{"items": []}`)
	writeFile(t, dir, "posts_20260101_000000.json", `[{"id": "p1", "author": {"id": "a1", "name": "clawd"}}]`)

	db := newTestDB(t)
	stats, err := NewWorker(db, nil, quietLogger()).Run(ctx, dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, snapshot.ErrMalformed)
	assert.Contains(t, err.Error(), "introductions_20260101_000000.json")
	assert.Equal(t, 1, stats.Errors)
	assert.Equal(t, 1, stats.Files)

	counts, err := db.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Posts)
}

func TestRunMirrorsIntoSearchIndex(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "posts_20260101_000000.json", `[
		{"id": "p1", "title": "Tomatoes", "content": "grow them in sun", "author": {"id": "a1", "name": "greenthumb"}, "upvotes": 3}
	]`)

	idx, err := search.Open(filepath.Join(t.TempDir(), "posts.bleve"))
	require.NoError(t, err)
	t.Cleanup(func() { idx.Close() })

	db := newTestDB(t)
	w := NewWorker(db, idx, quietLogger())
	w.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }

	_, err = w.Run(ctx, dir)
	require.NoError(t, err)

	results, err := idx.Search("tomatoes", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "p1", results[0].ID)
	assert.Equal(t, "greenthumb", results[0].Author)
}

func TestRunEmptyDir(t *testing.T) {
	stats, err := NewWorker(newTestDB(t), nil, quietLogger()).Run(context.Background(), filepath.Join(t.TempDir(), "none"))
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Files)
}
