package sitegen

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/renderinc/moltbook-search/internal/moltbook"
	"github.com/renderinc/moltbook-search/internal/snapshot"
)

func newTestBuilder() *Builder {
	b := NewBuilder(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	b.now = func() time.Time { return time.Date(2026, 2, 1, 8, 0, 0, 0, time.FixedZone("PST", -8*3600)) }
	return b
}

func strPtr(s string) *string { return &s }

func summaryIDs(posts []PostSummary) []string {
	var ids []string
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}

func TestBuildStableSortByUpvotes(t *testing.T) {
	posts := []moltbook.Post{
		{ID: "a", Upvotes: 5},
		{ID: "b", Upvotes: 3},
		{ID: "c", Upvotes: 5},
		{ID: "d", Upvotes: 9},
	}

	index := newTestBuilder().Build(posts)
	assert.Equal(t, []string{"d", "a", "c", "b"}, summaryIDs(index.Posts))
	assert.Equal(t, "2026-02-01T16:00:00Z", index.UpdatedAt)
}

func TestBuildDeduplicatesFirstSeen(t *testing.T) {
	alice := moltbook.Agent{ID: "u1", Name: "alice", Karma: 1}
	posts := []moltbook.Post{
		{ID: "p1", Title: strPtr("original"), Author: alice, Upvotes: 1},
		{ID: "p2", Author: moltbook.Agent{ID: "u2", Name: "bob"}},
		{ID: "p1", Title: strPtr("rescraped"), Author: alice, Upvotes: 100},
		{ID: "p3", Author: moltbook.Agent{ID: "u1", Name: "alice", Karma: 7}},
	}

	index := newTestBuilder().Build(posts)
	require.Len(t, index.Posts, 3)
	assert.Equal(t, []string{"p1", "p2", "p3"}, summaryIDs(index.Posts))
	assert.Equal(t, "original", *index.Posts[0].Title)
	assert.Equal(t, 1, index.Posts[0].Upvotes)

	require.Len(t, index.Agents, 2)
	assert.Equal(t, "u1", index.Agents[0].ID)
	assert.Equal(t, 7, index.Agents[0].Karma, "later unique posts refresh agent numbers")
	assert.Equal(t, "u2", index.Agents[1].ID)
}

func TestBuildFlattensAndSanitizes(t *testing.T) {
	posts := []moltbook.Post{
		{
			ID:           "p1",
			Title:        strPtr("my key sk-abcdefghijklmnopqrstuvwxyz123456"),
			Content:      nil,
			Author:       moltbook.Agent{ID: "u1", Name: "alice"},
			Submolt:      &moltbook.Submolt{Name: "introductions"},
			Upvotes:      4,
			CommentCount: 2,
			CreatedAt:    "2026-01-30T10:00:00Z",
		},
		{ID: "p2", Content: strPtr("")},
	}

	index := newTestBuilder().Build(posts)
	first := index.Posts[0]
	assert.Equal(t, "my key "+RedactedAPIKey, *first.Title)
	assert.Nil(t, first.Content)
	assert.Equal(t, "alice", first.Author)
	assert.Equal(t, "u1", first.AuthorID)
	assert.Equal(t, "introductions", *first.Submolt)
	assert.Equal(t, 2, first.CommentCount)
	assert.Equal(t, "2026-01-30T10:00:00Z", *first.CreatedAt)

	second := index.Posts[1]
	assert.Nil(t, second.Submolt)
	assert.Nil(t, second.CreatedAt, "missing created_at stays null")
	assert.Equal(t, "", *second.Content)
	assert.Len(t, index.Agents, 1, "posts without an author add no agent")
}

func TestBuildDirAcrossOverlappingSnapshots(t *testing.T) {
	dir := t.TempDir()
	_, err := snapshot.Write(dir, "posts", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), []moltbook.Post{
		{ID: "p1", Upvotes: 1}, {ID: "p2", Upvotes: 2},
	})
	require.NoError(t, err)
	wrapped := `{"posts": [{"id": "p2", "upvotes": 50}, {"id": "p3", "upvotes": 3}]}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts_20260102_000000.json"), []byte(wrapped), 0644))

	index, err := newTestBuilder().BuildDir(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"p3", "p2", "p1"}, summaryIDs(index.Posts))
	assert.Equal(t, 2, index.Posts[1].Upvotes, "first snapshot in name order wins")
}

func TestBuildDirMalformed(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "posts_20260101_000000.json"), []byte("{oops"), 0644))

	_, err := newTestBuilder().BuildDir(dir)
	require.ErrorIs(t, err, snapshot.ErrMalformed)
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docs", "search-index.json")
	index := newTestBuilder().Build([]moltbook.Post{{ID: "p1", Author: moltbook.Agent{ID: "u1", Name: "alice"}}})

	n, err := Write(path, index)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "updated_at")
	assert.Contains(t, raw, "posts")
	assert.Contains(t, raw, "agents")

	var posts []map[string]any
	require.NoError(t, json.Unmarshal(raw["posts"], &posts))
	require.Len(t, posts, 1)
	assert.Nil(t, posts[0]["submolt"])
	assert.Contains(t, posts[0], "title")

	// Rebuilding replaces the file
	_, err = Write(path, newTestBuilder().Build(nil))
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"posts":[]`)
	assert.Contains(t, string(data), `"agents":[]`)
}
