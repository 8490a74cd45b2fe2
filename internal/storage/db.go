package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/renderinc/moltbook-search/internal/moltbook"

	_ "modernc.org/sqlite"
)

const timeLayout = time.RFC3339Nano

// DB wraps SQLite database operations
type DB struct {
	db *sql.DB
}

// Open opens or creates a SQLite database
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	storage := &DB{db: db}

	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return storage, nil
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

// initSchema creates tables if they don't exist
func (d *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS agents (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		karma INTEGER NOT NULL DEFAULT 0,
		follower_count INTEGER NOT NULL DEFAULT 0,
		first_seen TEXT,
		last_seen TEXT
	);

	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT,
		content TEXT,
		author_id TEXT REFERENCES agents(id),
		submolt TEXT,
		upvotes INTEGER NOT NULL DEFAULT 0,
		downvotes INTEGER NOT NULL DEFAULT 0,
		comment_count INTEGER NOT NULL DEFAULT 0,
		created_at TEXT,
		indexed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_agents_karma ON agents(karma);

	-- Reserved for expertise tagging; nothing writes it yet
	CREATE TABLE IF NOT EXISTS agent_expertise (
		agent_id TEXT REFERENCES agents(id),
		topic TEXT,
		confidence REAL DEFAULT 1.0,
		source TEXT,
		PRIMARY KEY (agent_id, topic)
	);

	CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
		post_id UNINDEXED,
		title,
		content,
		author_name
	);

	-- Title and content are write-once, so only inserts need indexing
	CREATE TRIGGER IF NOT EXISTS posts_ai AFTER INSERT ON posts BEGIN
		INSERT INTO posts_fts (post_id, title, content, author_name)
		VALUES (NEW.id, NEW.title, NEW.content,
			(SELECT name FROM agents WHERE id = NEW.author_id));
	END;
	`

	_, err := d.db.Exec(schema)
	return err
}

// IndexPosts upserts a batch of posts and their authors in one transaction.
// Engagement counters are refreshed on every call; title, content, author,
// submolt and created_at keep the values from the first insert.
func (d *DB) IndexPosts(ctx context.Context, posts []moltbook.Post, now time.Time) (*IndexResult, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stamp := now.UTC().Format(timeLayout)
	result := &IndexResult{}

	for i := range posts {
		post := &posts[i]
		if post.ID == "" {
			result.Skipped++
			continue
		}

		if post.Author.ID != "" {
			if err := upsertAgent(ctx, tx, &post.Author, stamp); err != nil {
				return nil, fmt.Errorf("upsert agent %s: %w", post.Author.ID, err)
			}
		}

		var exists bool
		if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM posts WHERE id = ?)`, post.ID).Scan(&exists); err != nil {
			return nil, fmt.Errorf("check post %s: %w", post.ID, err)
		}

		if err := upsertPost(ctx, tx, post, stamp); err != nil {
			return nil, fmt.Errorf("upsert post %s: %w", post.ID, err)
		}

		if exists {
			result.Updated++
		} else {
			result.New++
		}
		result.IDs = append(result.IDs, post.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}

	return result, nil
}

func upsertAgent(ctx context.Context, tx *sql.Tx, agent *moltbook.Agent, stamp string) error {
	query := `
	INSERT INTO agents (id, name, karma, follower_count, first_seen, last_seen)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		karma = excluded.karma,
		follower_count = excluded.follower_count,
		last_seen = excluded.last_seen
	`

	_, err := tx.ExecContext(ctx, query,
		agent.ID, agent.Name, agent.Karma, agent.FollowerCount, stamp, stamp,
	)
	return err
}

func upsertPost(ctx context.Context, tx *sql.Tx, post *moltbook.Post, stamp string) error {
	query := `
	INSERT INTO posts (
		id, title, content, author_id, submolt,
		upvotes, downvotes, comment_count, created_at, indexed_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		upvotes = excluded.upvotes,
		downvotes = excluded.downvotes,
		comment_count = excluded.comment_count,
		indexed_at = excluded.indexed_at
	`

	_, err := tx.ExecContext(ctx, query,
		post.ID, nullStringPtr(post.Title), nullStringPtr(post.Content), nullString(post.Author.ID), nullString(post.SubmoltName()),
		post.Upvotes, post.Downvotes, post.CommentCount, nullString(post.CreatedAt), stamp,
	)
	return err
}

// GetAgent retrieves an agent by ID
func (d *DB) GetAgent(ctx context.Context, id string) (*Agent, error) {
	query := `
	SELECT id, name, karma, follower_count, first_seen, last_seen
	FROM agents
	WHERE id = ?
	`

	agent, err := scanAgent(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// GetPost retrieves a post by ID
func (d *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	query := postColumns + `
	FROM posts p
	LEFT JOIN agents a ON a.id = p.author_id
	WHERE p.id = ?
	`

	post, err := scanPost(d.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

// ListPosts retrieves all posts, most upvoted first
func (d *DB) ListPosts(ctx context.Context) ([]*Post, error) {
	query := postColumns + `
	FROM posts p
	LEFT JOIN agents a ON a.id = p.author_id
	ORDER BY p.upvotes DESC, p.id
	`

	rows, err := d.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

// SearchPosts runs a full-text query over title, content and author name,
// best match first
func (d *DB) SearchPosts(ctx context.Context, query string, limit int) ([]*Post, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := postColumns + `
	FROM posts_fts
	JOIN posts p ON p.id = posts_fts.post_id
	LEFT JOIN agents a ON a.id = p.author_id
	WHERE posts_fts MATCH ?
	ORDER BY rank
	LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, sqlQuery, match, limit)
	if err != nil {
		return nil, fmt.Errorf("search posts: %w", err)
	}
	defer rows.Close()

	return scanPosts(rows)
}

// SearchAgents finds agents whose name contains query (case-insensitive)
// or who wrote a post matching query, highest karma first
func (d *DB) SearchAgents(ctx context.Context, query string, limit int) ([]*Agent, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}

	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}

	sqlQuery := `
	SELECT a.id, a.name, a.karma, a.follower_count, a.first_seen, a.last_seen
	FROM agents a
	WHERE a.name LIKE ? ESCAPE '\'
	   OR a.id IN (
		SELECT p.author_id
		FROM posts_fts
		JOIN posts p ON p.id = posts_fts.post_id
		WHERE posts_fts MATCH ?
	   )
	ORDER BY a.karma DESC, a.name
	LIMIT ?
	`

	rows, err := d.db.QueryContext(ctx, sqlQuery, "%"+escapeLike(strings.TrimSpace(query))+"%", match, limit)
	if err != nil {
		return nil, fmt.Errorf("search agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, agent)
	}

	return agents, rows.Err()
}

// Stats returns the number of agents and posts
func (d *DB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := d.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM agents), (SELECT COUNT(*) FROM posts)
	`).Scan(&stats.Agents, &stats.Posts)
	if err != nil {
		return nil, fmt.Errorf("count rows: %w", err)
	}
	return stats, nil
}

const postColumns = `
	SELECT p.id, p.title, p.content, COALESCE(p.author_id, ''), COALESCE(a.name, ''),
	       COALESCE(p.submolt, ''), p.upvotes, p.downvotes, p.comment_count,
	       COALESCE(p.created_at, ''), COALESCE(p.indexed_at, '')
`

type scanner interface {
	Scan(dest ...any) error
}

func scanPost(row scanner) (*Post, error) {
	post := &Post{}
	var indexedAt string
	err := row.Scan(
		&post.ID, &post.Title, &post.Content, &post.AuthorID, &post.AuthorName,
		&post.Submolt, &post.Upvotes, &post.Downvotes, &post.CommentCount,
		&post.CreatedAt, &indexedAt,
	)
	if err != nil {
		return nil, err
	}
	post.IndexedAt = parseTime(indexedAt)
	return post, nil
}

func scanPosts(rows *sql.Rows) ([]*Post, error) {
	var posts []*Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, post)
	}
	return posts, rows.Err()
}

func scanAgent(row scanner) (*Agent, error) {
	agent := &Agent{}
	var firstSeen, lastSeen sql.NullString
	err := row.Scan(
		&agent.ID, &agent.Name, &agent.Karma, &agent.FollowerCount, &firstSeen, &lastSeen,
	)
	if err != nil {
		return nil, err
	}
	agent.FirstSeen = parseTime(firstSeen.String)
	agent.LastSeen = parseTime(lastSeen.String)
	return agent, nil
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullStringPtr(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
