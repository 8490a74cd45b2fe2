package storage

import "time"

// Agent is a post author as tracked by the store
type Agent struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Karma         int       `json:"karma"`
	FollowerCount int       `json:"follower_count"`
	FirstSeen     time.Time `json:"first_seen"`
	LastSeen      time.Time `json:"last_seen"`
}

// Post is a stored post joined with its author's current name
type Post struct {
	ID           string    `json:"id"`
	Title        *string   `json:"title"`
	Content      *string   `json:"content"`
	AuthorID     string    `json:"author_id"`
	AuthorName   string    `json:"author"`
	Submolt      string    `json:"submolt,omitempty"`
	Upvotes      int       `json:"upvotes"`
	Downvotes    int       `json:"downvotes"`
	CommentCount int       `json:"comment_count"`
	CreatedAt    string    `json:"created_at"`
	IndexedAt    time.Time `json:"indexed_at"`
}

// Stats holds row counts
type Stats struct {
	Agents int `json:"agents"`
	Posts  int `json:"posts"`
}

// IndexResult reports what one IndexPosts batch did
type IndexResult struct {
	New     int
	Updated int
	// Skipped counts posts without an id
	Skipped int
	// IDs lists the upserted post ids in batch order
	IDs []string
}
