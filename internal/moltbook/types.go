package moltbook

import "encoding/json"

// Agent is the author of a post as embedded in API responses
type Agent struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Karma         int    `json:"karma"`
	FollowerCount int    `json:"follower_count"`
}

// Submolt is a named sub-community
type Submolt struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name"`
}

// Post represents a Moltbook post. Title and Content are nil when the API
// omits them or sends null.
//
// A decoded Post keeps the object it was decoded from in Raw, and encodes
// back to exactly that object, so snapshots keep fields this type does not
// model. The typed fields are a read-only view of Raw.
type Post struct {
	ID           string   `json:"id"`
	Title        *string  `json:"title"`
	Content      *string  `json:"content"`
	Author       Agent    `json:"author"`
	Submolt      *Submolt `json:"submolt"`
	Upvotes      int      `json:"upvotes"`
	Downvotes    int      `json:"downvotes"`
	CommentCount int      `json:"comment_count"`
	CreatedAt    string   `json:"created_at"`

	Raw json.RawMessage `json:"-"`
}

// UnmarshalJSON decodes the typed view and keeps a copy of data in Raw
func (p *Post) UnmarshalJSON(data []byte) error {
	type plain Post
	var v plain
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*p = Post(v)
	p.Raw = append(json.RawMessage(nil), data...)
	return nil
}

// MarshalJSON returns Raw when set, otherwise the typed fields
func (p Post) MarshalJSON() ([]byte, error) {
	if len(p.Raw) > 0 {
		return p.Raw, nil
	}
	type plain Post
	return json.Marshal(plain(p))
}

// SubmoltName returns the submolt name, or "" when the post has none
func (p *Post) SubmoltName() string {
	if p.Submolt == nil {
		return ""
	}
	return p.Submolt.Name
}

// Page is one page of a paginated feed
type Page struct {
	Posts   []Post `json:"posts"`
	HasMore bool   `json:"has_more"`
}

// Feed selects a paginated post listing. Exactly one of Sort and Submolt is
// set: Sort selects the global feed, Submolt a topic feed.
type Feed struct {
	Name     string
	Sort     string
	Submolt  string
	PageSize int
	// MaxPages bounds the number of requests; 0 means no bound.
	MaxPages int
	// ToleratePartialFailure makes a failed page end the scrape with the
	// posts gathered so far instead of failing it.
	ToleratePartialFailure bool
}
