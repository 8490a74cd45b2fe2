package search

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/renderinc/moltbook-search/internal/storage"
)

// Index wraps a Bleve search index mirroring the post store
type Index struct {
	index bleve.Index
}

// IndexedPost represents a post in the search index
type IndexedPost struct {
	ID      string
	Title   string
	Content string
	Author  string
	Submolt string
	Upvotes int
}

// SearchResult represents a search result
type SearchResult struct {
	ID        string              `json:"id"`
	Title     string              `json:"title"`
	Author    string              `json:"author"`
	Submolt   string              `json:"submolt,omitempty"`
	Upvotes   int                 `json:"upvotes"`
	Score     float64             `json:"score"`
	Fragments map[string][]string `json:"fragments,omitempty"`
}

// PostLister lists stored posts
type PostLister interface {
	ListPosts(ctx context.Context) ([]*storage.Post, error)
}

// Open opens or creates a Bleve index
func Open(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildIndexMapping())
		if err != nil {
			return nil, fmt.Errorf("create index: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	return &Index{index: idx}, nil
}

// buildIndexMapping creates the post mapping; titles get English stemming
func buildIndexMapping() mapping.IndexMapping {
	titleFieldMapping := bleve.NewTextFieldMapping()
	titleFieldMapping.Analyzer = "en"

	keywordFieldMapping := bleve.NewTextFieldMapping()
	keywordFieldMapping.Analyzer = keyword.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("ID", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Title", titleFieldMapping)
	docMapping.AddFieldMappingsAt("Content", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Author", bleve.NewTextFieldMapping())
	docMapping.AddFieldMappingsAt("Submolt", keywordFieldMapping)
	docMapping.AddFieldMappingsAt("Upvotes", bleve.NewNumericFieldMapping())

	indexMapping := bleve.NewIndexMapping()
	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// Close closes the index
func (i *Index) Close() error {
	return i.index.Close()
}

// IndexPost adds or replaces a stored post in the index
func (i *Index) IndexPost(post *storage.Post) error {
	doc := toIndexed(post)
	return i.index.Index(doc.ID, doc)
}

// Search runs a query-string search (phrases, +/-, field:term, term~N)
func (i *Index) Search(queryStr string, limit int) ([]*SearchResult, error) {
	query := bleve.NewQueryStringQuery(queryStr)

	search := bleve.NewSearchRequestOptions(query, limit, 0, false)
	search.Highlight = bleve.NewHighlight()
	search.Fields = []string{"Title", "Author", "Submolt", "Upvotes"}

	results, err := i.index.Search(search)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	var searchResults []*SearchResult
	for _, hit := range results.Hits {
		result := &SearchResult{
			ID:        hit.ID,
			Score:     hit.Score,
			Fragments: hit.Fragments,
		}

		if title, ok := hit.Fields["Title"].(string); ok {
			result.Title = title
		}
		if author, ok := hit.Fields["Author"].(string); ok {
			result.Author = author
		}
		if submolt, ok := hit.Fields["Submolt"].(string); ok {
			result.Submolt = submolt
		}
		if upvotes, ok := hit.Fields["Upvotes"].(float64); ok {
			result.Upvotes = int(upvotes)
		}

		searchResults = append(searchResults, result)
	}

	return searchResults, nil
}

// Rebuild indexes every stored post in one batch. progress, if set, is
// called after each post.
func (i *Index) Rebuild(ctx context.Context, db PostLister, progress func(current, total int)) error {
	posts, err := db.ListPosts(ctx)
	if err != nil {
		return fmt.Errorf("list posts: %w", err)
	}

	batch := i.index.NewBatch()
	for n, post := range posts {
		doc := toIndexed(post)
		if err := batch.Index(doc.ID, doc); err != nil {
			return fmt.Errorf("batch index %s: %w", doc.ID, err)
		}
		if progress != nil {
			progress(n+1, len(posts))
		}
	}

	if err := i.index.Batch(batch); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}

	return nil
}

// Count returns the number of posts in the index
func (i *Index) Count() (uint64, error) {
	return i.index.DocCount()
}

func toIndexed(post *storage.Post) *IndexedPost {
	doc := &IndexedPost{
		ID:      post.ID,
		Author:  post.AuthorName,
		Submolt: post.Submolt,
		Upvotes: post.Upvotes,
	}
	if post.Title != nil {
		doc.Title = *post.Title
	}
	if post.Content != nil {
		doc.Content = *post.Content
	}
	return doc
}
