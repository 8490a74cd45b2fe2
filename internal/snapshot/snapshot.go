// Package snapshot reads and writes the timestamped JSON files produced by
// each scrape run.
package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/renderinc/moltbook-search/internal/moltbook"
)

// TimeLayout is the timestamp part of a snapshot file name
const TimeLayout = "20060102_150405"

// ErrMalformed is returned when a file is not a post array or an object
// with a "posts" array
var ErrMalformed = errors.New("malformed snapshot")

// File is one loaded snapshot
type File struct {
	Path  string
	Posts []moltbook.Post
}

// Name returns the snapshot file name for a run of kind started at ts
func Name(kind string, ts time.Time) string {
	return fmt.Sprintf("%s_%s.json", kind, ts.Format(TimeLayout))
}

// Write saves posts to dir as a new snapshot and returns its path. An
// existing file with the same name is never overwritten.
func Write(dir, kind string, ts time.Time, posts []moltbook.Post) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}

	if posts == nil {
		posts = []moltbook.Post{}
	}
	data, err := json.MarshalIndent(posts, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal posts: %w", err)
	}

	path := filepath.Join(dir, Name(kind, ts))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return "", fmt.Errorf("write snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}

	return path, nil
}

// List returns the *.json files in dir in lexicographic order. A missing
// directory yields no files.
func List(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// Load reads one snapshot file
func Load(path string) ([]moltbook.Post, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	posts, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return posts, nil
}

// Decode parses snapshot contents in either accepted shape
func Decode(data []byte) ([]moltbook.Post, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty file", ErrMalformed)
	}

	switch trimmed[0] {
	case '[':
		var posts []moltbook.Post
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return posts, nil
	case '{':
		var wrapper struct {
			Posts *[]moltbook.Post `json:"posts"`
		}
		if err := json.Unmarshal(trimmed, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		if wrapper.Posts == nil {
			return nil, fmt.Errorf("%w: object has no \"posts\" array", ErrMalformed)
		}
		return *wrapper.Posts, nil
	default:
		return nil, fmt.Errorf("%w: expected an array or an object", ErrMalformed)
	}
}

// LoadAll loads every snapshot in dir in List order, stopping at the first
// unreadable file
func LoadAll(dir string) ([]File, error) {
	paths, err := List(dir)
	if err != nil {
		return nil, err
	}

	files := make([]File, 0, len(paths))
	for _, path := range paths {
		posts, err := Load(path)
		if err != nil {
			return nil, err
		}
		files = append(files, File{Path: path, Posts: posts})
	}
	return files, nil
}
