package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/renderinc/moltbook-search/internal/moltbook"
)

// DefaultPath is read when no config file is given; it may be absent
const DefaultPath = "moltbook.yaml"

// Config holds all configuration shared by the three binaries. The API key
// is deliberately absent: it comes from the environment at the entry point.
type Config struct {
	APIBase         string       `yaml:"api_base"`
	DataDir         string       `yaml:"data_dir"`
	DBPath          string       `yaml:"db_path"`
	BlevePath       string       `yaml:"bleve_path"`
	OutputPath      string       `yaml:"output_path"`
	HTTPTimeoutSecs int          `yaml:"http_timeout_secs"`
	Schedule        string       `yaml:"schedule"`
	LogLevel        string       `yaml:"log_level"`
	Feeds           []FeedConfig `yaml:"feeds"`
}

// FeedConfig describes one scrapeable feed
type FeedConfig struct {
	Name                   string `yaml:"name"`
	Sort                   string `yaml:"sort"`
	Submolt                string `yaml:"submolt"`
	PageSize               int    `yaml:"page_size"`
	MaxPages               int    `yaml:"max_pages"`
	ToleratePartialFailure bool   `yaml:"tolerate_partial_failure"`
}

// Defaults returns a Config with all default values set
func Defaults() Config {
	return Config{
		APIBase:         moltbook.DefaultBaseURL,
		DataDir:         "data",
		DBPath:          "moltbook.db",
		BlevePath:       "moltbook.bleve",
		OutputPath:      "docs/search-index.json",
		HTTPTimeoutSecs: 30,
		Schedule:        "@every 6h",
		LogLevel:        "info",
		Feeds: []FeedConfig{
			{Name: "posts", Sort: "new", PageSize: 100, MaxPages: 10},
			{Name: "introductions", Submolt: "introductions", PageSize: 100, ToleratePartialFailure: true},
		},
	}
}

// Load reads a YAML config file over the defaults. MOLTBOOK_CONFIG
// overrides path. A missing file is only an error when it was asked for
// explicitly.
func Load(path string) (Config, error) {
	explicit := path != ""
	if envPath := os.Getenv("MOLTBOOK_CONFIG"); envPath != "" {
		path = envPath
		explicit = true
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks that required fields are present and values are valid
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path is required")
	}
	if c.HTTPTimeoutSecs < 0 {
		return fmt.Errorf("http_timeout_secs must not be negative")
	}

	seen := make(map[string]bool)
	for i, f := range c.Feeds {
		if f.Name == "" {
			return fmt.Errorf("feeds[%d]: name is required", i)
		}
		if f.Name == "all" || f.Name == "schedule" {
			return fmt.Errorf("feeds[%d]: name %q is reserved", i, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("feeds[%d]: duplicate name %q", i, f.Name)
		}
		seen[f.Name] = true

		if (f.Sort == "") == (f.Submolt == "") {
			return fmt.Errorf("feed %q: exactly one of sort or submolt must be set", f.Name)
		}
		if f.PageSize <= 0 {
			return fmt.Errorf("feed %q: page_size must be positive", f.Name)
		}
		if f.MaxPages < 0 {
			return fmt.Errorf("feed %q: max_pages must not be negative", f.Name)
		}
	}

	return nil
}

// HTTPTimeout returns the API client timeout
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSecs) * time.Second
}

// Feed returns the named feed
func (c *Config) Feed(name string) (moltbook.Feed, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f.toFeed(), true
		}
	}
	return moltbook.Feed{}, false
}

// AllFeeds returns every configured feed in file order
func (c *Config) AllFeeds() []moltbook.Feed {
	feeds := make([]moltbook.Feed, 0, len(c.Feeds))
	for _, f := range c.Feeds {
		feeds = append(feeds, f.toFeed())
	}
	return feeds
}

func (f FeedConfig) toFeed() moltbook.Feed {
	return moltbook.Feed{
		Name:                   f.Name,
		Sort:                   f.Sort,
		Submolt:                f.Submolt,
		PageSize:               f.PageSize,
		MaxPages:               f.MaxPages,
		ToleratePartialFailure: f.ToleratePartialFailure,
	}
}
