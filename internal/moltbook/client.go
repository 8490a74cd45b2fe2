package moltbook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the public Moltbook API root
const DefaultBaseURL = "https://www.moltbook.com/api/v1"

// ErrMissingAPIKey is returned by NewClient when no credential is supplied
var ErrMissingAPIKey = errors.New("moltbook API key is required (set MOLTBOOK_API_KEY)")

// StatusError is returned for non-2xx responses
type StatusError struct {
	URL        string
	StatusCode int
	Status     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status from %s: %s", e.URL, e.Status)
}

// Client is a Moltbook API client
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new Moltbook API client. An empty baseURL selects
// DefaultBaseURL; a zero timeout selects 30 seconds.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, ErrMissingAPIKey
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// FetchPosts fetches one page of the global feed
func (c *Client) FetchPosts(ctx context.Context, sort string, limit, offset int) (*Page, error) {
	params := url.Values{}
	params.Set("sort", sort)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	page, err := c.getPage(ctx, "/posts", params)
	if err != nil {
		return nil, fmt.Errorf("fetch posts: %w", err)
	}
	return page, nil
}

// FetchSubmoltPosts fetches one page of a submolt's feed
func (c *Client) FetchSubmoltPosts(ctx context.Context, name string, limit, offset int) (*Page, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(offset))

	page, err := c.getPage(ctx, "/submolts/"+url.PathEscape(name)+"/posts", params)
	if err != nil {
		return nil, fmt.Errorf("fetch submolt %s posts: %w", name, err)
	}
	return page, nil
}

// FetchPage fetches the page of feed starting at offset
func (c *Client) FetchPage(ctx context.Context, feed Feed, offset int) (*Page, error) {
	if feed.Submolt != "" {
		return c.FetchSubmoltPosts(ctx, feed.Submolt, feed.PageSize, offset)
	}
	return c.FetchPosts(ctx, feed.Sort, feed.PageSize, offset)
}

// getPage performs an authenticated GET and decodes a feed page
func (c *Client) getPage(ctx context.Context, path string, params url.Values) (*Page, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{URL: reqURL, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	var page Page
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &page, nil
}
